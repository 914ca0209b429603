package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingHandler struct {
	mu      sync.Mutex
	indexed []string
	deleted []string
}

func (h *recordingHandler) IndexFile(_ context.Context, path string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.indexed = append(h.indexed, path)
	return 1, nil
}

func (h *recordingHandler) DeleteFile(_ context.Context, path string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deleted = append(h.deleted, path)
	return 1, nil
}

func (h *recordingHandler) snapshot() (indexed, deleted []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.indexed...), append([]string(nil), h.deleted...)
}

func txtOnly(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".txt")
}

func startWatcher(t *testing.T, roots []string, recursive bool, h Handler) (*Watcher, context.CancelFunc) {
	t.Helper()
	w := New(roots, recursive, h, WithDebounce(50*time.Millisecond), WithFilter(txtOnly))
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		cancel()
		t.Fatal(err)
	}
	t.Cleanup(func() {
		cancel()
		<-w.Done()
	})
	return w, cancel
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWatcher_DebouncedImport(t *testing.T) {
	dir := t.TempDir()
	h := &recordingHandler{}
	startWatcher(t, []string{dir}, true, h)

	path := filepath.Join(dir, "f.txt")
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte(strings.Repeat("x", i+1)), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, func() bool {
		indexed, _ := h.snapshot()
		return len(indexed) > 0
	})
	time.Sleep(150 * time.Millisecond)
	indexed, _ := h.snapshot()
	if len(indexed) != 1 {
		t.Errorf("IndexFile called %d times, want 1 after rapid writes: %v", len(indexed), indexed)
	}
	if indexed[0] != path {
		t.Errorf("indexed %q, want %q", indexed[0], path)
	}
}

func TestWatcher_FilterIgnoresOtherExtensions(t *testing.T) {
	dir := t.TempDir()
	h := &recordingHandler{}
	startWatcher(t, []string{dir}, true, h)

	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("keep"), 0o600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		indexed, _ := h.snapshot()
		return len(indexed) > 0
	})
	time.Sleep(150 * time.Millisecond)
	indexed, _ := h.snapshot()
	for _, p := range indexed {
		if filepath.Ext(p) != ".txt" {
			t.Errorf("unexpected import of %q", p)
		}
	}
}

func TestWatcher_RemoveDeletes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.txt")
	if err := os.WriteFile(path, []byte("bye"), 0o600); err != nil {
		t.Fatal(err)
	}
	h := &recordingHandler{}
	startWatcher(t, []string{dir}, true, h)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		_, deleted := h.snapshot()
		return len(deleted) == 1 && deleted[0] == path
	})
}

func TestWatcher_NewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	h := &recordingHandler{}
	startWatcher(t, []string{dir}, true, h)

	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher time to register the new directory.
	time.Sleep(100 * time.Millisecond)
	nested := filepath.Join(sub, "nested.txt")
	if err := os.WriteFile(nested, []byte("inside"), 0o600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		indexed, _ := h.snapshot()
		for _, p := range indexed {
			if p == nested {
				return true
			}
		}
		return false
	})
}

func TestWatcher_CreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "missing", "import")
	startWatcher(t, []string{root}, false, &recordingHandler{})
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Fatalf("root not created: %v", err)
	}
}

func TestWatcher_StopsOnCancel(t *testing.T) {
	w, cancel := startWatcher(t, []string{t.TempDir()}, true, &recordingHandler{})
	cancel()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}

func TestWatcher_RequiresHandler(t *testing.T) {
	w := New([]string{t.TempDir()}, true, nil)
	if err := w.Start(context.Background()); err == nil {
		t.Error("expected error without a handler")
	}
}
