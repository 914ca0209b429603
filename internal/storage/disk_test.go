package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()

	db := filepath.Join(dir, "content.db")
	if err := os.WriteFile(db, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(db+"-wal", []byte("wal"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := DiskUsageBytes(db)
	if err != nil {
		t.Fatal(err)
	}
	if got != 8 {
		t.Errorf("database with wal: got %d bytes, want 8", got)
	}

	index := filepath.Join(dir, "bleve")
	if err := os.MkdirAll(filepath.Join(index, "store"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(index, "meta"), []byte("ab"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(index, "store", "seg"), []byte("c"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err = DiskUsageBytes(index)
	if err != nil {
		t.Fatal(err)
	}
	if got != 3 {
		t.Errorf("index directory: got %d bytes, want 3", got)
	}

	got, err = DiskUsageBytes(db, index, filepath.Join(dir, "missing"), "", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	if got != 11 {
		t.Errorf("combined: got %d bytes, want 11", got)
	}
}
