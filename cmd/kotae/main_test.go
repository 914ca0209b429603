package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/server"
	"go.uber.org/zap"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"what is your return policy", "-output", "json"},
			expected: []string{"-output", "json", "what is your return policy"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-output", "json", "what is your return policy"},
			expected: []string{"-output", "json", "what is your return policy"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"shipping"},
			expected: []string{"shipping"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"do", "you", "ship", "-server", ""},
			expected: []string{"-server", "", "do", "you", "ship"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"shipping"}, "shipping"},
		{"multiple words", []string{"return", "policy"}, "return policy"},
		{"single quoted phrase", []string{"return policy"}, "return policy"},
		{"question mark kept", []string{"do", "you", "ship?"}, "do you ship?"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "./test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// cwd may resolve through a symlink (macOS /private/var), so compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s (canon %s), want %s (canon %s)", resolved, resolvedCanon, configPath, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "./test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath != filepath.Join(dir, "test.db") {
		t.Errorf("database path = %s, want it next to the config file", cfg.Storage.DatabasePath)
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "config.yaml")
	if err := writeDefaultConfig(path, false); err != nil {
		t.Fatal(err)
	}
	cfg, _, err := loadConfig(path)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Cache.Backend != config.CacheBackendSQLite {
		t.Errorf("unexpected defaults: port %d backend %q", cfg.Server.Port, cfg.Cache.Backend)
	}

	if err := writeDefaultConfig(path, false); err == nil {
		t.Error("expected an error when the file already exists")
	}
	if err := writeDefaultConfig(path, true); err != nil {
		t.Errorf("force overwrite failed: %v", err)
	}
}

func TestCheckResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.WriteHeader(http.StatusOK)
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"query too short"}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down\n"))
		}
	}))
	defer srv.Close()

	get := func(path string) *http.Response {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	if err := checkResponse(get("/ok")); err != nil {
		t.Errorf("2xx should pass, got %v", err)
	}

	err := checkResponse(get("/json"))
	apiErr, ok := err.(*apiError)
	if !ok {
		t.Fatalf("expected *apiError, got %T", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Message != "query too short" {
		t.Errorf("unexpected error: %+v", apiErr)
	}

	err = checkResponse(get("/other"))
	apiErr, ok = err.(*apiError)
	if !ok {
		t.Fatalf("expected *apiError, got %T", err)
	}
	if apiErr.Message != "upstream down" {
		t.Errorf("message = %q, want raw body", apiErr.Message)
	}
}

func TestWriteStatusText(t *testing.T) {
	docs := uint64(4)
	disk := int64(2048)
	st := &server.Status{
		Items:          5,
		ItemsByType:    map[string]int64{"post": 2, "page": 3},
		IndexDocuments: &docs,
		Cache:          &models.CacheStats{Backend: "sqlite", Entries: 7, TotalHits: 12},
		DiskUsageBytes: &disk,
		PermittedTypes: []string{"post", "page"},
		Synthesis:      "openai",
	}
	var buf bytes.Buffer
	writeStatusText(&buf, st)
	out := buf.String()

	for _, want := range []string{
		"items:              5",
		"index_documents:    4",
		"sqlite, 7 entries, 12 hits",
		"permitted_types:    post, page",
		"premium:            false",
		"synthesis:          openai",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "page") > strings.Index(out, "  post") {
		t.Errorf("types should be listed in sorted order:\n%s", out)
	}
}

func testApp(t *testing.T, requireSynthesis *bool, configure ...func(*config.Config)) *app {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DatabasePath:   filepath.Join(dir, "content.db"),
			BleveIndexPath: filepath.Join(dir, "bleve"),
		},
		Cache:     config.CacheConfig{DatabasePath: filepath.Join(dir, "cache.db")},
		Synthesis: config.SynthesisConfig{Provider: "openai"},
	}
	cfg.Search.RequireSynthesis = requireSynthesis
	for _, fn := range configure {
		fn(cfg)
	}
	config.ApplyDefaults(cfg)

	logger := zap.NewNop()
	comps, err := initializeComponents(context.Background(), cfg, logger, false)
	if err != nil {
		t.Fatal(err)
	}
	a := &app{cfg: cfg, logger: logger, comps: comps}
	t.Cleanup(a.close)
	return a
}

func TestDoctor(t *testing.T) {
	optional := false
	a := testApp(t, &optional)

	var buf bytes.Buffer
	if !doctor(context.Background(), &buf, a) {
		t.Fatalf("doctor reported a failure:\n%s", buf.String())
	}
	out := buf.String()
	for _, want := range []string{"[ OK ] content", "[ OK ] index", "[ OK ] cache", "[WARN] synthesis", "[ OK ] types"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	// The probe entry is removed again.
	stats, err := a.comps.Cache.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 0 {
		t.Errorf("cache entries after doctor = %d, want 0", stats.Entries)
	}
}

func TestDoctor_requiredSynthesisMissing(t *testing.T) {
	a := testApp(t, nil)

	var buf bytes.Buffer
	if doctor(context.Background(), &buf, a) {
		t.Fatalf("doctor should fail without a synthesizer:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "[FAIL] synthesis") {
		t.Errorf("expected a synthesis failure line:\n%s", buf.String())
	}
}

func TestDoctor_synthesisKeyCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/v1/models" || r.Header.Get("Authorization") != "Bearer sk-good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
	}))
	defer srv.Close()

	withKey := func(key string) func(*config.Config) {
		return func(cfg *config.Config) {
			cfg.Synthesis.APIKey = key
			cfg.Synthesis.BaseURL = srv.URL + "/v1"
		}
	}

	var buf bytes.Buffer
	if !doctor(context.Background(), &buf, testApp(t, nil, withKey("sk-good"))) {
		t.Fatalf("doctor failed with an accepted key:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "[ OK ] synthesis  openai (API key accepted)") {
		t.Errorf("expected an accepted key line:\n%s", buf.String())
	}

	buf.Reset()
	if doctor(context.Background(), &buf, testApp(t, nil, withKey("sk-bad"))) {
		t.Fatalf("doctor should fail with a rejected key:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "[FAIL] synthesis") || !strings.Contains(buf.String(), "rejected the API key") {
		t.Errorf("expected a rejected key line:\n%s", buf.String())
	}
}
