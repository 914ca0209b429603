package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/cache"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"go.uber.org/zap"
)

type fakeAsker struct {
	got string
}

func (f *fakeAsker) Ask(_ context.Context, query string) (*models.AskResponse, error) {
	req := models.AskRequest{Query: query}
	if err := req.Validate(3, 100); err != nil {
		return nil, err
	}
	f.got = req.Query
	return &models.AskResponse{
		Query:   req.Query,
		Answer:  "We ship worldwide.",
		Sources: []models.Source{{ID: "p1", Title: "Shipping"}},
		Outcome: models.OutcomeSynthesized,
	}, nil
}

type testEnv struct {
	handler http.Handler
	store   storage.Storage
	cache   *cache.Cache
	asker   *fakeAsker
}

func newTestEnv(t *testing.T, adminToken string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	index, err := keyword.NewMemIndex()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = index.Close() })
	cacheStore, err := cache.NewSQLiteStore(filepath.Join(dir, "cache.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	answers := cache.New(cacheStore, zap.NewNop())
	t.Cleanup(func() { _ = answers.Close() })
	if err := answers.EnsureStorage(context.Background()); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Server.AdminToken = adminToken
	cfg.Storage.DatabasePath = filepath.Join(dir, "db.sqlite")
	cfg.Cache.DatabasePath = filepath.Join(dir, "cache.sqlite")

	asker := &fakeAsker{}
	srv := NewServer(Deps{
		Answers: asker,
		Indexer: indexer.NewIndexer(store, index, &cfg.Import),
		Store:   store,
		Index:   index,
		Cache:   answers,
		Config:  cfg,
		Logger:  zap.NewNop(),
	})
	return &testEnv{handler: srv.Handler(), store: store, cache: answers, asker: asker}
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHandleAsk(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/api/v1/ask", `{"query":"  Do you ship abroad?  "}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var resp models.AskResponse
	decodeBody(t, w, &resp)
	if resp.Answer != "We ship worldwide." || len(resp.Sources) != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if env.asker.got != "Do you ship abroad?" {
		t.Errorf("asker got %q", env.asker.got)
	}
}

func TestHandleAsk_Validation(t *testing.T) {
	env := newTestEnv(t, "")

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"empty", `{"query":"   "}`, "Please enter a search query."},
		{"too short", `{"query":"hi"}`, "Query must be at least 3 characters long."},
		{"bad json", `{"query":`, "invalid request body"},
		{"oversized body", `{"query":"` + strings.Repeat("a", maxAskBody) + `"}`, "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/ask", tt.body, "")
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d, want 400", w.Code)
			}
			var out map[string]string
			decodeBody(t, w, &out)
			if out["error"] != tt.wantMsg {
				t.Errorf("error: got %q, want %q", out["error"], tt.wantMsg)
			}
		})
	}
}

func TestContentRoutes(t *testing.T) {
	env := newTestEnv(t, "secret")

	body := `{"id":"page-1","type":"page","title":"Returns","body":"<p>30 days</p>"}`
	if w := env.do(t, http.MethodPost, "/api/v1/content", body, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("without token: got %d, want 401", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/v1/content", body, "wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: got %d, want 401", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/v1/content", body, "secret"); w.Code != http.StatusCreated {
		t.Fatalf("create: got %d, body: %s", w.Code, w.Body.String())
	}

	w := env.do(t, http.MethodGet, "/api/v1/content/page-1", "", "secret")
	if w.Code != http.StatusOK {
		t.Fatalf("get: got %d", w.Code)
	}
	var item models.ContentItem
	decodeBody(t, w, &item)
	if item.Title != "Returns" || item.Status != models.StatusPublish {
		t.Errorf("unexpected item: %+v", item)
	}

	if w := env.do(t, http.MethodDelete, "/api/v1/content/page-1", "", "secret"); w.Code != http.StatusOK {
		t.Fatalf("delete: got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/content/page-1", "", "secret"); w.Code != http.StatusNotFound {
		t.Errorf("get after delete: got %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodDelete, "/api/v1/content/page-1", "", "secret"); w.Code != http.StatusNotFound {
		t.Errorf("delete missing: got %d, want 404", w.Code)
	}
}

func TestAdminRoutesOpenWithoutToken(t *testing.T) {
	env := newTestEnv(t, "")
	if w := env.do(t, http.MethodGet, "/api/v1/cache/stats", "", ""); w.Code != http.StatusOK {
		t.Errorf("cache stats without configured token: got %d, want 200", w.Code)
	}
}

func TestCacheRoutes(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	env.cache.Put(ctx, "what is the return policy", "30 days", []string{"p1"})
	env.cache.Put(ctx, "do you ship abroad", "yes", []string{"p2"})

	w := env.do(t, http.MethodGet, "/api/v1/cache/stats", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("stats: got %d", w.Code)
	}
	var stats models.CacheStats
	decodeBody(t, w, &stats)
	if stats.Entries != 2 || stats.Backend != config.CacheBackendSQLite {
		t.Errorf("unexpected stats: %+v", stats)
	}

	w = env.do(t, http.MethodPost, "/api/v1/cache/evict", `{"days":-1}`, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative days: got %d, want 400", w.Code)
	}
	w = env.do(t, http.MethodPost, "/api/v1/cache/evict", `{"days":0}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("evict: got %d, body: %s", w.Code, w.Body.String())
	}

	env.cache.Put(ctx, "opening hours", "nine to five", nil)
	w = env.do(t, http.MethodDelete, "/api/v1/cache", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("clear: got %d", w.Code)
	}
	stats2, err := env.cache.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats2.Entries != 0 {
		t.Errorf("entries after clear: %d", stats2.Entries)
	}
}

func TestHandleStatus(t *testing.T) {
	env := newTestEnv(t, "")
	body := `{"id":"faq-1","type":"faq","title":"Hours","body":"<p>nine</p>"}`
	if w := env.do(t, http.MethodPost, "/api/v1/content", body, ""); w.Code != http.StatusCreated {
		t.Fatalf("create: got %d", w.Code)
	}

	w := env.do(t, http.MethodGet, "/api/v1/status", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Items          int64            `json:"items"`
		ItemsByType    map[string]int64 `json:"items_by_type"`
		IndexDocuments uint64           `json:"index_documents"`
		DiskUsage      int64            `json:"disk_usage_bytes"`
	}
	decodeBody(t, w, &out)
	if out.Items != 1 || out.ItemsByType["faq"] != 1 {
		t.Errorf("unexpected counts: %+v", out)
	}
	if out.IndexDocuments != 1 {
		t.Errorf("index_documents: got %d, want 1", out.IndexDocuments)
	}
	if out.DiskUsage <= 0 {
		t.Errorf("disk_usage_bytes: got %d", out.DiskUsage)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, "")
	if w := env.do(t, http.MethodGet, "/health", "", ""); w.Code != http.StatusOK {
		t.Errorf("health: got %d", w.Code)
	}
	w := env.do(t, http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "kotae_http_requests_total") {
		t.Error("metrics output missing kotae_http_requests_total")
	}
}
