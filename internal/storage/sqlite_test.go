package storage

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "content.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seed(t *testing.T, store *SQLiteStorage, items ...*models.ContentItem) {
	t.Helper()
	for _, item := range items {
		if err := store.UpsertItem(context.Background(), item); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSQLiteStorage_CRUD(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	item := &models.ContentItem{
		ID:    "1",
		Type:  "page",
		Title: "Return Policy",
		Body:  "<p>You may return items within 30 days</p>",
		URL:   "https://example.com/returns",
		Blocks: []models.Block{
			{Name: "core/paragraph", InnerHTML: "<p>Block</p>", Attrs: map[string]interface{}{"text": "x"}},
		},
		Fields:   []models.Field{{Label: "Days", Value: "30"}},
		Metadata: map[string]string{"source_path": "/tmp/returns.md"},
	}
	if err := store.UpsertItem(ctx, item); err != nil {
		t.Fatal(err)
	}
	if item.Status != models.StatusPublish {
		t.Errorf("status should default to publish, got %q", item.Status)
	}
	if item.CreatedAt.IsZero() || item.PublishedAt.IsZero() {
		t.Error("timestamps should be set")
	}

	got, err := store.GetItem(ctx, "1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Return Policy" || got.Body != item.Body || got.URL != item.URL {
		t.Errorf("got %+v", got)
	}
	if len(got.Blocks) != 1 || got.Blocks[0].InnerHTML != "<p>Block</p>" {
		t.Errorf("blocks not round-tripped: %+v", got.Blocks)
	}
	if len(got.Fields) != 1 || got.Fields[0].Value != "30" {
		t.Errorf("fields not round-tripped: %+v", got.Fields)
	}
	if got.Metadata["source_path"] != "/tmp/returns.md" {
		t.Errorf("metadata not round-tripped: %+v", got.Metadata)
	}

	item.Title = "Returns"
	if err := store.UpsertItem(ctx, item); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetItem(ctx, "1")
	if got.Title != "Returns" {
		t.Errorf("expected updated title, got %s", got.Title)
	}
	if n, _ := store.CountItems(ctx); n != 1 {
		t.Errorf("upsert should not duplicate, count = %d", n)
	}

	if err := store.DeleteItem(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetItem(ctx, "1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSQLiteStorage_UpsertValidation(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	if err := store.UpsertItem(ctx, &models.ContentItem{Type: "post"}); err == nil {
		t.Error("expected error for missing id")
	}
	if err := store.UpsertItem(ctx, &models.ContentItem{ID: "x"}); err == nil {
		t.Error("expected error for missing type")
	}
}

func TestSQLiteStorage_FindByTerms(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	seed(t, store,
		&models.ContentItem{ID: "1", Type: "page", Title: "Return Policy", Body: "You may return items within 30 days"},
		&models.ContentItem{ID: "2", Type: "page", Title: "Shipping Times", Body: "Delivery takes 3-5 days"},
		&models.ContentItem{ID: "3", Type: "product", Title: "Return label", Body: "Printable"},
		&models.ContentItem{ID: "4", Type: "page", Status: "draft", Title: "Return draft", Body: ""},
		&models.ContentItem{ID: "5", Type: "post", Title: "100% cotton", Body: "soft_fabric"},
	)

	ids, err := store.FindByTerms(ctx, []string{"page", "post"}, []string{"your", "return", "policy"}, 50)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []string{"1"}) {
		t.Errorf("FindByTerms = %v, want [1]", ids)
	}

	ids, _ = store.FindByTerms(ctx, []string{"page"}, []string{"DELIVERY"}, 50)
	if !reflect.DeepEqual(ids, []string{"2"}) {
		t.Errorf("LIKE should be case-insensitive, got %v", ids)
	}

	// Wildcards in terms are literal.
	ids, _ = store.FindByTerms(ctx, []string{"post"}, []string{"0%"}, 50)
	if !reflect.DeepEqual(ids, []string{"5"}) {
		t.Errorf("escaped %% term = %v, want [5]", ids)
	}
	ids, _ = store.FindByTerms(ctx, []string{"post", "page"}, []string{"t_f"}, 50)
	if len(ids) != 1 || ids[0] != "5" {
		t.Errorf("escaped _ term = %v, want [5]", ids)
	}

	if ids, _ := store.FindByTerms(ctx, nil, []string{"return"}, 50); ids != nil {
		t.Errorf("no types should yield nothing, got %v", ids)
	}
	if ids, _ := store.FindByTerms(ctx, []string{"page"}, nil, 50); ids != nil {
		t.Errorf("no terms should yield nothing, got %v", ids)
	}
}

func TestSQLiteStorage_FindByTermsLimit(t *testing.T) {
	store := newTestStorage(t)
	for i := 0; i < 60; i++ {
		seed(t, store, &models.ContentItem{ID: string(rune('A'+i%26)) + string(rune('a'+i/26)), Type: "post", Title: "faq"})
	}
	ids, err := store.FindByTerms(context.Background(), []string{"post"}, []string{"faq"}, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 50 {
		t.Errorf("len = %d, want 50", len(ids))
	}
}

func TestSQLiteStorage_ListRecent(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seed(t, store,
		&models.ContentItem{ID: "old", Type: "post", Title: "Old", PublishedAt: base},
		&models.ContentItem{ID: "new", Type: "post", Title: "New", PublishedAt: base.Add(48 * time.Hour)},
		&models.ContentItem{ID: "mid", Type: "page", Title: "Mid", PublishedAt: base.Add(24 * time.Hour)},
		&models.ContentItem{ID: "draft", Type: "post", Status: "draft", Title: "Draft", PublishedAt: base.Add(72 * time.Hour)},
		&models.ContentItem{ID: "other", Type: "product", Title: "Other", PublishedAt: base.Add(96 * time.Hour)},
	)

	items, err := store.ListRecent(ctx, []string{"post", "page"}, 50)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	if !reflect.DeepEqual(ids, []string{"new", "mid", "old"}) {
		t.Errorf("ListRecent = %v", ids)
	}

	items, _ = store.ListRecent(ctx, []string{"post", "page"}, 2)
	if len(items) != 2 {
		t.Errorf("limit not applied: %d", len(items))
	}
}

func TestSQLiteStorage_Counts(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	seed(t, store,
		&models.ContentItem{ID: "1", Type: "post"},
		&models.ContentItem{ID: "2", Type: "post"},
		&models.ContentItem{ID: "3", Type: "page"},
	)
	counts, err := store.CountByType(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts["post"] != 2 || counts["page"] != 1 {
		t.Errorf("CountByType = %v", counts)
	}
	items, err := store.ListItems(ctx, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].ID != "2" {
		t.Errorf("ListItems offset 1 = %v", items)
	}
}

func TestSQLiteStorage_InMemory(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	seed(t, store, &models.ContentItem{ID: "1", Type: "post", Title: "x"})
	if n, _ := store.CountItems(context.Background()); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}
