package search

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
)

// fakeStore records calls and serves items from a map.
type fakeStore struct {
	items    map[string]*models.ContentItem
	termIDs  []string
	recent   []*models.ContentItem
	termErr  error
	scanErr  error
	calls    []string
	gotTerms []string
}

func (f *fakeStore) FindByTerms(_ context.Context, _, terms []string, _ int) ([]string, error) {
	f.calls = append(f.calls, "terms")
	f.gotTerms = terms
	return f.termIDs, f.termErr
}

func (f *fakeStore) ListRecent(_ context.Context, _ []string, _ int) ([]*models.ContentItem, error) {
	f.calls = append(f.calls, "scan")
	return f.recent, f.scanErr
}

func (f *fakeStore) GetItem(_ context.Context, id string) (*models.ContentItem, error) {
	if item, ok := f.items[id]; ok {
		return item, nil
	}
	return nil, storage.ErrNotFound
}

type fakeNative struct {
	ids   []string
	err   error
	calls int
}

func (f *fakeNative) Search(_ context.Context, _ string, _ []string, _ int) ([]string, error) {
	f.calls++
	return f.ids, f.err
}

func testConfig() *config.SearchConfig {
	return &config.SearchConfig{CandidateLimit: 50, NativeLimit: 10}
}

var (
	returnsPage = &models.ContentItem{ID: "returns", Type: "page", Title: "Return Policy",
		Body: "<p>Items may be returned within 30 days.</p>"}
	shippingPage = &models.ContentItem{ID: "shipping", Type: "page", Title: "Shipping",
		Body: "<p>We ship worldwide.</p>"}
)

func TestRetriever_TermStrategyWins(t *testing.T) {
	store := &fakeStore{
		items:   map[string]*models.ContentItem{"returns": returnsPage, "shipping": shippingPage},
		termIDs: []string{"returns"},
	}
	native := &fakeNative{}
	r := NewRetriever(store, native, nil, nil, testConfig(), nil, nil)

	got := r.Search(context.Background(), []string{"page"}, "Return policy?")
	if got.Strategy != StrategyTerms {
		t.Fatalf("strategy = %s, want terms", got.Strategy)
	}
	if len(got.Documents) != 1 || got.Documents[0].ID != "returns" || got.Documents[0].Score != 0 {
		t.Errorf("documents = %+v", got.Documents)
	}
	if !reflect.DeepEqual(store.calls, []string{"terms"}) || native.calls != 0 {
		t.Errorf("later strategies ran: calls=%v native=%d", store.calls, native.calls)
	}
	want := []string{"return", "policy", "return policy"}
	if !reflect.DeepEqual(store.gotTerms, want) {
		t.Errorf("terms = %v, want %v", store.gotTerms, want)
	}
}

func TestRetriever_TermCandidatesMustContainTerm(t *testing.T) {
	store := &fakeStore{
		items:   map[string]*models.ContentItem{"shipping": shippingPage},
		termIDs: []string{"shipping", "missing"},
		recent:  []*models.ContentItem{returnsPage},
	}
	r := NewRetriever(store, nil, nil, nil, testConfig(), nil, nil)

	got := r.Search(context.Background(), []string{"page"}, "return policy")
	if got.Strategy != StrategyScan {
		t.Fatalf("strategy = %s, want scan", got.Strategy)
	}
	if !reflect.DeepEqual(store.calls, []string{"terms", "scan"}) {
		t.Errorf("calls = %v", store.calls)
	}
	// two terms plus one phrase: 2*2 + 1*5
	if len(got.Documents) != 1 || got.Documents[0].Score != 9 {
		t.Errorf("documents = %+v", got.Documents)
	}
}

func TestRetriever_ScanUsesBlockContent(t *testing.T) {
	item := &models.ContentItem{ID: "faq", Type: "page", Title: "FAQ",
		Blocks: []models.Block{{Name: "core/paragraph", InnerHTML: "<p>Our warranty lasts two years.</p>"}}}
	store := &fakeStore{recent: []*models.ContentItem{item, shippingPage}}
	r := NewRetriever(store, nil, nil, nil, testConfig(), nil, nil)

	got := r.Search(context.Background(), []string{"page"}, "warranty")
	if got.Strategy != StrategyScan || len(got.Documents) != 1 || got.Documents[0].ID != "faq" {
		t.Fatalf("got %s %+v", got.Strategy, got.Documents)
	}
	if got.Documents[0].Score != 2 {
		t.Errorf("baseline = %v, want 2", got.Documents[0].Score)
	}
}

func TestRetriever_NativeFallback(t *testing.T) {
	store := &fakeStore{items: map[string]*models.ContentItem{"shipping": shippingPage}}
	native := &fakeNative{ids: []string{"shipping", "gone"}}
	r := NewRetriever(store, native, nil, nil, testConfig(), nil, nil)

	got := r.Search(context.Background(), []string{"page"}, "delivery abroad")
	if got.Strategy != StrategyNative {
		t.Fatalf("strategy = %s, want native", got.Strategy)
	}
	if len(got.Documents) != 1 || got.Documents[0].Score != 1 {
		t.Errorf("documents = %+v", got.Documents)
	}
}

func TestRetriever_ErrorsTreatedAsEmpty(t *testing.T) {
	store := &fakeStore{termErr: errors.New("locked"), scanErr: errors.New("locked")}
	native := &fakeNative{err: errors.New("closed")}
	r := NewRetriever(store, native, nil, nil, testConfig(), nil, nil)

	got := r.Search(context.Background(), []string{"page"}, "return policy")
	if got.Strategy != StrategyNone || len(got.Documents) != 0 {
		t.Errorf("got %s %+v, want none", got.Strategy, got.Documents)
	}
	if native.calls != 1 {
		t.Errorf("native calls = %d, want 1", native.calls)
	}
}

func TestRetriever_NoTypes(t *testing.T) {
	store := &fakeStore{}
	r := NewRetriever(store, &fakeNative{}, nil, nil, testConfig(), nil, nil)

	got := r.Search(context.Background(), nil, "return policy")
	if got.Strategy != StrategyNone || len(store.calls) != 0 {
		t.Errorf("got %s calls=%v", got.Strategy, store.calls)
	}
}

func TestRetriever_StopWordsOnlySkipsLexicalStages(t *testing.T) {
	store := &fakeStore{recent: []*models.ContentItem{returnsPage}}
	native := &fakeNative{}
	r := NewRetriever(store, native, nil, nil, testConfig(), nil, nil)

	got := r.Search(context.Background(), []string{"page"}, "is it")
	if got.Strategy != StrategyNone {
		t.Errorf("strategy = %s, want none", got.Strategy)
	}
	if len(store.calls) != 0 || native.calls != 1 {
		t.Errorf("calls=%v native=%d", store.calls, native.calls)
	}
}
