// Package search retrieves candidate content for a question using an
// escalating sequence of lexical strategies.
package search

import (
	"context"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/content"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/ranking"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// Strategy names the retrieval stage that produced the candidates.
type Strategy string

const (
	StrategyTerms  Strategy = "terms"
	StrategyScan   Strategy = "scan"
	StrategyNative Strategy = "native"
	StrategyNone   Strategy = "none"
)

// nativeBaseline is the starting score of candidates found by the native index.
const nativeBaseline = 1.0

// Store is the subset of the content store retrieval reads from.
type Store interface {
	FindByTerms(ctx context.Context, types, terms []string, limit int) ([]string, error)
	ListRecent(ctx context.Context, types []string, limit int) ([]*models.ContentItem, error)
	GetItem(ctx context.Context, id string) (*models.ContentItem, error)
}

// NativeIndex is a relevance-ranked free-text index.
type NativeIndex interface {
	Search(ctx context.Context, query string, types []string, limit int) ([]string, error)
}

// Retrieval is the unscored candidate set for one question.
type Retrieval struct {
	Documents []*models.ContentDocument
	Strategy  Strategy
	Terms     *models.QueryTerms
}

// Retriever runs the term, scan and native strategies in order, stopping at
// the first that yields any document.
type Retriever struct {
	store     Store
	native    NativeIndex
	extractor *content.Extractor
	analyzer  *ranking.QueryAnalyzer
	config    *config.SearchConfig
	scoring   *ranking.ScoringConfig
	logger    *zap.Logger
}

// NewRetriever creates a Retriever. native may be nil, which disables the
// last strategy.
func NewRetriever(
	store Store,
	native NativeIndex,
	extractor *content.Extractor,
	analyzer *ranking.QueryAnalyzer,
	cfg *config.SearchConfig,
	scoring *ranking.ScoringConfig,
	logger *zap.Logger,
) *Retriever {
	if extractor == nil {
		extractor = content.NewExtractor(store)
	}
	if analyzer == nil {
		analyzer = ranking.NewQueryAnalyzer()
	}
	if scoring == nil {
		scoring = ranking.DefaultScoringConfig()
	}
	return &Retriever{
		store:     store,
		native:    native,
		extractor: extractor,
		analyzer:  analyzer,
		config:    cfg,
		scoring:   scoring,
		logger:    utils.OrNop(logger),
	}
}

// Search returns candidates of the given types for query. Store failures are
// logged and treated as an empty stage, so Search never fails.
func (r *Retriever) Search(ctx context.Context, types []string, query string) *Retrieval {
	qt := r.analyzer.Analyze(query)
	out := &Retrieval{Strategy: StrategyNone, Terms: qt}
	if len(types) == 0 {
		metrics.RetrievalStrategyTotal.WithLabelValues(string(StrategyNone)).Inc()
		return out
	}

	stages := []struct {
		name Strategy
		run  func() []*models.ContentDocument
	}{
		{StrategyTerms, func() []*models.ContentDocument { return r.byTerms(ctx, types, qt) }},
		{StrategyScan, func() []*models.ContentDocument { return r.scan(ctx, types, qt) }},
		{StrategyNative, func() []*models.ContentDocument { return r.byNative(ctx, types, query) }},
	}
	for _, stage := range stages {
		if ctx.Err() != nil {
			break
		}
		if docs := stage.run(); len(docs) > 0 {
			out.Documents = docs
			out.Strategy = stage.name
			break
		}
	}

	metrics.RetrievalStrategyTotal.WithLabelValues(string(out.Strategy)).Inc()
	r.logger.Debug("retrieval finished",
		zap.String("strategy", string(out.Strategy)),
		zap.Int("candidates", len(out.Documents)))
	return out
}

func (r *Retriever) byTerms(ctx context.Context, types []string, qt *models.QueryTerms) []*models.ContentDocument {
	terms := ranking.AllTerms(qt)
	if len(terms) == 0 {
		return nil
	}
	ids, err := r.store.FindByTerms(ctx, types, terms, r.config.CandidateLimit)
	if err != nil {
		r.logger.Warn("term search failed", zap.Error(err))
		return nil
	}
	var docs []*models.ContentDocument
	for _, id := range ids {
		item, err := r.store.GetItem(ctx, id)
		if err != nil {
			r.logger.Debug("skipping candidate", zap.String("id", id), zap.Error(err))
			continue
		}
		doc := r.extractor.Document(item, 0)
		if ranking.ContainsAny(doc.Body, terms) {
			docs = append(docs, doc)
		}
	}
	return docs
}

func (r *Retriever) scan(ctx context.Context, types []string, qt *models.QueryTerms) []*models.ContentDocument {
	if len(qt.Terms) == 0 && len(qt.Phrases) == 0 {
		return nil
	}
	items, err := r.store.ListRecent(ctx, types, r.config.CandidateLimit)
	if err != nil {
		r.logger.Warn("recent content scan failed", zap.Error(err))
		return nil
	}
	var docs []*models.ContentDocument
	for _, item := range items {
		text := r.extractor.Extract(item)
		termHits := ranking.CountMatching(text, qt.Terms)
		phraseHits := ranking.CountMatching(text, qt.Phrases)
		if termHits+phraseHits == 0 {
			continue
		}
		baseline := float64(termHits)*r.scoring.ScanTermWeight + float64(phraseHits)*r.scoring.ScanPhraseWeight
		docs = append(docs, r.extractor.Document(item, baseline))
	}
	return docs
}

func (r *Retriever) byNative(ctx context.Context, types []string, query string) []*models.ContentDocument {
	if r.native == nil {
		return nil
	}
	ids, err := r.native.Search(ctx, query, types, r.config.NativeLimit)
	if err != nil {
		r.logger.Warn("native search failed", zap.Error(err))
		return nil
	}
	var docs []*models.ContentDocument
	for _, id := range ids {
		item, err := r.store.GetItem(ctx, id)
		if err != nil {
			r.logger.Debug("skipping native hit", zap.String("id", id), zap.Error(err))
			continue
		}
		docs = append(docs, r.extractor.Document(item, nativeBaseline))
	}
	return docs
}
