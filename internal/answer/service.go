// Package answer runs the ask pipeline: validate, consult the cache, retrieve,
// rank, synthesize or fall back, then cache and respond.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/content"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/ranking"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/pkg/utils"
)

const (
	// NoResultsMessage is returned when retrieval finds nothing.
	NoResultsMessage = "I couldn't find specific information about that in our content.\n\n" +
		"I apologize for the inconvenience. Please feel free to contact us for more information."
	// NotConfiguredMessage is returned when no content type is permitted or no
	// synthesizer is available while one is required.
	NotConfiguredMessage = "kotae is not configured properly. Please check your API key settings."
)

// Retriever finds candidate documents for a question.
type Retriever interface {
	Search(ctx context.Context, types []string, query string) *search.Retrieval
}

// ItemGetter resolves cached source ids to content items.
type ItemGetter interface {
	GetItem(ctx context.Context, id string) (*models.ContentItem, error)
}

// AnswerCache stores answers by normalized query.
type AnswerCache interface {
	EnsureStorage(ctx context.Context) error
	Get(ctx context.Context, query string) (*models.CacheEntry, bool)
	Put(ctx context.Context, query, response string, sourceIDs []string)
}

// Service answers questions.
type Service struct {
	retriever   Retriever
	items       ItemGetter
	cache       AnswerCache
	synthesizer llm.Synthesizer
	scorer      *ranking.Scorer
	search      *config.SearchConfig
	synthesis   *config.SynthesisConfig
	logger      *zap.Logger
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = utils.OrNop(l) }
}

// WithScorer replaces the default scorer.
func WithScorer(sc *ranking.Scorer) Option {
	return func(s *Service) { s.scorer = sc }
}

// NewService creates a Service. synthesizer may be nil when no provider is
// configured; cfg supplies the search and synthesis sections.
func NewService(
	retriever Retriever,
	items ItemGetter,
	cache AnswerCache,
	synthesizer llm.Synthesizer,
	cfg *config.Config,
	opts ...Option,
) *Service {
	s := &Service{
		retriever:   retriever,
		items:       items,
		cache:       cache,
		synthesizer: synthesizer,
		search:      &cfg.Search,
		synthesis:   &cfg.Synthesis,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.scorer == nil {
		s.scorer = ranking.NewScorer(nil, &cfg.Ranking)
	}
	return s
}

// Ask answers rawQuery. The only error returned is a *models.ValidationError;
// every other failure degrades to a cached-miss, no-results or fallback answer.
func (s *Service) Ask(ctx context.Context, rawQuery string) (*models.AskResponse, error) {
	start := s.now()
	req := models.AskRequest{Query: rawQuery}
	if err := req.Validate(s.search.MinQueryLength, s.search.MaxQueryLength); err != nil {
		metrics.AskTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	query := req.Query

	respond := func(resp *models.AskResponse) (*models.AskResponse, error) {
		resp.Query = query
		if resp.Sources == nil {
			resp.Sources = []models.Source{}
		}
		resp.QueryTime = s.now().Sub(start).Milliseconds()
		metrics.AskTotal.WithLabelValues(string(resp.Outcome)).Inc()
		s.logger.Info("question answered",
			zap.String("outcome", string(resp.Outcome)),
			zap.Int("sources", len(resp.Sources)),
			zap.Int64("took_ms", resp.QueryTime))
		return resp, nil
	}

	types := s.search.PermittedTypes()
	if len(types) == 0 || (s.synthesizer == nil && s.search.RequireSynthesisOrDefault()) {
		return respond(&models.AskResponse{Answer: NotConfiguredMessage, Outcome: models.OutcomeNotConfigured})
	}

	if err := s.cache.EnsureStorage(ctx); err != nil {
		s.logger.Warn("answer cache unavailable", zap.Error(err))
	}
	if entry, ok := s.cache.Get(ctx, query); ok {
		return respond(&models.AskResponse{
			Answer:  entry.Response,
			Sources: s.resolveSources(ctx, entry.SourceIDs),
			Cached:  true,
			Outcome: models.OutcomeCacheHit,
		})
	}

	retrieval := s.retriever.Search(ctx, types, query)
	if len(retrieval.Documents) == 0 {
		return respond(&models.AskResponse{Answer: NoResultsMessage, Outcome: models.OutcomeNoResults})
	}

	docs := s.scorer.ScoreAndSort(retrieval.Documents, query)
	if limit := s.search.MaxResults; limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}

	answer, outcome := s.compose(ctx, query, docs)

	sources := make([]models.Source, len(docs))
	ids := make([]string, len(docs))
	for i, d := range docs {
		sources[i] = models.Source{ID: d.ID, Title: d.Title, URL: d.URL, Type: d.Type}
		ids[i] = d.ID
	}
	s.cache.Put(ctx, query, answer, ids)

	return respond(&models.AskResponse{Answer: answer, Sources: sources, Outcome: outcome})
}

// compose asks the synthesizer for an answer and falls back to the templated
// summary when there is none or it fails.
func (s *Service) compose(ctx context.Context, query string, docs []*models.ContentDocument) (string, models.Outcome) {
	if s.synthesizer == nil {
		return Fallback(query, docs, s.search.FallbackSources, s.search.FallbackExcerptWords), models.OutcomeFallback
	}

	contextDocs := make([]llm.ContextDocument, len(docs))
	for i, d := range docs {
		contextDocs[i] = llm.ContextDocument{
			Title: d.Title,
			Body:  content.DecodeEntities(utils.TrimWords(d.Body, s.search.ContextWords)),
		}
	}

	callCtx := ctx
	if timeout := s.synthesis.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	text, err := s.synthesizer.Synthesize(callCtx, &llm.SynthesisRequest{
		Query:       query,
		Documents:   llm.FitContext(contextDocs, s.search.ContextBudget),
		MaxTokens:   s.synthesis.MaxTokens,
		Temperature: s.synthesis.Temperature,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("synthesis timed out, using fallback", zap.Duration("timeout", s.synthesis.Timeout()))
		} else {
			s.logger.Warn("synthesis failed, using fallback", zap.Error(err))
		}
		return Fallback(query, docs, s.search.FallbackSources, s.search.FallbackExcerptWords), models.OutcomeFallback
	}
	return text, models.OutcomeSynthesized
}

func (s *Service) resolveSources(ctx context.Context, ids []string) []models.Source {
	sources := make([]models.Source, 0, len(ids))
	for _, id := range ids {
		item, err := s.items.GetItem(ctx, id)
		if err != nil {
			s.logger.Debug("cached source no longer available", zap.String("id", id), zap.Error(err))
			continue
		}
		sources = append(sources, models.Source{
			ID:    item.ID,
			Title: utils.CollapseWhitespace(content.DecodeEntities(item.Title)),
			URL:   content.DecodeURL(item.URL),
			Type:  item.Type,
		})
	}
	return sources
}

// Fallback renders the templated answer listing the top sources. The query is
// inserted verbatim; callers rendering HTML must escape the answer.
func Fallback(query string, docs []*models.ContentDocument, maxSources, excerptWords int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I found %d relevant result(s) for your query: \"%s\".", len(docs), query)
	b.WriteString("\n\nHere are the most relevant sources:")
	for i, d := range docs {
		if i >= maxSources {
			break
		}
		b.WriteString("\n\n• ")
		b.WriteString(d.Title)
		if d.Excerpt != "" {
			b.WriteString("\n  ")
			b.WriteString(content.DecodeEntities(utils.TrimWords(d.Excerpt, excerptWords)))
		}
	}
	return b.String()
}
