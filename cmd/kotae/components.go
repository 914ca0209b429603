package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/kotae/internal/answer"
	"github.com/hyperjump/kotae/internal/cache"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/content"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/ranking"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/storage"
	"go.uber.org/zap"
)

// Components holds initialized services.
type Components struct {
	Storage     storage.Storage
	Index       *keyword.BleveIndex
	Cache       *cache.Cache
	Synthesizer llm.Synthesizer
	Indexer     *indexer.Indexer
	Answers     *answer.Service
}

// Close releases the store, the index and the cache backend.
func (c *Components) Close() {
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	comps := &Components{Storage: store}

	index, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		comps.Close()
		return nil, fmt.Errorf("failed to initialize search index: %w", err)
	}
	comps.Index = index

	comps.Cache = cache.Open(ctx, &cfg.Cache, logger)
	if err := comps.Cache.EnsureStorage(ctx); err != nil {
		logger.Warn("answer cache storage not ready", zap.Error(err))
	}

	synth, err := llm.NewSynthesizer(ctx, &cfg.Synthesis)
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		logger.Warn("answer synthesis not configured", zap.String("provider", cfg.Synthesis.Provider))
	case err != nil:
		comps.Close()
		return nil, fmt.Errorf("failed to initialize synthesis: %w", err)
	default:
		comps.Synthesizer = llm.NewInstrumented(synth, logger)
		logger.Info("answer synthesis ready", zap.String("provider", synth.Name()))
	}

	idxOpts := []indexer.Option{}
	if debug {
		idxOpts = append(idxOpts, indexer.WithLogger(logger))
	}
	comps.Indexer = indexer.NewIndexer(store, index, &cfg.Import, idxOpts...)

	retriever := search.NewRetriever(
		store,
		index,
		content.NewExtractor(store),
		ranking.NewQueryAnalyzer(),
		&cfg.Search,
		&cfg.Ranking,
		logger,
	)
	comps.Answers = answer.NewService(retriever, store, comps.Cache, comps.Synthesizer, cfg, answer.WithLogger(logger))
	return comps, nil
}
