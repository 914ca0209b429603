package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

const day = 24 * time.Hour

// Cache is the answer cache used by the ask pipeline. Lookups and writes
// never fail: store errors are logged and counted, and a Cache without a store
// misses every lookup.
type Cache struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
	// ready is set after the first successful EnsureStorage.
	ready atomic.Bool
}

// New wraps store. A nil store yields a cache that never hits.
func New(store Store, logger *zap.Logger) *Cache {
	return &Cache{
		store:  store,
		logger: utils.OrNop(logger),
		now:    time.Now,
	}
}

// Open builds the backend selected by cfg. A backend that cannot be opened is
// logged and replaced by the always-miss cache.
func Open(ctx context.Context, cfg *config.CacheConfig, logger *zap.Logger) *Cache {
	logger = utils.OrNop(logger)
	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case config.CacheBackendSQLite:
		store, err = NewSQLiteStore(cfg.DatabasePath)
	case config.CacheBackendRedis:
		store, err = NewRedisStore(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	case config.CacheBackendNone:
		return New(nil, logger)
	default:
		err = fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
	if err != nil {
		logger.Warn("answer cache disabled", zap.String("backend", cfg.Backend), zap.Error(err))
		return New(nil, logger)
	}
	return New(store, logger)
}

// Enabled reports whether a backend is attached.
func (c *Cache) Enabled() bool {
	return c.store != nil
}

func (c *Cache) record(op, result string) {
	metrics.CacheOperationsTotal.WithLabelValues(op, result).Inc()
}

// EnsureStorage makes sure the backend is ready. Once it has succeeded the
// backend is not consulted again; after a failure the next call retries.
func (c *Cache) EnsureStorage(ctx context.Context) error {
	if c.store == nil || c.ready.Load() {
		return nil
	}
	if err := c.store.EnsureSchema(ctx); err != nil {
		c.record("ensure", "error")
		return err
	}
	c.ready.Store(true)
	return nil
}

// Get returns the cached answer for query and counts the hit.
func (c *Cache) Get(ctx context.Context, query string) (*models.CacheEntry, bool) {
	if c.store == nil {
		c.record("get", "miss")
		return nil, false
	}
	entry, err := c.store.Get(ctx, NormalizeKey(query))
	switch {
	case err == nil:
		c.record("get", "hit")
		return entry, true
	case errors.Is(err, ErrMiss):
		c.record("get", "miss")
	default:
		c.record("get", "error")
		c.logger.Warn("cache lookup failed", zap.Error(err))
	}
	return nil, false
}

// Put stores response and its ordered source ids under query's key.
func (c *Cache) Put(ctx context.Context, query, response string, sourceIDs []string) {
	if c.store == nil {
		return
	}
	now := c.now().UTC()
	err := c.store.Put(ctx, &models.CacheEntry{
		QueryHash: NormalizeKey(query),
		QueryText: query,
		Response:  response,
		SourceIDs: sourceIDs,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		c.record("put", "error")
		c.logger.Warn("cache write failed", zap.Error(err))
		return
	}
	c.record("put", "ok")
}

// EvictOlderThan deletes entries created more than days days ago.
func (c *Cache) EvictOlderThan(ctx context.Context, days int) (int64, error) {
	if c.store == nil {
		return 0, nil
	}
	if days < 0 {
		return 0, fmt.Errorf("retention must not be negative, got %d days", days)
	}
	n, err := c.store.DeleteOlderThan(ctx, c.now().Add(-time.Duration(days)*day))
	if err != nil {
		c.record("evict", "error")
		return 0, err
	}
	c.record("evict", "ok")
	c.logger.Info("evicted cached answers", zap.Int("days", days), zap.Int64("deleted", n))
	return n, nil
}

// Forget deletes the cached answer for query, reporting whether there was one.
func (c *Cache) Forget(ctx context.Context, query string) (bool, error) {
	if c.store == nil {
		return false, nil
	}
	ok, err := c.store.Delete(ctx, NormalizeKey(query))
	if err != nil {
		c.record("delete", "error")
		return false, err
	}
	c.record("delete", "ok")
	return ok, nil
}

// Clear deletes every cached answer.
func (c *Cache) Clear(ctx context.Context) (int64, error) {
	if c.store == nil {
		return 0, nil
	}
	n, err := c.store.Clear(ctx)
	if err != nil {
		c.record("clear", "error")
		return 0, err
	}
	c.record("clear", "ok")
	return n, nil
}

// Stats summarizes the backend.
func (c *Cache) Stats(ctx context.Context) (*models.CacheStats, error) {
	if c.store == nil {
		return &models.CacheStats{Backend: config.CacheBackendNone}, nil
	}
	return c.store.Stats(ctx)
}

// Close closes the backend.
func (c *Cache) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}
