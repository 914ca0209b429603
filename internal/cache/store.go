// Package cache stores synthesized answers under a normalized query key.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// ErrMiss is returned by a Store when no entry exists for a key.
var ErrMiss = errors.New("cache miss")

// Store is a cache backend. Get must increment the hit count atomically with
// the read. Put must keep CreatedAt and HitCount of an existing entry.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Get(ctx context.Context, hash string) (*models.CacheEntry, error)
	Put(ctx context.Context, entry *models.CacheEntry) error
	Delete(ctx context.Context, hash string) (bool, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Clear(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (*models.CacheStats, error)
	Close() error
}

// NormalizeKey hashes the lowercased, trimmed, whitespace-collapsed query.
// Questions differing only in case or spacing share a key.
func NormalizeKey(query string) string {
	normalized := utils.CollapseWhitespace(strings.ToLower(query))
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
