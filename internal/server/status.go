package server

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
)

// Status is the shape of GET /api/v1/status.
type Status struct {
	Items          int64              `json:"items"`
	ItemsByType    map[string]int64   `json:"items_by_type"`
	IndexDocuments *uint64            `json:"index_documents,omitempty"`
	Cache          *models.CacheStats `json:"cache,omitempty"`
	DiskUsageBytes *int64             `json:"disk_usage_bytes,omitempty"`
	PermittedTypes []string           `json:"permitted_types"`
	Premium        bool               `json:"premium"`
	Synthesis      string             `json:"synthesis"`
}

// CollectStatus gathers content counts, index size, cache stats and disk usage.
// Only the content counts are required; the rest are omitted when unavailable.
func CollectStatus(ctx context.Context, store storage.Storage, index DocCounter, cache CacheAdmin, cfg *config.Config) (*Status, error) {
	total, err := store.CountItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}
	byType, err := store.CountByType(ctx)
	if err != nil {
		return nil, fmt.Errorf("count by type: %w", err)
	}
	st := &Status{
		Items:          total,
		ItemsByType:    byType,
		PermittedTypes: cfg.Search.PermittedTypes(),
		Premium:        cfg.Search.Premium,
		Synthesis:      cfg.Synthesis.Provider,
	}
	if index != nil {
		if n, err := index.DocCount(); err == nil {
			st.IndexDocuments = &n
		}
	}
	if cache != nil {
		if stats, err := cache.Stats(ctx); err == nil {
			st.Cache = stats
		}
	}
	diskBytes, err := storage.DiskUsageBytes(
		cfg.Storage.DatabasePath,
		cfg.Storage.BleveIndexPath,
		cfg.Cache.DatabasePath,
	)
	if err == nil {
		st.DiskUsageBytes = &diskBytes
	}
	return st, nil
}
