// Package storage defines the persistence interface for site content.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrNotFound is returned when a content item does not exist.
var ErrNotFound = errors.New("content item not found")

// Storage defines content item persistence and the lookups retrieval needs.
type Storage interface {
	// Item operations
	UpsertItem(ctx context.Context, item *models.ContentItem) error
	GetItem(ctx context.Context, id string) (*models.ContentItem, error)
	DeleteItem(ctx context.Context, id string) error
	ListItems(ctx context.Context, offset, limit int) ([]*models.ContentItem, error)

	// Retrieval lookups, restricted to published items of the given types.
	FindByTerms(ctx context.Context, types, terms []string, limit int) ([]string, error)
	ListRecent(ctx context.Context, types []string, limit int) ([]*models.ContentItem, error)

	// Stats
	CountItems(ctx context.Context) (int64, error)
	CountByType(ctx context.Context) (map[string]int64, error)

	Close() error
}
