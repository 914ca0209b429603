// Package keyword provides the native relevance-ranked free-text index over site content.
package keyword

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// KeywordIndex defines native free-text search operations.
type KeywordIndex interface {
	// Index stores item under its id; text is the flattened content to match against.
	Index(ctx context.Context, item *models.ContentItem, text string) error
	// Search returns ids of published items of the given types ranked by relevance.
	Search(ctx context.Context, query string, types []string, limit int) ([]string, error)
	Delete(ctx context.Context, id string) error
	Close() error
	// DocCount returns the total number of documents in the index.
	DocCount() (uint64, error)
}
