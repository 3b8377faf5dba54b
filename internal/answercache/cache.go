// Package answercache persists previously answered (document, query) pairs
// with their embeddings and usage counters.
package answercache

import (
	"context"

	"github.com/gowows/kbserve/internal/models"
)

// Cache is the answer cache consumed by the resolver. Keys are
// (document key, normalized query).
type Cache interface {
	// GetAndTouch returns the entry for the pair, increments its hit count,
	// and refreshes updated_at in one storage-level operation. Returns
	// (nil, nil) on miss. The increment must be atomic with respect to
	// concurrent callers.
	GetAndTouch(ctx context.Context, documentKey, queryNorm string) (*models.CacheEntry, error)
	// FindByDocument returns all entries for a document that carry a query
	// embedding, in insertion order. Used by the semantic scan.
	FindByDocument(ctx context.Context, documentKey string) ([]*models.CacheEntry, error)
	// Upsert creates or updates the entry for the pair: answer, embedding,
	// and updated_at are written, hit_count is incremented (starting at 1 on
	// insert).
	Upsert(ctx context.Context, entry *models.CacheEntry) error
	// Questions lists previously asked questions for a document, most asked
	// first.
	Questions(ctx context.Context, documentKey string) ([]*models.CachedQuestion, error)
	// Entries returns all entries for a document for export, in insertion
	// order.
	Entries(ctx context.Context, documentKey string) ([]*models.CacheEntry, error)
	// Count returns the total number of cache entries.
	Count(ctx context.Context) (int64, error)
}
