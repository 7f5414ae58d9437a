package store

import (
	"context"
	"time"
)

// HistoryCache persists the raw upstream documents of closed workflow runs.
// All implementations must be safe for concurrent use.
type HistoryCache interface {
	// Get returns the entry for key, or a NOT_FOUND error.
	Get(ctx context.Context, key Key) (*CachedHistory, error)
	// Put inserts or replaces the entry for h's key.
	Put(ctx context.Context, h *CachedHistory) error
	// Delete removes the entry for key, or returns a NOT_FOUND error.
	Delete(ctx context.Context, key Key) error
	// Prune removes entries fetched before olderThan and reports how many.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
	// Stats summarizes the cache contents.
	Stats(ctx context.Context) (*CacheStats, error)
	// Vacuum compacts storage after a prune.
	Vacuum(ctx context.Context) error

	Migrate(ctx context.Context) error
	Close() error
}
