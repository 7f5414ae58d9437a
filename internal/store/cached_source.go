package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/rendis/temporal-mcp/internal/history"
	"github.com/rendis/temporal-mcp/internal/logging"
	"github.com/rendis/temporal-mcp/internal/temporal"
	"github.com/rendis/temporal-mcp/pkg/schema"
)

var errNotFound = schema.NewError(schema.ErrCodeNotFound, "not found")

// CachedSource serves closed workflow runs from a HistoryCache and falls
// through to the wrapped source for everything else. Running workflows are
// never cached since their history can still grow.
type CachedSource struct {
	next   temporal.Source
	cache  HistoryCache
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

var _ temporal.Source = (*CachedSource)(nil)

// NewCachedSource wraps next with cache. Entries older than ttl are
// refetched; a ttl of zero keeps entries until they are pruned.
func NewCachedSource(next temporal.Source, cache HistoryCache, ttl time.Duration, logger *slog.Logger) *CachedSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSource{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SearchWorkflows is never cached.
func (c *CachedSource) SearchWorkflows(ctx context.Context, namespace, query string) (json.RawMessage, error) {
	return c.next.SearchWorkflows(ctx, namespace, query)
}

func (c *CachedSource) GetWorkflowData(ctx context.Context, namespace, workflowID, runID string) (*temporal.WorkflowData, error) {
	key := Key{Namespace: namespace, WorkflowID: workflowID, RunID: runID}
	log := logging.LogWith(ctx, c.logger)

	if runID != "" {
		if data, ok := c.lookup(ctx, key, log); ok {
			return data, nil
		}
	}

	data, err := c.next.GetWorkflowData(ctx, namespace, workflowID, runID)
	if err != nil {
		return nil, err
	}
	if runID != "" && closed(data, namespace, runID) {
		c.store(ctx, key, data, log)
	}
	return data, nil
}

// closed reports whether the reconstructed root run reached a terminal
// status. A history that cannot be reconstructed is treated as open.
func closed(data *temporal.WorkflowData, namespace, runID string) bool {
	parsed, err := history.Parse(data.Decode(), namespace, runID)
	if err != nil {
		return false
	}
	root := parsed.Root()
	return root != nil && root.Status.IsTerminal()
}

func (c *CachedSource) lookup(ctx context.Context, key Key, log *slog.Logger) (*temporal.WorkflowData, bool) {
	h, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, errNotFound) {
			log.Warn("history cache read failed", slog.String("error", err.Error()))
		}
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(h.FetchedAt) > c.ttl {
		log.Debug("history cache entry expired", slog.Time("fetched_at", h.FetchedAt))
		return nil, false
	}

	var data temporal.WorkflowData
	if err := json.Unmarshal(h.Document, &data); err != nil {
		log.Warn("history cache entry is corrupt; evicting", slog.String("error", err.Error()))
		if err := c.cache.Delete(ctx, key); err != nil && !errors.Is(err, errNotFound) {
			log.Warn("history cache evict failed", slog.String("error", err.Error()))
		}
		return nil, false
	}
	log.Debug("history served from cache", slog.Int("events", len(data.Events)))
	return &data, true
}

func (c *CachedSource) store(ctx context.Context, key Key, data *temporal.WorkflowData, log *slog.Logger) {
	doc, err := json.Marshal(data)
	if err != nil {
		log.Warn("encode history for cache", slog.String("error", err.Error()))
		return
	}
	err = c.cache.Put(ctx, &CachedHistory{
		Key:        key,
		Document:   doc,
		EventCount: len(data.Events),
		FetchedAt:  c.now(),
	})
	if err != nil {
		log.Warn("history cache write failed", slog.String("error", err.Error()))
	}
}
