// Package scheduler runs periodic maintenance of the history cache.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/temporal-mcp/internal/store"
)

// DefaultSchedule prunes the cache once an hour.
const DefaultSchedule = "@hourly"

// Cache is the part of the history cache the scheduler maintains.
// Satisfied by store.LibSQLStore.
type Cache interface {
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
	Vacuum(ctx context.Context) error
	Stats(ctx context.Context) (*store.CacheStats, error)
}

// Scheduler deletes cache entries older than a TTL on a cron schedule.
type Scheduler struct {
	cache    Cache
	ttl      time.Duration
	schedule cron.Schedule
	expr     string
	logger   *slog.Logger
	now      func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	pruneMu sync.Mutex // one prune at a time
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewScheduler creates a Scheduler. An empty expression uses DefaultSchedule.
func NewScheduler(cache Cache, expression string, ttl time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if expression == "" {
		expression = DefaultSchedule
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive, got %s", ttl)
	}
	sched, err := parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expression, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cache:    cache,
		ttl:      ttl,
		schedule: sched,
		expr:     expression,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Start launches the background pruning loop. The first prune runs
// immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("cache pruner started",
		slog.String("schedule", s.expr),
		slog.Duration("ttl", s.ttl),
	)
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	s.tick(ctx)

	for {
		wait := s.nextRun().Sub(s.now())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.PruneOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("failed to prune history cache", slog.String("error", err.Error()))
	}
}

// PruneOnce deletes entries fetched more than ttl ago and returns how many
// were removed. Storage is vacuumed only when something was removed. Vacuum
// and stats failures are logged; only a failed prune is returned. Concurrent
// calls are serialized.
func (s *Scheduler) PruneOnce(ctx context.Context) (int64, error) {
	s.pruneMu.Lock()
	defer s.pruneMu.Unlock()

	cutoff := s.now().Add(-s.ttl)
	n, err := s.cache.Prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if n > 0 {
		if err := s.cache.Vacuum(ctx); err != nil {
			s.logger.Warn("vacuum after prune failed", slog.String("error", err.Error()))
		}
	}

	attrs := []any{
		slog.Int64("removed", n),
		slog.Time("next_run", s.nextRun()),
	}
	if stats, err := s.cache.Stats(ctx); err != nil {
		s.logger.Warn("read history cache stats failed", slog.String("error", err.Error()))
	} else {
		attrs = append(attrs,
			slog.Int64("entries", stats.Entries),
			slog.Int64("total_events", stats.TotalEvents),
		)
	}
	s.logger.Info("pruned history cache", attrs...)
	return n, nil
}

func (s *Scheduler) nextRun() time.Time {
	return s.schedule.Next(s.now())
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("cache pruner stopped")
	return nil
}
