package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/temporal-mcp/pkg/schema"
)

// LibSQLStore implements HistoryCache using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path.
// The path should be a file URI, e.g. "file:/path/to/cache.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate applies the embedded cache migrations and verifies the resulting
// history_cache layout.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	migrations, err := loadMigrations(migrationFiles)
	if err != nil {
		return storeError("load cache migrations", err)
	}
	return migrate(ctx, s.db, migrations)
}

// Vacuum reclaims the pages freed by Prune.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return storeError("vacuum history cache", err)
	}
	return nil
}

func (s *LibSQLStore) Get(ctx context.Context, key Key) (*CachedHistory, error) {
	h := &CachedHistory{Key: key}
	var doc string
	var fetchedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT document, event_count, fetched_at FROM history_cache
		 WHERE namespace = ? AND workflow_id = ? AND run_id = ?`,
		key.Namespace, key.WorkflowID, key.RunID,
	).Scan(&doc, &h.EventCount, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound(key)
	}
	if err != nil {
		return nil, storeError("get cached history", err)
	}
	h.Document = []byte(doc)
	h.FetchedAt = fromMillis(fetchedAt)
	return h, nil
}

func (s *LibSQLStore) Put(ctx context.Context, h *CachedHistory) error {
	if h.Namespace == "" || h.WorkflowID == "" || h.RunID == "" {
		return schema.NewErrorf(schema.ErrCodeValidation, "cache key %q is incomplete", h.Key.String())
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history_cache (namespace, workflow_id, run_id, document, event_count, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(namespace, workflow_id, run_id) DO UPDATE SET
		   document=excluded.document, event_count=excluded.event_count, fetched_at=excluded.fetched_at`,
		h.Namespace, h.WorkflowID, h.RunID, string(h.Document), h.EventCount, toMillis(timeOrNow(h.FetchedAt)),
	)
	if err != nil {
		return storeError("put cached history", err)
	}
	return nil
}

func (s *LibSQLStore) Delete(ctx context.Context, key Key) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM history_cache WHERE namespace = ? AND workflow_id = ? AND run_id = ?`,
		key.Namespace, key.WorkflowID, key.RunID,
	)
	if err != nil {
		return storeError("delete cached history", err)
	}
	return checkRowsAffected(res, key)
}

func (s *LibSQLStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM history_cache WHERE fetched_at < ?`, toMillis(olderThan))
	if err != nil {
		return 0, storeError("prune history cache", err)
	}
	return res.RowsAffected()
}

func (s *LibSQLStore) Stats(ctx context.Context) (*CacheStats, error) {
	var entries, events int64
	var oldest, newest sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(event_count), 0), MIN(fetched_at), MAX(fetched_at) FROM history_cache`,
	).Scan(&entries, &events, &oldest, &newest)
	if err != nil {
		return nil, storeError("read cache stats", err)
	}
	return &CacheStats{
		Entries:     entries,
		TotalEvents: events,
		Oldest:      nullMillis(oldest),
		Newest:      nullMillis(newest),
	}, nil
}

// --- Helpers ---

func storeNotFound(key Key) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "cached history %q not found", key.String())
}

func storeError(op string, err error) *schema.Error {
	return schema.NewError(schema.ErrCodeStore, op).WithCause(err)
}

func checkRowsAffected(res sql.Result, key Key) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(key)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// Timestamps are stored as unix milliseconds so range deletes compare
// integers rather than driver-formatted strings.
func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
