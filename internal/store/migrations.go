package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rendis/temporal-mcp/pkg/schema"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// cacheColumns are the history_cache columns read or written by LibSQLStore.
var cacheColumns = []string{"namespace", "workflow_id", "run_id", "document", "event_count", "fetched_at"}

type migration struct {
	version int
	name    string
	script  string
}

// loadMigrations reads migrations/NNN_name.sql in version order.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var out []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		num, name, ok := strings.Cut(strings.TrimSuffix(e.Name(), ".sql"), "_")
		if !ok {
			return nil, fmt.Errorf("migration file %q: want NNN_name.sql", e.Name())
		}
		version, err := strconv.Atoi(num)
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("migration file %q: bad version %q", e.Name(), num)
		}
		body, err := fs.ReadFile(fsys, path.Join("migrations", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", e.Name(), err)
		}
		out = append(out, migration{version: version, name: name, script: string(body)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	for i := 1; i < len(out); i++ {
		if out[i].version == out[i-1].version {
			return nil, fmt.Errorf("duplicate migration version %d", out[i].version)
		}
	}
	return out, nil
}

// migrate brings the cache database up to the newest embedded version and
// then checks that history_cache has the columns this package uses.
func migrate(ctx context.Context, db *sql.DB, migrations []migration) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER PRIMARY KEY,
		name       TEXT    NOT NULL,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return storeError("create schema_version", err)
	}

	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if n := len(migrations); n > 0 && current > migrations[n-1].version {
		return schema.NewErrorf(schema.ErrCodeStore,
			"cache schema version %d is newer than supported version %d; point cache_path at a different file",
			current, migrations[n-1].version).
			WithDetails(map[string]any{"version": current, "supported": migrations[n-1].version})
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return err
		}
	}
	return checkCacheSchema(ctx, db)
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v); err != nil {
		return 0, storeError("read schema_version", err)
	}
	return v, nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storeError(fmt.Sprintf("begin cache migration %d", m.version), err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range sqlStatements(m.script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return storeError(fmt.Sprintf("cache migration %d (%s)", m.version, m.name), err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, name, applied_at) VALUES (?, ?, ?)`,
		m.version, m.name, toMillis(time.Now()),
	); err != nil {
		return storeError(fmt.Sprintf("record cache migration %d", m.version), err)
	}
	if err := tx.Commit(); err != nil {
		return storeError(fmt.Sprintf("commit cache migration %d", m.version), err)
	}
	return nil
}

// checkCacheSchema fails when history_cache lacks a column the store needs.
// CREATE TABLE IF NOT EXISTS leaves a same-named foreign table untouched, so
// a cache_path pointing at an unrelated database is caught here instead of
// on the first Put.
func checkCacheSchema(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `PRAGMA table_info(history_cache)`)
	if err != nil {
		return storeError("inspect history_cache", err)
	}
	defer rows.Close()

	have := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return storeError("inspect history_cache", err)
		}
		have[name] = true
	}
	if err := rows.Err(); err != nil {
		return storeError("inspect history_cache", err)
	}

	var missing []string
	for _, col := range cacheColumns {
		if !have[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return schema.NewErrorf(schema.ErrCodeStore,
			"history_cache table is missing columns: %s", strings.Join(missing, ", ")).
			WithDetails(map[string]any{"missing": missing})
	}
	return nil
}

// sqlStatements drops comment lines from a migration script and splits what
// is left on semicolons.
func sqlStatements(script string) []string {
	var b strings.Builder
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	var stmts []string
	for _, s := range strings.Split(b.String(), ";") {
		if s = strings.TrimSpace(s); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
