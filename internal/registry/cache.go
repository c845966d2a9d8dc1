package registry

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".

	"github.com/cloudo-app/cloudo-go/internal/api"
)

// Cache persists the last good snapshot between process runs. A zero
// syncedAt from Load means nothing has been stored.
type Cache interface {
	Load(ctx context.Context) ([]api.FileRecord, time.Time, error)
	Replace(ctx context.Context, records []api.FileRecord, syncedAt time.Time) error
}

//go:embed migrations/*.sql
var migrationsFS embed.FS

const metaSyncedAt = "synced_at"

const (
	sqlSelectFiles = `SELECT id, name, size, created_at, content_type
		FROM files ORDER BY position`
	sqlSelectMeta  = `SELECT value FROM sync_meta WHERE key = ?`
	sqlDeleteFiles = `DELETE FROM files`
	sqlInsertFile  = `INSERT INTO files (position, id, name, size, created_at, content_type)
		VALUES (?, ?, ?, ?, ?, ?)`
	sqlUpsertMeta = `INSERT INTO sync_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	sqlDeleteMeta = `DELETE FROM sync_meta WHERE key = ?`
)

// SQLiteCache is a Cache in a local SQLite database. Download locators are
// never written to disk.
type SQLiteCache struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// OpenCache opens (creating if needed) the cache database at path and
// applies pending migrations.
func OpenCache(ctx context.Context, path string, logger *slog.Logger) (*SQLiteCache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("registry: creating cache directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("registry: opening cache %s: %w", path, err)
	}

	// One writer; CLI invocations never share a connection pool.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("snapshot cache opened", slog.String("path", path))

	return &SQLiteCache{db: db, path: path, logger: logger}, nil
}

// runMigrations applies the embedded schema with the goose Provider API.
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("registry: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("registry: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("registry: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Debug("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Path returns the database file location.
func (c *SQLiteCache) Path() string {
	return c.path
}

func (c *SQLiteCache) Load(ctx context.Context) ([]api.FileRecord, time.Time, error) {
	var raw string

	err := c.db.QueryRowContext(ctx, sqlSelectMeta, metaSyncedAt).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, nil
	}

	if err != nil {
		return nil, time.Time{}, fmt.Errorf("registry: reading cache metadata: %w", err)
	}

	syncedAt, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("registry: decoding cache timestamp %q: %w", raw, err)
	}

	rows, err := c.db.QueryContext(ctx, sqlSelectFiles)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("registry: loading cached files: %w", err)
	}
	defer rows.Close()

	var records []api.FileRecord

	for rows.Next() {
		rec, err := scanFileRow(rows)
		if err != nil {
			return nil, time.Time{}, err
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("registry: iterating cached files: %w", err)
	}

	return records, syncedAt, nil
}

func scanFileRow(rows *sql.Rows) (api.FileRecord, error) {
	var (
		rec         api.FileRecord
		size        sql.NullInt64
		createdAt   sql.NullInt64
		contentType sql.NullString
	)

	if err := rows.Scan(&rec.ID, &rec.Name, &size, &createdAt, &contentType); err != nil {
		return api.FileRecord{}, fmt.Errorf("registry: scanning cached file: %w", err)
	}

	rec.Size = api.SizeUnknown
	if size.Valid {
		rec.Size = size.Int64
	}

	if createdAt.Valid {
		rec.CreatedAt = time.UnixMilli(createdAt.Int64).UTC()
	}

	rec.ContentType = contentType.String

	return rec, nil
}

// Replace swaps the stored snapshot in one transaction. A zero syncedAt
// clears the cache.
func (c *SQLiteCache) Replace(ctx context.Context, records []api.FileRecord, syncedAt time.Time) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("registry: beginning cache transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	if _, err := tx.ExecContext(ctx, sqlDeleteFiles); err != nil {
		return fmt.Errorf("registry: clearing cached files: %w", err)
	}

	for i := range records {
		rec := &records[i]

		if _, err := tx.ExecContext(ctx, sqlInsertFile,
			i, rec.ID, rec.Name, nullSize(rec.Size), nullTime(rec.CreatedAt), nullString(rec.ContentType),
		); err != nil {
			return fmt.Errorf("registry: caching file %s: %w", rec.ID, err)
		}
	}

	if syncedAt.IsZero() {
		_, err = tx.ExecContext(ctx, sqlDeleteMeta, metaSyncedAt)
	} else {
		_, err = tx.ExecContext(ctx, sqlUpsertMeta, metaSyncedAt, syncedAt.UTC().Format(time.RFC3339Nano))
	}

	if err != nil {
		return fmt.Errorf("registry: writing cache metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("registry: committing cache: %w", err)
	}

	return nil
}

// Close releases the database.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

func nullSize(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != api.SizeUnknown}
}

func nullTime(t time.Time) sql.NullInt64 {
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: !t.IsZero()}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
