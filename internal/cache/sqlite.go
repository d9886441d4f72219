package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gomotion/internal/core"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStoreConfig holds SQLite store configuration.
type SQLiteStoreConfig struct {
	// Path is the database file path (default: .cache/motions.db).
	Path string
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS motion_cache (
	key         TEXT PRIMARY KEY,
	provider    TEXT NOT NULL,
	inserted_at INTEGER NOT NULL,
	expires_at  INTEGER NOT NULL,
	result      BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_motion_cache_provider ON motion_cache(provider);
`

// SQLiteStore persists cache entries in an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database and ensures the schema.
// WAL mode allows concurrent reads while the saver goroutine writes.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	path := cfg.Path
	if path == "" {
		path = ".cache/motions.db"
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	dsn := fmt.Sprintf("%s?_journal=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// SQLite only allows one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate cache schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Load reads all persisted entries.
func (s *SQLiteStore) Load(ctx context.Context) ([]PersistedEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, provider, inserted_at, expires_at, result FROM motion_cache`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache entries: %w", err)
	}
	defer rows.Close()

	var entries []PersistedEntry
	for rows.Next() {
		var (
			e                    PersistedEntry
			insertedMs, expireMs int64
			blob                 []byte
		)
		if err := rows.Scan(&e.Key, &e.Provider, &insertedMs, &expireMs, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		var result core.MotionResult
		if err := json.Unmarshal(blob, &result); err != nil {
			return nil, fmt.Errorf("failed to decode cached result %q: %w", e.Key, err)
		}
		e.Result = result
		e.InsertedAt = time.UnixMilli(insertedMs).UTC()
		e.ExpiresAt = time.UnixMilli(expireMs).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Save replaces the table contents with the given entries in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, entries []PersistedEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cache save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM motion_cache`); err != nil {
		return fmt.Errorf("failed to clear cache table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO motion_cache (key, provider, inserted_at, expires_at, result) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare cache insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		blob, err := json.Marshal(e.Result)
		if err != nil {
			return fmt.Errorf("failed to encode cached result %q: %w", e.Key, err)
		}
		if _, err := stmt.ExecContext(ctx, e.Key, e.Provider,
			e.InsertedAt.UnixMilli(), e.ExpiresAt.UnixMilli(), blob); err != nil {
			return fmt.Errorf("failed to insert cache entry %q: %w", e.Key, err)
		}
	}
	return tx.Commit()
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
