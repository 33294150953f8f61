package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS artifacts (
	fingerprint INTEGER PRIMARY KEY,
	data        BLOB NOT NULL,
	created_at  INTEGER NOT NULL
);
`

// SQLiteStore persists entries in a local SQLite database file. It is the
// default persistent backend: a single file, no external service.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the database at path, creating parent
// directories as needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	// WAL keeps readers unblocked while a save is in flight.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, fingerprint uint64) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT data, created_at FROM artifacts WHERE fingerprint = ?",
		int64(fingerprint),
	)

	var (
		data      []byte
		createdAt int64
	)

	if err := row.Scan(&data, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("load cache entry: %w", err)
	}

	return Entry{
		Fingerprint: fingerprint,
		Bytes:       data,
		CreatedAt:   time.Unix(createdAt, 0),
	}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, fingerprint uint64, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (fingerprint, data, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET data = excluded.data, created_at = excluded.created_at`,
		int64(fingerprint), data, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save cache entry: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context, fingerprint uint64) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM artifacts WHERE fingerprint = ?",
		int64(fingerprint),
	); err != nil {
		return fmt.Errorf("clear cache entry: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
