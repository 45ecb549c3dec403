package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cache (
	key       TEXT PRIMARY KEY,
	data      BLOB NOT NULL,
	stored_at INTEGER NOT NULL
);
`

// Store persists client-side state: the generated user id and cached API
// responses.
type Store struct {
	db   *sql.DB
	path string
}

// Entry is a cached response and the time it was stored.
type Entry struct {
	Data     []byte
	StoredAt time.Time
}

// Open creates or opens the state database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// UserID returns the persisted anonymous user id, generating one on first use.
func (s *Store) UserID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = 'user_id'`).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("read user id: %w", err)
	}

	id = NewUserID()
	// Keep whichever id won if another writer raced us.
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO settings (key, value) VALUES ('user_id', ?)`, id); err != nil {
		return "", fmt.Errorf("store user id: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = 'user_id'`).Scan(&id); err != nil {
		return "", fmt.Errorf("read user id: %w", err)
	}
	return id, nil
}

// NewUserID returns "user_" followed by nine random lowercase alphanumerics.
func NewUserID() string {
	return "user_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}

// Get returns the cached entry for key.
func (s *Store) Get(ctx context.Context, key string) (Entry, bool, error) {
	var (
		data []byte
		ms   int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT data, stored_at FROM cache WHERE key = ?`, key).Scan(&data, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("read cache %q: %w", key, err)
	}
	return Entry{Data: data, StoredAt: time.UnixMilli(ms).UTC()}, true, nil
}

// Put stores data under key, replacing any previous entry.
func (s *Store) Put(ctx context.Context, key string, data []byte, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache (key, data, stored_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data, stored_at = excluded.stored_at`,
		key, data, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("write cache %q: %w", key, err)
	}
	return nil
}

// Ping checks the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
