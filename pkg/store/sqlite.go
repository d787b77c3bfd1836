package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/zen-systems/tiergate/pkg/schema"
)

// SQLite is an embedded Store. LRU eviction uses a touched_at column
// updated on every read; the outcome log is capped on insert so
// retention stays bounded.
type SQLite struct {
	db        *sql.DB
	clock     Clock
	capacity  int
	retention int
}

// NewSQLite opens (creating if needed) the database at path.
func NewSQLite(path string, capacity int, clock Clock) (*SQLite, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clock == nil {
		clock = SystemClock()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	s := &SQLite{db: db, clock: clock, capacity: capacity, retention: DefaultRetention}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) initialize() error {
	schemaSQL := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		key        TEXT PRIMARY KEY,
		payload    TEXT NOT NULL,
		expires_at INTEGER NOT NULL,
		touched_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cache_touched ON cache_entries(touched_at);

	CREATE TABLE IF NOT EXISTS outcomes (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		fingerprint TEXT NOT NULL,
		payload     TEXT NOT NULL,
		at          INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("initialize sqlite store: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Get(ctx context.Context, key schema.Fingerprint) (*schema.CacheEntry, bool, error) {
	now := s.clock.Now()
	var payload string
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, expires_at FROM cache_entries WHERE key = ?`, string(key)).
		Scan(&payload, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite get: %w", err)
	}

	if now.Unix() >= expiresAt {
		s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, string(key))
		return nil, false, nil
	}

	var entry schema.CacheEntry
	if err := json.Unmarshal([]byte(payload), &entry); err != nil {
		return nil, false, fmt.Errorf("decode cache entry: %w", err)
	}
	s.db.ExecContext(ctx,
		`UPDATE cache_entries SET touched_at = ? WHERE key = ?`, now.UnixNano(), string(key))
	return &entry, true, nil
}

func (s *SQLite) Put(ctx context.Context, entry schema.CacheEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, payload, expires_at, touched_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload,
		   expires_at = excluded.expires_at, touched_at = excluded.touched_at`,
		string(entry.Key), string(payload), entry.ExpiresAt.Unix(), now.UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite put: %w", err)
	}

	// LRU bound: drop the least recently touched rows over capacity.
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE key NOT IN (
		   SELECT key FROM cache_entries ORDER BY touched_at DESC LIMIT ?
		 )`, s.capacity)
	if err != nil {
		return fmt.Errorf("sqlite evict: %w", err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key schema.Fingerprint) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE key = ?`, string(key)); err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	return nil
}

func (s *SQLite) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite len: %w", err)
	}
	return n, nil
}

func (s *SQLite) Purge(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("sqlite purge: %w", err)
	}
	return nil
}

func (s *SQLite) LogOutcome(ctx context.Context, outcome schema.Outcome) error {
	if err := outcome.Validate(); err != nil {
		return fmt.Errorf("log outcome: %w", err)
	}
	payload, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO outcomes (fingerprint, payload, at) VALUES (?, ?, ?)`,
		string(outcome.Fingerprint), string(payload), outcome.At.UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite outcome append: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM outcomes WHERE id NOT IN (
		   SELECT id FROM outcomes ORDER BY id DESC LIMIT ?
		 )`, s.retention)
	if err != nil {
		return fmt.Errorf("sqlite outcome trim: %w", err)
	}
	return nil
}

func (s *SQLite) History(ctx context.Context, limit int) ([]schema.Outcome, error) {
	if limit <= 0 {
		limit = s.retention
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM (
		   SELECT id, payload FROM outcomes ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite outcome read: %w", err)
	}
	defer rows.Close()

	var outcomes []schema.Outcome
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("sqlite outcome scan: %w", err)
		}
		var o schema.Outcome
		if err := json.Unmarshal([]byte(payload), &o); err != nil {
			return nil, fmt.Errorf("decode outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}
