package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zen-systems/tiergate/pkg/schema"
)

// Postgres is a Store backed by a shared postgres server, the option
// for multi-process deployments where every worker must see the same
// cache and outcome history.
type Postgres struct {
	pool      *pgxpool.Pool
	clock     Clock
	capacity  int
	retention int
}

// NewPostgres connects, pings, and creates the schema.
func NewPostgres(ctx context.Context, databaseURL string, capacity int, clock Clock) (*Postgres, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clock == nil {
		clock = SystemClock()
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	p := &Postgres{pool: pool, clock: clock, capacity: capacity, retention: DefaultRetention}
	if err := p.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) initialize(ctx context.Context) error {
	schemaSQL := `
	CREATE TABLE IF NOT EXISTS tiergate_cache (
		key        TEXT PRIMARY KEY,
		payload    JSONB NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		touched_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tiergate_cache_touched ON tiergate_cache(touched_at);

	CREATE TABLE IF NOT EXISTS tiergate_outcomes (
		id          BIGSERIAL PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		payload     JSONB NOT NULL,
		at          TIMESTAMPTZ NOT NULL
	);
	`
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("initialize postgres store: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() { p.pool.Close() }

func (p *Postgres) Get(ctx context.Context, key schema.Fingerprint) (*schema.CacheEntry, bool, error) {
	var payload []byte
	err := p.pool.QueryRow(ctx,
		`SELECT payload FROM tiergate_cache WHERE key = $1 AND expires_at > $2`,
		string(key), p.clock.Now()).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("postgres get: %w", err)
	}

	var entry schema.CacheEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, false, fmt.Errorf("decode cache entry: %w", err)
	}
	p.pool.Exec(ctx,
		`UPDATE tiergate_cache SET touched_at = $1 WHERE key = $2`, p.clock.Now(), string(key))
	return &entry, true, nil
}

func (p *Postgres) Put(ctx context.Context, entry schema.CacheEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO tiergate_cache (key, payload, expires_at, touched_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload,
		   expires_at = EXCLUDED.expires_at, touched_at = EXCLUDED.touched_at`,
		string(entry.Key), payload, entry.ExpiresAt, p.clock.Now())
	if err != nil {
		return fmt.Errorf("postgres put: %w", err)
	}

	_, err = p.pool.Exec(ctx,
		`DELETE FROM tiergate_cache WHERE key NOT IN (
		   SELECT key FROM tiergate_cache ORDER BY touched_at DESC LIMIT $1
		 )`, p.capacity)
	if err != nil {
		return fmt.Errorf("postgres evict: %w", err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, key schema.Fingerprint) error {
	if _, err := p.pool.Exec(ctx,
		`DELETE FROM tiergate_cache WHERE key = $1`, string(key)); err != nil {
		return fmt.Errorf("postgres delete: %w", err)
	}
	return nil
}

func (p *Postgres) Len(ctx context.Context) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tiergate_cache WHERE expires_at > $1`, p.clock.Now()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres len: %w", err)
	}
	return n, nil
}

func (p *Postgres) Purge(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM tiergate_cache`); err != nil {
		return fmt.Errorf("postgres purge: %w", err)
	}
	return nil
}

func (p *Postgres) LogOutcome(ctx context.Context, outcome schema.Outcome) error {
	if err := outcome.Validate(); err != nil {
		return fmt.Errorf("log outcome: %w", err)
	}
	payload, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO tiergate_outcomes (fingerprint, payload, at) VALUES ($1, $2, $3)`,
		string(outcome.Fingerprint), payload, outcome.At)
	if err != nil {
		return fmt.Errorf("postgres outcome append: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`DELETE FROM tiergate_outcomes WHERE id NOT IN (
		   SELECT id FROM tiergate_outcomes ORDER BY id DESC LIMIT $1
		 )`, p.retention)
	if err != nil {
		return fmt.Errorf("postgres outcome trim: %w", err)
	}
	return nil
}

func (p *Postgres) History(ctx context.Context, limit int) ([]schema.Outcome, error) {
	if limit <= 0 {
		limit = p.retention
	}
	rows, err := p.pool.Query(ctx,
		`SELECT payload FROM (
		   SELECT id, payload FROM tiergate_outcomes ORDER BY id DESC LIMIT $1
		 ) recent ORDER BY id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres outcome read: %w", err)
	}
	defer rows.Close()

	var outcomes []schema.Outcome
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("postgres outcome scan: %w", err)
		}
		var o schema.Outcome
		if err := json.Unmarshal(payload, &o); err != nil {
			return nil, fmt.Errorf("decode outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}
