package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zen-systems/tiergate/pkg/schema"
)

const (
	redisEntryPrefix = "tiergate:cache:"
	redisOutcomeList = "tiergate:outcomes"
)

// Redis is a Store backed by a shared redis instance. Entry expiry
// rides on redis TTLs; the outcome log is a capped list so retention
// stays bounded server-side.
type Redis struct {
	client    *redis.Client
	clock     Clock
	retention int64
}

// ConnectRedis creates a client from a URL (redis://host:port/db).
func ConnectRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// NewRedis wraps an existing client. A nil clock selects the system
// clock.
func NewRedis(client *redis.Client, clock Clock) *Redis {
	if clock == nil {
		clock = SystemClock()
	}
	return &Redis{client: client, clock: clock, retention: DefaultRetention}
}

func (r *Redis) Get(ctx context.Context, key schema.Fingerprint) (*schema.CacheEntry, bool, error) {
	data, err := r.client.Get(ctx, redisEntryPrefix+string(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var entry schema.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("decode cache entry: %w", err)
	}
	// Redis expires on its own; this guards a skewed server clock.
	if entry.Expired(r.clock.Now()) {
		r.client.Del(ctx, redisEntryPrefix+string(key))
		return nil, false, nil
	}
	return &entry, true, nil
}

func (r *Redis) Put(ctx context.Context, entry schema.CacheEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	ttl := entry.ExpiresAt.Sub(r.clock.Now())
	if ttl <= 0 {
		ttl = time.Second
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, redisEntryPrefix+string(entry.Key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key schema.Fingerprint) error {
	if err := r.client.Del(ctx, redisEntryPrefix+string(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (r *Redis) Len(ctx context.Context) (int, error) {
	var cursor uint64
	n := 0
	for {
		keys, next, err := r.client.Scan(ctx, cursor, redisEntryPrefix+"*", 256).Result()
		if err != nil {
			return 0, fmt.Errorf("redis scan: %w", err)
		}
		n += len(keys)
		if next == 0 {
			return n, nil
		}
		cursor = next
	}
}

func (r *Redis) Purge(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, redisEntryPrefix+"*", 256).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (r *Redis) LogOutcome(ctx context.Context, outcome schema.Outcome) error {
	if err := outcome.Validate(); err != nil {
		return fmt.Errorf("log outcome: %w", err)
	}
	data, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, redisOutcomeList, data)
	pipe.LTrim(ctx, redisOutcomeList, -r.retention, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis outcome append: %w", err)
	}
	return nil
}

func (r *Redis) History(ctx context.Context, limit int) ([]schema.Outcome, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	lines, err := r.client.LRange(ctx, redisOutcomeList, start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis outcome read: %w", err)
	}
	outcomes := make([]schema.Outcome, 0, len(lines))
	for _, line := range lines {
		var o schema.Outcome
		if err := json.Unmarshal([]byte(line), &o); err != nil {
			return nil, fmt.Errorf("decode outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}
