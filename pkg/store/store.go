// Package store is the Context & Learning Store: the process-wide
// consultation cache plus the outcome log the learner reads. The
// engine depends only on the interfaces here; memory, file, redis,
// sqlite and postgres backends are interchangeable.
package store

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/zen-systems/tiergate/pkg/schema"
)

// Clock abstracts time so TTL behavior is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// Cache is the consultation cache. Get returns ok=false for missing
// or expired keys; expired entries are evicted on read. Entries are
// read-only once stored.
type Cache interface {
	Get(ctx context.Context, key schema.Fingerprint) (*schema.CacheEntry, bool, error)
	Put(ctx context.Context, entry schema.CacheEntry) error
	Delete(ctx context.Context, key schema.Fingerprint) error
	Len(ctx context.Context) (int, error)
	Purge(ctx context.Context) error
}

// OutcomeLog records completed consultations. Only finished, valid
// pipelines may be logged; abandoned or fatally failed tasks never
// reach it.
type OutcomeLog interface {
	LogOutcome(ctx context.Context, outcome schema.Outcome) error

	// History returns up to limit of the most recent outcomes in
	// chronological order. limit <= 0 means everything retained.
	History(ctx context.Context, limit int) ([]schema.Outcome, error)
}

// Store is the full Context & Learning Store contract.
type Store interface {
	Cache
	OutcomeLog
}

// Cache lifetimes by task priority class.
const (
	TTLHigh   = 7 * 24 * time.Hour
	TTLNormal = 3 * 24 * time.Hour
	TTLLow    = 24 * time.Hour
)

// TTLTable maps priority classes to cache lifetimes.
type TTLTable struct {
	High   time.Duration
	Normal time.Duration
	Low    time.Duration
}

// DefaultTTLTable returns the built-in lifetimes.
func DefaultTTLTable() TTLTable {
	return TTLTable{High: TTLHigh, Normal: TTLNormal, Low: TTLLow}
}

// For returns the cache lifetime for a priority class. High priority
// work is the most expensive to recompute and keeps its entries
// longest.
func (t TTLTable) For(p schema.Priority) time.Duration {
	switch p {
	case schema.PriorityHigh:
		return t.High
	case schema.PriorityLow:
		return t.Low
	default:
		return t.Normal
	}
}

// TTLFor returns the default cache lifetime for a priority class.
func TTLFor(p schema.Priority) time.Duration {
	return DefaultTTLTable().For(p)
}

// Flight serializes computation per fingerprint: among concurrent
// callers with the same key, exactly one executes fn and the rest
// share its result. This is the cache-stampede guard; at most one
// consultation per fingerprint runs at a time.
type Flight struct {
	g singleflight.Group
}

// Do runs fn once per in-flight key. shared reports whether this
// caller received another caller's result.
func (f *Flight) Do(key schema.Fingerprint, fn func() (any, error)) (v any, shared bool, err error) {
	v, err, shared = f.g.Do(string(key), fn)
	return v, shared, err
}
