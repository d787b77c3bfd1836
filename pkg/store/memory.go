package store

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/zen-systems/tiergate/pkg/schema"
)

// DefaultCapacity bounds the in-memory cache when the caller does not
// choose one.
const DefaultCapacity = 1024

// DefaultRetention bounds the in-memory outcome ring.
const DefaultRetention = 4096

// Memory is the canonical Store: an LRU cache with TTL expiry and a
// bounded outcome ring. Safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	clock    Clock
	capacity int
	order    *list.List // front is most recently used
	items    map[schema.Fingerprint]*list.Element
	outcomes *ring
}

// NewMemory builds an in-memory store. capacity <= 0 selects
// DefaultCapacity; a nil clock selects the system clock.
func NewMemory(capacity int, clock Clock) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &Memory{
		clock:    clock,
		capacity: capacity,
		order:    list.New(),
		items:    make(map[schema.Fingerprint]*list.Element),
		outcomes: newRing(DefaultRetention),
	}
}

func (m *Memory) Get(_ context.Context, key schema.Fingerprint) (*schema.CacheEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	entry := el.Value.(*schema.CacheEntry)
	if entry.Expired(m.clock.Now()) {
		m.remove(el)
		return nil, false, nil
	}
	m.order.MoveToFront(el)
	out := *entry
	return &out, true, nil
}

func (m *Memory) Put(_ context.Context, entry schema.CacheEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[entry.Key]; ok {
		el.Value = &entry
		m.order.MoveToFront(el)
		return nil
	}
	m.items[entry.Key] = m.order.PushFront(&entry)
	for len(m.items) > m.capacity {
		m.remove(m.order.Back())
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, key schema.Fingerprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[key]; ok {
		m.remove(el)
	}
	return nil
}

func (m *Memory) Len(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items), nil
}

func (m *Memory) Purge(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order.Init()
	m.items = make(map[schema.Fingerprint]*list.Element)
	return nil
}

// remove expects m.mu held.
func (m *Memory) remove(el *list.Element) {
	if el == nil {
		return
	}
	entry := m.order.Remove(el).(*schema.CacheEntry)
	delete(m.items, entry.Key)
}

func (m *Memory) LogOutcome(_ context.Context, outcome schema.Outcome) error {
	if err := outcome.Validate(); err != nil {
		return fmt.Errorf("log outcome: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes.push(outcome)
	return nil
}

func (m *Memory) History(_ context.Context, limit int) ([]schema.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes.recent(limit), nil
}
