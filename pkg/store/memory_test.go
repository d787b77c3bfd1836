package store

import (
	"context"
	"testing"
	"time"
)

func TestMemory_RoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := NewMemory(8, clock)

	entry := testEntry(1, clock.Now(), time.Hour)
	if err := m.Put(ctx, entry); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := m.Get(ctx, entry.Key)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Recommendation.ID != "rec-1" {
		t.Errorf("recommendation id = %q", got.Recommendation.ID)
	}

	if _, ok, _ := m.Get(ctx, testKey(99)); ok {
		t.Error("unknown key reported a hit")
	}
}

func TestMemory_RejectsInvalidEntry(t *testing.T) {
	m := NewMemory(8, newFakeClock())
	entry := testEntry(1, time.Now(), time.Hour)
	entry.SpecialistID = ""
	if err := m.Put(context.Background(), entry); err == nil {
		t.Error("invalid entry accepted")
	}
}

func TestMemory_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := NewMemory(8, clock)

	if err := m.Put(ctx, testEntry(1, clock.Now(), time.Hour)); err != nil {
		t.Fatalf("put: %v", err)
	}

	clock.Advance(2 * time.Hour)
	if _, ok, _ := m.Get(ctx, testKey(1)); ok {
		t.Error("expired entry served")
	}
	if n, _ := m.Len(ctx); n != 0 {
		t.Errorf("expired entry retained, len = %d", n)
	}
}

func TestMemory_LRUEviction(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := NewMemory(2, clock)

	for i := 1; i <= 2; i++ {
		if err := m.Put(ctx, testEntry(i, clock.Now(), time.Hour)); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	// Touch 1 so 2 becomes the eviction candidate.
	if _, ok, _ := m.Get(ctx, testKey(1)); !ok {
		t.Fatal("entry 1 missing before eviction")
	}
	if err := m.Put(ctx, testEntry(3, clock.Now(), time.Hour)); err != nil {
		t.Fatalf("put 3: %v", err)
	}

	if _, ok, _ := m.Get(ctx, testKey(2)); ok {
		t.Error("least recently used entry survived")
	}
	for _, i := range []int{1, 3} {
		if _, ok, _ := m.Get(ctx, testKey(i)); !ok {
			t.Errorf("entry %d evicted unexpectedly", i)
		}
	}
}

func TestMemory_PutReplacesSameKey(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := NewMemory(8, clock)

	first := testEntry(1, clock.Now(), time.Hour)
	if err := m.Put(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := testEntry(1, clock.Now(), time.Hour)
	second.Recommendation.Summary = "replaced"
	if err := m.Put(ctx, second); err != nil {
		t.Fatal(err)
	}

	if n, _ := m.Len(ctx); n != 1 {
		t.Errorf("len = %d, want 1", n)
	}
	got, _, _ := m.Get(ctx, testKey(1))
	if got.Recommendation.Summary != "replaced" {
		t.Errorf("summary = %q", got.Recommendation.Summary)
	}
}

func TestMemory_DeleteAndPurge(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := NewMemory(8, clock)

	for i := 1; i <= 3; i++ {
		if err := m.Put(ctx, testEntry(i, clock.Now(), time.Hour)); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.Delete(ctx, testKey(2)); err != nil {
		t.Fatal(err)
	}
	if n, _ := m.Len(ctx); n != 2 {
		t.Errorf("len after delete = %d, want 2", n)
	}
	if err := m.Purge(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := m.Len(ctx); n != 0 {
		t.Errorf("len after purge = %d, want 0", n)
	}
}

func TestMemory_HistoryOrder(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := NewMemory(8, clock)

	for i := 1; i <= 3; i++ {
		if err := m.LogOutcome(ctx, testOutcome(i, clock.Now())); err != nil {
			t.Fatalf("log %d: %v", i, err)
		}
		clock.Advance(time.Minute)
	}

	history, err := m.History(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history len = %d, want 2", len(history))
	}
	if history[0].Score != 2 || history[1].Score != 3 {
		t.Errorf("history order = %.0f,%.0f, want 2,3", history[0].Score, history[1].Score)
	}
}

func TestRing_Wraparound(t *testing.T) {
	r := newRing(3)
	for i := 1; i <= 5; i++ {
		r.push(testOutcome(i, time.Now()))
	}

	all := r.recent(0)
	if len(all) != 3 {
		t.Fatalf("retained = %d, want 3", len(all))
	}
	for i, want := range []float64{3, 4, 5} {
		if all[i].Score != want {
			t.Errorf("slot %d score = %.0f, want %.0f", i, all[i].Score, want)
		}
	}

	last := r.recent(2)
	if len(last) != 2 || last[0].Score != 4 || last[1].Score != 5 {
		t.Errorf("recent(2) = %v", last)
	}
}
