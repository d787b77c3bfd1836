package store

import "github.com/zen-systems/tiergate/pkg/schema"

// ring is a fixed-capacity outcome buffer. Once full, each push
// overwrites the oldest slot, bounding retention without any external
// store. Not safe for concurrent use; callers hold their own lock.
type ring struct {
	buf  []schema.Outcome
	head int // next write position
	n    int // occupied slots
}

func newRing(size int) *ring {
	if size <= 0 {
		size = DefaultRetention
	}
	return &ring{buf: make([]schema.Outcome, size)}
}

func (r *ring) push(o schema.Outcome) {
	r.buf[r.head] = o
	r.head = (r.head + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

// recent returns up to limit of the newest outcomes in chronological
// order. limit <= 0 means everything retained.
func (r *ring) recent(limit int) []schema.Outcome {
	if limit <= 0 || limit > r.n {
		limit = r.n
	}
	out := make([]schema.Outcome, 0, limit)
	start := r.head - limit
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < limit; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}
