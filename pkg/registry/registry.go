package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zen-systems/tiergate/pkg/schema"
	"github.com/zen-systems/tiergate/pkg/specialist"
)

// Registry holds the specialist set for one engine instance.
// Registration is a start-up step closed by Freeze, the single write
// barrier; after it the registry is read-only and lookups are
// contention-free.
type Registry struct {
	mu      sync.RWMutex
	frozen  bool
	byID    map[string]specialist.Specialist
	byBand  map[band][]specialist.Specialist
	domains map[string]int
}

// band is one (domain, tier) lookup cell.
type band struct {
	domain string
	tier   schema.Tier
}

func New() *Registry {
	return &Registry{
		byID:    make(map[string]specialist.Specialist),
		byBand:  make(map[band][]specialist.Specialist),
		domains: make(map[string]int),
	}
}

// Register adds a specialist. It fails after Freeze and on duplicate
// ids; both indicate wiring mistakes, not runtime conditions.
func (r *Registry) Register(s specialist.Specialist) error {
	if s == nil {
		return fmt.Errorf("cannot register nil specialist")
	}
	id := strings.TrimSpace(s.ID())
	domain := strings.ToLower(strings.TrimSpace(s.Domain()))
	if id == "" {
		return fmt.Errorf("specialist id required")
	}
	if domain == "" {
		return fmt.Errorf("specialist %s: domain required", id)
	}
	if !s.Tier().Valid() {
		return fmt.Errorf("specialist %s: invalid tier", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("registry frozen: specialist %s must register before start-up completes", id)
	}
	if _, exists := r.byID[id]; exists {
		return fmt.Errorf("specialist %s already registered", id)
	}

	key := band{domain: domain, tier: s.Tier()}
	r.byID[id] = s
	r.byBand[key] = append(r.byBand[key], s)
	r.domains[domain]++
	return nil
}

// Freeze closes registration. Idempotent.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Find resolves a specialist for (domain, tier). Domain resolution may
// fall back to the general band when the requested domain has no
// specialists registered at any tier; tier never falls back, because
// tier is a cost boundary, not a preference. Among candidates, the
// largest expertise overlap with the task's detected terms wins, with
// ids breaking ties.
func (r *Registry) Find(fp schema.Fingerprint, domain string, tier schema.Tier, terms []string) (specialist.Specialist, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		domain = "general"
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := r.byBand[band{domain: domain, tier: tier}]
	if len(candidates) == 0 && r.domains[domain] == 0 && domain != "general" {
		candidates = r.byBand[band{domain: "general", tier: tier}]
	}
	if len(candidates) == 0 {
		return nil, &schema.NoSpecialistError{Fingerprint: fp, Domain: domain, Tier: tier}
	}
	return pick(candidates, terms), nil
}

// Get returns a specialist by id, for handoff criteria that name their
// escalation target.
func (r *Registry) Get(id string) (specialist.Specialist, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

// Specialists returns the registered set ordered by tier, then domain,
// then id.
func (r *Registry) Specialists() []specialist.Specialist {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]specialist.Specialist, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tier() != out[j].Tier() {
			return out[i].Tier() < out[j].Tier()
		}
		if out[i].Domain() != out[j].Domain() {
			return out[i].Domain() < out[j].Domain()
		}
		return out[i].ID() < out[j].ID()
	})
	return out
}

// pick ranks candidates by expertise overlap, ties to the smaller id.
// Deterministic by construction: identical inputs always elect the
// same specialist.
func pick(candidates []specialist.Specialist, terms []string) specialist.Specialist {
	best := candidates[0]
	bestOverlap := overlap(best.Expertise(), terms)
	for _, c := range candidates[1:] {
		o := overlap(c.Expertise(), terms)
		if o > bestOverlap || (o == bestOverlap && c.ID() < best.ID()) {
			best, bestOverlap = c, o
		}
	}
	return best
}

func overlap(expertise, terms []string) int {
	if len(expertise) == 0 || len(terms) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[strings.ToLower(t)] = struct{}{}
	}
	n := 0
	for _, e := range expertise {
		if _, ok := set[strings.ToLower(e)]; ok {
			n++
		}
	}
	return n
}

// DefaultSet builds a registry covering every tier under the general
// domain: three generalists and the architect. The registry is left
// unfrozen so callers can add domain specialists before the barrier.
func DefaultSet() (*Registry, error) {
	r := New()

	ladder := []struct {
		id        string
		tier      schema.Tier
		expertise []string
	}{
		{"generalist-direct", schema.TierDirect, []string{"memory leak", "race condition", "cache"}},
		{"generalist-tier1", schema.Tier1, []string{"api", "database", "message queue"}},
		{"generalist-tier2", schema.Tier2, []string{"encryption", "tls", "load balancer", "sharding"}},
	}
	for _, entry := range ladder {
		g, err := specialist.NewGeneralist(entry.id, "general", entry.tier, entry.expertise...)
		if err != nil {
			return nil, err
		}
		if err := r.Register(g); err != nil {
			return nil, err
		}
	}

	arch, err := specialist.NewArchitect("architect", "general", "zero-trust", "event-driven", "microservices")
	if err != nil {
		return nil, err
	}
	if err := r.Register(arch); err != nil {
		return nil, err
	}
	return r, nil
}
