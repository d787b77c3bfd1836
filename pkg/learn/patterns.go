package learn

import (
	"sort"

	"github.com/zen-systems/tiergate/pkg/schema"
)

// PatternKey identifies a recurring (domain, tier) work pattern.
type PatternKey struct {
	Domain string      `json:"domain"`
	Tier   schema.Tier `json:"tier"`
}

// PatternStats aggregates outcome history for one pattern. Gate and
// escalation figures cover fresh consultations only; CacheHits counts
// replays separately.
type PatternStats struct {
	Count          int     `json:"count"`
	CacheHits      int     `json:"cache_hits"`
	MeanGateScore  float64 `json:"mean_gate_score"`
	EscalationRate float64 `json:"escalation_rate"`
}

// Aggregate folds history into per-(domain, tier) stats.
func Aggregate(history []schema.Outcome) map[PatternKey]PatternStats {
	type acc struct {
		count, cacheHits, escalated int
		gateSum                     float64
	}
	accs := make(map[PatternKey]*acc)

	for _, o := range history {
		key := PatternKey{Domain: o.Domain, Tier: o.Tier}
		a := accs[key]
		if a == nil {
			a = &acc{}
			accs[key] = a
		}
		if o.FromCache {
			a.cacheHits++
			continue
		}
		a.count++
		a.gateSum += o.GateScore
		if o.Escalations >= 1 {
			a.escalated++
		}
	}

	stats := make(map[PatternKey]PatternStats, len(accs))
	for key, a := range accs {
		s := PatternStats{Count: a.count, CacheHits: a.cacheHits}
		if a.count > 0 {
			s.MeanGateScore = a.gateSum / float64(a.count)
			s.EscalationRate = float64(a.escalated) / float64(a.count)
		}
		stats[key] = s
	}
	return stats
}

// SortedKeys returns pattern keys ordered by tier then domain for
// stable display.
func SortedKeys(stats map[PatternKey]PatternStats) []PatternKey {
	keys := make([]PatternKey, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Tier != keys[j].Tier {
			return keys[i].Tier < keys[j].Tier
		}
		return keys[i].Domain < keys[j].Domain
	})
	return keys
}
