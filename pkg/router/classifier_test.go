package router

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/zen-systems/tiergate/pkg/config"
	"github.com/zen-systems/tiergate/pkg/schema"
)

func newTestClassifier() (*Scorer, *Classifier) {
	s := NewScorer(config.DefaultScoringConfig())
	return s, NewClassifier(s.Rules())
}

func TestClassifier_SimpleTaskRoutesDirect(t *testing.T) {
	s, c := newTestClassifier()
	task := schema.NewTask("Fix memory leak in session cleanup")

	decision := c.Classify(s.Score(task), task)

	if decision.Tier != schema.TierDirect {
		t.Errorf("tier = %s, want DIRECT (score %.2f)", decision.Tier, decision.NumericScore)
	}
	if decision.Confidence < 0.7 {
		t.Errorf("confidence = %.2f, want >= 0.7", decision.Confidence)
	}
	if len(decision.Reasoning) != 1 || !strings.Contains(decision.Reasoning[0], "direct-implementation-suitable") {
		t.Errorf("reasoning = %v, want single direct-implementation reason", decision.Reasoning)
	}
	if decision.Domain != "backend" {
		t.Errorf("domain = %q, want backend", decision.Domain)
	}
}

func TestClassifier_EnterpriseTaskRoutesTier3(t *testing.T) {
	s, c := newTestClassifier()
	task := schema.NewTask("Design enterprise-wide zero-trust security architecture across 5 business units with regulatory compliance")

	decision := c.Classify(s.Score(task), task)

	if decision.Tier != schema.Tier3 {
		t.Errorf("tier = %s, want TIER_3 (score %.2f)", decision.Tier, decision.NumericScore)
	}
	if len(decision.Reasoning) == 0 {
		t.Error("reasoning must not be empty")
	}
	if decision.Domain != "security" {
		t.Errorf("domain = %q, want security", decision.Domain)
	}
	if err := decision.Validate(); err != nil {
		t.Errorf("decision should validate: %v", err)
	}
}

func TestClassifier_TierBoundaries(t *testing.T) {
	b := DefaultBoundaries()

	tests := []struct {
		score float64
		want  schema.Tier
	}{
		{0.0, schema.TierDirect},
		{3.5, schema.TierDirect},
		{3.51, schema.Tier1},
		{6.5, schema.Tier1},
		{6.51, schema.Tier2},
		{8.5, schema.Tier2},
		{8.51, schema.Tier3},
		{10.0, schema.Tier3},
	}

	for _, tt := range tests {
		if got := b.TierFor(tt.score); got != tt.want {
			t.Errorf("TierFor(%.2f) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestClassifier_ContextualAdjustments(t *testing.T) {
	tests := []struct {
		name  string
		vec   schema.ComplexityVector
		bonus float64
	}{
		{
			"risk and uncertainty",
			schema.ComplexityVector{Risk: 9, Uncertainty: 8, Scope: 1, Technical: 1, Domain: 1, Temporal: 1, Stakeholder: 1, Dependency: 1},
			1.0,
		},
		{
			"dependency and stakeholder",
			schema.ComplexityVector{Dependency: 9, Stakeholder: 7, Scope: 1, Technical: 1, Domain: 1, Risk: 1, Temporal: 1, Uncertainty: 1},
			0.5,
		},
		{
			"technical and domain",
			schema.ComplexityVector{Technical: 9, Domain: 9, Scope: 1, Risk: 1, Temporal: 1, Stakeholder: 1, Uncertainty: 1, Dependency: 1},
			0.5,
		},
		{
			"no adjustment",
			schema.ComplexityVector{Scope: 5, Technical: 5, Domain: 5, Risk: 5, Temporal: 5, Stakeholder: 5, Uncertainty: 5, Dependency: 5},
			0.0,
		},
	}

	w := DefaultWeights()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := weightedScore(tt.vec, w)
			got := applyAdjustments(base, tt.vec)
			want := base + tt.bonus
			if want > 10 {
				want = 10
			}
			if diff := got - want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("adjusted = %.3f, want %.3f", got, want)
			}
		})
	}
}

func TestClassifier_TierMonotonicity(t *testing.T) {
	_, c := newTestClassifier()
	task := schema.NewTask("synthetic vector comparison")
	rng := rand.New(rand.NewSource(7))

	randVec := func() schema.ComplexityVector {
		return schema.ComplexityVector{
			Scope:       1 + rng.Intn(10),
			Technical:   1 + rng.Intn(10),
			Domain:      1 + rng.Intn(10),
			Risk:        1 + rng.Intn(10),
			Temporal:    1 + rng.Intn(10),
			Stakeholder: 1 + rng.Intn(10),
			Uncertainty: 1 + rng.Intn(10),
			Dependency:  1 + rng.Intn(10),
		}.Clamped()
	}
	raise := func(v schema.ComplexityVector) schema.ComplexityVector {
		bump := func(n int) int {
			n += rng.Intn(3)
			if n > 10 {
				return 10
			}
			return n
		}
		v.Scope = bump(v.Scope)
		v.Technical = bump(v.Technical)
		v.Domain = bump(v.Domain)
		v.Risk = bump(v.Risk)
		v.Temporal = bump(v.Temporal)
		v.Stakeholder = bump(v.Stakeholder)
		v.Uncertainty = bump(v.Uncertainty)
		v.Dependency = bump(v.Dependency)
		return v
	}

	for i := 0; i < 500; i++ {
		lo := randVec()
		hi := raise(lo)
		if !lo.DominatedBy(hi) {
			t.Fatal("test setup broken: lo not dominated by hi")
		}
		tierLo := c.Classify(lo, task).Tier
		tierHi := c.Classify(hi, task).Tier
		if tierLo > tierHi {
			t.Fatalf("monotonicity violated: %+v -> %s but %+v -> %s", lo, tierLo, hi, tierHi)
		}
	}
}

func TestClassifier_ReasoningStableOrder(t *testing.T) {
	_, c := newTestClassifier()
	task := schema.NewTask("synthetic")
	vec := schema.ComplexityVector{
		Scope: 8, Technical: 9, Domain: 9, Risk: 8,
		Temporal: 8, Stakeholder: 8, Uncertainty: 9, Dependency: 8,
	}

	first := c.Classify(vec, task).Reasoning
	if len(first) != 8 {
		t.Fatalf("expected 8 reasons, got %d: %v", len(first), first)
	}
	for i := 0; i < 10; i++ {
		again := c.Classify(vec, task).Reasoning
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("reasoning order unstable at %d: %q vs %q", j, first[j], again[j])
			}
		}
	}
	// Canonical dimension order: scope line first, dependency line last.
	if !strings.HasPrefix(first[0], "scope") {
		t.Errorf("first reason %q, want scope line", first[0])
	}
	if !strings.HasPrefix(first[7], "dependency") {
		t.Errorf("last reason %q, want dependency line", first[7])
	}
}

func TestClassifier_ConfidenceAdjustments(t *testing.T) {
	_, c := newTestClassifier()
	quiet := schema.ComplexityVector{Scope: 4, Technical: 4, Domain: 4, Risk: 4, Temporal: 4, Stakeholder: 4, Uncertainty: 4, Dependency: 4}

	tests := []struct {
		name string
		vec  schema.ComplexityVector
		desc string
		want float64
	}{
		{"short description", quiet, "fix it", 0.6},
		{"neutral", quiet, "rework the export job scheduling logic", 0.8},
		{"high uncertainty", func() schema.ComplexityVector { v := quiet; v.Uncertainty = 8; return v }(), "rework the export job scheduling logic", 0.5},
		{"low uncertainty", func() schema.ComplexityVector { v := quiet; v.Uncertainty = 1; return v }(), "rework the export job scheduling logic", 0.9},
		{"long description", quiet, strings.Repeat("rework the export job scheduling logic ", 9), 0.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := schema.NewTask(tt.desc)
			got := c.Classify(tt.vec, task).Confidence
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("confidence = %.2f, want %.2f", got, tt.want)
			}
		})
	}
}

func TestClassifier_DegradedVectorLowConfidence(t *testing.T) {
	_, c := newTestClassifier()
	task := schema.NewTask("")

	decision := c.Classify(schema.FloorVector(), task)
	if decision.Confidence != 0.3 {
		t.Errorf("degraded confidence = %.2f, want 0.3", decision.Confidence)
	}
	if decision.Tier != schema.TierDirect {
		t.Errorf("degraded tier = %s, want DIRECT", decision.Tier)
	}
}

func TestClassifier_SetCalibration(t *testing.T) {
	_, c := newTestClassifier()

	bad := DefaultCalibration()
	bad.Weights.Scope = 0.9
	if err := c.SetCalibration(bad); err == nil {
		t.Error("expected rejection of weights not summing to 1")
	}

	crossed := DefaultCalibration()
	crossed.Boundaries = Boundaries{Direct: 7, Tier1: 6, Tier2: 8}
	if err := c.SetCalibration(crossed); err == nil {
		t.Error("expected rejection of non-increasing boundaries")
	}

	good := DefaultCalibration()
	good.Boundaries = Boundaries{Direct: 3.0, Tier1: 6.0, Tier2: 8.0}
	if err := c.SetCalibration(good); err != nil {
		t.Fatalf("valid calibration rejected: %v", err)
	}
	if got := c.Calibration().Boundaries.Direct; got != 3.0 {
		t.Errorf("calibration not applied: direct boundary %.2f", got)
	}
}

func TestClassifier_SetAdjustments(t *testing.T) {
	_, c := newTestClassifier()
	task := schema.NewTask("risky exploratory work")
	vec := schema.ComplexityVector{Scope: 6, Technical: 6, Domain: 6, Risk: 9, Temporal: 1, Stakeholder: 1, Uncertainty: 8, Dependency: 1}

	withBonus := c.Classify(vec, task)
	if withBonus.Tier != schema.Tier2 {
		t.Fatalf("expected TIER_2 with bonuses on, got %s (score %.2f)", withBonus.Tier, withBonus.NumericScore)
	}

	c.SetAdjustments(false)
	raw := c.Classify(vec, task)
	if raw.Tier != schema.Tier1 {
		t.Errorf("expected TIER_1 with bonuses off, got %s (score %.2f)", raw.Tier, raw.NumericScore)
	}
	if diff := withBonus.NumericScore - raw.NumericScore - 1.0; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("bonus delta = %.3f, want 1.0", withBonus.NumericScore-raw.NumericScore)
	}

	c.SetAdjustments(true)
	if got := c.Classify(vec, task); got.Tier != schema.Tier2 {
		t.Errorf("expected TIER_2 after re-enabling, got %s", got.Tier)
	}
}
