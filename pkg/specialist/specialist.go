package specialist

import (
	"context"

	"github.com/zen-systems/tiergate/pkg/schema"
)

// Request carries everything a specialist needs for one consultation
// step. Domains lists every domain whose keywords matched the task
// text, primary first; Handoff is non-nil when the step was reached
// through an escalation.
type Request struct {
	Task       schema.Task
	Vector     schema.ComplexityVector
	Domain     string
	Domains    []string
	Confidence float64
	Handoff    *schema.HandoffPackage
}

// Condition names a handoff trigger. The set is closed; specialists
// evaluate conditions with explicit rules, never randomness.
type Condition string

const (
	// CondOverCapacity fires when the specialist's own complexity
	// estimate exceeds what its tier is resourced for.
	CondOverCapacity Condition = "complexity-above-capacity"

	// CondCrossDomain fires when the task touches two or more domains.
	CondCrossDomain Condition = "cross-domain-impact"

	// CondHighRisk fires on critical risk exposure.
	CondHighRisk Condition = "high-risk"

	// CondArchitectural fires when deep technical and deep domain
	// complexity coincide, the signature of an architectural decision.
	CondArchitectural Condition = "architectural-decision"

	// CondLowConfidence fires when the routing confidence was too low
	// for this tier to proceed alone.
	CondLowConfidence Condition = "low-confidence"
)

// HandoffCriterion is one entry in a specialist's ordered escalation
// list. The first criterion whose condition holds wins.
type HandoffCriterion struct {
	Condition        Condition
	TargetTier       schema.Tier
	TargetSpecialist string
	Reason           string
}

// Specialist is the consultation capability contract. Implementations
// are registered once at start-up and must be safe for concurrent use.
type Specialist interface {
	ID() string
	Domain() string
	Tier() schema.Tier
	MaxComplexity() int
	Expertise() []string
	HandoffCriteria() []HandoffCriterion

	// Analyze produces a structured read of the task. Pure with respect
	// to engine state; the engine owns all cache interaction.
	Analyze(ctx context.Context, req Request) (schema.Analysis, error)

	// Recommend turns an analysis into an actionable recommendation.
	Recommend(ctx context.Context, analysis schema.Analysis, req Request) (schema.Recommendation, error)

	// EvaluateHandoff reports whether one escalation criterion holds
	// for the given analysis.
	EvaluateHandoff(criterion HandoffCriterion, analysis schema.Analysis, req Request) bool
}

// CapacityFor returns the complexity ceiling a tier is resourced for,
// aligned with the classifier's default boundaries.
func CapacityFor(tier schema.Tier) int {
	switch tier {
	case schema.TierDirect:
		return 3
	case schema.Tier1:
		return 6
	case schema.Tier2:
		return 8
	default:
		return 10
	}
}

// DefaultCriteria returns the escalation list generalists at the given
// tier start with. The architect tier has nowhere to escalate to and
// gets none.
func DefaultCriteria(tier schema.Tier) []HandoffCriterion {
	switch tier {
	case schema.TierDirect:
		return []HandoffCriterion{
			{Condition: CondOverCapacity, TargetTier: schema.Tier1,
				Reason: "estimated complexity exceeds direct-implementation capacity"},
			{Condition: CondLowConfidence, TargetTier: schema.Tier1,
				Reason: "routing confidence too low for unassisted implementation"},
		}
	case schema.Tier1:
		return []HandoffCriterion{
			{Condition: CondOverCapacity, TargetTier: schema.Tier2,
				Reason: "estimated complexity exceeds junior specialist capacity"},
			{Condition: CondHighRisk, TargetTier: schema.Tier2,
				Reason: "risk exposure requires senior specialist review"},
		}
	case schema.Tier2:
		return []HandoffCriterion{
			{Condition: CondArchitectural, TargetTier: schema.Tier3,
				Reason: "architectural decision requires architect consultation"},
			{Condition: CondCrossDomain, TargetTier: schema.Tier3,
				Reason: "cross-domain impact requires architect coordination"},
			{Condition: CondOverCapacity, TargetTier: schema.Tier3,
				Reason: "estimated complexity exceeds senior specialist capacity"},
		}
	default:
		return nil
	}
}
