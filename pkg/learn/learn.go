// Package learn turns consultation history into routing calibration
// proposals. A proposal is never applied silently: Apply is the
// explicit adoption step, and each cycle moves boundaries and weights
// by at most one bounded step, so a single bad batch cannot drag the
// calibration far.
package learn

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zen-systems/tiergate/pkg/router"
	"github.com/zen-systems/tiergate/pkg/schema"
)

// DefaultBatch is the number of fresh outcomes required before an
// adjustment cycle runs.
const DefaultBatch = 25

// Adjustment step bounds per cycle.
const (
	boundaryStep   = 0.1
	weightStep     = 0.02
	weightCap      = 0.35
	minTierSample  = 10
	escalationHot  = 0.25
	escalationCold = 0.05
)

// Learner derives calibration proposals from outcome history.
type Learner struct {
	batch int
	log   *zap.Logger
}

// New builds a learner. batch <= 0 selects DefaultBatch; a nil logger
// is replaced with a no-op.
func New(batch int, log *zap.Logger) *Learner {
	if batch <= 0 {
		batch = DefaultBatch
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Learner{batch: batch, log: log}
}

// Batch returns the adjustment cycle size.
func (l *Learner) Batch() int { return l.batch }

// Proposal is a pending calibration change. It carries the evidence
// (rationale per adjustment) and a projected impact over the history
// it was derived from.
type Proposal struct {
	ID             string             `json:"id"`
	Calibration    router.Calibration `json:"calibration"`
	Rationale      []string           `json:"rationale"`
	ExpectedImpact string             `json:"expected_impact"`
	BasedOn        int                `json:"based_on"`
	CreatedAt      time.Time          `json:"created_at"`
}

// Apply adopts the proposal on the classifier. This is the only path
// by which learned state reaches routing.
func (p *Proposal) Apply(c *router.Classifier, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if err := c.SetCalibration(p.Calibration); err != nil {
		return fmt.Errorf("apply proposal %s: %w", p.ID, err)
	}
	log.Info("calibration proposal applied",
		zap.String("proposal", p.ID),
		zap.Int("based_on", p.BasedOn),
		zap.Strings("rationale", p.Rationale))
	return nil
}

// Propose derives a calibration adjustment from history against the
// current calibration. Returns nil when history is below the batch
// size or no adjustment is warranted. Cache hits are excluded; they
// replay old consultations and carry no new signal.
func (l *Learner) Propose(history []schema.Outcome, current router.Calibration) *Proposal {
	fresh := freshOutcomes(history)
	if len(fresh) < l.batch {
		return nil
	}

	cal := current
	var rationale []string

	for _, tier := range []schema.Tier{schema.TierDirect, schema.Tier1, schema.Tier2} {
		outs := outcomesAt(fresh, tier)
		if len(outs) < minTierSample {
			continue
		}
		rate := escalationRate(outs)
		bound := boundaryFor(cal.Boundaries, tier)

		switch {
		case rate > escalationHot:
			next := bound - boundaryStep
			cal.Boundaries = withBoundary(cal.Boundaries, tier, next)
			rationale = append(rationale, fmt.Sprintf(
				"%s escalated %.0f%% of %d consultations; lowering its upper boundary %.2f to %.2f",
				tier, rate*100, len(outs), bound, next))
		case rate < escalationCold && meanGateScore(outs) >= schema.ExcellentThreshold:
			next := bound + boundaryStep
			cal.Boundaries = withBoundary(cal.Boundaries, tier, next)
			rationale = append(rationale, fmt.Sprintf(
				"%s resolved %.0f%% of %d consultations without escalation at mean gate score %.2f; raising its upper boundary %.2f to %.2f",
				tier, (1-rate)*100, len(outs), meanGateScore(outs), bound, next))
		}
	}

	if shift := l.weightShift(fresh, cal.Weights); shift != nil {
		cal.Weights = shift.weights
		rationale = append(rationale, shift.rationale)
	}

	if len(rationale) == 0 {
		return nil
	}
	if err := cal.Validate(); err != nil {
		l.log.Warn("calibration proposal discarded", zap.Error(err))
		return nil
	}

	return &Proposal{
		ID:             uuid.NewString(),
		Calibration:    cal,
		Rationale:      rationale,
		ExpectedImpact: expectedImpact(fresh, current, cal),
		BasedOn:        len(fresh),
		CreatedAt:      time.Now().UTC(),
	}
}

type weightAdjustment struct {
	weights   router.Weights
	rationale string
}

// weightShift attributes escalations to the dimension that runs
// hottest across escalated consultations and moves one step of weight
// onto it from the coldest adjustable dimension.
func (l *Learner) weightShift(fresh []schema.Outcome, w router.Weights) *weightAdjustment {
	var escalated []schema.Outcome
	for _, o := range fresh {
		if o.Escalations >= 1 && o.Vector != (schema.ComplexityVector{}) {
			escalated = append(escalated, o)
		}
	}
	if len(escalated) < l.batch/4 {
		return nil
	}

	means := make(map[string]float64, len(schema.DimensionOrder))
	for _, dim := range schema.DimensionOrder {
		sum := 0
		for _, o := range escalated {
			sum += o.Vector.Get(dim)
		}
		means[dim] = float64(sum) / float64(len(escalated))
	}

	hot, cold := "", ""
	for _, dim := range schema.DimensionOrder {
		if hot == "" || means[dim] > means[hot] {
			hot = dim
		}
		// Donor must keep a workable weight after the step.
		if w.Get(dim) >= weightStep+0.01 && (cold == "" || means[dim] < means[cold]) {
			cold = dim
		}
	}
	if hot == "" || cold == "" || hot == cold || w.Get(hot)+weightStep > weightCap {
		return nil
	}

	next := setWeight(w, hot, w.Get(hot)+weightStep)
	next = setWeight(next, cold, next.Get(cold)-weightStep)
	return &weightAdjustment{
		weights: next,
		rationale: fmt.Sprintf(
			"dimension %s averaged %.1f across %d escalated consultations; shifting %.2f weight from %s to %s",
			hot, means[hot], len(escalated), weightStep, cold, hot),
	}
}

// expectedImpact replays history against the proposed calibration and
// counts re-routed consultations. Scores are re-projected from the
// stored vector; records without one keep their original score, so
// only boundary moves affect them.
func expectedImpact(fresh []schema.Outcome, current, next router.Calibration) string {
	moved := 0
	for _, o := range fresh {
		oldTier := current.Boundaries.TierFor(o.Score)
		adj := o.Score - projectedScore(o.Vector, current.Weights)
		score := projectedScore(o.Vector, next.Weights) + adj
		if score > 10 {
			score = 10
		}
		if next.Boundaries.TierFor(score) != oldTier {
			moved++
		}
	}
	return fmt.Sprintf("%d of %d recent consultations (%d%%) would route to a different tier",
		moved, len(fresh), moved*100/len(fresh))
}

func projectedScore(v schema.ComplexityVector, w router.Weights) float64 {
	score := 0.0
	for _, dim := range schema.DimensionOrder {
		score += w.Get(dim) * float64(v.Get(dim))
	}
	return score
}

func freshOutcomes(history []schema.Outcome) []schema.Outcome {
	out := make([]schema.Outcome, 0, len(history))
	for _, o := range history {
		if !o.FromCache {
			out = append(out, o)
		}
	}
	return out
}

func outcomesAt(history []schema.Outcome, tier schema.Tier) []schema.Outcome {
	var out []schema.Outcome
	for _, o := range history {
		if o.Tier == tier {
			out = append(out, o)
		}
	}
	return out
}

func escalationRate(outs []schema.Outcome) float64 {
	if len(outs) == 0 {
		return 0
	}
	n := 0
	for _, o := range outs {
		if o.Escalations >= 1 {
			n++
		}
	}
	return float64(n) / float64(len(outs))
}

func meanGateScore(outs []schema.Outcome) float64 {
	if len(outs) == 0 {
		return 0
	}
	sum := 0.0
	for _, o := range outs {
		sum += o.GateScore
	}
	return sum / float64(len(outs))
}

func boundaryFor(b router.Boundaries, tier schema.Tier) float64 {
	switch tier {
	case schema.TierDirect:
		return b.Direct
	case schema.Tier1:
		return b.Tier1
	default:
		return b.Tier2
	}
}

func withBoundary(b router.Boundaries, tier schema.Tier, v float64) router.Boundaries {
	switch tier {
	case schema.TierDirect:
		b.Direct = v
	case schema.Tier1:
		b.Tier1 = v
	default:
		b.Tier2 = v
	}
	return b
}

func setWeight(w router.Weights, dim string, v float64) router.Weights {
	switch dim {
	case schema.DimScope:
		w.Scope = v
	case schema.DimTechnical:
		w.Technical = v
	case schema.DimDomain:
		w.Domain = v
	case schema.DimRisk:
		w.Risk = v
	case schema.DimTemporal:
		w.Temporal = v
	case schema.DimStakeholder:
		w.Stakeholder = v
	case schema.DimUncertainty:
		w.Uncertainty = v
	case schema.DimDependency:
		w.Dependency = v
	}
	return w
}
