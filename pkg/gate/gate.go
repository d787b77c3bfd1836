package gate

import (
	"github.com/zen-systems/tiergate/pkg/schema"
	"github.com/zen-systems/tiergate/pkg/specialist"
)

// Evaluator scores one quality dimension of a recommendation in the
// range 0..1 and names the concrete improvement when the dimension is
// sub-threshold.
type Evaluator interface {
	// Name returns the dimension identifier.
	Name() string

	// Weight returns this dimension's share of the overall score.
	Weight() float64

	// Evaluate scores the recommendation. The improvement is consulted
	// only when the score lands under the acceptable threshold.
	Evaluate(rec schema.Recommendation, task schema.Task, sp specialist.Specialist) (float64, string)
}

// Gate is the multi-dimensional acceptance check applied to every
// recommendation before it is returned to the caller.
type Gate struct {
	evaluators []Evaluator
	acceptable float64
	excellent  float64
}

// New builds a gate over the given evaluators; none means the default
// four dimensions. Callers extend the gate by passing additional
// evaluators (maintainability, testability, observability and the
// like).
func New(evaluators ...Evaluator) *Gate {
	if len(evaluators) == 0 {
		evaluators = DefaultEvaluators()
	}
	return &Gate{
		evaluators: evaluators,
		acceptable: schema.AcceptableThreshold,
		excellent:  schema.ExcellentThreshold,
	}
}

// SetThresholds overrides the default quality bands.
func (g *Gate) SetThresholds(acceptable, excellent float64) {
	g.acceptable = acceptable
	g.excellent = excellent
}

// Assess scores the recommendation on every dimension and produces the
// verdict. The overall score is the weighted mean of present
// dimensions. A minimal verdict that persists after one revision
// (rec.Revision >= 1) signals escalationNeeded.
func (g *Gate) Assess(rec schema.Recommendation, task schema.Task, sp specialist.Specialist) schema.QualityAssessment {
	scores := make(map[string]float64, len(g.evaluators))
	var improvements []string
	var weighted, total float64

	for _, ev := range g.evaluators {
		score, improvement := ev.Evaluate(rec, task, sp)
		score = clamp01(score)
		scores[ev.Name()] = score
		weighted += ev.Weight() * score
		total += ev.Weight()
		if score < g.acceptable && improvement != "" {
			improvements = append(improvements, improvement)
		}
	}

	overall := 0.0
	if total > 0 {
		overall = weighted / total
	}

	level := g.levelFor(overall)
	return schema.QualityAssessment{
		DimensionScores:  scores,
		OverallScore:     overall,
		Level:            level,
		Passed:           overall >= g.acceptable,
		Improvements:     improvements,
		EscalationNeeded: level == schema.QualityMinimal && rec.Revision >= 1,
	}
}

func (g *Gate) levelFor(score float64) schema.QualityLevel {
	switch {
	case score >= g.excellent:
		return schema.QualityExcellent
	case score >= g.acceptable:
		return schema.QualityAcceptable
	default:
		return schema.QualityMinimal
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// EvaluatorFunc adapts a function to the Evaluator interface for
// caller-supplied dimensions.
type EvaluatorFunc struct {
	DimName   string
	DimWeight float64
	Fn        func(rec schema.Recommendation, task schema.Task, sp specialist.Specialist) (float64, string)
}

func (e EvaluatorFunc) Name() string    { return e.DimName }
func (e EvaluatorFunc) Weight() float64 { return e.DimWeight }

func (e EvaluatorFunc) Evaluate(rec schema.Recommendation, task schema.Task, sp specialist.Specialist) (float64, string) {
	return e.Fn(rec, task, sp)
}
