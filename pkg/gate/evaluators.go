package gate

import (
	"fmt"
	"strings"

	"github.com/zen-systems/tiergate/pkg/schema"
	"github.com/zen-systems/tiergate/pkg/specialist"
)

// Default dimension names.
const (
	DimExpertiseAlignment = "expertise-alignment"
	DimCompleteness       = "recommendation-completeness"
	DimViability          = "implementation-viability"
	DimRiskCoverage       = "risk-coverage"
)

// DefaultEvaluators returns the four standard dimensions with equal
// weight, making the default overall score a plain mean.
func DefaultEvaluators() []Evaluator {
	return []Evaluator{
		ExpertiseAlignment{},
		Completeness{},
		Viability{},
		RiskCoverage{},
	}
}

// ExpertiseAlignment checks that the recommending specialist actually
// fits the work: tier consistency, expertise relevance to the task
// text, and the specialist's own confidence.
type ExpertiseAlignment struct{}

func (ExpertiseAlignment) Name() string    { return DimExpertiseAlignment }
func (ExpertiseAlignment) Weight() float64 { return 0.25 }

func (ExpertiseAlignment) Evaluate(rec schema.Recommendation, task schema.Task, sp specialist.Specialist) (float64, string) {
	score := 0.0
	if rec.Tier == sp.Tier() {
		score += 0.4
	}

	text := strings.ToLower(task.Text())
	expertise := sp.Expertise()
	switch {
	case len(expertise) == 0:
		score += 0.3
	case expertiseHits(text, expertise) > 0:
		score += 0.3
	default:
		score += 0.15
	}

	if rec.Confidence >= 0.7 {
		score += 0.3
	} else if rec.Confidence >= 0.5 {
		score += 0.15
	}
	return score, fmt.Sprintf("consult a specialist whose expertise matches the task (recommending tier %s, confidence %.2f)", rec.Tier, rec.Confidence)
}

func expertiseHits(text string, expertise []string) int {
	n := 0
	for _, e := range expertise {
		if strings.Contains(text, strings.ToLower(e)) {
			n++
		}
	}
	return n
}

// Completeness checks the recommendation carries everything a caller
// needs to act: a summary, a workable action list, and a timeline.
type Completeness struct{}

func (Completeness) Name() string    { return DimCompleteness }
func (Completeness) Weight() float64 { return 0.25 }

func (Completeness) Evaluate(rec schema.Recommendation, _ schema.Task, _ specialist.Specialist) (float64, string) {
	score := 0.0
	if strings.TrimSpace(rec.Summary) != "" {
		score += 0.3
	}
	switch {
	case len(rec.Actions) >= 3:
		score += 0.4
	case len(rec.Actions) >= 1:
		score += 0.2
	}
	if strings.TrimSpace(rec.Timeline) != "" {
		score += 0.3
	}
	return score, "complete the recommendation: summary, at least three actions, and a timeline"
}

// Viability checks the plan is executable: a bounded timeline and
// actions concrete enough to start on.
type Viability struct{}

func (Viability) Name() string    { return DimViability }
func (Viability) Weight() float64 { return 0.25 }

func (Viability) Evaluate(rec schema.Recommendation, _ schema.Task, _ specialist.Specialist) (float64, string) {
	score := 0.0
	timeline := strings.ToLower(rec.Timeline)
	if strings.Contains(timeline, "day") || strings.Contains(timeline, "week") || strings.Contains(timeline, "month") {
		score += 0.4
	}

	concrete := len(rec.Actions) > 0
	for _, a := range rec.Actions {
		if strings.TrimSpace(a) == "" || len(a) > 200 {
			concrete = false
			break
		}
	}
	if concrete {
		score += 0.3
	}

	if rec.Confidence >= 0.5 {
		score += 0.3
	}
	return score, "make the plan executable: a bounded timeline and concrete, scoped actions"
}

// riskMarkers are task-text signals that an empty risk list is a gap
// rather than an accurate reading.
var riskMarkers = []string{
	"security", "production", "compliance", "outage", "leak",
	"breach", "regulatory", "incident", "payment", "migration",
}

// RiskCoverage checks listed risks come with mitigations, and that a
// risk-flavored task is not handed back with an empty risk list.
type RiskCoverage struct{}

func (RiskCoverage) Name() string    { return DimRiskCoverage }
func (RiskCoverage) Weight() float64 { return 0.25 }

func (RiskCoverage) Evaluate(rec schema.Recommendation, task schema.Task, _ specialist.Specialist) (float64, string) {
	if len(rec.Risks) == 0 {
		text := strings.ToLower(task.Text())
		for _, marker := range riskMarkers {
			if strings.Contains(text, marker) {
				return 0.3, "identify the risks this task carries and how each is mitigated"
			}
		}
		return 0.8, "confirm the task genuinely carries no delivery risk"
	}

	score := 0.6
	mitigated := 0
	for _, risk := range rec.Risks {
		if hasMitigation(rec.Actions, risk) {
			mitigated++
		}
	}
	score += 0.4 * float64(mitigated) / float64(len(rec.Risks))
	return score, "pair every identified risk with a mitigation action"
}

func hasMitigation(actions []string, risk string) bool {
	needle := strings.ToLower(risk)
	for _, a := range actions {
		if strings.Contains(strings.ToLower(a), needle) {
			return true
		}
	}
	return false
}
