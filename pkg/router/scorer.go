package router

import (
	"strconv"
	"strings"

	"github.com/zen-systems/tiergate/pkg/config"
	"github.com/zen-systems/tiergate/pkg/schema"
)

// Scorer turns a task into its eight-dimension complexity vector.
// Scoring is pure: identical task+context always yields an identical
// vector, which cache keys and tests depend on.
type Scorer struct {
	rules *RuleSet
}

func NewScorer(cfg *config.ScoringConfig) *Scorer {
	return &Scorer{rules: NewRuleSet(cfg)}
}

// Rules exposes the compiled rule set for the classifier's terminology
// lookup and for score explanations.
func (s *Scorer) Rules() *RuleSet {
	return s.rules
}

// Score computes the complexity vector. Malformed input never errors;
// it floors every dimension and marks the vector degraded.
func (s *Scorer) Score(task schema.Task) schema.ComplexityVector {
	if task.Malformed() {
		return schema.FloorVector()
	}

	text := strings.ToLower(task.Text())
	return schema.ComplexityVector{
		Scope:       s.dimensionScore(text, schema.DimScope) + s.scopeStructural(text, task),
		Technical:   s.dimensionScore(text, schema.DimTechnical),
		Domain:      s.dimensionScore(text, schema.DimDomain),
		Risk:        s.dimensionScore(text, schema.DimRisk),
		Temporal:    s.dimensionScore(text, schema.DimTemporal) + urgencyBonus(task),
		Stakeholder: s.dimensionScore(text, schema.DimStakeholder) + s.stakeholderStructural(text, task),
		Uncertainty: s.dimensionScore(text, schema.DimUncertainty) + questionBonus(text),
		Dependency:  s.dimensionScore(text, schema.DimDependency) + dependencyBonus(task),
	}.Clamped()
}

// Explain returns the fired rules per dimension for one task, in
// canonical dimension order. Used by the CLI, not the hot path.
func (s *Scorer) Explain(task schema.Task) map[string][]RuleHit {
	if task.Malformed() {
		return nil
	}
	text := strings.ToLower(task.Text())
	out := make(map[string][]RuleHit, len(schema.DimensionOrder))
	for _, dim := range schema.DimensionOrder {
		if hits := s.rules.MatchDimension(text, dim); len(hits) > 0 {
			out[dim] = hits
		}
	}
	return out
}

// DomainFor resolves the routing domain: an explicit context hint wins,
// otherwise the domain table's best keyword match, otherwise "general".
func (s *Scorer) DomainFor(task schema.Task) string {
	if d := task.Domain(); d != "" {
		return d
	}
	if task.Malformed() {
		return "general"
	}
	return s.rules.DomainFor(strings.ToLower(task.Text()))
}

// Domains returns every domain the task's text touches, primary first.
// An explicit context hint is always primary. Specialists use the tail
// for cross-domain impact detection.
func (s *Scorer) Domains(task schema.Task) []string {
	primary := s.DomainFor(task)
	out := []string{primary}
	if task.Malformed() {
		return out
	}
	for _, d := range s.rules.DomainsFor(strings.ToLower(task.Text())) {
		if d != primary {
			out = append(out, d)
		}
	}
	return out
}

// Terms returns the recognized technical terms present in the task
// text. The registry uses them to rank specialists by expertise
// overlap.
func (s *Scorer) Terms(task schema.Task) []string {
	if task.Malformed() {
		return nil
	}
	return s.rules.TermsFor(strings.ToLower(task.Text()))
}

// dimensionScore is base 1 plus the deltas of every fired rule.
func (s *Scorer) dimensionScore(text, dim string) int {
	score := 1
	for _, hit := range s.rules.MatchDimension(text, dim) {
		score += hit.Delta
	}
	return score
}

func (s *Scorer) scopeStructural(text string, task schema.Task) int {
	bonus := 0
	if s.rules.GroupCountMentioned(text) {
		bonus++
	}
	switch n := len(task.Requirements); {
	case n >= 5:
		bonus += 2
	case n >= 3:
		bonus++
	}
	return bonus
}

func (s *Scorer) stakeholderStructural(text string, task schema.Task) int {
	bonus := 0
	if s.rules.GroupCountMentioned(text) {
		bonus += 2
	}
	if raw := task.CtxValue(schema.CtxStakeholderCount); raw != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			switch {
			case n >= 8:
				bonus += 4
			case n >= 4:
				bonus += 3
			case n >= 2:
				bonus++
			}
		}
	}
	return bonus
}

func urgencyBonus(task schema.Task) int {
	switch strings.ToLower(task.CtxValue(schema.CtxUrgency)) {
	case "high", "critical":
		return 4
	case "medium":
		return 2
	default:
		return 0
	}
}

// questionBonus adds uncertainty for literal question marks, capped so
// a question-heavy task cannot saturate the dimension on its own.
func questionBonus(text string) int {
	n := strings.Count(text, "?")
	if n > 3 {
		n = 3
	}
	return n
}

func dependencyBonus(task schema.Task) int {
	if task.CtxFlag(schema.CtxExistingSystem) {
		return 2
	}
	return 0
}
