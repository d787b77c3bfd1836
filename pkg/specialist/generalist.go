package specialist

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/zen-systems/tiergate/pkg/schema"
)

// Generalist is the rule-based specialist for the DIRECT, TIER_1 and
// TIER_2 bands. Output is fully deterministic unless an enricher is
// attached.
type Generalist struct {
	id        string
	domain    string
	tier      schema.Tier
	expertise []string
	criteria  []HandoffCriterion
	enricher  *ModelEnricher
}

func NewGeneralist(id, domain string, tier schema.Tier, expertise ...string) (*Generalist, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("generalist id required")
	}
	if strings.TrimSpace(domain) == "" {
		return nil, fmt.Errorf("generalist domain required")
	}
	if !tier.Valid() || tier == schema.Tier3 {
		return nil, fmt.Errorf("generalist tier %s invalid: architect handles %s", tier, schema.Tier3)
	}
	return &Generalist{
		id:        id,
		domain:    domain,
		tier:      tier,
		expertise: expertise,
		criteria:  DefaultCriteria(tier),
	}, nil
}

// SetCriteria replaces the default escalation list. Targets are not
// direction-checked here; the consultation engine rejects downward or
// sideways escalation when a criterion fires.
func (g *Generalist) SetCriteria(criteria []HandoffCriterion) {
	g.criteria = criteria
}

// UseEnricher attaches a model adapter for summary enrichment.
func (g *Generalist) UseEnricher(e *ModelEnricher) {
	g.enricher = e
}

func (g *Generalist) ID() string                          { return g.id }
func (g *Generalist) Domain() string                      { return g.domain }
func (g *Generalist) Tier() schema.Tier                   { return g.tier }
func (g *Generalist) MaxComplexity() int                  { return CapacityFor(g.tier) }
func (g *Generalist) Expertise() []string                 { return g.expertise }
func (g *Generalist) HandoffCriteria() []HandoffCriterion { return g.criteria }

func (g *Generalist) Analyze(ctx context.Context, req Request) (schema.Analysis, error) {
	est := req.Vector.Max()
	analysis := schema.Analysis{
		SpecialistID:        g.id,
		Domain:              req.Domain,
		Tier:                g.tier,
		Summary:             analysisSummary(g.tier, req.Domain, est, g.MaxComplexity()),
		Findings:            dimensionFindings(req.Vector),
		Assumptions:         baseAssumptions(req),
		RiskFactors:         riskFactors(req.Vector),
		EstimatedComplexity: est,
		CrossDomain:         secondaryDomains(req),
	}
	if g.enricher != nil {
		analysis.Summary = g.enricher.EnrichAnalysis(ctx, analysis, req)
	}
	return analysis, nil
}

func (g *Generalist) Recommend(ctx context.Context, analysis schema.Analysis, req Request) (schema.Recommendation, error) {
	actions := append([]string{}, tierBaseActions(g.tier)...)
	for _, risk := range analysis.RiskFactors {
		actions = append(actions, "mitigate: "+risk)
	}

	rec := schema.Recommendation{
		ID:           uuid.NewString(),
		SpecialistID: g.id,
		Tier:         g.tier,
		Summary: fmt.Sprintf("%s approach for %s work: %d actions over %s",
			g.tier, req.Domain, len(actions), timelineFor(analysis.EstimatedComplexity)),
		Actions:    actions,
		Risks:      append([]string{}, analysis.RiskFactors...),
		Timeline:   timelineFor(analysis.EstimatedComplexity),
		Confidence: capacityConfidence(analysis.EstimatedComplexity, g.MaxComplexity()),
	}
	if g.enricher != nil {
		rec.Summary = g.enricher.EnrichRecommendation(ctx, rec, req)
	}
	return rec, nil
}

func (g *Generalist) EvaluateHandoff(criterion HandoffCriterion, analysis schema.Analysis, req Request) bool {
	return evaluateCondition(criterion.Condition, g.MaxComplexity(), analysis, req)
}

// evaluateCondition is the shared deterministic rule set behind
// EvaluateHandoff. Unknown conditions never fire.
func evaluateCondition(cond Condition, capacity int, analysis schema.Analysis, req Request) bool {
	switch cond {
	case CondOverCapacity:
		return analysis.EstimatedComplexity > capacity
	case CondCrossDomain:
		return len(analysis.CrossDomain) >= 1
	case CondHighRisk:
		return req.Vector.Risk >= 8
	case CondArchitectural:
		return req.Vector.Technical > 8 && req.Vector.Domain > 8
	case CondLowConfidence:
		return req.Confidence < 0.5
	default:
		return false
	}
}

func analysisSummary(tier schema.Tier, domain string, est, capacity int) string {
	fit := "within"
	if est > capacity {
		fit = "above"
	}
	return fmt.Sprintf("%s assessment for %s work: estimated complexity %d/10, %s tier capacity %d",
		tier, domain, est, fit, capacity)
}

func dimensionFindings(vec schema.ComplexityVector) []string {
	labels := map[string]string{
		schema.DimScope:       "broad scope touching multiple components",
		schema.DimTechnical:   "deep technical or architectural work required",
		schema.DimDomain:      "specialized domain expertise required",
		schema.DimRisk:        "elevated risk exposure",
		schema.DimTemporal:    "tight delivery window",
		schema.DimStakeholder: "many stakeholders affected",
		schema.DimUncertainty: "requirements carry significant uncertainty",
		schema.DimDependency:  "heavy external or legacy coupling",
	}
	var findings []string
	for _, dim := range schema.DimensionOrder {
		if score := vec.Get(dim); score >= 7 {
			findings = append(findings, fmt.Sprintf("%s (%d/10)", labels[dim], score))
		}
	}
	if len(findings) == 0 {
		findings = []string{"no dimension stands out; routine work for this tier"}
	}
	return findings
}

func baseAssumptions(req Request) []string {
	var assumptions []string
	if len(req.Task.Requirements) == 0 {
		assumptions = append(assumptions, "requirements inferred from description only")
	}
	if len(req.Task.Context) == 0 {
		assumptions = append(assumptions, "no caller context supplied; assuming standard operating constraints")
	}
	if req.Handoff != nil {
		assumptions = append(assumptions, fmt.Sprintf("continuing from %s consultation: %d work items already completed",
			req.Handoff.FromTier, len(req.Handoff.Continuity.CompletedWork)))
	}
	return assumptions
}

func riskFactors(vec schema.ComplexityVector) []string {
	var risks []string
	switch {
	case vec.Risk >= 8:
		risks = append(risks, "critical production, security, or compliance exposure")
	case vec.Risk >= 5:
		risks = append(risks, "moderate delivery risk")
	}
	if vec.Dependency >= 7 {
		risks = append(risks, "external dependency failure modes")
	}
	if vec.Uncertainty >= 8 {
		risks = append(risks, "estimates unreliable under current uncertainty")
	}
	return risks
}

func secondaryDomains(req Request) []string {
	var rest []string
	for _, d := range req.Domains {
		if d != req.Domain {
			rest = append(rest, d)
		}
	}
	return rest
}

func tierBaseActions(tier schema.Tier) []string {
	switch tier {
	case schema.TierDirect:
		return []string{
			"implement the change directly",
			"add regression coverage for the affected path",
			"verify the fix in a staging environment",
		}
	case schema.Tier1:
		return []string{
			"draft an implementation plan and review it with the task owner",
			"implement behind a feature flag",
			"extend test coverage for the touched modules",
		}
	default:
		return []string{
			"produce a short design note covering the affected subsystems",
			"sequence the work into independently shippable changes",
			"define rollback and monitoring criteria before rollout",
		}
	}
}

func timelineFor(est int) string {
	switch {
	case est <= 3:
		return "1-2 days"
	case est <= 6:
		return "3-5 days"
	case est <= 8:
		return "1-2 weeks"
	default:
		return "2-4 weeks"
	}
}

func capacityConfidence(est, capacity int) float64 {
	if est <= capacity {
		return 0.9
	}
	return 0.6
}
