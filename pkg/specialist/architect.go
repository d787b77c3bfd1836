package specialist

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/zen-systems/tiergate/pkg/schema"
)

// Architect is the TIER_3 specialist. It is the top of the ladder, so
// it carries no escalation criteria, and its output leans on cross
// domain impact rather than implementation detail.
type Architect struct {
	id        string
	domain    string
	expertise []string
	enricher  *ModelEnricher
}

func NewArchitect(id, domain string, expertise ...string) (*Architect, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("architect id required")
	}
	if strings.TrimSpace(domain) == "" {
		return nil, fmt.Errorf("architect domain required")
	}
	return &Architect{id: id, domain: domain, expertise: expertise}, nil
}

// UseEnricher attaches a model adapter for summary enrichment.
func (a *Architect) UseEnricher(e *ModelEnricher) {
	a.enricher = e
}

func (a *Architect) ID() string                          { return a.id }
func (a *Architect) Domain() string                      { return a.domain }
func (a *Architect) Tier() schema.Tier                   { return schema.Tier3 }
func (a *Architect) MaxComplexity() int                  { return CapacityFor(schema.Tier3) }
func (a *Architect) Expertise() []string                 { return a.expertise }
func (a *Architect) HandoffCriteria() []HandoffCriterion { return nil }

func (a *Architect) Analyze(ctx context.Context, req Request) (schema.Analysis, error) {
	est := req.Vector.Max()
	crossDomain := secondaryDomains(req)

	findings := dimensionFindings(req.Vector)
	for _, d := range crossDomain {
		findings = append(findings, fmt.Sprintf("architectural impact on the %s domain", d))
	}

	risks := riskFactors(req.Vector)
	if req.Vector.Stakeholder >= 7 {
		risks = append(risks, "organizational change management across affected teams")
	}

	analysis := schema.Analysis{
		SpecialistID: a.id,
		Domain:       req.Domain,
		Tier:         schema.Tier3,
		Summary: fmt.Sprintf("architect consultation for %s work: estimated complexity %d/10, %d domains in scope",
			req.Domain, est, 1+len(crossDomain)),
		Findings:            findings,
		Assumptions:         baseAssumptions(req),
		RiskFactors:         risks,
		EstimatedComplexity: est,
		CrossDomain:         crossDomain,
	}
	if a.enricher != nil {
		analysis.Summary = a.enricher.EnrichAnalysis(ctx, analysis, req)
	}
	return analysis, nil
}

func (a *Architect) Recommend(ctx context.Context, analysis schema.Analysis, req Request) (schema.Recommendation, error) {
	actions := []string{
		"run an architecture assessment across the affected domains",
		"record the decision and considered alternatives in an architecture decision record",
		"design the target architecture and a migration path from the current state",
		"phase delivery with explicit go/no-go checkpoints",
	}
	if req.Vector.Stakeholder >= 7 {
		actions = append(actions, "establish a cross-team working group with named owners")
	}

	timeline := "2-4 weeks (phased)"
	if analysis.EstimatedComplexity >= 9 {
		timeline = "4-8 weeks (phased)"
	}

	rec := schema.Recommendation{
		ID:           uuid.NewString(),
		SpecialistID: a.id,
		Tier:         schema.Tier3,
		Summary: fmt.Sprintf("architectural programme for %s work spanning %d domains: %d actions over %s",
			req.Domain, 1+len(analysis.CrossDomain), len(actions), timeline),
		Actions:    actions,
		Risks:      append([]string{}, analysis.RiskFactors...),
		Timeline:   timeline,
		Confidence: 0.85,
	}
	if a.enricher != nil {
		rec.Summary = a.enricher.EnrichRecommendation(ctx, rec, req)
	}
	return rec, nil
}

func (a *Architect) EvaluateHandoff(criterion HandoffCriterion, analysis schema.Analysis, req Request) bool {
	return evaluateCondition(criterion.Condition, a.MaxComplexity(), analysis, req)
}
