package handoff

import (
	"fmt"
	"strings"
	"time"

	"github.com/zen-systems/tiergate/pkg/schema"
)

// State is the consultation state a handoff package is built from. The
// engine fills what it has: a routing-time escalation carries no
// analysis yet, a criterion-driven one carries the full consultation.
type State struct {
	Task        schema.Task
	Fingerprint schema.Fingerprint
	Vector      schema.ComplexityVector
	Score       float64
	Domain      string
	Domains     []string
	FromTier    schema.Tier
	ToTier      schema.Tier
	Reason      string
	Analysis    *schema.Analysis
	Completed   []string
	Now         time.Time
}

// checklistNames is the fixed transfer checklist every generalist
// handoff carries, in presentation order.
var checklistNames = [8]string{
	"problem statement captured",
	"initial assessment recorded",
	"business requirements preserved",
	"technical constraints preserved",
	"escalation reason stated",
	"completed work itemized",
	"remaining tasks enumerated",
	"decisions and assumptions recorded",
}

// Gate names attached to every handoff.
const (
	GateContextPreservation    = "context-preservation"
	GateContinuityCompleteness = "continuity-completeness"
	GateEscalationJustified    = "escalation-justification"
)

// Build assembles the handoff package for one escalation hop. Every
// field derives deterministically from the state with documented
// fallbacks, so a package built through the engine's escalation path
// always validates. Escalation into TIER_3 additionally carries the
// architect payload.
func Build(state State) schema.HandoffPackage {
	summary := buildSummary(state)
	continuity := buildContinuity(state)

	pkg := schema.HandoffPackage{
		Schema:      schema.SchemaHandoffV1,
		Fingerprint: state.Fingerprint,
		FromTier:    state.FromTier,
		ToTier:      state.ToTier,
		Summary:     summary,
		Context: schema.PreservedContext{
			Business:  append([]string{}, state.Task.Requirements...),
			Technical: append([]string{}, state.Task.Constraints...),
			Timeline:  timelineContext(state.Vector),
			Resources: []string{fmt.Sprintf("consultation budget for %s", state.ToTier)},
		},
		Rationale: schema.HandoffRationale{
			WhyEscalated:    summary.EscalationReason,
			ExpertiseGap:    fmt.Sprintf("beyond %s capacity; requires %s expertise", state.FromTier, state.ToTier),
			ExpectedOutcome: "actionable recommendation meeting the acceptable quality threshold",
		},
		Continuity: continuity,
		CreatedAt:  state.Now,
	}

	pkg.Checklist = buildChecklist(pkg)
	pkg.Gates = buildGates(pkg)

	if state.ToTier == schema.Tier3 {
		pkg.Architect = buildArchitectPayload(state)
	}
	return pkg
}

func buildSummary(state State) schema.HandoffSummary {
	problem := strings.TrimSpace(state.Task.Description)
	if problem == "" {
		problem = "task submitted without a description"
	}

	assessment := ""
	if state.Analysis != nil {
		assessment = state.Analysis.Summary
	}
	if assessment == "" {
		assessment = fmt.Sprintf("complexity scored %.2f/10; routed to %s by classification", state.Score, state.ToTier)
	}

	business := strings.Join(state.Task.Requirements, "; ")
	if business == "" {
		business = "no explicit business requirements supplied"
	}
	technical := strings.Join(state.Task.Constraints, "; ")
	if technical == "" {
		technical = "no explicit technical constraints supplied"
	}

	reason := strings.TrimSpace(state.Reason)
	if reason == "" {
		reason = fmt.Sprintf("escalation criterion satisfied at %s", state.FromTier)
	}

	completed := strings.Join(state.Completed, "; ")
	if completed == "" {
		completed = "complexity scoring and tier classification completed"
	}

	return schema.HandoffSummary{
		Problem:              problem,
		InitialAssessment:    assessment,
		BusinessRequirements: business,
		TechnicalConstraints: technical,
		EscalationReason:     reason,
		CompletedWork:        completed,
	}
}

func buildContinuity(state State) schema.Continuity {
	completed := append([]string{}, state.Completed...)
	if len(completed) == 0 {
		completed = []string{"complexity scoring", "tier classification"}
	}

	remaining := []string{
		fmt.Sprintf("specialist analysis at %s", state.ToTier),
		"recommendation and quality assessment",
	}

	decisions := []string{
		fmt.Sprintf("routed %s work to %s (score %.2f)", state.Domain, state.ToTier, state.Score),
	}
	var assumptions []string
	if state.Analysis != nil {
		decisions = append(decisions,
			fmt.Sprintf("%s estimated complexity %d/10", state.FromTier, state.Analysis.EstimatedComplexity))
		assumptions = append(assumptions, state.Analysis.Assumptions...)
	}

	return schema.Continuity{
		CompletedWork:  completed,
		RemainingTasks: remaining,
		Decisions:      decisions,
		Assumptions:    assumptions,
	}
}

func timelineContext(vec schema.ComplexityVector) []string {
	if vec.Temporal >= 7 {
		return []string{"hard or near-term deadline in play; sequence the handoff without idle time"}
	}
	return []string{"standard delivery window"}
}

// buildChecklist evaluates the fixed 8 items against the built package,
// so the checklist records what the package actually carries.
func buildChecklist(pkg schema.HandoffPackage) []schema.ChecklistItem {
	done := [8]bool{
		pkg.Summary.Problem != "",
		pkg.Summary.InitialAssessment != "",
		pkg.Summary.BusinessRequirements != "",
		pkg.Summary.TechnicalConstraints != "",
		pkg.Summary.EscalationReason != "",
		pkg.Summary.CompletedWork != "",
		len(pkg.Continuity.RemainingTasks) > 0,
		len(pkg.Continuity.Decisions) > 0,
	}
	items := make([]schema.ChecklistItem, len(checklistNames))
	for i, name := range checklistNames {
		items[i] = schema.ChecklistItem{Name: name, Done: done[i]}
	}
	return items
}

func buildGates(pkg schema.HandoffPackage) []schema.GateCheck {
	return []schema.GateCheck{
		{
			Name:   GateContextPreservation,
			Passed: pkg.Summary.BusinessRequirements != "" && pkg.Summary.TechnicalConstraints != "",
		},
		{
			Name: GateContinuityCompleteness,
			Passed: len(pkg.Continuity.CompletedWork) > 0 &&
				len(pkg.Continuity.RemainingTasks) > 0 &&
				len(pkg.Continuity.Decisions) > 0,
		},
		{
			Name:   GateEscalationJustified,
			Passed: pkg.Summary.EscalationReason != "" && pkg.ToTier.Above(pkg.FromTier),
		},
	}
}

// buildArchitectPayload derives the TIER_3 extras: cross-domain impact,
// architectural considerations, the decision-complexity score, and the
// stakeholder list and communication plan auto-derived from impact
// flags.
func buildArchitectPayload(state State) *schema.ArchitectPayload {
	var impact []string
	for _, d := range state.Domains {
		if d != state.Domain {
			impact = append(impact, fmt.Sprintf("changes propagate into the %s domain", d))
		}
	}
	if len(impact) == 0 {
		impact = []string{"single-domain change with architecture-level complexity"}
	}

	var considerations []string
	if state.Vector.Technical >= 8 {
		considerations = append(considerations, "deep technical redesign of affected subsystems")
	}
	if state.Vector.Dependency >= 7 {
		considerations = append(considerations, "integration and migration ordering")
	}
	if state.Vector.Risk >= 8 {
		considerations = append(considerations, "risk containment and rollback strategy")
	}
	if state.Vector.Stakeholder >= 7 {
		considerations = append(considerations, "organizational rollout sequencing")
	}
	if len(considerations) == 0 {
		considerations = []string{"target architecture and migration path"}
	}

	stakeholders, plan := deriveStakeholders(state)

	return &schema.ArchitectPayload{
		CrossDomainImpact:  impact,
		Considerations:     considerations,
		DecisionComplexity: decisionComplexity(state.Vector),
		Stakeholders:       stakeholders,
		CommunicationPlan:  plan,
	}
}

// decisionComplexity blends the dimensions that make an architectural
// decision hard to reverse. Range 0..10; used to justify escalation
// priority at the architect tier.
func decisionComplexity(vec schema.ComplexityVector) float64 {
	return 0.4*float64(vec.Technical) +
		0.3*float64(vec.Domain) +
		0.2*float64(vec.Scope) +
		0.1*float64(vec.Stakeholder)
}

func deriveStakeholders(state State) (stakeholders, plan []string) {
	add := func(who, how string) {
		stakeholders = append(stakeholders, who)
		plan = append(plan, how)
	}

	add("requesting-team", "walk the requesting team through the escalation rationale")
	if state.Vector.Stakeholder >= 7 {
		add("engineering-leadership", "brief engineering leadership before implementation starts")
	}
	if state.Vector.Risk >= 8 {
		add("security-and-compliance", "review risk containment with security and compliance")
	}
	if len(state.Domains) > 1 {
		add("affected-domain-owners", "circulate the cross-domain impact summary to affected domain owners")
	}
	if state.Vector.Temporal >= 7 {
		add("delivery-management", "align delivery management on the revised timeline")
	}
	return stakeholders, plan
}
