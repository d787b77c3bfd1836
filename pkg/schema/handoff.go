package schema

import "time"

// HandoffSummary is the required header of every handoff package. All
// six fields must be present for the package to validate.
type HandoffSummary struct {
	Problem              string `json:"problem"`
	InitialAssessment    string `json:"initial_assessment"`
	BusinessRequirements string `json:"business_requirements"`
	TechnicalConstraints string `json:"technical_constraints"`
	EscalationReason     string `json:"escalation_reason"`
	CompletedWork        string `json:"completed_work"`
}

// PreservedContext carries the constraint set forward so the receiving
// tier does not re-derive it.
type PreservedContext struct {
	Business  []string `json:"business,omitempty"`
	Technical []string `json:"technical,omitempty"`
	Timeline  []string `json:"timeline,omitempty"`
	Resources []string `json:"resources,omitempty"`
}

// HandoffRationale explains why the transfer happened and what the
// next tier is expected to close.
type HandoffRationale struct {
	WhyEscalated    string `json:"why_escalated"`
	ExpertiseGap    string `json:"expertise_gap"`
	ExpectedOutcome string `json:"expected_outcome"`
}

// Continuity is the work-state block. CompletedWork, RemainingTasks and
// Decisions each being non-empty is a validation concern; an empty one
// is a continuity gap the receiving tier must see.
type Continuity struct {
	CompletedWork  []string `json:"completed_work,omitempty"`
	RemainingTasks []string `json:"remaining_tasks,omitempty"`
	Decisions      []string `json:"decisions,omitempty"`
	Assumptions    []string `json:"assumptions,omitempty"`
}

// ChecklistItem is a boolean-valued transfer requirement. Every item
// must be done for the package to validate.
type ChecklistItem struct {
	Name string `json:"name"`
	Done bool   `json:"done"`
}

// GateCheck is a named quality gate attached to the handoff. All gates
// must hold for the package to validate.
type GateCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// ArchitectPayload is the extra block carried only on escalation into
// the architect tier.
type ArchitectPayload struct {
	CrossDomainImpact  []string `json:"cross_domain_impact,omitempty"`
	Considerations     []string `json:"considerations,omitempty"`
	DecisionComplexity float64  `json:"decision_complexity"`
	Stakeholders       []string `json:"stakeholders,omitempty"`
	CommunicationPlan  []string `json:"communication_plan,omitempty"`
}

// HandoffPackage is the validated bundle transferred between tiers
// during escalation. Built once per hop, discarded after the receiving
// tier accepts it.
type HandoffPackage struct {
	Schema      string            `json:"schema"`
	Fingerprint Fingerprint       `json:"fingerprint"`
	FromTier    Tier              `json:"from_tier"`
	ToTier      Tier              `json:"to_tier"`
	Summary     HandoffSummary    `json:"summary"`
	Context     PreservedContext  `json:"context"`
	Rationale   HandoffRationale  `json:"rationale"`
	Continuity  Continuity        `json:"continuity"`
	Checklist   []ChecklistItem   `json:"checklist"`
	Gates       []GateCheck       `json:"gates"`
	Architect   *ArchitectPayload `json:"architect,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
