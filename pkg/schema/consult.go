package schema

import (
	"fmt"
	"strings"
	"time"
)

// Analysis is a specialist's structured read of a task. The engine
// carries it opaquely; only the fields used for handoff construction
// and quality scoring are inspected.
type Analysis struct {
	SpecialistID string   `json:"specialist_id"`
	Domain       string   `json:"domain"`
	Tier         Tier     `json:"tier"`
	Summary      string   `json:"summary"`
	Findings     []string `json:"findings,omitempty"`
	Assumptions  []string `json:"assumptions,omitempty"`
	RiskFactors  []string `json:"risk_factors,omitempty"`
	// EstimatedComplexity is the specialist's own read, which may
	// disagree with the router's score.
	EstimatedComplexity int      `json:"estimated_complexity"`
	CrossDomain         []string `json:"cross_domain,omitempty"`
}

func (a *Analysis) Validate() error {
	if strings.TrimSpace(a.SpecialistID) == "" {
		return fmt.Errorf("analysis specialist_id required")
	}
	if strings.TrimSpace(a.Summary) == "" {
		return fmt.Errorf("analysis summary required")
	}
	if !a.Tier.Valid() {
		return fmt.Errorf("analysis tier invalid")
	}
	return nil
}

// Recommendation is the specialist's answer. Actions, Risks and
// Timeline are the only fields the quality gate reads; everything else
// passes through untouched.
type Recommendation struct {
	ID           string   `json:"id"`
	SpecialistID string   `json:"specialist_id"`
	Tier         Tier     `json:"tier"`
	Summary      string   `json:"summary"`
	Actions      []string `json:"actions,omitempty"`
	Risks        []string `json:"risks,omitempty"`
	Timeline     string   `json:"timeline,omitempty"`
	Confidence   float64  `json:"confidence"`
	// Revision counts gate-driven rewrites: 0 for the first draft.
	Revision int `json:"revision"`
}

func (r *Recommendation) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("recommendation id required")
	}
	if strings.TrimSpace(r.SpecialistID) == "" {
		return fmt.Errorf("recommendation specialist_id required")
	}
	if strings.TrimSpace(r.Summary) == "" {
		return fmt.Errorf("recommendation summary required")
	}
	if !r.Tier.Valid() {
		return fmt.Errorf("recommendation tier invalid")
	}
	return nil
}

// EscalationHop records one tier transfer inside a consultation.
type EscalationHop struct {
	ID             string    `json:"id"`
	FromTier       Tier      `json:"from_tier"`
	ToTier         Tier      `json:"to_tier"`
	FromSpecialist string    `json:"from_specialist"`
	ToSpecialist   string    `json:"to_specialist,omitempty"`
	Reason         string    `json:"reason"`
	At             time.Time `json:"at"`
}

// Outcome is the completed-consultation record fed to the learning
// store. Only finished, valid pipelines produce one. Vector is the
// scored complexity the decision was made on; the learner uses it to
// attribute escalations to dimensions.
type Outcome struct {
	Fingerprint Fingerprint      `json:"fingerprint"`
	Domain      string           `json:"domain"`
	Tier        Tier             `json:"tier"`
	FinalTier   Tier             `json:"final_tier"`
	Score       float64          `json:"score"`
	Vector      ComplexityVector `json:"vector"`
	GateScore   float64          `json:"gate_score"`
	GatePassed  bool             `json:"gate_passed"`
	Escalations int              `json:"escalations"`
	FromCache   bool             `json:"from_cache"`
	CostUnits   float64          `json:"cost_units"`
	At          time.Time        `json:"at"`
}

func (o *Outcome) Validate() error {
	if !o.Fingerprint.Valid() {
		return fmt.Errorf("outcome fingerprint invalid")
	}
	if !o.Tier.Valid() || !o.FinalTier.Valid() {
		return fmt.Errorf("outcome tier invalid")
	}
	if o.Escalations < 0 || o.Escalations > MaxEscalationHops {
		return fmt.Errorf("outcome escalations %d out of range", o.Escalations)
	}
	return nil
}
