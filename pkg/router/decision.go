package router

import (
	"fmt"

	"github.com/zen-systems/tiergate/pkg/schema"
)

// RoutingDecision is the classifier's verdict for one task: the tier,
// the adjusted composite score, confidence, and ordered reasoning.
// Domain and Vector ride along for the consultation engine.
type RoutingDecision struct {
	Tier         schema.Tier             `json:"tier"`
	NumericScore float64                 `json:"numeric_score"`
	Confidence   float64                 `json:"confidence"`
	Reasoning    []string                `json:"reasoning"`
	Domain       string                  `json:"domain"`
	Vector       schema.ComplexityVector `json:"vector"`
}

func (d *RoutingDecision) Validate() error {
	if !d.Tier.Valid() {
		return fmt.Errorf("decision tier invalid")
	}
	if d.NumericScore < 0 || d.NumericScore > 10 {
		return fmt.Errorf("decision score %.2f out of range [0,10]", d.NumericScore)
	}
	if d.Confidence < minConfidence || d.Confidence > maxConfidence {
		return fmt.Errorf("decision confidence %.2f out of range [%.1f,%.1f]", d.Confidence, minConfidence, maxConfidence)
	}
	if len(d.Reasoning) == 0 {
		return fmt.Errorf("decision reasoning required")
	}
	if d.Domain == "" {
		return fmt.Errorf("decision domain required")
	}
	return nil
}
