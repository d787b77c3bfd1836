package handoff

import (
	"github.com/zen-systems/tiergate/pkg/schema"
)

// Result is the validation verdict for one handoff package. Missing
// summary fields and unchecked checklist items invalidate the package;
// continuity gaps are surfaced to the receiving tier but do not.
type Result struct {
	Valid          bool     `json:"valid"`
	MissingFields  []string `json:"missing_fields,omitempty"`
	ContinuityGaps []string `json:"continuity_gaps,omitempty"`
}

// Validate checks a handoff package against the transfer rules: the
// six summary fields present, every checklist item done, escalation
// strictly upward. Continuity gaps are reported individually.
func Validate(pkg schema.HandoffPackage) Result {
	var res Result

	if pkg.Schema != schema.SchemaHandoffV1 {
		res.MissingFields = append(res.MissingFields, "schema")
	}

	required := []struct {
		name  string
		value string
	}{
		{"summary.problem", pkg.Summary.Problem},
		{"summary.initial_assessment", pkg.Summary.InitialAssessment},
		{"summary.business_requirements", pkg.Summary.BusinessRequirements},
		{"summary.technical_constraints", pkg.Summary.TechnicalConstraints},
		{"summary.escalation_reason", pkg.Summary.EscalationReason},
		{"summary.completed_work", pkg.Summary.CompletedWork},
	}
	for _, f := range required {
		if f.value == "" {
			res.MissingFields = append(res.MissingFields, f.name)
		}
	}

	for _, item := range pkg.Checklist {
		if !item.Done {
			res.MissingFields = append(res.MissingFields, "checklist:"+item.Name)
		}
	}
	for _, gate := range pkg.Gates {
		if !gate.Passed {
			res.MissingFields = append(res.MissingFields, "gate:"+gate.Name)
		}
	}

	if !pkg.ToTier.Above(pkg.FromTier) {
		res.MissingFields = append(res.MissingFields, "escalation-direction")
	}

	if len(pkg.Continuity.CompletedWork) == 0 {
		res.ContinuityGaps = append(res.ContinuityGaps, "completed work missing")
	}
	if len(pkg.Continuity.RemainingTasks) == 0 {
		res.ContinuityGaps = append(res.ContinuityGaps, "remaining tasks missing")
	}
	if len(pkg.Continuity.Decisions) == 0 {
		res.ContinuityGaps = append(res.ContinuityGaps, "decisions missing")
	}

	res.Valid = len(res.MissingFields) == 0
	return res
}

// Err converts an invalid result into the recoverable engine error,
// nil when valid.
func (r Result) Err(fp schema.Fingerprint, tier schema.Tier) error {
	if r.Valid {
		return nil
	}
	return &schema.HandoffValidationError{
		Fingerprint:    fp,
		Tier:           tier,
		MissingFields:  r.MissingFields,
		ContinuityGaps: r.ContinuityGaps,
	}
}
