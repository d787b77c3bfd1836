// Package trace writes consultation records to disk for operator
// review. Completed executions produce a Record; consultations that
// end abnormally (escalation limit breaches, unresolvable timeouts)
// produce an Incident. Records are private to the operator and are
// written with restrictive permissions.
package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zen-systems/tiergate/pkg/schema"
)

// Incident kinds.
const (
	IncidentEscalationLimit = "escalation_limit"
	IncidentTimeout         = "timeout"
)

// Record captures one completed consultation.
type Record struct {
	Schema      string      `json:"schema"`
	ID          string      `json:"id"`
	Timestamp   time.Time   `json:"timestamp"`
	Fingerprint string      `json:"fingerprint"`
	Task        string      `json:"task,omitempty"`
	Decision    Decision    `json:"decision"`
	FinalTier   string      `json:"final_tier"`
	Specialist  string      `json:"specialist,omitempty"`
	Hops        []Hop       `json:"hops,omitempty"`
	Gate        *GateResult `json:"gate,omitempty"`
	CostUnits   float64     `json:"cost_units"`
	FromCache   bool        `json:"from_cache"`
}

// Decision mirrors the routing decision the consultation started from.
type Decision struct {
	Tier         string   `json:"tier"`
	NumericScore float64  `json:"numeric_score"`
	Confidence   float64  `json:"confidence"`
	Domain       string   `json:"domain"`
	Reasoning    []string `json:"reasoning,omitempty"`
}

// Hop mirrors one entry of the escalation trail.
type Hop struct {
	FromTier       string    `json:"from_tier"`
	ToTier         string    `json:"to_tier"`
	FromSpecialist string    `json:"from_specialist,omitempty"`
	ToSpecialist   string    `json:"to_specialist,omitempty"`
	Reason         string    `json:"reason"`
	At             time.Time `json:"at"`
}

// GateResult mirrors the final quality gate assessment.
type GateResult struct {
	DimensionScores map[string]float64 `json:"dimension_scores,omitempty"`
	OverallScore    float64            `json:"overall_score"`
	Level           string             `json:"level"`
	Passed          bool               `json:"passed"`
	Improvements    []string           `json:"improvements,omitempty"`
}

// Incident captures a consultation that ended abnormally. Escalation
// limit breaches always produce one when a writer is configured.
type Incident struct {
	Schema      string    `json:"schema"`
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Fingerprint string    `json:"fingerprint"`
	Kind        string    `json:"kind"`
	Error       string    `json:"error"`
	Hops        []Hop     `json:"hops,omitempty"`
	CostUnits   float64   `json:"cost_units,omitempty"`
}

// Writer writes trace records to disk. Record IDs are unique, so a
// single writer may be shared across concurrent consultations.
type Writer struct {
	baseDir string
}

// NewWriter creates a trace writer rooted at baseDir. Records land in
// baseDir/records, incidents in baseDir/incidents.
func NewWriter(baseDir string) (*Writer, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("trace directory is required")
	}
	if err := os.MkdirAll(filepath.Join(baseDir, "records"), 0700); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(baseDir, "incidents"), 0700); err != nil {
		return nil, err
	}
	return &Writer{baseDir: baseDir}, nil
}

// WriteRecord writes a consultation record to records/<id>.json.
func (w *Writer) WriteRecord(rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record ID is required")
	}
	if rec.Schema == "" {
		rec.Schema = schema.SchemaTraceV1
	}
	return writeJSON(filepath.Join(w.baseDir, "records", rec.ID+".json"), rec)
}

// WriteIncident writes an incident record to incidents/<id>.json.
func (w *Writer) WriteIncident(inc Incident) error {
	if inc.ID == "" {
		return fmt.Errorf("incident ID is required")
	}
	if inc.Schema == "" {
		inc.Schema = schema.SchemaTraceV1
	}
	return writeJSON(filepath.Join(w.baseDir, "incidents", inc.ID+".json"), inc)
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
