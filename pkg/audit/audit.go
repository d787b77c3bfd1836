// Package audit keeps a signed, append-only trail of the operations
// operators need to verify after the fact: calibration proposals
// applied to routing, and consultations that breached the escalation
// limit. Each record is ed25519-signed over its canonical JSON
// encoding with the signature field cleared; VerifyLog re-checks the
// whole trail.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zen-systems/tiergate/pkg/router"
	"github.com/zen-systems/tiergate/pkg/schema"
)

// Record kinds.
const (
	KindThresholdApply  = "threshold_apply"
	KindEscalationLimit = "escalation_limit"
)

// Record is one entry of the audit trail.
type Record struct {
	Schema    string     `json:"schema"`
	ID        string     `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	Kind      string     `json:"kind"`
	Subject   Subject    `json:"subject"`
	Claim     Claim      `json:"claim"`
	Signature *Signature `json:"signature,omitempty"`
}

// Subject identifies what a record is about.
type Subject struct {
	Domain      string `json:"domain,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	ProposalID  string `json:"proposal_id,omitempty"`
}

// Claim carries the audited facts.
type Claim struct {
	Summary     string              `json:"summary"`
	BasedOn     int                 `json:"based_on,omitempty"`
	Rationale   []string            `json:"rationale,omitempty"`
	Calibration *router.Calibration `json:"calibration,omitempty"`
	Hops        int                 `json:"hops,omitempty"`
	CostUnits   float64             `json:"cost_units,omitempty"`
}

// Signature is an ed25519 signature over the record's canonical JSON
// encoding with the signature field cleared.
type Signature struct {
	Alg      string `json:"alg"`
	PubKeyID string `json:"pubkey_id"`
	Sig      string `json:"sig"`
}

func (r *Record) Validate() error {
	if r.Schema != schema.SchemaAuditV1 {
		return fmt.Errorf("audit schema must be %q", schema.SchemaAuditV1)
	}
	if r.ID == "" {
		return fmt.Errorf("audit record ID is required")
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("audit record timestamp is required")
	}
	switch r.Kind {
	case KindThresholdApply, KindEscalationLimit:
		return nil
	default:
		return fmt.Errorf("unknown audit record kind %q", r.Kind)
	}
}

func (s *Signature) Validate() error {
	if s.Alg != "ed25519" {
		return fmt.Errorf("unsupported signature alg %q", s.Alg)
	}
	if s.PubKeyID == "" {
		return fmt.Errorf("pubkey_id required")
	}
	if s.Sig == "" {
		return fmt.Errorf("sig required")
	}
	return nil
}

// Log is an append-only audit trail on disk. Every record is signed
// before it is written.
type Log struct {
	mu     sync.Mutex
	path   string
	signer *Signer
}

// NewLog opens the trail at dir/audit.jsonl, creating dir if needed.
func NewLog(dir string, signer *Signer) (*Log, error) {
	if dir == "" {
		return nil, fmt.Errorf("audit directory is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return &Log{path: filepath.Join(dir, "audit.jsonl"), signer: signer}, nil
}

// Path returns the trail file path.
func (l *Log) Path() string {
	return l.path
}

// Append signs rec and appends it to the trail. Empty schema, ID, and
// timestamp fields are filled in first.
func (l *Log) Append(rec Record) error {
	if rec.Schema == "" {
		rec.Schema = schema.SchemaAuditV1
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if err := l.signer.Sign(&rec); err != nil {
		return err
	}
	line, err := json.Marshal(&rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadLog parses every record in the trail at path.
func ReadLog(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []Record
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("audit line %d: %w", i+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// VerifyLog verifies the signature of every record in the trail and
// returns the number of records checked.
func VerifyLog(path, keyDir string) (int, error) {
	records, err := ReadLog(path)
	if err != nil {
		return 0, err
	}
	for i := range records {
		if err := Verify(&records[i], keyDir); err != nil {
			return i, fmt.Errorf("record %s: %w", records[i].ID, err)
		}
	}
	return len(records), nil
}
