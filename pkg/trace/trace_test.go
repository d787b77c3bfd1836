package trace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestWriterRecords(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	rec := Record{
		ID:          "rec-1",
		Timestamp:   time.Now().UTC(),
		Fingerprint: "a1b2c3d4e5f6",
		Task:        "Fix memory leak in session cleanup",
		Decision: Decision{
			Tier:         "TIER_1",
			NumericScore: 4.2,
			Confidence:   0.8,
			Domain:       "backend",
		},
		FinalTier:  "TIER_2",
		Specialist: "t2-backend",
		Hops: []Hop{{
			FromTier: "TIER_1",
			ToTier:   "TIER_2",
			Reason:   "risk exposure requires senior specialist review",
			At:       time.Now().UTC(),
		}},
		Gate:      &GateResult{OverallScore: 0.91, Level: "excellent", Passed: true},
		CostUnits: 7,
	}
	if err := writer.WriteRecord(rec); err != nil {
		t.Fatalf("write record: %v", err)
	}

	path := filepath.Join(dir, "records", "rec-1.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read record: %v", err)
	}

	var got Record
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	if got.Schema != "tiergate.trace.v1" {
		t.Fatalf("schema not defaulted: %q", got.Schema)
	}
	if got.FinalTier != "TIER_2" || got.Decision.Tier != "TIER_1" {
		t.Fatalf("tiers mangled: %s from %s", got.FinalTier, got.Decision.Tier)
	}
	if len(got.Hops) != 1 || got.Hops[0].Reason == "" {
		t.Fatalf("hops mangled: %+v", got.Hops)
	}
	if got.Gate == nil || !got.Gate.Passed {
		t.Fatalf("gate result mangled: %+v", got.Gate)
	}

	if runtime.GOOS != "windows" {
		assertPerm(t, filepath.Join(dir, "records"), 0700)
		assertPerm(t, filepath.Join(dir, "incidents"), 0700)
		assertPerm(t, path, 0600)
	}
}

func TestWriterIncidents(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	inc := Incident{
		ID:          "inc-1",
		Timestamp:   time.Now().UTC(),
		Fingerprint: "a1b2c3d4e5f6",
		Kind:        IncidentEscalationLimit,
		Error:       "escalation limit exceeded: 4 hops (max 3)",
		Hops: []Hop{
			{FromTier: "DIRECT", ToTier: "TIER_1", Reason: "scope"},
			{FromTier: "TIER_1", ToTier: "TIER_2", Reason: "risk"},
		},
		CostUnits: 7,
	}
	if err := writer.WriteIncident(inc); err != nil {
		t.Fatalf("write incident: %v", err)
	}

	path := filepath.Join(dir, "incidents", "inc-1.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read incident: %v", err)
	}

	var got Incident
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal incident: %v", err)
	}
	if got.Kind != IncidentEscalationLimit {
		t.Fatalf("kind mangled: %q", got.Kind)
	}
	if got.Schema != "tiergate.trace.v1" {
		t.Fatalf("schema not defaulted: %q", got.Schema)
	}
	if len(got.Hops) != 2 {
		t.Fatalf("expected 2 hops, got %d", len(got.Hops))
	}
}

func TestWriterValidation(t *testing.T) {
	if _, err := NewWriter(""); err == nil {
		t.Fatal("expected error for empty base directory")
	}

	writer, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := writer.WriteRecord(Record{}); err == nil {
		t.Fatal("expected error for record without ID")
	}
	if err := writer.WriteIncident(Incident{}); err == nil {
		t.Fatal("expected error for incident without ID")
	}
}

func assertPerm(t *testing.T, path string, expected os.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	if info.Mode().Perm() != expected {
		t.Fatalf("expected %s mode %o, got %o", path, expected, info.Mode().Perm())
	}
}
