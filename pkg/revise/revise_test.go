package revise

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/zen-systems/tiergate/pkg/adapter"
	"github.com/zen-systems/tiergate/pkg/schema"
	"github.com/zen-systems/tiergate/pkg/specialist"
)

// sparseSpecialist returns deliberately thin recommendations so the
// patcher has gaps to close.
type sparseSpecialist struct {
	rec schema.Recommendation
}

func (s *sparseSpecialist) ID() string          { return "sparse" }
func (s *sparseSpecialist) Domain() string      { return "general" }
func (s *sparseSpecialist) Tier() schema.Tier   { return schema.Tier1 }
func (s *sparseSpecialist) MaxComplexity() int  { return 6 }
func (s *sparseSpecialist) Expertise() []string { return nil }

func (s *sparseSpecialist) HandoffCriteria() []specialist.HandoffCriterion {
	return nil
}

func (s *sparseSpecialist) Analyze(context.Context, specialist.Request) (schema.Analysis, error) {
	return schema.Analysis{}, nil
}

func (s *sparseSpecialist) Recommend(context.Context, schema.Analysis, specialist.Request) (schema.Recommendation, error) {
	rec := s.rec
	rec.Actions = append([]string(nil), s.rec.Actions...)
	rec.Risks = append([]string(nil), s.rec.Risks...)
	return rec, nil
}

func (s *sparseSpecialist) EvaluateHandoff(specialist.HandoffCriterion, schema.Analysis, specialist.Request) bool {
	return false
}

func testAnalysis() schema.Analysis {
	return schema.Analysis{
		SpecialistID:        "sparse",
		Domain:              "backend",
		Tier:                schema.Tier1,
		Summary:             "junior assessment for backend work",
		RiskFactors:         []string{"moderate delivery risk"},
		EstimatedComplexity: 5,
	}
}

func failedAssessment() schema.QualityAssessment {
	return schema.QualityAssessment{
		DimensionScores: map[string]float64{
			"recommendation-completeness": 0.3,
			"risk-coverage":               0.3,
		},
		OverallScore: 0.42,
		Level:        schema.QualityMinimal,
		Improvements: []string{
			"complete the recommendation: summary, at least three actions, and a timeline",
			"identify the risks this task carries and how each is mitigated",
		},
	}
}

func TestRevise_PatchesStructuralGaps(t *testing.T) {
	sp := &sparseSpecialist{rec: schema.Recommendation{
		ID: "r2", SpecialistID: "sparse", Tier: schema.Tier1,
		Summary: "", Actions: []string{"just fix it"}, Timeline: "eventually", Confidence: 0.6,
	}}
	prev := schema.Recommendation{ID: "r1", Summary: "first draft", Confidence: 0.6}

	r := New(nil)
	next, err := r.Revise(context.Background(), sp, testAnalysis(), specialist.Request{}, prev, failedAssessment())
	if err != nil {
		t.Fatalf("revise: %v", err)
	}

	if next.Revision != 1 {
		t.Errorf("revision = %d, want 1", next.Revision)
	}
	if next.Summary != "junior assessment for backend work" {
		t.Errorf("summary not backfilled from analysis: %q", next.Summary)
	}
	if len(next.Actions) < 3 {
		t.Errorf("actions = %d, want at least 3: %v", len(next.Actions), next.Actions)
	}
	if next.Timeline != "3-5 days" {
		t.Errorf("timeline = %q, want bounded 3-5 days", next.Timeline)
	}
	if len(next.Risks) != 1 || next.Risks[0] != "moderate delivery risk" {
		t.Errorf("risks not copied from analysis: %v", next.Risks)
	}
	mitigated := false
	for _, a := range next.Actions {
		if strings.Contains(strings.ToLower(a), "moderate delivery risk") {
			mitigated = true
		}
	}
	if !mitigated {
		t.Errorf("no mitigation action for the copied risk: %v", next.Actions)
	}
}

func TestRevise_LeavesSoundFieldsAlone(t *testing.T) {
	sp := &sparseSpecialist{rec: schema.Recommendation{
		ID: "r2", SpecialistID: "sparse", Tier: schema.Tier1,
		Summary: "tighten the query plan",
		Actions: []string{"profile the slow path", "add the missing index", "verify in staging"},
		Timeline: "1-2 days", Confidence: 0.5,
	}}
	prev := schema.Recommendation{ID: "r1", Confidence: 0.9, Revision: 0}

	r := New(nil)
	next, err := r.Revise(context.Background(), sp, testAnalysis(), specialist.Request{}, prev, failedAssessment())
	if err != nil {
		t.Fatalf("revise: %v", err)
	}
	if next.Summary != "tighten the query plan" {
		t.Errorf("summary rewritten without cause: %q", next.Summary)
	}
	if next.Timeline != "1-2 days" {
		t.Errorf("timeline rewritten without cause: %q", next.Timeline)
	}
	// Analysis risk factors still get surfaced.
	if len(next.Risks) != 1 {
		t.Errorf("risks = %v", next.Risks)
	}
}

func TestRevise_ConfidenceNeverRises(t *testing.T) {
	sp := &sparseSpecialist{rec: schema.Recommendation{
		ID: "r2", SpecialistID: "sparse", Tier: schema.Tier1,
		Summary: "second draft", Confidence: 0.9,
	}}
	prev := schema.Recommendation{ID: "r1", Confidence: 0.4, Revision: 1}

	r := New(nil)
	next, err := r.Revise(context.Background(), sp, testAnalysis(), specialist.Request{}, prev, failedAssessment())
	if err != nil {
		t.Fatalf("revise: %v", err)
	}
	if next.Confidence != 0.4 {
		t.Errorf("confidence = %.2f, want clamped to 0.4", next.Confidence)
	}
	if next.Revision != 2 {
		t.Errorf("revision = %d, want 2", next.Revision)
	}
}

func TestRevise_ModelRewritesSummary(t *testing.T) {
	sp := &sparseSpecialist{rec: schema.Recommendation{
		ID: "r2", SpecialistID: "sparse", Tier: schema.Tier1,
		Summary: "rule-based summary", Confidence: 0.6,
	}}
	prev := schema.Recommendation{ID: "r1", Summary: "first draft", Confidence: 0.6}

	mock := adapter.NewMockAdapter()
	r := New(nil)
	r.UseModel(mock, "mock-1")

	next, err := r.Revise(context.Background(), sp, testAnalysis(), specialist.Request{}, prev, failedAssessment())
	if err != nil {
		t.Fatalf("revise: %v", err)
	}
	if !strings.HasPrefix(next.Summary, "mock response:") {
		t.Errorf("summary not model-rewritten: %q", next.Summary)
	}
	if mock.Calls() != 1 {
		t.Errorf("calls = %d, want 1", mock.Calls())
	}
}

func TestRevise_ModelFailureDegradesToRuleBased(t *testing.T) {
	sp := &sparseSpecialist{rec: schema.Recommendation{
		ID: "r2", SpecialistID: "sparse", Tier: schema.Tier1,
		Summary: "rule-based summary", Confidence: 0.6,
	}}
	prev := schema.Recommendation{ID: "r1", Summary: "first draft", Confidence: 0.6}

	mock := adapter.NewMockAdapter()
	mock.FailFirst(1, &adapter.AdapterError{Status: 400, Err: fmt.Errorf("bad request")})
	r := New(nil)
	r.UseModel(mock, "mock-1")

	next, err := r.Revise(context.Background(), sp, testAnalysis(), specialist.Request{}, prev, failedAssessment())
	if err != nil {
		t.Fatalf("revise: %v", err)
	}
	if next.Summary != "rule-based summary" {
		t.Errorf("summary = %q, want rule-based fallback", next.Summary)
	}
	if mock.Calls() != 1 {
		t.Errorf("permanent failure retried: calls = %d", mock.Calls())
	}
}

func TestRevise_TransientModelFailureRetriesOnce(t *testing.T) {
	sp := &sparseSpecialist{rec: schema.Recommendation{
		ID: "r2", SpecialistID: "sparse", Tier: schema.Tier1,
		Summary: "rule-based summary", Confidence: 0.6,
	}}
	prev := schema.Recommendation{ID: "r1", Summary: "first draft", Confidence: 0.6}

	mock := adapter.NewMockAdapter()
	mock.FailFirst(1, nil)
	r := New(nil)
	r.UseModel(mock, "mock-1")

	next, err := r.Revise(context.Background(), sp, testAnalysis(), specialist.Request{}, prev, failedAssessment())
	if err != nil {
		t.Fatalf("revise: %v", err)
	}
	if !strings.HasPrefix(next.Summary, "mock response:") {
		t.Errorf("retry did not recover: %q", next.Summary)
	}
	if mock.Calls() != 2 {
		t.Errorf("calls = %d, want 2", mock.Calls())
	}
}

func TestGuidancePrompt(t *testing.T) {
	prev := schema.Recommendation{Summary: "first draft", Revision: 0}
	prompt := GuidancePrompt(prev, failedAssessment())

	if !strings.Contains(prompt, "first draft") {
		t.Error("prompt missing previous summary")
	}
	if !strings.Contains(prompt, "0.42 (minimal)") {
		t.Error("prompt missing overall verdict")
	}
	if !strings.Contains(prompt, "recommendation-completeness: 0.30") {
		t.Error("prompt missing dimension scores")
	}
	if !strings.Contains(prompt, "Required improvements:") {
		t.Error("prompt missing improvements section")
	}
	if !strings.Contains(prompt, "Do not repeat the previous text") {
		t.Error("prompt missing repeat warning")
	}
	// Dimensions render in sorted order.
	if strings.Index(prompt, "recommendation-completeness") > strings.Index(prompt, "risk-coverage") {
		t.Error("dimensions not sorted")
	}
}

func TestEscalationNote(t *testing.T) {
	prev := schema.Recommendation{Summary: "first draft", Revision: 1}
	note := EscalationNote(prev, failedAssessment())

	if !strings.Contains(note, "after revision 1") {
		t.Errorf("note = %q", note)
	}
	if !strings.Contains(note, "0.42 (minimal)") {
		t.Errorf("note = %q", note)
	}
	if !strings.Contains(note, "unresolved:") {
		t.Errorf("note = %q", note)
	}
}
