package gate

import (
	"strings"
	"testing"

	"github.com/zen-systems/tiergate/pkg/schema"
	"github.com/zen-systems/tiergate/pkg/specialist"
)

func testSpecialist(t *testing.T, tier schema.Tier, expertise ...string) specialist.Specialist {
	t.Helper()
	g, err := specialist.NewGeneralist("g-test", "general", tier, expertise...)
	if err != nil {
		t.Fatalf("new generalist: %v", err)
	}
	return g
}

func solidRecommendation(tier schema.Tier) schema.Recommendation {
	return schema.Recommendation{
		ID:           "rec-1",
		SpecialistID: "g-test",
		Tier:         tier,
		Summary:      "implement the fix behind a flag",
		Actions: []string{
			"implement the change directly",
			"add regression coverage for the affected path",
			"verify the fix in a staging environment",
		},
		Timeline:   "1-2 days",
		Confidence: 0.9,
	}
}

func TestGate_SolidRecommendationPasses(t *testing.T) {
	g := New()
	sp := testSpecialist(t, schema.Tier1)
	task := schema.NewTask("tidy up the export formatting")

	qa := g.Assess(solidRecommendation(schema.Tier1), task, sp)

	if !qa.Passed {
		t.Fatalf("solid recommendation failed: %.3f %v", qa.OverallScore, qa.Improvements)
	}
	if qa.Level != schema.QualityExcellent {
		t.Errorf("level = %s, want excellent (score %.3f)", qa.Level, qa.OverallScore)
	}
	if len(qa.Improvements) != 0 {
		t.Errorf("improvements = %v, want none", qa.Improvements)
	}
	if len(qa.DimensionScores) != 4 {
		t.Errorf("dimension scores = %d, want the default four", len(qa.DimensionScores))
	}
	if err := qa.Validate(); err != nil {
		t.Errorf("assessment should validate: %v", err)
	}
}

func TestGate_EmptyRecommendationIsMinimal(t *testing.T) {
	g := New()
	sp := testSpecialist(t, schema.Tier1)
	task := schema.NewTask("patch the security hole before the compliance audit")

	rec := schema.Recommendation{
		ID: "rec-2", SpecialistID: "g-test", Tier: schema.Tier1,
		Summary: "look into it", Confidence: 0.3,
	}
	qa := g.Assess(rec, task, sp)

	if qa.Passed || qa.Level != schema.QualityMinimal {
		t.Fatalf("empty recommendation passed: %.3f %s", qa.OverallScore, qa.Level)
	}
	// One improvement per sub-threshold dimension.
	sub := 0
	for _, score := range qa.DimensionScores {
		if score < schema.AcceptableThreshold {
			sub++
		}
	}
	if len(qa.Improvements) != sub {
		t.Errorf("improvements = %d, want one per sub-threshold dimension (%d)", len(qa.Improvements), sub)
	}
	if qa.EscalationNeeded {
		t.Error("first draft must not signal escalation")
	}
}

func TestGate_EscalationNeededAfterFailedRevision(t *testing.T) {
	g := New()
	sp := testSpecialist(t, schema.Tier1)
	task := schema.NewTask("patch the security hole")

	rec := schema.Recommendation{
		ID: "rec-3", SpecialistID: "g-test", Tier: schema.Tier1,
		Summary: "look into it", Confidence: 0.3, Revision: 1,
	}
	qa := g.Assess(rec, task, sp)

	if qa.Level != schema.QualityMinimal {
		t.Fatalf("level = %s, want minimal", qa.Level)
	}
	if !qa.EscalationNeeded {
		t.Error("minimal after one revision must signal escalation")
	}
}

func TestGate_WeightedMean(t *testing.T) {
	fixed := func(name string, weight, score float64) Evaluator {
		return EvaluatorFunc{
			DimName:   name,
			DimWeight: weight,
			Fn: func(schema.Recommendation, schema.Task, specialist.Specialist) (float64, string) {
				return score, "raise " + name
			},
		}
	}
	g := New(fixed("a", 3, 1.0), fixed("b", 1, 0.2))
	sp := testSpecialist(t, schema.Tier1)

	qa := g.Assess(solidRecommendation(schema.Tier1), schema.NewTask("anything"), sp)

	want := (3*1.0 + 1*0.2) / 4
	if diff := qa.OverallScore - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("overall = %.3f, want %.3f", qa.OverallScore, want)
	}
	if len(qa.Improvements) != 1 || qa.Improvements[0] != "raise b" {
		t.Errorf("improvements = %v, want the sub-threshold dimension only", qa.Improvements)
	}
}

func TestGate_LevelBands(t *testing.T) {
	sp := testSpecialist(t, schema.Tier1)
	tests := []struct {
		score float64
		want  schema.QualityLevel
	}{
		{0.95, schema.QualityExcellent},
		{0.90, schema.QualityExcellent},
		{0.89, schema.QualityAcceptable},
		{0.75, schema.QualityAcceptable},
		{0.74, schema.QualityMinimal},
		{0.10, schema.QualityMinimal},
	}
	for _, tt := range tests {
		g := New(EvaluatorFunc{
			DimName: "fixed", DimWeight: 1,
			Fn: func(schema.Recommendation, schema.Task, specialist.Specialist) (float64, string) {
				return tt.score, ""
			},
		})
		qa := g.Assess(solidRecommendation(schema.Tier1), schema.NewTask("anything"), sp)
		if qa.Level != tt.want {
			t.Errorf("score %.2f: level = %s, want %s", tt.score, qa.Level, tt.want)
		}
		if qa.Passed != (tt.score >= schema.AcceptableThreshold) {
			t.Errorf("score %.2f: passed = %v", tt.score, qa.Passed)
		}
	}
}

func TestGate_CustomThresholds(t *testing.T) {
	g := New(EvaluatorFunc{
		DimName: "fixed", DimWeight: 1,
		Fn: func(schema.Recommendation, schema.Task, specialist.Specialist) (float64, string) {
			return 0.6, ""
		},
	})
	g.SetThresholds(0.5, 0.7)
	sp := testSpecialist(t, schema.Tier1)

	qa := g.Assess(solidRecommendation(schema.Tier1), schema.NewTask("anything"), sp)
	if !qa.Passed || qa.Level != schema.QualityAcceptable {
		t.Errorf("relaxed gate verdict = %v %s, want acceptable pass", qa.Passed, qa.Level)
	}
}

func TestExpertiseAlignment(t *testing.T) {
	task := schema.NewTask("investigate the database index regression")

	tests := []struct {
		name      string
		tier      schema.Tier
		recTier   schema.Tier
		expertise []string
		conf      float64
		want      float64
	}{
		{"full alignment", schema.Tier1, schema.Tier1, []string{"database"}, 0.9, 1.0},
		{"tier mismatch", schema.Tier1, schema.Tier2, []string{"database"}, 0.9, 0.6},
		{"no expertise overlap", schema.Tier1, schema.Tier1, []string{"css"}, 0.9, 0.85},
		{"generalist without expertise", schema.Tier1, schema.Tier1, nil, 0.9, 1.0},
		{"shaky confidence", schema.Tier1, schema.Tier1, []string{"database"}, 0.6, 0.85},
		{"low confidence", schema.Tier1, schema.Tier1, []string{"database"}, 0.4, 0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp := testSpecialist(t, tt.tier, tt.expertise...)
			rec := solidRecommendation(tt.recTier)
			rec.Confidence = tt.conf
			got, _ := ExpertiseAlignment{}.Evaluate(rec, task, sp)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("score = %.2f, want %.2f", got, tt.want)
			}
		})
	}
}

func TestCompleteness(t *testing.T) {
	sp := testSpecialist(t, schema.Tier1)
	task := schema.NewTask("anything")

	tests := []struct {
		name   string
		mutate func(*schema.Recommendation)
		want   float64
	}{
		{"complete", func(*schema.Recommendation) {}, 1.0},
		{"no timeline", func(r *schema.Recommendation) { r.Timeline = "" }, 0.7},
		{"two actions", func(r *schema.Recommendation) { r.Actions = r.Actions[:2] }, 0.8},
		{"no actions", func(r *schema.Recommendation) { r.Actions = nil }, 0.6},
		{"bare", func(r *schema.Recommendation) { r.Summary = ""; r.Actions = nil; r.Timeline = "" }, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := solidRecommendation(schema.Tier1)
			tt.mutate(&rec)
			got, _ := Completeness{}.Evaluate(rec, task, sp)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("score = %.2f, want %.2f", got, tt.want)
			}
		})
	}
}

func TestRiskCoverage(t *testing.T) {
	sp := testSpecialist(t, schema.Tier1)

	t.Run("benign task with no risks", func(t *testing.T) {
		rec := solidRecommendation(schema.Tier1)
		got, _ := RiskCoverage{}.Evaluate(rec, schema.NewTask("tidy the export"), sp)
		if got != 0.8 {
			t.Errorf("score = %.2f, want 0.8", got)
		}
	})

	t.Run("risky task with no risks", func(t *testing.T) {
		rec := solidRecommendation(schema.Tier1)
		got, _ := RiskCoverage{}.Evaluate(rec, schema.NewTask("production security migration"), sp)
		if got != 0.3 {
			t.Errorf("score = %.2f, want 0.3", got)
		}
	})

	t.Run("all risks mitigated", func(t *testing.T) {
		rec := solidRecommendation(schema.Tier1)
		rec.Risks = []string{"rollout risk"}
		rec.Actions = append(rec.Actions, "mitigate: rollout risk")
		got, _ := RiskCoverage{}.Evaluate(rec, schema.NewTask("anything"), sp)
		if got != 1.0 {
			t.Errorf("score = %.2f, want 1.0", got)
		}
	})

	t.Run("unmitigated risks", func(t *testing.T) {
		rec := solidRecommendation(schema.Tier1)
		rec.Risks = []string{"rollout risk", "data loss"}
		rec.Actions = append(rec.Actions, "mitigate: rollout risk")
		got, _ := RiskCoverage{}.Evaluate(rec, schema.NewTask("anything"), sp)
		if got != 0.8 {
			t.Errorf("score = %.2f, want 0.8 (half mitigated)", got)
		}
	})
}

func TestViability(t *testing.T) {
	sp := testSpecialist(t, schema.Tier1)
	task := schema.NewTask("anything")

	rec := solidRecommendation(schema.Tier1)
	if got, _ := (Viability{}).Evaluate(rec, task, sp); got != 1.0 {
		t.Errorf("score = %.2f, want 1.0", got)
	}

	rec.Timeline = "eventually"
	if got, _ := (Viability{}).Evaluate(rec, task, sp); got != 0.6 {
		t.Errorf("unbounded timeline score = %.2f, want 0.6", got)
	}

	rec = solidRecommendation(schema.Tier1)
	rec.Actions = []string{strings.Repeat("x", 201)}
	if got, _ := (Viability{}).Evaluate(rec, task, sp); got != 0.7 {
		t.Errorf("oversized action score = %.2f, want 0.7", got)
	}
}
