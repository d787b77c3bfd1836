package consult

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zen-systems/tiergate/pkg/gate"
	"github.com/zen-systems/tiergate/pkg/registry"
	"github.com/zen-systems/tiergate/pkg/revise"
	"github.com/zen-systems/tiergate/pkg/router"
	"github.com/zen-systems/tiergate/pkg/schema"
	"github.com/zen-systems/tiergate/pkg/specialist"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// scripted is a specialist whose every move the test controls.
type scripted struct {
	id             string
	tier           schema.Tier
	expertise      []string
	criteria       []specialist.HandoffCriterion
	fire           map[specialist.Condition]bool
	analysis       schema.Analysis
	rec            schema.Recommendation
	analyzeErr     error
	recommendErr   error
	onAnalyze      func()
	gotReq         *specialist.Request
	analyzeCalls   int
	recommendCalls int
}

func (s *scripted) ID() string          { return s.id }
func (s *scripted) Domain() string      { return "backend" }
func (s *scripted) Tier() schema.Tier   { return s.tier }
func (s *scripted) MaxComplexity() int  { return specialist.CapacityFor(s.tier) }
func (s *scripted) Expertise() []string { return s.expertise }

func (s *scripted) HandoffCriteria() []specialist.HandoffCriterion { return s.criteria }

func (s *scripted) Analyze(ctx context.Context, req specialist.Request) (schema.Analysis, error) {
	s.analyzeCalls++
	s.gotReq = &req
	if s.onAnalyze != nil {
		s.onAnalyze()
	}
	if s.analyzeErr != nil {
		return schema.Analysis{}, s.analyzeErr
	}
	a := s.analysis
	a.SpecialistID = s.id
	a.Tier = s.tier
	if a.Summary == "" {
		a.Summary = "scripted analysis"
	}
	return a, nil
}

func (s *scripted) Recommend(ctx context.Context, analysis schema.Analysis, req specialist.Request) (schema.Recommendation, error) {
	s.recommendCalls++
	if s.recommendErr != nil {
		return schema.Recommendation{}, s.recommendErr
	}
	r := s.rec
	r.SpecialistID = s.id
	r.Tier = s.tier
	if r.ID == "" {
		r.ID = "rec-" + s.id
	}
	if r.Summary == "" {
		r.Summary = "scripted recommendation"
	}
	r.Actions = append([]string{}, s.rec.Actions...)
	r.Risks = append([]string{}, s.rec.Risks...)
	return r, nil
}

func (s *scripted) EvaluateHandoff(c specialist.HandoffCriterion, analysis schema.Analysis, req specialist.Request) bool {
	return s.fire[c.Condition]
}

// solidRec clears the default gate: aligned tier, three actions, a
// bounded timeline, confident.
func solidRec() schema.Recommendation {
	return schema.Recommendation{
		Summary: "stage the refactor behind a flag",
		Actions: []string{
			"implement the change directly",
			"add regression coverage for the affected path",
			"verify the change in a staging environment",
		},
		Timeline:   "1-2 days",
		Confidence: 0.9,
	}
}

func testParams(t *testing.T, tier schema.Tier) Params {
	t.Helper()
	task := schema.NewTask("Refactor the settlement reconciliation pipeline for nightly batches")
	fp, err := schema.ComputeFingerprint(task, "backend", tier)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	return Params{
		Task:        task,
		Fingerprint: fp,
		Decision: router.RoutingDecision{
			Tier:         tier,
			NumericScore: 5.5,
			Confidence:   0.8,
			Domain:       "backend",
			Vector:       schema.ComplexityVector{Scope: 5, Technical: 6, Domain: 5, Risk: 4, Temporal: 3, Stakeholder: 2, Uncertainty: 4, Dependency: 3},
		},
		Domains: []string{"backend"},
		Terms:   []string{"pipeline", "batch"},
	}
}

func newRunner(t *testing.T, g *gate.Gate, opts Options, specs ...specialist.Specialist) *Runner {
	t.Helper()
	reg := registry.New()
	for _, s := range specs {
		if err := reg.Register(s); err != nil {
			t.Fatalf("register %s: %v", s.ID(), err)
		}
	}
	reg.Freeze()
	if opts.Clock == nil {
		opts.Clock = fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	}
	return New(reg, g, revise.New(nil), opts)
}

// scoredGate builds a single-dimension gate the test fully controls.
func scoredGate(fn func(rec schema.Recommendation) (float64, string)) *gate.Gate {
	return gate.New(gate.EvaluatorFunc{
		DimName:   "scripted",
		DimWeight: 1,
		Fn: func(rec schema.Recommendation, _ schema.Task, _ specialist.Specialist) (float64, string) {
			return fn(rec)
		},
	})
}

func passGate() *gate.Gate {
	return scoredGate(func(schema.Recommendation) (float64, string) { return 1, "" })
}

func TestConsult_PassesAtRoutedTier(t *testing.T) {
	t1 := &scripted{id: "t1", tier: schema.Tier1, rec: solidRec()}
	r := newRunner(t, gate.New(), Options{}, t1)
	p := testParams(t, schema.Tier1)

	res, err := r.Consult(context.Background(), p)
	if err != nil {
		t.Fatalf("consult: %v", err)
	}
	if !res.Quality.Passed || res.Quality.Level != schema.QualityExcellent {
		t.Errorf("quality = %.2f %s, want an excellent pass", res.Quality.OverallScore, res.Quality.Level)
	}
	if res.FinalTier != schema.Tier1 || res.SpecialistID != "t1" {
		t.Errorf("resolved %s at %s", res.SpecialistID, res.FinalTier)
	}
	if res.Recommendation.Revision != 0 {
		t.Errorf("revision = %d, want the first draft", res.Recommendation.Revision)
	}
	if res.GateFailure != nil {
		t.Errorf("gate failure set on a passing consultation: %v", res.GateFailure)
	}
	if res.CostUnits != 2 {
		t.Errorf("cost = %.1f, want the tier-1 unit cost", res.CostUnits)
	}

	// Routing above DIRECT records the placement as the first hop.
	if len(res.Escalations) != 1 {
		t.Fatalf("trail length = %d, want the placement hop", len(res.Escalations))
	}
	hop := res.Escalations[0]
	if hop.FromTier != schema.TierDirect || hop.ToTier != schema.Tier1 {
		t.Errorf("placement hop %s -> %s", hop.FromTier, hop.ToTier)
	}
	if hop.ToSpecialist != "t1" {
		t.Errorf("placement hop specialist = %q, want backfilled t1", hop.ToSpecialist)
	}
	if hop.ID == "" || hop.At.IsZero() {
		t.Errorf("hop missing id or timestamp: %+v", hop)
	}

	// The placed tier received a validated handoff with the routing
	// continuity fallback.
	if t1.gotReq == nil || t1.gotReq.Handoff == nil {
		t.Fatal("tier 1 consulted without a handoff package")
	}
	done := t1.gotReq.Handoff.Continuity.CompletedWork
	if len(done) == 0 || done[0] != "complexity scoring" {
		t.Errorf("placement continuity = %v", done)
	}
}

func TestConsult_CriterionEscalatesWithHandoff(t *testing.T) {
	t1 := &scripted{
		id:       "t1",
		tier:     schema.Tier1,
		criteria: specialist.DefaultCriteria(schema.Tier1),
		fire:     map[specialist.Condition]bool{specialist.CondHighRisk: true},
		analysis: schema.Analysis{Findings: []string{"mapped affected modules", "sized the blast radius"}},
	}
	t2 := &scripted{id: "t2", tier: schema.Tier2, rec: solidRec()}
	r := newRunner(t, gate.New(), Options{}, t1, t2)
	p := testParams(t, schema.Tier1)

	res, err := r.Consult(context.Background(), p)
	if err != nil {
		t.Fatalf("consult: %v", err)
	}
	if res.FinalTier != schema.Tier2 || res.SpecialistID != "t2" {
		t.Fatalf("settled at %s with %s, want tier 2", res.FinalTier, res.SpecialistID)
	}
	if res.Recommendation.SpecialistID != "t2" {
		t.Errorf("recommendation from %s, want the escalated tier", res.Recommendation.SpecialistID)
	}
	if res.CostUnits != 7 {
		t.Errorf("cost = %.1f, want both tiers accounted", res.CostUnits)
	}

	if len(res.Escalations) != 2 {
		t.Fatalf("trail length = %d, want placement + escalation", len(res.Escalations))
	}
	hop := res.Escalations[1]
	if hop.FromTier != schema.Tier1 || hop.ToTier != schema.Tier2 {
		t.Errorf("escalation hop %s -> %s", hop.FromTier, hop.ToTier)
	}
	if hop.FromSpecialist != "t1" || hop.ToSpecialist != "t2" {
		t.Errorf("hop specialists %q -> %q", hop.FromSpecialist, hop.ToSpecialist)
	}
	if hop.Reason != "risk exposure requires senior specialist review" {
		t.Errorf("hop reason = %q", hop.Reason)
	}

	// The receiving tier sees the originating analysis in continuity.
	if t2.gotReq == nil || t2.gotReq.Handoff == nil {
		t.Fatal("tier 2 consulted without a handoff package")
	}
	pkg := t2.gotReq.Handoff
	if pkg.FromTier != schema.Tier1 || pkg.ToTier != schema.Tier2 {
		t.Errorf("handoff tiers %s -> %s", pkg.FromTier, pkg.ToTier)
	}
	if pkg.Architect != nil {
		t.Error("generalist handoff carries an architect payload")
	}
	if len(pkg.Continuity.CompletedWork) == 0 || pkg.Continuity.CompletedWork[0] != "mapped affected modules" {
		t.Errorf("continuity completed work = %v", pkg.Continuity.CompletedWork)
	}
}

func TestConsult_RevisionRescuesDraft(t *testing.T) {
	// Drafts fail, revisions pass: the loop must settle after exactly
	// one revision without escalating.
	maturity := scoredGate(func(rec schema.Recommendation) (float64, string) {
		if rec.Revision >= 1 {
			return 1, ""
		}
		return 0.2, "revise the draft"
	})
	t1 := &scripted{id: "t1", tier: schema.Tier1, rec: solidRec()}
	r := newRunner(t, maturity, Options{}, t1)

	res, err := r.Consult(context.Background(), testParams(t, schema.Tier1))
	if err != nil {
		t.Fatalf("consult: %v", err)
	}
	if !res.Quality.Passed {
		t.Fatalf("revised draft failed: %.2f", res.Quality.OverallScore)
	}
	if res.Recommendation.Revision != 1 {
		t.Errorf("revision = %d, want exactly one", res.Recommendation.Revision)
	}
	if len(res.Escalations) != 1 {
		t.Errorf("trail length = %d, want no escalation past placement", len(res.Escalations))
	}
	if t1.recommendCalls != 2 {
		t.Errorf("recommend calls = %d, want draft + revision", t1.recommendCalls)
	}
}

func TestConsult_GateEscalationClimbsToArchitect(t *testing.T) {
	failing := scoredGate(func(schema.Recommendation) (float64, string) {
		return 0.2, "raise everything"
	})
	t1 := &scripted{id: "t1", tier: schema.Tier1, rec: solidRec()}
	t2 := &scripted{id: "t2", tier: schema.Tier2, rec: solidRec()}
	t3 := &scripted{id: "t3", tier: schema.Tier3, rec: solidRec()}
	r := newRunner(t, failing, Options{}, t1, t2, t3)

	res, err := r.Consult(context.Background(), testParams(t, schema.Tier1))
	if err != nil {
		t.Fatalf("consult: %v", err)
	}

	// Every tier revised once, stayed minimal, and passed the task up;
	// the architect's degraded answer is returned for the caller to
	// judge.
	if res.FinalTier != schema.Tier3 {
		t.Fatalf("settled at %s, want the architect tier", res.FinalTier)
	}
	if res.Quality.Passed || !res.Quality.EscalationNeeded {
		t.Errorf("quality = %+v, want a persistent minimal verdict", res.Quality)
	}
	if res.GateFailure == nil {
		t.Fatal("degraded return without a gate failure record")
	}
	if res.GateFailure.Tier != schema.Tier3 || len(res.GateFailure.Improvements) != 1 {
		t.Errorf("gate failure = %+v", res.GateFailure)
	}
	if res.Recommendation.Revision != 1 {
		t.Errorf("final revision = %d, want one per tier", res.Recommendation.Revision)
	}
	if res.CostUnits != 17 {
		t.Errorf("cost = %.1f, want all three tiers accounted", res.CostUnits)
	}

	if len(res.Escalations) != 3 {
		t.Fatalf("trail length = %d, want placement + two climbs", len(res.Escalations))
	}
	for _, hop := range res.Escalations[1:] {
		if !strings.Contains(hop.Reason, "quality gate failed after revision 1") {
			t.Errorf("hop reason = %q", hop.Reason)
		}
	}
	for _, s := range []*scripted{t1, t2, t3} {
		if s.analyzeCalls != 1 || s.recommendCalls != 2 {
			t.Errorf("%s calls = %d/%d, want 1 analysis and 2 drafts", s.id, s.analyzeCalls, s.recommendCalls)
		}
	}
}

func TestConsult_TimeoutEscalates(t *testing.T) {
	t2 := &scripted{id: "t2", tier: schema.Tier2, analyzeErr: context.DeadlineExceeded}
	t3 := &scripted{id: "t3", tier: schema.Tier3, rec: solidRec()}
	r := newRunner(t, passGate(), Options{}, t2, t3)

	res, err := r.Consult(context.Background(), testParams(t, schema.Tier2))
	if err != nil {
		t.Fatalf("consult: %v", err)
	}
	if res.FinalTier != schema.Tier3 || res.SpecialistID != "t3" {
		t.Fatalf("settled at %s with %s, want escalation to tier 3", res.FinalTier, res.SpecialistID)
	}
	if t2.recommendCalls != 0 {
		t.Errorf("timed-out tier recommended %d times, partial work must be discarded", t2.recommendCalls)
	}

	if len(res.Escalations) != 2 {
		t.Fatalf("trail length = %d", len(res.Escalations))
	}
	if !strings.Contains(res.Escalations[1].Reason, "consultation timeout at TIER_2") {
		t.Errorf("hop reason = %q", res.Escalations[1].Reason)
	}

	// Entering the architect tier carries the architect payload even
	// when the previous tier left no analysis behind.
	if t3.gotReq == nil || t3.gotReq.Handoff == nil || t3.gotReq.Handoff.Architect == nil {
		t.Fatal("architect consulted without the architect handoff shape")
	}
}

func TestConsult_TimeoutAtArchitectSurfaces(t *testing.T) {
	t3 := &scripted{id: "t3", tier: schema.Tier3, analyzeErr: context.DeadlineExceeded}
	r := newRunner(t, passGate(), Options{}, t3)

	res, err := r.Consult(context.Background(), testParams(t, schema.Tier3))
	var te *schema.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want a consultation timeout", err)
	}
	if te.Tier != schema.Tier3 || te.SpecialistID != "t3" {
		t.Errorf("timeout = %+v", te)
	}
	if res.Recommendation.ID != "" {
		t.Errorf("partial recommendation leaked: %+v", res.Recommendation)
	}
	if len(res.Escalations) != 1 {
		t.Errorf("trail length = %d, want the placement hop only", len(res.Escalations))
	}
}

func TestConsult_CancellationAbandons(t *testing.T) {
	t.Run("before any step", func(t *testing.T) {
		t1 := &scripted{id: "t1", tier: schema.Tier1, rec: solidRec()}
		r := newRunner(t, passGate(), Options{}, t1)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := r.Consult(ctx, testParams(t, schema.Tier1))
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
		if t1.analyzeCalls != 0 {
			t.Errorf("specialist consulted %d times after cancellation", t1.analyzeCalls)
		}
	})

	t.Run("mid-pipeline after the running step", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		t1 := &scripted{id: "t1", tier: schema.Tier1, rec: solidRec(), onAnalyze: cancel}
		r := newRunner(t, passGate(), Options{}, t1)

		_, err := r.Consult(ctx, testParams(t, schema.Tier1))
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
		if t1.analyzeCalls != 1 || t1.recommendCalls != 0 {
			t.Errorf("calls = %d/%d, want the running step to finish and nothing after",
				t1.analyzeCalls, t1.recommendCalls)
		}
	})
}

func TestConsult_BudgetStopsClimb(t *testing.T) {
	t1 := &scripted{
		id:       "t1",
		tier:     schema.Tier1,
		rec:      solidRec(),
		criteria: specialist.DefaultCriteria(schema.Tier1),
		fire:     map[specialist.Condition]bool{specialist.CondOverCapacity: true},
	}
	t2 := &scripted{id: "t2", tier: schema.Tier2, rec: solidRec()}
	r := newRunner(t, passGate(), Options{Budget: 3}, t1, t2)

	res, err := r.Consult(context.Background(), testParams(t, schema.Tier1))
	if err != nil {
		t.Fatalf("consult: %v", err)
	}
	if res.FinalTier != schema.Tier1 {
		t.Fatalf("settled at %s, want the budget to hold tier 1", res.FinalTier)
	}
	if t2.analyzeCalls != 0 {
		t.Errorf("tier 2 consulted %d times against the budget", t2.analyzeCalls)
	}
	if res.CostUnits != 2 {
		t.Errorf("cost = %.1f", res.CostUnits)
	}
	if len(res.Escalations) != 1 {
		t.Errorf("trail length = %d, want the placement hop only", len(res.Escalations))
	}
	if !res.Quality.Passed {
		t.Errorf("held tier's recommendation failed: %.2f", res.Quality.OverallScore)
	}
}

func TestConsult_PinnedTarget(t *testing.T) {
	pinCriteria := []specialist.HandoffCriterion{{
		Condition:        specialist.CondHighRisk,
		TargetTier:       schema.Tier2,
		TargetSpecialist: "t2-pin",
		Reason:           "named senior review",
	}}

	t.Run("pin elects the named specialist", func(t *testing.T) {
		t1 := &scripted{
			id: "t1", tier: schema.Tier1, criteria: pinCriteria,
			fire: map[specialist.Condition]bool{specialist.CondHighRisk: true},
		}
		t2a := &scripted{id: "t2-a", tier: schema.Tier2, rec: solidRec()}
		t2pin := &scripted{id: "t2-pin", tier: schema.Tier2, rec: solidRec()}
		r := newRunner(t, passGate(), Options{}, t1, t2a, t2pin)

		res, err := r.Consult(context.Background(), testParams(t, schema.Tier1))
		if err != nil {
			t.Fatalf("consult: %v", err)
		}
		if res.SpecialistID != "t2-pin" {
			t.Errorf("resolved %s, want the pinned id over the election", res.SpecialistID)
		}
		if res.Escalations[1].ToSpecialist != "t2-pin" {
			t.Errorf("hop specialist = %q", res.Escalations[1].ToSpecialist)
		}
	})

	t.Run("missing pin is fatal", func(t *testing.T) {
		t1 := &scripted{
			id: "t1", tier: schema.Tier1,
			criteria: []specialist.HandoffCriterion{{
				Condition:        specialist.CondHighRisk,
				TargetTier:       schema.Tier2,
				TargetSpecialist: "ghost",
				Reason:           "named senior review",
			}},
			fire: map[specialist.Condition]bool{specialist.CondHighRisk: true},
		}
		t2 := &scripted{id: "t2", tier: schema.Tier2, rec: solidRec()}
		r := newRunner(t, passGate(), Options{}, t1, t2)

		_, err := r.Consult(context.Background(), testParams(t, schema.Tier1))
		var nse *schema.NoSpecialistError
		if !errors.As(err, &nse) {
			t.Fatalf("err = %v, want NoSpecialistError", err)
		}
		if nse.Tier != schema.Tier2 {
			t.Errorf("error tier = %s", nse.Tier)
		}
	})
}

func TestConsult_NoSpecialistIsFatal(t *testing.T) {
	t1 := &scripted{id: "t1", tier: schema.Tier1, rec: solidRec()}
	r := newRunner(t, passGate(), Options{}, t1)

	res, err := r.Consult(context.Background(), testParams(t, schema.Tier2))
	var nse *schema.NoSpecialistError
	if !errors.As(err, &nse) {
		t.Fatalf("err = %v, want NoSpecialistError", err)
	}
	if nse.Domain != "backend" || nse.Tier != schema.Tier2 {
		t.Errorf("error = %+v", nse)
	}
	if !schema.IsFatal(err) {
		t.Error("missing specialist must be fatal")
	}
	if len(res.Escalations) != 1 {
		t.Errorf("trail length = %d, want the unserved placement hop", len(res.Escalations))
	}
}

func TestConsult_InvalidEscalationRejected(t *testing.T) {
	t1 := &scripted{
		id: "t1", tier: schema.Tier1,
		rec: solidRec(),
		criteria: []specialist.HandoffCriterion{{
			Condition:  specialist.CondHighRisk,
			TargetTier: schema.Tier1,
			Reason:     "misconfigured sideways transfer",
		}},
		fire: map[specialist.Condition]bool{specialist.CondHighRisk: true},
	}
	r := newRunner(t, passGate(), Options{}, t1)

	_, err := r.Consult(context.Background(), testParams(t, schema.Tier1))
	var iee *schema.InvalidEscalationError
	if !errors.As(err, &iee) {
		t.Fatalf("err = %v, want InvalidEscalationError", err)
	}
	if iee.From != schema.Tier1 || iee.To != schema.Tier1 {
		t.Errorf("error tiers %s -> %s", iee.From, iee.To)
	}
	if !schema.IsFatal(err) {
		t.Error("sideways escalation must be fatal")
	}
}
