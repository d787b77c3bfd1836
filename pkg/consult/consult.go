// Package consult runs the consultation loop. A routed task resolves a
// specialist at its tier, collects analysis and a recommendation,
// evaluates the specialist's handoff criteria, and climbs tiers through
// validated handoff packages until a recommendation passes the quality
// gate or nothing higher remains. Hops within one task are strictly
// sequential and strictly upward.
package consult

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zen-systems/tiergate/pkg/gate"
	"github.com/zen-systems/tiergate/pkg/handoff"
	"github.com/zen-systems/tiergate/pkg/registry"
	"github.com/zen-systems/tiergate/pkg/revise"
	"github.com/zen-systems/tiergate/pkg/router"
	"github.com/zen-systems/tiergate/pkg/schema"
	"github.com/zen-systems/tiergate/pkg/specialist"
	"github.com/zen-systems/tiergate/pkg/store"
)

// Timeouts bounds specialist work per tier. DIRECT and TIER_1 always
// run under the caller's context unmodified; the upper tiers may invoke
// slower analyses and carry a mandatory deadline.
type Timeouts struct {
	Tier2 time.Duration
	Tier3 time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{Tier2: 30 * time.Second, Tier3: 60 * time.Second}
}

// For returns the deadline for a tier; zero means none.
func (t Timeouts) For(tier schema.Tier) time.Duration {
	switch tier {
	case schema.Tier2:
		return t.Tier2
	case schema.Tier3:
		return t.Tier3
	default:
		return 0
	}
}

// CostTable prices one consultation step per tier, in abstract units.
type CostTable struct {
	Direct float64
	Tier1  float64
	Tier2  float64
	Tier3  float64
}

func DefaultCostTable() CostTable {
	return CostTable{Direct: 1, Tier1: 2, Tier2: 5, Tier3: 10}
}

func (c CostTable) For(tier schema.Tier) float64 {
	switch tier {
	case schema.TierDirect:
		return c.Direct
	case schema.Tier1:
		return c.Tier1
	case schema.Tier2:
		return c.Tier2
	default:
		return c.Tier3
	}
}

// Params carries one routed task into the loop. Domains and Terms come
// from the scorer (primary domain first, detected terminology) and
// drive specialist election.
type Params struct {
	Task        schema.Task
	Fingerprint schema.Fingerprint
	Decision    router.RoutingDecision
	Domains     []string
	Terms       []string
}

// Result is the completed consultation. Escalations records every tier
// transfer including the initial routing placement; GateFailure is set
// when the returned recommendation stayed below the acceptable
// threshold after its revision and no higher tier could take it.
type Result struct {
	Recommendation schema.Recommendation
	Quality        schema.QualityAssessment
	Analysis       schema.Analysis
	SpecialistID   string
	FinalTier      schema.Tier
	Escalations    []schema.EscalationHop
	CostUnits      float64
	GateFailure    *schema.QualityGateError
}

// Options configures a Runner. Zero values take the defaults; Budget 0
// means uncapped.
type Options struct {
	Timeouts Timeouts
	Costs    CostTable
	Budget   float64
	Clock    store.Clock
	Logger   *zap.Logger
}

// Runner executes consultations. Safe for concurrent use across tasks;
// a single task's hops run sequentially on the calling goroutine.
type Runner struct {
	registry *registry.Registry
	gate     *gate.Gate
	reviser  *revise.Reviser
	timeouts Timeouts
	costs    CostTable
	budget   float64
	clock    store.Clock
	log      *zap.Logger
}

func New(reg *registry.Registry, g *gate.Gate, rev *revise.Reviser, opts Options) *Runner {
	r := &Runner{
		registry: reg,
		gate:     g,
		reviser:  rev,
		timeouts: opts.Timeouts,
		costs:    opts.Costs,
		budget:   opts.Budget,
		clock:    opts.Clock,
		log:      opts.Logger,
	}
	if r.gate == nil {
		r.gate = gate.New()
	}
	if r.reviser == nil {
		r.reviser = revise.New(nil)
	}
	if r.timeouts == (Timeouts{}) {
		r.timeouts = DefaultTimeouts()
	}
	if r.costs == (CostTable{}) {
		r.costs = DefaultCostTable()
	}
	if r.clock == nil {
		r.clock = store.SystemClock()
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	return r
}

// intent is an escalation a criterion asked for.
type intent struct {
	to           schema.Tier
	toSpecialist string
	reason       string
}

// tierOutcome is one tier's pre-gate work product.
type tierOutcome struct {
	analysis schema.Analysis
	rec      schema.Recommendation
	intent   *intent
}

// Consult runs the full loop for one routed task. Recoverable failures
// that leave a usable recommendation return it inside the Result;
// fatal errors and unresolvable timeouts return the partial Result
// (trail, cost) alongside the error so callers can still trace what
// happened. Cancellation is honored between steps, never inside a
// specialist call.
func (r *Runner) Consult(ctx context.Context, p Params) (Result, error) {
	res := Result{FinalTier: p.Decision.Tier}
	tier := p.Decision.Tier
	domain := p.Decision.Domain

	var pending *schema.HandoffPackage
	pinned := ""
	hops := 0
	climbBlocked := false

	// Routing above DIRECT is itself a transfer: the placement hop
	// carries a validated handoff so the receiving tier starts with
	// full context, architect shape included when TIER_3 is entered.
	if tier > schema.TierDirect {
		reason := fmt.Sprintf("complexity score %.2f requires %s consultation", p.Decision.NumericScore, tier)
		pkg, err := r.buildHandoff(r.stateFor(p, schema.TierDirect, tier, reason, nil))
		if err != nil {
			return res, err
		}
		pending = &pkg
		r.addHop(&res, schema.TierDirect, tier, "", reason)
	}

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		sp, err := r.resolve(p, domain, tier, pinned)
		if err != nil {
			return res, err
		}
		pinned = ""
		backfill(&res, sp.ID())
		res.FinalTier = tier
		res.SpecialistID = sp.ID()
		res.CostUnits += r.costs.For(tier)

		req := specialist.Request{
			Task:       p.Task,
			Vector:     p.Decision.Vector,
			Domain:     domain,
			Domains:    p.Domains,
			Confidence: p.Decision.Confidence,
			Handoff:    pending,
		}

		out, err := r.consultAt(ctx, sp, p, req)
		if err != nil {
			var te *schema.TimeoutError
			if !errors.As(err, &te) {
				return res, err
			}
			// Partial analysis is discarded; the timeout is
			// escalation-eligible when anything remains above.
			next, ok := tier.Next()
			if !ok || hops >= schema.MaxEscalationHops ||
				climbBlocked || r.overBudget(res.CostUnits, next) {
				return res, te
			}
			r.log.Warn("consultation timed out",
				zap.String("task", p.Fingerprint.Short()),
				zap.String("tier", tier.String()),
				zap.Duration("elapsed", te.Elapsed))
			pending, err = r.climb(&res, p, sp, next, te.Error(), nil)
			if err != nil {
				return res, err
			}
			tier = next
			hops++
			continue
		}

		if out.intent != nil {
			to := out.intent.to
			if !to.Valid() || !to.Above(tier) {
				return res, &schema.InvalidEscalationError{Fingerprint: p.Fingerprint, From: tier, To: to}
			}
			if hops >= schema.MaxEscalationHops {
				return res, &schema.EscalationLimitError{Fingerprint: p.Fingerprint, Tier: tier, Hops: hops + 1}
			}
			if r.overBudget(res.CostUnits, to) {
				climbBlocked = true
				r.log.Warn("escalation refused by budget",
					zap.String("task", p.Fingerprint.Short()),
					zap.String("to", to.String()),
					zap.Float64("spent", res.CostUnits),
					zap.Float64("budget", r.budget))
			} else {
				pending, err = r.climb(&res, p, sp, to, out.intent.reason, &out.analysis)
				if err != nil {
					return res, err
				}
				tier = to
				hops++
				pinned = out.intent.toSpecialist
				continue
			}
		}

		rec, qa, err := r.finishAt(ctx, sp, p, req, out)
		if err != nil {
			var te *schema.TimeoutError
			if !errors.As(err, &te) {
				return res, err
			}
			// The revision timed out. The draft and its verdict are
			// not worth caching; climb if possible.
			next, ok := tier.Next()
			if !ok || hops >= schema.MaxEscalationHops ||
				climbBlocked || r.overBudget(res.CostUnits, next) {
				return res, te
			}
			pending, err = r.climb(&res, p, sp, next, te.Error(), &out.analysis)
			if err != nil {
				return res, err
			}
			tier = next
			hops++
			continue
		}

		res.Recommendation = rec
		res.Quality = qa
		res.Analysis = out.analysis

		if qa.Passed {
			return res, nil
		}

		next, ok := tier.Next()
		if qa.EscalationNeeded && ok && hops < schema.MaxEscalationHops &&
			!climbBlocked && !r.overBudget(res.CostUnits, next) {
			pending, err = r.climb(&res, p, sp, next, revise.EscalationNote(rec, qa), &out.analysis)
			if err != nil {
				return res, err
			}
			tier = next
			hops++
			continue
		}

		// Nothing higher can take it; the degraded recommendation
		// stands and the caller decides what to do with it.
		res.GateFailure = &schema.QualityGateError{
			Fingerprint:  p.Fingerprint,
			Tier:         tier,
			Score:        qa.OverallScore,
			Improvements: append([]string{}, qa.Improvements...),
		}
		r.log.Warn("degraded recommendation returned",
			zap.String("task", p.Fingerprint.Short()),
			zap.String("tier", tier.String()),
			zap.Float64("score", qa.OverallScore))
		return res, nil
	}
}

// consultAt runs one tier's analyze and recommend steps under the
// tier's deadline, then evaluates the specialist's handoff criteria in
// declared order. The first criterion that holds wins.
func (r *Runner) consultAt(ctx context.Context, sp specialist.Specialist, p Params, req specialist.Request) (tierOutcome, error) {
	var out tierOutcome

	stepCtx, cancel := r.stepCtx(ctx, sp.Tier())
	defer cancel()
	start := r.clock.Now()

	analysis, err := sp.Analyze(stepCtx, req)
	if serr := r.stepErr("analyze", err, stepCtx, ctx, sp, p, start); serr != nil {
		return out, serr
	}

	rec, err := sp.Recommend(stepCtx, analysis, req)
	if serr := r.stepErr("recommend", err, stepCtx, ctx, sp, p, start); serr != nil {
		return out, serr
	}

	out.analysis = analysis
	out.rec = rec
	for _, crit := range sp.HandoffCriteria() {
		if sp.EvaluateHandoff(crit, analysis, req) {
			out.intent = &intent{
				to:           crit.TargetTier,
				toSpecialist: crit.TargetSpecialist,
				reason:       crit.Reason,
			}
			break
		}
	}
	return out, nil
}

// finishAt gates the tier's recommendation and revises it once when it
// falls short. The revision runs under a fresh tier deadline because it
// may call the specialist again.
func (r *Runner) finishAt(ctx context.Context, sp specialist.Specialist, p Params, req specialist.Request, out tierOutcome) (schema.Recommendation, schema.QualityAssessment, error) {
	qa := r.gate.Assess(out.rec, p.Task, sp)
	if qa.Passed {
		return out.rec, qa, nil
	}
	if err := ctx.Err(); err != nil {
		return out.rec, qa, err
	}

	stepCtx, cancel := r.stepCtx(ctx, sp.Tier())
	defer cancel()
	start := r.clock.Now()

	revised, err := r.reviser.Revise(stepCtx, sp, out.analysis, req, out.rec, qa)
	if serr := r.stepErr("revise", err, stepCtx, ctx, sp, p, start); serr != nil {
		return out.rec, qa, serr
	}

	qa = r.gate.Assess(revised, p.Task, sp)
	r.log.Info("recommendation revised",
		zap.String("task", p.Fingerprint.Short()),
		zap.String("tier", sp.Tier().String()),
		zap.Float64("score", qa.OverallScore),
		zap.Bool("passed", qa.Passed))
	return revised, qa, nil
}

// resolve finds the next specialist. A criterion that named its target
// pins the lookup to that id; the pin must land on the target tier.
func (r *Runner) resolve(p Params, domain string, tier schema.Tier, pinned string) (specialist.Specialist, error) {
	if pinned != "" {
		sp, ok := r.registry.Get(pinned)
		if !ok || sp.Tier() != tier {
			return nil, &schema.NoSpecialistError{Fingerprint: p.Fingerprint, Domain: domain, Tier: tier}
		}
		return sp, nil
	}
	return r.registry.Find(p.Fingerprint, domain, tier, p.Terms)
}

// climb executes one escalation hop: build and validate the handoff
// the next tier receives, then record the transfer on the trail.
func (r *Runner) climb(res *Result, p Params, from specialist.Specialist, to schema.Tier, reason string, analysis *schema.Analysis) (*schema.HandoffPackage, error) {
	pkg, err := r.buildHandoff(r.stateFor(p, from.Tier(), to, reason, analysis))
	if err != nil {
		return nil, err
	}
	r.addHop(res, from.Tier(), to, from.ID(), reason)
	r.log.Info("escalating consultation",
		zap.String("task", p.Fingerprint.Short()),
		zap.String("from", from.Tier().String()),
		zap.String("to", to.String()),
		zap.String("reason", reason))
	return &pkg, nil
}

func (r *Runner) stateFor(p Params, from, to schema.Tier, reason string, analysis *schema.Analysis) handoff.State {
	state := handoff.State{
		Task:        p.Task,
		Fingerprint: p.Fingerprint,
		Vector:      p.Decision.Vector,
		Score:       p.Decision.NumericScore,
		Domain:      p.Decision.Domain,
		Domains:     p.Domains,
		FromTier:    from,
		ToTier:      to,
		Reason:      reason,
		Analysis:    analysis,
		Now:         r.clock.Now(),
	}
	if analysis != nil {
		state.Completed = append([]string{}, analysis.Findings...)
	}
	return state
}

// buildHandoff validates the built package before it crosses a tier
// boundary. An invalid package is enriched once and rebuilt; if it is
// still invalid the escalation fails.
func (r *Runner) buildHandoff(state handoff.State) (schema.HandoffPackage, error) {
	pkg := handoff.Build(state)
	vr := handoff.Validate(pkg)
	if vr.Valid {
		return pkg, nil
	}

	r.log.Warn("handoff package invalid, enriching",
		zap.String("task", state.Fingerprint.Short()),
		zap.Strings("missing", vr.MissingFields))
	pkg = handoff.Build(enrich(state))
	if vr = handoff.Validate(pkg); !vr.Valid {
		return pkg, vr.Err(state.Fingerprint, state.FromTier)
	}
	return pkg, nil
}

// enrich fills the fields validation can name with deterministic
// fallbacks before the package is rebuilt.
func enrich(state handoff.State) handoff.State {
	if strings.TrimSpace(state.Reason) == "" {
		state.Reason = fmt.Sprintf("escalation from %s to %s", state.FromTier, state.ToTier)
	}
	if len(state.Completed) == 0 {
		if state.Analysis != nil && len(state.Analysis.Findings) > 0 {
			state.Completed = append([]string{}, state.Analysis.Findings...)
		} else {
			state.Completed = []string{fmt.Sprintf("triage completed at %s", state.FromTier)}
		}
	}
	return state
}

// stepCtx applies the tier's consultation deadline.
func (r *Runner) stepCtx(ctx context.Context, tier schema.Tier) (context.Context, context.CancelFunc) {
	d := r.timeouts.For(tier)
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// stepErr classifies one specialist step. Caller cancellation wins over
// the tier deadline; a deadline hit maps to TimeoutError and the step's
// output is discarded, never cached. Unknown specialist errors wrap
// with the tier for observability and count as fatal downstream.
func (r *Runner) stepErr(step string, err error, stepCtx, parent context.Context, sp specialist.Specialist, p Params, start time.Time) error {
	if perr := parent.Err(); perr != nil {
		return perr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		return &schema.TimeoutError{
			Fingerprint:  p.Fingerprint,
			Tier:         sp.Tier(),
			SpecialistID: sp.ID(),
			Elapsed:      r.clock.Now().Sub(start),
		}
	}
	if err != nil {
		return fmt.Errorf("%s at %s: %w", step, sp.Tier(), err)
	}
	return nil
}

func (r *Runner) overBudget(spent float64, next schema.Tier) bool {
	return r.budget > 0 && spent+r.costs.For(next) > r.budget
}

func (r *Runner) addHop(res *Result, from, to schema.Tier, fromID, reason string) {
	res.Escalations = append(res.Escalations, schema.EscalationHop{
		ID:             uuid.NewString(),
		FromTier:       from,
		ToTier:         to,
		FromSpecialist: fromID,
		Reason:         reason,
		At:             r.clock.Now(),
	})
}

// backfill names the specialist who actually received the last hop.
func backfill(res *Result, id string) {
	if n := len(res.Escalations); n > 0 && res.Escalations[n-1].ToSpecialist == "" {
		res.Escalations[n-1].ToSpecialist = id
	}
}
