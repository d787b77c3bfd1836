package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zen-systems/tiergate/pkg/audit"
	"github.com/zen-systems/tiergate/pkg/consult"
	"github.com/zen-systems/tiergate/pkg/learn"
	"github.com/zen-systems/tiergate/pkg/router"
	"github.com/zen-systems/tiergate/pkg/schema"
	"github.com/zen-systems/tiergate/pkg/trace"
)

// Result is the outcome of one Execute call.
type Result struct {
	Fingerprint     schema.Fingerprint
	Decision        router.RoutingDecision
	Recommendation  schema.Recommendation
	Quality         schema.QualityAssessment
	FromCache       bool
	EscalationTrail []schema.EscalationHop
	SpecialistID    string
	FinalTier       schema.Tier
	CostUnits       float64
	// GateFailure is set when the recommendation stayed below the
	// acceptable threshold after its revision and nothing higher could
	// take the task. The caller decides whether to accept it.
	GateFailure *schema.QualityGateError
}

// Route classifies a task. Pure: no cache reads, no writes, safe to
// call repeatedly.
func (e *Engine) Route(task schema.Task) router.RoutingDecision {
	vec := e.scorer.Score(task)
	dec := e.classifier.Classify(vec, task)
	e.log.Debug("task routed",
		zap.String("tier", dec.Tier.String()),
		zap.Float64("score", dec.NumericScore),
		zap.Float64("confidence", dec.Confidence),
		zap.String("domain", dec.Domain))
	return dec
}

// Execute runs the consultation for a routed task. Identical
// fingerprints within TTL are served from the cache; concurrent calls
// on the same fingerprint share a single consultation.
func (e *Engine) Execute(ctx context.Context, dec router.RoutingDecision, task schema.Task) (Result, error) {
	if err := dec.Validate(); err != nil {
		return Result{}, err
	}
	fp, err := schema.ComputeFingerprint(task, dec.Domain, dec.Tier)
	if err != nil {
		return Result{}, fmt.Errorf("fingerprint: %w", err)
	}

	v, shared, err := e.flight.Do(fp, func() (any, error) {
		res, err := e.executeOnce(ctx, dec, task, fp)
		if err != nil {
			return nil, err
		}
		return res, nil
	})
	if err != nil {
		return Result{Fingerprint: fp, Decision: dec}, err
	}
	res := v.(Result)
	if shared {
		res.FromCache = true
	}
	return res, nil
}

func (e *Engine) executeOnce(ctx context.Context, dec router.RoutingDecision, task schema.Task, fp schema.Fingerprint) (Result, error) {
	entry, ok, err := e.store.Get(ctx, fp)
	if err != nil {
		e.log.Warn("cache read failed",
			zap.String("task", fp.Short()), zap.Error(err))
	}
	if ok {
		return e.serveCached(ctx, dec, task, fp, entry), nil
	}
	e.log.Debug("cache miss", zap.String("task", fp.Short()))

	res, err := e.runner.Consult(ctx, consult.Params{
		Task:        task,
		Fingerprint: fp,
		Decision:    dec,
		Domains:     e.scorer.Domains(task),
		Terms:       e.scorer.Terms(task),
	})
	out := Result{
		Fingerprint:     fp,
		Decision:        dec,
		Recommendation:  res.Recommendation,
		Quality:         res.Quality,
		EscalationTrail: res.Escalations,
		SpecialistID:    res.SpecialistID,
		FinalTier:       res.FinalTier,
		CostUnits:       res.CostUnits,
		GateFailure:     res.GateFailure,
	}
	if err != nil {
		e.reportFailure(fp, res, err)
		return out, err
	}

	// Abandoned tasks must not reach the shared store, even when the
	// last specialist step completed.
	if ctx.Err() != nil {
		return out, ctx.Err()
	}

	e.persist(ctx, task, fp, res, e.outcomeFrom(dec, fp, res))
	e.noteOutcome(ctx)
	e.writeTrace(task, fp, out)

	e.log.Info("task executed",
		zap.String("task", fp.Short()),
		zap.String("routed", dec.Tier.String()),
		zap.String("final", res.FinalTier.String()),
		zap.Int("hops", len(res.Escalations)),
		zap.Float64("gate", res.Quality.OverallScore),
		zap.Bool("passed", res.Quality.Passed),
		zap.Float64("cost", res.CostUnits))
	return out, nil
}

// serveCached replays a stored consultation. The hit is logged as an
// outcome so pattern stats can report cache rates, but it carries no
// calibration signal.
func (e *Engine) serveCached(ctx context.Context, dec router.RoutingDecision, task schema.Task, fp schema.Fingerprint, entry *schema.CacheEntry) Result {
	hit := entry.Outcome
	hit.FromCache = true
	hit.CostUnits = 0
	hit.At = e.clock.Now()
	if err := e.store.LogOutcome(ctx, hit); err != nil {
		e.log.Warn("outcome log failed",
			zap.String("task", fp.Short()), zap.Error(err))
	}

	out := Result{
		Fingerprint:    fp,
		Decision:       dec,
		Recommendation: entry.Recommendation,
		Quality:        entry.Quality,
		FromCache:      true,
		SpecialistID:   entry.SpecialistID,
		FinalTier:      entry.Outcome.FinalTier,
	}
	e.writeTrace(task, fp, out)
	e.log.Info("cache hit",
		zap.String("task", fp.Short()),
		zap.String("tier", entry.Outcome.FinalTier.String()))
	return out
}

func (e *Engine) outcomeFrom(dec router.RoutingDecision, fp schema.Fingerprint, res consult.Result) schema.Outcome {
	climbs := len(res.Escalations)
	if dec.Tier > schema.TierDirect && climbs > 0 {
		// The placement hop is context transfer, not an escalation
		// signal.
		climbs--
	}
	return schema.Outcome{
		Fingerprint: fp,
		Domain:      dec.Domain,
		Tier:        dec.Tier,
		FinalTier:   res.FinalTier,
		Score:       dec.NumericScore,
		Vector:      dec.Vector,
		GateScore:   res.Quality.OverallScore,
		GatePassed:  res.Quality.Passed,
		Escalations: climbs,
		CostUnits:   res.CostUnits,
		At:          e.clock.Now(),
	}
}

func (e *Engine) persist(ctx context.Context, task schema.Task, fp schema.Fingerprint, res consult.Result, outcome schema.Outcome) {
	now := e.clock.Now()
	entry := schema.CacheEntry{
		Key:            fp,
		SpecialistID:   res.SpecialistID,
		Recommendation: res.Recommendation,
		Quality:        res.Quality,
		Outcome:        outcome,
		CreatedAt:      now,
		ExpiresAt:      now.Add(e.ttl.For(task.Priority())),
	}
	if err := entry.Validate(); err != nil {
		e.log.Warn("cache entry invalid, not stored",
			zap.String("task", fp.Short()), zap.Error(err))
	} else if err := e.store.Put(ctx, entry); err != nil {
		e.log.Warn("cache write failed",
			zap.String("task", fp.Short()), zap.Error(err))
	}

	if err := outcome.Validate(); err != nil {
		e.log.Warn("outcome invalid, not logged",
			zap.String("task", fp.Short()), zap.Error(err))
		return
	}
	if err := e.store.LogOutcome(ctx, outcome); err != nil {
		e.log.Warn("outcome log failed",
			zap.String("task", fp.Short()), zap.Error(err))
	}
}

// reportFailure handles the terminal error paths: escalation-limit
// breaches are logged for operator review and audited unconditionally,
// unresolvable timeouts produce an incident, cancellations are quiet.
func (e *Engine) reportFailure(fp schema.Fingerprint, res consult.Result, err error) {
	var limitErr *schema.EscalationLimitError
	var timeoutErr *schema.TimeoutError

	switch {
	case errors.As(err, &limitErr):
		e.log.Error("escalation limit exceeded",
			zap.String("task", fp.Short()),
			zap.String("tier", limitErr.Tier.String()),
			zap.Int("hops", limitErr.Hops),
			zap.Error(err))
		e.writeIncident(fp, trace.IncidentEscalationLimit, err, res)
		e.auditIncident(fp, limitErr.Hops, res.CostUnits, err)
	case errors.As(err, &timeoutErr):
		e.log.Error("consultation timed out with no tier above",
			zap.String("task", fp.Short()),
			zap.String("tier", timeoutErr.Tier.String()),
			zap.Duration("elapsed", timeoutErr.Elapsed),
			zap.Error(err))
		e.writeIncident(fp, trace.IncidentTimeout, err, res)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		e.log.Warn("task abandoned",
			zap.String("task", fp.Short()), zap.Error(err))
	case schema.IsFatal(err):
		e.log.Error("consultation failed",
			zap.String("task", fp.Short()),
			zap.String("tier", res.FinalTier.String()),
			zap.Error(err))
	default:
		e.log.Warn("consultation failed",
			zap.String("task", fp.Short()),
			zap.String("tier", res.FinalTier.String()),
			zap.Error(err))
	}
}

func (e *Engine) writeTrace(task schema.Task, fp schema.Fingerprint, res Result) {
	if e.tracer == nil {
		return
	}
	rec := trace.Record{
		ID:          uuid.NewString(),
		Timestamp:   e.clock.Now().UTC(),
		Fingerprint: string(fp),
		Task:        task.Description,
		Decision: trace.Decision{
			Tier:         res.Decision.Tier.String(),
			NumericScore: res.Decision.NumericScore,
			Confidence:   res.Decision.Confidence,
			Domain:       res.Decision.Domain,
			Reasoning:    res.Decision.Reasoning,
		},
		FinalTier:  res.FinalTier.String(),
		Specialist: res.SpecialistID,
		Hops:       traceHops(res.EscalationTrail),
		CostUnits:  res.CostUnits,
		FromCache:  res.FromCache,
	}
	if res.Quality.Level != "" {
		rec.Gate = &trace.GateResult{
			DimensionScores: res.Quality.DimensionScores,
			OverallScore:    res.Quality.OverallScore,
			Level:           string(res.Quality.Level),
			Passed:          res.Quality.Passed,
			Improvements:    res.Quality.Improvements,
		}
	}
	if err := e.tracer.WriteRecord(rec); err != nil {
		e.log.Warn("trace write failed",
			zap.String("task", fp.Short()), zap.Error(err))
	}
}

func (e *Engine) writeIncident(fp schema.Fingerprint, kind string, cause error, res consult.Result) {
	if e.tracer == nil {
		return
	}
	inc := trace.Incident{
		ID:          uuid.NewString(),
		Timestamp:   e.clock.Now().UTC(),
		Fingerprint: string(fp),
		Kind:        kind,
		Error:       cause.Error(),
		Hops:        traceHops(res.Escalations),
		CostUnits:   res.CostUnits,
	}
	if err := e.tracer.WriteIncident(inc); err != nil {
		e.log.Warn("incident write failed",
			zap.String("task", fp.Short()), zap.Error(err))
	}
}

func (e *Engine) auditIncident(fp schema.Fingerprint, hops int, cost float64, cause error) {
	if e.auditor == nil {
		return
	}
	rec := audit.Record{
		Kind:    audit.KindEscalationLimit,
		Subject: audit.Subject{Fingerprint: string(fp)},
		Claim: audit.Claim{
			Summary:   cause.Error(),
			Hops:      hops,
			CostUnits: cost,
		},
	}
	if err := e.auditor.Append(rec); err != nil {
		e.log.Warn("audit append failed",
			zap.String("task", fp.Short()), zap.Error(err))
	}
}

func traceHops(hops []schema.EscalationHop) []trace.Hop {
	if len(hops) == 0 {
		return nil
	}
	out := make([]trace.Hop, len(hops))
	for i, h := range hops {
		out[i] = trace.Hop{
			FromTier:       h.FromTier.String(),
			ToTier:         h.ToTier.String(),
			FromSpecialist: h.FromSpecialist,
			ToSpecialist:   h.ToSpecialist,
			Reason:         h.Reason,
			At:             h.At,
		}
	}
	return out
}

// noteOutcome counts completed consultations and starts a learning
// cycle every batch. A pending proposal blocks new cycles until it is
// applied or replaced.
func (e *Engine) noteOutcome(ctx context.Context) {
	e.mu.Lock()
	e.sinceCycle++
	due := e.sinceCycle >= e.learner.Batch() && e.pending == nil
	if due {
		e.sinceCycle = 0
	}
	e.mu.Unlock()
	if !due {
		return
	}
	if _, err := e.Propose(ctx); err != nil {
		e.log.Warn("calibration cycle failed", zap.Error(err))
	}
}

// Propose runs a learning cycle over the outcome history now. The
// returned proposal (nil when no adjustment is warranted) is held as
// pending until ApplyPending adopts it or another Propose replaces it.
// Proposals are never applied silently.
func (e *Engine) Propose(ctx context.Context) (*learn.Proposal, error) {
	history, err := e.store.History(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("outcome history: %w", err)
	}
	prop := e.learner.Propose(history, e.classifier.Calibration())

	e.mu.Lock()
	e.pending = prop
	e.mu.Unlock()

	if prop != nil {
		e.log.Info("calibration proposal pending",
			zap.String("proposal", prop.ID),
			zap.Int("based_on", prop.BasedOn),
			zap.String("impact", prop.ExpectedImpact))
	}
	return prop, nil
}

// PendingProposal returns the proposal awaiting adoption, if any.
func (e *Engine) PendingProposal() *learn.Proposal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

// ApplyPending adopts the pending calibration proposal. This is the
// explicit apply step; no learned state reaches the classifier without
// it. The application is audited.
func (e *Engine) ApplyPending() error {
	e.mu.Lock()
	prop := e.pending
	e.mu.Unlock()
	if prop == nil {
		return fmt.Errorf("no pending calibration proposal")
	}

	if err := prop.Apply(e.classifier, e.log); err != nil {
		return err
	}

	e.mu.Lock()
	e.pending = nil
	e.mu.Unlock()

	e.auditApply(prop)
	return nil
}

func (e *Engine) auditApply(prop *learn.Proposal) {
	if e.auditor == nil {
		return
	}
	cal := prop.Calibration
	rec := audit.Record{
		Kind:    audit.KindThresholdApply,
		Subject: audit.Subject{ProposalID: prop.ID},
		Claim: audit.Claim{
			Summary:     fmt.Sprintf("calibration applied after %d outcomes", prop.BasedOn),
			BasedOn:     prop.BasedOn,
			Rationale:   prop.Rationale,
			Calibration: &cal,
		},
	}
	if err := e.auditor.Append(rec); err != nil {
		e.log.Warn("audit append failed",
			zap.String("proposal", prop.ID), zap.Error(err))
	}
}
