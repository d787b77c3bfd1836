package schema

import (
	"errors"
	"fmt"
	"time"
)

// Engine error taxonomy. Fatal errors abort the pipeline and must never
// reach the cache or learning store; recoverable ones are returned as
// structured results so the caller can retry, enrich, or escalate.
//
// Every error carries the task fingerprint and the tier it arose at.

// NoSpecialistError: no registered specialist for (domain, tier).
// Tier is a cost boundary, not a preference, so there is no fallback.
type NoSpecialistError struct {
	Fingerprint Fingerprint
	Domain      string
	Tier        Tier
}

func (e *NoSpecialistError) Error() string {
	return fmt.Sprintf("no specialist available for domain %q at %s (task %s)",
		e.Domain, e.Tier, e.Fingerprint.Short())
}

func (e *NoSpecialistError) Fatal() bool { return true }

// InvalidEscalationError: a handoff criterion targeted a tier at or
// below the current one. Config error, fatal.
type InvalidEscalationError struct {
	Fingerprint Fingerprint
	From        Tier
	To          Tier
}

func (e *InvalidEscalationError) Error() string {
	return fmt.Sprintf("invalid escalation %s -> %s: tiers only increase (task %s)",
		e.From, e.To, e.Fingerprint.Short())
}

func (e *InvalidEscalationError) Fatal() bool { return true }

// EscalationLimitError: the hop bound was exceeded. Indicates a
// misconfigured handoff criterion; logged for operator review.
type EscalationLimitError struct {
	Fingerprint Fingerprint
	Tier        Tier
	Hops        int
}

func (e *EscalationLimitError) Error() string {
	return fmt.Sprintf("escalation limit exceeded at %s after %d hops (max %d, task %s)",
		e.Tier, e.Hops, MaxEscalationHops, e.Fingerprint.Short())
}

func (e *EscalationLimitError) Fatal() bool { return true }

// HandoffValidationError: the built package is missing required fields.
// Recoverable: the originating tier may enrich and retry.
type HandoffValidationError struct {
	Fingerprint    Fingerprint
	Tier           Tier
	MissingFields  []string
	ContinuityGaps []string
}

func (e *HandoffValidationError) Error() string {
	return fmt.Sprintf("invalid handoff package at %s: %d missing fields, %d continuity gaps (task %s)",
		e.Tier, len(e.MissingFields), len(e.ContinuityGaps), e.Fingerprint.Short())
}

func (e *HandoffValidationError) Fatal() bool { return false }

// TimeoutError: a specialist exceeded its deadline. Recoverable and
// escalation-eligible; partial analysis is discarded, never cached.
type TimeoutError struct {
	Fingerprint  Fingerprint
	Tier         Tier
	SpecialistID string
	Elapsed      time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("consultation timeout at %s: specialist %s exceeded deadline after %s (task %s)",
		e.Tier, e.SpecialistID, e.Elapsed, e.Fingerprint.Short())
}

func (e *TimeoutError) Fatal() bool { return false }

// QualityGateError: the recommendation stayed below the acceptable
// threshold after one revision. Carries the gate's improvement list.
type QualityGateError struct {
	Fingerprint  Fingerprint
	Tier         Tier
	Score        float64
	Improvements []string
}

func (e *QualityGateError) Error() string {
	return fmt.Sprintf("quality gate failed at %s: score %.2f below acceptable after revision (task %s)",
		e.Tier, e.Score, e.Fingerprint.Short())
}

func (e *QualityGateError) Fatal() bool { return false }

// IsFatal reports whether err (anywhere in its chain) is a fatal
// engine error. Unknown errors are treated as fatal: the pipeline
// never caches a result it cannot classify.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var fe interface{ Fatal() bool }
	if errors.As(err, &fe) {
		return fe.Fatal()
	}
	return true
}

// IsRecoverable reports whether err is a known recoverable engine error.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var fe interface{ Fatal() bool }
	if errors.As(err, &fe) {
		return !fe.Fatal()
	}
	return false
}
