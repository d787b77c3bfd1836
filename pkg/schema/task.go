package schema

import (
	"fmt"
	"strings"
)

const (
	SchemaTaskV1    = "tiergate.task.v1"
	SchemaHandoffV1 = "tiergate.handoff.v1"
	SchemaTraceV1   = "tiergate.trace.v1"
	SchemaAuditV1   = "tiergate.audit.v1"
)

// Context keys recognized by the scorer and classifier. Anything else in
// the context map is carried through untouched.
const (
	CtxDomain           = "domain"
	CtxUrgency          = "urgency"
	CtxStakeholderCount = "stakeholder_count"
	CtxExistingSystem   = "existing_system"
	CtxPriority         = "priority"
)

// Task is the unit of work submitted to the engine. Immutable once
// submitted: the engine never writes to a Task.
type Task struct {
	Schema       string            `json:"schema"`
	ID           string            `json:"id,omitempty"`
	Description  string            `json:"description"`
	Requirements []string          `json:"requirements,omitempty"`
	Constraints  []string          `json:"constraints,omitempty"`
	Context      map[string]string `json:"context,omitempty"`
}

func NewTask(description string) Task {
	return Task{Schema: SchemaTaskV1, Description: description}
}

func (t *Task) Validate() error {
	if t.Schema != SchemaTaskV1 {
		return fmt.Errorf("task schema must be %q", SchemaTaskV1)
	}
	if strings.TrimSpace(t.Description) == "" {
		return fmt.Errorf("task description required")
	}
	return nil
}

// Malformed reports whether the task carries no usable text. Malformed
// tasks do not error out of the scorer; they floor every dimension.
func (t *Task) Malformed() bool {
	return strings.TrimSpace(t.Description) == ""
}

// Text returns description, requirements and constraints joined for
// keyword matching. Order is fixed so downstream hashing stays stable.
func (t *Task) Text() string {
	parts := make([]string, 0, 1+len(t.Requirements)+len(t.Constraints))
	parts = append(parts, t.Description)
	parts = append(parts, t.Requirements...)
	parts = append(parts, t.Constraints...)
	return strings.Join(parts, "\n")
}

// CtxValue reads a context key; empty string when absent.
func (t *Task) CtxValue(key string) string {
	if t.Context == nil {
		return ""
	}
	return t.Context[key]
}

// CtxFlag treats a context value as a boolean flag.
func (t *Task) CtxFlag(key string) bool {
	switch strings.ToLower(t.CtxValue(key)) {
	case "true", "yes", "1":
		return true
	default:
		return false
	}
}

// Domain returns the explicit domain hint, or "" when the scorer should
// infer one from the text.
func (t *Task) Domain() string {
	return strings.ToLower(strings.TrimSpace(t.CtxValue(CtxDomain)))
}

// Priority classes control cache TTL selection.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Priority reads the task's priority class, defaulting to normal.
func (t *Task) Priority() Priority {
	switch Priority(strings.ToLower(t.CtxValue(CtxPriority))) {
	case PriorityLow:
		return PriorityLow
	case PriorityHigh:
		return PriorityHigh
	default:
		return PriorityNormal
	}
}
