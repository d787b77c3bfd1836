// Package revise produces the second draft of a recommendation that
// failed the quality gate. One revision is attempted per consultation;
// a draft that stays minimal afterwards escalates instead.
package revise

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/zen-systems/tiergate/pkg/adapter"
	"github.com/zen-systems/tiergate/pkg/schema"
	"github.com/zen-systems/tiergate/pkg/specialist"
)

// Reviser rewrites failed recommendations. The rule-based path is
// always available; an attached model rewrites the summary from the
// gate's guidance and degrades to the rule-based text on failure.
type Reviser struct {
	adapter adapter.Adapter
	model   string
	log     *zap.Logger
}

func New(log *zap.Logger) *Reviser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reviser{log: log}
}

// UseModel routes summary rewrites through a provider model.
func (r *Reviser) UseModel(a adapter.Adapter, model string) {
	r.adapter = a
	r.model = model
}

// Revise asks the specialist for a fresh recommendation and patches it
// until every gap the gate can name is addressed. The revision counter
// advances by one; confidence never rises across a revision.
func (r *Reviser) Revise(ctx context.Context, sp specialist.Specialist, analysis schema.Analysis, req specialist.Request, prev schema.Recommendation, qa schema.QualityAssessment) (schema.Recommendation, error) {
	next, err := sp.Recommend(ctx, analysis, req)
	if err != nil {
		return schema.Recommendation{}, fmt.Errorf("revise recommendation: %w", err)
	}

	next.Revision = prev.Revision + 1
	if next.Confidence > prev.Confidence {
		next.Confidence = prev.Confidence
	}

	applied := patch(&next, analysis)
	if r.adapter != nil {
		r.rewriteSummary(ctx, &next, prev, qa)
	}

	r.log.Info("recommendation revised",
		zap.String("specialist", sp.ID()),
		zap.Int("revision", next.Revision),
		zap.Strings("patches", applied))
	return next, nil
}

// patch closes the structural gaps the gate scores on. Returns the
// names of the patches applied.
func patch(rec *schema.Recommendation, analysis schema.Analysis) []string {
	var applied []string

	if strings.TrimSpace(rec.Summary) == "" {
		rec.Summary = analysis.Summary
		if strings.TrimSpace(rec.Summary) == "" {
			rec.Summary = "revised plan for the analyzed task"
		}
		applied = append(applied, "summary")
	}

	if len(rec.Actions) < 3 {
		for _, a := range fallbackActions {
			if len(rec.Actions) >= 3 {
				break
			}
			if !containsAction(rec.Actions, a) {
				rec.Actions = append(rec.Actions, a)
			}
		}
		applied = append(applied, "actions")
	}

	if !boundedTimeline(rec.Timeline) {
		rec.Timeline = timelineFor(analysis.EstimatedComplexity)
		applied = append(applied, "timeline")
	}

	if len(rec.Risks) == 0 && len(analysis.RiskFactors) > 0 {
		rec.Risks = append([]string(nil), analysis.RiskFactors...)
		applied = append(applied, "risks")
	}
	for _, risk := range rec.Risks {
		if !mentioned(rec.Actions, risk) {
			rec.Actions = append(rec.Actions, "mitigate: "+risk)
			if !containsAction(applied, "mitigations") {
				applied = append(applied, "mitigations")
			}
		}
	}

	return applied
}

var fallbackActions = []string{
	"break the work into smaller reviewable changes",
	"add verification steps for each delivered change",
	"schedule a follow-up review of the outcome",
}

func containsAction(actions []string, action string) bool {
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}

func mentioned(actions []string, risk string) bool {
	needle := strings.ToLower(risk)
	for _, a := range actions {
		if strings.Contains(strings.ToLower(a), needle) {
			return true
		}
	}
	return false
}

func boundedTimeline(timeline string) bool {
	t := strings.ToLower(timeline)
	return strings.Contains(t, "day") || strings.Contains(t, "week") || strings.Contains(t, "month")
}

func timelineFor(est int) string {
	switch {
	case est <= 3:
		return "1-2 days"
	case est <= 6:
		return "3-5 days"
	case est <= 8:
		return "1-2 weeks"
	default:
		return "2-4 weeks"
	}
}

func (r *Reviser) rewriteSummary(ctx context.Context, next *schema.Recommendation, prev schema.Recommendation, qa schema.QualityAssessment) {
	prompt := GuidancePrompt(prev, qa)
	out, err := r.adapter.Generate(ctx, r.model, prompt)
	if err != nil && adapter.IsTransient(err) {
		out, err = r.adapter.Generate(ctx, r.model, prompt)
	}
	if err != nil {
		r.log.Warn("model revision degraded to rule-based output",
			zap.String("adapter", r.adapter.Name()),
			zap.Error(err))
		return
	}
	if text := strings.TrimSpace(out.Text); text != "" {
		next.Summary = text
	}
}

// GuidancePrompt renders the gate's verdict as revision instructions.
func GuidancePrompt(prev schema.Recommendation, qa schema.QualityAssessment) string {
	var sb strings.Builder

	sb.WriteString("The following recommendation failed its quality gate:\n\n")
	sb.WriteString("---\n")
	sb.WriteString(prev.Summary)
	sb.WriteString("\n---\n\n")

	sb.WriteString(fmt.Sprintf("Overall score %.2f (%s).\n\n", qa.OverallScore, qa.Level))

	sb.WriteString("Issues found:\n")
	for _, name := range sortedDimensions(qa) {
		sb.WriteString(fmt.Sprintf("- %s: %.2f\n", name, qa.DimensionScores[name]))
	}

	if len(qa.Improvements) > 0 {
		sb.WriteString("\nRequired improvements:\n")
		for _, imp := range qa.Improvements {
			sb.WriteString(fmt.Sprintf("- %s\n", imp))
		}
	}

	sb.WriteString("\nRewrite the recommendation summary so every improvement above is addressed. Do not repeat the previous text.")
	return sb.String()
}

func sortedDimensions(qa schema.QualityAssessment) []string {
	names := make([]string, 0, len(qa.DimensionScores))
	for name := range qa.DimensionScores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EscalationNote states why a consultation escalates after a failed
// revision. Used as the handoff reason.
func EscalationNote(prev schema.Recommendation, qa schema.QualityAssessment) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("quality gate failed after revision %d: overall %.2f (%s)", prev.Revision, qa.OverallScore, qa.Level))
	if len(qa.Improvements) > 0 {
		sb.WriteString("; unresolved: ")
		sb.WriteString(strings.Join(qa.Improvements, "; "))
	}
	return sb.String()
}
