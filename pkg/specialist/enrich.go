package specialist

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zen-systems/tiergate/pkg/adapter"
	"github.com/zen-systems/tiergate/pkg/schema"
)

// ModelEnricher rewrites specialist summaries through a model adapter.
// It is an enrichment path only: transient failures retry once, then
// the rule-based text stands. A consultation never fails because a
// provider is down.
type ModelEnricher struct {
	adapter adapter.Adapter
	model   string
	log     *zap.Logger
}

func NewModelEnricher(a adapter.Adapter, model string, log *zap.Logger) *ModelEnricher {
	if log == nil {
		log = zap.NewNop()
	}
	return &ModelEnricher{adapter: a, model: model, log: log}
}

// EnrichAnalysis returns an enriched analysis summary, or the
// rule-based summary when the provider cannot serve.
func (e *ModelEnricher) EnrichAnalysis(ctx context.Context, analysis schema.Analysis, req Request) string {
	var sb strings.Builder
	sb.WriteString("Rewrite the following task analysis summary in two sentences for an engineering audience.\n")
	sb.WriteString("Keep every fact; add nothing.\n\n")
	sb.WriteString("Task:\n")
	sb.WriteString(req.Task.Description)
	sb.WriteString("\n\nSummary:\n")
	sb.WriteString(analysis.Summary)
	if len(analysis.Findings) > 0 {
		sb.WriteString("\n\nFindings:\n")
		for _, f := range analysis.Findings {
			sb.WriteString(fmt.Sprintf("- %s\n", f))
		}
	}
	return e.enrich(ctx, sb.String(), analysis.Summary)
}

// EnrichRecommendation returns an enriched recommendation summary, or
// the rule-based summary when the provider cannot serve.
func (e *ModelEnricher) EnrichRecommendation(ctx context.Context, rec schema.Recommendation, req Request) string {
	var sb strings.Builder
	sb.WriteString("Rewrite the following recommendation summary in two sentences for the task owner.\n")
	sb.WriteString("Keep every fact; add nothing.\n\n")
	sb.WriteString("Task:\n")
	sb.WriteString(req.Task.Description)
	sb.WriteString("\n\nRecommendation:\n")
	sb.WriteString(rec.Summary)
	if len(rec.Actions) > 0 {
		sb.WriteString("\n\nActions:\n")
		for _, a := range rec.Actions {
			sb.WriteString(fmt.Sprintf("- %s\n", a))
		}
	}
	return e.enrich(ctx, sb.String(), rec.Summary)
}

func (e *ModelEnricher) enrich(ctx context.Context, prompt, fallback string) string {
	out, err := e.adapter.Generate(ctx, e.model, prompt)
	if err != nil && adapter.IsTransient(err) {
		out, err = e.adapter.Generate(ctx, e.model, prompt)
	}
	if err != nil {
		e.log.Warn("enrichment degraded to rule-based output",
			zap.String("adapter", e.adapter.Name()),
			zap.Error(err))
		return fallback
	}
	e.log.Debug("summary enriched",
		zap.String("adapter", out.Adapter),
		zap.String("model", out.Model),
		zap.Int("tokens", out.Usage.TotalTokens))
	if text := strings.TrimSpace(out.Text); text != "" {
		return text
	}
	return fallback
}
