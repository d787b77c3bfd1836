package schema

import "fmt"

type QualityLevel string

const (
	QualityMinimal    QualityLevel = "minimal"
	QualityAcceptable QualityLevel = "acceptable"
	QualityExcellent  QualityLevel = "excellent"
)

// Default gate thresholds. Overridable per engine config.
const (
	ExcellentThreshold  = 0.90
	AcceptableThreshold = 0.75
)

// QualityAssessment is the gate's verdict on one recommendation.
type QualityAssessment struct {
	DimensionScores  map[string]float64 `json:"dimension_scores"`
	OverallScore     float64            `json:"overall_score"`
	Level            QualityLevel       `json:"level"`
	Passed           bool               `json:"passed"`
	Improvements     []string           `json:"improvements,omitempty"`
	EscalationNeeded bool               `json:"escalation_needed,omitempty"`
}

func (q *QualityAssessment) Validate() error {
	if q.OverallScore < 0 || q.OverallScore > 1 {
		return fmt.Errorf("overall score %.2f out of range [0,1]", q.OverallScore)
	}
	switch q.Level {
	case QualityMinimal, QualityAcceptable, QualityExcellent:
	default:
		return fmt.Errorf("quality level %q not allowed", q.Level)
	}
	for dim, score := range q.DimensionScores {
		if score < 0 || score > 1 {
			return fmt.Errorf("dimension %s score %.2f out of range [0,1]", dim, score)
		}
	}
	return nil
}

// LevelFor maps an overall score to its quality band.
func LevelFor(score float64) QualityLevel {
	switch {
	case score >= ExcellentThreshold:
		return QualityExcellent
	case score >= AcceptableThreshold:
		return QualityAcceptable
	default:
		return QualityMinimal
	}
}
