package router

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/zen-systems/tiergate/pkg/schema"
)

// Confidence model constants.
const (
	baseConfidence = 0.8
	minConfidence  = 0.3
	maxConfidence  = 1.0

	shortDescriptionChars = 30
	longDescriptionChars  = 300
)

// Contextual adjustment bonuses applied to the weighted score before
// the tier boundaries.
const (
	riskUncertaintyBonus       = 1.0
	dependencyStakeholderBonus = 0.5
	technicalDomainBonus       = 0.5
)

// Weights are the dimension weights of the composite score. They must
// sum to 1 so the score stays on the 0-10 scale.
type Weights struct {
	Scope       float64 `json:"scope" yaml:"scope"`
	Technical   float64 `json:"technical" yaml:"technical"`
	Domain      float64 `json:"domain" yaml:"domain"`
	Risk        float64 `json:"risk" yaml:"risk"`
	Temporal    float64 `json:"temporal" yaml:"temporal"`
	Stakeholder float64 `json:"stakeholder" yaml:"stakeholder"`
	Uncertainty float64 `json:"uncertainty" yaml:"uncertainty"`
	Dependency  float64 `json:"dependency" yaml:"dependency"`
}

func DefaultWeights() Weights {
	return Weights{
		Scope: 0.20, Technical: 0.25, Domain: 0.20, Risk: 0.15,
		Temporal: 0.05, Stakeholder: 0.05, Uncertainty: 0.05, Dependency: 0.05,
	}
}

// Get returns the weight of a named dimension.
func (w Weights) Get(dim string) float64 {
	switch dim {
	case schema.DimScope:
		return w.Scope
	case schema.DimTechnical:
		return w.Technical
	case schema.DimDomain:
		return w.Domain
	case schema.DimRisk:
		return w.Risk
	case schema.DimTemporal:
		return w.Temporal
	case schema.DimStakeholder:
		return w.Stakeholder
	case schema.DimUncertainty:
		return w.Uncertainty
	case schema.DimDependency:
		return w.Dependency
	default:
		return 0
	}
}

func (w Weights) Validate() error {
	sum := 0.0
	for _, dim := range schema.DimensionOrder {
		v := w.Get(dim)
		if v < 0 {
			return fmt.Errorf("weight %s is negative", dim)
		}
		sum += v
	}
	if math.Abs(sum-1.0) > 0.001 {
		return fmt.Errorf("weights sum to %.3f, want 1.000", sum)
	}
	return nil
}

// Boundaries are the upper bounds of the lower three tiers; anything
// above Tier2 routes to TIER_3.
type Boundaries struct {
	Direct float64 `json:"direct" yaml:"direct"`
	Tier1  float64 `json:"tier1" yaml:"tier1"`
	Tier2  float64 `json:"tier2" yaml:"tier2"`
}

func DefaultBoundaries() Boundaries {
	return Boundaries{Direct: 3.5, Tier1: 6.5, Tier2: 8.5}
}

func (b Boundaries) Validate() error {
	if !(b.Direct < b.Tier1 && b.Tier1 < b.Tier2) {
		return fmt.Errorf("boundaries must be strictly increasing: %.2f, %.2f, %.2f", b.Direct, b.Tier1, b.Tier2)
	}
	if b.Direct <= 0 || b.Tier2 >= 10 {
		return fmt.Errorf("boundaries must sit inside (0,10)")
	}
	return nil
}

// TierFor maps an adjusted score to its tier.
func (b Boundaries) TierFor(score float64) schema.Tier {
	switch {
	case score <= b.Direct:
		return schema.TierDirect
	case score <= b.Tier1:
		return schema.Tier1
	case score <= b.Tier2:
		return schema.Tier2
	default:
		return schema.Tier3
	}
}

// Calibration is the classifier's learnable state. The learner proposes
// replacements; SetCalibration is the explicit apply step.
type Calibration struct {
	Weights    Weights    `json:"weights" yaml:"weights"`
	Boundaries Boundaries `json:"boundaries" yaml:"boundaries"`
}

func DefaultCalibration() Calibration {
	return Calibration{Weights: DefaultWeights(), Boundaries: DefaultBoundaries()}
}

func (c Calibration) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	return c.Boundaries.Validate()
}

// highThresholds decide which dimensions earn a reasoning line.
var highThresholds = map[string]int{
	schema.DimScope:       6,
	schema.DimTechnical:   7,
	schema.DimDomain:      7,
	schema.DimRisk:        6,
	schema.DimTemporal:    6,
	schema.DimStakeholder: 6,
	schema.DimUncertainty: 7,
	schema.DimDependency:  6,
}

// Classifier maps complexity vectors to routing decisions. Safe for
// concurrent use; calibration swaps take the write lock.
type Classifier struct {
	mu       sync.RWMutex
	cal      Calibration
	rules    *RuleSet
	noAdjust bool
}

func NewClassifier(rules *RuleSet) *Classifier {
	return &Classifier{cal: DefaultCalibration(), rules: rules}
}

// SetAdjustments toggles the contextual bonuses. On by default; with
// them off, the weighted score faces the boundaries raw.
func (c *Classifier) SetAdjustments(on bool) {
	c.mu.Lock()
	c.noAdjust = !on
	c.mu.Unlock()
}

// Calibration returns the active weights and boundaries.
func (c *Classifier) Calibration() Calibration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cal
}

// SetCalibration adopts a proposed calibration. This is the only
// mutation point; learner proposals are never applied implicitly.
func (c *Classifier) SetCalibration(cal Calibration) error {
	if err := cal.Validate(); err != nil {
		return fmt.Errorf("reject calibration: %w", err)
	}
	c.mu.Lock()
	c.cal = cal
	c.mu.Unlock()
	return nil
}

// Classify produces the routing decision for a scored task.
func (c *Classifier) Classify(vec schema.ComplexityVector, task schema.Task) RoutingDecision {
	c.mu.RLock()
	cal := c.cal
	noAdjust := c.noAdjust
	c.mu.RUnlock()

	adjusted := weightedScore(vec, cal.Weights)
	if !noAdjust {
		adjusted = applyAdjustments(adjusted, vec)
	}
	tier := cal.Boundaries.TierFor(adjusted)

	domain := "general"
	hasTerms := false
	if c.rules != nil {
		text := strings.ToLower(task.Text())
		if d := task.Domain(); d != "" {
			domain = d
		} else if !task.Malformed() {
			domain = c.rules.DomainFor(text)
		}
		hasTerms = !task.Malformed() && c.rules.HasTerminology(text)
	}

	return RoutingDecision{
		Tier:         tier,
		NumericScore: adjusted,
		Confidence:   confidence(vec, task, hasTerms),
		Reasoning:    reasoning(vec),
		Domain:       domain,
		Vector:       vec,
	}
}

func weightedScore(vec schema.ComplexityVector, w Weights) float64 {
	score := 0.0
	for _, dim := range schema.DimensionOrder {
		score += w.Get(dim) * float64(vec.Get(dim))
	}
	return score
}

// applyAdjustments adds the contextual bonuses and clamps to 10. Every
// bonus condition is monotone in the vector, which preserves the tier
// monotonicity property.
func applyAdjustments(score float64, vec schema.ComplexityVector) float64 {
	if vec.Risk > 8 && vec.Uncertainty > 7 {
		score += riskUncertaintyBonus
	}
	if vec.Dependency > 8 && vec.Stakeholder > 6 {
		score += dependencyStakeholderBonus
	}
	if vec.Technical > 8 && vec.Domain > 8 {
		score += technicalDomainBonus
	}
	if score > 10 {
		score = 10
	}
	return score
}

func confidence(vec schema.ComplexityVector, task schema.Task, hasTerms bool) float64 {
	conf := baseConfidence

	desc := len(strings.TrimSpace(task.Description))
	if desc < shortDescriptionChars {
		conf -= 0.2
	} else if desc > longDescriptionChars {
		conf += 0.1
	}

	if vec.Uncertainty > 7 {
		conf -= 0.3
	} else if vec.Uncertainty < 3 {
		conf += 0.1
	}

	if hasTerms {
		conf += 0.1
	}

	if vec.Degraded {
		conf = minConfidence
	}

	return minFloat(maxFloat(conf, minConfidence), maxConfidence)
}

// reasoning emits one line per dimension over its high threshold, in
// canonical dimension order so identical inputs produce identical
// output. A quiet vector gets the single direct-implementation reason.
func reasoning(vec schema.ComplexityVector) []string {
	var reasons []string
	for _, dim := range schema.DimensionOrder {
		score := vec.Get(dim)
		if score > highThresholds[dim] {
			reasons = append(reasons, reasonFor(dim, score))
		}
	}
	if len(reasons) == 0 {
		reasons = []string{"direct-implementation-suitable: no dimension exceeded its high threshold"}
	}
	return reasons
}

func reasonFor(dim string, score int) string {
	switch dim {
	case schema.DimScope:
		return fmt.Sprintf("scope %d: work spans multiple components or domains", score)
	case schema.DimTechnical:
		return fmt.Sprintf("technical %d: deep architectural or algorithmic work", score)
	case schema.DimDomain:
		return fmt.Sprintf("domain %d: specialized domain expertise required", score)
	case schema.DimRisk:
		return fmt.Sprintf("risk %d: elevated production, security, or compliance exposure", score)
	case schema.DimTemporal:
		return fmt.Sprintf("temporal %d: tight or hard deadline", score)
	case schema.DimStakeholder:
		return fmt.Sprintf("stakeholder %d: many parties affected or coordinating", score)
	case schema.DimUncertainty:
		return fmt.Sprintf("uncertainty %d: exploratory or under-specified work", score)
	case schema.DimDependency:
		return fmt.Sprintf("dependency %d: heavy coupling to external or legacy systems", score)
	default:
		return fmt.Sprintf("%s %d: above high threshold", dim, score)
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
