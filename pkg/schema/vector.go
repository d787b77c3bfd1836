package schema

import "fmt"

// Dimension names in canonical order. Reasoning output and weight
// tables follow this order everywhere.
const (
	DimScope       = "scope"
	DimTechnical   = "technical"
	DimDomain      = "domain"
	DimRisk        = "risk"
	DimTemporal    = "temporal"
	DimStakeholder = "stakeholder"
	DimUncertainty = "uncertainty"
	DimDependency  = "dependency"
)

// DimensionOrder is the fixed iteration order for the eight dimensions.
var DimensionOrder = [...]string{
	DimScope, DimTechnical, DimDomain, DimRisk,
	DimTemporal, DimStakeholder, DimUncertainty, DimDependency,
}

// ComplexityVector holds the eight independent dimension scores
// (integers 0-10). Dimensions are computed independently and never
// mutated after creation. Degraded marks a vector produced from a
// malformed task: every dimension floored, classifier confidence low.
type ComplexityVector struct {
	Scope       int  `json:"scope"`
	Technical   int  `json:"technical"`
	Domain      int  `json:"domain"`
	Risk        int  `json:"risk"`
	Temporal    int  `json:"temporal"`
	Stakeholder int  `json:"stakeholder"`
	Uncertainty int  `json:"uncertainty"`
	Dependency  int  `json:"dependency"`
	Degraded    bool `json:"degraded,omitempty"`
}

// FloorVector is the vector for malformed input: 1 on every dimension.
func FloorVector() ComplexityVector {
	return ComplexityVector{
		Scope: 1, Technical: 1, Domain: 1, Risk: 1,
		Temporal: 1, Stakeholder: 1, Uncertainty: 1, Dependency: 1,
		Degraded: true,
	}
}

// Get returns the named dimension's score. Unknown names return 0.
func (v ComplexityVector) Get(dim string) int {
	switch dim {
	case DimScope:
		return v.Scope
	case DimTechnical:
		return v.Technical
	case DimDomain:
		return v.Domain
	case DimRisk:
		return v.Risk
	case DimTemporal:
		return v.Temporal
	case DimStakeholder:
		return v.Stakeholder
	case DimUncertainty:
		return v.Uncertainty
	case DimDependency:
		return v.Dependency
	default:
		return 0
	}
}

func (v ComplexityVector) Validate() error {
	for _, dim := range DimensionOrder {
		score := v.Get(dim)
		if score < 0 || score > 10 {
			return fmt.Errorf("dimension %s score %d out of range [0,10]", dim, score)
		}
	}
	return nil
}

// Clamped returns a copy with every dimension forced into [1,10].
func (v ComplexityVector) Clamped() ComplexityVector {
	clamp := func(n int) int {
		if n < 1 {
			return 1
		}
		if n > 10 {
			return 10
		}
		return n
	}
	v.Scope = clamp(v.Scope)
	v.Technical = clamp(v.Technical)
	v.Domain = clamp(v.Domain)
	v.Risk = clamp(v.Risk)
	v.Temporal = clamp(v.Temporal)
	v.Stakeholder = clamp(v.Stakeholder)
	v.Uncertainty = clamp(v.Uncertainty)
	v.Dependency = clamp(v.Dependency)
	return v
}

// Max returns the highest single dimension score.
func (v ComplexityVector) Max() int {
	max := 0
	for _, dim := range DimensionOrder {
		if s := v.Get(dim); s > max {
			max = s
		}
	}
	return max
}

// DominatedBy reports whether every dimension of v is <= the
// corresponding dimension of other.
func (v ComplexityVector) DominatedBy(other ComplexityVector) bool {
	for _, dim := range DimensionOrder {
		if v.Get(dim) > other.Get(dim) {
			return false
		}
	}
	return true
}
