package schema

import (
	"encoding/json"
	"fmt"
)

// Tier is a cost/capability band. Ordering is meaningful: escalation
// moves strictly upward.
type Tier int

const (
	TierDirect Tier = iota
	Tier1
	Tier2
	Tier3
)

var tierNames = [...]string{"DIRECT", "TIER_1", "TIER_2", "TIER_3"}

func (t Tier) String() string {
	if t < TierDirect || t > Tier3 {
		return fmt.Sprintf("TIER_INVALID(%d)", int(t))
	}
	return tierNames[t]
}

func (t Tier) Valid() bool {
	return t >= TierDirect && t <= Tier3
}

// Above reports whether t is a strictly higher tier than other.
func (t Tier) Above(other Tier) bool {
	return t > other
}

// Next returns the tier one step up, or false at the top.
func (t Tier) Next() (Tier, bool) {
	if t >= Tier3 {
		return t, false
	}
	return t + 1, true
}

func ParseTier(s string) (Tier, error) {
	for i, name := range tierNames {
		if name == s {
			return Tier(i), nil
		}
	}
	return TierDirect, fmt.Errorf("unknown tier %q", s)
}

func (t Tier) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid tier %d", int(t))
	}
	return json.Marshal(t.String())
}

func (t *Tier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTier(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MaxEscalationHops bounds a single task's escalation chain:
// DIRECT to TIER_1 to TIER_2 to TIER_3 is the longest legal path.
const MaxEscalationHops = 3
