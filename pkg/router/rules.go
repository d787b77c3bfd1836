package router

import (
	"regexp"
	"strings"

	"github.com/zen-systems/tiergate/pkg/config"
	"github.com/zen-systems/tiergate/pkg/schema"
)

// RuleSet contains the compiled scoring rules for one engine instance.
// Compilation lowercases keywords and orders them longest-first within
// a rule so phrase matches win over their substrings.
type RuleSet struct {
	config      *config.ScoringConfig
	dims        map[string][]compiledRule
	domains     []compiledDomain
	terminology []string
}

type compiledRule struct {
	label    string
	keywords []string
	delta    int
}

type compiledDomain struct {
	name     string
	keywords []string
}

// RuleHit records one fired rule, kept for score explanations.
type RuleHit struct {
	Label   string `json:"label"`
	Keyword string `json:"keyword"`
	Delta   int    `json:"delta"`
}

// groupCountRe matches phrases like "5 business units". A numeric group
// count raises scope and stakeholder complexity.
var groupCountRe = regexp.MustCompile(`\b\d+\s+(business units|teams|departments|divisions)\b`)

// NewRuleSet compiles scoring rules from configuration.
func NewRuleSet(cfg *config.ScoringConfig) *RuleSet {
	rs := &RuleSet{config: cfg}
	rs.compile()
	return rs
}

func (rs *RuleSet) compile() {
	rs.dims = make(map[string][]compiledRule, len(schema.DimensionOrder))
	for _, dim := range schema.DimensionOrder {
		rules := rs.config.Rules(dim)
		compiled := make([]compiledRule, 0, len(rules))
		for _, rule := range rules {
			cr := compiledRule{label: rule.Label, delta: rule.Delta}
			for _, kw := range rule.Keywords {
				cr.keywords = append(cr.keywords, strings.ToLower(kw))
			}
			sortLongestFirst(cr.keywords)
			compiled = append(compiled, cr)
		}
		rs.dims[dim] = compiled
	}

	rs.domains = nil
	for _, d := range rs.config.Domains {
		cd := compiledDomain{name: d.Name}
		for _, kw := range d.Keywords {
			cd.keywords = append(cd.keywords, strings.ToLower(kw))
		}
		rs.domains = append(rs.domains, cd)
	}

	rs.terminology = nil
	for _, term := range rs.config.Terminology {
		rs.terminology = append(rs.terminology, strings.ToLower(term))
	}
}

// MatchDimension returns the fired rules for one dimension over
// pre-lowercased text. Each rule fires at most once.
func (rs *RuleSet) MatchDimension(text, dim string) []RuleHit {
	var hits []RuleHit
	for _, rule := range rs.dims[dim] {
		for _, kw := range rule.keywords {
			if containsTrigger(text, kw) {
				hits = append(hits, RuleHit{Label: rule.label, Keyword: kw, Delta: rule.delta})
				break
			}
		}
	}
	return hits
}

// DomainFor infers the routing domain from pre-lowercased text by
// keyword hit count. Ties resolve to the earlier table entry; no hits
// resolve to "general".
func (rs *RuleSet) DomainFor(text string) string {
	best := "general"
	bestHits := 0
	for _, d := range rs.domains {
		hits := 0
		for _, kw := range d.keywords {
			if containsTrigger(text, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best = d.name
			bestHits = hits
		}
	}
	return best
}

// DomainsFor returns every domain with at least one keyword hit,
// ordered by hit count with ties resolving to the earlier table entry.
// No hits returns nil.
func (rs *RuleSet) DomainsFor(text string) []string {
	type scored struct {
		name string
		hits int
	}
	var matched []scored
	for _, d := range rs.domains {
		hits := 0
		for _, kw := range d.keywords {
			if containsTrigger(text, kw) {
				hits++
			}
		}
		if hits > 0 {
			matched = append(matched, scored{name: d.name, hits: hits})
		}
	}
	if len(matched) == 0 {
		return nil
	}
	// Stable insertion sort by hit count; table order breaks ties.
	for i := 1; i < len(matched); i++ {
		for j := i; j > 0 && matched[j].hits > matched[j-1].hits; j-- {
			matched[j], matched[j-1] = matched[j-1], matched[j]
		}
	}
	names := make([]string, 0, len(matched))
	for _, m := range matched {
		names = append(names, m.name)
	}
	return names
}

// HasTerminology reports whether pre-lowercased text contains any
// recognized technical term.
func (rs *RuleSet) HasTerminology(text string) bool {
	for _, term := range rs.terminology {
		if containsTrigger(text, term) {
			return true
		}
	}
	return false
}

// TermsFor returns the recognized technical terms present in
// pre-lowercased text, in terminology table order.
func (rs *RuleSet) TermsFor(text string) []string {
	var terms []string
	for _, term := range rs.terminology {
		if containsTrigger(text, term) {
			terms = append(terms, term)
		}
	}
	return terms
}

// GroupCountMentioned reports whether the text names a numeric group
// count ("5 business units").
func (rs *RuleSet) GroupCountMentioned(text string) bool {
	return groupCountRe.MatchString(text)
}

func sortLongestFirst(keywords []string) {
	for i := 0; i < len(keywords); i++ {
		for j := i + 1; j < len(keywords); j++ {
			if len(keywords[j]) > len(keywords[i]) {
				keywords[i], keywords[j] = keywords[j], keywords[i]
			}
		}
	}
}

// containsTrigger checks if the text contains the trigger phrase.
// It looks for the trigger as a word or phrase boundary match.
func containsTrigger(text, trigger string) bool {
	idx := strings.Index(text, trigger)
	if idx == -1 {
		return false
	}

	// Check word boundary before trigger
	if idx > 0 {
		prev := text[idx-1]
		if isWordChar(prev) {
			return false
		}
	}

	// Check word boundary after trigger
	endIdx := idx + len(trigger)
	if endIdx < len(text) {
		next := text[endIdx]
		if isWordChar(next) {
			return false
		}
	}

	return true
}

func isWordChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}
