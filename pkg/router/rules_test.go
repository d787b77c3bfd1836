package router

import (
	"reflect"
	"testing"

	"github.com/zen-systems/tiergate/pkg/config"
	"github.com/zen-systems/tiergate/pkg/schema"
)

func TestContainsTrigger(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		trigger string
		want    bool
	}{
		{"exact word", "fix the memory leak now", "memory leak", true},
		{"word start boundary", "leaky abstraction", "leak", false},
		{"word end boundary", "a memoryleak happened", "leak", false},
		{"at string start", "leak detected in prod", "leak", true},
		{"at string end", "we found a leak", "leak", true},
		{"hyphenated trigger", "roll out zero-trust controls", "zero-trust", true},
		{"absent", "refactor the parser", "leak", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := containsTrigger(tt.text, tt.trigger); got != tt.want {
				t.Errorf("containsTrigger(%q, %q) = %v, want %v", tt.text, tt.trigger, got, tt.want)
			}
		})
	}
}

func TestRuleSet_MatchDimension_FiresOncePerRule(t *testing.T) {
	rs := NewRuleSet(config.DefaultScoringConfig())

	// Two keywords of the same rule present: one hit, not two.
	hits := rs.MatchDimension("urgent work, do it immediately", schema.DimTemporal)
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d: %+v", len(hits), hits)
	}
	if hits[0].Delta != 3 {
		t.Errorf("urgency delta = %d, want 3", hits[0].Delta)
	}
}

func TestRuleSet_DomainFor(t *testing.T) {
	rs := NewRuleSet(config.DefaultScoringConfig())

	tests := []struct {
		name string
		text string
		want string
	}{
		{"backend signals", "fix memory leak in session cleanup", "backend"},
		{"security outweighs architecture", "design zero-trust security architecture with compliance", "security"},
		{"no signals", "write the quarterly summary", "general"},
		{"data signals", "add an index to the database schema", "data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rs.DomainFor(tt.text); got != tt.want {
				t.Errorf("DomainFor(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestRuleSet_HasTerminology(t *testing.T) {
	rs := NewRuleSet(config.DefaultScoringConfig())

	if !rs.HasTerminology("there is a memory leak in the worker") {
		t.Error("expected terminology hit for memory leak")
	}
	if rs.HasTerminology("plan the offsite agenda") {
		t.Error("unexpected terminology hit")
	}
}

func TestRuleSet_GroupCountMentioned(t *testing.T) {
	rs := NewRuleSet(config.DefaultScoringConfig())

	if !rs.GroupCountMentioned("rolled out across 5 business units") {
		t.Error("expected group count match")
	}
	if rs.GroupCountMentioned("several business units") {
		t.Error("non-numeric mention should not match")
	}
}

func TestRuleSet_DomainsFor(t *testing.T) {
	rs := NewRuleSet(config.DefaultScoringConfig())

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"ordered by hits", "zero-trust security compliance for the api service", []string{"security", "backend"}},
		{"single domain", "fix memory leak in session cleanup", []string{"backend"}},
		{"no domains", "write the quarterly summary", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rs.DomainsFor(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DomainsFor(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestRuleSet_TermsFor(t *testing.T) {
	rs := NewRuleSet(config.DefaultScoringConfig())

	got := rs.TermsFor("a memory leak behind the load balancer")
	want := []string{"memory leak", "load balancer"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TermsFor = %v, want %v", got, want)
	}
	if rs.TermsFor("plan the offsite agenda") != nil {
		t.Error("expected no terms")
	}
}
