package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// KeywordRule is one auditable scoring rule: if any keyword appears in
// the task text (word-boundary match), the rule fires once and adds
// Delta to its dimension.
type KeywordRule struct {
	Label    string   `yaml:"label"`
	Keywords []string `yaml:"keywords"`
	Delta    int      `yaml:"delta"`
}

// DomainKeywords maps a routing domain to its signal keywords. Order
// matters: ties in hit count resolve to the earlier entry.
type DomainKeywords struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// ScoringConfig holds the rule tables behind the complexity scorer and
// the classifier's terminology lookup. One field per dimension keeps
// iteration order fixed.
type ScoringConfig struct {
	Scope       []KeywordRule `yaml:"scope"`
	Technical   []KeywordRule `yaml:"technical"`
	Domain      []KeywordRule `yaml:"domain"`
	Risk        []KeywordRule `yaml:"risk"`
	Temporal    []KeywordRule `yaml:"temporal"`
	Stakeholder []KeywordRule `yaml:"stakeholder"`
	Uncertainty []KeywordRule `yaml:"uncertainty"`
	Dependency  []KeywordRule `yaml:"dependency"`

	Domains     []DomainKeywords `yaml:"domains"`
	Terminology []string         `yaml:"terminology"`
}

// DefaultScoringConfig returns the built-in rule tables.
func DefaultScoringConfig() *ScoringConfig {
	return &ScoringConfig{
		Scope: []KeywordRule{
			{Label: "cross-cutting scope", Keywords: []string{"enterprise-wide", "organization-wide", "company-wide", "end-to-end", "entire"}, Delta: 4},
			{Label: "multi-component scope", Keywords: []string{"across", "multiple", "components", "subsystems", "business units", "microservices", "platform"}, Delta: 2},
			{Label: "expansion scope", Keywords: []string{"migration", "migrate", "redesign", "overhaul", "rewrite", "consolidate", "architecture"}, Delta: 2},
			{Label: "maintenance scope", Keywords: []string{"fix", "cleanup", "patch", "update"}, Delta: 1},
		},
		Technical: []KeywordRule{
			{Label: "architectural depth", Keywords: []string{"architecture", "architectural", "system design", "distributed", "zero-trust", "event-driven", "microservices"}, Delta: 4},
			{Label: "deep technical work", Keywords: []string{"security architecture", "concurrency", "scalability", "performance", "encryption", "cryptography", "protocol", "algorithm", "real-time"}, Delta: 3},
			{Label: "security engineering", Keywords: []string{"zero-trust", "security architecture", "threat model", "penetration testing"}, Delta: 2},
			{Label: "implementation debugging", Keywords: []string{"memory leak", "race condition", "deadlock", "debug", "refactor", "profiling"}, Delta: 2},
			{Label: "platform surface", Keywords: []string{"api", "integration", "infrastructure", "pipeline"}, Delta: 1},
		},
		Domain: []KeywordRule{
			{Label: "security expertise", Keywords: []string{"security", "zero-trust", "authentication", "authorization", "vulnerability", "threat"}, Delta: 4},
			{Label: "regulated domain", Keywords: []string{"compliance", "regulatory", "hipaa", "gdpr", "pci-dss", "sox"}, Delta: 3},
			{Label: "specialized field", Keywords: []string{"machine learning", "payments", "financial", "healthcare", "embedded", "blockchain", "cryptography"}, Delta: 2},
			{Label: "domain breadth", Keywords: []string{"cross-domain", "business units", "multi-domain"}, Delta: 2},
		},
		Risk: []KeywordRule{
			{Label: "security exposure", Keywords: []string{"security", "breach", "vulnerability", "zero-trust", "attack"}, Delta: 3},
			{Label: "compliance exposure", Keywords: []string{"compliance", "regulatory", "legal", "audit"}, Delta: 3},
			{Label: "production impact", Keywords: []string{"production", "outage", "downtime", "data loss", "critical", "incident", "crash", "leak"}, Delta: 2},
			{Label: "blast radius", Keywords: []string{"enterprise-wide", "company-wide", "all users", "irreversible", "migration"}, Delta: 2},
		},
		Temporal: []KeywordRule{
			{Label: "hard deadline", Keywords: []string{"deadline", "by friday", "by monday", "end of quarter", "eod", "launch date"}, Delta: 3},
			{Label: "urgency", Keywords: []string{"urgent", "asap", "immediately", "critical path", "time-sensitive", "today"}, Delta: 3},
			{Label: "near-term pressure", Keywords: []string{"soon", "this week", "this sprint", "quickly"}, Delta: 1},
		},
		Stakeholder: []KeywordRule{
			{Label: "organizational breadth", Keywords: []string{"business units", "departments", "divisions"}, Delta: 4},
			{Label: "enterprise reach", Keywords: []string{"enterprise-wide", "organization-wide", "company-wide", "organization"}, Delta: 3},
			{Label: "multi-team involvement", Keywords: []string{"teams", "cross-team", "stakeholders", "leadership", "executive", "committee"}, Delta: 2},
			{Label: "external parties", Keywords: []string{"customers", "clients", "partners", "vendors"}, Delta: 2},
		},
		Uncertainty: []KeywordRule{
			{Label: "exploratory work", Keywords: []string{"explore", "investigate", "research", "evaluate", "prototype", "proof of concept", "spike", "feasibility"}, Delta: 3},
			{Label: "vague requirements", Keywords: []string{"maybe", "unclear", "not sure", "unknown", "possibly", "might", "somehow", "tbd"}, Delta: 2},
			{Label: "open-ended choice", Keywords: []string{"options", "alternatives", "tradeoffs", "compare approaches"}, Delta: 2},
		},
		Dependency: []KeywordRule{
			{Label: "external dependency", Keywords: []string{"third-party", "vendor", "external api", "upstream", "downstream"}, Delta: 3},
			{Label: "legacy coupling", Keywords: []string{"legacy", "existing system", "existing systems", "backward compatibility", "coupled"}, Delta: 2},
			{Label: "integration surface", Keywords: []string{"integration", "depends on", "interdependent", "shared database"}, Delta: 2},
		},
		Domains: []DomainKeywords{
			{Name: "architecture", Keywords: []string{"architecture", "system design", "scalability", "distributed", "event-driven"}},
			{Name: "backend", Keywords: []string{"api", "service", "backend", "endpoint", "server", "queue", "session", "memory leak"}},
			{Name: "data", Keywords: []string{"database", "schema", "etl", "data warehouse", "analytics", "sql"}},
			{Name: "frontend", Keywords: []string{"ui", "frontend", "react", "css", "accessibility", "browser"}},
			{Name: "infrastructure", Keywords: []string{"deploy", "kubernetes", "docker", "infrastructure", "terraform", "ci/cd", "monitoring"}},
			{Name: "security", Keywords: []string{"security", "zero-trust", "vulnerability", "authentication", "encryption", "compliance", "threat"}},
		},
		Terminology: []string{
			"memory leak", "race condition", "zero-trust", "api", "database",
			"cache", "kubernetes", "microservices", "oauth", "encryption",
			"ci/cd", "message queue", "load balancer", "sharding", "tls",
			"event-driven", "idempotency", "circuit breaker",
		},
	}
}

// LoadScoringConfig reads rule tables from a YAML file. Absent sections
// fall back to the built-in tables, so a file can override just one
// dimension.
func LoadScoringConfig(path string) (*ScoringConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scoring config: %w", err)
	}

	var cfg ScoringConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse scoring config: %w", err)
	}
	applyScoringDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyScoringDefaults(cfg *ScoringConfig) {
	def := DefaultScoringConfig()
	if len(cfg.Scope) == 0 {
		cfg.Scope = def.Scope
	}
	if len(cfg.Technical) == 0 {
		cfg.Technical = def.Technical
	}
	if len(cfg.Domain) == 0 {
		cfg.Domain = def.Domain
	}
	if len(cfg.Risk) == 0 {
		cfg.Risk = def.Risk
	}
	if len(cfg.Temporal) == 0 {
		cfg.Temporal = def.Temporal
	}
	if len(cfg.Stakeholder) == 0 {
		cfg.Stakeholder = def.Stakeholder
	}
	if len(cfg.Uncertainty) == 0 {
		cfg.Uncertainty = def.Uncertainty
	}
	if len(cfg.Dependency) == 0 {
		cfg.Dependency = def.Dependency
	}
	if len(cfg.Domains) == 0 {
		cfg.Domains = def.Domains
	}
	if len(cfg.Terminology) == 0 {
		cfg.Terminology = def.Terminology
	}
}

// Validate rejects rule tables the scorer cannot use safely.
func (c *ScoringConfig) Validate() error {
	tables := map[string][]KeywordRule{
		"scope":       c.Scope,
		"technical":   c.Technical,
		"domain":      c.Domain,
		"risk":        c.Risk,
		"temporal":    c.Temporal,
		"stakeholder": c.Stakeholder,
		"uncertainty": c.Uncertainty,
		"dependency":  c.Dependency,
	}
	for dim, rules := range tables {
		for i, rule := range rules {
			if rule.Delta < 0 {
				return fmt.Errorf("scoring %s rule %d (%s): negative delta breaks monotonicity", dim, i, rule.Label)
			}
			if rule.Delta > 0 && len(rule.Keywords) == 0 {
				return fmt.Errorf("scoring %s rule %d (%s): delta without keywords", dim, i, rule.Label)
			}
		}
	}
	seen := map[string]bool{}
	for _, d := range c.Domains {
		if d.Name == "" {
			return fmt.Errorf("scoring domain entry with empty name")
		}
		if seen[d.Name] {
			return fmt.Errorf("scoring domain %q listed twice", d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}

// Rules returns the table for a named dimension in canonical order.
func (c *ScoringConfig) Rules(dim string) []KeywordRule {
	switch dim {
	case "scope":
		return c.Scope
	case "technical":
		return c.Technical
	case "domain":
		return c.Domain
	case "risk":
		return c.Risk
	case "temporal":
		return c.Temporal
	case "stakeholder":
		return c.Stakeholder
	case "uncertainty":
		return c.Uncertainty
	case "dependency":
		return c.Dependency
	default:
		return nil
	}
}
