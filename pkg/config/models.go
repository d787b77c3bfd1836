package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// ModelAliases maps short model names to canonical ones and lists the
// models each adapter provides. Enrichment entries resolve through it
// before they reach an adapter.
type ModelAliases struct {
	Aliases   map[string]string   `yaml:"aliases"`
	Providers map[string][]string `yaml:"providers"`
}

// LoadAliases reads a model table from a YAML file.
func LoadAliases(path string) (*ModelAliases, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var aliases ModelAliases
	if err := yaml.Unmarshal(data, &aliases); err != nil {
		return nil, err
	}
	if aliases.Aliases == nil {
		aliases.Aliases = make(map[string]string)
	}
	if aliases.Providers == nil {
		aliases.Providers = make(map[string][]string)
	}
	return &aliases, nil
}

// LoadAliasesWithFallback loads ~/.tiergate/models.yaml when present,
// the built-in table otherwise.
func LoadAliasesWithFallback() *ModelAliases {
	home, err := os.UserHomeDir()
	if err == nil {
		userPath := filepath.Join(home, ".tiergate", "models.yaml")
		if _, err := os.Stat(userPath); err == nil {
			if aliases, err := LoadAliases(userPath); err == nil {
				return aliases
			}
		}
	}
	return DefaultAliases()
}

// Resolve returns the canonical model name for an alias, or the input
// unchanged when it is not one.
func (a *ModelAliases) Resolve(modelOrAlias string) string {
	if a == nil || a.Aliases == nil {
		return modelOrAlias
	}
	if canonical, ok := a.Aliases[modelOrAlias]; ok {
		return canonical
	}
	return modelOrAlias
}

// ValidateModel checks that a model exists in the adapter's list.
func (a *ModelAliases) ValidateModel(adapter, model string) error {
	if a == nil || a.Providers == nil {
		return nil
	}

	models, ok := a.Providers[adapter]
	if !ok {
		return fmt.Errorf("unknown adapter %q", adapter)
	}
	for _, m := range models {
		if m == model {
			return nil
		}
	}
	return fmt.Errorf("model %q not in %s provider list", model, adapter)
}

// ValidateEnrich checks that the enrichment tiers name known adapters
// and models, one error per bad entry. The mock adapter accepts any
// model.
func (a *ModelAliases) ValidateEnrich(e EnrichConfig) []error {
	if a == nil {
		return nil
	}

	var errs []error
	check := func(tier, adapterName, model string) {
		if adapterName == "" || adapterName == "mock" {
			return
		}
		if model == "" {
			errs = append(errs, fmt.Errorf("%s: adapter %q without a model", tier, adapterName))
			return
		}
		if err := a.ValidateModel(adapterName, a.Resolve(model)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", tier, err))
		}
	}
	check("tier2", e.Tier2Adapter, e.Tier2Model)
	check("tier3", e.Tier3Adapter, e.Tier3Model)
	return errs
}

// ListProviders returns the adapter names in sorted order.
func (a *ModelAliases) ListProviders() []string {
	if a == nil || a.Providers == nil {
		return nil
	}
	providers := make([]string, 0, len(a.Providers))
	for p := range a.Providers {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	return providers
}

// DefaultAliases returns the built-in model table.
func DefaultAliases() *ModelAliases {
	return &ModelAliases{
		Aliases: map[string]string{
			"fast":       "gpt-5.2-instant",
			"fast-code":  "gpt-5.2-codex",
			"thinking":   "gpt-5.2-thinking",
			"quality":    "claude-sonnet-4-20250514",
			"deep":       "claude-opus-4-20250514",
			"research":   "gemini-2.0-pro",
			"cheap":      "deepseek-chat",
			"cheap-code": "deepseek-coder",
			"reason":     "deepseek-reasoner",
		},
		Providers: map[string][]string{
			"anthropic": {"claude-sonnet-4-20250514", "claude-opus-4-20250514"},
			"openai":    {"gpt-5.2-instant", "gpt-5.2-thinking", "gpt-5.2-codex", "gpt-5.2-pro"},
			"google":    {"gemini-2.0-pro"},
			"deepseek":  {"deepseek-chat", "deepseek-coder", "deepseek-reasoner"},
		},
	}
}
