// Package config loads the engine configuration: defaults first, then
// a YAML file, then TIERGATE_* environment overrides on top. A local
// .env file is read before the environment is consulted and ignored
// when absent. Scoring rule tables are a separate document
// (LoadScoringConfig) so a deployment can override one dimension's
// keywords without restating the engine config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the resolved engine configuration.
type Config struct {
	APIKeys     APIKeysConfig  `yaml:"api_keys"`
	Routing     RoutingConfig  `yaml:"routing"`
	Consult     ConsultConfig  `yaml:"consult"`
	Cache       CacheConfig    `yaml:"cache"`
	Learning    LearningConfig `yaml:"learning"`
	Store       StoreConfig    `yaml:"store"`
	Enrich      EnrichConfig   `yaml:"enrich"`
	Trace       TraceConfig    `yaml:"trace"`
	Audit       AuditConfig    `yaml:"audit"`
	Logging     LoggingConfig  `yaml:"logging"`
	ScoringFile string         `yaml:"scoring_file,omitempty"`
}

// APIKeysConfig holds model adapter credentials.
type APIKeysConfig struct {
	Anthropic string `yaml:"anthropic,omitempty"`
	OpenAI    string `yaml:"openai,omitempty"`
	Google    string `yaml:"google,omitempty"`
	DeepSeek  string `yaml:"deepseek,omitempty"`
}

// RoutingConfig holds the starting calibration and scorer toggles.
// Weights and boundaries mirror the router types; the engine feeds
// them into the classifier at startup and the learner moves them from
// there.
type RoutingConfig struct {
	Weights               WeightsConfig    `yaml:"weights"`
	Boundaries            BoundariesConfig `yaml:"boundaries"`
	ContextualAdjustments *bool            `yaml:"contextual_adjustments,omitempty"`
}

// AdjustmentsEnabled reports whether the contextual scoring bonuses
// apply. Unset means enabled.
func (r *RoutingConfig) AdjustmentsEnabled() bool {
	return r.ContextualAdjustments == nil || *r.ContextualAdjustments
}

// WeightsConfig mirrors the eight dimension weights.
type WeightsConfig struct {
	Scope       float64 `yaml:"scope"`
	Technical   float64 `yaml:"technical"`
	Domain      float64 `yaml:"domain"`
	Risk        float64 `yaml:"risk"`
	Temporal    float64 `yaml:"temporal"`
	Stakeholder float64 `yaml:"stakeholder"`
	Uncertainty float64 `yaml:"uncertainty"`
	Dependency  float64 `yaml:"dependency"`
}

// BoundariesConfig mirrors the tier boundaries.
type BoundariesConfig struct {
	Direct float64 `yaml:"direct"`
	Tier1  float64 `yaml:"tier1"`
	Tier2  float64 `yaml:"tier2"`
}

// ConsultConfig holds consultation deadlines, the per-tier cost table,
// and the optional budget cap (0 means uncapped).
type ConsultConfig struct {
	Tier2TimeoutMs int         `yaml:"tier2_timeout_ms"`
	Tier3TimeoutMs int         `yaml:"tier3_timeout_ms"`
	Costs          CostsConfig `yaml:"costs"`
	Budget         float64     `yaml:"budget,omitempty"`
}

// Tier2Timeout returns the TIER_2 consultation deadline.
func (c *ConsultConfig) Tier2Timeout() time.Duration {
	return time.Duration(c.Tier2TimeoutMs) * time.Millisecond
}

// Tier3Timeout returns the TIER_3 consultation deadline.
func (c *ConsultConfig) Tier3Timeout() time.Duration {
	return time.Duration(c.Tier3TimeoutMs) * time.Millisecond
}

// CostsConfig is the per-tier consultation cost table in abstract
// units.
type CostsConfig struct {
	Direct float64 `yaml:"direct"`
	Tier1  float64 `yaml:"tier1"`
	Tier2  float64 `yaml:"tier2"`
	Tier3  float64 `yaml:"tier3"`
}

// CacheConfig bounds the consultation cache.
type CacheConfig struct {
	Capacity       int `yaml:"capacity"`
	HighTTLHours   int `yaml:"high_ttl_hours"`
	NormalTTLHours int `yaml:"normal_ttl_hours"`
	LowTTLHours    int `yaml:"low_ttl_hours"`
}

// HighTTL returns the high-priority cache lifetime.
func (c *CacheConfig) HighTTL() time.Duration {
	return time.Duration(c.HighTTLHours) * time.Hour
}

// NormalTTL returns the normal-priority cache lifetime.
func (c *CacheConfig) NormalTTL() time.Duration {
	return time.Duration(c.NormalTTLHours) * time.Hour
}

// LowTTL returns the low-priority cache lifetime.
func (c *CacheConfig) LowTTL() time.Duration {
	return time.Duration(c.LowTTLHours) * time.Hour
}

// LearningConfig controls the calibration learner.
type LearningConfig struct {
	Batch int `yaml:"batch"`
}

// StoreConfig selects the Context & Learning Store backend.
type StoreConfig struct {
	Backend     string `yaml:"backend"`
	FileDir     string `yaml:"file_dir,omitempty"`
	RedisURL    string `yaml:"redis_url,omitempty"`
	SQLitePath  string `yaml:"sqlite_path,omitempty"`
	PostgresDSN string `yaml:"postgres_dsn,omitempty"`
}

// EnrichConfig selects the optional model adapter behind each
// consulting tier. An empty adapter keeps the rule-based output.
type EnrichConfig struct {
	Tier2Adapter string `yaml:"tier2_adapter,omitempty"`
	Tier2Model   string `yaml:"tier2_model,omitempty"`
	Tier3Adapter string `yaml:"tier3_adapter,omitempty"`
	Tier3Model   string `yaml:"tier3_model,omitempty"`
}

// TraceConfig controls operator-review trace output. An empty dir
// disables tracing.
type TraceConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

// AuditConfig controls the signed audit trail. An empty dir disables
// auditing; the key directory defaults to <dir>/keys.
type AuditConfig struct {
	Dir    string `yaml:"dir,omitempty"`
	KeyDir string `yaml:"key_dir,omitempty"`
	KeyID  string `yaml:"key_id"`
}

// LoggingConfig shapes the zap logger.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

// Default returns the built-in configuration.
func Default() *Config {
	adjust := true
	return &Config{
		Routing: RoutingConfig{
			Weights: WeightsConfig{
				Scope: 0.20, Technical: 0.25, Domain: 0.20, Risk: 0.15,
				Temporal: 0.05, Stakeholder: 0.05, Uncertainty: 0.05, Dependency: 0.05,
			},
			Boundaries:            BoundariesConfig{Direct: 3.5, Tier1: 6.5, Tier2: 8.5},
			ContextualAdjustments: &adjust,
		},
		Consult: ConsultConfig{
			Tier2TimeoutMs: 30000,
			Tier3TimeoutMs: 60000,
			Costs:          CostsConfig{Direct: 1, Tier1: 2, Tier2: 5, Tier3: 10},
		},
		Cache:    CacheConfig{Capacity: 1000, HighTTLHours: 168, NormalTTLHours: 72, LowTTLHours: 24},
		Learning: LearningConfig{Batch: 25},
		Store:    StoreConfig{Backend: "memory"},
		Audit:    AuditConfig{KeyID: "tiergate"},
		Logging:  LoggingConfig{Level: "info", Encoding: "console"},
	}
}

// Load reads the configuration at path, fills defaults for absent
// fields, and lets TIERGATE_* environment variables win. An empty
// path skips the file and loads defaults plus environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	applyDefaults(cfg)
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads ~/.tiergate/config.yaml when present, defaults
// otherwise. Environment overrides apply either way.
func LoadDefault() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return Load("")
	}
	if _, err := os.Stat(path); err != nil {
		return Load("")
	}
	return Load(path)
}

// DefaultPath returns ~/.tiergate/config.yaml, creating the config
// directory if needed.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".tiergate")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Routing.Weights == (WeightsConfig{}) {
		cfg.Routing.Weights = def.Routing.Weights
	}
	if cfg.Routing.Boundaries == (BoundariesConfig{}) {
		cfg.Routing.Boundaries = def.Routing.Boundaries
	}
	if cfg.Routing.ContextualAdjustments == nil {
		cfg.Routing.ContextualAdjustments = def.Routing.ContextualAdjustments
	}
	if cfg.Consult.Tier2TimeoutMs == 0 {
		cfg.Consult.Tier2TimeoutMs = def.Consult.Tier2TimeoutMs
	}
	if cfg.Consult.Tier3TimeoutMs == 0 {
		cfg.Consult.Tier3TimeoutMs = def.Consult.Tier3TimeoutMs
	}
	if cfg.Consult.Costs == (CostsConfig{}) {
		cfg.Consult.Costs = def.Consult.Costs
	}
	if cfg.Cache.Capacity == 0 {
		cfg.Cache.Capacity = def.Cache.Capacity
	}
	if cfg.Cache.HighTTLHours == 0 {
		cfg.Cache.HighTTLHours = def.Cache.HighTTLHours
	}
	if cfg.Cache.NormalTTLHours == 0 {
		cfg.Cache.NormalTTLHours = def.Cache.NormalTTLHours
	}
	if cfg.Cache.LowTTLHours == 0 {
		cfg.Cache.LowTTLHours = def.Cache.LowTTLHours
	}
	if cfg.Learning.Batch == 0 {
		cfg.Learning.Batch = def.Learning.Batch
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = def.Store.Backend
	}
	if cfg.Audit.KeyID == "" {
		cfg.Audit.KeyID = def.Audit.KeyID
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Encoding == "" {
		cfg.Logging.Encoding = def.Logging.Encoding
	}
}

func applyEnv(cfg *Config) {
	cfg.APIKeys.Anthropic = getEnvOrDefault("ANTHROPIC_API_KEY", cfg.APIKeys.Anthropic)
	cfg.APIKeys.OpenAI = getEnvOrDefault("OPENAI_API_KEY", cfg.APIKeys.OpenAI)
	cfg.APIKeys.Google = getEnvOrDefault("GOOGLE_API_KEY", cfg.APIKeys.Google)
	cfg.APIKeys.DeepSeek = getEnvOrDefault("DEEPSEEK_API_KEY", cfg.APIKeys.DeepSeek)

	cfg.Store.Backend = getEnvOrDefault("TIERGATE_STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.FileDir = getEnvOrDefault("TIERGATE_FILE_DIR", cfg.Store.FileDir)
	cfg.Store.RedisURL = getEnvOrDefault("TIERGATE_REDIS_URL", cfg.Store.RedisURL)
	cfg.Store.SQLitePath = getEnvOrDefault("TIERGATE_SQLITE_PATH", cfg.Store.SQLitePath)
	cfg.Store.PostgresDSN = getEnvOrDefault("TIERGATE_POSTGRES_DSN", cfg.Store.PostgresDSN)

	cfg.Trace.Dir = getEnvOrDefault("TIERGATE_TRACE_DIR", cfg.Trace.Dir)
	cfg.Audit.Dir = getEnvOrDefault("TIERGATE_AUDIT_DIR", cfg.Audit.Dir)
	cfg.Audit.KeyDir = getEnvOrDefault("TIERGATE_AUDIT_KEY_DIR", cfg.Audit.KeyDir)
	cfg.Logging.Level = getEnvOrDefault("TIERGATE_LOG_LEVEL", cfg.Logging.Level)
	cfg.ScoringFile = getEnvOrDefault("TIERGATE_SCORING_FILE", cfg.ScoringFile)

	cfg.Cache.Capacity = getEnvInt("TIERGATE_CACHE_CAPACITY", cfg.Cache.Capacity)
	cfg.Learning.Batch = getEnvInt("TIERGATE_LEARNING_BATCH", cfg.Learning.Batch)
	cfg.Consult.Budget = getEnvFloat("TIERGATE_BUDGET", cfg.Consult.Budget)

	// The key directory derives from the audit directory unless set
	// explicitly, so it has to resolve after the env overrides.
	if cfg.Audit.Dir != "" && cfg.Audit.KeyDir == "" {
		cfg.Audit.KeyDir = filepath.Join(cfg.Audit.Dir, "keys")
	}
}

// Validate rejects configurations the engine cannot run on.
func (c *Config) Validate() error {
	w := c.Routing.Weights
	sum := w.Scope + w.Technical + w.Domain + w.Risk + w.Temporal + w.Stakeholder + w.Uncertainty + w.Dependency
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("dimension weights sum to %.3f, want 1.0 (±0.001)", sum)
	}
	if w.Scope < 0 || w.Technical < 0 || w.Domain < 0 || w.Risk < 0 ||
		w.Temporal < 0 || w.Stakeholder < 0 || w.Uncertainty < 0 || w.Dependency < 0 {
		return fmt.Errorf("dimension weights must be non-negative")
	}

	b := c.Routing.Boundaries
	if !(b.Direct < b.Tier1 && b.Tier1 < b.Tier2) {
		return fmt.Errorf("tier boundaries must be strictly increasing: %.2f, %.2f, %.2f", b.Direct, b.Tier1, b.Tier2)
	}
	if b.Direct <= 0 || b.Tier2 >= 10 {
		return fmt.Errorf("tier boundaries must sit inside (0,10)")
	}

	if c.Consult.Tier2TimeoutMs <= 0 || c.Consult.Tier3TimeoutMs <= 0 {
		return fmt.Errorf("consultation timeouts must be positive")
	}
	costs := c.Consult.Costs
	if costs.Direct <= 0 || costs.Tier1 <= 0 || costs.Tier2 <= 0 || costs.Tier3 <= 0 {
		return fmt.Errorf("tier costs must be positive")
	}
	if c.Consult.Budget < 0 {
		return fmt.Errorf("budget must not be negative")
	}

	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache capacity must be positive")
	}
	if c.Cache.LowTTLHours <= 0 || c.Cache.NormalTTLHours < c.Cache.LowTTLHours ||
		c.Cache.HighTTLHours < c.Cache.NormalTTLHours {
		return fmt.Errorf("cache TTLs must satisfy high >= normal >= low > 0")
	}

	if c.Learning.Batch <= 0 {
		return fmt.Errorf("learning batch must be positive")
	}

	switch c.Store.Backend {
	case "memory", "file":
	case "redis":
		if c.Store.RedisURL == "" {
			return fmt.Errorf("redis backend requires redis_url")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("sqlite backend requires sqlite_path")
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("postgres backend requires postgres_dsn")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	for _, name := range []string{c.Enrich.Tier2Adapter, c.Enrich.Tier3Adapter} {
		switch name {
		case "", "anthropic", "openai", "deepseek", "google", "mock":
		default:
			return fmt.Errorf("unknown enrichment adapter %q", name)
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log encoding %q", c.Logging.Encoding)
	}

	return nil
}

// HasAdapter reports whether the API key for the named adapter is
// configured. The mock adapter needs no key.
func (c *Config) HasAdapter(name string) bool {
	switch name {
	case "anthropic":
		return c.APIKeys.Anthropic != ""
	case "openai":
		return c.APIKeys.OpenAI != ""
	case "google":
		return c.APIKeys.Google != ""
	case "deepseek":
		return c.APIKeys.DeepSeek != ""
	case "mock":
		return true
	default:
		return false
	}
}

// APIKey returns the configured key for the named adapter.
func (c *Config) APIKey(name string) string {
	switch name {
	case "anthropic":
		return c.APIKeys.Anthropic
	case "openai":
		return c.APIKeys.OpenAI
	case "google":
		return c.APIKeys.Google
	case "deepseek":
		return c.APIKeys.DeepSeek
	default:
		return ""
	}
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise the default.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(envVar string, defaultValue int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvFloat(envVar string, defaultValue float64) float64 {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultValue
	}
	return f
}
