// Package engine wires the routing and consultation subsystems into the
// two operations the surrounding system calls: Route, the pure
// classification, and Execute, the consultation with cache, learning,
// trace and audit side effects. An Engine is safe for concurrent use;
// construct one per process and Close it at shutdown.
package engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/zen-systems/tiergate/pkg/adapter"
	"github.com/zen-systems/tiergate/pkg/audit"
	"github.com/zen-systems/tiergate/pkg/config"
	"github.com/zen-systems/tiergate/pkg/consult"
	"github.com/zen-systems/tiergate/pkg/gate"
	"github.com/zen-systems/tiergate/pkg/learn"
	"github.com/zen-systems/tiergate/pkg/registry"
	"github.com/zen-systems/tiergate/pkg/revise"
	"github.com/zen-systems/tiergate/pkg/router"
	"github.com/zen-systems/tiergate/pkg/schema"
	"github.com/zen-systems/tiergate/pkg/specialist"
	"github.com/zen-systems/tiergate/pkg/store"
	"github.com/zen-systems/tiergate/pkg/trace"
)

// Options overrides pieces of the wiring, mainly for tests and for
// hosts that already own a logger or a store connection. Zero values
// build everything from the config.
type Options struct {
	Logger   *zap.Logger
	Clock    store.Clock
	Store    store.Store
	Registry *registry.Registry
}

// Engine is the facade over the whole routing pipeline.
type Engine struct {
	cfg        *config.Config
	log        *zap.Logger
	clock      store.Clock
	scorer     *router.Scorer
	classifier *router.Classifier
	registry   *registry.Registry
	runner     *consult.Runner
	store      store.Store
	flight     store.Flight
	ttl        store.TTLTable
	learner    *learn.Learner
	tracer     *trace.Writer
	auditor    *audit.Log
	closers    []func() error

	mu         sync.Mutex
	pending    *learn.Proposal
	sinceCycle int
}

// New builds an engine from the config. The context bounds backend
// connection setup only; it is not retained.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		var err error
		log, err = BuildLogger(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
	}
	clock := opts.Clock
	if clock == nil {
		clock = store.SystemClock()
	}

	scoring, err := loadScoring(cfg)
	if err != nil {
		return nil, fmt.Errorf("scoring config: %w", err)
	}
	scorer := router.NewScorer(scoring)
	classifier := router.NewClassifier(scorer.Rules())
	if err := classifier.SetCalibration(calibrationFrom(cfg)); err != nil {
		return nil, fmt.Errorf("routing calibration: %w", err)
	}
	classifier.SetAdjustments(cfg.Routing.AdjustmentsEnabled())

	reg := opts.Registry
	if reg == nil {
		reg, err = registry.DefaultSet()
		if err != nil {
			return nil, fmt.Errorf("default specialists: %w", err)
		}
	}

	e := &Engine{
		cfg:        cfg,
		log:        log,
		clock:      clock,
		scorer:     scorer,
		classifier: classifier,
		registry:   reg,
		learner:    learn.New(cfg.Learning.Batch, log),
		ttl: store.TTLTable{
			High:   cfg.Cache.HighTTL(),
			Normal: cfg.Cache.NormalTTL(),
			Low:    cfg.Cache.LowTTL(),
		},
	}

	reviser := revise.New(log)
	if err := e.wireEnrichers(reg, reviser); err != nil {
		return nil, err
	}
	if !reg.Frozen() {
		reg.Freeze()
	}

	e.store = opts.Store
	if e.store == nil {
		st, closer, err := openStore(ctx, cfg, clock)
		if err != nil {
			return nil, err
		}
		e.store = st
		if closer != nil {
			e.closers = append(e.closers, closer)
		}
	}

	if cfg.Trace.Dir != "" {
		e.tracer, err = trace.NewWriter(cfg.Trace.Dir)
		if err != nil {
			return nil, fmt.Errorf("trace writer: %w", err)
		}
	}
	if cfg.Audit.Dir != "" {
		signer, err := audit.NewSigner(cfg.Audit.KeyDir, cfg.Audit.KeyID)
		if err != nil {
			return nil, fmt.Errorf("audit signer: %w", err)
		}
		e.auditor, err = audit.NewLog(cfg.Audit.Dir, signer)
		if err != nil {
			return nil, fmt.Errorf("audit log: %w", err)
		}
	}

	e.runner = consult.New(reg, gate.New(), reviser, consult.Options{
		Timeouts: consult.Timeouts{
			Tier2: cfg.Consult.Tier2Timeout(),
			Tier3: cfg.Consult.Tier3Timeout(),
		},
		Costs: consult.CostTable{
			Direct: cfg.Consult.Costs.Direct,
			Tier1:  cfg.Consult.Costs.Tier1,
			Tier2:  cfg.Consult.Costs.Tier2,
			Tier3:  cfg.Consult.Costs.Tier3,
		},
		Budget: cfg.Consult.Budget,
		Clock:  clock,
		Logger: log,
	})
	return e, nil
}

func loadScoring(cfg *config.Config) (*config.ScoringConfig, error) {
	if cfg.ScoringFile == "" {
		return config.DefaultScoringConfig(), nil
	}
	return config.LoadScoringConfig(cfg.ScoringFile)
}

func calibrationFrom(cfg *config.Config) router.Calibration {
	w := cfg.Routing.Weights
	b := cfg.Routing.Boundaries
	return router.Calibration{
		Weights: router.Weights{
			Scope: w.Scope, Technical: w.Technical, Domain: w.Domain, Risk: w.Risk,
			Temporal: w.Temporal, Stakeholder: w.Stakeholder,
			Uncertainty: w.Uncertainty, Dependency: w.Dependency,
		},
		Boundaries: router.Boundaries{Direct: b.Direct, Tier1: b.Tier1, Tier2: b.Tier2},
	}
}

// wireEnrichers attaches model adapters to the configured consulting
// tiers. A tier with no adapter, or an adapter with no key, keeps the
// rule-based output.
func (e *Engine) wireEnrichers(reg *registry.Registry, reviser *revise.Reviser) error {
	aliases := config.LoadAliasesWithFallback()

	wire := func(tier schema.Tier, name, model string) error {
		if name == "" {
			return nil
		}
		if !e.cfg.HasAdapter(name) {
			e.log.Warn("enrichment adapter has no API key, keeping rule-based output",
				zap.String("adapter", name),
				zap.String("tier", tier.String()))
			return nil
		}
		a, err := adapter.New(name, e.cfg.APIKey(name))
		if err != nil {
			return fmt.Errorf("enrichment adapter %s: %w", name, err)
		}
		resolved := aliases.Resolve(model)
		enricher := specialist.NewModelEnricher(a, resolved, e.log)
		for _, sp := range reg.Specialists() {
			if sp.Tier() != tier {
				continue
			}
			switch s := sp.(type) {
			case *specialist.Generalist:
				s.UseEnricher(enricher)
			case *specialist.Architect:
				s.UseEnricher(enricher)
			}
		}
		reviser.UseModel(a, resolved)
		return nil
	}

	if err := wire(schema.Tier2, e.cfg.Enrich.Tier2Adapter, e.cfg.Enrich.Tier2Model); err != nil {
		return err
	}
	return wire(schema.Tier3, e.cfg.Enrich.Tier3Adapter, e.cfg.Enrich.Tier3Model)
}

func openStore(ctx context.Context, cfg *config.Config, clock store.Clock) (store.Store, func() error, error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemory(cfg.Cache.Capacity, clock), nil, nil
	case "file":
		f, err := store.NewFile(cfg.Store.FileDir, clock)
		if err != nil {
			return nil, nil, fmt.Errorf("open file store: %w", err)
		}
		return f, nil, nil
	case "redis":
		client, err := store.ConnectRedis(cfg.Store.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return store.NewRedis(client, clock), client.Close, nil
	case "sqlite":
		s, err := store.NewSQLite(cfg.Store.SQLitePath, cfg.Cache.Capacity, clock)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, s.Close, nil
	case "postgres":
		p, err := store.NewPostgres(ctx, cfg.Store.PostgresDSN, cfg.Cache.Capacity, clock)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return p, func() error { p.Close(); return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// Close releases backend connections and flushes the logger.
func (e *Engine) Close() error {
	var first error
	for _, closer := range e.closers {
		if err := closer(); err != nil && first == nil {
			first = err
		}
	}
	_ = e.log.Sync()
	return first
}

// Specialists returns the registered set ordered by tier, domain, id.
func (e *Engine) Specialists() []specialist.Specialist {
	return e.registry.Specialists()
}

// Calibration returns the classifier's current weights and boundaries.
func (e *Engine) Calibration() router.Calibration {
	return e.classifier.Calibration()
}

// Patterns aggregates the outcome history into per-(domain, tier)
// stats.
func (e *Engine) Patterns(ctx context.Context) (map[learn.PatternKey]learn.PatternStats, error) {
	history, err := e.store.History(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("outcome history: %w", err)
	}
	return learn.Aggregate(history), nil
}

// CacheLen reports the number of live cache entries.
func (e *Engine) CacheLen(ctx context.Context) (int, error) {
	return e.store.Len(ctx)
}

// CachePurge drops expired cache entries.
func (e *Engine) CachePurge(ctx context.Context) error {
	return e.store.Purge(ctx)
}

// CacheDelete evicts one fingerprint.
func (e *Engine) CacheDelete(ctx context.Context, fp schema.Fingerprint) error {
	return e.store.Delete(ctx, fp)
}
