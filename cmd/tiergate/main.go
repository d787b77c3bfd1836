package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zen-systems/tiergate/pkg/audit"
	"github.com/zen-systems/tiergate/pkg/config"
	"github.com/zen-systems/tiergate/pkg/engine"
	"github.com/zen-systems/tiergate/pkg/learn"
	"github.com/zen-systems/tiergate/pkg/router"
	"github.com/zen-systems/tiergate/pkg/schema"
	"github.com/zen-systems/tiergate/pkg/store"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "tiergate",
		Short: "Tiered task routing with specialist consultation and quality gates",
		Long: `Tiergate routes engineering tasks onto consultation tiers by scored
	complexity, consults the matching specialist, enforces a quality gate
	on every recommendation, and learns calibration adjustments from
	recorded outcomes.`,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file")

	rootCmd.AddCommand(routeCmd())
	rootCmd.AddCommand(executeCmd())
	rootCmd.AddCommand(specialistsCmd())
	rootCmd.AddCommand(patternsCmd())
	rootCmd.AddCommand(cacheCmd())
	rootCmd.AddCommand(thresholdsCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(batchCmd())
	rootCmd.AddCommand(auditCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	return config.LoadDefault()
}

// newEngine builds the engine from config. Commands that only score or
// inspect pass local=true and run against an in-process store, so they
// work without the configured backend being reachable.
func newEngine(ctx context.Context, local bool) (*engine.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	opts := engine.Options{}
	if local {
		opts.Store = store.NewMemory(cfg.Cache.Capacity, store.SystemClock())
	}
	return engine.New(ctx, cfg, opts)
}

func buildTask(desc, domain, priority string) schema.Task {
	task := schema.NewTask(desc)
	if domain != "" || priority != "" {
		task.Context = map[string]string{}
		if domain != "" {
			task.Context[schema.CtxDomain] = domain
		}
		if priority != "" {
			task.Context[schema.CtxPriority] = priority
		}
	}
	return task
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func routeCmd() *cobra.Command {
	var domainFlag string
	var priorityFlag string
	var jsonFlag bool
	var explainFlag bool

	cmd := &cobra.Command{
		Use:   "route [task]",
		Short: "Classify a task onto a consultation tier",
		Long: `Scores the task across the eight complexity dimensions and prints
	the tier decision with its confidence and reasoning. Routing is pure:
	nothing is consulted, cached, or recorded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine(context.Background(), true)
			if err != nil {
				return err
			}
			defer eng.Close()

			task := buildTask(args[0], domainFlag, priorityFlag)
			dec := eng.Route(task)

			if jsonFlag {
				return printJSON(dec)
			}

			fmt.Printf("Tier:       %s\n", dec.Tier)
			fmt.Printf("Score:      %.2f\n", dec.NumericScore)
			fmt.Printf("Confidence: %.2f\n", dec.Confidence)
			fmt.Printf("Domain:     %s\n", dec.Domain)
			fmt.Println("Reasoning:")
			for _, r := range dec.Reasoning {
				fmt.Printf("  - %s\n", r)
			}
			if explainFlag {
				fmt.Println("Dimensions:")
				for _, dim := range schema.DimensionOrder {
					fmt.Printf("  %-12s %d\n", dim, dec.Vector.Get(dim))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&domainFlag, "domain", "", "override the detected domain")
	cmd.Flags().StringVar(&priorityFlag, "priority", "", "task priority (low, normal, high)")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print the decision as JSON")
	cmd.Flags().BoolVar(&explainFlag, "explain", false, "show the per-dimension scores")

	return cmd
}

func executeCmd() *cobra.Command {
	var domainFlag string
	var priorityFlag string
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "execute [task]",
		Short: "Route a task and run the specialist consultation",
		Long: `Routes the task, consults the matching specialist (escalating
	through the tiers when quality or capacity demands it), and prints the
	gated recommendation. Identical tasks within TTL are served from the
	consultation cache.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			eng, err := newEngine(ctx, false)
			if err != nil {
				return err
			}
			defer eng.Close()

			task := buildTask(args[0], domainFlag, priorityFlag)
			dec := eng.Route(task)
			fmt.Fprintf(os.Stderr, "Routed to %s (score %.2f, confidence %.2f, domain %s)\n",
				dec.Tier, dec.NumericScore, dec.Confidence, dec.Domain)

			res, err := eng.Execute(ctx, dec, task)
			if err != nil {
				return err
			}

			if jsonFlag {
				return printJSON(res)
			}

			if res.FromCache {
				fmt.Fprintln(os.Stderr, "Served from cache.")
			}
			for _, hop := range res.EscalationTrail {
				fmt.Fprintf(os.Stderr, "Escalated %s -> %s: %s\n", hop.FromTier, hop.ToTier, hop.Reason)
			}

			rec := res.Recommendation
			fmt.Printf("Specialist: %s (%s)\n", res.SpecialistID, res.FinalTier)
			fmt.Printf("Summary:    %s\n", rec.Summary)
			fmt.Println("Actions:")
			for i, a := range rec.Actions {
				fmt.Printf("  %d. %s\n", i+1, a)
			}
			if len(rec.Risks) > 0 {
				fmt.Println("Risks:")
				for _, r := range rec.Risks {
					fmt.Printf("  - %s\n", r)
				}
			}
			fmt.Printf("Timeline:   %s\n", rec.Timeline)
			fmt.Printf("Confidence: %.2f\n", rec.Confidence)
			fmt.Printf("Gate:       %s (%.2f)\n", res.Quality.Level, res.Quality.OverallScore)
			fmt.Printf("Cost:       %.1f units\n", res.CostUnits)

			if res.GateFailure != nil {
				fmt.Fprintf(os.Stderr, "Warning: quality gate not met (%.2f). Improvements:\n", res.GateFailure.Score)
				for _, imp := range res.GateFailure.Improvements {
					fmt.Fprintf(os.Stderr, "  - %s\n", imp)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&domainFlag, "domain", "", "override the detected domain")
	cmd.Flags().StringVar(&priorityFlag, "priority", "", "task priority (low, normal, high)")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print the full result as JSON")

	return cmd
}

func specialistsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "specialists",
		Short: "List the registered specialists",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine(context.Background(), true)
			if err != nil {
				return err
			}
			defer eng.Close()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDOMAIN\tTIER\tCAPACITY\tEXPERTISE")
			for _, sp := range eng.Specialists() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					sp.ID(), sp.Domain(), sp.Tier(), sp.MaxComplexity(), formatList(sp.Expertise()))
			}
			return w.Flush()
		},
	}
}

func patternsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "patterns",
		Short: "Show per-(domain, tier) outcome statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			eng, err := newEngine(ctx, false)
			if err != nil {
				return err
			}
			defer eng.Close()

			stats, err := eng.Patterns(ctx)
			if err != nil {
				return err
			}
			if len(stats) == 0 {
				fmt.Println("No outcome history yet.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DOMAIN\tTIER\tCONSULTS\tCACHE HITS\tESCALATION\tMEAN GATE")
			for _, k := range learn.SortedKeys(stats) {
				s := stats[k]
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.0f%%\t%.2f\n",
					k.Domain, k.Tier, s.Count, s.CacheHits, s.EscalationRate*100, s.MeanGateScore)
			}
			return w.Flush()
		},
	}
}

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the consultation cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cache entry count",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			eng, err := newEngine(ctx, false)
			if err != nil {
				return err
			}
			defer eng.Close()

			n, err := eng.CacheLen(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Entries: %d\n", n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Drop every cached consultation",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			eng, err := newEngine(ctx, false)
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.CachePurge(ctx); err != nil {
				return err
			}
			fmt.Println("Cache purged.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete [fingerprint]",
		Short: "Drop one cached consultation by fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fp := schema.Fingerprint(args[0])
			if !fp.Valid() {
				return fmt.Errorf("fingerprint must be 64 hex characters")
			}

			ctx := context.Background()
			eng, err := newEngine(ctx, false)
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.CacheDelete(ctx, fp); err != nil {
				return err
			}
			fmt.Printf("Removed %s from the cache.\n", fp.Short())
			return nil
		},
	})

	return cmd
}

func thresholdsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thresholds",
		Short: "Show and adjust the routing calibration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the current boundaries and dimension weights",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine(context.Background(), true)
			if err != nil {
				return err
			}
			defer eng.Close()

			printCalibration(eng.Calibration())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "propose",
		Short: "Derive a calibration adjustment from outcome history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			eng, err := newEngine(ctx, false)
			if err != nil {
				return err
			}
			defer eng.Close()

			prop, err := eng.Propose(ctx)
			if err != nil {
				return err
			}
			if prop == nil {
				fmt.Println("No calibration adjustment is warranted by the current history.")
				return nil
			}

			printProposal(prop.ID, prop.BasedOn, prop.Rationale, prop.ExpectedImpact)
			printCalibration(prop.Calibration)
			fmt.Println("\nRun 'tiergate thresholds apply' to adopt it.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "apply",
		Short: "Derive and adopt a calibration adjustment",
		Long: `Recomputes the proposal from the current outcome history and adopts
	it. The application is recorded on the audit trail when one is
	configured. Nothing is ever applied without this explicit step.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			eng, err := newEngine(ctx, false)
			if err != nil {
				return err
			}
			defer eng.Close()

			prop, err := eng.Propose(ctx)
			if err != nil {
				return err
			}
			if prop == nil {
				fmt.Println("No calibration adjustment is warranted by the current history.")
				return nil
			}
			if err := eng.ApplyPending(); err != nil {
				return err
			}

			printProposal(prop.ID, prop.BasedOn, prop.Rationale, prop.ExpectedImpact)
			fmt.Println("\nCalibration applied.")
			printCalibration(eng.Calibration())
			return nil
		},
	})

	return cmd
}

func printProposal(id string, basedOn int, rationale []string, impact string) {
	fmt.Printf("Proposal %s (from %d outcomes)\n", id, basedOn)
	for _, r := range rationale {
		fmt.Printf("  - %s\n", r)
	}
	fmt.Printf("Expected impact: %s\n", impact)
}

func printCalibration(cal router.Calibration) {
	b := cal.Boundaries
	fmt.Println("Boundaries:")
	fmt.Printf("  %-8s score < %.2f\n", schema.TierDirect, b.Direct)
	fmt.Printf("  %-8s %.2f <= score < %.2f\n", schema.Tier1, b.Direct, b.Tier1)
	fmt.Printf("  %-8s %.2f <= score < %.2f\n", schema.Tier2, b.Tier1, b.Tier2)
	fmt.Printf("  %-8s %.2f <= score\n", schema.Tier3, b.Tier2)
	fmt.Println("Weights:")
	for _, dim := range schema.DimensionOrder {
		fmt.Printf("  %-12s %.2f\n", dim, cal.Weights.Get(dim))
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the engine configuration",
		Long:  "Loads the configuration, checks it, and verifies enrichment models against the provider tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			aliases := config.LoadAliasesWithFallback()
			if errs := aliases.ValidateEnrich(cfg.Enrich); len(errs) > 0 {
				fmt.Fprintf(os.Stderr, "Found %d enrichment problems:\n", len(errs))
				for _, e := range errs {
					fmt.Fprintf(os.Stderr, "  - %v\n", e)
				}
				return fmt.Errorf("validation failed")
			}

			if cfg.ScoringFile != "" {
				if _, err := config.LoadScoringConfig(cfg.ScoringFile); err != nil {
					return fmt.Errorf("scoring file: %w", err)
				}
			}

			fmt.Println("Configuration is valid.")
			return nil
		},
	}
}

func batchCmd() *cobra.Command {
	var inputFile string
	var workers int

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Route a stream of tasks",
		Long: `Reads tasks from --input or stdin, one per line (either a JSON task
	object or a bare description), routes them concurrently, and writes
	one decision JSON per line in input order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine(context.Background(), true)
			if err != nil {
				return err
			}
			defer eng.Close()

			in := os.Stdin
			if inputFile != "" {
				f, err := os.Open(inputFile)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			var lines []string
			scanner := bufio.NewScanner(in)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				if line := strings.TrimSpace(scanner.Text()); line != "" {
					lines = append(lines, line)
				}
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			type routed struct {
				Description string                 `json:"description"`
				Decision    router.RoutingDecision `json:"decision"`
			}
			results := make([]routed, len(lines))

			g := new(errgroup.Group)
			g.SetLimit(workers)
			for i, line := range lines {
				g.Go(func() error {
					task, err := parseBatchTask(line)
					if err != nil {
						return fmt.Errorf("line %d: %w", i+1, err)
					}
					results[i] = routed{Description: task.Description, Decision: eng.Route(task)}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			for i := range results {
				if err := enc.Encode(results[i]); err != nil {
					return err
				}
			}
			fmt.Fprintf(os.Stderr, "Routed %d tasks.\n", len(results))
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "input file (defaults to stdin)")
	cmd.Flags().IntVar(&workers, "workers", 8, "concurrent routing workers")

	return cmd
}

func parseBatchTask(line string) (schema.Task, error) {
	if strings.HasPrefix(line, "{") {
		var task schema.Task
		if err := json.Unmarshal([]byte(line), &task); err != nil {
			return schema.Task{}, fmt.Errorf("parse task: %w", err)
		}
		if task.Schema == "" {
			task.Schema = schema.SchemaTaskV1
		}
		return task, nil
	}
	return schema.NewTask(line), nil
}

func auditCmd() *cobra.Command {
	var trailFlag string
	var keysFlag string

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Verify every signature on the audit trail",
		RunE: func(cmd *cobra.Command, args []string) error {
			trail, keys := trailFlag, keysFlag
			if trail == "" || keys == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				if cfg.Audit.Dir == "" {
					return fmt.Errorf("no audit trail configured; set audit.dir or pass --trail and --keys")
				}
				if trail == "" {
					trail = filepath.Join(cfg.Audit.Dir, "audit.jsonl")
				}
				if keys == "" {
					keys = cfg.Audit.KeyDir
				}
			}

			n, err := audit.VerifyLog(trail, keys)
			if err != nil {
				return err
			}
			fmt.Printf("Verified %d audit records.\n", n)
			return nil
		},
	}

	verify.Flags().StringVar(&trailFlag, "trail", "", "audit trail path (defaults to the configured trail)")
	verify.Flags().StringVar(&keysFlag, "keys", "", "key directory (defaults to the configured key directory)")

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit trail operations",
	}
	cmd.AddCommand(verify)
	return cmd
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
