package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"datasteward/internal/agent"
	"datasteward/internal/config"
	"datasteward/internal/logging"
	"datasteward/internal/oracle"
	"datasteward/internal/policy"
	"datasteward/internal/seed"
	"datasteward/internal/store"
)

const version = "0.1.0"

var (
	verbose   bool
	workspace string
	apiKey    string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "steward",
	Short: "datasteward - closed-loop data governance reasoning agent",
	Long: `datasteward runs a daily governance cycle over a governed data catalog:
it detects rule breaches, ranks concept risk, investigates the riskiest
concept's pipeline lineage, detects policy gaps, recommends a remediation,
and learns from whether previous recommendations improved quality.

Every reasoning step is appended to an auditable event log.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("file logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialise the workspace: config, database schema, ontology, seed data",
	RunE:  runInit,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daily governance simulation",
	RunE:  runSimulation,
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Summarise the reasoning event log",
	RunE:  runEvents,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the steward version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("steward %s\n", version)
	},
}

var (
	flagDays    int
	flagReset   bool
	flagType    string
	flagVerbose bool
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "Workspace directory")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Gemini API key (or set GEMINI_API_KEY)")

	runCmd.Flags().IntVar(&flagDays, "days", 0, "Number of simulated days (default: config value)")
	runCmd.Flags().BoolVar(&flagReset, "reset", false, "Clear the event log before running")

	eventsCmd.Flags().StringVar(&flagType, "type", "", "Only show events of this type")
	eventsCmd.Flags().BoolVar(&flagVerbose, "full", false, "Print full event records")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(versionCmd)
}

func configPath() string {
	return filepath.Join(workspace, ".steward", "config.yaml")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*store.LocalStore, error) {
	dbPath := cfg.Store.DatabasePath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(workspace, dbPath)
	}
	return store.NewLocalStore(dbPath)
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	if err := os.MkdirAll(filepath.Join(workspace, ".steward"), 0755); err != nil {
		return fmt.Errorf("creating workspace dir: %w", err)
	}
	if err := cfg.Save(configPath()); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", configPath())

	ontPath := filepath.Join(workspace, cfg.Policy.OntologyPath)
	if err := os.MkdirAll(filepath.Dir(ontPath), 0755); err != nil {
		return fmt.Errorf("creating ontology dir: %w", err)
	}
	if err := policy.WriteDefaultOntology(ontPath); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", ontPath)

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("initialising store: %w", err)
	}
	defer st.Close()

	if err := seed.Populate(st, cfg.Simulation.StartDate, cfg.Simulation.Days); err != nil {
		return fmt.Errorf("seeding catalog: %w", err)
	}
	fmt.Printf("Seeded catalog and %d days of scores into %s\n", cfg.Simulation.Days, cfg.Store.DatabasePath)
	return nil
}

func buildOracle(ctx context.Context, cfg *config.Config) oracle.Client {
	if cfg.LLM.APIKey == "" {
		logger.Warn("no API key configured, using deterministic offline oracle")
		fmt.Println("WARNING: no Gemini API key set; semantic analysis uses the offline heuristic oracle.")
		return oracle.NewCachedClient(oracle.NewStaticOracle())
	}
	gem, err := oracle.NewGeminiOracle(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
	if err != nil {
		logger.Warn("gemini oracle unavailable, using offline oracle", zap.Error(err))
		return oracle.NewCachedClient(oracle.NewStaticOracle())
	}
	if cfg.LLM.CacheEnabled {
		return oracle.NewCachedClient(gem)
	}
	return gem
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	days := cfg.Simulation.Days
	if flagDays > 0 {
		days = flagDays
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if flagReset {
		if err := st.ResetEventLog(); err != nil {
			return fmt.Errorf("resetting event log: %w", err)
		}
		fmt.Println("Event log cleared.")
	}

	if err := seed.Populate(st, cfg.Simulation.StartDate, days); err != nil {
		return fmt.Errorf("seeding catalog: %w", err)
	}

	ontPath := cfg.Policy.OntologyPath
	if !filepath.IsAbs(ontPath) {
		ontPath = filepath.Join(workspace, ontPath)
	}
	ont, err := policy.LoadOntology(ontPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	orc := buildOracle(ctx, cfg)
	a := agent.New(st, orc, ont, cfg.Risk)

	fmt.Printf("\ndatasteward: %d-day governance simulation\n", days)
	fmt.Printf("Database : %s\nStart    : %s\n\n", cfg.Store.DatabasePath, cfg.Simulation.StartDate)

	results, err := a.RunSimulation(ctx, cfg.Simulation.StartDate, days, printDaySummary)
	if err != nil {
		return err
	}

	printFinalReport(st, a, results)
	return nil
}

func printDaySummary(r agent.CycleResult) {
	fmt.Printf("%s\n  DAY %02d  |  %s\n%s\n", divider(), r.Day, r.Date, divider())
	if r.Status == "no_terms" {
		fmt.Println("  No governed concepts found; nothing to do.")
		return
	}
	fmt.Printf("  Focus          : %s\n", r.FocusName)
	fmt.Printf("  Risk score     : %.4f\n", r.RiskScore)
	fmt.Printf("  Primary score  : %.4f\n", r.PrimaryScore)
	fmt.Printf("  Breaches today : %d\n", r.BreachCount)
	fmt.Printf("  Policy gaps    : %d\n", r.GapCount)
	fmt.Printf("  Recommendation : %s\n    %s\n\n", r.RecType, r.RecAction)
}

func printFinalReport(st *store.LocalStore, a *agent.Agent, results []agent.CycleResult) {
	fmt.Printf("%s\n  SIMULATION COMPLETE - FINAL REPORT\n%s\n", divider(), divider())

	counts, err := st.EventCountsByType()
	if err == nil {
		fmt.Println("\n  Events emitted by type:")
		type kv struct {
			name  string
			count int
		}
		var rows []kv
		total := 0
		for name, n := range counts {
			rows = append(rows, kv{name, n})
			total += n
		}
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].count != rows[j].count {
				return rows[i].count > rows[j].count
			}
			return rows[i].name < rows[j].name
		})
		for _, row := range rows {
			fmt.Printf("    %-30s %4d\n", row.name, row.count)
		}
		fmt.Printf("\n  Total events: %d\n", total)
	}

	snapshot := a.Memory().Snapshot()
	if len(snapshot.AttentionWeights) > 0 {
		fmt.Println("\n  Final attention weights:")
		ids := make([]string, 0, len(snapshot.AttentionWeights))
		for id := range snapshot.AttentionWeights {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			return snapshot.AttentionWeights[ids[i]] > snapshot.AttentionWeights[ids[j]]
		})
		for _, id := range ids {
			fmt.Printf("    %-8s %.3f\n", id, snapshot.AttentionWeights[id])
		}
	}

	fmt.Println("\n  Investigation focus timeline:")
	prev := ""
	for _, r := range results {
		shift := ""
		if prev != "" && r.FocusName != prev {
			shift = "  <- SHIFT"
		}
		fmt.Printf("    %s  %s%s\n", r.Date, r.FocusName, shift)
		prev = r.FocusName
	}

	recCounts := make(map[string]int)
	for _, r := range results {
		if r.RecType != "" {
			recCounts[r.RecType]++
		}
	}
	fmt.Println("\n  Recommendations by type:")
	recTypes := make([]string, 0, len(recCounts))
	for t := range recCounts {
		recTypes = append(recTypes, t)
	}
	sort.Strings(recTypes)
	for _, t := range recTypes {
		fmt.Printf("    %-25s %d\n", t, recCounts[t])
	}

	improved, flat := 0, 0
	for _, o := range a.Memory().Outcomes() {
		if o.Improved() {
			improved++
		} else {
			flat++
		}
	}
	fmt.Println("\n  Outcomes measured:")
	fmt.Printf("    %-20s %d\n", "Improved", improved)
	fmt.Printf("    %-20s %d\n", "No improvement", flat)
	fmt.Printf("    Preferred recommendation: %s\n\n", snapshot.PreferredType)
}

func runEvents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if flagType != "" && !store.IsValidEventType(flagType) {
		return fmt.Errorf("unknown event type %q", flagType)
	}

	if !flagVerbose {
		counts, err := st.EventCountsByType()
		if err != nil {
			return err
		}
		names := make([]string, 0, len(counts))
		for name := range counts {
			if flagType != "" && name != flagType {
				continue
			}
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%-30s %d\n", name, counts[name])
		}
		return nil
	}

	events, err := st.EventsByType(flagType)
	if err != nil {
		return err
	}
	for _, e := range events {
		fmt.Printf("[%s] %s %s/%s (%s)\n  %s\n", e.Timestamp, e.EventType, e.EntityType, e.EntityID, e.EntityName, e.Explanation)
	}
	return nil
}

func divider() string {
	return "========================================================================"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
