package cmd

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/havenfield/reconcile/internal/audit"
	"github.com/havenfield/reconcile/internal/config"
	"github.com/havenfield/reconcile/internal/db"
	"github.com/havenfield/reconcile/internal/discrepancy"
	"github.com/havenfield/reconcile/internal/lineitem"
	"github.com/havenfield/reconcile/internal/match"
	"github.com/havenfield/reconcile/internal/matching"
	"github.com/havenfield/reconcile/internal/session"
)

var (
	runProperty string
	runPeriod   string
	runTiers    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Create a session and run a reconciliation pass",
	Long: `Creates a reconciliation session for the given property and period,
runs the enabled match tiers, and prints the resulting summary. The
session is left in REVIEW for match approval.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		flags, err := parseTierFlags(runTiers)
		if err != nil {
			return err
		}

		database, err := db.Open(filepath.Join(cfg.DataDir, "reconcile.db"))
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer database.Close()

		rules, err := matching.LoadRules(cfg.RulesFile)
		if err != nil {
			return fmt.Errorf("loading rules: %w", err)
		}

		itemStore := lineitem.NewStore(database)
		sessionStore := session.NewStore(database)
		orch := session.NewOrchestrator(
			sessionStore,
			itemStore,
			matching.NewEngine(cfg.Matching, rules),
			match.NewStore(database),
			discrepancy.NewStore(database),
			discrepancy.NewDetector(cfg.Severity),
			audit.NewStore(database),
		)

		ctx := cmd.Context()
		sess, err := orch.CreateSession(ctx, runProperty, runPeriod, "full")
		if err != nil {
			return err
		}
		result, err := orch.Run(ctx, sess.ID, flags)
		if err != nil {
			return err
		}

		fmt.Printf("Session %s\n", sess.ID)
		fmt.Printf("Matches created: %d\n", result.MatchesCreated)
		printCounts("By tier", result.Summary.MatchesByTier)
		printCounts("By approval", result.Summary.MatchesByApproval)
		fmt.Printf("Discrepancies: %d (%d open)\n", result.Summary.TotalDiscrepancies, result.Summary.OpenDiscrepancies)
		printCounts("By severity", result.Summary.BySeverity)
		for _, w := range result.Warnings {
			fmt.Printf("Warning: %s\n", w)
		}
		return nil
	},
}

// parseTierFlags turns a comma-separated tier list into flags; empty means
// all tiers.
func parseTierFlags(spec string) (matching.TierFlags, error) {
	if spec == "" {
		return matching.AllTiers(), nil
	}
	var flags matching.TierFlags
	for _, name := range strings.Split(spec, ",") {
		switch strings.TrimSpace(name) {
		case "exact":
			flags.Exact = true
		case "fuzzy":
			flags.Fuzzy = true
		case "calculated":
			flags.Calculated = true
		case "inferred":
			flags.Inferred = true
		case "rules":
			flags.Rules = true
		default:
			return flags, fmt.Errorf("unknown tier %q", name)
		}
	}
	return flags, nil
}

func printCounts(label string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("%s:\n", label)
	for _, k := range keys {
		fmt.Printf("  %s: %d\n", k, counts[k])
	}
}

func init() {
	runCmd.Flags().StringVar(&runProperty, "property", "", "property id (required)")
	runCmd.Flags().StringVar(&runPeriod, "period", "", "financial period id (required)")
	runCmd.Flags().StringVar(&runTiers, "tiers", "", "comma-separated tiers to run (default all)")
	runCmd.MarkFlagRequired("property")
	runCmd.MarkFlagRequired("period")
	rootCmd.AddCommand(runCmd)
}
