package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/havenfield/reconcile/internal/audit"
	"github.com/havenfield/reconcile/internal/config"
	"github.com/havenfield/reconcile/internal/db"
	"github.com/havenfield/reconcile/internal/discrepancy"
	"github.com/havenfield/reconcile/internal/health"
	"github.com/havenfield/reconcile/internal/lineitem"
	"github.com/havenfield/reconcile/internal/match"
	"github.com/havenfield/reconcile/internal/matching"
	"github.com/havenfield/reconcile/internal/review"
	"github.com/havenfield/reconcile/internal/server"
	"github.com/havenfield/reconcile/internal/session"
)

var serverPort int

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the reconciliation server",
	Long:  `Starts the reconcile server with the REST API for sessions, matches, discrepancies, review and health.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if serverPort != 0 {
			cfg.Port = serverPort
		}

		dbPath := filepath.Join(cfg.DataDir, "reconcile.db")
		database, err := db.Open(dbPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer database.Close()

		rules, err := matching.LoadRules(cfg.RulesFile)
		if err != nil {
			return fmt.Errorf("loading rules: %w", err)
		}

		srv := server.New(server.Config{
			Port:     cfg.Port,
			DataDir:  cfg.DataDir,
			AllowAll: true,
		}, database)

		registerAllRoutes(srv, database, cfg, rules)

		// Graceful shutdown.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go func() {
			<-ctx.Done()
			fmt.Fprintln(os.Stderr, "\nShutting down server...")
			srv.Shutdown(context.Background())
		}()

		fmt.Fprintf(os.Stderr, "reconcile server v%s starting on port %d\n", Version, cfg.Port)
		fmt.Fprintf(os.Stderr, "  Database: %s\n", dbPath)
		fmt.Fprintf(os.Stderr, "  Rules: %d loaded\n", len(rules))

		return srv.Start()
	},
}

// registerAllRoutes wires up all feature routes.
func registerAllRoutes(srv *server.Server, database *db.DB, cfg *config.Config, rules []matching.Rule) {
	r := srv.Router()

	// Line items
	itemStore := lineitem.NewStore(database)
	lineitem.RegisterRoutes(r, itemStore)

	// Matches and discrepancies (read side)
	matchStore := match.NewStore(database)
	match.RegisterRoutes(r, matchStore)
	discStore := discrepancy.NewStore(database)
	discrepancy.RegisterRoutes(r, discStore)

	// Audit trail
	auditStore := audit.NewStore(database)
	audit.RegisterRoutes(r, auditStore)

	// Session lifecycle
	sessionStore := session.NewStore(database)
	engine := matching.NewEngine(cfg.Matching, rules)
	detector := discrepancy.NewDetector(cfg.Severity)
	orch := session.NewOrchestrator(sessionStore, itemStore, engine, matchStore, discStore, detector, auditStore)
	session.RegisterRoutes(r, sessionStore, orch)

	// Review workflow
	reviewSvc := review.NewService(database, sessionStore, matchStore, discStore, auditStore)
	review.RegisterRoutes(r, reviewSvc)

	// Health score and diagnostics
	scorer := health.NewScorer(database, cfg.Health)
	health.RegisterRoutes(r, scorer, itemStore)
}

func init() {
	serverCmd.Flags().IntVar(&serverPort, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serverCmd)
}
