package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/havenfield/reconcile/internal/config"
	"github.com/havenfield/reconcile/internal/db"
	"github.com/havenfield/reconcile/internal/lineitem"
)

var (
	ingestProperty string
	ingestPeriod   string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.csv>",
	Short: "Ingest normalized line items from a CSV file",
	Long: `Reads line items from a CSV file with a header row of
document_type, account_code, account_name, amount and stores them under
the given property and period.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening %s: %w", args[0], err)
		}
		defer f.Close()

		items, err := lineitem.ParseCSV(f, ingestProperty, ingestPeriod)
		if err != nil {
			return err
		}

		database, err := db.Open(filepath.Join(cfg.DataDir, "reconcile.db"))
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer database.Close()

		n, err := lineitem.NewStore(database).InsertBatch(cmd.Context(), items)
		if err != nil {
			return fmt.Errorf("ingesting line items: %w", err)
		}

		fmt.Printf("Ingested %d line items for property %s, period %s\n", n, ingestProperty, ingestPeriod)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestProperty, "property", "", "property id (required)")
	ingestCmd.Flags().StringVar(&ingestPeriod, "period", "", "financial period id (required)")
	ingestCmd.MarkFlagRequired("property")
	ingestCmd.MarkFlagRequired("period")
	rootCmd.AddCommand(ingestCmd)
}
