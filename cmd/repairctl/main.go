// Command repairctl inspects the repairdesk database from the terminal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"repairdesk/internal/config"
	"repairdesk/internal/store"
)

var dbPath string

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "repairctl",
		Short: "Inspect service history and sparepart rules",
		Long: `repairctl reads the repairdesk database directly.

Commands:
  history   Per-device service history for one customer
  import    Load a ledger export into the database
  rules     Sparepart category field rules
  parts     Sparepart inventory
  chart     Render a customer's history as an HTML chart
  backfill  Ask a running server to import pending inbox files`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "database path (defaults to DB_PATH from the config)")

	root.AddCommand(newHistoryCommand())
	root.AddCommand(newImportCommand())
	root.AddCommand(newRulesCommand())
	root.AddCommand(newPartsCommand())
	root.AddCommand(newChartCommand())
	root.AddCommand(newBackfillCommand())
	return root
}

func openStore() (*store.Store, error) {
	path := dbPath
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		path = cfg.DBPath
	}
	return store.Open(path)
}
