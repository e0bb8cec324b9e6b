package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"repairdesk/internal/importer"
	"repairdesk/internal/logger"
	"repairdesk/internal/metrics"
	"repairdesk/internal/notify"
	"repairdesk/internal/servicehistory"
	"repairdesk/internal/store"
)

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a JSON or YAML ledger export and report repeat-risk devices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := importer.ParseFile(args[0])
			if err != nil {
				return err
			}
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			name := filepath.Base(args[0])
			if err := st.UpsertRecords(ctx, res.Records, name); err != nil {
				return err
			}
			if err := st.RecordImport(ctx, store.Import{
				ImportID:   res.ImportID,
				Filename:   name,
				Records:    len(res.Records),
				Rejected:   len(res.Rejected),
				ImportedAt: time.Now(),
			}); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "imported %d records from %s (%d rejected)\n", len(res.Records), name, len(res.Rejected))
			for _, rej := range res.Rejected {
				fmt.Fprintf(out, "  rejected #%d %s: %s\n", rej.Index, rej.ID, rej.Error)
			}

			events := &collector{}
			svc := servicehistory.NewService(st, events, metrics.New(), logger.Discard())
			if _, err := svc.Evaluate(ctx, res.Contacts()); err != nil {
				return err
			}
			for _, ev := range events.events {
				fmt.Fprintln(out, notify.NewAlert(ev).Text)
			}
			return nil
		},
	}
}
