package main

import (
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"repairdesk/internal/ledger"
	"repairdesk/internal/logger"
	"repairdesk/internal/metrics"
	"repairdesk/internal/report"
	"repairdesk/internal/servicehistory"
)

// ErrNoOutput is returned when chart is called without --out.
var ErrNoOutput = errors.New("output file is required (use --out)")

// collector keeps the risk events raised by one command.
type collector struct {
	events []servicehistory.RepeatRiskEvent
}

func (c *collector) Publish(ev any) {
	if risk, ok := ev.(servicehistory.RepeatRiskEvent); ok {
		c.events = append(c.events, risk)
	}
}

type contactFlags struct {
	name  string
	phone string
}

func (c *contactFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.name, "name", "", "customer name (exact match)")
	cmd.Flags().StringVar(&c.phone, "phone", "", "customer phone (exact match)")
}

func (c *contactFlags) contact() ledger.Contact {
	return ledger.Contact{Name: c.name, Phone: c.phone}
}

func loadHistory(cmd *cobra.Command, contact ledger.Contact) (servicehistory.Result, error) {
	st, err := openStore()
	if err != nil {
		return servicehistory.Result{}, err
	}
	defer st.Close()
	svc := servicehistory.NewService(st, &collector{}, metrics.New(), logger.Discard())
	return svc.History(cmd.Context(), contact)
}

func newHistoryCommand() *cobra.Command {
	var (
		who    contactFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show per-device service history for a customer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := loadHistory(cmd, who.contact())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			return report.Table(cmd.OutOrStdout(), who.contact(), res, time.Now())
		},
	}
	who.bind(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func newChartCommand() *cobra.Command {
	var (
		who contactFlags
		out string
	)
	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Render a customer's damage breakdown as an HTML bar chart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				return ErrNoOutput
			}
			res, err := loadHistory(cmd, who.contact())
			if err != nil {
				return err
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			title := "Service history: " + who.name
			if who.name == "" {
				title = "Service history: " + who.phone
			}
			if err := report.Chart(f, title, res); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
	who.bind(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "output HTML file")
	return cmd
}
