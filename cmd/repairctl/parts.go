package main

import (
	"github.com/spf13/cobra"

	"repairdesk/internal/report"
)

func newRulesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rules [category...]",
		Short: "Show which sparepart fields each category uses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return report.RulesTable(cmd.OutOrStdout(), args)
		},
	}
}

func newPartsCommand() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "parts",
		Short: "List spareparts in stock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			parts, err := st.ListSpareparts(cmd.Context(), category)
			if err != nil {
				return err
			}
			return report.PartsTable(cmd.OutOrStdout(), parts)
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only list this category")
	return cmd
}
