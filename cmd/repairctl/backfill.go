package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"repairdesk/internal/config"
	"repairdesk/internal/watch"
)

func newBackfillCommand() *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Ask a running repairdesk to import ledger files waiting in the inbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			port := ""
			if baseURL == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				port = cfg.HTTPPort
			}
			summary, err := requestBackfill(cmd, normalizeBaseURL(firstSet(baseURL, os.Getenv("SERVICE_BASE_URL")), port))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "found %d ledger files, %d pending, %d enqueued, %d dropped (queue full), %d already imported\n",
				summary.TotalCandidates, summary.Pending, summary.EnqueueSucceeded, summary.EnqueueDroppedFull, summary.AlreadyImported)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "", "server base URL (defaults to SERVICE_BASE_URL or localhost)")
	return cmd
}

func requestBackfill(cmd *cobra.Command, baseURL string) (watch.Summary, error) {
	var summary watch.Summary
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, baseURL+"/ops/backfill", nil)
	if err != nil {
		return summary, err
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return summary, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return summary, fmt.Errorf("backfill: %s", resp.Status)
	}
	err = json.NewDecoder(resp.Body).Decode(&summary)
	return summary, err
}

func normalizeBaseURL(raw, port string) string {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "/")
	if raw == "" {
		if port == "" {
			port = ":8080"
		}
		if strings.HasPrefix(port, ":") {
			return "http://localhost" + port
		}
		return "http://" + port
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	return raw
}

func firstSet(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
