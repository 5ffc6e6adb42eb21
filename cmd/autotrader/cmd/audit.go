package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/autotrader/journal"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Export action results for a time window",
	Long: `List every executed action across all recommendations within a time
window, oldest first.

Examples:
  autotrader audit --since 24h
  autotrader audit --since 168h --csv > week.csv`,
	Args: cobra.NoArgs,
	RunE: runAudit,
}

var (
	auditSince time.Duration
	auditCSV   bool
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.Flags().DurationVar(&auditSince, "since", 24*time.Hour, "window size ending now")
	auditCmd.Flags().BoolVar(&auditCSV, "csv", false, "write CSV to stdout")
}

func runAudit(cmd *cobra.Command, args []string) error {
	store, err := openJournal()
	if err != nil {
		return err
	}
	defer store.Close()

	end := time.Now().UTC()
	results, err := store.ListActionResultsBetween(end.Add(-auditSince), end)
	if err != nil {
		return fmt.Errorf("query results: %w", err)
	}

	if auditCSV {
		return journal.WriteActionResultsCSV(os.Stdout, results)
	}

	if len(results) == 0 {
		fmt.Println("no actions recorded in window")
		return nil
	}
	for _, r := range results {
		status := "ok"
		if !r.Success {
			status = "FAILED"
		}
		fmt.Printf("%s  %-20s  %-6s  rec=%s  %s\n",
			r.CreatedAt.Format(time.RFC3339), r.ActionType, status, r.RecommendationID, r.Message)
	}
	return nil
}
