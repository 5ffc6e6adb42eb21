package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/autotrader/journal"
)

var resultsCmd = &cobra.Command{
	Use:   "results <recommendation-id>",
	Short: "Show the audit trail for a recommendation",
	Long: `List every action executed for a recommendation, in order, with
success status and message. Use --csv to export the rows for analysis.

Examples:
  autotrader results 01JD3W9KQZ
  autotrader results 01JD3W9KQZ --csv > audit.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runResults,
}

var resultsCSV bool

func init() {
	rootCmd.AddCommand(resultsCmd)
	resultsCmd.Flags().BoolVar(&resultsCSV, "csv", false, "write CSV to stdout")
}

func runResults(cmd *cobra.Command, args []string) error {
	store, err := openJournal()
	if err != nil {
		return err
	}
	defer store.Close()

	recID := args[0]
	if _, err := store.GetRecommendation(recID); err != nil {
		return fmt.Errorf("recommendation %s: %w", recID, err)
	}

	results, err := store.ListActionResultsByRecommendation(recID)
	if err != nil {
		return fmt.Errorf("query results: %w", err)
	}

	if resultsCSV {
		return journal.WriteActionResultsCSV(os.Stdout, results)
	}

	if len(results) == 0 {
		fmt.Println("no actions recorded")
		return nil
	}
	for _, r := range results {
		status := "ok"
		if !r.Success {
			status = "FAILED"
		}
		fmt.Printf("%s  %-20s  %-6s  %s\n",
			r.CreatedAt.Format(time.RFC3339), r.ActionType, status, r.Message)
	}
	return nil
}
