package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/autotrader/rules"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate recent recommendations against a ruleset",
	Long: `Run the configured ruleset for a use case against every
recommendation the source produced within the lookback window.

Examples:
  autotrader evaluate --source 9 --use-case enter_market
  autotrader evaluate --source 9 --use-case manage_position --lookback 4h`,
	Args: cobra.NoArgs,
	RunE: runEvaluate,
}

var (
	evalSource   string
	evalUseCase  string
	evalLookback time.Duration
)

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVar(&evalSource, "source", "", "recommendation source id (required)")
	evaluateCmd.Flags().StringVar(&evalUseCase, "use-case", string(rules.UseCaseEnter), "ruleset use case")
	evaluateCmd.Flags().DurationVar(&evalLookback, "lookback", 0, "recommendation lookback window (default from config)")
	_ = evaluateCmd.MarkFlagRequired("source")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	eng, store, err := newEngine()
	if err != nil {
		return err
	}
	defer store.Close()

	lookback := evalLookback
	if lookback <= 0 {
		lookback, err = cfg.Engine.ParseLookback()
		if err != nil {
			return err
		}
	}

	results, err := eng.Evaluate(cmd.Context(), evalSource, rules.UseCase(evalUseCase), lookback)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("no actions executed")
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
