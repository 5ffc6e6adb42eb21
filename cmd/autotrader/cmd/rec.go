package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/autotrader/journal"
)

var recCmd = &cobra.Command{
	Use:   "rec",
	Short: "Manage recommendations",
}

var recAddCmd = &cobra.Command{
	Use:   "add <symbol>",
	Short: "Record a recommendation for later evaluation",
	Long: `Insert a recommendation into the journal, as an external signal
source would.

Example:
  autotrader rec add AAPL --source 9 --action BUY --confidence 85 --price 254.84`,
	Args: cobra.ExactArgs(1),
	RunE: runRecAdd,
}

var (
	recSource     string
	recAction     string
	recConfidence int
	recProfitPct  float64
	recRisk       string
	recHorizon    string
	recPrice      float64
)

func init() {
	rootCmd.AddCommand(recCmd)
	recCmd.AddCommand(recAddCmd)

	recAddCmd.Flags().StringVar(&recSource, "source", "", "signal source id (required)")
	recAddCmd.Flags().StringVar(&recAction, "action", string(journal.RecommendHold), "recommended action (BUY, SELL, HOLD, CLOSE)")
	recAddCmd.Flags().IntVar(&recConfidence, "confidence", 0, "confidence 0-100")
	recAddCmd.Flags().Float64Var(&recProfitPct, "expected-profit", 0, "expected profit percent")
	recAddCmd.Flags().StringVar(&recRisk, "risk", "medium", "risk level (low, medium, high)")
	recAddCmd.Flags().StringVar(&recHorizon, "horizon", "", "time horizon, e.g. 1w")
	recAddCmd.Flags().Float64Var(&recPrice, "price", 0, "reference price at recommendation time")
	_ = recAddCmd.MarkFlagRequired("source")
}

func runRecAdd(cmd *cobra.Command, args []string) error {
	store, err := openJournal()
	if err != nil {
		return err
	}
	defer store.Close()

	rec := journal.Recommendation{
		SourceID:          recSource,
		Symbol:            args[0],
		Action:            journal.RecommendedAction(recAction),
		Confidence:        recConfidence,
		ExpectedProfitPct: recProfitPct,
		RiskLevel:         recRisk,
		TimeHorizon:       recHorizon,
		Price:             recPrice,
	}
	if err := store.InsertRecommendation(&rec); err != nil {
		return fmt.Errorf("insert recommendation: %w", err)
	}

	fmt.Printf("recommendation %s recorded\n", rec.ID)
	return nil
}
