package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "List open positions at the broker",
	Args:  cobra.NoArgs,
	RunE:  runPositions,
}

func init() {
	rootCmd.AddCommand(positionsCmd)
}

func runPositions(cmd *cobra.Command, args []string) error {
	connector, err := newConnector()
	if err != nil {
		return err
	}

	positions, err := connector.Positions(cmd.Context())
	if err != nil {
		return fmt.Errorf("query positions: %w", err)
	}

	if len(positions) == 0 {
		fmt.Println("no open positions")
		return nil
	}
	for _, p := range positions {
		fmt.Printf("%-6s  qty=%g  entry=%.4f\n", p.Symbol, p.Quantity, p.EntryPrice)
	}
	return nil
}
