package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/autotrader/journal"
)

var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Inspect and repair transactions",
	Long: `Query transaction lifecycle state and recover transactions stuck
in CLOSING after a failed close attempt.

Examples:
  autotrader tx list --status OPENED
  autotrader tx reset 01JD3W9KQZ`,
}

var txListCmd = &cobra.Command{
	Use:   "list",
	Short: "List transactions by status",
	Args:  cobra.NoArgs,
	RunE:  runTxList,
}

var txResetCmd = &cobra.Command{
	Use:   "reset <transaction-id>",
	Short: "Reset a transaction stuck in CLOSING",
	Args:  cobra.ExactArgs(1),
	RunE:  runTxReset,
}

var txStatus string

func init() {
	rootCmd.AddCommand(txCmd)
	txCmd.AddCommand(txListCmd)
	txCmd.AddCommand(txResetCmd)

	txListCmd.Flags().StringVar(&txStatus, "status", string(journal.TxOpened), "transaction status to list")
}

func runTxList(cmd *cobra.Command, args []string) error {
	store, err := openJournal()
	if err != nil {
		return err
	}
	defer store.Close()

	txs, err := store.ListTransactionsByStatus(journal.TransactionStatus(txStatus))
	if err != nil {
		return fmt.Errorf("query transactions: %w", err)
	}

	if len(txs) == 0 {
		fmt.Println("no transactions")
		return nil
	}
	for _, tx := range txs {
		fmt.Printf("%s  %-8s  %-6s  qty=%g  open=%.4f  close=%.4f  %s\n",
			tx.ID, tx.Status, tx.Symbol, tx.Quantity, tx.OpenPrice, tx.ClosePrice, tx.CloseReason)
	}
	return nil
}

func runTxReset(cmd *cobra.Command, args []string) error {
	store, err := openJournal()
	if err != nil {
		return err
	}
	defer store.Close()

	status, err := store.ResetClosing(args[0])
	if err != nil {
		return fmt.Errorf("reset transaction: %w", err)
	}

	fmt.Printf("transaction %s reset to %s\n", args[0], status)
	return nil
}
