package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/autotrader/config"
	"github.com/rustyeddy/autotrader/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "autotrader",
	Short: "Rule-driven order decision and lifecycle engine",
	Long: `Autotrader turns trading recommendations into brokerage orders by
evaluating them against configurable condition/action rulesets.

It provides tools for:
  - Evaluating recommendation batches against entry and management rules
  - Submitting market, limit, stop and bracket (TP/SL) orders
  - Tracking transaction lifecycle from WAITING through CLOSED
  - Auditing every executed action with its full decision trace`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Missing .env is fine; live broker credentials can come from
		// the real environment.
		_ = godotenv.Load()

		if cfgPath != "" {
			loaded, err := config.LoadFromFile(cfgPath)
			if err != nil {
				return err
			}
			cfg = loaded
		} else {
			cfg = config.Default()
		}

		logging.SetDefault(logging.New(cfg.Logging.Level))
		return nil
	},
}

var (
	cfgPath string
	cfg     *config.Config
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (YAML or JSON)")
}
