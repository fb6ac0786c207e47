// Package cmd provides CLI commands for ksiemgowyd.
package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hakierspejs/ksiemgowy/internal/logger"
	"github.com/hakierspejs/ksiemgowy/pkg/config"
)

var (
	cfgFile string
	envFile string
	debug   bool
	log     zerolog.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ksiemgowyd",
	Short: "Bookkeeping for bank-notification ledgers",
	Long: `ksiemgowyd ingests bank-notification documents, maintains an
append-only ledger of dues and expenses, reconciles it against the
bank-reported balances and publishes periodic financial reports.

It supports:
- Processing a spool directory of notification documents
- Automatic balance-discrepancy corrections
- Monthly income/expense/balance reports with manual overlays
- Overdue-dues reminders

Example:
  ksiemgowyd process --config ksiemgowy.yaml
  ksiemgowyd report --config ksiemgowy.yaml`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log = logger.New(debug)
	},
}

// Execute runs the root command. Called once from main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "ksiemgowy.yaml", "configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "env file (default is .env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(overduesCmd)
	rootCmd.AddCommand(statsCmd)
}

// loadConfig loads and validates the configuration for a subcommand.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile, envFile)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// exitOnError logs err and exits when it is not nil.
func exitOnError(err error, msg string) {
	if err != nil {
		log.Error().Err(err).Msg(msg)
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
		os.Exit(1)
	}
}
