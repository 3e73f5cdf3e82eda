// Package cmd provides CLI commands for ledger-import.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	accountsFile string
	journalFile  string
	dataDir      string
	debug        bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ledger-import",
	Short: "Import external financial data into a plain-text ledger",
	Long: `ledger-import translates data exported from external financial
institutions into double-entry ledger transactions.

It supports:
- Payroll statements (JSON and XLSX)
- Mortgage servicer statements (CSV)
- Warehouse-store receipts (JSON)
- Peer payment services (CSV and JSON)
- Corporate expense reports (CSV)
- Reconciling against the existing ledger, so already-recorded
  transactions are never proposed twice

Example:
  ledger-import review --journal ledger.beancount
  ledger-import stats`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Setup logging
		logLevel := slog.LevelInfo
		if debug {
			logLevel = slog.LevelDebug
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&accountsFile, "accounts", "", "accounts YAML file (overrides LEDGER_ACCOUNTS)")
	rootCmd.PersistentFlags().StringVar(&journalFile, "journal", "", "ledger journal file (overrides LEDGER_JOURNAL)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "source data directory (overrides LEDGER_DATA_DIR)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	// Add subcommands
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(statsCmd)
}

// Helper function to get config file path.
func getConfigFile() string {
	if cfgFile != "" {
		return cfgFile
	}
	return "" // Will use default .env loading
}

// Helper function to handle errors and exit.
func exitOnError(err error, msg string) {
	if err != nil {
		slog.Error(msg, "error", err)
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
		os.Exit(1)
	}
}
