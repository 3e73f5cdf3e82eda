package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/source"
)

// statsCmd represents the stats command.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display per-source reconciliation statistics",
	Long: `Run every configured source and summarize the reconciliation
outcome without printing the entries themselves.

Shows per source:
- Number of pending entries
- Number of invalid references
- Number of authoritative accounts

Example:
  ledger-import stats`,
	Run: runStats,
}

func runStats(cmd *cobra.Command, args []string) {
	_, sources, journal := setup()

	fmt.Println("\n=== Reconciliation Statistics ===")
	totalPending := 0
	totalInvalid := 0
	for _, src := range sources {
		results := source.NewResults()
		err := src.Prepare(journal, results)
		exitOnError(err, fmt.Sprintf("source %s failed", src.Name()))

		pending := len(results.Pending())
		invalid := len(results.InvalidReferences())
		totalPending += pending
		totalInvalid += invalid

		fmt.Printf("%-24s pending: %4d  invalid refs: %4d  accounts: %4d\n",
			src.Name(), pending, invalid, len(results.Accounts()))
	}
	fmt.Printf("%-24s pending: %4d  invalid refs: %4d\n", "total", totalPending, totalInvalid)
	fmt.Println()

	slog.Info("Statistics displayed successfully")
}
