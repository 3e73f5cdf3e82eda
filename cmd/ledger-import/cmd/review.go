package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/ledger"
	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/source"
)

var (
	reviewSource      string
	reviewPendingOnly bool
)

// reviewCmd represents the review command.
var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Show pending entries and invalid references",
	Long: `Run every configured source against its data files, reconcile
the results with the journal, and print what remains to be recorded.

Pending entries are printed in journal syntax so they can be pasted into
the ledger as-is. Invalid references are journal transactions that claim
a source identity no data file substantiates, for example after a typo
in copied metadata.

Example:
  ledger-import review
  ledger-import review --source payroll_json --pending-only`,
	Run: runReview,
}

func init() {
	reviewCmd.Flags().StringVar(&reviewSource, "source", "", "only run the named source")
	reviewCmd.Flags().BoolVar(&reviewPendingOnly, "pending-only", false, "print pending entries only")
}

func runReview(cmd *cobra.Command, args []string) {
	_, sources, journal := setup()

	matched := false
	for _, src := range sources {
		if reviewSource != "" && src.Name() != reviewSource {
			continue
		}
		matched = true
		reviewOne(src, journal)
	}
	if reviewSource != "" && !matched {
		exitOnError(fmt.Errorf("no configured source named %q", reviewSource), "unknown source")
	}
}

func reviewOne(src source.Source, journal *ledger.Journal) {
	slog.Info("Preparing source", "source", src.Name())

	results := source.NewResults()
	err := src.Prepare(journal, results)
	exitOnError(err, fmt.Sprintf("source %s failed", src.Name()))

	pending := results.Pending()
	invalid := results.InvalidReferences()

	fmt.Printf(";; === %s: %d pending, %d invalid references ===\n\n",
		src.Name(), len(pending), len(invalid))

	for _, entry := range pending {
		fmt.Println(ledger.FormatTransaction(entry.Txn))
	}

	if reviewPendingOnly {
		return
	}

	for _, ref := range invalid {
		fmt.Printf(";; invalid reference: %d more transaction(s) in journal than in source data\n", ref.Excess)
		for _, txn := range ref.Transactions {
			fmt.Printf(";;   %s %q %q\n", txn.Date.Format(ledger.DateLayout), txn.Payee, txn.Narration)
		}
		fmt.Println()
	}

	if accounts := results.Accounts(); len(accounts) > 0 {
		fmt.Printf(";; authoritative accounts:\n")
		for _, account := range accounts {
			fmt.Printf(";;   %s\n", account)
		}
		fmt.Println()
	}
}
