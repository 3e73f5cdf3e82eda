package cmd

import (
	"log/slog"

	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/config"
	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/ledger"
	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/source"
)

// setup loads the environment, the accounts file, the journal and the
// configured sources. Any failure exits the process.
func setup() (*config.Config, []source.Source, *ledger.Journal) {
	slog.Info("Loading configuration")

	cfg, err := config.Load(getConfigFile())
	exitOnError(err, "failed to load configuration")

	// Flag overrides
	if accountsFile != "" {
		cfg.AccountsPath = accountsFile
	}
	if journalFile != "" {
		cfg.JournalPath = journalFile
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	if err := cfg.Validate(); err != nil {
		exitOnError(err, "invalid configuration")
	}

	slog.Debug("Loading accounts file", "path", cfg.AccountsPath)
	accounts, err := config.LoadAccounts(cfg.AccountsPath)
	exitOnError(err, "failed to load accounts file")

	sources, err := accounts.BuildSources(cfg.DataDir)
	exitOnError(err, "failed to build sources")

	slog.Debug("Loading journal", "path", cfg.JournalPath)
	journal, err := ledger.LoadJournal(cfg.JournalPath)
	exitOnError(err, "failed to load journal")

	slog.Info("Loaded journal", "transactions", len(journal.Transactions), "sources", len(sources))
	return cfg, sources, journal
}
