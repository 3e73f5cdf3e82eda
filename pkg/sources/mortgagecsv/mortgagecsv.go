// Package mortgagecsv imports mortgage statement activity exported as CSV.
// Each data row (payment, disbursement, escrow activity) synthesizes one
// transaction keyed by the (file, date, description) composite, since a
// statement has no stable per-row id and one file holds many rows.
package mortgagecsv

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/ledger"
	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/source"
)

const (
	MetaSourceFile  = "mortgage_csv_source_file"
	MetaDescription = "mortgage_csv_source_description"

	rowDateLayout = "1/2/06"
	minColumns    = 9
)

// Column positions in the statement export.
const (
	colDate = iota
	colDescription
	colType
	colPayment
	_
	colPrincipal
	colInterest
	colEscrow
	colFees
)

// Config is the per-instance configuration, validated at construction.
type Config struct {
	LenderName string
	// Currency defaults to USD.
	Currency  string
	DataDir   string
	Filenames []string
	// PaymentAccount funds each row. It is not registered as
	// authoritative: the same account appears in bank statement imports,
	// which own it.
	PaymentAccount     string
	LoanBalanceAccount string
	InterestAccount    string
	EscrowAccount      string
	FeesAccount        string
}

// Source imports mortgage CSV statements.
type Source struct {
	cfg Config
}

// New validates cfg and creates the source.
func New(cfg Config) (*Source, error) {
	if cfg.LenderName == "" {
		return nil, fmt.Errorf("mortgage_csv: lender name is required")
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("mortgage_csv: data dir is required")
	}
	for name, account := range map[string]string{
		"payment":      cfg.PaymentAccount,
		"loan balance": cfg.LoanBalanceAccount,
		"interest":     cfg.InterestAccount,
		"escrow":       cfg.EscrowAccount,
		"fees":         cfg.FeesAccount,
	} {
		if account == "" {
			return nil, fmt.Errorf("mortgage_csv: %s account is required", name)
		}
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	cfg.Filenames = source.SortFiles(cfg.Filenames)
	return &Source{cfg: cfg}, nil
}

func (s *Source) Name() string { return "mortgage_csv" }

// Prepare implements source.Source.
func (s *Source) Prepare(j *ledger.Journal, r *source.Results) error {
	r.AddAccount(s.cfg.LoanBalanceAccount)
	r.AddAccount(s.cfg.InterestAccount)
	r.AddAccount(s.cfg.EscrowAccount)
	r.AddAccount(s.cfg.FeesAccount)

	existing := source.GroupExisting(j, func(txn *ledger.Transaction) (source.Key, bool) {
		file, ok := txn.Meta[MetaSourceFile]
		if !ok {
			return source.Key{}, false
		}
		return source.RowKey(file, txn.Date, txn.Meta[MetaDescription]), true
	})

	synthesized := source.NewTxnGroups()
	for _, filename := range s.cfg.Filenames {
		slog.Debug("processing file", "source", s.Name(), "file", filename)
		if err := s.readStatement(filename, synthesized); err != nil {
			return err
		}
	}

	source.Reconcile(existing, synthesized, r)
	return nil
}

func (s *Source) readStatement(filename string, synthesized *source.TxnGroups) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("%s: failed to open %s: %w", s.Name(), filename, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("%s: failed to parse %s: %w", s.Name(), filename, err)
	}
	if len(rows) == 0 {
		return nil
	}

	relative := source.RelativePath(s.cfg.DataDir, filename)
	for i, row := range rows[1:] { // first row is the header
		if len(row) < minColumns {
			return fmt.Errorf("%s: %s row %d: expected at least %d columns, got %d",
				s.Name(), filename, i+2, minColumns, len(row))
		}
		date, err := time.Parse(rowDateLayout, row[colDate])
		if err != nil {
			return fmt.Errorf("%s: %s row %d: invalid date %q: %w", s.Name(), filename, i+2, row[colDate], err)
		}
		description := ledger.Sanitize(row[colDescription])

		payment, err := s.amount(row[colPayment])
		if err != nil {
			return fmt.Errorf("%s: %s row %d: %w", s.Name(), filename, i+2, err)
		}

		txn := ledger.NewTransaction(date, s.cfg.LenderName, description)
		txn.Meta[MetaSourceFile] = relative
		txn.Meta[MetaDescription] = description

		legMeta := func() map[string]string {
			return map[string]string{MetaSourceFile: relative}
		}
		txn.AddPosting(s.cfg.PaymentAccount, payment.Neg(), legMeta())

		legs := []struct {
			column  int
			account string
		}{
			{colPrincipal, s.cfg.LoanBalanceAccount},
			{colInterest, s.cfg.InterestAccount},
			{colEscrow, s.cfg.EscrowAccount},
			{colFees, s.cfg.FeesAccount},
		}
		for _, leg := range legs {
			amount, err := s.amount(row[leg.column])
			if err != nil {
				return fmt.Errorf("%s: %s row %d: %w", s.Name(), filename, i+2, err)
			}
			if amount.IsZero() {
				continue
			}
			txn.AddPosting(leg.account, amount, legMeta())
		}

		synthesized.Add(source.RowKey(relative, date, description), txn)
	}

	return nil
}

func (s *Source) amount(raw string) (ledger.Amount, error) {
	return ledger.ParseAmount(raw, s.cfg.Currency)
}

// IsPostingCleared implements source.Source.
func (s *Source) IsPostingCleared(p *ledger.Posting) bool {
	_, ok := p.Meta[MetaSourceFile]
	return ok
}
