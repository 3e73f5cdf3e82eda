// Package walletcsv imports peer-payment wallet activity exported as CSV
// (Cash App statement format). The identity key is the upstream transaction
// id, carried on the wallet posting's metadata. One upstream event may
// synthesize two ledger transactions: when a payment is funded by something
// other than the wallet balance, an inferred transfer-funding transaction is
// emitted alongside the payment itself.
package walletcsv

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
	MetaTransactionID = "cashapp_transaction_id"
	MetaPayee         = "cashapp_payee"
	MetaType          = "cashapp_type"
	MetaDescription   = "cashapp_description"

	datetimeLayout = "2006-01-02 15:04:05"

	// balanceAccountName is the literal the export uses when a payment
	// settled against the wallet balance itself.
	balanceAccountName = "Your Cash"
	zeroFee            = "$0"
)

// Column positions in the activity export.
const (
	colID = iota
	colDatetime
	colType
	colCurrency
	colAmount
	colFee
	_
	_
	_
	_
	_
	colNotes
	colPayee
	colAccount
)

const minColumns = 14

// Config is the per-instance configuration, validated at construction.
type Config struct {
	DataDir   string
	Filenames []string
	// WalletAccount tracks the wallet balance.
	WalletAccount string
}

// Source imports wallet activity CSV exports.
type Source struct {
	cfg Config
}

// New validates cfg and creates the source.
func New(cfg Config) (*Source, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("wallet_csv: data dir is required")
	}
	if cfg.WalletAccount == "" {
		return nil, fmt.Errorf("wallet_csv: wallet account is required")
	}
	cfg.Filenames = source.SortFiles(cfg.Filenames)
	return &Source{cfg: cfg}, nil
}

func (s *Source) Name() string { return "wallet_csv" }

// Prepare implements source.Source.
func (s *Source) Prepare(j *ledger.Journal, r *source.Results) error {
	r.AddAccount(s.cfg.WalletAccount)

	existing := source.GroupExistingByPostingMeta(j, MetaTransactionID)

	synthesized := source.NewTxnGroups()
	for _, filename := range s.cfg.Filenames {
		slog.Debug("processing file", "source", s.Name(), "file", filename)
		if err := s.readFile(filename, synthesized); err != nil {
			return err
		}
	}

	source.Reconcile(existing, synthesized, r)
	return nil
}

func (s *Source) readFile(filename string, synthesized *source.TxnGroups) error {
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

	for i, row := range rows[1:] { // first row is the header
		if len(row) < minColumns {
			return fmt.Errorf("%s: %s row %d: expected at least %d columns, got %d",
				s.Name(), filename, i+2, minColumns, len(row))
		}
		if err := s.readRow(filename, i+2, row, synthesized); err != nil {
			return err
		}
	}
	return nil
}

func (s *Source) readRow(filename string, lineno int, row []string, synthesized *source.TxnGroups) error {
	txnID := row[colID]
	date, err := rowDate(row[colDatetime])
	if err != nil {
		return fmt.Errorf("%s: %s row %d: %w", s.Name(), filename, lineno, err)
	}
	txnType := row[colType]
	amount, err := ledger.ParseAmount(row[colAmount], row[colCurrency])
	if err != nil {
		return fmt.Errorf("%s: %s row %d: %w", s.Name(), filename, lineno, err)
	}
	// A non-zero fee would change the posting arithmetic below; the
	// format has never reported one, so treat it as a schema change.
	if row[colFee] != zeroFee {
		return &source.UnrecognizedRecordError{Source: s.Name(), Kind: "fee", Value: row[colFee]}
	}
	notes := row[colNotes]
	payee := row[colPayee]
	account := row[colAccount]

	switch txnType {
	case "Received P2P", "Sent P2P":
		if account != balanceAccountName {
			// The outgoing payment is funded by an incoming transfer, or
			// the incoming payment is directly transferred out.
			s.addTransfer(synthesized, txnID, date, account, amount.Neg(), payee, notes)
		}
		s.addPayment(synthesized, txnID, date, txnType, payee, notes, amount)
	case "Cash out":
		s.addTransfer(synthesized, txnID, date, "bank", amount, "", "")
	default:
		return &source.UnrecognizedRecordError{Source: s.Name(), Kind: "transaction type", Value: txnType}
	}
	return nil
}

func (s *Source) addPayment(synthesized *source.TxnGroups, txnID string, date time.Time,
	txnType, payee, notes string, amount ledger.Amount) {
	txn := ledger.NewTransaction(date, payee, "CashApp payment: "+ledger.Sanitize(notes))
	txn.AddPosting(s.cfg.WalletAccount, amount, map[string]string{
		MetaTransactionID: txnID,
		MetaPayee:         payee,
		MetaType:          txnType,
		MetaDescription:   ledger.Sanitize(notes),
	})
	txn.AddPosting(ledger.FIXMEAccount, amount.Neg(), nil)
	synthesized.Add(source.ExternalIDKey(txnID), txn)
}

func (s *Source) addTransfer(synthesized *source.TxnGroups, txnID string, date time.Time,
	transferTo string, amount ledger.Amount, forPayee, forNotes string) {
	txn := ledger.NewTransaction(date, "", "CashApp transfer to/from "+ledger.Sanitize(transferTo))
	meta := map[string]string{
		MetaTransactionID: txnID,
		MetaType:          "transfer",
	}
	if forPayee != "" || forNotes != "" {
		meta[MetaPayee] = ledger.Sanitize(forPayee)
		meta[MetaDescription] = ledger.Sanitize(forNotes)
	}
	txn.AddPosting(s.cfg.WalletAccount, amount, meta)
	txn.AddPosting(ledger.FIXMEAccount, amount.Neg(), nil)
	synthesized.Add(source.ExternalIDKey(txnID), txn)
}

// rowDate parses the export's datetime column, which appends a timezone
// abbreviation ("2024-01-15 13:45:22 EST") that is dropped.
func rowDate(raw string) (time.Time, error) {
	if len(raw) < len(datetimeLayout) {
		return time.Time{}, fmt.Errorf("invalid datetime %q", raw)
	}
	t, err := time.Parse(datetimeLayout, raw[:len(datetimeLayout)])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid datetime %q: %w", raw, err)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// IsPostingCleared implements source.Source.
func (s *Source) IsPostingCleared(p *ledger.Posting) bool {
	_, ok := p.Meta[MetaTransactionID]
	return ok
}
