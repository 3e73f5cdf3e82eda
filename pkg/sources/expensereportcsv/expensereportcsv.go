// Package expensereportcsv imports corporate expense report exports
// (Emburse format). Items belonging to the same report are folded into a
// single reimbursement-receivable transaction dated by the report's
// approval date. The identity key is the report id, carried on the
// transaction's metadata.
package expensereportcsv

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
	MetaSourceFile = "expense_report_source_file"
	MetaReportID   = "expense_report_id"
	MetaReportName = "expense_report_name"

	MetaExpenseType     = "expense_report_expense_type"
	MetaBusinessPurpose = "expense_report_business_purpose"
	MetaTransactionDate = "expense_report_transaction_date"

	rowDateLayout = "1/2/06"
)

// Column positions in the export.
const (
	colReportName   = 0
	colTxnDate      = 1
	colExpenseType  = 2
	colAmount       = 8
	colCurrency     = 9
	colApprovalDate = 10
	colPurpose      = 11
	colReportID     = 12
)

const minColumns = 13

// Config is the per-instance configuration, validated at construction.
type Config struct {
	// CompanyName becomes the payee of synthesized transactions.
	CompanyName string
	DataDir     string
	Filenames   []string
	// ReceivableAccount accrues the reimbursement owed by the company.
	ReceivableAccount string
}

// Source imports expense report CSV exports.
type Source struct {
	cfg Config
}

// New validates cfg and creates the source.
func New(cfg Config) (*Source, error) {
	if cfg.CompanyName == "" {
		return nil, fmt.Errorf("expense_report_csv: company name is required")
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("expense_report_csv: data dir is required")
	}
	if cfg.ReceivableAccount == "" {
		return nil, fmt.Errorf("expense_report_csv: receivable account is required")
	}
	cfg.Filenames = source.SortFiles(cfg.Filenames)
	return &Source{cfg: cfg}, nil
}

func (s *Source) Name() string { return "expense_report_csv" }

// Prepare implements source.Source.
func (s *Source) Prepare(j *ledger.Journal, r *source.Results) error {
	r.AddAccount(s.cfg.ReceivableAccount)

	existing := source.GroupExisting(j, func(txn *ledger.Transaction) (source.Key, bool) {
		id, ok := txn.Meta[MetaReportID]
		if !ok {
			return source.Key{}, false
		}
		return source.ExternalIDKey(id), true
	})

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

type reportItem struct {
	reportName   string
	txnDate      time.Time
	expenseType  string
	amount       ledger.Amount
	approvalDate time.Time
	purpose      string
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
	// The export ends with two summary rows after the data.
	if len(rows) < 3 {
		return nil
	}

	relative := source.RelativePath(s.cfg.DataDir, filename)

	// Preserve report order of first appearance within the file.
	var order []string
	items := make(map[string][]reportItem)
	for i, row := range rows[1 : len(rows)-2] {
		if len(row) < minColumns {
			return fmt.Errorf("%s: %s row %d: expected at least %d columns, got %d",
				s.Name(), filename, i+2, minColumns, len(row))
		}
		item, reportID, err := s.readRow(filename, i+2, row)
		if err != nil {
			return err
		}
		if _, ok := items[reportID]; !ok {
			order = append(order, reportID)
		}
		items[reportID] = append(items[reportID], item)
	}

	for _, reportID := range order {
		s.addReport(synthesized, relative, reportID, items[reportID])
	}
	return nil
}

func (s *Source) readRow(filename string, lineno int, row []string) (reportItem, string, error) {
	txnDate, err := time.Parse(rowDateLayout, row[colTxnDate])
	if err != nil {
		return reportItem{}, "", fmt.Errorf("%s: %s row %d: invalid transaction date %q: %w",
			s.Name(), filename, lineno, row[colTxnDate], err)
	}
	approvalDate, err := time.Parse(rowDateLayout, row[colApprovalDate])
	if err != nil {
		return reportItem{}, "", fmt.Errorf("%s: %s row %d: invalid approval date %q: %w",
			s.Name(), filename, lineno, row[colApprovalDate], err)
	}
	amount, err := ledger.ParseAmount(row[colAmount], row[colCurrency])
	if err != nil {
		return reportItem{}, "", fmt.Errorf("%s: %s row %d: %w", s.Name(), filename, lineno, err)
	}
	return reportItem{
		reportName:   ledger.Sanitize(row[colReportName]),
		txnDate:      txnDate,
		expenseType:  ledger.Sanitize(row[colExpenseType]),
		amount:       amount,
		approvalDate: approvalDate,
		purpose:      ledger.Sanitize(row[colPurpose]),
	}, row[colReportID], nil
}

func (s *Source) addReport(synthesized *source.TxnGroups, relative, reportID string, items []reportItem) {
	first := items[0]
	txn := ledger.NewTransaction(first.approvalDate, s.cfg.CompanyName,
		"Expense report: "+first.reportName)
	txn.Meta[MetaSourceFile] = relative
	txn.Meta[MetaReportID] = reportID
	txn.Meta[MetaReportName] = first.reportName

	for _, item := range items {
		txn.AddPosting(ledger.FIXMEAccount, item.amount.Neg(), map[string]string{
			MetaExpenseType:     item.expenseType,
			MetaBusinessPurpose: item.purpose,
			MetaTransactionDate: item.txnDate.Format(ledger.DateLayout),
		})
		txn.AddPosting(s.cfg.ReceivableAccount, item.amount, nil)
	}

	synthesized.Add(source.ExternalIDKey(reportID), txn)
}

// IsPostingCleared implements source.Source.
func (s *Source) IsPostingCleared(p *ledger.Posting) bool {
	_, ok := p.Meta[MetaExpenseType]
	return ok
}
