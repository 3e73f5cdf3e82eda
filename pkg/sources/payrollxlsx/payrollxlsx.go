// Package payrollxlsx imports payslips exported as XLSX workbooks
// (Workday-style). The single worksheet stacks several titled tables
// (payslip information, earnings, deductions, taxes, ...) which are split
// apart with pkg/multitable. Each workbook synthesizes one transaction keyed
// by the file's data-dir-relative path.
package payrollxlsx

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/ledger"
	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/multitable"
	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/source"
)

const (
	MetaSourceFile         = "payroll_xlsx_source_file"
	MetaPostingDescription = "payroll_xlsx_posting_description"

	payslipInfoSection = "Payslip Information"
	checkDateColumn    = "Check Date"
	amountColumn       = "Amount"
	groupAmountColumn  = "Amount in Pay Group Currency"
	groupCurrencyCol   = "Pay Group Currency"

	checkDateLayout = "1/2/2006"
)

// SectionAccounts resolves a table row's leading item and the payslip date
// to one or more target accounts. Reporting !ok is a configuration error.
type SectionAccounts func(item string, date time.Time) ([]string, bool)

// Config is the per-instance configuration, validated at construction.
type Config struct {
	CompanyName string
	// Currency is the home currency for the plain Amount column.
	// Defaults to USD.
	Currency string
	DataDir  string
	// XlsxDir is the workbook directory relative to DataDir. It also
	// scopes journal scanning, so the source can be instantiated several
	// times over different directories with different configurations.
	XlsxDir string
	// AuthoritativeAccounts are registered into the results sink.
	AuthoritativeAccounts []string
	// Sections maps table titles to account lookups. Tables without an
	// entry are skipped.
	Sections map[string]SectionAccounts
}

// Source imports payroll XLSX workbooks.
type Source struct {
	cfg Config
}

// New validates cfg and creates the source.
func New(cfg Config) (*Source, error) {
	if cfg.CompanyName == "" {
		return nil, fmt.Errorf("payroll_xlsx: company name is required")
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("payroll_xlsx: data dir is required")
	}
	if cfg.XlsxDir == "" {
		return nil, fmt.Errorf("payroll_xlsx: xlsx dir is required")
	}
	if len(cfg.Sections) == 0 {
		return nil, fmt.Errorf("payroll_xlsx: at least one section mapping is required")
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &Source{cfg: cfg}, nil
}

func (s *Source) Name() string { return "payroll_xlsx" }

// Prepare implements source.Source.
func (s *Source) Prepare(j *ledger.Journal, r *source.Results) error {
	for _, account := range s.cfg.AuthoritativeAccounts {
		r.AddAccount(account)
	}

	xlsxDir := filepath.ToSlash(s.cfg.XlsxDir)
	existing := source.GroupExisting(j, func(txn *ledger.Transaction) (source.Key, bool) {
		file, ok := txn.Meta[MetaSourceFile]
		// Ignore files outside the configured directory so other
		// instances of this source can own them.
		if !ok || !strings.HasPrefix(file, xlsxDir) {
			return source.Key{}, false
		}
		return source.FileKey(file), true
	})

	filenames, err := source.Glob(s.cfg.DataDir, filepath.Join(s.cfg.XlsxDir, "*.xlsx"))
	if err != nil {
		return fmt.Errorf("%s: %w", s.Name(), err)
	}

	synthesized := source.NewTxnGroups()
	for _, filename := range filenames {
		slog.Debug("processing file", "source", s.Name(), "file", filename)
		txn, err := s.readWorkbook(filename)
		if err != nil {
			return err
		}
		if txn != nil && len(txn.Postings) > 0 {
			synthesized.Add(source.FileKey(txn.Meta[MetaSourceFile]), txn)
		}
	}

	source.Reconcile(existing, synthesized, r)
	return nil
}

func (s *Source) readWorkbook(filename string) (*ledger.Transaction, error) {
	f, err := excelize.OpenFile(filename)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open %s: %w", s.Name(), filename, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read %s: %w", s.Name(), filename, err)
	}
	tables := multitable.ReadTables(rows)

	info, ok := tables.ByName(payslipInfoSection)
	if !ok {
		return nil, fmt.Errorf("%s: %s: missing %q section", s.Name(), filename, payslipInfoSection)
	}
	dateStr, ok := info.Cell(0, checkDateColumn)
	if !ok {
		return nil, fmt.Errorf("%s: %s: missing %q column", s.Name(), filename, checkDateColumn)
	}
	date, err := time.Parse(checkDateLayout, dateStr)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: invalid check date %q: %w", s.Name(), filename, dateStr, err)
	}

	txn := ledger.NewTransaction(date, s.cfg.CompanyName, "Payroll")
	txn.Meta[MetaSourceFile] = source.RelativePath(s.cfg.DataDir, filename)

	for _, table := range tables.All() {
		lookup, ok := s.cfg.Sections[table.Name]
		if !ok {
			continue
		}
		for i := 0; i < table.Len(); i++ {
			item := table.Leading(i)
			accounts, ok := lookup(item, date)
			if !ok {
				return nil, &source.UnmappedCategoryError{
					Source:   s.Name(),
					Category: table.Name + ": " + item,
				}
			}
			raw, currency, ok := rowAmount(table, i, s.cfg.Currency)
			if !ok || strings.TrimSpace(raw) == "" {
				continue
			}
			for _, account := range accounts {
				amount, err := ledger.ParseAmount(raw, currency)
				if err != nil {
					return nil, fmt.Errorf("%s: %s: %w", s.Name(), filename, err)
				}
				amount.Number = amount.Number.Round(2)
				txn.AddPosting(account, ledger.SignForAccount(amount, account), map[string]string{
					MetaPostingDescription: table.Name + ": " + item,
				})
			}
		}
	}

	return txn, nil
}

// rowAmount selects the amount cell for a row: the plain Amount column in
// the home currency, or the pay-group amount with its own currency column.
func rowAmount(table *multitable.Table, row int, homeCurrency string) (raw, currency string, ok bool) {
	if raw, ok := table.Cell(row, amountColumn); ok {
		return raw, homeCurrency, true
	}
	raw, ok = table.Cell(row, groupAmountColumn)
	if !ok {
		return "", "", false
	}
	currency, _ = table.Cell(row, groupCurrencyCol)
	if currency == "" {
		currency = homeCurrency
	}
	return raw, currency, true
}

// IsPostingCleared implements source.Source.
func (s *Source) IsPostingCleared(p *ledger.Posting) bool {
	_, ok := p.Meta[MetaPostingDescription]
	return ok
}
