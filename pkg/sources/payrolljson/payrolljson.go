// Package payrolljson imports paystubs exported as JSON by payroll REST
// APIs (ADP-style). Each file holds one pay statement with earnings,
// deductions and memo lines, and synthesizes one transaction keyed by the
// file's data-dir-relative path.
package payrolljson

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/ledger"
	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/source"
)

const (
	// MetaSourceFile carries the identity key on each synthesized
	// transaction.
	MetaSourceFile = "payroll_json_source_file"
	// MetaPostingDescription marks postings this source considers cleared.
	MetaPostingDescription = "payroll_json_posting_description"
)

// MemoAccounts is the posting pair synthesized for an informational memo
// line, e.g. an employer-paid benefit reported as both income and expense.
type MemoAccounts struct {
	Income   string
	Expenses string
}

// Config is the per-instance configuration, validated at construction.
type Config struct {
	CompanyName string
	// Currency is the home currency used when the statement reports no
	// currency code. Defaults to USD.
	Currency string
	// EarningAccounts maps "Earning: <code>" descriptions to income
	// accounts. A miss during extraction is a configuration error.
	EarningAccounts map[string]string
	// DeductionAccount resolves a "<category>: <code>" description and the
	// statement date to an expense/asset account. The date parameter
	// supports year-dependent account names such as per-fiscal-year tax
	// accounts. Reporting !ok is a configuration error.
	DeductionAccount func(code string, date time.Time) (string, bool)
	// MemoAccounts maps memo code values to posting pairs. Memo codes not
	// present are skipped.
	MemoAccounts map[string]MemoAccounts
	DataDir      string
	Filenames    []string
}

// Source imports payroll JSON statements.
type Source struct {
	cfg Config
}

// New validates cfg and creates the source.
func New(cfg Config) (*Source, error) {
	if cfg.CompanyName == "" {
		return nil, fmt.Errorf("payroll_json: company name is required")
	}
	if cfg.DeductionAccount == nil {
		return nil, fmt.Errorf("payroll_json: deduction account lookup is required")
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("payroll_json: data dir is required")
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	cfg.Filenames = source.SortFiles(cfg.Filenames)
	return &Source{cfg: cfg}, nil
}

func (s *Source) Name() string { return "payroll_json" }

// statement mirrors the upstream export shape. Amount values decode through
// decimal.Decimal so fractional cents never pass through binary floats.
type statement struct {
	PayStatement struct {
		PayDate    string      `json:"payDate"`
		Earnings   []earning   `json:"earnings"`
		Deductions []deduction `json:"deductions"`
		Memos      []memo      `json:"memos"`
	} `json:"payStatement"`
}

type jsonAmount struct {
	CurrencyCode string          `json:"currencyCode"`
	AmountValue  decimal.Decimal `json:"amountValue"`
}

type earning struct {
	EarningCodeName string      `json:"earningCodeName"`
	EarningAmount   *jsonAmount `json:"earningAmount"`
}

type deduction struct {
	DeductionCategoryCodeName string      `json:"deductionCategoryCodeName"`
	CodeName                  string      `json:"CodeName"`
	DeductionAmount           *jsonAmount `json:"deductionAmount"`
}

type memo struct {
	NameCode struct {
		CodeValue string `json:"codeValue"`
		ShortName string `json:"shortName"`
	} `json:"nameCode"`
	MemoAmount *jsonAmount `json:"memoAmount"`
}

func (s *Source) amount(a *jsonAmount) ledger.Amount {
	currency := a.CurrencyCode
	if currency == "" {
		currency = s.cfg.Currency
	}
	return ledger.NewAmount(a.AmountValue, currency)
}

// Prepare implements source.Source.
func (s *Source) Prepare(j *ledger.Journal, r *source.Results) error {
	for _, account := range s.cfg.EarningAccounts {
		r.AddAccount(account)
	}

	existing := source.GroupExisting(j, func(txn *ledger.Transaction) (source.Key, bool) {
		if file, ok := txn.Meta[MetaSourceFile]; ok {
			return source.FileKey(file), true
		}
		return source.Key{}, false
	})

	synthesized := source.NewTxnGroups()
	for _, filename := range s.cfg.Filenames {
		slog.Debug("processing file", "source", s.Name(), "file", filename)
		txn, err := s.readStatement(filename)
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

func (s *Source) readStatement(filename string) (*ledger.Transaction, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read %s: %w", s.Name(), filename, err)
	}
	var stmt statement
	if err := json.Unmarshal(data, &stmt); err != nil {
		return nil, fmt.Errorf("%s: failed to parse %s: %w", s.Name(), filename, err)
	}

	date, err := time.Parse(ledger.DateLayout, stmt.PayStatement.PayDate)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid pay date in %s: %w", s.Name(), filename, err)
	}

	txn := ledger.NewTransaction(date, s.cfg.CompanyName, "Payroll")
	txn.Meta[MetaSourceFile] = source.RelativePath(s.cfg.DataDir, filename)

	for _, e := range stmt.PayStatement.Earnings {
		if e.EarningAmount == nil {
			continue
		}
		desc := "Earning: " + strings.TrimSpace(e.EarningCodeName)
		account, ok := s.cfg.EarningAccounts[desc]
		if !ok {
			return nil, &source.UnmappedCategoryError{Source: s.Name(), Category: desc}
		}
		// Earnings are reported positive; flip the sign so the income
		// posting is negative.
		txn.AddPosting(account, s.amount(e.EarningAmount).Neg(), map[string]string{
			MetaPostingDescription: desc,
		})
	}

	for _, d := range stmt.PayStatement.Deductions {
		if d.DeductionAmount == nil {
			continue
		}
		desc := d.DeductionCategoryCodeName + ": " + strings.TrimSpace(d.CodeName)
		account, ok := s.cfg.DeductionAccount(desc, date)
		if !ok {
			return nil, &source.UnmappedCategoryError{Source: s.Name(), Category: desc}
		}
		// Deductions are reported negative; flip the sign so expense and
		// asset postings are positive.
		txn.AddPosting(account, s.amount(d.DeductionAmount).Neg(), map[string]string{
			MetaPostingDescription: desc,
		})
	}

	for _, m := range stmt.PayStatement.Memos {
		accounts, ok := s.cfg.MemoAccounts[m.NameCode.CodeValue]
		if !ok || m.MemoAmount == nil {
			continue
		}
		amount := s.amount(m.MemoAmount)
		desc := strings.TrimSpace(m.NameCode.ShortName)
		txn.AddPosting(accounts.Income, amount.Neg(), map[string]string{
			MetaPostingDescription: desc,
		})
		txn.AddPosting(accounts.Expenses, amount, map[string]string{
			MetaPostingDescription: desc,
		})
	}

	return txn, nil
}

// IsPostingCleared implements source.Source.
func (s *Source) IsPostingCleared(p *ledger.Posting) bool {
	_, ok := p.Meta[MetaPostingDescription]
	return ok
}
