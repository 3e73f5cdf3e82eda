package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/source"
	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/sources/expensereportcsv"
	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/sources/mortgagecsv"
	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/sources/payrolljson"
	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/sources/payrollxlsx"
	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/sources/receiptjson"
	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/sources/walletcsv"
	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/sources/walletjson"
)

// yearPlaceholder in a configured account name is replaced with the
// statement's calendar year, so yearly tax accounts need no annual edits.
const yearPlaceholder = "{year}"

// AccountsConfig represents the complete source definition file. Each
// section holds zero or more instances of its source type.
type AccountsConfig struct {
	PayrollJSON      []PayrollJSONConfig      `yaml:"payroll_json"`
	PayrollXLSX      []PayrollXLSXConfig      `yaml:"payroll_xlsx"`
	MortgageCSV      []MortgageCSVConfig      `yaml:"mortgage_csv"`
	ReceiptJSON      []ReceiptJSONConfig      `yaml:"receipt_json"`
	WalletCSV        []WalletCSVConfig        `yaml:"wallet_csv"`
	WalletJSON       []WalletJSONConfig       `yaml:"wallet_json"`
	ExpenseReportCSV []ExpenseReportCSVConfig `yaml:"expense_report_csv"`
}

// PayrollJSONConfig defines one payroll JSON source instance.
type PayrollJSONConfig struct {
	CompanyName string            `yaml:"company_name"`
	Currency    string            `yaml:"currency"`
	Globs       stringList        `yaml:"globs"`
	Earnings    map[string]string `yaml:"earnings"`
	// Deductions values may contain {year}.
	Deductions map[string]string             `yaml:"deductions"`
	Memos      map[string]MemoAccountsConfig `yaml:"memos"`
}

// MemoAccountsConfig is the posting pair recorded for a memo code.
type MemoAccountsConfig struct {
	Income   string `yaml:"income"`
	Expenses string `yaml:"expenses"`
}

// PayrollXLSXConfig defines one payroll XLSX source instance.
type PayrollXLSXConfig struct {
	CompanyName string `yaml:"company_name"`
	Currency    string `yaml:"currency"`
	// Directory holds the workbooks, relative to the data dir.
	Directory             string     `yaml:"directory"`
	AuthoritativeAccounts stringList `yaml:"authoritative_accounts"`
	// Sections maps worksheet section titles to item-to-accounts lookups.
	// Account names may contain {year}.
	Sections map[string]map[string]stringList `yaml:"sections"`
}

// MortgageCSVConfig defines one mortgage CSV source instance.
type MortgageCSVConfig struct {
	LenderName         string     `yaml:"lender_name"`
	Currency           string     `yaml:"currency"`
	Globs              stringList `yaml:"globs"`
	PaymentAccount     string     `yaml:"payment_account"`
	LoanBalanceAccount string     `yaml:"loan_balance_account"`
	InterestAccount    string     `yaml:"interest_account"`
	EscrowAccount      string     `yaml:"escrow_account"`
	FeesAccount        string     `yaml:"fees_account"`
}

// ReceiptJSONConfig defines one receipt JSON source instance.
type ReceiptJSONConfig struct {
	MerchantName             string            `yaml:"merchant_name"`
	Currency                 string            `yaml:"currency"`
	Globs                    stringList        `yaml:"globs"`
	FoodStampEligibleAccount string            `yaml:"food_stamp_eligible_account"`
	HealthFSAEligibleAccount string            `yaml:"health_fsa_eligible_account"`
	OtherAccount             string            `yaml:"other_account"`
	DiscountAccount          string            `yaml:"discount_account"`
	SalesTaxAccount          string            `yaml:"sales_tax_account"`
	RewardsTenderAccount     string            `yaml:"rewards_tender_account"`
	CashTenderAccount        string            `yaml:"cash_tender_account"`
	TenderAccounts           map[string]string `yaml:"tender_accounts"`
}

// WalletCSVConfig defines one wallet CSV source instance.
type WalletCSVConfig struct {
	Globs         stringList `yaml:"globs"`
	WalletAccount string     `yaml:"wallet_account"`
}

// WalletJSONConfig defines one wallet JSON source instance.
type WalletJSONConfig struct {
	Globs         stringList `yaml:"globs"`
	SelfUsername  string     `yaml:"self_username"`
	WalletAccount string     `yaml:"wallet_account"`
	Currency      string     `yaml:"currency"`
}

// ExpenseReportCSVConfig defines one expense report CSV source instance.
type ExpenseReportCSVConfig struct {
	CompanyName       string     `yaml:"company_name"`
	Globs             stringList `yaml:"globs"`
	ReceivableAccount string     `yaml:"receivable_account"`
}

// stringList decodes either a single YAML scalar or a sequence of strings.
type stringList []string

func (s *stringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*s = []string{single}
		return nil
	case yaml.SequenceNode:
		var many []string
		if err := value.Decode(&many); err != nil {
			return err
		}
		*s = many
		return nil
	}
	return fmt.Errorf("line %d: expected string or list of strings", value.Line)
}

// LoadAccounts reads and parses the YAML source definition file.
func LoadAccounts(path string) (*AccountsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}
	var accounts AccountsConfig
	if err := yaml.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &accounts, nil
}

// BuildSources constructs every configured source instance, expanding file
// globs against dataDir. The returned order follows the file's section
// order, then instance order within each section.
func (a *AccountsConfig) BuildSources(dataDir string) ([]source.Source, error) {
	var built []source.Source

	for i, c := range a.PayrollJSON {
		src, err := buildPayrollJSON(dataDir, c)
		if err != nil {
			return nil, fmt.Errorf("payroll_json[%d]: %w", i, err)
		}
		built = append(built, src)
	}
	for i, c := range a.PayrollXLSX {
		src, err := buildPayrollXLSX(dataDir, c)
		if err != nil {
			return nil, fmt.Errorf("payroll_xlsx[%d]: %w", i, err)
		}
		built = append(built, src)
	}
	for i, c := range a.MortgageCSV {
		src, err := buildMortgageCSV(dataDir, c)
		if err != nil {
			return nil, fmt.Errorf("mortgage_csv[%d]: %w", i, err)
		}
		built = append(built, src)
	}
	for i, c := range a.ReceiptJSON {
		src, err := buildReceiptJSON(dataDir, c)
		if err != nil {
			return nil, fmt.Errorf("receipt_json[%d]: %w", i, err)
		}
		built = append(built, src)
	}
	for i, c := range a.WalletCSV {
		src, err := buildWalletCSV(dataDir, c)
		if err != nil {
			return nil, fmt.Errorf("wallet_csv[%d]: %w", i, err)
		}
		built = append(built, src)
	}
	for i, c := range a.WalletJSON {
		src, err := buildWalletJSON(dataDir, c)
		if err != nil {
			return nil, fmt.Errorf("wallet_json[%d]: %w", i, err)
		}
		built = append(built, src)
	}
	for i, c := range a.ExpenseReportCSV {
		src, err := buildExpenseReportCSV(dataDir, c)
		if err != nil {
			return nil, fmt.Errorf("expense_report_csv[%d]: %w", i, err)
		}
		built = append(built, src)
	}

	return built, nil
}

func buildPayrollJSON(dataDir string, c PayrollJSONConfig) (source.Source, error) {
	filenames, err := expandGlobs(dataDir, c.Globs)
	if err != nil {
		return nil, err
	}
	deductions := c.Deductions
	memos := make(map[string]payrolljson.MemoAccounts, len(c.Memos))
	for code, accounts := range c.Memos {
		memos[code] = payrolljson.MemoAccounts{
			Income:   accounts.Income,
			Expenses: accounts.Expenses,
		}
	}
	return payrolljson.New(payrolljson.Config{
		CompanyName:     c.CompanyName,
		Currency:        c.Currency,
		EarningAccounts: c.Earnings,
		DeductionAccount: func(code string, date time.Time) (string, bool) {
			account, ok := deductions[code]
			if !ok {
				return "", false
			}
			return expandYear(account, date), true
		},
		MemoAccounts: memos,
		DataDir:      dataDir,
		Filenames:    filenames,
	})
}

func buildPayrollXLSX(dataDir string, c PayrollXLSXConfig) (source.Source, error) {
	sections := make(map[string]payrollxlsx.SectionAccounts, len(c.Sections))
	for title, items := range c.Sections {
		items := items
		sections[title] = func(item string, date time.Time) ([]string, bool) {
			accounts, ok := items[item]
			if !ok {
				return nil, false
			}
			expanded := make([]string, len(accounts))
			for i, account := range accounts {
				expanded[i] = expandYear(account, date)
			}
			return expanded, true
		}
	}
	return payrollxlsx.New(payrollxlsx.Config{
		CompanyName:           c.CompanyName,
		Currency:              c.Currency,
		DataDir:               dataDir,
		XlsxDir:               c.Directory,
		AuthoritativeAccounts: c.AuthoritativeAccounts,
		Sections:              sections,
	})
}

func buildMortgageCSV(dataDir string, c MortgageCSVConfig) (source.Source, error) {
	filenames, err := expandGlobs(dataDir, c.Globs)
	if err != nil {
		return nil, err
	}
	return mortgagecsv.New(mortgagecsv.Config{
		LenderName:         c.LenderName,
		Currency:           c.Currency,
		DataDir:            dataDir,
		Filenames:          filenames,
		PaymentAccount:     c.PaymentAccount,
		LoanBalanceAccount: c.LoanBalanceAccount,
		InterestAccount:    c.InterestAccount,
		EscrowAccount:      c.EscrowAccount,
		FeesAccount:        c.FeesAccount,
	})
}

func buildReceiptJSON(dataDir string, c ReceiptJSONConfig) (source.Source, error) {
	filenames, err := expandGlobs(dataDir, c.Globs)
	if err != nil {
		return nil, err
	}
	tenders := c.TenderAccounts
	return receiptjson.New(receiptjson.Config{
		MerchantName:             c.MerchantName,
		Currency:                 c.Currency,
		DataDir:                  dataDir,
		Filenames:                filenames,
		FoodStampEligibleAccount: c.FoodStampEligibleAccount,
		HealthFSAEligibleAccount: c.HealthFSAEligibleAccount,
		OtherAccount:             c.OtherAccount,
		DiscountAccount:          c.DiscountAccount,
		SalesTaxAccount:          c.SalesTaxAccount,
		RewardsTenderAccount:     c.RewardsTenderAccount,
		CashTenderAccount:        c.CashTenderAccount,
		TenderAccount: func(description string) (string, bool) {
			account, ok := tenders[description]
			return account, ok
		},
	})
}

func buildWalletCSV(dataDir string, c WalletCSVConfig) (source.Source, error) {
	filenames, err := expandGlobs(dataDir, c.Globs)
	if err != nil {
		return nil, err
	}
	return walletcsv.New(walletcsv.Config{
		DataDir:       dataDir,
		Filenames:     filenames,
		WalletAccount: c.WalletAccount,
	})
}

func buildWalletJSON(dataDir string, c WalletJSONConfig) (source.Source, error) {
	filenames, err := expandGlobs(dataDir, c.Globs)
	if err != nil {
		return nil, err
	}
	return walletjson.New(walletjson.Config{
		DataDir:       dataDir,
		Filenames:     filenames,
		SelfUsername:  c.SelfUsername,
		WalletAccount: c.WalletAccount,
		Currency:      c.Currency,
	})
}

func buildExpenseReportCSV(dataDir string, c ExpenseReportCSVConfig) (source.Source, error) {
	filenames, err := expandGlobs(dataDir, c.Globs)
	if err != nil {
		return nil, err
	}
	return expensereportcsv.New(expensereportcsv.Config{
		CompanyName:       c.CompanyName,
		DataDir:           dataDir,
		Filenames:         filenames,
		ReceivableAccount: c.ReceivableAccount,
	})
}

func expandGlobs(dataDir string, globs stringList) ([]string, error) {
	var filenames []string
	for _, pattern := range globs {
		matches, err := source.Glob(dataDir, pattern)
		if err != nil {
			return nil, err
		}
		filenames = append(filenames, matches...)
	}
	return source.SortFiles(filenames), nil
}

func expandYear(account string, date time.Time) string {
	return strings.ReplaceAll(account, yearPlaceholder, strconv.Itoa(date.Year()))
}
