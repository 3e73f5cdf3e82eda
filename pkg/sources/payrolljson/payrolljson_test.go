package payrolljson

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/ledger"
	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/source"
)

const sampleStatement = `{
  "payStatement": {
    "payDate": "2024-01-15",
    "earnings": [
      {
        "earningCodeName": "Regular ",
        "earningAmount": {"currencyCode": "USD", "amountValue": "1000.00"}
      },
      {
        "earningCodeName": "Skipped"
      }
    ],
    "deductions": [
      {
        "deductionCategoryCodeName": "Taxes",
        "CodeName": "Federal Income Tax",
        "deductionAmount": {"currencyCode": "USD", "amountValue": "-250.00"}
      }
    ],
    "memos": [
      {
        "nameCode": {"codeValue": "401K", "shortName": "401(k) Match"},
        "memoAmount": {"currencyCode": "USD", "amountValue": "30.00"}
      },
      {
        "nameCode": {"codeValue": "IGNORED", "shortName": "Ignored"},
        "memoAmount": {"currencyCode": "USD", "amountValue": "5.00"}
      }
    ]
  }
}`

func testConfig(dataDir string, filenames []string) Config {
	return Config{
		CompanyName: "Acme Corp",
		EarningAccounts: map[string]string{
			"Earning: Regular": "Income:Acme:Salary",
		},
		DeductionAccount: func(code string, date time.Time) (string, bool) {
			if code == "Taxes: Federal Income Tax" {
				return "Expenses:Taxes:Federal", true
			}
			return "", false
		},
		MemoAccounts: map[string]MemoAccounts{
			"401K": {Income: "Income:Acme:Match", Expenses: "Assets:Retirement:Match"},
		},
		DataDir:   dataDir,
		Filenames: filenames,
	}
}

func writeStatement(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func expectAmount(t *testing.T, p *ledger.Posting, raw string) {
	t.Helper()
	if !p.Units.Number.Equal(decimal.RequireFromString(raw)) {
		t.Errorf("posting %s units = %s, expected %s", p.Account, p.Units, raw)
	}
}

func TestPrepare(t *testing.T) {
	dir := t.TempDir()
	path := writeStatement(t, dir, "2024-01-15.json", sampleStatement)

	src, err := New(testConfig(dir, []string{path}))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	results := source.NewResults()
	if err := src.Prepare(&ledger.Journal{}, results); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}

	pending := results.Pending()
	if len(pending) != 1 {
		t.Fatalf("pending = %d, expected 1", len(pending))
	}
	txn := pending[0].Txn
	if txn.Payee != "Acme Corp" || txn.Narration != "Payroll" {
		t.Errorf("header = %q %q", txn.Payee, txn.Narration)
	}
	if txn.Meta[MetaSourceFile] != "2024-01-15.json" {
		t.Errorf("source file meta = %q", txn.Meta[MetaSourceFile])
	}
	// One earning, one deduction, one memo pair. The unmatched memo and
	// the amount-less earning are skipped.
	if len(txn.Postings) != 4 {
		t.Fatalf("postings = %d, expected 4", len(txn.Postings))
	}

	earning := txn.Postings[0]
	if earning.Account != "Income:Acme:Salary" {
		t.Errorf("earning account = %q", earning.Account)
	}
	expectAmount(t, earning, "-1000.00")
	if earning.Meta[MetaPostingDescription] != "Earning: Regular" {
		t.Errorf("earning description = %q", earning.Meta[MetaPostingDescription])
	}

	deduction := txn.Postings[1]
	if deduction.Account != "Expenses:Taxes:Federal" {
		t.Errorf("deduction account = %q", deduction.Account)
	}
	expectAmount(t, deduction, "250.00")

	expectAmount(t, txn.Postings[2], "-30.00")
	expectAmount(t, txn.Postings[3], "30.00")

	accounts := results.Accounts()
	if len(accounts) != 1 || accounts[0] != "Income:Acme:Salary" {
		t.Errorf("accounts = %v", accounts)
	}

	if !src.IsPostingCleared(earning) {
		t.Error("described posting should be cleared")
	}
	if src.IsPostingCleared(&ledger.Posting{Account: "Assets:Checking"}) {
		t.Error("posting without description metadata should not be cleared")
	}
}

func TestPrepareIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := writeStatement(t, dir, "2024-01-15.json", sampleStatement)

	src, err := New(testConfig(dir, []string{path}))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	first := source.NewResults()
	if err := src.Prepare(&ledger.Journal{}, first); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}

	// Accepting the pending entry into the journal silences the re-run.
	journal, err := ledger.ParseJournal(
		strings.NewReader(ledger.FormatTransaction(first.Pending()[0].Txn)))
	if err != nil {
		t.Fatalf("round-trip parse: %v", err)
	}
	second := source.NewResults()
	if err := src.Prepare(journal, second); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if len(second.Pending()) != 0 {
		t.Errorf("pending after accept = %d, expected 0", len(second.Pending()))
	}
	if len(second.InvalidReferences()) != 0 {
		t.Errorf("invalid refs after accept = %d, expected 0", len(second.InvalidReferences()))
	}
}

func TestPrepareOrphanedJournalEntry(t *testing.T) {
	dir := t.TempDir()

	src, err := New(testConfig(dir, nil))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	orphan := ledger.NewTransaction(time.Date(2023, 12, 15, 0, 0, 0, 0, time.UTC), "Acme Corp", "Payroll")
	orphan.Meta[MetaSourceFile] = "2023-12-15.json"
	journal := &ledger.Journal{Transactions: []*ledger.Transaction{orphan}}

	results := source.NewResults()
	if err := src.Prepare(journal, results); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	invalid := results.InvalidReferences()
	if len(invalid) != 1 || invalid[0].Excess != 1 {
		t.Fatalf("invalid refs = %+v, expected one with excess 1", invalid)
	}
}

func TestPrepareUnmappedEarning(t *testing.T) {
	dir := t.TempDir()
	path := writeStatement(t, dir, "bad.json", `{
	  "payStatement": {
	    "payDate": "2024-01-15",
	    "earnings": [
	      {"earningCodeName": "Bonus", "earningAmount": {"amountValue": "10"}}
	    ]
	  }
	}`)

	src, err := New(testConfig(dir, []string{path}))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	err = src.Prepare(&ledger.Journal{}, source.NewResults())
	var unmapped *source.UnmappedCategoryError
	if !errors.As(err, &unmapped) {
		t.Fatalf("expected UnmappedCategoryError, got %v", err)
	}
	if unmapped.Category != "Earning: Bonus" {
		t.Errorf("category = %q", unmapped.Category)
	}
}
