package receiptjson

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/ledger"
	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/source"
)

const sampleReceipts = `[
  {
    "documentType": "WarehouseReceiptDetail",
    "transactionDateTime": "2024-03-02T11:30:00",
    "transactionType": "Sale",
    "transactionBarcode": "23100208011234502",
    "warehouseNumber": 310,
    "warehouseShortName": "SEATTLE",
    "warehouseName": "Seattle WH",
    "warehouseCity": "Seattle",
    "warehouseState": "WA",
    "totalItemCount": 3,
    "instantSavings": 0,
    "taxes": 1.23,
    "itemArray": [
      {
        "itemNumber": 11111,
        "itemDescription01": "ORGANIC  BANANAS",
        "itemIdentifier": "E",
        "taxFlag": "",
        "amount": 5.99
      },
      {
        "itemNumber": 22222,
        "itemDescription01": "VITAMINS",
        "itemIdentifier": "F",
        "taxFlag": "A",
        "amount": 20.00
      },
      {
        "itemNumber": 99999,
        "itemDescription01": "/22222",
        "itemIdentifier": "",
        "taxFlag": "",
        "amount": -4.00
      },
      {
        "itemNumber": 33333,
        "itemDescription01": "PAPER TOWELS",
        "itemIdentifier": "",
        "taxFlag": "A",
        "amount": 15.49
      }
    ],
    "tenderArray": [
      {
        "tenderDescription": "Visa",
        "displayAccountNumber": "1234",
        "amountTender": 38.71
      }
    ]
  },
  {
    "documentType": "GasStationReceipt",
    "transactionBarcode": "ignored"
  }
]`

func testConfig(dataDir string, filenames []string) Config {
	return Config{
		MerchantName:             "Costco",
		DataDir:                  dataDir,
		Filenames:                filenames,
		FoodStampEligibleAccount: "Expenses:Groceries",
		HealthFSAEligibleAccount: "Expenses:Medical",
		OtherAccount:             "Expenses:Household",
		DiscountAccount:          "Expenses:Discounts",
		SalesTaxAccount:          "Expenses:Taxes:Sales",
		RewardsTenderAccount:     "Income:Rewards",
		CashTenderAccount:        "Assets:Cash",
		TenderAccount: func(description string) (string, bool) {
			if description == "Visa, 1234" {
				return "Liabilities:Visa", true
			}
			return "", false
		},
	}
}

func writeReceipts(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func expectPosting(t *testing.T, txn *ledger.Transaction, i int, account, raw string) *ledger.Posting {
	t.Helper()
	if i >= len(txn.Postings) {
		t.Fatalf("posting %d missing, have %d", i, len(txn.Postings))
	}
	p := txn.Postings[i]
	if p.Account != account {
		t.Errorf("posting %d account = %q, expected %q", i, p.Account, account)
	}
	if !p.Units.Number.Equal(decimal.RequireFromString(raw)) {
		t.Errorf("posting %d units = %s, expected %s", i, p.Units, raw)
	}
	return p
}

func TestPrepare(t *testing.T) {
	dir := t.TempDir()
	path := writeReceipts(t, dir, "receipts.json", sampleReceipts)

	src, err := New(testConfig(dir, []string{path}))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	results := source.NewResults()
	if err := src.Prepare(&ledger.Journal{}, results); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}

	pending := results.Pending()
	// The non-receipt document is skipped.
	if len(pending) != 1 {
		t.Fatalf("pending = %d, expected 1", len(pending))
	}
	txn := pending[0].Txn
	if !txn.Date.Equal(time.Date(2024, 3, 2, 11, 30, 0, 0, time.UTC)) {
		t.Errorf("date = %s", txn.Date)
	}
	if txn.Payee != "Costco" {
		t.Errorf("payee = %q", txn.Payee)
	}
	if txn.Narration != "Warehouse #310 SEATTLE - Sale - 3 items" {
		t.Errorf("narration = %q", txn.Narration)
	}
	if txn.Meta[MetaBarcode] != "23100208011234502" {
		t.Errorf("barcode meta = %q", txn.Meta[MetaBarcode])
	}
	if txn.Meta[MetaWarehouse] != "Seattle WH, Seattle, WA" {
		t.Errorf("warehouse meta = %q", txn.Meta[MetaWarehouse])
	}

	// Three item postings, then tax and tender. The rebate line is folded
	// into the vitamins posting instead of appearing itself.
	if len(txn.Postings) != 5 {
		t.Fatalf("postings = %d, expected 5", len(txn.Postings))
	}
	bananas := expectPosting(t, txn, 0, "Expenses:Groceries", "5.99")
	if bananas.Meta[MetaItemDescription] != "11111 ORGANIC BANANAS" {
		t.Errorf("bananas description = %q", bananas.Meta[MetaItemDescription])
	}
	expectPosting(t, txn, 1, "Expenses:Medical", "16.00")
	expectPosting(t, txn, 2, "Expenses:Household", "15.49")
	expectPosting(t, txn, 3, "Expenses:Taxes:Sales", "1.23")
	tenderPosting := expectPosting(t, txn, 4, "Liabilities:Visa", "-38.71")
	if tenderPosting.Meta[MetaTenderDescription] != "Visa, 1234" {
		t.Errorf("tender description = %q", tenderPosting.Meta[MetaTenderDescription])
	}
}

func TestPrepareAggregateSavings(t *testing.T) {
	dir := t.TempDir()
	path := writeReceipts(t, dir, "old.json", `[
	  {
	    "documentType": "WarehouseReceiptDetail",
	    "transactionDateTime": "2021-06-01T09:00:00",
	    "transactionType": "Sale",
	    "transactionBarcode": "100",
	    "warehouseNumber": 42,
	    "warehouseShortName": "OLD",
	    "totalItemCount": 1,
	    "instantSavings": 3.00,
	    "taxes": 0,
	    "itemArray": [
	      {"itemNumber": 1, "itemDescription01": "WIDGET", "amount": 10.00}
	    ],
	    "tenderArray": [
	      {"tenderDescription": "Cash", "amountTender": 7.00}
	    ]
	  }
	]`)

	src, err := New(testConfig(dir, []string{path}))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	results := source.NewResults()
	if err := src.Prepare(&ledger.Journal{}, results); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	txn := results.Pending()[0].Txn
	if len(txn.Postings) != 4 {
		t.Fatalf("postings = %d, expected 4", len(txn.Postings))
	}
	expectPosting(t, txn, 0, "Expenses:Discounts", "-3.00")
	expectPosting(t, txn, 1, "Expenses:Household", "10.00")
	expectPosting(t, txn, 2, "Expenses:Taxes:Sales", "0")
	expectPosting(t, txn, 3, "Assets:Cash", "-7.00")
}

func TestPrepareIdempotentByBarcode(t *testing.T) {
	dir := t.TempDir()
	path := writeReceipts(t, dir, "receipts.json", sampleReceipts)

	src, err := New(testConfig(dir, []string{path}))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	recorded := ledger.NewTransaction(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), "Costco", "whatever")
	recorded.Meta[MetaBarcode] = "23100208011234502"
	journal := &ledger.Journal{Transactions: []*ledger.Transaction{recorded}}

	results := source.NewResults()
	if err := src.Prepare(journal, results); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if len(results.Pending()) != 0 || len(results.InvalidReferences()) != 0 {
		t.Errorf("pending = %d, invalid = %d, expected 0/0",
			len(results.Pending()), len(results.InvalidReferences()))
	}
}

func TestPrepareUnmappedTender(t *testing.T) {
	dir := t.TempDir()
	path := writeReceipts(t, dir, "receipts.json", sampleReceipts)

	cfg := testConfig(dir, []string{path})
	cfg.TenderAccount = func(description string) (string, bool) { return "", false }
	src, err := New(cfg)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	err = src.Prepare(&ledger.Journal{}, source.NewResults())
	var unmapped *source.UnmappedCategoryError
	if !errors.As(err, &unmapped) {
		t.Fatalf("expected UnmappedCategoryError, got %v", err)
	}
	if unmapped.Category != "Visa, 1234" {
		t.Errorf("category = %q", unmapped.Category)
	}
}
