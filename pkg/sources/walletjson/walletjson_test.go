package walletjson

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/ledger"
	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/source"
)

const sampleExport = `{
  "data": {
    "transactions": [
      {
        "id": "s1",
        "datetime_created": "2024-02-01T10:00:00",
        "type": "payment",
        "amount": 30.00,
        "payment": {
          "id": 9001,
          "action": "pay",
          "amount": 30.00,
          "note": "Lunch",
          "actor": {"username": "alice", "display_name": "Alice A"},
          "target": {"user": {"username": "me", "display_name": "Me"}}
        }
      },
      {
        "id": "s2",
        "datetime_created": "2024-02-02T10:00:00",
        "type": "payment",
        "amount": 50.00,
        "funding_source": {"type": "bank", "name": "My Bank"},
        "payment": {
          "id": 9002,
          "action": "pay",
          "amount": 50.00,
          "note": "Rent share",
          "actor": {"username": "me", "display_name": "Me"},
          "target": {"user": {"username": "bob", "display_name": "Bob B"}}
        }
      },
      {
        "id": "s3",
        "datetime_created": "2024-02-03T10:00:00",
        "type": "transfer",
        "amount": 20.00,
        "transfer": {"destination": {"name": "My Bank"}}
      },
      {
        "id": "s4",
        "datetime_created": "2024-02-04T10:00:00",
        "type": "disbursement",
        "amount": 15.00,
        "note": "Promo credit",
        "disbursement": {"merchant": {"display_name": "Acme Store"}}
      },
      {
        "id": "s5",
        "datetime_created": "2024-02-05T10:00:00",
        "type": "refund",
        "amount": 12.00,
        "refund": {
          "payment": {
            "id": 9004,
            "action": "pay",
            "amount": 12.00,
            "note": "Oops",
            "actor": {"username": "me"},
            "target": {"user": {"username": "charlie"}}
          }
        }
      }
    ]
  }
}`

func testConfig(dataDir string, filenames []string) Config {
	return Config{
		DataDir:       dataDir,
		Filenames:     filenames,
		SelfUsername:  "me",
		WalletAccount: "Assets:Venmo",
	}
}

func writeExport(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func walletUnits(t *testing.T, txn *ledger.Transaction, raw string) {
	t.Helper()
	if txn.Postings[0].Account != "Assets:Venmo" {
		t.Errorf("wallet account = %q", txn.Postings[0].Account)
	}
	if !txn.Postings[0].Units.Number.Equal(decimal.RequireFromString(raw)) {
		t.Errorf("wallet units = %s, expected %s", txn.Postings[0].Units, raw)
	}
}

func TestPrepare(t *testing.T) {
	dir := t.TempDir()
	path := writeExport(t, dir, "export.json", sampleExport)

	src, err := New(testConfig(dir, []string{path}))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	results := source.NewResults()
	if err := src.Prepare(&ledger.Journal{}, results); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}

	pending := results.Pending()
	// s2 expands to a funding transfer plus the payment itself.
	if len(pending) != 6 {
		t.Fatalf("pending = %d, expected 6", len(pending))
	}

	received := pending[0].Txn
	if received.Payee != "Alice A" {
		t.Errorf("received payee = %q", received.Payee)
	}
	walletUnits(t, received, "30.00")
	if received.Postings[0].Meta[MetaTransactionID] != "s1" {
		t.Errorf("received meta = %v", received.Postings[0].Meta)
	}
	if received.Postings[0].Meta[MetaType] != "pay" {
		t.Errorf("received type = %q", received.Postings[0].Meta[MetaType])
	}

	funding := pending[1].Txn
	walletUnits(t, funding, "50.00")
	if funding.Postings[0].Meta[MetaType] != "transfer" {
		t.Errorf("funding type = %q", funding.Postings[0].Meta[MetaType])
	}
	if !strings.Contains(funding.Narration, "My Bank") {
		t.Errorf("funding narration = %q", funding.Narration)
	}
	sent := pending[2].Txn
	if sent.Payee != "Bob B" {
		t.Errorf("sent payee = %q", sent.Payee)
	}
	walletUnits(t, sent, "-50.00")

	transfer := pending[3].Txn
	walletUnits(t, transfer, "-20.00")

	disbursement := pending[4].Txn
	walletUnits(t, disbursement, "15.00")
	if disbursement.Payee != "Acme Store" {
		t.Errorf("disbursement payee = %q", disbursement.Payee)
	}
	if disbursement.Narration != "Venmo disbursement: Promo credit" {
		t.Errorf("disbursement narration = %q", disbursement.Narration)
	}
	if disbursement.Postings[0].Meta[MetaPayee] != "Acme Store" {
		t.Errorf("disbursement meta = %v", disbursement.Postings[0].Meta)
	}

	// The refund reverses the wrapped payment's direction.
	refund := pending[5].Txn
	if refund.Payee != "charlie" {
		t.Errorf("refund payee = %q", refund.Payee)
	}
	walletUnits(t, refund, "12.00")
	if refund.Narration != "Venmo refund: Oops" {
		t.Errorf("refund narration = %q", refund.Narration)
	}
}

func TestPrepareCharge(t *testing.T) {
	dir := t.TempDir()
	path := writeExport(t, dir, "charge.json", `{
	  "data": {
	    "transactions": [
	      {
	        "id": "c1",
	        "datetime_created": "2024-03-01T10:00:00",
	        "type": "payment",
	        "amount": 18.00,
	        "payment": {
	          "action": "charge",
	          "amount": 18.00,
	          "note": "Utilities split",
	          "actor": {"username": "alice", "display_name": "Alice A"},
	          "target": {"user": {"username": "me"}}
	        }
	      }
	    ]
	  }
	}`)

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
	// Being charged moves money out of the wallet.
	charged := pending[0].Txn
	if charged.Payee != "Alice A" {
		t.Errorf("charge payee = %q", charged.Payee)
	}
	walletUnits(t, charged, "-18.00")
}

func TestPrepareIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := writeExport(t, dir, "export.json", sampleExport)

	src, err := New(testConfig(dir, []string{path}))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	first := source.NewResults()
	if err := src.Prepare(&ledger.Journal{}, first); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}

	var formatted strings.Builder
	for _, entry := range first.Pending() {
		formatted.WriteString(ledger.FormatTransaction(entry.Txn))
		formatted.WriteString("\n")
	}
	journal, err := ledger.ParseJournal(strings.NewReader(formatted.String()))
	if err != nil {
		t.Fatalf("round-trip parse: %v", err)
	}

	second := source.NewResults()
	if err := src.Prepare(journal, second); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if len(second.Pending()) != 0 || len(second.InvalidReferences()) != 0 {
		t.Errorf("after accept: pending = %d, invalid = %d, expected 0/0",
			len(second.Pending()), len(second.InvalidReferences()))
	}
}

func TestPrepareUnrecognized(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			"unknown story type",
			`{"id": "x", "datetime_created": "2024-02-01T10:00:00", "type": "authorization"}`,
		},
		{
			"unknown action",
			`{"id": "x", "datetime_created": "2024-02-01T10:00:00", "type": "payment",
			  "payment": {"action": "lend", "amount": 1,
			    "actor": {"username": "me"}, "target": {"user": {"username": "bob"}}}}`,
		},
		{
			"refund without wrapped payment",
			`{"id": "x", "datetime_created": "2024-02-01T10:00:00", "type": "refund"}`,
		},
		{
			"neither participant is self",
			`{"id": "x", "datetime_created": "2024-02-01T10:00:00", "type": "payment",
			  "payment": {"action": "pay", "amount": 1,
			    "actor": {"username": "alice"}, "target": {"user": {"username": "bob"}}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeExport(t, dir, "bad.json",
				`{"data": {"transactions": [`+tt.body+`]}}`)

			src, err := New(testConfig(dir, []string{path}))
			if err != nil {
				t.Fatalf("New returned error: %v", err)
			}

			err = src.Prepare(&ledger.Journal{}, source.NewResults())
			var unrecognized *source.UnrecognizedRecordError
			if !errors.As(err, &unrecognized) {
				t.Fatalf("expected UnrecognizedRecordError, got %v", err)
			}
		})
	}
}
