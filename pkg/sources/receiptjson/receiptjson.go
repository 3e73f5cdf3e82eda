// Package receiptjson imports itemized warehouse receipts exported as JSON.
// Each receipt synthesizes one transaction keyed by the receipt barcode,
// with one posting per purchased item plus sales tax and tender legs.
//
// Item-level rebates are recognized by a description beginning with "/"
// followed by the rebated item number and are netted into that item's
// posting. Older exports report only an aggregate instant-savings figure,
// which becomes a single discount posting instead. The "/" prefix sniff
// tracks the upstream export format (the field carrying it has changed
// between format versions) and is a known compatibility risk.
package receiptjson

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/ledger"
	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/source"
)

const (
	MetaSourceFile        = "receipt_source_file"
	MetaOrderDatetime     = "receipt_order_datetime"
	MetaOrderType         = "receipt_order_type"
	MetaBarcode           = "receipt_barcode"
	MetaWarehouse         = "receipt_warehouse"
	MetaItemDescription   = "receipt_item_description"
	MetaItemIdentifier    = "receipt_item_identifier"
	MetaTaxFlag           = "receipt_tax_flag"
	MetaTenderDescription = "receipt_tender_description"

	receiptDocumentType = "WarehouseReceiptDetail"
	orderDatetimeLayout = "2006-01-02T15:04:05"
)

// Config is the per-instance configuration, validated at construction.
type Config struct {
	// MerchantName becomes the payee of every synthesized transaction.
	MerchantName string
	// Currency defaults to USD.
	Currency  string
	DataDir   string
	Filenames []string

	// Expense account per item eligibility class. Keeping these explicit
	// avoids transactions full of placeholder postings, which reconcile
	// poorly.
	FoodStampEligibleAccount string
	HealthFSAEligibleAccount string
	OtherAccount             string

	DiscountAccount      string
	SalesTaxAccount      string
	RewardsTenderAccount string
	CashTenderAccount    string
	// TenderAccount resolves any other tender description (typically a
	// card name with masked digits) to the liability account that paid.
	// Reporting !ok is a configuration error.
	TenderAccount func(description string) (string, bool)
}

// Source imports receipt JSON exports.
type Source struct {
	cfg Config
}

// New validates cfg and creates the source.
func New(cfg Config) (*Source, error) {
	if cfg.MerchantName == "" {
		return nil, fmt.Errorf("receipt_json: merchant name is required")
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("receipt_json: data dir is required")
	}
	for name, account := range map[string]string{
		"food-stamp-eligible expenses": cfg.FoodStampEligibleAccount,
		"health-FSA-eligible expenses": cfg.HealthFSAEligibleAccount,
		"other expenses":               cfg.OtherAccount,
		"discount expenses":            cfg.DiscountAccount,
		"sales tax expenses":           cfg.SalesTaxAccount,
		"rewards tender":               cfg.RewardsTenderAccount,
		"cash tender":                  cfg.CashTenderAccount,
	} {
		if account == "" {
			return nil, fmt.Errorf("receipt_json: %s account is required", name)
		}
	}
	if cfg.TenderAccount == nil {
		return nil, fmt.Errorf("receipt_json: tender account lookup is required")
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	cfg.Filenames = source.SortFiles(cfg.Filenames)
	return &Source{cfg: cfg}, nil
}

func (s *Source) Name() string { return "receipt_json" }

type receipt struct {
	DocumentType        string          `json:"documentType"`
	TransactionDateTime string          `json:"transactionDateTime"`
	TransactionType     string          `json:"transactionType"`
	TransactionBarcode  string          `json:"transactionBarcode"`
	WarehouseNumber     json.Number     `json:"warehouseNumber"`
	WarehouseShortName  string          `json:"warehouseShortName"`
	WarehouseName       string          `json:"warehouseName"`
	WarehouseAddress1   string          `json:"warehouseAddress1"`
	WarehouseAddress2   string          `json:"warehouseAddress2"`
	WarehouseCity       string          `json:"warehouseCity"`
	WarehouseState      string          `json:"warehouseState"`
	WarehouseCountry    string          `json:"warehouseCountry"`
	WarehousePostalCode string          `json:"warehousePostalCode"`
	TotalItemCount      int             `json:"totalItemCount"`
	InstantSavings      decimal.Decimal `json:"instantSavings"`
	Taxes               decimal.Decimal `json:"taxes"`
	Items               []item          `json:"itemArray"`
	Tenders             []tender        `json:"tenderArray"`
}

type item struct {
	ItemNumber             json.Number `json:"itemNumber"`
	ItemDescription01      string      `json:"itemDescription01"`
	ItemDescription02      string      `json:"itemDescription02"`
	FrenchItemDescription1 string      `json:"frenchItemDescription1"`
	// ItemIdentifier is "E" for food-stamp eligible, "F" for FSA
	// eligible, empty for neither.
	ItemIdentifier string `json:"itemIdentifier"`
	// TaxFlag is "A" for taxable, empty for non-taxable.
	TaxFlag string          `json:"taxFlag"`
	Amount  decimal.Decimal `json:"amount"`
}

type tender struct {
	TenderDescription    string          `json:"tenderDescription"`
	DisplayAccountNumber string          `json:"displayAccountNumber"`
	AmountTender         decimal.Decimal `json:"amountTender"`
}

// Prepare implements source.Source.
func (s *Source) Prepare(j *ledger.Journal, r *source.Results) error {
	r.AddAccount(s.cfg.FoodStampEligibleAccount)
	r.AddAccount(s.cfg.HealthFSAEligibleAccount)
	r.AddAccount(s.cfg.OtherAccount)
	r.AddAccount(s.cfg.DiscountAccount)
	r.AddAccount(s.cfg.SalesTaxAccount)
	r.AddAccount(s.cfg.RewardsTenderAccount)

	existing := source.GroupExisting(j, func(txn *ledger.Transaction) (source.Key, bool) {
		if barcode, ok := txn.Meta[MetaBarcode]; ok {
			return source.ExternalIDKey(barcode), true
		}
		return source.Key{}, false
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

func (s *Source) readFile(filename string, synthesized *source.TxnGroups) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("%s: failed to read %s: %w", s.Name(), filename, err)
	}
	var receipts []receipt
	if err := json.Unmarshal(data, &receipts); err != nil {
		return fmt.Errorf("%s: failed to parse %s: %w", s.Name(), filename, err)
	}

	relative := source.RelativePath(s.cfg.DataDir, filename)
	for _, rc := range receipts {
		if rc.DocumentType != receiptDocumentType {
			continue
		}
		txn, err := s.buildTransaction(filename, relative, rc)
		if err != nil {
			return err
		}
		synthesized.Add(source.ExternalIDKey(rc.TransactionBarcode), txn)
	}
	return nil
}

func (s *Source) buildTransaction(filename, relative string, rc receipt) (*ledger.Transaction, error) {
	date, err := time.Parse(orderDatetimeLayout, rc.TransactionDateTime)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: invalid transaction datetime %q: %w",
			s.Name(), filename, rc.TransactionDateTime, err)
	}

	narration := fmt.Sprintf("Warehouse #%s %s - %s - %d items",
		rc.WarehouseNumber, rc.WarehouseShortName, rc.TransactionType, rc.TotalItemCount)
	txn := ledger.NewTransaction(date, s.cfg.MerchantName, ledger.Sanitize(narration))
	txn.Meta[MetaSourceFile] = relative
	txn.Meta[MetaOrderDatetime] = rc.TransactionDateTime
	txn.Meta[MetaOrderType] = rc.TransactionType
	txn.Meta[MetaBarcode] = rc.TransactionBarcode
	txn.Meta[MetaWarehouse] = warehouseAddress(rc)

	// Gather item-level rebates first so each can be netted into the item
	// it references.
	rebates := make(map[string]decimal.Decimal)
	for _, it := range rc.Items {
		if number, ok := rebatedItemNumber(it); ok {
			rebates[number] = it.Amount
		}
	}

	if len(rebates) == 0 && !rc.InstantSavings.IsZero() {
		// Older exports lump all rebates into one instant-savings figure
		// with no per-item association.
		txn.AddPosting(s.cfg.DiscountAccount,
			ledger.NewAmount(rc.InstantSavings.Neg(), s.cfg.Currency), nil)
	}

	for _, it := range rc.Items {
		if _, ok := rebatedItemNumber(it); ok {
			continue
		}
		amount := it.Amount
		if rebate, ok := rebates[it.ItemNumber.String()]; ok {
			amount = amount.Add(rebate)
		}
		txn.AddPosting(s.itemAccount(it), ledger.NewAmount(amount, s.cfg.Currency), map[string]string{
			MetaItemDescription: itemDescription(it),
			MetaItemIdentifier:  it.ItemIdentifier,
			MetaTaxFlag:         it.TaxFlag,
		})
	}

	txn.AddPosting(s.cfg.SalesTaxAccount, ledger.NewAmount(rc.Taxes, s.cfg.Currency), nil)

	for _, td := range rc.Tenders {
		description := tenderDescription(td)
		account, err := s.tenderAccount(description)
		if err != nil {
			return nil, err
		}
		txn.AddPosting(account, ledger.NewAmount(td.AmountTender.Neg(), s.cfg.Currency), map[string]string{
			MetaTenderDescription: description,
		})
	}

	return txn, nil
}

func (s *Source) itemAccount(it item) string {
	switch it.ItemIdentifier {
	case "E":
		return s.cfg.FoodStampEligibleAccount
	case "F":
		return s.cfg.HealthFSAEligibleAccount
	default:
		return s.cfg.OtherAccount
	}
}

func (s *Source) tenderAccount(description string) (string, error) {
	switch {
	case strings.Contains(description, "Rebate"):
		return s.cfg.RewardsTenderAccount, nil
	case description == "Cash":
		return s.cfg.CashTenderAccount, nil
	}
	account, ok := s.cfg.TenderAccount(description)
	if !ok {
		return "", &source.UnmappedCategoryError{Source: s.Name(), Category: description}
	}
	return account, nil
}

// rebatedItemNumber reports the item number a rebate line references.
// Exports after roughly 2022-12 moved the "/<number>" marker into the
// alternate description field.
func rebatedItemNumber(it item) (string, bool) {
	switch {
	case strings.HasPrefix(it.ItemDescription01, "/"):
		return strings.TrimLeft(it.ItemDescription01, "/"), true
	case strings.HasPrefix(it.FrenchItemDescription1, "/"):
		return strings.TrimLeft(it.FrenchItemDescription1, "/"), true
	}
	return "", false
}

var spaceRuns = regexp.MustCompile(` +`)

func itemDescription(it item) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{it.ItemNumber.String(), it.ItemDescription01, it.ItemDescription02} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	joined := spaceRuns.ReplaceAllString(strings.Join(parts, " "), " ")
	return ledger.Sanitize(strings.TrimSpace(joined))
}

func tenderDescription(td tender) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{td.TenderDescription, td.DisplayAccountNumber} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return ledger.Sanitize(strings.Join(parts, ", "))
}

func warehouseAddress(rc receipt) string {
	parts := make([]string, 0, 7)
	for _, p := range []string{
		rc.WarehouseName, rc.WarehouseAddress1, rc.WarehouseAddress2, rc.WarehouseCity,
		rc.WarehouseState, rc.WarehouseCountry, rc.WarehousePostalCode,
	} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return ledger.Sanitize(strings.Join(parts, ", "))
}

// IsPostingCleared implements source.Source. Receipts itemize every leg, so
// all postings of an imported receipt are considered explained.
func (s *Source) IsPostingCleared(p *ledger.Posting) bool {
	return true
}
