// Package walletjson imports peer-payment wallet history exported as JSON
// (Venmo API format). Each story carries its own opaque id, which becomes
// the identity key via the wallet posting's metadata. Payments funded from
// an external source additionally synthesize a transfer-funding transaction.
package walletjson

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/ledger"
	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/source"
)

const (
	MetaTransactionID = "venmo_transaction_id"
	MetaPayee         = "venmo_payee"
	MetaType          = "venmo_type"
	MetaDescription   = "venmo_description"

	datetimeLayout = "2006-01-02T15:04:05"

	unknownName = "(unknown)"
)

// Config is the per-instance configuration, validated at construction.
type Config struct {
	DataDir   string
	Filenames []string
	// SelfUsername identifies which side of a payment is the account owner.
	SelfUsername string
	// WalletAccount tracks the wallet balance.
	WalletAccount string
	// Currency denominates all postings. Defaults to USD.
	Currency string
}

type export struct {
	Data struct {
		Transactions []story `json:"transactions"`
	} `json:"data"`
}

type story struct {
	ID              string          `json:"id"`
	DatetimeCreated string          `json:"datetime_created"`
	Type            string          `json:"type"`
	Note            string          `json:"note"`
	Amount          decimal.Decimal `json:"amount"`
	Payment         *payment        `json:"payment"`
	Refund          *refund         `json:"refund"`
	Transfer        *transfer       `json:"transfer"`
	Disbursement    *disbursement   `json:"disbursement"`
	FundingSource   *fundingSource  `json:"funding_source"`
}

type payment struct {
	ID     json.Number     `json:"id"`
	Action string          `json:"action"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
	Actor  *userInfo       `json:"actor"`
	Target struct {
		User *userInfo `json:"user"`
	} `json:"target"`
}

type refund struct {
	Payment *payment `json:"payment"`
}

type disbursement struct {
	Merchant *userInfo `json:"merchant"`
}

type transfer struct {
	Destination struct {
		Name string `json:"name"`
	} `json:"destination"`
}

type fundingSource struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type userInfo struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

func (u *userInfo) name() string {
	if u == nil {
		return unknownName
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Username != "" {
		return u.Username
	}
	return unknownName
}

// Source imports wallet history JSON exports.
type Source struct {
	cfg Config
}

// New validates cfg and creates the source.
func New(cfg Config) (*Source, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("wallet_json: data dir is required")
	}
	if cfg.SelfUsername == "" {
		return nil, fmt.Errorf("wallet_json: self username is required")
	}
	if cfg.WalletAccount == "" {
		return nil, fmt.Errorf("wallet_json: wallet account is required")
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	cfg.Filenames = source.SortFiles(cfg.Filenames)
	return &Source{cfg: cfg}, nil
}

func (s *Source) Name() string { return "wallet_json" }

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
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("%s: failed to read %s: %w", s.Name(), filename, err)
	}
	var doc export
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%s: failed to parse %s: %w", s.Name(), filename, err)
	}
	for _, st := range doc.Data.Transactions {
		if err := s.readStory(filename, st, synthesized); err != nil {
			return err
		}
	}
	return nil
}

func (s *Source) readStory(filename string, st story, synthesized *source.TxnGroups) error {
	date, err := time.Parse(datetimeLayout, st.DatetimeCreated)
	if err != nil {
		return fmt.Errorf("%s: %s: story %s: invalid datetime %q: %w",
			s.Name(), filename, st.ID, st.DatetimeCreated, err)
	}
	date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	switch st.Type {
	case "payment":
		if st.Payment == nil {
			return &source.UnrecognizedRecordError{Source: s.Name(), Kind: "payment story", Value: st.ID}
		}
		return s.readPayment(st, st.Payment, date, synthesized)
	case "refund":
		// A refund story wraps the payment being reversed.
		if st.Refund == nil || st.Refund.Payment == nil {
			return &source.UnrecognizedRecordError{Source: s.Name(), Kind: "refund story", Value: st.ID}
		}
		return s.readPayment(st, st.Refund.Payment, date, synthesized)
	case "transfer":
		if st.Transfer == nil {
			return &source.UnrecognizedRecordError{Source: s.Name(), Kind: "transfer story", Value: st.ID}
		}
		amount := ledger.NewAmount(st.Amount.Neg(), s.cfg.Currency)
		s.addTransfer(synthesized, st.ID, date, st.Transfer.Destination.Name, amount, "", "")
		return nil
	case "disbursement":
		// A merchant paying into the wallet.
		if st.Disbursement == nil {
			return &source.UnrecognizedRecordError{Source: s.Name(), Kind: "disbursement story", Value: st.ID}
		}
		amount := ledger.NewAmount(st.Amount, s.cfg.Currency)
		s.addPayment(synthesized, st.ID, date, st.Type, "disbursement",
			st.Disbursement.Merchant.name(), st.Note, amount)
		return nil
	default:
		return &source.UnrecognizedRecordError{Source: s.Name(), Kind: "story type", Value: st.Type}
	}
}

func (s *Source) readPayment(st story, pmt *payment, date time.Time, synthesized *source.TxnGroups) error {
	var coef decimal.Decimal
	var payee string
	switch {
	case pmt.Target.User != nil && pmt.Target.User.Username == s.cfg.SelfUsername:
		payee = pmt.Actor.name()
		switch pmt.Action {
		case "pay":
			coef = decimal.NewFromInt(1)
		case "charge":
			coef = decimal.NewFromInt(-1)
		default:
			return &source.UnrecognizedRecordError{Source: s.Name(), Kind: "payment action", Value: pmt.Action}
		}
	case pmt.Actor != nil && pmt.Actor.Username == s.cfg.SelfUsername:
		payee = pmt.Target.User.name()
		switch pmt.Action {
		case "pay":
			coef = decimal.NewFromInt(-1)
		case "charge":
			coef = decimal.NewFromInt(1)
		default:
			return &source.UnrecognizedRecordError{Source: s.Name(), Kind: "payment action", Value: pmt.Action}
		}
	default:
		return &source.UnrecognizedRecordError{Source: s.Name(), Kind: "payment participant", Value: st.ID}
	}
	if st.Type == "refund" {
		// The wrapped payment is the one being reversed, so the money
		// flows the other way.
		coef = coef.Neg()
	}

	// An outgoing payment funded directly by a bank account or incoming
	// transfer first lands in the wallet and immediately leaves it.
	if st.FundingSource != nil && (st.FundingSource.Type == "bank" || st.FundingSource.Type == "transfer") {
		funding := ledger.NewAmount(st.Amount.Mul(coef).Neg(), s.cfg.Currency)
		s.addTransfer(synthesized, st.ID, date, st.FundingSource.Name, funding, payee, pmt.Note)
	}

	amount := ledger.NewAmount(pmt.Amount.Mul(coef), s.cfg.Currency)
	s.addPayment(synthesized, st.ID, date, st.Type, pmt.Action, payee, pmt.Note, amount)
	return nil
}

func (s *Source) addPayment(synthesized *source.TxnGroups, storyID string, date time.Time,
	storyType, action, payee, note string, amount ledger.Amount) {
	txn := ledger.NewTransaction(date, payee, "Venmo "+storyType+": "+ledger.Sanitize(note))
	txn.AddPosting(s.cfg.WalletAccount, amount, map[string]string{
		MetaTransactionID: storyID,
		MetaPayee:         ledger.Sanitize(payee),
		MetaType:          action,
		MetaDescription:   ledger.Sanitize(note),
	})
	txn.AddPosting(ledger.FIXMEAccount, amount.Neg(), nil)
	synthesized.Add(source.ExternalIDKey(storyID), txn)
}

func (s *Source) addTransfer(synthesized *source.TxnGroups, storyID string, date time.Time,
	destination string, amount ledger.Amount, forPayee, forNote string) {
	txn := ledger.NewTransaction(date, "", "Venmo transfer to/from "+ledger.Sanitize(destination))
	meta := map[string]string{
		MetaTransactionID: storyID,
		MetaType:          "transfer",
	}
	if forPayee != "" || forNote != "" {
		meta[MetaPayee] = ledger.Sanitize(forPayee)
		meta[MetaDescription] = ledger.Sanitize(forNote)
	}
	txn.AddPosting(s.cfg.WalletAccount, amount, meta)
	txn.AddPosting(ledger.FIXMEAccount, amount.Neg(), nil)
	synthesized.Add(source.ExternalIDKey(storyID), txn)
}

// IsPostingCleared implements source.Source.
func (s *Source) IsPostingCleared(p *ledger.Posting) bool {
	_, ok := p.Meta[MetaTransactionID]
	return ok
}
