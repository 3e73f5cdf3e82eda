// Package ledger provides the double-entry data model shared by all import
// sources: amounts, postings, transactions, and the journal snapshot they are
// reconciled against, plus plain-text serialization and parsing.
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the date format used throughout: YYYY-MM-DD.
const DateLayout = "2006-01-02"

// FIXMEAccount is the placeholder account that absorbs the unclassified leg
// of a transaction, to be categorized manually during review.
const FIXMEAccount = "Expenses:FIXME"

// Amount is a signed arbitrary-precision quantity of a single currency.
type Amount struct {
	Number   decimal.Decimal
	Currency string
}

// NewAmount creates an Amount from a decimal number and a currency code.
func NewAmount(number decimal.Decimal, currency string) Amount {
	return Amount{Number: number, Currency: currency}
}

// Neg returns the amount with its sign flipped.
func (a Amount) Neg() Amount {
	return Amount{Number: a.Number.Neg(), Currency: a.Currency}
}

// Add returns a + b. The currencies must match.
func (a Amount) Add(b Amount) (Amount, error) {
	if a.Currency != b.Currency {
		return Amount{}, fmt.Errorf("currency mismatch: %s vs %s", a.Currency, b.Currency)
	}
	return Amount{Number: a.Number.Add(b.Number), Currency: a.Currency}, nil
}

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool {
	return a.Number.IsZero()
}

// Equal reports whether two amounts have the same currency and value.
func (a Amount) Equal(b Amount) bool {
	return a.Currency == b.Currency && a.Number.Equal(b.Number)
}

// String formats the amount as "<number> <currency>", e.g. "-1000.00 USD".
func (a Amount) String() string {
	return a.Number.String() + " " + a.Currency
}

// Posting is one (account, signed amount) leg of a transaction. Meta carries
// descriptive metadata attached to the leg, such as the upstream line-item
// description an import source derived it from.
type Posting struct {
	Account string
	Units   Amount
	Meta    map[string]string
}

// Transaction is one double-entry transaction: either an existing journal
// entry or a candidate synthesized by an import source.
type Transaction struct {
	Date      time.Time
	Flag      string
	Payee     string
	Narration string
	Tags      []string
	Links     []string
	Meta      map[string]string
	Postings  []*Posting
}

// NewTransaction creates a transaction with the cleared flag and an empty
// metadata map.
func NewTransaction(date time.Time, payee, narration string) *Transaction {
	return &Transaction{
		Date:      date,
		Flag:      "*",
		Payee:     payee,
		Narration: narration,
		Meta:      make(map[string]string),
	}
}

// AddPosting appends a posting leg. A nil meta map is replaced with an empty
// one so callers can always index into it.
func (t *Transaction) AddPosting(account string, units Amount, meta map[string]string) {
	if meta == nil {
		meta = make(map[string]string)
	}
	t.Postings = append(t.Postings, &Posting{Account: account, Units: units, Meta: meta})
}

// Journal is an immutable snapshot of the ledger. Import sources scan it
// during one Prepare call; concurrent mutation of the underlying file is
// undefined behavior and not guarded against.
type Journal struct {
	Transactions []*Transaction
}
