package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ZeroPlaceholder is the token some exports use for an exactly-zero amount.
const ZeroPlaceholder = "--"

var amountCleaner = strings.NewReplacer("$", "", ",", "")

// ParseAmount converts a source-specific numeric string into an Amount,
// stripping currency symbols and thousands separators. The "--" placeholder
// parses as exact zero. Malformed text is an error; callers treat it as
// fatal for the file being processed.
func ParseAmount(raw, currency string) (Amount, error) {
	s := strings.TrimSpace(raw)
	if s == ZeroPlaceholder {
		return Amount{Number: decimal.Zero, Currency: currency}, nil
	}
	number, err := decimal.NewFromString(strings.TrimSpace(amountCleaner.Replace(s)))
	if err != nil {
		return Amount{}, fmt.Errorf("malformed amount %q: %w", raw, err)
	}
	return Amount{Number: number, Currency: currency}, nil
}

// SignForAccount normalizes the sign of a raw reported amount so the posting
// obeys ledger conventions: Income, Equity and Liabilities postings are
// negative when value is received; Expenses and Assets postings are positive
// when value is spent.
func SignForAccount(amount Amount, account string) Amount {
	negative := hasAnyPrefix(account, "Income:", "Equity:", "Liabilities:")
	positive := hasAnyPrefix(account, "Expenses:", "Assets:")
	if amount.Number.IsPositive() && negative {
		return amount.Neg()
	}
	if amount.Number.IsNegative() && positive {
		return amount.Neg()
	}
	return amount
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
