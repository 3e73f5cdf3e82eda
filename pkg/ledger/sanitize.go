package ledger

import "strings"

// Sanitize removes all non-ASCII and non-printable characters, including
// newlines. Free text from upstream exports passes through here before being
// stored in narrations or metadata so it stays safe for plain-text
// serialization.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 0x20 && r <= 0x7e {
			b.WriteRune(r)
		}
	}
	return b.String()
}
