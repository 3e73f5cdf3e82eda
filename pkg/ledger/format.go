package ledger

import (
	"fmt"
	"sort"
	"strings"
)

const amountColumn = 60

// FormatTransaction serializes a transaction in plain-text ledger syntax,
// including transaction- and posting-level metadata. A pending entry
// accepted verbatim into the journal therefore keeps the metadata that
// carries its identity key, which is what makes a re-run idempotent.
func FormatTransaction(txn *Transaction) string {
	var sb strings.Builder

	sb.WriteString(txn.Date.Format(DateLayout))
	sb.WriteString(" ")
	flag := txn.Flag
	if flag == "" {
		flag = "*"
	}
	sb.WriteString(flag)
	if txn.Payee != "" {
		sb.WriteString(fmt.Sprintf(" %q", txn.Payee))
	}
	sb.WriteString(fmt.Sprintf(" %q", txn.Narration))
	for _, tag := range txn.Tags {
		sb.WriteString(" #")
		sb.WriteString(tag)
	}
	for _, link := range txn.Links {
		sb.WriteString(" ^")
		sb.WriteString(link)
	}
	sb.WriteString("\n")

	writeMeta(&sb, txn.Meta, "  ")

	for _, posting := range txn.Postings {
		sb.WriteString("  ")
		sb.WriteString(posting.Account)

		amount := posting.Units.String()
		pad := amountColumn - len(posting.Account) - len(amount)
		if pad < 2 {
			pad = 2
		}
		sb.WriteString(strings.Repeat(" ", pad))
		sb.WriteString(amount)
		sb.WriteString("\n")

		writeMeta(&sb, posting.Meta, "    ")
	}

	return sb.String()
}

// writeMeta emits metadata lines sorted by key so two runs over the same
// input produce byte-identical output.
func writeMeta(sb *strings.Builder, meta map[string]string, indent string) {
	if len(meta) == 0 {
		return
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("%s%s: %q\n", indent, k, meta[k]))
	}
}
