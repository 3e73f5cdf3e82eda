// Package source defines the contract every import source implements and the
// shared reconciliation engine that keeps imports idempotent: given the
// transactions a source synthesizes from its files and the transactions
// already present in the journal, it computes which candidates are new
// (pending entries) and which journal entries reference upstream records
// that no longer exist (invalid references).
package source

import (
	"sort"
	"time"

	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/ledger"
)

// Source translates one export format into candidate ledger transactions.
// Prepare performs a single synchronous pass: extract records from the
// source's files, synthesize transactions, reconcile them against the
// journal snapshot, and report into r. A returned error is fatal for the
// whole run.
type Source interface {
	Name() string
	Prepare(j *ledger.Journal, r *Results) error

	// IsPostingCleared reports whether this source considers the posting
	// explained, so the host knows it needs no manual reconciliation.
	IsPostingCleared(p *ledger.Posting) bool
}

// PendingEntry is one synthesized transaction offered for review.
type PendingEntry struct {
	Date time.Time
	Txn  *ledger.Transaction
}

// InvalidReference flags a group of existing journal transactions whose
// identity key matches fewer source records than journal entries. The excess
// is evidence for a human to resolve; it is not attributed to any single
// transaction in the group.
type InvalidReference struct {
	Excess       int
	Transactions []*ledger.Transaction
}

// Results accumulates a source's output. Insertion order is preserved so two
// runs over the same inputs produce identical reports.
type Results struct {
	accounts map[string]bool
	pending  []PendingEntry
	invalid  []InvalidReference
}

// NewResults creates an empty results sink.
func NewResults() *Results {
	return &Results{accounts: make(map[string]bool)}
}

// AddAccount registers an account this source is authoritative for.
func (r *Results) AddAccount(name string) {
	r.accounts[name] = true
}

// AddPending reports a synthesized transaction not yet present in the journal.
func (r *Results) AddPending(txn *ledger.Transaction) {
	r.pending = append(r.pending, PendingEntry{Date: txn.Date, Txn: txn})
}

// AddInvalidReference reports a partially-orphaned existing group.
func (r *Results) AddInvalidReference(ref InvalidReference) {
	r.invalid = append(r.invalid, ref)
}

// Accounts returns the registered accounts, sorted and deduplicated.
func (r *Results) Accounts() []string {
	names := make([]string, 0, len(r.accounts))
	for name := range r.accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pending returns the pending entries in the order they were reported.
func (r *Results) Pending() []PendingEntry {
	return r.pending
}

// InvalidReferences returns the invalid references in the order they were
// reported.
func (r *Results) InvalidReferences() []InvalidReference {
	return r.invalid
}
