package source

import (
	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/ledger"
)

// TxnGroups groups transactions by identity key, preserving the order in
// which keys were first added so reconciliation output is deterministic.
type TxnGroups struct {
	order []string
	byKey map[string][]*ledger.Transaction
}

// NewTxnGroups creates an empty grouping.
func NewTxnGroups() *TxnGroups {
	return &TxnGroups{byKey: make(map[string][]*ledger.Transaction)}
}

// Add appends a transaction to the group for key.
func (g *TxnGroups) Add(key Key, txn *ledger.Transaction) {
	s := key.String()
	if _, ok := g.byKey[s]; !ok {
		g.order = append(g.order, s)
	}
	g.byKey[s] = append(g.byKey[s], txn)
}

// Get returns the group for a canonical key string, or nil.
func (g *TxnGroups) Get(key string) []*ledger.Transaction {
	return g.byKey[key]
}

// Keys returns the canonical key strings in first-insertion order.
func (g *TxnGroups) Keys() []string {
	return g.order
}

// Len returns the number of distinct keys.
func (g *TxnGroups) Len() int {
	return len(g.order)
}

// GroupExisting scans the journal and groups transactions by the identity
// key extract derives from each one. Transactions for which extract reports
// no key are ignored; they are assumed unrelated to the source.
func GroupExisting(j *ledger.Journal, extract func(*ledger.Transaction) (Key, bool)) *TxnGroups {
	groups := NewTxnGroups()
	for _, txn := range j.Transactions {
		if key, ok := extract(txn); ok {
			groups.Add(key, txn)
		}
	}
	return groups
}

// GroupExistingByPostingMeta groups journal transactions by the value of a
// metadata key found on their postings. A transaction is counted once per
// posting that carries the key, mirroring how sources stamp exactly one
// designated posting per synthesized transaction.
func GroupExistingByPostingMeta(j *ledger.Journal, metaKey string) *TxnGroups {
	groups := NewTxnGroups()
	for _, txn := range j.Transactions {
		for _, posting := range txn.Postings {
			if id, ok := posting.Meta[metaKey]; ok {
				groups.Add(ExternalIDKey(id), txn)
			}
		}
	}
	return groups
}

// Reconcile compares existing journal transactions against synthesized
// candidates, multiplicity-aware: within one key, counts must match, not
// just existence.
//
// For each synthesized group, the members beyond the count already present
// in the journal become pending entries, in synthesis order. A key absent
// from the journal therefore pends its whole group; a key present with a
// smaller count pends only the surplus, and raises no invalid reference
// since nothing in the journal is orphaned.
//
// For each existing group with more journal transactions than synthesized
// candidates, exactly one invalid reference is reported carrying the excess
// count and the whole group.
func Reconcile(existing, synthesized *TxnGroups, r *Results) {
	for _, key := range synthesized.Keys() {
		synth := synthesized.Get(key)
		matched := len(existing.Get(key))
		if matched >= len(synth) {
			continue
		}
		for _, txn := range synth[matched:] {
			r.AddPending(txn)
		}
	}

	for _, key := range existing.Keys() {
		group := existing.Get(key)
		excess := len(group) - len(synthesized.Get(key))
		if excess > 0 {
			r.AddInvalidReference(InvalidReference{Excess: excess, Transactions: group})
		}
	}
}
