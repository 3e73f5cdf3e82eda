package source

import (
	"strings"
	"time"

	"github.com/shunichi-ikebuchi/ledger-import-sources/pkg/ledger"
)

// KeyKind discriminates the three identity-key shapes sources use to
// correlate upstream records with journal transactions across runs.
type KeyKind int

const (
	// KindSourceFile keys a group by the data-dir-relative source file
	// path; one file may account for one or many transactions.
	KindSourceFile KeyKind = iota
	// KindFileRow keys by the (file, date, description) composite a CSV
	// row derives.
	KindFileRow
	// KindExternalID keys by an opaque id assigned upstream; one id may
	// expand into more than one synthesized transaction.
	KindExternalID
)

// Key is the typed identity key linking upstream records to journal
// transactions. It is computed once and threaded explicitly rather than
// re-derived from ad hoc metadata lookups.
type Key struct {
	Kind        KeyKind
	File        string
	Date        time.Time
	Description string
	ID          string
}

// FileKey builds a source-file identity key.
func FileKey(relPath string) Key {
	return Key{Kind: KindSourceFile, File: relPath}
}

// RowKey builds a (file, date, description) composite identity key.
func RowKey(relPath string, date time.Time, description string) Key {
	return Key{Kind: KindFileRow, File: relPath, Date: date, Description: description}
}

// ExternalIDKey builds an identity key from an upstream-assigned id.
func ExternalIDKey(id string) Key {
	return Key{Kind: KindExternalID, ID: id}
}

// String returns the canonical grouping form of the key. The kind tag and
// an unprintable separator (which Sanitize strips from all stored text)
// ensure keys of different kinds or fields cannot collide.
func (k Key) String() string {
	const sep = "\x1f"
	switch k.Kind {
	case KindFileRow:
		return strings.Join([]string{"row", k.File, k.Date.Format(ledger.DateLayout), k.Description}, sep)
	case KindExternalID:
		return "id" + sep + k.ID
	default:
		return "file" + sep + k.File
	}
}
