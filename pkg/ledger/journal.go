package ledger

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"
)

// The journal loader understands the subset of ledger syntax this system
// produces and consumes: transactions with optional payee, tags and links,
// transaction- and posting-level metadata, and postings with explicit
// amounts. All other directive kinds (open, balance, price, options) are
// skipped; they never carry import-source identity keys.

var (
	headerRe  = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\s+(\*|!|txn)\s*(.*)$`)
	metaRe    = regexp.MustCompile(`^([a-z][A-Za-z0-9_-]*):\s*(.*)$`)
	postingRe = regexp.MustCompile(`^((?:Assets|Liabilities|Equity|Income|Expenses)[A-Za-z0-9:._-]*)(?:\s{2,}(-?[0-9][0-9,.]*)\s+([A-Z][A-Z0-9'._-]*))?\s*$`)
	quotedRe  = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)
)

// LoadJournal reads and parses a journal file into an in-memory snapshot.
func LoadJournal(path string) (*Journal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	journal, err := ParseJournal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse journal %s: %w", path, err)
	}
	return journal, nil
}

// ParseJournal parses journal text from a reader.
func ParseJournal(r io.Reader) (*Journal, error) {
	journal := &Journal{}

	var current *Transaction
	var lastPosting *Posting
	finish := func() {
		if current != nil {
			journal.Transactions = append(journal.Transactions, current)
		}
		current = nil
		lastPosting = nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if trimmed == "" || strings.HasPrefix(trimmed, ";") {
			continue
		}

		indented := line[0] == ' ' || line[0] == '\t'
		if !indented {
			finish()
			m := headerRe.FindStringSubmatch(line)
			if m == nil {
				// Some other directive (open, balance, option, ...).
				continue
			}
			date, err := time.Parse(DateLayout, m[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid date %q: %w", lineno, m[1], err)
			}
			txn := &Transaction{Date: date, Flag: m[2], Meta: make(map[string]string)}
			if txn.Flag == "txn" {
				txn.Flag = "*"
			}
			parseHeaderRest(txn, m[3])
			current = txn
			continue
		}

		if current == nil {
			// Indented continuation of a skipped directive.
			continue
		}

		if m := postingRe.FindStringSubmatch(trimmed); m != nil {
			posting := &Posting{Account: m[1], Meta: make(map[string]string)}
			if m[2] != "" {
				units, err := ParseAmount(m[2], m[3])
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineno, err)
				}
				posting.Units = units
			}
			current.Postings = append(current.Postings, posting)
			lastPosting = posting
			continue
		}

		if m := metaRe.FindStringSubmatch(trimmed); m != nil {
			value := strings.TrimSpace(m[2])
			if q := quotedRe.FindStringSubmatch(value); q != nil {
				value = unescape(q[1])
			}
			if lastPosting != nil {
				lastPosting.Meta[m[1]] = value
			} else {
				current.Meta[m[1]] = value
			}
			continue
		}

		return nil, fmt.Errorf("line %d: unparseable transaction line %q", lineno, trimmed)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	finish()

	return journal, nil
}

// parseHeaderRest fills payee, narration, tags and links from the remainder
// of a transaction header line. With two quoted strings the first is the
// payee; with one, it is the narration.
func parseHeaderRest(txn *Transaction, rest string) {
	quoted := quotedRe.FindAllStringSubmatch(rest, -1)
	switch len(quoted) {
	case 0:
	case 1:
		txn.Narration = unescape(quoted[0][1])
	default:
		txn.Payee = unescape(quoted[0][1])
		txn.Narration = unescape(quoted[1][1])
	}

	unquoted := quotedRe.ReplaceAllString(rest, "")
	for _, field := range strings.Fields(unquoted) {
		switch {
		case strings.HasPrefix(field, "#"):
			txn.Tags = append(txn.Tags, strings.TrimPrefix(field, "#"))
		case strings.HasPrefix(field, "^"):
			txn.Links = append(txn.Links, strings.TrimPrefix(field, "^"))
		}
	}
}

func unescape(s string) string {
	s = strings.ReplaceAll(s, `\"`, `"`)
	return strings.ReplaceAll(s, `\\`, `\`)
}
