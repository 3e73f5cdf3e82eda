// Package multitable splits a single worksheet's rows into the named tables
// some payroll exports stack in sequence. A row whose only non-empty cell is
// the leading one is a section title; each subsequent row belongs to the most
// recently opened section until the next title. The first row of a section
// holds the column names.
package multitable

// Table is one named section of a worksheet.
type Table struct {
	Name    string
	Columns []string
	rows    [][]string
	colIdx  map[string]int
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Cell returns the value at (row, column name). ok is false when the table
// has no such column or the row index is out of range.
func (t *Table) Cell(row int, column string) (string, bool) {
	if row < 0 || row >= len(t.rows) {
		return "", false
	}
	i, ok := t.colIdx[column]
	if !ok {
		return "", false
	}
	return t.rows[row][i], true
}

// Leading returns the first cell of a data row, which is the item name in
// the export formats this package handles.
func (t *Table) Leading(row int) string {
	if row < 0 || row >= len(t.rows) || len(t.rows[row]) == 0 {
		return ""
	}
	return t.rows[row][0]
}

// Tables is an ordered collection of sections keyed by title.
type Tables struct {
	order  []*Table
	byName map[string]*Table
}

// All returns the tables in worksheet order.
func (ts *Tables) All() []*Table {
	return ts.order
}

// ByName returns the table with the given section title.
func (ts *Tables) ByName(name string) (*Table, bool) {
	t, ok := ts.byName[name]
	return t, ok
}

// ReadTables partitions worksheet rows into named tables. Rows appearing
// before the first section title are discarded. A section repeated later in
// the sheet replaces the earlier one, matching the upstream reader.
func ReadTables(rows [][]string) *Tables {
	ts := &Tables{byName: make(map[string]*Table)}

	var current [][]string
	currentName := ""
	haveSection := false
	flush := func() {
		if !haveSection {
			return
		}
		ts.add(buildTable(currentName, current))
		current = nil
	}

	for _, row := range rows {
		cells := dropTrailingEmpty(row)
		if len(cells) == 1 && cells[0] != "" {
			flush()
			currentName = cells[0]
			haveSection = true
			continue
		}
		if haveSection {
			current = append(current, cells)
		}
	}
	flush()

	return ts
}

func (ts *Tables) add(t *Table) {
	if old, ok := ts.byName[t.Name]; ok {
		for i, existing := range ts.order {
			if existing == old {
				ts.order[i] = t
				break
			}
		}
	} else {
		ts.order = append(ts.order, t)
	}
	ts.byName[t.Name] = t
}

func buildTable(name string, rows [][]string) *Table {
	t := &Table{Name: name, colIdx: make(map[string]int)}
	if len(rows) == 0 {
		return t
	}
	t.Columns = rows[0]
	for i, c := range t.Columns {
		if _, ok := t.colIdx[c]; !ok {
			t.colIdx[c] = i
		}
	}
	for _, row := range rows[1:] {
		padded := make([]string, len(t.Columns))
		for i := range padded {
			if i < len(row) {
				padded[i] = row[i]
			}
		}
		t.rows = append(t.rows, padded)
	}
	return t
}

func dropTrailingEmpty(row []string) []string {
	end := len(row)
	for end > 0 && row[end-1] == "" {
		end--
	}
	return row[:end]
}
