package panels

import (
	"sort"
	"time"
)

// Panel is a table indexed by strictly increasing calendar dates with one
// column per security. Cells are nullable.
type Panel struct {
	name    string
	dates   []time.Time
	columns []string
	index   map[string]int
	cells   [][]Value
}

// New creates a panel with every cell set to Null.
// Callers must pass dates that are already strictly increasing; Normalize does
// that for raw input.
func New(name string, dates []time.Time, columns []string) *Panel {
	p := &Panel{
		name:    name,
		dates:   append([]time.Time(nil), dates...),
		columns: append([]string(nil), columns...),
		index:   make(map[string]int, len(columns)),
		cells:   make([][]Value, len(dates)),
	}
	for i, c := range p.columns {
		p.index[c] = i
	}
	for i := range p.cells {
		p.cells[i] = make([]Value, len(columns))
	}
	return p
}

// NewLike creates an all-null panel with the same shape as p.
func NewLike(name string, p *Panel) *Panel {
	return New(name, p.dates, p.columns)
}

// Name returns the panel name used in errors and logs.
func (p *Panel) Name() string { return p.name }

// Dates returns the date index. The slice must not be modified.
func (p *Panel) Dates() []time.Time { return p.dates }

// Columns returns the security identifiers. The slice must not be modified.
func (p *Panel) Columns() []string { return p.columns }

// Len returns the number of rows.
func (p *Panel) Len() int { return len(p.dates) }

// Width returns the number of columns.
func (p *Panel) Width() int { return len(p.columns) }

// Date returns the date of row i.
func (p *Panel) Date(i int) time.Time { return p.dates[i] }

// At returns the cell at (row, col).
func (p *Panel) At(row, col int) Value { return p.cells[row][col] }

// Set writes the cell at (row, col).
func (p *Panel) Set(row, col int, v Value) { p.cells[row][col] = v }

// Row returns a copy of row i.
func (p *Panel) Row(i int) []Value {
	return append([]Value(nil), p.cells[i]...)
}

// SetRow overwrites row i with values, which must have Width() entries.
func (p *Panel) SetRow(i int, values []Value) {
	copy(p.cells[i], values)
}

// ColumnIndex returns the position of a security column.
func (p *Panel) ColumnIndex(symbol string) (int, bool) {
	i, ok := p.index[symbol]
	return i, ok
}

// Get returns the cell for a date and symbol, Null if either is absent.
func (p *Panel) Get(date time.Time, symbol string) Value {
	row, ok := p.IndexOf(date)
	if !ok {
		return Null
	}
	col, ok := p.ColumnIndex(symbol)
	if !ok {
		return Null
	}
	return p.cells[row][col]
}

// IndexOf returns the row holding exactly date.
func (p *Panel) IndexOf(date time.Time) (int, bool) {
	date = Day(date)
	i := sort.Search(len(p.dates), func(i int) bool { return !p.dates[i].Before(date) })
	if i < len(p.dates) && p.dates[i].Equal(date) {
		return i, true
	}
	return 0, false
}

// LatestBefore returns the last row whose date is strictly earlier than date.
// Same-day rows are never returned.
func (p *Panel) LatestBefore(date time.Time) (int, bool) {
	date = Day(date)
	i := sort.Search(len(p.dates), func(i int) bool { return !p.dates[i].Before(date) })
	if i == 0 {
		return 0, false
	}
	return i - 1, true
}

// First returns the earliest date. The panel must not be empty.
func (p *Panel) First() time.Time { return p.dates[0] }

// Clone returns a deep copy.
func (p *Panel) Clone() *Panel {
	c := New(p.name, p.dates, p.columns)
	for i := range p.cells {
		copy(c.cells[i], p.cells[i])
	}
	return c
}
