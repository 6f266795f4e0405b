package panels

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Errors returned by the aligner.
var (
	ErrEmptyPanel          = errors.New("panel has no rows")
	ErrNoColumns           = errors.New("panel has no security columns")
	ErrDuplicateDate       = errors.New("duplicate date in panel")
	ErrDuplicateColumn     = errors.New("duplicate security column in panel")
	ErrRowWidth            = errors.New("row width does not match column count")
	ErrInvalidDate         = errors.New("invalid date in panel")
	ErrInsufficientHistory = errors.New("first date for market cap must be earlier than for prices")
)

// RawRow is one unaligned observation row. Date is any string ParseDate accepts.
type RawRow struct {
	Date   string
	Values []Value
}

// RawPanel is a table as delivered by a loader: an explicit date column plus
// one column per security, in arbitrary row order.
type RawPanel struct {
	Name    string
	Columns []string
	Rows    []RawRow
}

// Normalize parses the date column, sorts rows ascending and builds a Panel.
// Duplicate dates, duplicate columns and ragged rows are rejected.
func Normalize(raw RawPanel) (*Panel, error) {
	name := raw.Name
	if name == "" {
		name = "panel"
	}

	if len(raw.Rows) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrEmptyPanel)
	}
	if len(raw.Columns) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrNoColumns)
	}

	seenCols := make(map[string]struct{}, len(raw.Columns))
	for _, c := range raw.Columns {
		if _, dup := seenCols[c]; dup {
			return nil, fmt.Errorf("%s: %w: %q", name, ErrDuplicateColumn, c)
		}
		seenCols[c] = struct{}{}
	}

	type parsedRow struct {
		date   time.Time
		values []Value
	}

	rows := make([]parsedRow, 0, len(raw.Rows))
	for i, r := range raw.Rows {
		if len(r.Values) != len(raw.Columns) {
			return nil, fmt.Errorf("%s row %d (%s): %w: got %d values, want %d",
				name, i, r.Date, ErrRowWidth, len(r.Values), len(raw.Columns))
		}
		d, err := ParseDate(r.Date)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w: %v", name, i, ErrInvalidDate, err)
		}
		rows = append(rows, parsedRow{date: d, values: r.Values})
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].date.Before(rows[j].date) })

	dates := make([]time.Time, len(rows))
	for i, r := range rows {
		if i > 0 && r.date.Equal(rows[i-1].date) {
			return nil, fmt.Errorf("%s: %w: %s", name, ErrDuplicateDate, FormatDate(r.date))
		}
		dates[i] = r.date
	}

	p := New(name, dates, raw.Columns)
	for i, r := range rows {
		for j, v := range r.values {
			if v.Valid {
				p.Set(i, j, Clean(v.Float64))
			}
		}
	}

	return p, nil
}

// CheckHistory validates that market-cap history starts strictly before the
// price history, so a cap row earlier than the first price date always exists.
func CheckHistory(prices, caps *Panel) error {
	if prices == nil || prices.Len() == 0 {
		return fmt.Errorf("prices: %w", ErrEmptyPanel)
	}
	if caps == nil || caps.Len() == 0 {
		return fmt.Errorf("market caps: %w", ErrEmptyPanel)
	}
	if !caps.First().Before(prices.First()) {
		return fmt.Errorf("%w: market cap starts %s, prices start %s",
			ErrInsufficientHistory, FormatDate(caps.First()), FormatDate(prices.First()))
	}
	return nil
}

// Align normalizes both raw panels onto calendar-date indexes and validates the
// history precondition. The panels keep their own date sets; nothing is joined.
func Align(prices, caps RawPanel) (*Panel, *Panel, error) {
	if prices.Name == "" {
		prices.Name = "prices"
	}
	if caps.Name == "" {
		caps.Name = "market caps"
	}

	pricePanel, err := Normalize(prices)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to normalize price panel: %w", err)
	}

	capPanel, err := Normalize(caps)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to normalize market cap panel: %w", err)
	}

	if err := CheckHistory(pricePanel, capPanel); err != nil {
		return nil, nil, err
	}

	return pricePanel, capPanel, nil
}
