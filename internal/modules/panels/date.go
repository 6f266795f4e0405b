package panels

import (
	"fmt"
	"strings"
	"time"
)

// DateFormat is the canonical representation of panel dates.
const DateFormat = "2006-01-02"

// dateLayouts are tried in order by ParseDate.
var dateLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	"2006/01/02",
	"2006/1/2",
	"01/02/2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

// ParseDate parses a date-like string and truncates it to a calendar day (UTC midnight).
// A time component, if present, is dropped.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid date %q, want format %q", s, DateFormat)
}

// Day returns the calendar day of t as UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// Date builds a calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// FormatDate formats a panel date.
func FormatDate(t time.Time) string {
	return t.Format(DateFormat)
}

// YearMonth identifies a calendar month. It orders lexicographically on (Year, Month).
type YearMonth struct {
	Year  int
	Month time.Month
}

// YearMonthOf returns the calendar month of t.
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// After reports whether ym is a later month than other.
func (ym YearMonth) After(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year > other.Year
	}
	return ym.Month > other.Month
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}
