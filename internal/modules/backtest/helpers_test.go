package backtest

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/backtester/internal/modules/panels"
)

var nan = math.NaN()

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func d(year int, month time.Month, day int) time.Time {
	return panels.Date(year, month, day)
}

// businessDays returns n weekdays starting at start (inclusive if a weekday).
func businessDays(start time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	for day := start; len(out) < n; day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		out = append(out, day)
	}
	return out
}

// businessDaysUntil returns every weekday in [start, end].
func businessDaysUntil(start, end time.Time) []time.Time {
	var out []time.Time
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		out = append(out, day)
	}
	return out
}

// buildPanel creates a panel whose cell (i, j) is value(i, symbol). NaN means null.
func buildPanel(name string, dates []time.Time, columns []string, value func(i int, symbol string) float64) *panels.Panel {
	p := panels.New(name, dates, columns)
	for i := range dates {
		for j, c := range columns {
			v := value(i, c)
			if math.IsNaN(v) {
				continue
			}
			p.Set(i, j, panels.Some(v))
		}
	}
	return p
}

func symbols(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("S%02d", i)
	}
	return out
}

func runEngine(t *testing.T, mode SignalMode, prices, caps *panels.Panel) *Result {
	t.Helper()
	result, err := NewEngine(Config{SignalMode: mode}, testLogger()).Run(prices, caps)
	require.NoError(t, err)
	return result
}

func weightOf(t *testing.T, result *Result, row int, symbol string) panels.Value {
	t.Helper()
	col, ok := result.Weights.ColumnIndex(symbol)
	require.True(t, ok, "unknown symbol %s", symbol)
	return result.Weights.At(row, col)
}
