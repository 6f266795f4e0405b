package backtest

import (
	"errors"
	"fmt"

	"github.com/aristath/backtester/internal/modules/panels"
)

// SignalMode selects how the rebalance signal panel is derived.
type SignalMode string

const (
	// SignalLagged20 uses the 20-trading-day return measured as of the prior
	// close, with its own missing-value mask.
	SignalLagged20 SignalMode = "lagged20"

	// SignalReference reproduces the reference computation exactly: its
	// 20-day panel was overwritten by the cleaned 1-day returns panel, so the
	// signal on date d is the same-day 1-day return.
	SignalReference SignalMode = "reference"
)

// ErrUnknownSignalMode is returned by ParseSignalMode for unsupported names.
var ErrUnknownSignalMode = errors.New("unknown signal mode")

// ParseSignalMode validates a mode name. Empty selects SignalLagged20.
func ParseSignalMode(s string) (SignalMode, error) {
	switch SignalMode(s) {
	case "", SignalLagged20:
		return SignalLagged20, nil
	case SignalReference:
		return SignalReference, nil
	}
	return "", fmt.Errorf("%w %q (want %q or %q)", ErrUnknownSignalMode, s, SignalLagged20, SignalReference)
}

// ratio returns num/den - 1 as a cell. Missing inputs, a zero denominator
// (±Inf or 0/0) and any other non-finite result give Null.
func ratio(num, den panels.Value) panels.Value {
	if !num.Valid || !den.Valid {
		return panels.Null
	}
	if den.Float64 == 0 {
		return panels.Null
	}
	return panels.Clean(num.Float64/den.Float64 - 1)
}

// DailyReturns computes price(d)/price(d-1) - 1 row by row. Row 0 is Null.
func DailyReturns(prices *panels.Panel) *panels.Panel {
	out := panels.NewLike("returns_1d", prices)
	for i := 1; i < prices.Len(); i++ {
		for j := 0; j < prices.Width(); j++ {
			out.Set(i, j, ratio(prices.At(i, j), prices.At(i-1, j)))
		}
	}
	return out
}

// LaggedReturns computes price(d-lag)/price(d-lag-lookback) - 1 by row
// position. Rows without lag+lookback earlier rows are Null.
func LaggedReturns(prices *panels.Panel, lookback, lag int) *panels.Panel {
	out := panels.NewLike(fmt.Sprintf("returns_%dd_lag%d", lookback, lag), prices)
	for i := lag + lookback; i < prices.Len(); i++ {
		end := i - lag
		start := end - lookback
		for j := 0; j < prices.Width(); j++ {
			out.Set(i, j, ratio(prices.At(end, j), prices.At(start, j)))
		}
	}
	return out
}

// SignalPanel builds the rebalance signal for the chosen mode.
// daily must be DailyReturns(prices).
func SignalPanel(prices, daily *panels.Panel, mode SignalMode) *panels.Panel {
	if mode == SignalReference {
		return daily.Clone()
	}
	return LaggedReturns(prices, SignalLookback, SignalLag)
}
