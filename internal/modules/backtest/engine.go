// Package backtest implements the monthly top-cap momentum rebalancing engine
// and the additive P&L index it produces.
package backtest

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/backtester/internal/modules/panels"
)

// Fixed parameters of the strategy.
const (
	UniverseSize   = 10  // securities held after each rebalance
	SignalLookback = 20  // trading days in the momentum window
	SignalLag      = 1   // the window ends at the prior close
	BookSize       = 1.0 // gross exposure written on every rebalance
)

// Point is one dated value of an output series.
type Point struct {
	Date  time.Time `json:"date" msgpack:"date"`
	Value float64   `json:"value" msgpack:"value"`
}

// Series is a dated scalar series ordered by date.
type Series []Point

// Values returns the series values in date order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Value
	}
	return out
}

// Last returns the final point, or false for an empty series.
func (s Series) Last() (Point, bool) {
	if len(s) == 0 {
		return Point{}, false
	}
	return s[len(s)-1], true
}

// Rebalance records one rebalance decision.
// Signals and Weights are aligned with Universe.Members.
type Rebalance struct {
	Date      time.Time  `json:"date" msgpack:"date"`
	Universe  Universe   `json:"universe" msgpack:"universe"`
	Signals   []*float64 `json:"signals" msgpack:"signals"`
	Weights   []float64  `json:"weights" msgpack:"weights"`
	Weighting Weighting  `json:"weighting" msgpack:"weighting"`
	Gross     float64    `json:"gross" msgpack:"gross"`
}

// Observer is notified after every rebalance, in date order.
type Observer func(Rebalance)

// Config configures an Engine.
type Config struct {
	SignalMode SignalMode
	Observer   Observer
}

// Result is the output of a run.
type Result struct {
	SignalMode SignalMode
	// Index is BookSize plus the running sum of Daily.
	Index Series
	// Daily holds the realized return of every price date (0 on the first).
	Daily Series
	// Weights is the forward-filled weights panel, same shape as prices.
	Weights    *panels.Panel
	Rebalances []Rebalance
}

// Engine runs the rebalance-and-P&L pass. It holds no state between runs.
type Engine struct {
	cfg Config
	log zerolog.Logger
}

// NewEngine creates a new engine.
func NewEngine(cfg Config, log zerolog.Logger) *Engine {
	if cfg.SignalMode == "" {
		cfg.SignalMode = SignalLagged20
	}
	return &Engine{
		cfg: cfg,
		log: log.With().Str("component", "backtest_engine").Logger(),
	}
}

// SignalMode returns the configured signal source.
func (e *Engine) SignalMode() SignalMode {
	return e.cfg.SignalMode
}

// scanState is the fold value threaded through the date loop.
type scanState struct {
	period panels.YearMonth
}

// beforeAllData precedes every real date, so the first price date rebalances.
var beforeAllData = panels.YearMonth{Year: 1900, Month: time.January}

// runInputs groups the panels read during the scan.
type runInputs struct {
	prices  *panels.Panel
	caps    *panels.Panel
	signal  *panels.Panel
	weights *panels.Panel
}

// Run processes the price dates in ascending order and returns the index.
// prices and caps must come from the aligner (or satisfy the same contract).
func (e *Engine) Run(prices, caps *panels.Panel) (*Result, error) {
	if err := panels.CheckHistory(prices, caps); err != nil {
		return nil, err
	}

	daily := DailyReturns(prices)
	in := runInputs{
		prices:  prices,
		caps:    caps,
		signal:  SignalPanel(prices, daily, e.cfg.SignalMode),
		weights: panels.NewLike("weights", prices),
	}

	explicit := make([]bool, prices.Len())
	rebalances := make([]Rebalance, 0, 16)

	state := scanState{period: beforeAllData}
	for i, d := range prices.Dates() {
		next, reb, err := e.step(state, i, d, in)
		if err != nil {
			return nil, err
		}
		if reb != nil {
			explicit[i] = true
			rebalances = append(rebalances, *reb)
			if e.cfg.Observer != nil {
				e.cfg.Observer(*reb)
			}
		}
		state = next
	}

	forwardFill(in.weights, explicit)

	realized, index := accumulate(daily, in.weights)

	e.log.Info().
		Str("signal_mode", string(e.cfg.SignalMode)).
		Int("dates", prices.Len()).
		Int("securities", prices.Width()).
		Int("rebalances", len(rebalances)).
		Float64("final_value", index[len(index)-1].Value).
		Msg("Backtest completed")

	return &Result{
		SignalMode: e.cfg.SignalMode,
		Index:      index,
		Daily:      realized,
		Weights:    in.weights,
		Rebalances: rebalances,
	}, nil
}

// step handles one price date. It rebalances when the date opens a new
// calendar month relative to state.period.
func (e *Engine) step(state scanState, row int, date time.Time, in runInputs) (scanState, *Rebalance, error) {
	ym := panels.YearMonthOf(date)
	if !ym.After(state.period) {
		return state, nil, nil
	}

	reb, err := e.rebalance(row, date, in)
	if err != nil {
		return state, nil, err
	}

	return scanState{period: ym}, reb, nil
}

// rebalance selects the universe, reads the signal and writes a full weight
// row. Columns outside the universe get an explicit 0.
func (e *Engine) rebalance(row int, date time.Time, in runInputs) (*Rebalance, error) {
	eligible := func(symbol string) bool {
		_, ok := in.prices.ColumnIndex(symbol)
		return ok
	}

	universe, err := SelectUniverse(in.caps, date, eligible, UniverseSize)
	if err != nil {
		return nil, fmt.Errorf("rebalance on %s: %w", panels.FormatDate(date), err)
	}

	signals := make([]panels.Value, len(universe.Members))
	for i, m := range universe.Members {
		signals[i] = in.signal.Get(date, m.Symbol)
	}

	weights, weighting := AssignWeights(signals, BookSize)

	for j := 0; j < in.weights.Width(); j++ {
		in.weights.Set(row, j, panels.Some(0))
	}
	for i, m := range universe.Members {
		col, _ := in.prices.ColumnIndex(m.Symbol)
		in.weights.Set(row, col, panels.Some(weights[i]))
	}

	reb := &Rebalance{
		Date:      date,
		Universe:  universe,
		Signals:   make([]*float64, len(signals)),
		Weights:   weights,
		Weighting: weighting,
		Gross:     GrossExposure(weights),
	}
	for i, s := range signals {
		reb.Signals[i] = s.Ptr()
	}

	if weighting == WeightingEmpty {
		e.log.Warn().
			Str("date", panels.FormatDate(date)).
			Str("cap_date", panels.FormatDate(universe.CapDate)).
			Msg("No market caps available, holding zero weights until next rebalance")
	} else {
		e.log.Debug().
			Str("date", panels.FormatDate(date)).
			Str("cap_date", panels.FormatDate(universe.CapDate)).
			Strs("universe", universe.Symbols()).
			Str("weighting", string(weighting)).
			Float64("gross", reb.Gross).
			Msg("Rebalanced")
	}

	return reb, nil
}

// forwardFill copies the latest explicit row into every following row that
// has no explicit weights. Rows before the first explicit row stay null.
func forwardFill(weights *panels.Panel, explicit []bool) {
	last := -1
	for i := 0; i < weights.Len(); i++ {
		if explicit[i] {
			last = i
			continue
		}
		if last >= 0 {
			weights.SetRow(i, weights.Row(last))
		}
	}
}

// accumulate computes realized[d] = Σ ret[d] × w[d-1] (nulls contribute 0)
// and index[d] = BookSize + Σ_{t≤d} realized[t].
func accumulate(daily, weights *panels.Panel) (Series, Series) {
	n := daily.Len()
	realized := make(Series, n)
	index := make(Series, n)

	cum := 0.0
	for i := 0; i < n; i++ {
		pnl := 0.0
		if i > 0 {
			for j := 0; j < daily.Width(); j++ {
				r, okR := daily.At(i, j).Get()
				w, okW := weights.At(i-1, j).Get()
				if okR && okW {
					pnl += r * w
				}
			}
		}
		cum += pnl
		realized[i] = Point{Date: daily.Date(i), Value: pnl}
		index[i] = Point{Date: daily.Date(i), Value: BookSize + cum}
	}

	return realized, index
}

// BuildPortfolio aligns the raw panels and runs the default engine.
func BuildPortfolio(prices, caps panels.RawPanel, log zerolog.Logger) (Series, error) {
	p, c, err := panels.Align(prices, caps)
	if err != nil {
		return nil, err
	}

	result, err := NewEngine(Config{}, log).Run(p, c)
	if err != nil {
		return nil, err
	}

	return result.Index, nil
}
