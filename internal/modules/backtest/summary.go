package backtest

import (
	"time"

	"github.com/aristath/backtester/pkg/formulas"
)

// VolatilityWindow is the trailing window of Summary.RecentVolatility, about
// one trading month.
const VolatilityWindow = 21

// Summary condenses a Result into headline statistics.
type Summary struct {
	SignalMode           SignalMode        `json:"signal_mode" msgpack:"signal_mode"`
	FirstDate            time.Time         `json:"first_date" msgpack:"first_date"`
	LastDate             time.Time         `json:"last_date" msgpack:"last_date"`
	Days                 int               `json:"days" msgpack:"days"`
	FinalValue           float64           `json:"final_value" msgpack:"final_value"`
	TotalPnL             float64           `json:"total_pnl" msgpack:"total_pnl"`
	AnnualizedReturn     float64           `json:"annualized_return" msgpack:"annualized_return"`
	AnnualizedVolatility float64           `json:"annualized_volatility" msgpack:"annualized_volatility"`
	SharpeRatio          *float64          `json:"sharpe_ratio,omitempty" msgpack:"sharpe_ratio"`
	RecentVolatility     *float64          `json:"recent_volatility,omitempty" msgpack:"recent_volatility"`
	MaxDrawdown          float64           `json:"max_drawdown" msgpack:"max_drawdown"`
	Rebalances           int               `json:"rebalances" msgpack:"rebalances"`
	AvgUniverseSize      float64           `json:"avg_universe_size" msgpack:"avg_universe_size"`
	Weightings           map[Weighting]int `json:"weightings" msgpack:"weightings"`
}

// Summarize computes the summary of a run.
// The first daily value is excluded from return statistics: no position is
// held into the first date.
func Summarize(r *Result) Summary {
	s := Summary{
		SignalMode: r.SignalMode,
		Days:       len(r.Index),
		Rebalances: len(r.Rebalances),
		Weightings: make(map[Weighting]int),
	}

	if len(r.Index) == 0 {
		return s
	}

	s.FirstDate = r.Index[0].Date
	last, _ := r.Index.Last()
	s.LastDate = last.Date
	s.FinalValue = last.Value
	s.TotalPnL = last.Value - BookSize

	daily := r.Daily.Values()
	if len(daily) > 1 {
		daily = daily[1:]
	}
	s.AnnualizedReturn = formulas.AnnualizedArithmeticReturn(daily)
	s.AnnualizedVolatility = formulas.AnnualizedVolatility(daily)
	s.SharpeRatio = formulas.CalculateSharpeRatio(daily, 0, formulas.TradingDaysPerYear)

	if vol := RollingVolatility(r, VolatilityWindow); len(vol) > 0 {
		s.RecentVolatility = vol[len(vol)-1]
	}

	if dd := formulas.CalculateMaxDrawdown(r.Index.Values()); dd != nil {
		s.MaxDrawdown = *dd
	}

	members := 0
	for _, reb := range r.Rebalances {
		members += len(reb.Universe.Members)
		s.Weightings[reb.Weighting]++
	}
	if len(r.Rebalances) > 0 {
		s.AvgUniverseSize = float64(members) / float64(len(r.Rebalances))
	}

	return s
}

// RollingVolatility returns the annualized trailing volatility of the daily
// P&L, aligned with r.Daily.
func RollingVolatility(r *Result, window int) []*float64 {
	return formulas.RollingVolatility(r.Daily.Values(), window)
}
