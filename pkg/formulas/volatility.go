package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// RollingVolatility returns the annualized rolling standard deviation of daily
// returns over window observations. Entries before the first full window are nil.
func RollingVolatility(dailyReturns []float64, window int) []*float64 {
	out := make([]*float64, len(dailyReturns))
	if window < 2 || len(dailyReturns) < window {
		return out
	}

	// talib.StdDev is the population deviation over each trailing window
	sd := talib.StdDev(dailyReturns, window, 1.0)
	for i := window - 1; i < len(sd) && i < len(out); i++ {
		if math.IsNaN(sd[i]) {
			continue
		}
		v := sd[i] * math.Sqrt(TradingDaysPerYear)
		out[i] = &v
	}
	return out
}
