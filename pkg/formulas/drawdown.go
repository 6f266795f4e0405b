package formulas

// DrawdownMetrics represents drawdown analysis results
type DrawdownMetrics struct {
	MaxDrawdown     float64 `json:"max_drawdown"`     // Largest peak-to-trough fall, as a fraction of the peak
	CurrentDrawdown float64 `json:"current_drawdown"` // Fall from the peak to the last value
	DaysInDrawdown  int     `json:"days_in_drawdown"` // Observations since the peak
	PeakValue       float64 `json:"peak_value"`
	CurrentValue    float64 `json:"current_value"`
}

// CalculateDrawdownMetrics measures drawdowns of a value series (e.g. the
// backtest index). Peaks at or below zero are skipped when computing relative
// drawdowns. Returns nil for fewer than two values.
func CalculateDrawdownMetrics(values []float64) *DrawdownMetrics {
	if len(values) < 2 {
		return nil
	}

	maxDrawdown := 0.0
	peak := values[0]
	peakIndex := 0

	for i, v := range values {
		if v > peak {
			peak = v
			peakIndex = i
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
	}

	current := values[len(values)-1]
	currentDrawdown := 0.0
	if peak > 0 {
		currentDrawdown = (peak - current) / peak
	}

	return &DrawdownMetrics{
		MaxDrawdown:     maxDrawdown,
		CurrentDrawdown: currentDrawdown,
		DaysInDrawdown:  len(values) - 1 - peakIndex,
		PeakValue:       peak,
		CurrentValue:    current,
	}
}

// CalculateMaxDrawdown returns only the maximum drawdown, or nil for fewer than two values.
func CalculateMaxDrawdown(values []float64) *float64 {
	m := CalculateDrawdownMetrics(values)
	if m == nil {
		return nil
	}
	return &m.MaxDrawdown
}
