package backtest

import (
	"gonum.org/v1/gonum/floats"

	"github.com/aristath/backtester/internal/modules/panels"
)

// Weighting names the rule that produced a rebalance's weights.
type Weighting string

const (
	// WeightingSignal: w[i] = signal[i] / Σ|signal| × book.
	WeightingSignal Weighting = "signal"
	// WeightingEqual: every member gets book / k.
	WeightingEqual Weighting = "equal"
	// WeightingEmpty: no member had a market cap, every weight is 0.
	WeightingEmpty Weighting = "empty"
)

// AssignWeights turns the members' signals into weights, one per signal,
// in the same order.
//
// When at least one signal is present and the gross signal Σ|signal| is
// non-zero, weights follow the signal and null signals get 0. When every
// signal is null, or every present signal is exactly 0, the book is split
// equally. An empty universe yields no weights.
func AssignWeights(signals []panels.Value, book float64) ([]float64, Weighting) {
	k := len(signals)
	if k == 0 {
		return nil, WeightingEmpty
	}

	weights := make([]float64, k)

	gross := panels.SumAbsSkipNull(signals)
	if panels.AnyValid(signals) && gross > 0 {
		for i, s := range signals {
			weights[i] = s.OrZero()
		}
		floats.Scale(book/gross, weights)
		return weights, WeightingSignal
	}

	for i := range weights {
		weights[i] = book / float64(k)
	}
	return weights, WeightingEqual
}

// GrossExposure returns Σ|w|.
func GrossExposure(weights []float64) float64 {
	if len(weights) == 0 {
		return 0
	}
	return floats.Norm(weights, 1)
}
