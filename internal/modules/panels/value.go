// Package panels provides date-indexed tables of nullable values and the
// aligner that turns raw price / market-cap tables into validated panels.
package panels

import (
	"fmt"
	"math"
)

// Value is a single nullable panel cell.
// Valid is false when the cell holds no observation.
type Value struct {
	Float64 float64
	Valid   bool
}

// Null is the missing cell.
var Null = Value{}

// Some returns a valid cell holding f.
func Some(f float64) Value {
	return Value{Float64: f, Valid: true}
}

// Clean returns a valid cell for finite f and Null for NaN or ±Inf.
// Every derived panel goes through Clean before its values are used.
func Clean(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null
	}
	return Some(f)
}

// Get returns the value and whether it is present.
func (v Value) Get() (float64, bool) {
	return v.Float64, v.Valid
}

// OrZero returns the value, or 0 when the cell is missing.
func (v Value) OrZero() float64 {
	if !v.Valid {
		return 0
	}
	return v.Float64
}

// Ptr returns a pointer to the value, or nil when missing.
func (v Value) Ptr() *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func (v Value) String() string {
	if !v.Valid {
		return "null"
	}
	return fmt.Sprintf("%g", v.Float64)
}

// SumAbsSkipNull adds the absolute values of all present values.
func SumAbsSkipNull(values []Value) float64 {
	sum := 0.0
	for _, v := range values {
		if v.Valid {
			sum += math.Abs(v.Float64)
		}
	}
	return sum
}

// AnyValid reports whether at least one value is present.
func AnyValid(values []Value) bool {
	for _, v := range values {
		if v.Valid {
			return true
		}
	}
	return false
}
