// Package indicator provides streaming technical indicator calculations over bars.
//
// All indicators implement the Indicator interface, receiving bars and
// producing float64 values. Multi-line indicators (MACD, Bollinger, ADX)
// expose their extra lines through dedicated accessors. A Bank groups the
// indicators one trading strategy needs and turns each bar into a
// model.IndicatorSnapshot.
package indicator

import "phasetrader/internal/model"

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "EMA", "RSI").
	Name() string

	// Update feeds a new bar and recalculates.
	Update(bar model.Bar)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}

// closeOf converts a bar close to float64 for the indicator math.
func closeOf(bar model.Bar) float64 {
	return bar.Close.InexactFloat64()
}
