package strategy

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Params holds the thresholds of the phase handlers. One Params value
// replaces per-symbol copies of the same strategy.
type Params struct {
	// AllocationFraction of quote cash spent on a BUY.
	AllocationFraction decimal.Decimal
	// TargetGainPct over the bought price that counts as "target achieved".
	TargetGainPct decimal.Decimal
	// TrailingStopPct retracement from the max price since entry.
	TrailingStopPct decimal.Decimal
	// StopLossFactor × bought price is the hard stop level.
	StopLossFactor decimal.Decimal
	// RSIOverbought level confirming a gain exit.
	RSIOverbought decimal.Decimal
	// MACDSlopeAngleDeg is the small-angle MACD slope threshold, in degrees.
	MACDSlopeAngleDeg float64
	// VolumeStreakMin consecutive up closes needed by the streak buy gate.
	VolumeStreakMin int
	// QuantityDecimals the order quantity is truncated to.
	QuantityDecimals int32
	// WindowSize of the feature window, in bars.
	WindowSize int
	// MinTrendSamples before trend lines are fitted.
	MinTrendSamples int
}

// DefaultParams returns the thresholds of the hourly ETH/EUR configuration.
func DefaultParams() Params {
	return Params{
		AllocationFraction: decimal.RequireFromString("0.8"),
		TargetGainPct:      decimal.RequireFromString("0.04"),
		TrailingStopPct:    decimal.RequireFromString("0.01"),
		StopLossFactor:     decimal.RequireFromString("0.97"),
		RSIOverbought:      decimal.NewFromInt(65),
		MACDSlopeAngleDeg:  30,
		VolumeStreakMin:    2,
		QuantityDecimals:   3,
		WindowSize:         10,
		MinTrendSamples:    2,
	}
}

// MACDSlopeMax returns the MACD slope threshold in radians.
func (p Params) MACDSlopeMax() float64 {
	return p.MACDSlopeAngleDeg * math.Pi / 180.0
}

// Validate rejects thresholds that would make a handler meaningless.
func (p Params) Validate() error {
	one := decimal.NewFromInt(1)
	switch {
	case !p.AllocationFraction.IsPositive() || p.AllocationFraction.GreaterThan(one):
		return fmt.Errorf("strategy: allocation fraction must be in (0, 1], got %s", p.AllocationFraction)
	case p.TargetGainPct.IsNegative():
		return fmt.Errorf("strategy: target gain must be >= 0, got %s", p.TargetGainPct)
	case p.TrailingStopPct.IsNegative() || p.TrailingStopPct.GreaterThanOrEqual(one):
		return fmt.Errorf("strategy: trailing stop must be in [0, 1), got %s", p.TrailingStopPct)
	case !p.StopLossFactor.IsPositive() || p.StopLossFactor.GreaterThan(one):
		return fmt.Errorf("strategy: stop loss factor must be in (0, 1], got %s", p.StopLossFactor)
	case p.WindowSize < 2:
		return fmt.Errorf("strategy: window size must be >= 2, got %d", p.WindowSize)
	case p.MinTrendSamples > p.WindowSize:
		return fmt.Errorf("strategy: min trend samples %d exceeds window size %d", p.MinTrendSamples, p.WindowSize)
	case p.QuantityDecimals < 0:
		return fmt.Errorf("strategy: quantity decimals must be >= 0, got %d", p.QuantityDecimals)
	}
	return nil
}
