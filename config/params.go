package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"phasetrader/internal/strategy"
)

// paramsFile mirrors strategy.Params; nil fields keep the base value.
type paramsFile struct {
	AllocationFraction *float64 `yaml:"allocation_fraction"`
	TargetGainPct      *float64 `yaml:"target_gain_pct"`
	TrailingStopPct    *float64 `yaml:"trailing_stop_pct"`
	StopLossFactor     *float64 `yaml:"stop_loss_factor"`
	RSIOverbought      *float64 `yaml:"rsi_overbought"`
	MACDSlopeAngleDeg  *float64 `yaml:"macd_slope_angle_deg"`
	VolumeStreakMin    *int     `yaml:"volume_streak_min"`
	QuantityDecimals   *int32   `yaml:"quantity_decimals"`
	WindowSize         *int     `yaml:"window_size"`
	MinTrendSamples    *int     `yaml:"min_trend_samples"`
}

// LoadParams reads YAML overrides from path on top of base and validates
// the result.
func LoadParams(path string, base strategy.Params) (strategy.Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("config: read params: %w", err)
	}
	var f paramsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return base, fmt.Errorf("config: parse params %s: %w", path, err)
	}

	p := base
	setDec := func(dst *decimal.Decimal, v *float64) {
		if v != nil {
			*dst = decimal.NewFromFloat(*v)
		}
	}
	setDec(&p.AllocationFraction, f.AllocationFraction)
	setDec(&p.TargetGainPct, f.TargetGainPct)
	setDec(&p.TrailingStopPct, f.TrailingStopPct)
	setDec(&p.StopLossFactor, f.StopLossFactor)
	setDec(&p.RSIOverbought, f.RSIOverbought)
	if f.MACDSlopeAngleDeg != nil {
		p.MACDSlopeAngleDeg = *f.MACDSlopeAngleDeg
	}
	if f.VolumeStreakMin != nil {
		p.VolumeStreakMin = *f.VolumeStreakMin
	}
	if f.QuantityDecimals != nil {
		p.QuantityDecimals = *f.QuantityDecimals
	}
	if f.WindowSize != nil {
		p.WindowSize = *f.WindowSize
	}
	if f.MinTrendSamples != nil {
		p.MinTrendSamples = *f.MinTrendSamples
	}

	if err := p.Validate(); err != nil {
		return base, fmt.Errorf("config: params %s: %w", path, err)
	}
	return p, nil
}
