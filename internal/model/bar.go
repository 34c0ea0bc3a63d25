package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one consolidated OHLCV bar for a single symbol.
// Prices and volume are exact decimals; TS is the bar start time in UTC.
type Bar struct {
	Symbol string          `json:"symbol"`
	TS     time.Time       `json:"ts"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// Value returns the bar's reference price (the close).
func (b *Bar) Value() decimal.Decimal {
	return b.Close
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}

// IndicatorSnapshot holds every indicator value the strategy reads for one bar.
// It is created once per bar and never mutated afterwards.
type IndicatorSnapshot struct {
	Time          time.Time       `json:"time"`
	Close         decimal.Decimal `json:"close"`
	Volume        decimal.Decimal `json:"volume"`
	VeryFastMA    decimal.Decimal `json:"very_fast_ma"`
	FastMA        decimal.Decimal `json:"fast_ma"`
	SlowMA        decimal.Decimal `json:"slow_ma"`
	MACD          decimal.Decimal `json:"macd"`
	MACDSignal    decimal.Decimal `json:"macd_signal"`
	MACDHistogram decimal.Decimal `json:"macd_histogram"`
	ADXPlus       decimal.Decimal `json:"adx_plus"`
	ADXMinus      decimal.Decimal `json:"adx_minus"`
	ADX           decimal.Decimal `json:"adx"`
	RSI           decimal.Decimal `json:"rsi"`
	BBLower       decimal.Decimal `json:"bb_lower"`
	BBMiddle      decimal.Decimal `json:"bb_middle"`
	BBUpper       decimal.Decimal `json:"bb_upper"`
}
