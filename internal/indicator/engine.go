package indicator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"phasetrader/internal/model"
)

// BankConfig specifies the periods of every indicator in a Bank.
type BankConfig struct {
	VeryFastPeriod int     // very fast EMA
	FastPeriod     int     // fast EMA
	SlowPeriod     int     // slow EMA
	MACDFast       int     // MACD fast EMA
	MACDSlow       int     // MACD slow EMA
	MACDSignal     int     // MACD signal EMA
	ADXPeriod      int     // ADX / DI smoothing
	RSIPeriod      int     // RSI smoothing
	BBPeriod       int     // Bollinger SMA window
	BBK            float64 // Bollinger width in standard deviations
}

// DefaultBankConfig returns the hourly-bar configuration: EMAs 12/26/55,
// MACD(12, 55, 26), ADX over the mean of the fast and very fast periods,
// RSI 26 and Bollinger(26, 1.0).
func DefaultBankConfig() BankConfig {
	return BankConfig{
		VeryFastPeriod: 12,
		FastPeriod:     26,
		SlowPeriod:     55,
		MACDFast:       12,
		MACDSlow:       55,
		MACDSignal:     26,
		ADXPeriod:      (26 + 12) / 2,
		RSIPeriod:      26,
		BBPeriod:       26,
		BBK:            1.0,
	}
}

// Validate checks that every period is positive.
func (c BankConfig) Validate() error {
	periods := map[string]int{
		"very_fast": c.VeryFastPeriod, "fast": c.FastPeriod, "slow": c.SlowPeriod,
		"macd_fast": c.MACDFast, "macd_slow": c.MACDSlow, "macd_signal": c.MACDSignal,
		"adx": c.ADXPeriod, "rsi": c.RSIPeriod, "bb": c.BBPeriod,
	}
	for name, p := range periods {
		if p <= 0 {
			return fmt.Errorf("indicator: %s period must be > 0, got %d", name, p)
		}
	}
	if c.BBK <= 0 {
		return fmt.Errorf("indicator: bollinger k must be > 0, got %g", c.BBK)
	}
	return nil
}

// Bank owns the live indicator instances for one symbol and produces one
// IndicatorSnapshot per bar.
// Designed for single-goroutine usage; it takes no locks.
type Bank struct {
	symbol string
	cfg    BankConfig

	veryFast *EMA
	fast     *EMA
	slow     *EMA
	macd     *MACD
	adx      *ADX
	rsi      *RSI
	bb       *Bollinger

	all   []Indicator
	count int
}

// NewBank creates a Bank for symbol.
func NewBank(symbol string, cfg BankConfig) *Bank {
	b := &Bank{
		symbol:   symbol,
		cfg:      cfg,
		veryFast: NewEMA(cfg.VeryFastPeriod),
		fast:     NewEMA(cfg.FastPeriod),
		slow:     NewEMA(cfg.SlowPeriod),
		macd:     NewMACD(cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal),
		adx:      NewADX(cfg.ADXPeriod),
		rsi:      NewRSI(cfg.RSIPeriod),
		bb:       NewBollinger(cfg.BBPeriod, cfg.BBK),
	}
	b.all = []Indicator{b.veryFast, b.fast, b.slow, b.macd, b.adx, b.rsi, b.bb}
	return b
}

// Symbol returns the symbol this bank tracks.
func (b *Bank) Symbol() string { return b.symbol }

// Update feeds bar to every indicator (one pass) and returns the resulting
// snapshot. ready is false while any indicator is still warming up; the
// snapshot then contains zeros for the indicators that are not ready.
func (b *Bank) Update(bar model.Bar) (snap model.IndicatorSnapshot, ready bool) {
	for _, ind := range b.all {
		ind.Update(bar)
	}
	b.count++

	snap = model.IndicatorSnapshot{
		Time:          bar.TS,
		Close:         bar.Close,
		Volume:        bar.Volume,
		VeryFastMA:    dec(b.veryFast.Value()),
		FastMA:        dec(b.fast.Value()),
		SlowMA:        dec(b.slow.Value()),
		MACD:          dec(b.macd.Value()),
		MACDSignal:    dec(b.macd.Signal()),
		MACDHistogram: dec(b.macd.Histogram()),
		ADXPlus:       dec(b.adx.PlusDI()),
		ADXMinus:      dec(b.adx.MinusDI()),
		ADX:           dec(b.adx.Value()),
		RSI:           dec(b.rsi.Value()),
		BBLower:       dec(b.bb.Lower()),
		BBMiddle:      dec(b.bb.Middle()),
		BBUpper:       dec(b.bb.Upper()),
	}
	return snap, b.Ready()
}

// Ready returns true when every indicator has enough data.
func (b *Bank) Ready() bool {
	for _, ind := range b.all {
		if !ind.Ready() {
			return false
		}
	}
	return true
}

// Count returns the number of bars processed.
func (b *Bank) Count() int { return b.count }

// WarmupBars returns the number of bars after which every indicator is ready.
func (c BankConfig) WarmupBars() int {
	n := c.VeryFastPeriod
	for _, p := range []int{
		c.FastPeriod,
		c.SlowPeriod,
		c.RSIPeriod + 1,
		c.BBPeriod,
		2 * c.ADXPeriod,
		max(c.MACDFast, c.MACDSlow) + c.MACDSignal - 1,
	} {
		if p > n {
			n = p
		}
	}
	return n
}

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}
