// Package feature keeps a rolling window of per-bar indicator snapshots and
// fits least-squares trend lines over it.
//
// Lines are fitted against the sample index, x = 0 for the oldest buffered
// snapshot up to x = N-1 for the newest, so Slope is "units per bar".
package feature

import (
	talib "github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"

	"phasetrader/internal/model"
	"phasetrader/internal/ringbuf"
)

// DefaultMinSamples is the smallest number of snapshots a line is fitted on.
const DefaultMinSamples = 2

// Line is a fitted y = Intercept + Slope·x.
type Line struct {
	Intercept float64
	Slope     float64
}

// At evaluates the line at x.
func (l Line) At(x float64) float64 {
	return l.Intercept + l.Slope*x
}

// Selector picks one indicator series out of a snapshot.
type Selector func(model.IndicatorSnapshot) decimal.Decimal

// Selectors for the tracked series.
var (
	VeryFastMA Selector = func(s model.IndicatorSnapshot) decimal.Decimal { return s.VeryFastMA }
	FastMA     Selector = func(s model.IndicatorSnapshot) decimal.Decimal { return s.FastMA }
	SlowMA     Selector = func(s model.IndicatorSnapshot) decimal.Decimal { return s.SlowMA }
	MACD       Selector = func(s model.IndicatorSnapshot) decimal.Decimal { return s.MACD }
	MACDSignal Selector = func(s model.IndicatorSnapshot) decimal.Decimal { return s.MACDSignal }
	ADXPlus    Selector = func(s model.IndicatorSnapshot) decimal.Decimal { return s.ADXPlus }
	ADXMinus   Selector = func(s model.IndicatorSnapshot) decimal.Decimal { return s.ADXMinus }
	BBLower    Selector = func(s model.IndicatorSnapshot) decimal.Decimal { return s.BBLower }
	BBMiddle   Selector = func(s model.IndicatorSnapshot) decimal.Decimal { return s.BBMiddle }
	BBUpper    Selector = func(s model.IndicatorSnapshot) decimal.Decimal { return s.BBUpper }
	Close      Selector = func(s model.IndicatorSnapshot) decimal.Decimal { return s.Close }
)

// Trends holds one fitted line per tracked series. Ready is false while the
// window holds fewer snapshots than the minimum; every line is zero then.
type Trends struct {
	Ready   bool
	Samples int

	VeryFastMA Line
	FastMA     Line
	SlowMA     Line
	MACD       Line
	MACDSignal Line
	ADXPlus    Line
	ADXMinus   Line
	BBLower    Line
	BBMiddle   Line
	BBUpper    Line
}

// Window is a fixed-capacity FIFO of snapshots.
// Not safe for concurrent use.
type Window struct {
	ring       *ringbuf.Ring[model.IndicatorSnapshot]
	minSamples int
}

// New creates a window holding at most capacity snapshots, fitting lines once
// at least DefaultMinSamples are buffered.
func New(capacity int) *Window {
	return NewWithMinSamples(capacity, DefaultMinSamples)
}

// NewWithMinSamples is New with an explicit fit threshold. Values below 2 are
// raised to 2; a single point has no slope.
func NewWithMinSamples(capacity, minSamples int) *Window {
	if minSamples < DefaultMinSamples {
		minSamples = DefaultMinSamples
	}
	return &Window{
		ring:       ringbuf.New[model.IndicatorSnapshot](capacity),
		minSamples: minSamples,
	}
}

// Push appends the newest snapshot, evicting the oldest when full.
func (w *Window) Push(s model.IndicatorSnapshot) {
	w.ring.Push(s)
}

// Len returns the number of buffered snapshots.
func (w *Window) Len() int { return w.ring.Len() }

// Cap returns the window capacity.
func (w *Window) Cap() int { return w.ring.Cap() }

// MinSamples returns the fit threshold.
func (w *Window) MinSamples() int { return w.minSamples }

// Latest returns the newest snapshot.
func (w *Window) Latest() (model.IndicatorSnapshot, bool) {
	return w.ring.Last()
}

// Snapshots returns the buffered snapshots, oldest first.
func (w *Window) Snapshots() []model.IndicatorSnapshot {
	return w.ring.Values()
}

// Reset drops every buffered snapshot.
func (w *Window) Reset() { w.ring.Reset() }

// TrendLine fits sel over the buffered snapshots. ok is false, with a zero
// Line, while fewer than MinSamples snapshots are buffered.
func (w *Window) TrendLine(sel Selector) (line Line, ok bool) {
	n := w.ring.Len()
	if n < w.minSamples {
		return Line{}, false
	}
	ys := make([]float64, n)
	for i := 0; i < n; i++ {
		ys[i] = sel(w.ring.At(i)).InexactFloat64()
	}
	return fit(ys), true
}

// Trends fits every tracked series in one pass over the window.
func (w *Window) Trends() Trends {
	n := w.ring.Len()
	t := Trends{Samples: n}
	if n < w.minSamples {
		return t
	}
	snaps := w.ring.Values()
	series := func(sel Selector) Line {
		ys := make([]float64, n)
		for i, s := range snaps {
			ys[i] = sel(s).InexactFloat64()
		}
		return fit(ys)
	}

	t.Ready = true
	t.VeryFastMA = series(VeryFastMA)
	t.FastMA = series(FastMA)
	t.SlowMA = series(SlowMA)
	t.MACD = series(MACD)
	t.MACDSignal = series(MACDSignal)
	t.ADXPlus = series(ADXPlus)
	t.ADXMinus = series(ADXMinus)
	t.BBLower = series(BBLower)
	t.BBMiddle = series(BBMiddle)
	t.BBUpper = series(BBUpper)
	return t
}

// fit runs an ordinary least-squares regression of ys against 0..len-1.
// len(ys) must be at least 2.
func fit(ys []float64) Line {
	n := len(ys)
	slope := talib.LinearRegSlope(ys, n)
	intercept := talib.LinearRegIntercept(ys, n)
	return Line{Intercept: intercept[n-1], Slope: slope[n-1]}
}
