package indicator

import "phasetrader/internal/model"

// Bollinger computes Bollinger Bands: an SMA middle band with upper and lower
// bands k population standard deviations away.
type Bollinger struct {
	sma *SMA
	k   float64

	lower, middle, upper float64
}

// NewBollinger creates Bollinger Bands over period bars with multiplier k.
func NewBollinger(period int, k float64) *Bollinger {
	return &Bollinger{sma: NewSMA(period), k: k}
}

func (b *Bollinger) Name() string { return "BB" }

func (b *Bollinger) Update(bar model.Bar) {
	b.sma.Update(bar)
	if !b.sma.Ready() {
		return
	}
	b.middle = b.sma.Value()
	width := b.k * b.sma.StdDev()
	b.upper = b.middle + width
	b.lower = b.middle - width
}

// Value returns the middle band.
func (b *Bollinger) Value() float64 { return b.middle }
func (b *Bollinger) Ready() bool    { return b.sma.Ready() }

func (b *Bollinger) Lower() float64  { return b.lower }
func (b *Bollinger) Middle() float64 { return b.middle }
func (b *Bollinger) Upper() float64  { return b.upper }
