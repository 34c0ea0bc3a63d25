package strategy

import "github.com/shopspring/decimal"

// CrossState is the last observed crossing direction of two series.
type CrossState int

const (
	CrossNone CrossState = iota
	CrossUp              // a crossed above b
	CrossDown            // a crossed below b
)

func (c CrossState) String() string {
	switch c {
	case CrossUp:
		return "Up"
	case CrossDown:
		return "Down"
	default:
		return "None"
	}
}

// CrossDetector tracks crossings of series a over series b.
//
// The state is sticky: it holds the last crossing direction until the
// opposite crossing occurs, and only Reset returns it to None.
type CrossDetector struct {
	prevA, prevB decimal.Decimal
	state        CrossState
}

// Update feeds the current pair. While the previous pair is still zero
// (nothing observed yet, or just reset) the state is None.
func (d *CrossDetector) Update(a, b decimal.Decimal) {
	switch {
	case d.prevA.IsZero() && d.prevB.IsZero():
		d.state = CrossNone
	case a.GreaterThan(b) && d.prevA.LessThanOrEqual(d.prevB):
		d.state = CrossUp
	case a.LessThan(b) && d.prevA.GreaterThanOrEqual(d.prevB):
		d.state = CrossDown
	}
	d.prevA, d.prevB = a, b
}

// State returns the current crossing direction.
func (d *CrossDetector) State() CrossState { return d.state }

// Reset forgets the previous pair and the crossing direction.
func (d *CrossDetector) Reset() {
	d.prevA = decimal.Zero
	d.prevB = decimal.Zero
	d.state = CrossNone
}
