package indicator

import (
	"math"

	"phasetrader/internal/model"
)

// ADX computes Wilder's Average Directional Index together with the positive
// and negative directional indicators (+DI, −DI).
//
// +DI/−DI are available after period price changes; ADX after 2×period.
type ADX struct {
	period int
	count  int // bars received

	prevHigh, prevLow, prevClose float64

	// Wilder-smoothed sums
	trSum, plusDMSum, minusDMSum float64

	plusDI, minusDI float64

	dxSum   float64
	dxCount int
	current float64
}

// NewADX creates a new ADX indicator with the given period (typically 14).
func NewADX(period int) *ADX {
	return &ADX{period: period}
}

func (a *ADX) Name() string { return "ADX" }

func (a *ADX) Update(bar model.Bar) {
	high := bar.High.InexactFloat64()
	low := bar.Low.InexactFloat64()
	closePrice := closeOf(bar)
	a.count++

	if a.count == 1 {
		a.prevHigh, a.prevLow, a.prevClose = high, low, closePrice
		return
	}

	tr := math.Max(high-low, math.Max(math.Abs(high-a.prevClose), math.Abs(low-a.prevClose)))
	up := high - a.prevHigh
	down := a.prevLow - low
	plusDM, minusDM := 0.0, 0.0
	if up > down && up > 0 {
		plusDM = up
	}
	if down > up && down > 0 {
		minusDM = down
	}
	a.prevHigh, a.prevLow, a.prevClose = high, low, closePrice

	changes := a.count - 1
	p := float64(a.period)
	if changes <= a.period {
		// Accumulation phase: raw sums seed the smoothing
		a.trSum += tr
		a.plusDMSum += plusDM
		a.minusDMSum += minusDM
		if changes < a.period {
			return
		}
	} else {
		a.trSum = a.trSum - a.trSum/p + tr
		a.plusDMSum = a.plusDMSum - a.plusDMSum/p + plusDM
		a.minusDMSum = a.minusDMSum - a.minusDMSum/p + minusDM
	}

	if a.trSum == 0 {
		a.plusDI, a.minusDI = 0, 0
	} else {
		a.plusDI = 100 * a.plusDMSum / a.trSum
		a.minusDI = 100 * a.minusDMSum / a.trSum
	}

	dx := 0.0
	if sum := a.plusDI + a.minusDI; sum != 0 {
		dx = 100 * math.Abs(a.plusDI-a.minusDI) / sum
	}

	if a.dxCount < a.period {
		a.dxSum += dx
		a.dxCount++
		if a.dxCount == a.period {
			a.current = a.dxSum / p
		}
		return
	}
	a.current = (a.current*(p-1) + dx) / p
}

// Value returns the ADX line.
func (a *ADX) Value() float64 { return a.current }

// Ready is true once the ADX line itself is available.
func (a *ADX) Ready() bool { return a.dxCount >= a.period }

// DIReady is true once +DI/−DI are available.
func (a *ADX) DIReady() bool { return a.count-1 >= a.period }

func (a *ADX) PlusDI() float64  { return a.plusDI }
func (a *ADX) MinusDI() float64 { return a.minusDI }
