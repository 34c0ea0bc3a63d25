package indicator

import "phasetrader/internal/model"

// MACD is the difference between a fast and a slow EMA of the close, with an
// EMA signal line over that difference. The histogram is MACD − signal.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA

	current float64
	hist    float64
}

// NewMACD creates a MACD with the given fast, slow and signal periods.
func NewMACD(fastPeriod, slowPeriod, signalPeriod int) *MACD {
	return &MACD{
		fast:   NewEMA(fastPeriod),
		slow:   NewEMA(slowPeriod),
		signal: NewEMA(signalPeriod),
	}
}

func (m *MACD) Name() string { return "MACD" }

func (m *MACD) Update(bar model.Bar) {
	m.fast.Update(bar)
	m.slow.Update(bar)
	if !m.fast.Ready() || !m.slow.Ready() {
		return
	}

	m.current = m.fast.Value() - m.slow.Value()
	m.signal.UpdateValue(m.current)
	if m.signal.Ready() {
		m.hist = m.current - m.signal.Value()
	}
}

// Value returns the MACD line.
func (m *MACD) Value() float64 { return m.current }

// Signal returns the signal line. Zero until it has warmed up.
func (m *MACD) Signal() float64 { return m.signal.Value() }

// Histogram returns MACD − signal.
func (m *MACD) Histogram() float64 { return m.hist }

// Ready is true once the signal line is available.
func (m *MACD) Ready() bool { return m.signal.Ready() }
