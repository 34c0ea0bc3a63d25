package indicator

import (
	"math"

	"phasetrader/internal/model"
)

// SMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer for zero-allocation hot path.
type SMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	sum     float64
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return "SMA" }

func (s *SMA) Update(bar model.Bar) {
	s.UpdateValue(closeOf(bar))
}

// UpdateValue feeds a raw value into the window.
func (s *SMA) UpdateValue(price float64) {
	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = price
	s.sum += price
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }

// StdDev returns the population standard deviation of the current window.
// Returns 0 until the window is full.
func (s *SMA) StdDev() float64 {
	if s.count < s.period {
		return 0
	}
	mean := s.sum / float64(s.period)
	var sq float64
	for _, v := range s.buf {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(s.period))
}

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = 0
	s.current = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}
