// Package execution turns strategy signals into order events.
//
// The PaperExecutor simulates a market order against the bar the signal was
// produced on and books the fill in the cash book. Fills can be recorded to
// a Journal for analysis and audit.
package execution

import (
	"time"

	"github.com/shopspring/decimal"

	"phasetrader/internal/strategy"
)

// Fill represents a simulated order fill.
type Fill struct {
	OrderID  string          `json:"order_id"`
	Signal   strategy.Signal `json:"signal"`
	Price    decimal.Decimal `json:"price"`
	Qty      decimal.Decimal `json:"qty"`
	Fee      decimal.Decimal `json:"fee"`
	Slippage decimal.Decimal `json:"slippage"` // per unit, in quote currency
	FilledAt time.Time       `json:"filled_at"`
}

// FillRecorder persists fills.
type FillRecorder interface {
	RecordFill(fill Fill) error
}
