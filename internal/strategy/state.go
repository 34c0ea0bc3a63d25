package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"phasetrader/internal/feature"
	"phasetrader/internal/model"
)

// Position is the context of the current (or last) trade.
type Position struct {
	BoughtPrice decimal.Decimal // fill price of the open position, zero when flat
	MaxPrice    decimal.Decimal // running max close since entry
	SoldPrice   decimal.Decimal // fill price of the last exit
}

// PendingOrder is an emitted order that has not been filled or rejected yet.
type PendingOrder struct {
	Direction model.Direction
	Quantity  decimal.Decimal
	PrePhase  Phase // phase active when the order was emitted
	Emitted   time.Time
}

// State is everything the phase handlers decide on besides the market.
type State struct {
	Phase        Phase
	Position     Position
	VolumeStreak int // consecutive up (+) or down (−) closes
	Cross        CrossState
	Pending      *PendingOrder
}

// Tick is one bar as delivered to the Controller.
type Tick struct {
	Bar        model.Bar
	Indicators model.IndicatorSnapshot
	Holdings   decimal.Decimal // base asset held
	Cash       decimal.Decimal // quote currency available
	WarmingUp  bool
}

// Price returns the decision price of the tick (the bar close).
func (t Tick) Price() decimal.Decimal { return t.Bar.Value() }

// Market is the per-tick input of a phase handler.
type Market struct {
	Tick
	Trends feature.Trends
}

// OrderRequest is an order a handler wants emitted.
type OrderRequest struct {
	Direction model.Direction
	Quantity  decimal.Decimal
}

// Decision is the outcome of one handler evaluation.
type Decision struct {
	Next   Phase
	Order  *OrderRequest
	Reason string

	// ResetPosition clears bought and max price; the sold price is kept.
	ResetPosition bool
	ResetCross    bool
}

// stay is a decision to remain in phase p.
func stay(p Phase) Decision { return Decision{Next: p} }
