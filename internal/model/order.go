package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of an order.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// OrderStatus is the lifecycle state reported for an order.
type OrderStatus string

const (
	OrderSubmitted OrderStatus = "SUBMITTED"
	OrderFilled    OrderStatus = "FILLED"
	OrderInvalid   OrderStatus = "INVALID"
)

// OrderEvent is reported by the execution layer for every order state change.
type OrderEvent struct {
	OrderID   string          `json:"order_id"`
	Symbol    string          `json:"symbol"`
	Direction Direction       `json:"direction"`
	Status    OrderStatus     `json:"status"`
	Quantity  decimal.Decimal `json:"quantity"`
	FillPrice decimal.Decimal `json:"fill_price"`
	Fee       decimal.Decimal `json:"fee"`
	Time      time.Time       `json:"time"`
	Message   string          `json:"message,omitempty"`
}

// JSON returns the JSON-encoded event.
func (e *OrderEvent) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Notional returns quantity × fill price.
func (e *OrderEvent) Notional() decimal.Decimal {
	return e.Quantity.Mul(e.FillPrice)
}
