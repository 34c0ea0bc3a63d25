package portfolio

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"phasetrader/internal/model"
)

// Trade represents a completed fill for P&L calculation.
type Trade struct {
	Symbol    string          `json:"symbol"`
	Direction model.Direction `json:"direction"`
	Qty       decimal.Decimal `json:"qty"`
	Price     decimal.Decimal `json:"price"`
	Fee       decimal.Decimal `json:"fee"`
	Timestamp time.Time       `json:"timestamp"`
}

// TradeFromEvent converts a fill event.
func TradeFromEvent(ev model.OrderEvent) Trade {
	return Trade{
		Symbol:    ev.Symbol,
		Direction: ev.Direction,
		Qty:       ev.Quantity,
		Price:     ev.FillPrice,
		Fee:       ev.Fee,
		Timestamp: ev.Time,
	}
}

// PnLTracker tracks realized and unrealized P&L in quote currency.
type PnLTracker struct {
	mu     sync.RWMutex
	trades []Trade

	realized  decimal.Decimal
	fees      decimal.Decimal
	costBasis map[string]costEntry
	wins      int
	losses    int
}

type costEntry struct {
	Qty      decimal.Decimal
	AvgPrice decimal.Decimal
}

// NewPnLTracker creates a new P&L tracker.
func NewPnLTracker() *PnLTracker {
	return &PnLTracker{
		trades:    make([]Trade, 0, 500),
		costBasis: make(map[string]costEntry),
	}
}

// RecordTrade records a trade and returns the P&L it realized (net of fees).
func (p *PnLTracker) RecordTrade(trade Trade) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.trades = append(p.trades, trade)
	p.fees = p.fees.Add(trade.Fee)
	entry := p.costBasis[trade.Symbol]

	realized := trade.Fee.Neg()
	if trade.Direction == model.DirectionBuy {
		totalCost := entry.AvgPrice.Mul(entry.Qty).Add(trade.Price.Mul(trade.Qty))
		entry.Qty = entry.Qty.Add(trade.Qty)
		if entry.Qty.IsPositive() {
			entry.AvgPrice = totalCost.Div(entry.Qty)
		}
	} else {
		sellQty := decimal.Min(trade.Qty, entry.Qty)
		realized = realized.Add(trade.Price.Sub(entry.AvgPrice).Mul(sellQty))
		entry.Qty = entry.Qty.Sub(sellQty)
		if !entry.Qty.IsPositive() {
			entry = costEntry{}
		}
		if realized.IsPositive() {
			p.wins++
		} else {
			p.losses++
		}
	}
	p.realized = p.realized.Add(realized)
	p.costBasis[trade.Symbol] = entry
	return realized
}

// Realized returns total realized P&L.
func (p *PnLTracker) Realized() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.realized
}

// Unrealized returns open P&L; prices maps symbol to latest price.
func (p *PnLTracker) Unrealized(prices map[string]decimal.Decimal) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.unrealizedLocked(prices)
}

func (p *PnLTracker) unrealizedLocked(prices map[string]decimal.Decimal) decimal.Decimal {
	var total decimal.Decimal
	for sym, entry := range p.costBasis {
		if !entry.Qty.IsPositive() {
			continue
		}
		if price, ok := prices[sym]; ok {
			total = total.Add(price.Sub(entry.AvgPrice).Mul(entry.Qty))
		}
	}
	return total
}

// Trades returns a snapshot of all trades.
func (p *PnLTracker) Trades() []Trade {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Trade, len(p.trades))
	copy(cp, p.trades)
	return cp
}

// PnLSummary is a point-in-time P&L report.
type PnLSummary struct {
	Realized      decimal.Decimal `json:"realized"`
	Unrealized    decimal.Decimal `json:"unrealized"`
	Total         decimal.Decimal `json:"total"`
	Fees          decimal.Decimal `json:"fees"`
	TotalTrades   int             `json:"total_trades"`
	RoundTrips    int             `json:"round_trips"`
	Wins          int             `json:"wins"`
	OpenPositions int             `json:"open_positions"`
}

// Summary returns the current P&L summary.
func (p *PnLTracker) Summary(prices map[string]decimal.Decimal) PnLSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	open := 0
	for _, entry := range p.costBasis {
		if entry.Qty.IsPositive() {
			open++
		}
	}
	unrealized := p.unrealizedLocked(prices)
	return PnLSummary{
		Realized:      p.realized,
		Unrealized:    unrealized,
		Total:         p.realized.Add(unrealized),
		Fees:          p.fees,
		TotalTrades:   len(p.trades),
		RoundTrips:    p.wins + p.losses,
		Wins:          p.wins,
		OpenPositions: open,
	}
}
