package portfolio

import (
	"log"
	"sync"

	"github.com/shopspring/decimal"

	"phasetrader/internal/model"
)

// RiskLimits defines configurable risk management thresholds. Zero disables
// a limit.
type RiskLimits struct {
	MaxPositionNotional decimal.Decimal `json:"max_position_notional"` // max quote value of one buy
	MaxDailyLoss        decimal.Decimal `json:"max_daily_loss"`        // in quote currency, positive
	MaxDrawdownPct      float64         `json:"max_drawdown_pct"`      // 0-100
}

// DefaultRiskLimits returns limits that only guard against drawdown.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{MaxDrawdownPct: 50}
}

// RiskManager validates orders against cash, holdings and limits and tracks
// equity.
type RiskManager struct {
	mu     sync.RWMutex
	limits RiskLimits
	book   *CashBook

	dailyPnL   decimal.Decimal
	equity     decimal.Decimal
	peakEquity decimal.Decimal
}

// NewRiskManager creates a RiskManager over book with the starting equity.
func NewRiskManager(limits RiskLimits, book *CashBook, initialEquity decimal.Decimal) *RiskManager {
	return &RiskManager{
		limits:     limits,
		book:       book,
		equity:     initialEquity,
		peakEquity: initialEquity,
	}
}

// CanTrade checks whether an order of qty at price would be accepted.
// Returns false with a reason if not. Sells are only checked against
// holdings so a position can always be closed.
func (rm *RiskManager) CanTrade(pair Pair, dir model.Direction, qty, price decimal.Decimal) (bool, string) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	if !qty.IsPositive() {
		return false, "quantity must be positive"
	}
	if dir == model.DirectionSell {
		if qty.GreaterThan(rm.book.Holdings(pair.Base)) {
			return false, "insufficient holdings"
		}
		return true, ""
	}

	notional := qty.Mul(price)
	if notional.GreaterThan(rm.book.Cash(pair.Quote)) {
		return false, "insufficient cash"
	}
	if rm.limits.MaxPositionNotional.IsPositive() && notional.GreaterThan(rm.limits.MaxPositionNotional) {
		return false, "position size exceeds limit"
	}
	if rm.limits.MaxDailyLoss.IsPositive() && rm.dailyPnL.LessThan(rm.limits.MaxDailyLoss.Neg()) {
		return false, "max daily loss reached"
	}
	if rm.limits.MaxDrawdownPct > 0 && rm.drawdownLocked() > rm.limits.MaxDrawdownPct {
		return false, "max drawdown exceeded"
	}
	return true, ""
}

// RecordPnL updates daily P&L and equity tracking.
func (rm *RiskManager) RecordPnL(pnl decimal.Decimal) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.dailyPnL = rm.dailyPnL.Add(pnl)
	rm.equity = rm.equity.Add(pnl)
	if rm.equity.GreaterThan(rm.peakEquity) {
		rm.peakEquity = rm.equity
	}

	log.Printf("[risk] daily P&L: %s, equity: %s, peak: %s", rm.dailyPnL, rm.equity, rm.peakEquity)
}

// ResetDaily resets the daily P&L counter.
func (rm *RiskManager) ResetDaily() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.dailyPnL = decimal.Zero
}

func (rm *RiskManager) drawdownLocked() float64 {
	if !rm.peakEquity.IsPositive() {
		return 0
	}
	return rm.peakEquity.Sub(rm.equity).Div(rm.peakEquity).InexactFloat64() * 100
}

// RiskStatus is a snapshot of the risk state.
type RiskStatus struct {
	DailyPnL    decimal.Decimal `json:"daily_pnl"`
	Equity      decimal.Decimal `json:"equity"`
	PeakEquity  decimal.Decimal `json:"peak_equity"`
	DrawdownPct float64         `json:"drawdown_pct"`
	Limits      RiskLimits      `json:"limits"`
}

// Status returns current risk status.
func (rm *RiskManager) Status() RiskStatus {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return RiskStatus{
		DailyPnL:    rm.dailyPnL,
		Equity:      rm.equity,
		PeakEquity:  rm.peakEquity,
		DrawdownPct: rm.drawdownLocked(),
		Limits:      rm.limits,
	}
}
