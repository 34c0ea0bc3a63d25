package execution

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"phasetrader/internal/model"
	"phasetrader/internal/portfolio"
	"phasetrader/internal/strategy"
)

var bpsDivisor = decimal.NewFromInt(10000)

// PaperConfig holds the simulation parameters.
type PaperConfig struct {
	SlippageBps int64           // basis points of slippage (e.g. 5 = 0.05%)
	FeeRate     decimal.Decimal // fraction of notional charged per fill
}

// PaperExecutor simulates order execution without real broker calls.
// Used for backtesting and paper trading.
type PaperExecutor struct {
	mu    sync.RWMutex
	fills []Fill

	cfg     PaperConfig
	pair    portfolio.Pair
	book    *portfolio.CashBook
	risk    *portfolio.RiskManager
	pnl     *portfolio.PnLTracker
	journal FillRecorder
}

// NewPaperExecutor creates a paper executor booking fills of pair into book.
// risk, pnl and journal are optional.
func NewPaperExecutor(cfg PaperConfig, pair portfolio.Pair, book *portfolio.CashBook,
	risk *portfolio.RiskManager, pnl *portfolio.PnLTracker, journal FillRecorder) *PaperExecutor {
	return &PaperExecutor{
		fills:   make([]Fill, 0, 1000),
		cfg:     cfg,
		pair:    pair,
		book:    book,
		risk:    risk,
		pnl:     pnl,
		journal: journal,
	}
}

// Fills returns a snapshot of all fills.
func (p *PaperExecutor) Fills() []Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

// Execute fills sig as a market order at bar's close adjusted for slippage.
// It returns Submitted followed by either Filled or Invalid.
func (p *PaperExecutor) Execute(_ context.Context, sig strategy.Signal, bar model.Bar) []model.OrderEvent {
	submitted := model.OrderEvent{
		OrderID:   uuid.NewString(),
		Symbol:    sig.Symbol,
		Direction: sig.Direction,
		Status:    model.OrderSubmitted,
		Quantity:  sig.Quantity,
		Time:      bar.TS,
	}

	price := bar.Close
	slippage := price.Mul(decimal.NewFromInt(p.cfg.SlippageBps)).Div(bpsDivisor)
	if sig.Direction == model.DirectionBuy {
		price = price.Add(slippage) // buy higher
	} else {
		price = price.Sub(slippage) // sell lower
	}

	if reason := p.check(sig, price); reason != "" {
		invalid := submitted
		invalid.Status = model.OrderInvalid
		invalid.Message = reason
		log.Printf("[paper] %s %s qty=%s rejected: %s order=%s",
			sig.Direction, sig.Symbol, sig.Quantity, reason, submitted.OrderID)
		return []model.OrderEvent{submitted, invalid}
	}

	filled := submitted
	filled.Status = model.OrderFilled
	filled.FillPrice = price
	filled.Fee = sig.Quantity.Mul(price).Mul(p.cfg.FeeRate)

	if err := p.book.Apply(p.pair, filled); err != nil {
		invalid := submitted
		invalid.Status = model.OrderInvalid
		invalid.Message = err.Error()
		return []model.OrderEvent{submitted, invalid}
	}

	fill := Fill{
		OrderID:  submitted.OrderID,
		Signal:   sig,
		Price:    price,
		Qty:      sig.Quantity,
		Fee:      filled.Fee,
		Slippage: slippage,
		FilledAt: bar.TS,
	}
	p.mu.Lock()
	p.fills = append(p.fills, fill)
	p.mu.Unlock()

	if p.pnl != nil {
		realized := p.pnl.RecordTrade(portfolio.TradeFromEvent(filled))
		if p.risk != nil && sig.Direction == model.DirectionSell {
			p.risk.RecordPnL(realized)
		}
	}
	if p.journal != nil {
		if err := p.journal.RecordFill(fill); err != nil {
			log.Printf("[paper] journal write failed for %s: %v", fill.OrderID, err)
		}
	}

	log.Printf("[paper] %s %s %s qty=%s price=%s (slip=%s) order=%s reason=%s",
		sig.Direction, sig.StrategyName, sig.Symbol,
		sig.Quantity, price, slippage, submitted.OrderID, sig.Reason)

	return []model.OrderEvent{submitted, filled}
}

func (p *PaperExecutor) check(sig strategy.Signal, price decimal.Decimal) string {
	if sig.Symbol != p.pair.Symbol() {
		return fmt.Sprintf("unknown symbol %s", sig.Symbol)
	}
	if !sig.Quantity.IsPositive() {
		return "quantity must be positive"
	}
	if p.risk != nil {
		if ok, reason := p.risk.CanTrade(p.pair, sig.Direction, sig.Quantity, price); !ok {
			return reason
		}
	}
	return ""
}
