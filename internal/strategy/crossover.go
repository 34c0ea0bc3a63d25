package strategy

import (
	"context"
	"log"

	"github.com/shopspring/decimal"

	"phasetrader/internal/indicator"
	"phasetrader/internal/model"
)

// CrossoverName is the name EMACrossover registers under.
const CrossoverName = "EMA_Crossover"

// EMACrossover is a baseline strategy for backtest comparison.
//
// Buy: fast EMA crosses above slow EMA while flat.
// Sell: fast EMA crosses below slow EMA while holding.
//
// The optional RSI filter skips buys when overbought (>70) and sells when
// oversold (<30).
type EMACrossover struct {
	symbol   string
	fast     *indicator.EMA
	slow     *indicator.EMA
	rsi      *indicator.RSI
	cross    CrossDetector
	params   Params
	balances Balances
	pending  bool
}

// NewEMACrossover creates the strategy. fastPeriod < slowPeriod (e.g. 12 and 26).
// rsiPeriod 0 disables the RSI filter.
func NewEMACrossover(symbol string, fastPeriod, slowPeriod, rsiPeriod int, p Params, bal Balances) *EMACrossover {
	s := &EMACrossover{
		symbol:   symbol,
		fast:     indicator.NewEMA(fastPeriod),
		slow:     indicator.NewEMA(slowPeriod),
		params:   p,
		balances: bal,
	}
	if rsiPeriod > 0 {
		s.rsi = indicator.NewRSI(rsiPeriod)
	}
	return s
}

func (s *EMACrossover) Name() string { return CrossoverName }

// WarmUp updates the averages and the cross state without signalling.
func (s *EMACrossover) WarmUp(_ context.Context, bar model.Bar) {
	s.observe(bar)
}

// observe returns the cross state before and after bar; ok is false until
// the slow average is ready.
func (s *EMACrossover) observe(bar model.Bar) (prev, now CrossState, ok bool) {
	if bar.Symbol != s.symbol {
		return CrossNone, CrossNone, false
	}
	s.fast.Update(bar)
	s.slow.Update(bar)
	if s.rsi != nil {
		s.rsi.Update(bar)
	}
	if !s.slow.Ready() {
		return CrossNone, CrossNone, false
	}
	prev = s.cross.State()
	s.cross.Update(decimal.NewFromFloat(s.fast.Value()), decimal.NewFromFloat(s.slow.Value()))
	return prev, s.cross.State(), true
}

func (s *EMACrossover) OnBar(_ context.Context, bar model.Bar) *Signal {
	prev, now, ok := s.observe(bar)
	if !ok || now == prev || s.pending {
		return nil
	}

	holdings := s.balances.Holdings()
	price := bar.Value()

	switch now {
	case CrossUp:
		if holdings.IsPositive() {
			return nil
		}
		if s.rsi != nil && s.rsi.Ready() && s.rsi.Value() > 70 {
			log.Printf("[strategy] %s: golden cross filtered by RSI %.1f > 70", CrossoverName, s.rsi.Value())
			return nil
		}
		qty := buyQuantity(s.balances.Cash(), price, s.params)
		if !qty.IsPositive() {
			return nil
		}
		s.pending = true
		return &Signal{
			StrategyName: CrossoverName,
			Symbol:       s.symbol,
			Direction:    model.DirectionBuy,
			Quantity:     qty,
			Price:        price,
			Reason:       "EMA golden cross (fast > slow)",
			Time:         bar.TS,
		}

	case CrossDown:
		if !holdings.IsPositive() {
			return nil
		}
		if s.rsi != nil && s.rsi.Ready() && s.rsi.Value() < 30 {
			log.Printf("[strategy] %s: death cross filtered by RSI %.1f < 30", CrossoverName, s.rsi.Value())
			return nil
		}
		s.pending = true
		return &Signal{
			StrategyName: CrossoverName,
			Symbol:       s.symbol,
			Direction:    model.DirectionSell,
			Quantity:     holdings,
			Price:        price,
			Reason:       "EMA death cross (fast < slow)",
			Time:         bar.TS,
		}
	}
	return nil
}

func (s *EMACrossover) OnOrderEvent(_ context.Context, ev model.OrderEvent) {
	if ev.Status != model.OrderSubmitted {
		s.pending = false
	}
}
