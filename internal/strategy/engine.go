// Package strategy provides the phase-driven trading strategy and the engine
// that runs strategies over a bar stream.
//
// A Strategy receives bars and emits trading signals (BUY/SELL). The Engine
// routes bars to registered strategies, hands signals to an Executor and
// feeds the resulting order events back before the next bar is delivered.
package strategy

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"phasetrader/internal/model"
)

// Signal represents an order request emitted by a strategy.
type Signal struct {
	StrategyName string          `json:"strategy_name"`
	Symbol       string          `json:"symbol"`
	Direction    model.Direction `json:"direction"`
	Quantity     decimal.Decimal `json:"quantity"`
	Price        decimal.Decimal `json:"price"` // reference price (bar close); orders are market orders
	Reason       string          `json:"reason"`
	Phase        Phase           `json:"phase"`
	Time         time.Time       `json:"time"`
}

// JSON returns the JSON-encoded signal.
func (s *Signal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// OnBar is called for each new bar.
	// Return a Signal if the strategy wants to act, or nil to skip.
	OnBar(ctx context.Context, bar model.Bar) *Signal

	// OnOrderEvent is called for every execution report of an order the
	// strategy emitted.
	OnOrderEvent(ctx context.Context, ev model.OrderEvent)
}

// WarmUpper is implemented by strategies that can observe historical bars
// without trading on them.
type WarmUpper interface {
	WarmUp(ctx context.Context, bar model.Bar)
}

// Executor turns a signal into order events (Submitted, then Filled or Invalid).
type Executor interface {
	Execute(ctx context.Context, sig Signal, bar model.Bar) []model.OrderEvent
}

// Engine manages registered strategies and routes market data to them.
// Execution is synchronous: every order event of a bar is delivered before
// the next bar is processed.
type Engine struct {
	strategies []Strategy
	executor   Executor

	onSignal func(Signal)
	onEvent  func(model.OrderEvent)

	bars    uint64
	signals uint64
}

// NewEngine creates a new strategy engine executing through exec.
func NewEngine(exec Executor) *Engine {
	return &Engine{executor: exec}
}

// Register adds a strategy to the engine.
func (e *Engine) Register(s Strategy) {
	e.strategies = append(e.strategies, s)
}

// OnSignal sets a hook invoked for every emitted signal (before execution).
func (e *Engine) OnSignal(fn func(Signal)) { e.onSignal = fn }

// OnOrderEvent sets a hook invoked for every order event.
func (e *Engine) OnOrderEvent(fn func(model.OrderEvent)) { e.onEvent = fn }

// Process routes one bar through every strategy.
func (e *Engine) Process(ctx context.Context, bar model.Bar) {
	e.bars++
	for _, s := range e.strategies {
		sig := s.OnBar(ctx, bar)
		if sig == nil {
			continue
		}
		e.signals++
		if e.onSignal != nil {
			e.onSignal(*sig)
		}
		if e.executor == nil {
			log.Printf("[strategy] %s: no executor, dropping %s signal", s.Name(), sig.Direction)
			continue
		}
		for _, ev := range e.executor.Execute(ctx, *sig, bar) {
			if e.onEvent != nil {
				e.onEvent(ev)
			}
			s.OnOrderEvent(ctx, ev)
		}
	}
}

// WarmUp feeds a historical bar to every strategy implementing WarmUpper.
// No signals are produced and the bar is not counted.
func (e *Engine) WarmUp(ctx context.Context, bar model.Bar) {
	for _, s := range e.strategies {
		if w, ok := s.(WarmUpper); ok {
			w.WarmUp(ctx, bar)
		}
	}
}

// Run consumes bars and routes them to all registered strategies.
// Blocks until ctx is cancelled or barCh is closed.
func (e *Engine) Run(ctx context.Context, barCh <-chan model.Bar) {
	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-barCh:
			if !ok {
				return
			}
			e.Process(ctx, bar)
		}
	}
}

// Stats returns the number of bars processed and signals emitted.
func (e *Engine) Stats() (bars, signals uint64) {
	return e.bars, e.signals
}
