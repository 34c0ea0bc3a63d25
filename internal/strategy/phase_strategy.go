package strategy

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"phasetrader/internal/indicator"
	"phasetrader/internal/model"
)

// StrategyName is the name PhaseStrategy registers under.
const StrategyName = "PhaseTrader"

// Balances reports the account amounts the strategy sizes orders with.
type Balances interface {
	// Holdings returns the base asset quantity held.
	Holdings() decimal.Decimal
	// Cash returns the available quote currency.
	Cash() decimal.Decimal
}

// PhaseStrategy runs a Controller on indicator snapshots computed by a Bank.
type PhaseStrategy struct {
	bank       *indicator.Bank
	controller *Controller
	balances   Balances
	log        *slog.Logger

	// Bars to process before trading, on top of indicator readiness.
	warmupBars int
	resolution time.Duration
	lastTS     time.Time
}

// NewPhaseStrategy creates the strategy. warmupBars is the minimum number of
// bars seen before orders may be emitted; resolution is the expected bar
// spacing used to report gaps (0 disables the check).
func NewPhaseStrategy(bank *indicator.Bank, c *Controller, bal Balances, warmupBars int, resolution time.Duration, logger *slog.Logger) *PhaseStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &PhaseStrategy{
		bank:       bank,
		controller: c,
		balances:   bal,
		log:        logger.With("component", "strategy", "symbol", bank.Symbol()),
		warmupBars: warmupBars,
		resolution: resolution,
	}
}

func (s *PhaseStrategy) Name() string { return StrategyName }

// Controller returns the underlying phase controller.
func (s *PhaseStrategy) Controller() *Controller { return s.controller }

// WarmingUp reports whether the strategy is still only observing.
func (s *PhaseStrategy) WarmingUp() bool {
	return !s.bank.Ready() || s.bank.Count() < s.warmupBars
}

func (s *PhaseStrategy) OnBar(ctx context.Context, bar model.Bar) *Signal {
	return s.tick(bar, false)
}

// WarmUp runs a historical bar through the indicators and the controller
// with trading disabled.
func (s *PhaseStrategy) WarmUp(_ context.Context, bar model.Bar) {
	s.tick(bar, true)
}

func (s *PhaseStrategy) tick(bar model.Bar, warmUp bool) *Signal {
	if bar.Symbol != s.bank.Symbol() {
		return nil
	}
	if s.resolution > 0 && !s.lastTS.IsZero() && bar.TS.Sub(s.lastTS) > s.resolution {
		s.log.Warn("bar gap", "last", s.lastTS, "now", bar.TS, "gap", bar.TS.Sub(s.lastTS).String())
	}
	s.lastTS = bar.TS

	snap, _ := s.bank.Update(bar)
	return s.controller.OnTick(Tick{
		Bar:        bar,
		Indicators: snap,
		Holdings:   s.balances.Holdings(),
		Cash:       s.balances.Cash(),
		WarmingUp:  warmUp || s.WarmingUp(),
	})
}

func (s *PhaseStrategy) OnOrderEvent(ctx context.Context, ev model.OrderEvent) {
	s.controller.OnOrderEvent(ctx, ev)
}
