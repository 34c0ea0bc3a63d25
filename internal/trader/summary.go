package trader

import (
	"log"

	"github.com/shopspring/decimal"

	"phasetrader/internal/portfolio"
)

// Summary is the end-of-run report.
type Summary struct {
	Symbol     string
	Strategy   string
	Phase      string
	WarmupBars int
	Bars       uint64
	Signals    uint64
	Fills      int
	LastPrice  decimal.Decimal
	Cash       decimal.Decimal
	Holdings   decimal.Decimal
	Equity     decimal.Decimal
	Return     decimal.Decimal // equity / initial cash - 1
	PnL        portfolio.PnLSummary
	Balances   []portfolio.Balance
	Risk       portfolio.RiskStatus
}

// Summary reports the account and trading activity so far.
func (svc *Service) Summary() Summary {
	bars, signals := svc.engine.Stats()
	equity := svc.account.Value(svc.lastPrice)

	s := Summary{
		Symbol:     svc.pair.Symbol(),
		Strategy:   svc.cfg.Strategy,
		WarmupBars: svc.warmed,
		Bars:       bars,
		Signals:    signals,
		Fills:      len(svc.executor.Fills()),
		LastPrice:  svc.lastPrice,
		Cash:       svc.account.Cash(),
		Holdings:   svc.account.Holdings(),
		Equity:     equity,
		PnL:        svc.pnl.Summary(map[string]decimal.Decimal{svc.pair.Symbol(): svc.lastPrice}),
		Balances:   svc.book.Balances(),
		Risk:       svc.risk.Status(),
	}
	if svc.phase != nil {
		s.Phase = svc.phase.Controller().Phase().String()
	}
	if svc.cfg.InitialCash.IsPositive() {
		s.Return = equity.Div(svc.cfg.InitialCash).Sub(decimal.NewFromInt(1))
	}
	return s
}

func (svc *Service) logSummary() {
	s := svc.Summary()
	log.Printf("[trader] run finished: %d bars, %d signals, %d fills, phase=%s", s.Bars, s.Signals, s.Fills, s.Phase)
	log.Printf("[trader] total value %s %s (return %s%%), realized %s, fees %s",
		s.Equity.StringFixed(2), svc.pair.Quote, s.Return.Mul(decimal.NewFromInt(100)).StringFixed(2),
		s.PnL.Realized.StringFixed(2), s.PnL.Fees.StringFixed(2))
	for _, b := range s.Balances {
		log.Printf("[trader]   %-6s %s", b.Name, b.Amount.String())
	}
}
