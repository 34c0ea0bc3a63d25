package portfolio

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phasetrader/internal/model"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var ethEUR = Pair{Base: "ETH", Quote: "EUR"}

func fill(dir model.Direction, qty, price, fee string) model.OrderEvent {
	return model.OrderEvent{
		Symbol:    "ETHEUR",
		Direction: dir,
		Status:    model.OrderFilled,
		Quantity:  dec(qty),
		FillPrice: dec(price),
		Fee:       dec(fee),
	}
}

func TestParsePair(t *testing.T) {
	p, err := ParsePair("ethEUR", "eur")
	require.NoError(t, err)
	assert.Equal(t, ethEUR, p)
	assert.Equal(t, "ETHEUR", p.Symbol())

	_, err = ParsePair("ETHUSD", "EUR")
	assert.Error(t, err)
	_, err = ParsePair("EUR", "EUR")
	assert.Error(t, err)
}

func TestCashBook_ApplyBuyAndSell(t *testing.T) {
	b := NewCashBook()
	b.Deposit("EUR", dec("1000"))

	require.NoError(t, b.Apply(ethEUR, fill(model.DirectionBuy, "0.5", "1500", "1.5")))
	assert.Equal(t, "248.5", b.Cash("EUR").String())
	assert.Equal(t, "0.5", b.Holdings("ETH").String())

	// Non-fill events do not move balances.
	sub := fill(model.DirectionSell, "0.5", "0", "0")
	sub.Status = model.OrderSubmitted
	require.NoError(t, b.Apply(ethEUR, sub))
	assert.Equal(t, "0.5", b.Holdings("ETH").String())

	require.NoError(t, b.Apply(ethEUR, fill(model.DirectionSell, "0.5", "1600", "1.6")))
	assert.Equal(t, "1046.9", b.Cash("EUR").String())
	assert.True(t, b.Holdings("ETH").IsZero())
}

func TestCashBook_RejectsOverdraw(t *testing.T) {
	b := NewCashBook()
	b.Deposit("EUR", dec("100"))

	err := b.Apply(ethEUR, fill(model.DirectionBuy, "1", "101", "0"))
	assert.True(t, errors.Is(err, ErrInsufficientFunds))
	assert.Equal(t, "100", b.Cash("EUR").String())

	err = b.Apply(ethEUR, fill(model.DirectionSell, "0.1", "100", "0"))
	assert.True(t, errors.Is(err, ErrInsufficientFunds))
}

func TestCashBook_TotalValueAndBalances(t *testing.T) {
	b := NewCashBook()
	b.Deposit("EUR", dec("250"))
	b.Deposit("USD", dec("10"))
	b.SetHoldings("ETH", dec("0.5"))
	b.SetHoldings("BTC", decimal.Zero)

	got := b.TotalValue("EUR", map[string]decimal.Decimal{"ETH": dec("2000")})
	assert.Equal(t, "1250", got.String())

	bals := b.Balances()
	require.Len(t, bals, 3)
	assert.Equal(t, "EUR", bals[0].Name)
	assert.Equal(t, "USD", bals[1].Name)
	assert.Equal(t, "ETH", bals[2].Name)
	assert.False(t, bals[2].Cash)
}

func TestAccount_View(t *testing.T) {
	b := NewCashBook()
	b.Deposit("EUR", dec("100"))
	b.SetHoldings("ETH", dec("2"))
	a := b.Account(ethEUR)

	assert.Equal(t, "100", a.Cash().String())
	assert.Equal(t, "2", a.Holdings().String())
	assert.Equal(t, "300", a.Value(dec("100")).String())
	assert.Equal(t, ethEUR, a.Pair())
}

func TestPnLTracker_RoundTrip(t *testing.T) {
	p := NewPnLTracker()

	assert.True(t, p.RecordTrade(TradeFromEvent(fill(model.DirectionBuy, "1", "100", "0"))).IsZero())
	p.RecordTrade(TradeFromEvent(fill(model.DirectionBuy, "1", "110", "0")))

	prices := map[string]decimal.Decimal{"ETHEUR": dec("120")}
	assert.Equal(t, "30", p.Unrealized(prices).String()) // avg 105, 2 held

	realized := p.RecordTrade(TradeFromEvent(fill(model.DirectionSell, "2", "120", "1")))
	assert.Equal(t, "29", realized.String())

	s := p.Summary(prices)
	assert.Equal(t, "29", s.Realized.String())
	assert.True(t, s.Unrealized.IsZero())
	assert.Equal(t, 3, s.TotalTrades)
	assert.Equal(t, 1, s.RoundTrips)
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 0, s.OpenPositions)
	assert.Equal(t, "1", s.Fees.String())
	assert.Len(t, p.Trades(), 3)
}

func TestPnLTracker_LosingSell(t *testing.T) {
	p := NewPnLTracker()
	p.RecordTrade(TradeFromEvent(fill(model.DirectionBuy, "1", "100", "0")))
	assert.Equal(t, "-3", p.RecordTrade(TradeFromEvent(fill(model.DirectionSell, "1", "97", "0"))).String())
	s := p.Summary(nil)
	assert.Equal(t, 0, s.Wins)
	assert.Equal(t, 1, s.RoundTrips)
}

func TestRiskManager_CanTrade(t *testing.T) {
	b := NewCashBook()
	b.Deposit("EUR", dec("1000"))
	b.SetHoldings("ETH", dec("1"))

	rm := NewRiskManager(RiskLimits{
		MaxPositionNotional: dec("500"),
		MaxDailyLoss:        dec("100"),
		MaxDrawdownPct:      10,
	}, b, dec("1000"))

	cases := []struct {
		name   string
		dir    model.Direction
		qty    string
		price  string
		ok     bool
		reason string
	}{
		{"small buy", model.DirectionBuy, "0.2", "1000", true, ""},
		{"zero qty", model.DirectionBuy, "0", "1000", false, "quantity must be positive"},
		{"over cash", model.DirectionBuy, "2", "600", false, "insufficient cash"},
		{"over notional", model.DirectionBuy, "0.6", "1000", false, "position size exceeds limit"},
		{"sell held", model.DirectionSell, "1", "1000", true, ""},
		{"sell more than held", model.DirectionSell, "1.1", "1000", false, "insufficient holdings"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason := rm.CanTrade(ethEUR, tc.dir, dec(tc.qty), dec(tc.price))
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.reason, reason)
		})
	}
}

func TestRiskManager_DailyLossAndDrawdown(t *testing.T) {
	b := NewCashBook()
	b.Deposit("EUR", dec("1000"))
	b.SetHoldings("ETH", dec("1"))

	rm := NewRiskManager(RiskLimits{MaxDailyLoss: dec("50"), MaxDrawdownPct: 20}, b, dec("1000"))
	rm.RecordPnL(dec("-60"))
	ok, reason := rm.CanTrade(ethEUR, model.DirectionBuy, dec("0.1"), dec("100"))
	assert.False(t, ok)
	assert.Equal(t, "max daily loss reached", reason)

	// Closing a position is always allowed.
	ok, _ = rm.CanTrade(ethEUR, model.DirectionSell, dec("1"), dec("100"))
	assert.True(t, ok)

	rm.ResetDaily()
	ok, _ = rm.CanTrade(ethEUR, model.DirectionBuy, dec("0.1"), dec("100"))
	assert.True(t, ok)

	rm.RecordPnL(dec("-200"))
	rm.ResetDaily()
	ok, reason = rm.CanTrade(ethEUR, model.DirectionBuy, dec("0.1"), dec("100"))
	assert.False(t, ok)
	assert.Equal(t, "max drawdown exceeded", reason)

	st := rm.Status()
	assert.Equal(t, "740", st.Equity.String())
	assert.Equal(t, "1000", st.PeakEquity.String())
	assert.InDelta(t, 26.0, st.DrawdownPct, 1e-9)
}
