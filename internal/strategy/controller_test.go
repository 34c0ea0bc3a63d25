package strategy

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phasetrader/internal/model"
	"phasetrader/internal/store"
)

// pt is one synthetic bar: close, Bollinger bands, MACD/signal and RSI.
type pt struct {
	price, low, mid, up float64
	macd, signal, rsi   float64
}

type harness struct {
	t        *testing.T
	c        *Controller
	store    *store.Memory
	logs     *bytes.Buffer
	cash     decimal.Decimal
	holdings decimal.Decimal
	n        int
	warming  bool

	buys, sells []Signal
	phases      []Phase
}

func newHarness(t *testing.T, live bool) *harness {
	h := &harness{
		t:     t,
		store: store.NewMemory(),
		logs:  &bytes.Buffer{},
		cash:  d(1000),
	}
	h.c = NewController(ControllerConfig{
		Symbol:   "ETHEUR",
		Params:   DefaultParams(),
		LiveMode: live,
		Store:    h.store,
		Logger:   slog.New(slog.NewTextHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		Hooks: Hooks{
			PhaseChanged: func(_, to Phase) { h.phases = append(h.phases, to) },
		},
	})
	return h
}

func (h *harness) tick(p pt) *Signal {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(h.n) * time.Hour)
	h.n++
	price := d(p.price)
	sig := h.c.OnTick(Tick{
		Bar: model.Bar{Symbol: "ETHEUR", TS: ts, Open: price, High: price, Low: price, Close: price, Volume: d(1)},
		Indicators: model.IndicatorSnapshot{
			Time:       ts,
			Close:      price,
			VeryFastMA: price,
			SlowMA:     d(p.mid),
			MACD:       d(p.macd),
			MACDSignal: d(p.signal),
			RSI:        d(p.rsi),
			BBLower:    d(p.low),
			BBMiddle:   d(p.mid),
			BBUpper:    d(p.up),
		},
		Holdings:  h.holdings,
		Cash:      h.cash,
		WarmingUp: h.warming,
	})
	if sig != nil {
		switch sig.Direction {
		case model.DirectionBuy:
			h.buys = append(h.buys, *sig)
		case model.DirectionSell:
			h.sells = append(h.sells, *sig)
		}
	}
	return sig
}

// fill reports Submitted then Filled for sig at price and updates balances.
func (h *harness) fill(sig *Signal, price float64) {
	require.NotNil(h.t, sig)
	ctx := context.Background()
	ev := model.OrderEvent{
		OrderID:   "test-order",
		Symbol:    sig.Symbol,
		Direction: sig.Direction,
		Status:    model.OrderSubmitted,
		Quantity:  sig.Quantity,
		Time:      sig.Time,
	}
	h.c.OnOrderEvent(ctx, ev)

	ev.Status = model.OrderFilled
	ev.FillPrice = d(price)
	notional := sig.Quantity.Mul(ev.FillPrice)
	if sig.Direction == model.DirectionBuy {
		h.holdings = h.holdings.Add(sig.Quantity)
		h.cash = h.cash.Sub(notional)
	} else {
		h.holdings = h.holdings.Sub(sig.Quantity)
		h.cash = h.cash.Add(notional)
	}
	h.c.OnOrderEvent(ctx, ev)
}

func (h *harness) reject(sig *Signal) {
	require.NotNil(h.t, sig)
	h.c.OnOrderEvent(context.Background(), model.OrderEvent{
		OrderID:   "test-order",
		Symbol:    sig.Symbol,
		Direction: sig.Direction,
		Status:    model.OrderInvalid,
		Quantity:  sig.Quantity,
		Message:   "insufficient funds",
	})
}

// Bars that move a flat controller from PrepareToBuy to a BUY.
var (
	dip    = pt{price: 94, low: 95, mid: 100, up: 105, macd: 0, signal: 0, rsi: 40}
	bounce = pt{price: 96, low: 95, mid: 100, up: 105, macd: 0.5, signal: 0.2, rsi: 45}
)

func TestController_SingleBuyPerEntry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	require.NoError(t, h.c.Restore(ctx, decimal.Zero))
	require.Equal(t, PhasePrepareToBuy, h.c.Phase())

	assert.Nil(t, h.tick(dip))
	assert.Equal(t, PhaseReadyToBuy, h.c.Phase())

	sig := h.tick(bounce)
	require.NotNil(t, sig)
	assert.Equal(t, model.DirectionBuy, sig.Direction)
	assert.Equal(t, "8.333", sig.Quantity.String()) // 1000 × 0.8 / 96
	assert.Equal(t, StrategyName, sig.StrategyName)

	// Order pending: further qualifying bars do not re-emit.
	for i := 0; i < 3; i++ {
		assert.Nil(t, h.tick(bounce))
	}
	require.NotNil(t, h.c.State().Pending)

	h.fill(sig, 96)
	assert.Equal(t, PhasePrepareToSell, h.c.Phase())
	assert.Nil(t, h.c.State().Pending)

	pos := h.c.Position()
	assert.True(t, pos.BoughtPrice.Equal(d(96)))
	assert.True(t, pos.MaxPrice.Equal(d(96)))

	// Holding: buy gates no longer apply.
	for i := 0; i < 3; i++ {
		h.tick(pt{price: 97, low: 95, mid: 96, up: 99, macd: 0.6, signal: 0.3, rsi: 50})
	}
	assert.Len(t, h.buys, 1)
	assert.Empty(t, h.sells)

	saved, err := h.store.Read(ctx, LastBuyKey("ETHEUR"))
	require.NoError(t, err)
	assert.Equal(t, "96", saved)
}

func TestController_InvalidBuyRevertsToPreBuyPhase(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	require.NoError(t, h.c.Restore(ctx, decimal.Zero))

	h.tick(dip)
	sig := h.tick(bounce)
	require.NotNil(t, sig)
	require.Equal(t, PhaseReadyToBuy, h.c.State().Pending.PrePhase)

	// Submitted is a checkpoint only.
	h.c.OnOrderEvent(ctx, model.OrderEvent{Direction: model.DirectionBuy, Status: model.OrderSubmitted})
	assert.NotNil(t, h.c.State().Pending)

	h.reject(sig)
	assert.Equal(t, PhaseReadyToBuy, h.c.Phase())
	assert.Nil(t, h.c.State().Pending)
	assert.True(t, h.c.Position().BoughtPrice.IsZero())

	ok, _ := h.store.ContainsKey(ctx, LastBuyKey("ETHEUR"))
	assert.False(t, ok, "nothing persisted for a rejected order")

	// The gate can fire again on the next bar.
	assert.NotNil(t, h.tick(bounce))
	assert.Len(t, h.buys, 2)
}

func TestController_InvalidSellRevertsToPreSellPhase(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	require.NoError(t, h.c.Restore(ctx, decimal.Zero))

	h.tick(dip)
	h.fill(h.tick(bounce), 100)
	require.Equal(t, PhasePrepareToSell, h.c.Phase())

	// 96 < 0.97 × 100: hard stop.
	assert.Nil(t, h.tick(pt{price: 96, low: 95, mid: 99, up: 103, rsi: 40}))
	require.Equal(t, PhaseReadyToSellLoss, h.c.Phase())

	sell := h.tick(pt{price: 95, low: 95, mid: 99, up: 103, rsi: 35})
	require.NotNil(t, sell)
	assert.Equal(t, model.DirectionSell, sell.Direction)
	assert.True(t, sell.Quantity.Equal(h.holdings))

	h.reject(sell)
	assert.Equal(t, PhaseReadyToSellLoss, h.c.Phase())
	assert.True(t, h.c.Position().BoughtPrice.Equal(d(100)), "position kept after rejected sell")

	sell = h.tick(pt{price: 95, low: 95, mid: 99, up: 103, rsi: 35})
	h.fill(sell, 95)
	assert.Equal(t, PhaseSold, h.c.Phase())
	assert.True(t, h.c.Position().SoldPrice.Equal(d(95)))
	assert.True(t, h.c.Position().BoughtPrice.IsZero())

	saved, err := h.store.Read(ctx, LastSellKey("ETHEUR"))
	require.NoError(t, err)
	assert.Equal(t, "95", saved)

	h.tick(pt{price: 95, low: 94, mid: 97, up: 100, rsi: 35})
	assert.Equal(t, PhasePrepareToBuy, h.c.Phase())
	assert.Equal(t, CrossNone, h.c.State().Cross)
}

func TestController_UptrendFromSold(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)

	// Enter Sold through a sell fill.
	h.c.OnOrderEvent(ctx, model.OrderEvent{
		Symbol: "ETHEUR", Direction: model.DirectionSell, Status: model.OrderFilled,
		FillPrice: d(98), Quantity: d(1),
	})
	require.Equal(t, PhaseSold, h.c.Phase())

	ticks := []pt{
		{price: 100, low: 97, mid: 99, up: 101, macd: 0, signal: 0, rsi: 70},
		{price: 95, low: 98, mid: 100, up: 102, macd: 0.1, signal: 0.05, rsi: 70},
		{price: 102, low: 99, mid: 101, up: 103, macd: 0.2, signal: 0.1, rsi: 70},
	}
	for i := 3; i < 20; i++ {
		price := 100 + float64(i)
		ticks = append(ticks, pt{
			price: price, low: price - 3, mid: price - 1, up: price + 1,
			macd: 0.1 * float64(i), signal: 0.05 * float64(i), rsi: 70,
		})
	}
	require.Len(t, ticks, 20)

	for i, p := range ticks {
		sig := h.tick(p)
		if sig != nil && sig.Direction == model.DirectionBuy {
			assert.Equal(t, 2, i, "buy expected once price recovers above the lower band")
			h.fill(sig, p.price)
		}
	}

	require.Len(t, h.buys, 1)
	assert.Empty(t, h.sells, "no sell while the uptrend holds")
	assert.Equal(t, PhaseReadyToSellGain, h.c.Phase())
	assert.True(t, h.c.Position().MaxPrice.Equal(d(119)))

	// Reversal: 110 < 119 × 0.99 and below the mid band.
	sell := h.tick(pt{price: 110, low: 113, mid: 115, up: 117, macd: 1, signal: 1, rsi: 40})
	require.NotNil(t, sell)
	assert.Equal(t, model.DirectionSell, sell.Direction)
	assert.True(t, sell.Quantity.Equal(h.buys[0].Quantity))
}

func TestController_RestoreHolding(t *testing.T) {
	ctx := context.Background()

	t.Run("live mode reads bought price", func(t *testing.T) {
		h := newHarness(t, true)
		require.NoError(t, h.store.Save(ctx, LastBuyKey("ETHEUR"), "1834.25"))
		require.NoError(t, h.c.Restore(ctx, d(0.5)))
		assert.Equal(t, PhasePrepareToSell, h.c.Phase())
		assert.True(t, h.c.Position().BoughtPrice.Equal(d(1834.25)))
	})

	t.Run("backtest ignores stored price", func(t *testing.T) {
		h := newHarness(t, false)
		require.NoError(t, h.store.Save(ctx, LastBuyKey("ETHEUR"), "1834.25"))
		require.NoError(t, h.c.Restore(ctx, d(0.5)))
		assert.Equal(t, PhasePrepareToSell, h.c.Phase())
		assert.True(t, h.c.Position().BoughtPrice.IsZero())
	})

	t.Run("flat reads sold price", func(t *testing.T) {
		h := newHarness(t, true)
		require.NoError(t, h.store.Save(ctx, LastSellKey("ETHEUR"), "1700"))
		require.NoError(t, h.c.Restore(ctx, decimal.Zero))
		assert.Equal(t, PhasePrepareToBuy, h.c.Phase())
		assert.True(t, h.c.Position().SoldPrice.Equal(d(1700)))
	})

	t.Run("corrupt stored price", func(t *testing.T) {
		h := newHarness(t, true)
		require.NoError(t, h.store.Save(ctx, LastBuyKey("ETHEUR"), "n/a"))
		assert.Error(t, h.c.Restore(ctx, d(1)))
	})
}

type failingStore struct{}

func (failingStore) ContainsKey(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}
func (failingStore) Read(context.Context, string) (string, error) { return "", errors.New("unreachable") }
func (failingStore) Save(context.Context, string, string) error { return errors.New("read-only") }

func TestController_StoreFailures(t *testing.T) {
	ctx := context.Background()
	logs := &bytes.Buffer{}
	c := NewController(ControllerConfig{
		Symbol:   "ETHEUR",
		Params:   DefaultParams(),
		LiveMode: true,
		Store:    failingStore{},
		Logger:   slog.New(slog.NewTextHandler(logs, nil)),
	})
	assert.Error(t, c.Restore(ctx, d(1)))

	// Save failures are logged, never fatal.
	c.OnOrderEvent(ctx, model.OrderEvent{Direction: model.DirectionBuy, Status: model.OrderFilled, FillPrice: d(10), Quantity: d(1)})
	assert.Equal(t, PhasePrepareToSell, c.Phase())
	assert.Contains(t, logs.String(), "object store save failed")
}

func TestController_WarmupRaisesBoughtPrice(t *testing.T) {
	ctx := context.Background()

	t.Run("no stored price", func(t *testing.T) {
		h := newHarness(t, false)
		require.NoError(t, h.c.Restore(ctx, d(1)))
		h.holdings = d(1)
		h.warming = true
		for _, p := range []float64{100, 105, 103} {
			assert.Nil(t, h.tick(pt{price: p, low: p + 10, mid: p + 20, up: p + 30, rsi: 90}))
		}
		assert.True(t, h.c.Position().BoughtPrice.Equal(d(105)))
		assert.Equal(t, PhasePrepareToSell, h.c.Phase())
	})

	t.Run("stored price wins", func(t *testing.T) {
		h := newHarness(t, true)
		require.NoError(t, h.store.Save(ctx, LastBuyKey("ETHEUR"), "90"))
		require.NoError(t, h.c.Restore(ctx, d(1)))
		h.holdings = d(1)
		h.warming = true
		h.tick(pt{price: 105, low: 100, mid: 104, up: 108, rsi: 50})
		assert.True(t, h.c.Position().BoughtPrice.Equal(d(90)))
	})
}

func TestController_UnknownPhaseIsNoop(t *testing.T) {
	h := newHarness(t, false)
	h.c.state.Phase = Phase(42)

	assert.Nil(t, h.tick(dip))
	assert.Equal(t, Phase(42), h.c.Phase())
	assert.Contains(t, h.logs.String(), "invalid trading phase")
}

func TestController_InitDerivesPhaseFromHoldings(t *testing.T) {
	h := newHarness(t, false)
	require.Equal(t, PhaseInit, h.c.Phase())
	h.holdings = d(2)
	h.tick(dip)
	assert.Equal(t, PhasePrepareToSell, h.c.Phase())
	assert.Equal(t, []Phase{PhasePrepareToSell}, h.phases)
}

func TestController_VolumeStreakAndWindow(t *testing.T) {
	h := newHarness(t, false)
	h.warming = true
	for _, p := range []float64{10, 11, 12, 11, 10, 9} {
		h.tick(pt{price: p, low: 1, mid: 2, up: 3})
	}
	assert.Equal(t, -3, h.c.State().VolumeStreak)
	assert.Equal(t, 6, h.c.Window().Len())
	assert.True(t, h.c.Trends().Ready)

	for i := 0; i < 10; i++ {
		h.tick(pt{price: 20, low: 1, mid: 2, up: 3})
	}
	assert.Equal(t, h.c.Window().Cap(), h.c.Window().Len())
}

func TestController_HoldingWithUnknownEntryPriceCanExit(t *testing.T) {
	h := newHarness(t, false)
	h.holdings = d(1)

	// Init routes the holding to PrepareToSell with no bought price.
	h.tick(pt{price: 100, low: 90, mid: 100, up: 130, rsi: 50})
	require.Equal(t, PhasePrepareToSell, h.c.Phase())
	require.True(t, h.c.Position().BoughtPrice.IsZero())

	// The first evaluated bar adopts its close as the entry price.
	h.tick(pt{price: 100, low: 90, mid: 100, up: 130, rsi: 50})
	assert.True(t, h.c.Position().BoughtPrice.Equal(d(100)))
	assert.Contains(t, h.logs.String(), "unknown entry price")

	// 110 > 104 with RSI 90: gain exit armed.
	h.tick(pt{price: 110, low: 95, mid: 105, up: 130, rsi: 90})
	require.Equal(t, PhaseReadyToSellGain, h.c.Phase())

	h.tick(pt{price: 120, low: 100, mid: 110, up: 130, rsi: 90})
	sell := h.tick(pt{price: 100, low: 95, mid: 110, up: 130, rsi: 40})
	require.NotNil(t, sell)
	assert.Equal(t, model.DirectionSell, sell.Direction)
	assert.True(t, sell.Quantity.Equal(d(1)))
}

func TestController_HoldingWithUnknownEntryPriceStopsOut(t *testing.T) {
	h := newHarness(t, false)
	h.holdings = d(1)
	h.tick(pt{price: 100, low: 90, mid: 100, up: 130, rsi: 50})
	h.tick(pt{price: 100, low: 90, mid: 100, up: 130, rsi: 50})

	// 96 < 100 × 0.97
	h.tick(pt{price: 96, low: 90, mid: 100, up: 130, rsi: 50})
	assert.Equal(t, PhaseReadyToSellLoss, h.c.Phase())
}
