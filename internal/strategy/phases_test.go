package strategy

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phasetrader/internal/feature"
	"phasetrader/internal/model"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// market builds a handler input with a price and Bollinger bands.
func market(price, low, mid, up float64) Market {
	return Market{
		Tick: Tick{
			Bar: model.Bar{Symbol: "ETHEUR", Close: d(price)},
			Indicators: model.IndicatorSnapshot{
				Close:    d(price),
				BBLower:  d(low),
				BBMiddle: d(mid),
				BBUpper:  d(up),
				RSI:      d(50),
			},
			Cash:     d(1000),
			Holdings: decimal.Zero,
		},
	}
}

func withTrends(m Market, macd, signal, low, mid, up float64) Market {
	m.Trends = feature.Trends{
		Ready:      true,
		Samples:    10,
		MACD:       feature.Line{Slope: macd},
		MACDSignal: feature.Line{Slope: signal},
		BBLower:    feature.Line{Slope: low},
		BBMiddle:   feature.Line{Slope: mid},
		BBUpper:    feature.Line{Slope: up},
	}
	return m
}

func TestPhase_StringAndParse(t *testing.T) {
	for p := PhaseInit; p <= PhaseSold; p++ {
		got, err := ParsePhase(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	got, err := ParsePhase("Bought")
	require.NoError(t, err)
	assert.Equal(t, PhasePrepareToSell, got)

	_, err = ParsePhase("Sideways")
	assert.Error(t, err)
	assert.Equal(t, "Phase(42)", Phase(42).String())
}

func TestInitPhase(t *testing.T) {
	m := market(100, 95, 100, 105)
	assert.Equal(t, PhasePrepareToBuy, initPhase{}.Evaluate(m, State{}, DefaultParams()).Next)

	m.Holdings = d(0.5)
	assert.Equal(t, PhasePrepareToSell, initPhase{}.Evaluate(m, State{}, DefaultParams()).Next)
}

func TestPrepareToBuyPhase(t *testing.T) {
	p := DefaultParams()
	cases := []struct {
		name      string
		m         Market
		macd, sig float64
		wantPhase Phase
	}{
		{"below lower band", market(94, 95, 100, 105), 0, 0, PhaseReadyToBuy},
		{"below mid with MACD under signal", market(98, 95, 100, 105), -1, 0, PhaseReadyToBuy},
		{"below mid with MACD over signal", market(98, 95, 100, 105), 1, 0, PhasePrepareToBuy},
		{"above mid", market(101, 95, 100, 105), -1, 0, PhasePrepareToBuy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.m.Indicators.MACD = d(tc.macd)
			tc.m.Indicators.MACDSignal = d(tc.sig)
			got := prepareToBuyPhase{}.Evaluate(tc.m, State{Phase: PhasePrepareToBuy}, p)
			assert.Equal(t, tc.wantPhase, got.Next)
			assert.Nil(t, got.Order)
		})
	}
}

func TestReadyToBuyPhase_Gates(t *testing.T) {
	p := DefaultParams()

	t.Run("waits for trends", func(t *testing.T) {
		got := readyToBuyPhase{}.Evaluate(market(100, 95, 98, 105), State{}, p)
		assert.Nil(t, got.Order)
	})

	t.Run("rising MACD above lower band buys", func(t *testing.T) {
		m := withTrends(market(100, 95, 98, 105), 0.2, 0, 0, 0, 0)
		got := readyToBuyPhase{}.Evaluate(m, State{}, p)
		require.NotNil(t, got.Order)
		assert.Equal(t, model.DirectionBuy, got.Order.Direction)
		assert.Equal(t, PhaseReadyToBuy, got.Next)
		// 1000 × 0.8 / 100 = 8
		assert.True(t, got.Order.Quantity.Equal(d(8)), "qty %s", got.Order.Quantity)
	})

	t.Run("falling signal blocks the slope gate", func(t *testing.T) {
		m := withTrends(market(100, 95, 98, 105), 0.2, -0.1, 0, 0, 0)
		got := readyToBuyPhase{}.Evaluate(m, State{VolumeStreak: 1}, p)
		assert.Nil(t, got.Order)
	})

	t.Run("up streak above mid band buys", func(t *testing.T) {
		m := withTrends(market(100, 95, 98, 105), -0.2, -0.1, 0, 0, 0)
		got := readyToBuyPhase{}.Evaluate(m, State{VolumeStreak: 3}, p)
		require.NotNil(t, got.Order)
	})

	t.Run("streak must exceed minimum", func(t *testing.T) {
		m := withTrends(market(100, 95, 98, 105), -0.2, -0.1, 0, 0, 0)
		got := readyToBuyPhase{}.Evaluate(m, State{VolumeStreak: 2}, p)
		assert.Nil(t, got.Order)
	})

	t.Run("no cash no order", func(t *testing.T) {
		m := withTrends(market(100, 95, 98, 105), 0.2, 0.1, 0, 0, 0)
		m.Cash = decimal.Zero
		got := readyToBuyPhase{}.Evaluate(m, State{}, p)
		assert.Nil(t, got.Order)
		assert.Equal(t, PhaseReadyToBuy, got.Next)
	})
}

func TestBuyQuantity_TruncatesToThreeDecimals(t *testing.T) {
	p := DefaultParams()
	// 1000 × 0.8 / 3 = 266.6666… → 266.666
	got := buyQuantity(d(1000), d(3), p)
	assert.Equal(t, "266.666", got.String())

	// 1234.56 × 0.8 / 1834.27 = 0.53844… → 0.538
	got = buyQuantity(d(1234.56), d(1834.27), p)
	assert.Equal(t, "0.538", got.String())

	assert.True(t, buyQuantity(d(1000), decimal.Zero, p).IsZero())
}

func TestPrepareToSellPhase(t *testing.T) {
	p := DefaultParams()
	state := State{Phase: PhasePrepareToSell, Position: Position{BoughtPrice: d(100), MaxPrice: d(100)}}

	t.Run("target with overbought RSI", func(t *testing.T) {
		m := market(105, 95, 100, 110)
		m.Indicators.RSI = d(70)
		assert.Equal(t, PhaseReadyToSellGain, prepareToSellPhase{}.Evaluate(m, state, p).Next)
	})

	t.Run("target with price over upper band", func(t *testing.T) {
		m := market(105, 95, 100, 104)
		assert.Equal(t, PhaseReadyToSellGain, prepareToSellPhase{}.Evaluate(m, state, p).Next)
	})

	t.Run("price over upper band without target", func(t *testing.T) {
		m := market(102, 95, 100, 101)
		got := prepareToSellPhase{}.Evaluate(m, state, p)
		assert.Equal(t, PhaseReadyToSellGain, got.Next)
		assert.Equal(t, "price over upper band", got.Reason)
	})

	t.Run("target not reached", func(t *testing.T) {
		m := market(103.9, 95, 100, 110)
		m.Indicators.RSI = d(80)
		assert.Equal(t, PhasePrepareToSell, prepareToSellPhase{}.Evaluate(m, state, p).Next)
	})

	t.Run("hard stop", func(t *testing.T) {
		m := market(96.9, 95, 100, 105)
		assert.Equal(t, PhaseReadyToSellLoss, prepareToSellPhase{}.Evaluate(m, state, p).Next)
	})

	t.Run("bands collapsing under water", func(t *testing.T) {
		m := withTrends(market(99, 95, 100, 105), 0, 0, -0.1, -0.2, -0.3)
		assert.Equal(t, PhaseReadyToSellLoss, prepareToSellPhase{}.Evaluate(m, state, p).Next)
	})

	t.Run("bands collapsing above entry holds", func(t *testing.T) {
		m := withTrends(market(101, 95, 100, 105), 0, 0, -0.1, -0.2, -0.3)
		assert.Equal(t, PhasePrepareToSell, prepareToSellPhase{}.Evaluate(m, state, p).Next)
	})

	t.Run("parallel rising bands hold", func(t *testing.T) {
		m := withTrends(market(99, 95, 100, 105), 0, 0, 0.5, 0.5, 0.5)
		assert.Equal(t, PhasePrepareToSell, prepareToSellPhase{}.Evaluate(m, state, p).Next)
	})
}

func TestReadyToSellGainPhase(t *testing.T) {
	p := DefaultParams()
	state := State{Phase: PhaseReadyToSellGain, Position: Position{BoughtPrice: d(100), MaxPrice: d(120)}}
	// trailing stop = 120 × 0.99 = 118.8

	t.Run("above trailing stop holds", func(t *testing.T) {
		m := market(119, 100, 121, 125)
		m.Holdings = d(2)
		assert.Nil(t, readyToSellGainPhase{}.Evaluate(m, state, p).Order)
	})

	t.Run("below trailing stop and mid band sells all", func(t *testing.T) {
		m := market(118, 100, 119, 125)
		m.Holdings = d(2)
		got := readyToSellGainPhase{}.Evaluate(m, state, p)
		require.NotNil(t, got.Order)
		assert.Equal(t, model.DirectionSell, got.Order.Direction)
		assert.True(t, got.Order.Quantity.Equal(d(2)))
		assert.Equal(t, PhaseReadyToSellGain, got.Next)
	})

	t.Run("below trailing stop above mid band with flat MACD and mid under low slope", func(t *testing.T) {
		m := withTrends(market(118, 100, 110, 125), p.MACDSlopeMax(), 0, 0.3, 0.1, 0.5)
		m.Holdings = d(2)
		require.NotNil(t, readyToSellGainPhase{}.Evaluate(m, state, p).Order)
	})

	t.Run("below trailing stop above mid band with steep MACD", func(t *testing.T) {
		m := withTrends(market(118, 100, 110, 125), 0.6, 0, 0.3, 0.1, 0.5)
		m.Holdings = d(2)
		assert.Nil(t, readyToSellGainPhase{}.Evaluate(m, state, p).Order)
	})
}

func TestReadyToSellLossPhase(t *testing.T) {
	m := market(90, 95, 100, 105)
	m.Holdings = d(1.5)
	got := readyToSellLossPhase{}.Evaluate(m, State{}, DefaultParams())
	require.NotNil(t, got.Order)
	assert.True(t, got.Order.Quantity.Equal(d(1.5)))

	m.Holdings = decimal.Zero
	got = readyToSellLossPhase{}.Evaluate(m, State{}, DefaultParams())
	assert.Nil(t, got.Order)
	assert.Equal(t, PhaseSold, got.Next)
}

func TestSoldPhase(t *testing.T) {
	got := soldPhase{}.Evaluate(market(100, 95, 100, 105), State{}, DefaultParams())
	assert.Equal(t, PhasePrepareToBuy, got.Next)
	assert.True(t, got.ResetPosition)
	assert.True(t, got.ResetCross)
}

func TestParams(t *testing.T) {
	p := DefaultParams()
	require.NoError(t, p.Validate())
	assert.InDelta(t, math.Pi/6, p.MACDSlopeMax(), 1e-12)

	bad := p
	bad.AllocationFraction = d(1.5)
	assert.Error(t, bad.Validate())

	bad = p
	bad.MinTrendSamples = 20
	assert.Error(t, bad.Validate())
}
