package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"phasetrader/internal/model"
)

// phaseHandler is the decision function of one phase. Implementations are
// pure: they read the market, the state and the params and return a
// Decision; the Controller applies it.
type phaseHandler interface {
	Evaluate(m Market, s State, p Params) Decision
}

var handlers = map[Phase]phaseHandler{
	PhaseInit:            initPhase{},
	PhasePrepareToBuy:    prepareToBuyPhase{},
	PhaseReadyToBuy:      readyToBuyPhase{},
	PhasePrepareToSell:   prepareToSellPhase{},
	PhaseReadyToSellGain: readyToSellGainPhase{},
	PhaseReadyToSellLoss: readyToSellLossPhase{},
	PhaseSold:            soldPhase{},
}

func handlerFor(p Phase) (phaseHandler, bool) {
	h, ok := handlers[p]
	return h, ok
}

// ── Init ──

type initPhase struct{}

func (initPhase) Evaluate(m Market, _ State, _ Params) Decision {
	if m.Holdings.IsPositive() {
		return Decision{Next: PhasePrepareToSell, Reason: "holding " + m.Holdings.String()}
	}
	return Decision{Next: PhasePrepareToBuy, Reason: "flat"}
}

// ── PrepareToBuy ──

type prepareToBuyPhase struct{}

func (prepareToBuyPhase) Evaluate(m Market, _ State, _ Params) Decision {
	price := m.Price()
	ind := m.Indicators

	if price.LessThan(ind.BBLower) {
		return Decision{Next: PhaseReadyToBuy, Reason: "price below lower band"}
	}
	if price.LessThan(ind.BBMiddle) && ind.MACD.LessThan(ind.MACDSignal) {
		return Decision{Next: PhaseReadyToBuy, Reason: "price below mid band, MACD below signal"}
	}
	return stay(PhasePrepareToBuy)
}

// ── ReadyToBuy ──

type readyToBuyPhase struct{}

func (readyToBuyPhase) Evaluate(m Market, s State, p Params) Decision {
	if !m.Trends.Ready {
		return stay(PhaseReadyToBuy)
	}
	price := m.Price()
	ind := m.Indicators

	var reason string
	switch {
	case m.Trends.MACD.Slope >= 0 && m.Trends.MACDSignal.Slope >= 0 && price.GreaterThan(ind.BBLower):
		reason = "MACD rising above lower band"
	case price.GreaterThan(ind.BBMiddle) && s.VolumeStreak > p.VolumeStreakMin:
		reason = fmt.Sprintf("up streak %d above mid band", s.VolumeStreak)
	default:
		return stay(PhaseReadyToBuy)
	}

	qty := buyQuantity(m.Cash, price, p)
	if !qty.IsPositive() {
		return Decision{Next: PhaseReadyToBuy, Reason: "buy gate open but no cash"}
	}
	return Decision{
		Next:   PhaseReadyToBuy,
		Order:  &OrderRequest{Direction: model.DirectionBuy, Quantity: qty},
		Reason: reason,
	}
}

// buyQuantity is cash × allocation / price truncated to the quantity precision.
func buyQuantity(cash, price decimal.Decimal, p Params) decimal.Decimal {
	if !price.IsPositive() || !cash.IsPositive() {
		return decimal.Zero
	}
	return cash.Mul(p.AllocationFraction).Div(price).Truncate(p.QuantityDecimals)
}

// ── PrepareToSell (Bought) ──

type prepareToSellPhase struct{}

func (prepareToSellPhase) Evaluate(m Market, s State, p Params) Decision {
	price := m.Price()
	ind := m.Indicators
	bought := s.Position.BoughtPrice

	targetAchieved := bought.IsPositive() &&
		price.GreaterThan(decimal.NewFromInt(1).Add(p.TargetGainPct).Mul(bought))
	if targetAchieved && ind.RSI.GreaterThan(p.RSIOverbought) {
		return Decision{Next: PhaseReadyToSellGain, Reason: "target achieved, RSI overbought"}
	}
	if price.GreaterThan(ind.BBUpper) {
		return Decision{Next: PhaseReadyToSellGain, Reason: "price over upper band"}
	}

	if bought.IsPositive() && price.LessThan(p.StopLossFactor.Mul(bought)) {
		return Decision{Next: PhaseReadyToSellLoss, Reason: "price below stop loss"}
	}
	if m.Trends.Ready && bandsCollapsing(m) && price.LessThan(bought) {
		return Decision{Next: PhaseReadyToSellLoss, Reason: "bands turning down under water"}
	}
	return stay(PhasePrepareToSell)
}

// bandsCollapsing is true when the mid band falls and the bands slope down
// at least as steeply from lower to upper.
func bandsCollapsing(m Market) bool {
	low, mid, up := m.Trends.BBLower.Slope, m.Trends.BBMiddle.Slope, m.Trends.BBUpper.Slope
	return mid < 0 && mid <= low && up <= mid
}

// ── ReadyToSellGain ──

type readyToSellGainPhase struct{}

func (readyToSellGainPhase) Evaluate(m Market, s State, p Params) Decision {
	price := m.Price()
	trailingStop := s.Position.MaxPrice.Mul(decimal.NewFromInt(1).Sub(p.TrailingStopPct))
	if !price.LessThan(trailingStop) {
		return stay(PhaseReadyToSellGain)
	}

	var reason string
	switch {
	case price.LessThan(m.Indicators.BBMiddle):
		reason = "trailing stop hit below mid band"
	case m.Trends.Ready && m.Trends.MACD.Slope <= p.MACDSlopeMax() && m.Trends.BBMiddle.Slope < m.Trends.BBLower.Slope:
		reason = "trailing stop hit, MACD flattening"
	default:
		return stay(PhaseReadyToSellGain)
	}
	return sellAll(PhaseReadyToSellGain, m, reason)
}

// ── ReadyToSellLoss ──

type readyToSellLossPhase struct{}

func (readyToSellLossPhase) Evaluate(m Market, _ State, _ Params) Decision {
	return sellAll(PhaseReadyToSellLoss, m, "stop loss exit")
}

func sellAll(current Phase, m Market, reason string) Decision {
	if !m.Holdings.IsPositive() {
		return Decision{Next: PhaseSold, Reason: reason + ", nothing held"}
	}
	return Decision{
		Next:   current,
		Order:  &OrderRequest{Direction: model.DirectionSell, Quantity: m.Holdings},
		Reason: reason,
	}
}

// ── Sold ──

type soldPhase struct{}

func (soldPhase) Evaluate(_ Market, _ State, _ Params) Decision {
	return Decision{
		Next:          PhasePrepareToBuy,
		Reason:        "sold, watching for entry",
		ResetPosition: true,
		ResetCross:    true,
	}
}
