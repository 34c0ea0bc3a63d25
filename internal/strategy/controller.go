package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"phasetrader/internal/feature"
	"phasetrader/internal/model"
)

// Object store key suffixes for the last fill prices.
const (
	lastBuySuffix  = "-last-buy"
	lastSellSuffix = "-last-sell"
)

// LastBuyKey returns the object store key of symbol's last buy fill price.
func LastBuyKey(symbol string) string { return symbol + lastBuySuffix }

// LastSellKey returns the object store key of symbol's last sell fill price.
func LastSellKey(symbol string) string { return symbol + lastSellSuffix }

// Hooks are optional observers of controller activity.
type Hooks struct {
	PhaseChanged func(from, to Phase)
	TrendsFitted func(d time.Duration)
}

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	Symbol   string
	Params   Params
	LiveMode bool // stored prices are only trusted in live mode
	Store    model.ObjectStore
	Logger   *slog.Logger
	Hooks    Hooks
}

// Controller is the trading phase state machine for one symbol.
//
// It owns the feature window and all mutable strategy state. It must be
// driven from a single goroutine: OnTick and OnOrderEvent are never called
// concurrently.
type Controller struct {
	symbol string
	params Params
	live   bool
	store  model.ObjectStore
	log    *slog.Logger
	hooks  Hooks

	window *feature.Window
	cross  CrossDetector
	trends feature.Trends

	state          State
	lastClose      decimal.Decimal
	storedBuyPrice bool // bought price came from a previous session
}

// NewController creates a controller in the Init phase.
func NewController(cfg ControllerConfig) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		symbol: cfg.Symbol,
		params: cfg.Params,
		live:   cfg.LiveMode,
		store:  cfg.Store,
		log:    logger.With("component", "controller", "symbol", cfg.Symbol),
		hooks:  cfg.Hooks,
		window: feature.NewWithMinSamples(cfg.Params.WindowSize, cfg.Params.MinTrendSamples),
		state:  State{Phase: PhaseInit},
	}
}

// Phase returns the active phase.
func (c *Controller) Phase() Phase { return c.state.Phase }

// Position returns the current position context.
func (c *Controller) Position() Position { return c.state.Position }

// State returns a copy of the controller state.
func (c *Controller) State() State {
	s := c.state
	if s.Pending != nil {
		p := *s.Pending
		s.Pending = &p
	}
	return s
}

// Trends returns the lines fitted on the last tick.
func (c *Controller) Trends() feature.Trends { return c.trends }

// Window exposes the feature window (read-only use).
func (c *Controller) Window() *feature.Window { return c.window }

// Restore re-derives the phase from current holdings at startup.
// Holding → PrepareToSell, with the bought price read back from the object
// store in live mode. Flat → PrepareToBuy.
func (c *Controller) Restore(ctx context.Context, holdings decimal.Decimal) error {
	if holdings.IsPositive() {
		c.setPhase(PhasePrepareToSell, "restored: holding "+holdings.String())
		price, ok, err := c.readStoredPrice(ctx, LastBuyKey(c.symbol))
		if err != nil {
			return fmt.Errorf("controller: restore bought price: %w", err)
		}
		if ok {
			c.state.Position.BoughtPrice = price
			c.state.Position.MaxPrice = price
			c.storedBuyPrice = true
			c.log.Info("previous purchase found", "bought_price", price.String())
		}
		return nil
	}

	c.setPhase(PhasePrepareToBuy, "restored: flat")
	price, ok, err := c.readStoredPrice(ctx, LastSellKey(c.symbol))
	if err != nil {
		return fmt.Errorf("controller: restore sold price: %w", err)
	}
	if ok {
		c.state.Position.SoldPrice = price
		c.log.Info("previous sell found", "sold_price", price.String())
	}
	return nil
}

func (c *Controller) readStoredPrice(ctx context.Context, key string) (decimal.Decimal, bool, error) {
	if !c.live || c.store == nil {
		return decimal.Zero, false, nil
	}
	exists, err := c.store.ContainsKey(ctx, key)
	if err != nil || !exists {
		return decimal.Zero, false, err
	}
	raw, err := c.store.Read(ctx, key)
	if err != nil {
		return decimal.Zero, false, err
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("parse %s=%q: %w", key, raw, err)
	}
	return price, true, nil
}

// OnTick processes one bar and returns the order to emit, if any.
func (c *Controller) OnTick(t Tick) *Signal {
	c.observe(t)

	price := t.Price()
	if t.WarmingUp {
		if c.state.Phase == PhasePrepareToSell && !c.storedBuyPrice && price.GreaterThan(c.state.Position.BoughtPrice) {
			c.state.Position.BoughtPrice = price
		}
		return nil
	}

	if c.state.Pending != nil {
		c.log.Debug("order pending, skipping evaluation",
			"direction", c.state.Pending.Direction, "phase", c.state.Phase.String())
		return nil
	}

	if c.state.Phase == PhasePrepareToSell && !c.state.Position.BoughtPrice.IsPositive() {
		c.state.Position.BoughtPrice = price
		if price.GreaterThan(c.state.Position.MaxPrice) {
			c.state.Position.MaxPrice = price
		}
		c.log.Warn("holding with unknown entry price, using current price", "bought_price", price.String())
	}

	h, ok := handlerFor(c.state.Phase)
	if !ok {
		c.log.Error("invalid trading phase", "phase", c.state.Phase.String())
		return nil
	}

	d := h.Evaluate(Market{Tick: t, Trends: c.trends}, c.State(), c.params)
	return c.apply(t, d)
}

// observe updates everything that is tracked regardless of phase.
func (c *Controller) observe(t Tick) {
	start := time.Now()
	c.window.Push(t.Indicators)
	c.trends = c.window.Trends()
	if c.hooks.TrendsFitted != nil {
		c.hooks.TrendsFitted(time.Since(start))
	}

	price := t.Price()
	if c.state.Phase.Holding() && price.GreaterThan(c.state.Position.MaxPrice) {
		c.state.Position.MaxPrice = price
	}

	if price.GreaterThan(c.lastClose) {
		if c.state.VolumeStreak > 0 {
			c.state.VolumeStreak++
		} else {
			c.state.VolumeStreak = 1
		}
	} else {
		if c.state.VolumeStreak < 0 {
			c.state.VolumeStreak--
		} else {
			c.state.VolumeStreak = -1
		}
	}
	c.lastClose = price

	c.cross.Update(t.Indicators.VeryFastMA, t.Indicators.SlowMA)
	c.state.Cross = c.cross.State()
}

func (c *Controller) apply(t Tick, d Decision) *Signal {
	if d.ResetPosition {
		c.state.Position.BoughtPrice = decimal.Zero
		c.state.Position.MaxPrice = decimal.Zero
		c.storedBuyPrice = false
	}
	if d.ResetCross {
		c.resetCross()
	}

	prePhase := c.state.Phase
	if d.Next != prePhase {
		c.setPhase(d.Next, d.Reason)
	}

	if d.Order == nil {
		return nil
	}

	c.state.Pending = &PendingOrder{
		Direction: d.Order.Direction,
		Quantity:  d.Order.Quantity,
		PrePhase:  prePhase,
		Emitted:   t.Bar.TS,
	}
	c.log.Info("order emitted",
		"direction", d.Order.Direction,
		"quantity", d.Order.Quantity.String(),
		"price", t.Price().String(),
		"phase", c.state.Phase.String(),
		"reason", d.Reason)

	return &Signal{
		StrategyName: StrategyName,
		Symbol:       c.symbol,
		Direction:    d.Order.Direction,
		Quantity:     d.Order.Quantity,
		Price:        t.Price(),
		Reason:       d.Reason,
		Phase:        c.state.Phase,
		Time:         t.Bar.TS,
	}
}

// OnOrderEvent applies an execution report for an order this controller emitted.
func (c *Controller) OnOrderEvent(ctx context.Context, ev model.OrderEvent) {
	switch ev.Status {
	case model.OrderSubmitted:
		return

	case model.OrderInvalid:
		revert := c.revertPhase(ev.Direction)
		c.state.Pending = nil
		c.setPhase(revert, "order invalid: "+ev.Message)
		return

	case model.OrderFilled:
		c.state.Pending = nil
		c.resetCross()
		switch ev.Direction {
		case model.DirectionBuy:
			c.state.Position.BoughtPrice = ev.FillPrice
			c.state.Position.MaxPrice = ev.FillPrice
			c.storedBuyPrice = false
			c.setPhase(PhasePrepareToSell, "buy filled at "+ev.FillPrice.String())
			c.savePrice(ctx, LastBuyKey(c.symbol), ev.FillPrice)
		case model.DirectionSell:
			c.state.Position.SoldPrice = ev.FillPrice
			c.state.Position.BoughtPrice = decimal.Zero
			c.state.Position.MaxPrice = decimal.Zero
			c.storedBuyPrice = false
			c.setPhase(PhaseSold, "sell filled at "+ev.FillPrice.String())
			c.savePrice(ctx, LastSellKey(c.symbol), ev.FillPrice)
		}

	default:
		c.log.Warn("unknown order status", "status", ev.Status, "order_id", ev.OrderID)
	}
}

// revertPhase returns the phase active when the rejected order was emitted.
// Without a matching pending order it falls back to the phase preceding
// the order's direction.
func (c *Controller) revertPhase(dir model.Direction) Phase {
	if p := c.state.Pending; p != nil && p.Direction == dir {
		return p.PrePhase
	}
	if dir == model.DirectionBuy {
		return PhasePrepareToBuy
	}
	return PhasePrepareToSell
}

func (c *Controller) savePrice(ctx context.Context, key string, price decimal.Decimal) {
	if c.store == nil {
		return
	}
	if err := c.store.Save(ctx, key, price.String()); err != nil {
		c.log.Error("object store save failed", "key", key, "error", err)
	}
}

func (c *Controller) resetCross() {
	c.cross.Reset()
	c.state.Cross = CrossNone
}

func (c *Controller) setPhase(next Phase, reason string) {
	prev := c.state.Phase
	c.state.Phase = next
	if prev == next {
		return
	}
	c.log.Info("phase transition", "from", prev.String(), "to", next.String(), "reason", reason)
	if c.hooks.PhaseChanged != nil {
		c.hooks.PhaseChanged(prev, next)
	}
}
