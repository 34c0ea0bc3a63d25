// Package notification delivers trading alerts (fills, rejections, phase
// changes) to external channels.
package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.uber.org/multierr"

	"phasetrader/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Symbol  string     `json:"symbol,omitempty"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Time    time.Time  `json:"time"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// OrderAlert builds the alert for an order event. Submitted events yield
// ok=false: only outcomes are worth notifying.
func OrderAlert(ev model.OrderEvent) (Alert, bool) {
	switch ev.Status {
	case model.OrderFilled:
		return Alert{
			Level:  AlertInfo,
			Symbol: ev.Symbol,
			Title:  fmt.Sprintf("%s %s filled", ev.Direction, ev.Symbol),
			Message: fmt.Sprintf("%s @ %s (fee %s, notional %s)",
				ev.Quantity, ev.FillPrice, ev.Fee, ev.Notional().StringFixed(2)),
			Time: ev.Time,
		}, true
	case model.OrderInvalid:
		return Alert{
			Level:   AlertWarning,
			Symbol:  ev.Symbol,
			Title:   fmt.Sprintf("%s %s rejected", ev.Direction, ev.Symbol),
			Message: fmt.Sprintf("%s: %s", ev.Quantity, ev.Message),
			Time:    ev.Time,
		}, true
	}
	return Alert{}, false
}

// PhaseAlert builds the alert for a trading phase transition.
func PhaseAlert(symbol, from, to string, at time.Time) Alert {
	return Alert{
		Level:   AlertInfo,
		Symbol:  symbol,
		Title:   fmt.Sprintf("%s phase change", symbol),
		Message: fmt.Sprintf("%s -> %s", from, to),
		Time:    at,
	}
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi sends every alert to all of its notifiers and combines their errors.
type Multi []Notifier

// NewMulti drops nil entries.
func NewMulti(ns ...Notifier) Multi {
	out := make(Multi, 0, len(ns))
	for _, n := range ns {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var err error
	for _, n := range m {
		err = multierr.Append(err, n.Send(ctx, alert))
	}
	return err
}
