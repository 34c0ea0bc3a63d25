package trader

import (
	"context"

	"phasetrader/internal/logger"
	"phasetrader/internal/model"
	"phasetrader/internal/notification"
	"phasetrader/internal/strategy"
)

// observedExecutor publishes, counts and alerts on everything passing
// through the wrapped executor.
type observedExecutor struct {
	svc   *Service
	inner strategy.Executor
}

func (o *observedExecutor) Execute(ctx context.Context, sig strategy.Signal, bar model.Bar) []model.OrderEvent {
	svc := o.svc
	svc.log.Info("signal",
		append(logger.LogWithTrace(ctx),
			"strategy", sig.StrategyName,
			"direction", sig.Direction,
			"quantity", sig.Quantity.String(),
			"price", sig.Price.String(),
			"reason", sig.Reason)...)
	svc.publish(ctx, func(ctx context.Context) error { return svc.publisher.PublishSignal(ctx, sig) })

	evs := o.inner.Execute(ctx, sig, bar)
	for _, ev := range evs {
		svc.prom.OrderEventsTotal.WithLabelValues(string(ev.Status)).Inc()
		svc.publish(ctx, func(ctx context.Context) error { return svc.publisher.PublishOrderEvent(ctx, ev) })

		if alert, ok := notification.OrderAlert(ev); ok {
			if err := svc.notifier.Send(ctx, alert); err != nil {
				svc.log.Warn("alert delivery failed", append(logger.LogWithTrace(ctx), "error", err)...)
			}
		}
	}
	return evs
}
