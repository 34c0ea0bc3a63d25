// Package trader wires the configuration, stores, account, strategy and
// execution into one runnable service for a single symbol.
package trader

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"phasetrader/config"
	"phasetrader/internal/events"
	"phasetrader/internal/execution"
	"phasetrader/internal/indicator"
	"phasetrader/internal/logger"
	"phasetrader/internal/metrics"
	"phasetrader/internal/model"
	"phasetrader/internal/notification"
	"phasetrader/internal/portfolio"
	"phasetrader/internal/store"
	redisstore "phasetrader/internal/store/redis"
	sqlitestore "phasetrader/internal/store/sqlite"
	"phasetrader/internal/strategy"
)

// Options override the dependencies New would otherwise build from config.
// Every field is optional.
type Options struct {
	Store     model.ObjectStore     // replaces the OBJECT_STORE backend
	History   model.BarReader       // warm-up source; nil skips warm-up
	Publisher events.Publisher      // defaults to KAFKA_BROKERS (no-op when empty)
	Notifier  notification.Notifier // defaults to log + webhook + telegram from config
	Metrics   *metrics.Metrics      // defaults to metrics on a private registry
	Health    *metrics.HealthStatus
	Logger    *slog.Logger
}

// Service is the top-level orchestrator of the trader.
// Process and Run must be called from a single goroutine.
type Service struct {
	cfg  *config.Config
	pair portfolio.Pair
	log  *slog.Logger

	store   model.ObjectStore
	history model.BarReader
	closers []io.Closer

	book     *portfolio.CashBook
	account  *portfolio.Account
	pnl      *portfolio.PnLTracker
	risk     *portfolio.RiskManager
	journal  *execution.Journal
	executor *execution.PaperExecutor
	engine   *strategy.Engine
	phase    *strategy.PhaseStrategy // nil unless STRATEGY=phase

	publisher events.Publisher
	notifier  notification.Notifier
	prom      *metrics.Metrics
	health    *metrics.HealthStatus

	lastPrice decimal.Decimal
	lastTS    time.Time
	warmed    int
}

// New creates a Service from cfg. Stores and the journal are opened here;
// Close releases them.
func New(cfg *config.Config, opts Options) (*Service, error) {
	pair, err := cfg.Pair()
	if err != nil {
		return nil, fmt.Errorf("trader: %w", err)
	}
	params, err := cfg.Params()
	if err != nil {
		return nil, fmt.Errorf("trader: %w", err)
	}

	svc := &Service{
		cfg:       cfg,
		pair:      pair,
		log:       opts.Logger,
		history:   opts.History,
		publisher: opts.Publisher,
		notifier:  opts.Notifier,
		prom:      opts.Metrics,
		health:    opts.Health,
	}
	if svc.log == nil {
		svc.log = slog.Default()
	}
	svc.log = svc.log.With("component", "trader", "symbol", pair.Symbol())
	if svc.prom == nil {
		svc.prom = metrics.NewMetrics(prometheus.NewRegistry())
	}
	if svc.health == nil {
		svc.health = metrics.NewHealthStatus(mode(cfg))
	}
	if svc.publisher == nil {
		svc.publisher = events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	if svc.notifier == nil {
		svc.notifier = defaultNotifier(cfg)
	}

	// ---- Object store ----
	svc.store = opts.Store
	if svc.store == nil {
		st, closer, err := openStore(cfg, svc.prom)
		if err != nil {
			return nil, err
		}
		svc.store = st
		if closer != nil {
			svc.closers = append(svc.closers, closer)
		}
	}

	// ---- Account ----
	svc.book = portfolio.NewCashBook()
	svc.book.Deposit(pair.Quote, cfg.InitialCash)
	svc.book.SetHoldings(pair.Base, cfg.InitialHoldings)
	svc.account = svc.book.Account(pair)
	svc.pnl = portfolio.NewPnLTracker()
	svc.risk = portfolio.NewRiskManager(cfg.RiskLimits(), svc.book, cfg.InitialCash)

	// ---- Journal ----
	var recorder execution.FillRecorder
	if cfg.JournalPath != "" {
		if err := ensureDir(cfg.JournalPath); err != nil {
			svc.Close()
			return nil, err
		}
		svc.journal, err = execution.NewJournal(cfg.JournalPath)
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("trader: open journal: %w", err)
		}
		recorder = svc.journal
	}

	svc.executor = execution.NewPaperExecutor(
		execution.PaperConfig{SlippageBps: cfg.SlippageBps, FeeRate: cfg.FeeRate},
		pair, svc.book, svc.risk, svc.pnl, recorder)

	// ---- Strategy ----
	svc.engine = strategy.NewEngine(&observedExecutor{svc: svc, inner: svc.executor})
	svc.engine.OnSignal(func(sig strategy.Signal) {
		svc.prom.SignalsTotal.WithLabelValues(string(sig.Direction)).Inc()
	})

	switch cfg.Strategy {
	case config.StrategyCrossover:
		svc.engine.Register(strategy.NewEMACrossover(pair.Symbol(),
			cfg.VeryFastPeriod, cfg.FastPeriod, cfg.RSIPeriod, params, svc.account))
	default:
		ctrl := strategy.NewController(strategy.ControllerConfig{
			Symbol:   pair.Symbol(),
			Params:   params,
			LiveMode: cfg.LiveMode,
			Store:    svc.store,
			Logger:   svc.log,
			Hooks: strategy.Hooks{
				PhaseChanged: svc.onPhaseChanged,
				TrendsFitted: func(d time.Duration) { svc.prom.TrendFitDur.Observe(d.Seconds()) },
			},
		})
		bank := indicator.NewBank(pair.Symbol(), cfg.IndicatorConfig())
		svc.phase = strategy.NewPhaseStrategy(bank, ctrl, svc.account,
			cfg.EffectiveWarmupBars(), cfg.Resolution, svc.log)
		svc.engine.Register(svc.phase)
	}

	return svc, nil
}

func mode(cfg *config.Config) string {
	if cfg.LiveMode {
		return "live"
	}
	return "paper"
}

func ensureDir(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("trader: create %s: %w", dir, err)
		}
	}
	return nil
}

// openStore builds the configured object store backend.
func openStore(cfg *config.Config, prom *metrics.Metrics) (model.ObjectStore, io.Closer, error) {
	switch cfg.ObjectStore {
	case config.StoreMemory:
		return store.NewMemory(), nil, nil

	case config.StoreRedis:
		kv, err := redisstore.NewKV(redisstore.KVConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("trader: open redis store: %w", err)
		}
		kv.OnBuffer = func(string) { prom.StoreBufferedWrites.Inc() }
		kv.Breaker().OnStateChange = func(from, to redisstore.State) {
			prom.StoreCircuitState.Set(float64(to))
			if to == redisstore.StateOpen {
				prom.StoreCircuitTrips.Inc()
			}
			log.Printf("[trader] redis circuit breaker %s -> %s", from, to)
		}
		return kv, kv, nil

	default:
		if err := ensureDir(cfg.SQLitePath); err != nil {
			return nil, nil, err
		}
		kv, err := sqlitestore.NewKV(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("trader: open sqlite store: %w", err)
		}
		return kv, kv, nil
	}
}

func defaultNotifier(cfg *config.Config) notification.Notifier {
	var ns []notification.Notifier
	ns = append(ns, notification.NewLogNotifier())
	if cfg.WebhookURL != "" {
		ns = append(ns, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramToken != "" {
		ns = append(ns, notification.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChat))
	}
	return notification.NewMulti(ns...)
}

// Run restores the strategy state, warms up from history and processes bars
// until barCh is closed or ctx is cancelled. It logs a summary on exit.
func (svc *Service) Run(ctx context.Context, barCh <-chan model.Bar) error {
	log.Printf("[trader] starting %s on %s (%s, live=%v)", svc.cfg.Strategy, svc.pair.Symbol(), svc.cfg.Resolution, svc.cfg.LiveMode)

	svc.Restore(ctx)
	if err := svc.WarmUp(ctx); err != nil {
		return err
	}

	defer svc.logSummary()
	for {
		select {
		case <-ctx.Done():
			return nil
		case bar, ok := <-barCh:
			if !ok {
				return nil
			}
			svc.Process(ctx, bar)
		}
	}
}

// Restore re-derives the controller phase from holdings and, in live mode,
// the stored fill prices. A store failure is logged and trading continues
// from the holdings-derived phase.
func (svc *Service) Restore(ctx context.Context) {
	if svc.phase == nil {
		return
	}
	ctrl := svc.phase.Controller()
	if err := ctrl.Restore(ctx, svc.account.Holdings()); err != nil {
		svc.log.Error("restore from object store failed", "error", err)
	}
	svc.health.SetPhase(ctrl.Phase().String(), true)
	svc.prom.Phase.Set(float64(ctrl.Phase()))
}

// WarmUp feeds the newest stored bars through the strategy with trading
// disabled.
func (svc *Service) WarmUp(ctx context.Context) error {
	if svc.history == nil {
		return nil
	}
	n := svc.cfg.EffectiveWarmupBars()
	bars, err := svc.history.ReadLastBars(svc.pair.Symbol(), n)
	if err != nil {
		return fmt.Errorf("trader: read warm-up bars: %w", err)
	}
	for _, b := range bars {
		svc.engine.WarmUp(ctx, b)
		svc.lastPrice = b.Close
		svc.lastTS = b.TS
	}
	svc.warmed = len(bars)
	if len(bars) < n {
		log.Printf("[trader] warmed up with %d of %d bars; trading waits for indicators", len(bars), n)
	} else {
		log.Printf("[trader] warmed up with %d historical bars", len(bars))
	}
	return nil
}

// Process runs one live bar through the strategy and execution. Bars of the
// traded symbol that are not newer than the last one seen (including
// warm-up bars) are skipped.
func (svc *Service) Process(ctx context.Context, bar model.Bar) {
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(bar.Symbol, bar.TS))

	if bar.Symbol == svc.pair.Symbol() {
		if !svc.lastTS.IsZero() && !bar.TS.After(svc.lastTS) {
			svc.log.Debug("bar not newer than last seen, skipped", append(logger.LogWithTrace(ctx), "ts", bar.TS)...)
			return
		}
		if !svc.lastTS.IsZero() {
			if bar.TS.Sub(svc.lastTS) > svc.cfg.Resolution {
				svc.prom.BarGaps.Inc()
			}
			if bar.TS.UTC().YearDay() != svc.lastTS.UTC().YearDay() || bar.TS.Year() != svc.lastTS.Year() {
				svc.risk.ResetDaily()
			}
		}
		svc.lastTS = bar.TS
		svc.lastPrice = bar.Close
	}

	start := time.Now()
	svc.engine.Process(ctx, bar)
	svc.prom.BarProcessDur.Observe(time.Since(start).Seconds())
	svc.prom.BarsTotal.Inc()

	svc.health.SetLastBarTime(bar.TS)
	if svc.phase != nil {
		svc.health.SetPhase(svc.phase.Controller().Phase().String(), svc.phase.WarmingUp())
	} else {
		svc.health.SetPhase(svc.cfg.Strategy, false)
	}
	svc.updateAccountGauges()
}

func (svc *Service) updateAccountGauges() {
	cash, _ := svc.account.Cash().Float64()
	holdings, _ := svc.account.Holdings().Float64()
	equity, _ := svc.account.Value(svc.lastPrice).Float64()
	svc.prom.Cash.Set(cash)
	svc.prom.Holdings.Set(holdings)
	svc.prom.Equity.Set(equity)
}

func (svc *Service) onPhaseChanged(from, to strategy.Phase) {
	svc.prom.Phase.Set(float64(to))
	svc.prom.PhaseTransitions.WithLabelValues(to.String()).Inc()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	svc.publish(ctx, func(ctx context.Context) error {
		return svc.publisher.PublishPhase(ctx, svc.pair.Symbol(), from, to, svc.lastTS)
	})
}

// publish sends one event; failures are counted and logged, never fatal.
func (svc *Service) publish(ctx context.Context, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		svc.prom.EventsFailed.Inc()
		svc.log.Warn("event publish failed", append(logger.LogWithTrace(ctx), "error", err)...)
		return
	}
	svc.prom.EventsPublished.Inc()
}

// Engine returns the strategy engine.
func (svc *Service) Engine() *strategy.Engine { return svc.engine }

// Account returns the traded pair's account view.
func (svc *Service) Account() *portfolio.Account { return svc.account }

// Executor returns the paper executor.
func (svc *Service) Executor() *execution.PaperExecutor { return svc.executor }

// Journal returns the trade journal, or nil when JOURNAL_PATH is empty.
func (svc *Service) Journal() *execution.Journal { return svc.journal }

// Controller returns the phase controller, or nil for other strategies.
func (svc *Service) Controller() *strategy.Controller {
	if svc.phase == nil {
		return nil
	}
	return svc.phase.Controller()
}

// Store returns the object store in use.
func (svc *Service) Store() model.ObjectStore { return svc.store }

// Health returns the health status the service updates.
func (svc *Service) Health() *metrics.HealthStatus { return svc.health }

// Close releases the journal, the event publisher and any store opened by New.
func (svc *Service) Close() error {
	var err error
	if svc.publisher != nil {
		err = multierr.Append(err, svc.publisher.Close())
	}
	if svc.journal != nil {
		err = multierr.Append(err, svc.journal.Close())
	}
	for _, c := range svc.closers {
		err = multierr.Append(err, c.Close())
	}
	svc.closers = nil
	return err
}
