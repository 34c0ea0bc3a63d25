// Package metrics exposes Prometheus metrics and a /healthz endpoint for the
// trader.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trader.
type Metrics struct {
	BarsTotal      prometheus.Counter
	BarGaps        prometheus.Counter
	BarProcessDur  prometheus.Histogram
	TrendFitDur    prometheus.Histogram
	FeedReconnects prometheus.Counter

	// Strategy
	SignalsTotal     *prometheus.CounterVec // labels: direction
	OrderEventsTotal *prometheus.CounterVec // labels: status
	PhaseTransitions *prometheus.CounterVec // labels: to
	Phase            prometheus.Gauge       // numeric phase

	// Account
	Equity   prometheus.Gauge
	Cash     prometheus.Gauge
	Holdings prometheus.Gauge

	// Storage
	SQLiteCommitDur     prometheus.Histogram
	StoreCircuitState   prometheus.Gauge // 0=closed, 1=open, 2=half-open
	StoreCircuitTrips   prometheus.Counter
	StoreBufferedWrites prometheus.Counter

	// Backpressure
	FanoutDropsTotal *prometheus.CounterVec // labels: subscriber

	// Event stream
	EventsPublished prometheus.Counter
	EventsFailed    prometheus.Counter
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BarsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_bars_total",
			Help: "Total bars processed by the strategy engine",
		}),
		BarGaps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_bar_gaps_total",
			Help: "Bars that arrived more than one resolution after the previous bar",
		}),
		BarProcessDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trader_bar_process_duration_seconds",
			Help:    "Indicator update, phase evaluation and execution latency per bar",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		TrendFitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trader_trend_fit_duration_seconds",
			Help:    "Feature window trend line fitting latency",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_feed_reconnects_total",
			Help: "Total bar feed reconnection attempts",
		}),

		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_signals_total",
			Help: "Orders emitted by the strategy",
		}, []string{"direction"}),
		OrderEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_order_events_total",
			Help: "Order events reported by the executor",
		}, []string{"status"}),
		PhaseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_phase_transitions_total",
			Help: "Trading phase transitions by target phase",
		}, []string{"to"}),
		Phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_phase",
			Help: "Current trading phase (0=Init .. 6=Sold)",
		}),

		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_equity",
			Help: "Account value in quote currency at the last close",
		}),
		Cash: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_cash",
			Help: "Available quote currency",
		}),
		Holdings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_holdings",
			Help: "Base asset quantity held",
		}),

		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trader_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		StoreCircuitState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_store_circuit_breaker_state",
			Help: "Object store circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		StoreCircuitTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_store_circuit_breaker_trips_total",
			Help: "Times the object store circuit breaker tripped open",
		}),
		StoreBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_store_buffered_writes_total",
			Help: "Object store saves buffered while the circuit breaker was open",
		}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_fanout_drops_total",
			Help: "Bars dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),

		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_events_published_total",
			Help: "Signal and order events published to the event stream",
		}),
		EventsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_events_failed_total",
			Help: "Event stream publish failures",
		}),
	}

	reg.MustRegister(
		m.BarsTotal,
		m.BarGaps,
		m.BarProcessDur,
		m.TrendFitDur,
		m.FeedReconnects,
		m.SignalsTotal,
		m.OrderEventsTotal,
		m.PhaseTransitions,
		m.Phase,
		m.Equity,
		m.Cash,
		m.Holdings,
		m.SQLiteCommitDur,
		m.StoreCircuitState,
		m.StoreCircuitTrips,
		m.StoreBufferedWrites,
		m.FanoutDropsTotal,
		m.EventsPublished,
		m.EventsFailed,
	)

	return m
}

// Pinger is a dependency that can be probed.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus represents the trader health.
type HealthStatus struct {
	mu sync.RWMutex

	Mode          string    `json:"mode"` // live, paper or backtest
	FeedConnected bool      `json:"feed_connected"`
	LastBarTime   time.Time `json:"last_bar_time"`
	StoreOK       bool      `json:"store_ok"`
	SQLiteOK      bool      `json:"sqlite_ok"`
	Phase         string    `json:"phase"`
	WarmingUp     bool      `json:"warming_up"`

	// Liveness probe results
	StoreLatencyMs  float64   `json:"store_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a health status for mode.
func NewHealthStatus(mode string) *HealthStatus {
	return &HealthStatus{
		Mode:      mode,
		StoreOK:   true,
		SQLiteOK:  true,
		WarmingUp: true,
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastBarTime(t time.Time) {
	h.mu.Lock()
	h.LastBarTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetPhase(phase string, warmingUp bool) {
	h.mu.Lock()
	h.Phase = phase
	h.WarmingUp = warmingUp
	h.mu.Unlock()
}

func (h *HealthStatus) SetStoreOK(v bool) {
	h.mu.Lock()
	h.StoreOK = v
	h.mu.Unlock()
}

// CheckStore pings the object store and records latency and health.
func (h *HealthStatus) CheckStore(ctx context.Context, p Pinger) {
	start := time.Now()
	err := p.Ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.StoreOK = err == nil
	h.StoreLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the bar database and records latency and health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Nil dependencies
// are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, store Pinger, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if store != nil {
					h.CheckStore(probeCtx, store)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
//
// healthy: every dependency up. degraded (503): the live feed is down or
// one store is failing. unhealthy (503): both stores are failing.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	feedDown := h.Mode == "live" && !h.FeedConnected
	if feedDown || !h.StoreOK || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.StoreOK && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	barAge := ""
	lastBar := ""
	if !h.LastBarTime.IsZero() {
		barAge = time.Since(h.LastBarTime).Round(time.Second).String()
		lastBar = h.LastBarTime.Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Mode            string  `json:"mode"`
		Uptime          string  `json:"uptime"`
		FeedConnected   bool    `json:"feed_connected"`
		LastBarTime     string  `json:"last_bar_time"`
		BarAge          string  `json:"bar_age"`
		Phase           string  `json:"phase"`
		WarmingUp       bool    `json:"warming_up"`
		StoreOK         bool    `json:"store_ok"`
		StoreLatencyMs  float64 `json:"store_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Mode:            h.Mode,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastBarTime:     lastBar,
		BarAge:          barAge,
		Phase:           h.Phase,
		WarmingUp:       h.WarmingUp,
		StoreOK:         h.StoreOK,
		StoreLatencyMs:  h.StoreLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server serving the metrics
// gathered by g.
func NewServer(addr string, health *HealthStatus, g prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
