// cmd/trader runs the phase trader on a live bar feed: bars are read from
// the WebSocket feed, consolidated to the trading resolution, stored in
// SQLite and traded on through the paper executor.
//
// Usage:
//
//	FEED_URL=ws://localhost:9001/bars go run ./cmd/trader
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"phasetrader/config"
	"phasetrader/internal/logger"
	"phasetrader/internal/marketdata/bus"
	"phasetrader/internal/marketdata/consolidator"
	"phasetrader/internal/marketdata/ws"
	"phasetrader/internal/metrics"
	"phasetrader/internal/model"
	sqlitestore "phasetrader/internal/store/sqlite"
	"phasetrader/internal/trader"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[trader] %v", err)
	}
	if cfg.FeedURL == "" {
		log.Fatal("[trader] FEED_URL is required")
	}

	slogger := logger.Init("trader", logger.Options{
		Level:      logger.ParseLevel(cfg.LogLevel),
		File:       cfg.LogFile,
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 30,
		Compress:   true,
	})
	defer logger.Close()

	// ---- Metrics & health ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := metrics.NewMetrics(reg)
	mode := "paper"
	if cfg.LiveMode {
		mode = "live"
	}
	health := metrics.NewHealthStatus(mode)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, reg)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite bar store ----
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[trader] sqlite init failed: %v", err)
	}
	sqlWriter.OnCommit = func(d time.Duration) { prom.SQLiteCommitDur.Observe(d.Seconds()) }
	sqlReader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[trader] sqlite reader init failed: %v", err)
	}

	// ---- Trader ----
	svc, err := trader.New(cfg, trader.Options{
		History: sqlReader,
		Metrics: prom,
		Health:  health,
		Logger:  slogger,
	})
	if err != nil {
		log.Fatalf("[trader] init failed: %v", err)
	}
	pinger, _ := svc.Store().(metrics.Pinger)
	health.StartLivenessChecker(ctx, pinger, sqlWriter.DB(), 10*time.Second)

	// ---- Pipeline: feed → consolidator → fan-out → (sqlite, trader) ----
	feedCh := make(chan model.Bar, 1000)
	barCh := make(chan model.Bar, 1000)

	cons, err := consolidator.New(cfg.SourceResolution(), cfg.Resolution)
	if err != nil {
		log.Fatalf("[trader] %v", err)
	}
	cons.OnStale = func(b model.Bar) {
		slogger.Warn("late feed bar dropped", "symbol", b.Symbol, "ts", b.TS)
	}
	go func() {
		cons.Run(ctx, feedCh, barCh)
		close(barCh)
	}()

	fanout := bus.New(1000)
	fanout.OnDrop = func(name string, b model.Bar) {
		prom.FanoutDropsTotal.WithLabelValues(name).Inc()
		slogger.Warn("bar dropped", "subscriber", name, "symbol", b.Symbol, "ts", b.TS)
	}
	sqliteCh := fanout.Subscribe("sqlite")
	traderCh := fanout.Subscribe("trader")
	go fanout.Run(ctx, barCh)

	writerDone := make(chan struct{})
	go func() {
		sqlWriter.Run(ctx, sqliteCh)
		close(writerDone)
	}()

	traderDone := make(chan struct{})
	go func() {
		if err := svc.Run(ctx, traderCh); err != nil {
			log.Printf("[trader] run failed: %v", err)
			cancel()
		}
		close(traderDone)
	}()

	// ---- Feed ----
	ingest, err := ws.New(ws.IngestConfig{
		URL:     cfg.FeedURL,
		Symbols: []string{cfg.Symbol},
	})
	if err != nil {
		log.Fatalf("[trader] %v", err)
	}
	ingest.OnConnect = func() { health.SetFeedConnected(true) }
	ingest.OnDisconnect = func(error) { health.SetFeedConnected(false) }
	ingest.OnReconnect = func(int) { prom.FeedReconnects.Inc() }
	ingest.OnDrop = func(model.Bar) { prom.FanoutDropsTotal.WithLabelValues("feed").Inc() }
	go func() {
		if err := ingest.Start(ctx, feedCh); err != nil {
			log.Printf("[trader] feed stopped: %v", err)
			health.SetFeedConnected(false)
		}
	}()

	log.Printf("[trader] running %s on %s: feed %s (%s bars → %s), store=%s, metrics %s",
		cfg.Strategy, cfg.Symbol, cfg.FeedURL, cfg.SourceResolution(), cfg.Resolution, cfg.ObjectStore, cfg.MetricsAddr)

	// ---- Wait for shutdown ----
	select {
	case <-sigCh:
		log.Println("[trader] shutdown signal received, cleaning up...")
	case <-traderDone:
	}
	cancel()
	<-traderDone
	<-writerDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Stop(shutdownCtx); err != nil {
		log.Printf("[trader] metrics server stop: %v", err)
	}
	if err := svc.Close(); err != nil {
		log.Printf("[trader] close: %v", err)
	}
	sqlReader.Close()
	sqlWriter.Close()

	log.Println("[trader] shutdown complete.")
}
