// cmd/backtest replays historical bars from SQLite through the trader with
// an in-memory object store and prints a summary of the run.
//
// Usage:
//
//	go run ./cmd/backtest --import=data/ETHEUR_1h.csv
//	go run ./cmd/backtest --strategy=crossover --from=1700000000 --speed=0
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"phasetrader/config"
	"phasetrader/internal/logger"
	"phasetrader/internal/marketdata/replay"
	"phasetrader/internal/model"
	sqlitestore "phasetrader/internal/store/sqlite"
	"phasetrader/internal/trader"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	// Flags override the environment.
	dbPath := flag.String("db", cfg.SQLitePath, "Path to the SQLite bar database")
	importCSV := flag.String("import", "", "CSV file (ts,open,high,low,close,volume) to load into the database first")
	fromTS := flag.Int64("from", 0, "Unix timestamp to start replay from (0=all)")
	speed := flag.Float64("speed", cfg.ReplaySpeed, "Playback speed multiplier (0=max, 1=realtime, 100=100x)")
	strat := flag.String("strategy", cfg.Strategy, "Strategy: phase or crossover")
	journal := flag.String("journal", "", "Trade journal path (empty disables)")
	flag.Parse()

	cfg.SQLitePath = *dbPath
	cfg.Strategy = *strat
	cfg.JournalPath = *journal
	cfg.ReplaySpeed = *speed
	cfg.ObjectStore = config.StoreMemory
	cfg.LiveMode = false
	cfg.KafkaBrokers = nil
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	slogger := logger.Init("backtest", logger.Options{Level: logger.ParseLevel(cfg.LogLevel), File: cfg.LogFile})
	defer logger.Close()

	if *importCSV != "" {
		n, err := importBars(*importCSV, cfg.Symbol, cfg.SQLitePath)
		if err != nil {
			log.Fatalf("[backtest] import failed: %v", err)
		}
		log.Printf("[backtest] imported %d bars from %s", n, *importCSV)
	}

	reader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[backtest] sqlite open failed: %v", err)
	}
	defer reader.Close()

	svc, err := trader.New(cfg, trader.Options{Logger: slogger})
	if err != nil {
		log.Fatalf("[backtest] init failed: %v", err)
	}
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	barCh := make(chan model.Bar, 10000)
	replayer := replay.New(reader)
	go func() {
		if _, err := replayer.Run(ctx, []string{cfg.Symbol}, *fromTS, cfg.ReplaySpeed, barCh); err != nil {
			log.Printf("[backtest] replay error: %v", err)
		}
		close(barCh)
	}()

	if err := svc.Run(ctx, barCh); err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	printSummary(svc.Summary(), cfg.QuoteCurrency)
}

func printSummary(s trader.Summary, quote string) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║              BACKTEST COMPLETE               ║")
	fmt.Println("╠══════════════════════════════════════════════╣")
	fmt.Printf("║  Symbol:          %-26s ║\n", s.Symbol)
	fmt.Printf("║  Strategy:        %-26s ║\n", s.Strategy)
	fmt.Printf("║  Bars processed:  %-26d ║\n", s.Bars)
	fmt.Printf("║  Signals:         %-26d ║\n", s.Signals)
	fmt.Printf("║  Fills:           %-26d ║\n", s.Fills)
	fmt.Printf("║  Round trips:     %-26s ║\n", fmt.Sprintf("%d (%d wins)", s.PnL.RoundTrips, s.PnL.Wins))
	fmt.Printf("║  Final phase:     %-26s ║\n", s.Phase)
	fmt.Println("╠══════════════════════════════════════════════╣")
	fmt.Printf("║  Last price:      %-26s ║\n", s.LastPrice.String())
	fmt.Printf("║  Cash:            %-26s ║\n", s.Cash.StringFixed(2)+" "+quote)
	fmt.Printf("║  Holdings:        %-26s ║\n", s.Holdings.String())
	fmt.Printf("║  Total value:     %-26s ║\n", s.Equity.StringFixed(2)+" "+quote)
	fmt.Printf("║  Return:          %-26s ║\n", s.Return.Shift(2).StringFixed(2)+"%")
	fmt.Printf("║  Realized P&L:    %-26s ║\n", s.PnL.Realized.StringFixed(2))
	fmt.Printf("║  Fees:            %-26s ║\n", s.PnL.Fees.StringFixed(2))
	fmt.Printf("║  Max drawdown:    %-26s ║\n", fmt.Sprintf("%.2f%%", s.Risk.DrawdownPct))
	fmt.Println("╚══════════════════════════════════════════════╝")
}
