package execution

import (
	"database/sql"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Journal persists trade fills to SQLite for analysis and audit.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	// Decimals are stored as TEXT to keep them exact.
	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id    TEXT NOT NULL,
		strategy    TEXT NOT NULL,
		direction   TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		phase       TEXT NOT NULL,
		qty         TEXT NOT NULL,
		price       TEXT NOT NULL,
		fee         TEXT NOT NULL DEFAULT '0',
		slippage    TEXT NOT NULL DEFAULT '0',
		reason      TEXT,
		filled_at   DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades(strategy);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
	CREATE INDEX IF NOT EXISTS idx_trades_filled_at ON trades(filled_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// RecordFill persists a fill to the journal.
func (j *Journal) RecordFill(fill Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO trades (order_id, strategy, direction, symbol, phase, qty, price, fee, slippage, reason, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fill.OrderID,
		fill.Signal.StrategyName,
		string(fill.Signal.Direction),
		fill.Signal.Symbol,
		fill.Signal.Phase.String(),
		fill.Qty.String(),
		fill.Price.String(),
		fill.Fee.String(),
		fill.Slippage.String(),
		fill.Signal.Reason,
		fill.FilledAt.UTC().Format(time.RFC3339),
	)
	return err
}

// TradeRecord represents a row from the trades table.
type TradeRecord struct {
	ID        int64  `json:"id"`
	OrderID   string `json:"order_id"`
	Strategy  string `json:"strategy"`
	Direction string `json:"direction"`
	Symbol    string `json:"symbol"`
	Phase     string `json:"phase"`
	Qty       string `json:"qty"`
	Price     string `json:"price"`
	Fee       string `json:"fee"`
	Slippage  string `json:"slippage"`
	Reason    string `json:"reason"`
	FilledAt  string `json:"filled_at"`
}

// Trades returns the last N trades, newest first.
func (j *Journal) Trades(limit int) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, order_id, strategy, direction, symbol, phase, qty, price, fee, slippage, reason, filled_at
		 FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		var reason sql.NullString
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Strategy, &t.Direction, &t.Symbol, &t.Phase,
			&t.Qty, &t.Price, &t.Fee, &t.Slippage, &reason, &t.FilledAt); err != nil {
			continue
		}
		t.Reason = reason.String
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
