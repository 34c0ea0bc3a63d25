package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"phasetrader/internal/model"
)

// Reader provides read-only access to stored bars for warm-up and replay.
type Reader struct {
	db *sql.DB
}

var _ model.BarReader = (*Reader)(nil)

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadBars reads bars for symbol after afterTS, ordered by timestamp ascending
// for correct replay order.
func (r *Reader) ReadBars(symbol string, afterTS int64) ([]model.Bar, error) {
	rows, err := r.db.Query(`
		SELECT symbol, ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND ts > ?
		ORDER BY ts ASC
	`, symbol, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()
	return scanBars(rows)
}

// ReadLastBars reads the newest n bars for symbol, oldest first.
func (r *Reader) ReadLastBars(symbol string, n int) ([]model.Bar, error) {
	rows, err := r.db.Query(`
		SELECT symbol, ts, open, high, low, close, volume FROM (
			SELECT symbol, ts, open, high, low, close, volume
			FROM bars
			WHERE symbol = ?
			ORDER BY ts DESC
			LIMIT ?
		) ORDER BY ts ASC
	`, symbol, n)
	if err != nil {
		return nil, fmt.Errorf("sqlite query last bars: %w", err)
	}
	defer rows.Close()
	return scanBars(rows)
}

func scanBars(rows *sql.Rows) ([]model.Bar, error) {
	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var tsUnix int64
		var open, high, low, closePx, volume string
		if err := rows.Scan(&b.Symbol, &tsUnix, &open, &high, &low, &closePx, &volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.TS = time.Unix(tsUnix, 0).UTC()
		var err error
		for _, f := range []struct {
			dst *decimal.Decimal
			src string
		}{{&b.Open, open}, {&b.High, high}, {&b.Low, low}, {&b.Close, closePx}, {&b.Volume, volume}} {
			if *f.dst, err = decimal.NewFromString(f.src); err != nil {
				return nil, fmt.Errorf("sqlite parse bar %s@%d: %w", b.Symbol, tsUnix, err)
			}
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
