package model

import (
	"context"
)

// ── Storage Port Interfaces ──
// These interfaces decouple trading logic from concrete storage implementations
// (Redis, SQLite, in-memory).

// BarWriter persists bars.
type BarWriter interface {
	// Run reads bars from barCh and writes them in batches.
	// Blocks until ctx is cancelled or barCh is closed.
	Run(ctx context.Context, barCh <-chan Bar)

	// WriteBars writes bars synchronously.
	WriteBars(bars []Bar) error

	// Close releases underlying resources.
	Close() error
}

// BarReader reads stored bars for warm-up and replay.
type BarReader interface {
	// ReadBars returns bars for symbol with TS strictly after afterTS (unix seconds), oldest first.
	ReadBars(symbol string, afterTS int64) ([]Bar, error)

	// ReadLastBars returns the newest n bars for symbol, oldest first.
	ReadLastBars(symbol string, n int) ([]Bar, error)

	// Close releases underlying resources.
	Close() error
}

// ObjectStore is a small string key/value store surviving restarts.
// Read returns an error wrapping store.ErrNotFound for missing keys.
type ObjectStore interface {
	ContainsKey(ctx context.Context, key string) (bool, error)
	Read(ctx context.Context, key string) (string, error)
	Save(ctx context.Context, key, value string) error
}
