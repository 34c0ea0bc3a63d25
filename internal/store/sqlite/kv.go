package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"phasetrader/internal/model"
	"phasetrader/internal/store"
)

// KV is an object store on the kv table. It shares the database file with
// the bar tables.
type KV struct {
	db *sql.DB
}

var _ model.ObjectStore = (*KV)(nil)

// NewKV opens the database at dbPath and ensures the schema exists.
func NewKV(dbPath string) (*KV, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &KV{db: db}, nil
}

func (k *KV) ContainsKey(ctx context.Context, key string) (bool, error) {
	var n int
	err := k.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM kv WHERE key = ?`, key).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite kv contains %s: %w", key, err)
	}
	return n > 0, nil
}

func (k *KV) Read(ctx context.Context, key string) (string, error) {
	var v string
	err := k.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("sqlite kv %s: %w", key, store.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("sqlite kv read %s: %w", key, err)
	}
	return v, nil
}

func (k *KV) Save(ctx context.Context, key, value string) error {
	_, err := k.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite kv save %s: %w", key, err)
	}
	return nil
}

// Ping checks the database connection.
func (k *KV) Ping(ctx context.Context) error { return k.db.PingContext(ctx) }

// Close closes the database.
func (k *KV) Close() error { return k.db.Close() }
