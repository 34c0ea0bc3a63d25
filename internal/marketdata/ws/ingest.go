// Package ws streams consolidated bars from a JSON WebSocket feed.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"phasetrader/internal/model"
)

// IngestConfig holds configuration for the WS ingest.
type IngestConfig struct {
	URL     string
	Header  http.Header
	Symbols []string

	// Reconnect backoff: RetryDelay × RetryMultiplier^(attempt-1), capped at
	// MaxRetryDelay. MaxRetryAttempts 0 retries forever.
	RetryDelay       time.Duration
	RetryMultiplier  int
	MaxRetryDelay    time.Duration
	MaxRetryAttempts int

	PingInterval time.Duration
}

func (c *IngestConfig) withDefaults() {
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.RetryMultiplier < 1 {
		c.RetryMultiplier = 2
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = 30 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 10 * time.Second
	}
}

// ErrMaxRetries is returned by Start when the reconnect budget is spent.
var ErrMaxRetries = errors.New("ws ingest: max retry attempts reached")

// subscribeRequest is sent after every (re)connect.
type subscribeRequest struct {
	Op      string   `json:"op"`
	Symbols []string `json:"symbols"`
}

// wireBar is one feed message. Prices may be JSON strings or numbers.
type wireBar struct {
	Type   string          `json:"type"`
	Symbol string          `json:"symbol"`
	TS     int64           `json:"ts"` // bar start, unix seconds
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// Ingest connects to the bar feed and pushes parsed bars into barCh,
// reconnecting with exponential backoff when the connection drops.
type Ingest struct {
	cfg    IngestConfig
	dialer *websocket.Dialer

	// Optional hooks
	OnConnect    func()
	OnDisconnect func(err error)
	OnReconnect  func(attempt int)
	OnDrop       func(bar model.Bar)
}

// New creates a new Ingest instance.
func New(cfg IngestConfig) (*Ingest, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("ws ingest: feed URL is required")
	}
	cfg.withDefaults()
	return &Ingest{cfg: cfg, dialer: websocket.DefaultDialer}, nil
}

// Start streams bars into barCh until ctx is cancelled (returning nil) or the
// retry budget is exhausted (returning ErrMaxRetries). barCh is not closed.
func (ing *Ingest) Start(ctx context.Context, barCh chan<- model.Bar) error {
	attempt := 0
	for {
		err := ing.session(ctx, barCh, func() { attempt = 0 })
		if ctx.Err() != nil {
			return nil
		}
		if ing.OnDisconnect != nil {
			ing.OnDisconnect(err)
		}
		log.Printf("[ws] disconnected: %v", err)

		attempt++
		if ing.cfg.MaxRetryAttempts > 0 && attempt > ing.cfg.MaxRetryAttempts {
			return ErrMaxRetries
		}
		wait := ing.backoff(attempt)
		log.Printf("[ws] reconnecting in %s (attempt %d)", wait, attempt)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		if ing.OnReconnect != nil {
			ing.OnReconnect(attempt)
		}
	}
}

func (ing *Ingest) backoff(attempt int) time.Duration {
	d := ing.cfg.RetryDelay
	for i := 1; i < attempt; i++ {
		d *= time.Duration(ing.cfg.RetryMultiplier)
		if d >= ing.cfg.MaxRetryDelay {
			return ing.cfg.MaxRetryDelay
		}
	}
	return d
}

// session runs one connection until it fails or ctx is cancelled.
func (ing *Ingest) session(ctx context.Context, barCh chan<- model.Bar, connected func()) error {
	conn, resp, err := ing.dialer.DialContext(ctx, ing.cfg.URL, ing.cfg.Header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial: %w (status %s)", err, resp.Status)
		}
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeRequest{Op: "subscribe", Symbols: ing.cfg.Symbols}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	log.Printf("[ws] connected to %s, subscribed %v", ing.cfg.URL, ing.cfg.Symbols)
	connected()
	if ing.OnConnect != nil {
		ing.OnConnect()
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Writes (pings, close) are serialized; gorilla allows one writer.
	var writeMu sync.Mutex
	go func() {
		ticker := time.NewTicker(ing.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sessCtx.Done():
				writeMu.Lock()
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				writeMu.Unlock()
				conn.Close()
				return
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
				writeMu.Unlock()
				if err != nil {
					log.Printf("[ws] ping error: %v", err)
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		bar, ok, err := parseBar(msg)
		if err != nil {
			log.Printf("[ws] parse error: %v", err)
			continue
		}
		if !ok {
			continue
		}
		select {
		case barCh <- bar:
		default:
			if ing.OnDrop != nil {
				ing.OnDrop(bar)
			} else {
				log.Printf("[ws] barCh full, dropping bar %s@%d", bar.Symbol, bar.TS.Unix())
			}
		}
	}
}

// parseBar decodes a feed message. ok is false for non-bar messages.
func parseBar(msg []byte) (model.Bar, bool, error) {
	var w wireBar
	if err := json.Unmarshal(msg, &w); err != nil {
		return model.Bar{}, false, err
	}
	if w.Type != "bar" {
		return model.Bar{}, false, nil
	}
	if w.Symbol == "" {
		return model.Bar{}, false, fmt.Errorf("bar without symbol")
	}
	if w.TS <= 0 {
		return model.Bar{}, false, fmt.Errorf("bar %s without timestamp", w.Symbol)
	}
	if !w.Close.IsPositive() {
		return model.Bar{}, false, fmt.Errorf("bar %s@%d: close must be positive", w.Symbol, w.TS)
	}
	return model.Bar{
		Symbol: w.Symbol,
		TS:     time.Unix(w.TS, 0).UTC(),
		Open:   w.Open,
		High:   w.High,
		Low:    w.Low,
		Close:  w.Close,
		Volume: w.Volume,
	}, true, nil
}
