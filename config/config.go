// Package config loads the trader configuration from the environment (and an
// optional .env file) and the phase thresholds from an optional YAML file.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"phasetrader/internal/indicator"
	"phasetrader/internal/portfolio"
	"phasetrader/internal/strategy"
)

// Object store backends.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Strategies selectable with STRATEGY.
const (
	StrategyPhase     = "phase"
	StrategyCrossover = "crossover"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Market
	Symbol          string          `envconfig:"SYMBOL" default:"ETHEUR"`
	QuoteCurrency   string          `envconfig:"QUOTE_CURRENCY" default:"EUR"`
	InitialCash     decimal.Decimal `envconfig:"INITIAL_CASH" default:"1000"`
	InitialHoldings decimal.Decimal `envconfig:"INITIAL_HOLDINGS" default:"0"`
	Resolution      time.Duration   `envconfig:"BAR_RESOLUTION" default:"1h"`
	FeedResolution  time.Duration   `envconfig:"FEED_RESOLUTION" default:"0"`
	LiveMode        bool            `envconfig:"LIVE_MODE" default:"false"`
	Strategy        string          `envconfig:"STRATEGY" default:"phase"`

	// Strategy
	WarmupBars      int    `envconfig:"WARMUP_BARS" default:"80"`
	WindowSize      int    `envconfig:"WINDOW_SIZE" default:"10"`
	MinTrendSamples int    `envconfig:"MIN_TREND_SAMPLES" default:"2"`
	ParamsFile      string `envconfig:"PARAMS_FILE"`

	// Indicators
	VeryFastPeriod int     `envconfig:"VERY_FAST_PERIOD" default:"12"`
	FastPeriod     int     `envconfig:"FAST_PERIOD" default:"26"`
	SlowPeriod     int     `envconfig:"SLOW_PERIOD" default:"55"`
	MACDFast       int     `envconfig:"MACD_FAST" default:"12"`
	MACDSlow       int     `envconfig:"MACD_SLOW" default:"55"`
	MACDSignal     int     `envconfig:"MACD_SIGNAL" default:"26"`
	ADXPeriod      int     `envconfig:"ADX_PERIOD" default:"19"`
	RSIPeriod      int     `envconfig:"RSI_PERIOD" default:"26"`
	BBPeriod       int     `envconfig:"BB_PERIOD" default:"26"`
	BBK            float64 `envconfig:"BB_K" default:"1.0"`

	// Execution and risk
	SlippageBps         int64           `envconfig:"SLIPPAGE_BPS" default:"5"`
	FeeRate             decimal.Decimal `envconfig:"FEE_RATE" default:"0"`
	MaxPositionNotional decimal.Decimal `envconfig:"MAX_POSITION_NOTIONAL" default:"0"`
	MaxDailyLoss        decimal.Decimal `envconfig:"MAX_DAILY_LOSS" default:"0"`
	MaxDrawdownPct      float64         `envconfig:"MAX_DRAWDOWN_PCT" default:"50"`

	// Infrastructure
	SQLitePath    string   `envconfig:"SQLITE_PATH" default:"data/phasetrader.db"`
	JournalPath   string   `envconfig:"JOURNAL_PATH" default:"data/journal.db"`
	ObjectStore   string   `envconfig:"OBJECT_STORE" default:"sqlite"`
	RedisAddr     string   `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string   `envconfig:"REDIS_PASSWORD"`
	RedisDB       int      `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix   string   `envconfig:"REDIS_PREFIX" default:"phasetrader:"`
	FeedURL       string   `envconfig:"FEED_URL"`
	KafkaBrokers  []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic    string   `envconfig:"KAFKA_TOPIC" default:"phasetrader.events"`
	WebhookURL    string   `envconfig:"WEBHOOK_URL"`
	TelegramToken string   `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChat  string   `envconfig:"TELEGRAM_CHAT_ID"`
	MetricsAddr   string   `envconfig:"METRICS_ADDR" default:":9090"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile  string `envconfig:"LOG_FILE"`

	// Backtest
	ReplaySpeed float64 `envconfig:"REPLAY_SPEED" default:"0"`
}

// Load reads configuration from a .env file (if present) and the
// environment, applying defaults, and validates it.
func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if _, err := c.Pair(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.ObjectStore {
	case StoreSQLite, StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("config: OBJECT_STORE must be sqlite, redis or memory, got %q", c.ObjectStore)
	}
	switch c.Strategy {
	case StrategyPhase, StrategyCrossover:
	default:
		return fmt.Errorf("config: STRATEGY must be phase or crossover, got %q", c.Strategy)
	}
	if c.InitialCash.IsNegative() || c.InitialHoldings.IsNegative() {
		return fmt.Errorf("config: initial balances must not be negative")
	}
	if (c.TelegramToken == "") != (c.TelegramChat == "") {
		return fmt.Errorf("config: TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	if c.Resolution <= 0 {
		return fmt.Errorf("config: BAR_RESOLUTION must be positive")
	}
	if c.FeedResolution < 0 || (c.FeedResolution > 0 && c.Resolution%c.FeedResolution != 0) {
		return fmt.Errorf("config: BAR_RESOLUTION %s must be a multiple of FEED_RESOLUTION %s", c.Resolution, c.FeedResolution)
	}
	if c.WarmupBars < 0 {
		return fmt.Errorf("config: WARMUP_BARS must be >= 0, got %d", c.WarmupBars)
	}
	if err := c.IndicatorConfig().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Pair splits Symbol by QuoteCurrency.
func (c *Config) Pair() (portfolio.Pair, error) {
	return portfolio.ParsePair(c.Symbol, c.QuoteCurrency)
}

// IndicatorConfig maps the indicator periods to a bank configuration.
func (c *Config) IndicatorConfig() indicator.BankConfig {
	return indicator.BankConfig{
		VeryFastPeriod: c.VeryFastPeriod,
		FastPeriod:     c.FastPeriod,
		SlowPeriod:     c.SlowPeriod,
		MACDFast:       c.MACDFast,
		MACDSlow:       c.MACDSlow,
		MACDSignal:     c.MACDSignal,
		ADXPeriod:      c.ADXPeriod,
		RSIPeriod:      c.RSIPeriod,
		BBPeriod:       c.BBPeriod,
		BBK:            c.BBK,
	}
}

// EffectiveWarmupBars is the larger of WarmupBars and the bars the
// indicators need to become ready.
func (c *Config) EffectiveWarmupBars() int {
	return max(c.WarmupBars, c.IndicatorConfig().WarmupBars())
}

// Params returns the strategy thresholds: defaults, the window settings from
// the environment, then the YAML overrides from ParamsFile if set.
func (c *Config) Params() (strategy.Params, error) {
	p := strategy.DefaultParams()
	p.WindowSize = c.WindowSize
	p.MinTrendSamples = c.MinTrendSamples
	if c.ParamsFile != "" {
		return LoadParams(c.ParamsFile, p)
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("config: %w", err)
	}
	return p, nil
}

// SourceResolution is the resolution of feed bars; 0 means the feed already
// delivers BAR_RESOLUTION bars.
func (c *Config) SourceResolution() time.Duration {
	if c.FeedResolution == 0 {
		return c.Resolution
	}
	return c.FeedResolution
}

// RiskLimits returns the configured risk limits.
func (c *Config) RiskLimits() portfolio.RiskLimits {
	return portfolio.RiskLimits{
		MaxPositionNotional: c.MaxPositionNotional,
		MaxDailyLoss:        c.MaxDailyLoss,
		MaxDrawdownPct:      c.MaxDrawdownPct,
	}
}
