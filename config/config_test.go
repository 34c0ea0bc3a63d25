package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phasetrader/internal/indicator"
	"phasetrader/internal/portfolio"
	"phasetrader/internal/strategy"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ETHEUR", cfg.Symbol)
	assert.Equal(t, "1000", cfg.InitialCash.String())
	assert.True(t, cfg.InitialHoldings.IsZero())
	assert.Equal(t, time.Hour, cfg.Resolution)
	assert.False(t, cfg.LiveMode)
	assert.Equal(t, StoreSQLite, cfg.ObjectStore)
	assert.Equal(t, StrategyPhase, cfg.Strategy)
	assert.Equal(t, int64(5), cfg.SlippageBps)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, indicator.DefaultBankConfig(), cfg.IndicatorConfig())
	assert.Equal(t, 80, cfg.EffectiveWarmupBars())
	assert.Equal(t, time.Hour, cfg.SourceResolution())

	pair, err := cfg.Pair()
	require.NoError(t, err)
	assert.Equal(t, portfolio.Pair{Base: "ETH", Quote: "EUR"}, pair)

	p, err := cfg.Params()
	require.NoError(t, err)
	assert.Equal(t, strategy.DefaultParams(), p)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SYMBOL", "BTCUSD")
	t.Setenv("QUOTE_CURRENCY", "USD")
	t.Setenv("INITIAL_CASH", "2500.50")
	t.Setenv("LIVE_MODE", "true")
	t.Setenv("OBJECT_STORE", "redis")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("BAR_RESOLUTION", "15m")
	t.Setenv("FEED_RESOLUTION", "1m")
	t.Setenv("WINDOW_SIZE", "20")
	t.Setenv("WARMUP_BARS", "10")
	t.Setenv("MAX_DRAWDOWN_PCT", "12.5")
	t.Setenv("FEE_RATE", "0.0026")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "2500.5", cfg.InitialCash.String())
	assert.True(t, cfg.LiveMode)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 15*time.Minute, cfg.Resolution)
	assert.Equal(t, time.Minute, cfg.SourceResolution())
	assert.Equal(t, "0.0026", cfg.FeeRate.String())
	assert.Equal(t, 12.5, cfg.RiskLimits().MaxDrawdownPct)

	// Indicator readiness wins over a shorter configured warm-up.
	assert.Equal(t, cfg.IndicatorConfig().WarmupBars(), cfg.EffectiveWarmupBars())

	p, err := cfg.Params()
	require.NoError(t, err)
	assert.Equal(t, 20, p.WindowSize)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string][2]string{
		"unknown store":    {"OBJECT_STORE", "etcd"},
		"unknown strategy": {"STRATEGY", "martingale"},
		"quote mismatch":   {"QUOTE_CURRENCY", "USD"},
		"zero period":      {"RSI_PERIOD", "0"},
		"negative cash":    {"INITIAL_CASH", "-1"},
		"bad decimal":      {"INITIAL_CASH", "lots"},
		"feed resolution":  {"FEED_RESOLUTION", "7m"},
		"telegram token":   {"TELEGRAM_BOT_TOKEN", "abc"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func writeParams(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadParams_Overrides(t *testing.T) {
	path := writeParams(t, `
allocation_fraction: 0.5
target_gain_pct: 0.06
rsi_overbought: 70
macd_slope_angle_deg: 20
volume_streak_min: 3
window_size: 14
`)
	p, err := LoadParams(path, strategy.DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, "0.5", p.AllocationFraction.String())
	assert.Equal(t, "0.06", p.TargetGainPct.String())
	assert.Equal(t, "70", p.RSIOverbought.String())
	assert.Equal(t, 20.0, p.MACDSlopeAngleDeg)
	assert.Equal(t, 3, p.VolumeStreakMin)
	assert.Equal(t, 14, p.WindowSize)

	// Untouched fields keep the base values.
	assert.Equal(t, "0.97", p.StopLossFactor.String())
	assert.Equal(t, int32(3), p.QuantityDecimals)
}

func TestLoadParams_Errors(t *testing.T) {
	base := strategy.DefaultParams()

	_, err := LoadParams(filepath.Join(t.TempDir(), "missing.yaml"), base)
	assert.Error(t, err)

	_, err = LoadParams(writeParams(t, "allocation_fraction: [1, 2]\n"), base)
	assert.Error(t, err)

	got, err := LoadParams(writeParams(t, "allocation_fraction: 1.5\n"), base)
	assert.Error(t, err)
	assert.Equal(t, base, got)
}

func TestConfig_ParamsFromFile(t *testing.T) {
	t.Setenv("PARAMS_FILE", writeParams(t, "trailing_stop_pct: 0.02\n"))
	cfg, err := Load()
	require.NoError(t, err)
	p, err := cfg.Params()
	require.NoError(t, err)
	assert.Equal(t, "0.02", p.TrailingStopPct.String())
}
