package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	"github.com/trickingegg/golden-dragon/internal/services/strategy"
)

const minimal = `
environment: test
feed:
  source: websocket
  websocket_url: ws://localhost:9001/stream
instruments:
  - id: BBG004730N88
    name: SBER
    kind: STOCK
    currency: RUB
    lot_size: 10
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, "test", c.Environment)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, BrokerPaper, c.Broker.Mode)
	assert.Equal(t, time.Minute, c.Trading.BarDuration)
	assert.Equal(t, 15*time.Second, c.Trading.AnalysisDelay)
	assert.Equal(t, 10*time.Second, c.Trading.AnalysisEvery)
	assert.Equal(t, 60*time.Second, c.Trading.Cooldown)
	assert.Equal(t, 24*time.Hour, c.Trading.SignalExpiry)
	assert.Equal(t, 7, c.Trading.HistoryDays)
	assert.Equal(t, "orders", c.Kafka.Topics.Orders)
	assert.Equal(t, 5*time.Minute, c.Redis.MarginTTL)

	assert.Equal(t, 1.0, c.Risk.RiskPercent)
	assert.Equal(t, 1000.0, c.Risk.MinPosition)
	assert.Equal(t, 20.0, c.Risk.MaxPositionPercent)
	assert.Equal(t, strategy.AggressiveMeanReversion(), c.Strategies.Aggressive)
	assert.Equal(t, 7, c.Strategies.Scalping.RSIPeriod)

	require.Len(t, c.Instruments, 1)
	assert.Equal(t, int64(10), c.Instruments[0].Lot())
}

func TestParseOverridesNestedValues(t *testing.T) {
	c, err := Parse([]byte(minimal + `
risk:
  risk_percent: 2
strategies:
  enabled: [SCALPING, ADAPTIVE_TREND]
  mean_reversion_conservative:
    rsi_lower: 25
`))
	require.NoError(t, err)

	assert.Equal(t, 2.0, c.Risk.RiskPercent)
	assert.Equal(t, 1000.0, c.Risk.MinPosition)
	assert.Equal(t, []string{"SCALPING", "ADAPTIVE_TREND"}, c.Strategies.Enabled)
	assert.Equal(t, 25.0, c.Strategies.Conservative.RSILower)
	assert.Equal(t, 20, c.Strategies.Conservative.BandPeriod)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"no instruments": "environment: test\nfeed:\n  websocket_url: ws://x\n",
		"unknown strategy": minimal + "strategies:\n  enabled: [MOMENTUM]\n",
		"http broker without url": minimal + "broker:\n  mode: http\n",
		"kafka feed without brokers": "environment: test\nfeed:\n  source: kafka\ninstruments:\n  - {id: A, kind: STOCK, currency: RUB}\n",
		"bad kind": "environment: test\nfeed:\n  websocket_url: ws://x\ninstruments:\n  - {id: A, kind: BOND, currency: RUB}\n",
		"duplicate": minimal + "  - {id: BBG004730N88, kind: STOCK, currency: RUB}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))

	t.Setenv("BROKER_TOKEN", "secret")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("INSTRUMENTS", "SiZ4:future:RUB:1, SBER:STOCK:RUB:10")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "secret", c.Broker.Token)
	assert.True(t, c.Redis.Enabled)
	assert.Equal(t, "redis:6379", c.Redis.Addr)
	assert.Equal(t, 9090, c.Server.Port)
	require.Len(t, c.Instruments, 2)
	assert.Equal(t, models.KindFuture, c.Instruments[0].Kind)
	assert.Equal(t, int64(10), c.Instruments[1].LotSize)
}

func TestParseInstrumentsMalformed(t *testing.T) {
	_, err := parseInstruments("SBER:STOCK")
	assert.Error(t, err)
	_, err = parseInstruments("SBER:STOCK:RUB:x")
	assert.Error(t, err)
}
