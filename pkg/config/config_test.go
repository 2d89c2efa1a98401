package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
chain:
  rpc_url: http://localhost:8899
  ws_url: ws://localhost:8900
  tx_bridge_url: http://localhost:7000
  oracle_owner: "0101010101010101010101010101010101010101010101010101010101010101"

deploy_file: deploy.json

feeds:
  stale_timeout: 90s
  accept_window: 2m
  timestamp_policy: now

sources:
  - type: binance
    name: binance
    enabled: true
  - type: coinbase
    name: coinbase
    enabled: true
  - type: file
    name: localprices
    enabled: false
    config:
      dir: /var/lib/prices

submitters:
  default:
    sources: [binance, coinbase]
    min_value_change_for_new_round: 100
  pairs:
    btc:usd:
      sources: [binance, coinbase]
      excluded_sources: [coinbase]
      min_value_change_for_new_round: 50
      timestamp_policy: latest
      relay:
        node_url: ${RELAY_NODE_URL}
        job_id: job-1
        access_key: ${RELAY_ACCESS_KEY}
        secret: ${RELAY_SECRET}

api:
  enabled: true

metrics:
  enabled: true

notify:
  webhook_url: http://localhost:9000/hook

logging:
  level: debug
  format: json
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("RELAY_NODE_URL", "http://relay.example")
	t.Setenv("RELAY_ACCESS_KEY", "key")
	t.Setenv("RELAY_SECRET", "secret")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, "http://localhost:8899", cfg.Chain.RPCURL)
	assert.Equal(t, "deploy.json", cfg.DeployFile)
	assert.Equal(t, 90*time.Second, cfg.Feeds.StaleTimeout.ToDuration())
	assert.Equal(t, 2*time.Minute, cfg.Feeds.AcceptWindow.ToDuration())
	assert.Len(t, cfg.Sources, 3)
	assert.Equal(t, "/var/lib/prices", cfg.Sources[2].Config["dir"])

	btc := cfg.Submitters.Pairs["btc:usd"]
	assert.Equal(t, []string{"coinbase"}, btc.ExcludedSources)
	assert.Equal(t, int64(50), btc.MinValueChangeForNewRound)
	require.NotNil(t, btc.Relay)
	assert.Equal(t, "http://relay.example", btc.Relay.NodeURL, "env references must be expanded")
	assert.Equal(t, "secret", btc.Relay.Secret)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
chain:
  rpc_url: http://localhost:8899
  oracle_owner: "01"
deploy_file: deploy.json
sources:
  - type: binance
    name: binance
submitters:
  default:
    sources: [binance]
api:
  enabled: true
metrics:
  enabled: true
`))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.Feeds.StaleTimeout.ToDuration())
	assert.Equal(t, TimestampPolicyNow, cfg.Feeds.TimestampPolicy)
	assert.Equal(t, int64(100), cfg.Submitters.Default.MinValueChangeForNewRound)
	assert.Equal(t, ":8080", cfg.API.Addr)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.Equal(t, 10*time.Second, cfg.Notify.Timeout.ToDuration())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "chain: ["))
	assert.Error(t, err)
}

func TestSubmitterFor(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	t.Run("configured pair", func(t *testing.T) {
		sc := cfg.SubmitterFor("btc:usd")
		assert.Equal(t, int64(50), sc.MinValueChangeForNewRound)
		assert.Equal(t, TimestampPolicyLatest, sc.TimestampPolicy)
		// feed-level defaults fill the gaps
		assert.Equal(t, 90*time.Second, sc.StaleTimeout.ToDuration())
		require.NotNil(t, sc.AcceptWindow)
		assert.Equal(t, 2*time.Minute, sc.AcceptWindow.ToDuration())
	})

	t.Run("unknown pair falls back to default", func(t *testing.T) {
		sc := cfg.SubmitterFor("sol:usd")
		assert.Equal(t, []string{"binance", "coinbase"}, sc.Sources)
		assert.Equal(t, int64(100), sc.MinValueChangeForNewRound)
		assert.Equal(t, TimestampPolicyNow, sc.TimestampPolicy)
	})
}

func TestValidateFailures(t *testing.T) {
	t.Setenv("RELAY_NODE_URL", "http://relay.example")
	t.Setenv("RELAY_ACCESS_KEY", "key")
	t.Setenv("RELAY_SECRET", "secret")

	valid := func() *Config {
		cfg, err := Load(writeConfig(t, sampleConfig))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"missing rpc url", func(c *Config) { c.Chain.RPCURL = "" }, ErrRPCURLRequired},
		{"missing oracle owner", func(c *Config) { c.Chain.OracleOwner = "" }, ErrOracleOwnerRequired},
		{"missing deploy file", func(c *Config) { c.DeployFile = "" }, ErrDeployFileRequired},
		{"no sources", func(c *Config) { c.Sources = nil }, ErrNoSourcesConfigured},
		{"unnamed source", func(c *Config) { c.Sources[0].Name = "" }, ErrSourceNameRequired},
		{"negative min change", func(c *Config) { c.Submitters.Default.MinValueChangeForNewRound = -1 }, ErrNegativeMinValueChange},
		{"relay without job id", func(c *Config) {
			sc := c.Submitters.Pairs["btc:usd"]
			sc.Relay.JobID = ""
			c.Submitters.Pairs["btc:usd"] = sc
		}, ErrRelayIncomplete},
		{"bad timestamp policy", func(c *Config) { c.Feeds.TimestampPolicy = "oldest" }, ErrInvalidTimestampPolicy},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, ErrInvalidLogLevel},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, ErrInvalidLogFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorIs(t, Validate(cfg), tt.wantErr)
		})
	}
}

func TestDurationUnmarshal(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
feeds:
  stale_timeout: 1h30m
`))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, cfg.Feeds.StaleTimeout.ToDuration())

	_, err = Load(writeConfig(t, `
feeds:
  stale_timeout: soon
`))
	assert.Error(t, err)
}
