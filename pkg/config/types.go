package config

import "time"

// Config is the root configuration structure
type Config struct {
	Chain      ChainConfig      `yaml:"chain"`
	DeployFile string           `yaml:"deploy_file"`
	Feeds      FeedsConfig      `yaml:"feeds"`
	Sources    []SourceConfig   `yaml:"sources"`
	Submitters SubmittersConfig `yaml:"submitters"`
	API        APIConfig        `yaml:"api"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Notify     NotifyConfig     `yaml:"notify"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ChainConfig configures access to the chain hosting the aggregator program
type ChainConfig struct {
	RPCURL      string `yaml:"rpc_url"`       // JSON-RPC endpoint for account reads
	WSURL       string `yaml:"ws_url"`        // WebSocket endpoint for account subscriptions
	TxBridgeURL string `yaml:"tx_bridge_url"` // Signing bridge for transaction submission
	OracleOwner string `yaml:"oracle_owner"`  // Hex address of this node's oracle owner identity
}

// FeedsConfig holds feed-wide defaults, overridable per pair
type FeedsConfig struct {
	StaleTimeout    Duration `yaml:"stale_timeout"`    // Reconnect a source silent for this long (default 2m)
	AcceptWindow    Duration `yaml:"accept_window"`    // Median drops prices older than this; 0 disables the cutoff
	TimestampPolicy string   `yaml:"timestamp_policy"` // "now" or "latest" for the median price timestamp
	PriceFileDir    string   `yaml:"price_file_dir"`   // Directory for file-based price feeds
}

// SourceConfig configures a price source
type SourceConfig struct {
	Type    string                 `yaml:"type"`
	Name    string                 `yaml:"name"`
	Enabled bool                   `yaml:"enabled"`
	Config  map[string]interface{} `yaml:"config"`
}

// SubmittersConfig maps pair symbols to submitter configuration, with a
// default applied to pairs that have no entry of their own.
type SubmittersConfig struct {
	Default SubmitterConfig            `yaml:"default"`
	Pairs   map[string]SubmitterConfig `yaml:"pairs"`
}

// SubmitterConfig configures one (aggregator, oracle) submitter and its feed
type SubmitterConfig struct {
	Sources                   []string     `yaml:"sources"`
	ExcludedSources           []string     `yaml:"excluded_sources"` // Kept out of the median but still subscribed
	MinValueChangeForNewRound int64        `yaml:"min_value_change_for_new_round"`
	StaleTimeout              Duration     `yaml:"stale_timeout"`     // Overrides feeds.stale_timeout when set
	AcceptWindow              *Duration    `yaml:"accept_window"`     // Overrides feeds.accept_window when set
	TimestampPolicy           string       `yaml:"timestamp_policy"`  // Overrides feeds.timestamp_policy when set
	Relay                     *RelayConfig `yaml:"relay"`
}

// RelayConfig configures an external decision relay. When present the
// submitter hands submission intents to the relay instead of transacting.
type RelayConfig struct {
	NodeURL   string `yaml:"node_url"`
	JobID     string `yaml:"job_id"`
	AccessKey string `yaml:"access_key"`
	Secret    string `yaml:"secret"`
}

// APIConfig configures the HTTP status server
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// MetricsConfig configures Prometheus metrics
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// NotifyConfig configures the notification webhook
type NotifyConfig struct {
	WebhookURL string   `yaml:"webhook_url"`
	Timeout    Duration `yaml:"timeout"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Duration is a wrapper around time.Duration for YAML parsing
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(td)
	return nil
}

// ToDuration converts Duration to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}
