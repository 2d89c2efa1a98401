package config

import "fmt"

// Timestamp policies for the median price produced by an aggregated feed.
const (
	// TimestampPolicyNow stamps the median with the wall clock at computation time.
	TimestampPolicyNow = "now"
	// TimestampPolicyLatest stamps the median with the newest source observation.
	TimestampPolicyLatest = "latest"
)

// Validate checks configuration for errors
func Validate(cfg *Config) error {
	if cfg.Chain.RPCURL == "" {
		return fmt.Errorf("chain: %w", ErrRPCURLRequired)
	}
	if cfg.Chain.OracleOwner == "" {
		return fmt.Errorf("chain: %w", ErrOracleOwnerRequired)
	}
	if cfg.DeployFile == "" {
		return ErrDeployFileRequired
	}

	if len(cfg.Sources) == 0 {
		return ErrNoSourcesConfigured
	}
	for i, source := range cfg.Sources {
		if source.Type == "" || source.Name == "" {
			return fmt.Errorf("source %d: %w", i, ErrSourceNameRequired)
		}
	}

	if err := validateSubmitter("default", &cfg.Submitters.Default); err != nil {
		return err
	}
	for pair := range cfg.Submitters.Pairs {
		sc := cfg.Submitters.Pairs[pair]
		if err := validateSubmitter(pair, &sc); err != nil {
			return err
		}
	}

	if err := validateTimestampPolicy(cfg.Feeds.TimestampPolicy); err != nil {
		return fmt.Errorf("feeds: %w", err)
	}

	if err := validateLoggingConfig(&cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func validateSubmitter(pair string, sc *SubmitterConfig) error {
	if sc.MinValueChangeForNewRound < 0 {
		return fmt.Errorf("submitter %s: %w", pair, ErrNegativeMinValueChange)
	}
	if sc.TimestampPolicy != "" {
		if err := validateTimestampPolicy(sc.TimestampPolicy); err != nil {
			return fmt.Errorf("submitter %s: %w", pair, err)
		}
	}
	if sc.Relay != nil {
		if sc.Relay.NodeURL == "" || sc.Relay.JobID == "" {
			return fmt.Errorf("submitter %s: %w", pair, ErrRelayIncomplete)
		}
	}
	return nil
}

func validateTimestampPolicy(policy string) error {
	if policy != TimestampPolicyNow && policy != TimestampPolicyLatest {
		return fmt.Errorf("%w: %s", ErrInvalidTimestampPolicy, policy)
	}
	return nil
}

func validateLoggingConfig(cfg *LoggingConfig) error {
	switch cfg.Level {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return fmt.Errorf("%w: %s", ErrInvalidLogLevel, cfg.Level)
	}
	switch cfg.Format {
	case "json", "text":
	default:
		return fmt.Errorf("%w: %s", ErrInvalidLogFormat, cfg.Format)
	}
	return nil
}
