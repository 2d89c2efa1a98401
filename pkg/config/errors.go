// Package config provides configuration loading and validation for the flux feeder.
package config

import "errors"

var (
	// ErrRPCURLRequired indicates that the chain RPC URL is missing.
	ErrRPCURLRequired = errors.New("rpc_url is required")
	// ErrOracleOwnerRequired indicates that the oracle owner address is missing.
	ErrOracleOwnerRequired = errors.New("oracle_owner is required")
	// ErrDeployFileRequired indicates that the deploy file path is missing.
	ErrDeployFileRequired = errors.New("deploy_file is required")
	// ErrNoSourcesConfigured indicates that no price sources are configured.
	ErrNoSourcesConfigured = errors.New("at least one price source must be configured")
	// ErrSourceNameRequired indicates a source entry without type or name.
	ErrSourceNameRequired = errors.New("source type and name are required")
	// ErrNegativeMinValueChange indicates a negative min_value_change_for_new_round.
	ErrNegativeMinValueChange = errors.New("min_value_change_for_new_round must not be negative")
	// ErrRelayIncomplete indicates a relay config without node URL or job id.
	ErrRelayIncomplete = errors.New("relay requires node_url and job_id")
	// ErrInvalidTimestampPolicy indicates an unknown median timestamp policy.
	ErrInvalidTimestampPolicy = errors.New("timestamp_policy must be 'now' or 'latest'")
	// ErrInvalidLogLevel indicates an unknown log level.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat indicates an unknown log format.
	ErrInvalidLogFormat = errors.New("invalid log format")
)
