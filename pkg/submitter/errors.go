package submitter

import "errors"

var (
	// ErrDecimalsMismatch indicates a price whose decimals differ from the
	// aggregator configuration. This is a configuration fault and fatal.
	ErrDecimalsMismatch = errors.New("price decimals mismatch aggregator config")
	// ErrSubmitFailed indicates that a round submission failed after all retries.
	ErrSubmitFailed = errors.New("round submission failed")
	// ErrRelayNotConfigured indicates a relay call without relay configuration.
	ErrRelayNotConfigured = errors.New("relay not configured")
)
