package node

import "errors"

var (
	// ErrNoAggregators indicates that the deployment contains no aggregator
	// with an oracle owned by this node's identity.
	ErrNoAggregators = errors.New("no aggregators for oracle owner")
	// ErrSourceNotConfigured indicates that a submitter references a source
	// name absent from the sources configuration.
	ErrSourceNotConfigured = errors.New("source not configured")
)
