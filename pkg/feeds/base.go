package feeds

import (
	"sync"

	"github.com/gopartyparrot/solana-flux-aggregator/pkg/logging"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/metrics"
)

// BaseSource provides common functionality for price sources: the update
// channel, the subscribed-pair set and the connection flag. Venue adapters
// embed it and implement the transport specifics.
type BaseSource struct {
	name string

	pairsMu sync.Mutex
	pairs   map[string]bool

	updates chan Price

	connMu    sync.RWMutex
	connected bool

	logger *logging.Logger
}

// NewBaseSource creates a new base source.
func NewBaseSource(name string, logger *logging.Logger) *BaseSource {
	return &BaseSource{
		name:    name,
		pairs:   make(map[string]bool),
		updates: make(chan Price, 64),
		logger:  logger.With("source", name),
	}
}

// Name returns the source name
func (b *BaseSource) Name() string {
	return b.name
}

// Updates returns the price update stream
func (b *BaseSource) Updates() <-chan Price {
	return b.updates
}

// AddPair records a pair subscription. It returns false when the pair was
// already subscribed, so that Subscribe implementations stay idempotent.
func (b *BaseSource) AddPair(pair string) bool {
	b.pairsMu.Lock()
	defer b.pairsMu.Unlock()
	if b.pairs[pair] {
		return false
	}
	b.pairs[pair] = true
	return true
}

// Pairs returns the subscribed pairs.
func (b *BaseSource) Pairs() []string {
	b.pairsMu.Lock()
	defer b.pairsMu.Unlock()
	pairs := make([]string, 0, len(b.pairs))
	for pair := range b.pairs {
		pairs = append(pairs, pair)
	}
	return pairs
}

// CheckConnection reports the connection flag
func (b *BaseSource) CheckConnection() bool {
	b.connMu.RLock()
	defer b.connMu.RUnlock()
	return b.connected
}

// SetConnected sets the connection flag and the health gauge
func (b *BaseSource) SetConnected(connected bool) {
	b.connMu.Lock()
	b.connected = connected
	b.connMu.Unlock()
	metrics.RecordSourceHealth(b.name, connected)
}

// Publish delivers a price to the update stream. Delivery never blocks the
// producer; when the consumer lags the update is dropped, the next one will
// carry a fresher value anyway.
func (b *BaseSource) Publish(p Price) {
	select {
	case b.updates <- p:
	default:
		b.logger.Warn("update channel full, dropping price", "pair", p.Pair)
	}
}

// Logger returns the source logger
func (b *BaseSource) Logger() *logging.Logger {
	return b.logger
}
