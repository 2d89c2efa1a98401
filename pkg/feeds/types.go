package feeds

import (
	"time"
)

// SourceMedian is the source name carried by prices produced by an
// aggregated feed.
const SourceMedian = "median"

// Price is a single observation from a price source. Value is a fixed-point
// integer scaled by 10^Decimals. Prices are immutable once produced.
type Price struct {
	Source   string    `json:"source"`
	Pair     string    `json:"pair"`
	Decimals int       `json:"decimals"`
	Value    int64     `json:"value"`
	Time     time.Time `json:"time"`
}

// Source is the capability interface implemented by all price producers:
// venue websocket adapters, file pollers and on-chain valuation feeds alike.
// The aggregated feed depends only on this interface.
type Source interface {
	// Name returns the unique name of this source
	Name() string

	// Subscribe asks the source to begin producing prices for a pair.
	// Subscribing an already-subscribed pair is a no-op.
	Subscribe(pair string) error

	// Updates returns the stream of price observations. The stream is lazy,
	// infinite and never restarted; a stalled source is reconnected instead.
	Updates() <-chan Price

	// CheckConnection reports whether the source's connection is healthy
	CheckConnection() bool

	// Reconnect asks the source to re-establish its connection
	Reconnect()
}

// SourceFactory is a function that creates a new Source instance
type SourceFactory func(cfg SourceSettings) (Source, error)

// SourceSettings holds the free-form per-source configuration block.
type SourceSettings map[string]interface{}

// GetString retrieves a string value from the source settings.
func (s SourceSettings) GetString(key, defaultValue string) string {
	if val, ok := s[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return defaultValue
}

// GetInt retrieves an integer from the source settings.
func (s SourceSettings) GetInt(key string, defaultValue int) int {
	if val, ok := s[key]; ok {
		if i, ok := val.(int); ok {
			return i
		}
	}
	return defaultValue
}
