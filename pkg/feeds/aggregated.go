package feeds

import (
	"context"
	"sync"
	"time"

	"github.com/gopartyparrot/solana-flux-aggregator/pkg/logging"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/metrics"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/notify"
)

// FeedConfig configures one aggregated feed.
type FeedConfig struct {
	// Oracle is the submitter identity used for logging and metric labels.
	Oracle string
	// StaleTimeout is how long a source may stay silent before the stale
	// checker requests a reconnect. The checker runs at half this period.
	StaleTimeout time.Duration
	// AcceptWindow drops prices older than this from the median. Zero
	// disables the cutoff, in which case the median uses whatever the
	// sources last produced. Deployments differ here; the knob is explicit.
	AcceptWindow time.Duration
	// TimestampPolicy selects the timestamp of the median price: "now" for
	// the wall clock at computation time, "latest" for the newest surviving
	// source observation.
	TimestampPolicy string
	// ExcludedSources are subscribed and tracked but kept out of the median.
	ExcludedSources []string
}

// DefaultStaleTimeout is the stale timeout applied when none is configured.
const DefaultStaleTimeout = 2 * time.Minute

// AggregatedFeed subscribes a set of sources to one pair and derives a single
// stream of median prices. The feed owns its maps exclusively: they are
// mutated only by the feed's own event loop.
type AggregatedFeed struct {
	pair     string
	sources  []Source
	byName   map[string]Source
	cfg      FeedConfig
	excluded map[string]bool
	notifier notify.Notifier
	logger   *logging.Logger

	mu        sync.Mutex
	latest    map[string]Price
	lastSeen  map[string]time.Time
	listeners []chan Price
	started   bool

	now func() time.Time
}

// NewAggregatedFeed creates an aggregated feed for a pair over the given sources.
func NewAggregatedFeed(srcs []Source, pair string, cfg FeedConfig, notifier notify.Notifier, logger *logging.Logger) *AggregatedFeed {
	if cfg.StaleTimeout == 0 {
		cfg.StaleTimeout = DefaultStaleTimeout
	}

	excluded := make(map[string]bool, len(cfg.ExcludedSources))
	for _, name := range cfg.ExcludedSources {
		excluded[name] = true
	}

	byName := make(map[string]Source, len(srcs))
	for _, src := range srcs {
		byName[src.Name()] = src
	}

	return &AggregatedFeed{
		pair:     pair,
		sources:  srcs,
		byName:   byName,
		cfg:      cfg,
		excluded: excluded,
		notifier: notifier,
		logger:   logger.With("oracle", cfg.Oracle, "aggregator", pair),
		latest:   make(map[string]Price),
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Pair returns the pair this feed aggregates.
func (f *AggregatedFeed) Pair() string {
	return f.pair
}

// Start subscribes the sources and runs the event loop and stale checker
// until the context is canceled. A second Start is a no-op.
func (f *AggregatedFeed) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return nil
	}
	f.started = true
	f.mu.Unlock()

	for _, src := range f.sources {
		if err := src.Subscribe(f.pair); err != nil {
			// allow a later Start to retry the subscriptions
			f.mu.Lock()
			f.started = false
			f.mu.Unlock()
			return err
		}
		f.mu.Lock()
		f.lastSeen[src.Name()] = f.now()
		f.mu.Unlock()
		f.logger.Info("aggregated feed subscribed", "feed", src.Name())
	}

	events := make(chan Price, 64)
	for _, src := range f.sources {
		go forward(ctx, src.Updates(), events)
	}

	go f.run(ctx, events)
	return nil
}

func forward(ctx context.Context, in <-chan Price, out chan<- Price) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- p:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (f *AggregatedFeed) run(ctx context.Context, events <-chan Price) {
	ticker := time.NewTicker(f.cfg.StaleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case p := <-events:
			f.HandleUpdate(p)
		case <-ticker.C:
			f.CheckStale()
		}
	}
}

// HandleUpdate stores a source observation and publishes the resulting
// median to all listeners. Prices for other pairs are ignored.
func (f *AggregatedFeed) HandleUpdate(p Price) {
	if p.Pair != f.pair {
		return
	}

	metrics.RecordFeedPrice(f.cfg.Oracle, f.pair, p.Source, p.Value, p.Decimals)

	f.mu.Lock()
	f.latest[p.Source] = p
	f.lastSeen[p.Source] = f.now()
	listeners := make([]chan Price, len(f.listeners))
	copy(listeners, f.listeners)
	f.mu.Unlock()

	median, ok := f.Median()
	if !ok {
		return
	}

	for _, ch := range listeners {
		select {
		case ch <- median:
		default:
			// listener lagging, it will get the next update
		}
	}
}

// Medians returns a lazy, infinite stream of median prices, one element per
// source update that yields a valid median. Every call registers an
// independent subscriber.
func (f *AggregatedFeed) Medians() <-chan Price {
	ch := make(chan Price, 16)
	f.mu.Lock()
	f.listeners = append(f.listeners, ch)
	f.mu.Unlock()
	return ch
}

// Median computes the current median price. It reports false when no valid
// median exists, e.g. all sources excluded, non-positive or stale.
func (f *AggregatedFeed) Median() (Price, bool) {
	f.mu.Lock()
	prices := make([]Price, 0, len(f.latest))
	for _, p := range f.latest {
		prices = append(prices, p)
	}
	f.mu.Unlock()

	now := f.now()

	values := make([]int64, 0, len(prices))
	var latest time.Time
	decimals := 0
	for _, p := range prices {
		if p.Value <= 0 {
			continue
		}
		if f.excluded[p.Source] {
			continue
		}
		if f.cfg.AcceptWindow > 0 && p.Time.Before(now.Add(-f.cfg.AcceptWindow)) {
			continue
		}
		values = append(values, p.Value)
		decimals = p.Decimals
		if p.Time.After(latest) {
			latest = p.Time
		}
	}

	value, ok := Median(values)
	if !ok {
		return Price{}, false
	}

	ts := now
	if f.cfg.TimestampPolicy == "latest" {
		ts = latest
	}

	return Price{
		Source:   SourceMedian,
		Pair:     f.pair,
		Decimals: decimals,
		Value:    value,
		Time:     ts,
	}, true
}

// CheckStale inspects source health and last-seen times, raising a critical
// notification and requesting a reconnect for anything dead or silent. A
// silent source is kicked even when its connection reports healthy. Failed
// reconnects are not retried here, the next tick re-detects them.
func (f *AggregatedFeed) CheckStale() {
	for _, src := range f.sources {
		if src.CheckConnection() {
			continue
		}
		meta := map[string]interface{}{
			"feed":      f.pair,
			"source":    src.Name(),
			"submitter": f.cfg.Oracle,
		}
		f.logger.Error("source connection lost", "source", src.Name())
		f.notifier.Critical("AggregatedFeed", "source connection lost, requesting reconnect", meta, nil)
		src.Reconnect()
	}

	now := f.now()
	f.mu.Lock()
	stale := make(map[string]time.Time)
	for name, seen := range f.lastSeen {
		if now.Sub(seen) > f.cfg.StaleTimeout {
			stale[name] = seen
		}
	}
	f.mu.Unlock()

	for name, seen := range stale {
		src, ok := f.byName[name]
		if !ok {
			continue
		}
		meta := map[string]interface{}{
			"feed":       f.pair,
			"source":     name,
			"submitter":  f.cfg.Oracle,
			"lastUpdate": seen.UTC().Format(time.RFC3339),
		}
		f.logger.Error("no price data from source", "source", name, "lastUpdate", seen)
		f.notifier.Critical("AggregatedFeed", "no price data from source, requesting reconnect", meta, nil)
		src.Reconnect()
	}
}
