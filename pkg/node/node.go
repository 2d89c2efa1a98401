// Package node wires configuration, deployment, feeds and submitters into
// one running oracle node.
package node

import (
	"context"
	"fmt"
	"sync"

	"github.com/gopartyparrot/solana-flux-aggregator/pkg/chain"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/config"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/feeds"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/logging"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/metrics"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/notify"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/submitter"
)

// Node runs one aggregated feed and one submitter per assigned aggregator.
type Node struct {
	cfg      *config.Config
	reader   chain.Reader
	txClient chain.TxClient
	notifier notify.Notifier
	logger   *logging.Logger

	mu    sync.Mutex
	feeds map[string]*feeds.AggregatedFeed
}

// New creates a node.
func New(cfg *config.Config, reader chain.Reader, txClient chain.TxClient, notifier notify.Notifier, logger *logging.Logger) *Node {
	return &Node{
		cfg:      cfg,
		reader:   reader,
		txClient: txClient,
		notifier: notifier,
		logger:   logger,
		feeds:    make(map[string]*feeds.AggregatedFeed),
	}
}

// Feeds returns the running aggregated feeds keyed by pair, for the status API.
func (n *Node) Feeds() map[string]*feeds.AggregatedFeed {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[string]*feeds.AggregatedFeed, len(n.feeds))
	for pair, feed := range n.feeds {
		out[pair] = feed
	}
	return out
}

// Run builds and starts all feeds and submitters and blocks until the
// context is canceled or a submitter fails fatally.
func (n *Node) Run(ctx context.Context) error {
	deployment, err := LoadDeployment(n.cfg.DeployFile)
	if err != nil {
		return err
	}

	assignments, err := deployment.AssignmentsFor(n.cfg.Chain.OracleOwner)
	if err != nil {
		return err
	}

	sources, err := n.buildSources()
	if err != nil {
		return err
	}

	subs := make([]*submitter.Submitter, 0, len(assignments))
	for _, assignment := range assignments {
		sub, err := n.buildSubmitter(ctx, assignment, sources)
		if err != nil {
			return fmt.Errorf("aggregator %s: %w", assignment.PairSymbol, err)
		}
		subs = append(subs, sub)
	}

	n.logger.Info("node starting", "aggregators", len(subs))

	errCh := make(chan error, len(subs))
	for _, sub := range subs {
		sub := sub
		go func() {
			errCh <- sub.Start(ctx)
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// buildSources constructs the enabled sources from configuration. Sources
// are shared across feeds: one venue connection serves every pair.
func (n *Node) buildSources() (map[string]feeds.Source, error) {
	sources := make(map[string]feeds.Source)

	for _, sc := range n.cfg.Sources {
		if !sc.Enabled {
			continue
		}

		scCfg := sc.Config
		if sc.Type == "file" {
			if scCfg == nil {
				scCfg = make(map[string]interface{})
			}
			if _, ok := scCfg["dir"]; !ok {
				scCfg["dir"] = n.cfg.Feeds.PriceFileDir
			}
		}

		src, err := feeds.Create(sc.Type, scCfg)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.Name, err)
		}
		sources[sc.Name] = src
	}

	return sources, nil
}

// buildSubmitter assembles one aggregated feed and its submitter.
func (n *Node) buildSubmitter(ctx context.Context, assignment Assignment, sources map[string]feeds.Source) (*submitter.Submitter, error) {
	sc := n.cfg.SubmitterFor(assignment.PairSymbol)

	feedSources := make([]feeds.Source, 0, len(sc.Sources))
	for _, name := range sc.Sources {
		src, ok := sources[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotConfigured, name)
		}
		feedSources = append(feedSources, src)
	}

	feed := feeds.NewAggregatedFeed(feedSources, assignment.PairSymbol, feeds.FeedConfig{
		Oracle:          assignment.OracleName,
		StaleTimeout:    sc.StaleTimeout.ToDuration(),
		AcceptWindow:    sc.AcceptWindow.ToDuration(),
		TimestampPolicy: sc.TimestampPolicy,
		ExcludedSources: sc.ExcludedSources,
	}, n.notifier, n.logger)

	if err := feed.Start(ctx); err != nil {
		return nil, err
	}

	n.mu.Lock()
	n.feeds[assignment.PairSymbol] = feed
	n.mu.Unlock()

	subCfg := submitter.Config{
		Aggregator:                assignment.Aggregator,
		Oracle:                    assignment.Oracle,
		PairSymbol:                assignment.PairSymbol,
		MinValueChangeForNewRound: sc.MinValueChangeForNewRound,
	}
	if sc.Relay != nil {
		subCfg.Relay = &submitter.RelayConfig{
			NodeURL:   sc.Relay.NodeURL,
			JobID:     sc.Relay.JobID,
			AccessKey: sc.Relay.AccessKey,
			Secret:    sc.Relay.Secret,
		}
	}

	n.watchBalance(assignment)

	return submitter.New(subCfg, n.reader, n.txClient, n.notifier, feed.Medians(), n.logger), nil
}

// watchBalance exports the oracle's withdrawable reward balance as a gauge,
// refreshed on every oracle account mutation.
func (n *Node) watchBalance(assignment Assignment) {
	name := assignment.OracleName
	n.reader.OnAccountChange(assignment.Oracle, func(data []byte) {
		oracle, err := chain.DeserializeOracle(data)
		if err != nil {
			n.logger.Warn("skipping undecodable oracle update", "oracle", name, "error", err)
			return
		}
		metrics.OracleBalance.WithLabelValues(name).Set(float64(oracle.Withdrawable))
	})
}
