package submitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gopartyparrot/solana-flux-aggregator/pkg/chain"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/logging"
)

const relayRequestTimeout = 10 * time.Second

// RelayConfig points a submitter at an external relay node that performs
// the actual transaction on our behalf.
type RelayConfig struct {
	// NodeURL is the relay's base URL
	NodeURL string
	// JobID identifies the relay job to trigger
	JobID string
	// AccessKey and Secret authenticate the trigger request
	AccessKey string
	Secret    string
}

// RelayClient hands submission intents to a relay node. Requests are
// fire-and-forget; the relay owns the eventual transaction.
type RelayClient struct {
	cfg    RelayConfig
	client *http.Client
	logger *logging.Logger
}

// NewRelayClient creates a relay client.
func NewRelayClient(cfg RelayConfig, logger *logging.Logger) *RelayClient {
	return &RelayClient{
		cfg:    cfg,
		client: &http.Client{Timeout: relayRequestTimeout},
		logger: logger,
	}
}

type relayRunRequest struct {
	Round      uint64 `json:"round"`
	Aggregator string `json:"aggregator"`
	PairSymbol string `json:"pairSymbol"`
}

// RequestSubmit asks the relay to run its submission job for a round. A
// non-2xx response is an error; the caller decides whether to care.
func (r *RelayClient) RequestSubmit(ctx context.Context, roundID uint64, aggregator chain.Address, pairSymbol string) error {
	if r.cfg.NodeURL == "" || r.cfg.JobID == "" {
		return ErrRelayNotConfigured
	}

	body, err := json.Marshal(relayRunRequest{
		Round:      roundID,
		Aggregator: aggregator.String(),
		PairSymbol: pairSymbol,
	})
	if err != nil {
		return fmt.Errorf("encode relay request: %w", err)
	}

	url := fmt.Sprintf("%s/v2/specs/%s/runs", r.cfg.NodeURL, r.cfg.JobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Relay-Access-Key", r.cfg.AccessKey)
	req.Header.Set("X-Relay-Secret", r.cfg.Secret)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("relay request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("relay returned status %d", resp.StatusCode)
	}

	r.logger.Debug("relay run triggered", "round", roundID, "jobId", r.cfg.JobID)
	return nil
}
