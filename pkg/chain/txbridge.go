package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gopartyparrot/solana-flux-aggregator/pkg/logging"
)

// TxBridge implements TxClient against a signing bridge: a sidecar service
// that holds the oracle owner key, signs the submit instruction and
// forwards it to the chain. Keeping the key out of this process is the
// deployment boundary; the bridge's errors pass through verbatim so that
// program error classification keeps working.
type TxBridge struct {
	baseURL string
	client  *http.Client
	logger  *logging.Logger
}

// NewTxBridge creates a bridge client.
func NewTxBridge(baseURL string, logger *logging.Logger) *TxBridge {
	return &TxBridge{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With("component", "txbridge"),
	}
}

type bridgeSubmitResponse struct {
	TxID  string `json:"txid"`
	Error string `json:"error"`
}

type bridgeConfirmRequest struct {
	TxID string `json:"txid"`
}

type bridgeConfirmResponse struct {
	Confirmed bool   `json:"confirmed"`
	Error     string `json:"error"`
}

// Submit sends the submission transaction through the bridge.
func (b *TxBridge) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	var resp bridgeSubmitResponse
	if err := b.post(ctx, "/v1/submit", req, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return resp.TxID, fmt.Errorf("%w: %s", ErrTxRejected, resp.Error)
	}
	return resp.TxID, nil
}

// Confirm waits for the bridge to report the transaction confirmed.
func (b *TxBridge) Confirm(ctx context.Context, txID string) error {
	var resp bridgeConfirmResponse
	if err := b.post(ctx, "/v1/confirm", bridgeConfirmRequest{TxID: txID}, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("%w: %s", ErrNotConfirmed, resp.Error)
	}
	if !resp.Confirmed {
		return fmt.Errorf("%w: %s", ErrNotConfirmed, txID)
	}
	return nil
}

func (b *TxBridge) post(ctx context.Context, path string, payload, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d: %s", ErrTxRejected, resp.StatusCode, string(data))
	}

	return json.Unmarshal(data, result)
}
