package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopartyparrot/solana-flux-aggregator/pkg/feeds/ws"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/logging"
)

const slotPollInterval = 500 * time.Millisecond

// RPCReader implements Reader against a JSON-RPC node: account reads over
// HTTP, account-change subscriptions over the websocket endpoint, and a
// cached current slot refreshed in the background.
type RPCReader struct {
	rpcURL string
	client *http.Client
	wsc    *ws.Client
	logger *logging.Logger

	slot  atomic.Uint64
	reqID atomic.Uint64

	mu        sync.Mutex
	callbacks map[Address][]func([]byte)
	pending   map[uint64]Address // ws request id -> address awaiting confirmation
	active    map[uint64]Address // ws subscription id -> address
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcAccountValue struct {
	Data []string `json:"data"` // [payload, encoding]
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Method string `json:"method"`
	Params *struct {
		Subscription uint64 `json:"subscription"`
		Result       struct {
			Value *rpcAccountValue `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// NewRPCReader creates a reader for the given endpoints. Start must be
// called before OnAccountChange subscriptions become active.
func NewRPCReader(rpcURL, wsURL string, logger *logging.Logger) *RPCReader {
	r := &RPCReader{
		rpcURL:    rpcURL,
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    logger.With("component", "rpc"),
		callbacks: make(map[Address][]func([]byte)),
		pending:   make(map[uint64]Address),
		active:    make(map[uint64]Address),
	}

	r.wsc = ws.NewClient(ws.Config{
		URL:    wsURL,
		Logger: r.logger.ZerologLogger(),
	})
	r.wsc.SetHandlers(r.handleWSMessage, r.handleWSConnect, nil)

	return r
}

// Start connects the websocket and begins tracking the current slot.
func (r *RPCReader) Start(ctx context.Context) error {
	slot, err := r.fetchSlot(ctx)
	if err != nil {
		return fmt.Errorf("initial slot fetch: %w", err)
	}
	r.slot.Store(slot)

	if err := r.wsc.ConnectWithRetry(ctx); err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}

	go r.pollSlot(ctx)
	return nil
}

// Slot returns the current slot.
func (r *RPCReader) Slot() uint64 {
	return r.slot.Load()
}

// Account loads the raw data of an account.
func (r *RPCReader) Account(ctx context.Context, addr Address) ([]byte, error) {
	var result struct {
		Value *rpcAccountValue `json:"value"`
	}
	if err := r.call(ctx, "getAccountInfo", []interface{}{
		addr.String(), map[string]string{"encoding": "base64"},
	}, &result); err != nil {
		return nil, err
	}
	if result.Value == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	return decodeAccountData(result.Value)
}

// OnAccountChange registers a callback for account mutations. The
// subscription survives websocket reconnects.
func (r *RPCReader) OnAccountChange(addr Address, fn func(data []byte)) {
	r.mu.Lock()
	existing := len(r.callbacks[addr]) > 0
	r.callbacks[addr] = append(r.callbacks[addr], fn)
	r.mu.Unlock()

	if !existing && r.wsc.IsConnected() {
		r.subscribe(addr)
	}
}

func (r *RPCReader) pollSlot(ctx context.Context) {
	ticker := time.NewTicker(slotPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			slot, err := r.fetchSlot(ctx)
			if err != nil {
				r.logger.Warn("slot fetch failed", "error", err)
				continue
			}
			r.slot.Store(slot)
		}
	}
}

func (r *RPCReader) fetchSlot(ctx context.Context) (uint64, error) {
	var slot uint64
	if err := r.call(ctx, "getSlot", nil, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

func (r *RPCReader) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      r.reqID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.rpcURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRPC, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRPC, err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("%w: %v", ErrRPC, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%w: %s (%d)", ErrRPC, rpcResp.Error.Message, rpcResp.Error.Code)
	}

	return json.Unmarshal(rpcResp.Result, result)
}

// subscribe sends an accountSubscribe request for the address.
func (r *RPCReader) subscribe(addr Address) {
	id := r.reqID.Add(1)

	r.mu.Lock()
	r.pending[id] = addr
	r.mu.Unlock()

	err := r.wsc.SendJSON(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "accountSubscribe",
		Params:  []interface{}{addr.String(), map[string]string{"encoding": "base64"}},
	})
	if err != nil {
		r.logger.Error("account subscribe failed", "address", addr.String(), "error", err)
	}
}

// handleWSConnect resubscribes all watched accounts after a (re)connect.
func (r *RPCReader) handleWSConnect() {
	r.mu.Lock()
	r.active = make(map[uint64]Address)
	addrs := make([]Address, 0, len(r.callbacks))
	for addr := range r.callbacks {
		addrs = append(addrs, addr)
	}
	r.mu.Unlock()

	for _, addr := range addrs {
		r.subscribe(addr)
	}
}

func (r *RPCReader) handleWSMessage(data []byte) {
	var msg rpcResponse
	if err := json.Unmarshal(data, &msg); err != nil {
		r.logger.Warn("skipping malformed ws message", "error", err)
		return
	}

	// subscription confirmation
	if msg.ID != 0 && msg.Result != nil {
		r.mu.Lock()
		addr, ok := r.pending[msg.ID]
		if ok {
			delete(r.pending, msg.ID)
			var subID uint64
			if err := json.Unmarshal(msg.Result, &subID); err == nil {
				r.active[subID] = addr
			}
		}
		r.mu.Unlock()
		return
	}

	// account notification
	if msg.Method != "accountNotification" || msg.Params == nil {
		return
	}

	r.mu.Lock()
	addr, ok := r.active[msg.Params.Subscription]
	var fns []func([]byte)
	if ok {
		fns = append(fns, r.callbacks[addr]...)
	}
	r.mu.Unlock()

	if !ok || msg.Params.Result.Value == nil {
		return
	}

	raw, err := decodeAccountData(msg.Params.Result.Value)
	if err != nil {
		r.logger.Warn("skipping undecodable account notification", "error", err)
		return
	}

	for _, fn := range fns {
		fn(raw)
	}
}

func decodeAccountData(v *rpcAccountValue) ([]byte, error) {
	if len(v.Data) == 0 {
		return nil, fmt.Errorf("%w: missing account data", ErrRPC)
	}
	raw, err := base64.StdEncoding.DecodeString(v.Data[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRPC, err)
	}
	return raw, nil
}
