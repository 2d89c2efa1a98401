package sources

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/gopartyparrot/solana-flux-aggregator/pkg/feeds"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/feeds/ws"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/logging"
)

const (
	coinbaseWSURL    = "wss://ws-feed.exchange.coinbase.com"
	coinbaseDecimals = 2
)

// CoinbaseSource streams ticker prices from the Coinbase Exchange feed.
type CoinbaseSource struct {
	*feeds.BaseSource
	client   *ws.Client
	decimals int

	mu       sync.Mutex
	products map[string]string // product id -> pair
	dialed   bool
}

type coinbaseTicker struct {
	Type      string `json:"type"` // "ticker"
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
}

type coinbaseSubscribe struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

// NewCoinbaseSource creates a Coinbase source.
func NewCoinbaseSource(cfg feeds.SourceSettings) (feeds.Source, error) {
	logger := logging.Global()

	url := cfg.GetString("ws_url", coinbaseWSURL)
	decimals := cfg.GetInt("decimals", coinbaseDecimals)

	s := &CoinbaseSource{
		BaseSource: feeds.NewBaseSource("coinbase", logger),
		decimals:   decimals,
		products:   make(map[string]string),
	}

	s.client = ws.NewClient(ws.Config{
		URL:    url,
		Logger: s.Logger().ZerologLogger(),
	})
	s.client.SetHandlers(s.handleMessage, s.handleConnect, s.handleDisconnect)

	return s, nil
}

// Subscribe starts streaming the ticker channel for a pair.
func (s *CoinbaseSource) Subscribe(pair string) error {
	if !s.AddPair(pair) {
		return nil
	}

	product := coinbaseProduct(pair)
	s.mu.Lock()
	s.products[product] = pair
	dialed := s.dialed
	s.dialed = true
	s.mu.Unlock()

	if !dialed {
		go func() {
			if err := s.client.ConnectWithRetry(context.Background()); err != nil {
				s.Logger().Error("coinbase connect failed", "error", err)
			}
		}()
		return nil
	}

	if s.client.IsConnected() {
		return s.subscribeProducts([]string{product})
	}
	return nil
}

// CheckConnection reports whether the websocket is connected
func (s *CoinbaseSource) CheckConnection() bool {
	return s.client.IsConnected()
}

// Reconnect forces the websocket to reconnect
func (s *CoinbaseSource) Reconnect() {
	s.client.Reconnect()
}

func (s *CoinbaseSource) subscribeProducts(products []string) error {
	return s.client.SendJSON(coinbaseSubscribe{
		Type:       "subscribe",
		ProductIDs: products,
		Channels:   []string{"ticker"},
	})
}

func (s *CoinbaseSource) handleConnect() {
	s.SetConnected(true)

	s.mu.Lock()
	products := make([]string, 0, len(s.products))
	for product := range s.products {
		products = append(products, product)
	}
	s.mu.Unlock()

	if len(products) == 0 {
		return
	}
	if err := s.subscribeProducts(products); err != nil {
		s.Logger().Error("coinbase subscribe failed", "error", err)
	}
}

func (s *CoinbaseSource) handleDisconnect(err error) {
	s.SetConnected(false)
	s.Logger().Warn("coinbase disconnected", "error", err)
}

func (s *CoinbaseSource) handleMessage(data []byte) {
	var ticker coinbaseTicker
	if err := json.Unmarshal(data, &ticker); err != nil {
		s.Logger().Warn("skipping malformed message", "error", err)
		return
	}
	if ticker.Type != "ticker" {
		return
	}

	s.mu.Lock()
	pair, ok := s.products[ticker.ProductID]
	s.mu.Unlock()
	if !ok {
		return
	}

	value, err := scalePrice(ticker.Price, s.decimals)
	if err != nil {
		s.Logger().Warn("skipping unparsable price", "price", ticker.Price, "error", err)
		return
	}

	s.Publish(feeds.Price{
		Source:   s.Name(),
		Pair:     pair,
		Decimals: s.decimals,
		Value:    value,
		Time:     nowFunc(),
	})
}

// coinbaseProduct converts "btc:usd" to the Coinbase product id "BTC-USD".
func coinbaseProduct(pair string) string {
	return strings.ToUpper(strings.ReplaceAll(pair, ":", "-"))
}
