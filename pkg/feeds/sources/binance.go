package sources

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/gopartyparrot/solana-flux-aggregator/pkg/feeds"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/feeds/ws"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/logging"
)

const (
	binanceWSURL    = "wss://stream.binance.com/ws"
	binanceDecimals = 2
)

// BinanceSource streams trade prices from the Binance websocket feed.
type BinanceSource struct {
	*feeds.BaseSource
	client   *ws.Client
	decimals int

	mu      sync.Mutex
	symbols map[string]string // exchange symbol -> pair
	dialed  bool
}

// binanceTrade is the trade stream event.
type binanceTrade struct {
	EventType string `json:"e"` // "trade"
	Symbol    string `json:"s"` // e.g. "BTCBUSD"
	Price     string `json:"p"`
}

type binanceSubscribe struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// NewBinanceSource creates a Binance source.
func NewBinanceSource(cfg feeds.SourceSettings) (feeds.Source, error) {
	logger := logging.Global()

	url := cfg.GetString("ws_url", binanceWSURL)
	decimals := cfg.GetInt("decimals", binanceDecimals)

	s := &BinanceSource{
		BaseSource: feeds.NewBaseSource("binance", logger),
		decimals:   decimals,
		symbols:    make(map[string]string),
	}

	s.client = ws.NewClient(ws.Config{
		URL:    url,
		Logger: s.Logger().ZerologLogger(),
	})
	s.client.SetHandlers(s.handleMessage, s.handleConnect, s.handleDisconnect)

	return s, nil
}

// Subscribe starts streaming trades for a pair. Subscribing a pair twice
// has no effect.
func (s *BinanceSource) Subscribe(pair string) error {
	if !s.AddPair(pair) {
		return nil
	}

	symbol := binanceSymbol(pair)
	s.mu.Lock()
	s.symbols[symbol] = pair
	dialed := s.dialed
	s.dialed = true
	s.mu.Unlock()

	if !dialed {
		go func() {
			if err := s.client.ConnectWithRetry(context.Background()); err != nil {
				s.Logger().Error("binance connect failed", "error", err)
			}
		}()
		return nil
	}

	if s.client.IsConnected() {
		return s.subscribeSymbol(symbol)
	}
	return nil
}

// CheckConnection reports whether the websocket is connected
func (s *BinanceSource) CheckConnection() bool {
	return s.client.IsConnected()
}

// Reconnect forces the websocket to reconnect
func (s *BinanceSource) Reconnect() {
	s.client.Reconnect()
}

func (s *BinanceSource) subscribeSymbol(symbol string) error {
	return s.client.SendJSON(binanceSubscribe{
		Method: "SUBSCRIBE",
		Params: []string{symbol + "@trade"},
		ID:     1,
	})
}

func (s *BinanceSource) handleConnect() {
	s.SetConnected(true)

	s.mu.Lock()
	symbols := make([]string, 0, len(s.symbols))
	for symbol := range s.symbols {
		symbols = append(symbols, symbol)
	}
	s.mu.Unlock()

	for _, symbol := range symbols {
		if err := s.subscribeSymbol(symbol); err != nil {
			s.Logger().Error("binance subscribe failed", "symbol", symbol, "error", err)
		}
	}
}

func (s *BinanceSource) handleDisconnect(err error) {
	s.SetConnected(false)
	s.Logger().Warn("binance disconnected", "error", err)
}

func (s *BinanceSource) handleMessage(data []byte) {
	var trade binanceTrade
	if err := json.Unmarshal(data, &trade); err != nil {
		s.Logger().Warn("skipping malformed message", "error", err)
		return
	}
	if trade.EventType != "trade" {
		return
	}

	s.mu.Lock()
	pair, ok := s.symbols[strings.ToLower(trade.Symbol)]
	s.mu.Unlock()
	if !ok {
		return
	}

	value, err := scalePrice(trade.Price, s.decimals)
	if err != nil {
		s.Logger().Warn("skipping unparsable price", "price", trade.Price, "error", err)
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

// binanceSymbol converts "btc:usd" to the Binance stream symbol "btcbusd".
func binanceSymbol(pair string) string {
	base, quote, ok := strings.Cut(pair, ":")
	if !ok {
		return strings.ToLower(pair)
	}
	if strings.EqualFold(quote, "usd") {
		quote = "busd"
	}
	return strings.ToLower(base + quote)
}

// scalePrice converts a venue price string to a fixed-point integer scaled
// by 10^decimals, truncating excess precision.
func scalePrice(price string, decimals int) (int64, error) {
	d, err := decimal.NewFromString(price)
	if err != nil {
		return 0, err
	}
	return d.Shift(int32(decimals)).IntPart(), nil
}
