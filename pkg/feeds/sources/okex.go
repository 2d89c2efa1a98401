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
	okexWSURL    = "wss://ws.okx.com:8443/ws/v5/public"
	okexDecimals = 2
)

// OKExSource streams ticker prices from the OKX public websocket.
type OKExSource struct {
	*feeds.BaseSource
	client   *ws.Client
	decimals int

	mu          sync.Mutex
	instruments map[string]string // instrument id -> pair
	dialed      bool
}

type okexTicker struct {
	Arg struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data []struct {
		Last string `json:"last"`
	} `json:"data"`
}

type okexSubscribe struct {
	Op   string `json:"op"`
	Args []struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"args"`
}

// NewOKExSource creates an OKX source.
func NewOKExSource(cfg feeds.SourceSettings) (feeds.Source, error) {
	logger := logging.Global()

	url := cfg.GetString("ws_url", okexWSURL)
	decimals := cfg.GetInt("decimals", okexDecimals)

	s := &OKExSource{
		BaseSource:  feeds.NewBaseSource("okex", logger),
		decimals:    decimals,
		instruments: make(map[string]string),
	}

	s.client = ws.NewClient(ws.Config{
		URL:    url,
		Logger: s.Logger().ZerologLogger(),
	})
	s.client.SetHandlers(s.handleMessage, s.handleConnect, s.handleDisconnect)

	return s, nil
}

// Subscribe starts streaming the tickers channel for a pair.
func (s *OKExSource) Subscribe(pair string) error {
	if !s.AddPair(pair) {
		return nil
	}

	inst := okexInstrument(pair)
	s.mu.Lock()
	s.instruments[inst] = pair
	dialed := s.dialed
	s.dialed = true
	s.mu.Unlock()

	if !dialed {
		go func() {
			if err := s.client.ConnectWithRetry(context.Background()); err != nil {
				s.Logger().Error("okex connect failed", "error", err)
			}
		}()
		return nil
	}

	if s.client.IsConnected() {
		return s.subscribeInstrument(inst)
	}
	return nil
}

// CheckConnection reports whether the websocket is connected
func (s *OKExSource) CheckConnection() bool {
	return s.client.IsConnected()
}

// Reconnect forces the websocket to reconnect
func (s *OKExSource) Reconnect() {
	s.client.Reconnect()
}

func (s *OKExSource) subscribeInstrument(inst string) error {
	sub := okexSubscribe{Op: "subscribe"}
	sub.Args = append(sub.Args, struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	}{Channel: "tickers", InstID: inst})
	return s.client.SendJSON(sub)
}

func (s *OKExSource) handleConnect() {
	s.SetConnected(true)

	s.mu.Lock()
	instruments := make([]string, 0, len(s.instruments))
	for inst := range s.instruments {
		instruments = append(instruments, inst)
	}
	s.mu.Unlock()

	for _, inst := range instruments {
		if err := s.subscribeInstrument(inst); err != nil {
			s.Logger().Error("okex subscribe failed", "instrument", inst, "error", err)
		}
	}
}

func (s *OKExSource) handleDisconnect(err error) {
	s.SetConnected(false)
	s.Logger().Warn("okex disconnected", "error", err)
}

func (s *OKExSource) handleMessage(data []byte) {
	var ticker okexTicker
	if err := json.Unmarshal(data, &ticker); err != nil {
		s.Logger().Warn("skipping malformed message", "error", err)
		return
	}
	if ticker.Arg.Channel != "tickers" || len(ticker.Data) == 0 {
		return
	}

	s.mu.Lock()
	pair, ok := s.instruments[ticker.Arg.InstID]
	s.mu.Unlock()
	if !ok {
		return
	}

	value, err := scalePrice(ticker.Data[0].Last, s.decimals)
	if err != nil {
		s.Logger().Warn("skipping unparsable price", "price", ticker.Data[0].Last, "error", err)
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

// okexInstrument converts "btc:usd" to the OKX instrument id "BTC-USDT".
func okexInstrument(pair string) string {
	base, quote, ok := strings.Cut(pair, ":")
	if !ok {
		return strings.ToUpper(pair)
	}
	if strings.EqualFold(quote, "usd") {
		quote = "usdt"
	}
	return strings.ToUpper(base + "-" + quote)
}
