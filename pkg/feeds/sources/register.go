// Package sources contains the price source adapters: venue websocket
// feeds and the file poller. All adapters implement feeds.Source and are
// registered by name for construction from configuration.
package sources

import (
	"time"

	"github.com/gopartyparrot/solana-flux-aggregator/pkg/feeds"
)

// nowFunc stamps observations, swappable in tests.
var nowFunc = time.Now

func init() {
	feeds.Register("binance", NewBinanceSource)
	feeds.Register("coinbase", NewCoinbaseSource)
	feeds.Register("okex", NewOKExSource)
	feeds.Register("file", NewFileSource)
}
