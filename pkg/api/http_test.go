package api

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopartyparrot/solana-flux-aggregator/pkg/feeds"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/logging"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/notify"
)

type staticProvider map[string]*feeds.AggregatedFeed

func (p staticProvider) Feeds() map[string]*feeds.AggregatedFeed { return p }

func TestHandleHealth(t *testing.T) {
	s := NewServer(":0", staticProvider{}, logging.New(io.Discard))

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestHandlePrices(t *testing.T) {
	logger := logging.New(io.Discard)
	notifier := notify.NewNop(logger)

	withMedian := feeds.NewAggregatedFeed(nil, "btc:usd", feeds.FeedConfig{}, notifier, logger)
	withMedian.HandleUpdate(feeds.Price{
		Source: "binance", Pair: "btc:usd", Decimals: 2, Value: 6325051, Time: time.Now(),
	})

	empty := feeds.NewAggregatedFeed(nil, "eth:usd", feeds.FeedConfig{}, notifier, logger)

	s := NewServer(":0", staticProvider{"btc:usd": withMedian, "eth:usd": empty}, logger)

	rec := httptest.NewRecorder()
	s.handlePrices(rec, httptest.NewRequest("GET", "/v1/prices", nil))

	require.Equal(t, 200, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var prices []feeds.Price
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prices))
	require.Len(t, prices, 1, "feeds without a median are omitted")
	assert.Equal(t, feeds.SourceMedian, prices[0].Source)
	assert.Equal(t, "btc:usd", prices[0].Pair)
	assert.Equal(t, int64(6325051), prices[0].Value)
}
