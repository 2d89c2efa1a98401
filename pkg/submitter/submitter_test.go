package submitter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopartyparrot/solana-flux-aggregator/pkg/chain"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/feeds"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/logging"
)

type fakeReader struct {
	mu       sync.Mutex
	accounts map[chain.Address][]byte
	slot     uint64
	handlers map[chain.Address]func([]byte)
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		accounts: make(map[chain.Address][]byte),
		handlers: make(map[chain.Address]func([]byte)),
	}
}

func (r *fakeReader) Account(_ context.Context, addr chain.Address) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.accounts[addr]
	if !ok {
		return nil, chain.ErrAccountNotFound
	}
	return data, nil
}

func (r *fakeReader) OnAccountChange(addr chain.Address, fn func([]byte)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[addr] = fn
}

func (r *fakeReader) Slot() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slot
}

func (r *fakeReader) set(addr chain.Address, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[addr] = data
}

type fakeTxClient struct {
	mu      sync.Mutex
	submits []chain.SubmitRequest
	errs    []error
}

func (f *fakeTxClient) Submit(_ context.Context, req chain.SubmitRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.submits)
	f.submits = append(f.submits, req)
	if idx < len(f.errs) && f.errs[idx] != nil {
		return "", f.errs[idx]
	}
	return "tx-ok", nil
}

func (f *fakeTxClient) Confirm(context.Context, string) error {
	return nil
}

func (f *fakeTxClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

type fakeNotifier struct {
	mu       sync.Mutex
	soft     []string
	critical []string
}

func (n *fakeNotifier) Soft(_, message string, _ map[string]interface{}, _ error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.soft = append(n.soft, message)
}

func (n *fakeNotifier) Critical(_, message string, _ map[string]interface{}, _ error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.critical = append(n.critical, message)
}

func addr(b byte) chain.Address {
	var a chain.Address
	a[0] = b
	return a
}

var (
	aggregatorAddr = addr(1)
	oracleAddr     = addr(2)
	roundSubsAddr  = addr(3)
	answerSubsAddr = addr(4)
	otherOracle    = addr(9)
)

func testAggregator() chain.Aggregator {
	return chain.Aggregator{
		Config: chain.AggregatorConfig{
			Description:    "btc:usd",
			Decimals:       2,
			MinSubmissions: 1,
			MaxSubmissions: 3,
			RestartDelay:   1,
		},
		RoundSubmissions:  roundSubsAddr,
		AnswerSubmissions: answerSubsAddr,
		Round:             chain.Round{ID: 5, CreatedAt: 100, UpdatedAt: 100},
		Answer:            chain.Answer{RoundID: 4, Median: 10000, CreatedAt: 90, UpdatedAt: 90},
	}
}

func testOracle() chain.Oracle {
	return chain.Oracle{Description: "oracle-1", AllowStartRound: 1}
}

type fixture struct {
	sub      *Submitter
	reader   *fakeReader
	tx       *fakeTxClient
	notifier *fakeNotifier
}

func newFixture(t *testing.T, agg chain.Aggregator, oracle chain.Oracle, roundSubs chain.Submissions) *fixture {
	t.Helper()

	reader := newFakeReader()
	reader.slot = 105
	reader.set(aggregatorAddr, chain.SerializeAggregator(agg))
	reader.set(oracleAddr, chain.SerializeOracle(oracle))
	reader.set(roundSubsAddr, chain.SerializeSubmissions(roundSubs))
	reader.set(answerSubsAddr, chain.SerializeSubmissions(chain.Submissions{}))

	tx := &fakeTxClient{}
	notifier := &fakeNotifier{}

	cfg := Config{
		Aggregator:                aggregatorAddr,
		Oracle:                    oracleAddr,
		PairSymbol:                "btc:usd",
		MinValueChangeForNewRound: 100,
	}

	sub := New(cfg, reader, tx, notifier, nil, logging.New(io.Discard))
	sub.retryDelay = time.Millisecond

	require.NoError(t, sub.loadAggregator(context.Background()))
	sub.ReloadStates(context.Background())

	return &fixture{sub: sub, reader: reader, tx: tx, notifier: notifier}
}

func price(value int64) feeds.Price {
	return feeds.Price{
		Source:   feeds.SourceMedian,
		Pair:     "btc:usd",
		Decimals: 2,
		Value:    value,
		Time:     time.Now(),
	}
}

func TestHandlePriceSubmitsToOpenRound(t *testing.T) {
	f := newFixture(t, testAggregator(), testOracle(), chain.Submissions{})

	require.NoError(t, f.sub.HandlePrice(context.Background(), price(10500)))

	require.Equal(t, 1, f.tx.calls())
	req := f.tx.submits[0]
	assert.Equal(t, uint64(5), req.RoundID)
	assert.Equal(t, int64(10500), req.Value)
	assert.Equal(t, aggregatorAddr, req.Aggregator)
	assert.Equal(t, oracleAddr, req.Oracle)
	assert.Equal(t, uint64(5), f.sub.ReportedRound())
}

func TestHandlePriceStartsNewRoundWhenStale(t *testing.T) {
	// our oracle already submitted to round 5 and the round has been open
	// for longer than the staleness limit
	roundSubs := chain.Submissions{Entries: []chain.Submission{
		{UpdatedAt: 100, Value: 10400, Oracle: oracleAddr},
	}}
	f := newFixture(t, testAggregator(), testOracle(), roundSubs)
	f.reader.slot = 111

	require.NoError(t, f.sub.HandlePrice(context.Background(), price(10500)))

	require.Equal(t, 1, f.tx.calls())
	assert.Equal(t, uint64(6), f.tx.submits[0].RoundID)
	assert.Equal(t, uint64(6), f.sub.ReportedRound())
}

func TestHandlePriceWaitsWhenRoundFresh(t *testing.T) {
	roundSubs := chain.Submissions{Entries: []chain.Submission{
		{UpdatedAt: 100, Value: 10400, Oracle: oracleAddr},
	}}
	f := newFixture(t, testAggregator(), testOracle(), roundSubs)
	f.reader.slot = 105

	require.NoError(t, f.sub.HandlePrice(context.Background(), price(10500)))

	assert.Equal(t, 0, f.tx.calls())
	assert.Equal(t, uint64(0), f.sub.ReportedRound())
}

func TestHandlePriceWaitsWhenSlotLagsRound(t *testing.T) {
	// the cached slot is polled and may trail a round update pushed over
	// the websocket, so the round must not look stale when slot < updatedAt
	roundSubs := chain.Submissions{Entries: []chain.Submission{
		{UpdatedAt: 100, Value: 10400, Oracle: oracleAddr},
	}}
	f := newFixture(t, testAggregator(), testOracle(), roundSubs)
	f.reader.slot = 95

	require.NoError(t, f.sub.HandlePrice(context.Background(), price(10500)))

	assert.Equal(t, 0, f.tx.calls())
	assert.Equal(t, uint64(0), f.sub.ReportedRound())
}

func TestHandlePriceRespectsRestartPermission(t *testing.T) {
	roundSubs := chain.Submissions{Entries: []chain.Submission{
		{UpdatedAt: 100, Value: 10400, Oracle: oracleAddr},
	}}
	oracle := testOracle()
	oracle.AllowStartRound = 8
	f := newFixture(t, testAggregator(), oracle, roundSubs)
	f.reader.slot = 120

	require.NoError(t, f.sub.HandlePrice(context.Background(), price(10500)))

	assert.Equal(t, 0, f.tx.calls())
}

func TestHandlePriceDecimalsMismatch(t *testing.T) {
	f := newFixture(t, testAggregator(), testOracle(), chain.Submissions{})

	p := price(10500)
	p.Decimals = 8
	err := f.sub.HandlePrice(context.Background(), p)

	require.ErrorIs(t, err, ErrDecimalsMismatch)
	assert.Equal(t, 0, f.tx.calls())
}

func TestHandlePriceSkipsSmallChange(t *testing.T) {
	f := newFixture(t, testAggregator(), testOracle(), chain.Submissions{})

	// answer median is 10000, min change is 100
	require.NoError(t, f.sub.HandlePrice(context.Background(), price(10050)))

	assert.Equal(t, 0, f.tx.calls())
}

func TestSubmitSkipsZeroValue(t *testing.T) {
	f := newFixture(t, testAggregator(), testOracle(), chain.Submissions{})

	f.sub.currentValue = 0
	require.NoError(t, f.sub.submitCurrentValue(context.Background(), 5))

	assert.Equal(t, 0, f.tx.calls())
	assert.Equal(t, uint64(0), f.sub.ReportedRound())
}

func TestSubmitSkipsExpiredValue(t *testing.T) {
	f := newFixture(t, testAggregator(), testOracle(), chain.Submissions{})

	f.sub.currentValue = 10500
	f.sub.currentValueUpdatedAt = time.Now().Add(-ValueExpireTime - time.Minute)
	require.NoError(t, f.sub.submitCurrentValue(context.Background(), 5))

	assert.Equal(t, 0, f.tx.calls())
	assert.Equal(t, uint64(0), f.sub.ReportedRound())
}

func TestNoDoubleSubmitToSameRound(t *testing.T) {
	f := newFixture(t, testAggregator(), testOracle(), chain.Submissions{})

	require.NoError(t, f.sub.HandlePrice(context.Background(), price(10500)))
	require.Equal(t, 1, f.tx.calls())

	// a second trigger for the same round must not submit again even
	// though the fake chain still reports the round as open
	require.NoError(t, f.sub.HandlePrice(context.Background(), price(10600)))

	assert.Equal(t, 1, f.tx.calls())
	assert.Equal(t, uint64(5), f.sub.ReportedRound())
}

func TestAlreadySubmittedRollsBackAndRecovers(t *testing.T) {
	f := newFixture(t, testAggregator(), testOracle(), chain.Submissions{})
	f.tx.errs = []error{errors.New("custom program error: 0x3")}

	require.NoError(t, f.sub.HandlePrice(context.Background(), price(10500)))

	// the program rejected the duplicate: single attempt, claim released,
	// soft notification only
	assert.Equal(t, 1, f.tx.calls())
	assert.Equal(t, uint64(0), f.sub.ReportedRound())
	assert.Len(t, f.notifier.soft, 1)
	assert.Empty(t, f.notifier.critical)

	// when round 6 opens on-chain the submitter must be able to report it
	agg := testAggregator()
	agg.Round = chain.Round{ID: 6, CreatedAt: 110, UpdatedAt: 110}
	f.reader.set(aggregatorAddr, chain.SerializeAggregator(agg))
	f.sub.HandleAccountUpdate(context.Background(), chain.SerializeAggregator(agg))

	assert.Equal(t, 2, f.tx.calls())
	assert.Equal(t, uint64(6), f.tx.submits[1].RoundID)
	assert.Equal(t, uint64(6), f.sub.ReportedRound())
}

func TestSubmitRetriesThenFails(t *testing.T) {
	f := newFixture(t, testAggregator(), testOracle(), chain.Submissions{})
	rpcErr := errors.New("rpc timeout")
	f.tx.errs = []error{rpcErr, rpcErr, rpcErr, rpcErr}

	require.NoError(t, f.sub.HandlePrice(context.Background(), price(10500)))

	assert.Equal(t, defaultRetryAttempts, f.tx.calls())
	assert.Equal(t, uint64(0), f.sub.ReportedRound())
	assert.Len(t, f.notifier.critical, 1)
}

func TestSubmitRetriesThenSucceeds(t *testing.T) {
	f := newFixture(t, testAggregator(), testOracle(), chain.Submissions{})
	f.tx.errs = []error{errors.New("rpc timeout")}

	require.NoError(t, f.sub.HandlePrice(context.Background(), price(10500)))

	assert.Equal(t, 2, f.tx.calls())
	assert.Equal(t, uint64(5), f.sub.ReportedRound())
	assert.Empty(t, f.notifier.critical)
}

func TestHandleAccountUpdateIgnoresReportedRound(t *testing.T) {
	f := newFixture(t, testAggregator(), testOracle(), chain.Submissions{})

	require.NoError(t, f.sub.HandlePrice(context.Background(), price(10500)))
	require.Equal(t, 1, f.tx.calls())

	f.sub.HandleAccountUpdate(context.Background(), chain.SerializeAggregator(testAggregator()))

	assert.Equal(t, 1, f.tx.calls())
}

func TestHandleAccountUpdateSubmitsToNewRound(t *testing.T) {
	// another oracle already seeded round 6
	f := newFixture(t, testAggregator(), testOracle(), chain.Submissions{})

	require.NoError(t, f.sub.HandlePrice(context.Background(), price(10500)))
	require.Equal(t, 1, f.tx.calls())

	agg := testAggregator()
	agg.Round = chain.Round{ID: 6, CreatedAt: 110, UpdatedAt: 110}
	f.reader.set(aggregatorAddr, chain.SerializeAggregator(agg))
	f.reader.set(roundSubsAddr, chain.SerializeSubmissions(chain.Submissions{
		Entries: []chain.Submission{{UpdatedAt: 110, Value: 10450, Oracle: otherOracle}},
	}))

	f.sub.HandleAccountUpdate(context.Background(), chain.SerializeAggregator(agg))

	require.Equal(t, 2, f.tx.calls())
	assert.Equal(t, uint64(6), f.tx.submits[1].RoundID)
}

func TestHandleAccountUpdateMalformed(t *testing.T) {
	f := newFixture(t, testAggregator(), testOracle(), chain.Submissions{})

	f.sub.HandleAccountUpdate(context.Background(), []byte{1, 2, 3})

	assert.Equal(t, 0, f.tx.calls())
}

func TestRelayHandsOffWithoutTransacting(t *testing.T) {
	var (
		mu       sync.Mutex
		gotPath  string
		gotKey   string
		requests int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Relay-Access-Key")
		requests++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := newFixture(t, testAggregator(), testOracle(), chain.Submissions{})
	f.sub.cfg.Relay = &RelayConfig{
		NodeURL:   server.URL,
		JobID:     "job-1",
		AccessKey: "key",
		Secret:    "secret",
	}
	f.sub.relay = NewRelayClient(*f.sub.cfg.Relay, logging.New(io.Discard))

	require.NoError(t, f.sub.HandlePrice(context.Background(), price(10500)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, requests)
	assert.Equal(t, "/v2/specs/job-1/runs", gotPath)
	assert.Equal(t, "key", gotKey)
	assert.Equal(t, 0, f.tx.calls())
	assert.Equal(t, uint64(5), f.sub.ReportedRound())
}
