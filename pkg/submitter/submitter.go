// Package submitter implements the round submission state machine: one
// submitter owns one (aggregator, oracle) pair, consumes the aggregated
// median stream and the on-chain state changes, and submits the current
// value into the correct round exactly once.
package submitter

import (
	"context"
	"fmt"
	"time"

	"github.com/gopartyparrot/solana-flux-aggregator/pkg/chain"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/feeds"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/logging"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/metrics"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/notify"
)

const (
	// MaxRoundStaleness is the slot age after which an open round is
	// considered stale and a new round may be started. Slots are ~500ms.
	MaxRoundStaleness = 10

	// ValueExpireTime bounds the age of a value pushed on-chain.
	ValueExpireTime = 5 * time.Minute

	defaultRetryAttempts = 4
	defaultRetryDelay    = 15 * time.Second
)

// Config configures one submitter.
type Config struct {
	// Aggregator is the aggregator account this submitter reports to
	Aggregator chain.Address
	// Oracle is the oracle account this submitter acts as
	Oracle chain.Address
	// PairSymbol is the aggregator's pair, e.g. "btc:usd"
	PairSymbol string
	// MinValueChangeForNewRound suppresses action when the aggregated
	// value moved less than this from the on-chain answer
	MinValueChangeForNewRound int64
	// Relay redirects submission intents to an external relay when set
	Relay *RelayConfig
}

// Submitter is the per-aggregator state machine. All state is owned by the
// actor goroutine running in Start; triggers are processed one at a time,
// which keeps the claim-before-transact sequence atomic relative to
// concurrently arriving triggers.
type Submitter struct {
	cfg      Config
	reader   chain.Reader
	txClient chain.TxClient
	relay    *RelayClient
	notifier notify.Notifier
	prices   <-chan feeds.Price
	logger   *logging.Logger

	aggregator        chain.Aggregator
	aggregatorLoaded  bool
	oracle            chain.Oracle
	roundSubmissions  chain.Submissions
	answerSubmissions chain.Submissions

	currentValue          int64
	currentValueUpdatedAt time.Time
	previousRound         uint64
	reportedRound         uint64
	lastSubmittedAt       time.Time

	accountUpdates chan []byte

	retryAttempts int
	retryDelay    time.Duration
	now           func() time.Time
}

// New creates a submitter. Start performs the initial state load.
func New(cfg Config, reader chain.Reader, txClient chain.TxClient, notifier notify.Notifier, prices <-chan feeds.Price, logger *logging.Logger) *Submitter {
	s := &Submitter{
		cfg:            cfg,
		reader:         reader,
		txClient:       txClient,
		notifier:       notifier,
		prices:         prices,
		logger:         logger,
		accountUpdates: make(chan []byte, 16),
		retryAttempts:  defaultRetryAttempts,
		retryDelay:     defaultRetryDelay,
		now:            time.Now,
	}
	if cfg.Relay != nil {
		s.relay = NewRelayClient(*cfg.Relay, logger)
	}
	s.lastSubmittedAt = s.now()
	return s
}

// Start loads the initial state and runs the trigger loop until the context
// is canceled or a fatal configuration error surfaces. A failed initial
// load is fatal; later reload failures are not.
func (s *Submitter) Start(ctx context.Context) error {
	if err := s.loadAggregator(ctx); err != nil {
		return fmt.Errorf("initial aggregator load: %w", err)
	}
	s.ReloadStates(ctx)

	s.logger = s.logger.With(
		"oracle", s.oracle.Description,
		"aggregator", s.cfg.PairSymbol,
	)

	s.reader.OnAccountChange(s.cfg.Aggregator, func(data []byte) {
		select {
		case s.accountUpdates <- data:
		default:
			s.logger.Warn("dropping aggregator state update, queue full")
		}
	})

	s.logger.Info("submitter started",
		"round", s.aggregator.Round.ID,
		"answer", s.aggregator.Answer.Median)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case price, ok := <-s.prices:
			if !ok {
				s.logger.Info("price stream closed, stopping submitter")
				return nil
			}
			if err := s.HandlePrice(ctx, price); err != nil {
				return err
			}

		case data := <-s.accountUpdates:
			s.HandleAccountUpdate(ctx, data)
		}
	}
}

// HandlePrice processes a median price trigger. The returned error is
// non-nil only for the fatal decimals mismatch; submission failures are
// handled inside and never propagate.
func (s *Submitter) HandlePrice(ctx context.Context, price feeds.Price) error {
	if price.Decimals != int(s.aggregator.Config.Decimals) {
		return fmt.Errorf("%w: expected %d, got %d",
			ErrDecimalsMismatch, s.aggregator.Config.Decimals, price.Decimals)
	}

	s.currentValue = price.Value
	s.currentValueUpdatedAt = price.Time

	metrics.RecordFeedPrice(s.oracle.Description, price.Pair, price.Source, price.Value, price.Decimals)
	metrics.RecordSinceLastSubmit(s.oracle.Description, s.cfg.PairSymbol, s.now().Sub(s.lastSubmittedAt))

	diff := s.aggregator.Answer.Median - s.currentValue
	if diff < 0 {
		diff = -diff
	}
	if diff < s.cfg.MinValueChangeForNewRound {
		s.logger.Debug("price did not change enough to start a new round", "diff", diff)
		return nil
	}

	// Make sure the round id is fresh before deciding anything for a
	// round we have not touched yet.
	if !s.isRoundReported(s.aggregator.Round.ID) {
		s.ReloadStates(ctx)
	}

	if err := s.trySubmit(ctx); err != nil {
		s.logger.Error("price trigger submission failed",
			"error", err,
			"median", s.aggregator.Answer.Median,
			"currentValue", s.currentValue)
	}
	return nil
}

// HandleAccountUpdate processes an on-chain aggregator state change.
func (s *Submitter) HandleAccountUpdate(ctx context.Context, data []byte) {
	agg, err := chain.DeserializeAggregator(data)
	if err != nil {
		s.logger.Error("failed to decode aggregator update", "error", err)
		return
	}
	s.aggregator = agg

	if s.isRoundReported(agg.Round.ID) {
		return
	}

	// only reload the remaining accounts when actually reporting, to save
	// RPC calls
	s.ReloadStates(ctx)

	if !s.canSubmitToCurrentRound() {
		return
	}

	s.logger.Info("another oracle started a new round", "round", s.aggregator.Round.ID)
	if err := s.trySubmit(ctx); err != nil {
		s.logger.Error("round trigger submission failed", "error", err)
	}
}

// trySubmit decides whether the current value goes to the open round, a
// new round, or nowhere.
func (s *Submitter) trySubmit(ctx context.Context) error {
	round := s.aggregator.Round

	if s.canSubmitToCurrentRound() {
		return s.submitCurrentValue(ctx, round.ID)
	}

	// see if the open round is stale enough for us to start a new one.
	// The cached slot may lag behind a freshly pushed round update, so
	// compare on signed values to avoid an unsigned wrap.
	slot := s.reader.Slot()
	if slot <= round.UpdatedAt || slot-round.UpdatedAt < MaxRoundStaleness {
		return nil
	}

	if s.oracle.CanStartNewRound(round.ID) {
		newRound := round.ID + 1
		s.logger.Info("starting a new round", "round", newRound)
		return s.submitCurrentValue(ctx, newRound)
	}

	return nil
}

// submitCurrentValue guards and claims the round, then hands off to the
// relay or performs the transaction. The claim happens before any network
// call: a concurrently queued trigger observes the round as reported and
// will not submit to it again.
func (s *Submitter) submitCurrentValue(ctx context.Context, roundID uint64) error {
	if s.currentValue == 0 {
		s.logger.Warn("current value is zero, skip submit")
		return nil
	}

	if age := s.now().Sub(s.currentValueUpdatedAt); age > ValueExpireTime {
		s.logger.Warn("current value has expired, skip submit", "age", age.String())
		return nil
	}

	if s.isRoundReported(roundID) {
		s.logger.Warn("don't report to the same round twice", "round", roundID)
		return nil
	}

	// Claim the round, remembering the previous one in case we have to
	// roll back after a failed submission.
	s.previousRound = s.reportedRound
	s.reportedRound = roundID

	s.logger.Info("submit to round", "round", roundID)

	if s.relay != nil {
		// the relay owns eventual submission; a failed handoff is logged
		// but does not release the claim
		if err := s.relay.RequestSubmit(ctx, roundID, s.cfg.Aggregator, s.cfg.PairSymbol); err != nil {
			s.logger.Error("relay handoff failed", "round", roundID, "error", err)
		}
		return nil
	}

	return s.SubmitRound(ctx, roundID)
}

// SubmitRound performs the transaction for a round with bounded retries.
// It is exported so that a relay receiver can drive direct submission.
func (s *Submitter) SubmitRound(ctx context.Context, roundID uint64) error {
	value := s.currentValue

	s.logger.Info("submitting value", "round", roundID, "value", value)

	req := chain.SubmitRequest{
		Aggregator:        s.cfg.Aggregator,
		RoundSubmissions:  s.aggregator.RoundSubmissions,
		AnswerSubmissions: s.aggregator.AnswerSubmissions,
		Oracle:            s.cfg.Oracle,
		RoundID:           roundID,
		Value:             value,
	}

	var txID string
	var lastErr error

	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				s.rollbackRound()
				return ctx.Err()
			case <-time.After(s.retryDelay):
			}
		}

		id, err := s.txClient.Submit(ctx, req)
		txID = id
		if err == nil {
			// an unconfirmed transaction counts as a failed send
			err = s.txClient.Confirm(ctx, txID)
		}

		if err == nil {
			metrics.RecordLastSubmitted(s.oracle.Description, s.cfg.PairSymbol,
				value, int(s.aggregator.Config.Decimals))
			s.lastSubmittedAt = s.now()
			s.ReloadStates(ctx)
			s.logger.Info("submit ok",
				"round", roundID,
				"value", value,
				"txId", txID,
				"withdrawable", s.oracle.Withdrawable,
				"attempt", attempt)
			return nil
		}

		s.logger.Info("submit attempt failed",
			"round", roundID, "value", value, "txId", txID,
			"attempt", attempt, "error", err)

		if chain.IsAlreadySubmitted(err) {
			// expected race with another oracle or an earlier attempt of
			// our own; release the claim and resync
			s.rollbackRound()
			s.ReloadStates(ctx)
			s.notifier.Soft("Submitter", "each oracle may only submit once per round",
				s.notifyContext(roundID, txID), err)
			return nil
		}

		metrics.RecordSubmitRetry(s.oracle.Description, s.cfg.PairSymbol)
		lastErr = err
	}

	s.rollbackRound()
	s.ReloadStates(ctx)
	s.logger.Error("submit failed",
		"round", roundID, "value", value, "txId", txID, "error", lastErr)
	s.notifier.Critical("Submitter", "oracle failed to submit a round",
		s.notifyContext(roundID, txID), lastErr)

	return fmt.Errorf("%w: round %d: %v", ErrSubmitFailed, roundID, lastErr)
}

// ReloadStates refreshes the on-chain accounts. Failures are logged and
// leave the previous in-memory state in place; the submitter keeps
// operating on stale state until the next successful reload.
func (s *Submitter) ReloadStates(ctx context.Context) {
	if !s.aggregatorLoaded {
		if err := s.loadAggregator(ctx); err != nil {
			s.logger.Error("failed to reload aggregator", "error", err)
			return
		}
	}

	if data, err := s.reader.Account(ctx, s.cfg.Oracle); err != nil {
		s.logger.Error("failed to reload oracle", "error", err)
	} else if oracle, err := chain.DeserializeOracle(data); err != nil {
		s.logger.Error("failed to decode oracle", "error", err)
	} else {
		s.oracle = oracle
	}

	if data, err := s.reader.Account(ctx, s.aggregator.RoundSubmissions); err != nil {
		s.logger.Error("failed to reload round submissions", "error", err)
	} else if subs, err := chain.DeserializeSubmissions(data); err != nil {
		s.logger.Error("failed to decode round submissions", "error", err)
	} else {
		s.roundSubmissions = subs
	}

	if data, err := s.reader.Account(ctx, s.aggregator.AnswerSubmissions); err != nil {
		s.logger.Error("failed to reload answer submissions", "error", err)
	} else if subs, err := chain.DeserializeSubmissions(data); err != nil {
		s.logger.Error("failed to decode answer submissions", "error", err)
	} else {
		s.answerSubmissions = subs
	}
}

func (s *Submitter) loadAggregator(ctx context.Context) error {
	data, err := s.reader.Account(ctx, s.cfg.Aggregator)
	if err != nil {
		return err
	}
	agg, err := chain.DeserializeAggregator(data)
	if err != nil {
		return err
	}
	s.aggregator = agg
	s.aggregatorLoaded = true
	return nil
}

// isRoundReported reports whether this instance already started submitting
// to the round. Round zero is never considered reported.
func (s *Submitter) isRoundReported(roundID uint64) bool {
	return roundID != 0 && roundID <= s.reportedRound
}

func (s *Submitter) canSubmitToCurrentRound() bool {
	return s.roundSubmissions.CanSubmit(s.cfg.Oracle, s.aggregator.Config)
}

func (s *Submitter) rollbackRound() {
	s.reportedRound = s.previousRound
}

func (s *Submitter) notifyContext(roundID uint64, txID string) map[string]interface{} {
	return map[string]interface{}{
		"round":      roundID,
		"aggregator": s.cfg.PairSymbol,
		"oracle":     s.cfg.Oracle.String(),
		"txId":       txID,
	}
}

// ReportedRound returns the highest round this instance has started
// submitting to.
func (s *Submitter) ReportedRound() uint64 {
	return s.reportedRound
}
