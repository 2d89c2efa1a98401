// Package chain defines the on-chain entities of the flux aggregator
// program and the interfaces through which the feeder reads accounts and
// submits transactions. The program itself (rounds, rewards, access
// control) is not implemented here; its state is data this node reads.
package chain

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Address identifies an on-chain account.
type Address [32]byte

// AddressFromHex parses a hex-encoded address.
func AddressFromHex(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(b) != len(a) {
		return a, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, len(a), len(b))
	}
	copy(a[:], b)
	return a, nil
}

// String returns the hex encoding of the address.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether the address is the zero account.
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalJSON encodes the address as a hex string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes an address from a hex string.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := AddressFromHex(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// AggregatorConfig is the static configuration of an aggregator account.
type AggregatorConfig struct {
	Description        string
	Decimals           uint8
	MinSubmissions     uint8
	MaxSubmissions     uint8
	RestartDelay       uint8
	RewardAmount       uint64
	RewardTokenAccount Address
}

// Round is one voting period of an aggregator.
type Round struct {
	ID        uint64
	CreatedAt uint64 // slot
	UpdatedAt uint64 // slot
}

// Answer is the current aggregate answer of an aggregator.
type Answer struct {
	RoundID   uint64
	Median    int64
	CreatedAt uint64 // slot
	UpdatedAt uint64 // slot
}

// Aggregator is the on-chain account describing one trading pair's current
// round, configuration and answer.
type Aggregator struct {
	Config            AggregatorConfig
	RoundSubmissions  Address
	AnswerSubmissions Address
	Round             Round
	Answer            Answer
}

// Oracle is the on-chain account representing one submitting identity.
type Oracle struct {
	Description     string
	AllowStartRound uint64 // first round id this oracle may start
	Withdrawable    uint64
}

// CanStartNewRound reports whether the oracle is permitted to start the
// round following currentRoundID. The program advances AllowStartRound by
// the aggregator's restart delay each time the oracle starts a round.
func (o *Oracle) CanStartNewRound(currentRoundID uint64) bool {
	return o.AllowStartRound <= currentRoundID+1
}

// Submission is one oracle's entry in a submissions account.
type Submission struct {
	UpdatedAt uint64 // slot, zero for an empty slot
	Value     int64
	Oracle    Address
}

// IsEmpty reports whether the slot holds no submission.
func (s *Submission) IsEmpty() bool {
	return s.Oracle.IsZero()
}

// Submissions is the per-round (or per-answer) submission list of an
// aggregator.
type Submissions struct {
	Entries []Submission
}

// HasSubmission reports whether the oracle already submitted.
func (s *Submissions) HasSubmission(oracle Address) bool {
	for i := range s.Entries {
		if !s.Entries[i].IsEmpty() && s.Entries[i].Oracle == oracle {
			return true
		}
	}
	return false
}

// CanSubmit reports whether the oracle may submit to the round these
// submissions belong to: it has not submitted yet and the round still has
// capacity for another submission.
func (s *Submissions) CanSubmit(oracle Address, cfg AggregatorConfig) bool {
	count := 0
	for i := range s.Entries {
		if s.Entries[i].IsEmpty() {
			continue
		}
		if s.Entries[i].Oracle == oracle {
			return false
		}
		count++
	}
	return count < int(cfg.MaxSubmissions)
}

// trimDescription strips the fixed-width padding of on-chain descriptions.
func trimDescription(b []byte) string {
	return string(bytes.TrimRight(b, "\x00"))
}
