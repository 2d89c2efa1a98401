package chain

import (
	"context"
	"regexp"
)

// Reader provides access to on-chain account state. The feeder core only
// consumes this interface; the RPC implementation lives in rpc.go and fakes
// are used in tests.
type Reader interface {
	// Account loads the raw data of an account
	Account(ctx context.Context, addr Address) ([]byte, error)

	// OnAccountChange registers a callback invoked with the raw account
	// data whenever the account mutates
	OnAccountChange(addr Address, fn func(data []byte))

	// Slot returns the current slot
	Slot() uint64
}

// SubmitRequest describes one submission transaction.
type SubmitRequest struct {
	Aggregator        Address `json:"aggregator"`
	RoundSubmissions  Address `json:"round_submissions"`
	AnswerSubmissions Address `json:"answer_submissions"`
	Oracle            Address `json:"oracle"`
	RoundID           uint64  `json:"round_id"`
	Value             int64   `json:"value"`
}

// TxClient submits and confirms transactions. Both operations are
// potentially slow and failing; callers own retry policy.
type TxClient interface {
	// Submit sends the submission transaction and returns its id
	Submit(ctx context.Context, req SubmitRequest) (string, error)

	// Confirm waits for the transaction to be confirmed. An error means the
	// transaction must be treated as not having happened.
	Confirm(ctx context.Context, txID string) error
}

var programErrRe = regexp.MustCompile(`custom program error: 0x([0-9a-fA-F]+)`)

// ParseProgramError extracts the custom program error code from a
// transaction error, or "" when the error carries none.
func ParseProgramError(err error) string {
	if err == nil {
		return ""
	}
	m := programErrRe.FindStringSubmatch(err.Error())
	if m == nil {
		return ""
	}
	return m[1]
}

// codes 3 and 6 are the program's duplicate-submission rejections
var alreadySubmittedCodes = []string{"3", "6"}

// IsAlreadySubmitted classifies the "each oracle may only submit once per
// round" family of program errors. These are expected races with other
// oracles or with a previous attempt of our own, never faults.
func IsAlreadySubmitted(err error) bool {
	code := ParseProgramError(err)
	for _, c := range alreadySubmittedCodes {
		if c == code && code != "" {
			return true
		}
	}
	return false
}
