package chain

import "errors"

var (
	// ErrInvalidAddress indicates that an address could not be parsed.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrAccountTooShort indicates that account data is too short for its layout.
	ErrAccountTooShort = errors.New("account data too short")
	// ErrAccountNotFound indicates that the account does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrRPC indicates a JSON-RPC level failure.
	ErrRPC = errors.New("rpc error")
	// ErrTxRejected indicates that the bridge rejected the transaction.
	ErrTxRejected = errors.New("transaction rejected")
	// ErrNotConfirmed indicates that a transaction could not be confirmed.
	ErrNotConfirmed = errors.New("transaction not confirmed")
)
