// Package ws provides the reconnecting WebSocket client used by venue sources.
package ws

import "errors"

var (
	// ErrNotConnected indicates that the client is not connected.
	ErrNotConnected = errors.New("not connected")
	// ErrConnectionLost indicates that the connection was lost.
	ErrConnectionLost = errors.New("connection lost")
	// ErrClientClosed indicates that the client has been closed.
	ErrClientClosed = errors.New("client closed")
)
