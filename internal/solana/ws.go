package solana

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned when using a stream after Close.
var ErrClosed = errors.New("client closed")

// LogStream is a self-healing logs subscription for one address.
// Transport faults are reported in-band as RawNotification.Err and never
// close the stream; only ctx cancellation or Close does.
type LogStream interface {
	// Open connects, subscribes to logs mentioning target and returns the raw frame stream.
	Open(ctx context.Context, target string) (<-chan RawNotification, error)

	// Close closes the WebSocket connection and the stream.
	Close() error
}

// RawNotification is one inbound feed frame, or a transport fault.
type RawNotification struct {
	Payload    []byte
	Err        error
	ReceivedAt time.Time
}

// LogsFilter defines subscription filter for logs.
type LogsFilter struct {
	// Mentions filters logs that mention any of these addresses.
	Mentions []string
}
