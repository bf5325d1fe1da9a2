package stub

import (
	"context"
	"errors"
	"sync"
	"time"

	"wallet-copy-watcher/internal/solana"
)

// LogStream implements solana.LogStream over an in-memory channel.
// Tests push frames with Send and Fault.
type LogStream struct {
	mu      sync.Mutex
	ch      chan solana.RawNotification
	target  string
	opened  bool
	closed  bool
	OpenErr error
}

// NewLogStream creates a stub stream with the given buffer.
func NewLogStream(buffer int) *LogStream {
	return &LogStream{ch: make(chan solana.RawNotification, buffer)}
}

var _ solana.LogStream = (*LogStream)(nil)

// Open returns the stream channel. The channel closes on ctx cancel or Close.
func (s *LogStream) Open(ctx context.Context, target string) (<-chan solana.RawNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	if s.closed {
		return nil, solana.ErrClosed
	}
	if s.opened {
		return nil, errors.New("stream already open")
	}
	s.opened = true
	s.target = target

	out := make(chan solana.RawNotification)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-s.ch:
				if !ok {
					return
				}
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Target returns the address passed to Open.
func (s *LogStream) Target() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Send queues a raw frame. Frames sent after Close are dropped.
func (s *LogStream) Send(payload string) {
	s.push(solana.RawNotification{Payload: []byte(payload), ReceivedAt: time.Now()})
}

// Fault queues a transport error frame.
func (s *LogStream) Fault(err error) {
	s.push(solana.RawNotification{Err: err, ReceivedAt: time.Now()})
}

func (s *LogStream) push(n solana.RawNotification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- n
}

// Close ends the stream.
func (s *LogStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}
