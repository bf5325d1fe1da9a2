package solana

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"wallet-copy-watcher/internal/observability"
)

// DefaultReconnectDelay is the fixed wait between a transport fault and the next dial.
const DefaultReconnectDelay = 5 * time.Second

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is the fixed delay before every reconnect attempt.
	ReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages. Pongs extend it.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// HandshakeTimeout bounds a single dial.
	HandshakeTimeout time.Duration
	// Commitment is the subscription commitment level.
	Commitment string
	// BufferSize is the capacity of the outbound frame channel.
	BufferSize int
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:   DefaultReconnectDelay,
		PingInterval:     30 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		Commitment:       "confirmed",
		BufferSize:       1024,
	}
}

// WSClientImpl implements LogStream using gorilla/websocket.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig
	logger   *zap.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	opened    atomic.Bool
	requestID atomic.Uint64

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup
}

var _ LogStream = (*WSClientImpl)(nil)

// NewWSClient creates a WebSocket log stream for endpoint. Nothing is dialed until Open.
func NewWSClient(endpoint string, config *WSClientConfig, logger *zap.Logger) *WSClientImpl {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.BufferSize < 0 {
		cfg.BufferSize = 0
	}
	if cfg.Commitment == "" {
		cfg.Commitment = "confirmed"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WSClientImpl{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger.Named("ws"),
		done:     make(chan struct{}),
	}
}

// Open dials the endpoint, subscribes to logs mentioning target and starts
// the read loop. A stream can be opened once.
func (c *WSClientImpl) Open(ctx context.Context, target string) (<-chan RawNotification, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if !c.opened.CompareAndSwap(false, true) {
		return nil, errors.New("stream already open")
	}

	filter := LogsFilter{Mentions: []string{target}}
	if err := c.connectAndSubscribe(ctx, filter); err != nil {
		c.opened.Store(false)
		return nil, err
	}

	out := make(chan RawNotification, c.config.BufferSize)

	c.wg.Add(3)
	go c.readLoop(ctx, filter, out)
	go c.pingLoop()
	go c.watchContext(ctx)

	return out, nil
}

// Close closes the WebSocket connection.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	c.wg.Wait()
	return nil
}

// connectAndSubscribe dials and sends logsSubscribe. The ack arrives through
// the read loop like any other frame.
func (c *WSClientImpl) connectAndSubscribe(ctx context.Context, filter LogsFilter) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  "logsSubscribe",
		Params: []interface{}{
			map[string]interface{}{"mentions": filter.Mentions},
			map[string]string{"commitment": c.config.Commitment},
		},
	}

	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return fmt.Errorf("write subscribe: %w", err)
	}

	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	return nil
}

// dropConn closes and forgets the current connection.
func (c *WSClientImpl) dropConn() {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
}

func (c *WSClientImpl) currentConn() *websocket.Conn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn
}

func (c *WSClientImpl) stopping(ctx context.Context) bool {
	return c.closed.Load() || ctx.Err() != nil
}

// watchContext unblocks a pending read when ctx is cancelled.
func (c *WSClientImpl) watchContext(ctx context.Context) {
	defer c.wg.Done()

	select {
	case <-ctx.Done():
		c.dropConn()
	case <-c.done:
	}
}

// readLoop forwards every frame to out. Transport faults are forwarded as
// RawNotification.Err followed by a fixed-delay redial and resubscribe.
func (c *WSClientImpl) readLoop(ctx context.Context, filter LogsFilter, out chan<- RawNotification) {
	defer c.wg.Done()
	defer close(out)

	for {
		if c.stopping(ctx) {
			return
		}

		conn := c.currentConn()
		if conn == nil {
			if !c.reconnect(ctx, filter, out) {
				return
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.stopping(ctx) {
				return
			}

			c.logger.Warn("logs subscription lost",
				zap.String("target", firstMention(filter)),
				zap.Duration("retry_in", c.config.ReconnectDelay),
				zap.Error(err))

			c.dropConn()
			if !c.emit(ctx, out, RawNotification{Err: err, ReceivedAt: time.Now()}) {
				return
			}
			continue
		}

		// Block until we can send - never drop frames
		if !c.emit(ctx, out, RawNotification{Payload: message, ReceivedAt: time.Now()}) {
			return
		}
	}
}

// reconnect waits the fixed delay and redials until it succeeds or the stream stops.
func (c *WSClientImpl) reconnect(ctx context.Context, filter LogsFilter, out chan<- RawNotification) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-c.done:
			return false
		case <-time.After(c.config.ReconnectDelay):
		}

		observability.RecordReconnect()

		dialCtx, cancel := context.WithTimeout(ctx, c.config.HandshakeTimeout+c.config.WriteTimeout)
		err := c.connectAndSubscribe(dialCtx, filter)
		cancel()

		if err == nil {
			if c.stopping(ctx) {
				c.dropConn()
				return false
			}
			c.logger.Info("logs subscription restored", zap.String("target", firstMention(filter)))
			return true
		}

		if c.stopping(ctx) {
			return false
		}

		c.logger.Warn("reconnect failed",
			zap.String("target", firstMention(filter)),
			zap.Duration("retry_in", c.config.ReconnectDelay),
			zap.Error(err))

		if !c.emit(ctx, out, RawNotification{Err: err, ReceivedAt: time.Now()}) {
			return false
		}
	}
}

func (c *WSClientImpl) emit(ctx context.Context, out chan<- RawNotification, n RawNotification) bool {
	select {
	case out <- n:
		return true
	case <-ctx.Done():
		return false
	case <-c.done:
		return false
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	if c.config.PingInterval <= 0 {
		<-c.done
		return
	}

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
					c.logger.Debug("ping failed", zap.Error(err))
				}
			}
			c.connMu.Unlock()
		}
	}
}

func firstMention(filter LogsFilter) string {
	if len(filter.Mentions) == 0 {
		return ""
	}
	return filter.Mentions[0]
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}
