// Package watch runs watch sessions: one subscription, one trigger counter,
// one sequential consumer per target.
package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"wallet-copy-watcher/internal/decision"
	"wallet-copy-watcher/internal/domain"
	"wallet-copy-watcher/internal/feed"
	"wallet-copy-watcher/internal/observability"
	"wallet-copy-watcher/internal/solana"
	"wallet-copy-watcher/internal/storage"
)

// CandidateExtractor turns a log event into trade candidates.
type CandidateExtractor interface {
	Extract(ctx context.Context, event domain.LogEvent) ([]domain.TradeCandidate, error)
}

// CandidateEnricher adds market context to a candidate.
type CandidateEnricher interface {
	Enrich(ctx context.Context, c domain.TradeCandidate) domain.EnrichedTradeEvent
}

// Config configures a Session. Stream, Extractor, Enricher and Gate are required.
type Config struct {
	ID         string
	Target     domain.TargetAddress
	UserPubkey string
	Budget     int // clamped to 1..decision.DefaultBudget

	Stream    solana.LogStream
	Extractor CandidateExtractor
	Enricher  CandidateEnricher
	Gate      *decision.Gate
	Events    storage.TradeEventStore // optional

	Logger *zap.Logger
	Now    func() time.Time
}

// Result summarizes a finished session.
type Result struct {
	SessionID     string `json:"session_id"`
	Triggers      int    `json:"triggers"`
	Notifications int    `json:"notifications"`
	Candidates    int    `json:"candidates"`
	Reason        string `json:"reason"`
}

// Info is a point-in-time view of a session.
type Info struct {
	ID            string    `json:"id"`
	Target        string    `json:"target"`
	UserPubkey    string    `json:"user_pubkey,omitempty"`
	State         string    `json:"state"`
	Triggers      int       `json:"triggers"`
	Budget        int       `json:"budget"`
	Notifications int64     `json:"notifications"`
	Candidates    int64     `json:"candidates"`
	Reason        string    `json:"reason,omitempty"`
	StartedAt     time.Time `json:"started_at"`
}

// Session watches one target until the trigger budget is used up or it is cancelled.
type Session struct {
	cfg     Config
	logger  *zap.Logger
	counter *decision.TriggerCounter
	seen    *seenSet

	state         atomic.Int32
	notifications atomic.Int64
	candidates    atomic.Int64
	started       atomic.Bool

	mu        sync.Mutex
	cancel    context.CancelFunc
	stopped   bool
	reason    string
	startedAt time.Time
}

// NewSession creates a session in the Idle state.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Stream == nil || cfg.Extractor == nil || cfg.Enricher == nil || cfg.Gate == nil {
		return nil, errors.New("session: stream, extractor, enricher and gate are required")
	}
	if cfg.Target == "" {
		return nil, errors.New("session: target is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Session{
		cfg: cfg,
		logger: cfg.Logger.Named("session").With(
			zap.String("session_id", cfg.ID),
			zap.String("target", cfg.Target.String())),
		counter:   decision.NewTriggerCounter(cfg.Budget),
		seen:      newSeenSet(0),
		startedAt: cfg.Now(),
	}, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.cfg.ID }

// State returns the current state.
func (s *Session) State() State { return State(s.state.Load()) }

// Counter returns the session's trigger counter.
func (s *Session) Counter() *decision.TriggerCounter { return s.counter }

// Info returns a snapshot for status reporting.
func (s *Session) Info() Info {
	s.mu.Lock()
	reason, startedAt := s.reason, s.startedAt
	s.mu.Unlock()

	return Info{
		ID:            s.cfg.ID,
		Target:        s.cfg.Target.String(),
		UserPubkey:    s.cfg.UserPubkey,
		State:         s.State().String(),
		Triggers:      s.counter.Count(),
		Budget:        s.counter.Budget(),
		Notifications: s.notifications.Load(),
		Candidates:    s.candidates.Load(),
		Reason:        reason,
		StartedAt:     startedAt,
	}
}

// Stop requests cancellation. Run returns once the stream is released.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
}

// Run opens the stream and processes notifications one at a time until the
// budget is exhausted, ctx is cancelled or Stop is called. A session runs once.
func (s *Session) Run(ctx context.Context) (Result, error) {
	if !s.started.CompareAndSwap(false, true) {
		return Result{}, errors.New("session already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancel = cancel
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		cancel()
	}

	observability.SessionStarted()

	if ctx.Err() != nil {
		s.finish(ReasonCancelled, false)
		return s.result(), nil
	}

	stream, err := s.cfg.Stream.Open(ctx, s.cfg.Target.String())
	if err != nil {
		// A dial aborted by Stop or ctx is a cancellation, not a failure.
		if ctx.Err() != nil {
			s.finish(ReasonCancelled, false)
			return s.result(), nil
		}
		s.finish(ReasonOpenFailed, false)
		return s.result(), fmt.Errorf("open stream: %w", err)
	}
	s.state.Store(int32(StateSubscribed))
	s.logger.Info("session subscribed", zap.Int("budget", s.counter.Budget()))

	reason := s.consume(ctx, stream)
	s.finish(reason, true)

	return s.result(), nil
}

// consume is the single consumer loop. Cancellation is checked between notifications.
func (s *Session) consume(ctx context.Context, stream <-chan solana.RawNotification) string {
	for {
		if ctx.Err() != nil {
			return ReasonCancelled
		}

		select {
		case <-ctx.Done():
			return ReasonCancelled
		case raw, ok := <-stream:
			if !ok {
				if ctx.Err() != nil {
					return ReasonCancelled
				}
				return ReasonStreamClosed
			}

			s.state.Store(int32(StateProcessing))
			s.handle(ctx, raw)

			if s.counter.Exhausted() {
				return ReasonBudgetExhausted
			}
			s.state.Store(int32(StateSubscribed))
		}
	}
}

func (s *Session) handle(ctx context.Context, raw solana.RawNotification) {
	n := feed.Decode(raw)
	s.notifications.Add(1)
	observability.RecordNotification(n.Kind.String())

	switch n.Kind {
	case feed.KindAck:
		s.logger.Info("subscription confirmed", zap.Int64("subscription_id", n.SubscriptionID))
	case feed.KindTransportError:
		// The stream reconnects on its own; the session stays subscribed.
		s.logger.Warn("transport fault", zap.Error(n.Err))
	case feed.KindUnrecognized:
		s.logger.Debug("unrecognized notification", zap.String("reason", n.Reason))
	case feed.KindLogValue:
		s.process(ctx, n.Event)
	}
}

func (s *Session) process(ctx context.Context, event domain.LogEvent) {
	log := s.logger.With(zap.String("signature", event.Signature))
	observability.UpdateHighestSlot(event.Slot)

	if !s.seen.add(event.Signature) {
		log.Debug("duplicate signature, skipping")
		return
	}

	candidates, err := s.cfg.Extractor.Extract(ctx, event)
	if err != nil {
		log.Warn("extract failed, skipping event", zap.Error(err))
		return
	}
	if len(candidates) == 0 {
		return
	}
	s.candidates.Add(int64(len(candidates)))

	events := make([]*domain.EnrichedTradeEvent, 0, len(candidates))
	for _, c := range candidates {
		if ctx.Err() != nil || s.counter.Exhausted() {
			break
		}

		enriched := s.cfg.Enricher.Enrich(ctx, c)
		log.Debug("enriched",
			zap.String("mint", enriched.Mint),
			zap.String("direction", string(enriched.Direction)),
			zap.Bool("has_symbol", enriched.Symbol != nil),
			zap.Bool("has_price", enriched.PriceUSD != nil))

		s.cfg.Gate.Submit(ctx, enriched, s.counter)

		ev := enriched
		events = append(events, &ev)
	}

	if s.cfg.Events != nil && len(events) > 0 {
		if err := s.cfg.Events.InsertBulk(context.WithoutCancel(ctx), events); err != nil {
			log.Warn("store trade events failed", zap.Error(err))
		}
	}
}

// finish moves to Terminated, releases the stream and drains in-flight triggers.
func (s *Session) finish(reason string, opened bool) {
	s.state.Store(int32(StateTerminated))

	s.mu.Lock()
	s.reason = reason
	s.mu.Unlock()

	if opened {
		if err := s.cfg.Stream.Close(); err != nil {
			s.logger.Warn("close stream", zap.Error(err))
		}
	}
	s.cfg.Gate.Wait()

	observability.SessionFinished(reason)
	s.logger.Info("session terminated",
		zap.String("reason", reason),
		zap.Int("triggers", s.counter.Count()),
		zap.Int64("notifications", s.notifications.Load()))
}

func (s *Session) result() Result {
	s.mu.Lock()
	reason := s.reason
	s.mu.Unlock()

	return Result{
		SessionID:     s.cfg.ID,
		Triggers:      s.counter.Count(),
		Notifications: int(s.notifications.Load()),
		Candidates:    int(s.candidates.Load()),
		Reason:        reason,
	}
}
