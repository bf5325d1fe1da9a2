package decision

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"wallet-copy-watcher/internal/domain"
	"wallet-copy-watcher/internal/execution"
	"wallet-copy-watcher/internal/observability"
	"wallet-copy-watcher/internal/storage"
)

// DefaultBudget is the maximum number of copy triggers per watch session.
const DefaultBudget = 5

// TriggerCounter counts copy verdicts acted on by one session.
// It never decreases and never exceeds its budget.
type TriggerCounter struct {
	mu     sync.Mutex
	count  int
	budget int
}

// NewTriggerCounter creates a counter. Budgets outside 1..DefaultBudget are clamped.
func NewTriggerCounter(budget int) *TriggerCounter {
	if budget <= 0 || budget > DefaultBudget {
		budget = DefaultBudget
	}
	return &TriggerCounter{budget: budget}
}

// Count returns the number of triggers so far.
func (c *TriggerCounter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Budget returns the configured budget.
func (c *TriggerCounter) Budget() int {
	return c.budget
}

// Remaining returns budget minus count.
func (c *TriggerCounter) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.budget - c.count
}

// Exhausted reports whether the budget is used up.
func (c *TriggerCounter) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count >= c.budget
}

// increment takes one trigger. ok is false when the budget was already used up.
func (c *TriggerCounter) increment() (n int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count >= c.budget {
		return c.count, false
	}
	c.count++
	return c.count, true
}

// GateConfig configures Gate.
type GateConfig struct {
	Engine     Engine
	Trigger    execution.Trigger
	Store      storage.DecisionStore // optional audit trail
	SessionID  string
	UserPubkey string
	Target     domain.TargetAddress
	Logger     *zap.Logger
	Now        func() time.Time

	// TriggerTimeout bounds one Fire call. Defaults to 30s.
	TriggerTimeout time.Duration
}

// Gate submits enriched events to the engine and acts on copy verdicts.
type Gate struct {
	cfg    GateConfig
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewGate creates a gate.
func NewGate(cfg GateConfig) *Gate {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TriggerTimeout <= 0 {
		cfg.TriggerTimeout = 30 * time.Second
	}
	return &Gate{
		cfg:    cfg,
		logger: cfg.Logger.Named("gate").With(zap.String("session_id", cfg.SessionID)),
	}
}

// Submit evaluates one event. Engine faults resolve to pass.
// On copy the counter is incremented and the trigger fires in the background.
func (g *Gate) Submit(ctx context.Context, event domain.EnrichedTradeEvent, counter *TriggerCounter) domain.Verdict {
	log := g.logger.With(
		zap.String("signature", event.Signature),
		zap.String("mint", event.Mint))

	if counter.Exhausted() {
		log.Debug("budget exhausted, not submitting")
		return domain.VerdictPass
	}

	engineName := "none"
	eval := Evaluation{Verdict: domain.VerdictPass, Reason: "no engine configured"}

	start := time.Now()
	if g.cfg.Engine != nil {
		engineName = g.cfg.Engine.Name()
		res, err := g.cfg.Engine.Evaluate(ctx, event)
		switch {
		case err != nil:
			log.Warn("decision engine failed, passing",
				zap.String("engine", engineName),
				zap.Error(err))
			eval = Evaluation{Verdict: domain.VerdictPass, Reason: "engine fault: " + err.Error()}
		case res.Verdict != domain.VerdictCopy && res.Verdict != domain.VerdictPass:
			log.Warn("unknown verdict, passing",
				zap.String("engine", engineName),
				zap.String("verdict", string(res.Verdict)))
			eval = Evaluation{Verdict: domain.VerdictPass, Reason: "unknown verdict " + string(res.Verdict)}
		default:
			eval = res
		}
	}
	observability.RecordVerdict(engineName, string(eval.Verdict), time.Since(start).Seconds())

	count := counter.Count()
	if eval.Verdict == domain.VerdictCopy {
		n, ok := counter.increment()
		if !ok {
			eval = Evaluation{Verdict: domain.VerdictPass, Reason: "budget exhausted"}
		} else {
			count = n
			g.fire(ctx, domain.CopySignal{
				SessionID:  g.cfg.SessionID,
				UserPubkey: g.cfg.UserPubkey,
				Target:     g.cfg.Target,
				Sequence:   n,
				Event:      event,
				EmittedAt:  g.cfg.Now().UnixMilli(),
			})
		}
	}

	log.Info("decision",
		zap.String("engine", engineName),
		zap.String("verdict", string(eval.Verdict)),
		zap.String("reason", eval.Reason),
		zap.Int("trigger_count", count),
		zap.Int("budget", counter.Budget()))

	g.record(ctx, event, eval, count)
	return eval.Verdict
}

// fire delivers the signal without blocking the caller.
func (g *Gate) fire(ctx context.Context, signal domain.CopySignal) {
	if g.cfg.Trigger == nil {
		g.logger.Warn("copy verdict without trigger", zap.String("signature", signal.Event.Signature))
		return
	}

	// The signal outlives session cancellation; only the timeout bounds it.
	fireCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.TriggerTimeout)
	trigger := g.cfg.Trigger

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer cancel()

		err := trigger.Fire(fireCtx, signal)
		observability.RecordTrigger(err)
		if err != nil {
			g.logger.Warn("trigger failed",
				zap.String("trigger", trigger.Name()),
				zap.String("signature", signal.Event.Signature),
				zap.Int("sequence", signal.Sequence),
				zap.Error(err))
			return
		}
		g.logger.Info("trigger fired",
			zap.String("trigger", trigger.Name()),
			zap.String("signature", signal.Event.Signature),
			zap.Int("sequence", signal.Sequence))
	}()
}

func (g *Gate) record(ctx context.Context, event domain.EnrichedTradeEvent, eval Evaluation, count int) {
	if g.cfg.Store == nil {
		return
	}
	rec := &domain.DecisionRecord{
		SessionID:    g.cfg.SessionID,
		Signature:    event.Signature,
		Mint:         event.Mint,
		Direction:    event.Direction,
		Symbol:       event.Symbol,
		PriceUSD:     event.PriceUSD,
		Verdict:      eval.Verdict,
		Reason:       eval.Reason,
		TriggerCount: count,
		DecidedAt:    g.cfg.Now().UnixMilli(),
	}
	if err := g.cfg.Store.Insert(context.WithoutCancel(ctx), rec); err != nil {
		g.logger.Warn("record decision failed",
			zap.String("signature", event.Signature),
			zap.Error(err))
	}
}

// Wait blocks until all in-flight triggers have returned.
func (g *Gate) Wait() {
	g.wg.Wait()
}
