package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-copy-watcher/internal/decision"
	"wallet-copy-watcher/internal/domain"
	"wallet-copy-watcher/internal/enrich"
	"wallet-copy-watcher/internal/extract"
	"wallet-copy-watcher/internal/solana"
	"wallet-copy-watcher/internal/solana/stub"
	"wallet-copy-watcher/internal/storage/memory"
)

const wallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

type fakeEngine struct {
	mu    sync.Mutex
	eval  decision.Evaluation
	err   error
	calls int
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Evaluate(_ context.Context, _ domain.EnrichedTradeEvent) (decision.Evaluation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return e.eval, e.err
}

func (e *fakeEngine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type recordingTrigger struct {
	mu      sync.Mutex
	signals []domain.CopySignal
}

func (t *recordingTrigger) Name() string { return "recording" }

func (t *recordingTrigger) Fire(_ context.Context, s domain.CopySignal) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.signals = append(t.signals, s)
	return nil
}

func (t *recordingTrigger) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.signals)
}

type fakeSearcher struct{}

func (fakeSearcher) Search(_ context.Context, mint string) (*domain.TokenMetadata, error) {
	name, symbol := "Token One", "ONE"
	return &domain.TokenMetadata{Mint: mint, TokenID: mint, Name: &name, Symbol: &symbol}, nil
}

type fakeQuoter struct{}

func (fakeQuoter) Price(_ context.Context, tokenID string) (*domain.PriceQuote, error) {
	return &domain.PriceQuote{TokenID: tokenID, USDPrice: decimal.RequireFromString("1.25")}, nil
}

func balance(ui string) solana.TokenBalance {
	return solana.TokenBalance{Mint: "M1", Owner: wallet, UITokenAmount: solana.UITokenAmount{UIAmountString: ui}}
}

func buyTx(sig string) *solana.Transaction {
	info, _ := json.Marshal(map[string]interface{}{
		"mint":        "M1",
		"tokenAmount": map[string]interface{}{"amount": "3000000", "decimals": 6},
	})
	return &solana.Transaction{
		Signature: sig,
		Meta: &solana.TransactionMeta{
			PreTokenBalances:  []solana.TokenBalance{balance("5")},
			PostTokenBalances: []solana.TokenBalance{balance("8")},
		},
		Message: &solana.TransactionMessage{
			Instructions: []solana.Instruction{{
				Program: "spl-token",
				Parsed:  &solana.ParsedInstruction{Type: "transferChecked", Info: info},
			}},
		},
	}
}

func notification(sig string) string {
	return fmt.Sprintf(`{"jsonrpc":"2.0","method":"logsNotification","params":{"subscription":7,`+
		`"result":{"context":{"slot":100},"value":{"signature":%q,"err":null,"logs":["Program log: TransferChecked"]}}}}`, sig)
}

type fixture struct {
	session *Session
	stream  *stub.LogStream
	rpc     *stub.RPCClient
	engine  *fakeEngine
	trigger *recordingTrigger
	events  *memory.TradeEventStore
}

func newFixture(t *testing.T, engine *fakeEngine, budget int) *fixture {
	t.Helper()

	f := &fixture{
		stream:  stub.NewLogStream(16),
		rpc:     stub.NewRPCClient(),
		engine:  engine,
		trigger: &recordingTrigger{},
		events:  memory.NewTradeEventStore(),
	}
	f.session = newSession(t, f.stream, f.rpc, engine, f.trigger, f.events, budget)
	return f
}

func newSession(t *testing.T, stream solana.LogStream, rpc solana.RPCClient, engine decision.Engine,
	trigger *recordingTrigger, events *memory.TradeEventStore, budget int) *Session {
	t.Helper()

	target := domain.TargetAddress(wallet)
	session, err := NewSession(Config{
		ID:        "sess-1",
		Target:    target,
		Budget:    budget,
		Stream:    stream,
		Extractor: extract.NewExtractor(extract.Config{RPC: rpc, Target: target}),
		Enricher:  enrich.NewEnricher(enrich.Config{Searcher: fakeSearcher{}, Quoter: fakeQuoter{}}),
		Gate:      decision.NewGate(decision.GateConfig{Engine: engine, Trigger: trigger, SessionID: "sess-1", Target: target}),
		Events:    events,
	})
	require.NoError(t, err)
	return session
}

func run(ctx context.Context, s *Session) (<-chan Result, <-chan error) {
	results := make(chan Result, 1)
	errs := make(chan error, 1)
	go func() {
		res, err := s.Run(ctx)
		results <- res
		errs <- err
	}()
	return results, errs
}

func waitResult(t *testing.T, results <-chan Result) Result {
	t.Helper()
	select {
	case res := <-results:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("session did not terminate")
	}
	return Result{}
}

func TestSession_CopyEndToEnd(t *testing.T) {
	f := newFixture(t, &fakeEngine{eval: decision.Evaluation{Verdict: domain.VerdictCopy}}, decision.DefaultBudget)
	f.rpc.AddTransaction(buyTx("SIG1"))

	assert.Equal(t, StateIdle, f.session.State())

	ctx, cancel := context.WithCancel(context.Background())
	results, _ := run(ctx, f.session)

	f.stream.Send(`{"jsonrpc":"2.0","result":7,"id":1}`)
	f.stream.Send(notification("SIG1"))

	require.Eventually(t, func() bool { return f.trigger.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, f.session.Counter().Count())
	assert.Equal(t, wallet, f.stream.Target())

	cancel()
	res := waitResult(t, results)
	assert.Equal(t, ReasonCancelled, res.Reason)
	assert.Equal(t, 1, res.Triggers)
	assert.Equal(t, 2, res.Notifications)
	assert.Equal(t, StateTerminated, f.session.State())
	assert.Equal(t, 1, f.trigger.Count())

	stored, err := f.events.GetByMint(context.Background(), "M1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, domain.DirectionBuy, stored[0].Direction)
	require.NotNil(t, stored[0].Symbol)
	assert.Equal(t, "ONE", *stored[0].Symbol)
}

func TestSession_TransportFaultKeepsSubscribed(t *testing.T) {
	f := newFixture(t, &fakeEngine{eval: decision.Evaluation{Verdict: domain.VerdictCopy}}, decision.DefaultBudget)
	f.rpc.AddTransaction(buyTx("SIG1"))
	f.rpc.AddTransaction(buyTx("SIG2"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	results, _ := run(ctx, f.session)

	f.stream.Send(notification("SIG1"))
	require.Eventually(t, func() bool { return f.session.Counter().Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	f.stream.Fault(errors.New("websocket: close 1006 (abnormal closure)"))
	require.Eventually(t, func() bool {
		return f.session.Info().Notifications == 2 && f.session.State() == StateSubscribed
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, f.session.Counter().Count())

	f.stream.Send(notification("SIG2"))
	require.Eventually(t, func() bool { return f.session.Counter().Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	res := waitResult(t, results)
	assert.Equal(t, 2, res.Triggers)
}

func TestSession_EngineFaultPasses(t *testing.T) {
	engine := &fakeEngine{err: errors.New("engine down")}
	f := newFixture(t, engine, decision.DefaultBudget)
	f.rpc.AddTransaction(buyTx("SIG1"))

	ctx, cancel := context.WithCancel(context.Background())
	results, _ := run(ctx, f.session)

	f.stream.Send(notification("SIG1"))
	require.Eventually(t, func() bool { return engine.Calls() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	res := waitResult(t, results)
	assert.Equal(t, 0, res.Triggers)
	assert.Equal(t, 0, f.trigger.Count())
}

func TestSession_BudgetTerminates(t *testing.T) {
	engine := &fakeEngine{eval: decision.Evaluation{Verdict: domain.VerdictCopy}}
	f := newFixture(t, engine, decision.DefaultBudget)
	for i := 1; i <= 7; i++ {
		f.rpc.AddTransaction(buyTx(fmt.Sprintf("SIG%d", i)))
	}

	results, _ := run(context.Background(), f.session)
	for i := 1; i <= 7; i++ {
		f.stream.Send(notification(fmt.Sprintf("SIG%d", i)))
	}

	res := waitResult(t, results)
	assert.Equal(t, ReasonBudgetExhausted, res.Reason)
	assert.Equal(t, decision.DefaultBudget, res.Triggers)
	assert.Equal(t, decision.DefaultBudget, engine.Calls())
	assert.Equal(t, decision.DefaultBudget, f.trigger.Count())
	assert.Equal(t, StateTerminated, f.session.State())
}

func TestSession_SmallerBudget(t *testing.T) {
	engine := &fakeEngine{eval: decision.Evaluation{Verdict: domain.VerdictCopy}}
	f := newFixture(t, engine, 2)
	for i := 1; i <= 3; i++ {
		f.rpc.AddTransaction(buyTx(fmt.Sprintf("SIG%d", i)))
	}

	results, _ := run(context.Background(), f.session)
	for i := 1; i <= 3; i++ {
		f.stream.Send(notification(fmt.Sprintf("SIG%d", i)))
	}

	res := waitResult(t, results)
	assert.Equal(t, ReasonBudgetExhausted, res.Reason)
	assert.Equal(t, 2, res.Triggers)
}

func TestSession_DuplicateSignatureProcessedOnce(t *testing.T) {
	engine := &fakeEngine{eval: decision.Evaluation{Verdict: domain.VerdictPass}}
	f := newFixture(t, engine, decision.DefaultBudget)
	f.rpc.AddTransaction(buyTx("SIG1"))

	ctx, cancel := context.WithCancel(context.Background())
	results, _ := run(ctx, f.session)

	f.stream.Send(notification("SIG1"))
	f.stream.Send(notification("SIG1"))
	require.Eventually(t, func() bool { return f.session.Info().Notifications == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	waitResult(t, results)
	assert.Equal(t, 1, f.rpc.CallCount("getTransaction"))
	assert.Equal(t, 1, engine.Calls())
}

func TestSession_FailedAndMalformedSkipFetch(t *testing.T) {
	engine := &fakeEngine{eval: decision.Evaluation{Verdict: domain.VerdictCopy}}
	f := newFixture(t, engine, decision.DefaultBudget)

	ctx, cancel := context.WithCancel(context.Background())
	results, _ := run(ctx, f.session)

	f.stream.Send(`{"jsonrpc":"2.0","method":"logsNotification","params":{"result":{"context":{"slot":1},` +
		`"value":{"signature":"SIGF","err":{"InstructionError":[0,"Custom"]},"logs":["Program log: Transfer"]}}}}`)
	f.stream.Send(`not json`)
	f.stream.Send(`{"jsonrpc":"2.0","method":"slotNotification","params":{"result":{"slot":5}}}`)
	require.Eventually(t, func() bool { return f.session.Info().Notifications == 3 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	waitResult(t, results)
	assert.Equal(t, 0, f.rpc.CallCount("getTransaction"))
	assert.Equal(t, 0, engine.Calls())
}

func TestSession_FetchErrorSkipsEvent(t *testing.T) {
	engine := &fakeEngine{eval: decision.Evaluation{Verdict: domain.VerdictCopy}}
	f := newFixture(t, engine, decision.DefaultBudget)
	f.rpc.FailOn("SIG1", errors.New("rpc timeout"))
	f.rpc.AddTransaction(buyTx("SIG2"))

	ctx, cancel := context.WithCancel(context.Background())
	results, _ := run(ctx, f.session)

	f.stream.Send(notification("SIG1"))
	f.stream.Send(notification("SIG2"))
	require.Eventually(t, func() bool { return f.session.Counter().Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	res := waitResult(t, results)
	assert.Equal(t, 1, res.Triggers)
	assert.Equal(t, 1, engine.Calls())
}

func TestSession_OpenFailure(t *testing.T) {
	f := newFixture(t, &fakeEngine{}, decision.DefaultBudget)
	f.stream.OpenErr = errors.New("dial refused")

	res, err := f.session.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, ReasonOpenFailed, res.Reason)
	assert.Equal(t, StateTerminated, f.session.State())
}

func TestSession_StopWhileIdle(t *testing.T) {
	f := newFixture(t, &fakeEngine{}, decision.DefaultBudget)
	results, _ := run(context.Background(), f.session)

	require.Eventually(t, func() bool { return f.session.State() == StateSubscribed }, 2*time.Second, 10*time.Millisecond)
	f.session.Stop()

	res := waitResult(t, results)
	assert.Equal(t, ReasonCancelled, res.Reason)
}

func TestSession_StopBeforeRun(t *testing.T) {
	f := newFixture(t, &fakeEngine{}, decision.DefaultBudget)
	f.stream.OpenErr = errors.New("dial: context canceled")

	f.session.Stop()
	res, err := f.session.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonCancelled, res.Reason)
	assert.Equal(t, StateTerminated, f.session.State())
	assert.Empty(t, f.stream.Target(), "stream must not be opened")
}

func TestSession_CancelledBeforeRun(t *testing.T) {
	f := newFixture(t, &fakeEngine{}, decision.DefaultBudget)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.session.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReasonCancelled, res.Reason)
	assert.Empty(t, f.stream.Target())
}

func TestSession_RunTwice(t *testing.T) {
	f := newFixture(t, &fakeEngine{}, decision.DefaultBudget)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.session.Run(ctx)
	require.NoError(t, err)
	_, err = f.session.Run(ctx)
	assert.Error(t, err)
}

func TestNewSession_Validation(t *testing.T) {
	_, err := NewSession(Config{Target: wallet})
	assert.Error(t, err)
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// TestSession_ReconnectOverWebSocket drops the first connection after one
// notification and expects the second connection's notification to be processed.
func TestSession_ReconnectOverWebSocket(t *testing.T) {
	var conns atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		n := conns.Add(1)

		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		var req struct {
			ID uint64 `json:"id"`
		}
		_ = json.Unmarshal(msg, &req)
		c.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(`{"jsonrpc":"2.0","result":%d,"id":%d}`, n, req.ID)))
		c.WriteMessage(websocket.TextMessage, []byte(notification(fmt.Sprintf("SIG%d", n))))

		if n == 1 {
			return
		}
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	cfg := solana.DefaultWSConfig()
	cfg.ReconnectDelay = 20 * time.Millisecond
	cfg.HandshakeTimeout = time.Second
	ws := solana.NewWSClient("ws"+strings.TrimPrefix(server.URL, "http"), &cfg, nil)

	rpc := stub.NewRPCClient()
	rpc.AddTransaction(buyTx("SIG1"))
	rpc.AddTransaction(buyTx("SIG2"))
	trigger := &recordingTrigger{}
	session := newSession(t, ws, rpc, &fakeEngine{eval: decision.Evaluation{Verdict: domain.VerdictCopy}},
		trigger, memory.NewTradeEventStore(), decision.DefaultBudget)

	ctx, cancel := context.WithCancel(context.Background())
	results, _ := run(ctx, session)

	require.Eventually(t, func() bool { return session.Counter().Count() == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, conns.Load(), int32(2))
	assert.NotEqual(t, StateTerminated, session.State())

	cancel()
	res := waitResult(t, results)
	assert.Equal(t, ReasonCancelled, res.Reason)
	assert.Equal(t, 2, trigger.Count())
}
