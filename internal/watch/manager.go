package watch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wallet-copy-watcher/internal/decision"
	"wallet-copy-watcher/internal/domain"
)

var (
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNoTasksRemaining is returned when the user has no paid tasks left.
	ErrNoTasksRemaining = errors.New("no tasks remaining")
	// ErrManagerClosed is returned by Start after Shutdown.
	ErrManagerClosed = errors.New("manager closed")
)

// StartRequest asks the manager to watch a target.
type StartRequest struct {
	Target     string `json:"target"`
	UserPubkey string `json:"user_pubkey"`
}

// Builder assembles a session with its own stream, extractor and gate.
type Builder func(id string, target domain.TargetAddress, userPubkey string, budget int) (*Session, error)

// BudgetResolver returns how many triggers a user may spend.
type BudgetResolver interface {
	Budget(ctx context.Context, userPubkey string) (int, error)
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Build   Builder
	Budgets BudgetResolver // optional
	Logger  *zap.Logger

	// KeepFinished is how many terminated sessions stay queryable; older
	// ones are evicted. Defaults to DefaultKeepFinished.
	KeepFinished int
}

// DefaultKeepFinished bounds the terminated sessions a manager retains.
const DefaultKeepFinished = 100

type entry struct {
	session *Session
	result  Result
	err     error
	done    chan struct{}
}

// Manager runs many independent sessions.
type Manager struct {
	cfg    ManagerConfig
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	sessions map[string]*entry
	finished []string // terminated ids, oldest first
	closed   bool
}

// NewManager creates a manager. Sessions run until stopped or Shutdown.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.KeepFinished <= 0 {
		cfg.KeepFinished = DefaultKeepFinished
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		logger:   cfg.Logger.Named("manager"),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*entry),
	}
}

// Start validates the request, resolves the budget and runs a new session in the background.
func (m *Manager) Start(ctx context.Context, req StartRequest) (Info, error) {
	target, err := domain.ParseTargetAddress(req.Target)
	if err != nil {
		return Info{}, err
	}

	budget := decision.DefaultBudget
	if m.cfg.Budgets != nil && req.UserPubkey != "" {
		b, err := m.cfg.Budgets.Budget(ctx, req.UserPubkey)
		if err != nil {
			return Info{}, fmt.Errorf("resolve budget: %w", err)
		}
		if b <= 0 {
			return Info{}, ErrNoTasksRemaining
		}
		budget = b
	}

	id := uuid.NewString()
	session, err := m.cfg.Build(id, target, req.UserPubkey, budget)
	if err != nil {
		return Info{}, fmt.Errorf("build session: %w", err)
	}

	e := &entry{session: session, done: make(chan struct{})}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Info{}, ErrManagerClosed
	}
	m.sessions[id] = e
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer close(e.done)

		res, err := session.Run(m.ctx)
		m.mu.Lock()
		e.result, e.err = res, err
		m.retire(id)
		m.mu.Unlock()

		if err != nil {
			m.logger.Warn("session failed", zap.String("session_id", id), zap.Error(err))
		}
	}()

	m.logger.Info("session started",
		zap.String("session_id", id),
		zap.String("target", target.String()),
		zap.Int("budget", budget))

	return session.Info(), nil
}

// retire records id as terminated and evicts the oldest terminated sessions
// beyond KeepFinished. Callers hold m.mu.
func (m *Manager) retire(id string) {
	m.finished = append(m.finished, id)
	for len(m.finished) > m.cfg.KeepFinished {
		delete(m.sessions, m.finished[0])
		m.finished = m.finished[1:]
	}
}

// Get returns a session snapshot.
func (m *Manager) Get(id string) (Info, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return Info{}, ErrSessionNotFound
	}
	return e.session.Info(), nil
}

// List returns snapshots of all sessions ordered by start time.
func (m *Manager) List() []Info {
	m.mu.RLock()
	infos := make([]Info, 0, len(m.sessions))
	for _, e := range m.sessions {
		infos = append(infos, e.session.Info())
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].StartedAt.Equal(infos[j].StartedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// Stop cancels a session and waits for it to terminate.
func (m *Manager) Stop(ctx context.Context, id string) (Result, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return Result{}, ErrSessionNotFound
	}

	e.session.Stop()

	select {
	case <-e.done:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return e.result, e.err
}

// Shutdown stops every session and waits for them.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}
