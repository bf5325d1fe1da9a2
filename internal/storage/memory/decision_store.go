package memory

import (
	"context"
	"sort"
	"sync"

	"wallet-copy-watcher/internal/domain"
	"wallet-copy-watcher/internal/storage"
)

// DecisionStore is an in-memory implementation of storage.DecisionStore.
type DecisionStore struct {
	mu        sync.RWMutex
	bySession map[string][]*domain.DecisionRecord
}

// NewDecisionStore creates a new in-memory decision store.
func NewDecisionStore() *DecisionStore {
	return &DecisionStore{
		bySession: make(map[string][]*domain.DecisionRecord),
	}
}

// Insert appends a decision record.
func (s *DecisionStore) Insert(_ context.Context, r *domain.DecisionRecord) error {
	if r == nil || r.SessionID == "" || r.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recordCopy := *r
	s.bySession[r.SessionID] = append(s.bySession[r.SessionID], &recordCopy)
	return nil
}

// ListBySession retrieves all decisions for a session, ordered by decided_at ASC.
func (s *DecisionStore) ListBySession(_ context.Context, sessionID string) ([]*domain.DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.bySession[sessionID]
	result := make([]*domain.DecisionRecord, len(records))
	for i, r := range records {
		recordCopy := *r
		result[i] = &recordCopy
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].DecidedAt < result[j].DecidedAt
	})

	return result, nil
}

var _ storage.DecisionStore = (*DecisionStore)(nil)
