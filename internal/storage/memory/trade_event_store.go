package memory

import (
	"context"
	"sort"
	"sync"

	"wallet-copy-watcher/internal/domain"
	"wallet-copy-watcher/internal/storage"
)

// TradeEventStore is an in-memory implementation of storage.TradeEventStore.
type TradeEventStore struct {
	mu     sync.RWMutex
	byMint map[string][]*domain.EnrichedTradeEvent
}

// NewTradeEventStore creates a new in-memory trade event store.
func NewTradeEventStore() *TradeEventStore {
	return &TradeEventStore{
		byMint: make(map[string][]*domain.EnrichedTradeEvent),
	}
}

// InsertBulk appends events. The batch is validated before anything is stored.
func (s *TradeEventStore) InsertBulk(_ context.Context, events []*domain.EnrichedTradeEvent) error {
	for _, e := range events {
		if e == nil || e.Mint == "" || e.Signature == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		eventCopy := *e
		s.byMint[e.Mint] = append(s.byMint[e.Mint], &eventCopy)
	}
	return nil
}

// GetByMint retrieves all events for a mint, ordered by slot ASC.
func (s *TradeEventStore) GetByMint(_ context.Context, mint string) ([]*domain.EnrichedTradeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.byMint[mint]
	result := make([]*domain.EnrichedTradeEvent, len(events))
	for i, e := range events {
		eventCopy := *e
		result[i] = &eventCopy
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Slot < result[j].Slot
	})

	return result, nil
}

var _ storage.TradeEventStore = (*TradeEventStore)(nil)
