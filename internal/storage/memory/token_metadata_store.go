package memory

import (
	"context"
	"sync"

	"wallet-copy-watcher/internal/domain"
	"wallet-copy-watcher/internal/storage"
)

// TokenMetadataStore is an in-memory implementation of storage.TokenMetadataStore.
type TokenMetadataStore struct {
	mu     sync.RWMutex
	byMint map[string]*domain.TokenMetadata // keyed by mint (unique)
}

// NewTokenMetadataStore creates a new in-memory token metadata store.
func NewTokenMetadataStore() *TokenMetadataStore {
	return &TokenMetadataStore{
		byMint: make(map[string]*domain.TokenMetadata),
	}
}

// Upsert stores metadata for m.Mint, replacing any previous entry.
func (s *TokenMetadataStore) Upsert(_ context.Context, m *domain.TokenMetadata) error {
	if m == nil || m.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	metaCopy := *m
	s.byMint[m.Mint] = &metaCopy
	return nil
}

// GetByMint retrieves metadata by mint address. Returns ErrNotFound if not exists.
func (s *TokenMetadataStore) GetByMint(_ context.Context, mint string) (*domain.TokenMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.byMint[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}

	metaCopy := *m
	return &metaCopy, nil
}

var _ storage.TokenMetadataStore = (*TokenMetadataStore)(nil)
