package storage

import (
	"context"

	"wallet-copy-watcher/internal/domain"
)

// TokenMetadataStore caches token metadata by mint.
type TokenMetadataStore interface {
	// Upsert inserts metadata or replaces the existing row for m.Mint.
	Upsert(ctx context.Context, m *domain.TokenMetadata) error

	// GetByMint retrieves metadata by mint address. Returns ErrNotFound if not exists.
	GetByMint(ctx context.Context, mint string) (*domain.TokenMetadata, error)
}

// DecisionStore is an append-only audit log of gate decisions.
type DecisionStore interface {
	// Insert appends a decision record.
	Insert(ctx context.Context, r *domain.DecisionRecord) error

	// ListBySession retrieves all decisions for a session, ordered by decided_at ASC.
	ListBySession(ctx context.Context, sessionID string) ([]*domain.DecisionRecord, error)
}

// TradeEventStore holds enriched trade events for later analysis.
type TradeEventStore interface {
	// InsertBulk appends multiple events in one batch.
	InsertBulk(ctx context.Context, events []*domain.EnrichedTradeEvent) error

	// GetByMint retrieves all events for a mint, ordered by slot ASC.
	GetByMint(ctx context.Context, mint string) ([]*domain.EnrichedTradeEvent, error)
}
