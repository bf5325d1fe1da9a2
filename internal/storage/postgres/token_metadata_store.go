package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"wallet-copy-watcher/internal/domain"
	"wallet-copy-watcher/internal/storage"
)

// TokenMetadataStore implements storage.TokenMetadataStore using PostgreSQL.
type TokenMetadataStore struct {
	pool *Pool
}

// NewTokenMetadataStore creates a new TokenMetadataStore.
func NewTokenMetadataStore(pool *Pool) *TokenMetadataStore {
	return &TokenMetadataStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenMetadataStore = (*TokenMetadataStore)(nil)

// Upsert inserts metadata or replaces the row for the same mint.
func (s *TokenMetadataStore) Upsert(ctx context.Context, m *domain.TokenMetadata) error {
	if m == nil || m.Mint == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO token_metadata (
			mint, token_id, name, symbol, decimals, source, fetched_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (mint) DO UPDATE SET
			token_id   = EXCLUDED.token_id,
			name       = EXCLUDED.name,
			symbol     = EXCLUDED.symbol,
			decimals   = EXCLUDED.decimals,
			source     = EXCLUDED.source,
			fetched_at = EXCLUDED.fetched_at
	`

	start := time.Now()
	_, err := s.pool.Exec(ctx, query,
		m.Mint,
		m.TokenID,
		m.Name,
		m.Symbol,
		m.Decimals,
		m.Source,
		m.FetchedAt,
	)
	observe("token_metadata_upsert", start, err)
	if err != nil {
		return fmt.Errorf("upsert token metadata: %w", err)
	}
	return nil
}

// GetByMint retrieves metadata by mint address. Returns ErrNotFound if not exists.
func (s *TokenMetadataStore) GetByMint(ctx context.Context, mint string) (*domain.TokenMetadata, error) {
	query := `
		SELECT mint, token_id, name, symbol, decimals, source, fetched_at
		FROM token_metadata
		WHERE mint = $1
	`

	start := time.Now()
	m, err := scanTokenMetadata(s.pool.QueryRow(ctx, query, mint))
	observe("token_metadata_get", start, err)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token metadata by mint: %w", err)
	}
	return m, nil
}

// scanTokenMetadata scans a single row into TokenMetadata.
func scanTokenMetadata(row pgx.Row) (*domain.TokenMetadata, error) {
	var m domain.TokenMetadata

	err := row.Scan(
		&m.Mint,
		&m.TokenID,
		&m.Name,
		&m.Symbol,
		&m.Decimals,
		&m.Source,
		&m.FetchedAt,
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}
