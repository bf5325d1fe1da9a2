package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"wallet-copy-watcher/internal/domain"
	"wallet-copy-watcher/internal/storage"
)

// DecisionStore implements storage.DecisionStore using PostgreSQL.
type DecisionStore struct {
	pool *Pool
}

// NewDecisionStore creates a new DecisionStore.
func NewDecisionStore(pool *Pool) *DecisionStore {
	return &DecisionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.DecisionStore = (*DecisionStore)(nil)

// Insert appends a decision record.
func (s *DecisionStore) Insert(ctx context.Context, r *domain.DecisionRecord) error {
	if r == nil || r.SessionID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO decisions (
			session_id, signature, mint, direction, symbol, price_usd,
			verdict, reason, trigger_count, decided_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	price := decimal.NullDecimal{}
	if r.PriceUSD != nil {
		price = decimal.NewNullDecimal(*r.PriceUSD)
	}

	start := time.Now()
	_, err := s.pool.Exec(ctx, query,
		r.SessionID,
		r.Signature,
		r.Mint,
		string(r.Direction),
		r.Symbol,
		price,
		string(r.Verdict),
		r.Reason,
		r.TriggerCount,
		r.DecidedAt,
	)
	observe("decision_insert", start, err)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// ListBySession retrieves all decisions for a session, ordered by decided_at ASC.
func (s *DecisionStore) ListBySession(ctx context.Context, sessionID string) ([]*domain.DecisionRecord, error) {
	query := `
		SELECT session_id, signature, mint, direction, symbol, price_usd,
			verdict, reason, trigger_count, decided_at
		FROM decisions
		WHERE session_id = $1
		ORDER BY decided_at ASC, id ASC
	`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, sessionID)
	observe("decision_list", start, err)
	if err != nil {
		return nil, fmt.Errorf("query decisions by session: %w", err)
	}
	defer rows.Close()

	return scanDecisions(rows)
}

// scanDecisions scans multiple rows into DecisionRecord slice.
func scanDecisions(rows pgx.Rows) ([]*domain.DecisionRecord, error) {
	var result []*domain.DecisionRecord

	for rows.Next() {
		var (
			r         domain.DecisionRecord
			direction string
			verdict   string
			price     decimal.NullDecimal
		)
		err := rows.Scan(
			&r.SessionID,
			&r.Signature,
			&r.Mint,
			&direction,
			&r.Symbol,
			&price,
			&verdict,
			&r.Reason,
			&r.TriggerCount,
			&r.DecidedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		r.Direction = domain.Direction(direction)
		r.Verdict = domain.Verdict(verdict)
		if price.Valid {
			p := price.Decimal
			r.PriceUSD = &p
		}
		result = append(result, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}

	return result, nil
}
