package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"

	"wallet-copy-watcher/internal/domain"
	"wallet-copy-watcher/internal/observability"
	"wallet-copy-watcher/internal/storage"
)

// TradeEventStore implements storage.TradeEventStore using ClickHouse.
// Re-inserted events collapse on merge (ReplacingMergeTree).
type TradeEventStore struct {
	conn *Conn
}

// NewTradeEventStore creates a new TradeEventStore.
func NewTradeEventStore(conn *Conn) *TradeEventStore {
	return &TradeEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeEventStore = (*TradeEventStore)(nil)

// InsertBulk appends events in one batch.
func (s *TradeEventStore) InsertBulk(ctx context.Context, events []*domain.EnrichedTradeEvent) error {
	if len(events) == 0 {
		return nil
	}

	start := time.Now()
	err := s.insert(ctx, events)
	observability.RecordDBQuery("clickhouse", "trade_events_insert", time.Since(start).Seconds(), err)
	return err
}

func (s *TradeEventStore) insert(ctx context.Context, events []*domain.EnrichedTradeEvent) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trade_events (
			signature, slot, target, mint, program, instruction, amount, direction,
			token_id, symbol, name, decimals, price_usd, enriched_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		var decimals *int32
		if e.Decimals != nil {
			d := int32(*e.Decimals)
			decimals = &d
		}
		err = batch.Append(
			e.Signature, uint64(e.Slot), e.Target.String(), e.Mint, e.Program, e.Instruction,
			e.Amount, string(e.Direction),
			e.TokenID, e.Symbol, e.Name, decimals, e.PriceUSD, uint64(e.EnrichedAt),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByMint retrieves all events for a mint, ordered by slot ASC.
func (s *TradeEventStore) GetByMint(ctx context.Context, mint string) ([]*domain.EnrichedTradeEvent, error) {
	query := `
		SELECT signature, slot, target, mint, program, instruction, amount, direction,
			token_id, symbol, name, decimals, price_usd, enriched_at
		FROM trade_events FINAL
		WHERE mint = ?
		ORDER BY slot ASC, signature ASC
	`

	start := time.Now()
	rows, err := s.conn.Query(ctx, query, mint)
	observability.RecordDBQuery("clickhouse", "trade_events_by_mint", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query by mint: %w", err)
	}
	defer rows.Close()

	return scanTradeEvents(rows)
}

// scanTradeEvents scans rows into EnrichedTradeEvent slice.
func scanTradeEvents(rows driver.Rows) ([]*domain.EnrichedTradeEvent, error) {
	var result []*domain.EnrichedTradeEvent

	for rows.Next() {
		var (
			e          domain.EnrichedTradeEvent
			slot       uint64
			target     string
			direction  string
			decimals   *int32
			price      *decimal.Decimal
			enrichedAt uint64
		)
		err := rows.Scan(
			&e.Signature, &slot, &target, &e.Mint, &e.Program, &e.Instruction, &e.Amount, &direction,
			&e.TokenID, &e.Symbol, &e.Name, &decimals, &price, &enrichedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade event: %w", err)
		}

		e.Slot = int64(slot)
		e.Target = domain.TargetAddress(target)
		e.Direction = domain.Direction(direction)
		e.PriceUSD = price
		e.EnrichedAt = int64(enrichedAt)
		if decimals != nil {
			d := int(*decimals)
			e.Decimals = &d
		}

		result = append(result, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return result, nil
}
