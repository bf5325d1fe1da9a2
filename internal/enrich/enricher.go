// Package enrich adds token metadata and a live USD price to trade candidates.
package enrich

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"wallet-copy-watcher/internal/domain"
	"wallet-copy-watcher/internal/observability"
	"wallet-copy-watcher/internal/storage"
)

// TokenSearcher resolves token metadata for a query, usually a mint.
// Returns nil, nil when there is no match.
type TokenSearcher interface {
	Search(ctx context.Context, query string) (*domain.TokenMetadata, error)
}

// PriceQuoter returns the current USD price for a token id.
// Returns nil, nil when there is no quote.
type PriceQuoter interface {
	Price(ctx context.Context, tokenID string) (*domain.PriceQuote, error)
}

// Config configures an Enricher. Searcher, Quoter and Cache are optional.
type Config struct {
	Searcher TokenSearcher
	Quoter   PriceQuoter
	Cache    storage.TokenMetadataStore
	Logger   *zap.Logger
	Now      func() time.Time
}

// Enricher performs best-effort enrichment. Every lookup is attempted once.
type Enricher struct {
	searcher TokenSearcher
	quoter   PriceQuoter
	cache    storage.TokenMetadataStore
	logger   *zap.Logger
	now      func() time.Time
}

// NewEnricher creates an enricher.
func NewEnricher(cfg Config) *Enricher {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Enricher{
		searcher: cfg.Searcher,
		quoter:   cfg.Quoter,
		cache:    cfg.Cache,
		logger:   logger.Named("enrich"),
		now:      now,
	}
}

// Enrich returns c with market context. Fields whose lookup failed or
// found nothing stay nil; enrichment itself never fails.
func (e *Enricher) Enrich(ctx context.Context, c domain.TradeCandidate) domain.EnrichedTradeEvent {
	out := domain.EnrichedTradeEvent{
		TradeCandidate: c,
		TokenID:        c.Mint,
	}

	if meta := e.metadata(ctx, c); meta != nil {
		if meta.TokenID != "" {
			out.TokenID = meta.TokenID
		}
		out.Symbol = cloneString(meta.Symbol)
		out.Name = cloneString(meta.Name)
		out.Decimals = cloneInt(meta.Decimals)
	}

	if e.quoter != nil {
		quote, err := e.quoter.Price(ctx, out.TokenID)
		switch {
		case err != nil:
			observability.RecordLookupFailure("price")
			e.logger.Warn("price lookup failed",
				zap.String("signature", c.Signature),
				zap.String("token_id", out.TokenID),
				zap.Error(err))
		case quote == nil:
			e.logger.Debug("no price quote",
				zap.String("signature", c.Signature),
				zap.String("token_id", out.TokenID))
		default:
			price := quote.USDPrice
			out.PriceUSD = &price
		}
	}

	out.EnrichedAt = e.now().UnixMilli()

	e.logger.Debug("enriched candidate",
		zap.String("signature", c.Signature),
		zap.String("mint", c.Mint),
		zap.Bool("has_symbol", out.Symbol != nil),
		zap.Bool("has_price", out.PriceUSD != nil))

	return out
}

// metadata consults the cache first, then the searcher. Searcher hits are
// written back to the cache.
func (e *Enricher) metadata(ctx context.Context, c domain.TradeCandidate) *domain.TokenMetadata {
	if e.cache != nil {
		meta, err := e.cache.GetByMint(ctx, c.Mint)
		if err == nil {
			observability.RecordCacheHit()
			return meta
		}
		if !errors.Is(err, storage.ErrNotFound) {
			e.logger.Warn("metadata cache read failed", zap.String("mint", c.Mint), zap.Error(err))
		}
	}

	if e.searcher == nil {
		return nil
	}

	meta, err := e.searcher.Search(ctx, c.Mint)
	if err != nil {
		observability.RecordLookupFailure("metadata")
		e.logger.Warn("metadata lookup failed",
			zap.String("signature", c.Signature),
			zap.String("mint", c.Mint),
			zap.Error(err))
		return nil
	}
	if meta == nil {
		e.logger.Debug("no token metadata", zap.String("signature", c.Signature), zap.String("mint", c.Mint))
		return nil
	}

	meta.Mint = c.Mint
	if meta.TokenID == "" {
		meta.TokenID = c.Mint
	}

	if e.cache != nil {
		if err := e.cache.Upsert(ctx, meta); err != nil {
			e.logger.Warn("metadata cache write failed", zap.String("mint", c.Mint), zap.Error(err))
		}
	}

	return meta
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
