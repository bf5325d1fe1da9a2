package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-copy-watcher/internal/domain"
	"wallet-copy-watcher/internal/storage/memory"
)

type stubSearcher struct {
	meta  *domain.TokenMetadata
	err   error
	calls int
}

func (s *stubSearcher) Search(_ context.Context, _ string) (*domain.TokenMetadata, error) {
	s.calls++
	if s.meta == nil {
		return nil, s.err
	}
	m := *s.meta
	return &m, s.err
}

type stubQuoter struct {
	prices map[string]string
	err    error
	calls  int
	asked  string
}

func (q *stubQuoter) Price(_ context.Context, tokenID string) (*domain.PriceQuote, error) {
	q.calls++
	q.asked = tokenID
	if q.err != nil {
		return nil, q.err
	}
	p, ok := q.prices[tokenID]
	if !ok {
		return nil, nil
	}
	return &domain.PriceQuote{TokenID: tokenID, USDPrice: decimal.RequireFromString(p)}, nil
}

func strPtr(s string) *string { return &s }

func candidate() domain.TradeCandidate {
	return domain.TradeCandidate{Signature: "SIG1", Mint: "M1", Direction: domain.DirectionBuy}
}

func fixedNow() time.Time { return time.UnixMilli(1704067200000) }

func TestEnrich_AllLookupsSucceed(t *testing.T) {
	searcher := &stubSearcher{meta: &domain.TokenMetadata{TokenID: "M1", Symbol: strPtr("TKN"), Name: strPtr("Token")}}
	quoter := &stubQuoter{prices: map[string]string{"M1": "1.25"}}

	e := NewEnricher(Config{Searcher: searcher, Quoter: quoter, Now: fixedNow})
	out := e.Enrich(context.Background(), candidate())

	assert.Equal(t, "M1", out.Mint)
	assert.Equal(t, domain.DirectionBuy, out.Direction)
	require.NotNil(t, out.Symbol)
	assert.Equal(t, "TKN", *out.Symbol)
	require.NotNil(t, out.Name)
	assert.Equal(t, "Token", *out.Name)
	require.NotNil(t, out.PriceUSD)
	assert.True(t, out.PriceUSD.Equal(decimal.RequireFromString("1.25")))
	assert.Equal(t, int64(1704067200000), out.EnrichedAt)
}

func TestEnrich_MetadataFailureLeavesFieldsNil(t *testing.T) {
	searcher := &stubSearcher{err: errors.New("search down")}
	quoter := &stubQuoter{prices: map[string]string{"M1": "2"}}

	out := NewEnricher(Config{Searcher: searcher, Quoter: quoter}).Enrich(context.Background(), candidate())

	assert.Nil(t, out.Symbol)
	assert.Nil(t, out.Name)
	assert.Equal(t, "M1", out.TokenID)
	require.NotNil(t, out.PriceUSD, "price lookup still runs keyed by mint")
	assert.Equal(t, 1, searcher.calls)
}

func TestEnrich_PriceMissingOrFailing(t *testing.T) {
	searcher := &stubSearcher{meta: &domain.TokenMetadata{Symbol: strPtr("TKN")}}

	out := NewEnricher(Config{Searcher: searcher, Quoter: &stubQuoter{}}).Enrich(context.Background(), candidate())
	assert.Nil(t, out.PriceUSD)
	require.NotNil(t, out.Symbol)

	failing := &stubQuoter{err: errors.New("price down")}
	out = NewEnricher(Config{Searcher: searcher, Quoter: failing}).Enrich(context.Background(), candidate())
	assert.Nil(t, out.PriceUSD)
	assert.Equal(t, 1, failing.calls, "no retries")
}

func TestEnrich_PriceKeyedByResolvedTokenID(t *testing.T) {
	searcher := &stubSearcher{meta: &domain.TokenMetadata{TokenID: "resolved-id"}}
	quoter := &stubQuoter{prices: map[string]string{"resolved-id": "3"}}

	out := NewEnricher(Config{Searcher: searcher, Quoter: quoter}).Enrich(context.Background(), candidate())

	assert.Equal(t, "resolved-id", quoter.asked)
	assert.Equal(t, "resolved-id", out.TokenID)
	require.NotNil(t, out.PriceUSD)
}

func TestEnrich_NoCollaborators(t *testing.T) {
	out := NewEnricher(Config{}).Enrich(context.Background(), candidate())

	assert.Equal(t, "M1", out.TokenID)
	assert.Nil(t, out.Symbol)
	assert.Nil(t, out.PriceUSD)
}

func TestEnrich_CacheWriteBackAndHit(t *testing.T) {
	cache := memory.NewTokenMetadataStore()
	searcher := &stubSearcher{meta: &domain.TokenMetadata{Symbol: strPtr("TKN")}}

	e := NewEnricher(Config{Searcher: searcher, Cache: cache})

	first := e.Enrich(context.Background(), candidate())
	second := e.Enrich(context.Background(), candidate())

	assert.Equal(t, 1, searcher.calls, "second lookup served from cache")
	require.NotNil(t, first.Symbol)
	require.NotNil(t, second.Symbol)
	assert.Equal(t, "TKN", *second.Symbol)

	cached, err := cache.GetByMint(context.Background(), "M1")
	require.NoError(t, err)
	assert.Equal(t, "M1", cached.TokenID)
}

func TestEnrich_EventsDoNotShareState(t *testing.T) {
	cache := memory.NewTokenMetadataStore()
	searcher := &stubSearcher{meta: &domain.TokenMetadata{Symbol: strPtr("TKN")}}
	e := NewEnricher(Config{Searcher: searcher, Cache: cache})

	first := e.Enrich(context.Background(), candidate())
	*first.Symbol = "CHANGED"

	second := e.Enrich(context.Background(), candidate())
	assert.Equal(t, "TKN", *second.Symbol)
}
