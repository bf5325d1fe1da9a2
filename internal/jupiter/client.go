// Package jupiter is a minimal client for the Jupiter token search and price APIs.
package jupiter

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"wallet-copy-watcher/internal/domain"
	"wallet-copy-watcher/internal/observability"
)

// DefaultBaseURL is the public keyless Jupiter host.
const DefaultBaseURL = "https://lite-api.jup.ag"

// Client queries Jupiter. Requests are attempted once.
type Client struct {
	client *resty.Client
}

// Option configures Client.
type Option func(*resty.Client)

// WithAPIKey sends key in the x-api-key header.
func WithAPIKey(key string) Option {
	return func(c *resty.Client) {
		if key != "" {
			c.SetHeader("x-api-key", key)
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) {
		c.SetTimeout(d)
	}
}

// NewClient creates a Jupiter client for host.
func NewClient(host string, opts ...Option) *Client {
	if host == "" {
		host = DefaultBaseURL
	}
	host = strings.TrimSuffix(host, "/")

	client := resty.New().
		SetBaseURL(host).
		SetTimeout(10*time.Second).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	for _, opt := range opts {
		opt(client)
	}

	return &Client{client: client}
}

type searchToken struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Symbol   string           `json:"symbol"`
	Decimals *int             `json:"decimals"`
	USDPrice *decimal.Decimal `json:"usdPrice"`
}

type priceEntry struct {
	USDPrice       decimal.Decimal `json:"usdPrice"`
	BlockID        int64           `json:"blockId"`
	Decimals       int             `json:"decimals"`
	PriceChange24h *float64        `json:"priceChange24h"`
}

// Search looks up token metadata by mint or free-text query.
// Returns nil, nil when Jupiter has no entry whose id is exactly query.
func (c *Client) Search(ctx context.Context, query string) (*domain.TokenMetadata, error) {
	start := time.Now()
	defer func() {
		observability.RecordHTTPLatency("jupiter", "search", time.Since(start).Seconds())
	}()

	var tokens []searchToken
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("query", query).
		SetResult(&tokens).
		Get("/tokens/v2/search")
	if err != nil {
		return nil, errors.Wrap(err, "jupiter search")
	}
	if !resp.IsSuccess() {
		return nil, errors.Errorf("jupiter search: http %d: %s", resp.StatusCode(), resp.String())
	}

	// Search is fuzzy; only a result for exactly the queried mint counts.
	var best *searchToken
	for i := range tokens {
		if tokens[i].ID == query {
			best = &tokens[i]
			break
		}
	}
	if best == nil {
		return nil, nil
	}

	meta := &domain.TokenMetadata{
		Mint:      best.ID,
		TokenID:   best.ID,
		Decimals:  best.Decimals,
		Source:    domain.MetadataSourceJupiter,
		FetchedAt: time.Now().UnixMilli(),
	}
	if best.Name != "" {
		name := best.Name
		meta.Name = &name
	}
	if best.Symbol != "" {
		symbol := best.Symbol
		meta.Symbol = &symbol
	}

	return meta, nil
}

// Price returns the current USD price of tokenID.
// Returns nil, nil when Jupiter has no quote for it.
func (c *Client) Price(ctx context.Context, tokenID string) (*domain.PriceQuote, error) {
	start := time.Now()
	defer func() {
		observability.RecordHTTPLatency("jupiter", "price", time.Since(start).Seconds())
	}()

	var prices map[string]*priceEntry
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("ids", tokenID).
		SetResult(&prices).
		Get("/price/v3")
	if err != nil {
		return nil, errors.Wrap(err, "jupiter price")
	}
	if !resp.IsSuccess() {
		return nil, errors.Errorf("jupiter price: http %d: %s", resp.StatusCode(), resp.String())
	}

	entry, ok := prices[tokenID]
	if !ok || entry == nil {
		return nil, nil
	}

	return &domain.PriceQuote{
		TokenID:   tokenID,
		USDPrice:  entry.USDPrice,
		FetchedAt: time.Now().UnixMilli(),
	}, nil
}
