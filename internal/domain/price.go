package domain

import "github.com/shopspring/decimal"

// PriceQuote is a current USD price for a token.
type PriceQuote struct {
	TokenID   string
	USDPrice  decimal.Decimal
	FetchedAt int64 // ms
}
