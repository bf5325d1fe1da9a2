package domain

import "github.com/shopspring/decimal"

// Direction of a transfer relative to the watched address.
type Direction string

const (
	DirectionBuy     Direction = "buy"
	DirectionSell    Direction = "sell"
	DirectionUnknown Direction = "unknown"
)

// TradeCandidate is one parsed intention-to-trade taken from a single transaction.
type TradeCandidate struct {
	Signature   string        `json:"signature"`   // transaction signature (correlation key)
	Slot        int64         `json:"slot"`        // Solana slot number
	Target      TargetAddress `json:"target"`      // watched address
	Mint        string        `json:"mint"`        // token mint address
	Program     string        `json:"program"`     // parsed program name, e.g. "spl-token"
	Instruction string        `json:"instruction"` // parsed instruction type, e.g. "transferChecked"
	Amount      *uint64       `json:"amount"`      // raw amount in base units (nullable)
	Direction   Direction     `json:"direction"`
}

// EnrichedTradeEvent is a TradeCandidate plus market context.
// Optional fields are nil when the external source had no entry.
type EnrichedTradeEvent struct {
	TradeCandidate
	TokenID    string           `json:"token_id"`    // resolved token identifier, falls back to Mint
	Symbol     *string          `json:"symbol"`      // token symbol (nullable)
	Name       *string          `json:"name"`        // token name (nullable)
	Decimals   *int             `json:"decimals"`    // token decimals (nullable)
	PriceUSD   *decimal.Decimal `json:"price_usd"`   // current USD price (nullable)
	EnrichedAt int64            `json:"enriched_at"` // enrichment timestamp (ms)
}
