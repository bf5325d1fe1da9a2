package domain

// TokenMetadata describes a token as returned by a token search or on-chain lookup.
// Cached by mint in storage.TokenMetadataStore.
type TokenMetadata struct {
	Mint      string  // token mint address (PK)
	TokenID   string  // identifier used for price lookups
	Name      *string // token name (nullable)
	Symbol    *string // token symbol (nullable)
	Decimals  *int    // token decimals (nullable)
	Source    string  // "jupiter" | "chain"
	FetchedAt int64   // when metadata was fetched (ms)
}

// Metadata sources.
const (
	MetadataSourceJupiter = "jupiter"
	MetadataSourceChain   = "chain"
)
