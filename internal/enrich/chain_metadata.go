package enrich

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"wallet-copy-watcher/internal/domain"
	"wallet-copy-watcher/internal/solana"
)

// ChainMetadataSource resolves token metadata from the SPL mint account and
// the Metaplex metadata account. It implements TokenSearcher for mint queries.
type ChainMetadataSource struct {
	rpc    solana.RPCClient
	logger *zap.Logger
}

// NewChainMetadataSource creates an RPC-backed metadata source.
func NewChainMetadataSource(rpc solana.RPCClient, logger *zap.Logger) *ChainMetadataSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainMetadataSource{rpc: rpc, logger: logger.Named("chain_metadata")}
}

var _ TokenSearcher = (*ChainMetadataSource)(nil)

// Search returns metadata for mint. Returns nil, nil if the mint account does not exist.
func (s *ChainMetadataSource) Search(ctx context.Context, mint string) (*domain.TokenMetadata, error) {
	mintInfo, err := s.rpc.GetAccountInfo(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("get mint account info: %w", err)
	}
	if mintInfo == nil {
		return nil, nil
	}

	meta := &domain.TokenMetadata{
		Mint:      mint,
		TokenID:   mint,
		Source:    domain.MetadataSourceChain,
		FetchedAt: time.Now().UnixMilli(),
	}

	if decimals, err := parseMintDecimals(mintInfo.Data); err == nil {
		meta.Decimals = &decimals
	} else {
		s.logger.Debug("mint data unreadable", zap.String("mint", mint), zap.Error(err))
	}

	pda, err := MetadataAddress(mint)
	if err != nil {
		return meta, nil
	}

	metaInfo, err := s.rpc.GetAccountInfo(ctx, pda)
	if err != nil {
		s.logger.Debug("metaplex account fetch failed", zap.String("mint", mint), zap.Error(err))
		return meta, nil
	}
	if metaInfo != nil {
		meta.Name, meta.Symbol = parseMetaplexNameSymbol(metaInfo.Data)
	}

	return meta, nil
}

// MetadataAddress derives the Metaplex metadata PDA for mint.
// Seeds: ["metadata", metaplex_program_id, mint]
func MetadataAddress(mint string) (string, error) {
	mintBytes, err := solana.DecodeAddress(mint)
	if err != nil {
		return "", err
	}
	programBytes, err := solana.DecodeAddress(solana.MetaplexProgramID)
	if err != nil {
		return "", err
	}

	pda, _, err := solana.FindProgramAddress([][]byte{
		[]byte("metadata"),
		programBytes,
		mintBytes,
	}, solana.MetaplexProgramID)
	return pda, err
}

// parseMintDecimals reads decimals from SPL Token Mint account data.
// SPL Token Mint layout (82 bytes):
// - mintAuthority: Option<Pubkey> (36 bytes: 4 + 32)
// - supply: u64 (8 bytes)
// - decimals: u8 (1 byte)
// - isInitialized: bool (1 byte)
// - freezeAuthority: Option<Pubkey> (36 bytes: 4 + 32)
func parseMintDecimals(data string) (int, error) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return 0, fmt.Errorf("decode mint data: %w", err)
	}

	if len(decoded) < 82 {
		return 0, fmt.Errorf("mint data too short: %d", len(decoded))
	}

	return int(decoded[44]), nil
}

// parseMetaplexNameSymbol parses name and symbol from Metaplex metadata.
// Layout: key u8 (4 = MetadataV1), updateAuthority (32), mint (32),
// name borsh string, symbol borsh string, uri borsh string, ...
func parseMetaplexNameSymbol(data string) (name, symbol *string) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil || len(decoded) < 69 || decoded[0] != 4 {
		return nil, nil
	}

	offset := 65
	name, offset = readBorshString(decoded, offset, 100)
	if offset < 0 {
		return name, nil
	}
	symbol, _ = readBorshString(decoded, offset, 20)
	return name, symbol
}

// readBorshString reads a u32-length-prefixed string padded with NULs.
// Returns offset -1 when the data is truncated or the length exceeds limit.
func readBorshString(b []byte, offset int, limit uint32) (*string, int) {
	if offset+4 > len(b) {
		return nil, -1
	}
	n := binary.LittleEndian.Uint32(b[offset:])
	offset += 4
	if n > limit || offset+int(n) > len(b) {
		return nil, -1
	}
	s := strings.TrimRight(string(b[offset:offset+int(n)]), "\x00")
	offset += int(n)
	if s == "" {
		return nil, offset
	}
	return &s, offset
}
