package anchor

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"

	"wallet-copy-watcher/internal/solana"
)

// globalConfigMinSize is discriminator(8) + admin(32) + unique_key_len(4) + agent_fee(8)
// with an empty unique key.
const globalConfigMinSize = 8 + 32 + 4 + 8

var globalConfigDiscriminator = accountDiscriminator("GlobalConfig")

// GlobalConfig is the agent program's admin-owned settings account.
type GlobalConfig struct {
	Address          string `json:"address"`
	Admin            string `json:"admin"`
	UniqueKey        string `json:"unique_key"`
	AgentFeeLamports uint64 `json:"agent_fee_lamports"`
}

// DecodeGlobalConfig parses raw account data. The unique key is a
// u32-length-prefixed byte string between admin and fee.
func DecodeGlobalConfig(data []byte) (*GlobalConfig, error) {
	if len(data) < globalConfigMinSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidAccount, len(data))
	}
	if [8]byte(data[:8]) != globalConfigDiscriminator {
		return nil, fmt.Errorf("%w: discriminator mismatch", ErrInvalidAccount)
	}

	keyLen := int(binary.LittleEndian.Uint32(data[40:44]))
	if keyLen > len(data)-globalConfigMinSize {
		return nil, fmt.Errorf("%w: unique key length %d exceeds data", ErrInvalidAccount, keyLen)
	}
	feeAt := 44 + keyLen

	return &GlobalConfig{
		Admin:            base58.Encode(data[8:40]),
		UniqueKey:        string(data[44:feeAt]),
		AgentFeeLamports: binary.LittleEndian.Uint64(data[feeAt : feeAt+8]),
	}, nil
}

// GlobalConfig fetches and decodes the config account at address.
func (c *Client) GlobalConfig(ctx context.Context, address string) (*GlobalConfig, error) {
	if _, err := solana.DecodeAddress(address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPubkey, err)
	}

	data, err := c.accountData(ctx, address)
	if err != nil {
		return nil, err
	}

	cfg, err := DecodeGlobalConfig(data)
	if err != nil {
		return nil, err
	}
	cfg.Address = address
	return cfg, nil
}
