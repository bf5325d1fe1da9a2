// Package anchor reads the agent program's per-user account, which holds
// the number of paid copy tasks a user has left.
package anchor

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"

	"wallet-copy-watcher/internal/solana"
)

// userSeed prefixes the user account PDA seeds.
const userSeed = "user"

// userAccountSize is discriminator(8) + user(32) + total_paid(8) + tasks_used(1) + tasks_remaining(1) + has_rated(1).
const userAccountSize = 8 + 32 + 8 + 1 + 1 + 1

var (
	// ErrAccountNotFound is returned when the user account does not exist on chain.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidPubkey is returned when the user key is not a valid address.
	ErrInvalidPubkey = errors.New("invalid user pubkey")
	// ErrInvalidAccount is returned for data that does not decode as the expected account.
	ErrInvalidAccount = errors.New("invalid user account data")
)

var userAccountDiscriminator = accountDiscriminator("UserAccount")

// accountDiscriminator is the first 8 bytes of sha256("account:<Name>").
func accountDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// UserAccount is the decoded on-chain user state.
type UserAccount struct {
	Address        string `json:"address"`
	User           string `json:"user"`
	TotalPaid      uint64 `json:"total_paid"` // lamports
	TasksUsed      uint8  `json:"tasks_used"`
	TasksRemaining uint8  `json:"tasks_remaining"`
	HasRated       bool   `json:"has_rated"`
}

// UserAddress derives the user account PDA for user under programID.
func UserAddress(programID, user string) (string, error) {
	userKey, err := solana.DecodeAddress(user)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPubkey, err)
	}
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(userSeed), userKey}, programID)
	if err != nil {
		return "", fmt.Errorf("derive user account: %w", err)
	}
	return addr, nil
}

// DecodeUserAccount parses raw account data.
func DecodeUserAccount(data []byte) (*UserAccount, error) {
	if len(data) < userAccountSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidAccount, len(data))
	}
	if [8]byte(data[:8]) != userAccountDiscriminator {
		return nil, fmt.Errorf("%w: discriminator mismatch", ErrInvalidAccount)
	}

	return &UserAccount{
		User:           base58.Encode(data[8:40]),
		TotalPaid:      binary.LittleEndian.Uint64(data[40:48]),
		TasksUsed:      data[48],
		TasksRemaining: data[49],
		HasRated:       data[50] != 0,
	}, nil
}

// Client reads user accounts over RPC.
type Client struct {
	rpc       solana.RPCClient
	programID string
	maxBudget int
}

// NewClient creates a client for the agent program. maxBudget caps Budget.
func NewClient(rpc solana.RPCClient, programID string, maxBudget int) *Client {
	return &Client{rpc: rpc, programID: programID, maxBudget: maxBudget}
}

// UserAccount fetches and decodes the account for user.
func (c *Client) UserAccount(ctx context.Context, user string) (*UserAccount, error) {
	addr, err := UserAddress(c.programID, user)
	if err != nil {
		return nil, err
	}

	data, err := c.accountData(ctx, addr)
	if err != nil {
		return nil, err
	}

	acc, err := DecodeUserAccount(data)
	if err != nil {
		return nil, err
	}
	acc.Address = addr
	return acc, nil
}

// accountData reads addr and checks the program owns it.
func (c *Client) accountData(ctx context.Context, addr string) ([]byte, error) {
	info, err := c.rpc.GetAccountInfo(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", addr, err)
	}
	if info == nil {
		return nil, ErrAccountNotFound
	}
	if info.Owner != "" && info.Owner != c.programID {
		return nil, fmt.Errorf("%w: owned by %s", ErrInvalidAccount, info.Owner)
	}

	data, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}
	return data, nil
}

// Budget returns how many copy triggers the user may spend in one session:
// tasks remaining, capped at the client's max budget.
func (c *Client) Budget(ctx context.Context, user string) (int, error) {
	acc, err := c.UserAccount(ctx, user)
	if err != nil {
		return 0, err
	}
	return min(int(acc.TasksRemaining), c.maxBudget), nil
}
