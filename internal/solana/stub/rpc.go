package stub

import (
	"context"
	"sync"

	"wallet-copy-watcher/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
// Unknown signatures and accounts return nil, nil like a real node.
type RPCClient struct {
	mu           sync.RWMutex
	Transactions map[string]*solana.Transaction
	Accounts     map[string]*solana.AccountInfo
	Errors       map[string]error
	Calls        map[string]int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*solana.Transaction),
		Accounts:     make(map[string]*solana.AccountInfo),
		Errors:       make(map[string]error),
		Calls:        make(map[string]int),
	}
}

var _ solana.RPCClient = (*RPCClient)(nil)

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls["getTransaction"]++

	if err, ok := c.Errors[signature]; ok {
		return nil, err
	}
	return c.Transactions[signature], nil
}

// GetAccountInfo retrieves account info from the stub store.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls["getAccountInfo"]++

	if err, ok := c.Errors[pubkey]; ok {
		return nil, err
	}
	return c.Accounts[pubkey], nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// AddAccount adds an account to the stub store.
func (c *RPCClient) AddAccount(pubkey string, info *solana.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[pubkey] = info
}

// FailOn makes lookups of key (signature or pubkey) return err.
func (c *RPCClient) FailOn(key string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Errors[key] = err
}

// CallCount returns how many times method was invoked.
func (c *RPCClient) CallCount(method string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Calls[method]
}
