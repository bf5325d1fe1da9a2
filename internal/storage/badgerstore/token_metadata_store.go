// Package badgerstore keeps the token metadata cache in an embedded Badger database.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"wallet-copy-watcher/internal/domain"
	"wallet-copy-watcher/internal/observability"
	"wallet-copy-watcher/internal/storage"
)

const keyPrefix = "token_metadata/"

// Options configures the store.
type Options struct {
	Path     string
	InMemory bool          // ignore Path and keep data in memory
	TTL      time.Duration // entry lifetime; zero keeps entries forever
}

// TokenMetadataStore implements storage.TokenMetadataStore on Badger.
type TokenMetadataStore struct {
	db  *badger.DB
	ttl time.Duration
}

// Compile-time interface check.
var _ storage.TokenMetadataStore = (*TokenMetadataStore)(nil)

// Open opens or creates the database.
func Open(opts Options) (*TokenMetadataStore, error) {
	if !opts.InMemory && strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("badger: path is required")
	}

	bopts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.InMemory {
		bopts = bopts.WithDir("").WithValueDir("").WithInMemory(true)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &TokenMetadataStore{db: db, ttl: opts.TTL}, nil
}

// Close closes the database.
func (s *TokenMetadataStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Upsert stores m under its mint, replacing any previous entry.
func (s *TokenMetadataStore) Upsert(_ context.Context, m *domain.TokenMetadata) error {
	if m == nil || m.Mint == "" {
		return storage.ErrInvalidInput
	}

	value, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal token metadata: %w", err)
	}

	start := time.Now()
	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(keyPrefix+m.Mint), value)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
	observability.RecordDBQuery("badger", "token_metadata_upsert", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("upsert token metadata: %w", err)
	}
	return nil
}

// GetByMint returns the cached metadata. Returns ErrNotFound if absent or expired.
func (s *TokenMetadataStore) GetByMint(_ context.Context, mint string) (*domain.TokenMetadata, error) {
	var m domain.TokenMetadata

	start := time.Now()
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + mint))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &m)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		observability.RecordDBQuery("badger", "token_metadata_get", time.Since(start).Seconds(), nil)
		return nil, storage.ErrNotFound
	}
	observability.RecordDBQuery("badger", "token_metadata_get", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("get token metadata by mint: %w", err)
	}
	return &m, nil
}
