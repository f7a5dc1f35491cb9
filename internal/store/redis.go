package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clearline/tx-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and refresh the cache; reads check
// Redis first then fall back to the primary. History entries are immutable,
// so cached transactions never need invalidation.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (s *CachedStore) GetAccount(ctx context.Context, clientID uint16) (*model.Account, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, accountKey(clientID)).Bytes()
	if err == nil {
		var a model.Account
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	// Cache miss: read from primary.
	a, err := s.primary.GetAccount(ctx, clientID)
	if err != nil {
		return nil, err
	}

	s.cacheAccount(ctx, a)
	return a, nil
}

func (s *CachedStore) SaveAccount(ctx context.Context, account *model.Account) error {
	if err := s.primary.SaveAccount(ctx, account); err != nil {
		return err
	}
	s.cacheAccount(ctx, account)
	return nil
}

// ListAccounts is not cached; snapshots always come from the primary.
func (s *CachedStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return s.primary.ListAccounts(ctx)
}

func (s *CachedStore) InsertTransaction(ctx context.Context, tx *model.Transaction) error {
	if err := s.primary.InsertTransaction(ctx, tx); err != nil {
		return err
	}
	if data, err := json.Marshal(tx); err == nil {
		s.rdb.Set(ctx, transactionKey(tx.TxID), data, s.ttl)
	}
	return nil
}

func (s *CachedStore) GetTransaction(ctx context.Context, txID uint32) (*model.Transaction, error) {
	data, err := s.rdb.Get(ctx, transactionKey(txID)).Bytes()
	if err == nil {
		var tx model.Transaction
		if json.Unmarshal(data, &tx) == nil {
			return &tx, nil
		}
	}

	tx, err := s.primary.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(tx); err == nil {
		s.rdb.Set(ctx, transactionKey(txID), data, s.ttl)
	}
	return tx, nil
}

func (s *CachedStore) cacheAccount(ctx context.Context, a *model.Account) {
	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, accountKey(a.ClientID), data, s.ttl)
	}
}

func accountKey(clientID uint16) string { return fmt.Sprintf("account:%d", clientID) }
func transactionKey(txID uint32) string { return fmt.Sprintf("tx:%d", txID) }
