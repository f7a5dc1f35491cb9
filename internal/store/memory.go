package store

import (
	"context"
	"sync"

	"github.com/clearline/tx-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. This is the default for
// single-run stream processing, where state is process-lifetime only, and
// for testing.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[uint16]*model.Account
	history  map[uint32]*model.Transaction
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[uint16]*model.Account),
		history:  make(map[uint32]*model.Transaction),
	}
}

func (s *MemoryStore) GetAccount(_ context.Context, clientID uint16) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[clientID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	copy := *a
	return &copy, nil
}

func (s *MemoryStore) SaveAccount(_ context.Context, account *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	copy := *account
	s.accounts[account.ClientID] = &copy
	return nil
}

func (s *MemoryStore) ListAccounts(_ context.Context) ([]model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]model.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		accounts = append(accounts, *a)
	}
	return accounts, nil
}

func (s *MemoryStore) InsertTransaction(_ context.Context, tx *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Write-once: the first record for a tx id wins.
	if _, ok := s.history[tx.TxID]; ok {
		return nil
	}
	copy := *tx
	s.history[tx.TxID] = &copy
	return nil
}

func (s *MemoryStore) GetTransaction(_ context.Context, txID uint32) (*model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.history[txID]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	copy := *tx
	return &copy, nil
}
