// Package store defines the persistence interface for the transaction engine.
// Implementations include in-memory (the default for single-run processing),
// PostgreSQL (server mode source of truth), and Redis (read-through cache).
package store

import (
	"context"
	"errors"

	"github.com/clearline/tx-engine/internal/model"
)

var (
	// ErrAccountNotFound is returned when no account exists for a client id.
	ErrAccountNotFound = errors.New("store: account not found")

	// ErrTransactionNotFound is returned when a transaction id is not in
	// the recorded history.
	ErrTransactionNotFound = errors.New("store: transaction not found")
)

// Store is the persistence interface. Account state and the history of
// accepted deposit/withdrawal transactions live behind it; all balance
// decisions stay in the ledger and engine.
type Store interface {
	// --- Account state ---

	// GetAccount retrieves one account by client id.
	GetAccount(ctx context.Context, clientID uint16) (*model.Account, error)

	// SaveAccount upserts an account.
	SaveAccount(ctx context.Context, account *model.Account) error

	// ListAccounts returns a snapshot of all accounts.
	ListAccounts(ctx context.Context) ([]model.Account, error)

	// --- Immutable transaction history ---

	// InsertTransaction records an accepted deposit or withdrawal.
	// Entries are write-once; reference-type transactions are never inserted.
	InsertTransaction(ctx context.Context, tx *model.Transaction) error

	// GetTransaction retrieves a recorded transaction by its id.
	GetTransaction(ctx context.Context, txID uint32) (*model.Transaction, error)
}
