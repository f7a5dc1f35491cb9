// Package ledger holds authoritative per-client balances and enforces the
// arithmetic and sign invariants, independent of any transaction semantics:
// available and held never go negative, and no balance exceeds MaxBalance.
//
// Every operation validates fully before mutating, so a failing check can
// never leave a paired move (hold, release) half-applied.
//
// All monetary values use shopspring/decimal — never float64 for money.
package ledger

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/clearline/tx-engine/internal/model"
	"github.com/clearline/tx-engine/internal/store"
)

var (
	// ErrNotFound is returned when an operation references a client with no
	// account. EnsureAccount always precedes dispatch, so in normal flow
	// this indicates a programming error, not bad input.
	ErrNotFound = errors.New("ledger: account not found")

	// ErrInvalidAmount is returned for a non-positive deposit or withdrawal.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")

	// ErrInsufficientFunds is returned when a movement exceeds the
	// available balance.
	ErrInsufficientFunds = errors.New("ledger: available balance is too low")

	// ErrInsufficientHeld is returned when a movement exceeds the held
	// balance.
	ErrInsufficientHeld = errors.New("ledger: held balance is too low")

	// ErrOverflow is returned when an addition would push a balance past
	// MaxBalance. The check happens before any field mutates.
	ErrOverflow = errors.New("ledger: balance would exceed the representable range")

	// MaxBalance is the balance ceiling. decimal.Decimal is arbitrary
	// precision, so the fixed-width overflow of the upstream representation
	// is expressed as an explicit cap instead.
	MaxBalance = decimal.New(1, 12)
)

// Ledger exposes the atomic balance operations over a Store. A single mutex
// serializes mutations; the stream processor is single-threaded, but the
// HTTP front end submits concurrently and per-account operations must be
// linearized. For horizontal scaling, shard the mutex by client id.
type Ledger struct {
	store store.Store
	mu    sync.Mutex
}

// New creates a Ledger over the given store.
func New(st store.Store) *Ledger {
	return &Ledger{store: st}
}

// EnsureAccount creates a zero-balance unlocked account for the client if
// absent. Idempotent; reports whether an account was created.
func (l *Ledger) EnsureAccount(ctx context.Context, clientID uint16) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.store.GetAccount(ctx, clientID)
	if errors.Is(err, store.ErrAccountNotFound) {
		if err := l.store.SaveAccount(ctx, model.NewAccount(clientID)); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, err
}

// Deposit adds amount to the client's available balance.
func (l *Ledger) Deposit(ctx context.Context, clientID uint16, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return l.mutate(ctx, clientID, func(a *model.Account) error {
		next := a.Available.Add(amount)
		if next.GreaterThan(MaxBalance) {
			return ErrOverflow
		}
		a.Available = next
		return nil
	})
}

// Withdraw removes amount from the client's available balance.
func (l *Ledger) Withdraw(ctx context.Context, clientID uint16, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return l.mutate(ctx, clientID, func(a *model.Account) error {
		if a.Available.LessThan(amount) {
			return ErrInsufficientFunds
		}
		a.Available = a.Available.Sub(amount)
		return nil
	})
}

// Hold moves amount from available to held as one atomic pair.
func (l *Ledger) Hold(ctx context.Context, clientID uint16, amount decimal.Decimal) error {
	return l.mutate(ctx, clientID, func(a *model.Account) error {
		if a.Available.LessThan(amount) {
			return ErrInsufficientFunds
		}
		if a.Held.Add(amount).GreaterThan(MaxBalance) {
			return ErrOverflow
		}
		a.Available = a.Available.Sub(amount)
		a.Held = a.Held.Add(amount)
		return nil
	})
}

// Release moves amount from held back to available as one atomic pair.
func (l *Ledger) Release(ctx context.Context, clientID uint16, amount decimal.Decimal) error {
	return l.mutate(ctx, clientID, func(a *model.Account) error {
		if a.Held.LessThan(amount) {
			return ErrInsufficientHeld
		}
		if a.Available.Add(amount).GreaterThan(MaxBalance) {
			return ErrOverflow
		}
		a.Held = a.Held.Sub(amount)
		a.Available = a.Available.Add(amount)
		return nil
	})
}

// WithdrawHeld removes amount from the held balance entirely; the money
// leaves the system. Used for chargebacks.
func (l *Ledger) WithdrawHeld(ctx context.Context, clientID uint16, amount decimal.Decimal) error {
	return l.mutate(ctx, clientID, func(a *model.Account) error {
		if a.Held.LessThan(amount) {
			return ErrInsufficientHeld
		}
		a.Held = a.Held.Sub(amount)
		return nil
	})
}

// Lock marks the account locked. Idempotent; there is no unlock.
func (l *Ledger) Lock(ctx context.Context, clientID uint16) error {
	return l.mutate(ctx, clientID, func(a *model.Account) error {
		a.Locked = true
		return nil
	})
}

// IsLocked reports whether the client's account is locked.
func (l *Ledger) IsLocked(ctx context.Context, clientID uint16) (bool, error) {
	a, err := l.Account(ctx, clientID)
	if err != nil {
		return false, err
	}
	return a.Locked, nil
}

// Account returns a snapshot of one account.
func (l *Ledger) Account(ctx context.Context, clientID uint16) (*model.Account, error) {
	a, err := l.store.GetAccount(ctx, clientID)
	if errors.Is(err, store.ErrAccountNotFound) {
		return nil, ErrNotFound
	}
	return a, err
}

// Accounts returns a snapshot of all accounts. Order is not significant.
func (l *Ledger) Accounts(ctx context.Context) ([]model.Account, error) {
	return l.store.ListAccounts(ctx)
}

// mutate loads the account, applies fn, and saves only if fn succeeds.
// fn must complete every check before touching a field.
func (l *Ledger) mutate(ctx context.Context, clientID uint16, fn func(*model.Account) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, err := l.store.GetAccount(ctx, clientID)
	if errors.Is(err, store.ErrAccountNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := fn(a); err != nil {
		return err
	}
	return l.store.SaveAccount(ctx, a)
}
