// Package model defines the core domain types shared across the transaction
// engine. All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// TxType is the closed set of transaction types the engine understands.
type TxType string

const (
	TxDeposit    TxType = "deposit"
	TxWithdrawal TxType = "withdrawal"
	TxDispute    TxType = "dispute"
	TxResolve    TxType = "resolve"
	TxChargeback TxType = "chargeback"
)

// ErrUnsupportedType is returned when a transaction type is outside the
// known five.
var ErrUnsupportedType = errors.New("model: unsupported transaction type")

// ParseTxType validates a raw type string against the known transaction types.
func ParseTxType(s string) (TxType, error) {
	switch t := TxType(s); t {
	case TxDeposit, TxWithdrawal, TxDispute, TxResolve, TxChargeback:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, s)
	}
}

// Monetary reports whether transactions of this type carry their own amount.
// Dispute, resolve and chargeback act on the amount of the transaction they
// reference instead.
func (t TxType) Monetary() bool {
	return t == TxDeposit || t == TxWithdrawal
}

// Transaction is a single input record. For deposit/withdrawal, TxID is the
// transaction's own globally unique id and Amount its monetary value. For
// dispute/resolve/chargeback, TxID references a previously accepted
// transaction and Amount is ignored.
type Transaction struct {
	Type     TxType          `json:"type" db:"type"`
	ClientID uint16          `json:"client" db:"client_id"`
	TxID     uint32          `json:"tx" db:"tx_id"`
	Amount   decimal.Decimal `json:"amount" db:"amount"`
}

// Account is the authoritative balance state for one client.
// Mutated exclusively through the ledger's method set.
type Account struct {
	ClientID  uint16          `json:"client" db:"client_id"`
	Available decimal.Decimal `json:"available" db:"available"`
	Held      decimal.Decimal `json:"held" db:"held"`
	Locked    bool            `json:"locked" db:"locked"`
}

// NewAccount creates an unlocked account with zero balances.
func NewAccount(clientID uint16) *Account {
	return &Account{
		ClientID:  clientID,
		Available: decimal.Zero,
		Held:      decimal.Zero,
	}
}

// Total returns available + held.
func (a *Account) Total() decimal.Decimal {
	return a.Available.Add(a.Held)
}
