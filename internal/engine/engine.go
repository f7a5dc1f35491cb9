// Package engine interprets the semantics of each transaction type against
// the ledger and the recorded history. One bad record never aborts the
// stream: every failure is contained at the single-transaction boundary,
// reported, and processing continues.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clearline/tx-engine/internal/events"
	"github.com/clearline/tx-engine/internal/ledger"
	"github.com/clearline/tx-engine/internal/metrics"
	"github.com/clearline/tx-engine/internal/model"
	"github.com/clearline/tx-engine/internal/store"
)

// ErrReferenceMismatch is returned when a dispute/resolve/chargeback's client
// id does not match the owner of the transaction it references.
var ErrReferenceMismatch = errors.New("engine: referenced transaction belongs to a different client")

// TransactionSource yields transactions in arrival order. Next returns
// io.EOF once the stream is exhausted; any other error marks a single
// corrupt record and the stream stays readable.
type TransactionSource interface {
	Next() (model.Transaction, error)
}

// Summary is the outcome tally of one ProcessAll run.
type Summary struct {
	Processed int `json:"processed"`
	Rejected  int `json:"rejected"`
	Corrupt   int `json:"corrupt"`
}

// Engine is the transaction processor. It owns the history of accepted
// deposit/withdrawal transactions and drives the ledger; the ledger owns
// account state. Coordination flows one way, engine → ledger.
type Engine struct {
	ledger *ledger.Ledger
	store  store.Store
	pub    events.Publisher
}

// New creates an Engine. The store carries the transaction history and must
// be the same instance the ledger was built over. Pass events.Nop{} when no
// broker is configured.
func New(l *ledger.Ledger, st store.Store, pub events.Publisher) *Engine {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Engine{ledger: l, store: st, pub: pub}
}

// ProcessAll consumes the source to exhaustion, strictly in arrival order.
// Corrupt records and rejected transactions are logged and counted, never
// fatal.
func (e *Engine) ProcessAll(ctx context.Context, src TransactionSource) Summary {
	var sum Summary
	for {
		tx, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			slog.Error("corrupt transaction record", "err", err)
			metrics.CorruptRecordsTotal.Inc()
			sum.Corrupt++
			continue
		}

		if err := e.Process(ctx, tx); err != nil {
			slog.Error("transaction failed",
				"type", tx.Type, "client", tx.ClientID, "tx", tx.TxID, "err", err)
			sum.Rejected++
			continue
		}
		sum.Processed++
	}
	return sum
}

// Process applies a single transaction. The account's state afterwards
// reflects exactly the ledger operations that succeeded before any failing
// step; the returned error is informational for the caller, not fatal.
func (e *Engine) Process(ctx context.Context, tx model.Transaction) error {
	timer := prometheus.NewTimer(metrics.ProcessingLatency.WithLabelValues(string(tx.Type)))
	defer timer.ObserveDuration()

	created, err := e.ledger.EnsureAccount(ctx, tx.ClientID)
	if err != nil {
		return fmt.Errorf("ensure account %d: %w", tx.ClientID, err)
	}
	if created {
		metrics.ActiveAccounts.Inc()
	}

	locked, err := e.ledger.IsLocked(ctx, tx.ClientID)
	if err != nil {
		// EnsureAccount just ran, so this is a contract violation.
		return fmt.Errorf("lock check for client %d: %w", tx.ClientID, err)
	}
	if locked {
		// A locked account accepts no further state changes of any kind.
		slog.Debug("account locked, transaction ignored",
			"type", tx.Type, "client", tx.ClientID, "tx", tx.TxID)
		metrics.TransactionsTotal.WithLabelValues(string(tx.Type), "ignored").Inc()
		return nil
	}

	applied, err := e.dispatch(ctx, tx)
	if err != nil {
		metrics.TransactionsTotal.WithLabelValues(string(tx.Type), "rejected").Inc()
		metrics.RejectionsTotal.WithLabelValues(rejectionReason(err)).Inc()
		e.publish(ctx, events.Event{
			ID:        uuid.New().String(),
			Type:      events.EventTransactionRejected,
			ClientID:  tx.ClientID,
			TxID:      tx.TxID,
			TxType:    tx.Type,
			Reason:    err.Error(),
			Timestamp: time.Now().UTC(),
		})
		return err
	}
	if !applied {
		metrics.TransactionsTotal.WithLabelValues(string(tx.Type), "ignored").Inc()
		return nil
	}

	metrics.TransactionsTotal.WithLabelValues(string(tx.Type), "ok").Inc()
	e.publishAccountUpdated(ctx, tx)
	return nil
}

// dispatch routes one transaction to the ledger operations for its type.
// applied is false when the transaction was ignored without touching any
// balance (unknown reference).
func (e *Engine) dispatch(ctx context.Context, tx model.Transaction) (applied bool, err error) {
	switch tx.Type {
	case model.TxDeposit:
		if err := e.ledger.Deposit(ctx, tx.ClientID, tx.Amount); err != nil {
			return false, err
		}
		return true, e.record(ctx, tx)

	case model.TxWithdrawal:
		if err := e.ledger.Withdraw(ctx, tx.ClientID, tx.Amount); err != nil {
			return false, err
		}
		return true, e.record(ctx, tx)

	case model.TxDispute:
		ref, ok, err := e.resolveReference(ctx, tx)
		if !ok || err != nil {
			return false, err
		}
		// Always the original transaction's amount; disputes carry none of
		// their own.
		if err := e.ledger.Hold(ctx, tx.ClientID, ref.Amount); err != nil {
			return false, err
		}
		return true, nil

	case model.TxResolve:
		ref, ok, err := e.resolveReference(ctx, tx)
		if !ok || err != nil {
			return false, err
		}
		if err := e.ledger.Release(ctx, tx.ClientID, ref.Amount); err != nil {
			return false, err
		}
		return true, nil

	case model.TxChargeback:
		ref, ok, err := e.resolveReference(ctx, tx)
		if !ok || err != nil {
			return false, err
		}
		if err := e.ledger.WithdrawHeld(ctx, tx.ClientID, ref.Amount); err != nil {
			// Held withdrawal failed, so the account is not locked.
			return false, err
		}
		if err := e.ledger.Lock(ctx, tx.ClientID); err != nil {
			return false, err
		}
		metrics.LockedAccounts.Inc()
		slog.Info("account locked after chargeback",
			"client", tx.ClientID, "tx", tx.TxID)
		return true, nil

	default:
		return false, fmt.Errorf("%w: %q", model.ErrUnsupportedType, tx.Type)
	}
}

// record stores an accepted deposit/withdrawal in the history. Reference
// transactions are never recorded, so chains of disputes are impossible by
// construction.
func (e *Engine) record(ctx context.Context, tx model.Transaction) error {
	if err := e.store.InsertTransaction(ctx, &tx); err != nil {
		return fmt.Errorf("record transaction %d: %w", tx.TxID, err)
	}
	return nil
}

// resolveReference looks up the transaction a dispute/resolve/chargeback
// refers to. ok is false when the reference is unknown — that is not an
// error, just an ignored record.
func (e *Engine) resolveReference(ctx context.Context, tx model.Transaction) (*model.Transaction, bool, error) {
	ref, err := e.store.GetTransaction(ctx, tx.TxID)
	if errors.Is(err, store.ErrTransactionNotFound) {
		slog.Warn("reference to unknown transaction ignored",
			"type", tx.Type, "client", tx.ClientID, "tx", tx.TxID)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if ref.ClientID != tx.ClientID {
		return nil, false, fmt.Errorf("%w: tx %d belongs to client %d, not %d",
			ErrReferenceMismatch, tx.TxID, ref.ClientID, tx.ClientID)
	}
	return ref, true, nil
}

func (e *Engine) publishAccountUpdated(ctx context.Context, tx model.Transaction) {
	acc, err := e.ledger.Account(ctx, tx.ClientID)
	if err != nil {
		slog.Warn("account snapshot for event failed", "client", tx.ClientID, "err", err)
		return
	}
	e.publish(ctx, events.Event{
		ID:        uuid.New().String(),
		Type:      events.EventAccountUpdated,
		ClientID:  tx.ClientID,
		TxID:      tx.TxID,
		TxType:    tx.Type,
		Account:   acc,
		Timestamp: time.Now().UTC(),
	})
}

// publish delivers an event; a broker failure is reported but never fails
// the transaction.
func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if err := e.pub.Publish(ctx, ev); err != nil {
		slog.Warn("event publish failed", "event", ev.Type, "client", ev.ClientID, "err", err)
	}
}

// rejectionReason maps an operation error to a bounded metrics label.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrInsufficientHeld):
		return "insufficient_held"
	case errors.Is(err, ledger.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ledger.ErrOverflow):
		return "overflow"
	case errors.Is(err, ledger.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrReferenceMismatch):
		return "reference_mismatch"
	case errors.Is(err, model.ErrUnsupportedType):
		return "unsupported_type"
	default:
		return "error"
	}
}
