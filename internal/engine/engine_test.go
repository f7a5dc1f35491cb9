package engine_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/clearline/tx-engine/internal/engine"
	"github.com/clearline/tx-engine/internal/events"
	"github.com/clearline/tx-engine/internal/ledger"
	"github.com/clearline/tx-engine/internal/model"
	"github.com/clearline/tx-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newTestEngine(t *testing.T) (*engine.Engine, *ledger.Ledger) {
	t.Helper()
	st := store.NewMemoryStore()
	led := ledger.New(st)
	return engine.New(led, st, events.Nop{}), led
}

func tx(typ model.TxType, client uint16, txID uint32, amount decimal.Decimal) model.Transaction {
	return model.Transaction{Type: typ, ClientID: client, TxID: txID, Amount: amount}
}

// process runs a transaction that is expected to succeed.
func process(t *testing.T, e *engine.Engine, transaction model.Transaction) {
	t.Helper()
	if err := e.Process(context.Background(), transaction); err != nil {
		t.Fatalf("process %s client=%d tx=%d: %v",
			transaction.Type, transaction.ClientID, transaction.TxID, err)
	}
}

func assertBalances(t *testing.T, led *ledger.Ledger, client uint16, available, held decimal.Decimal, locked bool) {
	t.Helper()
	a, err := led.Account(context.Background(), client)
	if err != nil {
		t.Fatalf("account %d: %v", client, err)
	}
	if !a.Available.Equal(available) {
		t.Errorf("client %d: expected available=%s, got %s", client, available, a.Available)
	}
	if !a.Held.Equal(held) {
		t.Errorf("client %d: expected held=%s, got %s", client, held, a.Held)
	}
	if a.Locked != locked {
		t.Errorf("client %d: expected locked=%v, got %v", client, locked, a.Locked)
	}
}

// --- Deposit / withdrawal flow ---

func TestDepositThenWithdrawal(t *testing.T) {
	e, led := newTestEngine(t)

	process(t, e, tx(model.TxDeposit, 1, 1, d(10.0)))
	process(t, e, tx(model.TxWithdrawal, 1, 2, d(3.0)))

	assertBalances(t, led, 1, d(7.0), decimal.Zero, false)
}

func TestWithdrawal_RejectedKeepsBalance(t *testing.T) {
	e, led := newTestEngine(t)

	process(t, e, tx(model.TxDeposit, 1, 1, d(5)))

	err := e.Process(context.Background(), tx(model.TxWithdrawal, 1, 2, d(6)))
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}

	assertBalances(t, led, 1, d(5), decimal.Zero, false)
}

func TestDeposit_FirstReferenceCreatesAccount(t *testing.T) {
	e, led := newTestEngine(t)

	process(t, e, tx(model.TxDeposit, 42, 1, d(1)))

	if _, err := led.Account(context.Background(), 42); err != nil {
		t.Errorf("account not created lazily: %v", err)
	}
}

func TestDeposit_Overflow(t *testing.T) {
	e, led := newTestEngine(t)

	process(t, e, tx(model.TxDeposit, 1, 1, ledger.MaxBalance))

	err := e.Process(context.Background(), tx(model.TxDeposit, 1, 2, d(1.0)))
	if !errors.Is(err, ledger.ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}

	assertBalances(t, led, 1, ledger.MaxBalance, decimal.Zero, false)
}

// --- Dispute ---

func TestDispute_HoldsOriginalAmount(t *testing.T) {
	e, led := newTestEngine(t)

	process(t, e, tx(model.TxDeposit, 1, 1, d(10.0)))
	process(t, e, tx(model.TxDeposit, 1, 2, d(5.0)))
	process(t, e, tx(model.TxDispute, 1, 1, decimal.Zero))

	assertBalances(t, led, 1, d(5.0), d(10.0), false)
}

func TestDispute_IgnoresAmountOnDisputeRecord(t *testing.T) {
	// Reference-type transactions never carry their own amount; whatever
	// rides along on the record must be ignored in favor of the recorded
	// transaction's amount.
	e, led := newTestEngine(t)

	process(t, e, tx(model.TxDeposit, 1, 1, d(10.0)))
	process(t, e, tx(model.TxDispute, 1, 1, d(999.0)))

	assertBalances(t, led, 1, decimal.Zero, d(10.0), false)
}

func TestDispute_UnknownReferenceIsIgnored(t *testing.T) {
	e, led := newTestEngine(t)

	process(t, e, tx(model.TxDeposit, 1, 1, d(10.0)))

	// Not an error, just ignored.
	if err := e.Process(context.Background(), tx(model.TxDispute, 1, 99, decimal.Zero)); err != nil {
		t.Errorf("unknown reference should not error: %v", err)
	}

	assertBalances(t, led, 1, d(10.0), decimal.Zero, false)
}

func TestDispute_ClientMismatchRejected(t *testing.T) {
	e, led := newTestEngine(t)

	process(t, e, tx(model.TxDeposit, 1, 1, d(10.0)))

	err := e.Process(context.Background(), tx(model.TxDispute, 2, 1, decimal.Zero))
	if !errors.Is(err, engine.ErrReferenceMismatch) {
		t.Errorf("expected ErrReferenceMismatch, got %v", err)
	}

	assertBalances(t, led, 1, d(10.0), decimal.Zero, false)
	assertBalances(t, led, 2, decimal.Zero, decimal.Zero, false)
}

func TestDispute_AgainstWithdrawal(t *testing.T) {
	e, led := newTestEngine(t)

	process(t, e, tx(model.TxDeposit, 1, 1, d(10.0)))
	process(t, e, tx(model.TxWithdrawal, 1, 2, d(3.0)))
	process(t, e, tx(model.TxDispute, 1, 2, decimal.Zero))

	assertBalances(t, led, 1, d(4.0), d(3.0), false)
}

func TestDispute_RejectedTransactionNotDisputable(t *testing.T) {
	// Only accepted transactions enter the history; a withdrawal that was
	// rejected leaves no entry to dispute.
	e, led := newTestEngine(t)

	process(t, e, tx(model.TxDeposit, 1, 1, d(5)))
	if err := e.Process(context.Background(), tx(model.TxWithdrawal, 1, 2, d(100))); err == nil {
		t.Fatal("expected withdrawal to be rejected")
	}

	if err := e.Process(context.Background(), tx(model.TxDispute, 1, 2, decimal.Zero)); err != nil {
		t.Errorf("dispute of unrecorded tx should be ignored, got %v", err)
	}

	assertBalances(t, led, 1, d(5), decimal.Zero, false)
}

func TestDispute_SecondDisputeFailsNaturally(t *testing.T) {
	// A second dispute on an already-held transaction is not explicitly
	// guarded; the double hold fails via insufficient available funds.
	e, led := newTestEngine(t)

	process(t, e, tx(model.TxDeposit, 1, 1, d(10.0)))
	process(t, e, tx(model.TxDispute, 1, 1, decimal.Zero))

	err := e.Process(context.Background(), tx(model.TxDispute, 1, 1, decimal.Zero))
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}

	assertBalances(t, led, 1, decimal.Zero, d(10.0), false)
}

// --- Resolve ---

func TestResolve_ReturnsHeldFunds(t *testing.T) {
	e, led := newTestEngine(t)

	process(t, e, tx(model.TxDeposit, 1, 1, d(10.0)))
	process(t, e, tx(model.TxDispute, 1, 1, decimal.Zero))
	process(t, e, tx(model.TxResolve, 1, 1, decimal.Zero))

	assertBalances(t, led, 1, d(10.0), decimal.Zero, false)
}

func TestResolve_WithoutDisputeRejected(t *testing.T) {
	e, led := newTestEngine(t)

	process(t, e, tx(model.TxDeposit, 1, 1, d(10.0)))

	err := e.Process(context.Background(), tx(model.TxResolve, 1, 1, decimal.Zero))
	if !errors.Is(err, ledger.ErrInsufficientHeld) {
		t.Errorf("expected ErrInsufficientHeld, got %v", err)
	}

	assertBalances(t, led, 1, d(10.0), decimal.Zero, false)
}

// --- Chargeback ---

func TestChargeback_WithdrawsHeldAndLocks(t *testing.T) {
	e, led := newTestEngine(t)

	process(t, e, tx(model.TxDeposit, 1, 1, d(10.0)))
	process(t, e, tx(model.TxDeposit, 1, 2, d(5.0)))
	process(t, e, tx(model.TxDispute, 1, 1, decimal.Zero))
	process(t, e, tx(model.TxChargeback, 1, 1, decimal.Zero))

	assertBalances(t, led, 1, d(5.0), decimal.Zero, true)
}

func TestChargeback_ThenWithdrawalIgnored(t *testing.T) {
	e, led := newTestEngine(t)

	process(t, e, tx(model.TxDeposit, 1, 1, d(10.0)))
	process(t, e, tx(model.TxDeposit, 1, 2, d(5.0)))
	process(t, e, tx(model.TxDispute, 1, 1, decimal.Zero))
	process(t, e, tx(model.TxChargeback, 1, 1, decimal.Zero))

	// Locked account: silently ignored, no error, no mutation.
	if err := e.Process(context.Background(), tx(model.TxWithdrawal, 1, 3, d(1.0))); err != nil {
		t.Errorf("locked account should ignore, not error: %v", err)
	}

	assertBalances(t, led, 1, d(5.0), decimal.Zero, true)
}

func TestChargeback_WithoutDisputeDoesNotLock(t *testing.T) {
	// If the held withdrawal fails, the account must not be locked.
	e, led := newTestEngine(t)

	process(t, e, tx(model.TxDeposit, 1, 1, d(10.0)))

	err := e.Process(context.Background(), tx(model.TxChargeback, 1, 1, decimal.Zero))
	if !errors.Is(err, ledger.ErrInsufficientHeld) {
		t.Errorf("expected ErrInsufficientHeld, got %v", err)
	}

	assertBalances(t, led, 1, d(10.0), decimal.Zero, false)
}

// --- Lock finality ---

func TestLockedAccount_IgnoresEveryType(t *testing.T) {
	e, led := newTestEngine(t)
	ctx := context.Background()

	process(t, e, tx(model.TxDeposit, 1, 1, d(10.0)))
	process(t, e, tx(model.TxDeposit, 1, 2, d(5.0)))
	process(t, e, tx(model.TxDispute, 1, 1, decimal.Zero))
	process(t, e, tx(model.TxChargeback, 1, 1, decimal.Zero))

	ignored := []model.Transaction{
		tx(model.TxDeposit, 1, 4, d(100)),
		tx(model.TxWithdrawal, 1, 5, d(1)),
		tx(model.TxDispute, 1, 2, decimal.Zero),
		tx(model.TxResolve, 1, 2, decimal.Zero),
		tx(model.TxChargeback, 1, 2, decimal.Zero),
	}
	for _, transaction := range ignored {
		if err := e.Process(ctx, transaction); err != nil {
			t.Errorf("%s on locked account should be silent, got %v", transaction.Type, err)
		}
	}

	assertBalances(t, led, 1, d(5.0), decimal.Zero, true)
}

// --- Unsupported type ---

func TestUnsupportedType_Rejected(t *testing.T) {
	e, led := newTestEngine(t)

	err := e.Process(context.Background(), tx(model.TxType("transfer"), 1, 1, d(1)))
	if !errors.Is(err, model.ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType, got %v", err)
	}

	// The account still gets created; only the dispatch is rejected.
	assertBalances(t, led, 1, decimal.Zero, decimal.Zero, false)
}

// --- ProcessAll ---

type sourceItem struct {
	tx  model.Transaction
	err error
}

// sliceSource feeds a fixed sequence of records or per-record errors.
type sliceSource struct {
	items []sourceItem
	pos   int
}

func (s *sliceSource) Next() (model.Transaction, error) {
	if s.pos >= len(s.items) {
		return model.Transaction{}, io.EOF
	}
	item := s.items[s.pos]
	s.pos++
	return item.tx, item.err
}

func TestProcessAll_IsolatesFailures(t *testing.T) {
	e, led := newTestEngine(t)

	src := &sliceSource{items: []sourceItem{
		{tx: tx(model.TxDeposit, 1, 1, d(10.0))},
		{err: errors.New("row 2: not a transaction")},
		{tx: tx(model.TxWithdrawal, 1, 2, d(100.0))}, // rejected
		{tx: tx(model.TxWithdrawal, 1, 3, d(3.0))},
		{err: errors.New("row 5: truncated")},
	}}

	summary := e.ProcessAll(context.Background(), src)

	if summary.Processed != 2 {
		t.Errorf("expected 2 processed, got %d", summary.Processed)
	}
	if summary.Rejected != 1 {
		t.Errorf("expected 1 rejected, got %d", summary.Rejected)
	}
	if summary.Corrupt != 2 {
		t.Errorf("expected 2 corrupt, got %d", summary.Corrupt)
	}

	assertBalances(t, led, 1, d(7.0), decimal.Zero, false)
}

func TestProcessAll_UnknownReferenceNotCountedAsRejected(t *testing.T) {
	e, _ := newTestEngine(t)

	src := &sliceSource{items: []sourceItem{
		{tx: tx(model.TxDispute, 1, 99, decimal.Zero)},
	}}

	summary := e.ProcessAll(context.Background(), src)
	if summary.Rejected != 0 || summary.Processed != 1 {
		t.Errorf("unknown reference should pass through silently: %+v", summary)
	}
}

// --- Event publishing ---

type capturePublisher struct {
	events []events.Event
}

func (p *capturePublisher) Publish(_ context.Context, ev events.Event) error {
	p.events = append(p.events, ev)
	return nil
}

func TestProcess_PublishesAccountUpdated(t *testing.T) {
	st := store.NewMemoryStore()
	led := ledger.New(st)
	pub := &capturePublisher{}
	e := engine.New(led, st, pub)

	process(t, e, tx(model.TxDeposit, 1, 1, d(10.0)))

	if len(pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.events))
	}
	ev := pub.events[0]
	if ev.Type != events.EventAccountUpdated {
		t.Errorf("expected %s, got %s", events.EventAccountUpdated, ev.Type)
	}
	if ev.Account == nil || !ev.Account.Available.Equal(d(10.0)) {
		t.Errorf("event should carry the account snapshot: %+v", ev.Account)
	}
	if ev.ID == "" {
		t.Error("event id should be set")
	}
}

func TestProcess_PublishesRejection(t *testing.T) {
	st := store.NewMemoryStore()
	led := ledger.New(st)
	pub := &capturePublisher{}
	e := engine.New(led, st, pub)

	if err := e.Process(context.Background(), tx(model.TxWithdrawal, 1, 1, d(10.0))); err == nil {
		t.Fatal("expected rejection")
	}

	if len(pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.events))
	}
	ev := pub.events[0]
	if ev.Type != events.EventTransactionRejected {
		t.Errorf("expected %s, got %s", events.EventTransactionRejected, ev.Type)
	}
	if ev.Reason == "" {
		t.Error("rejection event should carry a reason")
	}
}
