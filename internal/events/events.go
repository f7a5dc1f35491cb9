// Package events publishes engine lifecycle events to an external broker so
// downstream consumers (reconciliation, alerting) can follow account state
// without polling.
package events

import (
	"context"
	"time"

	"github.com/clearline/tx-engine/internal/model"
)

// Event types.
const (
	EventAccountUpdated      = "account_updated"
	EventTransactionRejected = "transaction_rejected"
)

// Event is the JSON payload published per processed transaction.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	ClientID  uint16         `json:"client"`
	TxID      uint32         `json:"tx"`
	TxType    model.TxType   `json:"tx_type"`
	Reason    string         `json:"reason,omitempty"`
	Account   *model.Account `json:"account,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Publisher delivers events to a broker. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop is a Publisher that discards all events. Used when no broker is
// configured and in tests.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
