// Package api provides the HTTP surface for the transaction engine: single
// and batch transaction submission, account queries, and the final-state
// report, plus a WebSocket feed of account updates.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/clearline/tx-engine/internal/csvio"
	"github.com/clearline/tx-engine/internal/engine"
	"github.com/clearline/tx-engine/internal/ledger"
	"github.com/clearline/tx-engine/internal/model"
)

// Service handles transaction submission and account queries.
type Service struct {
	engine *engine.Engine
	ledger *ledger.Ledger
	hub    *WSHub // optional WebSocket hub for account-update broadcasts
}

// NewService creates the API service. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewService(eng *engine.Engine, led *ledger.Ledger, hub *WSHub) *Service {
	return &Service{engine: eng, ledger: led, hub: hub}
}

// TransactionRequest is the JSON body for POST /api/v1/transactions.
type TransactionRequest struct {
	Type     string          `json:"type"`
	ClientID uint16          `json:"client"`
	TxID     uint32          `json:"tx"`
	Amount   decimal.Decimal `json:"amount"`
}

// TransactionResponse is returned after a transaction is processed.
type TransactionResponse struct {
	Account model.Account `json:"account"`
}

// SubmitTransaction handles POST /api/v1/transactions.
func (s *Service) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	txType, err := model.ParseTxType(req.Type)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	tx := model.Transaction{
		Type:     txType,
		ClientID: req.ClientID,
		TxID:     req.TxID,
		Amount:   req.Amount,
	}

	ctx := r.Context()
	if err := s.engine.Process(ctx, tx); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	account, err := s.ledger.Account(ctx, tx.ClientID)
	if err != nil {
		writeError(w, "failed to load account", http.StatusInternalServerError)
		return
	}

	s.broadcastAccount(account)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(TransactionResponse{Account: *account})
}

// BatchIngest handles POST /api/v1/transactions/batch. The request body is a
// CSV stream in the standard `type, client, tx, amount` format; corrupt rows
// and rejected transactions are counted, never fatal.
func (s *Service) BatchIngest(w http.ResponseWriter, r *http.Request) {
	reader := csvio.NewReader(r.Body)
	summary := s.engine.ProcessAll(r.Context(), reader)

	slog.Info("batch ingest complete",
		"processed", summary.Processed,
		"rejected", summary.Rejected,
		"corrupt", summary.Corrupt,
	)

	if s.hub != nil {
		if accounts, err := s.ledger.Accounts(r.Context()); err == nil {
			for i := range accounts {
				s.broadcastAccount(&accounts[i])
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

// ListAccounts handles GET /api/v1/accounts.
func (s *Service) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.ledger.Accounts(r.Context())
	if err != nil {
		writeError(w, "failed to list accounts", http.StatusInternalServerError)
		return
	}
	if accounts == nil {
		accounts = []model.Account{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(accounts)
}

// GetAccount handles GET /api/v1/accounts/{clientID}.
func (s *Service) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "clientID"), 10, 16)
	if err != nil {
		writeError(w, "invalid client id", http.StatusBadRequest)
		return
	}

	account, err := s.ledger.Account(r.Context(), uint16(id))
	if err != nil {
		writeError(w, "account not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

// Report handles GET /api/v1/report: the account snapshot in the same CSV
// format the CLI prints.
func (s *Service) Report(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.ledger.Accounts(r.Context())
	if err != nil {
		writeError(w, "failed to list accounts", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	if err := csvio.WriteAccounts(w, accounts); err != nil {
		slog.Error("report write failed", "err", err)
	}
}

func (s *Service) broadcastAccount(a *model.Account) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(WSMessage{
		Type:      "account_updated",
		ClientID:  a.ClientID,
		Available: a.Available.String(),
		Held:      a.Held.String(),
		Total:     a.Total().String(),
		Locked:    a.Locked,
	})
}

// statusFor maps engine/ledger errors to HTTP status codes. Business
// rejections are conflicts; malformed input is a bad request.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, model.ErrUnsupportedType):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInsufficientHeld),
		errors.Is(err, ledger.ErrOverflow),
		errors.Is(err, engine.ErrReferenceMismatch):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
