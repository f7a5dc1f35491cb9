package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/clearline/tx-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) GetAccount(ctx context.Context, clientID uint16) (*model.Account, error) {
	var a model.Account
	var available, held string
	var client int32

	err := s.pool.QueryRow(ctx,
		`SELECT client_id, available::TEXT, held::TEXT, locked
		 FROM accounts WHERE client_id = $1`, int32(clientID)).
		Scan(&client, &available, &held, &a.Locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account %d: %w", clientID, err)
	}

	a.ClientID = uint16(client)
	a.Available, _ = decimal.NewFromString(available)
	a.Held, _ = decimal.NewFromString(held)

	return &a, nil
}

func (s *PostgresStore) SaveAccount(ctx context.Context, account *model.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (client_id, available, held, locked)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4)
		 ON CONFLICT (client_id) DO UPDATE
		 SET available = EXCLUDED.available,
		     held = EXCLUDED.held,
		     locked = EXCLUDED.locked`,
		int32(account.ClientID),
		account.Available.String(), account.Held.String(),
		account.Locked,
	)
	return err
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT client_id, available::TEXT, held::TEXT, locked
		 FROM accounts ORDER BY client_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		var a model.Account
		var available, held string
		var client int32
		if err := rows.Scan(&client, &available, &held, &a.Locked); err != nil {
			return nil, err
		}
		a.ClientID = uint16(client)
		a.Available, _ = decimal.NewFromString(available)
		a.Held, _ = decimal.NewFromString(held)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *PostgresStore) InsertTransaction(ctx context.Context, tx *model.Transaction) error {
	// History entries are write-once; a replayed id is a no-op.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transactions (tx_id, type, client_id, amount)
		 VALUES ($1, $2, $3, $4::NUMERIC)
		 ON CONFLICT (tx_id) DO NOTHING`,
		int64(tx.TxID), string(tx.Type), int32(tx.ClientID), tx.Amount.String(),
	)
	return err
}

func (s *PostgresStore) GetTransaction(ctx context.Context, txID uint32) (*model.Transaction, error) {
	var tx model.Transaction
	var typ, amount string
	var id int64
	var client int32

	err := s.pool.QueryRow(ctx,
		`SELECT tx_id, type, client_id, amount::TEXT
		 FROM transactions WHERE tx_id = $1`, int64(txID)).
		Scan(&id, &typ, &client, &amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %d: %w", txID, err)
	}

	tx.TxID = uint32(id)
	tx.Type = model.TxType(typ)
	tx.ClientID = uint16(client)
	tx.Amount, _ = decimal.NewFromString(amount)

	return &tx, nil
}
