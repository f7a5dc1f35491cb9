// Package csvio adapts the engine's transaction stream to CSV: a tolerant
// reader that keeps yielding rows past corrupt records, and a snapshot
// writer for the final account state.
//
// Input format: `type, client, tx, amount` with a header row. The amount
// column is meaningful only for deposit/withdrawal; for reference types it
// may be absent or garbage and is ignored.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/clearline/tx-engine/internal/model"
)

// ErrCorruptRecord wraps any row that could not be parsed into a
// transaction. Such rows are surfaced to the caller and never reach the
// engine's dispatch.
var ErrCorruptRecord = errors.New("csvio: corrupt record")

// Reader yields transactions from CSV input one row at a time. It
// implements engine.TransactionSource.
type Reader struct {
	csv        *csv.Reader
	headerRead bool
}

// NewReader wraps r. Fields are whitespace-trimmed; rows with the wrong
// field count are reported per-row instead of terminating the stream.
func NewReader(r io.Reader) *Reader {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1 // validated per row below
	return &Reader{csv: cr}
}

// Next returns the next transaction. io.EOF marks the end of input; any
// other error wraps ErrCorruptRecord and leaves the stream readable.
func (r *Reader) Next() (model.Transaction, error) {
	if !r.headerRead {
		r.headerRead = true
		if _, err := r.csv.Read(); err != nil {
			if err == io.EOF {
				return model.Transaction{}, io.EOF
			}
			return model.Transaction{}, fmt.Errorf("%w: header: %v", ErrCorruptRecord, err)
		}
	}

	row, err := r.csv.Read()
	if err == io.EOF {
		return model.Transaction{}, io.EOF
	}
	if err != nil {
		return model.Transaction{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return parseRow(row)
}

func parseRow(row []string) (model.Transaction, error) {
	var tx model.Transaction

	if len(row) < 3 {
		return tx, fmt.Errorf("%w: expected at least 3 fields, got %d", ErrCorruptRecord, len(row))
	}
	for i, f := range row {
		row[i] = strings.TrimSpace(f)
	}

	txType, err := model.ParseTxType(row[0])
	if err != nil {
		return tx, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}

	client, err := strconv.ParseUint(row[1], 10, 16)
	if err != nil {
		return tx, fmt.Errorf("%w: client id %q: %v", ErrCorruptRecord, row[1], err)
	}

	txID, err := strconv.ParseUint(row[2], 10, 32)
	if err != nil {
		return tx, fmt.Errorf("%w: tx id %q: %v", ErrCorruptRecord, row[2], err)
	}

	tx.Type = txType
	tx.ClientID = uint16(client)
	tx.TxID = uint32(txID)

	// Amount is required for deposit/withdrawal; for reference types any
	// fourth field is garbage by contract and is dropped here.
	if txType.Monetary() {
		if len(row) < 4 || row[3] == "" {
			return tx, fmt.Errorf("%w: %s without amount", ErrCorruptRecord, txType)
		}
		amount, err := decimal.NewFromString(row[3])
		if err != nil {
			return tx, fmt.Errorf("%w: amount %q: %v", ErrCorruptRecord, row[3], err)
		}
		tx.Amount = amount
	}

	return tx, nil
}
