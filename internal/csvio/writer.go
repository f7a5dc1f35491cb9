package csvio

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"

	"github.com/clearline/tx-engine/internal/model"
)

// displayScale is the number of decimal places in the output snapshot.
// Rounding happens at display time only; internal balances are never rounded.
const displayScale = 4

// WriteAccounts writes the final account snapshot as CSV:
// client, available, held, total, locked. Rows are ordered by client id for
// stable output.
func WriteAccounts(w io.Writer, accounts []model.Account) error {
	sorted := make([]model.Account, len(accounts))
	copy(sorted, accounts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ClientID < sorted[j].ClientID })

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"client", "available", "held", "total", "locked"}); err != nil {
		return err
	}

	for _, a := range sorted {
		row := []string{
			strconv.FormatUint(uint64(a.ClientID), 10),
			a.Available.Round(displayScale).String(),
			a.Held.Round(displayScale).String(),
			a.Total().Round(displayScale).String(),
			strconv.FormatBool(a.Locked),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
