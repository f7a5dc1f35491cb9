// Command txengine processes a CSV transaction stream and prints the final
// account snapshot to stdout:
//
//	txengine transactions.csv > accounts.csv
//
// Logs go to stderr so stdout stays clean CSV. The process exits non-zero
// only when the input file cannot be read at all; individual corrupt or
// rejected transactions are logged and skipped.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/clearline/tx-engine/internal/csvio"
	"github.com/clearline/tx-engine/internal/engine"
	"github.com/clearline/tx-engine/internal/events"
	"github.com/clearline/tx-engine/internal/ledger"
	"github.com/clearline/tx-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	path, err := parseArgs(os.Args)
	if err != nil {
		slog.Error("usage: txengine <transactions.csv>", "err", err)
		os.Exit(1)
	}

	file, err := os.Open(path)
	if err != nil {
		slog.Error("cannot open transaction file", "path", path, "err", err)
		os.Exit(1)
	}
	defer file.Close()

	ctx := context.Background()

	// Single-run processing: state is process-lifetime only.
	st := store.NewMemoryStore()
	led := ledger.New(st)
	eng := engine.New(led, st, events.Nop{})

	summary := eng.ProcessAll(ctx, csvio.NewReader(file))
	slog.Info("stream complete",
		"processed", summary.Processed,
		"rejected", summary.Rejected,
		"corrupt", summary.Corrupt,
	)

	accounts, err := led.Accounts(ctx)
	if err != nil {
		slog.Error("failed to enumerate accounts", "err", err)
		os.Exit(1)
	}
	if err := csvio.WriteAccounts(os.Stdout, accounts); err != nil {
		slog.Error("failed to write snapshot", "err", err)
		os.Exit(1)
	}
}

var errNoInputFile = errors.New("no transaction file provided")

// parseArgs extracts the transaction file path from the argument list.
func parseArgs(args []string) (string, error) {
	if len(args) < 2 {
		return "", errNoInputFile
	}
	return args[1], nil
}
