package csvio_test

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/clearline/tx-engine/internal/csvio"
	"github.com/clearline/tx-engine/internal/model"
)

func TestWriteAccounts_SortsAndRoundsForDisplay(t *testing.T) {
	longFraction, _ := decimal.NewFromString("1.23456")

	accounts := []model.Account{
		{ClientID: 2, Available: d(5), Held: decimal.Zero, Locked: true},
		{ClientID: 1, Available: longFraction, Held: d(0.5)},
	}

	var sb strings.Builder
	if err := csvio.WriteAccounts(&sb, accounts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "client,available,held,total,locked\n" +
		"1,1.2346,0.5,1.7346,false\n" +
		"2,5,0,5,true\n"
	if sb.String() != want {
		t.Errorf("unexpected output:\ngot:\n%s\nwant:\n%s", sb.String(), want)
	}
}

func TestWriteAccounts_Empty(t *testing.T) {
	var sb strings.Builder
	if err := csvio.WriteAccounts(&sb, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sb.String() != "client,available,held,total,locked\n" {
		t.Errorf("expected header only, got %q", sb.String())
	}
}

func TestWriteAccounts_DoesNotMutateInput(t *testing.T) {
	accounts := []model.Account{
		{ClientID: 2, Available: d(1)},
		{ClientID: 1, Available: d(2)},
	}

	var sb strings.Builder
	if err := csvio.WriteAccounts(&sb, accounts); err != nil {
		t.Fatal(err)
	}

	if accounts[0].ClientID != 2 {
		t.Error("input slice order changed")
	}
}
