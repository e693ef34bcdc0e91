package paper

import (
	"testing"

	"leprechaun-go/internal/execution"
	"leprechaun-go/internal/options"
)

func TestLedgerRecordSnapshot(t *testing.T) {
	ledger := NewLedger(2)
	filled := execution.Outcome{Contract: options.Contract{Symbol: "AAPL"}, State: execution.StateFilled}
	ledger.Record(filled)
	ledger.Record(execution.Outcome{Contract: options.Contract{Symbol: "MSFT"}, State: execution.StateExhausted})

	snapshot := ledger.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(snapshot))
	}
	if snapshot[0].Contract.Symbol != "AAPL" {
		t.Fatalf("unexpected outcome symbol")
	}
	if got := ledger.Filled(); len(got) != 1 || got[0].Contract.Symbol != "AAPL" {
		t.Fatalf("expected only the filled outcome, got %+v", got)
	}

	ledger.Reset()
	if len(ledger.Snapshot()) != 0 {
		t.Fatalf("expected ledger reset")
	}
}
