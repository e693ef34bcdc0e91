package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"leprechaun-go/internal/execution"
	"leprechaun-go/internal/options"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "data", "leprechaun.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndListOutcomes(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := execution.Outcome{
		Contract: options.Contract{Symbol: "AAPL", Expiration: "20250117", Strike: 150, Right: options.Call, Exchange: "SMART"},
		Side:     execution.Buy,
		Quantity: 1,
		Attempts: 1,
		State:    execution.StateFilled,
		OrderIDs: []string{"1"},
		AvgPrice: 3.2,
	}
	second := first
	second.Contract.Right = options.Put
	second.State = execution.StateExhausted
	second.Attempts = 5
	second.DuplicateRisk = true
	second.Err = "order not filled"

	if err := store.SaveOutcome(ctx, "run-1", first); err != nil {
		t.Fatalf("SaveOutcome: %v", err)
	}
	if err := store.SaveOutcome(ctx, "run-1", second); err != nil {
		t.Fatalf("SaveOutcome: %v", err)
	}

	recs, err := store.RecentOutcomes(ctx, 10)
	if err != nil {
		t.Fatalf("RecentOutcomes: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(recs))
	}
	if recs[0].Outcome.Contract.Right != options.Put || !recs[0].Outcome.DuplicateRisk {
		t.Fatalf("expected newest outcome first, got %+v", recs[0].Outcome)
	}
	if recs[1].RunID != "run-1" || recs[1].Outcome.AvgPrice != 3.2 {
		t.Fatalf("unexpected record %+v", recs[1])
	}

	limited, err := store.RecentOutcomes(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d %v", len(limited), err)
	}
}

func TestSaveRunUpsert(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	started := time.Date(2025, 1, 13, 14, 30, 0, 0, time.UTC)

	run := RunRecord{ID: "run-1", StartedAt: started, FinishedAt: started, Tickers: []string{"AAPL", "MSFT"}, Balance: 10000, BalanceAfter: 10000}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	run.FinishedAt = started.Add(time.Minute)
	run.BalanceAfter = 9500.5
	run.Err = "gateway down"
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun update: %v", err)
	}

	runs, err := store.RecentRuns(ctx, 5)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected upsert to keep one run, got %d", len(runs))
	}
	got := runs[0]
	if got.BalanceAfter != 9500.5 || got.Err != "gateway down" || len(got.Tickers) != 2 {
		t.Fatalf("unexpected run %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Fatalf("expected started_at %v, got %v", started, got.StartedAt)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.SaveOutcome(context.Background(), "r", execution.Outcome{State: execution.StateFilled}); err != nil {
		t.Fatalf("SaveOutcome: %v", err)
	}
	store.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	recs, err := reopened.RecentOutcomes(context.Background(), 0)
	if err != nil || len(recs) != 1 {
		t.Fatalf("expected persisted outcome, got %d %v", len(recs), err)
	}
}
