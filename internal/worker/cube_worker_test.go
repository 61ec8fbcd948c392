package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"FinSight/internal/cube"
	"FinSight/internal/ledger"
	"FinSight/internal/period"
	"FinSight/internal/testutil"
	"FinSight/internal/worker"
)

var testTenant = uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func expense(id int64, date time.Time, amount string) ledger.Transaction {
	return ledger.Transaction{
		ID:        id,
		TenantID:  testTenant,
		AccountID: 7,
		Amount:    decimal.RequireFromString(amount),
		Date:      date,
		Type:      ledger.TypeExpense,
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestCubeWorker_FlushesOnBatchSize(t *testing.T) {
	mem := testutil.NewMemLedger()
	store := testutil.NewMemCubeStore()
	eng := cube.NewEngine(mem, store, nil, zerolog.Nop())

	deltaChan := make(chan ledger.Delta, 16)
	w := worker.NewCubeWorker(eng, deltaChan, 2, time.Hour, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Two deltas in different months dirty two monthly targets (plus the
	// coarser ones), tripping the batch threshold immediately.
	tx1 := expense(1, day(2025, time.September, 10), "-85.50")
	tx2 := expense(2, day(2025, time.October, 3), "-10.00")
	mem.Add(tx1, tx2)
	deltaChan <- ledger.Delta{Operation: ledger.OpCreate, TenantID: testTenant, New: &tx1}
	deltaChan <- ledger.Delta{Operation: ledger.OpCreate, TenantID: testTenant, New: &tx2}

	waitFor(t, func() bool { return store.Len() > 0 }, "worker never flushed")

	r, _ := period.Of(period.Monthly, tx1.Date)
	row, ok := store.Row(cube.Target{
		TenantID:        testTenant,
		PeriodType:      period.Monthly,
		PeriodStart:     r.Start,
		TransactionType: ledger.TypeExpense,
	})
	if !ok {
		t.Fatal("September monthly row not written")
	}
	if want := decimal.RequireFromString("-85.50"); !row.AmountSum.Equal(want) {
		t.Errorf("amount sum: got %s, want %s", row.AmountSum, want)
	}

	cancel()
	<-done
}

func TestCubeWorker_FlushesOnTimer(t *testing.T) {
	mem := testutil.NewMemLedger()
	store := testutil.NewMemCubeStore()
	eng := cube.NewEngine(mem, store, nil, zerolog.Nop())

	deltaChan := make(chan ledger.Delta, 16)
	// Large batch size: only the timer can trigger a flush.
	w := worker.NewCubeWorker(eng, deltaChan, 1000, 20*time.Millisecond, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	tx := expense(1, day(2025, time.September, 10), "-85.50")
	mem.Add(tx)
	deltaChan <- ledger.Delta{Operation: ledger.OpCreate, TenantID: testTenant, New: &tx}

	waitFor(t, func() bool { return store.Len() > 0 }, "timer flush never happened")

	cancel()
	<-done
}

func TestCubeWorker_FinalFlushOnChannelClose(t *testing.T) {
	mem := testutil.NewMemLedger()
	store := testutil.NewMemCubeStore()
	eng := cube.NewEngine(mem, store, nil, zerolog.Nop())

	deltaChan := make(chan ledger.Delta, 16)
	w := worker.NewCubeWorker(eng, deltaChan, 1000, time.Hour, nil, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	tx := expense(1, day(2025, time.September, 10), "-85.50")
	mem.Add(tx)
	deltaChan <- ledger.Delta{Operation: ledger.OpCreate, TenantID: testTenant, New: &tx}
	close(deltaChan)

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if store.Len() == 0 {
		t.Error("pending targets should flush before shutdown")
	}
}

func TestCubeWorker_FailedTargetsRetryNextFlush(t *testing.T) {
	mem := testutil.NewMemLedger()
	store := testutil.NewMemCubeStore()
	eng := cube.NewEngine(mem, store, nil, zerolog.Nop())

	tx := expense(1, day(2025, time.September, 10), "-85.50")
	mem.Add(tx)

	r, _ := period.Of(period.Monthly, tx.Date)
	monthly := cube.Target{
		TenantID:        testTenant,
		PeriodType:      period.Monthly,
		PeriodStart:     r.Start,
		TransactionType: ledger.TypeExpense,
	}
	store.SetFailUpsertKeys(map[string]error{monthly.Key(): context.DeadlineExceeded})

	deltaChan := make(chan ledger.Delta, 16)
	w := worker.NewCubeWorker(eng, deltaChan, 1000, 20*time.Millisecond, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deltaChan <- ledger.Delta{Operation: ledger.OpCreate, TenantID: testTenant, New: &tx}

	// Non-monthly targets land; the monthly one keeps failing.
	waitFor(t, func() bool { return store.Len() >= len(period.All())-1 }, "initial flush never happened")
	if _, ok := store.Row(monthly); ok {
		t.Fatal("monthly row should not have been written yet")
	}

	// Storage recovers; the retried target converges on a later flush.
	store.SetFailUpsertKeys(nil)
	waitFor(t, func() bool { _, ok := store.Row(monthly); return ok }, "failed target never retried")

	cancel()
	<-done
}
