package cube_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"FinSight/internal/cube"
	"FinSight/internal/ledger"
	"FinSight/internal/period"
	"FinSight/internal/testutil"
)

func newEngine(mem *testutil.MemLedger, store *testutil.MemCubeStore) *cube.Engine {
	return cube.NewEngine(mem, store, nil, zerolog.Nop())
}

func monthlyTarget(date time.Time, txType ledger.TransactionType, categoryID *int64, recurring bool) cube.Target {
	r, _ := period.Of(period.Monthly, date)
	return cube.Target{
		TenantID:        testTenant,
		PeriodType:      period.Monthly,
		PeriodStart:     r.Start,
		PeriodEnd:       r.End,
		TransactionType: txType,
		CategoryID:      categoryID,
		IsRecurring:     recurring,
	}
}

// ============================================================================
// Test: Engine.Regenerate
// ============================================================================

func TestRegenerate_DerivesRowFromLedger(t *testing.T) {
	mem := testutil.NewMemLedger()
	mem.Add(
		*sampleTx(1, day(2025, time.September, 10), "-85.50"),
		*sampleTx(2, day(2025, time.September, 14), "-120.75"),
	)
	store := testutil.NewMemCubeStore()

	target := monthlyTarget(day(2025, time.September, 1), ledger.TypeExpense, nil, false)
	report := newEngine(mem, store).Regenerate(context.Background(), []cube.Target{target})

	if report.Updated != 1 || len(report.Failed) != 0 {
		t.Fatalf("report: got updated=%d failed=%d, want 1/0", report.Updated, len(report.Failed))
	}
	row, ok := store.Row(target)
	if !ok {
		t.Fatal("row not stored")
	}
	if want := dec("-206.25"); !row.AmountSum.Equal(want) {
		t.Errorf("amount sum: got %s, want %s", row.AmountSum, want)
	}
	if row.Count != 2 {
		t.Errorf("count: got %d, want 2", row.Count)
	}
	if want := day(2025, time.September, 30); !row.PeriodEnd.Equal(want) {
		t.Errorf("period end: got %s, want %s", row.PeriodEnd, want)
	}
}

func TestRegenerate_Idempotent(t *testing.T) {
	mem := testutil.NewMemLedger()
	mem.Add(*sampleTx(1, day(2025, time.September, 10), "-85.50"))
	store := testutil.NewMemCubeStore()
	eng := newEngine(mem, store)

	target := monthlyTarget(day(2025, time.September, 1), ledger.TypeExpense, nil, false)
	eng.Regenerate(context.Background(), []cube.Target{target})
	first, _ := store.Row(target)

	// Regenerating the same target again must converge to the same row.
	eng.Regenerate(context.Background(), []cube.Target{target})
	second, ok := store.Row(target)
	if !ok {
		t.Fatal("row missing after second regeneration")
	}
	if !first.AmountSum.Equal(second.AmountSum) || first.Count != second.Count {
		t.Errorf("rows diverged: first %s/%d, second %s/%d",
			first.AmountSum, first.Count, second.AmountSum, second.Count)
	}
	if store.Len() != 1 {
		t.Errorf("rows: got %d, want 1", store.Len())
	}
}

func TestRegenerate_EmptyTargetDeletesRow(t *testing.T) {
	mem := testutil.NewMemLedger()
	mem.Add(*sampleTx(1, day(2025, time.September, 10), "-85.50"))
	store := testutil.NewMemCubeStore()
	eng := newEngine(mem, store)

	target := monthlyTarget(day(2025, time.September, 1), ledger.TypeExpense, nil, false)
	eng.Regenerate(context.Background(), []cube.Target{target})
	if _, ok := store.Row(target); !ok {
		t.Fatal("row not stored")
	}

	// The last transaction behind the row goes away; regeneration must drop
	// the row instead of leaving a zero aggregate.
	mem.Remove(1)
	report := eng.Regenerate(context.Background(), []cube.Target{target})
	if report.Updated != 1 {
		t.Errorf("report updated: got %d, want 1", report.Updated)
	}
	if _, ok := store.Row(target); ok {
		t.Error("row should have been deleted")
	}
}

func TestRegenerate_FailureDoesNotAbortBatch(t *testing.T) {
	mem := testutil.NewMemLedger()
	mem.Add(
		*sampleTx(1, day(2025, time.September, 10), "-85.50"),
		*sampleTx(2, day(2025, time.October, 3), "-10.00"),
	)
	store := testutil.NewMemCubeStore()

	sept := monthlyTarget(day(2025, time.September, 1), ledger.TypeExpense, nil, false)
	oct := monthlyTarget(day(2025, time.October, 1), ledger.TypeExpense, nil, false)
	store.FailUpsertKeys = map[string]error{sept.Key(): errors.New("connection reset")}

	report := newEngine(mem, store).Regenerate(context.Background(), []cube.Target{sept, oct})

	if report.Updated != 1 {
		t.Errorf("updated: got %d, want 1", report.Updated)
	}
	if len(report.Failed) != 1 || report.Failed[0].Target.Key() != sept.Key() {
		t.Fatalf("failed: got %+v, want the September target", report.Failed)
	}
	if _, ok := store.Row(oct); !ok {
		t.Error("October row should have been written despite the September failure")
	}
}

// ============================================================================
// Test: Engine.Populate / Rebuild
// ============================================================================

func TestPopulate_AutoDetectsRangeAndConservesTotals(t *testing.T) {
	mem := testutil.NewMemLedger()
	cat := int64(3)
	txs := []ledger.Transaction{
		*sampleTx(1, day(2025, time.January, 5), "-40.00"),
		*sampleTx(2, day(2025, time.March, 14), "-15.50"),
		{ID: 3, TenantID: testTenant, AccountID: 7, Amount: dec("2500.00"),
			Date: day(2025, time.March, 14), Type: ledger.TypeIncome},
		{ID: 4, TenantID: testTenant, AccountID: 7, Amount: dec("-9.99"),
			Date: day(2025, time.June, 30), Type: ledger.TypeExpense, CategoryID: &cat, IsRecurring: true},
	}
	mem.Add(txs...)
	store := testutil.NewMemCubeStore()

	report, err := newEngine(mem, store).Populate(context.Background(), testTenant, nil, nil)
	if err != nil {
		t.Fatalf("Populate: %v", err)
	}
	if len(report.Failed) != 0 {
		t.Fatalf("failed targets: %+v", report.Failed)
	}

	// Every period type slices the same ledger, so summing the rows of any
	// one granularity must reproduce the ledger total.
	wantTotal := decimal.Zero
	for i := range txs {
		wantTotal = wantTotal.Add(txs[i].Amount)
	}
	for _, pt := range period.All() {
		got := decimal.Zero
		var count int64
		for _, row := range store.Rows {
			if row.PeriodType == pt {
				got = got.Add(row.AmountSum)
				count += row.Count
			}
		}
		if !got.Equal(wantTotal) {
			t.Errorf("%s: sum of rows %s, want %s", pt, got, wantTotal)
		}
		if count != int64(len(txs)) {
			t.Errorf("%s: row counts sum to %d, want %d", pt, count, len(txs))
		}
	}
}

func TestPopulate_NoTransactions(t *testing.T) {
	mem := testutil.NewMemLedger()
	store := testutil.NewMemCubeStore()

	report, err := newEngine(mem, store).Populate(context.Background(), testTenant, nil, nil)
	if err != nil {
		t.Fatalf("Populate: %v", err)
	}
	if report.Updated != 0 || len(report.Failed) != 0 {
		t.Errorf("report: got %+v, want empty", report)
	}
	if store.Len() != 0 {
		t.Errorf("rows: got %d, want 0", store.Len())
	}
}

func TestRebuild_WidensToWholePeriods(t *testing.T) {
	// Rebuilding two days in June still has to produce a correct annual row,
	// which means pulling in transactions from January and December.
	mem := testutil.NewMemLedger()
	mem.Add(
		*sampleTx(1, day(2025, time.January, 5), "-40.00"),
		*sampleTx(2, day(2025, time.June, 1), "-10.00"),
		*sampleTx(3, day(2025, time.December, 20), "-5.00"),
	)
	store := testutil.NewMemCubeStore()

	_, err := newEngine(mem, store).Rebuild(context.Background(), testTenant,
		day(2025, time.June, 1), day(2025, time.June, 2))
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	annual := cube.Target{
		TenantID:        testTenant,
		PeriodType:      period.Annual,
		PeriodStart:     day(2025, time.January, 1),
		PeriodEnd:       day(2025, time.December, 31),
		TransactionType: ledger.TypeExpense,
	}
	row, ok := store.Row(annual)
	if !ok {
		t.Fatal("annual row not rebuilt")
	}
	if want := dec("-55.00"); !row.AmountSum.Equal(want) {
		t.Errorf("annual sum: got %s, want %s", row.AmountSum, want)
	}
	if row.Count != 3 {
		t.Errorf("annual count: got %d, want 3", row.Count)
	}
}

func TestRebuild_PreservesPeriodsOutsideRange(t *testing.T) {
	// Rebuilding through Dec 31 widens the weekly window into early January.
	// Rows of the longer-aligned types starting in the next year sit inside
	// that widened window and must survive the rebuild untouched.
	mem := testutil.NewMemLedger()
	mem.Add(
		*sampleTx(1, day(2025, time.June, 15), "-30.00"),
		*sampleTx(2, day(2026, time.March, 10), "-70.00"),
	)
	store := testutil.NewMemCubeStore()
	eng := newEngine(mem, store)

	if _, err := eng.Populate(context.Background(), testTenant, nil, nil); err != nil {
		t.Fatalf("Populate: %v", err)
	}

	annual2026 := cube.Target{
		TenantID:        testTenant,
		PeriodType:      period.Annual,
		PeriodStart:     day(2026, time.January, 1),
		PeriodEnd:       day(2026, time.December, 31),
		TransactionType: ledger.TypeExpense,
	}
	if _, ok := store.Row(annual2026); !ok {
		t.Fatal("2026 annual row not built by populate")
	}
	rowsBefore := store.Len()

	report, err := eng.Rebuild(context.Background(), testTenant,
		day(2025, time.June, 1), day(2025, time.December, 31))
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if len(report.Failed) != 0 {
		t.Fatalf("failed targets: %+v", report.Failed)
	}

	row, ok := store.Row(annual2026)
	if !ok {
		t.Fatal("2026 annual row lost by a 2025 rebuild")
	}
	if want := dec("-70.00"); !row.AmountSum.Equal(want) {
		t.Errorf("2026 annual sum: got %s, want %s", row.AmountSum, want)
	}
	for _, pt := range []period.Type{period.BiAnnual, period.Quarterly, period.Monthly} {
		r, _ := period.Of(pt, day(2026, time.March, 10))
		target := cube.Target{
			TenantID:        testTenant,
			PeriodType:      pt,
			PeriodStart:     r.Start,
			PeriodEnd:       r.End,
			TransactionType: ledger.TypeExpense,
		}
		if _, ok := store.Row(target); !ok {
			t.Errorf("2026 %s row lost by a 2025 rebuild", pt)
		}
	}
	if store.Len() != rowsBefore {
		t.Errorf("rows: got %d, want %d as before the rebuild", store.Len(), rowsBefore)
	}

	annual2025 := cube.Target{
		TenantID:        testTenant,
		PeriodType:      period.Annual,
		PeriodStart:     day(2025, time.January, 1),
		PeriodEnd:       day(2025, time.December, 31),
		TransactionType: ledger.TypeExpense,
	}
	row, ok = store.Row(annual2025)
	if !ok {
		t.Fatal("2025 annual row not rebuilt")
	}
	if want := dec("-30.00"); !row.AmountSum.Equal(want) {
		t.Errorf("2025 annual sum: got %s, want %s", row.AmountSum, want)
	}
}

func TestPopulate_OneSidedRangeBeyondHistory(t *testing.T) {
	mem := testutil.NewMemLedger()
	mem.Add(*sampleTx(1, day(2025, time.March, 10), "-10.00"))
	store := testutil.NewMemCubeStore()
	eng := newEngine(mem, store)

	// from after the latest transaction: the auto-detected to lands before
	// from, which means an empty cube, not an invalid range.
	from := day(2025, time.June, 1)
	report, err := eng.Populate(context.Background(), testTenant, &from, nil)
	if err != nil {
		t.Fatalf("Populate from-only: %v", err)
	}
	if report.Updated != 0 || len(report.Failed) != 0 {
		t.Errorf("report: got %+v, want empty", report)
	}

	// Mirror case: to before the earliest transaction.
	to := day(2025, time.January, 1)
	report, err = eng.Populate(context.Background(), testTenant, nil, &to)
	if err != nil {
		t.Fatalf("Populate to-only: %v", err)
	}
	if report.Updated != 0 || len(report.Failed) != 0 {
		t.Errorf("report: got %+v, want empty", report)
	}
	if store.Len() != 0 {
		t.Errorf("rows: got %d, want 0", store.Len())
	}
}

func TestRebuild_InvalidRange(t *testing.T) {
	mem := testutil.NewMemLedger()
	store := testutil.NewMemCubeStore()

	_, err := newEngine(mem, store).Rebuild(context.Background(), testTenant,
		day(2025, time.June, 2), day(2025, time.June, 1))
	if !errors.Is(err, ledger.ErrInvalidDateRange) {
		t.Errorf("got %v, want ErrInvalidDateRange", err)
	}
}

func TestRebuild_StopsBetweenChunksOnCancel(t *testing.T) {
	mem := testutil.NewMemLedger()
	mem.Add(*sampleTx(1, day(2025, time.June, 1), "-10.00"))
	store := testutil.NewMemCubeStore()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newEngine(mem, store).Rebuild(ctx, testTenant,
		day(2025, time.June, 1), day(2025, time.June, 30))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

// ============================================================================
// Test: delta flow end to end
// ============================================================================

func TestDeltaFlow_CreateThenDelete(t *testing.T) {
	mem := testutil.NewMemLedger()
	store := testutil.NewMemCubeStore()
	eng := newEngine(mem, store)
	p := cube.NewProcessorForPeriods([]period.Type{period.Monthly})

	tx := sampleTx(1, day(2025, time.September, 10), "-85.50")
	mem.Add(*tx)
	targets, err := p.ProcessDelta(ledger.Delta{Operation: ledger.OpCreate, TenantID: testTenant, New: tx})
	if err != nil {
		t.Fatalf("ProcessDelta create: %v", err)
	}
	eng.Regenerate(context.Background(), targets)

	target := monthlyTarget(day(2025, time.September, 1), ledger.TypeExpense, nil, false)
	row, ok := store.Row(target)
	if !ok {
		t.Fatal("row not created")
	}
	if want := dec("-85.50"); !row.AmountSum.Equal(want) {
		t.Errorf("amount sum: got %s, want %s", row.AmountSum, want)
	}

	// Deleting the transaction and replaying its delta removes the row.
	mem.Remove(1)
	targets, err = p.ProcessDelta(ledger.Delta{Operation: ledger.OpDelete, TenantID: testTenant, Old: tx})
	if err != nil {
		t.Fatalf("ProcessDelta delete: %v", err)
	}
	eng.Regenerate(context.Background(), targets)
	if _, ok := store.Row(target); ok {
		t.Error("row should be gone after delete delta")
	}
}

// ============================================================================
// Test: Engine.Clear / Stats
// ============================================================================

func TestClearAndStats(t *testing.T) {
	mem := testutil.NewMemLedger()
	mem.Add(
		*sampleTx(1, day(2025, time.September, 10), "-85.50"),
		*sampleTx(2, day(2025, time.October, 2), "-5.00"),
	)
	store := testutil.NewMemCubeStore()
	eng := newEngine(mem, store)

	if _, err := eng.Populate(context.Background(), testTenant, nil, nil); err != nil {
		t.Fatalf("Populate: %v", err)
	}

	stats, err := eng.Stats(context.Background(), testTenant)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalRecords == 0 {
		t.Fatal("expected rows after populate")
	}
	if stats.EarliestPeriod == nil || stats.LatestPeriod == nil {
		t.Fatal("expected period bounds after populate")
	}
	if stats.RowsPerPeriod[period.Monthly] != 2 {
		t.Errorf("monthly rows: got %d, want 2", stats.RowsPerPeriod[period.Monthly])
	}

	if err := eng.Clear(context.Background(), testTenant); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	stats, err = eng.Stats(context.Background(), testTenant)
	if err != nil {
		t.Fatalf("Stats after clear: %v", err)
	}
	if stats.TotalRecords != 0 {
		t.Errorf("records after clear: got %d, want 0", stats.TotalRecords)
	}
}
