package cube

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"FinSight/internal/ledger"
	"FinSight/internal/observability"
	"FinSight/internal/period"
)

// LedgerSource reads transactions for aggregate recomputation.
type LedgerSource interface {
	ListTransactions(ctx context.Context, q ledger.TransactionQuery) ([]ledger.Transaction, error)
	// TransactionDateBounds returns the earliest and latest transaction dates
	// for a tenant, or nils when the tenant has no transactions.
	TransactionDateBounds(ctx context.Context, tenantID uuid.UUID) (*time.Time, *time.Time, error)
}

// Store persists cube rows. Upsert must be atomic insert-or-replace on the
// cube's unique key: regeneration re-derives the full row value from the
// ledger, so concurrent regenerations of the same target converge under
// last-writer-wins with no read-modify-write race.
type Store interface {
	Upsert(ctx context.Context, row Row) error
	Delete(ctx context.Context, target Target) error
	// DeleteRange removes rows of one period type whose period_start falls in
	// [from, to].
	DeleteRange(ctx context.Context, tenantID uuid.UUID, pt period.Type, from, to time.Time) error
	Clear(ctx context.Context, tenantID uuid.UUID) error
	Stats(ctx context.Context, tenantID uuid.UUID) (*Stats, error)
}

// Engine recomputes cube rows directly from the ledger. Each target is
// recomputed independently; the cube is an eventually consistent derived view
// and is never consulted for balance correctness.
type Engine struct {
	txs       LedgerSource
	store     Store
	processor *Processor
	metrics   *observability.Metrics
	log       zerolog.Logger
}

func NewEngine(txs LedgerSource, store Store, metrics *observability.Metrics, log zerolog.Logger) *Engine {
	return &Engine{
		txs:       txs,
		store:     store,
		processor: NewProcessor(),
		metrics:   metrics,
		log:       log,
	}
}

// Regenerate recomputes every target from the ledger and upserts the results.
// Targets are independent: one failure is recorded and the rest proceed.
// Regeneration is idempotent and order-independent across targets.
func (e *Engine) Regenerate(ctx context.Context, targets []Target) Report {
	var report Report
	for _, t := range targets {
		if err := e.regenerateOne(ctx, t); err != nil {
			e.log.Warn().Err(err).Str("target", t.Key()).Msg("target regeneration failed")
			report.Failed = append(report.Failed, TargetFailure{Target: t, Err: err})
			continue
		}
		report.Updated++
	}
	return report
}

func (e *Engine) regenerateOne(ctx context.Context, t Target) error {
	txs, err := e.txs.ListTransactions(ctx, ledger.TransactionQuery{
		TenantID:    t.TenantID,
		DateFrom:    &t.PeriodStart,
		DateTo:      &t.PeriodEnd,
		Type:        &t.TransactionType,
		Category:    &ledger.CategoryFilter{ID: t.CategoryID},
		IsRecurring: &t.IsRecurring,
	})
	if err != nil {
		return fmt.Errorf("list transactions for %s: %w", t.Key(), err)
	}

	if len(txs) == 0 {
		// Nothing aggregates into this key anymore; drop the row rather than
		// leaving a zero aggregate behind.
		if err := e.store.Delete(ctx, t); err != nil {
			return fmt.Errorf("delete empty row %s: %w", t.Key(), err)
		}
		return nil
	}

	sum := decimal.Zero
	for i := range txs {
		sum = sum.Add(txs[i].Amount)
	}

	row := Row{
		TenantID:        t.TenantID,
		PeriodType:      t.PeriodType,
		PeriodStart:     t.PeriodStart,
		PeriodEnd:       t.PeriodEnd,
		TransactionType: t.TransactionType,
		CategoryID:      t.CategoryID,
		IsRecurring:     t.IsRecurring,
		AmountSum:       sum,
		Count:           int64(len(txs)),
	}
	if err := e.store.Upsert(ctx, row); err != nil {
		return fmt.Errorf("upsert %s: %w", t.Key(), err)
	}
	return nil
}

// Populate clears and fully rebuilds all cube rows in range. With nil bounds
// the range is auto-detected from the tenant's transaction history. The window
// is widened to whole periods, then processed in month chunks: each completed
// chunk is independently correct, so the operation can stop early between
// chunks and resume idempotently.
func (e *Engine) Populate(ctx context.Context, tenantID uuid.UUID, from, to *time.Time) (Report, error) {
	var report Report

	if from == nil || to == nil {
		minDate, maxDate, err := e.txs.TransactionDateBounds(ctx, tenantID)
		if err != nil {
			return report, fmt.Errorf("detect populate range: %w", err)
		}
		if minDate == nil {
			e.log.Info().Str("tenant_id", tenantID.String()).Msg("populate: no transactions, nothing to build")
			return report, nil
		}
		if from == nil {
			from = minDate
		}
		if to == nil {
			to = maxDate
		}
		// A one-sided range can auto-detect to nothing, e.g. from after the
		// tenant's latest transaction. That is an empty cube, not a caller error.
		if ledger.Day(*from).After(ledger.Day(*to)) {
			e.log.Info().Str("tenant_id", tenantID.String()).Msg("populate: empty effective range, nothing to build")
			return report, nil
		}
	}

	return e.rebuildRange(ctx, tenantID, *from, *to)
}

// Rebuild is a targeted repair: same as Populate but the range is mandatory.
func (e *Engine) Rebuild(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (Report, error) {
	return e.rebuildRange(ctx, tenantID, from, to)
}

func (e *Engine) rebuildRange(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (Report, error) {
	var report Report

	from, to = ledger.Day(from), ledger.Day(to)
	if from.After(to) {
		return report, fmt.Errorf("%w: from %s is after to %s",
			ledger.ErrInvalidDateRange, from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	// Widen to whole periods so every row intersecting the range is rebuilt.
	// Each period type is cleared within its own widened bounds: a flat delete
	// over the widest window would sweep up rows of shorter-aligned types
	// starting beyond the range (rebuilding through Dec 31 widens the weekly
	// window into January, which must not delete the next year's annual row).
	wideFrom, wideTo := from, to
	for _, pt := range period.All() {
		rFrom, err := period.Of(pt, from)
		if err != nil {
			return report, err
		}
		rTo, err := period.Of(pt, to)
		if err != nil {
			return report, err
		}
		if err := e.store.DeleteRange(ctx, tenantID, pt, rFrom.Start, rTo.End); err != nil {
			return report, fmt.Errorf("clear %s range: %w", pt, err)
		}
		if rFrom.Start.Before(wideFrom) {
			wideFrom = rFrom.Start
		}
		if rTo.End.After(wideTo) {
			wideTo = rTo.End
		}
	}

	for chunkStart := wideFrom; !chunkStart.After(wideTo); {
		if err := ctx.Err(); err != nil {
			// Early termination between chunks: completed chunks stand.
			return report, err
		}

		monthEnd := chunkStart.AddDate(0, 1, -chunkStart.Day())
		chunkEnd := monthEnd
		if chunkEnd.After(wideTo) {
			chunkEnd = wideTo
		}

		targets, err := e.targetsForRange(ctx, tenantID, chunkStart, chunkEnd)
		if err != nil {
			return report, err
		}
		report.Merge(e.Regenerate(ctx, targets))
		if e.metrics != nil {
			e.metrics.RebuildChunks.Inc()
			e.metrics.RebuildTargets.Add(float64(len(targets)))
		}

		e.log.Debug().
			Str("tenant_id", tenantID.String()).
			Str("chunk_start", chunkStart.Format("2006-01-02")).
			Int("targets", len(targets)).
			Msg("cube chunk rebuilt")

		chunkStart = monthEnd.AddDate(0, 0, 1)
	}

	e.log.Info().
		Str("tenant_id", tenantID.String()).
		Str("from", wideFrom.Format("2006-01-02")).
		Str("to", wideTo.Format("2006-01-02")).
		Int("updated", report.Updated).
		Int("failed", len(report.Failed)).
		Msg("cube rebuild complete")

	return report, nil
}

// targetsForRange derives the distinct cube targets for every transaction
// dated inside [from, to].
func (e *Engine) targetsForRange(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]Target, error) {
	txs, err := e.txs.ListTransactions(ctx, ledger.TransactionQuery{
		TenantID: tenantID,
		DateFrom: &from,
		DateTo:   &to,
	})
	if err != nil {
		return nil, fmt.Errorf("list transactions [%s, %s]: %w",
			from.Format("2006-01-02"), to.Format("2006-01-02"), err)
	}

	seen := make(map[string]struct{})
	var targets []Target
	for i := range txs {
		for _, pt := range period.All() {
			r, err := period.Of(pt, txs[i].Date)
			if err != nil {
				return nil, err
			}
			t := Target{
				TenantID:        tenantID,
				PeriodType:      pt,
				PeriodStart:     r.Start,
				PeriodEnd:       r.End,
				TransactionType: txs[i].Type,
				CategoryID:      txs[i].CategoryID,
				IsRecurring:     txs[i].IsRecurring,
			}
			if _, dup := seen[t.Key()]; dup {
				continue
			}
			seen[t.Key()] = struct{}{}
			targets = append(targets, t)
		}
	}
	return targets, nil
}

// Clear deletes every cube row for the tenant. Destructive; confirmation is
// the calling boundary's responsibility.
func (e *Engine) Clear(ctx context.Context, tenantID uuid.UUID) error {
	if err := e.store.Clear(ctx, tenantID); err != nil {
		return fmt.Errorf("clear cube: %w", err)
	}
	e.log.Info().Str("tenant_id", tenantID.String()).Msg("cube cleared")
	return nil
}

// Stats reports the cube's current contents for the tenant.
func (e *Engine) Stats(ctx context.Context, tenantID uuid.UUID) (*Stats, error) {
	return e.store.Stats(ctx, tenantID)
}
