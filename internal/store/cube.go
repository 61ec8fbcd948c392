package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"FinSight/internal/cube"
	"FinSight/internal/ledger"
	"FinSight/internal/period"
)

// CubeStore owns the cube.financial_cube table. Writes go through an atomic
// INSERT ... ON CONFLICT DO UPDATE on the cube's unique key, so two
// regenerations racing on the same target converge last-writer-wins without
// application-level locking. NULL categories participate in the key through a
// COALESCE(category_id, -1) expression index.
type CubeStore struct {
	db *sql.DB
}

func NewCubeStore(db *sql.DB) *CubeStore {
	return &CubeStore{db: db}
}

// Upsert inserts or fully replaces the row identified by its unique key.
func (cs *CubeStore) Upsert(ctx context.Context, row cube.Row) error {
	_, err := cs.db.ExecContext(ctx, `
		INSERT INTO cube.financial_cube
			(tenant_id, period_type, period_start, period_end, transaction_type,
			 category_id, is_recurring, amount_sum, count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (tenant_id, period_type, period_start, transaction_type,
		             COALESCE(category_id, -1), is_recurring)
		DO UPDATE SET
			period_end = EXCLUDED.period_end,
			amount_sum = EXCLUDED.amount_sum,
			count      = EXCLUDED.count,
			updated_at = NOW()
	`, row.TenantID, string(row.PeriodType), ledger.Day(row.PeriodStart), ledger.Day(row.PeriodEnd),
		string(row.TransactionType), row.CategoryID, row.IsRecurring, row.AmountSum, row.Count)
	if err != nil {
		return fmt.Errorf("upsert cube row: %w", err)
	}
	return nil
}

// Delete removes the row for one target key, if present.
func (cs *CubeStore) Delete(ctx context.Context, t cube.Target) error {
	_, err := cs.db.ExecContext(ctx, `
		DELETE FROM cube.financial_cube
		WHERE tenant_id = $1 AND period_type = $2 AND period_start = $3
		  AND transaction_type = $4
		  AND COALESCE(category_id, -1) = COALESCE($5, -1)
		  AND is_recurring = $6
	`, t.TenantID, string(t.PeriodType), ledger.Day(t.PeriodStart),
		string(t.TransactionType), t.CategoryID, t.IsRecurring)
	if err != nil {
		return fmt.Errorf("delete cube row: %w", err)
	}
	return nil
}

// DeleteRange removes all rows of one period type whose period_start falls in
// [from, to]. Scoping by type lets rebuilds clear each granularity within its
// own period-aligned bounds.
func (cs *CubeStore) DeleteRange(ctx context.Context, tenantID uuid.UUID, pt period.Type, from, to time.Time) error {
	_, err := cs.db.ExecContext(ctx, `
		DELETE FROM cube.financial_cube
		WHERE tenant_id = $1 AND period_type = $2
		  AND period_start >= $3 AND period_start <= $4
	`, tenantID, string(pt), ledger.Day(from), ledger.Day(to))
	if err != nil {
		return fmt.Errorf("delete cube range: %w", err)
	}
	return nil
}

// Clear unconditionally deletes every cube row for the tenant.
func (cs *CubeStore) Clear(ctx context.Context, tenantID uuid.UUID) error {
	_, err := cs.db.ExecContext(ctx, `
		DELETE FROM cube.financial_cube WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return fmt.Errorf("clear cube: %w", err)
	}
	return nil
}

// Stats summarizes the tenant's cube contents.
func (cs *CubeStore) Stats(ctx context.Context, tenantID uuid.UUID) (*cube.Stats, error) {
	stats := &cube.Stats{RowsPerPeriod: make(map[period.Type]int64)}

	var earliest, latest, updated sql.NullTime
	err := cs.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(period_start), MAX(period_start), MAX(updated_at)
		FROM cube.financial_cube
		WHERE tenant_id = $1
	`, tenantID).Scan(&stats.TotalRecords, &earliest, &latest, &updated)
	if err != nil {
		return nil, fmt.Errorf("cube stats: %w", err)
	}
	if earliest.Valid {
		d := ledger.Day(earliest.Time)
		stats.EarliestPeriod = &d
	}
	if latest.Valid {
		d := ledger.Day(latest.Time)
		stats.LatestPeriod = &d
	}
	if updated.Valid {
		u := updated.Time
		stats.LastUpdated = &u
	}

	rows, err := cs.db.QueryContext(ctx, `
		SELECT period_type, COUNT(*)
		FROM cube.financial_cube
		WHERE tenant_id = $1
		GROUP BY period_type
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("cube stats by period: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pt string
		var n int64
		if err := rows.Scan(&pt, &n); err != nil {
			return nil, fmt.Errorf("scan period count: %w", err)
		}
		stats.RowsPerPeriod[period.Type(pt)] = n
	}
	return stats, rows.Err()
}
