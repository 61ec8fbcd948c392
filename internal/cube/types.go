// Package cube maintains the financial cube: a derived, pre-aggregated table
// of transaction sums grouped by tenant, period, type, category, and recurring
// flag. Rows are fully recomputable from the ledger and are only ever written
// by the regeneration engine.
package cube

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"FinSight/internal/ledger"
	"FinSight/internal/period"
)

// Row is one cube aggregate. Its unique key is (tenant_id, period_type,
// period_start, transaction_type, category_id, is_recurring). account_id is
// deliberately not part of the key: keying by account multiplies the key space
// and previously produced duplicate-row bugs, so aggregates span all accounts.
type Row struct {
	TenantID        uuid.UUID
	PeriodType      period.Type
	PeriodStart     time.Time
	PeriodEnd       time.Time
	TransactionType ledger.TransactionType
	CategoryID      *int64
	IsRecurring     bool
	AmountSum       decimal.Decimal
	Count           int64
	UpdatedAt       time.Time
}

// Target identifies one cube row that needs recomputation.
type Target struct {
	TenantID        uuid.UUID
	PeriodType      period.Type
	PeriodStart     time.Time
	PeriodEnd       time.Time
	TransactionType ledger.TransactionType
	CategoryID      *int64
	IsRecurring     bool
}

// Key returns the canonical string form of the target's unique cube key,
// usable as a map key for dirty-set coalescing.
func (t Target) Key() string {
	cat := "none"
	if t.CategoryID != nil {
		cat = strconv.FormatInt(*t.CategoryID, 10)
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s|%t",
		t.TenantID, t.PeriodType, t.PeriodStart.Format("2006-01-02"),
		t.TransactionType, cat, t.IsRecurring)
}

// TargetFailure records one target that could not be regenerated.
type TargetFailure struct {
	Target Target
	Err    error
}

// Report summarizes a regeneration batch. A failed target never aborts the
// batch; callers inspect Failed and retry or surface it.
type Report struct {
	Updated int
	Failed  []TargetFailure
}

// Merge folds another report into r.
func (r *Report) Merge(other Report) {
	r.Updated += other.Updated
	r.Failed = append(r.Failed, other.Failed...)
}

// Stats describes the cube's current contents for one tenant.
type Stats struct {
	TotalRecords   int64                 `json:"total_records"`
	EarliestPeriod *time.Time            `json:"earliest_period,omitempty"`
	LatestPeriod   *time.Time            `json:"latest_period,omitempty"`
	LastUpdated    *time.Time            `json:"last_updated,omitempty"`
	RowsPerPeriod  map[period.Type]int64 `json:"rows_per_period_type"`
}
