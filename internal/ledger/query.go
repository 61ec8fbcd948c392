package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CategoryFilter narrows a query to one category. A nil ID matches
// uncategorized transactions (category IS NULL); omitting the filter entirely
// (nil *CategoryFilter on the query) matches every category.
type CategoryFilter struct {
	ID *int64
}

// TransactionQuery selects transactions from the ledger. Every optional field's
// absence has a defined meaning: nil AccountID = all accounts, nil DateFrom/
// DateTo = unbounded in that direction, nil Type/Category/IsRecurring = no
// filter. Date bounds are inclusive and compared at civil-date resolution.
type TransactionQuery struct {
	TenantID    uuid.UUID
	AccountID   *int64
	DateFrom    *time.Time
	DateTo      *time.Time
	Type        *TransactionType
	Category    *CategoryFilter
	IsRecurring *bool
}

// Validate rejects queries with an inverted date range or missing tenant.
func (q *TransactionQuery) Validate() error {
	if q.TenantID == uuid.Nil {
		return fmt.Errorf("transaction query: tenant id is required")
	}
	if q.DateFrom != nil && q.DateTo != nil && Day(*q.DateFrom).After(Day(*q.DateTo)) {
		return fmt.Errorf("%w: from %s is after to %s",
			ErrInvalidDateRange, q.DateFrom.Format("2006-01-02"), q.DateTo.Format("2006-01-02"))
	}
	return nil
}

// Matches reports whether tx satisfies every filter on the query.
// The Postgres store translates the same semantics into SQL; this form is used
// by in-memory stores and by tests asserting filter equivalence.
func (q *TransactionQuery) Matches(tx *Transaction) bool {
	if tx.TenantID != q.TenantID {
		return false
	}
	if q.AccountID != nil && tx.AccountID != *q.AccountID {
		return false
	}
	day := Day(tx.Date)
	if q.DateFrom != nil && day.Before(Day(*q.DateFrom)) {
		return false
	}
	if q.DateTo != nil && day.After(Day(*q.DateTo)) {
		return false
	}
	if q.Type != nil && tx.Type != *q.Type {
		return false
	}
	if q.Category != nil {
		if q.Category.ID == nil {
			if tx.CategoryID != nil {
				return false
			}
		} else if tx.CategoryID == nil || *tx.CategoryID != *q.Category.ID {
			return false
		}
	}
	if q.IsRecurring != nil && tx.IsRecurring != *q.IsRecurring {
		return false
	}
	return true
}
