// Package store holds the Postgres repositories. The transaction and anchor
// tables are owned by external collaborators and read-only here; the cube
// table is owned by this service.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"FinSight/internal/ledger"
)

// TransactionStore reads the external transaction ledger.
type TransactionStore struct {
	db *sql.DB
}

func NewTransactionStore(db *sql.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// ListTransactions returns transactions matching q, translated filter-for-
// filter from ledger.TransactionQuery semantics. Results are unordered;
// callers needing the deterministic accumulation order sort themselves.
func (ts *TransactionStore) ListTransactions(ctx context.Context, q ledger.TransactionQuery) ([]ledger.Transaction, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT id, tenant_id, account_id, category_id, amount, date, type, is_recurring, description
		FROM ledger.transactions
		WHERE tenant_id = $1`)
	args := []interface{}{q.TenantID}
	argIdx := 2

	appendArg := func(clause string, v interface{}) {
		sb.WriteString(fmt.Sprintf(clause, argIdx))
		args = append(args, v)
		argIdx++
	}

	if q.AccountID != nil {
		appendArg(" AND account_id = $%d", *q.AccountID)
	}
	if q.DateFrom != nil {
		appendArg(" AND date >= $%d", ledger.Day(*q.DateFrom))
	}
	if q.DateTo != nil {
		appendArg(" AND date <= $%d", ledger.Day(*q.DateTo))
	}
	if q.Type != nil {
		appendArg(" AND type = $%d", string(*q.Type))
	}
	if q.Category != nil {
		if q.Category.ID == nil {
			sb.WriteString(" AND category_id IS NULL")
		} else {
			appendArg(" AND category_id = $%d", *q.Category.ID)
		}
	}
	if q.IsRecurring != nil {
		appendArg(" AND is_recurring = $%d", *q.IsRecurring)
	}

	rows, err := ts.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		var tx ledger.Transaction
		var categoryID sql.NullInt64
		var description sql.NullString
		if err := rows.Scan(
			&tx.ID, &tx.TenantID, &tx.AccountID, &categoryID,
			&tx.Amount, &tx.Date, &tx.Type, &tx.IsRecurring, &description,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if categoryID.Valid {
			c := categoryID.Int64
			tx.CategoryID = &c
		}
		tx.Description = description.String
		tx.Date = ledger.Day(tx.Date)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// TransactionDateBounds returns the tenant's earliest and latest transaction
// dates, or nils for a tenant with no transactions.
func (ts *TransactionStore) TransactionDateBounds(ctx context.Context, tenantID uuid.UUID) (*time.Time, *time.Time, error) {
	var minDate, maxDate sql.NullTime
	err := ts.db.QueryRowContext(ctx, `
		SELECT MIN(date), MAX(date) FROM ledger.transactions WHERE tenant_id = $1
	`, tenantID).Scan(&minDate, &maxDate)
	if err != nil {
		return nil, nil, fmt.Errorf("transaction date bounds: %w", err)
	}
	if !minDate.Valid {
		return nil, nil, nil
	}
	lo, hi := ledger.Day(minDate.Time), ledger.Day(maxDate.Time)
	return &lo, &hi, nil
}

// AccountExists reports whether the tenant owns the account.
func (ts *TransactionStore) AccountExists(ctx context.Context, tenantID uuid.UUID, accountID int64) (bool, error) {
	var one int
	err := ts.db.QueryRowContext(ctx, `
		SELECT 1 FROM ledger.accounts WHERE tenant_id = $1 AND id = $2
	`, tenantID, accountID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("account exists: %w", err)
	}
	return true, nil
}
