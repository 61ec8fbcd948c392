package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"FinSight/internal/ledger"
)

// AnchorStore reads balance anchors from the external account collaborator's
// table. When two anchors share an anchor_date for one account the highest id
// wins — the most recently created anchor under serial ids — so lookups never
// depend on insertion order.
type AnchorStore struct {
	db *sql.DB
}

func NewAnchorStore(db *sql.DB) *AnchorStore {
	return &AnchorStore{db: db}
}

// LatestAtOrBefore returns the most recent anchor with anchor_date <= date,
// or nil when the account has none.
func (as *AnchorStore) LatestAtOrBefore(ctx context.Context, tenantID uuid.UUID, accountID int64, date time.Time) (*ledger.BalanceAnchor, error) {
	return as.queryOne(ctx, `
		SELECT id, tenant_id, account_id, balance, anchor_date, description
		FROM ledger.balance_anchors
		WHERE tenant_id = $1 AND account_id = $2 AND anchor_date <= $3
		ORDER BY anchor_date DESC, id DESC
		LIMIT 1
	`, tenantID, accountID, ledger.Day(date))
}

// EarliestAtOrAfter returns the earliest anchor with anchor_date >= date,
// or nil when the account has none.
func (as *AnchorStore) EarliestAtOrAfter(ctx context.Context, tenantID uuid.UUID, accountID int64, date time.Time) (*ledger.BalanceAnchor, error) {
	return as.queryOne(ctx, `
		SELECT id, tenant_id, account_id, balance, anchor_date, description
		FROM ledger.balance_anchors
		WHERE tenant_id = $1 AND account_id = $2 AND anchor_date >= $3
		ORDER BY anchor_date ASC, id DESC
		LIMIT 1
	`, tenantID, accountID, ledger.Day(date))
}

func (as *AnchorStore) queryOne(ctx context.Context, query string, args ...interface{}) (*ledger.BalanceAnchor, error) {
	var a ledger.BalanceAnchor
	var description sql.NullString
	err := as.db.QueryRowContext(ctx, query, args...).Scan(
		&a.ID, &a.TenantID, &a.AccountID, &a.Balance, &a.AnchorDate, &description,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("anchor lookup: %w", err)
	}
	a.Description = description.String
	a.AnchorDate = ledger.Day(a.AnchorDate)
	return &a, nil
}
