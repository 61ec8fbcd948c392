package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"FinSight/internal/cube"
	"FinSight/internal/ledger"
	"FinSight/internal/period"
)

// MemLedger is an in-memory stand-in for the Postgres transaction, anchor, and
// account stores. It reuses ledger.TransactionQuery.Matches so query semantics
// stay in one place.
type MemLedger struct {
	mu           sync.Mutex
	Transactions []ledger.Transaction
	Anchors      []ledger.BalanceAnchor
	Accounts     map[int64]uuid.UUID // account id -> tenant
}

func NewMemLedger() *MemLedger {
	return &MemLedger{Accounts: make(map[int64]uuid.UUID)}
}

// AddAccount registers an account for a tenant.
func (m *MemLedger) AddAccount(tenantID uuid.UUID, accountID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Accounts[accountID] = tenantID
}

// Add appends transactions, registering their accounts as a side effect.
func (m *MemLedger) Add(txs ...ledger.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range txs {
		m.Accounts[tx.AccountID] = tx.TenantID
		m.Transactions = append(m.Transactions, tx)
	}
}

// Remove deletes the transaction with the given id, if present.
func (m *MemLedger) Remove(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Transactions {
		if m.Transactions[i].ID == id {
			m.Transactions = append(m.Transactions[:i], m.Transactions[i+1:]...)
			return
		}
	}
}

// Replace swaps the stored transaction with the same id for tx.
func (m *MemLedger) Replace(tx ledger.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Transactions {
		if m.Transactions[i].ID == tx.ID {
			m.Transactions[i] = tx
			return
		}
	}
}

// AddAnchor appends a balance anchor.
func (m *MemLedger) AddAnchor(anchors ...ledger.BalanceAnchor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Anchors = append(m.Anchors, anchors...)
}

func (m *MemLedger) ListTransactions(_ context.Context, q ledger.TransactionQuery) ([]ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := q.Validate(); err != nil {
		return nil, err
	}
	var out []ledger.Transaction
	for i := range m.Transactions {
		if q.Matches(&m.Transactions[i]) {
			out = append(out, m.Transactions[i])
		}
	}
	return out, nil
}

func (m *MemLedger) TransactionDateBounds(_ context.Context, tenantID uuid.UUID) (*time.Time, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var minDate, maxDate *time.Time
	for i := range m.Transactions {
		if m.Transactions[i].TenantID != tenantID {
			continue
		}
		d := ledger.Day(m.Transactions[i].Date)
		if minDate == nil || d.Before(*minDate) {
			v := d
			minDate = &v
		}
		if maxDate == nil || d.After(*maxDate) {
			v := d
			maxDate = &v
		}
	}
	return minDate, maxDate, nil
}

func (m *MemLedger) AccountExists(_ context.Context, tenantID uuid.UUID, accountID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owner, ok := m.Accounts[accountID]
	return ok && owner == tenantID, nil
}

// LatestAtOrBefore returns the most recent anchor dated at or before date.
// Ties on anchor date break toward the highest id, matching the SQL store.
func (m *MemLedger) LatestAtOrBefore(_ context.Context, tenantID uuid.UUID, accountID int64, date time.Time) (*ledger.BalanceAnchor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	day := ledger.Day(date)
	var best *ledger.BalanceAnchor
	for i := range m.Anchors {
		a := &m.Anchors[i]
		if a.TenantID != tenantID || a.AccountID != accountID {
			continue
		}
		ad := ledger.Day(a.AnchorDate)
		if ad.After(day) {
			continue
		}
		if best == nil || ad.After(ledger.Day(best.AnchorDate)) ||
			(ad.Equal(ledger.Day(best.AnchorDate)) && a.ID > best.ID) {
			best = a
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

// EarliestAtOrAfter returns the earliest anchor dated at or after date, with
// the same highest-id tie-break as LatestAtOrBefore.
func (m *MemLedger) EarliestAtOrAfter(_ context.Context, tenantID uuid.UUID, accountID int64, date time.Time) (*ledger.BalanceAnchor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	day := ledger.Day(date)
	var best *ledger.BalanceAnchor
	for i := range m.Anchors {
		a := &m.Anchors[i]
		if a.TenantID != tenantID || a.AccountID != accountID {
			continue
		}
		ad := ledger.Day(a.AnchorDate)
		if ad.Before(day) {
			continue
		}
		if best == nil || ad.Before(ledger.Day(best.AnchorDate)) ||
			(ad.Equal(ledger.Day(best.AnchorDate)) && a.ID > best.ID) {
			best = a
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

// MemCubeStore is an in-memory cube.Store keyed by Target.Key().
type MemCubeStore struct {
	mu   sync.Mutex
	Rows map[string]cube.Row

	// FailUpsertKeys makes Upsert fail for specific target keys, for testing
	// per-target failure isolation.
	FailUpsertKeys map[string]error
}

func NewMemCubeStore() *MemCubeStore {
	return &MemCubeStore{Rows: make(map[string]cube.Row)}
}

func rowKey(r cube.Row) string {
	return cube.Target{
		TenantID:        r.TenantID,
		PeriodType:      r.PeriodType,
		PeriodStart:     r.PeriodStart,
		TransactionType: r.TransactionType,
		CategoryID:      r.CategoryID,
		IsRecurring:     r.IsRecurring,
	}.Key()
}

func (m *MemCubeStore) Upsert(_ context.Context, row cube.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rowKey(row)
	if m.FailUpsertKeys != nil {
		if err, ok := m.FailUpsertKeys[key]; ok {
			return err
		}
	}
	row.UpdatedAt = time.Now().UTC()
	m.Rows[key] = row
	return nil
}

func (m *MemCubeStore) Delete(_ context.Context, target cube.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Rows, target.Key())
	return nil
}

func (m *MemCubeStore) DeleteRange(_ context.Context, tenantID uuid.UUID, pt period.Type, from, to time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, row := range m.Rows {
		if row.TenantID != tenantID || row.PeriodType != pt {
			continue
		}
		if row.PeriodStart.Before(from) || row.PeriodStart.After(to) {
			continue
		}
		delete(m.Rows, key)
	}
	return nil
}

func (m *MemCubeStore) Clear(_ context.Context, tenantID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, row := range m.Rows {
		if row.TenantID == tenantID {
			delete(m.Rows, key)
		}
	}
	return nil
}

func (m *MemCubeStore) Stats(_ context.Context, tenantID uuid.UUID) (*cube.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &cube.Stats{RowsPerPeriod: make(map[period.Type]int64)}
	for _, row := range m.Rows {
		if row.TenantID != tenantID {
			continue
		}
		stats.TotalRecords++
		stats.RowsPerPeriod[row.PeriodType]++
		ps, ua := row.PeriodStart, row.UpdatedAt
		if stats.EarliestPeriod == nil || ps.Before(*stats.EarliestPeriod) {
			stats.EarliestPeriod = &ps
		}
		if stats.LatestPeriod == nil || ps.After(*stats.LatestPeriod) {
			stats.LatestPeriod = &ps
		}
		if stats.LastUpdated == nil || ua.After(*stats.LastUpdated) {
			stats.LastUpdated = &ua
		}
	}
	return stats, nil
}

// SetFailUpsertKeys swaps the failure injection map under the lock, so tests
// can flip failures on and off while a worker is running.
func (m *MemCubeStore) SetFailUpsertKeys(keys map[string]error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailUpsertKeys = keys
}

// Row returns the stored row for a target, if any.
func (m *MemCubeStore) Row(target cube.Target) (cube.Row, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.Rows[target.Key()]
	return row, ok
}

// Len returns the number of stored rows across all tenants.
func (m *MemCubeStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Rows)
}
