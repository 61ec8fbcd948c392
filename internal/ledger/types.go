package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger transaction.
type TransactionType string

const (
	TypeIncome   TransactionType = "INCOME"
	TypeExpense  TransactionType = "EXPENSE"
	TypeTransfer TransactionType = "TRANSFER"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeIncome, TypeExpense, TypeTransfer:
		return true
	}
	return false
}

// Transaction is a single ledger entry. The transaction ledger is owned by an
// external collaborator; this service only reads transactions and reacts to
// delta notifications. Amount is signed: expenses are negative, income positive.
type Transaction struct {
	ID          int64
	TenantID    uuid.UUID
	AccountID   int64
	CategoryID  *int64
	Amount      decimal.Decimal
	Date        time.Time
	Type        TransactionType
	IsRecurring bool
	Description string
}

// Validate checks the fields a transaction must carry before it can enter any
// balance or cube computation.
func (t *Transaction) Validate() error {
	if t.ID <= 0 {
		return fmt.Errorf("transaction id must be positive, got %d", t.ID)
	}
	if t.TenantID == uuid.Nil {
		return fmt.Errorf("transaction %d: tenant id is required", t.ID)
	}
	if t.AccountID <= 0 {
		return fmt.Errorf("transaction %d: account id must be positive", t.ID)
	}
	if !t.Type.Valid() {
		return fmt.Errorf("transaction %d: unknown type %q", t.ID, t.Type)
	}
	if t.Date.IsZero() {
		return fmt.Errorf("transaction %d: date is required", t.ID)
	}
	return nil
}

// BalanceAnchor is an attested true account balance at a specific date, used as
// a checkpoint so balance reconstruction never has to sum the whole history.
// The balance is the account's opening balance on AnchorDate: transactions
// dated on the anchor date itself are not yet reflected in it.
type BalanceAnchor struct {
	ID          int64
	TenantID    uuid.UUID
	AccountID   int64
	Balance     decimal.Decimal
	AnchorDate  time.Time
	Description string
}

// Day truncates t to civil-date resolution (UTC midnight). All date comparisons
// in balance and cube computations operate on Day-normalized values.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same civil date.
func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}
