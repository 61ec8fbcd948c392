package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"FinSight/internal/ledger"
)

// Wire formats for delta payloads. Field names are snake_case to match the
// ledger collaborator's producers; amounts travel as decimal strings and dates
// as ISO calendar dates.

type deltaJSON struct {
	Operation string           `json:"operation"`
	TenantID  string           `json:"tenant_id"`
	Old       *transactionJSON `json:"old,omitempty"`
	New       *transactionJSON `json:"new,omitempty"`
}

type transactionJSON struct {
	ID          int64  `json:"id"`
	AccountID   int64  `json:"account_id"`
	CategoryID  *int64 `json:"category_id,omitempty"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	Type        string `json:"type"`
	IsRecurring bool   `json:"is_recurring"`
	Description string `json:"description,omitempty"`
}

// ParseRawDelta converts a raw NATS message into a validated ledger.Delta.
// The operation derived from the subject must match the payload's own
// operation field; any shape violation surfaces as ErrInvalidDeltaShape so the
// caller can ack-and-drop instead of looping on redelivery.
func ParseRawDelta(raw RawDelta, operation string) (ledger.Delta, error) {
	var j deltaJSON
	if err := json.Unmarshal(raw.Data, &j); err != nil {
		return ledger.Delta{}, fmt.Errorf("%w: %v", ledger.ErrInvalidDeltaShape, err)
	}

	if j.Operation != "" && j.Operation != operation {
		return ledger.Delta{}, fmt.Errorf("%w: payload operation %q does not match subject operation %q",
			ledger.ErrInvalidDeltaShape, j.Operation, operation)
	}

	tenantID, err := uuid.Parse(j.TenantID)
	if err != nil {
		return ledger.Delta{}, fmt.Errorf("%w: parse tenant_id: %v", ledger.ErrInvalidDeltaShape, err)
	}

	d := ledger.Delta{
		Operation: ledger.Operation(operation),
		TenantID:  tenantID,
	}
	if j.Old != nil {
		tx, err := parseTransaction(j.Old, tenantID)
		if err != nil {
			return ledger.Delta{}, fmt.Errorf("%w: old values: %v", ledger.ErrInvalidDeltaShape, err)
		}
		d.Old = tx
	}
	if j.New != nil {
		tx, err := parseTransaction(j.New, tenantID)
		if err != nil {
			return ledger.Delta{}, fmt.Errorf("%w: new values: %v", ledger.ErrInvalidDeltaShape, err)
		}
		d.New = tx
	}

	if err := d.Validate(); err != nil {
		return ledger.Delta{}, err
	}
	return d, nil
}

func parseTransaction(j *transactionJSON, tenantID uuid.UUID) (*ledger.Transaction, error) {
	amount, err := decimal.NewFromString(j.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %v", j.Amount, err)
	}
	date, err := time.Parse("2006-01-02", j.Date)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %v", j.Date, err)
	}
	return &ledger.Transaction{
		ID:          j.ID,
		TenantID:    tenantID,
		AccountID:   j.AccountID,
		CategoryID:  j.CategoryID,
		Amount:      amount,
		Date:        ledger.Day(date),
		Type:        ledger.TransactionType(j.Type),
		IsRecurring: j.IsRecurring,
		Description: j.Description,
	}, nil
}
