package ingestion_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"FinSight/internal/ingestion"
	"FinSight/internal/ledger"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawDelta {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawDelta{
		Subject: "test",
		Data:    data,
		AckFunc: func() {},
		NakFunc: func() {},
	}
}

func TestParseCreatedDelta(t *testing.T) {
	payload := map[string]interface{}{
		"operation": "created",
		"tenant_id": "550e8400-e29b-41d4-a716-446655440000",
		"new": map[string]interface{}{
			"id":           int64(42),
			"account_id":   int64(7),
			"category_id":  int64(3),
			"amount":       "-85.50",
			"date":         "2025-09-10",
			"type":         "EXPENSE",
			"is_recurring": false,
			"description":  "groceries",
		},
	}

	raw := rawFromJSON(t, payload)
	d, err := ingestion.ParseRawDelta(raw, "created")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if d.Operation != ledger.OpCreate {
		t.Errorf("operation: got %q, want %q", d.Operation, ledger.OpCreate)
	}
	if d.New == nil {
		t.Fatal("new values missing")
	}
	if d.New.ID != 42 {
		t.Errorf("id: got %d, want 42", d.New.ID)
	}
	if d.New.CategoryID == nil || *d.New.CategoryID != 3 {
		t.Errorf("category: got %v, want 3", d.New.CategoryID)
	}
	if want := "-85.5"; d.New.Amount.String() != want {
		t.Errorf("amount: got %s, want %s", d.New.Amount, want)
	}
	if want := time.Date(2025, time.September, 10, 0, 0, 0, 0, time.UTC); !d.New.Date.Equal(want) {
		t.Errorf("date: got %s, want %s", d.New.Date, want)
	}
	if d.New.Type != ledger.TypeExpense {
		t.Errorf("type: got %q, want %q", d.New.Type, ledger.TypeExpense)
	}
	if d.Old != nil {
		t.Errorf("old values should be absent, got %+v", d.Old)
	}
}

func TestParseUpdatedDelta(t *testing.T) {
	payload := map[string]interface{}{
		"operation": "updated",
		"tenant_id": "550e8400-e29b-41d4-a716-446655440000",
		"old": map[string]interface{}{
			"id": int64(42), "account_id": int64(7),
			"amount": "-85.50", "date": "2025-09-10", "type": "EXPENSE",
		},
		"new": map[string]interface{}{
			"id": int64(42), "account_id": int64(7),
			"amount": "-100.00", "date": "2025-09-10", "type": "EXPENSE",
		},
	}

	raw := rawFromJSON(t, payload)
	d, err := ingestion.ParseRawDelta(raw, "updated")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if d.Old == nil || d.New == nil {
		t.Fatal("update delta must carry both old and new values")
	}
	if d.Old.Amount.Equal(d.New.Amount) {
		t.Error("old and new amounts should differ")
	}
}

func TestParseDelta_SubjectOperationMismatch(t *testing.T) {
	payload := map[string]interface{}{
		"operation": "deleted",
		"tenant_id": "550e8400-e29b-41d4-a716-446655440000",
		"old": map[string]interface{}{
			"id": int64(42), "account_id": int64(7),
			"amount": "-85.50", "date": "2025-09-10", "type": "EXPENSE",
		},
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawDelta(raw, "created")
	if !errors.Is(err, ledger.ErrInvalidDeltaShape) {
		t.Errorf("got %v, want ErrInvalidDeltaShape", err)
	}
}

func TestParseDelta_Malformed(t *testing.T) {
	cases := []struct {
		name      string
		payload   map[string]interface{}
		operation string
	}{
		{
			name:      "bad tenant uuid",
			operation: "created",
			payload: map[string]interface{}{
				"operation": "created",
				"tenant_id": "not-a-uuid",
				"new": map[string]interface{}{
					"id": int64(1), "account_id": int64(7),
					"amount": "1.00", "date": "2025-09-10", "type": "INCOME",
				},
			},
		},
		{
			name:      "bad amount",
			operation: "created",
			payload: map[string]interface{}{
				"operation": "created",
				"tenant_id": "550e8400-e29b-41d4-a716-446655440000",
				"new": map[string]interface{}{
					"id": int64(1), "account_id": int64(7),
					"amount": "lots", "date": "2025-09-10", "type": "INCOME",
				},
			},
		},
		{
			name:      "bad date",
			operation: "created",
			payload: map[string]interface{}{
				"operation": "created",
				"tenant_id": "550e8400-e29b-41d4-a716-446655440000",
				"new": map[string]interface{}{
					"id": int64(1), "account_id": int64(7),
					"amount": "1.00", "date": "10/09/2025", "type": "INCOME",
				},
			},
		},
		{
			name:      "unknown type",
			operation: "created",
			payload: map[string]interface{}{
				"operation": "created",
				"tenant_id": "550e8400-e29b-41d4-a716-446655440000",
				"new": map[string]interface{}{
					"id": int64(1), "account_id": int64(7),
					"amount": "1.00", "date": "2025-09-10", "type": "REFUND",
				},
			},
		},
		{
			name:      "create without new",
			operation: "created",
			payload: map[string]interface{}{
				"operation": "created",
				"tenant_id": "550e8400-e29b-41d4-a716-446655440000",
			},
		},
		{
			name:      "update without old",
			operation: "updated",
			payload: map[string]interface{}{
				"operation": "updated",
				"tenant_id": "550e8400-e29b-41d4-a716-446655440000",
				"new": map[string]interface{}{
					"id": int64(1), "account_id": int64(7),
					"amount": "1.00", "date": "2025-09-10", "type": "INCOME",
				},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := rawFromJSON(t, tc.payload)
			_, err := ingestion.ParseRawDelta(raw, tc.operation)
			if !errors.Is(err, ledger.ErrInvalidDeltaShape) {
				t.Errorf("got %v, want ErrInvalidDeltaShape", err)
			}
		})
	}
}

func TestParseDelta_InvalidJSON(t *testing.T) {
	raw := ingestion.RawDelta{Subject: "test", Data: []byte("{not json")}
	_, err := ingestion.ParseRawDelta(raw, "created")
	if !errors.Is(err, ledger.ErrInvalidDeltaShape) {
		t.Errorf("got %v, want ErrInvalidDeltaShape", err)
	}
}

func TestOperationForSubject(t *testing.T) {
	subjects := ingestion.DefaultSubjects()

	cases := []struct {
		subject string
		want    string
	}{
		{"fin.transactions.created.550e8400-e29b-41d4-a716-446655440000", "created"},
		{"fin.transactions.updated.550e8400-e29b-41d4-a716-446655440000", "updated"},
		{"fin.transactions.deleted.550e8400-e29b-41d4-a716-446655440000", "deleted"},
		{"fin.transactions.archived.550e8400-e29b-41d4-a716-446655440000", ""},
		{"other.subject", ""},
	}
	for _, tc := range cases {
		if got := ingestion.OperationForSubject(tc.subject, subjects); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.subject, got, tc.want)
		}
	}
}
