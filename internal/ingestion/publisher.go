package ingestion

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"FinSight/internal/ledger"
)

// PublishDelta emits a well-formed delta message for a ledger mutation.
// The ledger collaborator is the production publisher; this helper exists so
// tools and integration tests speak the same wire format as the subscriber.
func PublishDelta(ctx context.Context, js jetstream.JetStream, d ledger.Delta) error {
	if err := d.Validate(); err != nil {
		return err
	}

	j := deltaJSON{
		Operation: string(d.Operation),
		TenantID:  d.TenantID.String(),
		Old:       encodeTransaction(d.Old),
		New:       encodeTransaction(d.New),
	}
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal delta: %w", err)
	}

	subject := fmt.Sprintf("fin.transactions.%s.%s", d.Operation, d.TenantID)
	if _, err := js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func encodeTransaction(tx *ledger.Transaction) *transactionJSON {
	if tx == nil {
		return nil
	}
	return &transactionJSON{
		ID:          tx.ID,
		AccountID:   tx.AccountID,
		CategoryID:  tx.CategoryID,
		Amount:      tx.Amount.String(),
		Date:        ledger.Day(tx.Date).Format("2006-01-02"),
		Type:        string(tx.Type),
		IsRecurring: tx.IsRecurring,
		Description: tx.Description,
	}
}
