package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// Operation is the kind of ledger mutation a delta describes.
type Operation string

const (
	OpCreate Operation = "created"
	OpUpdate Operation = "updated"
	OpDelete Operation = "deleted"
)

// Delta describes one transaction insert/update/delete in the external ledger.
// Old carries the pre-image (update/delete), New the post-image (create/update).
type Delta struct {
	Operation Operation
	TenantID  uuid.UUID
	Old       *Transaction
	New       *Transaction
}

// Validate enforces the old/new shape each operation requires.
// A malformed delta is rejected at the boundary and never marks cube state dirty.
func (d *Delta) Validate() error {
	if d.TenantID == uuid.Nil {
		return fmt.Errorf("%w: tenant id is required", ErrInvalidDeltaShape)
	}

	switch d.Operation {
	case OpCreate:
		if d.New == nil {
			return fmt.Errorf("%w: %s delta requires new values", ErrInvalidDeltaShape, d.Operation)
		}
	case OpDelete:
		if d.Old == nil {
			return fmt.Errorf("%w: %s delta requires old values", ErrInvalidDeltaShape, d.Operation)
		}
	case OpUpdate:
		if d.Old == nil || d.New == nil {
			return fmt.Errorf("%w: %s delta requires both old and new values", ErrInvalidDeltaShape, d.Operation)
		}
	default:
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidDeltaShape, d.Operation)
	}

	for _, tx := range []*Transaction{d.Old, d.New} {
		if tx == nil {
			continue
		}
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidDeltaShape, err)
		}
		if tx.TenantID != d.TenantID {
			return fmt.Errorf("%w: transaction %d belongs to tenant %s, delta says %s",
				ErrInvalidDeltaShape, tx.ID, tx.TenantID, d.TenantID)
		}
	}

	return nil
}
