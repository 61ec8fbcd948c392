package cube

import (
	"fmt"

	"FinSight/internal/ledger"
	"FinSight/internal/period"
)

// Processor converts a transaction delta into the set of cube targets that
// must be recomputed. It holds no state; the dirty set lives with the caller.
type Processor struct {
	periods []period.Type
}

// NewProcessor returns a processor deriving targets for every supported
// period type.
func NewProcessor() *Processor {
	return &Processor{periods: period.All()}
}

// NewProcessorForPeriods limits target derivation to the given period types.
func NewProcessorForPeriods(types []period.Type) *Processor {
	return &Processor{periods: types}
}

// ProcessDelta returns the targets dirtied by one ledger mutation.
//
// Inserts dirty the keys derived from the new values, deletes those from the
// old values. Updates compare the cube-relevant fields — category, amount,
// date, type, recurring flag — and dirty both old- and new-derived keys when
// any differ; the two sets coincide unless the mutation moved the transaction
// across a key boundary. An update touching only cube-irrelevant fields
// (account, description) dirties nothing. Duplicate keys are deduplicated.
func (p *Processor) ProcessDelta(d ledger.Delta) ([]Target, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	var source []*ledger.Transaction
	switch d.Operation {
	case ledger.OpCreate:
		source = []*ledger.Transaction{d.New}
	case ledger.OpDelete:
		source = []*ledger.Transaction{d.Old}
	case ledger.OpUpdate:
		if !cubeRelevantChange(d.Old, d.New) {
			return nil, nil
		}
		source = []*ledger.Transaction{d.Old, d.New}
	}

	seen := make(map[string]struct{})
	var targets []Target
	for _, tx := range source {
		for _, pt := range p.periods {
			r, err := period.Of(pt, tx.Date)
			if err != nil {
				return nil, fmt.Errorf("derive %s period for transaction %d: %w", pt, tx.ID, err)
			}
			t := Target{
				TenantID:        d.TenantID,
				PeriodType:      pt,
				PeriodStart:     r.Start,
				PeriodEnd:       r.End,
				TransactionType: tx.Type,
				CategoryID:      tx.CategoryID,
				IsRecurring:     tx.IsRecurring,
			}
			if _, dup := seen[t.Key()]; dup {
				continue
			}
			seen[t.Key()] = struct{}{}
			targets = append(targets, t)
		}
	}
	return targets, nil
}

// cubeRelevantChange reports whether old and new differ in any field that
// participates in a cube key or aggregate. account_id does not: the cube is
// keyed on broader criteria and moving a transaction between accounts changes
// no row.
func cubeRelevantChange(old, new *ledger.Transaction) bool {
	if !sameCategory(old.CategoryID, new.CategoryID) {
		return true
	}
	if !old.Amount.Equal(new.Amount) {
		return true
	}
	if !ledger.SameDay(old.Date, new.Date) {
		return true
	}
	if old.Type != new.Type {
		return true
	}
	return old.IsRecurring != new.IsRecurring
}

func sameCategory(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
