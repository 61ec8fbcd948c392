package balance

import (
	"sort"

	"github.com/shopspring/decimal"

	"FinSight/internal/ledger"
)

// SortOrder controls presentation order of running-balance results.
type SortOrder string

const (
	Ascending  SortOrder = "asc"
	Descending SortOrder = "desc"
)

// TransactionWithBalance is a ledger transaction annotated with the cumulative
// account balance after it was applied.
type TransactionWithBalance struct {
	ledger.Transaction
	Balance decimal.Decimal
}

// Less is the fixed accumulation order: (date asc, id asc, description asc).
// The id tie-break makes the order total — dates alone are not unique — so two
// call sites accumulating the same set always reproduce identical balances.
func Less(a, b *ledger.Transaction) bool {
	da, db := ledger.Day(a.Date), ledger.Day(b.Date)
	if !da.Equal(db) {
		return da.Before(db)
	}
	if a.ID != b.ID {
		return a.ID < b.ID
	}
	return a.Description < b.Description
}

// WithRunningBalances accumulates balances over txs starting from start.
// The input is copied and sorted into accumulation order first; the cumulative
// sum is always computed ascending, never descending-and-negated, because the
// two are not equivalent under decimal rounding and reordering.
func WithRunningBalances(start decimal.Decimal, txs []ledger.Transaction) []TransactionWithBalance {
	ordered := make([]ledger.Transaction, len(txs))
	copy(ordered, txs)
	sort.Slice(ordered, func(i, j int) bool {
		return Less(&ordered[i], &ordered[j])
	})

	out := make([]TransactionWithBalance, len(ordered))
	running := start
	for i := range ordered {
		running = running.Add(ordered[i].Amount)
		out[i] = TransactionWithBalance{Transaction: ordered[i], Balance: running}
	}
	return out
}

// Reorder arranges already-computed results for presentation. Balances are
// never recomputed here — the accumulation happened ascending and the
// annotated values stay attached to their transactions.
func Reorder(results []TransactionWithBalance, order SortOrder) []TransactionWithBalance {
	if order != Descending {
		return results
	}
	out := make([]TransactionWithBalance, len(results))
	for i := range results {
		out[i] = results[len(results)-1-i]
	}
	return out
}

// SumAmounts returns the plain sum over a transaction set, in any order.
// Decimal addition is associative and commutative, so unlike running balances
// no ordering rule is needed.
func SumAmounts(txs []ledger.Transaction) decimal.Decimal {
	sum := decimal.Zero
	for i := range txs {
		sum = sum.Add(txs[i].Amount)
	}
	return sum
}
