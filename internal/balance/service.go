// Package balance reconstructs point-in-time and running account balances from
// balance anchors plus the transaction ledger. Balances are always computed
// fresh from source data — never cached, never read from the cube.
package balance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"FinSight/internal/ledger"
)

// Method names how a balance was reconstructed. Callers surface it so a
// balance computed without any anchor can be flagged as lower confidence.
type Method string

const (
	// MethodAnchorForward sums transactions forward from the most recent
	// anchor at-or-before the query date (or from an implicit zero anchor at
	// the epoch when the account has no anchors at all).
	MethodAnchorForward Method = "anchor-forward"
	// MethodAnchorBackward projects backward from the earliest anchor after
	// the query date by subtracting the intervening transactions.
	MethodAnchorBackward Method = "anchor-backward"
	// MethodDirect means the query date is an anchor date with no transactions
	// on that day; the anchor balance is returned as-is.
	MethodDirect Method = "direct"
)

// CalculationResult is the outcome of a point-in-time balance reconstruction.
type CalculationResult struct {
	Balance               decimal.Decimal
	Method                Method
	AnchorUsed            *ledger.BalanceAnchor
	TransactionsProcessed int
}

// HistoryPoint is one day of a balance history series.
type HistoryPoint struct {
	Date       time.Time
	Balance    decimal.Decimal
	NetAmount  decimal.Decimal
	Method     Method
	AnchorUsed *ledger.BalanceAnchor
}

// RangeQuery bounds a running-balance listing. Nil From/To mean unbounded.
type RangeQuery struct {
	From  *time.Time
	To    *time.Time
	Order SortOrder
}

// TransactionSource reads transactions from the external ledger.
type TransactionSource interface {
	ListTransactions(ctx context.Context, q ledger.TransactionQuery) ([]ledger.Transaction, error)
}

// AnchorSource reads balance anchors. When two anchors share an anchor_date the
// implementation must tie-break deterministically; the Postgres store picks the
// highest id.
type AnchorSource interface {
	LatestAtOrBefore(ctx context.Context, tenantID uuid.UUID, accountID int64, date time.Time) (*ledger.BalanceAnchor, error)
	EarliestAtOrAfter(ctx context.Context, tenantID uuid.UUID, accountID int64, date time.Time) (*ledger.BalanceAnchor, error)
}

// AccountSource answers whether an account exists for a tenant.
type AccountSource interface {
	AccountExists(ctx context.Context, tenantID uuid.UUID, accountID int64) (bool, error)
}

// Service is the single canonical balance reconstruction implementation.
// Every API surface that reports a balance goes through it; accumulation logic
// is never re-implemented per endpoint.
type Service struct {
	txs      TransactionSource
	anchors  AnchorSource
	accounts AccountSource
	log      zerolog.Logger
}

func NewService(txs TransactionSource, anchors AnchorSource, accounts AccountSource, log zerolog.Logger) *Service {
	return &Service{txs: txs, anchors: anchors, accounts: accounts, log: log}
}

// BalanceAsOf reconstructs the account's balance at end of day on date.
//
// An anchor attests the opening balance on its anchor date, so anchor-forward
// includes transactions dated on the anchor date itself and anchor-backward
// stops short of the anchor date. Missing anchors are not an error: with no
// anchor on either side the balance is summed from an implicit zero anchor at
// the epoch and reported as anchor-forward with no AnchorUsed.
func (s *Service) BalanceAsOf(ctx context.Context, tenantID uuid.UUID, accountID int64, date time.Time) (*CalculationResult, error) {
	if err := s.requireAccount(ctx, tenantID, accountID); err != nil {
		return nil, err
	}
	day := ledger.Day(date)

	prior, err := s.anchors.LatestAtOrBefore(ctx, tenantID, accountID, day)
	if err != nil {
		return nil, fmt.Errorf("prior anchor lookup: %w", err)
	}
	if prior != nil {
		return s.forwardFromAnchor(ctx, tenantID, accountID, prior, day)
	}

	next, err := s.anchors.EarliestAtOrAfter(ctx, tenantID, accountID, day)
	if err != nil {
		return nil, fmt.Errorf("next anchor lookup: %w", err)
	}
	if next != nil {
		return s.backwardFromAnchor(ctx, tenantID, accountID, next, day)
	}

	// No anchors at all: implicit zero anchor at the epoch.
	txs, err := s.txs.ListTransactions(ctx, ledger.TransactionQuery{
		TenantID:  tenantID,
		AccountID: &accountID,
		DateTo:    &day,
	})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return &CalculationResult{
		Balance:               SumAmounts(txs),
		Method:                MethodAnchorForward,
		TransactionsProcessed: len(txs),
	}, nil
}

func (s *Service) forwardFromAnchor(ctx context.Context, tenantID uuid.UUID, accountID int64, anchor *ledger.BalanceAnchor, day time.Time) (*CalculationResult, error) {
	from := ledger.Day(anchor.AnchorDate)
	txs, err := s.txs.ListTransactions(ctx, ledger.TransactionQuery{
		TenantID:  tenantID,
		AccountID: &accountID,
		DateFrom:  &from,
		DateTo:    &day,
	})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	if len(txs) == 0 && from.Equal(day) {
		return &CalculationResult{
			Balance:    anchor.Balance,
			Method:     MethodDirect,
			AnchorUsed: anchor,
		}, nil
	}

	return &CalculationResult{
		Balance:               anchor.Balance.Add(SumAmounts(txs)),
		Method:                MethodAnchorForward,
		AnchorUsed:            anchor,
		TransactionsProcessed: len(txs),
	}, nil
}

func (s *Service) backwardFromAnchor(ctx context.Context, tenantID uuid.UUID, accountID int64, anchor *ledger.BalanceAnchor, day time.Time) (*CalculationResult, error) {
	// The anchor holds the opening balance on its date; subtracting the
	// transactions strictly between the query date and the anchor date
	// projects it back to end of day on the query date.
	from := ledger.Day(day).AddDate(0, 0, 1)
	to := ledger.Day(anchor.AnchorDate).AddDate(0, 0, -1)

	var txs []ledger.Transaction
	if !from.After(to) {
		var err error
		txs, err = s.txs.ListTransactions(ctx, ledger.TransactionQuery{
			TenantID:  tenantID,
			AccountID: &accountID,
			DateFrom:  &from,
			DateTo:    &to,
		})
		if err != nil {
			return nil, fmt.Errorf("list transactions: %w", err)
		}
	}

	return &CalculationResult{
		Balance:               anchor.Balance.Sub(SumAmounts(txs)),
		Method:                MethodAnchorBackward,
		AnchorUsed:            anchor,
		TransactionsProcessed: len(txs),
	}, nil
}

// History returns a per-day balance series over [start, end], seeded by the
// reconstructed balance at end of day before start. Each day reports its net
// transaction amount and the method/anchor backing the seed.
func (s *Service) History(ctx context.Context, tenantID uuid.UUID, accountID int64, start, end time.Time) ([]HistoryPoint, error) {
	start, end = ledger.Day(start), ledger.Day(end)
	if start.After(end) {
		return nil, fmt.Errorf("%w: start %s is after end %s",
			ledger.ErrInvalidDateRange, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	seed, err := s.BalanceAsOf(ctx, tenantID, accountID, start.AddDate(0, 0, -1))
	if err != nil {
		return nil, err
	}

	txs, err := s.txs.ListTransactions(ctx, ledger.TransactionQuery{
		TenantID:  tenantID,
		AccountID: &accountID,
		DateFrom:  &start,
		DateTo:    &end,
	})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	daily := make(map[time.Time]decimal.Decimal)
	for i := range txs {
		d := ledger.Day(txs[i].Date)
		daily[d] = daily[d].Add(txs[i].Amount)
	}

	var points []HistoryPoint
	running := seed.Balance
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		net := daily[d]
		running = running.Add(net)
		points = append(points, HistoryPoint{
			Date:       d,
			Balance:    running,
			NetAmount:  net,
			Method:     seed.Method,
			AnchorUsed: seed.AnchorUsed,
		})
	}

	s.log.Debug().
		Str("tenant_id", tenantID.String()).
		Int64("account_id", accountID).
		Int("days", len(points)).
		Int("transactions", len(txs)).
		Msg("balance history computed")

	return points, nil
}

// TransactionsWithRunningBalance lists the account's transactions in the given
// range with a cumulative balance attached to each. The starting balance is
// reconstructed as of the day before the range starts — never by assuming an
// anchor sits inside the filtered range — so the final balances match History
// for the same range regardless of the requested presentation order.
func (s *Service) TransactionsWithRunningBalance(ctx context.Context, tenantID uuid.UUID, accountID int64, q RangeQuery) ([]TransactionWithBalance, error) {
	if err := s.requireAccount(ctx, tenantID, accountID); err != nil {
		return nil, err
	}
	if q.From != nil && q.To != nil && ledger.Day(*q.From).After(ledger.Day(*q.To)) {
		return nil, fmt.Errorf("%w: from %s is after to %s",
			ledger.ErrInvalidDateRange, q.From.Format("2006-01-02"), q.To.Format("2006-01-02"))
	}

	txs, err := s.txs.ListTransactions(ctx, ledger.TransactionQuery{
		TenantID:  tenantID,
		AccountID: &accountID,
		DateFrom:  q.From,
		DateTo:    q.To,
	})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	if len(txs) == 0 {
		return nil, nil
	}

	seedDate := earliestDay(txs)
	if q.From != nil {
		seedDate = ledger.Day(*q.From)
	}
	seed, err := s.BalanceAsOf(ctx, tenantID, accountID, seedDate.AddDate(0, 0, -1))
	if err != nil {
		return nil, err
	}

	return Reorder(WithRunningBalances(seed.Balance, txs), q.Order), nil
}

func (s *Service) requireAccount(ctx context.Context, tenantID uuid.UUID, accountID int64) error {
	ok, err := s.accounts.AccountExists(ctx, tenantID, accountID)
	if err != nil {
		return fmt.Errorf("account lookup: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: account %d for tenant %s", ledger.ErrAccountNotFound, accountID, tenantID)
	}
	return nil
}

func earliestDay(txs []ledger.Transaction) time.Time {
	earliest := ledger.Day(txs[0].Date)
	for i := 1; i < len(txs); i++ {
		if d := ledger.Day(txs[i].Date); d.Before(earliest) {
			earliest = d
		}
	}
	return earliest
}
