package ledger

import "errors"

var (
	// ErrAccountNotFound is returned when a balance query names an account the
	// tenant does not have.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidDateRange is returned when a query's start date is after its
	// end date, or a date fails to parse at the boundary.
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrAnchorAmbiguity is returned when two anchors share the same
	// anchor_date for one account and the store cannot tie-break them.
	// The Postgres store never returns this (highest id wins); it exists for
	// stores without a total order over anchor ids.
	ErrAnchorAmbiguity = errors.New("ambiguous balance anchors on same date")

	// ErrInvalidDeltaShape is returned when a delta notification is missing
	// the old/new values its operation requires.
	ErrInvalidDeltaShape = errors.New("invalid delta shape")
)
