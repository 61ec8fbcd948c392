// Package period maps civil dates to aggregation period boundaries.
// All functions are pure and total: any input date, including leap days and
// year boundaries, maps to exactly one [Start, End] range per period type.
package period

import (
	"fmt"
	"time"
)

// Type identifies an aggregation period granularity.
type Type string

const (
	Weekly    Type = "WEEKLY"
	Monthly   Type = "MONTHLY"
	Quarterly Type = "QUARTERLY"
	BiAnnual  Type = "BI_ANNUAL"
	Annual    Type = "ANNUAL"
)

// All returns every supported period type, in coarseness order.
// Cube regeneration targets are derived for each of these.
func All() []Type {
	return []Type{Weekly, Monthly, Quarterly, BiAnnual, Annual}
}

// Valid reports whether t is a known period type.
func (t Type) Valid() bool {
	switch t {
	case Weekly, Monthly, Quarterly, BiAnnual, Annual:
		return true
	}
	return false
}

// Range is an inclusive-inclusive date span. Start and End are UTC midnights.
type Range struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether d (at civil-date resolution) falls inside r.
// A date equal to End belongs to the period; the next calendar day does not.
func (r Range) Contains(d time.Time) bool {
	day := truncate(d)
	return !day.Before(r.Start) && !day.After(r.End)
}

// Of returns the period of the given type containing d.
func Of(t Type, d time.Time) (Range, error) {
	day := truncate(d)

	switch t {
	case Weekly:
		return weekOf(day), nil
	case Monthly:
		return monthOf(day), nil
	case Quarterly:
		return quarterOf(day), nil
	case BiAnnual:
		return halfOf(day), nil
	case Annual:
		return yearOf(day), nil
	default:
		return Range{}, fmt.Errorf("unknown period type %q", t)
	}
}

// weekOf returns the Monday-to-Sunday week containing d.
func weekOf(d time.Time) Range {
	// time.Weekday puts Sunday at 0; shift so Monday is 0.
	offset := (int(d.Weekday()) + 6) % 7
	start := d.AddDate(0, 0, -offset)
	return Range{Start: start, End: start.AddDate(0, 0, 6)}
}

func monthOf(d time.Time) Range {
	start := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Range{Start: start, End: start.AddDate(0, 1, -1)}
}

func quarterOf(d time.Time) Range {
	q := (int(d.Month()) - 1) / 3
	start := time.Date(d.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, time.UTC)
	return Range{Start: start, End: start.AddDate(0, 3, -1)}
}

func halfOf(d time.Time) Range {
	m := time.January
	if d.Month() >= time.July {
		m = time.July
	}
	start := time.Date(d.Year(), m, 1, 0, 0, 0, 0, time.UTC)
	return Range{Start: start, End: start.AddDate(0, 6, -1)}
}

func yearOf(d time.Time) Range {
	start := time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	return Range{Start: start, End: start.AddDate(1, 0, -1)}
}

func truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
