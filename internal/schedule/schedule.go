// Package schedule implements C1: pure functions deciding whether a queue
// is open at a given instant, and the nearest activation boundaries, from
// the weekly windows in a domain.Schedule.
package schedule

import (
	"fmt"
	"time"

	"github.com/aliabuzahra/queue-sub006/internal/domain"
)

// ErrUnavailable is returned when the schedule's timezone cannot be
// resolved; per spec §4.1 the queue is treated as closed in this case.
type ErrUnavailable struct {
	Timezone string
	Cause    error
}

func (e *ErrUnavailable) Error() string {
	return fmt.Sprintf("schedule: unavailable (timezone %q): %v", e.Timezone, e.Cause)
}

func (e *ErrUnavailable) Unwrap() error { return e.Cause }

// IsActive reports whether t falls inside one of the schedule's weekly
// windows, projected into the schedule's timezone. A nil schedule means
// the queue is always available. Interval endpoints are half-open
// [start, end).
func IsActive(s *domain.Schedule, t time.Time) (bool, error) {
	if s == nil {
		return true, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return false, &ErrUnavailable{Timezone: s.Timezone, Cause: err}
	}
	local := t.In(loc)
	minute := domain.TimeOfDay(local.Hour()*60 + local.Minute())
	for _, w := range s.Windows[local.Weekday()] {
		if minute >= w.Start && minute < w.End {
			return true, nil
		}
	}
	return false, nil
}

// NextActivation returns the earliest t' >= t such that IsActive(t') is
// true, scanning forward at most 8 days (a full week plus the current
// partial day) of local wall-clock minutes. Returns (zero, false, nil) if
// the schedule has no windows at all.
func NextActivation(s *domain.Schedule, t time.Time) (time.Time, bool, error) {
	if s == nil {
		return t, true, nil
	}
	if totalWindows(s) == 0 {
		return time.Time{}, false, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.Time{}, false, &ErrUnavailable{Timezone: s.Timezone, Cause: err}
	}
	local := t.In(loc)
	for day := 0; day <= 7; day++ {
		cursor := local.AddDate(0, 0, day)
		weekday := cursor.Weekday()
		windows := s.Windows[weekday]
		for _, w := range windows {
			candidate := time.Date(cursor.Year(), cursor.Month(), cursor.Day(), 0, 0, 0, 0, loc).
				Add(time.Duration(w.Start) * time.Minute)
			if day == 0 && candidate.Before(local) {
				// Window already started today; if it's still open, "now"
				// itself is the activation instant.
				endCandidate := time.Date(cursor.Year(), cursor.Month(), cursor.Day(), 0, 0, 0, 0, loc).
					Add(time.Duration(w.End) * time.Minute)
				if local.Before(endCandidate) {
					return local, true, nil
				}
				continue
			}
			if !candidate.Before(local) {
				return candidate, true, nil
			}
		}
	}
	return time.Time{}, false, nil
}

// PrevActivation returns the latest t' <= t such that IsActive(t') is
// true, scanning backward at most 8 days.
func PrevActivation(s *domain.Schedule, t time.Time) (time.Time, bool, error) {
	if s == nil {
		return t, true, nil
	}
	if totalWindows(s) == 0 {
		return time.Time{}, false, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.Time{}, false, &ErrUnavailable{Timezone: s.Timezone, Cause: err}
	}
	local := t.In(loc)
	var best time.Time
	found := false
	for day := 0; day <= 7; day++ {
		cursor := local.AddDate(0, 0, -day)
		weekday := cursor.Weekday()
		for _, w := range s.Windows[weekday] {
			start := time.Date(cursor.Year(), cursor.Month(), cursor.Day(), 0, 0, 0, 0, loc).
				Add(time.Duration(w.Start) * time.Minute)
			end := time.Date(cursor.Year(), cursor.Month(), cursor.Day(), 0, 0, 0, 0, loc).
				Add(time.Duration(w.End) * time.Minute)
			candidate := end.Add(-time.Nanosecond) // end is exclusive
			if end.After(local) {
				if start.After(local) {
					continue
				}
				candidate = local
			}
			if !start.After(local) && (!found || candidate.After(best)) {
				best = candidate
				found = true
			}
		}
		if found {
			return best, true, nil
		}
	}
	return time.Time{}, false, nil
}

func totalWindows(s *domain.Schedule) int {
	n := 0
	for _, w := range s.Windows {
		n += len(w)
	}
	return n
}
