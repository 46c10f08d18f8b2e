package domain

import (
	"fmt"
	"time"
)

// Status is a UserSession's place in the §3 state machine.
type Status int

const (
	StatusWaiting Status = iota
	StatusServing
	StatusReleased
	StatusDropped
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "Waiting"
	case StatusServing:
		return "Serving"
	case StatusReleased:
		return "Released"
	case StatusDropped:
		return "Dropped"
	default:
		return "Unknown"
	}
}

// UserSession is one user's participation in one queue.
type UserSession struct {
	ID             string
	QueueID        string
	UserIdentifier string
	Metadata       string
	Priority       Priority
	Status         Status
	EnqueuedAt     time.Time
	ServedAt       *time.Time
	ReleasedAt     *time.Time
	// Position is a cache of the waiting-set rank; 0 when not Waiting. The
	// authoritative value always comes from waitset.Set.PositionOf.
	Position int
}

// ErrInvalidTransition is returned by the Mark* methods when the current
// Status cannot move to the requested one. The release controller and
// store facade translate it into apierr where needed.
type ErrInvalidTransition struct {
	From, To Status
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("domain: invalid transition %s -> %s", e.From, e.To)
}

// MarkServing moves Waiting -> Serving. Only legal from Waiting; unlike
// MarkReleased/MarkDropped this is not idempotent (spec §3).
func (s *UserSession) MarkServing(now time.Time) error {
	if s.Status != StatusWaiting {
		return &ErrInvalidTransition{From: s.Status, To: StatusServing}
	}
	s.Status = StatusServing
	s.ServedAt = &now
	s.Position = 0
	return nil
}

// MarkReleased moves Waiting or Serving -> Released. Idempotent: calling it
// again on an already-Released session is a no-op success.
func (s *UserSession) MarkReleased(now time.Time) error {
	switch s.Status {
	case StatusReleased:
		return nil
	case StatusWaiting, StatusServing:
		s.Status = StatusReleased
		s.ReleasedAt = &now
		s.Position = 0
		return nil
	default:
		return &ErrInvalidTransition{From: s.Status, To: StatusReleased}
	}
}

// MarkDropped is terminal and idempotent from any non-Released state; a
// session already Released cannot be dropped (it has already exited).
func (s *UserSession) MarkDropped(now time.Time) error {
	switch s.Status {
	case StatusDropped:
		return nil
	case StatusReleased:
		return &ErrInvalidTransition{From: s.Status, To: StatusDropped}
	default:
		s.Status = StatusDropped
		s.Position = 0
		return nil
	}
}

// Less implements the total order from spec §3: Priority descending, then
// EnqueuedAt ascending, then ID ascending as the final determinism
// tie-break. Returns true iff s sorts strictly before other (i.e. s would
// be released first).
func (s *UserSession) Less(other *UserSession) bool {
	if s.Priority != other.Priority {
		return s.Priority > other.Priority
	}
	if !s.EnqueuedAt.Equal(other.EnqueuedAt) {
		return s.EnqueuedAt.Before(other.EnqueuedAt)
	}
	return s.ID < other.ID
}
