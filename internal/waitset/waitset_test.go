package waitset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aliabuzahra/queue-sub006/internal/domain"
)

func sess(id, ident string, p domain.Priority, at time.Time) *domain.UserSession {
	return &domain.UserSession{
		ID:             id,
		UserIdentifier: ident,
		Priority:       p,
		Status:         domain.StatusWaiting,
		EnqueuedAt:     at,
	}
}

// S1 — FIFO within priority.
func TestSet_FIFOWithinPriority(t *testing.T) {
	s := New()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Insert(sess("s1", "u1", domain.PriorityNormal, t0))
	s.Insert(sess("s2", "u2", domain.PriorityNormal, t0.Add(time.Second)))
	s.Insert(sess("s3", "u3", domain.PriorityNormal, t0.Add(2*time.Second)))

	ordered := s.Peek(3)
	require.Equal(t, []string{"u1", "u2", "u3"}, idents(ordered))
}

// S2 — priority preemption: a later-enqueued High-priority session jumps
// ahead of earlier Normal-priority ones.
func TestSet_PriorityPreemption(t *testing.T) {
	s := New()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Insert(sess("s1", "u1", domain.PriorityNormal, t0))
	s.Insert(sess("s2", "u2", domain.PriorityHigh, t0.Add(100*time.Millisecond)))
	s.Insert(sess("s3", "u3", domain.PriorityNormal, t0.Add(200*time.Millisecond)))

	ordered := s.Peek(3)
	require.Equal(t, []string{"u2", "u1", "u3"}, idents(ordered))
}

func TestSet_TieBreakByID(t *testing.T) {
	s := New()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Insert(sess("b", "u-b", domain.PriorityNormal, t0))
	s.Insert(sess("a", "u-a", domain.PriorityNormal, t0))

	ordered := s.Peek(2)
	require.Equal(t, []string{"u-a", "u-b"}, idents(ordered))
}

func TestSet_PositionOf(t *testing.T) {
	s := New()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Insert(sess("s1", "u1", domain.PriorityNormal, t0))
	s.Insert(sess("s2", "u2", domain.PriorityNormal, t0.Add(time.Second)))

	require.Equal(t, 1, s.PositionOf("u1"))
	require.Equal(t, 2, s.PositionOf("u2"))
	require.Equal(t, 0, s.PositionOf("nobody"))
}

func TestSet_RemoveAndSize(t *testing.T) {
	s := New()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := sess("s1", "u1", domain.PriorityNormal, t0)
	s.Insert(a)
	require.Equal(t, 1, s.Size())

	removed, ok := s.Remove("s1")
	require.True(t, ok)
	require.Equal(t, a, removed)
	require.Equal(t, 0, s.Size())
	require.False(t, s.Contains("u1"))

	_, ok = s.Remove("s1")
	require.False(t, ok)
}

func TestSet_Reinsert_PriorityChange(t *testing.T) {
	s := New()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := sess("s1", "u1", domain.PriorityNormal, t0)
	b := sess("s2", "u2", domain.PriorityNormal, t0.Add(time.Second))
	s.Insert(a)
	s.Insert(b)
	require.Equal(t, []string{"u1", "u2"}, idents(s.Peek(2)))

	a.Priority = domain.PriorityVIP
	s.Reinsert(a)
	require.Equal(t, []string{"u1", "u2"}, idents(s.Peek(2)))
}

func TestSet_PeekLimitsAndDoesNotMutate(t *testing.T) {
	s := New()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Insert(sess("s1", "u1", domain.PriorityNormal, t0))
	s.Insert(sess("s2", "u2", domain.PriorityNormal, t0.Add(time.Second)))

	require.Len(t, s.Peek(1), 1)
	require.Equal(t, 2, s.Size())
	require.Equal(t, []string{"u1", "u2"}, idents(s.Peek(5)))
}

func idents(sessions []*domain.UserSession) []string {
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.UserIdentifier
	}
	return out
}
