package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aliabuzahra/queue-sub006/internal/domain"
)

func newSession(id, queueID, ident string) *domain.UserSession {
	return &domain.UserSession{
		ID:             id,
		QueueID:        queueID,
		UserIdentifier: ident,
		Priority:       domain.PriorityNormal,
		Status:         domain.StatusWaiting,
		EnqueuedAt:     time.Now(),
	}
}

// S5 — duplicate enqueue.
func TestMemoryStore_DuplicateEnqueueRejected(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Add(ctx, newSession("s1", "q1", "X")))
	err := s.Add(ctx, newSession("s2", "q1", "X"))
	require.ErrorIs(t, err, ErrAlreadyEnqueued)
}

func TestMemoryStore_ReenqueueAfterDrop(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Add(ctx, newSession("s1", "q1", "X")))
	_, err := s.Transition(ctx, "s1", domain.StatusWaiting, domain.StatusDropped, time.Now())
	require.NoError(t, err)

	require.NoError(t, s.Add(ctx, newSession("s2", "q1", "X")))
	got, err := s.Get(ctx, "q1", "X")
	require.NoError(t, err)
	require.Equal(t, "s2", got.ID)
}

func TestMemoryStore_GetFallsBackToDropped(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Add(ctx, newSession("s1", "q1", "X")))
	_, err := s.Transition(ctx, "s1", domain.StatusWaiting, domain.StatusDropped, time.Now())
	require.NoError(t, err)

	got, err := s.Get(ctx, "q1", "X")
	require.NoError(t, err)
	require.Equal(t, domain.StatusDropped, got.Status)
}

func TestMemoryStore_TransitionInvalid(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Add(ctx, newSession("s1", "q1", "X")))

	_, err := s.Transition(ctx, "s1", domain.StatusServing, domain.StatusReleased, time.Now())
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMemoryStore_BulkTransition_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Add(ctx, newSession("s1", "q1", "A")))
	require.NoError(t, s.Add(ctx, newSession("s2", "q1", "B")))

	// s2 is not Waiting (already Serving), so the whole batch should fail
	// and s1 should remain Waiting.
	_, err := s.Transition(ctx, "s2", domain.StatusWaiting, domain.StatusServing, time.Now())
	require.NoError(t, err)

	_, err = s.BulkTransition(ctx, []string{"s1", "s2"}, domain.StatusWaiting, domain.StatusReleased, time.Now())
	require.Error(t, err)

	got, err := s.Get(ctx, "q1", "A")
	require.NoError(t, err)
	require.Equal(t, domain.StatusWaiting, got.Status)
}

func TestMemoryStore_BulkTransition_Success(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Add(ctx, newSession("s1", "q1", "A")))
	require.NoError(t, s.Add(ctx, newSession("s2", "q1", "B")))

	released, err := s.BulkTransition(ctx, []string{"s1", "s2"}, domain.StatusWaiting, domain.StatusReleased, time.Now())
	require.NoError(t, err)
	require.Len(t, released, 2)
	for _, r := range released {
		require.Equal(t, domain.StatusReleased, r.Status)
		require.NotNil(t, r.ReleasedAt)
	}
}

func TestMemoryStore_ListWaitingOrdered(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	t0 := time.Now()
	a := newSession("s1", "q1", "A")
	a.EnqueuedAt = t0
	b := newSession("s2", "q1", "B")
	b.EnqueuedAt = t0.Add(time.Second)
	require.NoError(t, s.Add(ctx, a))
	require.NoError(t, s.Add(ctx, b))

	waiting, err := s.ListWaiting(ctx, "q1")
	require.NoError(t, err)
	require.Len(t, waiting, 2)
	require.Equal(t, "A", waiting[0].UserIdentifier)
	require.Equal(t, "B", waiting[1].UserIdentifier)
}
