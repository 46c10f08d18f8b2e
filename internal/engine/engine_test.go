package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aliabuzahra/queue-sub006/internal/cache"
	"github.com/aliabuzahra/queue-sub006/internal/domain"
	"github.com/aliabuzahra/queue-sub006/internal/ratelimit"
	"github.com/aliabuzahra/queue-sub006/internal/store"
)

type fakeQueueStore struct {
	queues map[string]*domain.Queue
}

func (f *fakeQueueStore) GetQueue(ctx context.Context, tenantID, queueID string) (*domain.Queue, error) {
	q, ok := f.queues[queueID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return q, nil
}

func (f *fakeQueueStore) ListActiveQueues(ctx context.Context) ([]*domain.Queue, error) {
	var out []*domain.Queue
	for _, q := range f.queues {
		if q.Active {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeQueueStore) UpdateLastReleaseAt(ctx context.Context, queueID string, at time.Time) error {
	if q, ok := f.queues[queueID]; ok {
		q.LastReleaseAt = at
	}
	return nil
}

func newTestService(t *testing.T, now time.Time) (*Service, *fakeQueueStore) {
	t.Helper()
	qs := &fakeQueueStore{queues: map[string]*domain.Queue{
		"q1": {
			ID: "q1", TenantID: "t1", Active: true,
			MaxConcurrentUsers: 10, ReleaseRatePerMinute: 60,
			LastReleaseAt: now,
		},
	}}
	limiter := ratelimit.NewSlidingWindowLimiter(func() time.Time { return now })
	svc := NewService(qs, store.NewMemoryStore(), limiter, cache.NewMemoryCache(func() time.Time { return now }), nil, func() time.Time { return now })
	return svc, qs
}

func TestService_EnqueueAndGetUserStatus(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)

	session, err := svc.EnqueueUser(ctx, "t1", "q1", "alice", "", "Normal")
	require.NoError(t, err)
	require.Equal(t, domain.StatusWaiting, session.Status)
	require.Equal(t, 1, session.Position)

	status, err := svc.GetUserStatus(ctx, "q1", "alice")
	require.NoError(t, err)
	require.Equal(t, domain.StatusWaiting, status.Status)
}

func TestService_EnqueueDuplicateConflict(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)

	_, err := svc.EnqueueUser(ctx, "t1", "q1", "alice", "", "Normal")
	require.NoError(t, err)

	_, err = svc.EnqueueUser(ctx, "t1", "q1", "alice", "", "Normal")
	require.Error(t, err)
}

func TestService_DropUserRemovesFromWaitset(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)

	_, err := svc.EnqueueUser(ctx, "t1", "q1", "alice", "", "Normal")
	require.NoError(t, err)

	require.NoError(t, svc.DropUser(ctx, "t1", "q1", "alice"))

	status, err := svc.GetUserStatus(ctx, "q1", "alice")
	require.NoError(t, err)
	require.Equal(t, domain.StatusDropped, status.Status)
}

func TestService_ReleaseUsersManual(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)

	a, err := svc.EnqueueUser(ctx, "t1", "q1", "alice", "", "Normal")
	require.NoError(t, err)
	b, err := svc.EnqueueUser(ctx, "t1", "q1", "bob", "", "Normal")
	require.NoError(t, err)

	// The test clock is fixed, so both sessions share one EnqueuedAt and the
	// session-id tie-break of the total order decides who is released first.
	first := a.UserIdentifier
	if b.ID < a.ID {
		first = b.UserIdentifier
	}

	count, err := svc.ReleaseUsers(ctx, "t1", "q1", 1)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	status, err := svc.GetUserStatus(ctx, "q1", first)
	require.NoError(t, err)
	require.Equal(t, domain.StatusReleased, status.Status)
}

func TestService_EnqueueRejectsInvalidPriority(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)

	_, err := svc.EnqueueUser(ctx, "t1", "q1", "alice", "", "Legendary")
	require.Error(t, err)
}
