package release

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aliabuzahra/queue-sub006/internal/bus"
	"github.com/aliabuzahra/queue-sub006/internal/domain"
	"github.com/aliabuzahra/queue-sub006/internal/store"
	"github.com/aliabuzahra/queue-sub006/internal/waitset"
)

type zeroServing struct{}

func (zeroServing) ServingCount(string) int { return 0 }

type fixedServing int

func (f fixedServing) ServingCount(string) int { return int(f) }

func mustSession(id, queueID, userIdentifier string, priority domain.Priority, enqueuedAt time.Time) *domain.UserSession {
	return &domain.UserSession{
		ID:             id,
		QueueID:        queueID,
		UserIdentifier: userIdentifier,
		Priority:       priority,
		Status:         domain.StatusWaiting,
		EnqueuedAt:     enqueuedAt,
	}
}

// TestController_FIFOWithinRateBudget is S1: rate=2/min, cap=10, active.
// u1,u2,u3 enqueued a second apart; a tick 60s after the last release
// releases exactly u1,u2 in order, leaving u3 waiting at position 1.
func TestController_FIFOWithinRateBudget(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	q := &domain.Queue{
		ID: "q1", TenantID: "t1", Active: true,
		MaxConcurrentUsers: 10, ReleaseRatePerMinute: 2,
		// The queue has been open with nobody waiting for 30s before t0,
		// so by the tick 30s after t0 a full minute's worth of budget
		// (elapsed 60s, rate 2/min -> budget 2) has accrued.
		LastReleaseAt: t0.Add(-30 * time.Second),
	}
	ss := store.NewMemoryStore()
	ws := waitset.New()

	u1 := mustSession("u1", "q1", "alice", domain.PriorityNormal, t0)
	u2 := mustSession("u2", "q1", "bob", domain.PriorityNormal, t0.Add(time.Second))
	u3 := mustSession("u3", "q1", "carol", domain.PriorityNormal, t0.Add(2*time.Second))
	for _, s := range []*domain.UserSession{u1, u2, u3} {
		require.NoError(t, ss.Add(ctx, s))
		ws.Insert(s)
	}

	c := NewController(q, ws, ss, nil, nil, zeroServing{}, func() time.Time { return t0 })
	res := c.Tick(ctx, t0.Add(30*time.Second))

	require.NoError(t, res.Err)
	require.Equal(t, StateRunning, res.State)
	require.Len(t, res.Released, 2)
	require.Equal(t, "u1", res.Released[0].ID)
	require.Equal(t, "u2", res.Released[1].ID)
	require.Equal(t, 1, ws.Size())
	require.Equal(t, 1, ws.PositionOf("carol"))
}

// TestController_PriorityPreemption is S2: a VIP enqueued after two Normal
// sessions is released first on the next tick.
func TestController_PriorityPreemption(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	q := &domain.Queue{
		ID: "q1", TenantID: "t1", Active: true,
		MaxConcurrentUsers: 10, ReleaseRatePerMinute: 1,
		LastReleaseAt: t0,
	}
	ss := store.NewMemoryStore()
	ws := waitset.New()

	u1 := mustSession("u1", "q1", "alice", domain.PriorityNormal, t0)
	u2 := mustSession("u2", "q1", "bob", domain.PriorityNormal, t0.Add(time.Second))
	vip := mustSession("vip", "q1", "victor", domain.PriorityVIP, t0.Add(2*time.Second))
	for _, s := range []*domain.UserSession{u1, u2, vip} {
		require.NoError(t, ss.Add(ctx, s))
		ws.Insert(s)
	}

	c := NewController(q, ws, ss, nil, nil, zeroServing{}, func() time.Time { return t0 })
	res := c.Tick(ctx, t0.Add(time.Minute))

	require.Len(t, res.Released, 1)
	require.Equal(t, "vip", res.Released[0].ID)
}

// TestController_ConcurrencyCapBlocksRelease is S3: cap=1, one session
// already Serving, so cap headroom is 0 regardless of rate budget; no
// release happens across several ticks.
func TestController_ConcurrencyCapBlocksRelease(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	q := &domain.Queue{
		ID: "q1", TenantID: "t1", Active: true,
		MaxConcurrentUsers: 1, ReleaseRatePerMinute: 10,
		LastReleaseAt: t0,
	}
	ss := store.NewMemoryStore()
	ws := waitset.New()
	u1 := mustSession("u1", "q1", "alice", domain.PriorityNormal, t0)
	require.NoError(t, ss.Add(ctx, u1))
	ws.Insert(u1)

	c := NewController(q, ws, ss, nil, nil, fixedServing(1), func() time.Time { return t0 })

	for i := 1; i <= 6; i++ {
		res := c.Tick(ctx, t0.Add(time.Duration(i)*time.Second))
		require.Empty(t, res.Released)
		require.Equal(t, 0, res.CapHeadroom)
	}
	require.Equal(t, 1, ws.Size())
}

// TestController_ScheduleClosedBlocksReleaseAndAdvancesClock is S4: a tick
// at the half-open window boundary (exactly window.End) treats the queue
// as closed, releases nobody, and still advances LastReleaseAt so no
// backlog discharges the instant the window reopens.
func TestController_ScheduleClosedBlocksReleaseAndAdvancesClock(t *testing.T) {
	ctx := context.Background()
	closeInstant := time.Date(2026, 1, 5, 17, 0, 0, 0, time.UTC) // Monday 17:00

	sched := &domain.Schedule{
		Timezone: "UTC",
		Windows: map[domain.Weekday][]domain.Window{
			time.Monday: {{Start: 9 * 60, End: 17 * 60}},
		},
	}
	q := &domain.Queue{
		ID: "q1", TenantID: "t1", Active: true,
		MaxConcurrentUsers: 10, ReleaseRatePerMinute: 60,
		Schedule:      sched,
		LastReleaseAt: closeInstant.Add(-time.Minute),
	}
	ss := store.NewMemoryStore()
	ws := waitset.New()
	u1 := mustSession("u1", "q1", "alice", domain.PriorityNormal, closeInstant.Add(-time.Hour))
	require.NoError(t, ss.Add(ctx, u1))
	ws.Insert(u1)

	c := NewController(q, ws, ss, nil, nil, zeroServing{}, func() time.Time { return closeInstant })
	res := c.Tick(ctx, closeInstant)

	require.Equal(t, StateSuspended, res.State)
	require.Empty(t, res.Released)
	require.Equal(t, 1, ws.Size())
	require.True(t, q.LastReleaseAt.Equal(closeInstant))
}

func TestController_PublishesReleaseEvents(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	q := &domain.Queue{
		ID: "q1", TenantID: "t1", Active: true,
		MaxConcurrentUsers: 10, ReleaseRatePerMinute: 60,
		LastReleaseAt: t0.Add(-time.Minute),
	}
	ss := store.NewMemoryStore()
	ws := waitset.New()
	u1 := mustSession("u1", "q1", "alice", domain.PriorityNormal, t0)
	require.NoError(t, ss.Add(ctx, u1))
	ws.Insert(u1)

	b := bus.New()
	sub := b.Subscribe("watcher")

	c := NewController(q, ws, ss, nil, b, zeroServing{}, func() time.Time { return t0 })
	res := c.Tick(ctx, t0.Add(time.Minute))
	require.Len(t, res.Released, 1)

	select {
	case ev := <-sub.Events():
		require.Equal(t, domain.EventUserReleased, ev.Kind)
		require.Equal(t, "alice", ev.UserIdentifier)
	case <-time.After(time.Second):
		t.Fatal("expected a UserReleased event")
	}
}

func TestController_ManualReleaseIgnoresBudgetButRespectsCapAndWaiting(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	q := &domain.Queue{
		ID: "q1", TenantID: "t1", Active: true,
		MaxConcurrentUsers: 2, ReleaseRatePerMinute: 1,
		LastReleaseAt: t0,
	}
	ss := store.NewMemoryStore()
	ws := waitset.New()
	u1 := mustSession("u1", "q1", "alice", domain.PriorityNormal, t0)
	u2 := mustSession("u2", "q1", "bob", domain.PriorityNormal, t0.Add(time.Second))
	u3 := mustSession("u3", "q1", "carol", domain.PriorityNormal, t0.Add(2*time.Second))
	for _, s := range []*domain.UserSession{u1, u2, u3} {
		require.NoError(t, ss.Add(ctx, s))
		ws.Insert(s)
	}

	c := NewController(q, ws, ss, nil, nil, zeroServing{}, func() time.Time { return t0 })
	released, err := c.ReleaseUsers(ctx, 5)
	require.NoError(t, err)
	require.Len(t, released, 2) // capped by MaxConcurrentUsers, not by the rate budget
	require.Equal(t, "u1", released[0].ID)
	require.Equal(t, "u2", released[1].ID)
	require.True(t, q.LastReleaseAt.Equal(t0)) // manual release never touches LastReleaseAt
}
