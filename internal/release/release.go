// Package release implements C5, "the hard part": the per-(tenant,queue)
// controller that moves sessions Waiting -> Released at
// ReleaseRatePerMinute, respecting MaxConcurrentUsers and the queue's
// weekly schedule. No teacher analogue exists (the task board has no
// release/ticker concept); this is built directly from spec §4.5's
// formulas and tested against the §8 S1-S4 scenarios with an injectable
// clock.
package release

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/aliabuzahra/queue-sub006/internal/apierr"
	"github.com/aliabuzahra/queue-sub006/internal/bus"
	"github.com/aliabuzahra/queue-sub006/internal/cache"
	"github.com/aliabuzahra/queue-sub006/internal/domain"
	"github.com/aliabuzahra/queue-sub006/internal/schedule"
	"github.com/aliabuzahra/queue-sub006/internal/store"
	"github.com/aliabuzahra/queue-sub006/internal/waitset"
)

// State is the controller lifecycle from spec §4.5.
type State int

const (
	StateStopped State = iota
	StateRunning
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateRunning:
		return "Running"
	case StateSuspended:
		return "Suspended"
	default:
		return "Unknown"
	}
}

// ServingCounter reports how many sessions are currently Serving for a
// queue, used to compute cap headroom. The engine owns Serving-count
// bookkeeping (it is not part of C3's Waiting-only waitset).
type ServingCounter interface {
	ServingCount(queueID string) int
}

// Controller runs the tick loop for a single (tenant, queue) pair.
type Controller struct {
	mu    sync.Mutex
	queue *domain.Queue
	waits *waitset.Set
	store store.SessionStore
	cache cache.PositionCache
	bus   *bus.Bus
	serve ServingCounter
	clock func() time.Time

	state State
}

func NewController(queue *domain.Queue, waits *waitset.Set, sessionStore store.SessionStore, positionCache cache.PositionCache, b *bus.Bus, serve ServingCounter, clock func() time.Time) *Controller {
	if clock == nil {
		clock = time.Now
	}
	return &Controller{
		queue: queue,
		waits: waits,
		store: sessionStore,
		cache: positionCache,
		bus:   b,
		serve: serve,
		clock: clock,
		state: StateStopped,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TickResult reports what a single Tick did, for tests and operator logs.
type TickResult struct {
	State       State
	Budget      int
	CapHeadroom int
	Released    []*domain.UserSession
	Err         error
}

// Tick runs one selection+release pass at instant now. It is the unit the
// §8 scenarios exercise directly; internal/engine's runController wraps it
// in a timer loop.
func (c *Controller) Tick(ctx context.Context, now time.Time) TickResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.queue.Active {
		c.state = StateSuspended
		c.queue.LastReleaseAt = now
		return TickResult{State: c.state}
	}

	active, err := schedule.IsActive(c.queue.Schedule, now)
	if err != nil {
		// "schedule unavailable" -> treated as closed (spec §4.1).
		c.state = StateSuspended
		c.queue.LastReleaseAt = now
		return TickResult{State: c.state, Err: err}
	}
	if !active {
		c.state = StateSuspended
		// Advance LastReleaseAt so the queue doesn't discharge a backlog
		// the instant it reopens (spec §4.5 "Eligibility gate").
		c.queue.LastReleaseAt = now
		return TickResult{State: c.state}
	}

	c.state = StateRunning

	budget := computeBudget(c.queue.ReleaseRatePerMinute, c.queue.LastReleaseAt, now)
	capHeadroom := 0
	if c.serve != nil {
		capHeadroom = c.queue.MaxConcurrentUsers - c.serve.ServingCount(c.queue.ID)
		if capHeadroom < 0 {
			capHeadroom = 0
		}
	} else {
		capHeadroom = c.queue.MaxConcurrentUsers
	}

	n := minInt(budget, capHeadroom, c.waits.Size())
	if n <= 0 {
		return TickResult{State: c.state, Budget: budget, CapHeadroom: capHeadroom}
	}

	released, err := c.releaseN(ctx, n, now)
	if err != nil {
		// Transient store errors: keep waiting set unchanged, retry next
		// tick (spec §4.5 "Failure semantics"). LastReleaseAt is NOT
		// advanced so the unspent budget carries forward.
		return TickResult{State: c.state, Budget: budget, CapHeadroom: capHeadroom, Err: err}
	}

	c.queue.LastReleaseAt = now
	return TickResult{State: c.state, Budget: budget, CapHeadroom: capHeadroom, Released: released}
}

// ReleaseUsers is the explicit manual release (spec §4.5): identical
// selection to a forced tick with N = min(count, cap, waiting), but does
// NOT touch LastReleaseAt, so the automatic tick budget is unaffected —
// manual releases are a superset used to drain a queue operationally.
func (c *Controller) ReleaseUsers(ctx context.Context, count int) ([]*domain.UserSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	capHeadroom := c.queue.MaxConcurrentUsers
	if c.serve != nil {
		capHeadroom = c.queue.MaxConcurrentUsers - c.serve.ServingCount(c.queue.ID)
		if capHeadroom < 0 {
			capHeadroom = 0
		}
	}
	n := minInt(count, capHeadroom, c.waits.Size())
	if n <= 0 {
		return nil, nil
	}
	return c.releaseN(ctx, n, c.clock())
}

// releaseN selects the first n sessions in §3 total order, bulk-transitions
// them, and publishes UserReleased events on success. Caller holds c.mu.
func (c *Controller) releaseN(ctx context.Context, n int, now time.Time) ([]*domain.UserSession, error) {
	selected := c.waits.Peek(n)
	if len(selected) == 0 {
		return nil, nil
	}
	ids := make([]string, len(selected))
	for i, s := range selected {
		ids[i] = s.ID
	}

	released, err := c.store.BulkTransition(ctx, ids, domain.StatusWaiting, domain.StatusReleased, now)
	if err != nil {
		return nil, apierr.Transient("bulk release failed", err)
	}

	for _, s := range released {
		c.waits.Remove(s.ID)
		if c.cache != nil {
			_ = c.cache.Evict(ctx, c.queue.ID, s.UserIdentifier)
		}
		if c.bus != nil {
			c.bus.Publish(domain.Event{
				Kind:           domain.EventUserReleased,
				TenantID:       c.queue.TenantID,
				QueueID:        c.queue.ID,
				UserIdentifier: s.UserIdentifier,
				Payload:        s,
				Timestamp:      now,
			})
		}
	}

	// Every session still waiting may have shifted rank now that `released`
	// is gone from the head of the §3 order (spec §6 "Persisted state" cache
	// invariant; §1 "push real-time position updates"). Re-derive the whole
	// order rather than diffing old/new ranks per session.
	c.notifyPositionChanges(ctx, now)
	return released, nil
}

// notifyPositionChanges refreshes Position on every still-Waiting session,
// updates (rather than evicts) its position cache entry, and publishes
// UserPositionChanged so subscribed push clients see their new rank. Caller
// holds c.mu.
func (c *Controller) notifyPositionChanges(ctx context.Context, now time.Time) {
	waiting := c.waits.Peek(c.waits.Size())
	for i, s := range waiting {
		s.Position = i + 1
		if c.cache != nil {
			_ = c.cache.Set(ctx, c.queue.ID, s.UserIdentifier, s.Position, cache.DefaultTTL)
		}
		if c.bus != nil {
			c.bus.Publish(domain.Event{
				Kind:           domain.EventUserPositionChanged,
				TenantID:       c.queue.TenantID,
				QueueID:        c.queue.ID,
				UserIdentifier: s.UserIdentifier,
				Payload:        s,
				Timestamp:      now,
			})
		}
	}
}

// computeBudget implements the spec §4.5 formula as a minute-bounded token
// bucket: budget accrues at ratePerMinute from LastReleaseAt (which is
// reset to `now` on every successful release and whenever the queue is
// closed) and is capped at one minute's worth, ratePerMinute, so an open
// queue that sat with nobody to release never accrues more than that.
func computeBudget(ratePerMinute int, lastReleaseAt, now time.Time) int {
	elapsed := now.Sub(lastReleaseAt)
	if elapsed <= 0 {
		return 0
	}
	budget := math.Floor(float64(ratePerMinute) * elapsed.Seconds() / 60.0)
	if budget > float64(ratePerMinute) {
		budget = float64(ratePerMinute)
	}
	return int(budget)
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	if m < 0 {
		return 0
	}
	return m
}
