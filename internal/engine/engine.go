// Package engine orchestrates C1-C8 behind the operations
// internal/httpapi exposes over HTTP, replacing the teacher's Server
// struct (handlers.go) that couples HTTP handlers directly to *sql.DB.
// Here each operation is a plain Go method so it can be tested without an
// HTTP layer at all.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aliabuzahra/queue-sub006/internal/apierr"
	"github.com/aliabuzahra/queue-sub006/internal/bus"
	"github.com/aliabuzahra/queue-sub006/internal/cache"
	"github.com/aliabuzahra/queue-sub006/internal/domain"
	"github.com/aliabuzahra/queue-sub006/internal/ratelimit"
	"github.com/aliabuzahra/queue-sub006/internal/release"
	"github.com/aliabuzahra/queue-sub006/internal/schedule"
	"github.com/aliabuzahra/queue-sub006/internal/store"
	"github.com/aliabuzahra/queue-sub006/internal/waitset"
)

// Service is the engine's single entry point; internal/httpapi and
// cmd/waitingroomd are its only callers.
type Service struct {
	queues  store.QueueStore
	sess    store.SessionStore
	limiter ratelimit.Limiter
	cache   cache.PositionCache
	bus     *bus.Bus
	clock   func() time.Time

	mu          sync.RWMutex
	waitsets    map[string]*waitset.Set // queueID -> Set
	servingCnts map[string]int          // queueID -> count of Serving sessions
	controllers map[string]*release.Controller
}

func NewService(queues store.QueueStore, sess store.SessionStore, limiter ratelimit.Limiter, positionCache cache.PositionCache, b *bus.Bus, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		queues:      queues,
		sess:        sess,
		limiter:     limiter,
		cache:       positionCache,
		bus:         b,
		clock:       clock,
		waitsets:    make(map[string]*waitset.Set),
		servingCnts: make(map[string]int),
		controllers: make(map[string]*release.Controller),
	}
}

// ServingCount implements release.ServingCounter.
func (s *Service) ServingCount(queueID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.servingCnts[queueID]
}

func (s *Service) waitsetFor(queueID string) *waitset.Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.waitsets[queueID]
	if !ok {
		ws = waitset.New()
		s.waitsets[queueID] = ws
	}
	return ws
}

// notifyPositionChanges refreshes Position on every session still Waiting
// in queueID, updates (rather than evicts) its cached position, and
// publishes UserPositionChanged so push subscribers see their new rank.
// Callers use this after a waitset removal (drop, serving-transition)
// shifts the rank of every session behind the removed one (spec §6
// "Persisted state" cache invariant; §1/C7 real-time position updates).
func (s *Service) notifyPositionChanges(ctx context.Context, tenantID, queueID string, now time.Time) {
	ws := s.waitsetFor(queueID)
	waiting := ws.Peek(ws.Size())
	for i, sess := range waiting {
		sess.Position = i + 1
		if s.cache != nil {
			_ = s.cache.Set(ctx, queueID, sess.UserIdentifier, sess.Position, cache.DefaultTTL)
		}
		if s.bus != nil {
			s.bus.Publish(domain.Event{
				Kind: domain.EventUserPositionChanged, TenantID: tenantID, QueueID: queueID,
				UserIdentifier: sess.UserIdentifier, Payload: sess, Timestamp: now,
			})
		}
	}
}

// controllerFor returns (creating if needed) the release.Controller for
// queue, wired to this service's shared bus/cache/store and this
// service's own ServingCount.
func (s *Service) controllerFor(queue *domain.Queue) *release.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.controllers[queue.ID]
	if !ok {
		ws := s.waitsets[queue.ID]
		if ws == nil {
			ws = waitset.New()
			s.waitsets[queue.ID] = ws
		}
		c = release.NewController(queue, ws, s.sess, s.cache, s.bus, s, s.clock)
		s.controllers[queue.ID] = c
	}
	return c
}

// EnqueueUser is the admission entry point (spec §6 "POST .../enqueue").
func (s *Service) EnqueueUser(ctx context.Context, tenantID, queueID, userIdentifier, metadata, priorityStr string) (*domain.UserSession, error) {
	if userIdentifier == "" || len(userIdentifier) > 255 {
		return nil, apierr.Validation("userIdentifier", "must be 1-255 characters")
	}
	if len(metadata) > 1000 {
		return nil, apierr.Validation("metadata", "must be at most 1000 characters")
	}
	priority, ok := domain.ParsePriority(priorityStr)
	if !ok {
		return nil, apierr.Validation("priority", "unrecognized priority")
	}

	decision, err := s.limiter.Allow(ratelimit.KeyForTenant(tenantID), ratelimit.LimitEnqueue, ratelimit.DefaultWindow)
	if err != nil {
		return nil, apierr.Transient("rate limiter unavailable", err)
	}
	if !decision.Allowed {
		return nil, apierr.RateLimited("enqueue rate limit exceeded")
	}

	queue, err := s.queues.GetQueue(ctx, tenantID, queueID)
	if err != nil {
		return nil, apierr.NotFound("queue not found")
	}

	now := s.clock()
	if !queue.Active {
		return nil, apierr.SchedulerClosed("queue is not active")
	}
	active, err := schedule.IsActive(queue.Schedule, now)
	if err != nil {
		return nil, apierr.SchedulerClosed("schedule unavailable")
	}
	if !active {
		return nil, apierr.SchedulerClosed("outside scheduled hours")
	}

	session := &domain.UserSession{
		ID:             uuid.NewString(),
		QueueID:        queueID,
		UserIdentifier: userIdentifier,
		Metadata:       metadata,
		Priority:       priority,
		Status:         domain.StatusWaiting,
		EnqueuedAt:     now,
	}
	if err := s.sess.Add(ctx, session); err != nil {
		if err == store.ErrAlreadyEnqueued {
			return nil, apierr.Conflict("User is already in queue")
		}
		return nil, apierr.Transient("store unavailable", err)
	}

	ws := s.waitsetFor(queueID)
	ws.Insert(session)
	session.Position = ws.PositionOf(userIdentifier)

	if s.cache != nil {
		_ = s.cache.Set(ctx, queueID, userIdentifier, session.Position, cache.DefaultTTL)
	}
	if s.bus != nil {
		s.bus.Publish(domain.Event{
			Kind: domain.EventUserEnqueued, TenantID: tenantID, QueueID: queueID,
			UserIdentifier: userIdentifier, Payload: session, Timestamp: now,
		})
	}
	return session, nil
}

// DropUser removes a Waiting or Serving session (spec §6 "DELETE
// .../users/{userIdentifier}").
func (s *Service) DropUser(ctx context.Context, tenantID, queueID, userIdentifier string) error {
	current, err := s.sess.Get(ctx, queueID, userIdentifier)
	if err != nil {
		return apierr.NotFound("session not found")
	}
	if current.Status == domain.StatusReleased || current.Status == domain.StatusDropped {
		return apierr.NotFound("session not found")
	}

	now := s.clock()
	updated, err := s.sess.Transition(ctx, current.ID, current.Status, domain.StatusDropped, now)
	if err != nil {
		return apierr.Transient("store unavailable", err)
	}

	wasWaiting := current.Status == domain.StatusWaiting
	ws := s.waitsetFor(queueID)
	ws.Remove(updated.ID)
	if s.cache != nil {
		_ = s.cache.Evict(ctx, queueID, userIdentifier)
	}
	if current.Status == domain.StatusServing {
		s.mu.Lock()
		s.servingCnts[queueID]--
		s.mu.Unlock()
	}
	if s.bus != nil {
		s.bus.Publish(domain.Event{
			Kind: domain.EventUserDropped, TenantID: tenantID, QueueID: queueID,
			UserIdentifier: userIdentifier, Payload: updated, Timestamp: now,
		})
	}
	if wasWaiting {
		// Every session behind the dropped one just moved up a rank.
		s.notifyPositionChanges(ctx, tenantID, queueID, now)
	}
	return nil
}

// GetUserStatus returns the current session for (queueID, userIdentifier),
// refreshing Position from the live waitset when Waiting (spec §6 "GET
// .../users/{userIdentifier}").
func (s *Service) GetUserStatus(ctx context.Context, queueID, userIdentifier string) (*domain.UserSession, error) {
	session, err := s.sess.Get(ctx, queueID, userIdentifier)
	if err != nil {
		return nil, apierr.NotFound("session not found")
	}
	if session.Status == domain.StatusWaiting {
		session.Position = s.waitsetFor(queueID).PositionOf(userIdentifier)
	}
	return session, nil
}

// MarkUserServing transitions Waiting -> Serving, incrementing the
// queue's cap-headroom accounting used by the release controller.
func (s *Service) MarkUserServing(ctx context.Context, tenantID, queueID, userIdentifier string) (*domain.UserSession, error) {
	current, err := s.sess.Get(ctx, queueID, userIdentifier)
	if err != nil {
		return nil, apierr.NotFound("session not found")
	}
	now := s.clock()
	updated, err := s.sess.Transition(ctx, current.ID, domain.StatusWaiting, domain.StatusServing, now)
	if err != nil {
		return nil, apierr.Conflict("session is not Waiting")
	}

	s.waitsetFor(queueID).Remove(updated.ID)
	s.mu.Lock()
	s.servingCnts[queueID]++
	s.mu.Unlock()
	if s.cache != nil {
		_ = s.cache.Evict(ctx, queueID, userIdentifier)
	}
	if s.bus != nil {
		s.bus.Publish(domain.Event{
			Kind: domain.EventUserServed, TenantID: tenantID, QueueID: queueID,
			UserIdentifier: userIdentifier, Payload: updated, Timestamp: now,
		})
	}
	// Every session behind the now-Serving one just moved up a rank.
	s.notifyPositionChanges(ctx, tenantID, queueID, now)
	return updated, nil
}

// ReleaseUsers performs a manual release for queueID (spec §6 "POST
// .../release").
func (s *Service) ReleaseUsers(ctx context.Context, tenantID, queueID string, count int) (int, error) {
	queue, err := s.queues.GetQueue(ctx, tenantID, queueID)
	if err != nil {
		return 0, apierr.NotFound("queue not found")
	}
	c := s.controllerFor(queue)
	released, err := c.ReleaseUsers(ctx, count)
	if err != nil {
		return 0, apierr.Transient("release failed", err)
	}
	return len(released), nil
}
