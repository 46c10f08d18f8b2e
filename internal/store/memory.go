package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/aliabuzahra/queue-sub006/internal/domain"
)

// MemoryStore is the reference SessionStore implementation used by engine
// tests and the §8 scenarios; it holds every session by id plus a
// (queue,identifier)->id index for the non-Dropped lookup Add/Get need.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.UserSession
	active   map[string]string // (queueID|userIdentifier) -> session id, non-Dropped only
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*domain.UserSession),
		active:   make(map[string]string),
	}
}

func activeKey(queueID, userIdentifier string) string { return queueID + "\x00" + userIdentifier }

func (m *MemoryStore) Add(ctx context.Context, session *domain.UserSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := activeKey(session.QueueID, session.UserIdentifier)
	if existingID, ok := m.active[key]; ok {
		if existing := m.sessions[existingID]; existing != nil && existing.Status != domain.StatusDropped {
			return ErrAlreadyEnqueued
		}
	}

	session.Status = domain.StatusWaiting
	m.sessions[session.ID] = session
	m.active[key] = session.ID
	return nil
}

func (m *MemoryStore) Transition(ctx context.Context, sessionID string, from, to domain.Status, now time.Time) (*domain.UserSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if err := applyTransition(s, from, to, now); err != nil {
		return nil, err
	}
	if to == domain.StatusDropped {
		key := activeKey(s.QueueID, s.UserIdentifier)
		if m.active[key] == sessionID {
			delete(m.active, key)
		}
	}
	return s, nil
}

func (m *MemoryStore) BulkTransition(ctx context.Context, ids []string, from, to domain.Status, now time.Time) ([]*domain.UserSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate every id first so a partial failure rolls back (no row is
	// touched) rather than leaving a half-applied batch.
	targets := make([]*domain.UserSession, 0, len(ids))
	var multiErr *multierror.Error
	for _, id := range ids {
		s, ok := m.sessions[id]
		if !ok {
			multiErr = multierror.Append(multiErr, errNotFoundID(id))
			continue
		}
		if s.Status != from {
			multiErr = multierror.Append(multiErr, errInvalidTransitionID(id, s.Status, from))
			continue
		}
		targets = append(targets, s)
	}
	if multiErr.ErrorOrNil() != nil {
		return nil, multiErr
	}

	for _, s := range targets {
		if err := applyTransition(s, from, to, now); err != nil {
			// Should not happen given the pre-check above; treat as
			// transient/structural and abort without partial commit.
			return nil, err
		}
	}
	return targets, nil
}

func (m *MemoryStore) Get(ctx context.Context, queueID, userIdentifier string) (*domain.UserSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := activeKey(queueID, userIdentifier)
	if id, ok := m.active[key]; ok {
		if s, ok := m.sessions[id]; ok {
			return s, nil
		}
	}
	// Fall back to the latest Dropped session for this identity, if any.
	var latest *domain.UserSession
	for _, s := range m.sessions {
		if s.QueueID != queueID || s.UserIdentifier != userIdentifier {
			continue
		}
		if s.Status != domain.StatusDropped {
			continue
		}
		if latest == nil || s.EnqueuedAt.After(latest.EnqueuedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (m *MemoryStore) ListWaiting(ctx context.Context, queueID string) ([]*domain.UserSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.UserSession
	for _, s := range m.sessions {
		if s.QueueID == queueID && s.Status == domain.StatusWaiting {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out, nil
}

func applyTransition(s *domain.UserSession, from, to domain.Status, now time.Time) error {
	if s.Status != from {
		return ErrInvalidTransition
	}
	switch to {
	case domain.StatusServing:
		return s.MarkServing(now)
	case domain.StatusReleased:
		return s.MarkReleased(now)
	case domain.StatusDropped:
		return s.MarkDropped(now)
	default:
		return ErrInvalidTransition
	}
}

func errNotFoundID(id string) error {
	return &idError{id: id, msg: "not found"}
}

func errInvalidTransitionID(id string, got, want domain.Status) error {
	return &idError{id: id, msg: "status is " + got.String() + ", expected " + want.String()}
}

type idError struct {
	id  string
	msg string
}

func (e *idError) Error() string { return "session " + e.id + ": " + e.msg }
