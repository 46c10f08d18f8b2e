// Package store implements C4: the durable session-store facade. It is
// the only component that writes session rows; internal/waitset is kept
// consistent by the call site (internal/engine), per spec §4.4.
package store

import (
	"context"
	"time"

	"github.com/aliabuzahra/queue-sub006/internal/domain"
)

// ErrAlreadyEnqueued is returned by Add when a non-Dropped session already
// exists for (queue, user_identifier).
var ErrAlreadyEnqueued = errorString("store: already enqueued")

// ErrInvalidTransition is returned by Transition/BulkTransition when the
// current status does not match the expected `from`.
var ErrInvalidTransition = errorString("store: invalid transition")

// ErrNotFound is returned by Get/Transition when no such session exists.
var ErrNotFound = errorString("store: not found")

type errorString string

func (e errorString) Error() string { return string(e) }

// SessionStore is the C4 contract (spec §4.4 table).
type SessionStore interface {
	// Add inserts session with Status=Waiting, keeping the EnqueuedAt the
	// caller set, failing with
	// ErrAlreadyEnqueued if a Waiting/Serving session already exists for
	// (session.QueueID, session.UserIdentifier).
	Add(ctx context.Context, session *domain.UserSession) error

	// Transition moves a single session from `from` to `to`, setting the
	// corresponding timestamp. Fails with ErrInvalidTransition if the
	// current status isn't `from`, or ErrNotFound.
	Transition(ctx context.Context, sessionID string, from, to domain.Status, now time.Time) (*domain.UserSession, error)

	// BulkTransition moves every id in ids from `from` to `to` in one
	// commit; if any id isn't currently `from`, the whole batch is rolled
	// back and the error aggregates every failing id (see
	// hashicorp/go-multierror use in postgres.go).
	BulkTransition(ctx context.Context, ids []string, from, to domain.Status, now time.Time) ([]*domain.UserSession, error)

	// Get returns the latest non-Dropped session for (queueID,
	// userIdentifier); if none, the latest Dropped one; if none, ErrNotFound.
	Get(ctx context.Context, queueID, userIdentifier string) (*domain.UserSession, error)

	// ListWaiting returns every Waiting session for queueID in §3 order.
	ListWaiting(ctx context.Context, queueID string) ([]*domain.UserSession, error)
}

// QueueStore is the minimal persistence contract for queues; full
// CRUD/admin surfaces are external per spec §1, but the engine needs to
// read queue rows. Tenant lookup is auth.TenantLookup.
type QueueStore interface {
	GetQueue(ctx context.Context, tenantID, queueID string) (*domain.Queue, error)
	ListActiveQueues(ctx context.Context) ([]*domain.Queue, error)
	UpdateLastReleaseAt(ctx context.Context, queueID string, at time.Time) error
}
