// Package postgres is the production-shaped C4 backing store, generalizing
// the teacher's database.go (initDB/createTables against users/boards/
// columns/tasks) to tenants/queues/user_sessions. The persistence backend
// itself is an external collaborator per spec §1 — this package is the
// concrete SessionStore the engine can be wired to, not new business logic.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/hashicorp/go-multierror"

	"github.com/aliabuzahra/queue-sub006/internal/auth"
	"github.com/aliabuzahra/queue-sub006/internal/domain"
	"github.com/aliabuzahra/queue-sub006/internal/store"
)

// Config mirrors the env vars the teacher's initDB reads directly
// (DB_HOST/DB_PORT/DB_USER/DB_PASSWORD/DB_NAME).
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (c Config) connString() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, sslmode)
}

// Open connects, pings, and ensures the schema exists — the same sequence
// as the teacher's initDB, generalized to this module's tables.
func Open(cfg Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.connString())
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tenants (
		id UUID PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		domain VARCHAR(255) UNIQUE NOT NULL,
		api_key_hash VARCHAR(255) NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ DEFAULT now(),
		updated_at TIMESTAMPTZ DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS queues (
		id UUID PRIMARY KEY,
		tenant_id UUID REFERENCES tenants(id) ON DELETE CASCADE,
		name VARCHAR(255) NOT NULL,
		description TEXT,
		max_concurrent_users INTEGER NOT NULL,
		release_rate_per_minute INTEGER NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		last_release_at TIMESTAMPTZ,
		schedule JSONB,
		created_at TIMESTAMPTZ DEFAULT now(),
		updated_at TIMESTAMPTZ DEFAULT now(),
		UNIQUE (tenant_id, id)
	);

	CREATE TABLE IF NOT EXISTS user_sessions (
		id UUID PRIMARY KEY,
		queue_id UUID REFERENCES queues(id) ON DELETE CASCADE,
		user_identifier VARCHAR(255) NOT NULL,
		metadata VARCHAR(1000),
		priority SMALLINT NOT NULL,
		status SMALLINT NOT NULL,
		enqueued_at TIMESTAMPTZ NOT NULL,
		served_at TIMESTAMPTZ,
		released_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_user_sessions_active_identity
		ON user_sessions (queue_id, user_identifier)
		WHERE status <> 3;

	CREATE TABLE IF NOT EXISTS webhook_subscriptions (
		id UUID PRIMARY KEY,
		tenant_id UUID REFERENCES tenants(id) ON DELETE CASCADE,
		event_type VARCHAR(64) NOT NULL,
		url TEXT NOT NULL,
		secret VARCHAR(255),
		active BOOLEAN NOT NULL DEFAULT TRUE
	);
	`
	_, err := db.Exec(schema)
	return err
}

// SessionStore is the lib/pq-backed store.SessionStore implementation.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore { return &SessionStore{db: db} }

var _ store.SessionStore = (*SessionStore)(nil)

func (s *SessionStore) Add(ctx context.Context, session *domain.UserSession) error {
	var existingStatus int
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM user_sessions WHERE queue_id = $1 AND user_identifier = $2 AND status <> 3
		 ORDER BY enqueued_at DESC LIMIT 1`,
		session.QueueID, session.UserIdentifier).Scan(&existingStatus)
	if err == nil {
		return store.ErrAlreadyEnqueued
	}
	if err != sql.ErrNoRows {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_sessions (id, queue_id, user_identifier, metadata, priority, status, enqueued_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.ID, session.QueueID, session.UserIdentifier, session.Metadata,
		int(session.Priority), int(domain.StatusWaiting), session.EnqueuedAt)
	return err
}

func (s *SessionStore) Transition(ctx context.Context, sessionID string, from, to domain.Status, now time.Time) (*domain.UserSession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	sess, err := transitionTx(ctx, tx, sessionID, from, to, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SessionStore) BulkTransition(ctx context.Context, ids []string, from, to domain.Status, now time.Time) ([]*domain.UserSession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var multiErr *multierror.Error
	out := make([]*domain.UserSession, 0, len(ids))
	for _, id := range ids {
		sess, err := transitionTx(ctx, tx, id, from, to, now)
		if err != nil {
			multiErr = multierror.Append(multiErr, fmt.Errorf("session %s: %w", id, err))
			continue
		}
		out = append(out, sess)
	}
	if multiErr.ErrorOrNil() != nil {
		// tx.Rollback() via defer discards every change in this batch —
		// BulkTransition is all-or-nothing per spec §4.4.
		return nil, multiErr
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func transitionTx(ctx context.Context, tx *sql.Tx, sessionID string, from, to domain.Status, now time.Time) (*domain.UserSession, error) {
	sess, err := scanSessionForUpdate(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := applyDomainTransition(sess, from, to, now); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE user_sessions SET status = $1, served_at = $2, released_at = $3 WHERE id = $4`,
		int(sess.Status), sess.ServedAt, sess.ReleasedAt, sess.ID)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func applyDomainTransition(s *domain.UserSession, from, to domain.Status, now time.Time) error {
	if s.Status != from {
		return store.ErrInvalidTransition
	}
	switch to {
	case domain.StatusServing:
		return s.MarkServing(now)
	case domain.StatusReleased:
		return s.MarkReleased(now)
	case domain.StatusDropped:
		return s.MarkDropped(now)
	default:
		return store.ErrInvalidTransition
	}
}

func scanSessionForUpdate(ctx context.Context, tx *sql.Tx, sessionID string) (*domain.UserSession, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT id, queue_id, user_identifier, metadata, priority, status, enqueued_at, served_at, released_at
		 FROM user_sessions WHERE id = $1 FOR UPDATE`, sessionID)
	return scanSession(row)
}

func (s *SessionStore) Get(ctx context.Context, queueID, userIdentifier string) (*domain.UserSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, queue_id, user_identifier, metadata, priority, status, enqueued_at, served_at, released_at
		 FROM user_sessions
		 WHERE queue_id = $1 AND user_identifier = $2
		 ORDER BY (status = 3) ASC, enqueued_at DESC
		 LIMIT 1`, queueID, userIdentifier)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	return sess, err
}

func (s *SessionStore) ListWaiting(ctx context.Context, queueID string) ([]*domain.UserSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, queue_id, user_identifier, metadata, priority, status, enqueued_at, served_at, released_at
		 FROM user_sessions WHERE queue_id = $1 AND status = 0
		 ORDER BY priority DESC, enqueued_at ASC, id ASC`, queueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.UserSession
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*domain.UserSession, error) {
	return scanSessionRows(row)
}

func scanSessionRows(row scanner) (*domain.UserSession, error) {
	var s domain.UserSession
	var priority, status int
	var metadata sql.NullString
	var servedAt, releasedAt sql.NullTime
	if err := row.Scan(&s.ID, &s.QueueID, &s.UserIdentifier, &metadata, &priority, &status,
		&s.EnqueuedAt, &servedAt, &releasedAt); err != nil {
		return nil, err
	}
	s.Metadata = metadata.String
	s.Priority = domain.Priority(priority)
	s.Status = domain.Status(status)
	if servedAt.Valid {
		t := servedAt.Time
		s.ServedAt = &t
	}
	if releasedAt.Valid {
		t := releasedAt.Time
		s.ReleasedAt = &t
	}
	return &s, nil
}

// QueueStore is the lib/pq-backed store.QueueStore implementation.
type QueueStore struct {
	db *sql.DB
}

func NewQueueStore(db *sql.DB) *QueueStore { return &QueueStore{db: db} }

var _ store.QueueStore = (*QueueStore)(nil)

func (q *QueueStore) GetQueue(ctx context.Context, tenantID, queueID string) (*domain.Queue, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, description, max_concurrent_users, release_rate_per_minute,
		        active, last_release_at, schedule, created_at, updated_at
		 FROM queues WHERE tenant_id = $1 AND id = $2`, tenantID, queueID)
	return scanQueue(row)
}

func (q *QueueStore) ListActiveQueues(ctx context.Context) ([]*domain.Queue, error) {
	rows, err := q.db.Query(
		`SELECT id, tenant_id, name, description, max_concurrent_users, release_rate_per_minute,
		        active, last_release_at, schedule, created_at, updated_at
		 FROM queues WHERE active = TRUE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Queue
	for rows.Next() {
		qu, err := scanQueue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, qu)
	}
	return out, rows.Err()
}

func (q *QueueStore) UpdateLastReleaseAt(ctx context.Context, queueID string, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `UPDATE queues SET last_release_at = $1, updated_at = now() WHERE id = $2`, at, queueID)
	return err
}

func scanQueue(row scanner) (*domain.Queue, error) {
	var qu domain.Queue
	var lastRelease sql.NullTime
	var scheduleJSON []byte
	if err := row.Scan(&qu.ID, &qu.TenantID, &qu.Name, &qu.Description, &qu.MaxConcurrentUsers,
		&qu.ReleaseRatePerMinute, &qu.Active, &lastRelease, &scheduleJSON, &qu.CreatedAt, &qu.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if lastRelease.Valid {
		qu.LastReleaseAt = lastRelease.Time
	}
	if len(scheduleJSON) > 0 {
		var sched domain.Schedule
		if err := json.Unmarshal(scheduleJSON, &sched); err != nil {
			return nil, err
		}
		qu.Schedule = &sched
	}
	return &qu, nil
}

// TenantStore is the lib/pq-backed auth.TenantLookup implementation
// (spec §6 "Tenant resolution"). GetByDomain is a direct indexed lookup
// (tenants.domain is UNIQUE); GetByAPIKey scans active tenants and checks
// each bcrypt hash with auth.CheckAPIKey, since api_key_hash is a salted
// bcrypt digest and cannot itself be indexed — acceptable at the tenant
// counts this system is scoped for, not at internet scale.
type TenantStore struct {
	db *sql.DB
}

func NewTenantStore(db *sql.DB) *TenantStore { return &TenantStore{db: db} }

var _ auth.TenantLookup = (*TenantStore)(nil)

func (t *TenantStore) GetByDomain(ctx context.Context, host string) (*domain.Tenant, error) {
	row := t.db.QueryRowContext(ctx,
		`SELECT id, name, domain, api_key_hash, active, created_at, updated_at
		 FROM tenants WHERE domain = $1 AND active = TRUE`, host)
	return scanTenant(row)
}

func (t *TenantStore) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Tenant, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, name, domain, api_key_hash, active, created_at, updated_at
		 FROM tenants WHERE active = TRUE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		if auth.CheckAPIKey(apiKey, tenant.APIKeyHash) {
			return tenant, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nil, store.ErrNotFound
}

func scanTenant(row scanner) (*domain.Tenant, error) {
	var t domain.Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.Domain, &t.APIKeyHash, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}
