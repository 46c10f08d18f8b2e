// Package webhook implements C8: per-tenant webhook subscriptions and a
// dispatcher with HMAC-signed payloads and exponential backoff. The package
// has no worker pool: Dispatcher.Deliver sends to one subscription at a time.
// No teacher analogue (the task board has no outbound-webhook concept);
// the outbound JSON shape follows the teacher's
// json.NewEncoder(w).Encode(...) idiom (here json.Marshal for a POST
// body), and retry policy uses cenkalti/backoff/v4, the same library
// named in the pack's webitel-im-delivery-service manifest.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/aliabuzahra/queue-sub006/internal/domain"
)

// Subscription is a tenant's registration for one event type, per spec
// §4.8.
type Subscription struct {
	ID        string
	TenantID  string
	EventType domain.EventKind
	URL       string
	Secret    string // optional; when empty, no X-Signature is sent
	Active    bool
}

// Payload is the wire body from spec §6 "Webhook payload".
type Payload struct {
	ID        string          `json:"id"`
	Event     domain.EventKind `json:"event"`
	TenantID  string          `json:"tenant_id"`
	Data      interface{}     `json:"data"`
	Timestamp string          `json:"timestamp"` // ISO-8601 UTC
}

// Outcome is the delivery result logged for operator inspection (spec
// §4.8 "Deliveries are logged").
type Outcome struct {
	SubscriptionID string
	StatusCode     int
	Attempts       int
	Duration       time.Duration
	Err            error
	Delivered      bool
}

// Registry holds subscriptions, read-mostly, guarded by a reader/writer
// lock (spec §5 "Shared resources & locking" — per-tenant
// webhook-subscription map).
type Registry struct {
	mu   sync.RWMutex
	subs map[string]*Subscription // by id
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]*Subscription)}
}

func (r *Registry) Add(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	r.subs[sub.ID] = sub
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, id)
}

// MatchingFor returns every active subscription for tenantID subscribed
// to kind.
func (r *Registry) MatchingFor(tenantID string, kind domain.EventKind) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Subscription
	for _, s := range r.subs {
		if s.Active && s.TenantID == tenantID && s.EventType == kind {
			out = append(out, s)
		}
	}
	return out
}

// Dispatcher sends webhook deliveries for matching events, retrying per
// spec §4.8: default 3 attempts, base delay 1s, factor 2, jitter ±20%,
// 30s per-attempt timeout; 2xx succeeds, 4xx abandons, 5xx and network
// errors retry.
type Dispatcher struct {
	registry   *Registry
	client     *http.Client
	maxRetries uint64
	onOutcome  func(Outcome)
	now        func() time.Time
}

const (
	defaultMaxAttempts  = 3
	defaultBaseDelay    = time.Second
	defaultBackoffFactor = 2.0
	defaultJitter       = 0.2
	defaultTimeout      = 30 * time.Second
)

func NewDispatcher(registry *Registry, onOutcome func(Outcome)) *Dispatcher {
	return &Dispatcher{
		registry:   registry,
		client:     &http.Client{Timeout: defaultTimeout},
		maxRetries: defaultMaxAttempts - 1,
		onOutcome:  onOutcome,
		now:        time.Now,
	}
}

// Deliver sends ev to every active subscription matching its tenant and
// kind, one delivery (with its own retry loop) at a time; callers wanting
// concurrency across subscriptions run Deliver from a worker pool
// (spec §5 "shared worker pools for webhook dispatch").
func (d *Dispatcher) Deliver(ctx context.Context, ev domain.Event) {
	for _, sub := range d.registry.MatchingFor(ev.TenantID, ev.Kind) {
		d.deliverOne(ctx, sub, ev)
	}
}

func (d *Dispatcher) deliverOne(ctx context.Context, sub *Subscription, ev domain.Event) {
	body, err := json.Marshal(Payload{
		ID:       uuid.NewString(),
		Event:    ev.Kind,
		TenantID: ev.TenantID,
		Data:     ev.Payload,
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
	})
	if err != nil {
		d.report(Outcome{SubscriptionID: sub.ID, Err: err})
		return
	}

	start := d.now()
	attempts := 0
	var lastStatus int

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = defaultBaseDelay
	policy.Multiplier = defaultBackoffFactor
	policy.RandomizationFactor = defaultJitter
	policy.MaxElapsedTime = 0 // bounded by maxRetries, not elapsed time

	bounded := backoff.WithMaxRetries(policy, d.maxRetries)
	if ctx != nil {
		bounded = backoff.WithContext(bounded, ctx)
	}

	operation := func() error {
		attempts++
		status, err := d.send(ctx, sub, body)
		lastStatus = status
		if err != nil {
			return err // network error: retryable
		}
		switch {
		case status >= 200 && status < 300:
			return nil
		case status >= 400 && status < 500:
			return backoff.Permanent(fmt.Errorf("webhook: abandoned, status %d", status))
		default:
			return fmt.Errorf("webhook: retryable status %d", status)
		}
	}

	err = backoff.Retry(operation, bounded)
	d.report(Outcome{
		SubscriptionID: sub.ID,
		StatusCode:     lastStatus,
		Attempts:       attempts,
		Duration:       d.now().Sub(start),
		Err:            unwrapPermanent(err),
		Delivered:      err == nil,
	})
}

func (d *Dispatcher) send(ctx context.Context, sub *Subscription, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if sub.Secret != "" {
		req.Header.Set("X-Signature", sign(sub.Secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (d *Dispatcher) report(o Outcome) {
	if d.onOutcome != nil {
		d.onOutcome(o)
	}
}

// sign computes the spec §6 "X-Signature: sha256=<hex>" header value.
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
