// Package httpapi is the minimal ambient HTTP surface spec §1 carves out
// as external (the controller surface's business rules are someone
// else's concern); it exists only to bind the §6 HTTP surface to
// internal/engine so the core is wired end to end. Directly generalizes
// the teacher's mux.Router + authMiddlewareCtx (main.go) from a single
// Authorization-bearer scheme to the two-path tenant resolution in spec
// §6 "Headers".
package httpapi

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/aliabuzahra/queue-sub006/internal/apierr"
	"github.com/aliabuzahra/queue-sub006/internal/auth"
	"github.com/aliabuzahra/queue-sub006/internal/domain"
	"github.com/aliabuzahra/queue-sub006/internal/engine"
	"github.com/aliabuzahra/queue-sub006/internal/ratelimit"
)

type ctxKey string

const ctxKeyTenant ctxKey = "tenant"

// API wires internal/engine onto a gorilla/mux router.
type API struct {
	svc     *engine.Service
	tenants auth.TenantLookup
	limiter ratelimit.Limiter
}

func New(svc *engine.Service, tenants auth.TenantLookup, limiter ratelimit.Limiter) *API {
	return &API{svc: svc, tenants: tenants, limiter: limiter}
}

// Router builds the route table, directly mirroring the teacher's
// r := mux.NewRouter(); r.HandleFunc(...).Methods(...) sequence.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(a.rateLimitMiddleware)

	tenantRoutes := r.PathPrefix("/api/v1/tenants/{tenantId}").Subrouter()
	tenantRoutes.Use(a.tenantMiddleware, a.rateLimitMiddleware)

	tenantRoutes.HandleFunc("/queues/{queueId}/enqueue", a.enqueue).Methods("POST")
	tenantRoutes.HandleFunc("/queues/{queueId}/release", a.release).Methods("POST")
	tenantRoutes.HandleFunc("/queues/{queueId}/users/{userIdentifier}", a.getUser).Methods("GET")
	tenantRoutes.HandleFunc("/queues/{queueId}/users/{userIdentifier}", a.dropUser).Methods("DELETE")

	return r
}

// tenantMiddleware generalizes the teacher's authMiddlewareCtx: instead
// of stashing a user id from a bearer token, it resolves the tenant per
// spec §6 "Tenant resolution" and stashes it in the request context.
func (a *API) tenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, err := auth.ResolveTenant(r.Context(), r, a.tenants)
		if err != nil || tenant == nil {
			writeError(w, apierr.Unauthorized("tenant could not be resolved"))
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyTenant, tenant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimitMiddleware applies the §4.2 tenant-then-IP key policy and sets
// the X-RateLimit-Limit and X-RateLimit-Remaining headers from the
// limiter's read-only Info, per spec §6 "Headers". It runs on the root
// router (keyed by IP) and again after tenantMiddleware on tenant routes
// (keyed by tenant). It consumes no budget and rejects nothing; the
// headers are left out when Info fails or reports an unknown remainder.
func (a *API) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := ratelimit.KeyForIP(r.RemoteAddr)
		if tenant, ok := tenantFromContext(r.Context()); ok {
			key = ratelimit.KeyForTenant(tenant.ID)
		}

		decision, err := a.limiter.Info(key, ratelimit.LimitDefault, ratelimit.DefaultWindow)
		if err == nil && decision.Remaining >= 0 {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(ratelimit.LimitDefault))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		}
		next.ServeHTTP(w, r)
	})
}

func tenantFromContext(ctx context.Context) (*domain.Tenant, bool) {
	tenant, ok := ctx.Value(ctxKeyTenant).(*domain.Tenant)
	return tenant, ok
}

func (a *API) enqueue(w http.ResponseWriter, r *http.Request) {
	tenant, _ := tenantFromContext(r.Context())
	queueID := mux.Vars(r)["queueId"]

	var req struct {
		UserIdentifier string `json:"userIdentifier"`
		Metadata       string `json:"metadata"`
		Priority       string `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Validation("body", "malformed JSON"))
		return
	}

	session, err := a.svc.EnqueueUser(r.Context(), tenant.ID, queueID, req.UserIdentifier, req.Metadata, req.Priority)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (a *API) release(w http.ResponseWriter, r *http.Request) {
	tenant, _ := tenantFromContext(r.Context())
	queueID := mux.Vars(r)["queueId"]

	var req struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Validation("body", "malformed JSON"))
		return
	}

	count, err := a.svc.ReleaseUsers(r.Context(), tenant.ID, queueID, req.Count)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"ReleasedCount": count})
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	session, err := a.svc.GetUserStatus(r.Context(), vars["queueId"], vars["userIdentifier"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *API) dropUser(w http.ResponseWriter, r *http.Request) {
	tenant, _ := tenantFromContext(r.Context())
	vars := mux.Vars(r)
	if err := a.svc.DropUser(r.Context(), tenant.ID, vars["queueId"], vars["userIdentifier"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the spec §7 taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := err.Error()

	switch {
	case apierr.Is(err, apierr.KindValidation):
		status = http.StatusBadRequest
	case apierr.Is(err, apierr.KindNotFound):
		status = http.StatusNotFound
	case apierr.Is(err, apierr.KindConflict), apierr.Is(err, apierr.KindSchedulerClosed):
		status = http.StatusConflict
	case apierr.Is(err, apierr.KindRateLimited):
		status = http.StatusTooManyRequests
	case apierr.Is(err, apierr.KindUnauthorized):
		status = http.StatusUnauthorized
	case apierr.Is(err, apierr.KindForbidden):
		status = http.StatusForbidden
	case apierr.Is(err, apierr.KindTransient):
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]string{"error": message})
}
