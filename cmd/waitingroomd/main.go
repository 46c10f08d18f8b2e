// Command waitingroomd is the process entrypoint: it reads configuration
// from the environment, wires C1-C8 into an internal/engine.Service, and
// serves the §6 HTTP and push surfaces. Directly grounded on the
// teacher's main.go (corsMiddleware, mux routes, os.Getenv("PORT") with
// an "8080" default, log.Fatal(http.ListenAndServe(...))) generalized
// from a single Postgres+websocket wiring to this module's full C1-C8
// graph plus an optional Redis backing for C2/the position cache.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aliabuzahra/queue-sub006/internal/bus"
	"github.com/aliabuzahra/queue-sub006/internal/cache"
	"github.com/aliabuzahra/queue-sub006/internal/config"
	"github.com/aliabuzahra/queue-sub006/internal/engine"
	"github.com/aliabuzahra/queue-sub006/internal/httpapi"
	"github.com/aliabuzahra/queue-sub006/internal/logging"
	"github.com/aliabuzahra/queue-sub006/internal/push"
	"github.com/aliabuzahra/queue-sub006/internal/ratelimit"
	"github.com/aliabuzahra/queue-sub006/internal/store/postgres"
	"github.com/aliabuzahra/queue-sub006/internal/webhook"
)

var log = logging.New("waitingroomd")

// corsMiddleware is the teacher's corsMiddleware verbatim in spirit: a
// permissive default suitable for the push/HTTP surfaces this process
// exposes, narrowed by a real deployment's reverse proxy.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Tenant-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	cfg := config.FromEnv()

	db, err := postgres.Open(postgres.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Name:     cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	sessions := postgres.NewSessionStore(db)
	queues := postgres.NewQueueStore(db)
	tenants := postgres.NewTenantStore(db)

	limiter, positionCache := buildRedisBackedDependencies(cfg)

	b := bus.New()
	svc := engine.NewService(queues, sessions, limiter, positionCache, b, nil)

	hub := push.NewHub()
	bridge := push.NewBridge(hub, b, "push-bridge")
	defer bridge.Stop()

	webhooks := webhook.NewRegistry()
	dispatcher := webhook.NewDispatcher(webhooks, func(o webhook.Outcome) {
		if o.Err != nil {
			log.Printf("webhook subscription %s failed after %d attempts: %v", o.SubscriptionID, o.Attempts, o.Err)
			return
		}
		log.Printf("webhook subscription %s delivered in %s (status %d)", o.SubscriptionID, o.Duration, o.StatusCode)
	})
	webhookSub := b.Subscribe("webhook-dispatcher")
	go func() {
		for ev := range webhookSub.Events() {
			dispatcher.Deliver(context.Background(), ev)
		}
	}()
	defer webhookSub.Unsubscribe()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := svc.RunControllers(ctx, cfg.TickInterval); err != nil && ctx.Err() == nil {
			log.Printf("controller set stopped: %v", err)
		}
	}()

	api := httpapi.New(svc, tenants, limiter)
	router := api.Router()
	router.Handle("/queuehub", hub.ServeHTTP(func(r *http.Request) string {
		tenant, err := tenants.GetByAPIKey(r.Context(), r.Header.Get("X-Tenant-Key"))
		if err != nil || tenant == nil {
			return ""
		}
		return tenant.ID
	}))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsMiddleware(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("starting on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("%v", err)
	}
}

// buildRedisBackedDependencies wires C2 and the position cache to Redis
// when RedisAddr is configured, falling back to the in-memory
// implementations the engine's own tests use — a single-process
// deployment needs no Redis at all, per spec §4.2's fail-open posture
// applying equally to "no Redis configured".
func buildRedisBackedDependencies(cfg config.Config) (ratelimit.Limiter, cache.PositionCache) {
	if cfg.RedisAddr == "" {
		return ratelimit.NewSlidingWindowLimiter(time.Now), cache.NewMemoryCache(time.Now)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return ratelimit.NewRedisLimiter(client), cache.NewRedisCache(client)
}
