package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/arcana/pkg/feature"
	"github.com/dmitrymomot/arcana/pkg/httpserver"
	"github.com/dmitrymomot/arcana/pkg/logger"
	"github.com/dmitrymomot/arcana/pkg/subscription"
	"github.com/dmitrymomot/arcana/svc/subsync"
)

// WebhookHandler verifies and applies a billing provider webhook.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// API serves the entitlement endpoints.
type API struct {
	gate     *feature.Gate
	svc      subscription.Service
	sync     *subsync.Service
	webhooks WebhookHandler
	checks   []httpserver.Check
	logger   *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = logger.OrDiscard(l) }
}

// WithWebhooks mounts POST /webhooks/paddle.
func WithWebhooks(h WebhookHandler) Option {
	return func(a *API) { a.webhooks = h }
}

// WithReadinessChecks adds checks to /health/ready besides sync freshness.
func WithReadinessChecks(checks ...httpserver.Check) Option {
	return func(a *API) { a.checks = append(a.checks, checks...) }
}

// New creates the API over the gate, the subscription service and the
// synchronizer. Webhooks are only routed when WithWebhooks is given.
func New(gate *feature.Gate, svc subscription.Service, sync *subsync.Service, opts ...Option) *API {
	a := &API{
		gate:   gate,
		svc:    svc,
		sync:   sync,
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(logger.Component("api"))
	return a
}

var errSyncOverdue = errors.New("subscription sync overdue")

// Router builds the HTTP handler.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(a.logRequests)

	ready := append([]httpserver.Check{{
		Name: "sync",
		Fn: func(ctx context.Context) error {
			if a.sync.IsSyncOverdue(ctx) {
				return errSyncOverdue
			}
			return nil
		},
	}}, a.checks...)
	r.Get("/health/live", httpserver.Liveness())
	r.Get("/health/ready", httpserver.Readiness(a.logger, ready...))

	r.Get("/status", a.status)
	r.Get("/features/{key}", a.featureAccess)
	r.Post("/features/{key}/consume", a.consume)
	r.Get("/features/{key}/upgrade", a.upgrade)
	r.Get("/spreads/{id}", a.spread)
	r.Get("/guides/{id}", a.guide)

	r.Get("/products", a.products)
	r.Post("/purchases", a.purchase)
	r.Post("/restore", a.restore)
	r.Post("/cancel", a.cancel)
	r.Post("/manage", a.manage)
	r.Get("/history", a.history)

	r.Get("/sync", a.syncState)
	r.Post("/sync", a.syncNow)

	if a.webhooks != nil {
		r.Post("/webhooks/paddle", a.paddleWebhook)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		fail(w, http.StatusNotFound, "not_found", "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		fail(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.InfoContext(r.Context(), "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			logger.Duration(time.Since(start)))
	})
}
