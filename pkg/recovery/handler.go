package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/arcana/pkg/clock"
	"github.com/dmitrymomot/arcana/pkg/kv"
	"github.com/dmitrymomot/arcana/pkg/logger"
	"github.com/dmitrymomot/arcana/pkg/subscription"
)

// CacheKey is where the cached status is persisted when a store is set.
const CacheKey = "subscription:cached_status"

// Handler applies the retry policy and keeps the last good status.
// It is safe for concurrent use.
type Handler struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger
	store  kv.Store

	mu     sync.RWMutex
	cached *cachedStatus
}

type cachedStatus struct {
	Status   subscription.Status `json:"status"`
	CachedAt time.Time           `json:"cached_at"`
}

// Option configures a Handler.
type Option func(*Handler)

// WithClock sets the clock used for cache age and backoff.
func WithClock(c clock.Clock) Option {
	return func(h *Handler) { h.clock = clock.OrSystem(c) }
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger.OrDiscard(l) }
}

// WithStore persists the cached status so it survives restarts.
func WithStore(s kv.Store) Option {
	return func(h *Handler) { h.store = s }
}

// NewHandler creates a handler with an empty in-memory cache. Call
// LoadCache to restore a status persisted by WithStore.
func NewHandler(cfg Config, opts ...Option) *Handler {
	h := &Handler{
		cfg:    cfg,
		clock:  clock.System(),
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(logger.Component("recovery"))
	return h
}

// Config returns the retry settings the handler was built with.
func (h *Handler) Config() Config { return h.cfg }

// CacheSubscriptionStatus records s as the last good status.
func (h *Handler) CacheSubscriptionStatus(ctx context.Context, s subscription.Status) error {
	entry := &cachedStatus{Status: s.Clone(), CachedAt: h.clock.Now()}

	h.mu.Lock()
	h.cached = entry
	h.mu.Unlock()

	if h.store == nil {
		return nil
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCacheEncode, err)
	}
	if err := h.store.SetString(ctx, CacheKey, string(raw)); err != nil {
		return fmt.Errorf("%w: %w", ErrCachePersist, err)
	}
	return nil
}

// CachedStatus returns the cached status if it is younger than CacheTTL.
func (h *Handler) CachedStatus() (subscription.Status, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.cached == nil || h.clock.Now().Sub(h.cached.CachedAt) > h.cfg.CacheTTL {
		return subscription.Status{}, false
	}
	return h.cached.Status.Clone(), true
}

// GetFallbackStatus returns the fresh cached status, or the free status when
// there is none. It never fails.
func (h *Handler) GetFallbackStatus() subscription.Status {
	if s, ok := h.CachedStatus(); ok {
		return s
	}
	return subscription.FreeStatus(h.clock.Now())
}

// ClearCache drops the cached status from memory and the store.
func (h *Handler) ClearCache(ctx context.Context) error {
	h.mu.Lock()
	h.cached = nil
	h.mu.Unlock()

	if h.store == nil {
		return nil
	}
	if err := h.store.Delete(ctx, CacheKey); err != nil {
		return fmt.Errorf("%w: %w", ErrCachePersist, err)
	}
	return nil
}

// LoadCache restores the cached status from the store. A missing entry is
// not an error. Stale entries are loaded but not served.
func (h *Handler) LoadCache(ctx context.Context) error {
	if h.store == nil {
		return nil
	}
	raw, err := h.store.GetString(ctx, CacheKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCachePersist, err)
	}

	var entry cachedStatus
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		h.logger.WarnContext(ctx, "discarding malformed cached status", logger.Error(err))
		return nil
	}

	h.mu.Lock()
	h.cached = &entry
	h.mu.Unlock()
	return nil
}
