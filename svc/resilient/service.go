package resilient

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/arcana/pkg/broadcast"
	"github.com/dmitrymomot/arcana/pkg/connectivity"
	"github.com/dmitrymomot/arcana/pkg/logger"
	"github.com/dmitrymomot/arcana/pkg/recovery"
	"github.com/dmitrymomot/arcana/pkg/subscription"
)

var _ subscription.Service = (*Service)(nil)

// Service is a fault-tolerant subscription.Service.
type Service struct {
	base     subscription.Service
	monitor  connectivity.Monitor
	handler  *recovery.Handler
	logger   *slog.Logger
	settle   time.Duration
	defaults []subscription.Product

	stream  *broadcast.Replay[subscription.Status]
	refresh singleflight.Group

	mu       sync.RWMutex
	products []subscription.Product

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	connSub broadcast.Subscriber[connectivity.State]
	baseSub broadcast.Subscriber[subscription.Status]

	disposeOnce sync.Once
	disposeErr  error
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Nil selects a discarding logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = logger.OrDiscard(l) }
}

// WithSettleDelay sets how long to wait after reconnecting before the
// status is refreshed. Default 2s.
func WithSettleDelay(d time.Duration) Option {
	return func(s *Service) { s.settle = max(d, 0) }
}

// WithDefaultProducts sets the catalog served when the platform has never
// answered. Default subscription.DefaultProducts().
func WithDefaultProducts(p []subscription.Product) Option {
	return func(s *Service) { s.defaults = slices.Clone(p) }
}

// New wraps base. The returned service owns base and monitor and disposes
// them in Dispose.
func New(base subscription.Service, monitor connectivity.Monitor, handler *recovery.Handler, opts ...Option) *Service {
	s := &Service{
		base:     base,
		monitor:  monitor,
		handler:  handler,
		logger:   logger.Discard(),
		settle:   2 * time.Second,
		defaults: subscription.DefaultProducts(),
		stream:   broadcast.NewReplay[subscription.Status](8),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("resilient_subscription"))

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.connSub = monitor.Subscribe(ctx)
	s.baseSub = base.SubscriptionStatusStream(ctx)

	s.wg.Add(2)
	go s.watchConnectivity(ctx)
	go s.forwardStatus(ctx)
	return s
}

func (s *Service) offline() bool {
	return s.monitor.Current() == connectivity.StateDisconnected
}

func (s *Service) requireOnline(op string) error {
	if s.offline() {
		return subscription.NewError(subscription.KindNetwork, op, "platform unreachable", ErrOffline)
	}
	return nil
}

// watchConnectivity refreshes the status once the platform is reachable
// again after being offline.
func (s *Service) watchConnectivity(ctx context.Context) {
	defer s.wg.Done()

	prev := connectivity.StateUnknown
	for msg := range s.connSub.Receive(ctx) {
		state := msg.Data
		reconnected := prev == connectivity.StateDisconnected && state == connectivity.StateConnected
		prev = state
		if !reconnected {
			continue
		}

		s.logger.InfoContext(ctx, "connectivity restored, scheduling refresh", logger.Duration(s.settle))
		t := time.NewTimer(s.settle)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		if err := s.RefreshSubscriptionStatus(ctx); err != nil {
			s.logger.WarnContext(ctx, "refresh after reconnect failed", logger.Error(err))
		}
	}
}

// forwardStatus caches and re-publishes base statuses. Stream errors
// publish the fallback status instead.
func (s *Service) forwardStatus(ctx context.Context) {
	defer s.wg.Done()

	for msg := range s.baseSub.Receive(ctx) {
		if msg.Err != nil {
			s.logger.WarnContext(ctx, "status stream error, publishing fallback", logger.Error(msg.Err))
			_ = s.stream.Publish(ctx, s.handler.GetFallbackStatus())
			continue
		}
		s.cache(ctx, msg.Data)
		_ = s.stream.Publish(ctx, msg.Data)
	}
}

func (s *Service) cache(ctx context.Context, status subscription.Status) {
	if err := s.handler.CacheSubscriptionStatus(ctx, status); err != nil {
		s.logger.WarnContext(ctx, "failed to cache status", logger.Error(err))
	}
}

// GetSubscriptionStatus never fails: when the platform cannot answer the
// cached or free status is returned.
func (s *Service) GetSubscriptionStatus(ctx context.Context) (subscription.Status, error) {
	res := recovery.Execute(ctx, s.handler, "status", s.base.GetSubscriptionStatus,
		func() (subscription.Status, bool) { return s.handler.GetFallbackStatus(), true })
	if !res.FallbackUsed {
		s.cache(ctx, res.Data)
	}
	return res.Data, nil
}

// SubscriptionStatusStream replays the last status and every platform status
// after it.
func (s *Service) SubscriptionStatusStream(ctx context.Context) broadcast.Subscriber[subscription.Status] {
	return s.stream.Subscribe(ctx)
}

// GetAvailableProducts falls back to the last catalog the platform
// returned, then to the default catalog.
func (s *Service) GetAvailableProducts(ctx context.Context) ([]subscription.Product, error) {
	res := recovery.Execute(ctx, s.handler, "products", s.base.GetAvailableProducts,
		func() ([]subscription.Product, bool) {
			s.mu.RLock()
			defer s.mu.RUnlock()
			if len(s.products) > 0 {
				return slices.Clone(s.products), true
			}
			return slices.Clone(s.defaults), len(s.defaults) > 0
		})
	if !res.Success {
		return nil, res.Err
	}
	if !res.FallbackUsed {
		s.mu.Lock()
		s.products = slices.Clone(res.Data)
		s.mu.Unlock()
	}
	return res.Data, nil
}

// GetProduct looks id up in the available catalog.
func (s *Service) GetProduct(ctx context.Context, id string) (subscription.Product, bool) {
	products, err := s.GetAvailableProducts(ctx)
	if err != nil {
		return subscription.Product{}, false
	}
	return subscription.FindProduct(products, id)
}

// PurchaseSubscription makes exactly one attempt.
func (s *Service) PurchaseSubscription(ctx context.Context, productID string) (bool, error) {
	if err := s.requireOnline("purchase"); err != nil {
		return false, err
	}
	res := recovery.Execute(ctx, s.handler, "purchase",
		func(ctx context.Context) (bool, error) { return s.base.PurchaseSubscription(ctx, productID) },
		nil, recovery.WithoutRetry())
	if !res.Success {
		return false, res.Err
	}
	if res.Data {
		s.logger.InfoContext(ctx, "purchase completed", logger.ProductID(productID))
		s.refreshQuietly(ctx)
	}
	return res.Data, nil
}

// RestoreSubscriptions requires connectivity. A successful restore
// refreshes the status.
func (s *Service) RestoreSubscriptions(ctx context.Context) (bool, error) {
	if err := s.requireOnline("restore"); err != nil {
		return false, err
	}
	res := recovery.Execute(ctx, s.handler, "restore", s.base.RestoreSubscriptions, nil)
	if !res.Success {
		return false, res.Err
	}
	if res.Data {
		s.refreshQuietly(ctx)
	}
	return res.Data, nil
}

func (s *Service) refreshQuietly(ctx context.Context) {
	if err := s.RefreshSubscriptionStatus(ctx); err != nil {
		s.logger.WarnContext(ctx, "status refresh failed", logger.Error(err))
	}
}

// RefreshSubscriptionStatus asks the platform to re-read the status and
// caches the result. Concurrent calls share one platform round trip.
func (s *Service) RefreshSubscriptionStatus(ctx context.Context) error {
	_, err, _ := s.refresh.Do("refresh", func() (any, error) {
		res := recovery.Execute(ctx, s.handler, "refresh", func(ctx context.Context) (subscription.Status, error) {
			if err := s.base.RefreshSubscriptionStatus(ctx); err != nil {
				return subscription.Status{}, err
			}
			return s.base.GetSubscriptionStatus(ctx)
		}, nil)
		if !res.Success {
			return nil, res.Err
		}
		s.cache(ctx, res.Data)
		return nil, nil
	})
	return err
}

// VerifySubscriptionStatus falls back to the cached status.
func (s *Service) VerifySubscriptionStatus(ctx context.Context) (subscription.Status, error) {
	res := recovery.Execute(ctx, s.handler, "verify", s.base.VerifySubscriptionStatus, s.handler.CachedStatus)
	if !res.Success {
		return subscription.Status{}, res.Err
	}
	if !res.FallbackUsed {
		s.cache(ctx, res.Data)
	}
	return res.Data, nil
}

// CancelSubscription sends the user to the platform. It is never retried.
func (s *Service) CancelSubscription(ctx context.Context) error {
	return s.redirect(ctx, "cancel", s.base.CancelSubscription)
}

// OpenSubscriptionManagement opens the platform portal. It is never retried.
func (s *Service) OpenSubscriptionManagement(ctx context.Context) error {
	return s.redirect(ctx, "manage", s.base.OpenSubscriptionManagement)
}

// redirect runs a user-facing platform redirect exactly once while online.
func (s *Service) redirect(ctx context.Context, op string, fn func(context.Context) error) error {
	if err := s.requireOnline(op); err != nil {
		return err
	}
	res := recovery.Execute(ctx, s.handler, op,
		func(ctx context.Context) (struct{}, error) { return struct{}{}, fn(ctx) },
		nil, recovery.WithoutRetry())
	return res.Err
}

// GetSubscriptionHistory returns an empty history when the platform
// cannot answer.
func (s *Service) GetSubscriptionHistory(ctx context.Context) ([]subscription.HistoryEntry, error) {
	res := recovery.Execute(ctx, s.handler, "history", s.base.GetSubscriptionHistory,
		func() ([]subscription.HistoryEntry, bool) { return []subscription.HistoryEntry{}, true })
	return res.Data, nil
}

// HasPendingChanges reports false when the platform cannot answer.
func (s *Service) HasPendingChanges(ctx context.Context) (bool, error) {
	res := recovery.Execute(ctx, s.handler, "pending", s.base.HasPendingChanges,
		func() (bool, bool) { return false, true })
	return res.Data, nil
}

// Dispose stops the background watchers and releases, in order: the
// connectivity subscription, the base subscription, the merged stream, the
// base service and the monitor. It is idempotent.
func (s *Service) Dispose() error {
	s.disposeOnce.Do(func() {
		s.cancel()
		errs := []error{
			s.connSub.Close(),
			s.baseSub.Close(),
		}
		s.wg.Wait()
		errs = append(errs,
			s.stream.Close(),
			s.base.Dispose(),
			s.monitor.Close(),
		)
		s.disposeErr = errors.Join(errs...)
	})
	return s.disposeErr
}
