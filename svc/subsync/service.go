package subsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrymomot/arcana/pkg/broadcast"
	"github.com/dmitrymomot/arcana/pkg/clock"
	"github.com/dmitrymomot/arcana/pkg/kv"
	"github.com/dmitrymomot/arcana/pkg/logger"
	"github.com/dmitrymomot/arcana/pkg/recovery"
	"github.com/dmitrymomot/arcana/pkg/statemachine"
	"github.com/dmitrymomot/arcana/pkg/subscription"
)

// LastSyncKey stores the time of the last successful sync.
const LastSyncKey = "subscription:last_sync"

// Service periodically reconciles the subscription status.
type Service struct {
	svc       subscription.Service
	handler   *recovery.Handler
	store     kv.Store
	clock     clock.Clock
	logger    *slog.Logger
	listeners []func(subscription.Status)

	interval   time.Duration
	maxRetries int
	retryDelay time.Duration

	machine *statemachine.Machine[SyncStatus, event]
	stream  *broadcast.Replay[SyncStatus]

	// runMu serialises syncs and restores.
	runMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WithClock sets the clock used for sync times and expiry.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = clock.OrSystem(c) }
}

// WithLogger sets the logger. Nil selects a discarding logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = logger.OrDiscard(l) }
}

// WithStatusListener registers fn to receive every status the synchronizer
// settles on, including downgrades.
func WithStatusListener(fn func(subscription.Status)) Option {
	return func(s *Service) {
		if fn != nil {
			s.listeners = append(s.listeners, fn)
		}
	}
}

// New creates a stopped synchronizer. Call Start to run the schedule.
func New(svc subscription.Service, handler *recovery.Handler, store kv.Store, opts ...Option) *Service {
	s := &Service{
		svc:        svc,
		handler:    handler,
		store:      store,
		clock:      clock.System(),
		logger:     logger.Discard(),
		interval:   60 * time.Minute,
		maxRetries: 3,
		retryDelay: 5 * time.Second,
		stream:     broadcast.NewReplayWith(4, StatusIdle),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("subscription_sync"))
	s.machine = s.newMachine()
	return s
}

func (s *Service) onStateChange(from, to SyncStatus, ev event) {
	s.logger.Debug("sync state changed",
		slog.String("from", from.String()),
		logger.SyncStatus(to.String()),
		slog.String("event", string(ev)))
	_ = s.stream.Publish(context.Background(), to)
}

// Start reconciles pending purchases, syncs, and then syncs every interval
// until ctx ends or Stop is called. Starting a running service is a no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reconcilePending(ctx)
		s.tick(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
	s.logger.InfoContext(ctx, "subscription sync started", logger.Duration(s.interval))
}

func (s *Service) tick(ctx context.Context) {
	if err := s.SyncNow(ctx); err != nil && ctx.Err() == nil {
		s.logger.WarnContext(ctx, "scheduled sync failed", logger.Error(err))
	}
}

// Stop halts the schedule and waits for a running sync. Start may be
// called again afterwards.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
}

// Close stops the schedule and closes the status stream.
func (s *Service) Close() error {
	s.Stop()
	return s.stream.Close()
}

// reconcilePending verifies purchases the platform finished while the
// service was not running.
func (s *Service) reconcilePending(ctx context.Context) {
	pending, err := s.svc.HasPendingChanges(ctx)
	if err != nil || !pending {
		return
	}
	s.logger.InfoContext(ctx, "verifying pending purchase")
	status, err := s.svc.VerifySubscriptionStatus(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "pending purchase verification failed", logger.Error(err))
		return
	}
	s.cache(ctx, status)
	s.notify(status)
}

// SyncNow runs one sync immediately.
func (s *Service) SyncNow(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if err := s.machine.Fire(ctx, evStart, nil); err != nil {
		return err
	}

	status, err := s.syncWithRetry(ctx)
	if err != nil {
		_ = s.machine.Fire(ctx, evFail, nil)
		if cached, ok := s.handler.CachedStatus(); ok {
			// Rejected unless the cached tier is paid and expired.
			_ = s.machine.Fire(ctx, evExpire, cached)
		}
		return fmt.Errorf("%w: %w", ErrSyncFailed, err)
	}

	s.recordSuccess(ctx, s.clock.Now())
	if err := s.machine.Fire(ctx, evExpire, status); err == nil {
		return nil
	}

	s.cache(ctx, status)
	s.notify(status)
	return s.machine.Fire(ctx, evSucceed, nil)
}

// syncWithRetry refreshes and reads the status, waiting RetryDelay × n
// before attempt n+1.
func (s *Service) syncWithRetry(ctx context.Context) (subscription.Status, error) {
	n := 0
	linear := retry.BackoffFunc(func() (time.Duration, bool) {
		n++
		return s.retryDelay * time.Duration(n), false
	})
	backoff := retry.WithMaxRetries(uint64(max(s.maxRetries-1, 0)), linear)

	attempt := 0
	return retry.DoValue(ctx, backoff, func(ctx context.Context) (subscription.Status, error) {
		attempt++
		if err := s.svc.RefreshSubscriptionStatus(ctx); err != nil {
			s.logger.DebugContext(ctx, "sync attempt failed", logger.Attempt(attempt), logger.Error(err))
			return subscription.Status{}, retry.RetryableError(err)
		}
		status, err := s.svc.GetSubscriptionStatus(ctx)
		if err != nil {
			return subscription.Status{}, retry.RetryableError(err)
		}
		return status, nil
	})
}

// downgrade moves the user to the free tier but keeps this month's usage.
func (s *Service) downgrade(ctx context.Context, from subscription.Status) {
	free := subscription.FreeStatus(s.clock.Now()).WithUsageCounts(from.UsageCounts)
	s.logger.InfoContext(ctx, "subscription expired, downgrading",
		slog.String("from", from.Tier.String()),
		logger.Tier(free.Tier))
	s.cache(ctx, free)
	s.notify(free)
}

func (s *Service) cache(ctx context.Context, status subscription.Status) {
	if err := s.handler.CacheSubscriptionStatus(ctx, status); err != nil {
		s.logger.WarnContext(ctx, "failed to cache status", logger.Error(err))
	}
}

func (s *Service) notify(status subscription.Status) {
	for _, fn := range s.listeners {
		fn(status.Clone())
	}
}

func (s *Service) recordSuccess(ctx context.Context, at time.Time) {
	if err := s.store.SetString(ctx, LastSyncKey, at.UTC().Format(time.RFC3339Nano)); err != nil {
		s.logger.WarnContext(ctx, "failed to record sync time", logger.Error(err))
	}
}

// Status returns the current sync state.
func (s *Service) Status() SyncStatus { return s.machine.Current() }

// StatusStream replays the current sync state and every change after it.
func (s *Service) StatusStream(ctx context.Context) broadcast.Subscriber[SyncStatus] {
	return s.stream.Subscribe(ctx)
}

// LastSyncTime returns when the last sync succeeded.
func (s *Service) LastSyncTime(ctx context.Context) (time.Time, bool) {
	raw, err := s.store.GetString(ctx, LastSyncKey)
	if err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		s.logger.WarnContext(ctx, "malformed last sync time", logger.Error(err))
		return time.Time{}, false
	}
	return t, true
}

// IsSyncOverdue reports whether more than two intervals have passed since
// the last successful sync. A service that never synced is overdue.
func (s *Service) IsSyncOverdue(ctx context.Context) bool {
	last, ok := s.LastSyncTime(ctx)
	if !ok {
		return true
	}
	return s.clock.Now().Sub(last) > 2*s.interval
}
