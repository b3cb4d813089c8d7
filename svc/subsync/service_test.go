package subsync_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/arcana/pkg/clock"
	"github.com/dmitrymomot/arcana/pkg/config"
	"github.com/dmitrymomot/arcana/pkg/kv"
	"github.com/dmitrymomot/arcana/pkg/recovery"
	"github.com/dmitrymomot/arcana/pkg/subscription"
	"github.com/dmitrymomot/arcana/svc/subsync"
)

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu       sync.Mutex
	statuses []subscription.Status
}

func (r *recorder) record(s subscription.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) last(t *testing.T) subscription.Status {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.statuses)
	return r.statuses[len(r.statuses)-1]
}

type fixture struct {
	clock    *clock.Fake
	platform *subscription.MockPlatform
	handler  *recovery.Handler
	store    kv.Store
	seen     *recorder
	sync     *subsync.Service
}

func setup(t *testing.T, mockOpts []subscription.MockOption, opts ...subsync.Option) fixture {
	t.Helper()
	clk := clock.NewFake(now)
	f := fixture{
		clock:    clk,
		platform: subscription.NewMockPlatform(append([]subscription.MockOption{subscription.WithMockClock(clk)}, mockOpts...)...),
		handler:  recovery.NewHandler(recovery.DefaultConfig(), recovery.WithClock(clk)),
		store:    kv.NewMemory(),
		seen:     &recorder{},
	}
	opts = append([]subsync.Option{
		subsync.WithClock(clk),
		subsync.WithRetryDelay(time.Millisecond),
		subsync.WithStatusListener(f.seen.record),
	}, opts...)
	f.sync = subsync.New(f.platform, f.handler, f.store, opts...)
	t.Cleanup(func() {
		_ = f.sync.Close()
		_ = f.platform.Dispose()
	})
	return f
}

func expiring(tier subscription.Tier, exp time.Time, usage map[string]int) subscription.Status {
	return subscription.FreeStatus(now).
		WithTier(tier).
		WithExpiration(&exp).
		WithPlatformSubscriptionID("sub_7").
		WithUsageCounts(usage)
}

func TestSyncNow_Success(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := setup(t, nil)

	assert.Equal(t, subsync.StatusIdle, f.sync.Status())
	assert.True(t, f.sync.IsSyncOverdue(ctx))

	require.NoError(t, f.sync.SyncNow(ctx))
	assert.Equal(t, subsync.StatusSuccess, f.sync.Status())
	assert.Equal(t, subscription.TierSeeker, f.seen.last(t).Tier)

	last, ok := f.sync.LastSyncTime(ctx)
	require.True(t, ok)
	assert.True(t, last.Equal(now))
	assert.False(t, f.sync.IsSyncOverdue(ctx))

	f.clock.Advance(2*time.Hour + time.Second)
	assert.True(t, f.sync.IsSyncOverdue(ctx))

	_, ok = f.handler.CachedStatus()
	assert.False(t, ok, "cache is older than its ttl")
}

func TestSyncNow_RetriesLinearly(t *testing.T) {
	t.Parallel()
	f := setup(t, []subscription.MockOption{
		subscription.WithFaults(subscription.Sequence(subscription.OpRefresh,
			subscription.KindNetwork, subscription.KindServer)),
	})

	require.NoError(t, f.sync.SyncNow(context.Background()))
	assert.Equal(t, 3, f.platform.Calls(subscription.OpRefresh))
	assert.Equal(t, subsync.StatusSuccess, f.sync.Status())
}

func TestSyncNow_Failure(t *testing.T) {
	t.Parallel()
	f := setup(t, []subscription.MockOption{
		subscription.WithFaults(subscription.FailAlways(subscription.KindServer, subscription.OpRefresh)),
	}, subsync.WithMaxRetries(2))

	err := f.sync.SyncNow(context.Background())
	assert.ErrorIs(t, err, subsync.ErrSyncFailed)
	assert.Equal(t, subscription.KindServer, subscription.KindOf(err))
	assert.Equal(t, 2, f.platform.Calls(subscription.OpRefresh))
	assert.Equal(t, subsync.StatusFailed, f.sync.Status())

	_, ok := f.sync.LastSyncTime(context.Background())
	assert.False(t, ok)
}

func TestSyncNow_ExpiredStatusDowngrades(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	usage := map[string]int{"readings": 4, "manual_interpretations": 2}
	f := setup(t, []subscription.MockOption{
		subscription.WithInitialStatus(expiring(subscription.TierOracle, now.Add(-time.Hour), usage)),
	})

	require.NoError(t, f.sync.SyncNow(ctx))
	assert.Equal(t, subsync.StatusExpired, f.sync.Status())

	got := f.seen.last(t)
	assert.Equal(t, subscription.TierSeeker, got.Tier)
	assert.True(t, got.IsActive)
	assert.Nil(t, got.ExpirationDate)
	assert.Nil(t, got.PlatformSubscriptionID)
	assert.Equal(t, usage, got.UsageCounts)

	cached, ok := f.handler.CachedStatus()
	require.True(t, ok)
	assert.Equal(t, subscription.TierSeeker, cached.Tier)
	assert.Equal(t, usage, cached.UsageCounts)
}

func TestSyncNow_FailureWithExpiredCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := setup(t, []subscription.MockOption{
		subscription.WithFaults(subscription.FailAlways(subscription.KindNetwork, subscription.OpRefresh)),
	}, subsync.WithMaxRetries(1))

	usage := map[string]int{"readings": 9}
	require.NoError(t, f.handler.CacheSubscriptionStatus(ctx,
		expiring(subscription.TierMystic, now.Add(10*time.Minute), usage)))
	f.clock.Advance(15 * time.Minute)

	err := f.sync.SyncNow(ctx)
	assert.ErrorIs(t, err, subsync.ErrSyncFailed)
	assert.Equal(t, subsync.StatusExpired, f.sync.Status())

	got := f.seen.last(t)
	assert.Equal(t, subscription.TierSeeker, got.Tier)
	assert.Equal(t, usage, got.UsageCounts)
}

func TestSyncNow_FailureWithValidCacheStaysFailed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := setup(t, []subscription.MockOption{
		subscription.WithFaults(subscription.FailAlways(subscription.KindNetwork, subscription.OpRefresh)),
	}, subsync.WithMaxRetries(1))

	require.NoError(t, f.handler.CacheSubscriptionStatus(ctx,
		expiring(subscription.TierMystic, now.Add(24*time.Hour), nil)))

	err := f.sync.SyncNow(ctx)
	assert.ErrorIs(t, err, subsync.ErrSyncFailed)
	assert.Equal(t, subsync.StatusFailed, f.sync.Status())

	cached, ok := f.handler.CachedStatus()
	require.True(t, ok)
	assert.Equal(t, subscription.TierMystic, cached.Tier)
}

func TestRestoreSubscriptions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("nothing to restore", func(t *testing.T) {
		t.Parallel()
		f := setup(t, nil)
		assert.Equal(t, subsync.RestoreNoSubscriptionsFound, f.sync.RestoreSubscriptions(ctx))
		assert.Equal(t, subsync.StatusIdle, f.sync.Status())
	})

	t.Run("restores last purchase", func(t *testing.T) {
		t.Parallel()
		f := setup(t, nil)
		ok, err := f.platform.PurchaseSubscription(ctx, subscription.ProductMysticMonthly)
		require.NoError(t, err)
		require.True(t, ok)

		assert.Equal(t, subsync.RestoreSuccess, f.sync.RestoreSubscriptions(ctx))
		assert.Equal(t, subsync.StatusSuccess, f.sync.Status())
		assert.Equal(t, subscription.TierMystic, f.seen.last(t).Tier)
	})

	tests := []struct {
		kind subscription.ErrorKind
		want subsync.RestoreResult
	}{
		{subscription.KindNetwork, subsync.RestoreNetworkError},
		{subscription.KindPlatform, subsync.RestorePlatformError},
		{subscription.KindRestorationFailed, subsync.RestorePlatformError},
		{subscription.KindPaymentFailed, subsync.RestoreUnknownError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			t.Parallel()
			f := setup(t, []subscription.MockOption{
				subscription.WithFaults(subscription.FailAlways(tt.kind, subscription.OpRestore)),
			})
			assert.Equal(t, tt.want, f.sync.RestoreSubscriptions(ctx))
			assert.Equal(t, subsync.StatusFailed, f.sync.Status())
		})
	}
}

func TestStart_ReconcilesPendingAndIsRestartable(t *testing.T) {
	t.Parallel()
	f := setup(t, nil, subsync.WithInterval(time.Hour))
	f.platform.SetPending(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.sync.Start(ctx)
	f.sync.Start(ctx)
	require.Eventually(t, func() bool { return f.sync.Status() == subsync.StatusSuccess }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.platform.Calls(subscription.OpVerify))
	assert.Equal(t, 1, f.platform.Calls(subscription.OpRefresh))

	f.sync.Stop()
	f.sync.Start(ctx)
	require.Eventually(t, func() bool { return f.platform.Calls(subscription.OpRefresh) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.platform.Calls(subscription.OpVerify), "pending flag was cleared by verify")
	f.sync.Stop()
}

func TestStatusStream(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := setup(t, nil)

	sub := f.sync.StatusStream(ctx)
	require.NoError(t, f.sync.SyncNow(ctx))

	var got []subsync.SyncStatus
	for len(got) < 3 {
		select {
		case msg := <-sub.Receive(ctx):
			got = append(got, msg.Data)
		case <-time.After(time.Second):
			t.Fatalf("stream stalled after %v", got)
		}
	}
	assert.Equal(t, []subsync.SyncStatus{subsync.StatusIdle, subsync.StatusSyncing, subsync.StatusSuccess}, got)
}

func TestConfig_FromEnvironment(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load[subsync.Config](config.WithEnvironment(map[string]string{
		"SYNC_INTERVAL": "15m",
	}))
	require.NoError(t, err)
	assert.Equal(t, subsync.Config{Interval: 15 * time.Minute, MaxRetries: 3, RetryDelay: 5 * time.Second}, cfg)
}
