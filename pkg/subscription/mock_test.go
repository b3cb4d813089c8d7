package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/arcana/pkg/clock"
	"github.com/dmitrymomot/arcana/pkg/subscription"
)

func newMock(t *testing.T, opts ...subscription.MockOption) (*subscription.MockPlatform, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(now)
	m := subscription.NewMockPlatform(append([]subscription.MockOption{subscription.WithMockClock(clk)}, opts...)...)
	t.Cleanup(func() { _ = m.Dispose() })
	return m, clk
}

func TestMockPlatform_Purchase(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("moves status to product tier for thirty days", func(t *testing.T) {
		t.Parallel()
		m, _ := newMock(t)

		ok, err := m.PurchaseSubscription(ctx, subscription.ProductOracleMonthly)
		require.NoError(t, err)
		assert.True(t, ok)

		status, err := m.GetSubscriptionStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, subscription.TierOracle, status.Tier)
		assert.True(t, status.IsActive)
		require.NotNil(t, status.ExpirationDate)
		assert.Equal(t, now.Add(30*24*time.Hour), *status.ExpirationDate)
		assert.NotEmpty(t, status.SubscriptionID())
		assert.True(t, m.AutoRenew())

		history, err := m.GetSubscriptionHistory(ctx)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, subscription.EventPurchased, history[0].Event)
		assert.Equal(t, subscription.ProductOracleMonthly, history[0].ProductID)
	})

	t.Run("user cancellation returns false", func(t *testing.T) {
		t.Parallel()
		m, _ := newMock(t)
		m.SimulateCancel()

		ok, err := m.PurchaseSubscription(ctx, subscription.ProductMysticMonthly)
		require.NoError(t, err)
		assert.False(t, ok)

		status, _ := m.GetSubscriptionStatus(ctx)
		assert.Equal(t, subscription.TierSeeker, status.Tier)

		ok, err = m.PurchaseSubscription(ctx, subscription.ProductMysticMonthly)
		require.NoError(t, err)
		assert.True(t, ok, "cancellation applies to one purchase only")
	})

	t.Run("unknown product", func(t *testing.T) {
		t.Parallel()
		m, _ := newMock(t)

		_, err := m.PurchaseSubscription(ctx, "nope")
		assert.Equal(t, subscription.KindInvalidProduct, subscription.KindOf(err))
	})

	t.Run("already subscribed", func(t *testing.T) {
		t.Parallel()
		m, _ := newMock(t)

		_, err := m.PurchaseSubscription(ctx, subscription.ProductMysticMonthly)
		require.NoError(t, err)
		_, err = m.PurchaseSubscription(ctx, subscription.ProductMysticMonthly)
		assert.Equal(t, subscription.KindAlreadySubscribed, subscription.KindOf(err))

		ok, err := m.PurchaseSubscription(ctx, subscription.ProductOracleMonthly)
		require.NoError(t, err)
		assert.True(t, ok, "upgrading is allowed")
	})
}

func TestMockPlatform_RestoreAndVerify(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, clk := newMock(t)

	ok, err := m.RestoreSubscriptions(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "nothing to restore yet")

	_, err = m.PurchaseSubscription(ctx, subscription.ProductMysticMonthly)
	require.NoError(t, err)
	purchased, _ := m.GetSubscriptionStatus(ctx)

	m.SetStatus(ctx, subscription.FreeStatus(clk.Now()))
	ok, err = m.RestoreSubscriptions(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	restored, _ := m.GetSubscriptionStatus(ctx)
	assert.Equal(t, purchased.SubscriptionID(), restored.SubscriptionID())
	assert.Equal(t, subscription.TierMystic, restored.Tier)

	clk.Advance(31 * 24 * time.Hour)
	verified, err := m.VerifySubscriptionStatus(ctx)
	require.NoError(t, err)
	assert.False(t, verified.IsActive)
	assert.True(t, verified.IsExpiredAt(clk.Now()))

	history, _ := m.GetSubscriptionHistory(ctx)
	require.Len(t, history, 3)
	assert.Equal(t, subscription.EventExpired, history[2].Event)
}

func TestMockPlatform_Cancel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _ := newMock(t)

	err := m.CancelSubscription(ctx)
	assert.ErrorIs(t, err, subscription.ErrNoSubscription)

	_, err = m.PurchaseSubscription(ctx, subscription.ProductMysticMonthly)
	require.NoError(t, err)
	require.NoError(t, m.CancelSubscription(ctx))

	status, _ := m.GetSubscriptionStatus(ctx)
	assert.True(t, status.IsActive, "cancel does not revoke access")
	assert.False(t, m.AutoRenew())
}

func TestMockPlatform_Faults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("fail next", func(t *testing.T) {
		t.Parallel()
		m, _ := newMock(t, subscription.WithFaults(subscription.FailNext(subscription.KindNetwork, 2, subscription.OpStatus)))

		for range 2 {
			_, err := m.GetSubscriptionStatus(ctx)
			assert.Equal(t, subscription.KindNetwork, subscription.KindOf(err))
			assert.ErrorIs(t, err, subscription.ErrInjectedFault)
		}
		_, err := m.GetSubscriptionStatus(ctx)
		require.NoError(t, err)
		_, err = m.GetAvailableProducts(ctx)
		require.NoError(t, err, "other ops unaffected")

		assert.Equal(t, 3, m.Calls(subscription.OpStatus))
		assert.Equal(t, 1, m.Calls(subscription.OpProducts))
	})

	t.Run("fail always", func(t *testing.T) {
		t.Parallel()
		m, _ := newMock(t, subscription.WithFaults(subscription.FailAlways(subscription.KindServer)))

		for range 3 {
			err := m.RefreshSubscriptionStatus(ctx)
			assert.Equal(t, subscription.KindServer, subscription.KindOf(err))
		}
		m.SetFaults(nil)
		assert.NoError(t, m.RefreshSubscriptionStatus(ctx))
	})

	t.Run("sequence", func(t *testing.T) {
		t.Parallel()
		m, _ := newMock(t, subscription.WithFaults(subscription.Sequence(subscription.OpVerify,
			subscription.KindServer, subscription.KindUnknown, subscription.KindPlatform)))

		_, err := m.VerifySubscriptionStatus(ctx)
		assert.Equal(t, subscription.KindServer, subscription.KindOf(err))
		_, err = m.VerifySubscriptionStatus(ctx)
		assert.NoError(t, err)
		_, err = m.VerifySubscriptionStatus(ctx)
		assert.Equal(t, subscription.KindPlatform, subscription.KindOf(err))
		_, err = m.VerifySubscriptionStatus(ctx)
		assert.NoError(t, err)
	})

	t.Run("latency honours context", func(t *testing.T) {
		t.Parallel()
		m, _ := newMock(t, subscription.WithLatency(time.Second))

		ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err := m.GetSubscriptionStatus(ctx)
		assert.Equal(t, subscription.KindNetwork, subscription.KindOf(err))
	})
}

func TestMockPlatform_Stream(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m, _ := newMock(t)

	sub := m.SubscriptionStatusStream(ctx)
	first := <-sub.Receive(ctx)
	assert.Equal(t, subscription.TierSeeker, first.Data.Tier)

	_, err := m.PurchaseSubscription(ctx, subscription.ProductMysticMonthly)
	require.NoError(t, err)

	select {
	case msg := <-sub.Receive(ctx):
		assert.Equal(t, subscription.TierMystic, msg.Data.Tier)
	case <-time.After(time.Second):
		t.Fatal("no status published")
	}
}

func TestMockPlatform_Dispose(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _ := newMock(t)

	require.NoError(t, m.Dispose())
	require.NoError(t, m.Dispose())

	_, err := m.GetSubscriptionStatus(ctx)
	assert.ErrorIs(t, err, subscription.ErrDisposed)

	_, ok := <-m.SubscriptionStatusStream(ctx).Receive(ctx)
	assert.False(t, ok)
}
