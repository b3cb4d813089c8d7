package subscription_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/arcana/pkg/subscription"
)

func TestTier(t *testing.T) {
	t.Parallel()

	t.Run("ordering", func(t *testing.T) {
		t.Parallel()
		assert.Less(t, subscription.TierSeeker, subscription.TierMystic)
		assert.Less(t, subscription.TierMystic, subscription.TierOracle)
		assert.Equal(t, subscription.TierSeeker, subscription.Tier(0))
		assert.True(t, subscription.TierOracle.AtLeast(subscription.TierMystic))
		assert.False(t, subscription.TierSeeker.AtLeast(subscription.TierMystic))
	})

	t.Run("next saturates at oracle", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, subscription.TierMystic, subscription.TierSeeker.Next())
		assert.Equal(t, subscription.TierOracle, subscription.TierMystic.Next())
		assert.Equal(t, subscription.TierOracle, subscription.TierOracle.Next())
	})

	t.Run("parse", func(t *testing.T) {
		t.Parallel()
		for _, tier := range subscription.Tiers() {
			got, err := subscription.ParseTier(tier.String())
			require.NoError(t, err)
			assert.Equal(t, tier, got)
		}

		got, err := subscription.ParseTier(" Mystic ")
		require.NoError(t, err)
		assert.Equal(t, subscription.TierMystic, got)

		_, err = subscription.ParseTier("archmage")
		assert.ErrorIs(t, err, subscription.ErrUnknownTier)
	})

	t.Run("json uses names", func(t *testing.T) {
		t.Parallel()
		b, err := json.Marshal(map[string]subscription.Tier{"tier": subscription.TierOracle})
		require.NoError(t, err)
		assert.JSONEq(t, `{"tier":"oracle"}`, string(b))

		var v struct{ Tier subscription.Tier }
		require.NoError(t, json.Unmarshal([]byte(`{"Tier":"mystic"}`), &v))
		assert.Equal(t, subscription.TierMystic, v.Tier)

		_, err = json.Marshal(subscription.Tier(42))
		assert.Error(t, err)
	})
}
