package limits_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/arcana/pkg/limits"
	"github.com/dmitrymomot/arcana/pkg/subscription"
)

func TestPolicy_Compare(t *testing.T) {
	t.Parallel()
	p := limits.DefaultPolicy()

	t.Run("upgrade", func(t *testing.T) {
		t.Parallel()
		c := p.Compare(subscription.TierSeeker, subscription.TierMystic)

		assert.False(t, c.IsDowngrade())
		assert.ElementsMatch(t, []string{limits.Customization, limits.AdFree}, c.NewCapabilities)
		assert.ElementsMatch(t, []string{limits.SpreadCelticCross, limits.SpreadRelationship, limits.SpreadCareerPath}, c.NewSpreads)
		assert.ElementsMatch(t, []string{limits.GuideNumerology, limits.GuideAstrology}, c.NewGuides)
		assert.Equal(t, limits.LimitChange{From: 10, To: 0}, c.IncreasedLimits[limits.Readings])
		assert.Equal(t, limits.LimitChange{From: 5, To: 30}, c.IncreasedLimits[limits.ManualInterpretations])
		assert.Empty(t, c.DecreasedLimits)
	})

	t.Run("downgrade", func(t *testing.T) {
		t.Parallel()
		c := p.Compare(subscription.TierOracle, subscription.TierMystic)

		assert.True(t, c.IsDowngrade())
		assert.ElementsMatch(t, []string{limits.AudioReading, limits.EarlyAccess}, c.LostCapabilities)
		assert.Equal(t, limits.LimitChange{From: 0, To: 30}, c.DecreasedLimits[limits.ManualInterpretations])
		assert.NotContains(t, c.DecreasedLimits, limits.Readings)
	})

	t.Run("same tier", func(t *testing.T) {
		t.Parallel()
		c := p.Compare(subscription.TierMystic, subscription.TierMystic)
		assert.False(t, c.IsDowngrade())
		assert.Empty(t, c.NewSpreads)
		assert.Empty(t, c.IncreasedLimits)
	})
}
