package feature

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/arcana/pkg/broadcast"
	"github.com/dmitrymomot/arcana/pkg/clock"
	"github.com/dmitrymomot/arcana/pkg/limits"
	"github.com/dmitrymomot/arcana/pkg/logger"
	"github.com/dmitrymomot/arcana/pkg/subscription"
)

// Gate answers access questions for the current subscription status.
// It is safe for concurrent use.
type Gate struct {
	policy  *limits.Policy
	tracker UsageTracker
	clock   clock.Clock
	logger  *slog.Logger

	mu     sync.RWMutex
	status subscription.Status

	// consumeMu makes check-then-increment atomic within the process.
	consumeMu sync.Mutex
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock sets the clock used for expiry checks.
func WithClock(c clock.Clock) Option {
	return func(g *Gate) { g.clock = clock.OrSystem(c) }
}

// WithLogger sets the logger. Nil selects a discarding logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger.OrDiscard(l) }
}

// WithInitialStatus sets the status used before the first update.
func WithInitialStatus(s subscription.Status) Option {
	return func(g *Gate) { g.status = s.Clone() }
}

// NewGate creates a gate. A nil policy selects limits.DefaultPolicy. The
// initial status is the free seeker status.
func NewGate(policy *limits.Policy, tracker UsageTracker, opts ...Option) *Gate {
	if policy == nil {
		policy = limits.DefaultPolicy()
	}
	g := &Gate{
		policy:  policy,
		tracker: tracker,
		clock:   clock.System(),
		logger:  logger.Discard(),
	}
	g.status = subscription.FreeStatus(g.clock.Now())
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(logger.Component("feature_gate"))
	return g
}

// UpdateSubscriptionStatus replaces the status the gate decides on.
func (g *Gate) UpdateSubscriptionStatus(s subscription.Status) {
	g.mu.Lock()
	prev := g.status.Tier
	g.status = s.Clone()
	g.mu.Unlock()

	if prev == s.Tier {
		return
	}
	g.logger.Info("subscription tier changed",
		slog.String("from", prev.String()),
		logger.Tier(s.Tier),
		slog.Bool("active", s.IsActive))
	if c := g.policy.Compare(prev, s.Tier); c.IsDowngrade() {
		g.logger.Info("entitlements lost",
			slog.Any("capabilities", c.LostCapabilities),
			slog.Any("spreads", c.LostSpreads),
			slog.Any("guides", c.LostGuides),
			slog.Int("reduced_limits", len(c.DecreasedLimits)))
	}
}

// CurrentStatus returns a copy of the last status the gate received.
func (g *Gate) CurrentStatus() subscription.Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status.Clone()
}

// CurrentTier is the status tier while the status is valid, seeker otherwise.
func (g *Gate) CurrentTier() subscription.Tier {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status.EffectiveTier(g.clock.Now())
}

// FeatureAccess returns the entitlements of CurrentTier.
func (g *Gate) FeatureAccess() limits.FeatureAccess {
	return g.policy.Access(g.CurrentTier())
}

// CanAccessFeature reports whether key may be used now. Metered features
// check the monthly counter against the tier limit; capabilities check the
// tier. Unknown keys are denied.
func (g *Gate) CanAccessFeature(ctx context.Context, key string) bool {
	tier := g.CurrentTier()
	switch {
	case limits.IsUsageLimited(key):
		g.rollover(ctx)
		limit := g.policy.LimitFor(tier, key)
		if limit == limits.Unlimited {
			return true
		}
		return limits.IsWithinLimit(g.tracker.GetUsageCount(ctx, key), limit)
	case limits.IsCapability(key):
		return g.policy.HasCapability(tier, key)
	default:
		return false
	}
}

// rollover starts a new usage month when the tracker supports it. A failed
// reset is logged and the current counters are used.
func (g *Gate) rollover(ctx context.Context) {
	r, ok := g.tracker.(MonthlyResetter)
	if !ok {
		return
	}
	reset, err := r.ResetIfNeeded(ctx)
	if err != nil {
		g.logger.WarnContext(ctx, "monthly usage reset failed", logger.Error(err))
		return
	}
	if reset {
		g.logger.InfoContext(ctx, "usage counters rolled over to a new month")
	}
}

// ValidateAndConsumeUsage checks access and, for metered features, records
// one use. Nothing is recorded when access is denied.
func (g *Gate) ValidateAndConsumeUsage(ctx context.Context, key string) (bool, error) {
	g.consumeMu.Lock()
	defer g.consumeMu.Unlock()

	if !g.CanAccessFeature(ctx, key) {
		g.logger.DebugContext(ctx, "feature denied", logger.Feature(key), logger.Tier(g.CurrentTier()))
		return false, nil
	}
	if !limits.IsUsageLimited(key) {
		return true, nil
	}
	if _, err := g.tracker.IncrementUsage(ctx, key); err != nil {
		return false, err
	}
	return true, nil
}

// GetUpgradeRequirement returns nil when key is accessible, otherwise what
// would unlock it.
func (g *Gate) GetUpgradeRequirement(ctx context.Context, key string) *UpgradeRequirement {
	if g.CanAccessFeature(ctx, key) {
		return nil
	}

	tier := g.CurrentTier()
	switch {
	case limits.IsUsageLimited(key):
		used := g.tracker.GetUsageCount(ctx, key)
		limit := g.policy.LimitFor(tier, key)
		return &UpgradeRequirement{
			RequiredTier: tier.Next(),
			Reason:       ReasonUsageLimit,
			FeatureName:  key,
			CurrentUsage: &used,
			UsageLimit:   &limit,
		}
	case limits.IsCapability(key):
		required, ok := g.policy.MinTierForFeature(key)
		if !ok {
			required = subscription.TierOracle
		}
		return &UpgradeRequirement{RequiredTier: required, Reason: ReasonPremiumFeature, FeatureName: key}
	default:
		return &UpgradeRequirement{RequiredTier: subscription.TierOracle, Reason: ReasonTierRestriction, FeatureName: key}
	}
}

// UpgradePreview lists what changes when moving from the current tier to
// tier to.
func (g *Gate) UpgradePreview(to subscription.Tier) limits.Comparison {
	return g.policy.Compare(g.CurrentTier(), to)
}

// CanAccessSpread reports whether the current tier includes spread id.
func (g *Gate) CanAccessSpread(id string) bool {
	required, ok := g.policy.MinTierForSpread(id)
	return ok && g.CurrentTier().AtLeast(required)
}

// GetUpgradeRequirementForSpread returns nil when spread id is available.
func (g *Gate) GetUpgradeRequirementForSpread(id string) *UpgradeRequirement {
	required, ok := g.policy.MinTierForSpread(id)
	return g.tierRequirement(id, required, ok)
}

// CanAccessGuide reports whether the current tier includes guide id.
func (g *Gate) CanAccessGuide(id string) bool {
	required, ok := g.policy.MinTierForGuide(id)
	return ok && g.CurrentTier().AtLeast(required)
}

// GetUpgradeRequirementForGuide returns nil when guide id is available.
func (g *Gate) GetUpgradeRequirementForGuide(id string) *UpgradeRequirement {
	required, ok := g.policy.MinTierForGuide(id)
	return g.tierRequirement(id, required, ok)
}

func (g *Gate) tierRequirement(id string, required subscription.Tier, known bool) *UpgradeRequirement {
	if !known {
		required = subscription.TierOracle
	} else if g.CurrentTier().AtLeast(required) {
		return nil
	}
	return &UpgradeRequirement{RequiredTier: required, Reason: ReasonTierRestriction, FeatureName: id}
}

// UsageSummary reports consumption of a metered feature for the current tier.
func (g *Gate) UsageSummary(ctx context.Context, key string) UsageSummary {
	g.rollover(ctx)
	used := g.tracker.GetUsageCount(ctx, key)
	limit := g.policy.LimitFor(g.CurrentTier(), key)
	return UsageSummary{
		Feature:     key,
		Used:        used,
		Limit:       limit,
		Remaining:   limits.RemainingUsage(used, limit),
		Percentage:  limits.UsagePercentage(used, limit),
		Approaching: limits.IsApproachingLimit(used, limit),
		Unlimited:   limit == limits.Unlimited,
	}
}

// Follow applies every status from sub until ctx is done or the stream
// closes. Stream errors are logged and skipped. It closes sub on return.
func (g *Gate) Follow(ctx context.Context, sub broadcast.Subscriber[subscription.Status]) error {
	defer sub.Close()

	ch := sub.Receive(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return ctx.Err()
			}
			if msg.Err != nil {
				g.logger.WarnContext(ctx, "subscription stream error", logger.Error(msg.Err))
				continue
			}
			g.UpdateSubscriptionStatus(msg.Data)
		}
	}
}
