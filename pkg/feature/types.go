package feature

import (
	"context"

	"github.com/dmitrymomot/arcana/pkg/subscription"
)

// Reason explains why an upgrade is needed.
type Reason string

const (
	ReasonTierRestriction Reason = "tier_restriction"
	ReasonUsageLimit      Reason = "usage_limit"
	ReasonPremiumFeature  Reason = "premium_feature"
)

// UpgradeRequirement describes the tier that would unlock a feature.
type UpgradeRequirement struct {
	RequiredTier subscription.Tier `json:"required_tier"`
	Reason       Reason            `json:"reason"`
	FeatureName  string            `json:"feature_name"`
	CurrentUsage *int              `json:"current_usage,omitempty"`
	UsageLimit   *int              `json:"usage_limit,omitempty"`
}

// UsageSummary is a display-ready view of one metered feature.
type UsageSummary struct {
	Feature     string  `json:"feature"`
	Used        int     `json:"used"`
	Limit       int     `json:"limit"`      // 0 = unlimited
	Remaining   int     `json:"remaining"`  // -1 = unlimited
	Percentage  float64 `json:"percentage"` // 0..1
	Approaching bool    `json:"approaching"`
	Unlimited   bool    `json:"unlimited"`
}

// UsageTracker is the subset of usage.Tracker the gate needs.
type UsageTracker interface {
	GetUsageCount(ctx context.Context, feature string) int
	IncrementUsage(ctx context.Context, feature string) (int, error)
}

// MonthlyResetter is implemented by trackers whose counters roll over each
// month. The gate calls it before reading a metered counter.
type MonthlyResetter interface {
	ResetIfNeeded(ctx context.Context) (bool, error)
}
