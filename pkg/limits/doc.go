// Package limits holds the tier entitlement policy and pure usage arithmetic.
//
// A Policy is loaded from YAML. The embedded tiers.yaml is the default:
//
//	policy := limits.DefaultPolicy()
//	access := policy.Access(subscription.TierMystic)
//	access.MaxManualInterpretations // 30
//
// Custom tables are validated on load: every tier must be present, limits
// must be non-negative and a higher tier must grant at least what a lower
// one does.
//
//	policy, err := limits.LoadPolicyFile("/etc/arcana/tiers.yaml")
//
// A limit of 0 means unlimited throughout the package:
//
//	limits.IsWithinLimit(9, 10)      // true
//	limits.RemainingUsage(3, 0)      // -1
//	limits.IsApproachingLimit(8, 10) // true
package limits
