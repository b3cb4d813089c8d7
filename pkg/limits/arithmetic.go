package limits

const (
	// Unlimited is the limit value meaning "no cap".
	Unlimited = 0

	// UnlimitedRemaining is what RemainingUsage reports for unlimited features.
	UnlimitedRemaining = -1

	// ApproachingThreshold is the usage ratio at which a limit counts as close.
	ApproachingThreshold = 0.8
)

// IsWithinLimit reports whether one more use is allowed.
func IsWithinLimit(usage, limit int) bool {
	return limit == Unlimited || usage < limit
}

// HasReachedLimit reports whether the limit is exhausted.
func HasReachedLimit(usage, limit int) bool {
	return limit != Unlimited && usage >= limit
}

// RemainingUsage returns the uses left, floored at 0, or UnlimitedRemaining.
func RemainingUsage(usage, limit int) int {
	if limit == Unlimited {
		return UnlimitedRemaining
	}
	return max(limit-usage, 0)
}

// UsagePercentage returns usage/limit in [0, 1]. Unlimited features report 0.
func UsagePercentage(usage, limit int) float64 {
	if limit == Unlimited || usage <= 0 {
		return 0
	}
	return min(float64(usage)/float64(limit), 1.0)
}

// IsApproachingLimit reports whether usage has reached ApproachingThreshold.
func IsApproachingLimit(usage, limit int) bool {
	return limit != Unlimited && UsagePercentage(usage, limit) >= ApproachingThreshold
}
