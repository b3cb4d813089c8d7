package limits

import "errors"

var (
	ErrInvalidPolicy  = errors.New("limits.errors.invalid_policy")
	ErrMissingTier    = errors.New("limits.errors.missing_tier")
	ErrUnknownFeature = errors.New("limits.errors.unknown_feature")
	ErrNegativeLimit  = errors.New("limits.errors.negative_limit")
	ErrNonMonotonic   = errors.New("limits.errors.non_monotonic_tier")
	ErrFailedToLoad   = errors.New("limits.errors.failed_to_load_policy")
)
