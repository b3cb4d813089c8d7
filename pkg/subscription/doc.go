// Package subscription defines the subscription data model and the contract
// billing platforms implement.
//
// # Data model
//
// Tier orders the three levels of access (seeker, mystic, oracle). Status
// is an immutable snapshot of the user's subscription; it can be active and
// expired at the same time, and only IsValidAt grants the tier:
//
//	if status.IsValidAt(now) {
//	    tier = status.Tier
//	}
//
// # Platforms
//
// Service is implemented by:
//
//   - MockPlatform: in-memory reference platform with deterministic fault
//     injection (NoFaults, FailNext, FailAlways, Sequence, FaultFunc)
//   - PaddlePlatform: Paddle Billing adapter driven by verified webhooks
//
// Both publish status changes through a broadcast.Replay, so a new stream
// subscriber always receives the current status first.
//
// # Errors
//
// Every platform failure is an *Error carrying an ErrorKind. Use KindOf and
// IsRetryable instead of inspecting errors directly:
//
//	if subscription.IsRetryable(err) {
//	    // transient: network, platform, verification or server
//	}
package subscription
