// Package feature decides what the current user may do.
//
// A Gate combines the entitlement policy, the usage tracker and the current
// subscription status. Only a valid status grants its tier; an expired or
// inactive one falls back to seeker access.
//
//	gate := feature.NewGate(limits.DefaultPolicy(), tracker)
//	go gate.Follow(ctx, svc.SubscriptionStatusStream(ctx))
//
//	ok, err := gate.ValidateAndConsumeUsage(ctx, limits.Readings)
//	if !ok {
//	    req := gate.GetUpgradeRequirement(ctx, limits.Readings)
//	    // show an upgrade prompt for req.RequiredTier
//	}
//
// Unknown feature keys, spreads and guides are always denied.
package feature
