// Package usage meters monthly feature consumption on top of a kv.Store.
//
// Counters are keyed per feature and reset once per calendar month. On
// reset the previous values are archived into a bounded per-feature history
// so callers can show past consumption.
//
//	tracker := usage.New(store, usage.WithClock(clk))
//	if _, err := tracker.ResetIfNeeded(ctx); err != nil {
//	    return err
//	}
//	n, err := tracker.IncrementUsage(ctx, limits.Readings)
//
// Read paths never fail: storage errors are logged and reported as zero or
// empty values so an unavailable store does not block the user.
package usage
