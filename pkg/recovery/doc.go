// Package recovery decides how subscription failures are retried, what the
// caller falls back to, and what the user is told.
//
// A Handler owns the retry policy and a short-lived cache of the last good
// subscription status:
//
//	h := recovery.NewHandler(recovery.DefaultConfig(), recovery.WithStore(store))
//	_ = h.LoadCache(ctx)
//
//	res := recovery.Execute(ctx, h, "status", svc.GetSubscriptionStatus,
//	    func() (subscription.Status, bool) { return h.GetFallbackStatus(), true })
//
// Only error kinds that report ShouldRetry are retried. Purchases must pass
// WithoutRetry so a payment is never submitted twice.
package recovery
