// Package resilient wraps a subscription.Service so that reads never leave
// the caller without an answer and writes fail fast while offline.
//
// Reads go through recovery.Execute with a fallback: the cached status, the
// last good product catalog, an empty history. Purchases, restores,
// cancellation and the management portal are refused with a network error
// when the connectivity monitor reports the platform unreachable. When
// connectivity comes back the status is refreshed after a settle delay.
//
//	svc := resilient.New(platform, monitor, handler, resilient.WithLogger(log))
//	defer svc.Dispose()
package resilient
