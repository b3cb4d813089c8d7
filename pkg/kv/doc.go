// Package kv defines the key-value persistence contract used by the
// entitlement engine for usage counters, reset timestamps, usage history
// and the cached subscription status.
//
// The contract is intentionally small: strings, integers and string lists
// addressed by key. Backends live in sub-packages (redisstore, pgstore,
// mongostore); Memory is the in-process implementation used by tests and
// single-node deployments.
//
// Backends that can increment a counter atomically also implement
// Incrementer. Callers should prefer it over read-modify-write:
//
//	if inc, ok := store.(kv.Incrementer); ok {
//	    n, err = inc.Incr(ctx, key, 1)
//	}
package kv
