// Package subsync reconciles the local subscription status with the billing
// platform on a schedule.
//
// Each run moves the sync state machine through syncing to success or
// failed. When the platform reports, or the cache still holds, an expired
// paid subscription the user is downgraded to the free tier with their
// monthly usage kept, and the state becomes expired.
//
//	sync := subsync.New(svc, handler, store,
//	    subsync.WithStatusListener(gate.UpdateSubscriptionStatus))
//	sync.Start(ctx)
//	defer sync.Close()
package subsync
