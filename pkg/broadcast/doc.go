// Package broadcast provides type-safe, replaying value streams.
//
// A Replay holds the latest published value and fans every new value out to
// its subscribers. A new subscriber first receives the current value (if one
// has been published) and then every subsequent change, which is the
// contract of the subscription-status, sync-status and connectivity streams.
//
// Basic usage:
//
//	r := broadcast.NewReplay[string](4)
//	defer r.Close()
//
//	r.Publish(ctx, "hello")
//
//	sub := r.Subscribe(ctx)
//	defer sub.Close()
//
//	for msg := range sub.Receive(ctx) {
//		if msg.Err != nil {
//			// upstream failure, the stream stays open
//			continue
//		}
//		fmt.Println(msg.Data)
//	}
//
// Slow subscribers never block publishers: when a subscriber's buffer is
// full the oldest pending message is discarded in favour of the newest,
// so every subscriber eventually observes the latest state.
package broadcast
