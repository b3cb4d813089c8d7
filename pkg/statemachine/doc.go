// Package statemachine implements a small generic finite state machine.
//
// States and events are any comparable types, usually string-based enums:
//
//	type phase string
//	type trigger string
//
//	m := statemachine.MustNew[phase, trigger]("idle",
//	    statemachine.WithTransition[phase, trigger]("idle", "running", "start"),
//	    statemachine.WithListener(func(from, to phase, _ trigger) {
//	        log.Printf("%s -> %s", from, to)
//	    }),
//	)
//	_ = m.Fire(ctx, "start", nil)
//
// Guards veto a transition based on runtime data. Actions run after all
// guards pass and before the state changes; an action error aborts the
// transition. Listeners are called after the change is committed and outside
// the lock.
//
// Fire errors wrap ErrNoTransition, ErrRejected or ErrActionFailed and can be
// checked with errors.Is. A *TransitionError carries the state and event.
package statemachine
