package strata

import (
	"context"
	"time"
)

// State is the behavior contract for one registered state identifier.
//
// The machine calls hooks one at a time and waits for each to return before
// invoking the next, always on the caller's goroutine. Hooks receive the
// caller's ctx (for deadlines and cancellation of their own blocking work)
// and an exclusive pointer to the machine context; mutating the machine
// context is the supported way for states to communicate.
//
// A handler instance is registered for exactly one state identifier and may
// keep per-state fields of its own (counters, handles) in addition to what
// it stores in the machine context.
type State[S comparable, E any, C any] interface {
	// OnEnter runs after the machine has already switched Current to this
	// state. Returning TransitionTo chains into a further transition,
	// Fail marks the entered state invalid, and Super is rejected as a
	// configuration error.
	OnEnter(ctx context.Context, mctx *C) Response[S]

	// OnEvent handles one event. Returning Super hands the same event to
	// the superstate, if the resolver provides one.
	OnEvent(ctx context.Context, event E, mctx *C) Response[S]

	// OnExit runs before the state stops being current. It cannot fail and
	// cannot redirect the transition.
	OnExit(ctx context.Context, mctx *C)
}

// TimeoutState is an optional capability for states that suggest an
// inactivity timeout. The machine never schedules anything itself; hosts
// query Machine.CurrentTimeout and arm their own timers.
//
// Timeout is recomputed from the live machine context on every query, so the
// suggestion may change as events mutate the context, without a transition.
type TimeoutState[S comparable, E any, C any] interface {
	State[S, E, C]

	// Timeout returns the suggested duration, or false to decline.
	Timeout(ctx context.Context, mctx *C) (time.Duration, bool)
}

// SuperstateFunc resolves the parent of a state in the delegation hierarchy.
// The second return is false for root states. The function must be pure:
// same input, same answer, no side effects.
//
// The machine treats the relation as a function rather than a stored graph.
// It guards the delegation walk against cycles at runtime, but a sound
// hierarchy remains the caller's contract.
type SuperstateFunc[S comparable] func(id S) (S, bool)
