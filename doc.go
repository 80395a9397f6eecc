// Package strata implements an embeddable hierarchical state-dispatch
// engine: a runtime that holds a set of named states, routes incoming events
// to the currently active state, delegates unhandled events up a superstate
// chain, and sequences enter/exit hooks around every transition.
//
// Hosts supply three types: a comparable state identifier S, an opaque event
// type E, and a machine context C that hooks mutate to communicate. One
// handler implements the State interface per registered identifier.
//
// DISPATCH SEMANTICS:
//
// Transition protocol (Init, and every TransitionTo response):
//  1. Exit the previous state, if there is one.
//  2. Set Current to the target BEFORE its OnEnter runs.
//  3. Run the target's OnEnter. TransitionTo from inside OnEnter chains:
//     the just-entered state is exited as "previous" on the next leg, never
//     twice. Fail leaves Current at the failed target - no rollback.
//  4. The chain has no iteration bound; an enter hook that always chains is
//     a caller bug.
//
// Event protocol (ProcessEvent):
//  1. Run the current state's OnEvent.
//  2. Handled stops; TransitionTo runs the transition protocol; Fail aborts
//     with the state unchanged.
//  3. Super re-dispatches the SAME event value to the superstate, climbing
//     until some ancestor answers or the chain is exhausted. A walk that
//     revisits a state fails instead of looping.
//
// Failures are *Error values carrying a Code; see the Is* helpers.
//
// CONCURRENCY:
//
// A machine is a single logical thread of control. It performs no internal
// locking, never spawns goroutines, and runs each hook to completion before
// the next. Init and ProcessEvent must not overlap on the same machine;
// hosts that share one machine serialize access externally. The machine
// context is handed to exactly one hook at a time, so hooks need no
// synchronization of their own under that discipline.
//
// Hooks receive the caller's context.Context for their own blocking work.
// The machine does not enforce timeouts: CurrentTimeout only reports the
// current state's suggestion for the host's scheduling layer to act on.
//
// OBSERVATION:
//
// Observers receive TransitionRecord facts - transition legs and delegation
// hops - stamped with a logical seq (Clock) and a per-dispatch token
// (TokenGenerator). The journal package persists them; the plantuml package
// renders them. The engine compiles against neither.
package strata
