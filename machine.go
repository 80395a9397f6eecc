package strata

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Machine is a hierarchical state-dispatch engine. It holds the registered
// handlers, the superstate resolver, the host's machine context and at most
// one current state.
//
// Machines are built with New(...).State(...).Build(). Init enters the first
// state; ProcessEvent routes one event to the current state and up its
// superstate chain.
//
// Machine performs no internal locking. Init, ProcessEvent and
// CurrentTimeout must not run concurrently on the same machine; a host that
// shares a machine across goroutines serializes calls itself.
type Machine[S comparable, E any, C any] struct {
	states     map[S]State[S, E, C]
	superstate SuperstateFunc[S]
	mctx       C

	current    S
	started    bool
	initial    S
	hasInitial bool

	logger    *slog.Logger
	observers []Observer[S]
	tokens    TokenGenerator
	clock     *Clock
}

// Init drives the machine into initial, running the full transition protocol
// with no previous state. Calling Init on an already running machine is a
// transition away from the current state: the current state's OnExit runs
// first, exactly as for any other transition.
func (m *Machine[S, E, C]) Init(ctx context.Context, initial S) error {
	m.initial, m.hasInitial = initial, true
	token := m.tokens.Generate()
	m.logger.Debug("machine init", "state", initial, "token", token)
	return m.transitionTo(ctx, initial, TriggerInit, token)
}

// ProcessEvent delivers one event to the hierarchy, starting at the current
// state and climbing toward the root until some state handles it,
// transitions, fails, or the chain is exhausted.
//
// The same event value is passed to every handler in the chain; the machine
// never copies into it or mutates it. On failure the current state is
// exactly where the protocol stopped: unchanged for rejected or unhandled
// events, at the failed target for enter errors.
func (m *Machine[S, E, C]) ProcessEvent(ctx context.Context, event E) error {
	if !m.started {
		return newNotInitialized()
	}

	token := m.tokens.Generate()
	trigger := fmt.Sprint(event)

	active := m.current
	var visited map[S]bool
	for {
		handler, ok := m.states[active]
		if !ok {
			return newStateNotRegistered(active)
		}

		resp := handler.OnEvent(ctx, event, &m.mctx)
		switch resp.kind {
		case ResponseHandled:
			m.logger.Debug("event handled", "state", active, "event", trigger, "token", token)
			return nil

		case ResponseTransition:
			return m.transitionTo(ctx, resp.target, trigger, token)

		case ResponseError:
			return newInvalidEvent(active, resp.err)

		case ResponseSuper:
			parent, ok := m.resolveSuper(active)
			if !ok {
				return newInvalidEventReason(active, "unhandled event, no superstate available")
			}
			if visited == nil {
				visited = map[S]bool{active: true}
			}
			if visited[parent] {
				return newInvalidEventReason(parent, "superstate cycle detected")
			}
			visited[parent] = true
			m.record(token, RecordDelegation, active, parent, "super:"+trigger)
			m.logger.Debug("event delegated", "from", active, "to", parent, "event", trigger, "token", token)
			active = parent
		}
	}
}

// transitionTo drives the machine from its current state (if any) into
// target, absorbing further transitions requested by enter hooks. One
// record is emitted per completed leg; the first leg of a machine's life has
// no previous state and emits none.
func (m *Machine[S, E, C]) transitionTo(ctx context.Context, target S, trigger, token string) error {
	for {
		prev, hadPrev := m.current, m.started

		if hadPrev {
			if h, ok := m.states[prev]; ok {
				h.OnExit(ctx, &m.mctx)
			}
		}

		// The target is current for the duration of its own enter hook:
		// an enter hook asking "what am I" must see the state it enters.
		m.current = target
		m.started = true

		handler, ok := m.states[target]
		if !ok {
			return newStateNotRegistered(target)
		}

		resp := handler.OnEnter(ctx, &m.mctx)
		switch resp.kind {
		case ResponseHandled:
			if hadPrev {
				m.record(token, RecordTransition, prev, target, trigger)
			}
			m.logger.Debug("state entered", "state", target, "trigger", trigger, "token", token)
			return nil

		case ResponseTransition:
			if hadPrev {
				m.record(token, RecordTransition, prev, target, trigger)
			}
			m.logger.Debug("enter chained transition", "from", target, "to", resp.target, "token", token)
			// The just-entered state becomes "previous" on the next pass
			// and gets its OnExit there; it is never exited twice.
			target, trigger = resp.target, TriggerEnter

		case ResponseError:
			return newStateInvalid(target, resp.err)

		case ResponseSuper:
			return newEnterSuper(target)
		}
	}
}

// Current returns the current state. The second return is false before Init
// has set one.
func (m *Machine[S, E, C]) Current() (S, bool) {
	if !m.started {
		var zero S
		return zero, false
	}
	return m.current, true
}

// Initial returns the state most recently passed to Init, even if its enter
// chain settled elsewhere or failed. The second return is false before Init.
func (m *Machine[S, E, C]) Initial() (S, bool) {
	if !m.hasInitial {
		var zero S
		return zero, false
	}
	return m.initial, true
}

// Context returns the machine context. The pointer stays valid for the
// machine's lifetime; mutating through it outside a hook is subject to the
// same no-concurrent-dispatch rule as everything else.
func (m *Machine[S, E, C]) Context() *C {
	return &m.mctx
}

// CurrentTimeout asks the current state for its suggested inactivity
// timeout, recomputed from the live machine context on every call. It
// returns false when the machine is uninitialized, the current handler does
// not implement TimeoutState, or the handler declines.
func (m *Machine[S, E, C]) CurrentTimeout(ctx context.Context) (time.Duration, bool) {
	if !m.started {
		return 0, false
	}
	handler, ok := m.states[m.current]
	if !ok {
		return 0, false
	}
	ts, ok := handler.(TimeoutState[S, E, C])
	if !ok {
		return 0, false
	}
	return ts.Timeout(ctx, &m.mctx)
}

func (m *Machine[S, E, C]) resolveSuper(id S) (S, bool) {
	if m.superstate == nil {
		var zero S
		return zero, false
	}
	return m.superstate(id)
}

func (m *Machine[S, E, C]) record(token string, kind RecordKind, from, to S, trigger string) {
	if len(m.observers) == 0 {
		return
	}
	rec := TransitionRecord[S]{
		Seq:     m.clock.Next(),
		Token:   token,
		Kind:    kind,
		From:    from,
		To:      to,
		Trigger: trigger,
		At:      time.Now().UTC(),
	}
	for _, o := range m.observers {
		o.ObserveTransition(rec)
	}
}
