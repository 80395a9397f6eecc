package strata

import "log/slog"

// Builder accumulates state handlers and configuration, then yields a
// Machine. The machine takes ownership of the context value and starts with
// no current state; nothing runs until Init.
type Builder[S comparable, E any, C any] struct {
	mctx       C
	states     map[S]State[S, E, C]
	superstate SuperstateFunc[S]
	logger     *slog.Logger
	observers  []Observer[S]
	tokens     TokenGenerator
	clock      *Clock
}

// New creates a builder holding the machine context. Type parameters are the
// state identifier, the event type and the context type:
//
//	m := strata.New[DeviceState, DeviceEvent](device).
//		State(Off, &offState{}).
//		State(Standby, &standbyState{}).
//		Superstates(parents).
//		Build()
func New[S comparable, E any, C any](mctx C) *Builder[S, E, C] {
	return &Builder[S, E, C]{
		mctx:   mctx,
		states: make(map[S]State[S, E, C]),
	}
}

// State registers handler for id, replacing any previous registration.
func (b *Builder[S, E, C]) State(id S, handler State[S, E, C]) *Builder[S, E, C] {
	b.states[id] = handler
	return b
}

// Superstates sets the resolver defining the delegation hierarchy. Without
// one, every state is a root and Super responses fail dispatch.
func (b *Builder[S, E, C]) Superstates(resolve SuperstateFunc[S]) *Builder[S, E, C] {
	b.superstate = resolve
	return b
}

// Logger sets the machine's structured logger. Defaults to slog.Default().
func (b *Builder[S, E, C]) Logger(logger *slog.Logger) *Builder[S, E, C] {
	b.logger = logger
	return b
}

// Observer appends an observer to be notified of transition records.
// Observers are notified in registration order.
func (b *Builder[S, E, C]) Observer(obs Observer[S]) *Builder[S, E, C] {
	b.observers = append(b.observers, obs)
	return b
}

// Tokens sets the dispatch token generator. Defaults to UUIDv7Generator.
func (b *Builder[S, E, C]) Tokens(gen TokenGenerator) *Builder[S, E, C] {
	b.tokens = gen
	return b
}

// Clock sets the logical clock stamping record seq numbers. Defaults to a
// fresh clock starting at 0; share one across machines for a global order.
func (b *Builder[S, E, C]) Clock(clock *Clock) *Builder[S, E, C] {
	b.clock = clock
	return b
}

// Build constructs the machine. The registry's shape is fixed from here on:
// the machine copies the handler map, so later builder mutation does not
// leak in. Build may be called once per builder in practice, though nothing
// enforces it; each call yields an independent machine sharing the same
// handler instances.
func (b *Builder[S, E, C]) Build() *Machine[S, E, C] {
	states := make(map[S]State[S, E, C], len(b.states))
	for id, h := range b.states {
		states[id] = h
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	tokens := b.tokens
	if tokens == nil {
		tokens = UUIDv7Generator{}
	}
	clock := b.clock
	if clock == nil {
		clock = NewClock()
	}

	return &Machine[S, E, C]{
		states:     states,
		superstate: b.superstate,
		mctx:       b.mctx,
		logger:     logger,
		observers:  b.observers,
		tokens:     tokens,
		clock:      clock,
	}
}
