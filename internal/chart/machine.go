package chart

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/strata"
)

// Trace is the machine context for chart-driven machines. States append
// to it as they are entered and exited, giving scripts and the CLI a
// settled view of what a dispatch did.
type Trace struct {
	Entries []string
	Exits   []string

	// Events counts handler invocations, including delegation hops, not
	// distinct dispatches.
	Events int
}

// BuildOptions configure the machine built from a definition. Zero
// values defer to the strata builder defaults.
type BuildOptions struct {
	Logger    *slog.Logger
	Observers []strata.Observer[string]
	Tokens    strata.TokenGenerator
	Clock     *strata.Clock
}

// BuildMachine instantiates a runnable machine from a compiled chart.
// Each chart state becomes a table-driven handler: events in On
// transition, events in Ignore are handled in place, and anything else
// is delegated up the parent chain (the machine reports INVALID_EVENT
// when the chain runs out). The chart's parent fields become the
// machine's superstate resolver.
//
// The definition should be validated first; BuildMachine trusts it.
func BuildMachine(def *Definition, opts BuildOptions) *strata.Machine[string, string, Trace] {
	b := strata.New[string, string](Trace{})

	for _, name := range sortedStateNames(def) {
		b.State(name, &chartState{name: name, def: def.States[name]})
	}

	b.Superstates(func(id string) (string, bool) {
		sd, ok := def.States[id]
		if !ok || sd.Parent == "" {
			return "", false
		}
		return sd.Parent, true
	})

	if opts.Logger != nil {
		b.Logger(opts.Logger)
	}
	for _, obs := range opts.Observers {
		b.Observer(obs)
	}
	if opts.Tokens != nil {
		b.Tokens(opts.Tokens)
	}
	if opts.Clock != nil {
		b.Clock(opts.Clock)
	}

	return b.Build()
}

// chartState drives one state from its compiled table.
type chartState struct {
	name string
	def  StateDef
}

func (s *chartState) OnEnter(_ context.Context, trace *Trace) strata.Response[string] {
	trace.Entries = append(trace.Entries, s.name)
	return strata.Handled[string]()
}

func (s *chartState) OnEvent(_ context.Context, event string, trace *Trace) strata.Response[string] {
	trace.Events++

	if target, ok := s.def.On[event]; ok {
		return strata.TransitionTo(target)
	}
	for _, ignored := range s.def.Ignore {
		if ignored == event {
			return strata.Handled[string]()
		}
	}
	// Unknown events always go up; at the root the machine turns the
	// exhausted chain into INVALID_EVENT naming this state.
	return strata.Super[string]()
}

func (s *chartState) OnExit(_ context.Context, trace *Trace) {
	trace.Exits = append(trace.Exits, s.name)
}

func (s *chartState) Timeout(context.Context, *Trace) (time.Duration, bool) {
	return s.def.Timeout, s.def.HasTimeout
}
