package strata

import "time"

// RecordKind distinguishes the two kinds of facts a machine reports.
type RecordKind string

const (
	// RecordTransition is a completed transition leg: the From state was
	// exited and the To state's OnEnter ran.
	RecordTransition RecordKind = "transition"

	// RecordDelegation is a delegation hop: From declined an event and the
	// machine re-dispatched it to the superstate To. The current state does
	// not change on a delegation hop.
	RecordDelegation RecordKind = "delegation"
)

// Trigger labels used for transition legs not driven directly by an event.
// Event-driven legs carry the event's fmt.Sprint text, and delegation hops
// carry "super:" followed by the event text.
const (
	TriggerInit  = "init"
	TriggerEnter = "enter"
)

// TransitionRecord is one observed fact. Seq orders records across the
// machine's lifetime (or across machines sharing a Clock); Token groups the
// records of a single Init or ProcessEvent call.
//
// The very first state entered by Init produces no record since there is no
// From state; it is queryable via Machine.Initial instead.
type TransitionRecord[S comparable] struct {
	Seq     int64
	Token   string
	Kind    RecordKind
	From    S
	To      S
	Trigger string
	At      time.Time
}

// Observer receives transition facts from a machine. Observers run
// synchronously on the dispatching goroutine, in registration order, and
// must not call back into the machine.
type Observer[S comparable] interface {
	ObserveTransition(rec TransitionRecord[S])
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc[S comparable] func(rec TransitionRecord[S])

// ObserveTransition calls f(rec).
func (f ObserverFunc[S]) ObserveTransition(rec TransitionRecord[S]) { f(rec) }

type edge[S comparable] struct {
	from, to S
}

// Recorder is an in-memory observer that keeps one record per (From, To)
// edge, replacing the record when an edge repeats, in first-seen order.
// That is the shape diagram rendering wants: an edge set, not a timeline
// (the journal package keeps timelines).
//
// Recorder is not synchronized; it relies on the machine's one-dispatch-at-a-
// time discipline like everything else on the dispatch path.
type Recorder[S comparable] struct {
	byEdge  map[edge[S]]int
	records []TransitionRecord[S]
}

// NewRecorder creates an empty Recorder.
func NewRecorder[S comparable]() *Recorder[S] {
	return &Recorder[S]{byEdge: make(map[edge[S]]int)}
}

// ObserveTransition implements Observer.
func (r *Recorder[S]) ObserveTransition(rec TransitionRecord[S]) {
	k := edge[S]{from: rec.From, to: rec.To}
	if i, ok := r.byEdge[k]; ok {
		r.records[i] = rec
		return
	}
	r.byEdge[k] = len(r.records)
	r.records = append(r.records, rec)
}

// Records returns a copy of the recorded edges in first-seen order.
func (r *Recorder[S]) Records() []TransitionRecord[S] {
	out := make([]TransitionRecord[S], len(r.records))
	copy(out, r.records)
	return out
}

// Len returns the number of distinct edges recorded.
func (r *Recorder[S]) Len() int { return len(r.records) }
