package journal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/strata"
)

// Observer appends every transition record it sees to a Store. It
// implements strata.Observer for any state type; states and events are
// stored in their fmt.Sprint form.
//
// Write failures never interrupt dispatch: the failure is logged, the
// first one is retained for Err, and the observer keeps going. Like
// every observer it runs on the dispatching goroutine, so Err should
// be consulted between dispatches, not concurrently with one.
type Observer[S comparable] struct {
	store  *Store
	logger *slog.Logger
	err    error
}

// NewObserver creates an Observer writing to store. A nil logger
// defaults to slog.Default().
func NewObserver[S comparable](store *Store, logger *slog.Logger) *Observer[S] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer[S]{store: store, logger: logger}
}

// ObserveTransition implements strata.Observer.
func (o *Observer[S]) ObserveTransition(rec strata.TransitionRecord[S]) {
	e := Entry{
		Token:      rec.Token,
		Seq:        rec.Seq,
		Kind:       string(rec.Kind),
		FromState:  fmt.Sprint(rec.From),
		ToState:    fmt.Sprint(rec.To),
		Trigger:    rec.Trigger,
		RecordedAt: rec.At,
	}

	// Dispatch must not block on journal trouble, so the append is not
	// bound to the dispatch deadline.
	if err := o.store.Append(context.Background(), e); err != nil {
		o.logger.Error("journal append failed",
			"token", e.Token,
			"seq", e.Seq,
			"from", e.FromState,
			"to", e.ToState,
			"error", err,
		)
		if o.err == nil {
			o.err = err
		}
	}
}

// Err returns the first append failure, or nil if every record made it
// to the store.
func (o *Observer[S]) Err() error {
	return o.err
}
