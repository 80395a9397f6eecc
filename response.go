package strata

import "fmt"

// ResponseKind identifies the four possible outcomes of a lifecycle hook.
type ResponseKind uint8

const (
	// ResponseHandled means the hook consumed the event or completed entry;
	// the machine stays where it is.
	ResponseHandled ResponseKind = iota

	// ResponseTransition requests a move to another state.
	ResponseTransition

	// ResponseSuper delegates the event to the superstate. Only meaningful
	// from OnEvent; an OnEnter hook returning it is a configuration error.
	ResponseSuper

	// ResponseError aborts the dispatch with a handler-supplied error.
	ResponseError
)

// String returns the lowercase name of the kind.
func (k ResponseKind) String() string {
	switch k {
	case ResponseHandled:
		return "handled"
	case ResponseTransition:
		return "transition"
	case ResponseSuper:
		return "super"
	case ResponseError:
		return "error"
	}
	return fmt.Sprintf("unknown(%d)", uint8(k))
}

// Response is the result of an OnEnter or OnEvent hook. Construct values
// with Handled, TransitionTo, Super, Fail or Failf; the zero value is
// equivalent to Handled().
type Response[S comparable] struct {
	kind   ResponseKind
	target S
	err    error
}

// Handled reports that the hook dealt with the event (or completed entry)
// and no transition is needed.
func Handled[S comparable]() Response[S] {
	return Response[S]{kind: ResponseHandled}
}

// TransitionTo requests a transition to target. The state type is inferred
// from the argument.
func TransitionTo[S comparable](target S) Response[S] {
	return Response[S]{kind: ResponseTransition, target: target}
}

// Super delegates the event to the superstate resolved for the active state.
func Super[S comparable]() Response[S] {
	return Response[S]{kind: ResponseSuper}
}

// Fail aborts the dispatch with err. From OnEnter the machine surfaces it as
// a CodeStateInvalid error; from OnEvent as CodeInvalidEvent.
func Fail[S comparable](err error) Response[S] {
	return Response[S]{kind: ResponseError, err: err}
}

// Failf is Fail with fmt.Errorf formatting.
func Failf[S comparable](format string, args ...any) Response[S] {
	return Response[S]{kind: ResponseError, err: fmt.Errorf(format, args...)}
}

// Kind returns which of the four outcomes this response carries.
func (r Response[S]) Kind() ResponseKind { return r.kind }

// Target returns the requested transition target. The second return is false
// unless Kind is ResponseTransition.
func (r Response[S]) Target() (S, bool) {
	if r.kind != ResponseTransition {
		var zero S
		return zero, false
	}
	return r.target, true
}

// Err returns the handler-supplied error, or nil unless Kind is ResponseError.
func (r Response[S]) Err() error {
	if r.kind != ResponseError {
		return nil
	}
	return r.err
}

// String renders the response for logs and test failures.
func (r Response[S]) String() string {
	switch r.kind {
	case ResponseTransition:
		return fmt.Sprintf("transition(%v)", r.target)
	case ResponseError:
		return fmt.Sprintf("error(%v)", r.err)
	default:
		return r.kind.String()
	}
}
