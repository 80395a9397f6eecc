package strata

import (
	"errors"
	"fmt"
)

// Code categorizes dispatch failures.
type Code string

const (
	// CodeNotInitialized means ProcessEvent ran before Init.
	CodeNotInitialized Code = "NOT_INITIALIZED"

	// CodeStateNotRegistered means dispatch referenced an identifier with
	// no registered handler.
	CodeStateNotRegistered Code = "STATE_NOT_REGISTERED"

	// CodeStateInvalid means a state's OnEnter returned Fail.
	CodeStateInvalid Code = "STATE_INVALID"

	// CodeInvalidEvent means a state's OnEvent returned Fail, or delegation
	// ran out of superstates (or detected a cycle) with the event unhandled.
	CodeInvalidEvent Code = "INVALID_EVENT"

	// CodeEnterSuper means a state's OnEnter returned Super, which is never
	// valid: enter hooks have no parent to delegate to.
	CodeEnterSuper Code = "ENTER_SUPER"
)

// Error is the failure type returned by Init, ProcessEvent and the machine's
// internals. Every failure aborts its call immediately; the machine never
// retries, rolls back or downgrades one to a no-op.
type Error struct {
	// Code identifies the failure category.
	Code Code

	// State is the offending state identifier, nil for CodeNotInitialized.
	// For CodeInvalidEvent after exhausted delegation it names the topmost
	// state the walk reached, not the state that was active at the start.
	State any

	// Reason carries handler-supplied or protocol detail for
	// CodeStateInvalid and CodeInvalidEvent.
	Reason string

	// Err is the underlying handler error when one was given via Fail.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Code {
	case CodeNotInitialized:
		return "state machine not initialized"
	case CodeStateNotRegistered:
		return fmt.Sprintf("state %v not registered", e.State)
	case CodeStateInvalid:
		return fmt.Sprintf("state %v error: %s", e.State, e.Reason)
	case CodeInvalidEvent:
		return fmt.Sprintf("invalid event in state %v: %s", e.State, e.Reason)
	case CodeEnterSuper:
		return fmt.Sprintf("state %v: OnEnter must not return Super", e.State)
	}
	return fmt.Sprintf("%s: state %v", e.Code, e.State)
}

// Unwrap exposes the handler-supplied error for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.Err }

func newNotInitialized() *Error {
	return &Error{Code: CodeNotInitialized}
}

func newStateNotRegistered(id any) *Error {
	return &Error{Code: CodeStateNotRegistered, State: id}
}

func newStateInvalid(id any, cause error) *Error {
	return &Error{Code: CodeStateInvalid, State: id, Reason: fmt.Sprint(cause), Err: cause}
}

func newInvalidEvent(id any, cause error) *Error {
	return &Error{Code: CodeInvalidEvent, State: id, Reason: fmt.Sprint(cause), Err: cause}
}

func newInvalidEventReason(id any, reason string) *Error {
	return &Error{Code: CodeInvalidEvent, State: id, Reason: reason}
}

func newEnterSuper(id any) *Error {
	return &Error{Code: CodeEnterSuper, State: id}
}

// CodeOf extracts the dispatch error code from err, unwrapping as needed.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// IsNotInitialized reports whether err is a CodeNotInitialized dispatch error.
// Uses errors.As to handle wrapped errors.
func IsNotInitialized(err error) bool { return hasCode(err, CodeNotInitialized) }

// IsStateNotRegistered reports whether err is a CodeStateNotRegistered
// dispatch error.
func IsStateNotRegistered(err error) bool { return hasCode(err, CodeStateNotRegistered) }

// IsStateInvalid reports whether err is a CodeStateInvalid dispatch error.
func IsStateInvalid(err error) bool { return hasCode(err, CodeStateInvalid) }

// IsInvalidEvent reports whether err is a CodeInvalidEvent dispatch error.
func IsInvalidEvent(err error) bool { return hasCode(err, CodeInvalidEvent) }

// IsEnterSuper reports whether err is a CodeEnterSuper dispatch error.
func IsEnterSuper(err error) bool { return hasCode(err, CodeEnterSuper) }

func hasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
