// Package chart compiles declarative CUE state charts into runnable
// machines.
//
// A chart lives under a top-level "chart" field:
//
//	chart: {
//		name:    "device"
//		initial: "off"
//		state: off: {
//			on: PowerOn: "standby"
//		}
//		state: standby: {
//			parent:  "off"
//			timeout: "60s"
//			on: { Activate: "active" }
//			ignore: ["Noise"]
//		}
//	}
//
// Compile is fail-fast and reports the first problem with its source
// position. Validate runs after a successful compile and collects every
// static problem in one pass. BuildMachine turns a validated definition
// into a strata machine whose states are driven by the chart's tables.
package chart

import (
	"fmt"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"golang.org/x/text/unicode/norm"
)

// Definition is a compiled chart.
type Definition struct {
	Name        string
	Description string
	Initial     string
	States      map[string]StateDef
}

// StateDef is one state's behavior table.
type StateDef struct {
	Parent     string
	Timeout    time.Duration
	HasTimeout bool
	On         map[string]string
	Ignore     []string
}

// Compile parses a CUE value into a chart Definition.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the chart struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`chart: { ... }`)
//	def, err := chart.Compile(v.LookupPath(cue.ParsePath("chart")))
//
// State, event and target names are NFC normalized so spellings that
// differ only in Unicode composition denote the same state.
func Compile(v cue.Value) (*Definition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def := &Definition{States: make(map[string]StateDef)}

	nameVal := v.LookupPath(cue.ParsePath("name"))
	if !nameVal.Exists() {
		return nil, &CompileError{
			Field:   "name",
			Message: "chart name is required",
			Pos:     v.Pos(),
		}
	}
	name, err := nameVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	def.Name = norm.NFC.String(name)

	descVal := v.LookupPath(cue.ParsePath("description"))
	if descVal.Exists() {
		desc, err := descVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		def.Description = desc
	}

	initialVal := v.LookupPath(cue.ParsePath("initial"))
	if !initialVal.Exists() {
		return nil, &CompileError{
			Field:   "initial",
			Message: "initial state is required",
			Pos:     v.Pos(),
		}
	}
	initial, err := initialVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	def.Initial = norm.NFC.String(initial)

	stateVal := v.LookupPath(cue.ParsePath("state"))
	if !stateVal.Exists() {
		return nil, &CompileError{
			Field:   "state",
			Message: "at least one state is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := stateVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		stateName := norm.NFC.String(iter.Label())
		if _, dup := def.States[stateName]; dup {
			return nil, &CompileError{
				Field:   fmt.Sprintf("state.%s", stateName),
				Message: "duplicate state name after normalization",
				Pos:     iter.Value().Pos(),
			}
		}
		sd, err := compileState(iter.Value(), stateName)
		if err != nil {
			return nil, err
		}
		def.States[stateName] = sd
	}

	if len(def.States) == 0 {
		return nil, &CompileError{
			Field:   "state",
			Message: "at least one state is required",
			Pos:     stateVal.Pos(),
		}
	}

	return def, nil
}

// compileState parses a single state's table.
func compileState(v cue.Value, name string) (StateDef, error) {
	var sd StateDef

	parentVal := v.LookupPath(cue.ParsePath("parent"))
	if parentVal.Exists() {
		parent, err := parentVal.String()
		if err != nil {
			return sd, formatCUEError(err)
		}
		sd.Parent = norm.NFC.String(parent)
	}

	timeoutVal := v.LookupPath(cue.ParsePath("timeout"))
	if timeoutVal.Exists() {
		raw, err := timeoutVal.String()
		if err != nil {
			return sd, formatCUEError(err)
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return sd, &CompileError{
				Field:   fmt.Sprintf("state.%s.timeout", name),
				Message: fmt.Sprintf("invalid duration %q: %v", raw, err),
				Pos:     timeoutVal.Pos(),
			}
		}
		if d < 0 {
			return sd, &CompileError{
				Field:   fmt.Sprintf("state.%s.timeout", name),
				Message: fmt.Sprintf("timeout must not be negative, got %q", raw),
				Pos:     timeoutVal.Pos(),
			}
		}
		sd.Timeout = d
		sd.HasTimeout = true
	}

	onVal := v.LookupPath(cue.ParsePath("on"))
	if onVal.Exists() {
		onIter, err := onVal.Fields()
		if err != nil {
			return sd, formatCUEError(err)
		}
		sd.On = make(map[string]string)
		for onIter.Next() {
			event := norm.NFC.String(onIter.Label())
			target, err := onIter.Value().String()
			if err != nil {
				return sd, formatCUEError(err)
			}
			sd.On[event] = norm.NFC.String(target)
		}
	}

	ignoreVal := v.LookupPath(cue.ParsePath("ignore"))
	if ignoreVal.Exists() {
		igIter, err := ignoreVal.List()
		if err != nil {
			return sd, formatCUEError(err)
		}
		for igIter.Next() {
			event, err := igIter.Value().String()
			if err != nil {
				return sd, formatCUEError(err)
			}
			sd.Ignore = append(sd.Ignore, norm.NFC.String(event))
		}
	}

	return sd, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
