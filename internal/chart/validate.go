package chart

import (
	"fmt"
	"sort"
	"strings"
)

// Validation problem codes (C100-C199)
const (
	ErrUnknownInitial   = "C101" // initial names an undefined state
	ErrUnknownTarget    = "C102" // transition target undefined
	ErrUnknownParent    = "C103" // parent names an undefined state
	ErrParentCycle      = "C104" // superstate chain loops
	ErrConflictingEvent = "C105" // event appears in both on and ignore
	ErrUnreachableState = "C106" // state has no inbound transition (warning)
)

// Problem is one static defect found in a chart definition.
type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Warning bool   `json:"warning,omitempty"`
}

// Error implements the error interface.
func (p Problem) Error() string {
	return fmt.Sprintf("[%s] %s: %s", p.Code, p.Field, p.Message)
}

// Validate checks a compiled definition against static rules.
// Returns all problems found (does not fail-fast), in a deterministic
// order. Problems with Warning set do not make the chart unrunnable.
func Validate(def *Definition) []Problem {
	var problems []Problem

	names := sortedStateNames(def)

	// C101: initial must be a defined state
	if _, ok := def.States[def.Initial]; !ok {
		problems = append(problems, Problem{
			Field:   "initial",
			Message: fmt.Sprintf("initial state %q is not defined", def.Initial),
			Code:    ErrUnknownInitial,
		})
	}

	for _, name := range names {
		sd := def.States[name]

		// C103: parent must be a defined state
		if sd.Parent != "" {
			if _, ok := def.States[sd.Parent]; !ok {
				problems = append(problems, Problem{
					Field:   fmt.Sprintf("state.%s.parent", name),
					Message: fmt.Sprintf("parent %q is not defined", sd.Parent),
					Code:    ErrUnknownParent,
				})
			}
		}

		// C102: every transition target must be a defined state
		for _, event := range sortedKeys(sd.On) {
			target := sd.On[event]
			if _, ok := def.States[target]; !ok {
				problems = append(problems, Problem{
					Field:   fmt.Sprintf("state.%s.on.%s", name, event),
					Message: fmt.Sprintf("transition target %q is not defined", target),
					Code:    ErrUnknownTarget,
				})
			}
		}

		// C105: an event cannot be both handled and ignored
		for _, event := range sd.Ignore {
			if _, ok := sd.On[event]; ok {
				problems = append(problems, Problem{
					Field:   fmt.Sprintf("state.%s.ignore", name),
					Message: fmt.Sprintf("event %q is both ignored and a transition trigger", event),
					Code:    ErrConflictingEvent,
				})
			}
		}
	}

	problems = append(problems, detectParentCycles(def, names)...)
	problems = append(problems, detectUnreachable(def, names)...)

	return problems
}

// detectParentCycles walks each state's superstate chain. The parent
// relation gives every state at most one outgoing edge, so a plain walk
// with a visited set finds every loop; Tarjan would be overkill here.
func detectParentCycles(def *Definition, names []string) []Problem {
	var problems []Problem
	inReportedCycle := make(map[string]bool)

	for _, name := range names {
		seen := map[string]int{name: 0}
		path := []string{name}
		current := name

		for {
			parent := def.States[current].Parent
			if parent == "" {
				break
			}
			if _, defined := def.States[parent]; !defined {
				// Unknown parent is reported separately (C103).
				break
			}
			if start, looped := seen[parent]; looped {
				cycle := append(path[start:], parent)
				if !reportCycleOnce(cycle, inReportedCycle) {
					break
				}
				problems = append(problems, Problem{
					Field:   fmt.Sprintf("state.%s.parent", cycle[0]),
					Message: fmt.Sprintf("superstate chain loops: %s", strings.Join(cycle, " → ")),
					Code:    ErrParentCycle,
				})
				break
			}
			seen[parent] = len(path)
			path = append(path, parent)
			current = parent
		}
	}

	return problems
}

// reportCycleOnce marks the cycle's members, returning false when any
// member was already part of a reported cycle. Walks starting from
// different states discover the same loop; only one report is wanted.
func reportCycleOnce(cycle []string, reported map[string]bool) bool {
	for _, s := range cycle {
		if reported[s] {
			return false
		}
	}
	for _, s := range cycle {
		reported[s] = true
	}
	return true
}

// detectUnreachable flags states that are neither the initial state nor
// the target of any transition. Reported as warnings: a host can still
// drive the machine there with a direct Init.
func detectUnreachable(def *Definition, names []string) []Problem {
	reachable := map[string]bool{def.Initial: true}
	for _, name := range names {
		for _, target := range def.States[name].On {
			reachable[target] = true
		}
	}

	var problems []Problem
	for _, name := range names {
		if reachable[name] {
			continue
		}
		problems = append(problems, Problem{
			Field:   fmt.Sprintf("state.%s", name),
			Message: fmt.Sprintf("state %q is not the initial state and no transition targets it", name),
			Code:    ErrUnreachableState,
			Warning: true,
		})
	}

	return problems
}

// HasErrors reports whether any problem is error-grade.
func HasErrors(problems []Problem) bool {
	for _, p := range problems {
		if !p.Warning {
			return true
		}
	}
	return false
}

// sortedStateNames returns the definition's state names in sorted order
// so validation and machine construction are deterministic.
func sortedStateNames(def *Definition) []string {
	names := make([]string, 0, len(def.States))
	for name := range def.States {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
