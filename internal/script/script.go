// Package script loads YAML event scripts that drive chart machines.
//
// A script is an ordered list of events with optional assertions on
// the settled state or the expected dispatch error:
//
//	name: power-cycle
//	description: full lifecycle
//	steps:
//	  - event: PowerOn
//	    expect: standby
//	  - event: Bogus
//	    error: INVALID_EVENT
//	  - event: PowerOff
//
// Parsing is strict: unknown fields are rejected so typos like
// "expected:" fail loudly instead of silently skipping an assertion.
package script

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/strata"
)

// Script is an ordered list of events to feed a machine.
type Script struct {
	// Name uniquely identifies this script.
	Name string `yaml:"name"`

	// Description explains what this script exercises.
	Description string `yaml:"description,omitempty"`

	// Steps are applied in order. Execution stops at the first step
	// whose assertion fails.
	Steps []Step `yaml:"steps"`
}

// Step delivers one event and optionally asserts the outcome.
type Step struct {
	// Event is passed to ProcessEvent.
	Event string `yaml:"event"`

	// Expect optionally names the state the machine must settle in
	// after the event. Steps with Expect must dispatch cleanly.
	Expect string `yaml:"expect,omitempty"`

	// Error optionally names the dispatch error code the event must
	// produce (e.g. "INVALID_EVENT"). Steps without Error must succeed.
	Error string `yaml:"error,omitempty"`
}

// Load reads and parses a script YAML file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates script YAML.
func Parse(data []byte) (*Script, error) {
	var s Script
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validate(&s); err != nil {
		return nil, fmt.Errorf("invalid script: %w", err)
	}

	return &s, nil
}

// knownCodes are the dispatch error codes a step may expect.
var knownCodes = map[string]bool{
	string(strata.CodeNotInitialized):     true,
	string(strata.CodeStateNotRegistered): true,
	string(strata.CodeStateInvalid):       true,
	string(strata.CodeInvalidEvent):       true,
	string(strata.CodeEnterSuper):         true,
}

// validate checks that required fields are present and valid.
func validate(s *Script) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Event == "" {
			return fmt.Errorf("steps[%d]: event is required", i)
		}
		if step.Expect != "" && step.Error != "" {
			return fmt.Errorf("steps[%d]: expect and error are mutually exclusive", i)
		}
		if step.Error != "" && !knownCodes[step.Error] {
			return fmt.Errorf("steps[%d]: unknown error code %q", i, step.Error)
		}
	}

	return nil
}
