package script

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Valid(t *testing.T) {
	s, err := Parse([]byte(`
name: power-cycle
description: full lifecycle
steps:
  - event: PowerOn
    expect: standby
  - event: Bogus
    error: INVALID_EVENT
  - event: PowerOff
`))
	require.NoError(t, err)

	assert.Equal(t, "power-cycle", s.Name)
	assert.Equal(t, "full lifecycle", s.Description)
	require.Len(t, s.Steps, 3)
	assert.Equal(t, Step{Event: "PowerOn", Expect: "standby"}, s.Steps[0])
	assert.Equal(t, Step{Event: "Bogus", Error: "INVALID_EVENT"}, s.Steps[1])
	assert.Equal(t, Step{Event: "PowerOff"}, s.Steps[2])
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte(`
name: typo
steps:
  - event: PowerOn
    expected: standby
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParse_MissingName(t *testing.T) {
	_, err := Parse([]byte(`
steps:
  - event: PowerOn
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestParse_NoSteps(t *testing.T) {
	_, err := Parse([]byte(`
name: empty
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps list is required")
}

func TestParse_MissingEvent(t *testing.T) {
	_, err := Parse([]byte(`
name: bad
steps:
  - event: PowerOn
  - expect: standby
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps[1]: event is required")
}

func TestParse_ExpectAndErrorConflict(t *testing.T) {
	_, err := Parse([]byte(`
name: bad
steps:
  - event: PowerOn
    expect: standby
    error: INVALID_EVENT
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps[0]: expect and error are mutually exclusive")
}

func TestParse_UnknownErrorCode(t *testing.T) {
	_, err := Parse([]byte(`
name: bad
steps:
  - event: PowerOn
    error: KABOOM
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `steps[0]: unknown error code "KABOOM"`)
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := Parse([]byte("steps: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoad_File(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "power_cycle.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "power-cycle", s.Name)
	require.Len(t, s.Steps, 3)
	assert.Equal(t, "PowerOn", s.Steps[0].Event)
	assert.Equal(t, "standby", s.Steps[0].Expect)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read script file")
}
