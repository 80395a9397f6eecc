package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// deviceChartCUE exercises parent delegation (active delegates PowerOff to
// standby) and per-state timeouts.
const deviceChartCUE = `
chart: {
	name:    "device"
	initial: "off"
	state: {
		off: {
			on: PowerOn: "standby"
		}
		standby: {
			timeout: "60s"
			on: {
				Activate: "active"
				PowerOff: "off"
			}
		}
		active: {
			parent:  "standby"
			timeout: "30s"
			on: Deactivate: "standby"
			ignore: ["Noise"]
		}
	}
}
`

// powerScriptYAML drives the device chart through a full power cycle. The
// last step lands in off via delegation: active does not handle PowerOff,
// standby does.
const powerScriptYAML = `name: power-cycle
steps:
  - event: PowerOn
    expect: standby
  - event: Activate
    expect: active
  - event: PowerOff
    expect: off
`

func writeTestChart(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chart.cue")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func writeTestScript(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}
