package chart

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// Load reads and compiles a chart from a CUE file or package directory.
// A single file may omit its package clause; files in a directory need one
// so the CUE loader picks them up, and they unify into one chart.
func Load(path string) (*Definition, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("chart not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("accessing chart: %w", err)
	}

	// A directory loads as a CUE package; a single file loads directly.
	cfg := &load.Config{Dir: path}
	args := []string{"."}
	if !info.IsDir() {
		cfg.Dir = filepath.Dir(path)
		args = []string{filepath.Base(path)}
	}

	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", path)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	ctx := cuecontext.New()
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	chartVal := value.LookupPath(cue.ParsePath("chart"))
	if !chartVal.Exists() {
		return nil, &CompileError{
			Field:   "chart",
			Message: fmt.Sprintf("no chart field found in %s", path),
			Pos:     value.Pos(),
		}
	}

	return Compile(chartVal)
}
