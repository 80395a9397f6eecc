package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/roach88/strata"
	"github.com/roach88/strata/internal/chart"
	"github.com/roach88/strata/internal/script"
	"github.com/roach88/strata/journal"
)

// Run failure codes
const (
	ErrCodeInitFailed = "E101" // Machine failed to enter the initial state
	ErrCodeStepFailed = "E102" // Script step assertion failed
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Script     string
	Database   string
	SeedTokens bool
}

// StepResult is one script step's outcome.
type StepResult struct {
	Index  int    `json:"index"`
	Event  string `json:"event"`
	State  string `json:"state"`            // state the machine settled in after the step
	Code   string `json:"code,omitempty"`   // dispatch error code, when the step errored
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"` // assertion mismatch text
}

// RunResult is the full run summary.
type RunResult struct {
	Chart   string       `json:"chart"`
	Script  string       `json:"script"`
	Initial string       `json:"initial"`
	Final   string       `json:"final"`
	Steps   []StepResult `json:"steps"`
	Passed  bool         `json:"passed"`
	Edges   int          `json:"edges"`             // distinct transition edges observed during the run
	Journal string       `json:"journal,omitempty"` // db path when journaling was requested
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <chart>",
		Short: "Drive a chart with an event script",
		Long: `Compile a chart, build its machine, and feed it a YAML event script.

Each step dispatches one event. A step may assert the state the machine
settles in (expect) or the dispatch error code it must produce (error).
The run stops at the first failed assertion.

Examples:
  strata run device.cue --script power-cycle.yaml
  strata run device.cue --script power-cycle.yaml --db run.db --seed-tokens
  strata run device.cue --script power-cycle.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Script, "script", "", "path to event script YAML (required)")
	_ = cmd.MarkFlagRequired("script")
	cmd.Flags().StringVar(&opts.Database, "db", "", "journal transitions to this SQLite database")
	cmd.Flags().BoolVar(&opts.SeedTokens, "seed-tokens", false, "use sequential dispatch tokens for reproducible journals")

	return cmd
}

func runScript(opts *RunOptions, chartPath string, cmd *cobra.Command) error {
	// Use command's context if available (for testing), otherwise create one
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	def, err := chart.Load(chartPath)
	if err != nil {
		_ = formatter.Error(ErrCodeChartLoad, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load chart", err)
	}
	if problems := chart.Validate(def); chart.HasErrors(problems) {
		return outputProblems(formatter, def.Name, problems)
	}

	sc, err := script.Load(opts.Script)
	if err != nil {
		_ = formatter.Error(ErrCodeScriptLoad, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load script", err)
	}

	formatter.VerboseLog("Running script %q against chart %q (%d steps)", sc.Name, def.Name, len(sc.Steps))

	recorder := strata.NewRecorder[string]()
	buildOpts := chart.BuildOptions{
		Observers: []strata.Observer[string]{recorder},
	}
	if opts.Verbose {
		// Machine debug logs go to stderr so stdout stays parseable.
		buildOpts.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	} else {
		buildOpts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.SeedTokens {
		buildOpts.Tokens = &seqGenerator{prefix: "run"}
	}

	var journalObs *journal.Observer[string]
	if opts.Database != "" {
		st, err := journal.Open(opts.Database)
		if err != nil {
			_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer st.Close()
		journalObs = journal.NewObserver[string](st, buildOpts.Logger)
		buildOpts.Observers = append(buildOpts.Observers, journalObs)
	}

	m := chart.BuildMachine(def, buildOpts)
	if err := m.Init(ctx, def.Initial); err != nil {
		_ = formatter.Error(ErrCodeInitFailed, err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to enter initial state", err)
	}

	result := RunResult{
		Chart:   def.Name,
		Script:  sc.Name,
		Initial: def.Initial,
		Passed:  true,
		Journal: opts.Database,
	}

	for i, step := range sc.Steps {
		sr := applyStep(ctx, m, i, step)
		formatter.VerboseLog("step %d: event %q settled in %q (passed=%v)", i, step.Event, sr.State, sr.Passed)
		result.Steps = append(result.Steps, sr)
		if !sr.Passed {
			result.Passed = false
			break
		}
	}

	if final, ok := m.Current(); ok {
		result.Final = final
	}
	result.Edges = recorder.Len()

	if journalObs != nil && journalObs.Err() != nil {
		_ = formatter.Error(ErrCodeJournal, "journal writes failed", journalObs.Err().Error())
		return WrapExitError(ExitCommandError, "journal writes failed", journalObs.Err())
	}

	if !result.Passed {
		return outputRunFailure(formatter, result)
	}
	return outputRunSuccess(formatter, result)
}

// applyStep dispatches one script step and checks its assertion.
func applyStep(ctx context.Context, m *strata.Machine[string, string, chart.Trace], index int, step script.Step) StepResult {
	err := m.ProcessEvent(ctx, step.Event)

	sr := StepResult{Index: index, Event: step.Event, Passed: true}
	if state, ok := m.Current(); ok {
		sr.State = state
	}
	if code, ok := strata.CodeOf(err); ok {
		sr.Code = string(code)
	}

	switch {
	case step.Error != "":
		if err == nil {
			sr.Passed = false
			sr.Detail = fmt.Sprintf("expected error %s, event dispatched cleanly", step.Error)
		} else if sr.Code != step.Error {
			sr.Passed = false
			sr.Detail = fmt.Sprintf("expected error %s, got: %v", step.Error, err)
		}
	case err != nil:
		sr.Passed = false
		sr.Detail = fmt.Sprintf("unexpected dispatch error: %v", err)
	case step.Expect != "" && sr.State != step.Expect:
		sr.Passed = false
		sr.Detail = fmt.Sprintf("expected state %q, settled in %q", step.Expect, sr.State)
	}

	return sr
}

func outputRunSuccess(formatter *OutputFormatter, result RunResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Script %q passed (%d steps)\n", result.Script, len(result.Steps))
	fmt.Fprintf(formatter.Writer, "  chart: %s\n", result.Chart)
	fmt.Fprintf(formatter.Writer, "  final: %s\n", result.Final)
	fmt.Fprintf(formatter.Writer, "  edges: %d\n", result.Edges)
	return nil
}

func outputRunFailure(formatter *OutputFormatter, result RunResult) error {
	failed := result.Steps[len(result.Steps)-1]
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("step %d failed", failed.Index))

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    ErrCodeStepFailed,
				Message: failed.Detail,
			},
		}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintf(formatter.Writer, "✗ Step %d failed\n", failed.Index)
	fmt.Fprintf(formatter.Writer, "  event: %s\n", failed.Event)
	fmt.Fprintf(formatter.Writer, "  %s\n", failed.Detail)
	return exitErr
}

// seqGenerator yields run-1, run-2, ... so journal rows line up across
// repeated runs of the same script.
type seqGenerator struct {
	prefix string
	n      atomic.Int64
}

func (g *seqGenerator) Generate() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.n.Add(1))
}
