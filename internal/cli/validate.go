package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/chart"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Chart    string          `json:"chart,omitempty"`
	Valid    bool            `json:"valid"`
	Problems []chart.Problem `json:"problems,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <chart>",
		Short: "Check a chart without running it",
		Long: `Compile a CUE chart and run every static check against it.

Reports unknown states, superstate cycles and unreachable states in one
pass. Warnings are listed but do not fail validation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidateChart(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidateChart(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	def, err := chart.Load(path)
	if err != nil {
		// A compile error is a content problem (exit 1); everything else
		// is a command error (exit 2).
		var ce *chart.CompileError
		if errors.As(err, &ce) {
			return outputProblems(formatter, "", []chart.Problem{{
				Field:   ce.Field,
				Message: ce.Message,
				Code:    ErrCodeChartLoad,
			}})
		}
		_ = formatter.Error(ErrCodeChartLoad, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load chart", err)
	}

	formatter.VerboseLog("Compiled chart %q with %d state(s)", def.Name, len(def.States))

	problems := chart.Validate(def)
	if chart.HasErrors(problems) {
		return outputProblems(formatter, def.Name, problems)
	}

	return outputValidateSuccess(formatter, def, problems)
}

// outputValidateSuccess reports a valid chart, listing any warnings.
func outputValidateSuccess(formatter *OutputFormatter, def *chart.Definition, warnings []chart.Problem) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{
			Chart:    def.Name,
			Valid:    true,
			Problems: warnings,
		})
	}

	fmt.Fprintf(formatter.Writer, "✓ Chart %q valid (%d states)\n", def.Name, len(def.States))
	for _, w := range warnings {
		fmt.Fprintf(formatter.Writer, "  warning %s: %s\n", w.Code, w.Message)
	}
	return nil
}

// outputProblems reports validation problems and fails with exit code 1.
func outputProblems(formatter *OutputFormatter, chartName string, problems []chart.Problem) error {
	if formatter.Format == "json" {
		result := ValidationResult{
			Chart:    chartName,
			Valid:    false,
			Problems: problems,
		}

		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    problems[0].Code,
				Message: problems[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d problem(s)", len(problems)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, p := range problems {
		grade := "error"
		if p.Warning {
			grade = "warning"
		}
		fmt.Fprintf(formatter.Writer, "  %s %s %s: %s\n", grade, p.Code, p.Field, p.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d problem(s)", len(problems)))
}
