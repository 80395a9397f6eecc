package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/strata"
	"github.com/roach88/strata/internal/chart"
	"github.com/roach88/strata/journal"
	"github.com/roach88/strata/plantuml"
)

// DiagramOptions holds flags for the diagram command.
type DiagramOptions struct {
	*RootOptions
	Output   string // output file path
	Database string
	Token    string
}

// DiagramResult holds the rendered diagram.
type DiagramResult struct {
	Chart  string `json:"chart"`
	Source string `json:"source"`
	Output string `json:"output,omitempty"`
}

// NewDiagramCommand creates the diagram command.
func NewDiagramCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiagramOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "diagram <chart>",
		Short: "Render a chart as PlantUML",
		Long: `Render a chart as a PlantUML state diagram.

By default the diagram shows the chart's declared structure: states,
parent links, event edges, and the initial state. With --db, it instead
shows the transitions a run actually journaled, optionally narrowed to
one dispatch token.

Examples:
  strata diagram device.cue
  strata diagram device.cue -o device.puml
  strata diagram device.cue --db ./run.db --token run-2`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagram(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")
	cmd.Flags().StringVar(&opts.Database, "db", "", "render journaled transitions from this SQLite database")
	cmd.Flags().StringVar(&opts.Token, "token", "", "narrow journal rendering to one dispatch token")

	return cmd
}

func runDiagram(opts *DiagramOptions, chartPath string, cmd *cobra.Command) error {
	ctx := context.Background()
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

	var d *plantuml.Diagram[string]
	if opts.Database == "" {
		formatter.VerboseLog("Rendering structure of chart %q (%d states)", def.Name, len(def.States))
		d = buildChartDiagram(def)
	} else {
		st, err := journal.Open(opts.Database)
		if err != nil {
			_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer st.Close()

		var entries []journal.Entry
		if opts.Token != "" {
			entries, err = st.ReadToken(ctx, opts.Token)
		} else {
			entries, err = st.ReadAll(ctx)
		}
		if err != nil {
			_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to read journal", err)
		}

		formatter.VerboseLog("Journal yielded %d entries", len(entries))
		d = buildJournalDiagram(def, entries)
	}

	source := d.Render()

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(source), 0644); err != nil {
			_ = formatter.Error(ErrCodeWriteFile, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, "failed to write diagram", err)
		}
	}

	result := DiagramResult{Chart: def.Name, Source: source, Output: opts.Output}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "Wrote diagram to %s\n", opts.Output)
		return nil
	}
	fmt.Fprint(formatter.Writer, source)
	return nil
}

// buildChartDiagram renders the declared structure of a chart.
func buildChartDiagram(def *chart.Definition) *plantuml.Diagram[string] {
	d := plantuml.New[string]()

	for name, st := range def.States {
		d.AddState(name)
		if st.Parent != "" {
			d.SetParent(name, st.Parent)
		}

		// Events sharing a target collapse into one labeled edge.
		byTarget := make(map[string][]string)
		for event, target := range st.On {
			byTarget[target] = append(byTarget[target], event)
		}
		for target, events := range byTarget {
			sort.Strings(events)
			d.AddEdge(name, target, strings.Join(events, ", "))
		}
	}

	d.SetCurrent(def.Initial)
	return d
}

// buildJournalDiagram renders the transitions a run actually took. The
// chart definition supplies parent links; the last settled transition
// marks the current state.
func buildJournalDiagram(def *chart.Definition, entries []journal.Entry) *plantuml.Diagram[string] {
	records := make([]strata.TransitionRecord[string], 0, len(entries))
	for _, e := range entries {
		records = append(records, strata.TransitionRecord[string]{
			Seq:     e.Seq,
			Token:   e.Token,
			Kind:    strata.RecordKind(e.Kind),
			From:    e.FromState,
			To:      e.ToState,
			Trigger: e.Trigger,
			At:      e.RecordedAt,
		})
	}

	resolve := func(s string) (string, bool) {
		st, ok := def.States[s]
		if !ok || st.Parent == "" {
			return "", false
		}
		return st.Parent, true
	}
	d := plantuml.FromRecords(records, resolve)

	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Kind == string(strata.RecordTransition) {
			d.SetCurrent(entries[i].ToState)
			break
		}
	}

	return d
}
