package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/strata"
	"github.com/roach88/strata/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Token    string // optional - without it the command lists journaled tokens
}

// TraceEntry is a single step in the trace timeline.
type TraceEntry struct {
	Seq        int64     `json:"seq"`
	Kind       string    `json:"kind"` // "transition" or "delegation"
	From       string    `json:"from"`
	To         string    `json:"to"`
	Trigger    string    `json:"trigger"`
	RecordedAt time.Time `json:"recorded_at"`
}

// TraceResult holds the complete trace output for one token.
type TraceResult struct {
	Token    string       `json:"token"`
	Timeline []TraceEntry `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEntries int `json:"total_entries"`
	Transitions  int `json:"transitions"`
	Delegations  int `json:"delegations"`
}

// TokenList is the output of trace without --token.
type TokenList struct {
	Tokens []string `json:"tokens"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect journaled dispatches",
		Long: `Inspect the transition journal written by run --db.

With --token, shows the timeline for one dispatch: every delegation hop
and settled transition, in sequence order. Without --token, lists the
tokens present in the journal.

Examples:
  strata trace --db ./run.db
  strata trace --db ./run.db --token run-2
  strata trace --db ./run.db --token run-2 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Token, "token", "", "dispatch token to trace")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := journal.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	if opts.Token == "" {
		return listTokens(ctx, st, opts, cmd)
	}

	entries, err := st.ReadToken(ctx, opts.Token)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	if len(entries) == 0 {
		if opts.Format == "json" {
			return outputTraceJSON(cmd, TraceResult{
				Token:    opts.Token,
				Timeline: []TraceEntry{},
				Stats:    TraceStats{},
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "No entries found for token: %s\n", opts.Token)
		return nil
	}

	result := buildTraceResult(opts.Token, entries)

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd, result, opts.Verbose)
}

// listTokens handles trace without --token.
func listTokens(ctx context.Context, st *journal.Store, opts *TraceOptions, cmd *cobra.Command) error {
	tokens, err := st.Tokens(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list tokens", err)
	}

	if opts.Format == "json" {
		response := CLIResponse{
			Status: "ok",
			Data:   TokenList{Tokens: tokens},
		}
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(response)
	}

	w := cmd.OutOrStdout()
	if len(tokens) == 0 {
		fmt.Fprintln(w, "Journal is empty.")
		return nil
	}
	fmt.Fprintf(w, "Journaled tokens (%d):\n", len(tokens))
	for _, token := range tokens {
		fmt.Fprintf(w, "  %s\n", token)
	}
	return nil
}

// buildTraceResult converts journal entries to the trace timeline.
func buildTraceResult(token string, entries []journal.Entry) TraceResult {
	timeline := make([]TraceEntry, 0, len(entries))
	stats := TraceStats{}

	for _, e := range entries {
		timeline = append(timeline, TraceEntry{
			Seq:        e.Seq,
			Kind:       e.Kind,
			From:       e.FromState,
			To:         e.ToState,
			Trigger:    e.Trigger,
			RecordedAt: e.RecordedAt,
		})

		switch e.Kind {
		case string(strata.RecordTransition):
			stats.Transitions++
		case string(strata.RecordDelegation):
			stats.Delegations++
		}
	}
	stats.TotalEntries = len(timeline)

	return TraceResult{Token: token, Timeline: timeline, Stats: stats}
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// outputTraceText outputs the trace result as text.
func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Trace for Token: %s\n", result.Token)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no entries)")
	} else {
		for _, entry := range result.Timeline {
			fmt.Fprintf(w, "  [%d] %s %s -> %s (%s)\n",
				entry.Seq, strings.ToUpper(entry.Kind), entry.From, entry.To, entry.Trigger)
			if verbose {
				fmt.Fprintf(w, "       At: %s\n", entry.RecordedAt.Format(time.RFC3339Nano))
			}
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Entries: %d\n", result.Stats.TotalEntries)
	fmt.Fprintf(w, "  Transitions:   %d\n", result.Stats.Transitions)
	fmt.Fprintf(w, "  Delegations:   %d\n", result.Stats.Delegations)

	return nil
}
