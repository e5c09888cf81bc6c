package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/uirecorder/internal/journal"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Journal string
}

// HistoryResult is the JSON form of one journaled session with its script.
type HistoryResult struct {
	Session journal.Session `json:"session"`
	Script  []string        `json:"script"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "List journaled sessions or print one session's script",
		Long: `Without arguments, list every journaled session, newest first.
With a session id, print the script recorded in that session.

Examples:
  recorder history --journal sessions.db
  recorder history 0193f0a4-... --journal sessions.db`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "journal database (default: journal.path from the config)")
	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	path := opts.Journal
	if path == "" {
		path = opts.Config.Journal.Path
	}
	if path == "" {
		return WrapExitError(ExitCommandError, "no journal", errors.New("set --journal or journal.path"))
	}
	store, err := journal.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "open journal", err)
	}
	defer store.Close()

	w := cmd.OutOrStdout()
	if len(args) == 1 {
		sess, err := store.Session(ctx, args[0])
		if err != nil {
			return WrapExitError(ExitCommandError, "read session", err)
		}
		frags, err := store.Script(ctx, args[0])
		if err != nil {
			return WrapExitError(ExitCommandError, "read script", err)
		}
		lines := make([]string, len(frags))
		for i, f := range frags {
			lines[i] = f.Line
		}
		if opts.Format == "json" {
			return writeJSON(w, HistoryResult{Session: sess, Script: lines})
		}
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
		return nil
	}

	sessions, err := store.Sessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "list sessions", err)
	}
	if opts.Format == "json" {
		return writeJSON(w, sessions)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions journaled.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSCENARIO\tSTARTED\tENDED\tREASON\tFRAGMENTS")
	for _, s := range sessions {
		ended, reason := "-", s.EndReason
		if !s.EndedAt.IsZero() {
			ended = s.EndedAt.Format(time.RFC3339)
		}
		if reason == "" {
			reason = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			s.ID, s.Scenario, s.StartedAt.Format(time.RFC3339), ended, reason, s.Fragments)
	}
	return tw.Flush()
}
