package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/uirecorder/internal/api"
	"github.com/gyaneshwarpardhi/uirecorder/internal/journal"
	"github.com/gyaneshwarpardhi/uirecorder/internal/pattern"
	"github.com/gyaneshwarpardhi/uirecorder/internal/recorder"
	"github.com/gyaneshwarpardhi/uirecorder/internal/script"
	"github.com/gyaneshwarpardhi/uirecorder/internal/sim"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Out     string
	Journal string
	Listen  string
}

// ReplayResult is the JSON form of a finished session.
type ReplayResult struct {
	SessionID string   `json:"session_id"`
	Scenario  string   `json:"scenario"`
	State     string   `json:"state"`
	EndReason string   `json:"end_reason"`
	Error     string   `json:"error,omitempty"`
	Script    []string `json:"script"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <scenario.yaml>",
		Short: "Record a session from a scenario file",
		Long: `Record one session against the application described by a scenario
file and print the resulting script.

With --listen the status API is served while the session runs and until
the process is interrupted.

Examples:
  recorder replay notepad.yaml
  recorder replay notepad.yaml --out notepad.py --journal sessions.db
  recorder replay notepad.yaml --listen 127.0.0.1:8080`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "also write the script to this file as it is recorded")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "journal database (default: journal.path from the config)")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "serve the status API on this address (default: api.listen from the config)")
	return cmd
}

func runReplay(cmd *cobra.Command, opts *ReplayOptions, path string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	defer opts.watchConfig()()

	sc, err := sim.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "load scenario", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return WrapExitError(ExitCommandError, "session id", err)
	}
	sessionID := id.String()

	buf := script.NewBuffer()
	sinks := script.Multi{buf}

	if opts.Out != "" {
		f, err := os.Create(opts.Out)
		if err != nil {
			return WrapExitError(ExitCommandError, "create output", err)
		}
		defer f.Close()
		out := script.NewAsync(script.NewWriterSink(f))
		defer out.Close()
		sinks = append(sinks, out)
	}

	var store *journal.Store
	journalPath := opts.Journal
	if journalPath == "" {
		journalPath = opts.Config.Journal.Path
	}
	if journalPath != "" {
		store, err = journal.Open(journalPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "open journal", err)
		}
		defer store.Close()
		if err := store.BeginSession(ctx, sessionID, sc.Name, time.Now()); err != nil {
			return WrapExitError(ExitCommandError, "journal session", err)
		}
		sinks = append(sinks, store.Sink(sessionID))
	}

	backend := sim.NewBackend(sc)
	rec, err := recorder.New(backend.Deps(), sinks, opts.Config,
		recorder.WithLogger(opts.Logger),
		recorder.WithSessionID(sessionID))
	if err != nil {
		return WrapExitError(ExitCommandError, "create recorder", err)
	}

	listen := opts.Listen
	if listen == "" {
		listen = opts.Config.API.Listen
	}
	var srv *http.Server
	if listen != "" {
		handlerOpts := []api.Option{}
		if store != nil {
			handlerOpts = append(handlerOpts, api.WithJournal(store))
		}
		if opts.Loader != nil {
			handlerOpts = append(handlerOpts, api.WithLoader(opts.Loader))
		}
		h := api.New(pattern.DefaultTable(), handlerOpts...)
		h.Attach(rec, buf)
		if srv, err = serve(listen, h, opts); err != nil {
			return WrapExitError(ExitCommandError, "start status API", err)
		}
	}

	runErr := backend.Run(ctx, sc, rec)

	if store != nil {
		if err := store.EndSession(context.WithoutCancel(ctx), sessionID, rec.EndReason(), time.Now()); err != nil {
			opts.Logger.Warn("journal end of session failed", "err", err)
		}
	}

	if err := printResult(cmd, opts, sc, rec, buf); err != nil {
		return err
	}

	if srv != nil {
		waitForInterrupt(ctx, opts)
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}

	if runErr != nil {
		return WrapExitError(ExitFailure, "recording failed", runErr)
	}
	return nil
}

func printResult(cmd *cobra.Command, opts *ReplayOptions, sc *sim.Scenario, rec *recorder.Recorder, buf *script.Buffer) error {
	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		res := ReplayResult{
			SessionID: rec.SessionID(),
			Scenario:  sc.Name,
			State:     rec.State().String(),
			EndReason: rec.EndReason(),
			Script:    buf.Lines(),
		}
		if res.Script == nil {
			res.Script = []string{}
		}
		if err := rec.Err(); err != nil && !errors.Is(err, recorder.ErrProcessGone) {
			res.Error = err.Error()
		}
		return writeJSON(w, res)
	}
	_, err := fmt.Fprint(w, buf.String())
	return err
}

func serve(addr string, h http.Handler, opts *ReplayOptions) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Handler:      h,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		opts.Logger.Info("status API listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			opts.Logger.Error("status API stopped", "err", err)
		}
	}()
	return srv, nil
}

func waitForInterrupt(ctx context.Context, opts *ReplayOptions) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	opts.Logger.Info("session finished, serving status until interrupted")
	<-ctx.Done()
}
