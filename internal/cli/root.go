// Package cli is the recorder's cobra command tree.
package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/uirecorder/internal/config"
	"github.com/gyaneshwarpardhi/uirecorder/internal/logging"
)

// RootOptions holds global flags and the state every command shares once
// they are parsed.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
	Format     string // text | json

	Loader   *config.Loader // nil without --config
	Config   *config.Config
	Logger   *slog.Logger
	LevelVar *slog.LevelVar
}

// ValidFormats are the accepted --format values.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "recorder",
		Short: "Record UI interactions as automation scripts",
		Long: `recorder turns low-level input and accessibility events into a
replayable automation script.

Sessions are driven from scenario files that describe an application's
element tree and a timeline of user input and application events.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (.yaml, .yml or .toml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error); overrides the config file")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (text|json); overrides the config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewPatternsCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	return cmd
}

func (o *RootOptions) init(cmd *cobra.Command) error {
	if !slices.Contains(ValidFormats, o.Format) {
		return WrapExitError(ExitCommandError, "invalid flags",
			fmt.Errorf("format %q: must be one of %v", o.Format, ValidFormats))
	}

	o.Config = config.Default()
	if o.ConfigPath != "" {
		loader, err := config.NewLoader(o.ConfigPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "load config", err)
		}
		o.Loader, o.Config = loader, loader.Config()
	}

	level, format := o.Config.Logging.Level, o.Config.Logging.Format
	if o.LogLevel != "" {
		level = o.LogLevel
	}
	if o.LogFormat != "" {
		format = o.LogFormat
	}
	logger, levelVar, err := logging.New(logging.Options{Level: level, Format: format, Output: cmd.ErrOrStderr()})
	if err != nil {
		return WrapExitError(ExitCommandError, "configure logging", err)
	}
	o.Logger, o.LevelVar = logger, levelVar
	slog.SetDefault(logger)
	return nil
}

// watchConfig applies log level changes from the config file while a
// command runs. An explicit --log-level wins over the file.
func (o *RootOptions) watchConfig() (stop func()) {
	if o.Loader == nil {
		return func() {}
	}
	o.Loader.OnChange(func(cfg *config.Config) {
		if o.LogLevel != "" {
			return
		}
		lvl, err := logging.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return
		}
		o.LevelVar.Set(lvl)
		o.Logger.Info("log level changed", "level", lvl)
	})
	stop, err := o.Loader.Watch()
	if err != nil {
		o.Logger.Warn("config watcher unavailable (hot reload disabled)", "err", err)
		return func() {}
	}
	return stop
}
