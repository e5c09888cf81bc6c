package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/gyaneshwarpardhi/uirecorder/internal/event"
	"github.com/gyaneshwarpardhi/uirecorder/internal/logging"
)

// Validate checks the config for:
//   - Out-of-range numeric settings
//   - Unknown log level or format
//   - Ignore lists that would hide events the default patterns depend on
//   - A malformed API listen address
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Recorder.ResubscribeTimeoutMs < 0 {
		errs = append(errs, "recorder.resubscribe_timeout_ms must not be negative")
	}
	if cfg.Matching.MaxLogSize < 0 {
		errs = append(errs, "matching.max_log_size must not be negative")
	}
	if cfg.Tree.GridCellSize < 0 {
		errs = append(errs, "tree.grid_cell_size must not be negative")
	}
	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, fmt.Sprintf("logging.level: %v", err))
	}
	if f := cfg.Logging.Format; f != "text" && f != "json" {
		errs = append(errs, fmt.Sprintf("logging.format: unknown format %q (want text or json)", f))
	}

	for _, name := range cfg.Events.Ignored {
		if patternEvents[name] {
			errs = append(errs, fmt.Sprintf("events.ignored: %q is required by the pattern table", name))
		}
	}
	for _, name := range cfg.Events.IgnoredProperties {
		if patternProperties[name] {
			errs = append(errs, fmt.Sprintf("events.ignored_properties: %q is required by the pattern table", name))
		}
	}

	if addr := cfg.API.Listen; addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errs = append(errs, fmt.Sprintf("api.listen: %v", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

var patternEvents = map[string]bool{
	event.EventInvoked:                  true,
	event.EventSelectionElementSelected: true,
	event.EventMenuOpened:               true,
	event.EventMenuClosed:               true,
	event.EventWindowOpened:             true,
	event.EventWindowClosed:             true,
}

var patternProperties = map[string]bool{
	event.PropertySelectionItemIsSelected: true,
	event.PropertyExpandCollapseState:     true,
	event.PropertyToggleState:             true,
}
