package config

import (
	"time"

	"github.com/gyaneshwarpardhi/uirecorder/internal/controltree"
	"github.com/gyaneshwarpardhi/uirecorder/internal/event"
)

// Config is the top-level recorder configuration, read from YAML or TOML.
type Config struct {
	Recorder RecorderConf `yaml:"recorder" toml:"recorder"`
	Matching MatchingConf `yaml:"matching" toml:"matching"`
	Tree     TreeConf     `yaml:"tree" toml:"tree"`
	Events   EventsConf   `yaml:"events" toml:"events"`
	Logging  LoggingConf  `yaml:"logging" toml:"logging"`
	Journal  JournalConf  `yaml:"journal" toml:"journal"`
	API      APIConf      `yaml:"api" toml:"api"`
}

// RecorderConf selects which accessibility events are subscribed to.
type RecorderConf struct {
	RecordProperties *bool `yaml:"record_properties" toml:"record_properties"`
	RecordFocus      bool  `yaml:"record_focus" toml:"record_focus"`
	RecordStructure  bool  `yaml:"record_structure" toml:"record_structure"`

	// ResubscribeTimeoutMs bounds the join of an update cycle; 0 waits forever.
	ResubscribeTimeoutMs int `yaml:"resubscribe_timeout_ms" toml:"resubscribe_timeout_ms"`
}

// Properties reports whether property-changed events are recorded.
func (r RecorderConf) Properties() bool {
	return r.RecordProperties == nil || *r.RecordProperties
}

// ResubscribeTimeout returns the bounded-join limit, or 0 for none.
func (r RecorderConf) ResubscribeTimeout() time.Duration {
	return time.Duration(r.ResubscribeTimeoutMs) * time.Millisecond
}

// MatchingConf tunes the event log.
type MatchingConf struct {
	MaxLogSize int `yaml:"max_log_size" toml:"max_log_size"`
}

// TreeConf tunes the control-tree cache.
type TreeConf struct {
	GridCellSize     int      `yaml:"grid_cell_size" toml:"grid_cell_size"`
	CachedProperties []string `yaml:"cached_properties" toml:"cached_properties"`
}

// EventsConf lists application events and properties that are never recorded.
type EventsConf struct {
	Ignored           []string `yaml:"ignored" toml:"ignored"`
	IgnoredProperties []string `yaml:"ignored_properties" toml:"ignored_properties"`
}

// LoggingConf selects the slog handler.
type LoggingConf struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // text | json
}

// JournalConf points at the session journal database. Empty disables it.
type JournalConf struct {
	Path string `yaml:"path" toml:"path"`
}

// APIConf configures the status server. Empty Listen disables it.
type APIConf struct {
	Listen string `yaml:"listen" toml:"listen"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// DefaultIgnoredEvents are delivered through their own subscriptions and
// never through the generic application-event handler.
func DefaultIgnoredEvents() []string {
	return []string{
		event.EventPropertyChanged,
		event.EventFocusChanged,
		event.EventStructureChanged,
	}
}

// DefaultIgnoredProperties change constantly and carry no user intent.
func DefaultIgnoredProperties() []string {
	return []string{
		event.PropertyBoundingRectangle,
		event.PropertyIsEnabled,
		event.PropertyIsOffscreen,
		event.PropertyItemStatus,
		event.PropertyName,
		event.PropertyWindowInteractionState,
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Matching.MaxLogSize == 0 {
		cfg.Matching.MaxLogSize = 4096
	}
	if cfg.Tree.GridCellSize == 0 {
		cfg.Tree.GridCellSize = controltree.DefaultCellSize
	}
	if len(cfg.Tree.CachedProperties) == 0 {
		cfg.Tree.CachedProperties = controltree.DefaultCachedProperties()
	}
	if cfg.Events.Ignored == nil {
		cfg.Events.Ignored = DefaultIgnoredEvents()
	}
	if cfg.Events.IgnoredProperties == nil {
		cfg.Events.IgnoredProperties = DefaultIgnoredProperties()
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}
