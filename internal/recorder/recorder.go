// Package recorder drives a recording session: it owns the accessibility
// subscriptions and the input hook, feeds the event log and keeps the
// control-tree cache in step with the application.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/uirecorder/internal/config"
	"github.com/gyaneshwarpardhi/uirecorder/internal/controltree"
	"github.com/gyaneshwarpardhi/uirecorder/internal/engine"
	"github.com/gyaneshwarpardhi/uirecorder/internal/event"
	"github.com/gyaneshwarpardhi/uirecorder/internal/eventlog"
	"github.com/gyaneshwarpardhi/uirecorder/internal/handler"
	"github.com/gyaneshwarpardhi/uirecorder/internal/metrics"
	"github.com/gyaneshwarpardhi/uirecorder/internal/pattern"
	"github.com/gyaneshwarpardhi/uirecorder/internal/script"
)

var (
	// ErrSubscription means accessibility subscriptions could not be installed.
	ErrSubscription = errors.New("accessibility subscription failed")
	// ErrProcessGone means the recorded application exited.
	ErrProcessGone = errors.New("application process gone")
	// ErrStopped is returned by operations attempted after Stop.
	ErrStopped = errors.New("recorder stopped")
)

// KillStatement closes every script whose application went away.
const KillStatement = "app.kill()"

// SubscribeOptions selects what Platform.Subscribe listens to.
type SubscribeOptions struct {
	IgnoredEvents     []string
	Properties        bool
	IgnoredProperties []string
	CachedProperties  []string
	Focus             bool
	Structure         bool
}

// Platform is the accessibility service.
type Platform interface {
	// Subscribe listens to events raised by el and its whole subtree.
	Subscribe(ctx context.Context, el event.ElementRef, opts SubscribeOptions) error
	// UnsubscribeAll drops every subscription. Calling it twice is harmless.
	UnsubscribeAll(ctx context.Context) error
	// Focused returns the element holding keyboard focus.
	Focused(ctx context.Context) (event.ElementRef, error)
}

// HookHandle identifies one installation of the input hook.
type HookHandle uint64

// Hook is the global keyboard and mouse hook.
type Hook interface {
	Install(fn func(event.Event)) (HookHandle, error)
	// Uninstall stops delivery. Unknown or already removed handles are not an error.
	Uninstall(h HookHandle) error
}

// Overlay is the progress indicator shown while the recorder resubscribes.
type Overlay interface {
	Show(bounds controltree.Rect)
	SetProgress(percent int)
	Close()
}

// NopOverlay draws nothing.
type NopOverlay struct{}

func (NopOverlay) Show(controltree.Rect) {}
func (NopOverlay) SetProgress(int)       {}
func (NopOverlay) Close()                {}

// Target is the application being recorded.
type Target interface {
	Element() event.ElementRef
	// ProcessID returns 0 or an error once the process has exited.
	ProcessID(ctx context.Context) (int, error)
	Bounds(ctx context.Context) (controltree.Rect, error)
}

// Deps are the platform services a Recorder drives.
type Deps struct {
	Source   controltree.Source
	Platform Platform
	Hook     Hook
	Overlay  Overlay
	Target   Target
}

// State is the lifecycle position of a Recorder.
type State int32

const (
	StateIdle State = iota
	StateArmed
	StateRecording
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Status is a point-in-time view of a session.
type Status struct {
	SessionID      string    `json:"session_id"`
	State          string    `json:"state"`
	StartedAt      time.Time `json:"started_at"`
	Fragments      uint64    `json:"fragments"`
	Buffered       int       `json:"buffered_events"`
	TreeNodes      int       `json:"tree_nodes"`
	TreeGeneration uint64    `json:"tree_generation"`
	EndReason      string    `json:"end_reason,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// Recorder is one recording session.
type Recorder struct {
	id        string
	startedAt time.Time
	conf      *config.Config
	deps      Deps
	logger    *slog.Logger

	cache   *controltree.Cache
	log     *eventlog.Log
	engine  *engine.Engine
	subOpts SubscribeOptions

	ignoredEvents map[string]struct{}
	ignoredProps  map[string]struct{}

	state atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc

	cycleMu sync.Mutex // serializes update cycles

	hookMu sync.Mutex
	hook   HookHandle
	hooked bool

	background sync.WaitGroup

	stopOnce sync.Once
	done     chan struct{}
	errMu    sync.Mutex
	err      error
	reason   string
}

// Option configures a Recorder.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	table     pattern.Table
	registry  *handler.Registry
	sessionID string
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPatterns replaces the default pattern table.
func WithPatterns(t pattern.Table) Option {
	return func(o *options) { o.table = t }
}

// WithSessionID fixes the session id instead of generating one.
func WithSessionID(id string) Option {
	return func(o *options) { o.sessionID = id }
}

// WithRegistry replaces the default handler registry.
func WithRegistry(r *handler.Registry) Option {
	return func(o *options) { o.registry = r }
}

// New assembles a session in the Idle state. Fragments go to sink.
func New(deps Deps, sink script.Sink, conf *config.Config, opts ...Option) (*Recorder, error) {
	if deps.Source == nil || deps.Platform == nil || deps.Hook == nil || deps.Target == nil {
		return nil, errors.New("recorder: source, platform, hook and target are required")
	}
	if deps.Overlay == nil {
		deps.Overlay = NopOverlay{}
	}
	if conf == nil {
		conf = config.Default()
	}
	o := options{logger: slog.Default(), table: pattern.DefaultTable(), registry: handler.DefaultRegistry()}
	for _, opt := range opts {
		opt(&o)
	}

	if o.sessionID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("session id: %w", err)
		}
		o.sessionID = id.String()
	}
	logger := o.logger.With("session", o.sessionID)

	matcher, err := pattern.Compile(o.table, pattern.WithExcluded(conf.Events.Ignored...))
	if err != nil {
		return nil, err
	}
	cache := controltree.New(deps.Source,
		controltree.WithCachedProperties(conf.Tree.CachedProperties...),
		controltree.WithCellSize(conf.Tree.GridCellSize),
		controltree.WithLogger(logger))
	log := eventlog.New(eventlog.WithMaxSize(conf.Matching.MaxLogSize))
	eng, err := engine.New(log, matcher, o.registry, cache, sink, engine.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Recorder{
		id:        o.sessionID,
		startedAt: time.Now(),
		conf:      conf,
		deps:      deps,
		logger:    logger,
		cache:     cache,
		log:       log,
		engine:    eng,
		subOpts: SubscribeOptions{
			IgnoredEvents:     conf.Events.Ignored,
			Properties:        conf.Recorder.Properties(),
			IgnoredProperties: conf.Events.IgnoredProperties,
			CachedProperties:  conf.Tree.CachedProperties,
			Focus:             conf.Recorder.RecordFocus,
			Structure:         conf.Recorder.RecordStructure,
		},
		ignoredEvents: toSet(conf.Events.Ignored),
		ignoredProps:  toSet(conf.Events.IgnoredProperties),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
	return r, nil
}

func toSet(names []string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

// SessionID is a time-ordered UUID identifying this session.
func (r *Recorder) SessionID() string { return r.id }

// State returns the current lifecycle state.
func (r *Recorder) State() State { return State(r.state.Load()) }

// Cache exposes the control-tree cache, read-only by convention.
func (r *Recorder) Cache() *controltree.Cache { return r.cache }

// Done is closed once the session has stopped.
func (r *Recorder) Done() <-chan struct{} { return r.done }

// Err reports why the session ended; nil for a normal Stop.
func (r *Recorder) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.err
}

// EndReason names why the session stopped, such as "stopped" or
// "process_gone"; empty while it runs.
func (r *Recorder) EndReason() string {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.reason
}

// Status returns a snapshot for status endpoints.
func (r *Recorder) Status() Status {
	s := Status{
		SessionID:      r.id,
		State:          r.State().String(),
		StartedAt:      r.startedAt,
		Fragments:      r.engine.Seq(),
		Buffered:       r.log.Len(),
		TreeNodes:      r.cache.Len(),
		TreeGeneration: r.cache.Generation(),
		EndReason:      r.EndReason(),
	}
	if err := r.Err(); err != nil {
		s.Error = err.Error()
	}
	return s
}

// Setup builds the initial tree, subscribes to the target and installs the
// hook. Any failure ends the session with the kill statement.
func (r *Recorder) Setup(ctx context.Context) error {
	if st := r.State(); st != StateIdle {
		return fmt.Errorf("setup: recorder is %s", st)
	}
	if err := r.update(ctx, true, r.deps.Target.Element()); err != nil {
		r.terminate(ctx, "setup_failed", fmt.Errorf("setup: %w", err))
		return r.Err()
	}
	if err := r.installHook(); err != nil {
		r.terminate(ctx, "setup_failed", fmt.Errorf("setup: install hook: %w", err))
		return r.Err()
	}
	if !r.state.CompareAndSwap(int32(StateIdle), int32(StateArmed)) {
		return fmt.Errorf("setup: recorder is %s", r.State())
	}
	r.logger.Info("recorder armed", "tree_nodes", r.cache.Len())
	return nil
}

// Start sets the start signal; events are recorded from now on.
func (r *Recorder) Start() error {
	if !r.state.CompareAndSwap(int32(StateArmed), int32(StateRecording)) {
		return fmt.Errorf("start: recorder is %s", r.State())
	}
	r.logger.Info("recording started")
	return nil
}

// Stop ends the session normally. It may be called more than once and while
// an update cycle is running.
func (r *Recorder) Stop(ctx context.Context) error {
	r.shutdown(ctx, "stopped", nil, false)
	return nil
}

// Settle waits for update cycles started in the background.
func (r *Recorder) Settle() {
	r.background.Wait()
}

// terminate ends the session abnormally and closes the script with the
// kill statement.
func (r *Recorder) terminate(ctx context.Context, reason string, cause error) {
	r.shutdown(ctx, reason, cause, true)
}

func (r *Recorder) shutdown(ctx context.Context, reason string, cause error, kill bool) {
	r.stopOnce.Do(func() {
		defer close(r.done)
		r.state.Store(int32(StateStopped))
		r.cancel()
		// Cleanup must finish even when the caller's context is the one ending.
		ctx = context.WithoutCancel(ctx)

		r.errMu.Lock()
		r.err, r.reason = cause, reason
		r.errMu.Unlock()

		if err := r.deps.Platform.UnsubscribeAll(ctx); err != nil {
			r.logger.Warn("unsubscribe failed", "err", err)
		}
		r.uninstallHook()

		if _, err := r.engine.Flush(ctx); err != nil {
			r.logger.Warn("final flush incomplete", "err", err)
		}
		if kill {
			if _, err := r.engine.Emit(ctx, "terminate", KillStatement); err != nil {
				r.logger.Error("cannot write kill statement", "err", err)
			}
		}
		r.cache.Invalidate()
		metrics.Sessions.WithLabelValues(reason).Inc()
		if cause != nil {
			r.logger.Warn("recording terminated", "reason", reason, "err", cause)
		} else {
			r.logger.Info("recording stopped", "fragments", r.engine.Seq())
		}
	})
}

func (r *Recorder) installHook() error {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	if r.hooked || r.State() == StateStopped {
		return nil
	}
	h, err := r.deps.Hook.Install(r.HandleHook)
	if err != nil {
		return err
	}
	r.hook, r.hooked = h, true
	return nil
}

// uninstallHook reports whether a hook was installed.
func (r *Recorder) uninstallHook() bool {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	if !r.hooked {
		return false
	}
	if err := r.deps.Hook.Uninstall(r.hook); err != nil {
		r.logger.Warn("hook uninstall failed", "err", err)
	}
	r.hooked = false
	return true
}
