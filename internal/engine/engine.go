// Package engine consumes the event log: it groups buffered events with the
// pattern matcher, runs the matching handler and emits script fragments.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gyaneshwarpardhi/uirecorder/internal/event"
	"github.com/gyaneshwarpardhi/uirecorder/internal/eventlog"
	"github.com/gyaneshwarpardhi/uirecorder/internal/handler"
	"github.com/gyaneshwarpardhi/uirecorder/internal/metrics"
	"github.com/gyaneshwarpardhi/uirecorder/internal/pattern"
	"github.com/gyaneshwarpardhi/uirecorder/internal/script"
)

// Result is the outcome of one matched group.
type Result struct {
	Pattern     string           `json:"pattern"`
	Line        string           `json:"line"`
	Seq         uint64           `json:"seq"`
	Consumed    int              `json:"consumed"`
	Resubscribe event.ElementRef `json:"-"`
	Error       string           `json:"error,omitempty"`
}

// Engine is the single consumer of an event log.
type Engine struct {
	log      *eventlog.Log
	matcher  *pattern.Matcher
	registry *handler.Registry
	tree     handler.Tree
	sink     script.Sink
	logger   *slog.Logger

	mu       sync.Mutex // serializes consumption
	seq      atomic.Uint64
	lastHook atomic.Value // event.Kind of the last hook event appended
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New wires an Engine. Every handler named by the matcher's table must be
// registered.
func New(log *eventlog.Log, m *pattern.Matcher, reg *handler.Registry, tree handler.Tree, sink script.Sink, opts ...Option) (*Engine, error) {
	for _, p := range m.Patterns() {
		if _, err := reg.Get(p.Handler); err != nil {
			return nil, fmt.Errorf("pattern %s: %w", p.Name, err)
		}
	}
	e := &Engine{
		log:      log,
		matcher:  m,
		registry: reg,
		tree:     tree,
		sink:     sink,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.lastHook.Store(event.Kind(""))
	return e, nil
}

// Append buffers an event from any producer.
func (e *Engine) Append(ev event.Event) {
	if event.IsHook(ev) {
		e.lastHook.Store(ev.Kind())
	}
	metrics.EventsAppended.WithLabelValues(string(ev.Kind())).Inc()
	if n := e.log.Append(ev); n > 0 {
		metrics.EventsTruncated.Add(float64(n))
		e.logger.Warn("event log full, oldest events dropped", "dropped", n)
	}
}

// Observe buffers a hook event. A key or button press first triggers a
// matching pass over what is already buffered, so every group is closed by
// the next user action. Consecutive key presses stay in the same group.
func (e *Engine) Observe(ctx context.Context, ev event.Event) ([]Result, error) {
	var (
		results []Result
		err     error
	)
	if event.IsDown(ev) && !e.continuesKeyRun(ev) {
		results, err = e.Parse(ctx)
	}
	e.Append(ev)
	return results, err
}

func (e *Engine) continuesKeyRun(ev event.Event) bool {
	return ev.Kind() == event.KindKeyboard && e.lastHook.Load().(event.Kind) == event.KindKeyboard
}

// Parse runs one matching pass over everything buffered. A group spans
// from its press to the press that triggers the next pass, so events that
// arrive late but before the next user action still join it. Whatever no
// group consumed is discarded: it cannot open a group of its own, and
// every later group starts at a later press.
func (e *Engine) Parse(ctx context.Context) ([]Result, error) {
	return e.parse(ctx)
}

// Flush runs the final matching pass of a session.
func (e *Engine) Flush(ctx context.Context) ([]Result, error) {
	return e.parse(ctx)
}

// Emit writes a fragment that did not come from a matched group, such as
// the closing statement of a session.
func (e *Engine) Emit(ctx context.Context, name, line string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.emit(ctx, name, line)
}

// Seq returns the sequence number of the last emitted fragment.
func (e *Engine) Seq() uint64 { return e.seq.Load() }

func (e *Engine) parse(ctx context.Context) ([]Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	seq := e.log.DrainAll()
	defer func() { metrics.LogSize.Set(float64(e.log.Len())) }()
	if len(seq) == 0 {
		return nil, nil
	}

	var results []Result
	for {
		if err := ctx.Err(); err != nil {
			e.log.Requeue(seq)
			return results, err
		}
		head := pattern.FirstHead(seq)
		if head < 0 {
			break
		}
		e.discard(seq[:head])
		seq = seq[head:]

		m, ok := e.matcher.Match(seq)
		if !ok {
			// The table has no fallback for this press; drop it and move on.
			e.logger.Debug("no pattern matched", "head", fmt.Sprintf("%T", seq[0]))
			seq = seq[1:]
			continue
		}
		metrics.PatternsMatched.WithLabelValues(m.Pattern.Name).Inc()

		results = append(results, e.handle(ctx, m))
		seq = remove(seq, m.Consumed)
	}

	e.discard(seq)
	return results, nil
}

// handle runs the handler for a matched group. Failures are logged and the
// group is still consumed.
func (e *Engine) handle(ctx context.Context, m *pattern.Match) Result {
	res := Result{Pattern: m.Pattern.Name, Consumed: len(m.Consumed)}

	h, err := e.registry.Get(m.Pattern.Handler)
	if err == nil {
		var out handler.Output
		out, err = h.Handle(ctx, handler.Input{Pattern: m.Pattern.Name, Events: m.Group, Tree: e.tree})
		if err == nil {
			res.Resubscribe = out.Resubscribe
			res.Line = out.Text
			if out.Target != nil {
				res.Line = out.Target.Locator() + "." + out.Text
			}
		}
	}
	if err != nil {
		metrics.HandlerErrors.WithLabelValues(m.Pattern.Handler).Inc()
		e.logger.Warn("handler failed, group dropped",
			"pattern", m.Pattern.Name, "handler", m.Pattern.Handler, "events", len(m.Group), "err", err)
		res.Error = err.Error()
		return res
	}

	emitted, err := e.emit(ctx, m.Pattern.Name, res.Line)
	if err != nil {
		e.logger.Error("script sink failed", "pattern", m.Pattern.Name, "err", err)
		res.Error = err.Error()
		return res
	}
	res.Seq = emitted.Seq
	return res
}

func (e *Engine) emit(ctx context.Context, name, line string) (Result, error) {
	f := script.Fragment{
		Seq:     e.seq.Add(1),
		Pattern: name,
		Line:    line,
		At:      time.Now(),
	}
	if err := e.sink.Append(ctx, f); err != nil {
		return Result{}, fmt.Errorf("append fragment %d: %w", f.Seq, err)
	}
	metrics.FragmentsEmitted.Inc()
	e.logger.Debug("fragment emitted", "seq", f.Seq, "pattern", name, "line", line)
	return Result{Pattern: name, Line: line, Seq: f.Seq}, nil
}

// discard drops events no press accounts for. Stray releases are expected
// and not counted.
func (e *Engine) discard(events []event.Event) {
	n := 0
	for _, ev := range events {
		if !event.IsHook(ev) {
			n++
		}
	}
	if n > 0 {
		metrics.EventsUnexplained.Add(float64(n))
		e.logger.Debug("discarding unexplained events", "count", n)
	}
}

// remove returns seq without the given ascending indices.
func remove(seq []event.Event, idx []int) []event.Event {
	out := make([]event.Event, 0, len(seq)-len(idx))
	j := 0
	for i, ev := range seq {
		if j < len(idx) && idx[j] == i {
			j++
			continue
		}
		out = append(out, ev)
	}
	return out
}
