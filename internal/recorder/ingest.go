package recorder

import (
	"context"

	"github.com/gyaneshwarpardhi/uirecorder/internal/event"
	"github.com/gyaneshwarpardhi/uirecorder/internal/metrics"
)

func (r *Recorder) recording(kind event.Kind) bool {
	if r.State() == StateRecording {
		return true
	}
	metrics.EventsIgnored.WithLabelValues("not_recording").Inc()
	r.logger.Debug("event before start signal ignored", "kind", kind)
	return false
}

func ignore(reason string) {
	metrics.EventsIgnored.WithLabelValues(reason).Inc()
}

// HandleHook is the input hook callback. The element under the pointer, or
// the focused element for key events, is resolved before the event is
// logged.
func (r *Recorder) HandleHook(e event.Event) {
	if !r.recording(e.Kind()) {
		return
	}
	ctx := r.ctx

	switch h := e.(type) {
	case event.MouseEvent:
		if n := r.cache.NodeFromPoint(h.X, h.Y); n != nil {
			h.Node = n
		}
		e = h
	case event.KeyboardEvent:
		if h.Node == nil {
			if focused, err := r.deps.Platform.Focused(ctx); err == nil && focused != nil {
				if n := r.cache.NodeFromElement(focused); n != nil {
					h.Node = n
				}
			} else if err != nil {
				r.logger.Debug("focused element unavailable", "err", err)
			}
		}
		e = h
	default:
		return
	}

	results, err := r.engine.Observe(ctx, e)
	if err != nil {
		r.logger.Debug("matching pass interrupted", "err", err)
	}
	for _, res := range results {
		if res.Resubscribe == nil {
			continue
		}
		// Menus usually trigger a cycle on arrival; only unseen elements need another.
		if r.cache.NodeFromElement(res.Resubscribe) != nil {
			continue
		}
		r.refreshAsync(res.Resubscribe)
	}
}

// HandleApplication receives named application events. Window and menu
// openings refresh the tree; a closed window ends the session when the
// application is gone.
func (r *Recorder) HandleApplication(ctx context.Context, e event.ApplicationEvent) {
	if !r.recording(e.Kind()) {
		return
	}
	if _, skip := r.ignoredEvents[e.Name]; skip {
		ignore("event_excluded")
		return
	}
	r.engine.Append(e)

	switch e.Name {
	case event.EventMenuOpened, event.EventWindowOpened:
		r.refresh(ctx, true, e.Sender)
	case event.EventWindowClosed:
		pid, err := r.deps.Target.ProcessID(ctx)
		if err != nil || pid == 0 {
			if err != nil {
				r.logger.Debug("process id unavailable", "err", err)
			}
			r.terminate(ctx, "process_gone", ErrProcessGone)
			return
		}
		r.refresh(ctx, true, nil)
	}
}

// HandleProperty receives property-changed events.
func (r *Recorder) HandleProperty(_ context.Context, e event.PropertyEvent) {
	if !r.recording(e.Kind()) {
		return
	}
	if !r.subOpts.Properties {
		ignore("properties_off")
		return
	}
	if _, skip := r.ignoredProps[e.Property]; skip {
		ignore("property_excluded")
		return
	}
	r.engine.Append(e)
}

// HandleFocus receives focus-changed events.
func (r *Recorder) HandleFocus(_ context.Context, e event.FocusChangedEvent) {
	if !r.recording(e.Kind()) {
		return
	}
	if !r.subOpts.Focus {
		ignore("focus_off")
		return
	}
	r.engine.Append(e)
}

// HandleStructure receives structure-changed events. A changed subtree is
// walked again and subscribed to.
func (r *Recorder) HandleStructure(ctx context.Context, e event.StructureChangedEvent) {
	if !r.recording(e.Kind()) {
		return
	}
	if !r.subOpts.Structure {
		ignore("structure_off")
		return
	}
	r.engine.Append(e)
	r.refresh(ctx, true, e.Sender)
}
