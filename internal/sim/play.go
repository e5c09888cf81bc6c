package sim

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/gyaneshwarpardhi/uirecorder/internal/config"
	"github.com/gyaneshwarpardhi/uirecorder/internal/event"
	"github.com/gyaneshwarpardhi/uirecorder/internal/recorder"
	"github.com/gyaneshwarpardhi/uirecorder/internal/script"
)

// Deps returns the backend wired as every recorder dependency.
func (b *Backend) Deps() recorder.Deps {
	return recorder.Deps{Source: b, Platform: b, Hook: b, Overlay: b, Target: b}
}

// Play replays the timeline of sc against rec. Steps stop early once the
// session has ended. Background update cycles are settled after every step,
// so a replay is deterministic.
func (b *Backend) Play(ctx context.Context, sc *Scenario, rec *recorder.Recorder) error {
	for i, st := range sc.Timeline {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-rec.Done():
			slog.Debug("session ended, remaining steps skipped", "step", i, "remaining", len(sc.Timeline)-i)
			return nil
		default:
		}
		if err := b.step(ctx, st, rec); err != nil {
			return fmt.Errorf("timeline[%d]: %w", i, err)
		}
		rec.Settle()
	}
	return nil
}

func (b *Backend) step(ctx context.Context, st Step, rec *recorder.Recorder) error {
	now := time.Now()
	switch {
	case st.Mouse != nil:
		return b.mouse(now, st.Mouse)
	case st.Key != nil:
		b.keys(now, st.Key)
	case st.Event != nil:
		b.application(ctx, rec, event.ApplicationEvent{At: now, Name: st.Event.Name, Sender: b.senderOr(st.Event.Sender)})
	case st.Property != nil:
		b.property(ctx, rec, event.PropertyEvent{At: now, Property: st.Property.Name, Sender: b.senderOr(st.Property.Sender), Value: st.Property.Value})
	case st.Focus != "":
		b.SetFocus(st.Focus)
		if b.covered(st.Focus, func(o recorder.SubscribeOptions) bool { return o.Focus }) {
			rec.HandleFocus(ctx, event.FocusChangedEvent{At: now, Sender: Ref(st.Focus)})
		}
	case st.Structure != nil:
		if b.covered(st.Structure.Sender, func(o recorder.SubscribeOptions) bool { return o.Structure }) {
			rec.HandleStructure(ctx, event.StructureChangedEvent{At: now, Sender: Ref(st.Structure.Sender), Change: st.Structure.Change})
		}
	case st.Add != nil:
		b.Add(st.Add.Parent, st.Add.Element)
	case st.Remove != "":
		b.Remove(st.Remove)
	case st.Exit:
		// The top window closes with the process.
		b.Exit()
		b.application(ctx, rec, event.ApplicationEvent{At: now, Name: event.EventWindowClosed, Sender: Ref(b.rootID)})
	}
	return nil
}

func (b *Backend) senderOr(id string) event.ElementRef {
	if id == "" {
		return Ref(b.rootID)
	}
	return Ref(id)
}

func (b *Backend) covered(id string, want func(recorder.SubscribeOptions) bool) bool {
	if id == "" {
		id = b.rootID
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	opts, ok := b.coveredLocked(id)
	return ok && want(opts)
}

func (b *Backend) application(ctx context.Context, rec *recorder.Recorder, e event.ApplicationEvent) {
	if !b.covered(e.Sender.RuntimeID(), func(o recorder.SubscribeOptions) bool {
		return !slices.Contains(o.IgnoredEvents, e.Name)
	}) {
		return
	}
	rec.HandleApplication(ctx, e)
}

func (b *Backend) property(ctx context.Context, rec *recorder.Recorder, e event.PropertyEvent) {
	if !b.covered(e.Sender.RuntimeID(), func(o recorder.SubscribeOptions) bool {
		return o.Properties && !slices.Contains(o.IgnoredProperties, e.Property)
	}) {
		return
	}
	rec.HandleProperty(ctx, e)
}

func (b *Backend) deliver(e event.Event) {
	b.mu.Lock()
	fn := b.hookFn
	if fn == nil {
		b.dropped++
	}
	b.mu.Unlock()
	if fn != nil {
		fn(e)
	}
}

func (b *Backend) mouse(now time.Time, m *MouseStep) error {
	x, y := m.X, m.Y
	if m.Click != "" {
		var ok bool
		if x, y, ok = b.center(m.Click); !ok {
			return fmt.Errorf("mouse: element %q is not in the tree", m.Click)
		}
	}
	button := m.Button
	if button == "" {
		button = event.ButtonLeft
	}
	ev := event.MouseEvent{At: now, Button: button, X: x, Y: y}
	if m.Action == "" || m.Action == "click" || m.Action == "down" {
		ev.Phase = event.PhaseDown
		b.deliver(ev)
	}
	if m.Action == "" || m.Action == "click" || m.Action == "up" {
		ev.Phase = event.PhaseUp
		ev.At = now.Add(time.Millisecond)
		b.deliver(ev)
	}
	return nil
}

func (b *Backend) keys(now time.Time, k *KeyStep) {
	if k.Press != "" {
		b.deliver(event.KeyboardEvent{At: now, Key: k.Press, Phase: event.PhaseDown})
		b.deliver(event.KeyboardEvent{At: now, Key: k.Press, Phase: event.PhaseUp})
		return
	}
	for _, r := range k.Text {
		b.deliver(event.KeyboardEvent{At: now, Key: string(r), Char: r, Phase: event.PhaseDown})
		b.deliver(event.KeyboardEvent{At: now, Key: string(r), Phase: event.PhaseUp})
	}
}

// Run drives rec through a whole session for sc: setup, start signal,
// timeline and a final stop. rec must have been built over b.Deps().
func (b *Backend) Run(ctx context.Context, sc *Scenario, rec *recorder.Recorder) error {
	if err := rec.Setup(ctx); err != nil {
		return err
	}
	if err := rec.Start(); err != nil {
		return err
	}
	playErr := b.Play(ctx, sc, rec)
	if err := rec.Stop(ctx); err != nil {
		return err
	}
	return playErr
}

// Replay builds a backend and a recorder for sc and runs the session. The
// recorder is returned so callers can inspect how it ended.
func Replay(ctx context.Context, sc *Scenario, sink script.Sink, conf *config.Config, opts ...recorder.Option) (*recorder.Recorder, *Backend, error) {
	b := NewBackend(sc)
	rec, err := recorder.New(b.Deps(), sink, conf, opts...)
	if err != nil {
		return nil, nil, err
	}
	return rec, b, b.Run(ctx, sc, rec)
}
