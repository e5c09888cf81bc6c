package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/uirecorder/internal/controltree"
	"github.com/gyaneshwarpardhi/uirecorder/internal/event"
	"github.com/gyaneshwarpardhi/uirecorder/internal/recorder"
)

func loadNotepad(t *testing.T) *Scenario {
	t.Helper()
	sc, err := Load("testdata/notepad.yaml")
	require.NoError(t, err)
	return sc
}

func TestLoad_Testdata(t *testing.T) {
	for _, name := range []string{"notepad", "settings"} {
		t.Run(name, func(t *testing.T) {
			sc, err := Load("testdata/" + name + ".yaml")
			require.NoError(t, err)
			assert.Equal(t, name, sc.Name)
			assert.NotEmpty(t, sc.Timeline)
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load("testdata/nope.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read scenario")
}

func TestParse_ValidationCollectsErrors(t *testing.T) {
	_, err := Parse([]byte(`
tree:
  id: root
  children:
    - id: a
    - id: a
focus: ghost
timeline:
  - mouse: {click: nowhere}
  - key: {text: x, press: Return}
  - {}
  - mouse: {click: a, action: wiggle}
  - event: {sender: a}
  - add: {parent: missing, element: {id: b}}
`))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "scenario validation errors:")
	assert.Contains(t, msg, `duplicate element id "a"`)
	assert.Contains(t, msg, "process_id must be positive")
	assert.Contains(t, msg, `focus: unknown element "ghost"`)
	assert.Contains(t, msg, `timeline[0].mouse: unknown element "nowhere"`)
	assert.Contains(t, msg, "timeline[1].key: exactly one of text or press is required")
	assert.Contains(t, msg, "timeline[2]: exactly one action is required, got 0")
	assert.Contains(t, msg, `timeline[3].mouse: unknown action "wiggle"`)
	assert.Contains(t, msg, "timeline[4].event: name is required")
	assert.Contains(t, msg, `timeline[5].add: unknown parent "missing"`)
}

func TestParse_AddedElementsAreReferable(t *testing.T) {
	sc, err := Parse([]byte(`
process_id: 1
tree: {id: root, bounds: [0, 0, 10, 10]}
timeline:
  - add: {parent: root, element: {id: popup, children: [{id: item}]}}
  - mouse: {click: item}
`))
	require.NoError(t, err)
	assert.Len(t, sc.Timeline, 2)
}

func TestParse_BadYAML(t *testing.T) {
	_, err := Parse([]byte("tree: ["))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse:")
}

func TestBackend_TreeSource(t *testing.T) {
	b := NewBackend(loadNotepad(t))
	cache := controltree.New(b)
	require.NoError(t, cache.Rebuild(context.Background()))
	assert.Equal(t, 5, cache.Len())

	n := cache.NodeFromPoint(400, 300)
	require.NotNil(t, n)
	assert.Equal(t, "Text Editor", n.Name())
	pid, _ := n.Property(event.PropertyProcessID)
	assert.Equal(t, "4242", pid)

	n = cache.NodeFromPoint(20, 30)
	require.NotNil(t, n)
	assert.Equal(t, "File", n.Name())
	assert.Equal(t, "MenuItem", n.ControlType())
}

func TestBackend_AddRemove(t *testing.T) {
	b := NewBackend(loadNotepad(t))
	b.Add("win", ElementSpec{ID: "popup", Name: "File", ControlType: "Menu", Bounds: [4]int{0, 40, 200, 140}})

	cache := controltree.New(b)
	require.NoError(t, cache.Rebuild(context.Background()))
	assert.Equal(t, 6, cache.Len())
	assert.NotNil(t, cache.NodeFromElement(Ref("popup")))

	b.Remove("popup")
	require.NoError(t, cache.Rebuild(context.Background()))
	assert.Equal(t, 5, cache.Len())
	assert.Nil(t, cache.NodeFromElement(Ref("popup")))
}

func TestBackend_ExitMakesTreeUnavailable(t *testing.T) {
	b := NewBackend(loadNotepad(t))
	b.Exit()

	err := controltree.New(b).Rebuild(context.Background())
	require.ErrorIs(t, err, controltree.ErrTreeUnavailable)

	pid, err := b.ProcessID(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pid)
	_, err = b.Focused(context.Background())
	assert.ErrorIs(t, err, ErrProcessExited)
}

func TestBackend_Subscriptions(t *testing.T) {
	ctx := context.Background()
	b := NewBackend(loadNotepad(t))
	opts := recorder.SubscribeOptions{Properties: true}

	require.NoError(t, b.Subscribe(ctx, Ref("win"), opts))
	assert.True(t, b.Subscribed())
	assert.True(t, b.covered("edit", func(o recorder.SubscribeOptions) bool { return o.Properties }))

	err := b.Subscribe(ctx, Ref("ghost"), opts)
	assert.ErrorIs(t, err, event.ErrElementVanished)

	require.NoError(t, b.UnsubscribeAll(ctx))
	require.NoError(t, b.UnsubscribeAll(ctx))
	assert.False(t, b.Subscribed())
	assert.False(t, b.covered("edit", func(recorder.SubscribeOptions) bool { return true }))
	assert.Equal(t, []Subscription{{Element: "win", Options: opts}}, b.Subscriptions())
}

func TestBackend_SubscribeFailureAndDelay(t *testing.T) {
	b := NewBackend(loadNotepad(t))
	boom := errors.New("boom")
	b.FailSubscribe(boom)
	assert.ErrorIs(t, b.Subscribe(context.Background(), Ref("win"), recorder.SubscribeOptions{}), boom)

	b.FailSubscribe(nil)
	b.DelaySubscribe(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Subscribe(ctx, Ref("win"), recorder.SubscribeOptions{}), context.DeadlineExceeded)
}

func TestBackend_Hook(t *testing.T) {
	b := NewBackend(loadNotepad(t))
	var got []event.Event
	h, err := b.Install(func(e event.Event) { got = append(got, e) })
	require.NoError(t, err)
	assert.True(t, b.Hooked())

	_, err = b.Install(func(event.Event) {})
	require.Error(t, err)

	require.NoError(t, b.mouse(time.Now(), &MouseStep{Click: "edit"}))
	require.Len(t, got, 2)
	down := got[0].(event.MouseEvent)
	assert.Equal(t, event.PhaseDown, down.Phase)
	assert.Equal(t, 400, down.X)
	assert.Equal(t, 310, down.Y)
	assert.Equal(t, event.PhaseUp, got[1].(event.MouseEvent).Phase)

	// A stale handle leaves the hook alone.
	require.NoError(t, b.Uninstall(h+1))
	assert.True(t, b.Hooked())
	require.NoError(t, b.Uninstall(h))
	assert.False(t, b.Hooked())

	b.keys(time.Now(), &KeyStep{Text: "ab"})
	assert.Equal(t, 4, b.DroppedInput())
	assert.Equal(t, 1, b.Installs())
}

func TestBackend_Keys(t *testing.T) {
	b := NewBackend(loadNotepad(t))
	var got []event.KeyboardEvent
	_, err := b.Install(func(e event.Event) { got = append(got, e.(event.KeyboardEvent)) })
	require.NoError(t, err)

	b.keys(time.Now(), &KeyStep{Text: "Hi"})
	b.keys(time.Now(), &KeyStep{Press: "Return"})
	require.Len(t, got, 6)
	assert.Equal(t, 'H', got[0].Char)
	assert.Equal(t, event.PhaseDown, got[0].Phase)
	assert.Zero(t, got[1].Char)
	assert.Equal(t, "Return", got[4].Key)
	assert.Zero(t, got[4].Char)
}

func TestBackend_MouseAtPoint(t *testing.T) {
	b := NewBackend(loadNotepad(t))
	var got []event.MouseEvent
	_, err := b.Install(func(e event.Event) { got = append(got, e.(event.MouseEvent)) })
	require.NoError(t, err)

	require.NoError(t, b.mouse(time.Now(), &MouseStep{X: 5, Y: 7, Button: event.ButtonRight, Action: "down"}))
	require.Len(t, got, 1)
	assert.Equal(t, event.ButtonRight, got[0].Button)
	assert.Equal(t, 5, got[0].X)

	err = b.mouse(time.Now(), &MouseStep{Click: "ghost"})
	assert.Error(t, err)
}

func TestBackend_Overlay(t *testing.T) {
	b := NewBackend(loadNotepad(t))
	b.Show(controltree.Rect{})
	b.SetProgress(50)
	b.SetProgress(100)
	b.Close()
	assert.Equal(t, []int{50, 100}, b.Progress())

	r, err := b.Bounds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, controltree.Rect{Right: 800, Bottom: 600}, r)
}
