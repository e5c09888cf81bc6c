package pattern_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/uirecorder/internal/event"
	"github.com/gyaneshwarpardhi/uirecorder/internal/pattern"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func mouseDown(button string) event.MouseEvent {
	return event.MouseEvent{At: t0, Button: button, Phase: event.PhaseDown, X: 10, Y: 20}
}

func mouseUp(button string) event.MouseEvent {
	return event.MouseEvent{At: t0, Button: button, Phase: event.PhaseUp, X: 10, Y: 20}
}

func keyDown(key string, ch rune) event.KeyboardEvent {
	return event.KeyboardEvent{At: t0, Key: key, Phase: event.PhaseDown, Char: ch}
}

func prop(name string) event.PropertyEvent {
	return event.PropertyEvent{At: t0, Property: name, Sender: event.RuntimeRef("item"), Value: true}
}

func app(name string) event.ApplicationEvent {
	return event.ApplicationEvent{At: t0, Name: name, Sender: event.RuntimeRef("item")}
}

func defaultMatcher(t *testing.T, opts ...pattern.Option) *pattern.Matcher {
	t.Helper()
	m, err := pattern.Compile(pattern.DefaultTable(), opts...)
	require.NoError(t, err)
	return m
}

func TestMatch_FirstMatchWins_ExpandCollapseWithToggle(t *testing.T) {
	m := defaultMatcher(t)
	seq := []event.Event{
		mouseDown(event.ButtonLeft),
		prop(event.PropertyExpandCollapseState),
		prop(event.PropertyToggleState),
	}

	got, ok := m.Match(seq)
	require.True(t, ok)
	assert.Equal(t, "expand_collapse_toggle", got.Pattern.Name)
	assert.Equal(t, []int{0, 1, 2}, got.Consumed)
}

func TestMatch_SingleProperty(t *testing.T) {
	m := defaultMatcher(t)

	got, ok := m.Match([]event.Event{mouseDown(event.ButtonLeft), prop(event.PropertyExpandCollapseState)})
	require.True(t, ok)
	assert.Equal(t, "expand_collapse", got.Pattern.Name)

	got, ok = m.Match([]event.Event{mouseDown(event.ButtonLeft), prop(event.PropertyToggleState)})
	require.True(t, ok)
	assert.Equal(t, "toggle", got.Pattern.Name)
	assert.Equal(t, "toggle", got.Pattern.Handler)
}

func TestMatch_Invoke(t *testing.T) {
	m := defaultMatcher(t)
	got, ok := m.Match([]event.Event{mouseDown(event.ButtonLeft), app(event.EventInvoked)})
	require.True(t, ok)
	assert.Equal(t, "invoke", got.Pattern.Handler)
	assert.Len(t, got.Group, 2)
}

func TestMatch_SelectionConsumesAllFour(t *testing.T) {
	m := defaultMatcher(t)
	seq := []event.Event{
		mouseDown(event.ButtonLeft),
		prop(event.PropertySelectionItemIsSelected),
		prop(event.PropertySelectionItemIsSelected),
		app(event.EventSelectionElementSelected),
	}
	got, ok := m.Match(seq)
	require.True(t, ok)
	assert.Equal(t, "selection_changed", got.Pattern.Name)
	assert.Equal(t, []int{0, 1, 2, 3}, got.Consumed)
}

func TestMatch_NonContiguousSubsequence(t *testing.T) {
	m := defaultMatcher(t)
	seq := []event.Event{
		mouseDown(event.ButtonLeft),
		event.FocusChangedEvent{At: t0, Sender: event.RuntimeRef("x")},
		mouseUp(event.ButtonLeft),
		app(event.EventInvoked),
		app(event.EventFocusChanged),
	}
	got, ok := m.Match(seq)
	require.True(t, ok)
	assert.Equal(t, "invoke", got.Pattern.Name)
	assert.Equal(t, []int{0, 3}, got.Consumed, "only consumed events are reported")
}

func TestMatch_OrderMatters(t *testing.T) {
	m := defaultMatcher(t)
	// Toggle before expand/collapse cannot satisfy the two-property pattern.
	seq := []event.Event{
		mouseDown(event.ButtonLeft),
		prop(event.PropertyToggleState),
		prop(event.PropertyExpandCollapseState),
	}
	got, ok := m.Match(seq)
	require.True(t, ok)
	assert.Equal(t, "expand_collapse", got.Pattern.Name)
	assert.Equal(t, []int{0, 2}, got.Consumed)
}

func TestMatch_Fallbacks(t *testing.T) {
	m := defaultMatcher(t)

	got, ok := m.Match([]event.Event{mouseDown(event.ButtonRight), app(event.EventInvoked)})
	require.True(t, ok)
	assert.Equal(t, "mouse_click", got.Pattern.Name, "right button never matches left-button patterns")
	assert.Equal(t, []int{0}, got.Consumed)

	got, ok = m.Match([]event.Event{keyDown("a", 'a')})
	require.True(t, ok)
	assert.Equal(t, "keyboard", got.Pattern.Name)
}

func TestMatch_KeyboardRunAbsorbed(t *testing.T) {
	m := defaultMatcher(t)
	seq := []event.Event{
		keyDown("h", 'h'),
		event.KeyboardEvent{At: t0, Key: "h", Phase: event.PhaseUp},
		keyDown("i", 'i'),
		event.FocusChangedEvent{At: t0, Sender: event.RuntimeRef("x")},
		keyDown("j", 'j'),
	}
	got, ok := m.Match(seq)
	require.True(t, ok)
	assert.Equal(t, []int{0, 1, 2}, got.Consumed, "run stops at the first non-keyboard event")
}

func TestMatch_HeadMustComeFirst(t *testing.T) {
	m := defaultMatcher(t)
	_, ok := m.Match([]event.Event{app(event.EventInvoked), mouseDown(event.ButtonLeft)})
	assert.False(t, ok)

	_, ok = m.Match([]event.Event{mouseUp(event.ButtonLeft)})
	assert.False(t, ok, "release never starts a pattern")

	_, ok = m.Match(nil)
	assert.False(t, ok)
}

func TestMatch_ExcludedNamesAreSkipped(t *testing.T) {
	m := defaultMatcher(t, pattern.WithExcluded(event.EventInvoked))
	got, ok := m.Match([]event.Event{mouseDown(event.ButtonLeft), app(event.EventInvoked)})
	require.True(t, ok)
	assert.Equal(t, "mouse_click", got.Pattern.Name)
}

func TestMatch_PropertyValueIgnored(t *testing.T) {
	m := defaultMatcher(t)
	p := prop(event.PropertyToggleState)
	p.Value = "anything"
	got, ok := m.Match([]event.Event{mouseDown(event.ButtonLeft), p})
	require.True(t, ok)
	assert.Equal(t, "toggle", got.Pattern.Name)
}

func TestMatch_ApplicationNameDoesNotMatchPropertyShape(t *testing.T) {
	m := defaultMatcher(t)
	got, ok := m.Match([]event.Event{mouseDown(event.ButtonLeft), app(event.PropertyToggleState)})
	require.True(t, ok)
	assert.Equal(t, "mouse_click", got.Pattern.Name)
}

func TestCompile_ReportsAllErrors(t *testing.T) {
	_, err := pattern.Compile(pattern.Table{
		{Name: "a", Hook: pattern.HookShape{Device: pattern.DeviceMouse, Phase: event.PhaseDown}},
		{Name: "a", Handler: "h", Hook: pattern.HookShape{Device: "pen", Phase: event.PhaseDown}},
		{Handler: "h", Hook: pattern.HookShape{Device: pattern.DeviceKeyboard}, Events: []pattern.EventShape{{}}},
	})
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "pattern a: handler is required")
	assert.Contains(t, msg, `duplicate name "a"`)
	assert.Contains(t, msg, `unknown hook device "pen"`)
	assert.Contains(t, msg, "patterns[2]: name is required")
	assert.Contains(t, msg, "hook phase must be")
	assert.Contains(t, msg, "patterns[2].events[0]: name is required")
}

func TestFirstHead(t *testing.T) {
	seq := []event.Event{app(event.EventInvoked), mouseUp(event.ButtonLeft), keyDown("a", 'a')}
	assert.Equal(t, 2, pattern.FirstHead(seq))
	assert.Equal(t, -1, pattern.FirstHead(seq[:2]))
}

func TestPatternString(t *testing.T) {
	p := pattern.DefaultTable()[1]
	assert.Equal(t, "invoke: mouse(left, down), event(Invoked) -> invoke", p.String())
}
