// Package pattern defines the ahead-of-time table that correlates one hook
// event with the accessibility events that follow it, and the matcher that
// evaluates the table against a drained event sequence.
package pattern

import (
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/uirecorder/internal/event"
)

// Device selects which hook stream a HookShape accepts.
type Device string

const (
	DeviceMouse    Device = "mouse"
	DeviceKeyboard Device = "keyboard"
)

// HookShape describes the hook event that must start a pattern.
type HookShape struct {
	Device Device
	ID     string // button or key name; empty accepts any
	Phase  event.Phase
}

// Matches reports whether e has this shape.
func (s HookShape) Matches(e event.Event) bool {
	switch h := e.(type) {
	case event.MouseEvent:
		return s.Device == DeviceMouse && h.Phase == s.Phase && (s.ID == "" || s.ID == h.Button)
	case event.KeyboardEvent:
		return s.Device == DeviceKeyboard && h.Phase == s.Phase && (s.ID == "" || s.ID == h.Key)
	}
	return false
}

func (s HookShape) String() string {
	id := s.ID
	if id == "" {
		id = "*"
	}
	return fmt.Sprintf("%s(%s, %s)", s.Device, id, s.Phase)
}

// EventShape matches an ApplicationEvent by name or, when Property is set,
// a PropertyEvent by property name. Values are never compared.
type EventShape struct {
	Name     string
	Property bool
}

// App is shorthand for an application-event shape.
func App(name string) EventShape { return EventShape{Name: name} }

// Prop is shorthand for a property-event shape.
func Prop(name string) EventShape { return EventShape{Name: name, Property: true} }

// Matches reports whether e has this shape.
func (s EventShape) Matches(e event.Event) bool {
	switch a := e.(type) {
	case event.ApplicationEvent:
		return !s.Property && a.Name == s.Name
	case event.PropertyEvent:
		return s.Property && a.Property == s.Name
	}
	return false
}

func (s EventShape) String() string {
	if s.Property {
		return "property(" + s.Name + ")"
	}
	return "event(" + s.Name + ")"
}

// Pattern binds a hook shape and an ordered list of event shapes to a handler.
type Pattern struct {
	Name    string
	Hook    HookShape
	Events  []EventShape
	Handler string // handler registry key

	// AbsorbRun extends the matched group with the hook events of the same
	// device that directly follow the head, up to the first event of another kind.
	AbsorbRun bool
}

func (p Pattern) String() string {
	parts := make([]string, 0, len(p.Events)+1)
	parts = append(parts, p.Hook.String())
	for _, s := range p.Events {
		parts = append(parts, s.String())
	}
	return fmt.Sprintf("%s: %s -> %s", p.Name, strings.Join(parts, ", "), p.Handler)
}

// Table is an ordered pattern list. Earlier entries win.
type Table []Pattern

// DefaultTable returns the recorder's pattern table. Specific patterns come
// before the generic click and keyboard fallbacks.
func DefaultTable() Table {
	leftDown := HookShape{Device: DeviceMouse, ID: event.ButtonLeft, Phase: event.PhaseDown}
	return Table{
		{
			Name: "selection_changed",
			Hook: leftDown,
			Events: []EventShape{
				Prop(event.PropertySelectionItemIsSelected),
				Prop(event.PropertySelectionItemIsSelected),
				App(event.EventSelectionElementSelected),
			},
			Handler: "selection_changed",
		},
		{Name: "invoke", Hook: leftDown, Events: []EventShape{App(event.EventInvoked)}, Handler: "invoke"},
		{Name: "menu_opened", Hook: leftDown, Events: []EventShape{App(event.EventMenuOpened)}, Handler: "menu_opened"},
		{Name: "menu_closed", Hook: leftDown, Events: []EventShape{App(event.EventMenuClosed)}, Handler: "menu_closed"},
		{
			Name: "expand_collapse_toggle",
			Hook: leftDown,
			Events: []EventShape{
				Prop(event.PropertyExpandCollapseState),
				Prop(event.PropertyToggleState),
			},
			Handler: "expand_collapse",
		},
		{
			Name:    "expand_collapse",
			Hook:    leftDown,
			Events:  []EventShape{Prop(event.PropertyExpandCollapseState)},
			Handler: "expand_collapse",
		},
		{Name: "toggle", Hook: leftDown, Events: []EventShape{Prop(event.PropertyToggleState)}, Handler: "toggle"},
		{Name: "select", Hook: leftDown, Events: []EventShape{Prop(event.PropertySelectionItemIsSelected)}, Handler: "select"},
		{
			Name:    "mouse_click",
			Hook:    HookShape{Device: DeviceMouse, Phase: event.PhaseDown},
			Handler: "mouse_click",
		},
		{
			Name:      "keyboard",
			Hook:      HookShape{Device: DeviceKeyboard, Phase: event.PhaseDown},
			Handler:   "keyboard",
			AbsorbRun: true,
		},
	}
}
