package event

import "time"

// Kind discriminates the normalized event variants.
type Kind string

const (
	KindMouse       Kind = "mouse"
	KindKeyboard    Kind = "keyboard"
	KindProperty    Kind = "property"
	KindApplication Kind = "application"
	KindFocus       Kind = "focus"
	KindStructure   Kind = "structure"
)

// Phase is the press state of a hook event.
type Phase string

const (
	PhaseDown Phase = "down"
	PhaseUp   Phase = "up"
)

// Event is the canonical input model for everything the recorder logs.
// Values are immutable once created.
type Event interface {
	Kind() Kind
	Time() time.Time
	eventNode()
}

// ElementRef is an opaque handle to a live accessibility element.
// It is borrowed from the platform layer for the duration of event handling only.
type ElementRef interface {
	RuntimeID() string
}

// RuntimeRef is an ElementRef backed by a runtime id string.
type RuntimeRef string

func (r RuntimeRef) RuntimeID() string { return string(r) }

// NodeRef is the read-only view of a cached control-tree node.
type NodeRef interface {
	Key() string
	Name() string
	Locator() string
}

// -----------------------------------------------------------------------
// Hook events
// -----------------------------------------------------------------------

// MouseEvent is a raw button notification from the input hook.
type MouseEvent struct {
	At     time.Time
	Button string // "left" | "right" | "middle"
	Phase  Phase
	X, Y   int
	Node   NodeRef // resolved at creation time; nil if no node matched
}

func (MouseEvent) eventNode()        {}
func (MouseEvent) Kind() Kind        { return KindMouse }
func (e MouseEvent) Time() time.Time { return e.At }

// KeyboardEvent is a raw key notification from the input hook.
type KeyboardEvent struct {
	At    time.Time
	Key   string
	Phase Phase
	Char  rune // 0 for non-printing keys
	Node  NodeRef
}

func (KeyboardEvent) eventNode()        {}
func (KeyboardEvent) Kind() Kind        { return KindKeyboard }
func (e KeyboardEvent) Time() time.Time { return e.At }

// -----------------------------------------------------------------------
// Application events
// -----------------------------------------------------------------------

// PropertyEvent reports a changed accessibility property.
type PropertyEvent struct {
	At       time.Time
	Property string
	Sender   ElementRef
	Value    any
}

func (PropertyEvent) eventNode()        {}
func (PropertyEvent) Kind() Kind        { return KindProperty }
func (e PropertyEvent) Time() time.Time { return e.At }

// ApplicationEvent is a generic named accessibility event.
type ApplicationEvent struct {
	At     time.Time
	Name   string
	Sender ElementRef
}

func (ApplicationEvent) eventNode()        {}
func (ApplicationEvent) Kind() Kind        { return KindApplication }
func (e ApplicationEvent) Time() time.Time { return e.At }

// FocusChangedEvent reports that keyboard focus moved to Sender.
type FocusChangedEvent struct {
	At     time.Time
	Sender ElementRef
}

func (FocusChangedEvent) eventNode()        {}
func (FocusChangedEvent) Kind() Kind        { return KindFocus }
func (e FocusChangedEvent) Time() time.Time { return e.At }

// StructureChangedEvent reports a change in the element hierarchy under Sender.
type StructureChangedEvent struct {
	At        time.Time
	Sender    ElementRef
	Change    string // "ChildAdded", "ChildRemoved", ...
	RuntimeID []int
}

func (StructureChangedEvent) eventNode()        {}
func (StructureChangedEvent) Kind() Kind        { return KindStructure }
func (e StructureChangedEvent) Time() time.Time { return e.At }

// IsHook reports whether e came from the input hook.
func IsHook(e Event) bool {
	k := e.Kind()
	return k == KindMouse || k == KindKeyboard
}

// HookPhase returns the phase of a hook event; ok is false for application events.
func HookPhase(e Event) (Phase, bool) {
	switch h := e.(type) {
	case MouseEvent:
		return h.Phase, true
	case KeyboardEvent:
		return h.Phase, true
	}
	return "", false
}

// IsDown reports whether e is a key or button press.
func IsDown(e Event) bool {
	p, ok := HookPhase(e)
	return ok && p == PhaseDown
}

// Sender returns the source element of an application-originated event.
func Sender(e Event) ElementRef {
	switch a := e.(type) {
	case PropertyEvent:
		return a.Sender
	case ApplicationEvent:
		return a.Sender
	case FocusChangedEvent:
		return a.Sender
	case StructureChangedEvent:
		return a.Sender
	}
	return nil
}

// ResolvedNode returns the node attached to a hook event at creation time.
func ResolvedNode(e Event) NodeRef {
	switch h := e.(type) {
	case MouseEvent:
		return h.Node
	case KeyboardEvent:
		return h.Node
	}
	return nil
}
