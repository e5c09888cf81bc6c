package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/uirecorder/internal/event"
)

// -----------------------------------------------------------------------
// Constant
// -----------------------------------------------------------------------

type constant struct {
	name string
	text string
}

// Constant adapts a literal fragment to the Handler interface. The fragment
// applies to the node under the head event.
func Constant(name, text string) Handler {
	return constant{name: name, text: text}
}

func (c constant) Name() string { return c.name }

func (c constant) Handle(_ context.Context, in Input) (Output, error) {
	return Output{Target: headTarget(in), Text: c.text}, nil
}

// -----------------------------------------------------------------------
// SelectionChanged
// -----------------------------------------------------------------------

// SelectionChanged emits a select call against the item that became selected.
type SelectionChanged struct{}

func (SelectionChanged) Name() string { return "selection_changed" }

func (SelectionChanged) Handle(_ context.Context, in Input) (Output, error) {
	var sender event.ElementRef
	for _, e := range in.Events {
		switch a := e.(type) {
		case event.ApplicationEvent:
			if a.Name == event.EventSelectionElementSelected && a.Sender != nil {
				sender = a.Sender
			}
		case event.PropertyEvent:
			if a.Property == event.PropertySelectionItemIsSelected && sender == nil && truthy(a.Value) {
				sender = a.Sender
			}
		}
	}
	target := resolve(in.Tree, sender)
	if target == nil {
		target = headTarget(in)
	}
	return Output{Target: target, Text: "select()"}, nil
}

// -----------------------------------------------------------------------
// Menus
// -----------------------------------------------------------------------

// MenuOpened emits open_menu() and asks for a resubscription to the new menu,
// whose subtree the tree cache has not seen yet.
type MenuOpened struct{}

func (MenuOpened) Name() string { return "menu_opened" }

func (MenuOpened) Handle(_ context.Context, in Input) (Output, error) {
	sender := senderOf(in.Events, event.EventMenuOpened)
	target := resolve(in.Tree, sender)
	if target == nil {
		target = headTarget(in)
	}
	return Output{Target: target, Text: "open_menu()", Resubscribe: sender}, nil
}

// MenuClosed emits close_menu().
type MenuClosed struct{}

func (MenuClosed) Name() string { return "menu_closed" }

func (MenuClosed) Handle(_ context.Context, in Input) (Output, error) {
	target := resolve(in.Tree, senderOf(in.Events, event.EventMenuClosed))
	if target == nil {
		target = headTarget(in)
	}
	return Output{Target: target, Text: "close_menu()"}, nil
}

func senderOf(events []event.Event, name string) event.ElementRef {
	for _, e := range events {
		if a, ok := e.(event.ApplicationEvent); ok && a.Name == name {
			return a.Sender
		}
	}
	return nil
}

// -----------------------------------------------------------------------
// ExpandCollapse
// -----------------------------------------------------------------------

// ExpandCollapse tells expand/collapse apart from a plain toggle by the
// property events that accompanied the click.
type ExpandCollapse struct{}

func (ExpandCollapse) Name() string { return "expand_collapse" }

func (ExpandCollapse) Handle(_ context.Context, in Input) (Output, error) {
	var (
		state    *event.PropertyEvent
		toggled  *event.PropertyEvent
		fallback event.ElementRef
	)
	for _, e := range in.Events {
		p, ok := e.(event.PropertyEvent)
		if !ok {
			continue
		}
		switch p.Property {
		case event.PropertyExpandCollapseState:
			state = &p
			fallback = p.Sender
		case event.PropertyToggleState:
			toggled = &p
			if fallback == nil {
				fallback = p.Sender
			}
		}
	}

	target := headTarget(in)
	if target == nil {
		target = resolve(in.Tree, fallback)
	}

	switch {
	case state != nil:
		return Output{Target: target, Text: expandCall(state.Value)}, nil
	case toggled != nil:
		return Output{Target: target, Text: "toggle()"}, nil
	}
	return Output{}, fmt.Errorf("expand_collapse: no state property in group of %d events", len(in.Events))
}

// expandCall maps an ExpandCollapseState value, given either by name or by
// its numeric enumeration, to the call that reproduces it.
func expandCall(v any) string {
	switch strings.ToLower(fmt.Sprint(v)) {
	case "collapsed", "0":
		return "collapse()"
	case "expanded", "1", "partiallyexpanded", "2":
		return "expand()"
	default:
		// Leaf nodes have nothing to expand; the click itself is the action.
		return "click_input()"
	}
}

func truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return true
	case bool:
		return b
	}
	switch strings.ToLower(fmt.Sprint(v)) {
	case "0", "false", "off":
		return false
	}
	return true
}

// -----------------------------------------------------------------------
// MouseClick
// -----------------------------------------------------------------------

// MouseClick is the fallback for any button press.
type MouseClick struct{}

func (MouseClick) Name() string { return "mouse_click" }

func (MouseClick) Handle(_ context.Context, in Input) (Output, error) {
	m, ok := in.Head().(event.MouseEvent)
	if !ok {
		return Output{}, fmt.Errorf("mouse_click: head is %T, want mouse event", in.Head())
	}
	if m.Node != nil {
		if m.Button == event.ButtonLeft || m.Button == "" {
			return Output{Target: m.Node, Text: "click_input()"}, nil
		}
		return Output{Target: m.Node, Text: fmt.Sprintf("click_input(button=%q)", m.Button)}, nil
	}
	button := m.Button
	if button == "" {
		button = event.ButtonLeft
	}
	return Output{Text: fmt.Sprintf("mouse.click(button=%q, coords=(%d, %d))", button, m.X, m.Y)}, nil
}
