// Package handler turns a matched event group into one script fragment.
package handler

import (
	"context"

	"github.com/gyaneshwarpardhi/uirecorder/internal/controltree"
	"github.com/gyaneshwarpardhi/uirecorder/internal/event"
)

// Tree is the read-only control-tree view handlers may consult.
type Tree interface {
	NodeFromElement(el event.ElementRef) *controltree.Node
	NodeFromPoint(x, y int) *controltree.Node
}

// Input is a matched group: the head hook event followed by every event the
// pattern consumed, in drained order.
type Input struct {
	Pattern string
	Events  []event.Event
	Tree    Tree
}

// Head returns the hook event that started the group.
func (in Input) Head() event.Event {
	if len(in.Events) == 0 {
		return nil
	}
	return in.Events[0]
}

// Output is the fragment a handler produces.
type Output struct {
	Target event.NodeRef // element the call applies to; nil for free-standing statements
	Text   string        // the call itself, e.g. "invoke()"

	// Resubscribe asks the recorder to rebuild the tree and subscribe to this
	// element, for actions that reveal previously unseen subtrees.
	Resubscribe event.ElementRef
}

// Handler is the interface every semantic action family satisfies.
// Handlers read the tree but never modify it.
type Handler interface {
	// Name returns the key this handler is registered under.
	Name() string
	// Handle converts a matched group into a fragment.
	Handle(ctx context.Context, in Input) (Output, error)
}

// headTarget returns the node resolved for the head event, if any.
func headTarget(in Input) event.NodeRef {
	if h := in.Head(); h != nil {
		return event.ResolvedNode(h)
	}
	return nil
}

// resolve maps a live element to its cached node, returning a nil interface
// (not a typed nil) when the element is unknown.
func resolve(tree Tree, el event.ElementRef) event.NodeRef {
	if tree == nil || el == nil {
		return nil
	}
	if n := tree.NodeFromElement(el); n != nil {
		return n
	}
	return nil
}
