package controltree

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gyaneshwarpardhi/uirecorder/internal/event"
)

// Rect is a screen rectangle; Right and Bottom are exclusive.
type Rect struct {
	Left   int `json:"left" yaml:"left"`
	Top    int `json:"top" yaml:"top"`
	Right  int `json:"right" yaml:"right"`
	Bottom int `json:"bottom" yaml:"bottom"`
}

// Contains reports whether (x, y) lies inside r.
func (r Rect) Contains(x, y int) bool {
	return x >= r.Left && x < r.Right && y >= r.Top && y < r.Bottom
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return r.Right <= r.Left || r.Bottom <= r.Top
}

func (r Rect) String() string {
	return fmt.Sprintf("(L%d, T%d, R%d, B%d)", r.Left, r.Top, r.Right, r.Bottom)
}

// Element is what a Source reports for one live element.
type Element struct {
	Bounds     Rect
	Properties map[string]string
}

// Node is the cached representation of one element. Nodes belong to the
// snapshot that built them and are never mutated after Rebuild returns.
type Node struct {
	key       string
	runtimeID string
	bounds    Rect
	props     map[string]string
	parent    *Node
	children  []*Node
	depth     int
	order     int // position in walk order; later means drawn on top
}

func (n *Node) Key() string         { return n.key }
func (n *Node) RuntimeID() string   { return n.runtimeID }
func (n *Node) Bounds() Rect        { return n.bounds }
func (n *Node) Parent() *Node       { return n.parent }
func (n *Node) Children() []*Node   { return n.children }
func (n *Node) Depth() int          { return n.depth }
func (n *Node) Name() string        { return n.props[event.PropertyName] }
func (n *Node) ControlType() string { return n.props[event.PropertyControlType] }

// Property returns a cached property value.
func (n *Node) Property(name string) (string, bool) {
	v, ok := n.props[name]
	return v, ok
}

// Properties returns a copy of the cached property bag.
func (n *Node) Properties() map[string]string {
	out := make(map[string]string, len(n.props))
	for k, v := range n.props {
		out[k] = v
	}
	return out
}

// Locator renders a pywinauto-style expression that finds this node again:
// the top-level window followed by a child_window lookup for the node itself.
func (n *Node) Locator() string {
	root := n
	for root.parent != nil {
		root = root.parent
	}
	var b strings.Builder
	b.WriteString("app.window(")
	b.WriteString(criteria(root))
	b.WriteString(")")
	if root != n {
		b.WriteString(".child_window(")
		b.WriteString(criteria(n))
		b.WriteString(")")
	}
	return b.String()
}

func criteria(n *Node) string {
	var parts []string
	if v := n.props[event.PropertyName]; v != "" {
		parts = append(parts, "title="+strconv.Quote(v))
	}
	if v := n.props[event.PropertyAutomationID]; v != "" {
		parts = append(parts, "auto_id="+strconv.Quote(v))
	}
	if v := n.props[event.PropertyControlType]; v != "" {
		parts = append(parts, "control_type="+strconv.Quote(v))
	}
	if len(parts) == 0 {
		if v := n.props[event.PropertyClassName]; v != "" {
			parts = append(parts, "class_name="+strconv.Quote(v))
		}
	}
	return strings.Join(parts, ", ")
}

// nodeKey derives the stable identity of an element from its process id
// combined with the runtime id, or the automation id and sibling path when
// the platform reports no runtime id.
func nodeKey(runtimeID string, props map[string]string, path string) string {
	pid := props[event.PropertyProcessID]
	switch {
	case runtimeID != "":
		return pid + "/" + runtimeID
	case props[event.PropertyAutomationID] != "":
		return pid + "/" + props[event.PropertyAutomationID] + "@" + path
	default:
		return pid + "@" + path
	}
}
