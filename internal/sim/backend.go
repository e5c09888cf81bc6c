package sim

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/uirecorder/internal/controltree"
	"github.com/gyaneshwarpardhi/uirecorder/internal/event"
	"github.com/gyaneshwarpardhi/uirecorder/internal/recorder"
)

// ErrProcessExited is returned by the tree source once the application is gone.
var ErrProcessExited = errors.New("sim: process exited")

type element struct {
	spec     ElementSpec
	parent   string
	children []string
}

// Subscription records one Platform.Subscribe call.
type Subscription struct {
	Element string
	Options recorder.SubscribeOptions
}

// Backend is an in-memory application. It satisfies controltree.Source,
// recorder.Platform, recorder.Hook, recorder.Overlay and recorder.Target.
type Backend struct {
	mu       sync.Mutex
	pid      int
	exited   bool
	rootID   string
	elements map[string]*element
	focus    string

	subs       []Subscription
	subscribed map[string]recorder.SubscribeOptions

	hookFn     func(event.Event)
	hookHandle recorder.HookHandle
	nextHandle recorder.HookHandle
	installs   int
	dropped    int

	progress []int
	shows    int

	// Failure injection for tests.
	subscribeErr   error
	subscribeDelay time.Duration
}

// NewBackend builds the application described by sc.
func NewBackend(sc *Scenario) *Backend {
	b := &Backend{
		pid:        sc.ProcessID,
		rootID:     sc.Tree.ID,
		elements:   make(map[string]*element),
		focus:      sc.Focus,
		subscribed: make(map[string]recorder.SubscribeOptions),
	}
	b.addLocked("", sc.Tree)
	if b.focus == "" {
		b.focus = b.rootID
	}
	return b
}

func (b *Backend) addLocked(parent string, spec ElementSpec) {
	el := &element{spec: spec, parent: parent}
	el.spec.Children = nil
	b.elements[spec.ID] = el
	if p, ok := b.elements[parent]; ok {
		p.children = append(p.children, spec.ID)
	}
	for _, c := range spec.Children {
		b.addLocked(spec.ID, c)
	}
}

func (b *Backend) removeLocked(id string) {
	el, ok := b.elements[id]
	if !ok {
		return
	}
	for _, c := range el.children {
		b.removeLocked(c)
	}
	if p, ok := b.elements[el.parent]; ok {
		kept := p.children[:0]
		for _, c := range p.children {
			if c != id {
				kept = append(kept, c)
			}
		}
		p.children = kept
	}
	delete(b.elements, id)
	delete(b.subscribed, id)
}

// Ref returns the element reference for an id.
func Ref(id string) event.ElementRef {
	if id == "" {
		return nil
	}
	return event.RuntimeRef(id)
}

// FailSubscribe makes every later Subscribe call fail with err.
func (b *Backend) FailSubscribe(err error) {
	b.mu.Lock()
	b.subscribeErr = err
	b.mu.Unlock()
}

// DelaySubscribe makes Subscribe block for d or until its context ends.
func (b *Backend) DelaySubscribe(d time.Duration) {
	b.mu.Lock()
	b.subscribeDelay = d
	b.mu.Unlock()
}

// ---------------------------------------------------------------------------
// controltree.Source
// ---------------------------------------------------------------------------

func (b *Backend) Root(context.Context) (event.ElementRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.exited {
		return nil, ErrProcessExited
	}
	return event.RuntimeRef(b.rootID), nil
}

func (b *Backend) Children(_ context.Context, ref event.ElementRef) ([]event.ElementRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	el, ok := b.elements[ref.RuntimeID()]
	if !ok {
		return nil, event.ErrElementVanished
	}
	out := make([]event.ElementRef, len(el.children))
	for i, c := range el.children {
		out[i] = event.RuntimeRef(c)
	}
	return out, nil
}

func (b *Backend) Describe(_ context.Context, ref event.ElementRef) (controltree.Element, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.exited {
		return controltree.Element{}, ErrProcessExited
	}
	el, ok := b.elements[ref.RuntimeID()]
	if !ok {
		return controltree.Element{}, event.ErrElementVanished
	}
	s := el.spec
	props := map[string]string{
		event.PropertyName:                 s.Name,
		event.PropertyControlType:          s.ControlType,
		event.PropertyLocalizedControlType: strings.ToLower(s.ControlType),
		event.PropertyClassName:            s.ClassName,
		event.PropertyAutomationID:         s.AutomationID,
		event.PropertyFrameworkID:          s.FrameworkID,
		event.PropertyProcessID:            strconv.Itoa(b.pid),
		event.PropertyProviderDescription:  "sim",
		event.PropertyIsEnabled:            "true",
	}
	return controltree.Element{Bounds: s.Rect(), Properties: props}, nil
}

// ---------------------------------------------------------------------------
// recorder.Platform
// ---------------------------------------------------------------------------

func (b *Backend) Subscribe(ctx context.Context, ref event.ElementRef, opts recorder.SubscribeOptions) error {
	b.mu.Lock()
	delay, failure := b.subscribeDelay, b.subscribeErr
	b.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if failure != nil {
		return failure
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	id := ref.RuntimeID()
	if _, ok := b.elements[id]; !ok {
		return fmt.Errorf("subscribe %s: %w", id, event.ErrElementVanished)
	}
	b.subscribed[id] = opts
	b.subs = append(b.subs, Subscription{Element: id, Options: opts})
	return nil
}

func (b *Backend) UnsubscribeAll(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.subscribed)
	return nil
}

func (b *Backend) Focused(context.Context) (event.ElementRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.exited {
		return nil, ErrProcessExited
	}
	return Ref(b.focus), nil
}

// Subscriptions returns every successful Subscribe call in order.
func (b *Backend) Subscriptions() []Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Subscription, len(b.subs))
	copy(out, b.subs)
	return out
}

// Subscribed reports whether any subscription is active.
func (b *Backend) Subscribed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribed) > 0
}

// coveredLocked returns the options of the nearest subscribed ancestor of id.
func (b *Backend) coveredLocked(id string) (recorder.SubscribeOptions, bool) {
	for cur := id; cur != ""; {
		if opts, ok := b.subscribed[cur]; ok {
			return opts, true
		}
		el, ok := b.elements[cur]
		if !ok {
			break
		}
		cur = el.parent
	}
	return recorder.SubscribeOptions{}, false
}

// ---------------------------------------------------------------------------
// recorder.Hook
// ---------------------------------------------------------------------------

func (b *Backend) Install(fn func(event.Event)) (recorder.HookHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.hookFn != nil {
		return 0, errors.New("sim: hook already installed")
	}
	b.nextHandle++
	b.hookFn, b.hookHandle = fn, b.nextHandle
	b.installs++
	return b.hookHandle, nil
}

func (b *Backend) Uninstall(h recorder.HookHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.hookFn != nil && h == b.hookHandle {
		b.hookFn = nil
	}
	return nil
}

// Hooked reports whether the input hook is installed.
func (b *Backend) Hooked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hookFn != nil
}

// Installs counts hook installations.
func (b *Backend) Installs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.installs
}

// DroppedInput counts input delivered while no hook was installed.
func (b *Backend) DroppedInput() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// ---------------------------------------------------------------------------
// recorder.Overlay
// ---------------------------------------------------------------------------

func (b *Backend) Show(controltree.Rect) {
	b.mu.Lock()
	b.shows++
	b.mu.Unlock()
}

func (b *Backend) SetProgress(p int) {
	b.mu.Lock()
	b.progress = append(b.progress, p)
	b.mu.Unlock()
}

func (b *Backend) Close() {}

// Progress returns every progress value shown, across all cycles.
func (b *Backend) Progress() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]int, len(b.progress))
	copy(out, b.progress)
	return out
}

// ---------------------------------------------------------------------------
// recorder.Target
// ---------------------------------------------------------------------------

func (b *Backend) Element() event.ElementRef { return event.RuntimeRef(b.rootID) }

func (b *Backend) ProcessID(context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.exited {
		return 0, nil
	}
	return b.pid, nil
}

func (b *Backend) Bounds(context.Context) (controltree.Rect, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	root, ok := b.elements[b.rootID]
	if !ok || b.exited {
		return controltree.Rect{}, ErrProcessExited
	}
	return root.spec.Rect(), nil
}

// ---------------------------------------------------------------------------
// Timeline mutations
// ---------------------------------------------------------------------------

// Add attaches spec under parent.
func (b *Backend) Add(parent string, spec ElementSpec) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addLocked(parent, spec)
}

// Remove detaches id and its subtree.
func (b *Backend) Remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(id)
}

// SetFocus moves keyboard focus.
func (b *Backend) SetFocus(id string) {
	b.mu.Lock()
	b.focus = id
	b.mu.Unlock()
}

// Exit marks the process as gone.
func (b *Backend) Exit() {
	b.mu.Lock()
	b.exited = true
	b.mu.Unlock()
}

// center returns the centre of an element's bounds.
func (b *Backend) center(id string) (int, int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	el, ok := b.elements[id]
	if !ok {
		return 0, 0, false
	}
	r := el.spec.Rect()
	return (r.Left + r.Right) / 2, (r.Top + r.Bottom) / 2, true
}
