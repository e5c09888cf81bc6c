package pattern

import (
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/uirecorder/internal/event"
)

// Match is the outcome of a successful pattern evaluation.
type Match struct {
	Pattern  *Pattern
	Group    []event.Event // head plus every consumed event, in drained order
	Consumed []int         // ascending indices into the evaluated sequence
}

// Matcher evaluates a compiled Table. It holds no mutable state and is safe
// for concurrent use; callers still serialize consumption of the event log.
type Matcher struct {
	table    Table
	excluded map[string]struct{}
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithExcluded lists application-event and property names that no event
// shape may consume.
func WithExcluded(names ...string) Option {
	return func(m *Matcher) {
		for _, n := range names {
			m.excluded[n] = struct{}{}
		}
	}
}

// Compile validates the table and returns a Matcher over a private copy of it.
// All problems are reported together.
func Compile(table Table, opts ...Option) (*Matcher, error) {
	var errs []string
	seen := make(map[string]int)
	for i, p := range table {
		loc := fmt.Sprintf("patterns[%d]", i)
		if p.Name == "" {
			errs = append(errs, loc+": name is required")
		} else {
			loc = fmt.Sprintf("pattern %s", p.Name)
			if prev, ok := seen[p.Name]; ok {
				errs = append(errs, fmt.Sprintf("duplicate name %q (first at patterns[%d], again at patterns[%d])", p.Name, prev, i))
			} else {
				seen[p.Name] = i
			}
		}
		if p.Handler == "" {
			errs = append(errs, loc+": handler is required")
		}
		if p.Hook.Device != DeviceMouse && p.Hook.Device != DeviceKeyboard {
			errs = append(errs, fmt.Sprintf("%s: unknown hook device %q", loc, p.Hook.Device))
		}
		if p.Hook.Phase != event.PhaseDown && p.Hook.Phase != event.PhaseUp {
			errs = append(errs, fmt.Sprintf("%s: hook phase must be %q or %q", loc, event.PhaseDown, event.PhaseUp))
		}
		for j, s := range p.Events {
			if s.Name == "" {
				errs = append(errs, fmt.Sprintf("%s.events[%d]: name is required", loc, j))
			}
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("pattern table errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	m := &Matcher{excluded: make(map[string]struct{})}
	for _, opt := range opts {
		opt(m)
	}
	m.table = make(Table, len(table))
	for i, p := range table {
		p.Events = append([]EventShape(nil), p.Events...)
		m.table[i] = p
	}
	return m, nil
}

// MustCompile is Compile for tables known to be valid at init time.
func MustCompile(table Table, opts ...Option) *Matcher {
	m, err := Compile(table, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

// Patterns returns the compiled table in evaluation order.
func (m *Matcher) Patterns() Table {
	out := make(Table, len(m.table))
	copy(out, m.table)
	return out
}

// Match tries every pattern in table order against seq and returns the first
// that fits. seq[0] must satisfy the pattern's hook shape; the event shapes
// must then appear, in order but not necessarily adjacent, among the rest.
func (m *Matcher) Match(seq []event.Event) (*Match, bool) {
	if len(seq) == 0 {
		return nil, false
	}
	head := seq[0]
	for i := range m.table {
		p := &m.table[i]
		if !p.Hook.Matches(head) {
			continue
		}
		consumed, ok := m.scan(p, seq)
		if !ok {
			continue
		}
		group := make([]event.Event, len(consumed))
		for j, idx := range consumed {
			group[j] = seq[idx]
		}
		return &Match{Pattern: p, Group: group, Consumed: consumed}, true
	}
	return nil, false
}

func (m *Matcher) scan(p *Pattern, seq []event.Event) ([]int, bool) {
	consumed := make([]int, 1, len(p.Events)+1)
	start := 1
	if p.AbsorbRun {
		kind := seq[0].Kind()
		for start < len(seq) && seq[start].Kind() == kind {
			consumed = append(consumed, start)
			start++
		}
	}

	next := 0
	for k := start; k < len(seq) && next < len(p.Events); k++ {
		if m.isExcluded(seq[k]) {
			continue
		}
		if p.Events[next].Matches(seq[k]) {
			consumed = append(consumed, k)
			next++
		}
	}
	return consumed, next == len(p.Events)
}

func (m *Matcher) isExcluded(e event.Event) bool {
	if len(m.excluded) == 0 {
		return false
	}
	var name string
	switch a := e.(type) {
	case event.ApplicationEvent:
		name = a.Name
	case event.PropertyEvent:
		name = a.Property
	default:
		return false
	}
	_, ok := m.excluded[name]
	return ok
}

// FirstHead returns the index of the first key or button press in seq, or -1.
func FirstHead(seq []event.Event) int {
	for i, e := range seq {
		if event.IsDown(e) {
			return i
		}
	}
	return -1
}
