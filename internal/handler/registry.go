package handler

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps handler names to their implementations.
// It is safe for concurrent reads; Register should only be called at startup.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// DefaultRegistry holds every handler the default pattern table refers to.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(SelectionChanged{})
	r.Register(Constant("invoke", "invoke()"))
	r.Register(MenuOpened{})
	r.Register(MenuClosed{})
	r.Register(ExpandCollapse{})
	r.Register(Constant("toggle", "toggle()"))
	r.Register(Constant("select", "select()"))
	r.Register(MouseClick{})
	r.Register(Keyboard{})
	return r
}

// Register adds a handler. Panics on duplicate names to surface misconfiguration early.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[h.Name()]; exists {
		panic(fmt.Sprintf("handler registry: duplicate name %q", h.Name()))
	}
	r.handlers[h.Name()] = h
}

// Get returns the handler registered under name.
func (r *Registry) Get(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("no handler registered for %q", name)
	}
	return h, nil
}

// Names returns all registered handler names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
