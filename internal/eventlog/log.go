// Package eventlog holds the ordered buffer of normalized events shared by
// the hook and accessibility producers and drained by the single matching
// consumer.
package eventlog

import (
	"sync"

	"github.com/gyaneshwarpardhi/uirecorder/internal/event"
)

// DefaultMaxSize bounds the log when no explicit size is configured.
const DefaultMaxSize = 4096

// Log is an append-only, mutex-guarded event buffer.
//
// Appends from one goroutine keep their relative order. No ordering is
// promised between different producers beyond arrival at the lock.
type Log struct {
	mu      sync.Mutex
	events  []event.Event
	maxSize int // 0 means unbounded
}

// Option configures a Log.
type Option func(*Log)

// WithMaxSize caps the number of buffered events; the oldest are dropped first.
func WithMaxSize(n int) Option {
	return func(l *Log) { l.maxSize = n }
}

// New creates an empty Log.
func New(opts ...Option) *Log {
	l := &Log{maxSize: DefaultMaxSize}
	for _, opt := range opts {
		opt(l)
	}
	l.events = make([]event.Event, 0, 64)
	return l
}

// Append adds e at the back of the log and returns how many old events were
// truncated to stay within the size limit.
func (l *Log) Append(e event.Event) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, e)
	return l.truncateLocked()
}

// DrainAll atomically returns every buffered event in order and empties the log.
func (l *Log) DrainAll() []event.Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.events) == 0 {
		return nil
	}
	out := l.events
	l.events = make([]event.Event, 0, cap(out))
	return out
}

// Requeue puts events back at the front of the log, ahead of anything
// appended since they were drained.
func (l *Log) Requeue(events []event.Event) int {
	if len(events) == 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	merged := make([]event.Event, 0, len(events)+len(l.events))
	merged = append(merged, events...)
	merged = append(merged, l.events...)
	l.events = merged
	return l.truncateLocked()
}

// Clear discards all buffered events.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.events)
	l.events = l.events[:0]
}

// Len returns the number of buffered events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func (l *Log) truncateLocked() int {
	if l.maxSize <= 0 || len(l.events) <= l.maxSize {
		return 0
	}
	n := len(l.events) - l.maxSize
	// Nil out dropped slots so the backing array does not pin element refs.
	clear(l.events[:n])
	l.events = l.events[n:]
	return n
}
