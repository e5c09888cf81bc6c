// Package script collects the fragments a recording session emits.
package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// ErrClosed is returned by sinks that no longer accept fragments.
var ErrClosed = errors.New("script sink closed")

// Fragment is one emitted script line.
type Fragment struct {
	Seq     uint64    `json:"seq"`
	Pattern string    `json:"pattern"`
	Line    string    `json:"line"`
	At      time.Time `json:"at"`
}

// Sink receives fragments in emission order.
type Sink interface {
	Append(ctx context.Context, f Fragment) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, f Fragment) error

func (fn SinkFunc) Append(ctx context.Context, f Fragment) error { return fn(ctx, f) }

// Buffer keeps fragments in memory. Safe for concurrent use.
type Buffer struct {
	mu    sync.Mutex
	frags []Fragment
}

// NewBuffer returns an empty Buffer.
func NewBuffer() *Buffer { return &Buffer{} }

func (b *Buffer) Append(_ context.Context, f Fragment) error {
	b.mu.Lock()
	b.frags = append(b.frags, f)
	b.mu.Unlock()
	return nil
}

// Fragments returns a copy of everything appended so far.
func (b *Buffer) Fragments() []Fragment {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Fragment, len(b.frags))
	copy(out, b.frags)
	return out
}

// Lines returns the rendered lines in order.
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.frags))
	for i, f := range b.frags {
		out[i] = f.Line
	}
	return out
}

// Len returns the number of fragments held.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frags)
}

// String renders the script, one line per fragment.
func (b *Buffer) String() string {
	lines := b.Lines()
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// WriterSink writes each fragment's line to w.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink wraps w.
func NewWriterSink(w io.Writer) *WriterSink { return &WriterSink{w: w} }

func (s *WriterSink) Append(_ context.Context, f Fragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintln(s.w, f.Line); err != nil {
		return fmt.Errorf("write fragment %d: %w", f.Seq, err)
	}
	return nil
}

// Multi fans a fragment out to every sink. All sinks are tried; their
// errors are joined.
type Multi []Sink

func (m Multi) Append(ctx context.Context, f Fragment) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
