// Package controltree caches the logical element hierarchy of the recorded
// application and resolves screen points and live elements to cached nodes.
package controltree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gyaneshwarpardhi/uirecorder/internal/event"
	"github.com/gyaneshwarpardhi/uirecorder/internal/metrics"
)

// ErrTreeUnavailable means the live tree could not be walked, typically
// because the application closed mid-walk.
var ErrTreeUnavailable = errors.New("control tree unavailable")

// DefaultCellSize is the edge length, in pixels, of a hit-test grid cell.
const DefaultCellSize = 64

// Source is the live accessibility tree a Cache is built from.
type Source interface {
	Root(ctx context.Context) (event.ElementRef, error)
	Children(ctx context.Context, el event.ElementRef) ([]event.ElementRef, error)
	Describe(ctx context.Context, el event.ElementRef) (Element, error)
}

// DefaultCachedProperties is the property set kept on every node.
func DefaultCachedProperties() []string {
	return []string{
		event.PropertyFrameworkID,
		event.PropertyAutomationID,
		event.PropertyClassName,
		event.PropertyControlType,
		event.PropertyProviderDescription,
		event.PropertyProcessID,
		event.PropertyLocalizedControlType,
		event.PropertyName,
	}
}

// Snapshot is one fully built tree. It is immutable once built.
type Snapshot struct {
	root       *Node
	nodes      []*Node
	byRuntime  map[string]*Node
	grid       *grid
	generation uint64
}

// Cache holds the current snapshot of the control tree.
//
// Rebuild replaces the snapshot wholesale. Callers keep queries and rebuilds
// from overlapping (the recorder stops the hook during a rebuild); the
// snapshot pointer is swapped atomically so a reader never observes a
// partially built tree either way.
type Cache struct {
	src      Source
	cached   map[string]struct{}
	cellSize int
	logger   *slog.Logger

	snap atomic.Pointer[Snapshot]
	gen  atomic.Uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithCachedProperties replaces the set of properties copied onto nodes.
func WithCachedProperties(names ...string) Option {
	return func(c *Cache) {
		c.cached = make(map[string]struct{}, len(names))
		for _, n := range names {
			c.cached[n] = struct{}{}
		}
	}
}

// WithCellSize sets the hit-test grid cell size in pixels.
func WithCellSize(px int) Option {
	return func(c *Cache) {
		if px > 0 {
			c.cellSize = px
		}
	}
}

// WithLogger sets the logger used for walk diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates an empty Cache over src. Call Rebuild before querying.
func New(src Source, opts ...Option) *Cache {
	c := &Cache{
		src:      src,
		cellSize: DefaultCellSize,
		logger:   slog.Default(),
	}
	WithCachedProperties(DefaultCachedProperties()...)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Rebuild walks the live tree and replaces the current snapshot.
// The previous snapshot stays in place if the walk fails or ctx ends first.
func (c *Cache) Rebuild(ctx context.Context) error {
	snap, err := c.Build(ctx)
	if err != nil {
		return err
	}
	c.Publish(snap)
	return nil
}

// Build walks the live tree without publishing the result, for callers that
// decide later whether to keep it.
func (c *Cache) Build(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	snap, err := c.walk(ctx)
	metrics.RebuildDuration.Observe(float64(time.Since(start).Milliseconds()))
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		outcome := "error"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			outcome = "aborted"
		}
		metrics.Rebuilds.WithLabelValues(outcome).Inc()
		return nil, err
	}
	return snap, nil
}

// Publish makes snap the current snapshot.
func (c *Cache) Publish(snap *Snapshot) {
	snap.generation = c.gen.Add(1)
	c.snap.Store(snap)
	metrics.Rebuilds.WithLabelValues("ok").Inc()
	c.logger.Debug("control tree rebuilt", "nodes", len(snap.nodes), "generation", snap.generation)
}

// Len returns the number of nodes in the snapshot.
func (s *Snapshot) Len() int { return len(s.nodes) }

func (c *Cache) walk(ctx context.Context) (*Snapshot, error) {
	rootRef, err := c.src.Root(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: root: %v", ErrTreeUnavailable, err)
	}
	snap := &Snapshot{byRuntime: make(map[string]*Node)}
	root, err := c.visit(ctx, snap, rootRef, nil, "0")
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, fmt.Errorf("%w: root element vanished", ErrTreeUnavailable)
	}
	snap.root = root
	snap.grid = newGrid(c.cellSize, snap.nodes)
	return snap, nil
}

func (c *Cache) visit(ctx context.Context, snap *Snapshot, ref event.ElementRef, parent *Node, path string) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	el, err := c.src.Describe(ctx, ref)
	if err != nil {
		if errors.Is(err, event.ErrElementVanished) {
			c.logger.Debug("element vanished during walk", "runtime_id", ref.RuntimeID())
			return nil, nil
		}
		return nil, fmt.Errorf("%w: describe %s: %v", ErrTreeUnavailable, ref.RuntimeID(), err)
	}

	n := &Node{
		key:       nodeKey(ref.RuntimeID(), el.Properties, path),
		runtimeID: ref.RuntimeID(),
		bounds:    el.Bounds,
		props:     make(map[string]string, len(c.cached)),
		parent:    parent,
		order:     len(snap.nodes),
	}
	for k, v := range el.Properties {
		if _, ok := c.cached[k]; ok {
			n.props[k] = v
		}
	}
	if parent != nil {
		n.depth = parent.depth + 1
	}
	snap.nodes = append(snap.nodes, n)
	if n.runtimeID != "" {
		snap.byRuntime[n.runtimeID] = n
	}

	kids, err := c.src.Children(ctx, ref)
	if err != nil {
		if errors.Is(err, event.ErrElementVanished) {
			return n, nil
		}
		return nil, fmt.Errorf("%w: children of %s: %v", ErrTreeUnavailable, ref.RuntimeID(), err)
	}
	for i, kid := range kids {
		child, err := c.visit(ctx, snap, kid, n, path+"."+strconv.Itoa(i))
		if err != nil {
			return nil, err
		}
		if child != nil {
			n.children = append(n.children, child)
		}
	}
	return n, nil
}

// NodeFromPoint returns the deepest node whose bounds contain (x, y), or nil.
func (c *Cache) NodeFromPoint(x, y int) *Node {
	snap := c.snap.Load()
	if snap == nil {
		return nil
	}
	return snap.grid.lookup(x, y)
}

// NodeFromElement returns the cached node for a live element, or nil.
func (c *Cache) NodeFromElement(el event.ElementRef) *Node {
	if el == nil {
		return nil
	}
	snap := c.snap.Load()
	if snap == nil {
		return nil
	}
	return snap.byRuntime[el.RuntimeID()]
}

// Root returns the top node of the current snapshot, or nil before the first rebuild.
func (c *Cache) Root() *Node {
	if snap := c.snap.Load(); snap != nil {
		return snap.root
	}
	return nil
}

// Len returns the number of cached nodes.
func (c *Cache) Len() int {
	if snap := c.snap.Load(); snap != nil {
		return len(snap.nodes)
	}
	return 0
}

// Generation increments on every successful rebuild; 0 means never built.
func (c *Cache) Generation() uint64 {
	if snap := c.snap.Load(); snap != nil {
		return snap.generation
	}
	return 0
}

// Invalidate drops the current snapshot. Used when recording stops.
func (c *Cache) Invalidate() {
	c.snap.Store(nil)
}
