// Package spatial indexes world entities by their bounding boxes for radius
// and view-region queries.
package spatial

import (
	"sync"

	"github.com/paulmach/orb"
)

// Default tree shape
const (
	DefaultCapacity = 4
	DefaultMaxDepth = 12
)

type entry[K comparable] struct {
	id  K
	box orb.Bound
}

type node[K comparable] struct {
	bounds   orb.Bound
	depth    int
	entries  []entry[K]
	children *[4]*node[K]
}

// Quadtree is a region quadtree over axis-aligned boxes. An entry that
// straddles quadrants is stored in each of them; queries deduplicate. Boxes
// not contained in the root bounds live in an overflow list. Each id holds
// one box; inserting a known id replaces it. A full leaf only splits when no
// quadrant would inherit all of its entries, so overlapping boxes share a
// leaf past capacity. Safe for concurrent use.
type Quadtree[K comparable] struct {
	mu       sync.RWMutex
	root     *node[K]
	capacity int
	maxDepth int
	overflow []entry[K]
	ids      map[K]orb.Bound
}

// New creates a quadtree covering bounds with the default shape
func New[K comparable](bounds orb.Bound) *Quadtree[K] {
	return NewWithOptions[K](bounds, DefaultCapacity, DefaultMaxDepth)
}

// NewWithOptions creates a quadtree with a leaf capacity and maximum depth.
// Leaves at maxDepth grow without splitting.
func NewWithOptions[K comparable](bounds orb.Bound, capacity, maxDepth int) *Quadtree[K] {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	if maxDepth < 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Quadtree[K]{
		root:     &node[K]{bounds: bounds},
		capacity: capacity,
		maxDepth: maxDepth,
		ids:      make(map[K]orb.Bound),
	}
}

// Bounds returns the root bounds
func (t *Quadtree[K]) Bounds() orb.Bound {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root.bounds
}

// Len returns the number of distinct ids
func (t *Quadtree[K]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.ids)
}

// Insert adds id with its box, replacing the box of a known id
func (t *Quadtree[K]) Insert(id K, box orb.Bound) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.ids[id]; ok {
		t.removeLocked(id, old)
	}
	e := entry[K]{id: id, box: box}
	t.ids[id] = box
	if !containsBound(t.root.bounds, box) {
		t.overflow = append(t.overflow, e)
		return
	}
	t.insert(t.root, e)
}

func (t *Quadtree[K]) insert(n *node[K], e entry[K]) {
	if n.children != nil {
		for _, c := range n.children {
			if c.bounds.Intersects(e.box) {
				t.insert(c, e)
			}
		}
		return
	}

	n.entries = append(n.entries, e)
	if len(n.entries) > t.capacity && n.depth < t.maxDepth && splittable(n) {
		t.split(n)
	}
}

func quadrants(b orb.Bound) [4]orb.Bound {
	c := b.Center()
	lo, hi := b.Min, b.Max
	return [4]orb.Bound{
		{Min: orb.Point{lo[0], lo[1]}, Max: orb.Point{c[0], c[1]}},
		{Min: orb.Point{c[0], lo[1]}, Max: orb.Point{hi[0], c[1]}},
		{Min: orb.Point{lo[0], c[1]}, Max: orb.Point{c[0], hi[1]}},
		{Min: orb.Point{c[0], c[1]}, Max: orb.Point{hi[0], hi[1]}},
	}
}

// splittable reports whether splitting n leaves every quadrant with fewer
// entries than n holds
func splittable[K comparable](n *node[K]) bool {
	for _, q := range quadrants(n.bounds) {
		hits := 0
		for _, e := range n.entries {
			if q.Intersects(e.box) {
				hits++
			}
		}
		if hits == len(n.entries) {
			return false
		}
	}
	return true
}

// split pushes a leaf's entries down into four quadrants
func (t *Quadtree[K]) split(n *node[K]) {
	quads := quadrants(n.bounds)

	var children [4]*node[K]
	for i, q := range quads {
		children[i] = &node[K]{bounds: q, depth: n.depth + 1}
	}
	n.children = &children

	entries := n.entries
	n.entries = nil
	for _, e := range entries {
		t.insert(n, e)
	}
}

// Remove drops id. The stored box is used when id is known, otherwise every
// reference reachable through box is dropped. It reports whether anything
// was removed.
func (t *Quadtree[K]) Remove(id K, box orb.Bound) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if stored, ok := t.ids[id]; ok {
		box = stored
	}
	removed := t.removeLocked(id, box)
	delete(t.ids, id)
	return removed
}

func (t *Quadtree[K]) removeLocked(id K, box orb.Bound) bool {
	removed := false
	if n := len(t.overflow); n > 0 {
		t.overflow = filterOut(t.overflow, id)
		removed = len(t.overflow) != n
	}
	if t.remove(t.root, id, box) {
		removed = true
	}
	return removed
}

func (t *Quadtree[K]) remove(n *node[K], id K, box orb.Bound) bool {
	if !n.bounds.Intersects(box) {
		return false
	}
	if n.children == nil {
		before := len(n.entries)
		n.entries = filterOut(n.entries, id)
		return len(n.entries) != before
	}

	removed := false
	for _, c := range n.children {
		if t.remove(c, id, box) {
			removed = true
		}
	}
	if removed {
		t.collapse(n)
	}
	return removed
}

// collapse turns a node whose children are all empty leaves back into a leaf
func (t *Quadtree[K]) collapse(n *node[K]) {
	for _, c := range n.children {
		if c.children != nil || len(c.entries) > 0 {
			return
		}
	}
	n.children = nil
}

func filterOut[K comparable](entries []entry[K], id K) []entry[K] {
	out := entries[:0]
	for _, e := range entries {
		if e.id != id {
			out = append(out, e)
		}
	}
	return out
}

// QueryRadius returns the ids whose box center lies within r of center
func (t *Quadtree[K]) QueryRadius(center orb.Point, r float64) []K {
	t.mu.RLock()
	defer t.mu.RUnlock()

	search := orb.Bound{
		Min: orb.Point{center[0] - r, center[1] - r},
		Max: orb.Point{center[0] + r, center[1] + r},
	}
	r2 := r * r
	match := func(b orb.Bound) bool {
		c := b.Center()
		dx, dy := c[0]-center[0], c[1]-center[1]
		return dx*dx+dy*dy <= r2
	}

	seen := make(map[K]struct{})
	t.collect(t.root, Box(search), match, seen)
	for _, e := range t.overflow {
		if match(e.box) {
			seen[e.id] = struct{}{}
		}
	}
	return keys(seen)
}

// QueryRegion returns the ids whose box intersects the region
func (t *Quadtree[K]) QueryRegion(region Region) []K {
	t.mu.RLock()
	defer t.mu.RUnlock()

	seen := make(map[K]struct{})
	t.collect(t.root, region, region.Intersects, seen)
	for _, e := range t.overflow {
		if region.Intersects(e.box) {
			seen[e.id] = struct{}{}
		}
	}
	return keys(seen)
}

func (t *Quadtree[K]) collect(n *node[K], region Region, match func(orb.Bound) bool, seen map[K]struct{}) {
	if !region.Intersects(n.bounds) {
		return
	}
	if n.children != nil {
		for _, c := range n.children {
			t.collect(c, region, match, seen)
		}
		return
	}
	for _, e := range n.entries {
		if _, ok := seen[e.id]; ok {
			continue
		}
		if match(e.box) {
			seen[e.id] = struct{}{}
		}
	}
}

// Clear removes all entries
func (t *Quadtree[K]) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.root = &node[K]{bounds: t.root.bounds}
	t.overflow = nil
	t.ids = make(map[K]orb.Bound)
}

// Depth returns the depth of the deepest node
func (t *Quadtree[K]) Depth() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return depth(t.root)
}

func depth[K comparable](n *node[K]) int {
	if n.children == nil {
		return n.depth
	}
	d := n.depth
	for _, c := range n.children {
		if cd := depth(c); cd > d {
			d = cd
		}
	}
	return d
}

func keys[K comparable](m map[K]struct{}) []K {
	out := make([]K, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func containsBound(outer, inner orb.Bound) bool {
	return outer.Contains(inner.Min) && outer.Contains(inner.Max)
}
