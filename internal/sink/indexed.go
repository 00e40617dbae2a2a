package sink

import (
	"context"
	"sync"

	"github.com/paulmach/orb"

	"github.com/wegman-software/tileworld-go/internal/features"
	"github.com/wegman-software/tileworld-go/internal/geo"
	"github.com/wegman-software/tileworld-go/internal/spatial"
)

// Indexed wraps a creator and indexes every created entity by its bounds
type Indexed struct {
	next Creator
	tree *spatial.Quadtree[features.EntityID]

	mu    sync.Mutex
	boxes map[features.EntityID]orb.Bound
}

// NewIndexed indexes entities created by next. bounds is the expected world
// extent; entities outside it are still indexed.
func NewIndexed(next Creator, bounds orb.Bound) *Indexed {
	return &Indexed{
		next:  next,
		tree:  spatial.New[features.EntityID](bounds),
		boxes: make(map[features.EntityID]orb.Bound),
	}
}

// WorldBounds returns the square of half-width radiusKm around the world
// origin, in world units
func WorldBounds(proj *geo.Projector, radiusKm float64) orb.Bound {
	half := proj.MetersToWorld(radiusKm * 1000)
	return orb.Bound{Min: orb.Point{-half, -half}, Max: orb.Point{half, half}}
}

// CreateEntity implements Creator
func (x *Indexed) CreateEntity(ctx context.Context, f *features.WorldFeature) (features.EntityID, error) {
	id, err := x.next.CreateEntity(ctx, f)
	if err != nil {
		return 0, err
	}
	box := f.Bounds()

	x.mu.Lock()
	if old, ok := x.boxes[id]; ok {
		x.tree.Remove(id, old)
	}
	x.boxes[id] = box
	x.mu.Unlock()

	x.tree.Insert(id, box)
	return id, nil
}

// Remove drops id from the index
func (x *Indexed) Remove(id features.EntityID) bool {
	x.mu.Lock()
	box, ok := x.boxes[id]
	delete(x.boxes, id)
	x.mu.Unlock()
	if !ok {
		return false
	}
	return x.tree.Remove(id, box)
}

// QueryRadius returns entities whose bounds center is within r world units
func (x *Indexed) QueryRadius(center geo.WorldPoint, r float64) []features.EntityID {
	return x.tree.QueryRadius(orb.Point{center.X, center.Z}, r)
}

// QueryBox returns entities whose bounds intersect b
func (x *Indexed) QueryBox(b orb.Bound) []features.EntityID {
	return x.tree.QueryRegion(spatial.Box(b))
}

// QueryView returns entities inside a camera footprint. heading is in
// radians from +X toward +Z.
func (x *Indexed) QueryView(eye geo.WorldPoint, heading, fov, near, far float64) []features.EntityID {
	return x.tree.QueryRegion(spatial.NewViewFrustum(orb.Point{eye.X, eye.Z}, heading, fov, near, far))
}

// Len returns the number of indexed entities
func (x *Indexed) Len() int {
	return x.tree.Len()
}

// Clear empties the index
func (x *Indexed) Clear() {
	x.mu.Lock()
	x.boxes = make(map[features.EntityID]orb.Bound)
	x.mu.Unlock()
	x.tree.Clear()
}
