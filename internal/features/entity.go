package features

import (
	"strconv"

	"github.com/paulmach/orb"

	"github.com/wegman-software/tileworld-go/internal/geo"
	"github.com/wegman-software/tileworld-go/internal/mvt"
)

// EntityID identifies a created world entity
type EntityID uint64

func (id EntityID) String() string {
	return strconv.FormatUint(uint64(id), 16)
}

// Entity is what an entity creator records for a world feature: a position,
// a class and the source properties
type Entity struct {
	ID         EntityID
	Kind       Kind
	Position   geo.WorldPoint
	Bounds     orb.Bound
	Width      float64
	Height     float64
	Properties mvt.Properties
	SourceTile geo.TileAddress
	Feature    *WorldFeature
}

// NewEntity places an entity at the feature's centroid
func NewEntity(id EntityID, f *WorldFeature) Entity {
	e := Entity{
		ID:         id,
		Kind:       f.Kind,
		Position:   f.Centroid(),
		Bounds:     f.Bounds(),
		Width:      f.Width,
		Properties: f.Properties,
		SourceTile: f.SourceTile,
		Feature:    f,
	}
	if h, ok := f.Height(); ok {
		e.Height = h
	}
	return e
}
