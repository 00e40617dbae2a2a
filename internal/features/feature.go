// Package features turns decoded tile features into world features: semantic
// shapes in local world units anchored at the generation origin.
package features

import (
	"github.com/paulmach/orb"

	"github.com/wegman-software/tileworld-go/internal/geo"
	"github.com/wegman-software/tileworld-go/internal/mvt"
)

// Kind is the semantic class of a world feature
type Kind uint8

const (
	KindBuilding Kind = iota + 1
	KindRoad
	KindLanduse
	KindWater
)

var kindNames = map[Kind]string{
	KindBuilding: "building",
	KindRoad:     "road",
	KindLanduse:  "landuse",
	KindWater:    "water",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Kinds lists every feature kind in stage order
func Kinds() []Kind {
	return []Kind{KindBuilding, KindRoad, KindLanduse, KindWater}
}

// KindFromLayer maps a layer kind to a feature kind. Terrain and unknown
// layers have no feature kind.
func KindFromLayer(k mvt.LayerKind) (Kind, bool) {
	switch k {
	case mvt.KindBuilding:
		return KindBuilding, true
	case mvt.KindRoad:
		return KindRoad, true
	case mvt.KindLanduse:
		return KindLanduse, true
	case mvt.KindWater:
		return KindWater, true
	}
	return 0, false
}

// ParseKind maps a kind name back to a Kind
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// Shape is the geometric form a world feature keeps
type Shape uint8

const (
	ShapePolygon Shape = iota
	ShapeLine
	ShapePoint
)

func (s Shape) String() string {
	switch s {
	case ShapeLine:
		return "line"
	case ShapePoint:
		return "point"
	default:
		return "polygon"
	}
}

// WorldFeature is a feature positioned in world units. It is not modified
// after the parser returns it.
type WorldFeature struct {
	Kind  Kind
	Shape Shape
	// Points is the outer ring for polygons, the polyline for lines and the
	// point set for points
	Points []geo.WorldPoint
	// Rings holds every ring or line part; Rings[0] equals Points. Polygon
	// rings do not repeat their first point.
	Rings      [][]geo.WorldPoint
	Width      float64 // road width in meters, 0 for other kinds
	Properties mvt.Properties
	SourceTile geo.TileAddress
	ID         *uint64 // feature id from the tile, if any
}

// Bounds returns the axis-aligned box of all rings in the X/Z plane
func (f *WorldFeature) Bounds() orb.Bound {
	b := orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{-1, -1}}
	first := true
	for _, ring := range f.Rings {
		for _, p := range ring {
			op := orb.Point{p.X, p.Z}
			if first {
				b = op.Bound()
				first = false
				continue
			}
			b = b.Extend(op)
		}
	}
	return b
}

// Centroid returns the mean of the outer points
func (f *WorldFeature) Centroid() geo.WorldPoint {
	if len(f.Points) == 0 {
		return geo.WorldPoint{}
	}
	var c geo.WorldPoint
	for _, p := range f.Points {
		c.X += p.X
		c.Z += p.Z
	}
	n := float64(len(f.Points))
	return geo.WorldPoint{X: c.X / n, Z: c.Z / n}
}

// Height returns the building height in meters from "height" or
// "render_height"
func (f *WorldFeature) Height() (float64, bool) {
	for _, key := range []string{"height", "render_height"} {
		if v, ok := f.Properties[key]; ok {
			if h, ok := v.Float64(); ok && h > 0 {
				return h, true
			}
		}
	}
	return 0, false
}
