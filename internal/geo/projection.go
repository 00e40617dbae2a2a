package geo

import (
	"fmt"
	"math"
)

const (
	// EarthRadius is the mean radius used by the local projection, in meters
	EarthRadius = 6371000.0

	// DefaultWorldScale maps one world unit to 100 real meters
	DefaultWorldScale = 0.01
)

// WorldPoint is a position in the local Euclidean world, in world units.
// X grows eastward and Z grows northward from the projection origin.
type WorldPoint struct {
	X float64
	Z float64
}

// String returns the point as "x,z"
func (p WorldPoint) String() string {
	return fmt.Sprintf("%.3f,%.3f", p.X, p.Z)
}

// TileToGeo converts a tile-local coordinate to WGS84 using the slippy-map
// inverse projection. extent is the size of the tile's local coordinate space.
func TileToGeo(t TileAddress, extent, tx, ty float64) Point {
	if extent <= 0 {
		extent = 4096
	}
	n := float64(uint64(1) << t.Z)
	lon := (float64(t.X)+tx/extent)/n*360.0 - 180.0
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*(float64(t.Y)+ty/extent)/n)))
	return Point{Lon: lon, Lat: latRad * 180.0 / math.Pi}
}

// Projector converts between WGS84 and local world coordinates using an
// equirectangular approximation anchored at a fixed origin
type Projector struct {
	origin Point
	scale  float64
	cosLat float64
}

// NewProjector creates a projector anchored at origin. A non-positive scale
// falls back to DefaultWorldScale.
func NewProjector(origin Point, scale float64) (*Projector, error) {
	if !origin.Valid() {
		return nil, fmt.Errorf("invalid projection origin %s", origin)
	}
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		scale = DefaultWorldScale
	}
	return &Projector{
		origin: origin,
		scale:  scale,
		cosLat: math.Cos(origin.Lat * math.Pi / 180.0),
	}, nil
}

// Origin returns the projection anchor
func (p *Projector) Origin() Point {
	return p.origin
}

// Scale returns world units per meter
func (p *Projector) Scale() float64 {
	return p.scale
}

// GeoToWorld projects a WGS84 point into world units
func (p *Projector) GeoToWorld(pt Point) WorldPoint {
	const degToRad = math.Pi / 180.0
	return WorldPoint{
		X: (pt.Lon - p.origin.Lon) * degToRad * p.cosLat * EarthRadius * p.scale,
		Z: (pt.Lat - p.origin.Lat) * degToRad * EarthRadius * p.scale,
	}
}

// WorldToGeo is the inverse of GeoToWorld
func (p *Projector) WorldToGeo(w WorldPoint) Point {
	const radToDeg = 180.0 / math.Pi
	return Point{
		Lon: p.origin.Lon + w.X/(p.scale*EarthRadius*p.cosLat)*radToDeg,
		Lat: p.origin.Lat + w.Z/(p.scale*EarthRadius)*radToDeg,
	}
}

// TileToWorld converts a tile-local coordinate straight to world units
func (p *Projector) TileToWorld(t TileAddress, extent, tx, ty float64) WorldPoint {
	return p.GeoToWorld(TileToGeo(t, extent, tx, ty))
}

// MetersToWorld converts a real-world distance to world units
func (p *Projector) MetersToWorld(m float64) float64 {
	return m * p.scale
}
