// Package geo holds the tile addressing, great-circle and local projection
// math shared by the fetcher, the feature parser and the generator.
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// Point is a WGS84 coordinate in degrees
type Point struct {
	Lon float64
	Lat float64
}

// NewPoint creates a point from latitude/longitude order, the order users type
func NewPoint(lat, lon float64) Point {
	return Point{Lon: lon, Lat: lat}
}

// Valid reports whether the point lies in lon [-180,180], lat (-90,90]
func (p Point) Valid() bool {
	return p.Lon >= -180 && p.Lon <= 180 && p.Lat > -90 && p.Lat <= 90 &&
		!math.IsNaN(p.Lon) && !math.IsNaN(p.Lat)
}

// Orb returns the point as an orb.Point (lon, lat)
func (p Point) Orb() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// String returns the point in lat,lon order
func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon)
}

// Distance returns the great-circle distance between two points in meters
func Distance(a, b Point) float64 {
	return orbgeo.DistanceHaversine(a.Orb(), b.Orb())
}
