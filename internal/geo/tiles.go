package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/maptile"
)

// MaxZoom is the deepest zoom level a TileAddress may carry
const MaxZoom = 24

// TileAddress identifies a map tile by zoom level and column/row
type TileAddress struct {
	Z uint8  // Zoom level
	X uint32 // Column
	Y uint32 // Row
}

// NewTileAddress creates a tile address
func NewTileAddress(z uint8, x, y uint32) TileAddress {
	return TileAddress{Z: z, X: x, Y: y}
}

// ParseTileAddress parses a "z/x/y" string
func ParseTileAddress(s string) (TileAddress, error) {
	var z, x, y uint32
	if _, err := fmt.Sscanf(s, "%d/%d/%d", &z, &x, &y); err != nil {
		return TileAddress{}, fmt.Errorf("invalid tile address %q: %w", s, err)
	}
	if z > MaxZoom {
		return TileAddress{}, fmt.Errorf("zoom %d exceeds maximum %d", z, MaxZoom)
	}
	t := TileAddress{Z: uint8(z), X: x, Y: y}
	if !t.Valid() {
		return TileAddress{}, fmt.Errorf("tile %s outside the %d-zoom grid", t, z)
	}
	return t, nil
}

// String returns the tile in z/x/y format
func (t TileAddress) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// Valid reports whether x and y are inside the 2^z grid
func (t TileAddress) Valid() bool {
	if t.Z > MaxZoom {
		return false
	}
	n := uint32(1) << t.Z
	return t.X < n && t.Y < n
}

// Maptile converts the address to an orb maptile
func (t TileAddress) Maptile() maptile.Tile {
	return maptile.New(t.X, t.Y, maptile.Zoom(t.Z))
}

// Center returns the geographic center of the tile
func (t TileAddress) Center() Point {
	return TileToGeo(t, 2, 1, 1)
}

// Bound returns the geographic bounds of the tile
func (t TileAddress) Bound() orb.Bound {
	nw := TileToGeo(t, 1, 0, 0)
	se := TileToGeo(t, 1, 1, 1)
	return orb.Bound{
		Min: orb.Point{nw.Lon, se.Lat},
		Max: orb.Point{se.Lon, nw.Lat},
	}
}

// Diagonal returns the great-circle length of the tile's diagonal in meters
func (t TileAddress) Diagonal() float64 {
	return Distance(TileToGeo(t, 1, 0, 0), TileToGeo(t, 1, 1, 1))
}

// Web Mercator constants
const (
	// Maximum latitude for Web Mercator (approximately 85.051129°)
	MaxMercatorLat = 85.0511287798
	// Minimum latitude for Web Mercator
	MinMercatorLat = -85.0511287798
)

// LatLonToTile converts latitude/longitude to the tile containing it at a
// given zoom level (standard OSM/Google scheme)
func LatLonToTile(lat, lon float64, zoom uint8) TileAddress {
	lat = math.Max(MinMercatorLat, math.Min(MaxMercatorLat, lat))
	lon = math.Max(-180, math.Min(180, lon))

	n := float64(uint64(1) << zoom)
	maxIdx := int64(n) - 1

	x := int64((lon + 180.0) / 360.0 * n)
	if x > maxIdx {
		x = maxIdx
	}

	latRad := lat * math.Pi / 180.0
	y := int64((1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * n)
	if y > maxIdx {
		y = maxIdx
	}
	if y < 0 {
		y = 0
	}

	return TileAddress{Z: zoom, X: uint32(x), Y: uint32(y)}
}

// TileRange represents a range of tiles at a specific zoom level
type TileRange struct {
	Z          uint8
	MinX, MaxX uint32
	MinY, MaxY uint32
}

// BoundToTileRange converts a geographic bound to the range of tiles covering it
func BoundToTileRange(b orb.Bound, zoom uint8) TileRange {
	// Tile rows grow southward, so the north-west corner holds the minimums
	topLeft := LatLonToTile(b.Max[1], b.Min[0], zoom)
	bottomRight := LatLonToTile(b.Min[1], b.Max[0], zoom)

	return TileRange{
		Z:    zoom,
		MinX: topLeft.X,
		MaxX: bottomRight.X,
		MinY: topLeft.Y,
		MaxY: bottomRight.Y,
	}
}

// Buffer grows the range by n tiles on each side, clamped to the zoom grid
func (r TileRange) Buffer(n uint32) TileRange {
	maxIdx := uint32((uint64(1) << r.Z) - 1)
	out := r
	if out.MinX >= n {
		out.MinX -= n
	} else {
		out.MinX = 0
	}
	if out.MinY >= n {
		out.MinY -= n
	} else {
		out.MinY = 0
	}
	out.MaxX = min(maxIdx, out.MaxX+n)
	out.MaxY = min(maxIdx, out.MaxY+n)
	return out
}

// Empty reports whether the range holds no tiles
func (r TileRange) Empty() bool {
	return r.MinX > r.MaxX || r.MinY > r.MaxY
}

// TileCount returns the number of tiles in the range
func (r TileRange) TileCount() int {
	if r.Empty() {
		return 0
	}
	return int(r.MaxX-r.MinX+1) * int(r.MaxY-r.MinY+1)
}

// Tiles returns all tiles in the range, column-major
func (r TileRange) Tiles() []TileAddress {
	if r.Empty() {
		return nil
	}
	tiles := make([]TileAddress, 0, r.TileCount())
	for x := r.MinX; x <= r.MaxX; x++ {
		for y := r.MinY; y <= r.MaxY; y++ {
			tiles = append(tiles, TileAddress{Z: r.Z, X: x, Y: y})
		}
	}
	return tiles
}

// TilesInRadius returns the tiles whose centers lie within radiusKm of center
// for every zoom in [minZoom, maxZoom], lowest zoom first. The tile containing
// center is always included at each zoom, even when its own center is farther
// than the radius.
func TilesInRadius(center Point, radiusKm float64, minZoom, maxZoom uint8) []TileAddress {
	if minZoom > maxZoom {
		minZoom, maxZoom = maxZoom, minZoom
	}
	maxZoom = min(maxZoom, MaxZoom)
	radiusM := radiusKm * 1000
	if !(radiusM > 0) || math.IsInf(radiusM, 0) {
		radiusM = 0
	}

	bounds := splitAntimeridian(orbgeo.NewBoundAroundPoint(center.Orb(), radiusM))

	var tiles []TileAddress
	for z := int(minZoom); z <= int(maxZoom); z++ {
		zoom := uint8(z)
		home := LatLonToTile(center.Lat, center.Lon, zoom)

		seen := make(map[TileAddress]struct{})
		for _, b := range bounds {
			for _, t := range BoundToTileRange(b, zoom).Buffer(1).Tiles() {
				if _, ok := seen[t]; ok {
					continue
				}
				if t == home || Distance(t.Center(), center) <= radiusM {
					seen[t] = struct{}{}
					tiles = append(tiles, t)
				}
			}
		}
		if _, ok := seen[home]; !ok {
			tiles = append(tiles, home)
		}
	}
	return tiles
}

// splitAntimeridian returns b as one or two bounds that do not wrap. A bound
// built around a point near the antimeridian has Min lon > Max lon.
func splitAntimeridian(b orb.Bound) []orb.Bound {
	if b.Min[0] <= b.Max[0] {
		return []orb.Bound{b}
	}
	return []orb.Bound{
		{Min: orb.Point{b.Min[0], b.Min[1]}, Max: orb.Point{180, b.Max[1]}},
		{Min: orb.Point{-180, b.Min[1]}, Max: orb.Point{b.Max[0], b.Max[1]}},
	}
}
