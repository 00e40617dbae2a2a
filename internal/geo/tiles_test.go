package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb/maptile"
)

func TestLatLonToTile(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		zoom     uint8
		wantX    uint32
		wantY    uint32
	}{
		{name: "London at zoom 10", lat: 51.5074, lon: -0.1278, zoom: 10, wantX: 511, wantY: 340},
		{name: "Monaco at zoom 12", lat: 43.7384, lon: 7.4246, zoom: 12, wantX: 2132, wantY: 1493},
		{name: "New York at zoom 10", lat: 40.7128, lon: -74.0060, zoom: 10, wantX: 301, wantY: 385},
		{name: "Origin at zoom 0", lat: 0, lon: 0, zoom: 0, wantX: 0, wantY: 0},
		{name: "Origin at zoom 1", lat: 0, lon: 0, zoom: 1, wantX: 1, wantY: 1},
		{name: "Antimeridian clamps", lat: 0, lon: 180, zoom: 3, wantX: 7, wantY: 4},
		{name: "North pole clamps", lat: 89.9, lon: 0, zoom: 4, wantX: 8, wantY: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tile := LatLonToTile(tt.lat, tt.lon, tt.zoom)
			if tile.X != tt.wantX || tile.Y != tt.wantY {
				t.Errorf("LatLonToTile(%f, %f, %d) = (%d, %d), want (%d, %d)",
					tt.lat, tt.lon, tt.zoom, tile.X, tile.Y, tt.wantX, tt.wantY)
			}
		})
	}
}

func TestLatLonToTileMatchesMaptile(t *testing.T) {
	points := []Point{
		NewPoint(51.5074, -0.1278),
		NewPoint(43.7384, 7.4246),
		NewPoint(-33.8688, 151.2093),
		NewPoint(35.6762, 139.6503),
	}
	for _, p := range points {
		for z := uint8(2); z <= 16; z += 2 {
			got := LatLonToTile(p.Lat, p.Lon, z)
			want := maptile.At(p.Orb(), maptile.Zoom(z))
			if got.X != want.X || got.Y != want.Y {
				t.Errorf("LatLonToTile(%s, %d) = %s, maptile says %d/%d/%d", p, z, got, want.Z, want.X, want.Y)
			}
		}
	}
}

func TestTileCenterInsideTile(t *testing.T) {
	tile := TileAddress{Z: 15, X: 16993, Y: 11965}
	c := tile.Center()
	if got := LatLonToTile(c.Lat, c.Lon, tile.Z); got != tile {
		t.Errorf("center %s maps back to %s, want %s", c, got, tile)
	}
	if !tile.Bound().Contains(c.Orb()) {
		t.Errorf("bound %v does not contain center %s", tile.Bound(), c)
	}
}

func TestParseTileAddress(t *testing.T) {
	tests := []struct {
		input   string
		want    TileAddress
		wantErr bool
	}{
		{input: "12/2144/1501", want: TileAddress{Z: 12, X: 2144, Y: 1501}},
		{input: "0/0/0", want: TileAddress{}},
		{input: "1/2/0", wantErr: true},
		{input: "garbage", wantErr: true},
		{input: "30/0/0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTileAddress(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseTileAddress(%q) expected error, got %s", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseTileAddress(%q) = %s, want %s", tt.input, got, tt.want)
			}
			if got.String() != tt.input {
				t.Errorf("String() = %q, want %q", got.String(), tt.input)
			}
		})
	}
}

func TestTileRangeBufferClamps(t *testing.T) {
	r := TileRange{Z: 2, MinX: 0, MaxX: 3, MinY: 1, MaxY: 2}.Buffer(1)
	if r.MinX != 0 || r.MaxX != 3 || r.MinY != 0 || r.MaxY != 3 {
		t.Errorf("Buffer(1) = %+v, want full 4x4 grid", r)
	}
	if r.TileCount() != 16 {
		t.Errorf("TileCount() = %d, want 16", r.TileCount())
	}
}

func TestTilesInRadiusBoundedByDistance(t *testing.T) {
	centers := []Point{
		NewPoint(43.7384, 7.4246),
		NewPoint(51.5074, -0.1278),
		NewPoint(-33.8688, 151.2093),
		NewPoint(60.1699, 24.9384),
	}
	radii := []float64{0.05, 0.5, 1, 3}

	for _, c := range centers {
		for _, r := range radii {
			tiles := TilesInRadius(c, r, 12, 16)
			homes := make(map[uint8]bool)
			for _, tile := range tiles {
				if !tile.Valid() {
					t.Fatalf("invalid tile %s", tile)
				}
				limit := r*1000 + tile.Diagonal()
				if d := Distance(tile.Center(), c); d > limit {
					t.Errorf("tile %s center %.0fm from %s exceeds %.0fm", tile, d, c, limit)
				}
				if tile == LatLonToTile(c.Lat, c.Lon, tile.Z) {
					homes[tile.Z] = true
				}
			}
			for z := uint8(12); z <= 16; z++ {
				if !homes[z] {
					t.Errorf("TilesInRadius(%s, %.2f) missing home tile at zoom %d", c, r, z)
				}
			}
		}
	}
}

func TestTilesInRadiusOrderAndUniqueness(t *testing.T) {
	tiles := TilesInRadius(NewPoint(43.7384, 7.4246), 2, 13, 15)
	seen := make(map[TileAddress]bool)
	lastZ := uint8(0)
	for _, tile := range tiles {
		if seen[tile] {
			t.Errorf("duplicate tile %s", tile)
		}
		seen[tile] = true
		if tile.Z < lastZ {
			t.Errorf("tile %s out of zoom order", tile)
		}
		lastZ = tile.Z
	}
	if len(tiles) < 3 {
		t.Errorf("expected tiles at three zoom levels, got %d", len(tiles))
	}
}

func TestTilesInRadiusSwappedZoom(t *testing.T) {
	a := TilesInRadius(NewPoint(0.5, 0.5), 1, 10, 12)
	b := TilesInRadius(NewPoint(0.5, 0.5), 1, 12, 10)
	if len(a) != len(b) {
		t.Errorf("swapped zoom range returned %d tiles, want %d", len(b), len(a))
	}
}

func TestTilesInRadiusAcrossAntimeridian(t *testing.T) {
	tests := []struct {
		name   string
		center Point
	}{
		{"east of the line", NewPoint(0, 179.9995)},
		{"west of the line", NewPoint(0, -179.9995)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tiles := TilesInRadius(tt.center, 2, 14, 14)
			if len(tiles) == 0 || len(tiles) > 64 {
				t.Fatalf("len(tiles) = %d, want a handful", len(tiles))
			}
			var east, west bool
			seen := make(map[TileAddress]bool)
			for _, tile := range tiles {
				if seen[tile] {
					t.Errorf("duplicate tile %s", tile)
				}
				seen[tile] = true
				switch tile.X {
				case 0:
					west = true
				case 1<<14 - 1:
					east = true
				}
			}
			if !east || !west {
				t.Errorf("tiles on both sides = (east %v, west %v), want both", east, west)
			}
		})
	}
}

func TestTileRangeInverted(t *testing.T) {
	r := TileRange{Z: 14, MinX: 16382, MaxX: 1, MinY: 8190, MaxY: 8193}
	if got := r.TileCount(); got != 0 {
		t.Errorf("TileCount() = %d, want 0", got)
	}
	if got := r.Tiles(); len(got) != 0 {
		t.Errorf("len(Tiles()) = %d, want 0", len(got))
	}
}

func TestTilesInRadiusNaNRadius(t *testing.T) {
	c := NewPoint(43.7384, 7.4246)
	tiles := TilesInRadius(c, math.NaN(), 14, 14)
	if len(tiles) != 1 || tiles[0] != LatLonToTile(c.Lat, c.Lon, 14) {
		t.Errorf("TilesInRadius(NaN) = %v, want only the home tile", tiles)
	}
}
