// Package tilelist keeps deduplicated tile sets and writes them as z/x/y
// lines, one tile per line.
package tilelist

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wegman-software/tileworld-go/internal/geo"
	"github.com/wegman-software/tileworld-go/internal/logger"
)

// Set is a concurrency-safe set of tiles
type Set struct {
	mu    sync.Mutex
	tiles map[geo.TileAddress]struct{}
}

// New creates a set holding tiles
func New(tiles ...geo.TileAddress) *Set {
	s := &Set{tiles: make(map[geo.TileAddress]struct{})}
	s.Add(tiles...)
	return s
}

// Add inserts tiles, ignoring duplicates
func (s *Set) Add(tiles ...geo.TileAddress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tiles {
		s.tiles[t] = struct{}{}
	}
}

// AddRadius inserts every tile within radiusKm of center
func (s *Set) AddRadius(center geo.Point, radiusKm float64, minZoom, maxZoom uint8) {
	s.Add(geo.TilesInRadius(center, radiusKm, minZoom, maxZoom)...)
}

// Contains reports whether t is in the set
func (s *Set) Contains(t geo.TileAddress) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tiles[t]
	return ok
}

// Count returns the number of tiles
func (s *Set) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tiles)
}

// CountByZoom returns the number of tiles at each zoom
func (s *Set) CountByZoom() map[uint8]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[uint8]int)
	for t := range s.tiles {
		counts[t.Z]++
	}
	return counts
}

// Tiles returns the tiles sorted by zoom, then column, then row
func (s *Set) Tiles() []geo.TileAddress {
	s.mu.Lock()
	tiles := make([]geo.TileAddress, 0, len(s.tiles))
	for t := range s.tiles {
		tiles = append(tiles, t)
	}
	s.mu.Unlock()

	sort.Slice(tiles, func(i, j int) bool {
		if tiles[i].Z != tiles[j].Z {
			return tiles[i].Z < tiles[j].Z
		}
		if tiles[i].X != tiles[j].X {
			return tiles[i].X < tiles[j].X
		}
		return tiles[i].Y < tiles[j].Y
	})
	return tiles
}

// Clear removes every tile
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiles = make(map[geo.TileAddress]struct{})
}

// WriteTo writes the sorted tiles as z/x/y lines
func (s *Set) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for _, t := range s.Tiles() {
		m, err := fmt.Fprintln(bw, t.String())
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}

// WriteToFile writes the tiles to filename and logs a per-zoom summary
func (s *Set) WriteToFile(filename string) error {
	log := logger.Get()

	if s.Count() == 0 {
		log.Info("No tiles to write", zap.String("file", filename))
		return nil
	}

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create tile list: %w", err)
	}
	defer f.Close()

	if _, err := s.WriteTo(f); err != nil {
		return fmt.Errorf("failed to write tile list: %w", err)
	}

	counts := s.CountByZoom()
	zooms := make([]int, 0, len(counts))
	for z := range counts {
		zooms = append(zooms, int(z))
	}
	sort.Ints(zooms)

	fields := make([]zap.Field, 0, len(counts)+2)
	fields = append(fields, zap.String("file", filename))
	for _, z := range zooms {
		fields = append(fields, zap.Int(fmt.Sprintf("z%d", z), counts[uint8(z)]))
	}
	fields = append(fields, zap.Int("total", s.Count()))
	log.Info("Wrote tile list", fields...)
	return nil
}
