package sink

import (
	"context"
	"errors"
	"testing"

	"github.com/wegman-software/tileworld-go/internal/features"
	"github.com/wegman-software/tileworld-go/internal/geo"
)

var testTile = geo.NewTileAddress(14, 8185, 5448)

// squareFeature builds an axis-aligned square of half-width half at (cx, cz)
func squareFeature(kind features.Kind, cx, cz, half float64) *features.WorldFeature {
	ring := []geo.WorldPoint{
		{X: cx - half, Z: cz - half},
		{X: cx + half, Z: cz - half},
		{X: cx + half, Z: cz + half},
		{X: cx - half, Z: cz + half},
	}
	return &features.WorldFeature{
		Kind:       kind,
		Shape:      features.ShapePolygon,
		Points:     ring,
		Rings:      [][]geo.WorldPoint{ring},
		SourceTile: testTile,
	}
}

func TestMemoryCreateEntity(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	b := squareFeature(features.KindBuilding, 0, 0, 1)
	id, err := m.CreateEntity(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	if id == 0 {
		t.Error("id = 0, want non-zero")
	}

	e, ok := m.Get(id)
	if !ok {
		t.Fatalf("Get(%s) missing", id)
	}
	if e.Kind != features.KindBuilding || e.Position != (geo.WorldPoint{}) {
		t.Errorf("entity = %+v", e)
	}

	if _, err := m.CreateEntity(ctx, squareFeature(features.KindWater, 5, 5, 1)); err != nil {
		t.Fatal(err)
	}
	if m.Len() != 2 || m.Count(features.KindBuilding) != 1 || m.Count(features.KindWater) != 1 {
		t.Errorf("len = %d, building = %d, water = %d", m.Len(), m.Count(features.KindBuilding), m.Count(features.KindWater))
	}
	if got := m.Entities(); len(got) != 2 || got[0].ID != id {
		t.Errorf("Entities() = %v, want creation order", got)
	}
}

func TestMemoryIDsAreDeterministic(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	f := squareFeature(features.KindBuilding, 3, 4, 1)

	first, _ := m.CreateEntity(ctx, f)
	m.Clear()
	if m.Len() != 0 || m.Count(features.KindBuilding) != 0 {
		t.Fatalf("Clear left len = %d", m.Len())
	}
	again, _ := m.CreateEntity(ctx, f)
	if first != again {
		t.Errorf("id after Clear = %s, want %s", again, first)
	}

	// the same feature again collides and moves to the next free id
	dup, _ := m.CreateEntity(ctx, f)
	if dup == again {
		t.Errorf("duplicate got the same id %s", dup)
	}
	if m.Len() != 2 {
		t.Errorf("len = %d, want 2", m.Len())
	}
}

func TestFeatureIDUsesTileID(t *testing.T) {
	a := squareFeature(features.KindRoad, 0, 0, 1)
	b := squareFeature(features.KindRoad, 10, 10, 1)
	id := uint64(42)
	a.ID, b.ID = &id, &id
	if FeatureID(a) != FeatureID(b) {
		t.Error("features with the same tile id should hash equally")
	}

	b.Kind = features.KindWater
	if FeatureID(a) == FeatureID(b) {
		t.Error("kind should be part of the id")
	}
}

func TestMemoryCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMemory().CreateEntity(ctx, squareFeature(features.KindBuilding, 0, 0, 1)); !errors.Is(err, context.Canceled) {
		t.Errorf("CreateEntity() error = %v, want context.Canceled", err)
	}
}
