package sink

import (
	"context"
	"encoding/binary"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/wegman-software/tileworld-go/internal/features"
)

// Memory keeps created entities in a map. Ids are derived from the feature
// so the same feature gets the same id after a Clear; a collision takes the
// next free id.
type Memory struct {
	mu       sync.RWMutex
	entities map[features.EntityID]features.Entity
	order    []features.EntityID
	counts   map[features.Kind]int
}

// NewMemory creates an empty registry
func NewMemory() *Memory {
	return &Memory{
		entities: make(map[features.EntityID]features.Entity),
		counts:   make(map[features.Kind]int),
	}
}

// CreateEntity implements Creator
func (m *Memory) CreateEntity(ctx context.Context, f *features.WorldFeature) (features.EntityID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := FeatureID(f)
	for {
		if _, taken := m.entities[id]; !taken && id != 0 {
			break
		}
		id++
	}
	m.entities[id] = features.NewEntity(id, f)
	m.order = append(m.order, id)
	m.counts[f.Kind]++
	return id, nil
}

// Get returns the entity with id
func (m *Memory) Get(id features.EntityID) (features.Entity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[id]
	return e, ok
}

// Entities returns every entity in creation order
func (m *Memory) Entities() []features.Entity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]features.Entity, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.entities[id])
	}
	return out
}

// Count returns the number of entities of kind
func (m *Memory) Count(kind features.Kind) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[kind]
}

// Len returns the number of entities
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entities)
}

// Clear removes every entity
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities = make(map[features.EntityID]features.Entity)
	m.order = nil
	m.counts = make(map[features.Kind]int)
}

// FeatureID hashes a feature's kind, source tile and tile id. Features
// without a tile id hash their geometry instead.
func FeatureID(f *features.WorldFeature) features.EntityID {
	h := xxhash.New()
	var b [8]byte

	h.Write([]byte{byte(f.Kind), f.SourceTile.Z})
	binary.LittleEndian.PutUint32(b[:4], f.SourceTile.X)
	h.Write(b[:4])
	binary.LittleEndian.PutUint32(b[:4], f.SourceTile.Y)
	h.Write(b[:4])

	if f.ID != nil {
		binary.LittleEndian.PutUint64(b[:], *f.ID)
		h.Write(b[:])
		return features.EntityID(h.Sum64())
	}
	for _, ring := range f.Rings {
		for _, p := range ring {
			binary.LittleEndian.PutUint64(b[:], math.Float64bits(p.X))
			h.Write(b[:])
			binary.LittleEndian.PutUint64(b[:], math.Float64bits(p.Z))
			h.Write(b[:])
		}
	}
	return features.EntityID(h.Sum64())
}
