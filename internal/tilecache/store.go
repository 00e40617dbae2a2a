package tilecache

import (
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/wegman-software/tileworld-go/internal/geo"
	"github.com/wegman-software/tileworld-go/internal/mvt"
)

// Default cache tuning
const (
	DefaultCapacity      = 1000
	DefaultEvictionBatch = 200
)

// Eviction policies
const (
	PolicyFIFO = "fifo"
	PolicyLRU  = "lru"
)

// Store holds decoded tiles in memory. Put reports how many entries it
// evicted; after any Put the store holds at most its capacity.
type Store interface {
	Get(addr geo.TileAddress) (*mvt.Tile, bool)
	Put(addr geo.TileAddress, tile *mvt.Tile) int
	Len() int
	Evict(n int) int
}

// NewStore creates a store for the named policy
func NewStore(policy string, capacity, batch int) (Store, error) {
	switch strings.ToLower(policy) {
	case "", PolicyFIFO:
		return NewFIFOStore(capacity, batch), nil
	case PolicyLRU:
		return NewLRUStore(capacity, batch)
	default:
		return nil, fmt.Errorf("unknown cache policy: %q (want fifo or lru)", policy)
	}
}

func normalizeLimits(capacity, batch int) (int, int) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if batch <= 0 {
		batch = DefaultEvictionBatch
	}
	if batch > capacity {
		batch = capacity
	}
	return capacity, batch
}

// FIFOStore evicts in insertion order regardless of use
type FIFOStore struct {
	mu       sync.Mutex
	capacity int
	batch    int
	tiles    map[geo.TileAddress]*mvt.Tile
	order    []geo.TileAddress
}

// NewFIFOStore creates a FIFO store; non-positive limits take the defaults
func NewFIFOStore(capacity, batch int) *FIFOStore {
	capacity, batch = normalizeLimits(capacity, batch)
	return &FIFOStore{
		capacity: capacity,
		batch:    batch,
		tiles:    make(map[geo.TileAddress]*mvt.Tile, capacity+1),
		order:    make([]geo.TileAddress, 0, capacity+1),
	}
}

func (s *FIFOStore) Get(addr geo.TileAddress) (*mvt.Tile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tiles[addr]
	return t, ok
}

// Put stores a tile. Replacing an existing entry keeps its original position.
func (s *FIFOStore) Put(addr geo.TileAddress, tile *mvt.Tile) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tiles[addr]; ok {
		s.tiles[addr] = tile
		return 0
	}
	s.tiles[addr] = tile
	s.order = append(s.order, addr)

	if len(s.order) <= s.capacity {
		return 0
	}
	n := s.batch
	if over := len(s.order) - s.capacity; over > n {
		n = over
	}
	return s.evictLocked(n)
}

func (s *FIFOStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Evict removes the n oldest entries
func (s *FIFOStore) Evict(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictLocked(n)
}

func (s *FIFOStore) evictLocked(n int) int {
	if n > len(s.order) {
		n = len(s.order)
	}
	if n <= 0 {
		return 0
	}
	for _, addr := range s.order[:n] {
		delete(s.tiles, addr)
	}
	s.order = append(s.order[:0], s.order[n:]...)
	return n
}

// Keys returns addresses oldest first
func (s *FIFOStore) Keys() []geo.TileAddress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]geo.TileAddress(nil), s.order...)
}

// LRUStore evicts least recently used entries in batches
type LRUStore struct {
	capacity int
	batch    int
	cache    *lru.Cache[geo.TileAddress, *mvt.Tile]
	mu       sync.Mutex // serializes Put's overflow check
}

// NewLRUStore creates an LRU store; non-positive limits take the defaults
func NewLRUStore(capacity, batch int) (*LRUStore, error) {
	capacity, batch = normalizeLimits(capacity, batch)
	// one slot of headroom so the overflowing Add is never auto-evicted
	c, err := lru.New[geo.TileAddress, *mvt.Tile](capacity + 1)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}
	return &LRUStore{capacity: capacity, batch: batch, cache: c}, nil
}

func (s *LRUStore) Get(addr geo.TileAddress) (*mvt.Tile, bool) {
	return s.cache.Get(addr)
}

func (s *LRUStore) Put(addr geo.TileAddress, tile *mvt.Tile) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Add(addr, tile)
	if s.cache.Len() <= s.capacity {
		return 0
	}
	return s.evict(s.batch)
}

func (s *LRUStore) Len() int {
	return s.cache.Len()
}

// Evict removes the n least recently used entries
func (s *LRUStore) Evict(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evict(n)
}

func (s *LRUStore) evict(n int) int {
	removed := 0
	for removed < n {
		if _, _, ok := s.cache.RemoveOldest(); !ok {
			break
		}
		removed++
	}
	return removed
}
