// Package metrics exposes Prometheus counters for tile fetching and world
// generation, a gopsutil-backed system collector, and an HTTP server that
// serves both.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tile fetch outcomes
const (
	FetchNetwork = "network"
	FetchBlob    = "blob"
	FetchFailed  = "failed"
)

// Cache lookup results
const (
	LookupHit    = "hit"
	LookupMiss   = "miss"
	LookupShared = "shared"
)

var (
	tileFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tileworld_tile_fetches_total",
			Help: "Tile fetches by outcome.",
		},
		[]string{"outcome"},
	)

	tileFetchSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tileworld_tile_fetch_seconds",
			Help:    "Latency of tile fetches that left the in-memory cache.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tileworld_cache_lookups_total",
			Help: "Tile cache lookups by result.",
		},
		[]string{"result"},
	)

	cacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tileworld_cache_evictions_total",
			Help: "Tiles evicted from the in-memory cache.",
		},
	)

	decodeDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tileworld_decode_degraded_total",
			Help: "Tiles that decoded with at least one recovery.",
		},
	)

	entitiesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tileworld_entities_total",
			Help: "World entities created by feature kind.",
		},
		[]string{"kind"},
	)

	runSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tileworld_generation_seconds",
			Help:    "Duration of generation runs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
)

// ObserveTileFetch records one fetch that went past the in-memory cache
func ObserveTileFetch(outcome string, seconds float64) {
	tileFetches.WithLabelValues(outcome).Inc()
	tileFetchSeconds.Observe(seconds)
}

func IncCacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

func AddCacheEvictions(n int) {
	cacheEvictions.Add(float64(n))
}

func IncDecodeDegraded() {
	decodeDegraded.Inc()
}

func IncEntity(kind string) {
	entitiesCreated.WithLabelValues(kind).Inc()
}

func ObserveRun(seconds float64) {
	runSeconds.Observe(seconds)
}
