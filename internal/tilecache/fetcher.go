// Package tilecache fetches vector tiles over the network, decodes them and
// keeps decoded tiles in a bounded in-memory store, optionally backed by a
// file or Redis byte cache.
package tilecache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wegman-software/tileworld-go/internal/geo"
	"github.com/wegman-software/tileworld-go/internal/logger"
	"github.com/wegman-software/tileworld-go/internal/metrics"
	"github.com/wegman-software/tileworld-go/internal/mvt"
)

// FetchStats counts fetcher activity since creation
type FetchStats struct {
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
	Shared       int64 `json:"shared"`
	BlobHits     int64 `json:"blob_hits"`
	NetworkCalls int64 `json:"network_calls"`
	Failures     int64 `json:"failures"`
	Evictions    int64 `json:"evictions"`
	Degraded     int64 `json:"degraded"`
}

// ErrUndecodable is returned for a tile whose bytes yield no features and
// needed decoder recoveries
var ErrUndecodable = errors.New("tile is undecodable")

// Fetcher turns tile addresses into decoded tiles. Concurrent requests for
// one address share a single fetch that runs detached from any one caller's
// context; failures are never cached.
type Fetcher struct {
	source    *Source
	transport Transport
	store     Store
	blobs     BlobStore
	logger    *zap.Logger
	group     singleflight.Group

	hits, misses, shared, blobHits atomic.Int64
	network, failures, evictions   atomic.Int64
	degraded                       atomic.Int64
}

// FetcherOption configures a Fetcher
type FetcherOption func(*Fetcher)

// WithStore replaces the default FIFO store
func WithStore(s Store) FetcherOption {
	return func(f *Fetcher) { f.store = s }
}

// WithBlobStore adds a persistent byte tier consulted before the network
func WithBlobStore(b BlobStore) FetcherOption {
	return func(f *Fetcher) { f.blobs = b }
}

// WithLogger sets the logger; the global logger is used otherwise
func WithLogger(l *zap.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = l }
}

// NewFetcher creates a fetcher for a source
func NewFetcher(source *Source, transport Transport, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		source:    source,
		transport: transport,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.store == nil {
		f.store = NewFIFOStore(DefaultCapacity, DefaultEvictionBatch)
	}
	if f.logger == nil {
		f.logger = logger.Named("tilecache")
	}
	return f
}

// Source returns the tile source
func (f *Fetcher) Source() *Source {
	return f.source
}

// Store returns the in-memory store
func (f *Fetcher) Store() Store {
	return f.store
}

// FetchTile returns the decoded tile for addr. On failure it returns an
// empty tile together with the error, and the next call tries again.
func (f *Fetcher) FetchTile(ctx context.Context, addr geo.TileAddress) (*mvt.Tile, error) {
	if !addr.Valid() {
		return mvt.NewTile(), fmt.Errorf("invalid tile address %s", addr)
	}

	if tile, ok := f.store.Get(addr); ok {
		f.hits.Add(1)
		metrics.IncCacheLookup(metrics.LookupHit)
		return tile, nil
	}
	f.misses.Add(1)
	metrics.IncCacheLookup(metrics.LookupMiss)
	if err := ctx.Err(); err != nil {
		return mvt.NewTile(), err
	}

	// waiters share the load, so one caller's cancellation must not fail it
	loadCtx := context.WithoutCancel(ctx)
	ch := f.group.DoChan(addr.String(), func() (interface{}, error) {
		// a caller that just finished may have filled the store
		if tile, ok := f.store.Get(addr); ok {
			return tile, nil
		}
		return f.load(loadCtx, addr)
	})

	select {
	case <-ctx.Done():
		return mvt.NewTile(), ctx.Err()
	case res := <-ch:
		if res.Shared {
			f.shared.Add(1)
			metrics.IncCacheLookup(metrics.LookupShared)
		}
		if res.Err != nil {
			return mvt.NewTile(), res.Err
		}
		return res.Val.(*mvt.Tile), nil
	}
}

// load fetches bytes from the blob tier or the network, decodes and stores
func (f *Fetcher) load(ctx context.Context, addr geo.TileAddress) (*mvt.Tile, error) {
	start := time.Now()

	data, fromBlob := f.readBlob(ctx, addr)
	if !fromBlob {
		f.network.Add(1)
		var err error
		data, err = f.transport.Fetch(ctx, f.source.TileURL(addr))
		if err != nil {
			f.failures.Add(1)
			metrics.ObserveTileFetch(metrics.FetchFailed, time.Since(start).Seconds())
			f.logger.Debug("Tile fetch failed",
				zap.String("tile", addr.String()),
				zap.String("url", f.source.Redacted(addr)),
				zap.Error(err))
			return nil, fmt.Errorf("fetch tile %s: %w", addr, err)
		}
		metrics.ObserveTileFetch(metrics.FetchNetwork, time.Since(start).Seconds())
	} else {
		f.blobHits.Add(1)
		metrics.ObserveTileFetch(metrics.FetchBlob, time.Since(start).Seconds())
	}

	tile := mvt.Decode(data)
	if tile.Diagnostics.Degraded() {
		f.degraded.Add(1)
		metrics.IncDecodeDegraded()
		f.logger.Debug("Tile decoded with recoveries",
			zap.String("tile", addr.String()),
			zap.Stringer("diagnostics", tile.Diagnostics))
		if tile.FeatureCount() == 0 {
			f.failures.Add(1)
			return nil, fmt.Errorf("tile %s: %w (%s)", addr, ErrUndecodable, tile.Diagnostics)
		}
	}

	if n := f.store.Put(addr, tile); n > 0 {
		f.evictions.Add(int64(n))
		metrics.AddCacheEvictions(n)
		f.logger.Debug("Evicted tiles", zap.Int("count", n), zap.Int("cached", f.store.Len()))
	}

	if !fromBlob {
		f.writeBlob(ctx, addr, data)
	}

	f.logger.Debug("Tile loaded",
		zap.String("tile", addr.String()),
		zap.Bool("blob", fromBlob),
		zap.Int("bytes", len(data)),
		zap.Int("layers", len(tile.Layers)),
		zap.Int("features", tile.FeatureCount()))
	return tile, nil
}

// readBlob treats blob-tier errors as misses
func (f *Fetcher) readBlob(ctx context.Context, addr geo.TileAddress) ([]byte, bool) {
	if f.blobs == nil {
		return nil, false
	}
	data, ok, err := f.blobs.Get(ctx, addr)
	if err != nil {
		f.logger.Warn("Blob cache read failed", zap.String("tile", addr.String()), zap.Error(err))
		return nil, false
	}
	return data, ok
}

func (f *Fetcher) writeBlob(ctx context.Context, addr geo.TileAddress, data []byte) {
	if f.blobs == nil {
		return
	}
	if err := f.blobs.Put(ctx, addr, data); err != nil && !errors.Is(err, context.Canceled) {
		f.logger.Warn("Blob cache write failed", zap.String("tile", addr.String()), zap.Error(err))
	}
}

// Stats returns a snapshot of the counters
func (f *Fetcher) Stats() FetchStats {
	return FetchStats{
		Hits:         f.hits.Load(),
		Misses:       f.misses.Load(),
		Shared:       f.shared.Load(),
		BlobHits:     f.blobHits.Load(),
		NetworkCalls: f.network.Load(),
		Failures:     f.failures.Load(),
		Evictions:    f.evictions.Load(),
		Degraded:     f.degraded.Load(),
	}
}

// TilesInRadius lists the tiles to fetch around center, lowest zoom first
func TilesInRadius(center geo.Point, radiusKm float64, minZoom, maxZoom uint8) []geo.TileAddress {
	return geo.TilesInRadius(center, radiusKm, minZoom, maxZoom)
}
