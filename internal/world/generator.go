// Package world drives generation: it walks the tiles around an origin,
// turns their features into world entities and keeps per-stage statistics.
package world

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/tileworld-go/internal/config"
	"github.com/wegman-software/tileworld-go/internal/features"
	"github.com/wegman-software/tileworld-go/internal/geo"
	"github.com/wegman-software/tileworld-go/internal/logger"
	"github.com/wegman-software/tileworld-go/internal/metrics"
	"github.com/wegman-software/tileworld-go/internal/mvt"
	"github.com/wegman-software/tileworld-go/internal/style"
)

// Fatal wiring errors returned by Run before any fetch
var (
	ErrNoEntityCreator = errors.New("no entity creator configured")
	ErrNoTileFetcher   = errors.New("no tile fetcher configured")
)

// TileFetcher returns decoded tiles. *tilecache.Fetcher implements it.
type TileFetcher interface {
	FetchTile(ctx context.Context, addr geo.TileAddress) (*mvt.Tile, error)
}

// EntityCreator places one world entity per feature
type EntityCreator interface {
	CreateEntity(ctx context.Context, f *features.WorldFeature) (features.EntityID, error)
}

// Classifier may change a feature's kind or drop it before parsing.
// *flex.Runtime implements it.
type Classifier interface {
	Apply(layer string, f *mvt.Feature) (bool, error)
}

// Option configures a Generator
type Option func(*Generator)

// WithProgressSink sets where progress events go
func WithProgressSink(s ProgressSink) Option {
	return func(g *Generator) { g.sink = s }
}

// WithClassifier installs a feature classifier
func WithClassifier(c Classifier) Option {
	return func(g *Generator) { g.classifier = c }
}

// WithStyleConfig applies style filters and road widths to parsing
func WithStyleConfig(s *style.Config) Option {
	return func(g *Generator) { g.style = s }
}

// WithGeneratorLogger sets the logger
func WithGeneratorLogger(l *zap.Logger) Option {
	return func(g *Generator) { g.log = l }
}

// Generator runs generation passes. Runs are serialized; a later run never
// cancels one in progress.
type Generator struct {
	cfg        *config.Config
	fetcher    TileFetcher
	creator    EntityCreator
	classifier Classifier
	style      *style.Config
	sink       ProgressSink
	log        *zap.Logger

	runMu sync.Mutex

	mu         sync.Mutex
	loaded     map[geo.TileAddress]struct{}
	proj       *geo.Projector
	lastOrigin *geo.Point
	last       *Stats
}

// NewGenerator creates a generator reading tiles from fetcher and handing
// features to creator
func NewGenerator(cfg *config.Config, fetcher TileFetcher, creator EntityCreator, opts ...Option) *Generator {
	g := &Generator{
		cfg:     cfg,
		fetcher: fetcher,
		creator: creator,
		loaded:  make(map[geo.TileAddress]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.log == nil {
		g.log = logger.Named("world")
	}
	if g.sink == nil {
		g.sink = NewLogSink(g.log)
	}
	return g
}

// check returns the fatal configuration errors
func (g *Generator) check(origin geo.Point) error {
	if g.cfg == nil || g.cfg.AccessToken == "" {
		return config.ErrMissingAccessToken
	}
	if !origin.Valid() {
		return fmt.Errorf("%w: %s", config.ErrOriginNotSet, origin)
	}
	if g.creator == nil {
		return ErrNoEntityCreator
	}
	if g.fetcher == nil {
		return ErrNoTileFetcher
	}
	return nil
}

// Run generates the world around origin. Tile failures are counted, never
// returned. The error is non-nil only for fatal configuration problems or
// when ctx ends, in which case the partial stats are still returned.
func (g *Generator) Run(ctx context.Context, origin geo.Point) (*Stats, error) {
	if err := g.check(origin); err != nil {
		return nil, err
	}

	g.runMu.Lock()
	defer g.runMu.Unlock()

	proj, err := g.projector(origin)
	if err != nil {
		return nil, err
	}
	parser := features.NewParser(proj,
		features.WithStyle(g.style),
		features.WithParserLogger(g.log.Named("parser")))

	stats := newStats()
	r := &run{g: g, ctx: ctx, stats: stats, parser: parser}

	// enqueue in enumeration order, skipping tiles already loaded
	var queue []geo.TileAddress
	queued := make(map[geo.TileAddress]struct{})
	for _, t := range geo.TilesInRadius(origin, g.cfg.RadiusKm, g.cfg.MinZoom, g.cfg.MaxZoom) {
		if _, ok := queued[t]; ok || g.isLoaded(t) {
			continue
		}
		queued[t] = struct{}{}
		queue = append(queue, t)
	}

	tiles := stats.Stage(StageTiles)
	tiles.Total = len(queue)
	r.touch(tiles, fmt.Sprintf("Generating world around %s", origin))

	g.log.Info("Generation started",
		zap.String("origin", origin.String()),
		zap.Float64("radius_km", g.cfg.RadiusKm),
		zap.Uint8("min_zoom", g.cfg.MinZoom),
		zap.Uint8("max_zoom", g.cfg.MaxZoom),
		zap.Int("tiles", len(queue)))

	tracker := NewProgressTracker(len(queue))
	var runErr error
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		addr := queue[0]
		queue = queue[1:]

		r.processTile(addr)

		p := tracker.Calculate(tiles.Processed)
		r.emit(tiles, fmt.Sprintf("Tile %s done (%d/%d, %s, eta %s)",
			addr, tiles.Processed, tiles.Total, FormatThroughput(p.Throughput), FormatETA(p.ETA)))

		// let the host's loop run between tiles
		runtime.Gosched()
	}

	stats.Duration = time.Since(stats.Started)
	metrics.ObserveRun(stats.Duration.Seconds())

	g.mu.Lock()
	o := origin
	g.lastOrigin = &o
	g.last = stats.Clone()
	g.mu.Unlock()

	totals := stats.FeatureTotals()
	g.log.Info("Generation complete",
		zap.Int("tiles", tiles.Total),
		zap.Int("tiles_failed", tiles.Failed),
		zap.Int("features", totals.Total),
		zap.Int("features_failed", totals.Failed),
		zap.Int("unmapped", stats.Unmapped),
		zap.Int("entities", stats.Entities),
		zap.Float64("tile_success_rate", tiles.SuccessRate()),
		zap.Duration("duration", stats.Duration.Round(time.Millisecond)))

	return stats, runErr
}

// projector returns the world anchor, fixing it on the first run
func (g *Generator) projector(origin geo.Point) (*geo.Projector, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.proj != nil {
		return g.proj, nil
	}
	proj, err := geo.NewProjector(origin, g.cfg.WorldScale)
	if err != nil {
		return nil, fmt.Errorf("failed to create projector: %w", err)
	}
	g.proj = proj
	return proj, nil
}

func (g *Generator) isLoaded(t geo.TileAddress) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.loaded[t]
	return ok
}

func (g *Generator) markLoaded(t geo.TileAddress) {
	g.mu.Lock()
	g.loaded[t] = struct{}{}
	g.mu.Unlock()
}

// UpdatePosition runs generation again when p is farther than the retrigger
// distance from the last run's origin. It reports whether a run happened.
func (g *Generator) UpdatePosition(ctx context.Context, p geo.Point) (*Stats, bool, error) {
	g.mu.Lock()
	last := g.lastOrigin
	g.mu.Unlock()

	threshold := g.cfg.RetriggerMeters
	if threshold <= 0 {
		threshold = 100
	}
	if last != nil && geo.Distance(*last, p) <= threshold {
		return nil, false, nil
	}

	stats, err := g.Run(ctx, p)
	return stats, true, err
}

// Reset forgets loaded tiles and the world anchor, for teleporting. The
// caller clears entities it already created.
func (g *Generator) Reset() {
	g.runMu.Lock()
	defer g.runMu.Unlock()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loaded = make(map[geo.TileAddress]struct{})
	g.proj = nil
	g.lastOrigin = nil
}

// LoadedTiles returns the number of tiles loaded so far
func (g *Generator) LoadedTiles() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.loaded)
}

// LastStats returns a copy of the last run's stats, or nil
func (g *Generator) LastStats() *Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last.Clone()
}

// Projector returns the world anchor, or nil before the first run
func (g *Generator) Projector() *geo.Projector {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.proj
}

// run holds the state of one pass
type run struct {
	g      *Generator
	ctx    context.Context
	stats  *Stats
	parser *features.Parser
}

func (r *run) emit(st *Stage, msg string) {
	r.g.sink.Progress(eventFor(st, msg))
}

// touch makes st the current stage, emitting on transition
func (r *run) touch(st *Stage, msg string) {
	if r.stats.Current == st.Name {
		return
	}
	r.stats.Current = st.Name
	r.emit(st, msg)
}

func (r *run) processTile(addr geo.TileAddress) {
	log := r.g.log
	tiles := r.stats.Stage(StageTiles)

	tile, err := r.g.fetcher.FetchTile(r.ctx, addr)
	tiles.Processed++
	if err == nil && (tile == nil || tile.FeatureCount() == 0) {
		err = errors.New("tile has no features")
	}
	if err != nil {
		tiles.Failed++
		r.stats.FailedTiles = append(r.stats.FailedTiles, addr)
		log.Warn("Tile failed", zap.String("tile", addr.String()), zap.Error(err))
		return
	}
	tiles.Success++
	r.g.markLoaded(addr)
	r.touch(tiles, fmt.Sprintf("Processing tile %s", addr))

	names := tile.LayerNames()
	sort.Strings(names)
	for _, name := range names {
		r.processLayer(addr, tile.Layers[name])
	}
}

func (r *run) processLayer(addr geo.TileAddress, layer *mvt.Layer) {
	groups := make(map[features.Kind][]*mvt.Feature)

	for _, f := range layer.Features {
		if f == nil {
			continue
		}
		if r.g.classifier != nil {
			// tiles are shared through the cache; classify a copy
			f = cloneFeature(f)
			keep, err := r.g.classifier.Apply(layer.Name, f)
			if err != nil {
				r.g.log.Debug("Classifier failed",
					zap.String("tile", addr.String()),
					zap.String("layer", layer.Name),
					zap.Error(err))
			}
			if !keep {
				r.skip(f.Kind)
				continue
			}
		}

		if f.Kind == mvt.KindTerrain {
			r.terrain(f)
			continue
		}
		kind, ok := features.KindFromLayer(f.Kind)
		if !ok {
			r.stats.Unmapped++
			continue
		}

		st := r.stats.Stage(StageForKind(kind))
		r.touch(st, fmt.Sprintf("Generating %s", st.Name))
		st.Total++
		if len(f.Geometry) == 0 {
			st.Processed++
			st.Failed++
			continue
		}
		groups[kind] = append(groups[kind], f)
	}

	for _, kind := range features.Kinds() {
		raw := groups[kind]
		if len(raw) == 0 {
			continue
		}
		r.build(addr, kind, raw, layer.Extent)
	}
}

// build parses one kind's features and creates their entities
func (r *run) build(addr geo.TileAddress, kind features.Kind, raw []*mvt.Feature, extent uint32) {
	st := r.stats.Stage(StageForKind(kind))
	res := r.parser.Parse(raw, kind, addr, extent)

	st.Processed += res.Errors + res.Filtered
	st.Failed += res.Errors
	st.Skipped += res.Filtered

	for i := range res.Features {
		wf := &res.Features[i]
		st.Processed++
		if _, err := r.g.creator.CreateEntity(r.ctx, wf); err != nil {
			st.Failed++
			r.g.log.Debug("Entity creation failed",
				zap.String("tile", addr.String()),
				zap.String("kind", kind.String()),
				zap.Error(err))
			continue
		}
		st.Success++
		r.stats.Entities++
		metrics.IncEntity(kind.String())
	}
}

// terrain counts a terrain feature; terrain is consumed as elevation data
// and creates no entity
func (r *run) terrain(f *mvt.Feature) {
	st := r.stats.Stage(StageTerrain)
	r.touch(st, "Reading terrain")
	st.Total++
	st.Processed++
	if len(f.Geometry) == 0 {
		st.Failed++
		return
	}
	st.Success++
}

// skip counts a feature the classifier dropped
func (r *run) skip(k mvt.LayerKind) {
	var st *Stage
	if k == mvt.KindTerrain {
		st = r.stats.Stage(StageTerrain)
	} else if kind, ok := features.KindFromLayer(k); ok {
		st = r.stats.Stage(StageForKind(kind))
	}
	if st == nil {
		r.stats.Unmapped++
		return
	}
	st.Total++
	st.Processed++
	st.Skipped++
}

func cloneFeature(f *mvt.Feature) *mvt.Feature {
	c := *f
	c.Properties = make(mvt.Properties, len(f.Properties))
	for k, v := range f.Properties {
		c.Properties[k] = v
	}
	return &c
}
