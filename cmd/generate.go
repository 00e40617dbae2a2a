package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spf13/cobra"
	"github.com/wegman-software/tileworld-go/internal/config"
	"github.com/wegman-software/tileworld-go/internal/features"
	"github.com/wegman-software/tileworld-go/internal/flex"
	"github.com/wegman-software/tileworld-go/internal/geo"
	"github.com/wegman-software/tileworld-go/internal/logger"
	"github.com/wegman-software/tileworld-go/internal/metrics"
	"github.com/wegman-software/tileworld-go/internal/sink"
	"github.com/wegman-software/tileworld-go/internal/style"
	"github.com/wegman-software/tileworld-go/internal/tilecache"
	"github.com/wegman-software/tileworld-go/internal/tilelist"
	"github.com/wegman-software/tileworld-go/internal/world"
)

var (
	serveMetrics bool
	failedOutput string
	waypointStrs []string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the world around the origin",
	Long: `Fetch every tile within the radius of the origin, decode it and create one
entity per building, road, land use and water feature.

Output targets (any combination):
  - in-memory entity store with a spatial index (always)
  - --parquet <file>   one row per entity, WKB geometry in world units
  - --postgres         COPY into a PostGIS table, geometry in EPSG:4326

With --waypoint the run is repeated along a path, fetching only tiles that
were not loaded yet once the position moved past the retrigger distance.`,
	Args: cobra.NoArgs,
	Run:  runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	f := generateCmd.Flags()
	f.Float64Var(&cfg.RetriggerMeters, "retrigger", cfg.RetriggerMeters, "Movement in meters that triggers a new run")
	f.StringArrayVar(&waypointStrs, "waypoint", nil, "Follow-up position as lat,lon (repeatable)")

	// Cache flags
	f.IntVar(&cfg.CacheCapacity, "cache-capacity", cfg.CacheCapacity, "Decoded tiles kept in memory")
	f.IntVar(&cfg.EvictionBatch, "eviction-batch", cfg.EvictionBatch, "Tiles evicted at once when the cache is full")
	f.StringVar(&cfg.CachePolicy, "cache-policy", cfg.CachePolicy, "Memory cache eviction policy: fifo or lru")
	f.StringVar(&cfg.BlobCache, "blob-cache", cfg.BlobCache, "Raw tile cache: none, file or redis")
	f.StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "Directory of the file blob cache")
	f.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address of the redis blob cache")
	f.DurationVar(&cfg.RedisTTL, "redis-ttl", cfg.RedisTTL, "Expiry of tiles in the redis blob cache")

	// Feature flags
	f.StringVar(&cfg.StyleFile, "style", "", "YAML style file with filters and road widths")
	f.StringVar(&cfg.ClassifierFile, "classifier", "", "Lua script defining tileworld.classify")

	// Output flags
	f.StringVar(&cfg.ParquetFile, "parquet", "", "Write entities to this Parquet file")
	f.BoolVar(&cfg.Postgres, "postgres", false, "Load entities into PostGIS")
	f.BoolVar(&cfg.DropExisting, "drop-existing", false, "Drop the entity table before loading")
	f.StringVarP(&cfg.DBHost, "host", "H", cfg.DBHost, "Database host")
	f.IntVarP(&cfg.DBPort, "port", "P", cfg.DBPort, "Database port")
	f.StringVarP(&cfg.DBName, "database", "d", cfg.DBName, "Database name")
	f.StringVarP(&cfg.DBUser, "user", "U", cfg.DBUser, "Database user")
	f.StringVarP(&cfg.DBPassword, "password", "W", "", "Database password")
	f.StringVar(&cfg.DBSchema, "schema", cfg.DBSchema, "Database schema")
	f.StringVar(&cfg.DBTable, "table", cfg.DBTable, "Entity table name")
	f.IntVar(&cfg.CopyBatchSize, "copy-batch", cfg.CopyBatchSize, "Rows buffered ahead of COPY and per Parquet row group")

	// Observability flags
	f.BoolVar(&serveMetrics, "serve", false, "Serve /metrics, /stats and /system while generating")
	f.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Listen address for --serve")
	f.StringVar(&failedOutput, "failed-output", "", "Write tiles that failed in any run to this file (z/x/y per line)")
}

func init() {
	// database flags use short names; map them onto the config setters
	flagSetters["host"] = flagSetters["db-host"]
	flagSetters["port"] = flagSetters["db-port"]
	flagSetters["database"] = flagSetters["db-name"]
	flagSetters["user"] = flagSetters["db-user"]
	flagSetters["password"] = flagSetters["db-password"]
	flagSetters["schema"] = flagSetters["db-schema"]
	flagSetters["table"] = flagSetters["db-table"]
	flagSetters["copy-batch"] = func(d, s *config.Config) { d.CopyBatchSize = s.CopyBatchSize }
}

func runGenerate(cmd *cobra.Command, args []string) {
	log := logger.Get()
	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}
	origin, _ := cfg.Origin.Point()

	waypoints, err := parseWaypoints(waypointStrs)
	if err != nil {
		exitWithError("invalid waypoint", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher, closeBlobs, err := buildFetcher(ctx, cfg)
	if err != nil {
		exitWithError("failed to create tile fetcher", err)
	}
	defer closeBlobs()

	var opts []world.Option
	if cfg.StyleFile != "" {
		sc, err := style.LoadConfig(cfg.StyleFile)
		if err != nil {
			exitWithError("failed to load style", err)
		}
		opts = append(opts, world.WithStyleConfig(sc))
		log.Info("Loaded style", zap.String("file", cfg.StyleFile))
	}
	if cfg.ClassifierFile != "" {
		rt := flex.NewRuntime(logger.Named("classifier"))
		defer rt.Close()
		if err := rt.LoadFile(cfg.ClassifierFile); err != nil {
			exitWithError("failed to load classifier", err)
		}
		if !rt.HasClassify() {
			log.Warn("Classifier script defines no tileworld.classify function", zap.String("file", cfg.ClassifierFile))
		}
		opts = append(opts, world.WithClassifier(rt))
	}

	proj, err := geo.NewProjector(origin, cfg.WorldScale)
	if err != nil {
		exitWithError("invalid origin", err)
	}
	store := sink.NewMemory()
	index := sink.NewIndexed(store, sink.WorldBounds(proj, cfg.RadiusKm))

	writers, err := openWriters(ctx, proj)
	if err != nil {
		exitWithError("failed to open output", err)
	}
	out := sink.NewMulti(index, writers...)

	gen := world.NewGenerator(cfg, fetcher, out, opts...)

	log.Info("Starting world generation",
		zap.String("origin", origin.String()),
		zap.Float64("radius_km", cfg.RadiusKm),
		zap.String("source", fetcher.Source().Name),
		zap.String("cache_policy", cfg.CachePolicy),
		zap.String("blob_cache", cfg.BlobCache),
		zap.Int("waypoints", len(waypoints)),
	)

	// monitoring lives until generation ends
	monCtx, stopMon := context.WithCancel(ctx)
	var g errgroup.Group

	collector := metrics.NewCollector(cfg.MetricsInterval, logger.Named("metrics"))
	g.Go(func() error {
		collector.Start(monCtx)
		return nil
	})
	if serveMetrics {
		srv := metrics.NewServer(cfg.MetricsAddr, logger.Named("server"), func() interface{} {
			return struct {
				Run    *world.Stats         `json:"run"`
				Fetch  tilecache.FetchStats `json:"fetch"`
				Loaded int                  `json:"loaded_tiles"`
				Stored int                  `json:"entities"`
			}{gen.LastStats(), fetcher.Stats(), gen.LoadedTiles(), store.Len()}
		}, collector)
		g.Go(func() error { return srv.Run(monCtx) })
	}

	start := time.Now()
	failed := tilelist.New()

	stats, runErr := gen.Run(ctx, origin)
	if stats != nil {
		failed.Add(stats.FailedTiles...)
	}
	for _, wp := range waypoints {
		if runErr != nil {
			break
		}
		var moved bool
		var s *world.Stats
		s, moved, runErr = gen.UpdatePosition(ctx, wp)
		if !moved {
			log.Debug("Waypoint within retrigger distance", zap.String("position", wp.String()))
			continue
		}
		if s != nil {
			failed.Add(s.FailedTiles...)
			stats = s
		}
	}

	stopMon()
	if err := g.Wait(); err != nil {
		log.Warn("Metrics server failed", zap.Error(err))
	}

	if err := out.Close(); err != nil {
		log.Error("Failed to finish output", zap.Error(err))
	}

	if failedOutput != "" {
		if err := failed.WriteToFile(failedOutput); err != nil {
			log.Error("Failed to write failed tile list", zap.Error(err))
		}
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			log.Warn("Generation interrupted", zap.Int("entities", store.Len()))
			return
		}
		exitWithError("generation failed", runErr)
	}

	logSummary(log, stats)

	fs := fetcher.Stats()
	log.Info("World generation complete",
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)),
		zap.Int("loaded_tiles", gen.LoadedTiles()),
		zap.Int("failed_tiles", failed.Count()),
		zap.Int("entities", store.Len()),
		zap.Int("indexed", index.Len()),
		zap.Int64("cache_hits", fs.Hits),
		zap.Int64("blob_hits", fs.BlobHits),
		zap.Int64("network_calls", fs.NetworkCalls),
		zap.Int64("degraded_tiles", fs.Degraded),
	)
	for _, k := range features.Kinds() {
		log.Debug("Entities by kind", zap.String("kind", k.String()), zap.Int("count", store.Count(k)))
	}
}

// openWriters opens the Parquet and PostGIS outputs requested by the config
func openWriters(ctx context.Context, proj *geo.Projector) ([]sink.Writer, error) {
	log := logger.Get()
	var writers []sink.Writer

	if cfg.ParquetFile != "" {
		w, err := sink.NewParquet(cfg.ParquetFile, cfg.CopyBatchSize)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
		log.Info("Writing entities to Parquet", zap.String("file", cfg.ParquetFile))
	}

	if cfg.Postgres {
		pg, err := sink.NewPostgres(ctx, cfg, proj)
		if err != nil {
			closeWriters(writers)
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = pg.Close()
			closeWriters(writers)
			return nil, err
		}
		if err := pg.PrepareTable(ctx); err != nil {
			_ = pg.Close()
			closeWriters(writers)
			return nil, err
		}
		pg.Start(ctx)
		writers = append(writers, pg)
		log.Info("Loading entities into PostGIS",
			zap.String("host", cfg.DBHost),
			zap.String("database", cfg.DBName),
			zap.String("table", cfg.DBSchema+"."+cfg.DBTable))
	}
	return writers, nil
}

func closeWriters(ws []sink.Writer) {
	for _, w := range ws {
		_ = w.Close()
	}
}

func parseWaypoints(in []string) ([]geo.Point, error) {
	out := make([]geo.Point, 0, len(in))
	for _, s := range in {
		o, err := config.ParseOrigin(s)
		if err != nil {
			return nil, err
		}
		p, err := o.Point()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// logSummary logs one line per stage of the last run
func logSummary(log *zap.Logger, stats *world.Stats) {
	if stats == nil {
		return
	}
	for _, st := range stats.Stages {
		log.Info("Stage summary",
			zap.String("stage", st.Name),
			zap.Int("total", st.Total),
			zap.Int("success", st.Success),
			zap.Int("failed", st.Failed),
			zap.Int("skipped", st.Skipped),
			zap.Float64("success_rate", st.SuccessRate()),
		)
	}
	if stats.Unmapped > 0 {
		log.Info("Features in unmapped layers", zap.Int("count", stats.Unmapped))
	}
}
