package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/wegman-software/tileworld-go/internal/config"
	"github.com/wegman-software/tileworld-go/internal/logger"
	"github.com/wegman-software/tileworld-go/internal/tilecache"
)

var (
	cfg             = config.DefaultConfig()
	configFile      string
	envFiles        []string
	originStr       string
	verbose         bool
	logFile         string
	metricsInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "tileworld",
	Short: "Generate a local 3D world from vector map tiles",
	Long: `tileworld fetches Mapbox Vector Tiles around a geographic origin and turns
their buildings, roads, land use and water into world entities.

Features:
  - Two-tier tile cache (in-memory FIFO/LRU plus optional file or Redis blobs)
  - Fault-tolerant tile decoding that salvages damaged tiles
  - Style filters and Lua classification of features
  - Entity output to Parquet and PostGIS
  - Prometheus metrics and system resource logging

Settings are read from defaults, then --config, then TILEWORLD_* environment
variables (a .env file is loaded first), then command-line flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(cmd); err != nil {
			return err
		}

		// Initialize logger with optional file output
		if cfg.LogFile != "" {
			logger.InitWithFile(cfg.Verbose, cfg.LogFile)
		} else {
			logger.Init(cfg.Verbose)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Long += "\n\nPredefined tile sources:\n  " + strings.Join(tilecache.ListSources(), "\n  ")

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "YAML configuration file")
	pf.StringSliceVar(&envFiles, "env-file", nil, "Environment files to load (default .env)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	// World flags
	pf.StringVar(&originStr, "origin", "", "World origin as lat,lon")
	pf.Float64VarP(&cfg.RadiusKm, "radius", "r", cfg.RadiusKm, "Radius around the origin in kilometers")
	pf.Uint8Var(&cfg.MinZoom, "min-zoom", cfg.MinZoom, "Minimum tile zoom")
	pf.Uint8Var(&cfg.MaxZoom, "max-zoom", cfg.MaxZoom, "Maximum tile zoom")
	pf.Float64Var(&cfg.WorldScale, "world-scale", cfg.WorldScale, "World units per meter")

	// Provider flags
	pf.StringVarP(&cfg.Source, "source", "s", cfg.Source, "Tile source name or base URL")
	pf.StringVar(&cfg.TileFormat, "tile-format", "", "Tile file extension (overrides the source default)")
	pf.StringVar(&cfg.AccessToken, "access-token", "", "Tile provider access token")
	pf.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "HTTP request timeout")
	pf.IntVar(&cfg.MaxRetries, "retries", cfg.MaxRetries, "Retries for transport errors and 5xx responses")

	// Logging and metrics flags
	pf.StringVar(&logFile, "log-file", "", "Path to log file for persistent logging (JSON format)")
	pf.DurationVar(&metricsInterval, "metrics-interval", cfg.MetricsInterval, "Interval for system metrics logging (e.g., 10s, 1m)")
}

// loadConfig layers defaults, the config file, the environment and the
// flags the user set, in that order
func loadConfig(cmd *cobra.Command) error {
	// flag values parsed into cfg so far
	flagged := *cfg
	flagged.Verbose = verbose
	flagged.LogFile = logFile
	flagged.MetricsInterval = metricsInterval
	if originStr != "" {
		o, err := config.ParseOrigin(originStr)
		if err != nil {
			return fmt.Errorf("invalid --origin: %w", err)
		}
		flagged.Origin = o
	}

	if err := config.LoadEnvFiles(envFiles...); err != nil {
		return err
	}

	base := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.LoadFile(configFile)
		if err != nil {
			return err
		}
		base = loaded
	}
	if err := base.ApplyEnv(); err != nil {
		return err
	}

	cmd.Flags().Visit(func(f *pflag.Flag) {
		if set, ok := flagSetters[f.Name]; ok {
			set(base, &flagged)
		}
	})
	if originStr != "" {
		base.Origin = flagged.Origin
	}
	if verbose {
		base.Verbose = true
	}
	if logFile != "" {
		base.LogFile = logFile
	}

	*cfg = *base
	return nil
}

// flagSetters copy a changed flag's value from src to dst
var flagSetters = map[string]func(dst, src *config.Config){
	"radius":           func(d, s *config.Config) { d.RadiusKm = s.RadiusKm },
	"min-zoom":         func(d, s *config.Config) { d.MinZoom = s.MinZoom },
	"max-zoom":         func(d, s *config.Config) { d.MaxZoom = s.MaxZoom },
	"world-scale":      func(d, s *config.Config) { d.WorldScale = s.WorldScale },
	"source":           func(d, s *config.Config) { d.Source = s.Source },
	"tile-format":      func(d, s *config.Config) { d.TileFormat = s.TileFormat },
	"access-token":     func(d, s *config.Config) { d.AccessToken = s.AccessToken },
	"timeout":          func(d, s *config.Config) { d.RequestTimeout = s.RequestTimeout },
	"retries":          func(d, s *config.Config) { d.MaxRetries = s.MaxRetries },
	"metrics-interval": func(d, s *config.Config) { d.MetricsInterval = s.MetricsInterval },
	"retrigger":        func(d, s *config.Config) { d.RetriggerMeters = s.RetriggerMeters },
	"cache-capacity":   func(d, s *config.Config) { d.CacheCapacity = s.CacheCapacity },
	"eviction-batch":   func(d, s *config.Config) { d.EvictionBatch = s.EvictionBatch },
	"cache-policy":     func(d, s *config.Config) { d.CachePolicy = s.CachePolicy },
	"blob-cache":       func(d, s *config.Config) { d.BlobCache = s.BlobCache },
	"cache-dir":        func(d, s *config.Config) { d.CacheDir = s.CacheDir },
	"redis-addr":       func(d, s *config.Config) { d.RedisAddr = s.RedisAddr },
	"redis-ttl":        func(d, s *config.Config) { d.RedisTTL = s.RedisTTL },
	"style":            func(d, s *config.Config) { d.StyleFile = s.StyleFile },
	"classifier":       func(d, s *config.Config) { d.ClassifierFile = s.ClassifierFile },
	"parquet":          func(d, s *config.Config) { d.ParquetFile = s.ParquetFile },
	"postgres":         func(d, s *config.Config) { d.Postgres = s.Postgres },
	"drop-existing":    func(d, s *config.Config) { d.DropExisting = s.DropExisting },
	"db-host":          func(d, s *config.Config) { d.DBHost = s.DBHost },
	"db-port":          func(d, s *config.Config) { d.DBPort = s.DBPort },
	"db-name":          func(d, s *config.Config) { d.DBName = s.DBName },
	"db-user":          func(d, s *config.Config) { d.DBUser = s.DBUser },
	"db-password":      func(d, s *config.Config) { d.DBPassword = s.DBPassword },
	"db-schema":        func(d, s *config.Config) { d.DBSchema = s.DBSchema },
	"db-table":         func(d, s *config.Config) { d.DBTable = s.DBTable },
	"metrics-addr":     func(d, s *config.Config) { d.MetricsAddr = s.MetricsAddr },
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	logger.Sync()
	os.Exit(1)
}
