package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/wegman-software/tileworld-go/internal/geo"
)

// Fatal configuration errors. Generation does not start when either is set.
var (
	ErrMissingAccessToken = errors.New("tile provider access token is not set")
	ErrOriginNotSet       = errors.New("world origin is not set")
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "TILEWORLD_"

// MaxRadiusKm bounds the generation radius. At zoom 14 it is already a few
// thousand tiles per run.
const MaxRadiusKm = 50.0

// Origin is the geographic anchor of the generated world
type Origin struct {
	Lat, Lon float64
	IsSet    bool
}

// Point returns the origin as a geo.Point, or ErrOriginNotSet
func (o Origin) Point() (geo.Point, error) {
	if !o.IsSet {
		return geo.Point{}, ErrOriginNotSet
	}
	p := geo.NewPoint(o.Lat, o.Lon)
	if !p.Valid() {
		return geo.Point{}, fmt.Errorf("%w: %s out of range", ErrOriginNotSet, p)
	}
	return p, nil
}

func (o Origin) String() string {
	if !o.IsSet {
		return ""
	}
	return strconv.FormatFloat(o.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(o.Lon, 'f', -1, 64)
}

// ParseOrigin parses an origin string in format "lat,lon"
func ParseOrigin(s string) (Origin, error) {
	if strings.TrimSpace(s) == "" {
		return Origin{}, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Origin{}, fmt.Errorf("origin must have 2 values: lat,lon")
	}

	var coords [2]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Origin{}, fmt.Errorf("invalid origin coordinate %q: %w", p, err)
		}
		coords[i] = v
	}

	o := Origin{Lat: coords[0], Lon: coords[1], IsSet: true}
	if math.Abs(o.Lat) > 90 || math.Abs(o.Lon) > 180 {
		return Origin{}, fmt.Errorf("origin %s out of range", o)
	}
	return o, nil
}

// UnmarshalYAML accepts either "lat,lon" or a {lat, lon} mapping
func (o *Origin) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		parsed, err := ParseOrigin(value.Value)
		if err != nil {
			return err
		}
		*o = parsed
		return nil
	}

	var m struct {
		Lat *float64 `yaml:"lat"`
		Lon *float64 `yaml:"lon"`
	}
	if err := value.Decode(&m); err != nil {
		return err
	}
	if m.Lat == nil || m.Lon == nil {
		return fmt.Errorf("origin needs both lat and lon")
	}
	*o = Origin{Lat: *m.Lat, Lon: *m.Lon, IsSet: true}
	return nil
}

// Config holds the configuration for world generation
type Config struct {
	// World settings
	Origin          Origin  `yaml:"origin"`
	RadiusKm        float64 `yaml:"radius_km"`
	MinZoom         uint8   `yaml:"min_zoom"`
	MaxZoom         uint8   `yaml:"max_zoom"`
	WorldScale      float64 `yaml:"world_scale"`      // world units per meter
	RetriggerMeters float64 `yaml:"retrigger_meters"` // movement that schedules a new run

	// Tile provider settings
	Source         string        `yaml:"source"` // predefined source name or base URL
	TileFormat     string        `yaml:"tile_format"`
	AccessToken    string        `yaml:"access_token"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`

	// Cache settings
	CacheCapacity int           `yaml:"cache_capacity"`
	EvictionBatch int           `yaml:"eviction_batch"`
	CachePolicy   string        `yaml:"cache_policy"` // fifo or lru
	BlobCache     string        `yaml:"blob_cache"`   // none, file or redis
	CacheDir      string        `yaml:"cache_dir"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisTTL      time.Duration `yaml:"redis_ttl"`

	// Feature settings
	StyleFile      string `yaml:"style_file"`      // YAML include/exclude rules and road widths
	ClassifierFile string `yaml:"classifier_file"` // Lua script defining tileworld.classify

	// Output settings
	ParquetFile   string `yaml:"parquet_file"`
	Postgres      bool   `yaml:"postgres"`
	DBHost        string `yaml:"db_host"`
	DBPort        int    `yaml:"db_port"`
	DBName        string `yaml:"db_name"`
	DBUser        string `yaml:"db_user"`
	DBPassword    string `yaml:"db_password"`
	DBSchema      string `yaml:"db_schema"`
	DBTable       string `yaml:"db_table"`
	DropExisting  bool   `yaml:"drop_existing"`
	CopyBatchSize int    `yaml:"copy_batch_size"`

	// Logging and metrics
	Verbose         bool          `yaml:"verbose"`
	LogFile         string        `yaml:"log_file"`         // empty = no file logging
	MetricsInterval time.Duration `yaml:"metrics_interval"` // system metrics logging interval
	MetricsAddr     string        `yaml:"metrics_addr"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		RadiusKm:        1.0,
		MinZoom:         14,
		MaxZoom:         14,
		WorldScale:      geo.DefaultWorldScale,
		RetriggerMeters: 100,

		Source:         "mapbox-streets",
		TileFormat:     "mvt",
		RequestTimeout: 30 * time.Second,

		CacheCapacity: 1000,
		EvictionBatch: 200,
		CachePolicy:   "fifo",
		BlobCache:     "none",
		CacheDir:      "./tile_cache",
		RedisAddr:     "localhost:6379",
		RedisTTL:      24 * time.Hour,

		DBHost:        "localhost",
		DBPort:        5432,
		DBName:        "tileworld",
		DBUser:        "postgres",
		DBSchema:      "public",
		DBTable:       "world_entities",
		CopyBatchSize: 10000,

		MetricsInterval: 30 * time.Second,
		MetricsAddr:     ":9090",
	}
}

// LoadFile reads a YAML config file over the defaults
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config data over the defaults
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// LoadEnvFiles loads .env style files into the process environment. Missing
// files are skipped; variables already set are not overwritten.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from TILEWORLD_* environment variables
func (c *Config) ApplyEnv() error {
	if v := getenv("ORIGIN"); v != "" {
		o, err := ParseOrigin(v)
		if err != nil {
			return fmt.Errorf("%sORIGIN: %w", EnvPrefix, err)
		}
		c.Origin = o
	}
	c.AccessToken = getstring("ACCESS_TOKEN", c.AccessToken)
	c.Source = getstring("SOURCE", c.Source)
	c.RadiusKm = getfloat("RADIUS_KM", c.RadiusKm)
	c.MinZoom = uint8(getint("MIN_ZOOM", int(c.MinZoom)))
	c.MaxZoom = uint8(getint("MAX_ZOOM", int(c.MaxZoom)))
	c.WorldScale = getfloat("WORLD_SCALE", c.WorldScale)
	c.CachePolicy = getstring("CACHE_POLICY", c.CachePolicy)
	c.BlobCache = getstring("BLOB_CACHE", c.BlobCache)
	c.RedisAddr = getstring("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getstring("REDIS_PASSWORD", c.RedisPassword)
	c.RedisTTL = getduration("REDIS_TTL", c.RedisTTL)
	c.DBPassword = getstring("DB_PASSWORD", c.DBPassword)
	c.LogFile = getstring("LOG_FILE", c.LogFile)
	c.MetricsAddr = getstring("METRICS_ADDR", c.MetricsAddr)
	return nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser,
	)
	if c.DBPassword != "" {
		connStr += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	return connStr
}

// Validate checks that the configuration can drive a generation run. The
// fatal errors are returned as ErrMissingAccessToken and ErrOriginNotSet.
func (c *Config) Validate() error {
	if c.AccessToken == "" {
		return ErrMissingAccessToken
	}
	if _, err := c.Origin.Point(); err != nil {
		return err
	}
	return c.ValidateTiles()
}

// ValidateTiles checks everything except the credential and origin
func (c *Config) ValidateTiles() error {
	if !(c.RadiusKm > 0) || c.RadiusKm > MaxRadiusKm {
		return fmt.Errorf("radius must be in (0, %g] km, got %g", MaxRadiusKm, c.RadiusKm)
	}
	if c.MaxZoom > geo.MaxZoom {
		return fmt.Errorf("max zoom must be at most %d", geo.MaxZoom)
	}
	if c.MinZoom > c.MaxZoom {
		return fmt.Errorf("min zoom (%d) must be <= max zoom (%d)", c.MinZoom, c.MaxZoom)
	}
	if !(c.WorldScale > 0) || math.IsInf(c.WorldScale, 1) {
		return fmt.Errorf("world scale must be a positive number")
	}
	if c.CacheCapacity < 1 {
		return fmt.Errorf("cache capacity must be at least 1")
	}
	if c.EvictionBatch < 1 {
		return fmt.Errorf("eviction batch must be at least 1")
	}
	switch c.CachePolicy {
	case "fifo", "lru":
	default:
		return fmt.Errorf("unknown cache policy %q", c.CachePolicy)
	}
	switch c.BlobCache {
	case "none", "file", "redis":
	default:
		return fmt.Errorf("unknown blob cache %q", c.BlobCache)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	return nil
}

func getenv(k string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + k))
}

func getstring(k, def string) string {
	if v := getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
