package tilecache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/wegman-software/tileworld-go/internal/geo"
)

// BlobStore persists raw tile bytes between runs. A miss is (nil, false, nil).
type BlobStore interface {
	Get(ctx context.Context, addr geo.TileAddress) ([]byte, bool, error)
	Put(ctx context.Context, addr geo.TileAddress, data []byte) error
	Close() error
}

// FileStore keeps tiles as {dir}/{z}/{x}/{y}.pbf
type FileStore struct {
	dir string
}

// NewFileStore creates the cache directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns where a tile is cached
func (s *FileStore) Path(addr geo.TileAddress) string {
	return filepath.Join(s.dir,
		strconv.Itoa(int(addr.Z)),
		strconv.FormatUint(uint64(addr.X), 10),
		strconv.FormatUint(uint64(addr.Y), 10)+".pbf")
}

func (s *FileStore) Get(_ context.Context, addr geo.TileAddress) ([]byte, bool, error) {
	data, err := os.ReadFile(s.Path(addr))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached tile: %w", err)
	}
	return data, true, nil
}

// Put writes to a temp file and renames it into place
func (s *FileStore) Put(_ context.Context, addr geo.TileAddress, data []byte) error {
	path := s.Path(addr)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// RedisOption tweaks the redis client options
type RedisOption func(*redis.Options)

func WithRedisPassword(pw string) RedisOption {
	return func(o *redis.Options) { o.Password = pw }
}

func WithRedisDB(db int) RedisOption {
	return func(o *redis.Options) { o.DB = db }
}

func WithRedisDialTimeout(d time.Duration) RedisOption {
	return func(o *redis.Options) { o.DialTimeout = d }
}

// RedisStore keeps tiles in Redis under a key namespaced by tile source
type RedisStore struct {
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
}

// NewRedisStore connects and pings. ttl 0 keeps tiles forever.
func NewRedisStore(ctx context.Context, addr string, source *Source, ttl time.Duration, opts ...RedisOption) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     16,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ns := "default"
	if source != nil {
		ns = strconv.FormatUint(xxhash.Sum64String(source.BaseURL+"|"+source.Format), 16)
	}
	return &RedisStore{rdb: rdb, ttl: ttl, namespace: ns}, nil
}

// Key returns the redis key of a tile
func (s *RedisStore) Key(addr geo.TileAddress) string {
	return "tileworld:tile:" + s.namespace + ":" + addr.String()
}

func (s *RedisStore) Get(ctx context.Context, addr geo.TileAddress) ([]byte, bool, error) {
	data, err := s.rdb.Get(ctx, s.Key(addr)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis GET %q: %w", s.Key(addr), err)
	}
	return data, true, nil
}

func (s *RedisStore) Put(ctx context.Context, addr geo.TileAddress, data []byte) error {
	if err := s.rdb.Set(ctx, s.Key(addr), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET %q: %w", s.Key(addr), err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if err := s.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
