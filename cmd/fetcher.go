package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wegman-software/tileworld-go/internal/config"
	"github.com/wegman-software/tileworld-go/internal/logger"
	"github.com/wegman-software/tileworld-go/internal/tilecache"
)

// buildSource resolves the configured tile source with its token
func buildSource(c *config.Config) (*tilecache.Source, error) {
	src, err := tilecache.ParseSource(c.Source, c.TileFormat)
	if err != nil {
		return nil, err
	}
	return src.WithToken(c.AccessToken), nil
}

// buildFetcher wires the memory cache, the optional blob tier and the HTTP
// transport. The returned close func releases the blob tier.
func buildFetcher(ctx context.Context, c *config.Config) (*tilecache.Fetcher, func(), error) {
	log := logger.Named("tilecache")

	src, err := buildSource(c)
	if err != nil {
		return nil, nil, err
	}

	store, err := tilecache.NewStore(c.CachePolicy, c.CacheCapacity, c.EvictionBatch)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create tile cache: %w", err)
	}

	opts := []tilecache.FetcherOption{
		tilecache.WithStore(store),
		tilecache.WithLogger(log),
	}
	closeFn := func() {}

	switch c.BlobCache {
	case "file":
		fs, err := tilecache.NewFileStore(c.CacheDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create file cache: %w", err)
		}
		opts = append(opts, tilecache.WithBlobStore(fs))
		closeFn = func() { _ = fs.Close() }
		log.Info("Using file blob cache", zap.String("dir", c.CacheDir))
	case "redis":
		rs, err := tilecache.NewRedisStore(ctx, c.RedisAddr, src, c.RedisTTL,
			tilecache.WithRedisPassword(c.RedisPassword),
			tilecache.WithRedisDB(c.RedisDB))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		opts = append(opts, tilecache.WithBlobStore(rs))
		closeFn = func() { _ = rs.Close() }
		log.Info("Using redis blob cache", zap.String("addr", c.RedisAddr), zap.Duration("ttl", c.RedisTTL))
	}

	tr := tilecache.NewHTTPTransport(c.RequestTimeout, c.MaxRetries)
	return tilecache.NewFetcher(src, tr, opts...), closeFn, nil
}
