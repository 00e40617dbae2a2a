// Package sink holds the entity creators a generator hands world features
// to: an in-memory registry, a spatially indexed wrapper, and writers that
// persist entities to Parquet or PostGIS.
package sink

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/wegman-software/tileworld-go/internal/features"
	"github.com/wegman-software/tileworld-go/internal/logger"
)

// Creator creates one entity per world feature
type Creator interface {
	CreateEntity(ctx context.Context, f *features.WorldFeature) (features.EntityID, error)
}

// Writer persists created entities
type Writer interface {
	Write(ctx context.Context, e features.Entity) error
	Close() error
}

// Multi creates entities through a primary creator and copies every created
// entity to the writers. A writer failure fails the entity.
type Multi struct {
	primary Creator
	writers []Writer
	log     *zap.Logger
}

// NewMulti creates a fan-out creator
func NewMulti(primary Creator, writers ...Writer) *Multi {
	return &Multi{primary: primary, writers: writers, log: logger.Named("sink")}
}

// CreateEntity implements Creator
func (m *Multi) CreateEntity(ctx context.Context, f *features.WorldFeature) (features.EntityID, error) {
	id, err := m.primary.CreateEntity(ctx, f)
	if err != nil {
		return 0, err
	}
	e := features.NewEntity(id, f)
	for _, w := range m.writers {
		if err := w.Write(ctx, e); err != nil {
			m.log.Debug("Entity write failed", zap.String("id", id.String()), zap.Error(err))
			return id, fmt.Errorf("write entity %s: %w", id, err)
		}
	}
	return id, nil
}

// Close closes every writer, returning the joined errors
func (m *Multi) Close() error {
	var errs []error
	for _, w := range m.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
