package sink

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wegman-software/tileworld-go/internal/config"
	"github.com/wegman-software/tileworld-go/internal/features"
	"github.com/wegman-software/tileworld-go/internal/geo"
	"github.com/wegman-software/tileworld-go/internal/logger"
	"github.com/wegman-software/tileworld-go/internal/wkb"
)

// entityColumns is the COPY column order
var entityColumns = []string{"entity_id", "kind", "source_tile", "x", "z", "width", "height", "properties", "geom"}

// Postgres streams entities into a PostGIS table with COPY. Geometries are
// stored as EWKB in EPSG:4326, converted back from world units through the
// run's projector.
type Postgres struct {
	pool   *pgxpool.Pool
	schema string
	table  string
	drop   bool
	proj   *geo.Projector
	log    *zap.Logger

	encMu sync.Mutex
	enc   *wkb.Encoder

	rows    chan []interface{}
	done    chan struct{}
	copyErr error
	loaded  atomic.Int64
	started atomic.Bool
	once    sync.Once
}

// NewPostgres connects using cfg's database settings
func NewPostgres(ctx context.Context, cfg *config.Config, proj *geo.Projector) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	buf := cfg.CopyBatchSize
	if buf < 1 {
		buf = 10000
	}
	return &Postgres{
		pool:   pool,
		schema: cfg.DBSchema,
		table:  cfg.DBTable,
		drop:   cfg.DropExisting,
		proj:   proj,
		log:    logger.Named("postgres"),
		enc:    wkb.NewEncoderWithSRID(256, wkb.SRID4326),
		rows:   make(chan []interface{}, buf),
		done:   make(chan struct{}),
	}, nil
}

func (p *Postgres) fullTableName() string {
	return pgx.Identifier{p.schema, p.table}.Sanitize()
}

// EnsureSchema creates the PostGIS extension and schema if needed
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		return fmt.Errorf("failed to create PostGIS extension: %w", err)
	}
	if p.schema != "public" {
		sql := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{p.schema}.Sanitize())
		if _, err := p.pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// PrepareTable creates the entity table, dropping or truncating what exists
func (p *Postgres) PrepareTable(ctx context.Context) error {
	for _, sql := range prepareSQL(p.fullTableName(), p.drop) {
		if _, err := p.pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("failed to prepare table: %w", err)
		}
	}
	return nil
}

func prepareSQL(table string, drop bool) []string {
	var stmts []string
	if drop {
		stmts = append(stmts, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table))
	}
	stmts = append(stmts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	entity_id BIGINT NOT NULL,
	kind TEXT NOT NULL,
	source_tile TEXT NOT NULL,
	x DOUBLE PRECISION NOT NULL,
	z DOUBLE PRECISION NOT NULL,
	width DOUBLE PRECISION,
	height DOUBLE PRECISION,
	properties JSONB,
	geom GEOMETRY(Geometry, %d)
)`, table, wkb.SRID4326))
	if !drop {
		stmts = append(stmts, fmt.Sprintf("TRUNCATE %s", table))
	}
	return stmts
}

func indexSQL(table, name string) []string {
	return []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (geom)", pgx.Identifier{name + "_geom_idx"}.Sanitize(), table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (entity_id)", pgx.Identifier{name + "_id_idx"}.Sanitize(), table),
		fmt.Sprintf("ANALYZE %s", table),
	}
}

// Start begins the COPY stream. Rows queue in the buffer until then.
func (p *Postgres) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(p.done)
		conn, err := p.pool.Acquire(ctx)
		if err != nil {
			p.copyErr = fmt.Errorf("failed to acquire connection: %w", err)
			p.drain()
			return
		}
		defer conn.Release()

		n, err := conn.Conn().CopyFrom(ctx, pgx.Identifier{p.schema, p.table}, entityColumns, &rowSource{rows: p.rows})
		if err != nil {
			p.copyErr = fmt.Errorf("COPY failed: %w", err)
			p.drain()
			return
		}
		p.log.Info("Entity load complete", zap.String("table", p.table), zap.Int64("rows", n))
	}()
}

// drain unblocks writers after a failed COPY
func (p *Postgres) drain() {
	for range p.rows {
	}
}

// Write implements Writer
func (p *Postgres) Write(ctx context.Context, e features.Entity) error {
	row, err := p.row(e)
	if err != nil {
		return err
	}
	select {
	case p.rows <- row:
		p.loaded.Add(1)
		return nil
	case <-p.done:
		if p.copyErr != nil {
			return p.copyErr
		}
		return fmt.Errorf("COPY stream closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// row builds the COPY values for e
func (p *Postgres) row(e features.Entity) ([]interface{}, error) {
	var geom []byte
	if e.Feature != nil && p.proj != nil {
		if g := GeoGeometry(e.Feature, p.proj); g != nil {
			p.encMu.Lock()
			b, err := p.enc.EncodeCopy(g)
			p.encMu.Unlock()
			if err != nil {
				return nil, fmt.Errorf("encode geometry: %w", err)
			}
			geom = b
		}
	}
	var height interface{}
	if e.Height > 0 {
		height = e.Height
	}
	return []interface{}{
		int64(e.ID),
		e.Kind.String(),
		e.SourceTile.String(),
		e.Position.X,
		e.Position.Z,
		e.Width,
		height,
		PropertiesJSON(e.Properties),
		geom,
	}, nil
}

// Loaded returns the number of rows handed to COPY
func (p *Postgres) Loaded() int64 {
	return p.loaded.Load()
}

// Close ends the COPY stream, builds indexes and closes the pool
func (p *Postgres) Close() error {
	var err error
	p.once.Do(func() {
		defer p.pool.Close()
		close(p.rows)
		if !p.started.Load() {
			return
		}
		<-p.done
		if p.copyErr != nil {
			err = p.copyErr
			return
		}

		ctx := context.Background()
		p.log.Info("Creating indexes", zap.String("table", p.table))
		for _, sql := range indexSQL(p.fullTableName(), p.table) {
			if _, e := p.pool.Exec(ctx, sql); e != nil {
				err = fmt.Errorf("failed to create indexes: %w", e)
				return
			}
		}
	})
	return err
}

// rowSource implements pgx.CopyFromSource for streaming rows from a channel
type rowSource struct {
	rows    <-chan []interface{}
	current []interface{}
}

func (r *rowSource) Next() bool {
	row, ok := <-r.rows
	if !ok {
		return false
	}
	r.current = row
	return true
}

func (r *rowSource) Values() ([]interface{}, error) {
	return r.current, nil
}

func (r *rowSource) Err() error {
	return nil
}
