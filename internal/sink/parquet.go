package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/wegman-software/tileworld-go/internal/features"
	"github.com/wegman-software/tileworld-go/internal/wkb"
)

// EntitySchema is the column layout of the Parquet output. geom_wkb is plain
// WKB in world units (x = X, y = Z).
var EntitySchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Uint64, Nullable: false},
	{Name: "kind", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "x", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	{Name: "z", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	{Name: "min_x", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	{Name: "min_z", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	{Name: "max_x", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	{Name: "max_z", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	{Name: "width", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	{Name: "height", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	{Name: "source_tile", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "properties", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "geom_wkb", Type: arrow.BinaryTypes.Binary, Nullable: true},
}, nil)

// Parquet writes entities to a Zstd-compressed Parquet file in batches
type Parquet struct {
	mu        sync.Mutex
	file      *os.File
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	enc       *wkb.Encoder
	batchSize int
	count     int
	written   int64
	closed    bool
}

// NewParquet creates the file at path
func NewParquet(path string, batchSize int) (*Parquet, error) {
	if batchSize < 1 {
		batchSize = 10000
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)

	writer, err := pqarrow.NewFileWriter(EntitySchema, f, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Parquet{
		file:      f,
		writer:    writer,
		builder:   array.NewRecordBuilder(memory.DefaultAllocator, EntitySchema),
		enc:       wkb.NewEncoderWithSRID(256, wkb.SRIDNone),
		batchSize: batchSize,
	}, nil
}

// Write implements Writer
func (w *Parquet) Write(ctx context.Context, e features.Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("parquet writer is closed")
	}

	b := w.builder
	b.Field(0).(*array.Uint64Builder).Append(uint64(e.ID))
	b.Field(1).(*array.StringBuilder).Append(e.Kind.String())
	b.Field(2).(*array.Float64Builder).Append(e.Position.X)
	b.Field(3).(*array.Float64Builder).Append(e.Position.Z)
	b.Field(4).(*array.Float64Builder).Append(e.Bounds.Min[0])
	b.Field(5).(*array.Float64Builder).Append(e.Bounds.Min[1])
	b.Field(6).(*array.Float64Builder).Append(e.Bounds.Max[0])
	b.Field(7).(*array.Float64Builder).Append(e.Bounds.Max[1])
	b.Field(8).(*array.Float64Builder).Append(e.Width)
	b.Field(9).(*array.Float64Builder).Append(e.Height)
	b.Field(10).(*array.StringBuilder).Append(e.SourceTile.String())
	b.Field(11).(*array.StringBuilder).Append(PropertiesJSON(e.Properties))

	geomBuilder := b.Field(12).(*array.BinaryBuilder)
	var geom []byte
	if e.Feature != nil {
		if g := WorldGeometry(e.Feature); g != nil {
			geom, _ = w.enc.Encode(g)
		}
	}
	if geom == nil {
		geomBuilder.AppendNull()
	} else {
		geomBuilder.Append(geom)
	}

	w.count++
	w.written++
	if w.count >= w.batchSize {
		return w.flush()
	}
	return nil
}

// Written returns the number of entities written
func (w *Parquet) Written() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

func (w *Parquet) flush() error {
	if w.count == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	err := w.writer.Write(rec)
	w.count = 0
	return err
}

// Close flushes and closes the file
func (w *Parquet) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	defer w.builder.Release()

	if err := w.flush(); err != nil {
		w.file.Close()
		return err
	}
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return err
	}
	// the parquet writer may already have closed the file
	if err := w.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}
