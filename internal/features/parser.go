package features

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/wegman-software/tileworld-go/internal/geo"
	"github.com/wegman-software/tileworld-go/internal/logger"
	"github.com/wegman-software/tileworld-go/internal/mvt"
	"github.com/wegman-software/tileworld-go/internal/style"
)

// Per-feature rejection reasons
var (
	ErrEmptyGeometry = errors.New("feature has no geometry")
	ErrDegenerate    = errors.New("feature has too few distinct points")
	ErrNonFinite     = errors.New("feature has a non-finite coordinate")
)

// Result summarizes one Parse call
type Result struct {
	Features []WorldFeature
	Total    int // features offered
	Success  int // features converted
	Errors   int // features rejected
	Filtered int // features dropped by the style filter
	// FirstError is the first rejection, for logging
	FirstError error
}

// SuccessRate returns Success/Total as a percentage
func (r Result) SuccessRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Success) / float64(r.Total) * 100
}

// Parser converts tile-local features to world features
type Parser struct {
	proj   *geo.Projector
	widths *WidthTable
	style  *style.Config
	logger *zap.Logger
}

// ParserOption configures a Parser
type ParserOption func(*Parser)

// WithStyle applies the style file's filters and road widths
func WithStyle(cfg *style.Config) ParserOption {
	return func(p *Parser) {
		p.style = cfg
		if cfg != nil {
			p.widths = NewWidthTable(cfg.RoadWidths, cfg.DefaultRoadWidth)
		}
	}
}

// WithParserLogger sets the logger
func WithParserLogger(l *zap.Logger) ParserOption {
	return func(p *Parser) { p.logger = l }
}

// NewParser creates a parser projecting through proj
func NewParser(proj *geo.Projector, opts ...ParserOption) *Parser {
	p := &Parser{proj: proj}
	for _, opt := range opts {
		opt(p)
	}
	if p.widths == nil {
		p.widths = NewWidthTable(nil, 0)
	}
	if p.logger == nil {
		p.logger = logger.Named("features")
	}
	return p
}

// Projector returns the projector used for conversion
func (p *Parser) Projector() *geo.Projector {
	return p.proj
}

// Parse converts raw features of one kind from one tile. A bad feature is
// counted and skipped; the batch always completes.
func (p *Parser) Parse(raw []*mvt.Feature, kind Kind, addr geo.TileAddress, extent uint32) Result {
	res := Result{Total: len(raw), Features: make([]WorldFeature, 0, len(raw))}
	if extent == 0 {
		extent = mvt.DefaultExtent
	}
	filter := p.style.FilterFor(kind.String())

	for _, f := range raw {
		if f == nil {
			res.Errors++
			if res.FirstError == nil {
				res.FirstError = ErrEmptyGeometry
			}
			continue
		}
		if filter.HasFilter() && !filter.Match(f.Properties) {
			res.Filtered++
			continue
		}

		wf, err := p.convert(f, kind, addr, extent)
		if err != nil {
			res.Errors++
			if res.FirstError == nil {
				res.FirstError = err
			}
			continue
		}
		res.Features = append(res.Features, wf)
		res.Success++
	}

	if res.Errors > 0 {
		p.logger.Debug("Rejected features",
			zap.String("tile", addr.String()),
			zap.String("kind", kind.String()),
			zap.Int("errors", res.Errors),
			zap.Int("total", res.Total),
			zap.Error(res.FirstError))
	}
	return res
}

// shapeFor picks the shape from the geometry type, falling back to the
// kind's natural shape
func shapeFor(kind Kind, gt mvt.GeomType) Shape {
	if kind == KindRoad {
		return ShapeLine
	}
	switch gt {
	case mvt.GeomLineString:
		return ShapeLine
	case mvt.GeomPoint:
		return ShapePoint
	}
	return ShapePolygon
}

func (p *Parser) convert(f *mvt.Feature, kind Kind, addr geo.TileAddress, extent uint32) (WorldFeature, error) {
	if len(f.Geometry) == 0 {
		return WorldFeature{}, ErrEmptyGeometry
	}

	shape := shapeFor(kind, f.GeomType)
	if kind == KindRoad && f.GeomType == mvt.GeomPoint {
		return WorldFeature{}, fmt.Errorf("%w: road given as points", ErrDegenerate)
	}

	minPoints := 3
	switch shape {
	case ShapeLine:
		minPoints = 2
	case ShapePoint:
		minPoints = 1
	}

	ext := float64(extent)
	var rings [][]geo.WorldPoint
	for _, ring := range f.Geometry {
		pts := make([]geo.WorldPoint, 0, len(ring))
		for _, tp := range ring {
			w := p.proj.TileToWorld(addr, ext, float64(tp.X), float64(tp.Y))
			if !finite(w.X) || !finite(w.Z) {
				return WorldFeature{}, ErrNonFinite
			}
			pts = append(pts, w)
		}
		if shape != ShapePoint {
			pts = dedupe(pts)
		}
		if shape == ShapePolygon && len(pts) > 1 && pts[0] == pts[len(pts)-1] {
			pts = pts[:len(pts)-1]
		}
		if len(pts) < minPoints {
			continue
		}
		rings = append(rings, pts)
	}
	if len(rings) == 0 {
		return WorldFeature{}, ErrDegenerate
	}

	wf := WorldFeature{
		Kind:       kind,
		Shape:      shape,
		Points:     rings[0],
		Rings:      rings,
		Properties: f.Properties,
		SourceTile: addr,
		ID:         f.ID,
	}
	if kind == KindRoad {
		wf.Width = p.widths.For(f.Properties)
	}
	return wf, nil
}

// dedupe drops consecutive duplicate points
func dedupe(pts []geo.WorldPoint) []geo.WorldPoint {
	if len(pts) < 2 {
		return pts
	}
	out := pts[:1]
	for _, pt := range pts[1:] {
		if pt != out[len(out)-1] {
			out = append(out, pt)
		}
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
