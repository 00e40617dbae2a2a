// Package wkb encodes orb geometries as little-endian WKB, or as PostGIS
// EWKB when an SRID is set.
package wkb

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// WKB type constants (ISO SQL/MM)
const (
	wkbPoint           = 1
	wkbLineString      = 2
	wkbPolygon         = 3
	wkbMultiPoint      = 4
	wkbMultiLineString = 5
	wkbMultiPolygon    = 6

	// SRID flag for EWKB (PostGIS extended WKB)
	wkbSRIDFlag = 0x20000000
)

// Common SRID constants
const (
	SRIDNone = 0    // plain WKB, no SRID
	SRID4326 = 4326 // WGS84
	SRID3857 = 3857 // Web Mercator
)

// Encoder encodes geometries into a reusable buffer. The returned slices
// alias the buffer until the next call.
type Encoder struct {
	buf  []byte
	srid uint32
}

// NewEncoder creates an encoder writing EWKB with SRID 4326
func NewEncoder(initialSize int) *Encoder {
	return NewEncoderWithSRID(initialSize, SRID4326)
}

// NewEncoderWithSRID creates an encoder for srid; SRIDNone writes plain WKB
func NewEncoderWithSRID(initialSize int, srid int) *Encoder {
	return &Encoder{
		buf:  make([]byte, 0, initialSize),
		srid: uint32(srid),
	}
}

// SRID returns the encoder's SRID
func (e *Encoder) SRID() int {
	return int(e.srid)
}

// Reset clears the buffer for reuse
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// Bytes returns the last encoded geometry
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Encode encodes g. Only the top-level geometry carries the SRID.
func (e *Encoder) Encode(g orb.Geometry) ([]byte, error) {
	e.Reset()
	if g == nil {
		return nil, fmt.Errorf("nil geometry")
	}
	e.ensureCapacity(9 + 16*pointCount(g))
	if err := e.geometry(g, true); err != nil {
		return nil, err
	}
	return e.buf, nil
}

// EncodeCopy encodes g into a fresh slice
func (e *Encoder) EncodeCopy(g orb.Geometry) ([]byte, error) {
	b, err := e.Encode(g)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (e *Encoder) geometry(g orb.Geometry, top bool) error {
	switch g := g.(type) {
	case orb.Point:
		e.header(wkbPoint, top)
		e.point(g)
	case orb.MultiPoint:
		e.header(wkbMultiPoint, top)
		e.appendUint32(uint32(len(g)))
		for _, p := range g {
			e.header(wkbPoint, false)
			e.point(p)
		}
	case orb.LineString:
		e.header(wkbLineString, top)
		e.points(g)
	case orb.MultiLineString:
		e.header(wkbMultiLineString, top)
		e.appendUint32(uint32(len(g)))
		for _, ls := range g {
			e.header(wkbLineString, false)
			e.points(ls)
		}
	case orb.Ring:
		return e.geometry(orb.Polygon{g}, top)
	case orb.Polygon:
		e.header(wkbPolygon, top)
		e.polygon(g)
	case orb.MultiPolygon:
		e.header(wkbMultiPolygon, top)
		e.appendUint32(uint32(len(g)))
		for _, p := range g {
			e.header(wkbPolygon, false)
			e.polygon(p)
		}
	default:
		return fmt.Errorf("unsupported geometry %s", g.GeoJSONType())
	}
	return nil
}

// header writes byte order, type and, at the top level, the SRID
func (e *Encoder) header(typ uint32, top bool) {
	e.buf = append(e.buf, 0x01)
	if top && e.srid != SRIDNone {
		e.appendUint32(typ | wkbSRIDFlag)
		e.appendUint32(e.srid)
		return
	}
	e.appendUint32(typ)
}

func (e *Encoder) point(p orb.Point) {
	e.appendFloat64(p[0])
	e.appendFloat64(p[1])
}

func (e *Encoder) points(ps []orb.Point) {
	e.appendUint32(uint32(len(ps)))
	for _, p := range ps {
		e.point(p)
	}
}

// polygon writes rings closed, as WKB requires
func (e *Encoder) polygon(p orb.Polygon) {
	e.appendUint32(uint32(len(p)))
	for _, r := range p {
		closed := len(r) > 0 && !r.Closed()
		n := len(r)
		if closed {
			n++
		}
		e.appendUint32(uint32(n))
		for _, pt := range r {
			e.point(pt)
		}
		if closed {
			e.point(r[0])
		}
	}
}

func pointCount(g orb.Geometry) int {
	switch g := g.(type) {
	case orb.Point:
		return 1
	case orb.MultiPoint:
		return len(g)
	case orb.LineString:
		return len(g)
	case orb.MultiLineString:
		n := 0
		for _, ls := range g {
			n += len(ls)
		}
		return n
	case orb.Ring:
		return len(g) + 1
	case orb.Polygon:
		n := 0
		for _, r := range g {
			n += len(r) + 1
		}
		return n
	case orb.MultiPolygon:
		n := 0
		for _, p := range g {
			n += pointCount(p)
		}
		return n
	}
	return 0
}

func (e *Encoder) ensureCapacity(n int) {
	if cap(e.buf)-len(e.buf) < n {
		newBuf := make([]byte, len(e.buf), len(e.buf)+n)
		copy(newBuf, e.buf)
		e.buf = newBuf
	}
}

func (e *Encoder) appendUint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) appendFloat64(v float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
}
