package mvt

import (
	"encoding/binary"
	"math"
)

// Encoder writes tiles in the wire format Decode reads. Key and value tables
// are rebuilt from feature properties; Layer.Keys and Layer.Values are ignored.
type Encoder struct {
	buf []byte
}

// NewEncoder creates an encoder with a pre-allocated buffer
func NewEncoder(initialSize int) *Encoder {
	return &Encoder{buf: make([]byte, 0, initialSize)}
}

// Reset clears the buffer for reuse
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// Bytes returns the encoded tile
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// EncodeTile encodes the layers as one tile. The returned slice is owned by
// the encoder until the next call.
func (e *Encoder) EncodeTile(layers ...*Layer) []byte {
	e.Reset()
	for _, l := range layers {
		e.buf = appendMessage(e.buf, tileLayerField, encodeLayer(l))
	}
	return e.buf
}

// EncodeTile is a convenience wrapper around a fresh Encoder
func EncodeTile(layers ...*Layer) []byte {
	e := NewEncoder(1024)
	out := e.EncodeTile(layers...)
	return append([]byte(nil), out...)
}

// valueTable assigns indexes to keys and values in first-seen order
type valueTable struct {
	keys     []string
	keyIdx   map[string]uint64
	values   []Value
	valueIdx map[Value]uint64
}

func newValueTable() *valueTable {
	return &valueTable{
		keyIdx:   make(map[string]uint64),
		valueIdx: make(map[Value]uint64),
	}
}

func (t *valueTable) key(k string) uint64 {
	if i, ok := t.keyIdx[k]; ok {
		return i
	}
	i := uint64(len(t.keys))
	t.keys = append(t.keys, k)
	t.keyIdx[k] = i
	return i
}

func (t *valueTable) value(v Value) uint64 {
	if i, ok := t.valueIdx[v]; ok {
		return i
	}
	i := uint64(len(t.values))
	t.values = append(t.values, v)
	t.valueIdx[v] = i
	return i
}

func encodeLayer(l *Layer) []byte {
	name := l.RawName
	if name == "" {
		name = l.Name
	}
	extent := l.Extent
	if extent == 0 {
		extent = DefaultExtent
	}
	version := l.Version
	if version == 0 {
		version = 2
	}

	table := newValueTable()
	var buf []byte
	buf = appendTag(buf, layerVersionField, wireVarint)
	buf = appendVarint(buf, uint64(version))
	buf = appendString(buf, layerNameField, name)

	for _, f := range l.Features {
		buf = appendMessage(buf, layerFeatureField, encodeFeature(f, table))
	}
	for _, k := range table.keys {
		buf = appendString(buf, layerKeyField, k)
	}
	for _, v := range table.values {
		buf = appendMessage(buf, layerValueField, encodeValue(v))
	}

	buf = appendTag(buf, layerExtentField, wireVarint)
	buf = appendVarint(buf, uint64(extent))
	return buf
}

func encodeFeature(f *Feature, table *valueTable) []byte {
	var buf []byte
	if f.ID != nil {
		buf = appendTag(buf, featureIDField, wireVarint)
		buf = appendVarint(buf, *f.ID)
	}

	if len(f.Properties) > 0 {
		tags := make([]uint64, 0, 2*len(f.Properties))
		for _, k := range f.Properties.Keys() {
			tags = append(tags, table.key(k), table.value(f.Properties[k]))
		}
		buf = appendPacked(buf, featureTagsField, tags)
	}

	buf = appendTag(buf, featureTypeField, wireVarint)
	buf = appendVarint(buf, uint64(f.GeomType))

	if cmds := EncodeGeometry(f.GeomType, f.Geometry); len(cmds) > 0 {
		buf = appendPacked(buf, featureGeometryField, cmds)
	}
	return buf
}

// EncodeGeometry converts absolute rings into a command stream. Polygon
// rings are written without their closing point and end with ClosePath.
func EncodeGeometry(gt GeomType, rings []Ring) []uint64 {
	var (
		cmds []uint64
		x, y int64
	)
	moveTo := func(p Point) {
		cmds = append(cmds, ZigZag(p.X-x), ZigZag(p.Y-y))
		x, y = p.X, p.Y
	}

	if gt == GeomPoint {
		var pts []Point
		for _, r := range rings {
			pts = append(pts, r...)
		}
		if len(pts) == 0 {
			return nil
		}
		cmds = append(cmds, uint64(Command(CmdMoveTo, uint32(len(pts)))))
		for _, p := range pts {
			moveTo(p)
		}
		return cmds
	}

	for _, r := range rings {
		if gt == GeomPolygon && r.Closed() {
			r = r[:len(r)-1]
		}
		if len(r) == 0 {
			continue
		}
		cmds = append(cmds, uint64(Command(CmdMoveTo, 1)))
		moveTo(r[0])
		if len(r) > 1 {
			cmds = append(cmds, uint64(Command(CmdLineTo, uint32(len(r)-1))))
			for _, p := range r[1:] {
				moveTo(p)
			}
		}
		if gt == GeomPolygon {
			cmds = append(cmds, uint64(Command(CmdClosePath, 1)))
		}
	}
	return cmds
}

func encodeValue(v Value) []byte {
	var buf []byte
	switch v.typ {
	case ValueString:
		buf = appendString(buf, valueStringField, v.s)
	case ValueFloat:
		buf = appendTag(buf, valueFloatField, wireFixed32)
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(v.f)))
	case ValueDouble:
		buf = appendTag(buf, valueDoubleField, wireFixed64)
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.f))
	case ValueInt:
		buf = appendTag(buf, valueIntField, wireVarint)
		buf = appendVarint(buf, uint64(v.i))
	case ValueUint:
		buf = appendTag(buf, valueUintField, wireVarint)
		buf = appendVarint(buf, v.u)
	case ValueSint:
		buf = appendTag(buf, valueSintField, wireVarint)
		buf = appendVarint(buf, ZigZag(v.i))
	case ValueBool:
		buf = appendTag(buf, valueBoolField, wireVarint)
		if v.b {
			buf = appendVarint(buf, 1)
		} else {
			buf = appendVarint(buf, 0)
		}
	}
	return buf
}

func appendVarint(buf []byte, v uint64) []byte {
	return binary.AppendUvarint(buf, v)
}

func appendTag(buf []byte, field uint32, wire uint8) []byte {
	return appendVarint(buf, uint64(field)<<3|uint64(wire))
}

func appendMessage(buf []byte, field uint32, msg []byte) []byte {
	buf = appendTag(buf, field, wireBytes)
	buf = appendVarint(buf, uint64(len(msg)))
	return append(buf, msg...)
}

func appendString(buf []byte, field uint32, s string) []byte {
	buf = appendTag(buf, field, wireBytes)
	buf = appendVarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func appendPacked(buf []byte, field uint32, vals []uint64) []byte {
	var packed []byte
	for _, v := range vals {
		packed = appendVarint(packed, v)
	}
	return appendMessage(buf, field, packed)
}
