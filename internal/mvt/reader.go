package mvt

import (
	"encoding/binary"
	"math"
)

// Protobuf wire types
const (
	wireVarint  = 0
	wireFixed64 = 1
	wireBytes   = 2
	wireFixed32 = 5
)

// maxVarintLen is the longest valid encoding of a 64-bit varint
const maxVarintLen = 10

// Length limits for length-delimited fields, always further clamped to the
// bytes remaining in the buffer
const (
	maxLayerBytes    = 1_000_000
	maxGeometryBytes = 100_000
	maxTagBytes      = 10_000
)

// reader is a cursor over one protobuf message. Every read returns ok=false
// when it had to recover, and records the recovery in diag.
type reader struct {
	buf  []byte
	pos  int
	diag *Diagnostics
}

func newReader(buf []byte, diag *Diagnostics) *reader {
	return &reader{buf: buf, diag: diag}
}

func (r *reader) done() bool {
	return r.pos >= len(r.buf)
}

func (r *reader) remaining() int {
	return len(r.buf) - r.pos
}

// varint reads a base-128 varint. An unterminated or over-long varint yields 0.
func (r *reader) varint() (uint64, bool) {
	var v uint64
	for i := 0; i < maxVarintLen; i++ {
		if r.pos >= len(r.buf) {
			r.diag.BadVarints++
			return 0, false
		}
		b := r.buf[r.pos]
		r.pos++
		v |= uint64(b&0x7f) << (7 * uint(i))
		if b < 0x80 {
			return v, true
		}
	}
	r.diag.BadVarints++
	return 0, false
}

// tag reads a field key. ok is false when no further fields can be read.
func (r *reader) tag() (field uint32, wire uint8, ok bool) {
	v, ok := r.varint()
	if !ok {
		return 0, 0, false
	}
	field = uint32(v >> 3)
	if field == 0 {
		return 0, 0, false
	}
	return field, uint8(v & 0x7), true
}

// fixed reads n little-endian bytes; a short buffer jumps to the end
func (r *reader) fixed(n int) ([]byte, bool) {
	if r.remaining() < n {
		r.diag.TruncatedFields++
		r.pos = len(r.buf)
		return nil, false
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, true
}

func (r *reader) fixed32() (uint32, bool) {
	b, ok := r.fixed(4)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

func (r *reader) fixed64() (uint64, bool) {
	b, ok := r.fixed(8)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b), true
}

func (r *reader) float32() (float32, bool) {
	v, ok := r.fixed32()
	return math.Float32frombits(v), ok
}

func (r *reader) float64() (float64, bool) {
	v, ok := r.fixed64()
	return math.Float64frombits(v), ok
}

// bytes reads a length-delimited field. The declared length is clamped to
// the remaining buffer; when limit > 0 at most limit bytes are returned. The
// cursor always ends at the declared end of the field (or the buffer end).
func (r *reader) bytes(limit int) ([]byte, bool) {
	n, ok := r.varint()
	if !ok {
		return nil, false
	}

	ok = true
	end := len(r.buf)
	if n <= uint64(r.remaining()) {
		end = r.pos + int(n)
	} else {
		r.diag.TruncatedFields++
		ok = false
	}

	readEnd := end
	if limit > 0 && readEnd-r.pos > limit {
		readEnd = r.pos + limit
		r.diag.ClampedFields++
		ok = false
	}

	b := r.buf[r.pos:readEnd]
	r.pos = end
	return b, ok
}

// skip advances past a field of the given wire type. It returns false for
// wire types whose length cannot be known; the caller must stop reading.
func (r *reader) skip(wire uint8) bool {
	switch wire {
	case wireVarint:
		r.varint()
	case wireFixed64:
		r.fixed(8)
	case wireBytes:
		r.bytes(0)
	case wireFixed32:
		r.fixed(4)
	default:
		r.diag.UnknownWireTypes++
		r.pos = len(r.buf)
		return false
	}
	return true
}

// packedVarints reads a packed run of varints, or a single varint when the
// field was written unpacked
func (r *reader) packedVarints(wire uint8, limit int, dst []uint64) []uint64 {
	switch wire {
	case wireBytes:
		b, _ := r.bytes(limit)
		sub := newReader(b, r.diag)
		for !sub.done() {
			v, ok := sub.varint()
			if !ok {
				break
			}
			dst = append(dst, v)
		}
	case wireVarint:
		if v, ok := r.varint(); ok {
			dst = append(dst, v)
		}
	default:
		r.skip(wire)
	}
	return dst
}

// ZigZag encodes a signed integer so small magnitudes stay small
func ZigZag(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

// UnZigZag reverses ZigZag
func UnZigZag(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}
