package wkb

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestEncodePoint(t *testing.T) {
	tests := []struct {
		name string
		srid int
		want string
	}{
		// POINT(1 2)
		{"wkb", SRIDNone, "0101000000000000000000f03f0000000000000040"},
		// SRID=4326;POINT(1 2)
		{"ewkb", SRID4326, "0101000020e6100000000000000000f03f0000000000000040"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEncoderWithSRID(32, tt.srid)
			b, err := e.Encode(orb.Point{1, 2})
			if err != nil {
				t.Fatal(err)
			}
			if got := hex.EncodeToString(b); got != tt.want {
				t.Errorf("Encode(POINT(1 2)) = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEncodeLineString(t *testing.T) {
	e := NewEncoder(0)
	b, err := e.Encode(orb.LineString{{0, 0}, {1, 1}, {2, 0}})
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 1+4+4+4+3*16 {
		t.Fatalf("len = %d, want %d", len(b), 1+4+4+4+3*16)
	}
	if typ := binary.LittleEndian.Uint32(b[1:5]); typ != wkbLineString|wkbSRIDFlag {
		t.Errorf("type = %#x", typ)
	}
	if srid := binary.LittleEndian.Uint32(b[5:9]); srid != SRID4326 {
		t.Errorf("srid = %d, want 4326", srid)
	}
	if n := binary.LittleEndian.Uint32(b[9:13]); n != 3 {
		t.Errorf("points = %d, want 3", n)
	}
	if x := math.Float64frombits(binary.LittleEndian.Uint64(b[13+32:])); x != 2 {
		t.Errorf("last x = %v, want 2", x)
	}
}

func TestEncodePolygonClosesRings(t *testing.T) {
	e := NewEncoderWithSRID(0, SRIDNone)
	open := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}}}
	b, err := e.EncodeCopy(open)
	if err != nil {
		t.Fatal(err)
	}
	closed := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}
	b2, err := e.Encode(closed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, b2) {
		t.Errorf("open and closed rings encode differently")
	}
	// 1 ring of 4 points
	if rings := binary.LittleEndian.Uint32(b[5:9]); rings != 1 {
		t.Errorf("rings = %d, want 1", rings)
	}
	if pts := binary.LittleEndian.Uint32(b[9:13]); pts != 4 {
		t.Errorf("ring points = %d, want 4", pts)
	}
}

func TestEncodeMultiOnlyTopLevelHasSRID(t *testing.T) {
	e := NewEncoder(0)
	b, err := e.Encode(orb.MultiPoint{{1, 2}, {3, 4}})
	if err != nil {
		t.Fatal(err)
	}
	// header(9) + count(4) + 2 * (1 + 4 + 16)
	if len(b) != 9+4+2*21 {
		t.Fatalf("len = %d, want %d", len(b), 9+4+2*21)
	}
	if typ := binary.LittleEndian.Uint32(b[14:18]); typ != wkbPoint {
		t.Errorf("member type = %#x, want plain point", typ)
	}
}

func TestEncodeCopyDoesNotAlias(t *testing.T) {
	e := NewEncoder(64)
	a, _ := e.EncodeCopy(orb.Point{1, 1})
	_, _ = e.Encode(orb.Point{2, 2})
	want, _ := NewEncoder(64).Encode(orb.Point{1, 1})
	if !bytes.Equal(a, want) {
		t.Error("EncodeCopy result changed after a later Encode")
	}
}

func TestEncodeNil(t *testing.T) {
	if _, err := NewEncoder(0).Encode(nil); err == nil {
		t.Error("Encode(nil) error = nil")
	}
}
