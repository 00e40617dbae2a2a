// Package mvt decodes binary vector tiles without generated protobuf code.
//
// Decoding never fails: malformed fields are skipped, truncated or read as
// zero, and every such recovery is counted in the tile's Diagnostics so
// callers can tell a clean tile from a salvaged one.
package mvt

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// DefaultExtent is the layer extent used when a layer does not declare one
const DefaultExtent = 4096

// GeomType is the geometry type declared by a feature
type GeomType uint8

const (
	GeomUnknown    GeomType = 0
	GeomPoint      GeomType = 1
	GeomLineString GeomType = 2
	GeomPolygon    GeomType = 3
)

func (g GeomType) String() string {
	switch g {
	case GeomPoint:
		return "Point"
	case GeomLineString:
		return "LineString"
	case GeomPolygon:
		return "Polygon"
	default:
		return "Unknown"
	}
}

// LayerKind is the semantic class a layer or feature is mapped to
type LayerKind uint8

const (
	KindUnknown LayerKind = iota
	KindBuilding
	KindRoad
	KindLanduse
	KindWater
	KindTerrain
)

var layerKindNames = [...]string{"unknown", "building", "road", "landuse", "water", "terrain"}

func (k LayerKind) String() string {
	if int(k) < len(layerKindNames) {
		return layerKindNames[k]
	}
	return "unknown"
}

// ParseLayerKind maps a canonical kind name back to its LayerKind
func ParseLayerKind(s string) (LayerKind, bool) {
	for i, name := range layerKindNames {
		if name == s {
			return LayerKind(i), true
		}
	}
	return KindUnknown, false
}

// ValueType tags the variant held by a Value
type ValueType uint8

const (
	ValueNull ValueType = iota
	ValueString
	ValueFloat
	ValueDouble
	ValueInt
	ValueUint
	ValueSint
	ValueBool
)

// Value is a property value from a layer's value table
type Value struct {
	typ ValueType
	s   string
	f   float64
	i   int64
	u   uint64
	b   bool
}

func StringValue(s string) Value  { return Value{typ: ValueString, s: s} }
func FloatValue(f float32) Value  { return Value{typ: ValueFloat, f: float64(f)} }
func DoubleValue(f float64) Value { return Value{typ: ValueDouble, f: f} }
func IntValue(i int64) Value      { return Value{typ: ValueInt, i: i} }
func UintValue(u uint64) Value    { return Value{typ: ValueUint, u: u} }
func SintValue(i int64) Value     { return Value{typ: ValueSint, i: i} }
func BoolValue(b bool) Value      { return Value{typ: ValueBool, b: b} }

// Type returns the variant tag
func (v Value) Type() ValueType { return v.typ }

// IsNull reports whether the value carried no recognised variant
func (v Value) IsNull() bool { return v.typ == ValueNull }

// Str returns the string variant
func (v Value) Str() (string, bool) {
	return v.s, v.typ == ValueString
}

// Bool returns the bool variant
func (v Value) Bool() (bool, bool) {
	return v.b, v.typ == ValueBool
}

// Float64 returns any numeric variant as a float64. Numeric strings are
// accepted too since providers are inconsistent about typing heights.
func (v Value) Float64() (float64, bool) {
	switch v.typ {
	case ValueFloat, ValueDouble:
		return v.f, true
	case ValueInt, ValueSint:
		return float64(v.i), true
	case ValueUint:
		return float64(v.u), true
	case ValueString:
		f, err := strconv.ParseFloat(v.s, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Interface returns the value as a plain Go value (nil for null)
func (v Value) Interface() interface{} {
	switch v.typ {
	case ValueString:
		return v.s
	case ValueFloat, ValueDouble:
		return v.f
	case ValueInt, ValueSint:
		return v.i
	case ValueUint:
		return v.u
	case ValueBool:
		return v.b
	}
	return nil
}

func (v Value) String() string {
	switch v.typ {
	case ValueString:
		return v.s
	case ValueFloat, ValueDouble:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case ValueInt, ValueSint:
		return strconv.FormatInt(v.i, 10)
	case ValueUint:
		return strconv.FormatUint(v.u, 10)
	case ValueBool:
		return strconv.FormatBool(v.b)
	}
	return ""
}

// Properties maps property keys to values
type Properties map[string]Value

// Has reports whether key is present
func (p Properties) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// String returns the string form of a property, or "" when absent
func (p Properties) String(key string) string {
	if v, ok := p[key]; ok {
		return v.String()
	}
	return ""
}

// Map converts the properties into plain Go values
func (p Properties) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(p))
	for k, v := range p {
		out[k] = v.Interface()
	}
	return out
}

// Keys returns the property keys in sorted order
func (p Properties) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Point is an absolute tile-local coordinate
type Point struct {
	X, Y int64
}

// Ring is one geometry part: a polygon ring, a line, or a set of points.
// Rings closed by ClosePath repeat their first point at the end.
type Ring []Point

// Closed reports whether the ring ends on its first point
func (r Ring) Closed() bool {
	return len(r) > 1 && r[0] == r[len(r)-1]
}

// Feature is a decoded feature with absolute tile-local geometry
type Feature struct {
	ID         *uint64
	GeomType   GeomType
	Geometry   []Ring
	Properties Properties
	// Kind is the layer kind after property-based correction
	Kind LayerKind
}

// PointCount returns the number of points across all rings
func (f *Feature) PointCount() int {
	n := 0
	for _, r := range f.Geometry {
		n += len(r)
	}
	return n
}

// Layer is a decoded layer
type Layer struct {
	Name     string // normalized name
	RawName  string // name as found on the wire
	Kind     LayerKind
	Version  uint32
	Extent   uint32
	Keys     []string
	Values   []Value
	Features []*Feature
}

// Diagnostics counts recoveries made while decoding
type Diagnostics struct {
	BadVarints       int
	TruncatedFields  int
	ClampedFields    int
	UnknownWireTypes int
	BadTags          int
	BadCommands      int
}

// Total returns the number of recoveries of any kind
func (d Diagnostics) Total() int {
	return d.BadVarints + d.TruncatedFields + d.ClampedFields +
		d.UnknownWireTypes + d.BadTags + d.BadCommands
}

// Degraded reports whether any recovery happened
func (d Diagnostics) Degraded() bool {
	return d.Total() > 0
}

func (d Diagnostics) String() string {
	return fmt.Sprintf("varints=%d truncated=%d clamped=%d wiretypes=%d tags=%d commands=%d",
		d.BadVarints, d.TruncatedFields, d.ClampedFields, d.UnknownWireTypes, d.BadTags, d.BadCommands)
}

// Tile is a decoded tile: normalized layer name to layer
type Tile struct {
	Layers      map[string]*Layer
	Diagnostics Diagnostics
}

// NewTile returns an empty tile
func NewTile() *Tile {
	return &Tile{Layers: make(map[string]*Layer)}
}

// Empty reports whether the tile holds no layers
func (t *Tile) Empty() bool {
	return t == nil || len(t.Layers) == 0
}

// LayerNames returns the layer names in sorted order
func (t *Tile) LayerNames() []string {
	names := make([]string, 0, len(t.Layers))
	for name := range t.Layers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FeatureCount returns the number of features across all layers
func (t *Tile) FeatureCount() int {
	n := 0
	for _, l := range t.Layers {
		n += len(l.Features)
	}
	return n
}

// addLayer stores a layer under its normalized name, merging features into
// a layer already stored under the same name. Merged features are rescaled
// to the stored layer's extent. A layer with neither a name nor features is
// dropped.
func (t *Tile) addLayer(l *Layer) {
	if l.RawName == "" && len(l.Features) == 0 {
		return
	}
	existing, ok := t.Layers[l.Name]
	if !ok {
		t.Layers[l.Name] = l
		return
	}
	if l.Extent != existing.Extent {
		for _, f := range l.Features {
			f.rescale(existing.Extent, l.Extent)
		}
	}
	existing.Features = append(existing.Features, l.Features...)
}

// rescale maps the geometry from extent from onto extent to
func (f *Feature) rescale(to, from uint32) {
	if from == 0 || to == from {
		return
	}
	k := float64(to) / float64(from)
	for _, r := range f.Geometry {
		for i := range r {
			r[i].X = int64(math.Round(float64(r[i].X) * k))
			r[i].Y = int64(math.Round(float64(r[i].Y) * k))
		}
	}
}
