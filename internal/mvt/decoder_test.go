package mvt

import (
	"math"
	"reflect"
	"testing"
)

func buildingLayer() *Layer {
	id := uint64(42)
	return &Layer{
		Name: "building",
		Features: []*Feature{
			{
				ID:       &id,
				GeomType: GeomPolygon,
				Geometry: []Ring{{{0, 0}, {10, 0}, {10, 10}, {0, 10}}},
				Properties: Properties{
					"height": IntValue(30),
					"name":   StringValue("hall"),
				},
			},
		},
	}
}

func TestZigZag(t *testing.T) {
	tests := []struct {
		v    int64
		want uint64
	}{
		{0, 0},
		{-1, 1},
		{1, 2},
		{-2, 3},
		{2, 4},
		{2147483647, 4294967294},
		{-2147483648, 4294967295},
		{math.MaxInt64, math.MaxUint64 - 1},
		{math.MinInt64, math.MaxUint64},
	}

	for _, tt := range tests {
		got := ZigZag(tt.v)
		if got != tt.want {
			t.Errorf("ZigZag(%d) = %d, want %d", tt.v, got, tt.want)
		}
		if back := UnZigZag(got); back != tt.v {
			t.Errorf("UnZigZag(ZigZag(%d)) = %d", tt.v, back)
		}
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	data := EncodeTile(buildingLayer())
	tile := Decode(data)

	if tile.Diagnostics.Degraded() {
		t.Fatalf("clean tile decoded with diagnostics: %s", tile.Diagnostics)
	}

	layer, ok := tile.Layers["building"]
	if !ok {
		t.Fatalf("layers = %v, want building", tile.LayerNames())
	}
	if layer.Kind != KindBuilding {
		t.Errorf("layer kind = %v, want building", layer.Kind)
	}
	if layer.Extent != DefaultExtent {
		t.Errorf("extent = %d, want %d", layer.Extent, DefaultExtent)
	}
	if len(layer.Features) != 1 {
		t.Fatalf("features = %d, want 1", len(layer.Features))
	}

	f := layer.Features[0]
	if f.ID == nil || *f.ID != 42 {
		t.Errorf("id = %v, want 42", f.ID)
	}
	if f.GeomType != GeomPolygon {
		t.Errorf("geom type = %v, want Polygon", f.GeomType)
	}

	want := []Ring{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}}
	if !reflect.DeepEqual(f.Geometry, want) {
		t.Errorf("geometry = %v, want %v", f.Geometry, want)
	}

	if h, ok := f.Properties["height"].Float64(); !ok || h != 30 {
		t.Errorf("height = %v, want 30", f.Properties["height"])
	}
	if name, ok := f.Properties["name"].Str(); !ok || name != "hall" {
		t.Errorf("name = %q, want hall", name)
	}
}

func TestDecodeLineAndPoints(t *testing.T) {
	layer := &Layer{
		Name:   "roads",
		Extent: 512,
		Features: []*Feature{
			{
				GeomType:   GeomLineString,
				Geometry:   []Ring{{{5, 5}, {100, 5}, {100, 80}}, {{-3, 4}, {7, 9}}},
				Properties: Properties{"highway": StringValue("primary")},
			},
			{
				GeomType:   GeomPoint,
				Geometry:   []Ring{{{1, 2}, {3, 4}}},
				Properties: Properties{"lit": BoolValue(true), "lanes": UintValue(2)},
			},
		},
	}

	tile := Decode(EncodeTile(layer))
	got, ok := tile.Layers["road"]
	if !ok {
		t.Fatalf("layers = %v, want road", tile.LayerNames())
	}
	if got.RawName != "roads" {
		t.Errorf("raw name = %q, want roads", got.RawName)
	}
	if got.Extent != 512 {
		t.Errorf("extent = %d, want 512", got.Extent)
	}

	line := got.Features[0]
	wantLine := []Ring{{{5, 5}, {100, 5}, {100, 80}}, {{-3, 4}, {7, 9}}}
	if !reflect.DeepEqual(line.Geometry, wantLine) {
		t.Errorf("line geometry = %v, want %v", line.Geometry, wantLine)
	}
	if line.Kind != KindRoad {
		t.Errorf("line kind = %v, want road", line.Kind)
	}

	points := got.Features[1]
	wantPoints := []Ring{{{1, 2}, {3, 4}}}
	if !reflect.DeepEqual(points.Geometry, wantPoints) {
		t.Errorf("point geometry = %v, want %v", points.Geometry, wantPoints)
	}
	if lit, ok := points.Properties["lit"].Bool(); !ok || !lit {
		t.Errorf("lit = %v, want true", points.Properties["lit"])
	}
	if n, ok := points.Properties["lanes"].Float64(); !ok || n != 2 {
		t.Errorf("lanes = %v, want 2", points.Properties["lanes"])
	}
}

func TestDecodeValueTypes(t *testing.T) {
	props := Properties{
		"s":  StringValue("x"),
		"f":  FloatValue(1.5),
		"d":  DoubleValue(-2.25),
		"i":  IntValue(-7),
		"u":  UintValue(9),
		"si": SintValue(-300),
		"b":  BoolValue(false),
	}
	layer := &Layer{
		Name: "misc",
		Features: []*Feature{
			{GeomType: GeomPoint, Geometry: []Ring{{{1, 1}}}, Properties: props},
		},
	}

	tile := Decode(EncodeTile(layer))
	got := tile.Layers["misc"].Features[0].Properties
	if !reflect.DeepEqual(got, props) {
		t.Errorf("properties = %v, want %v", got, props)
	}
}

func TestDecodeTruncatedPrefixes(t *testing.T) {
	data := EncodeTile(buildingLayer(), &Layer{
		Name: "water",
		Features: []*Feature{
			{GeomType: GeomPolygon, Geometry: []Ring{{{0, 0}, {50, 0}, {50, 50}}}},
		},
	})

	for n := 0; n < len(data); n++ {
		tile := Decode(data[:n])
		if tile == nil || tile.Layers == nil {
			t.Fatalf("Decode(prefix %d) returned nil tile", n)
		}
	}
}

func TestDecodeEmptyInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"nil", nil},
		{"empty", []byte{}},
		{"zeros", make([]byte, 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tile := Decode(tt.data)
			if !tile.Empty() {
				t.Errorf("layers = %v, want none", tile.LayerNames())
			}
		})
	}
}

func TestDecodeGarbage(t *testing.T) {
	inputs := [][]byte{
		{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		{0x1a, 0xff, 0xff, 0xff, 0xff, 0x0f},
		{0x1a, 0x05, 0x0a, 0x80},
		{0x4b, 0x01, 0x02},
	}
	for i, in := range inputs {
		tile := Decode(in)
		if !tile.Diagnostics.Degraded() {
			t.Errorf("input %d: diagnostics = %s, want degraded", i, tile.Diagnostics)
		}
	}
}

func TestDecodeUnknownWireType(t *testing.T) {
	// field 9, wire type 3 cannot be skipped
	data := appendTag(nil, 9, 3)
	data = append(data, EncodeTile(buildingLayer())...)

	tile := Decode(data)
	if tile.Diagnostics.UnknownWireTypes != 1 {
		t.Errorf("UnknownWireTypes = %d, want 1", tile.Diagnostics.UnknownWireTypes)
	}
	if !tile.Empty() {
		t.Errorf("layers = %v, want none after unknown wire type", tile.LayerNames())
	}
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	var data []byte
	data = appendTag(data, 1, wireVarint)
	data = appendVarint(data, 300)
	data = appendString(data, 2, "ignored")
	data = appendTag(data, 4, wireFixed32)
	data = append(data, 1, 2, 3, 4)
	data = append(data, EncodeTile(buildingLayer())...)

	tile := Decode(data)
	if tile.Diagnostics.Degraded() {
		t.Errorf("diagnostics = %s, want clean", tile.Diagnostics)
	}
	if _, ok := tile.Layers["building"]; !ok {
		t.Errorf("layers = %v, want building", tile.LayerNames())
	}
}

func TestDecodeClampsGeometry(t *testing.T) {
	const n = 60000
	cmds := []uint64{uint64(Command(CmdMoveTo, 1)), 0, 0, uint64(Command(CmdLineTo, n))}
	for i := 0; i < n; i++ {
		cmds = append(cmds, ZigZag(1), ZigZag(1))
	}

	var feature []byte
	feature = appendTag(feature, featureTypeField, wireVarint)
	feature = appendVarint(feature, uint64(GeomLineString))
	feature = appendPacked(feature, featureGeometryField, cmds)

	var layer []byte
	layer = appendString(layer, layerNameField, "road")
	layer = appendMessage(layer, layerFeatureField, feature)
	data := appendMessage(nil, tileLayerField, layer)

	tile := Decode(data)
	if tile.Diagnostics.ClampedFields != 1 {
		t.Errorf("ClampedFields = %d, want 1", tile.Diagnostics.ClampedFields)
	}
	if tile.Diagnostics.BadCommands != 1 {
		t.Errorf("BadCommands = %d, want 1", tile.Diagnostics.BadCommands)
	}

	l, ok := tile.Layers["road"]
	if !ok || len(l.Features) != 1 {
		t.Fatalf("road layer missing or wrong feature count")
	}
	pts := l.Features[0].PointCount()
	if pts < 2 || pts > n {
		t.Errorf("points = %d, want clamped below %d", pts, n+1)
	}
}

func TestDecodeBadTags(t *testing.T) {
	var feature []byte
	feature = appendPacked(feature, featureTagsField, []uint64{0, 0, 5, 0, 0})
	feature = appendTag(feature, featureTypeField, wireVarint)
	feature = appendVarint(feature, uint64(GeomPoint))
	feature = appendPacked(feature, featureGeometryField, []uint64{uint64(Command(CmdMoveTo, 1)), 2, 2})

	var layer []byte
	layer = appendString(layer, layerNameField, "poi")
	layer = appendMessage(layer, layerFeatureField, feature)
	layer = appendString(layer, layerKeyField, "kind")
	layer = appendMessage(layer, layerValueField, encodeValue(StringValue("cafe")))

	tile := Decode(appendMessage(nil, tileLayerField, layer))
	if tile.Diagnostics.BadTags != 2 {
		t.Errorf("BadTags = %d, want 2", tile.Diagnostics.BadTags)
	}

	f := tile.Layers["poi"].Features[0]
	if got := f.Properties.String("kind"); got != "cafe" {
		t.Errorf("kind = %q, want cafe", got)
	}
	if len(f.Properties) != 1 {
		t.Errorf("properties = %v, want 1 entry", f.Properties)
	}
}

func TestDecodeMergesNormalizedLayers(t *testing.T) {
	a := buildingLayer()
	b := buildingLayer()
	b.Name = "Buildings\x00"

	tile := Decode(EncodeTile(a, b))
	if len(tile.Layers) != 1 {
		t.Fatalf("layers = %v, want one merged layer", tile.LayerNames())
	}
	if got := len(tile.Layers["building"].Features); got != 2 {
		t.Errorf("features = %d, want 2", got)
	}
}

func TestDecodeMergeRescalesExtent(t *testing.T) {
	a := buildingLayer()
	b := buildingLayer()
	b.Name = "buildings"
	b.Extent = 2 * DefaultExtent

	tile := Decode(EncodeTile(a, b))
	l := tile.Layers["building"]
	if l == nil || len(l.Features) != 2 {
		t.Fatalf("layers = %v, want one merged building layer", tile.LayerNames())
	}
	if l.Extent != DefaultExtent {
		t.Errorf("extent = %d, want %d", l.Extent, DefaultExtent)
	}
	want := []Ring{{{0, 0}, {5, 0}, {5, 5}, {0, 5}, {0, 0}}}
	if got := l.Features[1].Geometry; !reflect.DeepEqual(got, want) {
		t.Errorf("rescaled geometry = %v, want %v", got, want)
	}
	if got := l.Features[0].Geometry[0][2]; got != (Point{10, 10}) {
		t.Errorf("first layer point = %v, want unchanged {10 10}", got)
	}
}

func TestDecodeDropsEmptyLayers(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"bare layer tag", []byte{0x1a}},
		{"zero-length layer", []byte{0x1a, 0x00}},
		{"truncated length", []byte{0x1a, 0x80}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tile := Decode(tt.data)
			if !tile.Empty() {
				t.Errorf("layers = %q, want none", tile.LayerNames())
			}
		})
	}
}

func TestDecodeGeometry(t *testing.T) {
	tests := []struct {
		name    string
		cmds    []uint64
		want    []Ring
		wantBad int
	}{
		{
			name: "empty",
			cmds: nil,
			want: nil,
		},
		{
			name: "two points",
			cmds: []uint64{17, 4, 6, 2, 2},
			want: []Ring{{{2, 3}, {3, 4}}},
		},
		{
			name: "closed square",
			cmds: []uint64{9, 0, 0, 26, 20, 0, 0, 20, 19, 0, 15},
			want: []Ring{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}},
		},
		{
			name: "moveto starts new ring",
			cmds: []uint64{9, 2, 2, 10, 2, 0, 9, 2, 2, 10, 0, 2},
			want: []Ring{{{1, 1}, {2, 1}}, {{3, 2}, {3, 3}}},
		},
		{
			name:    "count past end",
			cmds:    []uint64{9, 2, 2, 26, 2, 2},
			want:    []Ring{{{1, 1}, {2, 2}}},
			wantBad: 1,
		},
		{
			name:    "unknown command",
			cmds:    []uint64{9, 2, 2, 4, 9, 4, 4},
			want:    []Ring{{{1, 1}}},
			wantBad: 1,
		},
		{
			name: "closepath with no ring",
			cmds: []uint64{15},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var diag Diagnostics
			got := decodeGeometry(tt.cmds, &diag)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("decodeGeometry() = %v, want %v", got, tt.want)
			}
			if diag.BadCommands != tt.wantBad {
				t.Errorf("BadCommands = %d, want %d", diag.BadCommands, tt.wantBad)
			}
		})
	}
}
