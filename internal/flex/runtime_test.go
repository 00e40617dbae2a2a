package flex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wegman-software/tileworld-go/internal/mvt"
)

func newRuntime(t *testing.T, code string) *Runtime {
	t.Helper()
	r := NewRuntime(nil)
	t.Cleanup(r.Close)
	if code != "" {
		if err := r.LoadString(code); err != nil {
			t.Fatalf("Lua execution failed: %v", err)
		}
	}
	return r
}

func polygon(props mvt.Properties) *mvt.Feature {
	return &mvt.Feature{
		GeomType:   mvt.GeomPolygon,
		Geometry:   []mvt.Ring{{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}, {X: 0, Y: 0}}},
		Properties: props,
		Kind:       mvt.KindLanduse,
	}
}

func TestRuntimeWithoutCallback(t *testing.T) {
	r := newRuntime(t, "")
	if r.HasClassify() {
		t.Fatal("HasClassify() = true with no script")
	}

	f := polygon(nil)
	d, err := r.Classify("landuse", f)
	if err != nil {
		t.Fatal(err)
	}
	if d.Kind != mvt.KindLanduse || d.Drop || d.Changed {
		t.Errorf("decision = %+v, want unchanged landuse", d)
	}
}

const classifier = `
function tileworld.classify(f)
	if f.properties.leisure == "pitch" then
		return "drop"
	end
	if f.layer == "structure" and f.geom_type == "polygon" then
		return tileworld.kinds.BUILDING, { height = parse_height(f.properties.levels_height or "9 m") }
	end
	if f.properties.waterway then
		return false
	end
	return nil
end
`

func TestRuntimeClassify(t *testing.T) {
	r := newRuntime(t, classifier)
	if !r.HasClassify() {
		t.Fatal("HasClassify() = false")
	}

	tests := []struct {
		name    string
		layer   string
		props   mvt.Properties
		want    mvt.LayerKind
		drop    bool
		changed bool
	}{
		{"keep", "landuse", mvt.Properties{"class": mvt.StringValue("park")}, mvt.KindLanduse, false, false},
		{"drop string", "landuse", mvt.Properties{"leisure": mvt.StringValue("pitch")}, mvt.KindLanduse, true, false},
		{"drop false", "landuse", mvt.Properties{"waterway": mvt.StringValue("canal")}, mvt.KindLanduse, true, false},
		{"reclassify", "structure", nil, mvt.KindBuilding, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := r.Classify(tt.layer, polygon(tt.props))
			if err != nil {
				t.Fatal(err)
			}
			if d.Kind != tt.want || d.Drop != tt.drop || d.Changed != tt.changed {
				t.Errorf("decision = %+v, want kind %v drop %v changed %v", d, tt.want, tt.drop, tt.changed)
			}
		})
	}
}

func TestRuntimeApplySetsProperties(t *testing.T) {
	r := newRuntime(t, classifier)

	f := polygon(mvt.Properties{"levels_height": mvt.StringValue("21m")})
	keep, err := r.Apply("structure", f)
	if err != nil {
		t.Fatal(err)
	}
	if !keep {
		t.Fatal("Apply() dropped the feature")
	}
	if f.Kind != mvt.KindBuilding {
		t.Errorf("kind = %v, want building", f.Kind)
	}
	if h, ok := f.Properties["height"].Float64(); !ok || h != 21 {
		t.Errorf("height = %v, want 21", f.Properties["height"])
	}

	keep, err = r.Apply("landuse", polygon(mvt.Properties{"leisure": mvt.StringValue("pitch")}))
	if err != nil || keep {
		t.Errorf("Apply(pitch) = %v, %v, want dropped", keep, err)
	}
}

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"unknown kind", `function tileworld.classify(f) return "bridge" end`},
		{"bad type", `function tileworld.classify(f) return 12 end`},
		{"runtime error", `function tileworld.classify(f) error("boom") end`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRuntime(t, tt.code)
			if _, err := r.Classify("landuse", polygon(nil)); err == nil {
				t.Error("Classify() error = nil")
			}
		})
	}
}

func TestRuntimeLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classify.lua")
	if err := os.WriteFile(path, []byte(classifier), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRuntime(nil)
	defer r.Close()
	if err := r.LoadFile(path); err != nil {
		t.Fatal(err)
	}
	if !r.HasClassify() {
		t.Error("HasClassify() = false after LoadFile")
	}

	if err := r.LoadFile(filepath.Join(t.TempDir(), "missing.lua")); err == nil {
		t.Error("LoadFile(missing) error = nil")
	}
}

func TestRuntimeFeatureTable(t *testing.T) {
	r := newRuntime(t, `
function tileworld.classify(f)
	seen = { layer = f.layer, kind = f.kind, geom = f.geom_type, points = f.points, id = f.id, h = f.properties.height, flag = f.tags.flag }
end
`)
	id := uint64(77)
	f := polygon(mvt.Properties{"height": mvt.IntValue(30), "flag": mvt.BoolValue(true)})
	f.ID = &id
	if _, err := r.Classify("landuse", f); err != nil {
		t.Fatal(err)
	}

	if err := r.L.DoString(`
		assert(seen.layer == "landuse")
		assert(seen.kind == "landuse")
		assert(seen.geom == "polygon")
		assert(seen.points == 4)
		assert(seen.id == 77)
		assert(seen.h == 30)
		assert(seen.flag == true)
	`); err != nil {
		t.Errorf("feature table mismatch: %v", err)
	}
}
