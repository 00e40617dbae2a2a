package style

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wegman-software/tileworld-go/internal/mvt"
)

const testStyle = `
buildings:
  require_any: [building, height]
roads:
  include:
    highway: [primary, secondary, residential]
  exclude:
    access: [private]
water:
  exclude:
    intermittent: []
road_widths:
  primary: 15
  busway: 6
default_road_width: 9
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(testStyle))
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	if cfg.RoadWidths["busway"] != 6 {
		t.Errorf("busway width = %v, want 6", cfg.RoadWidths["busway"])
	}
	if cfg.DefaultRoadWidth != 9 {
		t.Errorf("default width = %v, want 9", cfg.DefaultRoadWidth)
	}
	if cfg.Landuse != nil {
		t.Errorf("landuse filter = %+v, want nil", cfg.Landuse)
	}
}

func TestParseConfigRejectsBadWidth(t *testing.T) {
	if _, err := ParseConfig([]byte("road_widths:\n  primary: -1\n")); err == nil {
		t.Error("ParseConfig() should reject non-positive widths")
	}
	if _, err := ParseConfig([]byte("roads: [")); err == nil {
		t.Error("ParseConfig() should reject invalid YAML")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "style.yaml")
	if err := os.WriteFile(path, []byte(testStyle), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err != nil {
		t.Errorf("LoadConfig() error = %v", err)
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadConfig() on missing file should fail")
	}
}

func TestFilterMatch(t *testing.T) {
	cfg, err := ParseConfig([]byte(testStyle))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		kind  string
		props mvt.Properties
		want  bool
	}{
		{"building with tag", "building", mvt.Properties{"building": mvt.StringValue("yes")}, true},
		{"building with numeric height", "building", mvt.Properties{"height": mvt.IntValue(12)}, true},
		{"building without required", "building", mvt.Properties{"name": mvt.StringValue("x")}, false},
		{"primary road", "road", mvt.Properties{"highway": mvt.StringValue("primary")}, true},
		{"footway not included", "road", mvt.Properties{"highway": mvt.StringValue("footway")}, false},
		{"private excluded", "road", mvt.Properties{"highway": mvt.StringValue("residential"), "access": mvt.StringValue("private")}, false},
		{"intermittent water excluded", "water", mvt.Properties{"intermittent": mvt.BoolValue(true)}, false},
		{"water kept", "water", mvt.Properties{"natural": mvt.StringValue("water")}, true},
		{"landuse unfiltered", "landuse", mvt.Properties{}, true},
		{"unknown kind unfiltered", "terrain", mvt.Properties{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.FilterFor(tt.kind).Match(tt.props); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterNumericValues(t *testing.T) {
	f := NewFilter(&FilterConfig{Include: map[string][]string{"levels": {"3"}}})
	if !f.Match(mvt.Properties{"levels": mvt.UintValue(3)}) {
		t.Error("numeric value should match its string form")
	}
	if f.Match(mvt.Properties{"levels": mvt.UintValue(4)}) {
		t.Error("levels=4 should not match")
	}
}

func TestHasFilter(t *testing.T) {
	if NewFilter(nil).HasFilter() {
		t.Error("nil config should not filter")
	}
	var cfg *Config
	if cfg.FilterFor("road").HasFilter() {
		t.Error("nil Config should not filter")
	}
	if !NewFilter(&FilterConfig{RequireAny: []string{"name"}}).HasFilter() {
		t.Error("require_any should enable filtering")
	}
}
