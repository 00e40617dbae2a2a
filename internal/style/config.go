// Package style loads the YAML file that filters features per kind and
// tunes road widths.
package style

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wegman-software/tileworld-go/internal/mvt"
)

// Config is the style file layout
type Config struct {
	Buildings *FilterConfig `yaml:"buildings,omitempty"`
	Roads     *FilterConfig `yaml:"roads,omitempty"`
	Landuse   *FilterConfig `yaml:"landuse,omitempty"`
	Water     *FilterConfig `yaml:"water,omitempty"`

	// RoadWidths overrides or extends the road class to width table (meters)
	RoadWidths map[string]float64 `yaml:"road_widths,omitempty"`
	// DefaultRoadWidth replaces the fallback width when > 0
	DefaultRoadWidth float64 `yaml:"default_road_width,omitempty"`
}

// FilterConfig defines filtering rules for one feature kind
type FilterConfig struct {
	// Include lists property keys/values to keep; empty keeps everything
	Include map[string][]string `yaml:"include,omitempty"`
	// Exclude is applied after Include
	Exclude map[string][]string `yaml:"exclude,omitempty"`
	// RequireAny requires at least one of these properties
	RequireAny []string `yaml:"require_any,omitempty"`
}

// LoadConfig loads a style configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read style file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses style YAML
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse style YAML: %w", err)
	}
	for class, w := range cfg.RoadWidths {
		if w <= 0 {
			return nil, fmt.Errorf("road width for %q must be positive, got %v", class, w)
		}
	}
	return &cfg, nil
}

// DefaultConfig returns a configuration that keeps everything
func DefaultConfig() *Config {
	return &Config{}
}

// FilterFor returns the filter for a kind name (building, road, landuse, water)
func (c *Config) FilterFor(kind string) *Filter {
	if c == nil {
		return NewFilter(nil)
	}
	switch kind {
	case "building":
		return NewFilter(c.Buildings)
	case "road":
		return NewFilter(c.Roads)
	case "landuse":
		return NewFilter(c.Landuse)
	case "water":
		return NewFilter(c.Water)
	}
	return NewFilter(nil)
}

// Filter checks feature properties against one FilterConfig
type Filter struct {
	cfg *FilterConfig
}

// NewFilter creates a filter from configuration
func NewFilter(cfg *FilterConfig) *Filter {
	if cfg == nil {
		return &Filter{cfg: &FilterConfig{}}
	}
	return &Filter{cfg: cfg}
}

// Match reports whether a feature with these properties should be kept.
// Values are compared in their string form, so 30 matches "30".
func (f *Filter) Match(props mvt.Properties) bool {
	if f.cfg == nil {
		return true
	}

	if len(f.cfg.RequireAny) > 0 {
		found := false
		for _, key := range f.cfg.RequireAny {
			if props.Has(key) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(f.cfg.Include) > 0 && !matchesAny(f.cfg.Include, props) {
		return false
	}

	if len(f.cfg.Exclude) > 0 && matchesAny(f.cfg.Exclude, props) {
		return false
	}

	return true
}

// matchesAny reports whether any rule matches. A rule with no values, or
// with "*", matches any value of its key.
func matchesAny(rules map[string][]string, props mvt.Properties) bool {
	for key, values := range rules {
		v, ok := props[key]
		if !ok {
			continue
		}
		if len(values) == 0 {
			return true
		}
		s := v.String()
		for _, want := range values {
			if want == s || want == "*" {
				return true
			}
		}
	}
	return false
}

// HasFilter returns true if filtering is enabled
func (f *Filter) HasFilter() bool {
	if f.cfg == nil {
		return false
	}
	return len(f.cfg.Include) > 0 || len(f.cfg.Exclude) > 0 || len(f.cfg.RequireAny) > 0
}
