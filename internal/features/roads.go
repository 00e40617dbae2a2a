package features

import (
	"strings"

	"github.com/wegman-software/tileworld-go/internal/mvt"
)

// DefaultRoadWidth applies to road classes missing from the table
const DefaultRoadWidth = 10.0

// DefaultRoadWidths maps road class to width in meters
var DefaultRoadWidths = map[string]float64{
	"motorway":    20,
	"trunk":       18,
	"primary":     16,
	"secondary":   14,
	"tertiary":    12,
	"residential": 10,
	"service":     8,
	"path":        4,
}

// roadClassKeys are checked in order for the road class
var roadClassKeys = []string{"highway", "class", "type"}

// RoadClass returns the road class from the feature's properties, with
// any "_link" suffix removed
func RoadClass(props mvt.Properties) string {
	for _, key := range roadClassKeys {
		if s := strings.ToLower(strings.TrimSpace(props.String(key))); s != "" {
			return strings.TrimSuffix(s, "_link")
		}
	}
	return ""
}

// WidthTable resolves road widths
type WidthTable struct {
	widths   map[string]float64
	fallback float64
}

// NewWidthTable copies the defaults and applies overrides. fallback <= 0
// keeps DefaultRoadWidth.
func NewWidthTable(overrides map[string]float64, fallback float64) *WidthTable {
	w := make(map[string]float64, len(DefaultRoadWidths)+len(overrides))
	for k, v := range DefaultRoadWidths {
		w[k] = v
	}
	for k, v := range overrides {
		if v > 0 {
			w[strings.ToLower(k)] = v
		}
	}
	if fallback <= 0 {
		fallback = DefaultRoadWidth
	}
	return &WidthTable{widths: w, fallback: fallback}
}

// Width returns the width for a road class
func (t *WidthTable) Width(class string) float64 {
	if w, ok := t.widths[class]; ok {
		return w
	}
	return t.fallback
}

// For returns the width for a feature's properties
func (t *WidthTable) For(props mvt.Properties) float64 {
	return t.Width(RoadClass(props))
}
