package mvt

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// layerMatchers are substrings that identify a layer kind even when the
// name arrives truncated or with stray bytes. Checked in order.
var layerMatchers = []struct {
	kind    LayerKind
	needles []string
}{
	{KindBuilding, []string{"uilding"}},
	{KindRoad, []string{"ighway", "oad"}},
	{KindLanduse, []string{"anduse"}},
	{KindWater, []string{"ater"}},
	{KindTerrain, []string{"contour", "hillshade", "terrain"}},
}

// SanitizeLayerName strips non-printable bytes and invalid UTF-8, lowercases
// and trims the name
func SanitizeLayerName(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRuneInString(raw[i:])
		i += size
		if r == utf8.RuneError && size <= 1 {
			continue
		}
		if unicode.IsPrint(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(strings.ToLower(b.String()))
}

// KindForLayer classifies a sanitized layer name
func KindForLayer(name string) LayerKind {
	for _, m := range layerMatchers {
		for _, needle := range m.needles {
			if strings.Contains(name, needle) {
				return m.kind
			}
		}
	}
	return KindUnknown
}

// NormalizeLayerName sanitizes a wire layer name and maps it to a kind.
// Recognised layers are renamed to the kind's canonical name.
func NormalizeLayerName(raw string) (string, LayerKind) {
	name := SanitizeLayerName(raw)
	kind := KindForLayer(name)
	if kind != KindUnknown {
		return kind.String(), kind
	}
	return name, KindUnknown
}

// correctKind lets feature properties override the layer's kind, since the
// same entity often shows up in a generic layer carrying a specific tag
func correctKind(f *Feature, layerKind LayerKind) LayerKind {
	p := f.Properties
	switch f.GeomType {
	case GeomPolygon:
		switch {
		case p.Has("building"):
			return KindBuilding
		case p.Has("water") || p.String("natural") == "water":
			return KindWater
		case p.Has("landuse"):
			return KindLanduse
		}
	case GeomLineString:
		if p.Has("highway") {
			return KindRoad
		}
	}
	return layerKind
}
