package tilecache

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/wegman-software/tileworld-go/internal/geo"
)

// Source describes a vector tile provider
type Source struct {
	Name        string
	BaseURL     string // tiles live at {BaseURL}/{z}/{x}/{y}.{Format}
	Format      string
	AccessToken string
	Description string
}

// TileURL returns the request URL for a tile
func (s *Source) TileURL(addr geo.TileAddress) string {
	u := fmt.Sprintf("%s/%d/%d/%d.%s", s.BaseURL, addr.Z, addr.X, addr.Y, s.Format)
	if s.AccessToken != "" {
		u += "?access_token=" + url.QueryEscape(s.AccessToken)
	}
	return u
}

// Redacted returns TileURL with the token masked, for logging
func (s *Source) Redacted(addr geo.TileAddress) string {
	if s.AccessToken == "" {
		return s.TileURL(addr)
	}
	return strings.Replace(s.TileURL(addr), url.QueryEscape(s.AccessToken), "***", 1)
}

// WithToken returns a copy of the source carrying the given token
func (s *Source) WithToken(token string) *Source {
	c := *s
	c.AccessToken = token
	return &c
}

// Predefined providers
var (
	SourceMapboxStreets = &Source{
		Name:        "mapbox-streets",
		BaseURL:     "https://api.mapbox.com/v4/mapbox.mapbox-streets-v8",
		Format:      "vector.pbf",
		Description: "Mapbox Streets v8",
	}

	SourceMapboxTerrain = &Source{
		Name:        "mapbox-terrain",
		BaseURL:     "https://api.mapbox.com/v4/mapbox.mapbox-terrain-v2",
		Format:      "vector.pbf",
		Description: "Mapbox Terrain v2 contours",
	}

	SourceMapTiler = &Source{
		Name:        "maptiler",
		BaseURL:     "https://api.maptiler.com/tiles/v3",
		Format:      "pbf",
		Description: "MapTiler OpenMapTiles",
	}
)

var namedSources = map[string]*Source{
	"mapbox":         SourceMapboxStreets,
	"mapbox-streets": SourceMapboxStreets,
	"mapbox-terrain": SourceMapboxTerrain,
	"maptiler":       SourceMapTiler,
}

// ParseSource resolves a provider name or a base URL.
// Formats:
//   - "mapbox", "mapbox-streets", "mapbox-terrain", "maptiler"
//   - custom base URL: "https://tiles.example.com/v1"
//
// format overrides the provider's tile extension when non-empty.
func ParseSource(s, format string) (*Source, error) {
	s = strings.TrimSpace(s)

	var src Source
	if named, ok := namedSources[strings.ToLower(s)]; ok {
		src = *named
	} else if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		src = Source{
			Name:        "custom",
			BaseURL:     strings.TrimSuffix(s, "/"),
			Format:      "mvt",
			Description: "Custom tile source",
		}
	} else {
		return nil, fmt.Errorf("unknown tile source: %q", s)
	}

	if format != "" {
		src.Format = strings.TrimPrefix(format, ".")
	}
	return &src, nil
}

// ListSources describes the predefined providers
func ListSources() []string {
	return []string{
		"mapbox-streets - " + SourceMapboxStreets.Description,
		"mapbox-terrain - " + SourceMapboxTerrain.Description,
		"maptiler       - " + SourceMapTiler.Description,
	}
}
