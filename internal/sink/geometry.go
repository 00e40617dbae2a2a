package sink

import (
	"encoding/json"

	"github.com/paulmach/orb"

	"github.com/wegman-software/tileworld-go/internal/features"
	"github.com/wegman-software/tileworld-go/internal/geo"
	"github.com/wegman-software/tileworld-go/internal/mvt"
)

// WorldGeometry returns the feature's shape with world X/Z as x/y
func WorldGeometry(f *features.WorldFeature) orb.Geometry {
	return geometry(f, func(p geo.WorldPoint) orb.Point { return orb.Point{p.X, p.Z} })
}

// GeoGeometry returns the feature's shape as lon/lat through proj
func GeoGeometry(f *features.WorldFeature, proj *geo.Projector) orb.Geometry {
	return geometry(f, func(p geo.WorldPoint) orb.Point { return proj.WorldToGeo(p).Orb() })
}

func geometry(f *features.WorldFeature, conv func(geo.WorldPoint) orb.Point) orb.Geometry {
	rings := f.Rings
	if len(rings) == 0 && len(f.Points) > 0 {
		rings = [][]geo.WorldPoint{f.Points}
	}
	if len(rings) == 0 {
		return nil
	}

	switch f.Shape {
	case features.ShapePoint:
		var mp orb.MultiPoint
		for _, r := range rings {
			for _, p := range r {
				mp = append(mp, conv(p))
			}
		}
		if len(mp) == 1 {
			return mp[0]
		}
		return mp
	case features.ShapeLine:
		var mls orb.MultiLineString
		for _, r := range rings {
			ls := make(orb.LineString, len(r))
			for i, p := range r {
				ls[i] = conv(p)
			}
			mls = append(mls, ls)
		}
		if len(mls) == 1 {
			return mls[0]
		}
		return mls
	default:
		poly := make(orb.Polygon, 0, len(rings))
		for _, r := range rings {
			ring := make(orb.Ring, 0, len(r)+1)
			for _, p := range r {
				ring = append(ring, conv(p))
			}
			if len(ring) > 0 && !ring.Closed() {
				ring = append(ring, ring[0])
			}
			poly = append(poly, ring)
		}
		return poly
	}
}

// PropertiesJSON encodes properties as a JSON object
func PropertiesJSON(props mvt.Properties) string {
	if len(props) == 0 {
		return "{}"
	}
	b, err := json.Marshal(props.Map())
	if err != nil {
		return "{}"
	}
	return string(b)
}
