package mvt

// Field numbers of the vector tile message set
const (
	tileLayerField = 3

	layerNameField    = 1
	layerFeatureField = 2
	layerKeyField     = 3
	layerValueField   = 4
	layerExtentField  = 5
	layerVersionField = 15

	featureIDField       = 1
	featureTagsField     = 2
	featureTypeField     = 3
	featureGeometryField = 4

	valueStringField = 1
	valueFloatField  = 2
	valueDoubleField = 3
	valueIntField    = 4
	valueUintField   = 5
	valueSintField   = 6
	valueBoolField   = 7
)

// Decode parses a vector tile. It always returns a tile; input it cannot
// make sense of yields fewer layers or features and non-zero Diagnostics.
func Decode(data []byte) *Tile {
	tile := NewTile()
	r := newReader(data, &tile.Diagnostics)

	for !r.done() {
		field, wire, ok := r.tag()
		if !ok {
			break
		}
		if field == tileLayerField && wire == wireBytes {
			b, _ := r.bytes(maxLayerBytes)
			tile.addLayer(decodeLayer(b, &tile.Diagnostics))
			continue
		}
		if !r.skip(wire) {
			break
		}
	}

	return tile
}

// decodeLayer parses one layer message. Features are decoded after the
// whole layer is read since the key/value tables may follow them.
func decodeLayer(data []byte, diag *Diagnostics) *Layer {
	layer := &Layer{Extent: DefaultExtent, Version: 1}
	var rawFeatures [][]byte

	r := newReader(data, diag)
	for !r.done() {
		field, wire, ok := r.tag()
		if !ok {
			break
		}

		switch {
		case field == layerNameField && wire == wireBytes:
			b, _ := r.bytes(0)
			layer.RawName = string(b)
		case field == layerFeatureField && wire == wireBytes:
			b, _ := r.bytes(0)
			rawFeatures = append(rawFeatures, b)
		case field == layerKeyField && wire == wireBytes:
			b, _ := r.bytes(0)
			layer.Keys = append(layer.Keys, string(b))
		case field == layerValueField && wire == wireBytes:
			b, _ := r.bytes(0)
			layer.Values = append(layer.Values, decodeValue(b, diag))
		case field == layerExtentField && wire == wireVarint:
			if v, ok := r.varint(); ok && v > 0 && v <= 1<<31 {
				layer.Extent = uint32(v)
			}
		case field == layerVersionField && wire == wireVarint:
			if v, ok := r.varint(); ok {
				layer.Version = uint32(v)
			}
		default:
			// skip jumps to the end on unknown wire types
			r.skip(wire)
		}
	}

	layer.Name, layer.Kind = NormalizeLayerName(layer.RawName)

	layer.Features = make([]*Feature, 0, len(rawFeatures))
	for _, b := range rawFeatures {
		layer.Features = append(layer.Features, decodeFeature(b, layer, diag))
	}
	return layer
}

// decodeFeature parses one feature message against its layer's tables
func decodeFeature(data []byte, layer *Layer, diag *Diagnostics) *Feature {
	f := &Feature{Kind: layer.Kind}
	var tags, geometry []uint64

	r := newReader(data, diag)
	for !r.done() {
		field, wire, ok := r.tag()
		if !ok {
			break
		}

		switch {
		case field == featureIDField && wire == wireVarint:
			if v, ok := r.varint(); ok {
				id := v
				f.ID = &id
			}
		case field == featureTagsField:
			tags = r.packedVarints(wire, maxTagBytes, tags)
		case field == featureTypeField && wire == wireVarint:
			v, _ := r.varint()
			if v <= uint64(GeomPolygon) {
				f.GeomType = GeomType(v)
			}
		case field == featureGeometryField:
			geometry = r.packedVarints(wire, maxGeometryBytes, geometry)
		default:
			r.skip(wire)
		}
	}

	f.Properties = resolveTags(tags, layer, diag)
	f.Geometry = decodeGeometry(geometry, diag)
	f.Kind = correctKind(f, layer.Kind)
	return f
}

// resolveTags turns key/value index pairs into properties. Pairs pointing
// outside the tables, and a dangling odd index, are dropped.
func resolveTags(tags []uint64, layer *Layer, diag *Diagnostics) Properties {
	props := make(Properties, len(tags)/2)
	if len(tags)%2 != 0 {
		diag.BadTags++
	}
	for i := 0; i+1 < len(tags); i += 2 {
		ki, vi := tags[i], tags[i+1]
		if ki >= uint64(len(layer.Keys)) || vi >= uint64(len(layer.Values)) {
			diag.BadTags++
			continue
		}
		props[layer.Keys[ki]] = layer.Values[vi]
	}
	return props
}

// decodeValue parses one value message; the last variant present wins
func decodeValue(data []byte, diag *Diagnostics) Value {
	var v Value

	r := newReader(data, diag)
	for !r.done() {
		field, wire, ok := r.tag()
		if !ok {
			break
		}

		switch {
		case field == valueStringField && wire == wireBytes:
			b, _ := r.bytes(0)
			v = StringValue(string(b))
		case field == valueFloatField && wire == wireFixed32:
			if f, ok := r.float32(); ok {
				v = FloatValue(f)
			}
		case field == valueDoubleField && wire == wireFixed64:
			if f, ok := r.float64(); ok {
				v = DoubleValue(f)
			}
		case field == valueIntField && wire == wireVarint:
			if n, ok := r.varint(); ok {
				v = IntValue(int64(n))
			}
		case field == valueUintField && wire == wireVarint:
			if n, ok := r.varint(); ok {
				v = UintValue(n)
			}
		case field == valueSintField && wire == wireVarint:
			if n, ok := r.varint(); ok {
				v = SintValue(UnZigZag(n))
			}
		case field == valueBoolField && wire == wireVarint:
			if n, ok := r.varint(); ok {
				v = BoolValue(n != 0)
			}
		default:
			r.skip(wire)
		}
	}
	return v
}
