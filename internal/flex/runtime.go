// Package flex runs a user Lua script that can reclassify or drop decoded
// features before they are parsed into world geometry.
//
// A script defines tileworld.classify(feature). The feature table carries
// layer, kind, geom_type, id and properties. The callback returns:
//
//	nil            keep the feature with its current kind
//	"road" etc.    move the feature to that kind
//	false/"drop"   drop the feature
//
// An optional second return value is a table of properties merged into the
// feature (for example a computed height).
package flex

import (
	"fmt"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wegman-software/tileworld-go/internal/mvt"
)

// Decision is the outcome of classifying one feature
type Decision struct {
	Kind    mvt.LayerKind
	Drop    bool
	Changed bool
	Set     mvt.Properties
}

// Runtime owns one Lua state. Calls are serialized.
type Runtime struct {
	L        *lua.LState
	mu       sync.Mutex
	classify lua.LValue
	log      *zap.Logger
}

// NewRuntime creates a Lua state with the tileworld API registered
func NewRuntime(log *zap.Logger) *Runtime {
	if log == nil {
		log = zap.NewNop()
	}
	L := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	r := &Runtime{L: L, log: log}
	r.registerAPI()
	return r
}

// Close releases Lua resources
func (r *Runtime) Close() {
	r.L.Close()
}

func (r *Runtime) registerAPI() {
	api := r.L.NewTable()
	api.RawSetString("version", lua.LString("1.0.0"))

	kinds := r.L.NewTable()
	for _, k := range []mvt.LayerKind{mvt.KindBuilding, mvt.KindRoad, mvt.KindLanduse, mvt.KindWater, mvt.KindTerrain} {
		kinds.RawSetString(strings.ToUpper(k.String()), lua.LString(k.String()))
	}
	api.RawSetString("kinds", kinds)

	r.L.SetGlobal("tileworld", api)

	RegisterTransforms(r.L)

	r.L.SetGlobal("print", r.L.NewFunction(r.luaPrint))
}

// LoadFile loads and executes a Lua classifier script
func (r *Runtime) LoadFile(path string) error {
	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to load Lua file: %w", err)
	}

	r.extractCallbacks()
	return nil
}

// LoadString loads and executes Lua code from a string
func (r *Runtime) LoadString(code string) error {
	if err := r.L.DoString(code); err != nil {
		return fmt.Errorf("failed to load Lua code: %w", err)
	}

	r.extractCallbacks()
	return nil
}

func (r *Runtime) extractCallbacks() {
	api := r.L.GetGlobal("tileworld")
	if tbl, ok := api.(*lua.LTable); ok {
		r.classify = tbl.RawGetString("classify")
	}
}

// HasClassify reports whether the script defined tileworld.classify
func (r *Runtime) HasClassify() bool {
	return r.classify != nil && r.classify.Type() == lua.LTFunction
}

// Classify runs the callback for one feature of the named layer. Without a
// callback the feature keeps its kind.
func (r *Runtime) Classify(layer string, f *mvt.Feature) (Decision, error) {
	d := Decision{Kind: f.Kind}
	if !r.HasClassify() {
		return d, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.L.CallByParam(lua.P{
		Fn:      r.classify,
		NRet:    2,
		Protect: true,
	}, r.featureToLua(layer, f)); err != nil {
		return d, fmt.Errorf("lua classify error: %w", err)
	}

	ret, set := r.L.Get(-2), r.L.Get(-1)
	r.L.Pop(2)

	switch v := ret.(type) {
	case *lua.LNilType:
	case lua.LBool:
		if !bool(v) {
			d.Drop = true
		}
	case lua.LString:
		s := strings.ToLower(string(v))
		if s == "drop" {
			d.Drop = true
			break
		}
		kind, ok := mvt.ParseLayerKind(s)
		if !ok {
			return d, fmt.Errorf("lua classify returned unknown kind %q", s)
		}
		d.Changed = kind != f.Kind
		d.Kind = kind
	default:
		return d, fmt.Errorf("lua classify returned %s", ret.Type())
	}

	if tbl, ok := set.(*lua.LTable); ok {
		d.Set = tableToProperties(tbl)
	}
	return d, nil
}

// Apply runs Classify and writes the decision back onto the feature. It
// reports false when the feature should be dropped.
func (r *Runtime) Apply(layer string, f *mvt.Feature) (bool, error) {
	d, err := r.Classify(layer, f)
	if err != nil {
		return true, err
	}
	if d.Drop {
		return false, nil
	}
	f.Kind = d.Kind
	if len(d.Set) > 0 {
		if f.Properties == nil {
			f.Properties = make(mvt.Properties, len(d.Set))
		}
		for k, v := range d.Set {
			f.Properties[k] = v
		}
	}
	return true, nil
}

func (r *Runtime) featureToLua(layer string, f *mvt.Feature) *lua.LTable {
	L := r.L
	tbl := L.NewTable()

	tbl.RawSetString("layer", lua.LString(layer))
	tbl.RawSetString("kind", lua.LString(f.Kind.String()))
	tbl.RawSetString("geom_type", lua.LString(strings.ToLower(f.GeomType.String())))
	tbl.RawSetString("points", lua.LNumber(f.PointCount()))
	if f.ID != nil {
		tbl.RawSetString("id", lua.LNumber(*f.ID))
	}

	props := L.NewTable()
	for k, v := range f.Properties {
		props.RawSetString(k, valueToLua(v))
	}
	tbl.RawSetString("properties", props)
	// alias so helpers written against tag tables work unchanged
	tbl.RawSetString("tags", props)

	return tbl
}

func valueToLua(v mvt.Value) lua.LValue {
	switch v.Type() {
	case mvt.ValueString:
		s, _ := v.Str()
		return lua.LString(s)
	case mvt.ValueBool:
		b, _ := v.Bool()
		return lua.LBool(b)
	case mvt.ValueNull:
		return lua.LNil
	}
	f, _ := v.Float64()
	return lua.LNumber(f)
}

func tableToProperties(tbl *lua.LTable) mvt.Properties {
	out := make(mvt.Properties)
	tbl.ForEach(func(key, value lua.LValue) {
		if key.Type() != lua.LTString {
			return
		}
		k := string(key.(lua.LString))
		switch v := value.(type) {
		case lua.LString:
			out[k] = mvt.StringValue(string(v))
		case lua.LNumber:
			out[k] = mvt.DoubleValue(float64(v))
		case lua.LBool:
			out[k] = mvt.BoolValue(bool(v))
		}
	})
	return out
}

func (r *Runtime) luaPrint(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	r.log.Info("lua", zap.String("msg", strings.Join(parts, "\t")))
	return 0
}
