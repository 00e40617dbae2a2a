package flex

import (
	"regexp"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Property helper functions for Lua scripts

var whitespaceRegex = regexp.MustCompile(`\s+`)

// RegisterTransforms registers the helper functions under tileworld.transforms
func RegisterTransforms(L *lua.LState) {
	transforms := L.NewTable()

	// String helpers
	L.SetField(transforms, "trim", L.NewFunction(luaTrim))
	L.SetField(transforms, "lower", L.NewFunction(luaLower))
	L.SetField(transforms, "clean_spaces", L.NewFunction(luaCleanSpaces))

	// Type parsing
	L.SetField(transforms, "parse_int", L.NewFunction(luaParseInt))
	L.SetField(transforms, "parse_real", L.NewFunction(luaParseReal))
	L.SetField(transforms, "parse_bool", L.NewFunction(luaParseBool))
	L.SetField(transforms, "parse_height", L.NewFunction(luaParseHeight))

	// Property helpers
	L.SetField(transforms, "get_name", L.NewFunction(luaGetName))
	L.SetField(transforms, "road_rank", L.NewFunction(luaRoadRank))
	L.SetField(transforms, "is_area", L.NewFunction(luaIsArea))

	api := L.GetGlobal("tileworld")
	if api == lua.LNil {
		api = L.NewTable()
		L.SetGlobal("tileworld", api)
	}
	L.SetField(api.(*lua.LTable), "transforms", transforms)

	// common ones at top level
	L.SetGlobal("trim", L.NewFunction(luaTrim))
	L.SetGlobal("parse_int", L.NewFunction(luaParseInt))
	L.SetGlobal("parse_height", L.NewFunction(luaParseHeight))
}

func luaTrim(L *lua.LState) int {
	L.Push(lua.LString(strings.TrimSpace(L.CheckString(1))))
	return 1
}

func luaLower(L *lua.LState) int {
	L.Push(lua.LString(strings.ToLower(L.CheckString(1))))
	return 1
}

func luaCleanSpaces(L *lua.LState) int {
	s := whitespaceRegex.ReplaceAllString(L.CheckString(1), " ")
	L.Push(lua.LString(strings.TrimSpace(s)))
	return 1
}

// luaParseInt parses a string to an integer with an optional default.
// Decimal strings are truncated.
func luaParseInt(L *lua.LState) int {
	s := strings.TrimSpace(L.CheckString(1))
	def := int64(0)
	if L.GetTop() >= 2 {
		def = L.CheckInt64(2)
	}

	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		L.Push(lua.LNumber(v))
	} else if f, err := strconv.ParseFloat(s, 64); err == nil {
		L.Push(lua.LNumber(int64(f)))
	} else {
		L.Push(lua.LNumber(def))
	}
	return 1
}

func luaParseReal(L *lua.LState) int {
	s := strings.TrimSpace(L.CheckString(1))
	def := float64(0)
	if L.GetTop() >= 2 {
		def = float64(L.CheckNumber(2))
	}

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		L.Push(lua.LNumber(v))
	} else {
		L.Push(lua.LNumber(def))
	}
	return 1
}

func luaParseBool(L *lua.LState) int {
	switch strings.ToLower(strings.TrimSpace(L.CheckString(1))) {
	case "no", "false", "0", "off", "":
		L.Push(lua.LFalse)
	default:
		L.Push(lua.LTrue)
	}
	return 1
}

// luaParseHeight reads a height in meters from values like "12", "12 m",
// "12.5m" or "40'". Returns nil when nothing parses.
func luaParseHeight(L *lua.LState) int {
	v := L.Get(1)
	if n, ok := v.(lua.LNumber); ok {
		L.Push(n)
		return 1
	}
	h, ok := ParseHeight(lua.LVAsString(v))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LNumber(h))
	return 1
}

// ParseHeight converts a height string to meters
func ParseHeight(s string) (float64, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	factor := 1.0
	switch {
	case strings.HasSuffix(s, "ft"):
		s, factor = strings.TrimSuffix(s, "ft"), 0.3048
	case strings.HasSuffix(s, "'"):
		s, factor = strings.TrimSuffix(s, "'"), 0.3048
	case strings.HasSuffix(s, "m"):
		s = strings.TrimSuffix(s, "m")
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return f * factor, true
}

// luaGetName returns name, then name_en, then name:en
func luaGetName(L *lua.LState) int {
	props := L.CheckTable(1)
	for _, key := range []string{"name", "name_en", "name:en"} {
		if v := L.GetField(props, key); v != lua.LNil {
			if s := lua.LVAsString(v); s != "" {
				L.Push(lua.LString(s))
				return 1
			}
		}
	}
	L.Push(lua.LNil)
	return 1
}

var roadRank = map[string]int{
	"motorway":      380,
	"trunk":         370,
	"primary":       360,
	"secondary":     350,
	"tertiary":      340,
	"residential":   330,
	"unclassified":  330,
	"living_street": 320,
	"pedestrian":    310,
	"service":       300,
	"track":         290,
	"path":          280,
	"footway":       280,
	"cycleway":      280,
	"steps":         270,
}

// RoadRank orders road classes for draw and query priority. Bridges rise and
// tunnels sink; "_link" classes rank just below their parent.
func RoadRank(class string, layer int, bridge, tunnel bool) int {
	rank := 300
	link := strings.HasSuffix(class, "_link")
	if r, ok := roadRank[strings.TrimSuffix(class, "_link")]; ok {
		rank = r
	}
	if link {
		rank -= 5
	}
	rank += layer * 10
	if bridge {
		rank += 100
	}
	if tunnel {
		rank -= 100
	}
	return rank
}

func luaRoadRank(L *lua.LState) int {
	props := L.CheckTable(1)

	class := ""
	for _, key := range []string{"highway", "class", "type"} {
		if v := L.GetField(props, key); v != lua.LNil {
			if class = strings.ToLower(lua.LVAsString(v)); class != "" {
				break
			}
		}
	}

	layer := 0
	if v := L.GetField(props, "layer"); v != lua.LNil {
		if n, err := strconv.Atoi(lua.LVAsString(v)); err == nil {
			layer = n
		}
	}

	L.Push(lua.LNumber(RoadRank(class, layer, truthy(L.GetField(props, "bridge")), truthy(L.GetField(props, "tunnel")))))
	return 1
}

func truthy(v lua.LValue) bool {
	switch x := v.(type) {
	case lua.LBool:
		return bool(x)
	case lua.LNumber:
		return x != 0
	case lua.LString:
		s := strings.ToLower(string(x))
		return s != "" && s != "no" && s != "false" && s != "0"
	}
	return false
}

// luaIsArea checks whether properties describe an area. Pass false as the
// second argument for open geometry.
func luaIsArea(L *lua.LState) int {
	props := L.CheckTable(1)
	if L.GetTop() >= 2 && !L.CheckBool(2) {
		L.Push(lua.LFalse)
		return 1
	}

	if area := L.GetField(props, "area"); area != lua.LNil {
		switch strings.ToLower(lua.LVAsString(area)) {
		case "yes", "true":
			L.Push(lua.LTrue)
			return 1
		case "no", "false":
			L.Push(lua.LFalse)
			return 1
		}
	}

	for _, key := range []string{"building", "landuse", "natural", "water", "leisure", "amenity"} {
		if v := L.GetField(props, key); v != lua.LNil && lua.LVAsString(v) != "" {
			L.Push(lua.LTrue)
			return 1
		}
	}
	L.Push(lua.LFalse)
	return 1
}
