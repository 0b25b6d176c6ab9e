// Package anim implements the Animation Host (C2): it loads a Lua script
// exposing a `color(x, y, z, t, params, id)` function and a `params` schema
// table, and evaluates that function per LED per tick without ever letting
// a scripting fault reach the render loop.
package anim

import (
	"fmt"
	"math"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/showrunner/controller/internal/coords"
)

// ParamType enumerates the parameter kinds a script's schema table may
// declare. The core only needs defaults for execution; the richer domain
// bounds are retained for a design-time editor to consume.
type ParamType int

const (
	ScalarReal ParamType = iota
	ScalarInteger
	PairOfReals
	Color
	Enum
	FlagSet
)

// ParamSpec is one declared parameter within a group.
type ParamSpec struct {
	Type    ParamType
	Default lua.LValue
}

// Schema is the two-level { group -> { param -> spec } } mapping declared
// by a script.
type Schema map[string]map[string]ParamSpec

// CoordLookup resolves another LED's normalized position for the ambient
// `coord(i)` helper animations may call (used for "scramble" effects).
type CoordLookup func(id int) (coords.Point, bool)

// Animation is a loaded, hot-swappable script: a callable color function
// plus its declared default parameters and the path it was loaded from.
// gopher-lua states are not goroutine-safe, so Evaluate serializes
// internally with a mutex as a defensive measure against accidental
// concurrent use beyond the render loop's single-writer discipline.
type Animation struct {
	SourcePath     string
	DefaultParams  map[string]float64
	Schema         Schema

	mu      sync.Mutex
	state   *lua.LState
	colorFn *lua.LFunction
}

// Host loads scripts from a directory and wires the ambient `coord` helper
// into each script's global environment.
type Host struct {
	dir    string
	lookup CoordLookup
}

// NewHost returns a Host rooted at dir, with lookup used to answer the
// ambient `coord(i)` helper calls animations may make.
func NewHost(dir string, lookup CoordLookup) *Host {
	return &Host{dir: dir, lookup: lookup}
}

// Load reads, compiles and executes the script at <dir>/<name>, then
// extracts its `color` function and `params` schema. A script that fails to
// parse, fails to run, or does not define a callable `color` global is a
// load failure: the caller is expected to keep the previously installed
// Animation and log the error.
func (h *Host) Load(name string) (*Animation, error) {
	path := name
	if h.dir != "" {
		path = h.dir + "/" + name
	}
	ls := lua.NewState()
	ls.SetGlobal("coord", ls.NewFunction(h.luaCoord))

	if err := ls.DoFile(path); err != nil {
		ls.Close()
		return nil, fmt.Errorf("anim: loading %s: %w", path, err)
	}
	fn, ok := ls.GetGlobal("color").(*lua.LFunction)
	if !ok {
		ls.Close()
		return nil, fmt.Errorf("anim: %s does not define a global `color` function", path)
	}
	schema := parseSchema(ls.GetGlobal("params"))
	defaults := flattenDefaults(schema)

	return &Animation{
		SourcePath:    path,
		DefaultParams: defaults,
		Schema:        schema,
		state:         ls,
		colorFn:       fn,
	}, nil
}

// Close releases the underlying Lua state. Safe to call once the Animation
// is no longer referenced by any in-flight tick.
func (a *Animation) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != nil {
		a.state.Close()
		a.state = nil
	}
}

// Evaluate calls the script's color(x,y,z,t,params,id) function. Any
// non-3-tuple return, any non-finite component, or any runtime error is
// reported via ok=false, which the Render Engine treats as black for that
// LED; Evaluate never panics.
func (a *Animation) Evaluate(x, y, z, t float64, params map[string]float64, id int) (r, g, b float64, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer func() {
		if rec := recover(); rec != nil {
			r, g, b, ok = 0, 0, 0, false
		}
	}()

	ls := a.state
	paramsTable := ls.NewTable()
	for k, v := range params {
		paramsTable.RawSetString(k, lua.LNumber(v))
	}

	base := ls.GetTop()
	ls.Push(a.colorFn)
	ls.Push(lua.LNumber(x))
	ls.Push(lua.LNumber(y))
	ls.Push(lua.LNumber(z))
	ls.Push(lua.LNumber(t))
	ls.Push(paramsTable)
	ls.Push(lua.LNumber(id))
	if err := ls.PCall(6, lua.MultRet, nil); err != nil {
		return 0, 0, 0, false
	}
	defer ls.SetTop(base)
	if ls.GetTop()-base != 3 {
		return 0, 0, 0, false
	}

	rv := ls.Get(-3)
	gv := ls.Get(-2)
	bv := ls.Get(-1)
	rf, ok1 := toFinite(rv)
	gf, ok2 := toFinite(gv)
	bf, ok3 := toFinite(bv)
	if !ok1 || !ok2 || !ok3 {
		return 0, 0, 0, false
	}
	return rf, gf, bf, true
}

func toFinite(v lua.LValue) (float64, bool) {
	n, ok := v.(lua.LNumber)
	if !ok {
		return 0, false
	}
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// luaCoord implements the ambient `coord(i)` helper: it returns (x, y, z,
// true) when the LED has a position and (0, 0, 0, false) otherwise, letting
// scripts branch on the absent indicator themselves.
func (h *Host) luaCoord(ls *lua.LState) int {
	id := int(ls.CheckNumber(1))
	p, ok := h.lookup(id)
	if !ok {
		ls.Push(lua.LNumber(0))
		ls.Push(lua.LNumber(0))
		ls.Push(lua.LNumber(0))
		ls.Push(lua.LFalse)
		return 4
	}
	ls.Push(lua.LNumber(p.X))
	ls.Push(lua.LNumber(p.Y))
	ls.Push(lua.LNumber(p.Z))
	ls.Push(lua.LTrue)
	return 4
}

func parseSchema(v lua.LValue) Schema {
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return nil
	}
	schema := Schema{}
	tbl.ForEach(func(groupKey, groupVal lua.LValue) {
		groupName, ok := groupKey.(lua.LString)
		if !ok {
			return
		}
		groupTbl, ok := groupVal.(*lua.LTable)
		if !ok {
			return
		}
		params := map[string]ParamSpec{}
		groupTbl.ForEach(func(paramKey, paramVal lua.LValue) {
			paramName, ok := paramKey.(lua.LString)
			if !ok {
				return
			}
			specTbl, ok := paramVal.(*lua.LTable)
			if !ok {
				return
			}
			params[string(paramName)] = ParamSpec{
				Type:    parseParamType(specTbl.RawGetString("type")),
				Default: specTbl.RawGetString("default"),
			}
		})
		schema[string(groupName)] = params
	})
	return schema
}

func parseParamType(v lua.LValue) ParamType {
	s, ok := v.(lua.LString)
	if !ok {
		return ScalarReal
	}
	switch string(s) {
	case "integer":
		return ScalarInteger
	case "pair":
		return PairOfReals
	case "color":
		return Color
	case "enum":
		return Enum
	case "flags":
		return FlagSet
	default:
		return ScalarReal
	}
}

// flattenDefaults extracts a flat key->default real value mapping for every
// parameter whose declared default is a single number, whatever its type;
// defaults declared as tables (such as pairs and colors) are left out.
func flattenDefaults(schema Schema) map[string]float64 {
	out := map[string]float64{}
	for _, params := range schema {
		for name, spec := range params {
			if n, ok := spec.Default.(lua.LNumber); ok {
				out[name] = float64(n)
			}
		}
	}
	return out
}
