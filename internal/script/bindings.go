package script

import (
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/setohima/UnityMCP-VRC/internal/wire"
	"github.com/setohima/UnityMCP-VRC/internal/world"
)

// bindEditor exposes editor state and the mode switches under the
// global editor table.
func bindEditor(L *lua.LState, w *world.World, out *strings.Builder) {
	t := L.NewTable()
	L.SetFuncs(t, map[string]lua.LGFunction{
		"log": func(L *lua.LState) int {
			msg := L.CheckString(1)
			if out.Len() > 0 {
				out.WriteByte('\n')
			}
			out.WriteString(msg)
			return 0
		},
		"state": func(L *lua.LState) int {
			L.Push(stateTable(L, w.State()))
			return 1
		},
		"play":  func(L *lua.LState) int { w.Play(); return 0 },
		"pause": func(L *lua.LState) int { w.Pause(); return 0 },
		"stop":  func(L *lua.LState) int { w.Stop(); return 0 },
		"compile": func(L *lua.LState) int {
			secs := float64(L.CheckNumber(1))
			if secs > 0 {
				w.StartCompile(time.Duration(secs * float64(time.Second)))
			}
			return 0
		},
		"select": func(L *lua.LState) int {
			names := make([]string, 0, L.GetTop())
			for i := 1; i <= L.GetTop(); i++ {
				names = append(names, L.CheckString(i))
			}
			L.Push(stringsTable(L, w.Select(names)))
			return 1
		},
	})
	L.SetGlobal("editor", t)
}

// bindScene exposes hierarchy operations under the global scene table.
// Mutations return the object path, or nil and a message on failure.
func bindScene(L *lua.LState, w *world.World) {
	result := func(L *lua.LState, path string, err error) int {
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(lua.LString(path))
		return 1
	}

	t := L.NewTable()
	L.SetFuncs(t, map[string]lua.LGFunction{
		"find": func(L *lua.LState) int {
			d := w.ObjectDetails(L.CheckString(1))
			if d.Error != "" {
				L.Push(lua.LNil)
				return 1
			}
			L.Push(detailTable(L, d))
			return 1
		},
		"create": func(L *lua.LState) int {
			name := L.CheckString(1)
			d, err := detailsOf(L, 2)
			if err != nil {
				return result(L, "", err)
			}
			path, err := w.CreateObject(name, d)
			return result(L, path, err)
		},
		"delete": func(L *lua.LState) int {
			if err := w.DeleteObject(L.CheckString(1)); err != nil {
				return result(L, "", err)
			}
			L.Push(lua.LTrue)
			return 1
		},
		"modify": func(L *lua.LState) int {
			name := L.CheckString(1)
			d, err := detailsOf(L, 2)
			if err != nil {
				return result(L, "", err)
			}
			path, err := w.ModifyObject(name, d)
			return result(L, path, err)
		},
		"parent": func(L *lua.LState) int {
			path, err := w.ReparentObject(L.CheckString(1), L.OptString(2, ""))
			return result(L, path, err)
		},
		"duplicate": func(L *lua.LState) int {
			path, err := w.DuplicateObject(L.CheckString(1))
			return result(L, path, err)
		},
		"count": func(L *lua.LState) int {
			L.Push(lua.LNumber(w.ObjectCount()))
			return 1
		},
	})
	L.SetGlobal("scene", t)
}

func stateTable(L *lua.LState, st wire.EditorState) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("activeScene", lua.LString(st.ActiveScene))
	t.RawSetString("isPlaying", lua.LBool(st.IsPlaying))
	t.RawSetString("isPaused", lua.LBool(st.IsPaused))
	t.RawSetString("isCompiling", lua.LBool(st.IsCompiling))
	t.RawSetString("objectCount", lua.LNumber(st.ObjectCount))
	t.RawSetString("selection", stringsTable(L, st.Selection))
	return t
}

func detailTable(L *lua.LState, d wire.ObjectDetails) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("name", lua.LString(d.Name))
	t.RawSetString("path", lua.LString(d.Path))
	t.RawSetString("active", lua.LBool(d.Active))
	t.RawSetString("position", vec3Table(L, d.Transform.Position))
	comps := L.NewTable()
	for _, c := range d.Components {
		comps.Append(lua.LString(c.Type))
	}
	t.RawSetString("components", comps)
	t.RawSetString("children", stringsTable(L, d.Children))
	return t
}

func vec3Table(L *lua.LState, v wire.Vec3) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("x", lua.LNumber(v.X))
	t.RawSetString("y", lua.LNumber(v.Y))
	t.RawSetString("z", lua.LNumber(v.Z))
	return t
}

func stringsTable(L *lua.LState, ss []string) *lua.LTable {
	t := L.NewTable()
	for _, s := range ss {
		t.Append(lua.LString(s))
	}
	return t
}

// detailsOf reads the optional details table of create and modify.
func detailsOf(L *lua.LState, idx int) (wire.ManipulateDetails, error) {
	var d wire.ManipulateDetails
	v := L.Get(idx)
	if v == lua.LNil {
		return d, nil
	}
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return d, errDetailsNotTable
	}

	if s, ok := tbl.RawGetString("parent").(lua.LString); ok {
		d.Parent = string(s)
	}
	if s, ok := tbl.RawGetString("name").(lua.LString); ok {
		d.NewName = string(s)
	}
	if b, ok := tbl.RawGetString("active").(lua.LBool); ok {
		on := bool(b)
		d.Active = &on
	}

	tr := wire.Transform{Scale: wire.Vec3{X: 1, Y: 1, Z: 1}}
	hasTransform := false
	if p, ok := tbl.RawGetString("position").(*lua.LTable); ok {
		tr.Position = vec3Of(p)
		hasTransform = true
	}
	if r, ok := tbl.RawGetString("rotation").(*lua.LTable); ok {
		tr.Rotation = vec3Of(r)
		hasTransform = true
	}
	if s, ok := tbl.RawGetString("scale").(*lua.LTable); ok {
		tr.Scale = vec3Of(s)
		hasTransform = true
	}
	if hasTransform {
		d.Transform = &tr
	}

	if comps, ok := tbl.RawGetString("components").(*lua.LTable); ok {
		comps.ForEach(func(_, v lua.LValue) {
			if s, ok := v.(lua.LString); ok {
				d.Components = append(d.Components, string(s))
			}
		})
	}
	if props, ok := tbl.RawGetString("properties").(*lua.LTable); ok {
		if m, ok := goValue(props).(map[string]any); ok {
			d.Properties = m
		}
	}
	return d, nil
}

var errDetailsNotTable = detailsError("details must be a table")

type detailsError string

func (e detailsError) Error() string { return string(e) }

func vec3Of(t *lua.LTable) wire.Vec3 {
	num := func(k string) float64 {
		if n, ok := t.RawGetString(k).(lua.LNumber); ok {
			return float64(n)
		}
		return 0
	}
	return wire.Vec3{X: num("x"), Y: num("y"), Z: num("z")}
}

// goValue converts a Lua value for the property maps: arrays become
// slices, hashes become maps.
func goValue(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	case *lua.LTable:
		if n := val.MaxN(); n > 0 {
			arr := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				arr = append(arr, goValue(val.RawGetInt(i)))
			}
			return arr
		}
		m := map[string]any{}
		val.ForEach(func(k, v lua.LValue) {
			if ks, ok := k.(lua.LString); ok {
				m[string(ks)] = goValue(v)
			}
		})
		return m
	default:
		return nil
	}
}
