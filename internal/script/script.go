// Package script runs executeCommand code against the simulated editor.
// Commands are Lua chunks with editor and scene bindings; each command
// runs in a fresh interpreter so one chunk cannot poison the next.
package script

import (
	"context"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/setohima/UnityMCP-VRC/internal/wire"
	"github.com/setohima/UnityMCP-VRC/internal/world"
)

// DefaultTimeout bounds a single command. Scripts that spin are cut off
// well inside the caller's reply window.
const DefaultTimeout = 10 * time.Second

// Runner is the full command surface of the simulator: the world's
// editor operations plus Lua execution on top of them.
type Runner struct {
	*world.World

	// Timeout bounds one ExecuteCommand call.
	Timeout time.Duration
}

func NewRunner(w *world.World) *Runner {
	return &Runner{World: w, Timeout: DefaultTimeout}
}

// ExecuteCommand runs one Lua chunk and shapes the commandResult reply.
// Output is whatever the chunk printed plus its return values; failures
// carry the Lua error with its traceback.
func (r *Runner) ExecuteCommand(code string) wire.CommandResult {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	L := lua.NewState(lua.Options{SkipOpenLibs: true, CallStackSize: 120})
	defer L.Close()
	L.SetContext(ctx)

	// Only side-effect free libraries are opened. No io, no os, no
	// require.
	for _, open := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(open.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(open.name)); err != nil {
			return wire.CommandResult{Error: err.Error()}
		}
	}

	var out strings.Builder
	bindPrint(L, &out)
	bindEditor(L, r.World, &out)
	bindScene(L, r.World)

	base := L.GetTop()
	if err := L.DoString(code); err != nil {
		return wire.CommandResult{Output: out.String(), Error: err.Error()}
	}

	// Return values of the chunk become trailing output lines.
	for i := base + 1; i <= L.GetTop(); i++ {
		if out.Len() > 0 {
			out.WriteByte('\n')
		}
		out.WriteString(stringify(L.Get(i)))
	}
	return wire.CommandResult{Output: out.String()}
}

func bindPrint(L *lua.LState, out *strings.Builder) {
	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		top := L.GetTop()
		if out.Len() > 0 {
			out.WriteByte('\n')
		}
		for i := 1; i <= top; i++ {
			if i > 1 {
				out.WriteByte('\t')
			}
			out.WriteString(stringify(L.Get(i)))
		}
		return 0
	}))
}

// stringify avoids LTable's pointer formatting so command output stays
// stable run to run.
func stringify(v lua.LValue) string {
	switch v.Type() {
	case lua.LTTable:
		return "table"
	case lua.LTFunction:
		return "function"
	case lua.LTUserData:
		return "userdata"
	default:
		return v.String()
	}
}
