package automation

import (
	"context"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/cdpdebug/internal/debug"
)

// api returns the functions of the dbg module.
func (r *Runner) api() map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		// Scripts
		"scripts":        r.luaScripts,
		"scripts_by_url": r.luaScriptsByURL,
		"find_scripts":   r.luaFindScripts,
		"script":         r.luaScript,
		"source":         r.luaSource,
		"search":         r.luaSearch,

		// Breakpoints
		"set_breakpoint":       r.luaSetBreakpoint,
		"set_breakpoint_regex": r.luaSetBreakpointRegex,
		"remove_breakpoint":    r.luaRemoveBreakpoint,
		"clear_breakpoints":    r.luaClearBreakpoints,
		"breakpoints":          r.luaBreakpoints,

		// Execution
		"is_paused":    r.luaIsPaused,
		"paused_state": r.luaPausedState,
		"wait_paused":  r.luaWaitPaused,
		"resume":       r.command((Debugger).Resume),
		"pause":        r.command((Debugger).Pause),
		"step_over":    r.command((Debugger).StepOver),
		"step_into":    r.command((Debugger).StepInto),
		"step_out":     r.command((Debugger).StepOut),

		// Inspection
		"scope_variables": r.luaScopeVariables,
		"evaluate":        r.luaEvaluate,
	}
}

// push converts v and pushes it, raising a Lua error on failure.
func (r *Runner) push(L *lua.LState, v any) int {
	lv, err := toLua(L, v)
	if err != nil {
		L.RaiseError("%v", err)
		return 0
	}
	L.Push(lv)
	return 1
}

func (r *Runner) luaScripts(L *lua.LState) int {
	return r.push(L, r.dbg.Scripts())
}

func (r *Runner) luaScriptsByURL(L *lua.LState) int {
	return r.push(L, r.dbg.ScriptsByURL(L.CheckString(1)))
}

func (r *Runner) luaFindScripts(L *lua.LState) int {
	scripts := r.dbg.ScriptsByURLPattern(L.CheckString(1))
	if scripts == nil {
		scripts = []debug.Script{}
	}
	return r.push(L, scripts)
}

func (r *Runner) luaScript(L *lua.LState) int {
	script, ok := r.dbg.ScriptByID(L.CheckString(1))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	return r.push(L, script)
}

func (r *Runner) luaSource(L *lua.LState) int {
	id := L.CheckString(1)

	ctx, cancel := r.callContext(L)
	defer cancel()

	src, err := r.dbg.ScriptSource(ctx, id)
	if err != nil {
		L.RaiseError("source %s: %v", id, err)
		return 0
	}
	L.Push(lua.LString(src))
	return 1
}

// luaSearch implements dbg.search(query, {case_sensitive=bool, regex=bool}).
func (r *Runner) luaSearch(L *lua.LState) int {
	query := L.CheckString(1)
	opts := L.OptTable(2, nil)

	ctx, cancel := r.callContext(L)
	defer cancel()

	res, err := r.dbg.SearchInScripts(ctx, query, debug.SearchOptions{
		CaseSensitive: optBool(opts, "case_sensitive"),
		IsRegex:       optBool(opts, "regex"),
	})
	if err != nil {
		L.RaiseError("search: %v", err)
		return 0
	}
	return r.push(L, res)
}

type setBreakpointFunc func(ctx context.Context, url string, line, column int, condition string) (debug.Breakpoint, error)

// setBreakpoint implements set_breakpoint(url, line, [column], [condition]).
func (r *Runner) setBreakpoint(L *lua.LState, set setBreakpointFunc) int {
	url := L.CheckString(1)
	line := L.CheckInt(2)
	column := L.OptInt(3, 0)
	condition := L.OptString(4, "")

	ctx, cancel := r.callContext(L)
	defer cancel()

	bp, err := set(ctx, url, line, column, condition)
	if err != nil {
		L.RaiseError("set breakpoint: %v", err)
		return 0
	}
	r.logger.Debug("script set breakpoint %s", bp.ID)
	return r.push(L, bp)
}

func (r *Runner) luaSetBreakpoint(L *lua.LState) int {
	return r.setBreakpoint(L, r.dbg.SetBreakpoint)
}

func (r *Runner) luaSetBreakpointRegex(L *lua.LState) int {
	return r.setBreakpoint(L, r.dbg.SetBreakpointByURLRegex)
}

func (r *Runner) luaRemoveBreakpoint(L *lua.LState) int {
	id := L.CheckString(1)

	ctx, cancel := r.callContext(L)
	defer cancel()

	if err := r.dbg.RemoveBreakpoint(ctx, id); err != nil {
		L.RaiseError("remove breakpoint %s: %v", id, err)
	}
	return 0
}

func (r *Runner) luaClearBreakpoints(L *lua.LState) int {
	ctx, cancel := r.callContext(L)
	defer cancel()

	if err := r.dbg.RemoveAllBreakpoints(ctx); err != nil {
		L.RaiseError("clear breakpoints: %v", err)
	}
	return 0
}

func (r *Runner) luaBreakpoints(L *lua.LState) int {
	return r.push(L, r.dbg.Breakpoints())
}

func (r *Runner) luaIsPaused(L *lua.LState) int {
	L.Push(lua.LBool(r.dbg.IsPaused()))
	return 1
}

func (r *Runner) luaPausedState(L *lua.LState) int {
	return r.push(L, r.dbg.PausedState())
}

// luaWaitPaused implements wait_paused([timeout_seconds]). Without a
// timeout it waits as long as the script's context allows.
func (r *Runner) luaWaitPaused(L *lua.LState) int {
	ctx := L.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if secs := float64(L.OptNumber(1, 0)); secs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(secs*float64(time.Second)))
		defer cancel()
	}

	state, err := r.dbg.WaitForPause(ctx)
	if err != nil {
		L.RaiseError("wait for pause: %v", err)
		return 0
	}
	return r.push(L, state)
}

// command adapts an argument-less execution command.
func (r *Runner) command(fn func(Debugger, context.Context) error) lua.LGFunction {
	return func(L *lua.LState) int {
		ctx, cancel := r.callContext(L)
		defer cancel()

		if err := fn(r.dbg, ctx); err != nil {
			L.RaiseError("%v", err)
		}
		return 0
	}
}

func (r *Runner) luaScopeVariables(L *lua.LState) int {
	objectID := L.CheckString(1)

	ctx, cancel := r.callContext(L)
	defer cancel()

	vars, err := r.dbg.ScopeVariables(ctx, objectID)
	if err != nil {
		L.RaiseError("scope variables: %v", err)
		return 0
	}
	return r.push(L, vars)
}

// luaEvaluate implements evaluate(frameId, expression, {by_value=bool, preview=bool}).
func (r *Runner) luaEvaluate(L *lua.LState) int {
	frameID := L.CheckString(1)
	expr := L.CheckString(2)

	opts := debug.DefaultEvalOptions()
	if t := L.OptTable(3, nil); t != nil {
		opts.ReturnByValue = optBool(t, "by_value")
		if v := t.RawGetString("preview"); v != lua.LNil {
			opts.GeneratePreview = lua.LVAsBool(v)
		}
	}

	ctx, cancel := r.callContext(L)
	defer cancel()

	res, err := r.dbg.EvaluateOnCallFrame(ctx, frameID, expr, opts)
	if err != nil {
		L.RaiseError("evaluate: %v", err)
		return 0
	}
	return r.push(L, res)
}
