package automation

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/cdpdebug/internal/debug"
	"github.com/dshills/cdpdebug/internal/logging"
)

// DefaultRequestTimeout bounds each debugger command issued by a script.
const DefaultRequestTimeout = 30 * time.Second

// Debugger is the session surface exposed to scripts. *debug.Session
// implements it.
type Debugger interface {
	Scripts() []debug.Script
	ScriptsByURL(url string) []debug.Script
	ScriptsByURLPattern(pattern string) []debug.Script
	ScriptByID(id string) (debug.Script, bool)
	ScriptSource(ctx context.Context, scriptID string) (string, error)
	SearchInScripts(ctx context.Context, query string, opts debug.SearchOptions) (debug.SearchResult, error)

	SetBreakpoint(ctx context.Context, url string, line, column int, condition string) (debug.Breakpoint, error)
	SetBreakpointByURLRegex(ctx context.Context, pattern string, line, column int, condition string) (debug.Breakpoint, error)
	RemoveBreakpoint(ctx context.Context, id string) error
	RemoveAllBreakpoints(ctx context.Context) error
	Breakpoints() []debug.Breakpoint

	IsPaused() bool
	PausedState() debug.PausedState
	WaitForPause(ctx context.Context) (debug.PausedState, error)
	Resume(ctx context.Context) error
	Pause(ctx context.Context) error
	StepOver(ctx context.Context) error
	StepInto(ctx context.Context) error
	StepOut(ctx context.Context) error

	ScopeVariables(ctx context.Context, objectID string) ([]debug.Variable, error)
	EvaluateOnCallFrame(ctx context.Context, callFrameID, expression string, opts debug.EvalOptions) (debug.EvaluationResult, error)
}

// Runner executes Lua scripts against a Debugger.
//
// gopher-lua's LState is not goroutine-safe; Runner serializes script
// execution with a mutex.
type Runner struct {
	mu sync.Mutex
	L  *lua.LState

	dbg     Debugger
	logger  *logging.Logger
	out     io.Writer
	timeout time.Duration

	closed bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithOutput redirects print. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) {
		if w != nil {
			r.out = w
		}
	}
}

// WithRequestTimeout bounds each debugger command.
func WithRequestTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRunner creates a sandboxed Lua state with the dbg module installed.
func NewRunner(dbg Debugger, opts ...Option) *Runner {
	r := &Runner{
		dbg:     dbg,
		logger:  logging.Nop(),
		out:     os.Stdout,
		timeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.L = lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(r.L)
	r.L.SetGlobal("print", r.L.NewFunction(r.luaPrint))
	r.L.SetGlobal("dbg", r.L.SetFuncs(r.L.NewTable(), r.api()))

	return r
}

// openSafeLibraries opens only the base, table, string and math libraries
// and removes the loaders that could reach the file system.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
}

// Run executes Lua source. Cancelling ctx aborts the script.
func (r *Runner) Run(ctx context.Context, code string) error {
	return r.exec(ctx, func() error {
		return r.L.DoString(code)
	})
}

// RunFile executes a Lua file.
func (r *Runner) RunFile(ctx context.Context, path string) error {
	return r.exec(ctx, func() error {
		return r.L.DoFile(path)
	})
}

func (r *Runner) exec(ctx context.Context, fn func() error) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRunnerClosed
	}

	r.L.SetContext(ctx)
	defer r.L.RemoveContext()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("lua panic: %v", p)
		}
	}()

	if err := fn(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// Close releases the Lua state.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.L.Close()
	r.closed = true
}

// luaPrint writes its arguments tab-separated to the runner output.
func (r *Runner) luaPrint(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	fmt.Fprintln(r.out, strings.Join(parts, "\t"))
	return 0
}

// callContext bounds a single debugger command.
func (r *Runner) callContext(L *lua.LState) (context.Context, context.CancelFunc) {
	parent := L.Context()
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, r.timeout)
}
