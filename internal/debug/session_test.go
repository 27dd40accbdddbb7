package debug

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/dshills/cdpdebug/internal/debug/cdp"
)

type sentCommand struct {
	Method string
	Params json.RawMessage
}

type fakeHandler struct {
	id cdp.HandlerID
	fn cdp.Handler
}

type responder func(params json.RawMessage) (json.RawMessage, error)

// fakeConn implements Conn for testing. Events are delivered synchronously
// by emit, the way the client's receive goroutine delivers them.
type fakeConn struct {
	mu         sync.Mutex
	handlers   map[string][]fakeHandler
	nextID     cdp.HandlerID
	sent       []sentCommand
	responders map[string]responder
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		handlers:   make(map[string][]fakeHandler),
		responders: make(map[string]responder),
	}
}

func (c *fakeConn) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		raw = data
	}

	c.mu.Lock()
	c.sent = append(c.sent, sentCommand{Method: method, Params: raw})
	r := c.responders[method]
	c.mu.Unlock()

	if r != nil {
		return r(raw)
	}
	return json.RawMessage(`{}`), nil
}

func (c *fakeConn) On(event string, h cdp.Handler) cdp.HandlerID {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	c.handlers[event] = append(c.handlers[event], fakeHandler{id: c.nextID, fn: h})
	return c.nextID
}

func (c *fakeConn) Off(event string, id cdp.HandlerID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.handlers[event]
	for i, h := range entries {
		if h.id == id {
			c.handlers[event] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// respond makes method succeed with result, given as a JSON string or a
// value to marshal.
func (c *fakeConn) respond(method string, result any) {
	raw := toRaw(result)
	c.onSend(method, func(json.RawMessage) (json.RawMessage, error) {
		return raw, nil
	})
}

func (c *fakeConn) fail(method string, err error) {
	c.onSend(method, func(json.RawMessage) (json.RawMessage, error) {
		return nil, err
	})
}

func (c *fakeConn) onSend(method string, r responder) {
	c.mu.Lock()
	c.responders[method] = r
	c.mu.Unlock()
}

func (c *fakeConn) emit(event string, params any) {
	raw := toRaw(params)

	c.mu.Lock()
	handlers := append([]fakeHandler(nil), c.handlers[event]...)
	c.mu.Unlock()

	for _, h := range handlers {
		h.fn(raw)
	}
}

func (c *fakeConn) handlerCount(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers[event])
}

func (c *fakeConn) totalHandlers() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, hs := range c.handlers {
		n += len(hs)
	}
	return n
}

func (c *fakeConn) methods() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.sent))
	for _, cmd := range c.sent {
		out = append(out, cmd.Method)
	}
	return out
}

// last returns the most recent command sent for method.
func (c *fakeConn) last(method string) (sentCommand, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := len(c.sent) - 1; i >= 0; i-- {
		if c.sent[i].Method == method {
			return c.sent[i], true
		}
	}
	return sentCommand{}, false
}

func (c *fakeConn) count(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, cmd := range c.sent {
		if cmd.Method == method {
			n++
		}
	}
	return n
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.sent = nil
	c.mu.Unlock()
}

func toRaw(v any) json.RawMessage {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return json.RawMessage(x)
	case json.RawMessage:
		return x
	}
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func enabledSession(t *testing.T) (*Session, *fakeConn) {
	t.Helper()

	conn := newFakeConn()
	s := NewSession()
	require.NoError(t, s.Enable(context.Background(), conn))
	conn.reset()
	return s, conn
}

const pausedFixture = `{
	"reason": "breakpoint",
	"hitBreakpoints": ["1:10:0:app.js"],
	"data": {"kind": "test"},
	"callFrames": [
		{
			"callFrameId": "frame-0",
			"functionName": "",
			"location": {"scriptId": "42", "lineNumber": 10},
			"url": "http://localhost/app.js",
			"scopeChain": [
				{
					"type": "local",
					"object": {"type": "object", "objectId": "scope-0"},
					"startLocation": {"scriptId": "42", "lineNumber": 8},
					"endLocation": {"scriptId": "42", "lineNumber": 20, "columnNumber": 1}
				},
				{
					"type": "global",
					"object": {"type": "object", "className": "Window", "description": "Window", "objectId": "scope-1"}
				}
			],
			"this": {"type": "undefined"}
		},
		{
			"callFrameId": "frame-1",
			"functionName": "main",
			"location": {"scriptId": "42", "lineNumber": 30, "columnNumber": 4},
			"url": "http://localhost/app.js",
			"scopeChain": [],
			"this": {"type": "object", "className": "Object", "objectId": "this-1"}
		}
	]
}`

func TestNewSession(t *testing.T) {
	s := NewSession()

	assert.False(t, s.IsEnabled())
	assert.Nil(t, s.Conn())
	assert.False(t, s.IsPaused())
	assert.Empty(t, s.Scripts())
	assert.Empty(t, s.Breakpoints())

	state := s.PausedState()
	assert.False(t, state.IsPaused)
	assert.NotNil(t, state.CallFrames)
	assert.Empty(t, state.CallFrames)
}

func TestEnable(t *testing.T) {
	conn := newFakeConn()
	s := NewSession()

	require.NoError(t, s.Enable(context.Background(), conn))

	assert.True(t, s.IsEnabled())
	assert.Same(t, conn, s.Conn())
	assert.Equal(t, []string{"Debugger.enable", "Debugger.setAsyncCallStackDepth"}, conn.methods())

	depth, ok := conn.last("Debugger.setAsyncCallStackDepth")
	require.True(t, ok)
	assert.Equal(t, int64(AsyncCallStackDepth), gjson.GetBytes(depth.Params, "maxDepth").Int())

	for _, event := range []string{EventScriptParsed, EventPaused, EventResumed, EventBreakpointResolved} {
		assert.Equal(t, 1, conn.handlerCount(event), event)
	}
}

func TestEnableNilConn(t *testing.T) {
	s := NewSession()

	err := s.Enable(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilConn)
	assert.False(t, s.IsEnabled())
}

func TestEnableTwiceSameConn(t *testing.T) {
	s, conn := enabledSession(t)

	require.NoError(t, s.Enable(context.Background(), conn))

	assert.Empty(t, conn.methods())
	assert.Equal(t, 1, conn.handlerCount(EventScriptParsed))
}

func TestEnableReceivesScriptsBeforeResponse(t *testing.T) {
	conn := newFakeConn()
	conn.onSend("Debugger.enable", func(json.RawMessage) (json.RawMessage, error) {
		conn.emit(EventScriptParsed, `{"scriptId":"1","url":"http://localhost/a.js"}`)
		conn.emit(EventScriptParsed, `{"scriptId":"2","url":"http://localhost/b.js"}`)
		return json.RawMessage(`{"debuggerId":"d1"}`), nil
	})

	s := NewSession()
	require.NoError(t, s.Enable(context.Background(), conn))

	scripts := s.Scripts()
	require.Len(t, scripts, 2)
	assert.Equal(t, "1", scripts[0].ScriptID)
	assert.Equal(t, "2", scripts[1].ScriptID)
}

func TestEnableAsyncDepthFailureTolerated(t *testing.T) {
	conn := newFakeConn()
	conn.fail("Debugger.setAsyncCallStackDepth", &cdp.ProtocolError{
		Method:  "Debugger.setAsyncCallStackDepth",
		Code:    -32601,
		Message: "method not found",
	})

	s := NewSession()
	require.NoError(t, s.Enable(context.Background(), conn))
	assert.True(t, s.IsEnabled())
}

func TestEnableFailure(t *testing.T) {
	cause := errors.New("boom")
	conn := newFakeConn()
	conn.fail("Debugger.enable", cause)

	s := NewSession()
	err := s.Enable(context.Background(), conn)

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.False(t, s.IsEnabled())
	assert.Nil(t, s.Conn())
	assert.Zero(t, conn.totalHandlers())
	assert.Zero(t, conn.count("Debugger.setAsyncCallStackDepth"))

	// A later scriptParsed must not reach the session.
	conn.emit(EventScriptParsed, `{"scriptId":"1","url":"a.js"}`)
	assert.Empty(t, s.Scripts())
}

func TestEnableResetsScripts(t *testing.T) {
	s, conn := enabledSession(t)
	conn.emit(EventScriptParsed, `{"scriptId":"1","url":"a.js"}`)
	require.Len(t, s.Scripts(), 1)

	s.Disable(context.Background())
	require.NoError(t, s.Enable(context.Background(), conn))

	assert.Empty(t, s.Scripts())
	assert.Empty(t, s.ScriptsByURL("a.js"))
}

func TestEnableDifferentConnReplaces(t *testing.T) {
	s, first := enabledSession(t)
	first.emit(EventScriptParsed, `{"scriptId":"1","url":"a.js"}`)

	second := newFakeConn()
	require.NoError(t, s.Enable(context.Background(), second))

	assert.Same(t, second, s.Conn())
	assert.Equal(t, 1, first.count("Debugger.disable"))
	assert.Zero(t, first.totalHandlers())
	assert.Equal(t, 1, second.handlerCount(EventPaused))
	assert.Empty(t, s.Scripts())

	first.emit(EventScriptParsed, `{"scriptId":"2","url":"b.js"}`)
	assert.Empty(t, s.Scripts())
}

func TestDisable(t *testing.T) {
	s, conn := enabledSession(t)
	conn.respond("Debugger.setBreakpointByUrl", `{"breakpointId":"bp1","locations":[]}`)

	conn.emit(EventScriptParsed, `{"scriptId":"1","url":"a.js"}`)
	_, err := s.SetBreakpoint(context.Background(), "a.js", 1, 0, "")
	require.NoError(t, err)
	conn.emit(EventPaused, pausedFixture)
	require.True(t, s.IsPaused())

	s.Disable(context.Background())

	assert.False(t, s.IsEnabled())
	assert.Nil(t, s.Conn())
	assert.Empty(t, s.Scripts())
	assert.Empty(t, s.ScriptsByURL("a.js"))
	assert.Empty(t, s.Breakpoints())
	assert.False(t, s.IsPaused())
	assert.Empty(t, s.PausedState().CallFrames)
	assert.Zero(t, conn.totalHandlers())
	assert.Equal(t, 1, conn.count("Debugger.disable"))
}

func TestDisableIdempotent(t *testing.T) {
	s, conn := enabledSession(t)

	s.Disable(context.Background())
	s.Disable(context.Background())

	assert.Equal(t, 1, conn.count("Debugger.disable"))

	// Never enabled.
	NewSession().Disable(context.Background())
}

func TestDisableFailureSwallowed(t *testing.T) {
	s, conn := enabledSession(t)
	conn.fail("Debugger.disable", cdp.ErrClosed)

	s.Disable(context.Background())

	assert.False(t, s.IsEnabled())
	assert.Zero(t, conn.totalHandlers())
}

func TestCommandsRequireEnabled(t *testing.T) {
	ctx := context.Background()
	s := NewSession()

	tests := []struct {
		name string
		call func() error
	}{
		{"Resume", func() error { return s.Resume(ctx) }},
		{"Pause", func() error { return s.Pause(ctx) }},
		{"StepOver", func() error { return s.StepOver(ctx) }},
		{"StepInto", func() error { return s.StepInto(ctx) }},
		{"StepOut", func() error { return s.StepOut(ctx) }},
		{"SetBreakpoint", func() error {
			_, err := s.SetBreakpoint(ctx, "a.js", 1, 0, "")
			return err
		}},
		{"SetBreakpointByURLRegex", func() error {
			_, err := s.SetBreakpointByURLRegex(ctx, ".*", 1, 0, "")
			return err
		}},
		{"RemoveBreakpoint", func() error { return s.RemoveBreakpoint(ctx, "bp1") }},
		{"RemoveAllBreakpoints", func() error { return s.RemoveAllBreakpoints(ctx) }},
		{"ScriptSource", func() error {
			_, err := s.ScriptSource(ctx, "1")
			return err
		}},
		{"ScopeVariables", func() error {
			_, err := s.ScopeVariables(ctx, "scope-0")
			return err
		}},
		{"EvaluateOnCallFrame", func() error {
			_, err := s.EvaluateOnCallFrame(ctx, "frame-0", "x", DefaultEvalOptions())
			return err
		}},
		{"SearchInScripts", func() error {
			_, err := s.SearchInScripts(ctx, "x", SearchOptions{})
			return err
		}},
		{"WaitForPause", func() error {
			_, err := s.WaitForPause(ctx)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), ErrNotEnabled)
		})
	}
}

func TestStepCommandsRequirePause(t *testing.T) {
	ctx := context.Background()
	s, conn := enabledSession(t)

	tests := map[string]func() error{
		"Resume":   func() error { return s.Resume(ctx) },
		"StepOver": func() error { return s.StepOver(ctx) },
		"StepInto": func() error { return s.StepInto(ctx) },
		"StepOut":  func() error { return s.StepOut(ctx) },
		"EvaluateOnCallFrame": func() error {
			_, err := s.EvaluateOnCallFrame(ctx, "frame-0", "x", DefaultEvalOptions())
			return err
		},
	}

	for name, call := range tests {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, call(), ErrNotPaused)
		})
	}
	assert.Empty(t, conn.methods())
}

func TestPauseWhileRunning(t *testing.T) {
	s, conn := enabledSession(t)

	require.NoError(t, s.Pause(context.Background()))

	assert.Equal(t, []string{"Debugger.pause"}, conn.methods())
	// Local state only changes when the event arrives.
	assert.False(t, s.IsPaused())
}

func TestStepCommandsWhilePaused(t *testing.T) {
	ctx := context.Background()
	s, conn := enabledSession(t)
	conn.emit(EventPaused, pausedFixture)

	require.NoError(t, s.StepOver(ctx))
	require.NoError(t, s.StepInto(ctx))
	require.NoError(t, s.StepOut(ctx))
	require.NoError(t, s.Resume(ctx))

	assert.Equal(t, []string{
		"Debugger.stepOver",
		"Debugger.stepInto",
		"Debugger.stepOut",
		"Debugger.resume",
	}, conn.methods())
	assert.True(t, s.IsPaused())

	conn.emit(EventResumed, `{}`)
	assert.False(t, s.IsPaused())
}

func TestStepCommandErrorUnwrapped(t *testing.T) {
	s, conn := enabledSession(t)
	conn.emit(EventPaused, pausedFixture)

	protoErr := &cdp.ProtocolError{Method: "Debugger.resume", Code: -32000, Message: "Can only perform operation while paused."}
	conn.fail("Debugger.resume", protoErr)

	err := s.Resume(context.Background())
	assert.Same(t, protoErr, err)
}

func TestPausedEvent(t *testing.T) {
	s, conn := enabledSession(t)

	conn.emit(EventPaused, pausedFixture)

	require.True(t, s.IsPaused())
	state := s.PausedState()
	assert.True(t, state.IsPaused)
	assert.Equal(t, "breakpoint", state.Reason)
	assert.Equal(t, []string{"1:10:0:app.js"}, state.HitBreakpoints)
	assert.JSONEq(t, `{"kind":"test"}`, string(state.Data))
	require.Len(t, state.CallFrames, 2)

	top, ok := state.TopFrame()
	require.True(t, ok)
	assert.Equal(t, "frame-0", top.CallFrameID)
	assert.Equal(t, AnonymousFunction, top.FunctionName)
	assert.Equal(t, Location{ScriptID: "42", LineNumber: 10, ColumnNumber: 0}, top.Location)
	assert.Equal(t, "http://localhost/app.js", top.URL)
	assert.Equal(t, "undefined", top.This.Type)

	require.Len(t, top.ScopeChain, 2)
	local := top.ScopeChain[0]
	assert.Equal(t, "local", local.Type)
	assert.Equal(t, "scope-0", local.Object.ObjectID)
	require.NotNil(t, local.StartLocation)
	assert.Equal(t, Location{ScriptID: "42", LineNumber: 8}, *local.StartLocation)
	require.NotNil(t, local.EndLocation)
	assert.Equal(t, Location{ScriptID: "42", LineNumber: 20, ColumnNumber: 1}, *local.EndLocation)

	global := top.ScopeChain[1]
	assert.Nil(t, global.StartLocation)
	assert.Nil(t, global.EndLocation)
	assert.Equal(t, "Window", global.Object.ClassName)

	second := state.CallFrames[1]
	assert.Equal(t, "main", second.FunctionName)
	assert.Equal(t, 4, second.Location.ColumnNumber)
	assert.NotNil(t, second.ScopeChain)
	assert.Equal(t, "this-1", second.This.ObjectID)
}

func TestPausedEventReplacesPrevious(t *testing.T) {
	s, conn := enabledSession(t)

	conn.emit(EventPaused, pausedFixture)
	conn.emit(EventPaused, `{"reason":"other","callFrames":[]}`)

	state := s.PausedState()
	assert.True(t, state.IsPaused)
	assert.Equal(t, "other", state.Reason)
	assert.Empty(t, state.CallFrames)
	assert.Empty(t, state.HitBreakpoints)
}

func TestResumedEventDiscardsFrames(t *testing.T) {
	s, conn := enabledSession(t)
	conn.emit(EventPaused, pausedFixture)

	conn.emit(EventResumed, nil)

	state := s.PausedState()
	assert.False(t, state.IsPaused)
	assert.Empty(t, state.Reason)
	assert.Empty(t, state.CallFrames)
	assert.Nil(t, state.Data)
	assert.Nil(t, state.HitBreakpoints)

	_, ok := state.TopFrame()
	assert.False(t, ok)
}

func TestPausedStateIsSnapshot(t *testing.T) {
	s, conn := enabledSession(t)
	conn.emit(EventPaused, pausedFixture)

	state := s.PausedState()
	state.CallFrames[0].FunctionName = "changed"
	state.HitBreakpoints[0] = "changed"

	fresh := s.PausedState()
	assert.Equal(t, AnonymousFunction, fresh.CallFrames[0].FunctionName)
	assert.Equal(t, "1:10:0:app.js", fresh.HitBreakpoints[0])

	// A snapshot taken while paused survives a resume.
	conn.emit(EventResumed, nil)
	assert.True(t, state.IsPaused)
	assert.Len(t, state.CallFrames, 2)
}

func TestMalformedEventsIgnored(t *testing.T) {
	s, conn := enabledSession(t)

	conn.emit(EventScriptParsed, `{"scriptId": 5`)
	conn.emit(EventPaused, `[1,2]`)
	conn.emit(EventBreakpointResolved, `"nope"`)

	assert.Empty(t, s.Scripts())
	assert.False(t, s.IsPaused())
}

func TestSessionHandlers(t *testing.T) {
	s, conn := enabledSession(t)

	var (
		scripts []Script
		paused  []PausedState
		resumed int
	)
	s.SetHandlers(SessionHandlers{
		OnScriptParsed: func(script Script) { scripts = append(scripts, script) },
		OnPaused:       func(state PausedState) { paused = append(paused, state) },
		OnResumed:      func() { resumed++ },
	})

	conn.emit(EventScriptParsed, `{"scriptId":"1","url":"a.js"}`)
	conn.emit(EventPaused, pausedFixture)
	conn.emit(EventResumed, nil)

	require.Len(t, scripts, 1)
	assert.Equal(t, "a.js", scripts[0].URL)
	require.Len(t, paused, 1)
	assert.Equal(t, "breakpoint", paused[0].Reason)
	assert.Equal(t, 1, resumed)
}

func TestWaitForPauseAlreadyPaused(t *testing.T) {
	s, conn := enabledSession(t)
	conn.emit(EventPaused, pausedFixture)

	state, err := s.WaitForPause(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "breakpoint", state.Reason)
}

func TestWaitForPause(t *testing.T) {
	s, conn := enabledSession(t)

	result := make(chan PausedState, 1)
	errc := make(chan error, 1)
	go func() {
		state, err := s.WaitForPause(context.Background())
		if err != nil {
			errc <- err
			return
		}
		result <- state
	}()

	// Keep emitting until the waiter has seen a pause; it may not be
	// blocked yet when the first event goes out.
	deadline := time.After(2 * time.Second)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case state := <-result:
			assert.True(t, state.IsPaused)
			assert.Equal(t, "breakpoint", state.Reason)
			return
		case err := <-errc:
			t.Fatalf("WaitForPause: %v", err)
		case <-deadline:
			t.Fatal("timed out waiting for pause")
		case <-ticker.C:
			conn.emit(EventPaused, pausedFixture)
			conn.emit(EventResumed, nil)
		}
	}
}

func TestWaitForPauseContext(t *testing.T) {
	s, _ := enabledSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.WaitForPause(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForPauseDisabledWhileWaiting(t *testing.T) {
	s, _ := enabledSession(t)

	errc := make(chan error, 1)
	go func() {
		_, err := s.WaitForPause(context.Background())
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	s.Disable(context.Background())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrNotEnabled)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForPause still blocked after Disable")
	}
}

func TestWaitForPauseAfterReenable(t *testing.T) {
	s, conn := enabledSession(t)
	s.Disable(context.Background())

	_, err := s.WaitForPause(context.Background())
	assert.ErrorIs(t, err, ErrNotEnabled)

	require.NoError(t, s.Enable(context.Background(), conn))
	conn.emit(EventPaused, pausedFixture)

	state, err := s.WaitForPause(context.Background())
	require.NoError(t, err)
	assert.True(t, state.IsPaused)
}

func TestCDPClientImplementsConn(t *testing.T) {
	var _ Conn = (*cdp.Client)(nil)
}
