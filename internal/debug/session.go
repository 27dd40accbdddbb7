package debug

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dshills/cdpdebug/internal/debug/cdp"
	"github.com/dshills/cdpdebug/internal/logging"
)

// AsyncCallStackDepth is the async stack depth requested on Enable.
const AsyncCallStackDepth = 32

// Protocol events consumed by the session.
const (
	EventScriptParsed       = "Debugger.scriptParsed"
	EventPaused             = "Debugger.paused"
	EventResumed            = "Debugger.resumed"
	EventBreakpointResolved = "Debugger.breakpointResolved"
)

// Conn is the protocol connection a Session drives. *cdp.Client implements
// it. Implementations must be comparable (pointer types), since Enable
// compares connections to detect repeated calls.
type Conn interface {
	// Send performs a command round-trip.
	Send(ctx context.Context, method string, params any) (json.RawMessage, error)

	// On subscribes to an event.
	On(event string, handler cdp.Handler) cdp.HandlerID

	// Off unsubscribes; unknown ids are ignored.
	Off(event string, id cdp.HandlerID)
}

// SessionHandlers contains callbacks for session events. They run on the
// connection's event goroutine after the session state has been updated.
type SessionHandlers struct {
	// OnScriptParsed is called for every script reported by the target.
	OnScriptParsed func(script Script)

	// OnPaused is called when execution pauses.
	OnPaused func(state PausedState)

	// OnResumed is called when execution resumes.
	OnResumed func()
}

type subscription struct {
	event string
	id    cdp.HandlerID
}

// Session tracks scripts, breakpoints and pause state for one target.
type Session struct {
	// lifecycleMu serializes Enable and Disable.
	lifecycleMu sync.Mutex

	mu      sync.RWMutex
	conn    Conn
	enabled bool
	subs    []subscription

	scripts     *ScriptRegistry
	breakpoints *BreakpointRegistry
	pause       *pauseState

	handlers   SessionHandlers
	handlersMu sync.RWMutex

	logger *logging.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSession creates a disabled session.
func NewSession(opts ...Option) *Session {
	s := &Session{
		scripts:     NewScriptRegistry(),
		breakpoints: NewBreakpointRegistry(),
		pause:       newPauseState(),
		logger:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetHandlers sets the session event handlers.
func (s *Session) SetHandlers(handlers SessionHandlers) {
	s.handlersMu.Lock()
	s.handlers = handlers
	s.handlersMu.Unlock()
}

func (s *Session) currentHandlers() SessionHandlers {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	return s.handlers
}

// Enable starts tracking the debugger domain on conn.
//
// Calling Enable again with the same conn while enabled does nothing. A
// different conn replaces the current one as if Disable had been called
// first. The session counts as enabled only once Debugger.enable succeeded;
// raising the async call stack depth is best effort.
func (s *Session) Enable(ctx context.Context, conn Conn) error {
	if conn == nil {
		return ErrNilConn
	}

	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.RLock()
	enabled, same := s.enabled, s.enabled && s.conn == conn
	s.mu.RUnlock()

	if same {
		return nil
	}
	if enabled {
		s.disableLocked(ctx)
	}

	s.scripts.Clear()

	// Subscribe before enabling: the target reports already loaded scripts
	// before it answers Debugger.enable.
	subs := s.subscribe(conn)

	if _, err := conn.Send(ctx, "Debugger.enable", nil); err != nil {
		unsubscribe(conn, subs)
		return fmt.Errorf("enable debugger: %w", err)
	}

	if _, err := conn.Send(ctx, "Debugger.setAsyncCallStackDepth", map[string]any{
		"maxDepth": AsyncCallStackDepth,
	}); err != nil {
		s.logger.Debug("async call stack depth not set: %v", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.subs = subs
	s.enabled = true
	s.mu.Unlock()

	s.logger.Info("debugger enabled (%d scripts known)", s.scripts.Len())
	return nil
}

// Disable stops tracking and clears all state. It never fails: the
// Debugger.disable command is best effort.
func (s *Session) Disable(ctx context.Context) {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.disableLocked(ctx)
}

func (s *Session) disableLocked(ctx context.Context) {
	s.mu.Lock()
	if !s.enabled || s.conn == nil {
		s.mu.Unlock()
		return
	}
	conn, subs := s.conn, s.subs
	s.enabled = false
	s.subs = nil
	s.mu.Unlock()

	unsubscribe(conn, subs)

	if _, err := conn.Send(ctx, "Debugger.disable", nil); err != nil {
		s.logger.Debug("disable debugger: %v", err)
	}

	s.scripts.Clear()
	s.breakpoints.Clear()
	s.pause.reset()

	s.mu.Lock()
	s.conn = nil
	s.mu.Unlock()

	s.logger.Info("debugger disabled")
}

func (s *Session) subscribe(conn Conn) []subscription {
	return []subscription{
		{EventScriptParsed, conn.On(EventScriptParsed, s.onScriptParsed)},
		{EventPaused, conn.On(EventPaused, s.onPaused)},
		{EventResumed, conn.On(EventResumed, s.onResumed)},
		{EventBreakpointResolved, conn.On(EventBreakpointResolved, s.onBreakpointResolved)},
	}
}

func unsubscribe(conn Conn, subs []subscription) {
	for _, sub := range subs {
		conn.Off(sub.event, sub.id)
	}
}

// IsEnabled reports whether the session is enabled.
func (s *Session) IsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// Conn returns the active connection, or nil when disabled.
func (s *Session) Conn() Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

// activeConn returns the connection or ErrNotEnabled.
func (s *Session) activeConn() (Conn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.enabled || s.conn == nil {
		return nil, ErrNotEnabled
	}
	return s.conn, nil
}

// pausedConn returns the connection, or ErrNotEnabled / ErrNotPaused in
// that order of precedence.
func (s *Session) pausedConn() (Conn, error) {
	conn, err := s.activeConn()
	if err != nil {
		return nil, err
	}
	if !s.pause.isPaused() {
		return nil, ErrNotPaused
	}
	return conn, nil
}

// Event handlers

func (s *Session) onScriptParsed(params json.RawMessage) {
	var ev scriptParsedEvent
	if err := json.Unmarshal(params, &ev); err != nil {
		s.logger.Warn("malformed %s: %v", EventScriptParsed, err)
		return
	}

	script := toScript(ev)
	s.scripts.Add(script)

	if h := s.currentHandlers().OnScriptParsed; h != nil {
		h(script)
	}
}

func (s *Session) onPaused(params json.RawMessage) {
	var ev pausedEvent
	if err := json.Unmarshal(params, &ev); err != nil {
		s.logger.Warn("malformed %s: %v", EventPaused, err)
		return
	}

	s.pause.onPaused(ev)
	s.logger.Debug("paused: %s (%d frames)", ev.Reason, len(ev.CallFrames))

	if h := s.currentHandlers().OnPaused; h != nil {
		h(s.pause.snapshot())
	}
}

func (s *Session) onResumed(json.RawMessage) {
	s.pause.onResumed()
	s.logger.Debug("resumed")

	if h := s.currentHandlers().OnResumed; h != nil {
		h()
	}
}

func (s *Session) onBreakpointResolved(params json.RawMessage) {
	var ev breakpointResolvedEvent
	if err := json.Unmarshal(params, &ev); err != nil {
		s.logger.Warn("malformed %s: %v", EventBreakpointResolved, err)
		return
	}

	if !s.breakpoints.AddLocation(ev.BreakpointID, toLocation(ev.Location)) {
		s.logger.Debug("resolved unknown breakpoint %s", ev.BreakpointID)
	}
}

// Execution control

// IsPaused reports whether execution is suspended.
func (s *Session) IsPaused() bool {
	return s.pause.isPaused()
}

// PausedState returns a snapshot of the current pause state.
func (s *Session) PausedState() PausedState {
	return s.pause.snapshot()
}

// WaitForPause blocks until the target pauses and returns that pause. It
// returns immediately if execution is already paused, and with ErrNotEnabled
// if the session is disabled while waiting.
func (s *Session) WaitForPause(ctx context.Context) (PausedState, error) {
	if _, err := s.activeConn(); err != nil {
		return PausedState{}, err
	}
	return s.pause.wait(ctx, func() error {
		_, err := s.activeConn()
		return err
	})
}

// Resume asks the target to continue execution.
func (s *Session) Resume(ctx context.Context) error {
	return s.stepCommand(ctx, "Debugger.resume")
}

// StepOver asks the target to run to the next statement.
func (s *Session) StepOver(ctx context.Context) error {
	return s.stepCommand(ctx, "Debugger.stepOver")
}

// StepInto asks the target to step into the next function call.
func (s *Session) StepInto(ctx context.Context) error {
	return s.stepCommand(ctx, "Debugger.stepInto")
}

// StepOut asks the target to run until the current function returns.
func (s *Session) StepOut(ctx context.Context) error {
	return s.stepCommand(ctx, "Debugger.stepOut")
}

// Pause asks the target to suspend at its next opportunity. The target
// decides when, so Pause is valid in any state.
func (s *Session) Pause(ctx context.Context) error {
	conn, err := s.activeConn()
	if err != nil {
		return err
	}
	_, err = conn.Send(ctx, "Debugger.pause", nil)
	return err
}

func (s *Session) stepCommand(ctx context.Context, method string) error {
	conn, err := s.pausedConn()
	if err != nil {
		return err
	}
	_, err = conn.Send(ctx, method, nil)
	return err
}
