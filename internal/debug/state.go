package debug

import (
	"context"
	"encoding/json"
	"sync"
)

// PausedState is a snapshot of the target's execution state.
type PausedState struct {
	IsPaused bool `json:"isPaused"`

	// Reason is the protocol's pause reason, e.g. "breakpoint" or "other".
	Reason string `json:"reason,omitempty"`

	// CallFrames is the stack at the moment of the pause, top first. It is
	// empty while running.
	CallFrames []CallFrame `json:"callFrames"`

	// Data is auxiliary data attached to the pause, as sent by the target.
	Data json.RawMessage `json:"data,omitempty"`

	// HitBreakpoints are the ids of the breakpoints that caused the pause.
	HitBreakpoints []string `json:"hitBreakpoints,omitempty"`
}

// TopFrame returns the innermost call frame.
func (p PausedState) TopFrame() (CallFrame, bool) {
	if len(p.CallFrames) == 0 {
		return CallFrame{}, false
	}
	return p.CallFrames[0], true
}

// pauseState holds the single paused/running cell of a session. Only the
// event handlers write it.
type pauseState struct {
	mu      sync.RWMutex
	current PausedState

	// last is the most recent pause, kept after a resume so that a waiter
	// woken by a short pause still sees it.
	last PausedState

	// paused is closed and replaced on every transition to Paused and on
	// reset, waking WaitForPause callers.
	paused chan struct{}
}

func newPauseState() *pauseState {
	return &pauseState{
		current: runningState(),
		paused:  make(chan struct{}),
	}
}

func runningState() PausedState {
	return PausedState{CallFrames: []CallFrame{}}
}

// onPaused moves to Paused, replacing any earlier pause.
func (p *pauseState) onPaused(ev pausedEvent) {
	state := PausedState{
		IsPaused:       true,
		Reason:         ev.Reason,
		CallFrames:     toCallFrames(ev.CallFrames),
		Data:           ev.Data,
		HitBreakpoints: ev.HitBreakpoints,
	}

	p.mu.Lock()
	p.current = state
	p.last = state
	close(p.paused)
	p.paused = make(chan struct{})
	p.mu.Unlock()
}

// onResumed moves to Running, discarding all frame data.
func (p *pauseState) onResumed() {
	p.mu.Lock()
	p.current = runningState()
	p.mu.Unlock()
}

// reset returns to Running and forgets the last pause. Blocked waiters
// return ErrNotEnabled.
func (p *pauseState) reset() {
	p.mu.Lock()
	p.current = runningState()
	p.last = PausedState{}
	close(p.paused)
	p.paused = make(chan struct{})
	p.mu.Unlock()
}

func (p *pauseState) isPaused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current.IsPaused
}

// snapshot returns a copy safe for the caller to keep.
func (p *pauseState) snapshot() PausedState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return copyState(p.current)
}

func copyState(src PausedState) PausedState {
	s := src
	s.CallFrames = append([]CallFrame{}, src.CallFrames...)
	if src.HitBreakpoints != nil {
		s.HitBreakpoints = append([]string(nil), src.HitBreakpoints...)
	}
	return s
}

// wait blocks until execution is paused. It returns at once if it already is.
// active is checked after the wake channel is taken, so a reset racing with
// the call either fails the check or closes that channel.
func (p *pauseState) wait(ctx context.Context, active func() error) (PausedState, error) {
	p.mu.RLock()
	if p.current.IsPaused {
		s := copyState(p.current)
		p.mu.RUnlock()
		return s, nil
	}
	ch := p.paused
	p.mu.RUnlock()

	if err := active(); err != nil {
		return PausedState{}, err
	}

	select {
	case <-ctx.Done():
		return PausedState{}, ctx.Err()
	case <-ch:
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.last.IsPaused {
		return PausedState{}, ErrNotEnabled
	}
	return copyState(p.last), nil
}
