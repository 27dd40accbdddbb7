package debug

import "errors"

// Sentinel errors for the debug package.
var (
	// ErrNotEnabled is returned when a command is issued before Enable
	// succeeded or after Disable.
	ErrNotEnabled = errors.New("debugger not enabled")

	// ErrNotPaused is returned by commands that require suspended execution.
	ErrNotPaused = errors.New("execution is not paused")

	// ErrNilConn is returned by Enable when no connection is given.
	ErrNilConn = errors.New("nil connection")
)
