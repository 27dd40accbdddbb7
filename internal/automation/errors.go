package automation

import "errors"

// Errors for script execution.
var (
	// ErrRunnerClosed is returned when running a script on a closed Runner.
	ErrRunnerClosed = errors.New("lua runner is closed")
)
