package cdp

import (
	"errors"
	"fmt"
)

// ErrClosed is returned when a command is sent on a closed client.
var ErrClosed = errors.New("cdp client is closed")

// ProtocolError is returned when the target answers a command with an error.
type ProtocolError struct {
	Method  string
	Code    int
	Message string
	Data    string
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("%s: %s (code %d)", e.Method, e.Message, e.Code)
	if e.Data != "" {
		msg += ": " + e.Data
	}
	return msg
}
