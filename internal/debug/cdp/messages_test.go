package cdp

import "encoding/json"

// Typed views of the wire messages, for building and reading frames in
// tests. The client itself routes with gjson.

// Request represents a CDP command message.
type Request struct {
	ID        int64           `json:"id"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

// Response represents the reply to a command.
type Response struct {
	ID        int64           `json:"id"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *ErrorObject    `json:"error,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

// Event represents a message pushed by the target without a request.
type Event struct {
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

// ErrorObject is the error member of a failed response.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}
