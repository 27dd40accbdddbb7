package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/atomic"

	"github.com/dshills/cdpdebug/internal/logging"
)

// Handler receives the params of an event.
//
// Handlers run on the client's receive goroutine, in arrival order. A handler
// must not block on a command round-trip: the response could only be read by
// the goroutine it is blocking.
type Handler func(params json.RawMessage)

// HandlerID identifies a registered handler for Off.
type HandlerID uint64

type handlerEntry struct {
	id HandlerID
	fn Handler
}

// Client sends commands to a CDP target and dispatches its events.
type Client struct {
	transport  Transport
	seq        *atomic.Int64
	handlerSeq *atomic.Uint64

	pending   map[int64]*pendingRequest
	pendingMu sync.Mutex

	handlers  map[string][]handlerEntry
	handlerMu sync.RWMutex

	events *EventLog
	logger *logging.Logger

	done      chan struct{}
	closeOnce sync.Once
	err       error
	errMu     sync.RWMutex
}

// pendingRequest tracks a command awaiting its response.
type pendingRequest struct {
	method    string
	done      chan struct{}
	closeOnce sync.Once
	result    json.RawMessage
	err       error
}

// close safely closes the done channel.
func (p *pendingRequest) close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *logging.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithEventLog records every received event into log.
func WithEventLog(log *EventLog) ClientOption {
	return func(c *Client) {
		c.events = log
	}
}

// NewClient creates a client over transport and starts reading from it.
func NewClient(transport Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport:  transport,
		seq:        atomic.NewInt64(0),
		handlerSeq: atomic.NewUint64(0),
		pending:    make(map[int64]*pendingRequest),
		handlers:   make(map[string][]handlerEntry),
		logger:     logging.Nop(),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.receiveLoop()
	return c
}

// Close closes the client and the underlying transport. Commands still
// waiting for a response fail with ErrClosed.
func (c *Client) Close() error {
	c.shutdown(ErrClosed)
	return c.transport.Close()
}

// Done is closed once the client stops receiving, either because Close was
// called or because the transport failed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the receive error that stopped the client, if any.
func (c *Client) Err() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()
	return c.err
}

// EventLog returns the attached event log, or nil.
func (c *Client) EventLog() *EventLog {
	return c.events
}

// shutdown stops the client and fails every pending request with err.
func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		if c.err == nil && err != ErrClosed {
			c.err = err
		}
		c.errMu.Unlock()

		close(c.done)

		c.pendingMu.Lock()
		for _, req := range c.pending {
			req.err = err
			req.close()
		}
		c.pending = make(map[int64]*pendingRequest)
		c.pendingMu.Unlock()
	})
}

// closedErr is what Send reports after shutdown.
func (c *Client) closedErr() error {
	if err := c.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return ErrClosed
}

// receiveLoop continuously receives messages from the transport.
func (c *Client) receiveLoop() {
	for {
		msg, err := c.transport.Receive()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}

			c.logger.Debug("receive failed: %v", err)
			c.shutdown(fmt.Errorf("connection lost: %w", err))
			return
		}

		select {
		case <-c.done:
			return
		default:
		}

		c.handleMessage(msg)
	}
}

// handleMessage routes a message to the pending request or event handlers.
func (c *Client) handleMessage(msg []byte) {
	if !gjson.ValidBytes(msg) {
		c.logger.Warn("dropping malformed message (%d bytes)", len(msg))
		return
	}

	if id := gjson.GetBytes(msg, "id"); id.Exists() {
		c.handleResponse(id.Int(), msg)
		return
	}

	if method := gjson.GetBytes(msg, "method"); method.Exists() {
		c.handleEvent(method.String(), rawField(msg, "params"))
		return
	}

	c.logger.Debug("ignoring message without id or method")
}

// handleResponse completes the pending request with the given id.
func (c *Client) handleResponse(id int64, msg []byte) {
	c.pendingMu.Lock()
	req, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	if !ok {
		c.logger.Debug("response for unknown request %d", id)
		return
	}

	if e := gjson.GetBytes(msg, "error"); e.Exists() {
		req.err = &ProtocolError{
			Method:  req.method,
			Code:    int(e.Get("code").Int()),
			Message: e.Get("message").String(),
			Data:    e.Get("data").String(),
		}
	} else {
		req.result = rawField(msg, "result")
		if req.result == nil {
			req.result = json.RawMessage(`{}`)
		}
	}
	req.close()
}

// handleEvent calls every handler registered for method.
func (c *Client) handleEvent(method string, params json.RawMessage) {
	if c.events != nil {
		c.events.Record(method, params)
	}

	c.handlerMu.RLock()
	handlers := append([]handlerEntry(nil), c.handlers[method]...)
	c.handlerMu.RUnlock()

	for _, h := range handlers {
		h.fn(params)
	}
}

// rawField returns the raw JSON of a top-level field, or nil if absent.
func rawField(msg []byte, name string) json.RawMessage {
	r := gjson.GetBytes(msg, name)
	if !r.Exists() {
		return nil
	}
	return json.RawMessage(r.Raw)
}

// Send sends a command and waits for its result. params may be nil, a
// json.RawMessage, or any value encodable as a JSON object.
func (c *Client) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	select {
	case <-c.done:
		return nil, c.closedErr()
	default:
	}

	id := c.seq.Inc()

	payload, err := sjson.SetBytes([]byte(`{}`), "id", id)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	payload, err = sjson.SetBytes(payload, "method", method)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	if params != nil {
		payload, err = sjson.SetBytes(payload, "params", params)
		if err != nil {
			return nil, fmt.Errorf("marshal params for %s: %w", method, err)
		}
	}

	pending := &pendingRequest{
		method: method,
		done:   make(chan struct{}),
	}

	c.pendingMu.Lock()
	select {
	case <-c.done:
		c.pendingMu.Unlock()
		return nil, c.closedErr()
	default:
	}
	c.pending[id] = pending
	c.pendingMu.Unlock()

	if err := c.transport.Send(payload); err != nil {
		c.removePending(id)
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.removePending(id)
		return nil, ctx.Err()
	case <-pending.done:
		if pending.err != nil {
			return nil, pending.err
		}
		return pending.result, nil
	}
}

func (c *Client) removePending(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// On registers handler for the named event and returns its id.
func (c *Client) On(event string, handler Handler) HandlerID {
	id := HandlerID(c.handlerSeq.Inc())

	c.handlerMu.Lock()
	c.handlers[event] = append(c.handlers[event], handlerEntry{id: id, fn: handler})
	c.handlerMu.Unlock()

	return id
}

// Off removes a handler. Removing an unknown or already removed id is a no-op.
func (c *Client) Off(event string, id HandlerID) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()

	entries := c.handlers[event]
	for i, h := range entries {
		if h.id == id {
			entries = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}

	if len(entries) == 0 {
		delete(c.handlers, event)
	} else {
		c.handlers[event] = entries
	}
}

// HandlerCount returns the number of handlers registered for event.
func (c *Client) HandlerCount(event string) int {
	c.handlerMu.RLock()
	defer c.handlerMu.RUnlock()
	return len(c.handlers[event])
}
