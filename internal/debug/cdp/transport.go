// Package cdp implements a Chrome DevTools Protocol client.
package cdp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MaxMessageSize is the largest message accepted from the target (64MB).
// Script sources are returned whole, so this is far above typical command sizes.
const MaxMessageSize = 64 * 1024 * 1024

// Transport carries whole CDP messages to and from the target.
type Transport interface {
	// Send sends one JSON message.
	Send(msg []byte) error

	// Receive blocks until the next JSON message arrives.
	Receive() ([]byte, error)

	// Close closes the transport.
	Close() error
}

// WebSocketTransport implements Transport over a DevTools WebSocket.
type WebSocketTransport struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// DialWebSocket connects to a webSocketDebuggerUrl.
func DialWebSocket(ctx context.Context, url string) (*WebSocketTransport, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   64 * 1024,
		WriteBufferSize:  64 * 1024,
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	return NewWebSocketTransport(conn), nil
}

// NewWebSocketTransport wraps an established WebSocket connection.
func NewWebSocketTransport(conn *websocket.Conn) *WebSocketTransport {
	conn.SetReadLimit(MaxMessageSize)
	return &WebSocketTransport{conn: conn}
}

// Send sends a message as a single text frame.
func (t *WebSocketTransport) Send(msg []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.conn.WriteMessage(websocket.TextMessage, msg)
}

// Receive reads the next frame.
func (t *WebSocketTransport) Receive() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Close sends a close frame and closes the connection.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	deadline := time.Now().Add(time.Second)
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	t.mu.Unlock()

	return t.conn.Close()
}

// PipeTransport implements Transport over a pair of pipes carrying
// NUL-terminated messages, as used by --remote-debugging-pipe.
type PipeTransport struct {
	r      io.ReadCloser
	w      io.WriteCloser
	reader *bufio.Reader
	cmd    *exec.Cmd
	mu     sync.Mutex
}

// NewPipeTransport creates a transport reading from r and writing to w.
func NewPipeTransport(r io.ReadCloser, w io.WriteCloser) *PipeTransport {
	return &PipeTransport{
		r:      r,
		w:      w,
		reader: bufio.NewReader(r),
	}
}

// StartPipeTransport starts cmd with the debugging pipes attached as file
// descriptors 3 (commands) and 4 (responses and events). The caller is
// responsible for passing --remote-debugging-pipe in cmd.Args.
func StartPipeTransport(cmd *exec.Cmd) (*PipeTransport, error) {
	childIn, parentOut, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create command pipe: %w", err)
	}

	parentIn, childOut, err := os.Pipe()
	if err != nil {
		childIn.Close()
		parentOut.Close()
		return nil, fmt.Errorf("create response pipe: %w", err)
	}

	cmd.ExtraFiles = append(cmd.ExtraFiles, childIn, childOut)

	if err := cmd.Start(); err != nil {
		childIn.Close()
		childOut.Close()
		parentIn.Close()
		parentOut.Close()
		return nil, fmt.Errorf("start command: %w", err)
	}

	// The child owns its ends now.
	childIn.Close()
	childOut.Close()

	t := NewPipeTransport(parentIn, parentOut)
	t.cmd = cmd
	return t, nil
}

// Send writes a message followed by a NUL terminator.
func (t *PipeTransport) Send(msg []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return writeFrame(t.w, msg)
}

// Receive reads the next NUL-terminated message.
func (t *PipeTransport) Receive() ([]byte, error) {
	return readFrame(t.reader)
}

// Close closes both pipes and terminates the child process, if any.
func (t *PipeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.w.Close()
	t.r.Close()

	if t.cmd == nil {
		return nil
	}
	if t.cmd.Process != nil {
		t.cmd.Process.Kill()
	}

	// The exit status of a killed child is expected.
	var exitErr *exec.ExitError
	if err := t.cmd.Wait(); err != nil && !errors.As(err, &exitErr) {
		return err
	}
	return nil
}

// writeFrame writes msg and the NUL terminator.
func writeFrame(w io.Writer, msg []byte) error {
	if bytes.IndexByte(msg, 0) >= 0 {
		return fmt.Errorf("message contains NUL byte")
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if _, err := w.Write([]byte{0}); err != nil {
		return fmt.Errorf("write terminator: %w", err)
	}
	return nil
}

// readFrame reads one NUL-terminated message.
func readFrame(r *bufio.Reader) ([]byte, error) {
	var buf []byte
	for {
		chunk, err := r.ReadSlice(0)
		buf = append(buf, chunk...)
		if len(buf) > MaxMessageSize {
			return nil, fmt.Errorf("message exceeds maximum allowed size %d", MaxMessageSize)
		}
		if err == nil {
			break
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err == io.EOF && len(buf) > 0 {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	msg := buf[:len(buf)-1]
	if len(msg) == 0 {
		return nil, fmt.Errorf("empty message")
	}
	return msg, nil
}
