package app

import (
	"context"
	"os/exec"

	"github.com/google/uuid"

	"github.com/dshills/cdpdebug/internal/debug/cdp"
)

// PipeFlag makes Chromium-based browsers speak the protocol on fds 3 and 4.
const PipeFlag = "--remote-debugging-pipe"

// Connect discovers the configured target and attaches to it over a
// WebSocket.
func (app *Application) Connect(ctx context.Context) error {
	if app.IsConnected() {
		return ErrAlreadyConnected
	}

	cfg := app.Config()

	wsURL, err := cdp.ResolveWebSocketURL(ctx, app.httpClient, cfg.Endpoint, cfg.Target)
	if err != nil {
		return &OperationError{Op: "discover", Target: cfg.Endpoint, Err: err}
	}
	app.logger.Debug("resolved debugger URL %s", wsURL)

	transport, err := cdp.DialWebSocket(ctx, wsURL)
	if err != nil {
		return &OperationError{Op: "connect", Target: wsURL, Err: err}
	}

	return app.ConnectTransport(ctx, transport)
}

// Launch starts a browser with PipeFlag and attaches to it over the pipe.
func (app *Application) Launch(ctx context.Context, browser string, args ...string) error {
	if app.IsConnected() {
		return ErrAlreadyConnected
	}

	cmd := exec.Command(browser, append([]string{PipeFlag}, args...)...)
	transport, err := cdp.StartPipeTransport(cmd)
	if err != nil {
		return &OperationError{Op: "launch", Target: browser, Err: err}
	}
	app.logger.Info("launched %s (pid %d)", browser, cmd.Process.Pid)

	return app.ConnectTransport(ctx, transport)
}

// ConnectTransport attaches to a target over an established transport and
// enables the debugger session. The transport is closed on failure.
func (app *Application) ConnectTransport(ctx context.Context, transport cdp.Transport) error {
	if !app.connected.CompareAndSwap(false, true) {
		_ = transport.Close()
		return ErrAlreadyConnected
	}

	connID := uuid.New().String()

	app.events.Reset()
	client := cdp.NewClient(transport,
		cdp.WithLogger(app.logger.WithComponent("cdp").WithField("conn", connID)),
		cdp.WithEventLog(app.events),
	)

	enableCtx, cancel := app.RequestContext(ctx)
	defer cancel()

	if err := app.session.Enable(enableCtx, client); err != nil {
		_ = client.Close()
		app.connected.Store(false)
		return &OperationError{Op: "enable", Err: err}
	}

	app.mu.Lock()
	app.client = client
	app.connID = connID
	app.mu.Unlock()

	go app.monitor(client)

	app.logger.Info("connected (%s)", connID)
	return nil
}

// monitor logs an unexpected loss of the connection and resets state.
func (app *Application) monitor(client *cdp.Client) {
	<-client.Done()

	err := client.Err()
	if err == nil {
		return
	}

	app.mu.Lock()
	current := app.client == client
	if current {
		app.client = nil
		app.connID = ""
	}
	app.mu.Unlock()

	if !current {
		return
	}

	app.logger.Warn("%v", err)
	app.session.Disable(context.Background())
	app.connected.Store(false)
}

// Disconnect disables the session and closes the connection. It returns
// ErrNotConnected when there is no connection.
func (app *Application) Disconnect(ctx context.Context) error {
	app.mu.Lock()
	client := app.client
	app.client = nil
	app.connID = ""
	app.mu.Unlock()

	if client == nil {
		return ErrNotConnected
	}

	disableCtx, cancel := app.RequestContext(ctx)
	defer cancel()
	app.session.Disable(disableCtx)

	err := client.Close()
	app.connected.Store(false)
	app.logger.Info("disconnected")
	return err
}
