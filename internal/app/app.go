// Package app wires configuration, logging, the protocol client and the
// debugger session together and manages the connection lifecycle.
package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/dshills/cdpdebug/internal/config"
	"github.com/dshills/cdpdebug/internal/debug"
	"github.com/dshills/cdpdebug/internal/debug/cdp"
	"github.com/dshills/cdpdebug/internal/logging"
)

// discoveryTimeout bounds the /json/list request.
const discoveryTimeout = 10 * time.Second

// Application is the central coordinator for a debugging session.
type Application struct {
	mu sync.RWMutex

	// Core infrastructure
	config  *config.Config
	logger  *logging.Logger
	logFile io.Closer

	// Protocol components
	httpClient *http.Client
	events     *cdp.EventLog
	client     *cdp.Client
	connID     string
	session    *debug.Session

	// State
	connected *atomic.Bool
	stopWatch context.CancelFunc

	// Options
	opts Options
}

// Options configures the application. Non-empty fields override the
// configuration file and environment.
type Options struct {
	// ConfigPath is the path to the configuration file.
	ConfigPath string

	// Endpoint overrides config.Endpoint.
	Endpoint string

	// Target overrides config.Target.
	Target string

	// LogLevel overrides config.Logging.Level.
	LogLevel string

	// LogOutput receives log lines when no log file is configured.
	// Defaults to os.Stderr.
	LogOutput io.Writer
}

// New creates an unconnected Application.
func New(opts Options) (*Application, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, &InitError{Component: "config", Err: err}
	}
	return NewWithConfig(cfg, opts)
}

// NewWithConfig creates an unconnected Application from an already loaded
// configuration.
func NewWithConfig(cfg *config.Config, opts Options) (*Application, error) {
	cfg = cfg.Clone()
	if opts.Endpoint != "" {
		cfg.Endpoint = opts.Endpoint
	}
	if opts.Target != "" {
		cfg.Target = opts.Target
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, &InitError{Component: "config", Err: err}
	}

	app := &Application{
		config:     cfg,
		opts:       opts,
		httpClient: &http.Client{Timeout: discoveryTimeout},
		events:     cdp.NewEventLog(cfg.Session.EventLogSize),
		connected:  atomic.NewBool(false),
	}

	if err := app.initLogger(); err != nil {
		return nil, &InitError{Component: "logging", Err: err}
	}

	app.session = debug.NewSession(debug.WithLogger(app.logger.WithComponent("debug")))
	return app, nil
}

func (app *Application) initLogger() error {
	var out io.Writer = os.Stderr
	if app.opts.LogOutput != nil {
		out = app.opts.LogOutput
	}

	if app.config.Logging.File != "" {
		path, err := config.ExpandPath(app.config.Logging.File)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		out = f
		app.logFile = f
	}

	cfg := logging.DefaultConfig()
	cfg.Level = app.config.LogLevel()
	cfg.Output = out
	app.logger = logging.New(cfg)
	return nil
}

// Config returns the effective configuration.
func (app *Application) Config() *config.Config {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.config
}

// Logger returns the root logger.
func (app *Application) Logger() *logging.Logger {
	return app.logger
}

// Session returns the debugger session.
func (app *Application) Session() *debug.Session {
	return app.session
}

// EventLog returns the log of recently received protocol events.
func (app *Application) EventLog() *cdp.EventLog {
	return app.events
}

// Client returns the protocol client, or nil when not connected.
func (app *Application) Client() *cdp.Client {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.client
}

// ConnectionID returns the id assigned to the current connection, or ""
// when not connected. Log lines of the protocol client carry it as "conn".
func (app *Application) ConnectionID() string {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.connID
}

// IsConnected reports whether a connection is live.
func (app *Application) IsConnected() bool {
	return app.connected.Load()
}

// RequestContext derives a context bounded by the configured request
// timeout.
func (app *Application) RequestContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, app.Config().RequestTimeout())
}

// WatchConfig reloads the config file when it changes and applies the new
// log level. Other settings take effect on the next connection.
func (app *Application) WatchConfig(ctx context.Context) error {
	path := app.opts.ConfigPath
	if path == "" {
		path = config.DefaultPath
	}

	ctx, cancel := context.WithCancel(ctx)
	err := config.Watch(ctx, path, func(cfg *config.Config, err error) {
		if err != nil {
			app.logger.Warn("config reload failed: %v", err)
			return
		}
		if app.opts.LogLevel == "" {
			app.logger.SetLevel(cfg.LogLevel())
		}
		app.logger.Info("config reloaded from %s", path)
	})
	if err != nil {
		cancel()
		return err
	}

	app.mu.Lock()
	if app.stopWatch != nil {
		app.stopWatch()
	}
	app.stopWatch = cancel
	app.mu.Unlock()
	return nil
}

// Shutdown disables the session, closes the connection and releases the
// log file. It is safe to call more than once.
func (app *Application) Shutdown(ctx context.Context) error {
	var errs ErrorList

	if err := app.Disconnect(ctx); !errors.Is(err, ErrNotConnected) {
		errs.Add(err)
	}

	app.mu.Lock()
	if app.stopWatch != nil {
		app.stopWatch()
		app.stopWatch = nil
	}
	logFile := app.logFile
	app.logFile = nil
	app.mu.Unlock()

	if logFile != nil {
		app.logger.SetOutput(io.Discard)
		errs.Add(logFile.Close())
	}

	return errs.AsError()
}
