package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/cdpdebug/internal/app"
	"github.com/dshills/cdpdebug/internal/shell"
)

// shutdownTimeout bounds Debugger.disable and the connection close on exit.
const shutdownTimeout = 5 * time.Second

var globalOpts app.Options

var rootCmd = &cobra.Command{
	Use:   "cdpdebug",
	Short: "Script debugger for Chrome DevTools Protocol targets",
	Long: `cdpdebug attaches to a browser or Node.js process speaking the Chrome
DevTools Protocol and tracks its scripts, breakpoints and pauses.

Settings are read from ~/.config/cdpdebug/config.toml, then from CDPDEBUG_*
environment variables, then from the flags below.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&globalOpts.ConfigPath, "config", "c", "", "path to configuration file")
	flags.StringVar(&globalOpts.Endpoint, "endpoint", "", "DevTools HTTP endpoint or ws:// debugger URL")
	flags.StringVarP(&globalOpts.Target, "target", "t", "", "attach to the page whose URL contains this string")
	flags.StringVar(&globalOpts.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// newApplication creates the application, letting endpoint override the
// --endpoint flag.
func newApplication(endpoint string) (*app.Application, error) {
	opts := globalOpts
	if endpoint != "" {
		opts.Endpoint = endpoint
	}
	return app.New(opts)
}

// startApplication creates the application and starts watching its config
// file. The returned cleanup shuts it down.
func startApplication(ctx context.Context, endpoint string) (*app.Application, func(), error) {
	application, err := newApplication(endpoint)
	if err != nil {
		return nil, nil, err
	}

	if err := application.WatchConfig(ctx); err != nil {
		application.Logger().Debug("config watch disabled: %v", err)
	}

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := application.Shutdown(ctx); err != nil {
			application.Logger().Warn("shutdown: %v", err)
		}
	}
	return application, cleanup, nil
}

// runShell runs the interactive shell until the user leaves it.
func runShell(ctx context.Context, application *app.Application) error {
	cfg := application.Config()

	sh := shell.New(application.Session(),
		shell.WithOutput(os.Stdout),
		shell.WithLogger(application.Logger().WithComponent("shell")),
		shell.WithEventLog(application.EventLog()),
		shell.WithPrompt(cfg.Shell.Prompt),
		shell.WithHistoryFile(cfg.Shell.HistoryFile),
		shell.WithRequestTimeout(cfg.RequestTimeout()),
	)
	return sh.Run(ctx)
}
