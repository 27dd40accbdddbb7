// Package shell implements the interactive debugger prompt.
//
// Each input line is split into words and executed as a cobra command.
// An empty line repeats the previous command, so stepping is a matter of
// typing "n" once and pressing enter.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/peterh/liner"

	"github.com/dshills/cdpdebug/internal/automation"
	"github.com/dshills/cdpdebug/internal/config"
	"github.com/dshills/cdpdebug/internal/debug"
	"github.com/dshills/cdpdebug/internal/debug/cdp"
	"github.com/dshills/cdpdebug/internal/logging"
)

// ErrExit is returned by Exec when the user asked to leave the shell.
var ErrExit = errors.New("exit")

// DefaultRequestTimeout bounds each command sent on behalf of the user.
const DefaultRequestTimeout = 30 * time.Second

// Shell is an interactive prompt over a debugger session.
type Shell struct {
	session *debug.Session
	events  *cdp.EventLog
	logger  *logging.Logger

	out     *syncWriter
	prompt  string
	history string
	timeout time.Duration

	// last is repeated when the user enters an empty line.
	last string

	// frame is the selected call frame index for bt/vars/print.
	frame   int
	frameMu sync.Mutex

	runner *automation.Runner
}

// Option configures a Shell.
type Option func(*Shell)

// WithOutput sets where command output goes. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(s *Shell) {
		if w != nil {
			s.out = &syncWriter{w: w}
		}
	}
}

// WithLogger sets the shell logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Shell) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithEventLog enables the events command.
func WithEventLog(log *cdp.EventLog) Option {
	return func(s *Shell) {
		s.events = log
	}
}

// WithPrompt sets the prompt string.
func WithPrompt(prompt string) Option {
	return func(s *Shell) {
		if prompt != "" {
			s.prompt = prompt
		}
	}
}

// WithHistoryFile persists line history to path. "~" is expanded.
func WithHistoryFile(path string) Option {
	return func(s *Shell) {
		s.history = path
	}
}

// WithRequestTimeout bounds each protocol command.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Shell) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New creates a shell over session.
func New(session *debug.Session, opts ...Option) *Shell {
	s := &Shell{
		session: session,
		logger:  logging.Nop(),
		out:     &syncWriter{w: os.Stdout},
		prompt:  config.DefaultPrompt,
		timeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run reads and executes lines until the user exits, input ends, or ctx
// is canceled.
func (s *Shell) Run(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(s.complete)
	line.SetTabCompletionStyle(liner.TabPrints)

	s.loadHistory(line)
	defer s.saveHistory(line)

	s.session.SetHandlers(debug.SessionHandlers{
		OnPaused: func(state debug.PausedState) {
			s.resetFrame()
			s.printf("\n%s\n", describePause(state))
		},
	})
	defer s.session.SetHandlers(debug.SessionHandlers{})
	defer s.closeRunner()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		txt, err := line.Prompt(s.prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				continue
			}
			if errors.Is(err, io.EOF) {
				s.printf("\n")
				return nil
			}
			return err
		}

		if strings.TrimSpace(txt) != "" {
			line.AppendHistory(strings.TrimSpace(txt))
		}

		if err := s.Exec(ctx, txt); err != nil {
			if errors.Is(err, ErrExit) {
				return nil
			}
			s.printf("error: %v\n", err)
		}
	}
}

// Exec executes a single line. An empty line repeats the previous one.
func (s *Shell) Exec(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		line = s.last
	}
	if line == "" {
		return nil
	}
	s.last = line

	root := s.newRootCmd()
	root.SetArgs(strings.Fields(line))
	return root.ExecuteContext(ctx)
}

// complete returns the command names and aliases starting with line.
func (s *Shell) complete(line string) []string {
	var out []string
	for _, c := range s.newRootCmd().Commands() {
		if strings.HasPrefix(c.Name(), line) {
			out = append(out, c.Name())
		}
		for _, alias := range c.Aliases {
			if strings.HasPrefix(alias, line) {
				out = append(out, alias)
			}
		}
	}
	return out
}

func (s *Shell) loadHistory(line *liner.State) {
	if s.history == "" {
		return
	}
	path, err := config.ExpandPath(s.history)
	if err != nil {
		s.logger.Warn("history file: %v", err)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("open history: %v", err)
		}
		return
	}
	defer f.Close()

	if _, err := line.ReadHistory(f); err != nil {
		s.logger.Warn("read history: %v", err)
	}
}

func (s *Shell) saveHistory(line *liner.State) {
	if s.history == "" {
		return
	}
	path, err := config.ExpandPath(s.history)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.logger.Warn("history dir: %v", err)
		return
	}
	f, err := os.Create(path)
	if err != nil {
		s.logger.Warn("write history: %v", err)
		return
	}
	defer f.Close()

	if _, err := line.WriteHistory(f); err != nil {
		s.logger.Warn("write history: %v", err)
	}
}

// requestContext bounds a single protocol command.
func (s *Shell) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Shell) selectedFrame() int {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	return s.frame
}

func (s *Shell) selectFrame(i int) {
	s.frameMu.Lock()
	s.frame = i
	s.frameMu.Unlock()
}

func (s *Shell) resetFrame() {
	s.selectFrame(0)
}

// luaRunner returns the shell's Lua runner, creating it on first use.
func (s *Shell) luaRunner() *automation.Runner {
	if s.runner == nil {
		s.runner = automation.NewRunner(s.session,
			automation.WithOutput(s.out),
			automation.WithLogger(s.logger.WithComponent("lua")),
			automation.WithRequestTimeout(s.timeout),
		)
	}
	return s.runner
}

func (s *Shell) closeRunner() {
	if s.runner != nil {
		s.runner.Close()
		s.runner = nil
	}
}

func (s *Shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

// syncWriter serializes writes from commands and from pause notifications,
// which arrive on the protocol receive goroutine.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}
