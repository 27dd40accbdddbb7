package shell

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/cdpdebug/internal/debug"
)

const defaultEventCount = 20

// newRootCmd builds the command tree for one line of input. A fresh tree per
// line keeps flag values from leaking between commands.
func (s *Shell) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cdpdebug",
		Short:         "interactive debugger commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(s.out)
	root.SetErr(s.out)

	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd.HasParent() {
			s.printf("%s\n\nusage: %s\n", firstNonEmpty(cmd.Long, cmd.Short), cmd.UseLine())
			if cmd.HasAvailableLocalFlags() {
				s.printf("\n%s", cmd.LocalFlags().FlagUsages())
			}
			return
		}
		s.printf("%s\n", helpByGroups(cmd))
	})

	root.AddCommand(
		s.breakCmd(),
		s.rbreakCmd(),
		s.clearCmd(),
		s.clearAllCmd(),
		s.breakpointsCmd(),

		s.scriptsCmd(),
		s.sourceCmd(),
		s.listCmd(),
		s.searchCmd(),

		s.continueCmd(),
		s.nextCmd(),
		s.stepCmd(),
		s.outCmd(),
		s.pauseCmd(),
		s.waitCmd(),

		s.backtraceCmd(),
		s.frameCmd(),
		s.varsCmd(),
		s.printCmd(),

		s.stateCmd(),
		s.eventsCmd(),
		s.luaCmd(),
		s.exitCmd(),
	)
	return root
}

// Breakpoints

func (s *Shell) breakCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "break <url>:<line>[:<column>] [if <condition>]",
		Short: "set a breakpoint on every script with this URL",
		Long: `Set a breakpoint on every script whose URL equals <url>, including
scripts that load later. Lines and columns are 1-based.

  break http://localhost:8080/app.js:42
  break http://localhost:8080/app.js:42:7 if count > 10`,
		Aliases:            []string{"b"},
		Annotations:        inGroup(groupBreakpoints),
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.setBreakpoint(cmd.Context(), args, s.session.SetBreakpoint)
		},
	}
}

func (s *Shell) rbreakCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rbreak <regex>:<line>[:<column>] [if <condition>]",
		Short: "set a breakpoint on every script whose URL matches",
		Long: `Set a breakpoint on every script whose URL matches the regular
expression <regex>. Lines and columns are 1-based.

  rbreak .*/app\.js:42`,
		Annotations:        inGroup(groupBreakpoints),
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.setBreakpoint(cmd.Context(), args, s.session.SetBreakpointByURLRegex)
		},
	}
}

type setBreakpointFunc func(ctx context.Context, url string, line, column int, condition string) (debug.Breakpoint, error)

func (s *Shell) setBreakpoint(ctx context.Context, args []string, set setBreakpointFunc) error {
	if len(args) == 0 {
		return errors.New("missing location")
	}
	url, line, column, err := parseLocation(args[0])
	if err != nil {
		return err
	}
	condition, err := parseCondition(args[1:])
	if err != nil {
		return err
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	bp, err := set(ctx, url, line, column, condition)
	if err != nil {
		return err
	}
	s.printf("breakpoint %s\n", formatBreakpoint(bp))
	return nil
}

func (s *Shell) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "clear <id>...",
		Short:       "remove breakpoints",
		Annotations: inGroup(groupBreakpoints),
		Args:        cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range args {
				ctx, cancel := s.requestContext(cmd.Context())
				err := s.session.RemoveBreakpoint(ctx, id)
				cancel()
				if err != nil {
					return fmt.Errorf("remove %s: %w", id, err)
				}
				s.printf("removed %s\n", id)
			}
			return nil
		},
	}
}

func (s *Shell) clearAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "clearall",
		Short:       "remove every breakpoint",
		Annotations: inGroup(groupBreakpoints),
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.requestContext(cmd.Context())
			defer cancel()

			if err := s.session.RemoveAllBreakpoints(ctx); err != nil {
				return err
			}
			if left := len(s.session.Breakpoints()); left > 0 {
				s.printf("%d breakpoints could not be removed\n", left)
			}
			return nil
		},
	}
}

func (s *Shell) breakpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "breakpoints",
		Short:       "list breakpoints",
		Aliases:     []string{"bl"},
		Annotations: inGroup(groupBreakpoints),
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bps := s.session.Breakpoints()
			if len(bps) == 0 {
				s.printf("no breakpoints\n")
				return nil
			}
			for _, bp := range bps {
				s.printf("%s\n", formatBreakpoint(bp))
			}
			return nil
		},
	}
}

// Source

func (s *Shell) scriptsCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "scripts [pattern]",
		Short:       "list parsed scripts, optionally filtered by URL substring",
		Annotations: inGroup(groupSource),
		Args:        cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scripts := s.session.Scripts()
			if len(args) == 1 {
				scripts = s.session.ScriptsByURLPattern(args[0])
			}
			for _, sc := range scripts {
				s.printf("%-8s %s\n", sc.ScriptID, scriptName(sc))
			}
			s.printf("%d scripts\n", len(scripts))
			return nil
		},
	}
}

func (s *Shell) sourceCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "source <scriptId> [line] [count]",
		Short:       "print the source of a script",
		Annotations: inGroup(groupSource),
		Args:        cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			first, count := 1, 0
			if len(args) > 1 {
				n, err := strconv.Atoi(args[1])
				if err != nil || n < 1 {
					return fmt.Errorf("invalid line %q", args[1])
				}
				first, count = n, defaultListLines
			}
			if len(args) > 2 {
				n, err := strconv.Atoi(args[2])
				if err != nil || n < 1 {
					return fmt.Errorf("invalid count %q", args[2])
				}
				count = n
			}
			return s.printSource(cmd.Context(), args[0], first, count)
		},
	}
}

func (s *Shell) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "list",
		Short:       "print the source around the selected frame",
		Aliases:     []string{"l"},
		Annotations: inGroup(groupSource),
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			frame, err := s.currentFrame()
			if err != nil {
				return err
			}
			line := frame.Location.LineNumber + 1
			first := line - defaultListLines/2
			if first < 1 {
				first = 1
			}
			return s.printSource(cmd.Context(), frame.Location.ScriptID, first, defaultListLines)
		},
	}
}

func (s *Shell) printSource(ctx context.Context, scriptID string, first, count int) error {
	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	src, err := s.session.ScriptSource(ctx, scriptID)
	if err != nil {
		return err
	}

	current := -1
	if frame, err := s.currentFrame(); err == nil && frame.Location.ScriptID == scriptID {
		current = frame.Location.LineNumber + 1
	}
	s.printf("%s", formatSource(src, first, count, current))
	return nil
}

func (s *Shell) searchCmd() *cobra.Command {
	var opts debug.SearchOptions

	cmd := &cobra.Command{
		Use:         "search [-c] [-r] <query>",
		Short:       "search the source of every script",
		Annotations: inGroup(groupSource),
		Args:        cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := s.session.SearchInScripts(cmd.Context(), strings.Join(args, " "), opts)
			if err != nil {
				return err
			}
			for _, m := range res.Matches {
				s.printf("%s:%d: %s\n", firstNonEmpty(m.URL, m.ScriptID), m.LineNumber+1, strings.TrimSpace(m.LineContent))
			}
			s.printf("%d matches\n", len(res.Matches))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&opts.CaseSensitive, "case", "c", false, "match case")
	cmd.Flags().BoolVarP(&opts.IsRegex, "regex", "r", false, "treat the query as a regular expression")
	return cmd
}

// Execution

func (s *Shell) continueCmd() *cobra.Command {
	return s.stepCommand("continue", "resume execution", []string{"c"}, s.session.Resume)
}

func (s *Shell) nextCmd() *cobra.Command {
	return s.stepCommand("next", "step over the current statement", []string{"n"}, s.session.StepOver)
}

func (s *Shell) stepCmd() *cobra.Command {
	return s.stepCommand("step", "step into the current call", []string{"s"}, s.session.StepInto)
}

func (s *Shell) outCmd() *cobra.Command {
	return s.stepCommand("out", "step out of the current function", []string{"finish"}, s.session.StepOut)
}

func (s *Shell) pauseCmd() *cobra.Command {
	return s.stepCommand("pause", "pause at the next statement", nil, s.session.Pause)
}

func (s *Shell) stepCommand(name, short string, aliases []string, fn func(context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:         name,
		Short:       short,
		Aliases:     aliases,
		Annotations: inGroup(groupExecution),
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.requestContext(cmd.Context())
			defer cancel()
			return fn(ctx)
		},
	}
}

func (s *Shell) waitCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "wait [seconds]",
		Short:       "wait until execution pauses",
		Annotations: inGroup(groupExecution),
		Args:        cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout := s.timeout
			if len(args) == 1 {
				secs, err := strconv.ParseFloat(args[0], 64)
				if err != nil || secs <= 0 {
					return fmt.Errorf("invalid timeout %q", args[0])
				}
				timeout = time.Duration(secs * float64(time.Second))
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			state, err := s.session.WaitForPause(ctx)
			if err != nil {
				return err
			}
			s.printf("%s\n", describePause(state))
			return nil
		},
	}
}

// Inspection

func (s *Shell) backtraceCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "backtrace",
		Short:       "print the call stack",
		Aliases:     []string{"bt"},
		Annotations: inGroup(groupInspect),
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			state := s.session.PausedState()
			if !state.IsPaused {
				return debug.ErrNotPaused
			}
			selected := s.selectedFrame()
			for i, f := range state.CallFrames {
				marker := " "
				if i == selected {
					marker = "*"
				}
				s.printf("%s#%-2d %s\n", marker, i, formatFrame(f))
			}
			return nil
		},
	}
}

func (s *Shell) frameCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "frame <n>",
		Short:       "select a call frame",
		Annotations: inGroup(groupInspect),
		Args:        cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid frame %q", args[0])
			}
			state := s.session.PausedState()
			if !state.IsPaused {
				return debug.ErrNotPaused
			}
			if n < 0 || n >= len(state.CallFrames) {
				return fmt.Errorf("frame %d out of range (0-%d)", n, len(state.CallFrames)-1)
			}
			s.selectFrame(n)
			s.printf("#%d %s\n", n, formatFrame(state.CallFrames[n]))
			return nil
		},
	}
}

func (s *Shell) varsCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:         "vars [--all]",
		Short:       "print the variables in scope of the selected frame",
		Annotations: inGroup(groupInspect),
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			frame, err := s.currentFrame()
			if err != nil {
				return err
			}
			for _, scope := range frame.ScopeChain {
				if scope.Object.ObjectID == "" || (scope.Type == "global" && !all) {
					continue
				}

				ctx, cancel := s.requestContext(cmd.Context())
				vars, err := s.session.ScopeVariables(ctx, scope.Object.ObjectID)
				cancel()
				if err != nil {
					return fmt.Errorf("%s scope: %w", scope.Type, err)
				}

				s.printf("%s:\n", firstNonEmpty(scope.Name, scope.Type))
				for _, v := range vars {
					s.printf("  %s = %s\n", v.Name, formatVariable(v))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include the global scope")
	return cmd
}

func (s *Shell) printCmd() *cobra.Command {
	return &cobra.Command{
		Use:                "print <expression>",
		Short:              "evaluate an expression in the selected frame",
		Aliases:            []string{"p"},
		Annotations:        inGroup(groupInspect),
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("missing expression")
			}
			frame, err := s.currentFrame()
			if err != nil {
				return err
			}

			ctx, cancel := s.requestContext(cmd.Context())
			defer cancel()

			res, err := s.session.EvaluateOnCallFrame(ctx, frame.CallFrameID, strings.Join(args, " "), debug.DefaultEvalOptions())
			if err != nil {
				return err
			}
			if res.ExceptionDetails != nil {
				return fmt.Errorf("exception: %s", formatException(res.ExceptionDetails))
			}
			s.printf("%s\n", formatValue(res.Result))
			return nil
		},
	}
}

// currentFrame returns the selected frame of the current pause.
func (s *Shell) currentFrame() (debug.CallFrame, error) {
	if !s.session.IsEnabled() {
		return debug.CallFrame{}, debug.ErrNotEnabled
	}
	state := s.session.PausedState()
	if !state.IsPaused {
		return debug.CallFrame{}, debug.ErrNotPaused
	}
	i := s.selectedFrame()
	if i >= len(state.CallFrames) {
		i = 0
		s.resetFrame()
	}
	if len(state.CallFrames) == 0 {
		return debug.CallFrame{}, errors.New("no call frames")
	}
	return state.CallFrames[i], nil
}

// Other

func (s *Shell) stateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "print the session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !s.session.IsEnabled() {
				s.printf("disabled\n")
				return nil
			}
			state := s.session.PausedState()
			if state.IsPaused {
				s.printf("%s\n", describePause(state))
			} else {
				s.printf("running\n")
			}
			s.printf("%d scripts, %d breakpoints\n", len(s.session.Scripts()), len(s.session.Breakpoints()))
			return nil
		},
	}
}

func (s *Shell) eventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events [n]",
		Short: "print recently received protocol events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.events == nil {
				return errors.New("event log not available")
			}
			n := defaultEventCount
			if len(args) == 1 {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < 1 {
					return fmt.Errorf("invalid count %q", args[0])
				}
				n = v
			}
			for _, ev := range s.events.Recent(n) {
				s.printf("%s %s %s\n", ev.Time.Format("15:04:05.000"), ev.Method, truncate(string(ev.Params), maxEventParams))
			}
			if dropped := s.events.Dropped(); dropped > 0 {
				s.printf("(%d older events dropped)\n", dropped)
			}
			return nil
		},
	}
}

func (s *Shell) luaCmd() *cobra.Command {
	var code string

	cmd := &cobra.Command{
		Use:   "lua [-e code] [file]",
		Short: "run a Lua automation script",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case code != "" && len(args) == 0:
				return s.luaRunner().Run(cmd.Context(), code)
			case code == "" && len(args) == 1:
				return s.luaRunner().RunFile(cmd.Context(), args[0])
			default:
				return errors.New("need either -e code or a file")
			}
		},
	}
	cmd.Flags().StringVarP(&code, "eval", "e", "", "Lua source to run")
	return cmd
}

func (s *Shell) exitCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "exit",
		Short:   "leave the debugger",
		Aliases: []string{"quit", "q"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ErrExit
		},
	}
}
