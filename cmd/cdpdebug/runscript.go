package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/cdpdebug/internal/automation"
)

var runCmd = &cobra.Command{
	Use:   "run <script.lua> [endpoint]",
	Short: "attach to a target and run a Lua automation script",
	Long: `Attach to a target and run a Lua automation script. The script sees a
global dbg table with the debugger operations, for example:

  dbg.set_breakpoint("http://localhost:8080/app.js", 41)
  local state = dbg.wait_paused(10)
  print(state.callFrames[1].functionName)
  dbg.resume()`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var endpoint string
		if len(args) == 2 {
			endpoint = args[1]
		}

		ctx := cmd.Context()
		application, cleanup, err := startApplication(ctx, endpoint)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := application.Connect(ctx); err != nil {
			return err
		}

		runner := automation.NewRunner(application.Session(),
			automation.WithOutput(os.Stdout),
			automation.WithLogger(application.Logger().WithComponent("lua")),
			automation.WithRequestTimeout(application.Config().RequestTimeout()),
		)
		defer runner.Close()

		return runner.RunFile(ctx, args[0])
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
