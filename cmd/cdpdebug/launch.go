package main

import (
	"github.com/spf13/cobra"
)

var launchCmd = &cobra.Command{
	Use:   "launch <browser> [args...]",
	Short: "launch a browser over a debugging pipe and start the debugger shell",
	Long: `Launch a Chromium-based browser with --remote-debugging-pipe and start
the debugger shell. Arguments after the browser are passed to it.

  cdpdebug launch chromium --headless=new https://example.com`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		application, cleanup, err := startApplication(ctx, "")
		if err != nil {
			return err
		}
		defer cleanup()

		if err := application.Launch(ctx, args[0], args[1:]...); err != nil {
			return err
		}
		return runShell(ctx, application)
	},
}

func init() {
	launchCmd.Flags().SetInterspersed(false)
	rootCmd.AddCommand(launchCmd)
}
