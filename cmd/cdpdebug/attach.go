package main

import (
	"github.com/spf13/cobra"
)

var attachCmd = &cobra.Command{
	Use:   "attach [endpoint]",
	Short: "attach to a running target and start the debugger shell",
	Long: `Attach to a running target and start the debugger shell.

endpoint is either a DevTools HTTP endpoint such as http://localhost:9222,
whose /json/list is used to pick a target, or a ws:// debugger URL.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var endpoint string
		if len(args) == 1 {
			endpoint = args[0]
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
		return runShell(ctx, application)
	},
}

func init() {
	rootCmd.AddCommand(attachCmd)
}
