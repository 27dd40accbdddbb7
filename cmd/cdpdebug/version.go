package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/cdpdebug/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "cdpdebug %s\n", version)
		fmt.Fprintf(out, "Commit: %s\n", commit)
		fmt.Fprintf(out, "Built: %s\n", date)
	},
}

var configFormat string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "print the effective configuration",
	Long: `Print the configuration after applying the config file, CDPDEBUG_*
environment variables and flags. Recognized variables:

` + envHelp(),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := config.ParseFormat(configFormat)
		if err != nil {
			return err
		}

		application, err := newApplication("")
		if err != nil {
			return err
		}
		defer application.Shutdown(cmd.Context())

		data, err := application.Config().MarshalAs(format)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func envHelp() string {
	var s string
	for _, name := range config.EnvVars() {
		s += "  " + name + "\n"
	}
	return s
}

func init() {
	configCmd.Flags().StringVarP(&configFormat, "format", "f", "toml", "output format (toml, yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}
