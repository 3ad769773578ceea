package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/hwidlock/config"
)

var appVersion string

// Execute builds the command tree and runs it.
func Execute(version string) error {
	appVersion = version
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hwidlock",
		Short: "Issue activation keys and lock them to a device",
		Long: `hwidlock issues activation keys and binds each key to the first device that
uses it. Later uses from another device are rejected until an administrator
resets the binding.

Configuration is read from HWIDLOCK_* environment variables and an optional
.env file in the working directory.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.LoadConfig()
		},
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newHashPasswordCmd())

	return cmd
}
