// Package cmd wires up harnessctl's cobra command tree: run, repo-run,
// env-run, version, and the hidden _cradle re-exec entry point.
package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root cobra command with all subcommands.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "harnessctl",
		Short: "Process harness: supervise a unit of work behind a control-plane HTTP server",
		Long: `harnessctl launches a user-supplied unit of work as a child process, runs a
control-plane HTTP server beside it, and brokers HEARTBEAT, START, STOP,
PAUSE, RESUME, CONFIG and KILL commands between an operator and the child.`,
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newRepoRunCmd(),
		newEnvRunCmd(),
		newVersionCmd(),
		newCradleCmd(),
	)

	return rootCmd
}
