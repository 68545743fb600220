package cmd

import (
	"github.com/spf13/cobra"

	"harness/internal/harness"
)

// newCradleCmd is the hidden re-exec entry point: harness.Run spawns the
// running binary again with this subcommand to drive the selected cradle
// in its own OS process. Operators never invoke it directly.
func newCradleCmd() *cobra.Command {
	var name, controlSock, statusSock string

	cmd := &cobra.Command{
		Use:    "_cradle",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// RunChild never returns; it calls os.Exit with the cradle's
			// exit code.
			harness.RunChild(harness.ChildArgs{
				CradleName:  name,
				ControlSock: controlSock,
				StatusSock:  statusSock,
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Registered cradle name to run")
	cmd.Flags().StringVar(&controlSock, "control-sock", "", "Path to the control Unix socket")
	cmd.Flags().StringVar(&statusSock, "status-sock", "", "Path to the status Unix socket")
	return cmd
}
