package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"harness/internal/config"
	"harness/internal/kvstore"
)

// newEnvRunCmd is the explicit form of "run inside a named environment":
// unlike `run`, whose env-switch only triggers when the resolved config
// itself carries an "env" subtree, this command always switches into the
// given environment, overriding whatever the config says.
func newEnvRunCmd() *cobra.Command {
	var configArg, cradleName string
	var envName, rcFile, activateBin, lockDir string

	cmd := &cobra.Command{
		Use:   "env-run",
		Short: "Launch a registered cradle inside a named isolated runtime environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			if envName == "" {
				return fmt.Errorf("--env is required")
			}
			if cradleName == "" {
				return fmt.Errorf("--cradle is required")
			}

			var cfgInput any
			if configArg != "" {
				cfgInput = configArg
			}
			cfg, err := config.Resolve(cfgInput, kvstore.NewClient())
			if err != nil {
				return err
			}
			cfg.Env = &config.EnvConfig{Name: envName, RCFile: rcFile, ActivateBin: activateBin, LockDir: lockDir}

			code, err := dispatchResolved(cfg, cradleName)
			if err != nil {
				return err
			}
			if cfg.ExitOnCompletion {
				os.Exit(code)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configArg, "config", "", "Config file path (JSON, or YAML by .yaml/.yml extension) or literal JSON")
	cmd.Flags().StringVar(&cradleName, "cradle", "", "Name of the registered cradle to run")
	cmd.Flags().StringVar(&envName, "env", "", "Name of the isolated runtime environment to run inside")
	cmd.Flags().StringVar(&rcFile, "rc-file", "", "Shell rc file to source before activating the environment")
	cmd.Flags().StringVar(&activateBin, "activate-bin", "mamba", "Environment activation tool on PATH")
	cmd.Flags().StringVar(&lockDir, "lock-dir", "", "Directory for per-environment lock files (defaults to the OS temp dir)")
	return cmd
}
