package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"harness/internal/config"
	"harness/internal/envmanager"
	"harness/internal/kvstore"
	"harness/internal/launcher"
)

// cancelableContext returns a context cancelled on SIGINT/SIGTERM, the way
// a supervised harness process should unwind on an operator's Ctrl-C.
func cancelableContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

// dispatchResolved runs an already-resolved config, switching into its
// named environment first if one is set.
func dispatchResolved(cfg *config.Resolved, cradleName string) (int, error) {
	if cfg.Env != nil {
		exe, err := os.Executable()
		if err != nil {
			return -1, fmt.Errorf("resolve self executable for env-run: %w", err)
		}
		mgr := envmanager.NewSubprocessManager(cfg.Env.RCFile, cfg.Env.ActivateBin)
		lockDir := cfg.Env.LockDir
		if lockDir == "" {
			lockDir = os.TempDir()
		}
		return launcher.RunInEnv(mgr, cfg, launcher.EnvSwitchRequest{
			EnvName:    cfg.Env.Name,
			SelfExe:    exe,
			CradleName: cradleName,
			LockDir:    lockDir,
		})
	}

	ctx, cancel := cancelableContext()
	defer cancel()
	return launcher.Launch(ctx, cfg, cradleName)
}

func newRunCmd() *cobra.Command {
	var configArg string
	var cradleName string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Launch a registered cradle under the harness",
		RunE: func(cmd *cobra.Command, args []string) error {
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
	return cmd
}
