package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"harness/internal/config"
	"harness/internal/kvstore"
	"harness/internal/launcher"
)

// firstNonEmpty returns flag if it's non-empty (an explicit CLI override),
// else falls back to the resolved config's value.
func firstNonEmpty(flag, fromConfig string) string {
	if flag != "" {
		return flag
	}
	return fromConfig
}

func newRepoRunCmd() *cobra.Command {
	var configArg string
	var repoURL, ref, destDir, srcSubfolder, fileToRun, entryPoint, pluginOutDir string
	var useLocal bool

	cmd := &cobra.Command{
		Use:   "repo-run",
		Short: "Check out a repo, select its entry point, and launch it under the harness",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfgInput any
			if configArg != "" {
				cfgInput = configArg
			}
			cfg, err := config.Resolve(cfgInput, kvstore.NewClient())
			if err != nil {
				return err
			}

			// The "source" config subtree is the primary way a repo-run
			// launch names what to check out; CLI flags override whatever
			// it sets, field by field.
			var src config.SourceConfig
			if cfg.Source != nil {
				src = *cfg.Source
			}
			repoURL = firstNonEmpty(repoURL, src.Repo)
			ref = firstNonEmpty(ref, src.Branch)
			destDir = firstNonEmpty(destDir, src.Workdir)
			srcSubfolder = firstNonEmpty(srcSubfolder, src.SrcSubfolder)
			fileToRun = firstNonEmpty(fileToRun, src.FileToRun)
			entryPoint = firstNonEmpty(entryPoint, src.EntryPoint)
			if !cmd.Flags().Changed("use-local") {
				useLocal = src.UseLocal
			}

			if repoURL == "" && !useLocal {
				return fmt.Errorf("--repo-url (or source.repo) is required")
			}
			if destDir == "" {
				return fmt.Errorf("--dest-dir (or source.workdir) is required")
			}

			cradleName, envelope, err := launcher.PrepareRepo(launcher.RepoRequest{
				RepoURL:        repoURL,
				Ref:            ref,
				DestDir:        destDir,
				SrcSubfolder:   srcSubfolder,
				FileToRun:      fileToRun,
				EntryPointName: entryPoint,
				PluginOutDir:   pluginOutDir,
				UseLocal:       useLocal,
			}, cfg.TargetConfig)
			if err != nil {
				return err
			}
			cfg.TargetConfig = envelope

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
	cmd.Flags().StringVar(&repoURL, "repo-url", "", "Repository to check out (local path or remote URL); overrides source.repo")
	cmd.Flags().StringVar(&ref, "ref", "", "Branch, tag, or commit to check out; overrides source.branch")
	cmd.Flags().StringVar(&destDir, "dest-dir", "", "Directory to check the repo out into; overrides source.workdir")
	cmd.Flags().StringVar(&srcSubfolder, "src-subfolder", "", "Subfolder within the checkout holding the entry file; overrides source.src-subfolder")
	cmd.Flags().StringVar(&fileToRun, "file", "", "Entry file name, relative to --src-subfolder; overrides source.file-to-run")
	cmd.Flags().StringVar(&entryPoint, "entry-point", "", "Explicit entry point name; overrides source.entry-point")
	cmd.Flags().StringVar(&pluginOutDir, "plugin-out-dir", "", "Directory to build the entry point plugin into (defaults under --dest-dir)")
	cmd.Flags().BoolVar(&useLocal, "use-local", false, "Skip checkout and run directly against an already-checked-out workdir; overrides source.use-local")
	return cmd
}
