package launcher

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"plugin"

	"harness/internal/buildplugin"
	"harness/internal/checkout"
	"harness/internal/cradle"
	"harness/internal/entrypoint"
)

// pluginCradleName is the fixed cradle registry name a repo-run launch uses:
// the actual entry point to load is carried inside the target-config
// envelope itself (pluginEnvelope), not in the registered name, since the
// set of repo-run entry points isn't known at init() time.
const pluginCradleName = "__repo_entrypoint__"

// pluginEnvelope is how a repo-run launch's target-config subtree is
// shaped: the plugin path and selected symbol the child's cradle factory
// needs to load the entry point, plus the operator-supplied config nested
// under Config, the only part of this envelope the loaded code ever sees.
type pluginEnvelope struct {
	PluginPath string          `json:"plugin_path"`
	Kind       string          `json:"kind"`
	Symbol     string          `json:"symbol"`
	Config     json.RawMessage `json:"config,omitempty"`
}

func init() {
	cradle.Register(pluginCradleName, func(targetConfig json.RawMessage) cradle.Cradle {
		var env pluginEnvelope
		if err := json.Unmarshal(targetConfig, &env); err != nil {
			return &failedCradle{err: fmt.Errorf("decode plugin envelope: %w", err)}
		}
		p, err := plugin.Open(env.PluginPath)
		if err != nil {
			return &failedCradle{err: fmt.Errorf("open plugin %s: %w", env.PluginPath, err)}
		}
		c, err := entrypoint.Wrap(entrypoint.Symbols{Plugin: p}, entrypoint.EntryPoint{Kind: entrypoint.Kind(env.Kind), Name: env.Symbol}, env.Config)
		if err != nil {
			return &failedCradle{err: fmt.Errorf("wrap entry point %s: %w", env.Symbol, err)}
		}
		return c
	})
}

// failedCradle reports a setup failure (bad plugin, missing symbol) the
// same way a normal cradle reports a failed run: as a non-zero exit code
// from the re-exec'd child, rather than crashing the parent harness.
type failedCradle struct {
	err error
}

func (f *failedCradle) Run() (int, error)                                 { return -1, f.err }
func (f *failedCradle) SetQueues(<-chan cradle.Command, chan<- any)        {}
func (f *failedCradle) TargetConfig() json.RawMessage                     { return nil }

// RepoRequest describes a repo-run launch: check out RepoURL at Ref, scan
// SrcSubfolder/FileToRun for entry points, and build a plugin out of
// whichever one is selected (by EntryPointName, or by the default
// selection rule if empty).
type RepoRequest struct {
	RepoURL        string
	Ref            string
	DestDir        string
	SrcSubfolder   string
	FileToRun      string
	EntryPointName string
	PluginOutDir   string
	UseLocal       bool
}

// PrepareRepo checks out the repo, selects an entry point, builds it as a
// plugin, and returns the cradle registry name and target-config subtree
// a harness.New call should use to run it. userConfig is the
// operator-supplied target-config, nested unexamined into the resulting
// envelope.
func PrepareRepo(req RepoRequest, userConfig json.RawMessage) (cradleNameOut string, targetConfigOut json.RawMessage, err error) {
	entryPath, err := checkout.Run(checkout.Request{
		RepoURL:      req.RepoURL,
		Ref:          req.Ref,
		DestDir:      req.DestDir,
		SrcSubfolder: req.SrcSubfolder,
		FileToRun:    req.FileToRun,
		UseLocal:     req.UseLocal,
	})
	if err != nil {
		return "", nil, err
	}

	points, err := entrypoint.Scan(entryPath)
	if err != nil {
		return "", nil, fmt.Errorf("scanning %s for entry points: %w", entryPath, err)
	}
	ep, err := entrypoint.Select(points, req.EntryPointName)
	if err != nil {
		return "", nil, err
	}

	outDir := req.PluginOutDir
	if outDir == "" {
		outDir = filepath.Join(req.DestDir, ".harness-plugins")
	}
	pluginPath, err := buildplugin.Build(entryPath, outDir)
	if err != nil {
		return "", nil, err
	}

	envelope := pluginEnvelope{
		PluginPath: pluginPath,
		Kind:       string(ep.Kind),
		Symbol:     ep.Name,
		Config:     userConfig,
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return "", nil, fmt.Errorf("marshal plugin envelope: %w", err)
	}
	return pluginCradleName, raw, nil
}
