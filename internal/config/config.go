// Package config resolves the harness's run configuration from any of the
// input shapes the launcher accepts: nothing, an already-parsed object, a
// file path (JSON, or YAML by extension), a literal JSON string, or a
// remote-store descriptor that
// points the resolver at a key-value backend instead of carrying data
// inline.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// HarnessConfig is the harness's own bind configuration.
type HarnessConfig struct {
	Interface string `json:"interface" yaml:"interface"`
	Port      int    `json:"port" yaml:"port"`
}

// ConsulDescriptor, when present under the "consul" key, tells the resolver
// to discard everything else in the input and fetch the resolved config
// from a key-value store instead.
type ConsulDescriptor struct {
	Host          string `json:"host" yaml:"host"`
	Port          int    `json:"port" yaml:"port"`
	ServiceConfig string `json:"service-config" yaml:"service-config"`
}

// Resolved is the fully resolved configuration object passed around the
// launcher and harness. TargetConfig and Logging are opaque subtrees never
// interpreted by the harness itself.
type Resolved struct {
	Harness      HarnessConfig     `json:"harness" yaml:"harness"`
	TargetConfig json.RawMessage   `json:"target-config,omitempty" yaml:"target-config,omitempty"`
	Logging      json.RawMessage   `json:"logging,omitempty" yaml:"logging,omitempty"`
	Consul       *ConsulDescriptor `json:"consul,omitempty" yaml:"consul,omitempty"`
	Env          *EnvConfig        `json:"env,omitempty" yaml:"env,omitempty"`
	Source       *SourceConfig     `json:"source,omitempty" yaml:"source,omitempty"`

	// ExitOnCompletion, when set, makes the supervising CLI process exit
	// with the child's own exit code once the harness returns. When unset,
	// the supervising process exits 0 regardless of the child's outcome.
	ExitOnCompletion bool `json:"exit_on_completion,omitempty" yaml:"exit_on_completion,omitempty"`
}

// SourceConfig is the repo-launcher-only descriptor naming what to check
// out and which entry point inside it to run. CLI flags on repo-run may
// override any of these fields; SourceConfig is consulted for whatever
// a flag leaves unset.
type SourceConfig struct {
	Repo         string `json:"repo" yaml:"repo"`
	Branch       string `json:"branch,omitempty" yaml:"branch,omitempty"`
	Workdir      string `json:"workdir" yaml:"workdir"`
	SrcSubfolder string `json:"src-subfolder,omitempty" yaml:"src-subfolder,omitempty"`
	FileToRun    string `json:"file-to-run" yaml:"file-to-run"`
	EntryPoint   string `json:"entry-point,omitempty" yaml:"entry-point,omitempty"`
	// UseLocal skips the clone/fetch-and-reset step entirely and runs
	// directly against whatever is already checked out at Workdir.
	UseLocal bool `json:"use-local,omitempty" yaml:"use-local,omitempty"`
}

// EnvConfig requests that the launcher materialize a named isolated runtime
// via internal/envmanager before delegating to the resolved entry point.
type EnvConfig struct {
	Name        string `json:"name" yaml:"name"`
	RCFile      string `json:"rc_file,omitempty" yaml:"rc_file,omitempty"`
	ActivateBin string `json:"activate_bin,omitempty" yaml:"activate_bin,omitempty"`
	LockDir     string `json:"lock_dir,omitempty" yaml:"lock_dir,omitempty"`
}

// DefaultHarness mirrors spec defaults: bind to all interfaces on 2222.
func DefaultHarness() HarnessConfig {
	return HarnessConfig{Interface: "0.0.0.0", Port: 2222}
}

// ConfigError wraps any failure in resolving or validating configuration.
// It is always fatal to the launch; raised before any child process spawns.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config error: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("config error: %s", e.Msg)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func newConfigError(msg string, err error) *ConfigError {
	return &ConfigError{Msg: msg, Err: err}
}

// KVFetcher is the narrow interface internal/kvstore's consul client
// satisfies, kept here so config doesn't import kvstore directly and the
// two packages don't form a cycle.
type KVFetcher interface {
	FetchUnion(host string, port int, serviceConfigPrefix string) (harness, targetConfig, logging json.RawMessage, err error)
}

// Resolve turns one of the accepted input shapes into a Resolved config.
// input may be nil, a *Resolved, a map[string]any, a string holding an
// existing file path, or a string holding a literal JSON document. File
// paths ending in .yaml/.yml are parsed as YAML; everything else as JSON.
func Resolve(input any, kv KVFetcher) (*Resolved, error) {
	obj, err := toObject(input)
	if err != nil {
		return nil, err
	}

	if obj.Consul != nil {
		if kv == nil {
			return nil, newConfigError("remote-store descriptor present but no kv client configured", nil)
		}
		resolved, err := resolveRemote(obj.Consul, kv)
		if err != nil {
			return nil, err
		}
		obj = resolved
	}

	applyDefaults(obj)
	if err := validateSchema(obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func applyDefaults(obj *Resolved) {
	if obj.Harness.Interface == "" {
		obj.Harness.Interface = DefaultHarness().Interface
	}
	if obj.Harness.Port == 0 {
		obj.Harness.Port = DefaultHarness().Port
	}
}

// toObject disambiguates the accepted input shapes. nil yields a zero
// Resolved (defaults filled in later); a map or *Resolved is used as-is; a
// string is tried first as a path to an existing file (YAML by extension,
// JSON otherwise), then as a literal JSON string.
func toObject(input any) (*Resolved, error) {
	switch v := input.(type) {
	case nil:
		return &Resolved{}, nil
	case *Resolved:
		return v, nil
	case Resolved:
		return &v, nil
	case map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, newConfigError("re-marshaling map input", err)
		}
		return decodeJSON(data)
	case string:
		return resolveStringInput(v)
	default:
		return nil, newConfigError(fmt.Sprintf("unsupported config input type %T", input), nil)
	}
}

func resolveStringInput(s string) (*Resolved, error) {
	if info, err := os.Stat(s); err == nil && !info.IsDir() {
		data, err := os.ReadFile(s)
		if err != nil {
			return nil, newConfigError("reading config file "+s, err)
		}
		if strings.HasSuffix(s, ".yaml") || strings.HasSuffix(s, ".yml") {
			return decodeYAML(data)
		}
		obj, err := decodeJSON(data)
		if err != nil {
			return nil, newConfigError("config file "+s+" exists but does not parse", err)
		}
		return obj, nil
	}

	obj, err := decodeJSON([]byte(s))
	if err != nil {
		return nil, newConfigError("config string is neither an existing file path nor valid JSON", err)
	}
	return obj, nil
}

func decodeJSON(data []byte) (*Resolved, error) {
	var obj Resolved
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

func decodeYAML(data []byte) (*Resolved, error) {
	var obj Resolved
	if err := yaml.Unmarshal(data, &obj); err != nil {
		return nil, newConfigError("config file does not parse as YAML", err)
	}
	return &obj, nil
}

func resolveRemote(d *ConsulDescriptor, kv KVFetcher) (*Resolved, error) {
	if d.Host == "" || d.ServiceConfig == "" {
		return nil, newConfigError("malformed remote-store descriptor: host and service-config are required", nil)
	}
	harnessRaw, targetRaw, loggingRaw, err := kv.FetchUnion(d.Host, d.Port, d.ServiceConfig)
	if err != nil {
		return nil, newConfigError("fetching remote-store fragments", err)
	}

	obj := &Resolved{TargetConfig: targetRaw, Logging: loggingRaw}
	if harnessRaw != nil {
		if err := json.Unmarshal(harnessRaw, &obj.Harness); err != nil {
			return nil, newConfigError("remote-store harness fragment is not valid JSON", err)
		}
	}
	return obj, nil
}

// Strip removes the harness and logging subtrees, returning only what the
// child is allowed to see (spec invariant: target-config is the only
// subtree exposed to the child).
func (r *Resolved) Strip() json.RawMessage {
	if r.TargetConfig == nil {
		return json.RawMessage("null")
	}
	return r.TargetConfig
}
