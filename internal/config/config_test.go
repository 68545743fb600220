package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

type fakeKV struct {
	harness, target, logging json.RawMessage
	err                      error
}

func (f *fakeKV) FetchUnion(host string, port int, serviceConfigPrefix string) (json.RawMessage, json.RawMessage, json.RawMessage, error) {
	if f.err != nil {
		return nil, nil, nil, f.err
	}
	return f.harness, f.target, f.logging, nil
}

func TestResolveNilUsesDefaults(t *testing.T) {
	cfg, err := Resolve(nil, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Harness.Interface != "0.0.0.0" || cfg.Harness.Port != 2222 {
		t.Fatalf("defaults = %+v", cfg.Harness)
	}
}

func TestResolveMap(t *testing.T) {
	input := map[string]any{
		"harness":       map[string]any{"interface": "127.0.0.1", "port": 3000},
		"target-config": map[string]any{"a": 1},
	}
	cfg, err := Resolve(input, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Harness.Interface != "127.0.0.1" || cfg.Harness.Port != 3000 {
		t.Fatalf("harness = %+v", cfg.Harness)
	}
	if string(cfg.TargetConfig) != `{"a":1}` {
		t.Fatalf("target-config = %s", cfg.TargetConfig)
	}
}

func TestResolveJSONString(t *testing.T) {
	cfg, err := Resolve(`{"harness":{"interface":"10.0.0.1","port":4000}}`, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Harness.Interface != "10.0.0.1" {
		t.Fatalf("interface = %s", cfg.Harness.Interface)
	}
}

func TestResolveFilePathJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")
	if err := os.WriteFile(path, []byte(`{"harness":{"interface":"1.2.3.4","port":5000}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Resolve(path, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Harness.Interface != "1.2.3.4" {
		t.Fatalf("interface = %s", cfg.Harness.Interface)
	}
}

func TestResolveFilePathYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	data := "harness:\n  interface: \"9.9.9.9\"\n  port: 6000\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Resolve(path, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Harness.Interface != "9.9.9.9" || cfg.Harness.Port != 6000 {
		t.Fatalf("harness = %+v", cfg.Harness)
	}
}

func TestResolveFilePathExistsButDoesNotParse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")
	if err := os.WriteFile(path, []byte("{{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Resolve(path, nil)
	if _, ok := err.(*ConfigError); !ok {
		t.Fatalf("err = %T, want *ConfigError", err)
	}
}

func TestResolveStringNeitherPathNorJSON(t *testing.T) {
	_, err := Resolve("not a path and not json {{{", nil)
	if _, ok := err.(*ConfigError); !ok {
		t.Fatalf("err = %T, want *ConfigError", err)
	}
}

func TestResolveSchemaRejectsLowPort(t *testing.T) {
	_, err := Resolve(map[string]any{"harness": map[string]any{"interface": "127.0.0.1", "port": 80}}, nil)
	if _, ok := err.(*ConfigError); !ok {
		t.Fatalf("err = %T, want *ConfigError for port < 1024", err)
	}
}

func TestResolveSchemaRejectsBadIPv4(t *testing.T) {
	_, err := Resolve(map[string]any{"harness": map[string]any{"interface": "not-an-ip", "port": 3000}}, nil)
	if _, ok := err.(*ConfigError); !ok {
		t.Fatalf("err = %T, want *ConfigError for bad IPv4", err)
	}
}

func TestResolveDecodesSourceAndExitOnCompletion(t *testing.T) {
	input := map[string]any{
		"harness": map[string]any{"interface": "127.0.0.1", "port": 3000},
		"source": map[string]any{
			"repo":          "git@example.com:org/repo.git",
			"branch":        "main",
			"workdir":       "/tmp/checkout",
			"src-subfolder": "jobs",
			"file-to-run":   "job.go",
			"entry-point":   "Run",
			"use-local":     true,
		},
		"exit_on_completion": true,
	}
	cfg, err := Resolve(input, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Source == nil {
		t.Fatal("expected Source to be populated")
	}
	if cfg.Source.Repo != "git@example.com:org/repo.git" || cfg.Source.Workdir != "/tmp/checkout" {
		t.Fatalf("source = %+v", cfg.Source)
	}
	if !cfg.Source.UseLocal {
		t.Fatal("expected use-local to decode true")
	}
	if !cfg.ExitOnCompletion {
		t.Fatal("expected exit_on_completion to decode true")
	}
}

func TestResolveRemoteUnion(t *testing.T) {
	kv := &fakeKV{
		harness:  json.RawMessage(`{"interface":"0.0.0.0","port":2222}`),
		target:   json.RawMessage(`{"k":"v"}`),
		logging:  json.RawMessage(`{}`),
	}
	cfg, err := Resolve(map[string]any{
		"consul": map[string]any{"host": "h", "port": 8500, "service-config": "svc/x"},
	}, kv)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Harness.Interface != "0.0.0.0" || cfg.Harness.Port != 2222 {
		t.Fatalf("harness = %+v", cfg.Harness)
	}
	if string(cfg.TargetConfig) != `{"k":"v"}` {
		t.Fatalf("target-config = %s", cfg.TargetConfig)
	}
}

func TestResolveRemoteMalformedDescriptor(t *testing.T) {
	_, err := Resolve(map[string]any{
		"consul": map[string]any{"port": 8500},
	}, &fakeKV{})
	if _, ok := err.(*ConfigError); !ok {
		t.Fatalf("err = %T, want *ConfigError for malformed descriptor", err)
	}
}

func TestResolveRemoteMissingRequiredFragmentFails(t *testing.T) {
	kv := &fakeKV{err: &missingFragmentErr{key: "svc/x/target-config"}}
	_, err := Resolve(map[string]any{
		"consul": map[string]any{"host": "h", "port": 8500, "service-config": "svc/x"},
	}, kv)
	if _, ok := err.(*ConfigError); !ok {
		t.Fatalf("err = %T, want *ConfigError when a required remote fragment is missing", err)
	}
}

type missingFragmentErr struct{ key string }

func (e *missingFragmentErr) Error() string { return "missing fragment: " + e.key }

func TestResolveRemoteWithoutKVClient(t *testing.T) {
	_, err := Resolve(map[string]any{
		"consul": map[string]any{"host": "h", "service-config": "svc/x"},
	}, nil)
	if _, ok := err.(*ConfigError); !ok {
		t.Fatalf("err = %T, want *ConfigError when no kv client is configured", err)
	}
}

func TestStripExposesOnlyTargetConfig(t *testing.T) {
	r := &Resolved{
		Harness:      HarnessConfig{Interface: "0.0.0.0", Port: 2222},
		TargetConfig: json.RawMessage(`{"a":1}`),
		Logging:      json.RawMessage(`{"level":"debug"}`),
	}
	if string(r.Strip()) != `{"a":1}` {
		t.Fatalf("Strip() = %s", r.Strip())
	}
}
