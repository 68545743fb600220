package cmd

import (
	"strings"
	"testing"
)

func TestRootCmdHasExpectedSubcommands(t *testing.T) {
	root := NewRootCmd()
	want := []string{"run", "repo-run", "env-run", "version", "_cradle"}
	for _, name := range want {
		found := false
		for _, c := range root.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected subcommand %q to be registered", name)
		}
	}
}

func TestRunCmdRequiresCradle(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"run"})
	root.SilenceUsage = true
	root.SilenceErrors = true
	if err := root.Execute(); err == nil {
		t.Fatal("expected error when --cradle is omitted")
	}
}

func TestRepoRunRequiresRepoURL(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"repo-run", "--dest-dir", t.TempDir()})
	root.SilenceUsage = true
	root.SilenceErrors = true
	if err := root.Execute(); err == nil {
		t.Fatal("expected error when --repo-url is omitted")
	}
}

// TestRepoRunReadsSourceFromConfig verifies repo-run consults the
// resolved config's "source" subtree rather than requiring --repo-url and
// --dest-dir on the command line: with no CLI overrides it should get past
// the flag-requiredness check and fail later, on the (nonexistent) repo
// path itself, not on "--repo-url is required".
func TestRepoRunReadsSourceFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfgJSON := `{"source":{"repo":"` + dir + `/does-not-exist","workdir":"` + dir + `/checkout","file-to-run":"job.go"}}`

	root := NewRootCmd()
	root.SetArgs([]string{"repo-run", "--config", cfgJSON})
	root.SilenceUsage = true
	root.SilenceErrors = true
	err := root.Execute()
	if err == nil {
		t.Fatal("expected an error (repo path doesn't exist)")
	}
	if strings.Contains(err.Error(), "is required") {
		t.Fatalf("err = %v, want a checkout failure, not a required-flag error", err)
	}
}

func TestEnvRunRequiresEnvAndCradle(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"env-run"})
	root.SilenceUsage = true
	root.SilenceErrors = true
	if err := root.Execute(); err == nil {
		t.Fatal("expected error when --env/--cradle are omitted")
	}
}
