// Package buildplugin compiles a single checked-out Go source file into a
// loadable plugin (-buildmode=plugin), the same os/exec shell-out style
// internal/checkout uses for git rather than linking against the compiler
// internals: there is no third-party library for driving `go build`, and
// the go tool itself is the only correct way to produce a plugin binary
// that matches the running harness's toolchain and module graph.
package buildplugin

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// BuildError wraps a failed `go build -buildmode=plugin` invocation.
type BuildError struct {
	Msg string
	Err error
}

func (e *BuildError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("buildplugin error: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("buildplugin error: %s", e.Msg)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Build compiles sourcePath (a single .go file belonging to package main)
// into a plugin shared object under outDir, named after the source file's
// base name, and returns the built plugin's absolute path.
func Build(sourcePath, outDir string) (string, error) {
	if _, err := os.Stat(sourcePath); err != nil {
		return "", &BuildError{Msg: "source file not found", Err: err}
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", &BuildError{Msg: "creating plugin output directory", Err: err}
	}

	base := strings.TrimSuffix(filepath.Base(sourcePath), ".go")
	outPath := filepath.Join(outDir, base+".so")

	cmd := exec.Command("go", "build", "-buildmode=plugin", "-o", outPath, sourcePath)
	cmd.Dir = filepath.Dir(sourcePath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", &BuildError{
			Msg: fmt.Sprintf("go build -buildmode=plugin failed: %s", strings.TrimSpace(string(out))),
			Err: err,
		}
	}
	return outPath, nil
}
