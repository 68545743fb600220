// Package envmanager is the out-of-scope external collaborator that
// materializes a named isolated runtime environment from a recipe and runs
// a command inside it. The harness only depends on the narrow Manager
// interface; a concrete implementation is free to shell out to whatever
// environment tool the deployment uses.
package envmanager

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/shlex"
)

// Manager materializes and runs commands inside a named environment.
type Manager interface {
	// EnvExists reports whether the named environment is already
	// materialized.
	EnvExists(name string) (bool, error)
	// Run executes command inside the named environment and blocks until
	// it exits, returning the child's exit code.
	Run(env, command string) (int, error)
}

// EnvError wraps a failure to materialize or run inside an environment.
type EnvError struct {
	Msg string
	Err error
}

func (e *EnvError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("envmanager error: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("envmanager error: %s", e.Msg)
}

func (e *EnvError) Unwrap() error { return e.Err }

// SubprocessManager shells out to an "activate-and-run" wrapper script the
// way the original environment-switching job ran code inside a named
// runtime: source an activation rc file, activate the named environment,
// then run the command.
type SubprocessManager struct {
	// RCFile is sourced before activation, analogous to the environment
	// tool's own resource file.
	RCFile string
	// ActivateBin is the name of the activation tool on PATH (e.g. "mamba",
	// "conda", "uv").
	ActivateBin string
}

// NewSubprocessManager returns a Manager that drives activateBin via a
// bash -c wrapper, sourcing rcFile first.
func NewSubprocessManager(rcFile, activateBin string) *SubprocessManager {
	return &SubprocessManager{RCFile: rcFile, ActivateBin: activateBin}
}

func (m *SubprocessManager) EnvExists(name string) (bool, error) {
	out, err := exec.Command("bash", "-c", m.wrap(fmt.Sprintf("%s env list", m.ActivateBin))).CombinedOutput()
	if err != nil {
		return false, &EnvError{Msg: "listing environments", Err: err}
	}
	return strings.Contains(string(out), name), nil
}

// Run checks with shlex that command splits cleanly under shell quoting
// rules (rejecting, e.g., unbalanced quotes), then runs the command string
// unchanged inside the named environment through the bash -c wrapper.
func (m *SubprocessManager) Run(env, command string) (int, error) {
	if _, err := shlex.Split(command); err != nil {
		return -1, &EnvError{Msg: "parsing command", Err: err}
	}

	script := m.wrap(fmt.Sprintf("%s run -n %s %s", m.ActivateBin, env, command))

	cmd := exec.Command("bash", "-c", script)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, &EnvError{Msg: fmt.Sprintf("running %q in env %q: %s", command, env, out), Err: err}
	}
	return 0, nil
}

func (m *SubprocessManager) wrap(cmd string) string {
	if m.RCFile == "" {
		return cmd
	}
	return fmt.Sprintf("source %s && %s", m.RCFile, cmd)
}
