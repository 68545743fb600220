package launcher

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"harness/internal/config"
	"harness/internal/envmanager"
)

// EnvSwitchRequest describes a launch that must run inside a named
// isolated runtime environment rather than in the current process's own
// environment.
type EnvSwitchRequest struct {
	EnvName    string
	SelfExe    string
	CradleName string
	LockDir    string
	LockWait   time.Duration
}

// RunInEnv materializes the resolved config to a temp file, acquires a
// per-environment file lock (so two launches never race the same
// environment's activation), and re-invokes SelfExe inside the named
// environment via mgr, pointed at the temp config file. The temp file is
// removed once the child returns, mirroring the original environment
// switcher's "serialize, lock, delegate, clean up" shape.
func RunInEnv(mgr envmanager.Manager, cfg *config.Resolved, req EnvSwitchRequest) (int, error) {
	exists, err := mgr.EnvExists(req.EnvName)
	if err != nil {
		return -1, err
	}
	if !exists {
		return -1, &envmanager.EnvError{Msg: fmt.Sprintf("environment %q does not exist", req.EnvName)}
	}

	lockPath := filepath.Join(req.LockDir, req.EnvName+".lock")
	if err := os.MkdirAll(req.LockDir, 0o755); err != nil {
		return -1, fmt.Errorf("creating lock directory %s: %w", req.LockDir, err)
	}
	fl := flock.New(lockPath)
	wait := req.LockWait
	if wait == 0 {
		wait = 30 * time.Second
	}
	locked, err := lockWithTimeout(fl, wait)
	if err != nil {
		return -1, fmt.Errorf("locking environment %q: %w", req.EnvName, err)
	}
	if !locked {
		return -1, fmt.Errorf("timed out waiting for environment %q lock", req.EnvName)
	}
	defer fl.Unlock()

	configPath, err := writeTempConfig(cfg)
	if err != nil {
		return -1, err
	}
	defer os.Remove(configPath)

	command := fmt.Sprintf("%s run --config %s --cradle %s", req.SelfExe, configPath, req.CradleName)
	return mgr.Run(req.EnvName, command)
}

func lockWithTimeout(fl *flock.Flock, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		locked, err := fl.TryLock()
		if err != nil {
			return false, err
		}
		if locked {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func writeTempConfig(cfg *config.Resolved) (string, error) {
	// Clear Env before serializing: the re-invoked process runs inside the
	// target environment already, so it must launch directly rather than
	// recursing back into another env-switch.
	inner := *cfg
	inner.Env = nil

	f, err := os.CreateTemp("", "harness-config-*.json")
	if err != nil {
		return "", fmt.Errorf("creating temp config file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(&inner); err != nil {
		return "", fmt.Errorf("writing temp config file: %w", err)
	}
	return f.Name(), nil
}
