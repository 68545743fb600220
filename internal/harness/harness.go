// Package harness is the supervisor: it owns the control HTTP server, the
// command and status channels, the child process, and the shutdown
// protocol. At most one child process exists per Harness instance.
package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"

	"harness/internal/activitylog"
	"harness/internal/config"
	"harness/internal/cradle"
	"harness/internal/socketdir"
)

// childEnvTargetConfig is the environment variable the re-exec'd child
// process reads its target-config subtree from.
const childEnvTargetConfig = "HARNESS_TARGET_CONFIG"

// childSubcommand is the hidden CLI subcommand the harness re-execs itself
// with to run a registered cradle in a separate OS process.
const childSubcommand = "_cradle"

// Options tunes a single Harness run.
type Options struct {
	// ChildTimeout bounds how long the harness waits for the child to
	// connect back on the control/status sockets after spawn. Zero means
	// a sane default.
	ChildTimeout time.Duration
}

// Harness supervises exactly one child process for the duration of Run.
type Harness struct {
	cfg        *config.Resolved
	cradleName string
	log        *slog.Logger
	activity   *activitylog.Logger
	opts       Options

	mu        sync.Mutex
	state     State
	cmd       *exec.Cmd
	sender    *commandSender
	lastValue json.RawMessage
	exitCode  int
	killed    bool

	controlPath string
	statusPath  string
	launchID    string
}

// LaunchID returns the correlation ID generated for the current (or most
// recent) Run call, or "" before Run has been called. The control server
// surfaces it as the X-Harness-Launch-Id response header.
func (h *Harness) LaunchID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.launchID
}

// New constructs a Harness for the named registered cradle. cfg must
// already be fully resolved (internal/config.Resolve).
func New(cfg *config.Resolved, cradleName string, log *slog.Logger, activity *activitylog.Logger, opts Options) *Harness {
	if log == nil {
		log = slog.Default()
	}
	if activity == nil {
		activity = activitylog.Nop()
	}
	if opts.ChildTimeout == 0 {
		opts.ChildTimeout = 10 * time.Second
	}
	return &Harness{cfg: cfg, cradleName: cradleName, log: log, activity: activity, opts: opts, state: StateCreated}
}

func (h *Harness) setState(s State) {
	h.mu.Lock()
	from := h.state
	h.state = s
	h.mu.Unlock()
	h.activity.StateChange(string(from), string(s))
}

// State returns the harness's current lifecycle state.
func (h *Harness) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Alive reports whether a child process has been spawned and has not yet
// been observed to exit.
func (h *Harness) Alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cmd != nil && h.cmd.Process != nil && h.state == StateChildRunning
}

// PID returns the child's OS process id, or 0 if no child has spawned.
func (h *Harness) PID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Enqueue writes a command to the child's command channel. It fails with
// ControlError if the child is not alive.
func (h *Harness) Enqueue(cmd cradle.Command) error {
	h.mu.Lock()
	sender := h.sender
	alive := h.state == StateChildRunning
	h.mu.Unlock()
	if !alive || sender == nil {
		return &ControlError{Msg: "launched process is not alive"}
	}
	h.activity.CommandReceived(string(cmd.Cmd))
	return sender.Send(cmd)
}

// Status returns the most recently published status value, or an empty
// object if none has ever been published.
func (h *Harness) Status() json.RawMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lastValue == nil {
		return json.RawMessage("{}")
	}
	return h.lastValue
}

// Kill immediately OS-kills the child; no command is enqueued.
func (h *Harness) Kill() error {
	h.mu.Lock()
	cmd := h.cmd
	h.killed = true
	h.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return &ControlError{Msg: "launched process is not alive"}
	}
	h.setState(StateChildKilled)
	h.activity.Killed("operator requested kill")
	return cmd.Process.Kill()
}

// Run spawns the child, serves the control socket bridge, waits for the
// child to exit, and returns its exit code. serveFn is invoked once the
// harness is ready to accept operator requests (typically starting the
// HTTP control server) and is expected to block until ctx is cancelled or
// it returns on its own; shutdownFn tears the server down.
func (h *Harness) Run(ctx context.Context, serveFn func(context.Context) error, shutdownFn func(context.Context) error) (int, error) {
	launchID := uuid.NewString()
	h.mu.Lock()
	h.launchID = launchID
	h.mu.Unlock()
	if err := os.MkdirAll(socketdir.Dir(), 0o700); err != nil {
		return -1, &SpawnError{Err: fmt.Errorf("create socket dir: %w", err)}
	}
	h.controlPath = socketdir.Path(socketdir.TypeControl, launchID)
	h.statusPath = socketdir.Path(socketdir.TypeStatus, launchID)
	defer os.Remove(h.controlPath)
	defer os.Remove(h.statusPath)

	controlLn, err := net.Listen("unix", h.controlPath)
	if err != nil {
		return -1, &SpawnError{Err: fmt.Errorf("listen control socket: %w", err)}
	}
	defer controlLn.Close()

	statusLn, err := net.Listen("unix", h.statusPath)
	if err != nil {
		return -1, &SpawnError{Err: fmt.Errorf("listen status socket: %w", err)}
	}
	defer statusLn.Close()

	exe, err := os.Executable()
	if err != nil {
		return -1, &SpawnError{Err: fmt.Errorf("resolve self executable: %w", err)}
	}

	cmd := exec.Command(exe, childSubcommand, "--name", h.cradleName, "--control-sock", h.controlPath, "--status-sock", h.statusPath)
	cmd.Env = append(os.Environ(), childEnvTargetConfig+"="+string(h.cfg.Strip()))
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	var ptmx *os.File
	if wantsPTY(h.cfg.TargetConfig) {
		ptmx, err = pty.Start(cmd)
		if err != nil {
			return -1, &SpawnError{Err: err}
		}
		go drainPTY(ptmx, h.log)
	} else {
		cmd.Stdin = nil
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return -1, &SpawnError{Err: err}
		}
	}

	h.mu.Lock()
	h.cmd = cmd
	h.mu.Unlock()
	h.log.Info("harness: spawned child", "pid", cmd.Process.Pid, "cradle", h.cradleName)

	controlConn, err := acceptWithTimeout(controlLn, h.opts.ChildTimeout)
	if err != nil {
		cmd.Process.Kill()
		return -1, &SpawnError{Err: fmt.Errorf("child did not connect control socket: %w", err)}
	}
	statusConn, err := acceptWithTimeout(statusLn, h.opts.ChildTimeout)
	if err != nil {
		cmd.Process.Kill()
		return -1, &SpawnError{Err: fmt.Errorf("child did not connect status socket: %w", err)}
	}

	h.mu.Lock()
	h.sender = &commandSender{conn: controlConn}
	h.mu.Unlock()
	newStatusReceiver(statusConn, func(value json.RawMessage) {
		h.mu.Lock()
		h.lastValue = value
		h.mu.Unlock()
		h.activity.StatusPublished()
	})

	h.setState(StateServing)
	h.setState(StateChildRunning)

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- serveFn(ctx) }()

	var waitErr error
	select {
	case waitErr = <-waitCh:
		h.setState(StateChildExited)
	case <-ctx.Done():
		h.setState(StateForceKill)
		cmd.Process.Kill()
		waitErr = <-waitCh
		h.setState(StateChildExited)
	case err := <-serveErrCh:
		if err != nil && err != http.ErrServerClosed {
			h.log.Error("harness: control server stopped unexpectedly", "error", err)
		}
		h.setState(StateForceKill)
		cmd.Process.Kill()
		waitErr = <-waitCh
		h.setState(StateChildExited)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownFn(shutdownCtx)
	h.setState(StateServerStopped)

	if ptmx != nil {
		ptmx.Close()
	}

	code := exitCodeOf(waitErr)
	h.mu.Lock()
	h.exitCode = code
	h.mu.Unlock()
	h.activity.ChildExited(code)
	h.setState(StateDone)
	return code, nil
}

func acceptWithTimeout(ln net.Listener, timeout time.Duration) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		ch <- result{conn, err}
	}()
	select {
	case r := <-ch:
		return r.conn, r.err
	case <-time.After(timeout):
		return nil, fmt.Errorf("timed out waiting for connection")
	}
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func wantsPTY(targetConfig json.RawMessage) bool {
	if len(targetConfig) == 0 {
		return false
	}
	var probe struct {
		PTY bool `json:"pty"`
	}
	if err := json.Unmarshal(targetConfig, &probe); err != nil {
		return false
	}
	return probe.PTY
}

func drainPTY(ptmx *os.File, log *slog.Logger) {
	buf := make([]byte, 4096)
	for {
		n, err := ptmx.Read(buf)
		if n > 0 {
			os.Stdout.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}
