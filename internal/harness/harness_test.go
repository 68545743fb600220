package harness

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"testing"
	"time"

	"harness/internal/activitylog"
	"harness/internal/config"
	"harness/internal/cradle"
)

// TestMain intercepts the re-exec'd "_cradle" invocation the same way this
// test binary would be re-invoked in production, so Harness.Run can spawn
// a real child OS process (itself) without a separately built harnessctl
// binary.
func TestMain(m *testing.M) {
	if len(os.Args) > 1 && os.Args[1] == childSubcommand {
		fs := flag.NewFlagSet(childSubcommand, flag.ExitOnError)
		name := fs.String("name", "", "")
		controlSock := fs.String("control-sock", "", "")
		statusSock := fs.String("status-sock", "", "")
		fs.Parse(os.Args[2:])
		RunChild(ChildArgs{CradleName: *name, ControlSock: *controlSock, StatusSock: *statusSock})
		return
	}
	os.Exit(m.Run())
}

func init() {
	cradle.Register("test-exit-zero-publish", func(targetConfig json.RawMessage) cradle.Cradle {
		return &publishThenExitCradle{Base: cradle.NewBase(targetConfig), value: map[string]any{"ii": 1}}
	})
	cradle.Register("test-run-until-stop", func(targetConfig json.RawMessage) cradle.Cradle {
		return &runUntilStopCradle{Base: cradle.NewBase(targetConfig)}
	})
}

// publishThenExitCradle publishes one status value and exits 0, mirroring
// end-to-end scenario E1.
type publishThenExitCradle struct {
	*cradle.Base
	value any
}

func (c *publishThenExitCradle) Run() (int, error) {
	c.PublishStatus(c.value)
	return 0, nil
}

// runUntilStopCradle polls until it observes a STOP command, mirroring E2.
type runUntilStopCradle struct {
	*cradle.Base
}

func (c *runUntilStopCradle) Run() (int, error) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cmd, ok := c.PollCommand(); ok && cmd.Cmd == cradle.Stop {
			return 0, nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return 1, nil
}

func testResolved(t *testing.T) *config.Resolved {
	t.Helper()
	cfg, err := config.Resolve(map[string]any{
		"harness":       map[string]any{"interface": "127.0.0.1", "port": 3000},
		"target-config": map[string]any{"a": 1},
	}, nil)
	if err != nil {
		t.Fatalf("config.Resolve: %v", err)
	}
	return cfg
}

func noopServe(ctx context.Context) error {
	<-ctx.Done()
	return http.ErrServerClosed
}

func noopShutdown(ctx context.Context) error { return nil }

func TestRunPublishThenExit(t *testing.T) {
	h := New(testResolved(t), "test-exit-zero-publish", nil, activitylog.Nop(), Options{ChildTimeout: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	code, err := h.Run(ctx, func(c context.Context) error {
		// Give the child a moment to publish before the harness tears down.
		time.Sleep(200 * time.Millisecond)
		cancel()
		return noopServe(c)
	}, noopShutdown)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	status := h.Status()
	var decoded map[string]any
	if err := json.Unmarshal(status, &decoded); err != nil {
		t.Fatalf("unmarshal status %s: %v", status, err)
	}
	if decoded["ii"] != float64(1) {
		t.Fatalf("status = %v, want ii=1", decoded)
	}
}

// TestRunCommandOrdering exercises the STOP path of E2: the cradle polls
// PollCommand in a loop and only exits 0 once it observes STOP, so a
// passing run proves the command actually made it from Enqueue, across
// the control socket, to the child's queue before the child exited.
func TestRunCommandOrdering(t *testing.T) {
	h := New(testResolved(t), "test-run-until-stop", nil, activitylog.Nop(), Options{ChildTimeout: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	enqueueErrCh := make(chan error, 1)
	go func() {
		<-started
		enqueueErrCh <- h.Enqueue(cradle.Command{Cmd: cradle.Stop})
	}()

	code, err := h.Run(ctx, func(c context.Context) error {
		close(started)
		return noopServe(c)
	}, noopShutdown)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if enqueueErr := <-enqueueErrCh; enqueueErr != nil {
		t.Fatalf("Enqueue(STOP): %v", enqueueErr)
	}
	if code != 0 {
		t.Fatalf("exit code = %d, want 0 (cradle should have observed STOP before exiting)", code)
	}
}

func TestWantsPTY(t *testing.T) {
	if wantsPTY(nil) {
		t.Fatal("nil target-config should not request a PTY")
	}
	if !wantsPTY(json.RawMessage(`{"pty":true}`)) {
		t.Fatal("expected pty:true to request a PTY")
	}
	if wantsPTY(json.RawMessage(`{"pty":false}`)) {
		t.Fatal("expected pty:false to not request a PTY")
	}
}

func TestExitCodeOf(t *testing.T) {
	if exitCodeOf(nil) != 0 {
		t.Fatal("nil error should yield exit code 0")
	}
}
