package harness

import (
	"encoding/json"
	"fmt"
	"net"
	"os"

	"harness/internal/cradle"
)

// ChildArgs are the hidden "_cradle" subcommand's parsed flags, populated
// by cmd/harnessctl before calling RunChild.
type ChildArgs struct {
	CradleName  string
	ControlSock string
	StatusSock  string
}

// RunChild is the entry point for the re-exec'd child process: it dials
// the two sockets the parent Harness is listening on, resolves the named
// cradle from the registry with the target-config carried in the
// environment, wires the cradle's command/status queues to those sockets,
// and runs it to completion. It never returns; it calls os.Exit with the
// cradle's exit code, or with 1 on any setup failure or when Run returns a
// non-nil error.
func RunChild(args ChildArgs) {
	code, err := runChild(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(code)
}

func runChild(args ChildArgs) (int, error) {
	targetConfig := json.RawMessage(os.Getenv(childEnvTargetConfig))

	c, err := cradle.Resolve(args.CradleName, targetConfig)
	if err != nil {
		return -1, fmt.Errorf("resolve cradle %q: %w", args.CradleName, err)
	}

	controlConn, err := net.Dial("unix", args.ControlSock)
	if err != nil {
		return -1, fmt.Errorf("dial control socket: %w", err)
	}
	defer controlConn.Close()

	statusConn, err := net.Dial("unix", args.StatusSock)
	if err != nil {
		return -1, fmt.Errorf("dial status socket: %w", err)
	}
	defer statusConn.Close()

	cmds := newCommandReceiver(controlConn)
	status := newStatusSender(statusConn)
	c.SetQueues(cmds, status)

	return c.Run()
}
