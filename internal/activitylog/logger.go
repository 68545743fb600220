// Package activitylog records harness lifecycle events (commands received,
// status published, child transitions, kills) as JSON lines, independent of
// the ambient slog stream so an operator can replay a run's command/status
// history without wading through general log output.
package activitylog

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Logger appends one JSON object per line to a file. A disabled Logger is
// a no-op, so callers never need to branch on whether logging is on.
type Logger struct {
	mu        sync.Mutex
	f         *os.File
	actor     string
	sessionID string
}

// New opens (creating if necessary) the activity log at path when enabled
// is true. When enabled is false, New returns a Logger whose methods are
// no-ops and which never touches the filesystem.
func New(enabled bool, path, actor, sessionID string) *Logger {
	if !enabled {
		return &Logger{}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return &Logger{}
	}
	return &Logger{f: f, actor: actor, sessionID: sessionID}
}

// Nop returns a Logger whose methods are always no-ops, for callers that
// have no path to log to at all (e.g. a dry-run scan).
func Nop() *Logger {
	return &Logger{}
}

func (l *Logger) write(fields map[string]any) {
	if l == nil || l.f == nil {
		return
	}
	fields["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	fields["actor"] = l.actor
	fields["session_id"] = l.sessionID

	l.mu.Lock()
	defer l.mu.Unlock()
	data, err := json.Marshal(fields)
	if err != nil {
		return
	}
	data = append(data, '\n')
	l.f.Write(data)
}

// CommandReceived records an operator command arriving on the command
// channel, before the child has had a chance to poll it.
func (l *Logger) CommandReceived(cmd string) {
	l.write(map[string]any{"event": "command_received", "cmd": cmd})
}

// StatusPublished records a value published by the child through
// PublishStatus, independent of whether an operator ever polls it.
func (l *Logger) StatusPublished() {
	l.write(map[string]any{"event": "status_published"})
}

// StateChange records the harness's state machine moving from one state
// to another (e.g. CHILD_RUNNING to CHILD_EXITED).
func (l *Logger) StateChange(from, to string) {
	l.write(map[string]any{"event": "state_change", "from": from, "to": to})
}

// ChildExited records the child process's observed exit code.
func (l *Logger) ChildExited(code int) {
	l.write(map[string]any{"event": "child_exited", "exit_code": code})
}

// Killed records a forced-kill of the child, with the reason an operator
// or timeout supplied.
func (l *Logger) Killed(reason string) {
	l.write(map[string]any{"event": "killed", "reason": reason})
}

// Close releases the underlying file handle. Safe to call on a no-op
// Logger.
func (l *Logger) Close() {
	if l == nil || l.f == nil {
		return
	}
	l.f.Close()
}
