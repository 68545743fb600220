// Package obs wires up the harness's ambient structured logging: a
// slog.Logger writing JSON lines to a rotated file, configured from the
// resolved "logging" subtree.
package obs

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Settings is the decoded shape of the resolved config's "logging"
// subtree. All fields are optional; zero values fall back to sane
// defaults so a run with no logging section still gets console output.
type Settings struct {
	Path       string `json:"path,omitempty"`
	Level      string `json:"level,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
}

// New builds a slog.Logger per Settings. When Path is set, output is
// written through a lumberjack.Logger so long-running harness processes
// don't grow an unbounded log file; otherwise output goes to stderr.
func New(s Settings) *slog.Logger {
	var w io.Writer = os.Stderr
	if s.Path != "" {
		w = &lumberjack.Logger{
			Filename:   s.Path,
			MaxSize:    orDefault(s.MaxSizeMB, 100),
			MaxBackups: orDefault(s.MaxBackups, 5),
			MaxAge:     orDefault(s.MaxAgeDays, 28),
		}
	}

	level := parseLevel(s.Level)
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
