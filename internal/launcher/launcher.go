// Package launcher ties the resolved configuration, the harness supervisor
// and the control HTTP server together into one runnable process, the way
// the original service's CLI entry point wired its FastAPI app and process
// supervisor together before calling uvicorn.run.
package launcher

import (
	"context"
	"encoding/json"
	"fmt"

	"harness/internal/activitylog"
	"harness/internal/config"
	"harness/internal/control"
	"harness/internal/harness"
	"harness/internal/obs"
)

// loggingConfig is the decoded shape of the resolved config's "logging"
// subtree: the ambient slog settings plus the (independent) activity-log
// settings, since both are configured from the same subtree but serve
// different audiences.
type loggingConfig struct {
	obs.Settings
	ActivityLogPath    string `json:"activity_log_path,omitempty"`
	ActivityLogEnabled bool   `json:"activity_log_enabled,omitempty"`
	Actor              string `json:"actor,omitempty"`
	SessionID          string `json:"session_id,omitempty"`
}

func decodeLogging(raw json.RawMessage) loggingConfig {
	var lc loggingConfig
	if len(raw) > 0 {
		json.Unmarshal(raw, &lc)
	}
	return lc
}

// Launch runs a single harness lifecycle to completion: it builds the
// ambient logger and activity logger from cfg, wires a Harness for the
// named registered cradle to a control.Server bound to cfg's harness
// interface/port, and blocks until the child exits or ctx is cancelled.
// It returns the child's exit code.
func Launch(ctx context.Context, cfg *config.Resolved, cradleName string) (int, error) {
	lc := decodeLogging(cfg.Logging)
	log := obs.New(lc.Settings)
	activity := activitylog.New(lc.ActivityLogEnabled, lc.ActivityLogPath, lc.Actor, lc.SessionID)
	defer activity.Close()

	h := harness.New(cfg, cradleName, log, activity, harness.Options{})
	addr := fmt.Sprintf("%s:%d", cfg.Harness.Interface, cfg.Harness.Port)
	srv := control.New(addr, h, log)

	code, err := h.Run(ctx, srv.Serve, srv.Shutdown)
	if err != nil {
		return -1, err
	}
	return code, nil
}
