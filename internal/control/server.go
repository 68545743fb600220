// Package control provides the operator-facing HTTP surface: a stdlib
// net/http.ServeMux bound to the harness's configured interface/port,
// dispatching HEARTBEAT, START, STOP, PAUSE, RESUME, CONFIG and KILL
// commands and exposing liveness and status snapshots, mirroring
// msg_factory.py's uniform response envelopes.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"harness/internal/cradle"
)

// timeLayout matches the original service's "%Y-%m-%d %H:%M:%S.%f" stamp.
const timeLayout = "2006-01-02 15:04:05.000000"

// Supervisor is the narrow surface the control server needs from a running
// harness. *harness.Harness satisfies this.
type Supervisor interface {
	Alive() bool
	PID() int
	Enqueue(cradle.Command) error
	Kill() error
	Status() json.RawMessage
	LaunchID() string
}

// Server wraps an http.Server bound to the harness's control endpoints.
type Server struct {
	sup    Supervisor
	log    *slog.Logger
	server *http.Server
}

// New builds a control Server listening on addr (host:port). It does not
// start listening until Serve is called.
func New(addr string, sup Supervisor, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{sup: sup, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/hb", s.handleHeartbeat)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/start", s.commandHandler(cradle.Start))
	mux.HandleFunc("/stop", s.commandHandler(cradle.Stop))
	mux.HandleFunc("/pause", s.commandHandler(cradle.Pause))
	mux.HandleFunc("/resume", s.commandHandler(cradle.Resume))
	mux.HandleFunc("/data", s.commandHandler(cradle.Config))
	mux.HandleFunc("/kill", s.handleKill)

	s.server = &http.Server{Addr: addr, Handler: withEnvelopes(mux, sup)}
	return s
}

// Serve blocks, serving requests until the listener fails or Shutdown is
// called from another goroutine.
func (s *Server) Serve(ctx context.Context) error {
	s.log.Info("control: listening", "addr", s.server.Addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return err
	}
	return err
}

// Shutdown gracefully stops the server, honoring ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	pid := s.sup.PID()
	if pid == 0 || !s.sup.Alive() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  false,
			"error":   "Launched process is not alive",
			"time":    now(),
			"service": map[string]any{},
			"process": map[string]any{},
		})
		return
	}

	ps, err := process.NewProcess(int32(pid))
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  false,
			"error":   "Launched process is not alive",
			"time":    now(),
			"service": map[string]any{},
			"process": map[string]any{},
		})
		return
	}

	name, _ := ps.Name()
	status, _ := ps.Status()
	cpuPct, _ := ps.CPUPercent()
	mem, _ := ps.MemoryInfo()
	threads, _ := ps.NumThreads()
	files, _ := ps.OpenFiles()
	created, _ := ps.CreateTime()

	rssMB := float64(0)
	if mem != nil {
		rssMB = float64(mem.RSS) / (1024 * 1024)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": true,
		"time":   now(),
		"service": map[string]any{},
		"process": map[string]any{
			"pid":        ps.Pid,
			"name":       name,
			"status":     status,
			"cpu-pct":    cpuPct,
			"mem-rss-mb": rssMB,
			"threads":    threads,
			"open-files": files,
			"created":    created,
		},
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var processStatus any = map[string]any{}
	raw := s.sup.Status()
	if len(raw) > 0 {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			processStatus = decoded
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"process-status":  processStatus,
		"target-process":  s.sup.PID(),
		"time":            now(),
	})
}

func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	pid := s.sup.PID()
	if err := s.sup.Kill(); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"command":         cradle.Kill,
			"status":          "ERROR",
			"error":           err.Error(),
			"target-process":  pid,
			"time":            now(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "SENT",
		"command":         cradle.Kill,
		"target-process":  pid,
		"time":            now(),
	})
}

// commandHandler builds a handler that enqueues cmd on the harness's command
// channel, forwarding the request body verbatim as the command's data
// payload (used by /data to carry an operator-supplied config blob). A
// /data body that does not parse as JSON is rejected with an ERROR
// envelope and nothing is enqueued.
func (s *Server) commandHandler(cmd cradle.CommandKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pid := s.sup.PID()
		var data json.RawMessage
		if r.Body != nil {
			if decoded, err := readBody(r); err == nil && len(decoded) > 0 {
				data = decoded
			} else if cmd == cradle.Config {
				writeJSON(w, http.StatusBadRequest, map[string]any{
					"command":         cmd,
					"status":          "ERROR",
					"error":           "request body did not parse as JSON",
					"target-process":  pid,
					"time":            now(),
				})
				return
			}
		}
		err := s.sup.Enqueue(cradle.Command{Cmd: cmd, Data: data})
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"command":         cmd,
				"status":          "ERROR",
				"error":           err.Error(),
				"target-process":  pid,
				"time":            now(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":          "SENT",
			"command":         cmd,
			"target-process":  pid,
			"time":            now(),
		})
	}
}

func now() string {
	return time.Now().Format(timeLayout)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func readBody(r *http.Request) (json.RawMessage, error) {
	dec := json.NewDecoder(r.Body)
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// withEnvelopes wraps mux so unmatched routes and panics report the uniform
// 404/500 envelopes the operator-facing API commits to, and every response
// carries the current launch's correlation ID.
func withEnvelopes(mux *http.ServeMux, sup Supervisor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := sup.LaunchID(); id != "" {
			w.Header().Set("X-Harness-Launch-Id", id)
		}
		defer func() {
			if rec := recover(); rec != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]any{
					"detail": fmt.Sprintf("An internal error occurred: %v", rec),
				})
			}
		}()
		h, pattern := mux.Handler(r)
		if pattern == "" {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"detail": "Route not found: " + r.URL.Path,
			})
			return
		}
		h.ServeHTTP(w, r)
	})
}
