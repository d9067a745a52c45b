// Package health serves the daemon's liveness and readiness probes.
//
// /healthz reports that the process is up and able to serve HTTP. /readyz
// runs every registered [Checker] (accessibility bus, history database) and
// answers 503 when any dependency is unreachable, with a per-check breakdown
// in the body:
//
//	{"status":"fail","checks":{"accessibility_bus":{"status":"ok","elapsed_ms":1},
//	 "postgres":{"status":"fail","error":"connection refused","elapsed_ms":4998}}}
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Checker probes one dependency. Check returns nil when the dependency is
// reachable; the error message is surfaced verbatim in the probe response.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler answers liveness and readiness requests. The checker list is fixed
// at construction; Handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
	timeout  time.Duration
}

// New builds a [Handler] over the given checkers. Each /readyz request runs
// them in order, each under its own 5s deadline.
func New(checkers ...Checker) *Handler {
	return &Handler{
		checkers: append([]Checker(nil), checkers...),
		timeout:  5 * time.Second,
	}
}

// Register mounts the probe routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

type probeReport struct {
	Status string                 `json:"status"`
	Checks map[string]checkResult `json:"checks,omitempty"`
}

type checkResult struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// Healthz is the liveness probe; a process that reaches this handler is
// alive, so it always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, http.StatusOK, probeReport{Status: "ok"})
}

// Readyz runs every checker and answers 200 only when all of them pass.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	report := probeReport{
		Status: "ok",
		Checks: make(map[string]checkResult, len(h.checkers)),
	}

	code := http.StatusOK
	for _, c := range h.checkers {
		start := time.Now()
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		err := c.Check(ctx)
		cancel()

		res := checkResult{Status: "ok", ElapsedMs: time.Since(start).Milliseconds()}
		if err != nil {
			res.Status = "fail"
			res.Error = err.Error()
			report.Status = "fail"
			code = http.StatusServiceUnavailable
		}
		report.Checks[c.Name] = res
	}

	h.respond(w, code, report)
}

func (h *Handler) respond(w http.ResponseWriter, code int, report probeReport) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(report); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
