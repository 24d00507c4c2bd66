// Package health serves liveness and readiness probes.
//
//   - GET /healthz answers 200 whenever the process can serve HTTP.
//   - GET /readyz answers 200 only when every registered check passes,
//     503 otherwise.
//
// Responses are JSON with a "status" field and, for readiness, a per-check
// breakdown.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

const defaultTimeout = 5 * time.Second

// Check probes one dependency. It must respect context cancellation and
// return nil when the dependency is usable.
type Check func(ctx context.Context) error

// Option configures a [Handler].
type Option func(*Handler)

// WithTimeout bounds how long a single readiness check may run.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

type namedCheck struct {
	name  string
	check Check
}

// Handler serves the probe endpoints. Add all checks before Register; the
// handler is then safe for concurrent use.
type Handler struct {
	timeout time.Duration
	started time.Time
	checks  []namedCheck
}

// NewHandler creates a probe handler with no checks registered.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		timeout: defaultTimeout,
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Add registers a named readiness check. Names appear as keys in the /readyz
// response body.
func (h *Handler) Add(name string, check Check) {
	h.checks = append(h.checks, namedCheck{name: name, check: check})
}

// Register mounts the probe routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /readyz", h.readyz)
}

type checkResult struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

type probeBody struct {
	Status string                 `json:"status"`
	Uptime string                 `json:"uptime,omitempty"`
	Checks map[string]checkResult `json:"checks,omitempty"`
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, probeBody{
		Status: "ok",
		Uptime: time.Since(h.started).Round(time.Second).String(),
	})
}

// readyz runs every check concurrently, each under its own timeout.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	results := make([]checkResult, len(h.checks))

	var wg sync.WaitGroup
	for i, c := range h.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
			defer cancel()

			start := time.Now()
			err := c.check(ctx)
			res := checkResult{
				Status:  "ok",
				Latency: time.Since(start).Round(time.Millisecond).String(),
			}
			if err != nil {
				res.Status = "fail"
				res.Error = err.Error()
			}
			results[i] = res
		}()
	}
	wg.Wait()

	body := probeBody{Status: "ok", Checks: make(map[string]checkResult, len(h.checks))}
	status := http.StatusOK
	for i, c := range h.checks {
		body.Checks[c.name] = results[i]
		if results[i].Status != "ok" {
			body.Status = "fail"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
