// Package health serves the liveness and readiness endpoints.
//
//   - /healthz always returns 200 with the version and uptime.
//   - /readyz runs every registered [Checker] concurrently. A failing
//     critical check makes the service "unhealthy" (503); a failing
//     non-critical one only marks it "degraded" (still 200).
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Status values reported in the "status" field.
const (
	StatusOK        = "ok"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Checker is a named health check. Check returns nil when the dependency is
// usable. Critical checks fail readiness; the others only degrade it.
type Checker struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// Report is the JSON body of both endpoints.
type Report struct {
	Status        string            `json:"status"`
	Version       string            `json:"version,omitempty"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// Option configures a Handler.
type Option func(*Handler)

// WithVersion sets the version string reported by both endpoints.
func WithVersion(v string) Option {
	return func(h *Handler) { h.version = v }
}

// WithChecks registers readiness checks.
func WithChecks(c ...Checker) Option {
	return func(h *Handler) { h.checkers = append(h.checkers, c...) }
}

// Handler serves /healthz and /readyz. It is safe for concurrent use.
type Handler struct {
	version  string
	started  time.Time
	checkers []Checker
}

// New creates a Handler. Uptime is counted from this call.
func New(opts ...Option) *Handler {
	h := &Handler{started: time.Now()}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Handler) uptime() int64 {
	return int64(time.Since(h.started).Seconds())
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{Status: StatusOK, Version: h.version, UptimeSeconds: h.uptime()})
}

// Readyz is the readiness probe.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := h.Evaluate(r.Context())
	status := http.StatusOK
	if res.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Evaluate runs every checker concurrently and aggregates the outcome.
func (h *Handler) Evaluate(ctx context.Context) Report {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.checkers))
		status = StatusOK
	)
	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			err := c.Check(cctx)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				checks[c.Name] = "ok"
				return nil
			}
			checks[c.Name] = "fail: " + err.Error()
			switch {
			case c.Critical:
				status = StatusUnhealthy
			case status == StatusOK:
				status = StatusDegraded
			}
			return nil
		})
	}
	_ = g.Wait()

	return Report{Status: status, Version: h.version, UptimeSeconds: h.uptime(), Checks: checks}
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
