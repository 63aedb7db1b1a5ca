// Package health serves the liveness and readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

// Pinger is implemented by anything that can verify its connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping adapts a Pinger to a Check.
func Ping(p Pinger) Check {
	return func(ctx context.Context) error { return p.Ping(ctx) }
}

// Handler answers /healthz and /readyz.
type Handler struct {
	version string
	timeout time.Duration

	mu     sync.RWMutex
	names  []string
	checks map[string]Check
}

// NewHandler creates a handler. Readiness checks share timeout.
func NewHandler(version string, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Handler{version: version, timeout: timeout, checks: make(map[string]Check)}
}

// Add registers a readiness check. Re-adding a name replaces the check.
func (h *Handler) Add(name string, check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.checks[name]; !ok {
		h.names = append(h.names, name)
	}
	h.checks[name] = check
}

// Status is the body of both endpoints.
type Status struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version,omitempty"`
	Checks  map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of one readiness check.
type CheckResult struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Health reports the process is up.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	write(w, http.StatusOK, Status{Status: "ok", Version: h.version})
}

// Ready runs every check concurrently and answers 503 when any fails.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.mu.RLock()
	names := append([]string(nil), h.names...)
	checks := make([]Check, len(names))
	for i, name := range names {
		checks[i] = h.checks[name]
	}
	h.mu.RUnlock()

	results := make([]CheckResult, len(names))
	var g errgroup.Group
	for i := range checks {
		g.Go(func() error {
			start := time.Now()
			err := checks[i](ctx)
			results[i] = CheckResult{OK: err == nil, LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	g.Wait()

	resp := Status{Status: "ready", Version: h.version, Checks: make(map[string]CheckResult, len(names))}
	code := http.StatusOK
	for i, name := range names {
		resp.Checks[name] = results[i]
		if !results[i].OK {
			resp.Status = "not_ready"
			code = http.StatusServiceUnavailable
		}
	}
	write(w, code, resp)
}

func write(w http.ResponseWriter, code int, body Status) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
