package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
	credentialUnresolved     = "unresolved"
)

// HealthChecker serves /healthz, /readyz and /healthz/detailed for the HTTP
// transports. Credentials resolve lazily, so an unresolved credential is
// reported but never fails readiness.
type HealthChecker struct {
	ready     atomic.Bool
	sc        *ServerContext
	startTime time.Time
}

// NewHealthChecker creates a checker that starts out ready. sc may be nil.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{sc: sc, startTime: time.Now()}
	h.ready.Store(true)
	return h
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the server is ready to receive traffic.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse is the body of /healthz/detailed.
type DetailedHealthResponse struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Checks map[string]string `json:"checks,omitempty"`
	// Credential is the strategy of the cached credential, or "unresolved".
	Credential string `json:"credential"`
	ReadOnly   bool   `json:"read_only"`
}

// evaluate runs the readiness checks. status is the first failing state,
// or ok.
func (h *HealthChecker) evaluate() (status string, checks map[string]string) {
	status = healthStatusOK
	checks = map[string]string{"ready": healthStatusOK, "shutdown": healthStatusOK}

	if !h.ready.Load() {
		checks["ready"] = healthStatusNotReady
		status = healthStatusNotReady
	}
	if h.sc != nil && h.sc.IsShutdown() {
		checks["shutdown"] = healthStatusShuttingDown
		if status == healthStatusOK {
			status = healthStatusShuttingDown
		}
	}
	return status, checks
}

func (h *HealthChecker) credential() string {
	if h.sc == nil {
		return credentialUnresolved
	}
	if strategy := h.sc.Strategy(); strategy != "" {
		return strategy
	}
	return credentialUnresolved
}

func writeHealth(w http.ResponseWriter, status string, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if status == healthStatusOK {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(body)
}

// LivenessHandler answers 200 while the process is running.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, healthStatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler answers 503 once the server is marked not ready or the
// server context has shut down.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status, checks := h.evaluate()
		// Readiness collapses shutting down into not ready.
		if status != healthStatusOK {
			status = healthStatusNotReady
		}
		writeHealth(w, status, HealthResponse{Status: status, Checks: checks})
	})
}

// DetailedHealthHandler adds uptime, the credential strategy and the
// read-only flag to the readiness checks.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status, checks := h.evaluate()
		resp := DetailedHealthResponse{
			Status:     status,
			Uptime:     time.Since(h.startTime).Truncate(time.Second).String(),
			Checks:     checks,
			Credential: h.credential(),
		}
		if h.sc != nil {
			resp.ReadOnly = h.sc.ReadOnly()
		}
		writeHealth(w, status, resp)
	})
}

// RegisterHealthEndpoints mounts the health handlers on mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}
