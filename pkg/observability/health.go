package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckFunc probes one dependency
type CheckFunc func(ctx context.Context) error

type dependency struct {
	check    CheckFunc
	critical bool
}

// HealthChecker aggregates dependency probes. A failing critical
// dependency makes the service unhealthy; any other failure degrades it.
type HealthChecker struct {
	version string
	timeout time.Duration

	mu   sync.RWMutex
	deps map[string]dependency
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHealthChecker creates a checker reporting version
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		version: version,
		timeout: 5 * time.Second,
		deps:    map[string]dependency{},
	}
}

// Register adds a named dependency probe
func (h *HealthChecker) Register(name string, critical bool, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deps[name] = dependency{check: check, critical: critical}
}

// Check runs every probe
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	h.mu.RLock()
	names := make([]string, 0, len(h.deps))
	for name := range h.deps {
		names = append(names, name)
	}
	deps := make(map[string]dependency, len(h.deps))
	for k, v := range h.deps {
		deps[k] = v
	}
	h.mu.RUnlock()
	sort.Strings(names)

	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(names)),
	}

	for _, name := range names {
		dep := deps[name]
		start := time.Now()
		err := dep.check(ctx)
		ds := DependencyStatus{
			Status:    StatusHealthy,
			LatencyMS: time.Since(start).Milliseconds(),
			Timestamp: time.Now(),
		}
		if err != nil {
			ds.Message = err.Error()
			if dep.critical {
				ds.Status = StatusUnhealthy
				status.Status = StatusUnhealthy
			} else {
				ds.Status = StatusDegraded
				if status.Status != StatusUnhealthy {
					status.Status = StatusDegraded
				}
			}
		}
		status.Dependencies[name] = ds
	}
	return status
}

// Liveness returns 200 while the process is serving
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, HealthStatus{Status: StatusHealthy, Timestamp: time.Now(), Version: h.version})
}

// Readiness returns 503 when a critical dependency fails, 200 otherwise
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, status)
}

func writeHealth(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}
