package monitoring

import (
	"context"
	"sync"
	"time"
)

type HealthChecker interface {
	CheckHealth(ctx context.Context) *HealthStatus
	RegisterCheck(name string, check CheckFunc)
}

// CheckFunc probes one dependency. A non-nil error marks it unhealthy.
type CheckFunc func(ctx context.Context) error

type HealthStatus struct {
	Status     string                      `json:"status"`
	Timestamp  time.Time                   `json:"timestamp"`
	Uptime     string                      `json:"uptime"`
	Version    string                      `json:"version"`
	Components map[string]*ComponentHealth `json:"components"`
}

type ComponentHealth struct {
	Status     string `json:"status"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

type healthChecker struct {
	mu        sync.RWMutex
	checks    map[string]CheckFunc
	startTime time.Time
	version   string
	timeout   time.Duration
}

func NewHealthChecker(version string) HealthChecker {
	return &healthChecker{
		checks:    make(map[string]CheckFunc),
		startTime: time.Now(),
		version:   version,
		timeout:   3 * time.Second,
	}
}

func (h *healthChecker) RegisterCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

func (h *healthChecker) CheckHealth(ctx context.Context) *HealthStatus {
	h.mu.RLock()
	checks := make(map[string]CheckFunc, len(h.checks))
	for name, check := range h.checks {
		checks[name] = check
	}
	h.mu.RUnlock()

	status := &HealthStatus{
		Status:     "healthy",
		Timestamp:  time.Now(),
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Version:    h.version,
		Components: make(map[string]*ComponentHealth, len(checks)),
	}

	for name, check := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
		start := time.Now()
		err := check(checkCtx)
		cancel()

		component := &ComponentHealth{
			Status:     "healthy",
			DurationMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			component.Status = "unhealthy"
			component.Error = err.Error()
			status.Status = "degraded"
		}
		status.Components[name] = component
	}

	return status
}
