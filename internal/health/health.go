// Package health exposes liveness and readiness probes over the service's
// backing dependencies.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is the outcome of one dependency check.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult carries one dependency's probe outcome.
type CheckResult struct {
	Component string        `json:"component"`
	Status    Status        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// Checker probes one dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc struct {
	ComponentName string
	Fn            func(ctx context.Context) error
}

func (c CheckerFunc) Name() string                    { return c.ComponentName }
func (c CheckerFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

// Manager runs registered checkers and aggregates their results. Readiness
// requires every checker to pass; liveness only requires the process to be
// responsive.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
	logger   *zap.Logger
}

// NewManager creates a manager with a per-check timeout.
func NewManager(timeout time.Duration, logger *zap.Logger) *Manager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Manager{timeout: timeout, logger: logger}
}

// Register adds a checker. Safe to call concurrently with probes.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
}

// Check runs all checkers and returns their results.
func (m *Manager) Check(ctx context.Context) []CheckResult {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.RUnlock()

	results := make([]CheckResult, 0, len(checkers))
	for _, c := range checkers {
		cctx, cancel := context.WithTimeout(ctx, m.timeout)
		start := time.Now()
		err := c.Check(cctx)
		cancel()

		r := CheckResult{
			Component: c.Name(),
			Status:    StatusHealthy,
			Duration:  time.Since(start),
			Timestamp: time.Now().UTC(),
		}
		if err != nil {
			r.Status = StatusUnhealthy
			r.Error = err.Error()
			m.logger.Warn("Health check failed",
				zap.String("component", c.Name()),
				zap.Error(err),
			)
		}
		results = append(results, r)
	}
	return results
}

// Ready reports whether every dependency check passes.
func (m *Manager) Ready(ctx context.Context) bool {
	for _, r := range m.Check(ctx) {
		if r.Status != StatusHealthy {
			return false
		}
	}
	return true
}
