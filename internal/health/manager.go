// Package health probes the service's backends and aggregates their
// states into one readiness verdict.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is a component or overall health state.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of probing one component.
type CheckResult struct {
	Component string        `json:"component"`
	Status    Status        `json:"status"`
	Critical  bool          `json:"critical"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	Timestamp time.Time     `json:"timestamp"`
}

// Checker probes one backend.
type Checker interface {
	Name() string
	Critical() bool
	Check(ctx context.Context) CheckResult
}

// Overall is the aggregated verdict. Unhealthy means at least one
// critical component failed; degraded means only non-critical ones
// did.
type Overall struct {
	Status     Status                 `json:"status"`
	Components map[string]CheckResult `json:"components"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Manager runs the registered checkers in parallel under a shared
// timeout.
type Manager struct {
	timeout  time.Duration
	log      *zap.Logger
	mu       sync.Mutex
	checkers []Checker
}

// NewManager builds a manager; timeout 0 takes 5s.
func NewManager(timeout time.Duration, logger *zap.Logger) *Manager {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Manager{timeout: timeout, log: logger}
}

// Register adds a checker.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
}

// Check probes every registered component and aggregates.
func (m *Manager) Check(ctx context.Context) Overall {
	m.mu.Lock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	results := make([]CheckResult, len(checkers))
	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			results[i] = c.Check(ctx)
		}(i, c)
	}
	wg.Wait()

	overall := Overall{
		Status:     StatusHealthy,
		Components: make(map[string]CheckResult, len(results)),
		Timestamp:  time.Now(),
	}
	for _, r := range results {
		overall.Components[r.Component] = r
		if r.Status == StatusHealthy {
			continue
		}
		if r.Critical {
			overall.Status = StatusUnhealthy
		} else if overall.Status == StatusHealthy {
			overall.Status = StatusDegraded
		}
		m.log.Warn("Health check failed",
			zap.String("component", r.Component),
			zap.Bool("critical", r.Critical),
			zap.String("error", r.Error))
	}
	return overall
}
