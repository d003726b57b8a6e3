// Package health aggregates dependency reachability probes into a single
// readiness verdict.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Checker probes one dependency.
type Checker interface {
	// Name returns the unique name of this check.
	Name() string

	// Check probes the dependency; nil means healthy.
	Check(ctx context.Context) error

	// Critical reports whether a failure should mark the service not ready.
	Critical() bool
}

// CheckResult is the outcome of one probe.
type CheckResult struct {
	Component string        `json:"component"`
	Healthy   bool          `json:"healthy"`
	Critical  bool          `json:"critical"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Report is the aggregate of all registered checks.
type Report struct {
	Ready     bool                   `json:"ready"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp time.Time              `json:"timestamp"`
}

// Manager runs registered checks on demand. Safe for concurrent use.
type Manager struct {
	timeout time.Duration
	logger  *zap.Logger

	mu       sync.RWMutex
	checkers map[string]Checker
}

// NewManager creates a manager applying timeout to each individual probe.
func NewManager(timeout time.Duration, logger *zap.Logger) *Manager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Manager{
		timeout:  timeout,
		logger:   logger,
		checkers: make(map[string]Checker),
	}
}

// Register adds a check, replacing any existing check of the same name.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[c.Name()] = c
	m.logger.Info("Health check registered",
		zap.String("check", c.Name()),
		zap.Bool("critical", c.Critical()),
	)
}

// Report runs every registered check. Ready is false when any critical
// check fails; non-critical failures are reported but do not gate readiness.
func (m *Manager) Report(ctx context.Context) Report {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	report := Report{
		Ready:     true,
		Checks:    make(map[string]CheckResult, len(checkers)),
		Timestamp: time.Now(),
	}

	for _, c := range checkers {
		checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
		start := time.Now()
		err := c.Check(checkCtx)
		cancel()

		result := CheckResult{
			Component: c.Name(),
			Healthy:   err == nil,
			Critical:  c.Critical(),
			Duration:  time.Since(start),
		}
		if err != nil {
			result.Error = err.Error()
			if c.Critical() {
				report.Ready = false
			}
			m.logger.Warn("Health check failed",
				zap.String("check", c.Name()),
				zap.Bool("critical", c.Critical()),
				zap.Error(err),
			)
		}
		report.Checks[c.Name()] = result
	}
	return report
}

// Ready reports whether every critical dependency is reachable.
func (m *Manager) Ready(ctx context.Context) bool {
	return m.Report(ctx).Ready
}
