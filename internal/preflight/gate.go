package preflight

import (
	"errors"
	"sync"
)

// ErrNotSatisfied is returned when a backend-dependent operation is invoked
// before a diagnostics run has passed.
var ErrNotSatisfied = errors.New("preflight not satisfied: run diagnostics first")

// Gate holds the most recent diagnostics report and the derived pass state.
// The pair is read and written atomically: a reader never observes a new
// pass flag with a stale report or vice versa. The zero state is closed
// with no report.
type Gate struct {
	mu     sync.RWMutex
	passed bool
	last   *Report
}

// NewGate returns a closed gate with no recorded report.
func NewGate() *Gate {
	return &Gate{}
}

// Record overwrites the stored report and recomputes the pass state.
func (g *Gate) Record(report Report) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = &report
	g.passed = report.Status == StatusOK
}

// Passed reports whether the last diagnostics run was fully OK. Any
// degraded report, WARNING included, keeps the gate closed.
func (g *Gate) Passed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.passed
}

// Last returns a copy of the most recent report, or nil if none exists.
func (g *Gate) Last() *Report {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.last == nil {
		return nil
	}
	cp := *g.last
	cp.Checks = make(map[string]CheckResult, len(g.last.Checks))
	for k, v := range g.last.Checks {
		cp.Checks[k] = v
	}
	return &cp
}

// Check returns ErrNotSatisfied unless the gate is open.
func (g *Gate) Check() error {
	if !g.Passed() {
		return ErrNotSatisfied
	}
	return nil
}
