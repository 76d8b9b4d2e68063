// Package preflight runs the diagnostics sweep that gates backend-dependent
// features. The runner executes a fixed battery of independent probes
// concurrently and reduces them to a single report; the gate holds the most
// recent report and the derived pass/fail state.
package preflight

import (
	"time"
)

// Severity classifies a single check outcome.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Status is the overall outcome of a diagnostics run.
type Status string

const (
	StatusOK      Status = "OK"
	StatusWarning Status = "WARNING"
	StatusError   Status = "ERROR"
)

// CheckResult is the outcome of one probe.
type CheckResult struct {
	Passed   bool     `json:"passed"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Report aggregates all probe outcomes from one diagnostics run.
type Report struct {
	Status    Status                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp time.Time              `json:"timestamp"`
}

// computeStatus reduces check outcomes to an overall status: OK iff every
// check passed, else ERROR if any failed check carries error severity,
// else WARNING.
func computeStatus(checks map[string]CheckResult) Status {
	allPassed := true
	hasError := false
	for _, c := range checks {
		if !c.Passed {
			allPassed = false
			if c.Severity == SeverityError {
				hasError = true
			}
		}
	}
	switch {
	case allPassed:
		return StatusOK
	case hasError:
		return StatusError
	default:
		return StatusWarning
	}
}
