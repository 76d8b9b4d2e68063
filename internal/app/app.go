// Package app wires the daemon's subsystems together and exposes the
// command surface the desktop shell calls. Backend-dependent commands
// are refused until a diagnostics sweep has passed.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lantern/officedesk/internal/audit"
	"github.com/lantern/officedesk/internal/backend"
	"github.com/lantern/officedesk/internal/bus"
	"github.com/lantern/officedesk/internal/config"
	"github.com/lantern/officedesk/internal/office"
	"github.com/lantern/officedesk/internal/otel"
	"github.com/lantern/officedesk/internal/preflight"
	"github.com/lantern/officedesk/internal/workflow"
)

// Sweeper runs the diagnostics sweep. Satisfied by *preflight.Runner.
type Sweeper interface {
	Run(ctx context.Context) preflight.Report
}

// Config holds the dependencies for the App.
type Config struct {
	Config   config.Config
	Logger   *slog.Logger
	Sweeper  Sweeper
	Gate     *preflight.Gate
	Registry *office.Registry
	Router   *office.Router
	Executor *workflow.Executor
	Backend  *backend.Client
	Events   *bus.Bus
	Metrics  *otel.Metrics // optional
}

// App is the command surface of the daemon.
type App struct {
	cfg      config.Config
	logger   *slog.Logger
	sweeper  Sweeper
	gate     *preflight.Gate
	registry *office.Registry
	router   *office.Router
	executor *workflow.Executor
	backend  *backend.Client
	events   *bus.Bus
	metrics  *otel.Metrics
}

// New creates an App from the given dependencies.
func New(cfg Config) *App {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		cfg:      cfg.Config,
		logger:   logger,
		sweeper:  cfg.Sweeper,
		gate:     cfg.Gate,
		registry: cfg.Registry,
		router:   cfg.Router,
		executor: cfg.Executor,
		backend:  cfg.Backend,
		events:   cfg.Events,
		metrics:  cfg.Metrics,
	}
}

// RunDiagnostics executes the full sweep, records the verdict on the
// gate, and returns the report.
func (a *App) RunDiagnostics(ctx context.Context) preflight.Report {
	start := time.Now()
	report := a.sweeper.Run(ctx)
	a.gate.Record(report)

	outcome := "ok"
	if report.Status == preflight.StatusError {
		outcome = "failure"
	}
	audit.Record("diagnostics.run", "", outcome, "status="+string(report.Status))

	if a.events != nil {
		a.events.Publish(bus.TopicDiagnosticsCompleted, bus.DiagnosticsEvent{
			Status: string(report.Status),
			Passed: a.gate.Passed(),
		})
	}
	if a.metrics != nil {
		a.metrics.DiagnosticsRuns.Add(ctx, 1)
		a.metrics.ProbeDuration.Record(ctx, time.Since(start).Seconds())
	}
	a.logger.Info("diagnostics sweep completed",
		"status", report.Status,
		"passed", a.gate.Passed(),
		"duration", time.Since(start),
	)
	return report
}

// IsPreflightPassed reports whether the last sweep allowed backend use.
func (a *App) IsPreflightPassed() bool {
	return a.gate.Passed()
}

// LastDiagnostics returns the most recent report, or nil before the
// first sweep.
func (a *App) LastDiagnostics() *preflight.Report {
	return a.gate.Last()
}

// CreateOffice opens a window for the role. A ttl of zero selects the
// configured default.
func (a *App) CreateOffice(ctx context.Context, role office.Role, memoryConsent bool, ttlSeconds uint64) (string, error) {
	id, err := a.registry.Create(role, memoryConsent, ttlSeconds)
	if err != nil {
		audit.Record("window.create", string(role), "failure", err.Error())
		return "", err
	}
	audit.Record("window.create", id, "ok", "role="+string(role))
	if a.metrics != nil {
		a.metrics.WindowsCreated.Add(ctx, 1)
		a.metrics.WindowsActive.Add(ctx, 1)
	}
	return id, nil
}

// CloseOffice destroys the window and removes it from the registry.
func (a *App) CloseOffice(ctx context.Context, id string) error {
	if err := a.registry.Close(id); err != nil {
		audit.Record("window.close", id, "failure", err.Error())
		return err
	}
	audit.Record("window.close", id, "ok", "")
	if a.metrics != nil {
		a.metrics.WindowsActive.Add(ctx, -1)
	}
	return nil
}

// ListOffices returns snapshots of all open windows.
func (a *App) ListOffices() []office.WindowInstance {
	return a.registry.List()
}

// GetOffice returns a snapshot of one window.
func (a *App) GetOffice(id string) (office.WindowInstance, error) {
	return a.registry.Get(id)
}

// SetOfficeConsent updates the consent flag and notifies the window.
func (a *App) SetOfficeConsent(id string, consent bool) error {
	return a.registry.SetConsent(id, consent)
}

// SetOfficeTTL updates the shared-memory TTL for the window.
func (a *App) SetOfficeTTL(id string, ttlSeconds uint64) error {
	return a.registry.SetTTL(id, ttlSeconds)
}

// MoveOffice records the window's new screen position.
func (a *App) MoveOffice(id string, x, y int) error {
	return a.registry.UpdatePosition(id, x, y)
}

// SendOfficeMessage routes a payload to every window bound to the role.
func (a *App) SendOfficeMessage(ctx context.Context, role office.Role, payload any) error {
	err := a.router.SendToRole(role, payload)
	a.countDelivery(ctx, err)
	return err
}

// BroadcastMessage routes a payload to every open window.
func (a *App) BroadcastMessage(ctx context.Context, payload any) error {
	err := a.router.Broadcast(payload)
	a.countDelivery(ctx, err)
	return err
}

func (a *App) countDelivery(ctx context.Context, err error) {
	if a.metrics == nil {
		return
	}
	if err != nil {
		a.metrics.DeliveryErrors.Add(ctx, 1)
		return
	}
	a.metrics.MessagesRouted.Add(ctx, 1)
}

// RunWorkflow executes the steps sequentially, aborting on the first
// failure. Windows opened by earlier steps are left as they are.
func (a *App) RunWorkflow(ctx context.Context, spec workflow.Spec) (string, error) {
	runID, err := a.executor.Run(ctx, spec)
	if err != nil {
		audit.Record("workflow.run", spec.Name, "failure", err.Error())
		if a.metrics != nil {
			a.metrics.WorkflowFailures.Add(ctx, 1)
		}
		return "", err
	}
	audit.Record("workflow.run", spec.Name, "ok", "run_id="+runID)
	if a.metrics != nil {
		a.metrics.WorkflowSteps.Add(ctx, int64(len(spec.Steps)))
	}
	return runID, nil
}

// checkGate refuses backend-dependent commands until diagnostics pass.
func (a *App) checkGate(ctx context.Context, command string) error {
	if err := a.gate.Check(); err != nil {
		if a.metrics != nil {
			a.metrics.GatedRejects.Add(ctx, 1)
		}
		a.logger.Warn("backend command refused", "command", command, "error", err)
		return fmt.Errorf("%s: %w", command, err)
	}
	return nil
}

// Evaluate forwards a prompt evaluation to the backend. Gated.
func (a *App) Evaluate(ctx context.Context, req backend.EvaluateRequest) (*backend.EvaluateResponse, error) {
	if err := a.checkGate(ctx, "evaluate"); err != nil {
		return nil, err
	}
	return a.backend.Evaluate(ctx, req)
}

// MutateWorkflow forwards a workflow mutation to the backend. Gated.
func (a *App) MutateWorkflow(ctx context.Context, req backend.MutateRequest) (*backend.MutateResponse, error) {
	if err := a.checkGate(ctx, "mutate_workflow"); err != nil {
		return nil, err
	}
	return a.backend.Mutate(ctx, req)
}

// BanditStatus fetches the backend's arm statistics. Gated.
func (a *App) BanditStatus(ctx context.Context) (*backend.BanditStatus, error) {
	if err := a.checkGate(ctx, "bandit_status"); err != nil {
		return nil, err
	}
	return a.backend.BanditStatus(ctx)
}

// CreateMemorySnapshot stores a shared-memory snapshot via the backend. Gated.
func (a *App) CreateMemorySnapshot(ctx context.Context, req backend.SnapshotRequest) (*backend.MemorySnapshot, error) {
	if err := a.checkGate(ctx, "create_memory_snapshot"); err != nil {
		return nil, err
	}
	return a.backend.CreateMemorySnapshot(ctx, req)
}

// WorkflowDAG fetches the backend's workflow graph. Gated.
func (a *App) WorkflowDAG(ctx context.Context) (*backend.WorkflowDAG, error) {
	if err := a.checkGate(ctx, "workflow_dag"); err != nil {
		return nil, err
	}
	return a.backend.WorkflowDAG(ctx)
}

// TelemetryMetrics fetches the backend's telemetry counters. Gated.
func (a *App) TelemetryMetrics(ctx context.Context) (*backend.TelemetryMetrics, error) {
	if err := a.checkGate(ctx, "telemetry_metrics"); err != nil {
		return nil, err
	}
	return a.backend.TelemetryMetrics(ctx)
}
