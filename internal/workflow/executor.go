package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lantern/officedesk/internal/bus"
	"github.com/lantern/officedesk/internal/office"
)

// StepError reports which step aborted a run and why.
type StepError struct {
	Index       int
	Description string
	Err         error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Description, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Executor runs workflow specs against the window registry and router.
// Steps execute strictly in order; the first failure aborts the remainder
// with no rollback of completed steps.
type Executor struct {
	registry *office.Registry
	router   *office.Router
	events   *bus.Bus
	logger   *slog.Logger

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

// NewExecutor creates an executor over the given registry and router.
func NewExecutor(registry *office.Registry, router *office.Router, events *bus.Bus, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: registry,
		router:   router,
		events:   events,
		logger:   logger,
		sleep:    time.Sleep,
	}
}

// Run executes every step of the given Spec in order and returns a fresh
// run identifier on full success.
// Windows opened by earlier steps stay open when a later step fails.
func (e *Executor) Run(ctx context.Context, spec Spec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", fmt.Errorf("invalid workflow: %w", err)
	}

	runID := uuid.NewString()
	e.logger.Info("workflow run started", "run_id", runID, "workflow", spec.Name, "steps", len(spec.Steps))
	e.publish(bus.TopicWorkflowStarted, bus.WorkflowEvent{RunID: runID, Name: spec.Name})

	for i, step := range spec.Steps {
		if err := e.execute(ctx, step.Action); err != nil {
			stepErr := &StepError{Index: i, Description: step.Description, Err: err}
			e.logger.Warn("workflow run aborted",
				"run_id", runID, "workflow", spec.Name, "step", i, "error", err)
			e.publish(bus.TopicWorkflowFailed, bus.WorkflowEvent{
				RunID: runID, Name: spec.Name, Step: i, Error: err.Error(),
			})
			return "", stepErr
		}
	}

	e.logger.Info("workflow run completed", "run_id", runID, "workflow", spec.Name)
	e.publish(bus.TopicWorkflowCompleted, bus.WorkflowEvent{RunID: runID, Name: spec.Name})
	return runID, nil
}

func (e *Executor) execute(ctx context.Context, action Action) error {
	switch action.Type {
	case ActionOpenRole:
		// Consent is implicitly granted by the workflow author.
		_, err := e.registry.Create(action.Role, true, 0)
		return err
	case ActionSendMessage:
		return e.router.SendToRole(action.Role, action.Payload)
	case ActionWait:
		// Waits run to completion; only this run is suspended.
		e.sleep(action.WaitDuration())
		return nil
	case ActionCloseWindow:
		return e.registry.Close(action.WindowID)
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

func (e *Executor) publish(topic string, event bus.WorkflowEvent) {
	if e.events != nil {
		e.events.Publish(topic, event)
	}
}
