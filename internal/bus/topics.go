package bus

// Window lifecycle event topics.
const (
	TopicWindowCreated        = "window.created"
	TopicWindowClosed         = "window.closed"
	TopicWindowConsentChanged = "window.consent_changed"
)

// Message routing event topics.
const (
	TopicMessageDelivered = "message.delivered"
)

// Diagnostics event topics.
const (
	TopicDiagnosticsCompleted = "diagnostics.completed"
)

// Workflow event topics.
const (
	TopicWorkflowStarted   = "workflow.started"
	TopicWorkflowCompleted = "workflow.completed"
	TopicWorkflowFailed    = "workflow.failed"
)

// WindowEvent is published when a window is created, closed, or its
// consent flag changes.
type WindowEvent struct {
	WindowID string // Window ID
	Role     string // Bound role name
	Consent  bool   // Consent flag at time of event
}

// MessageEvent is published after a routed delivery attempt.
type MessageEvent struct {
	Role      string // Target role name; "*" for broadcasts
	Delivered int    // Number of windows that received the payload
	Failed    int    // Number of emit failures
}

// DiagnosticsEvent is published after each diagnostics run.
type DiagnosticsEvent struct {
	Status string // Overall report status: OK, WARNING, ERROR
	Passed bool   // Whether the gate is now open
}

// WorkflowEvent is published when a workflow run starts, completes, or fails.
type WorkflowEvent struct {
	RunID string // Run ID; empty for failed runs that never got one
	Name  string // Workflow name
	Step  int    // Failing step index (failed topic only)
	Error string // Failure description (failed topic only)
}
