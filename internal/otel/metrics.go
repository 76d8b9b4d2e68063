package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds all Officedesk metrics instruments.
type Metrics struct {
	WindowsActive    metric.Int64UpDownCounter
	WindowsCreated   metric.Int64Counter
	MessagesRouted   metric.Int64Counter
	DeliveryErrors   metric.Int64Counter
	DiagnosticsRuns  metric.Int64Counter
	ProbeDuration    metric.Float64Histogram
	WorkflowSteps    metric.Int64Counter
	WorkflowFailures metric.Int64Counter
	GatedRejects     metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.WindowsActive, err = meter.Int64UpDownCounter("officedesk.windows.active",
		metric.WithDescription("Number of currently open office windows"),
	)
	if err != nil {
		return nil, err
	}

	m.WindowsCreated, err = meter.Int64Counter("officedesk.windows.created",
		metric.WithDescription("Total office windows created"),
	)
	if err != nil {
		return nil, err
	}

	m.MessagesRouted, err = meter.Int64Counter("officedesk.messages.routed",
		metric.WithDescription("Messages delivered to office windows"),
	)
	if err != nil {
		return nil, err
	}

	m.DeliveryErrors, err = meter.Int64Counter("officedesk.messages.errors",
		metric.WithDescription("Message delivery failures"),
	)
	if err != nil {
		return nil, err
	}

	m.DiagnosticsRuns, err = meter.Int64Counter("officedesk.diagnostics.runs",
		metric.WithDescription("Diagnostics sweeps executed"),
	)
	if err != nil {
		return nil, err
	}

	m.ProbeDuration, err = meter.Float64Histogram("officedesk.diagnostics.duration",
		metric.WithDescription("Diagnostics sweep duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.WorkflowSteps, err = meter.Int64Counter("officedesk.workflow.steps",
		metric.WithDescription("Workflow steps executed"),
	)
	if err != nil {
		return nil, err
	}

	m.WorkflowFailures, err = meter.Int64Counter("officedesk.workflow.failures",
		metric.WithDescription("Workflow runs aborted by a step failure"),
	)
	if err != nil {
		return nil, err
	}

	m.GatedRejects, err = meter.Int64Counter("officedesk.gate.rejects",
		metric.WithDescription("Backend calls rejected by the diagnostics gate"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
