package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lantern/officedesk/internal/backend"
	"github.com/lantern/officedesk/internal/bus"
	"github.com/lantern/officedesk/internal/config"
	"github.com/lantern/officedesk/internal/office"
	"github.com/lantern/officedesk/internal/preflight"
	"github.com/lantern/officedesk/internal/workflow"
)

type fakeToolkit struct {
	mu      sync.Mutex
	created []string
	closed  []string
	emits   []string
}

func (f *fakeToolkit) CreateWindow(id string, _ office.WindowOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, id)
	return nil
}

func (f *fakeToolkit) CloseWindow(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
	return nil
}

func (f *fakeToolkit) Emit(id, event string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emits = append(f.emits, id+":"+event)
	return nil
}

func (f *fakeToolkit) Listen(_, _ string, _ func(json.RawMessage)) {}

type fakeSweeper struct {
	runs   atomic.Int64
	report preflight.Report
}

func (f *fakeSweeper) Run(_ context.Context) preflight.Report {
	f.runs.Add(1)
	return f.report
}

func report(status preflight.Status) preflight.Report {
	return preflight.Report{
		Status: status,
		Checks: map[string]preflight.CheckResult{
			preflight.CheckRAM: {Passed: status != preflight.StatusError, Message: "checked", Severity: preflight.SeverityInfo},
		},
		Timestamp: time.Now(),
	}
}

// newTestApp wires an App against a counting fake backend. The returned
// counter tracks every HTTP request the backend receives.
func newTestApp(t *testing.T, sweepStatus preflight.Status) (*App, *fakeToolkit, *atomic.Int64) {
	t.Helper()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	tk := &fakeToolkit{}
	events := bus.New()
	registry := office.NewRegistry(office.RegistryConfig{
		Toolkit:      tk,
		Events:       events,
		ShellBaseURL: "http://localhost:1420",
	})
	router := office.NewRouter(registry, tk, events, nil)
	executor := workflow.NewExecutor(registry, router, events, nil)

	a := New(Config{
		Config:   config.Config{},
		Sweeper:  &fakeSweeper{report: report(sweepStatus)},
		Gate:     preflight.NewGate(),
		Registry: registry,
		Router:   router,
		Executor: executor,
		Backend:  backend.New(srv.URL, time.Second),
		Events:   events,
	})
	return a, tk, &hits
}

func TestGatedCommandsRefusedBeforeDiagnostics(t *testing.T) {
	a, _, hits := newTestApp(t, preflight.StatusOK)
	ctx := context.Background()

	if _, err := a.Evaluate(ctx, backend.EvaluateRequest{Goal: "hi"}); !errors.Is(err, preflight.ErrNotSatisfied) {
		t.Fatalf("Evaluate error = %v, want ErrNotSatisfied", err)
	}
	if _, err := a.BanditStatus(ctx); !errors.Is(err, preflight.ErrNotSatisfied) {
		t.Fatalf("BanditStatus error = %v, want ErrNotSatisfied", err)
	}
	if _, err := a.WorkflowDAG(ctx); !errors.Is(err, preflight.ErrNotSatisfied) {
		t.Fatalf("WorkflowDAG error = %v, want ErrNotSatisfied", err)
	}
	if got := hits.Load(); got != 0 {
		t.Fatalf("backend received %d requests before diagnostics, want 0", got)
	}
}

func TestGatedCommandsPassAfterOKSweep(t *testing.T) {
	a, _, hits := newTestApp(t, preflight.StatusOK)
	ctx := context.Background()

	rep := a.RunDiagnostics(ctx)
	if rep.Status != preflight.StatusOK {
		t.Fatalf("status = %s, want OK", rep.Status)
	}
	if !a.IsPreflightPassed() {
		t.Fatal("expected gate to be open after OK sweep")
	}

	if _, err := a.BanditStatus(ctx); err != nil {
		t.Fatalf("BanditStatus after OK sweep: %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("backend requests = %d, want 1", got)
	}
}

func TestWarningSweepKeepsGateClosed(t *testing.T) {
	a, _, hits := newTestApp(t, preflight.StatusWarning)
	ctx := context.Background()

	a.RunDiagnostics(ctx)
	if a.IsPreflightPassed() {
		t.Fatal("WARNING sweep must keep the gate closed")
	}
	if _, err := a.BanditStatus(ctx); !errors.Is(err, preflight.ErrNotSatisfied) {
		t.Fatalf("BanditStatus error = %v, want ErrNotSatisfied", err)
	}
	if got := hits.Load(); got != 0 {
		t.Fatalf("backend requests = %d, want 0", got)
	}
}

func TestErrorSweepKeepsGateClosed(t *testing.T) {
	a, _, hits := newTestApp(t, preflight.StatusError)
	ctx := context.Background()

	a.RunDiagnostics(ctx)
	if a.IsPreflightPassed() {
		t.Fatal("ERROR sweep must keep the gate closed")
	}
	if _, err := a.TelemetryMetrics(ctx); !errors.Is(err, preflight.ErrNotSatisfied) {
		t.Fatalf("TelemetryMetrics error = %v, want ErrNotSatisfied", err)
	}
	if got := hits.Load(); got != 0 {
		t.Fatalf("backend requests = %d, want 0", got)
	}
}

func TestDiagnosticsEventPublished(t *testing.T) {
	a, _, _ := newTestApp(t, preflight.StatusOK)

	sub := a.events.Subscribe(bus.TopicDiagnosticsCompleted)
	defer a.events.Unsubscribe(sub)

	a.RunDiagnostics(context.Background())

	select {
	case msg := <-sub.Ch():
		ev, ok := msg.Payload.(bus.DiagnosticsEvent)
		if !ok {
			t.Fatalf("payload type %T", msg.Payload)
		}
		if ev.Status != "OK" || !ev.Passed {
			t.Fatalf("event = %+v, want OK/passed", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no diagnostics event published")
	}
}

func TestOfficeLifecycleCommands(t *testing.T) {
	a, tk, _ := newTestApp(t, preflight.StatusOK)
	ctx := context.Background()

	id, err := a.CreateOffice(ctx, office.RoleTrading, false, 0)
	if err != nil {
		t.Fatalf("CreateOffice: %v", err)
	}
	if len(a.ListOffices()) != 1 {
		t.Fatalf("ListOffices = %d windows, want 1", len(a.ListOffices()))
	}

	if err := a.SetOfficeConsent(id, true); err != nil {
		t.Fatalf("SetOfficeConsent: %v", err)
	}
	win, err := a.GetOffice(id)
	if err != nil {
		t.Fatalf("GetOffice: %v", err)
	}
	if !win.MemoryConsent {
		t.Fatal("consent not updated")
	}

	if err := a.SetOfficeTTL(id, 120); err != nil {
		t.Fatalf("SetOfficeTTL: %v", err)
	}
	if err := a.MoveOffice(id, 40, 60); err != nil {
		t.Fatalf("MoveOffice: %v", err)
	}

	if err := a.SendOfficeMessage(ctx, office.RoleTrading, map[string]string{"k": "v"}); err != nil {
		t.Fatalf("SendOfficeMessage: %v", err)
	}
	if err := a.BroadcastMessage(ctx, "ping"); err != nil {
		t.Fatalf("BroadcastMessage: %v", err)
	}

	if err := a.CloseOffice(ctx, id); err != nil {
		t.Fatalf("CloseOffice: %v", err)
	}
	if len(a.ListOffices()) != 0 {
		t.Fatalf("expected empty registry after close")
	}
	if len(tk.closed) != 1 {
		t.Fatalf("toolkit closed %d windows, want 1", len(tk.closed))
	}
}

func TestCloseOfficeUnknownID(t *testing.T) {
	a, _, _ := newTestApp(t, preflight.StatusOK)
	if err := a.CloseOffice(context.Background(), "office_missing"); !errors.Is(err, office.ErrWindowNotFound) {
		t.Fatalf("error = %v, want ErrWindowNotFound", err)
	}
}

func TestRunWorkflow(t *testing.T) {
	a, _, _ := newTestApp(t, preflight.StatusOK)

	spec := workflow.Spec{
		Name: "briefing",
		Steps: []workflow.Step{
			{Description: "open trading", Action: workflow.Action{Type: workflow.ActionOpenRole, Role: office.RoleTrading}},
			{Description: "notify", Action: workflow.Action{Type: workflow.ActionSendMessage, Role: office.RoleTrading, Payload: "hello"}},
		},
	}
	runID, err := a.RunWorkflow(context.Background(), spec)
	if err != nil {
		t.Fatalf("RunWorkflow: %v", err)
	}
	if runID == "" {
		t.Fatal("expected non-empty run ID")
	}
	if len(a.ListOffices()) != 1 {
		t.Fatalf("expected the opened window to remain")
	}
}

func TestRunWorkflowInvalidSpec(t *testing.T) {
	a, _, _ := newTestApp(t, preflight.StatusOK)
	if _, err := a.RunWorkflow(context.Background(), workflow.Spec{}); err == nil {
		t.Fatal("expected validation error for empty spec")
	}
}
