package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lantern/officedesk/internal/bus"
	"github.com/lantern/officedesk/internal/office"
)

type emitCall struct {
	ID    string
	Event string
}

type fakeToolkit struct {
	mu      sync.Mutex
	emits   []emitCall
	emitErr func(event string) error
}

func (f *fakeToolkit) CreateWindow(id string, opts office.WindowOptions) error { return nil }
func (f *fakeToolkit) CloseWindow(id string) error                             { return nil }

func (f *fakeToolkit) Emit(id, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emitErr != nil {
		if err := f.emitErr(event); err != nil {
			return err
		}
	}
	f.emits = append(f.emits, emitCall{ID: id, Event: event})
	return nil
}

func (f *fakeToolkit) Listen(id, event string, fn func(payload json.RawMessage)) {}

func (f *fakeToolkit) messageCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.emits {
		if e.ID == id && e.Event == office.EventOfficeMessage {
			n++
		}
	}
	return n
}

func newHarness(tk *fakeToolkit) (*office.Registry, *Executor) {
	reg := office.NewRegistry(office.RegistryConfig{
		Toolkit:      tk,
		ShellBaseURL: "http://localhost:1420",
	})
	router := office.NewRouter(reg, tk, nil, nil)
	return reg, NewExecutor(reg, router, nil, nil)
}

func TestExecutor_OpenSendClose(t *testing.T) {
	tk := &fakeToolkit{}
	reg, exec := newHarness(tk)

	runID, err := exec.Run(context.Background(), Spec{
		Name: "summon-analyst",
		Steps: []Step{
			{Description: "open analyst office", Action: Action{Type: ActionOpenRole, Role: office.RoleDataAnalyst}},
			{Description: "brief the analyst", Action: Action{Type: ActionSendMessage, Role: office.RoleDataAnalyst, Payload: "brief"}},
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if runID == "" {
		t.Fatal("empty run id on success")
	}

	wins := reg.List()
	if len(wins) != 1 {
		t.Fatalf("registry has %d windows, want 1", len(wins))
	}
	id := wins[0].ID
	// Workflow-opened windows get consent and the default TTL.
	if !wins[0].MemoryConsent {
		t.Fatal("workflow-opened window lacks consent")
	}
	if wins[0].SharedMemoryTTL != office.DefaultSharedMemoryTTL {
		t.Fatalf("ttl = %d, want default", wins[0].SharedMemoryTTL)
	}
	if n := tk.messageCount(id); n != 1 {
		t.Fatalf("window observed %d messages, want exactly 1", n)
	}

	// A follow-up close run leaves the registry empty.
	if _, err := exec.Run(context.Background(), Spec{
		Name: "dismiss-analyst",
		Steps: []Step{
			{Description: "close analyst office", Action: Action{Type: ActionCloseWindow, WindowID: id}},
		},
	}); err != nil {
		t.Fatalf("close run: %v", err)
	}
	if n := len(reg.List()); n != 0 {
		t.Fatalf("registry has %d windows after close run, want 0", n)
	}
}

func TestExecutor_AbortsOnFailureWithoutRollback(t *testing.T) {
	deliveryErr := errors.New("shell unreachable")
	tk := &fakeToolkit{emitErr: func(event string) error {
		if event == office.EventOfficeMessage {
			return deliveryErr
		}
		return nil
	}}
	reg, exec := newHarness(tk)

	runID, err := exec.Run(context.Background(), Spec{
		Name: "doomed",
		Steps: []Step{
			{Description: "open office", Action: Action{Type: ActionOpenRole, Role: office.RoleTrading}},
			{Description: "send briefing", Action: Action{Type: ActionSendMessage, Role: office.RoleTrading, Payload: "m"}},
			{Description: "never reached", Action: Action{Type: ActionCloseWindow, WindowID: "office_whatever"}},
		},
	})
	if err == nil {
		t.Fatal("run succeeded despite failing delivery")
	}
	if runID != "" {
		t.Fatalf("run id = %q, want empty on failure", runID)
	}

	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("error %T is not a StepError", err)
	}
	if stepErr.Index != 1 {
		t.Fatalf("failing step index = %d, want 1", stepErr.Index)
	}
	if !errors.Is(err, deliveryErr) {
		t.Fatalf("error %v does not wrap the delivery failure", err)
	}

	// No rollback: the window from step 0 stays open.
	if n := len(reg.List()); n != 1 {
		t.Fatalf("registry has %d windows, want the step-0 window still open", n)
	}
}

func TestExecutor_WaitSuspendsOnlyTheRun(t *testing.T) {
	tk := &fakeToolkit{}
	_, exec := newHarness(tk)

	var slept []time.Duration
	exec.sleep = func(d time.Duration) { slept = append(slept, d) }

	if _, err := exec.Run(context.Background(), Spec{
		Name: "pause",
		Steps: []Step{
			{Description: "settle", Action: Action{Type: ActionWait, WaitSeconds: 2.5}},
		},
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(slept) != 1 || slept[0] != 2500*time.Millisecond {
		t.Fatalf("slept %v, want [2.5s]", slept)
	}
}

func TestExecutor_RunIDsDistinct(t *testing.T) {
	tk := &fakeToolkit{}
	_, exec := newHarness(tk)

	spec := Spec{Name: "noop", Steps: nil}
	a, err := exec.Run(context.Background(), spec)
	if err != nil {
		t.Fatal(err)
	}
	b, err := exec.Run(context.Background(), spec)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatalf("two runs produced the same id %q", a)
	}
}

func TestExecutor_InvalidSpecRejected(t *testing.T) {
	tk := &fakeToolkit{}
	reg, exec := newHarness(tk)

	if _, err := exec.Run(context.Background(), Spec{
		Name: "bad",
		Steps: []Step{
			{Description: "open nothing", Action: Action{Type: ActionOpenRole, Role: "phantom"}},
		},
	}); err == nil {
		t.Fatal("invalid spec accepted")
	}
	if len(reg.List()) != 0 {
		t.Fatal("invalid spec execution left registry state")
	}
}

func TestExecutor_PublishesRunEvents(t *testing.T) {
	events := bus.New()
	sub := events.Subscribe("workflow.")
	defer events.Unsubscribe(sub)

	tk := &fakeToolkit{}
	reg := office.NewRegistry(office.RegistryConfig{Toolkit: tk, ShellBaseURL: "http://localhost:1420"})
	router := office.NewRouter(reg, tk, nil, nil)
	exec := NewExecutor(reg, router, events, nil)

	if _, err := exec.Run(context.Background(), Spec{Name: "observed"}); err != nil {
		t.Fatal(err)
	}

	want := []string{bus.TopicWorkflowStarted, bus.TopicWorkflowCompleted}
	for _, topic := range want {
		select {
		case ev := <-sub.Ch():
			if ev.Topic != topic {
				t.Fatalf("topic = %q, want %q", ev.Topic, topic)
			}
			we := ev.Payload.(bus.WorkflowEvent)
			if we.Name != "observed" || we.RunID == "" {
				t.Fatalf("event = %+v, want named event with run id", we)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s", topic)
		}
	}
}

func TestLoad_YAML(t *testing.T) {
	doc := `
name: morning-briefing
steps:
  - description: open the trading office
    action:
      type: open_role
      role: trading
  - description: send market summary
    action:
      type: send_message
      role: trading
      payload:
        kind: briefing
        detail: overnight moves
  - description: let it render
    action:
      type: wait
      wait_seconds: 1.5
`
	spec, err := Load([]byte(doc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if spec.Name != "morning-briefing" {
		t.Errorf("name = %q", spec.Name)
	}
	if len(spec.Steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(spec.Steps))
	}
	if spec.Steps[0].Action.Type != ActionOpenRole || spec.Steps[0].Action.Role != office.RoleTrading {
		t.Errorf("step 0 = %+v", spec.Steps[0].Action)
	}
	if spec.Steps[2].Action.WaitDuration() != 1500*time.Millisecond {
		t.Errorf("wait duration = %v, want 1.5s", spec.Steps[2].Action.WaitDuration())
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing name": `
steps:
  - description: x
    action: {type: wait, wait_seconds: 1}
`,
		"unknown action": `
name: w
steps:
  - description: x
    action: {type: teleport}
`,
		"close without id": `
name: w
steps:
  - description: x
    action: {type: close_window}
`,
		"negative wait": `
name: w
steps:
  - description: x
    action: {type: wait, wait_seconds: -1}
`,
		"not yaml": `{{{{`,
	}
	for name, doc := range cases {
		if _, err := Load([]byte(doc)); err == nil {
			t.Errorf("%s: Load accepted invalid document", name)
		}
	}
}
