// Package workflow interprets declarative multi-office scripts: ordered
// open/message/wait/close steps executed strictly in sequence with
// abort-on-first-failure semantics.
package workflow

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lantern/officedesk/internal/office"
)

// ActionType discriminates the closed set of workflow actions.
type ActionType string

const (
	ActionOpenRole    ActionType = "open_role"
	ActionSendMessage ActionType = "send_message"
	ActionWait        ActionType = "wait"
	ActionCloseWindow ActionType = "close_window"
)

// Action is one workflow operation. Which fields apply depends on Type.
type Action struct {
	Type ActionType `yaml:"type" json:"type"`

	// Role targets open_role and send_message.
	Role office.Role `yaml:"role,omitempty" json:"role,omitempty"`
	// Payload is the opaque message body for send_message.
	Payload any `yaml:"payload,omitempty" json:"payload,omitempty"`
	// WaitSeconds is the pause length for wait.
	WaitSeconds float64 `yaml:"wait_seconds,omitempty" json:"wait_seconds,omitempty"`
	// WindowID targets close_window.
	WindowID string `yaml:"window_id,omitempty" json:"window_id,omitempty"`
}

// WaitDuration returns the wait action's pause as a duration.
func (a Action) WaitDuration() time.Duration {
	return time.Duration(a.WaitSeconds * float64(time.Second))
}

// Step pairs an action with a human-readable description.
type Step struct {
	Description string `yaml:"description" json:"description"`
	Action      Action `yaml:"action" json:"action"`
}

// Spec is a named, ordered workflow script. Specs are transient inputs;
// only the run identifier outlives execution.
type Spec struct {
	Name  string `yaml:"name" json:"name"`
	Steps []Step `yaml:"steps" json:"steps"`
}

// Load parses a YAML workflow document and validates it.
func Load(data []byte) (Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return Spec{}, fmt.Errorf("parse workflow: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

// Validate checks structural soundness before execution.
func (s Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("workflow has empty name")
	}
	for i, step := range s.Steps {
		if err := step.Action.validate(); err != nil {
			return fmt.Errorf("workflow %s step %d: %w", s.Name, i, err)
		}
	}
	return nil
}

func (a Action) validate() error {
	switch a.Type {
	case ActionOpenRole:
		if !a.Role.Valid() {
			return fmt.Errorf("open_role: unknown role %q", a.Role)
		}
	case ActionSendMessage:
		if !a.Role.Valid() {
			return fmt.Errorf("send_message: unknown role %q", a.Role)
		}
	case ActionWait:
		if a.WaitSeconds < 0 {
			return fmt.Errorf("wait: negative duration %v", a.WaitSeconds)
		}
	case ActionCloseWindow:
		if a.WindowID == "" {
			return fmt.Errorf("close_window: empty window id")
		}
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	return nil
}
