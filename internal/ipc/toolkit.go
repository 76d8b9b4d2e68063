package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lantern/officedesk/internal/office"
)

// Sender pushes a JSON-RPC notification to the connected shell.
type Sender interface {
	Notify(ctx context.Context, method string, params any) error
}

// ShellToolkit drives office windows in the desktop shell over the IPC
// connection. Window directives become JSON-RPC notifications; events
// coming back from the shell are dispatched to registered listeners.
type ShellToolkit struct {
	mu        sync.RWMutex
	sender    Sender
	listeners map[string]map[string][]func(json.RawMessage)
	logger    *slog.Logger
}

// NewShellToolkit creates a toolkit with no shell bound yet.
func NewShellToolkit(logger *slog.Logger) *ShellToolkit {
	if logger == nil {
		logger = slog.Default()
	}
	return &ShellToolkit{
		listeners: make(map[string]map[string][]func(json.RawMessage)),
		logger:    logger,
	}
}

// Bind attaches the sender used to reach the shell. Called by the IPC
// server once it is constructed; safe to call again on reconnect.
func (t *ShellToolkit) Bind(s Sender) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sender = s
}

func (t *ShellToolkit) send(method string, params any) error {
	t.mu.RLock()
	s := t.sender
	t.mu.RUnlock()
	if s == nil {
		return fmt.Errorf("%s: shell not connected", method)
	}
	return s.Notify(context.Background(), method, params)
}

func (t *ShellToolkit) CreateWindow(id string, opts office.WindowOptions) error {
	return t.send("window.create", map[string]any{
		"window_id": id,
		"title":     opts.Title,
		"url":       opts.URL,
		"width":     opts.Width,
		"height":    opts.Height,
		"resizable": opts.Resizable,
		"centered":  opts.Centered,
	})
}

func (t *ShellToolkit) CloseWindow(id string) error {
	return t.send("window.close", map[string]any{"window_id": id})
}

func (t *ShellToolkit) Emit(id, event string, payload any) error {
	return t.send("window.emit", map[string]any{
		"window_id": id,
		"event":     event,
		"payload":   payload,
	})
}

// Listen registers a callback for events the shell reports for a window.
func (t *ShellToolkit) Listen(id, event string, fn func(payload json.RawMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	byEvent, ok := t.listeners[id]
	if !ok {
		byEvent = make(map[string][]func(json.RawMessage))
		t.listeners[id] = byEvent
	}
	byEvent[event] = append(byEvent[event], fn)
}

// Dispatch routes a shell-originated window event to its listeners.
// Unknown window/event pairs are logged and dropped.
func (t *ShellToolkit) Dispatch(id, event string, payload json.RawMessage) {
	t.mu.RLock()
	fns := append([]func(json.RawMessage){}, t.listeners[id][event]...)
	t.mu.RUnlock()

	if len(fns) == 0 {
		t.logger.Debug("shell event with no listeners", "window_id", id, "event", event)
		return
	}
	for _, fn := range fns {
		fn(payload)
	}
}

// Forget drops all listeners for a window. Called after close.
func (t *ShellToolkit) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.listeners, id)
}
