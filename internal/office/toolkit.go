package office

import "encoding/json"

// WindowOptions describes how the host toolkit should materialise a window.
type WindowOptions struct {
	Title     string
	URL       string
	Width     int
	Height    int
	Resizable bool
	Centered  bool
}

// Toolkit is the capability set consumed from the host windowing layer.
// The registry and router depend only on these five primitives; production
// wiring and tests supply their own implementations.
type Toolkit interface {
	// CreateWindow materialises a window for the given id.
	CreateWindow(id string, opts WindowOptions) error
	// CloseWindow destroys the window for the given id.
	CloseWindow(id string) error
	// Emit delivers a named event with a payload to one window.
	Emit(id, event string, payload any) error
	// Listen registers a callback for a named event from one window.
	Listen(id, event string, fn func(payload json.RawMessage))
}
