package office

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/lantern/officedesk/internal/bus"
)

// ErrWindowNotFound is returned for operations on ids absent from the registry.
var ErrWindowNotFound = errors.New("window not found")

// DefaultSharedMemoryTTL is the consent TTL applied when the caller gives none.
const DefaultSharedMemoryTTL uint64 = 3600

// Position is a window's last-known screen position.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// WindowInstance is one live office window. Instances are owned exclusively
// by the Registry; callers receive snapshots and hold only ids.
type WindowInstance struct {
	ID              string    `json:"id"`
	Role            Role      `json:"role"`
	Title           string    `json:"title"`
	Position        *Position `json:"position,omitempty"`
	Width           int       `json:"width"`
	Height          int       `json:"height"`
	MemoryConsent   bool      `json:"memory_consent"`
	SharedMemoryTTL uint64    `json:"shared_memory_ttl"`
}

// Registry is the authoritative id→window mapping and the single owner of
// window lifecycle. Structural and per-id mutations are serialised under one
// lock; snapshot reads share the read side.
type Registry struct {
	mu      sync.RWMutex
	windows map[string]*WindowInstance

	toolkit      Toolkit
	events       *bus.Bus
	logger       *slog.Logger
	shellBaseURL string
	defaultTTL   uint64
}

// RegistryConfig carries the registry's dependencies.
type RegistryConfig struct {
	Toolkit      Toolkit
	Events       *bus.Bus
	Logger       *slog.Logger
	ShellBaseURL string
	// DefaultTTLSeconds overrides DefaultSharedMemoryTTL when non-zero.
	DefaultTTLSeconds uint64
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.DefaultTTLSeconds
	if ttl == 0 {
		ttl = DefaultSharedMemoryTTL
	}
	return &Registry{
		windows:      make(map[string]*WindowInstance),
		toolkit:      cfg.Toolkit,
		events:       cfg.Events,
		logger:       logger,
		shellBaseURL: cfg.ShellBaseURL,
		defaultTTL:   ttl,
	}
}

// DefaultTTL returns the TTL applied to windows created without one.
func (r *Registry) DefaultTTL() uint64 {
	return r.defaultTTL
}

// Create materialises a window for the role and registers it. The toolkit is
// asked first; the record is inserted only on toolkit success, so a failed
// create leaves no partial state. ttlSeconds of zero applies the default.
func (r *Registry) Create(role Role, memoryConsent bool, ttlSeconds uint64) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("unknown office role %q", role)
	}

	id := fmt.Sprintf("office_%s", uuid.NewString())
	title := fmt.Sprintf("Officedesk — %s", role.DisplayName())
	width, height := role.DefaultSize()
	if ttlSeconds == 0 {
		ttlSeconds = r.defaultTTL
	}

	opts := WindowOptions{
		Title:     title,
		URL:       role.ContentURL(r.shellBaseURL),
		Width:     width,
		Height:    height,
		Resizable: true,
		Centered:  true,
	}
	if err := r.toolkit.CreateWindow(id, opts); err != nil {
		return "", fmt.Errorf("create window: %w", err)
	}

	win := &WindowInstance{
		ID:              id,
		Role:            role,
		Title:           title,
		Width:           width,
		Height:          height,
		MemoryConsent:   memoryConsent,
		SharedMemoryTTL: ttlSeconds,
	}

	r.mu.Lock()
	r.windows[id] = win
	r.mu.Unlock()

	r.logger.Info("office window created", "window_id", id, "role", string(role))
	r.publish(bus.TopicWindowCreated, bus.WindowEvent{WindowID: id, Role: string(role), Consent: memoryConsent})
	return id, nil
}

// Close destroys the window and removes its record. The toolkit destroy runs
// first; if it fails the record is retained and the error surfaced, so the
// registry never forgets a window that may still be on screen.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	win, ok := r.windows[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("close %q: %w", id, ErrWindowNotFound)
	}
	if err := r.toolkit.CloseWindow(id); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("close window: %w", err)
	}
	delete(r.windows, id)
	role := win.Role
	r.mu.Unlock()

	r.logger.Info("office window closed", "window_id", id, "role", string(role))
	r.publish(bus.TopicWindowClosed, bus.WindowEvent{WindowID: id, Role: string(role)})
	return nil
}

// List returns snapshots of every live window.
func (r *Registry) List() []WindowInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]WindowInstance, 0, len(r.windows))
	for _, win := range r.windows {
		out = append(out, snapshot(win))
	}
	return out
}

// Get returns a snapshot of one window.
func (r *Registry) Get(id string) (WindowInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	win, ok := r.windows[id]
	if !ok {
		return WindowInstance{}, fmt.Errorf("get %q: %w", id, ErrWindowNotFound)
	}
	return snapshot(win), nil
}

// Has reports whether the id is currently registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.windows[id]
	return ok
}

// IDsForRole returns the ids of live windows bound to the role.
func (r *Registry) IDsForRole(role Role) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for id, win := range r.windows {
		if win.Role == role {
			out = append(out, id)
		}
	}
	return out
}

// IDs returns every live window id.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.windows))
	for id := range r.windows {
		out = append(out, id)
	}
	return out
}

// SetConsent updates the memory-sharing consent flag and notifies the window.
// A failed notification is reported to the caller but never rolls the stored
// value back.
func (r *Registry) SetConsent(id string, consent bool) error {
	r.mu.Lock()
	win, ok := r.windows[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("set consent %q: %w", id, ErrWindowNotFound)
	}
	win.MemoryConsent = consent
	role := win.Role
	r.mu.Unlock()

	notifyErr := r.toolkit.Emit(id, "memory_consent_updated", consent)
	if notifyErr != nil {
		r.logger.Warn("consent notification failed", "window_id", id, "error", notifyErr)
	}
	r.publish(bus.TopicWindowConsentChanged, bus.WindowEvent{WindowID: id, Role: string(role), Consent: consent})
	if notifyErr != nil {
		return fmt.Errorf("notify consent change for %q: %w", id, notifyErr)
	}
	return nil
}

// SetTTL updates the shared-memory TTL for one window.
func (r *Registry) SetTTL(id string, ttlSeconds uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	win, ok := r.windows[id]
	if !ok {
		return fmt.Errorf("set ttl %q: %w", id, ErrWindowNotFound)
	}
	win.SharedMemoryTTL = ttlSeconds
	return nil
}

// UpdatePosition records a window's last-known screen position.
func (r *Registry) UpdatePosition(id string, x, y int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	win, ok := r.windows[id]
	if !ok {
		return fmt.Errorf("update position %q: %w", id, ErrWindowNotFound)
	}
	win.Position = &Position{X: x, Y: y}
	return nil
}

func (r *Registry) publish(topic string, event bus.WindowEvent) {
	if r.events != nil {
		r.events.Publish(topic, event)
	}
}

func snapshot(win *WindowInstance) WindowInstance {
	cp := *win
	if win.Position != nil {
		pos := *win.Position
		cp.Position = &pos
	}
	return cp
}
