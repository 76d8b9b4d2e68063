package office

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/lantern/officedesk/internal/bus"
)

// Event names used for routed deliveries, matching what window content
// listens for.
const (
	EventOfficeMessage   = "office_message"
	EventSystemBroadcast = "system_broadcast"
)

// Router delivers opaque payloads to live windows: directed by role or
// broadcast to all. It holds no state of its own; recipients come from a
// registry snapshot taken at send time.
type Router struct {
	registry *Registry
	toolkit  Toolkit
	events   *bus.Bus
	logger   *slog.Logger
}

// NewRouter creates a router over the given registry and toolkit.
func NewRouter(registry *Registry, toolkit Toolkit, events *bus.Bus, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: registry,
		toolkit:  toolkit,
		events:   events,
		logger:   logger,
	}
}

// SendToRole delivers the payload to every live window bound to the role.
// Zero recipients is success. A single recipient's failure does not abort
// delivery to the rest; failures are aggregated into the returned error.
func (r *Router) SendToRole(role Role, payload any) error {
	if !role.Valid() {
		return fmt.Errorf("unknown office role %q", role)
	}
	return r.deliver(string(role), r.registry.IDsForRole(role), EventOfficeMessage, payload)
}

// Broadcast delivers the payload to every live window regardless of role.
func (r *Router) Broadcast(payload any) error {
	return r.deliver("*", r.registry.IDs(), EventSystemBroadcast, payload)
}

func (r *Router) deliver(target string, ids []string, event string, payload any) error {
	var (
		errs      []error
		delivered int
	)
	for _, id := range ids {
		if err := r.toolkit.Emit(id, event, payload); err != nil {
			// A window closed between the snapshot and the emit is not a
			// delivery failure; the recipient set simply shrank.
			if !r.registry.Has(id) {
				continue
			}
			errs = append(errs, fmt.Errorf("window %s: %w", id, err))
			continue
		}
		delivered++
	}

	if r.events != nil {
		r.events.Publish(bus.TopicMessageDelivered, bus.MessageEvent{
			Role:      target,
			Delivered: delivered,
			Failed:    len(errs),
		})
	}
	if len(errs) > 0 {
		r.logger.Warn("partial delivery failure",
			"target", target, "delivered", delivered, "failed", len(errs))
		return fmt.Errorf("deliver to %s: %w", target, errors.Join(errs...))
	}
	return nil
}
