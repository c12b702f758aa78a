// Package notify fans orchestrator events (build outcomes, device
// connection changes) out to chat platforms. Delivery is best effort and
// never affects core state.
package notify

import (
	"context"
	"log"
	"time"
)

// Severity classifies an event for display.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Event is one notification.
type Event struct {
	Title    string
	Detail   string
	Severity Severity
}

// Adapter is the interface platform-specific senders implement.
type Adapter interface {
	// Send delivers one event to the platform.
	Send(ctx context.Context, evt Event) error
	// Name identifies the platform for logging.
	Name() string
}

// sendTimeout bounds one delivery attempt.
const sendTimeout = 15 * time.Second

// Notifier fans events out to zero or more adapters.
type Notifier struct {
	adapters []Adapter
}

// NewNotifier creates a Notifier over the given adapters. A nil or empty
// adapter list yields a no-op notifier.
func NewNotifier(adapters ...Adapter) *Notifier {
	return &Notifier{adapters: adapters}
}

// Publish delivers evt to every adapter. Errors are logged, never returned;
// a chat outage must not disturb a build or a connection.
func (n *Notifier) Publish(evt Event) {
	if n == nil {
		return
	}
	for _, a := range n.adapters {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := a.Send(ctx, evt); err != nil {
			log.Printf("notify: %s: %v", a.Name(), err)
		}
		cancel()
	}
}
