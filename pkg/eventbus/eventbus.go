// Package eventbus provides in-process event fan-out to registered
// observers.
package eventbus

import (
	"context"

	"github.com/palaceofquests/pinet/pkg/domain/events"
)

// HandlerFunc handles a single published event.
type HandlerFunc func(ctx context.Context, event events.Event)

// Bus defines the contract for publishing and subscribing to events.
type Bus interface {
	Register(eventType string, handler HandlerFunc)
	Emit(ctx context.Context, event events.Event)
}
