package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/palaceofquests/pinet/pkg/domain/events"
)

// MemoryBus is a simple in-memory implementation of the Bus interface.
// Handlers run synchronously on the emitting goroutine; a panicking handler
// is recovered so observers cannot take down the payment flow.
type MemoryBus struct {
	handlers  map[string][]HandlerFunc
	mu        sync.RWMutex
	logger    *slog.Logger
	published []events.Event // retained for testing purposes
}

// NewMemoryBus creates a new in-memory event bus.
func NewMemoryBus(logger *slog.Logger) *MemoryBus {
	return &MemoryBus{
		handlers: make(map[string][]HandlerFunc),
		logger:   logger.With("bus", "memory"),
	}
}

// Register registers a handler for a specific event type.
func (b *MemoryBus) Register(eventType string, handler HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Emit dispatches the event to all registered handlers for its type.
func (b *MemoryBus) Emit(ctx context.Context, event events.Event) {
	eventType := event.EventType()
	b.mu.RLock()
	handlers := append([]HandlerFunc{}, b.handlers[eventType]...)
	b.mu.RUnlock()

	b.mu.Lock()
	b.published = append(b.published, event)
	b.mu.Unlock()

	for _, handler := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("panic recovered in event handler",
						"type", eventType, "panic", r)
				}
			}()
			handler(ctx, event)
		}()
	}
}

// Published returns the events emitted so far. This is useful for testing.
func (b *MemoryBus) Published() []events.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]events.Event(nil), b.published...)
}

// ClearPublished clears the list of published events. This is useful for testing.
func (b *MemoryBus) ClearPublished() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = nil
}

// Ensure MemoryBus implements the Bus interface.
var _ Bus = (*MemoryBus)(nil)
