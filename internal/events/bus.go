package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
// Handlers run asynchronously, each subscriber on its own queue.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers
// Usage: bus.Publish(StateChanged{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case ReadingUpdated:
		event.Publish(b.dispatcher, e)
	case StateChanged:
		event.Publish(b.dispatcher, e)
	case CycleCompleted:
		event.Publish(b.dispatcher, e)
	case DeviceWriteFailed:
		event.Publish(b.dispatcher, e)
	case DeviceReattached:
		event.Publish(b.dispatcher, e)
	case ChartReloaded:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler's parameter type selects the events it receives.
// Returns an unsubscribe function; unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e StateChanged) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ReadingUpdated):
		return event.Subscribe(b.dispatcher, h)
	case func(StateChanged):
		return event.Subscribe(b.dispatcher, h)
	case func(CycleCompleted):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceWriteFailed):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceReattached):
		return event.Subscribe(b.dispatcher, h)
	case func(ChartReloaded):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
