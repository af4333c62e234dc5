// Package outbox holds the ports order events travel through after a unit
// of work commits.
package outbox

import "context"

type Event interface {
	EventName() string
}

type Handler func(ctx context.Context, e Event) error

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, e Event) error

func (f PublisherFunc) Publish(ctx context.Context, e Event) error { return f(ctx, e) }

// Subscriber registers handlers by event name. Handlers for one event run
// concurrently; events are dispatched in publish order.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}
