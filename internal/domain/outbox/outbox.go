// Package outbox defines the ports through which committed order events
// reach their in-process consumers. Publishing is decoupled from the
// commit: a lost event never rolls an order back.
package outbox

import "context"

// Event is a named fact about something that already happened.
type Event interface {
	EventName() string
}

// Handler consumes one delivered event. Delivery is at-most-once; handler
// errors are logged by the bus and never retried.
type Handler func(ctx context.Context, e Event) error

// Publisher hands an event to the bus for asynchronous fan-out.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber binds a handler to every future event carrying the given name.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}
