// Package messaging publishes domain events (registrations, bookings,
// cancellations, payments) to a RabbitMQ topic exchange. Delivery is best
// effort: a failed publish is logged and never fails the operation that
// raised the event.
package messaging

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Publisher defines the contract for event publishing.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event interface{}) error
	Close() error
}

var (
	_ Publisher = (*RabbitPublisher)(nil)
	_ Publisher = NopPublisher{}
	_ Publisher = (*RecordingPublisher)(nil)
	_ Publisher = Fanout{}
)

// PublishAndLog publishes event and logs a warning when that fails. A nil
// publisher is ignored.
func PublishAndLog(ctx context.Context, p Publisher, logger zerolog.Logger, routingKey string, event interface{}) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, routingKey, event); err != nil {
		logger.Warn().Err(err).Str("routing_key", routingKey).Msg("event not published")
	}
}

// Fanout publishes every event to each of its publishers in order. A failing
// publisher does not stop delivery to the rest; their errors are joined.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, routingKey string, event interface{}) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, routingKey, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, p := range f {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }
func (NopPublisher) Close() error                                       { return nil }

// PublishedEvent is one call captured by RecordingPublisher.
type PublishedEvent struct {
	RoutingKey string
	Event      interface{}
}

// RecordingPublisher keeps published events in memory. It backs tests and
// the development server.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []PublishedEvent
	Err    error
}

func (r *RecordingPublisher) Publish(_ context.Context, routingKey string, event interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, PublishedEvent{RoutingKey: routingKey, Event: event})
	return nil
}

func (r *RecordingPublisher) Close() error { return nil }

// Events returns a copy of the recorded events.
func (r *RecordingPublisher) Events() []PublishedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PublishedEvent, len(r.events))
	copy(out, r.events)
	return out
}

// RoutingKeys returns the routing keys of recorded events in order.
func (r *RecordingPublisher) RoutingKeys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, len(r.events))
	for i, e := range r.events {
		keys[i] = e.RoutingKey
	}
	return keys
}
