// Package bus moves serialized event envelopes between pipeline stages.
//
// Delivery is at-least-once: a Handler error leaves the message
// unacknowledged so the transport redelivers it, and a nil return
// acknowledges it. No ordering is promised across keys or event types.
// Kafka, SQS and an in-process transport are provided.
package bus

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Message is one record on the bus.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

// Delivery is a received message plus transport bookkeeping.
type Delivery struct {
	Message
	// Attempt is 1 on first delivery and grows on each redelivery the
	// transport can observe.
	Attempt int
}

// Handler processes one delivery. Returning nil acknowledges it.
type Handler func(ctx context.Context, d Delivery) error

// Publisher writes messages to the bus.
type Publisher interface {
	Publish(ctx context.Context, msgs ...Message) error
	Close() error
}

// Subscriber feeds deliveries to h until ctx is done.
type Subscriber interface {
	Run(ctx context.Context, h Handler) error
	Close() error
}

// InjectTrace writes the span context of ctx into headers.
func InjectTrace(ctx context.Context, headers map[string]string) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))
}

// ExtractTrace returns ctx carrying the remote span context found in headers.
func ExtractTrace(ctx context.Context, headers map[string]string) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
}
