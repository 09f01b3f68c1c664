// Package consumer turns bus deliveries into calls on typed event handlers.
//
// A Runner parses the envelope, skips events its inbox has already recorded,
// serializes work per aggregate key, isolates handler panics and decides
// whether a failure is poison (logged and acknowledged) or transient
// (returned so the transport redelivers).
package consumer

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/clinical-intake/internal/bus"
	"github.com/tbourn/clinical-intake/internal/domain"
	"github.com/tbourn/clinical-intake/internal/events"
	"github.com/tbourn/clinical-intake/internal/keylock"
	"github.com/tbourn/clinical-intake/internal/observability"
)

// Outcome labels recorded on observability.EventsConsumed.
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomePoison    = "poison"
	OutcomePanic     = "panic"
	OutcomeRetry     = "retry"
)

// HandlerFunc applies one event.
type HandlerFunc func(ctx context.Context, env events.Envelope) error

// Inbox remembers which events a consumer has applied.
type Inbox interface {
	IsProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, consumer, eventID, eventType string) error
}

// ErrPoison marks a handler error as permanent. Wrap it when a failure can
// never succeed on redelivery.
var ErrPoison = errors.New("poison event")

// errPanic wraps a recovered handler panic.
var errPanic = errors.New("handler panic")

// IsPoison reports whether err should be dropped instead of retried.
func IsPoison(err error) bool {
	return errors.Is(err, ErrPoison) ||
		errors.Is(err, events.ErrMalformed) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, errPanic)
}

// Runner dispatches deliveries to handlers registered by event type.
type Runner struct {
	name     string
	handlers map[string]HandlerFunc
	inbox    Inbox
	locks    keylock.KeyedMutex
	log      zerolog.Logger
	tracer   trace.Tracer
}

// NewRunner builds a runner named after its consumer (e.g. "triage"). inbox
// may be nil, in which case aggregate-level uniqueness is the only guard
// against redelivery.
func NewRunner(name string, inbox Inbox, log zerolog.Logger) *Runner {
	return &Runner{
		name:     name,
		handlers: map[string]HandlerFunc{},
		inbox:    inbox,
		log:      log.With().Str("consumer", name).Logger(),
		tracer:   otel.Tracer("consumer/" + name),
	}
}

// Handle registers h for eventType and returns r for chaining.
func (r *Runner) Handle(eventType string, h HandlerFunc) *Runner {
	r.handlers[eventType] = h
	return r
}

// Run feeds every delivery of sub through r until ctx is done.
func (r *Runner) Run(ctx context.Context, sub bus.Subscriber) error {
	r.log.Info().Msg("consumer started")
	err := sub.Run(ctx, r.Deliver)
	r.log.Info().Err(err).Msg("consumer stopped")
	return err
}

// Deliver is a bus.Handler. It returns an error only for transient failures.
func (r *Runner) Deliver(ctx context.Context, d bus.Delivery) error {
	start := time.Now()

	env, err := events.Parse(d.Value)
	if err != nil {
		observability.EventsConsumed.WithLabelValues(r.name, "unknown", OutcomePoison).Inc()
		r.log.Warn().
			Err(err).
			Str("topic", d.Topic).
			Str("key", d.Key).
			Int("attempt", d.Attempt).
			Msg("dropping unparseable event")
		return nil
	}

	h, ok := r.handlers[env.EventType]
	if !ok {
		observability.EventsConsumed.WithLabelValues(r.name, env.EventType, OutcomeIgnored).Inc()
		r.log.Debug().Str("event_id", env.EventID).Str("event_type", env.EventType).Msg("no handler; skipping")
		return nil
	}
	defer func() {
		observability.EventHandleSeconds.WithLabelValues(r.name, env.EventType).Observe(time.Since(start).Seconds())
	}()

	ctx = bus.ExtractTrace(ctx, d.Headers)
	ctx, span := r.tracer.Start(ctx, "consume "+env.EventType,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", d.Topic),
			attribute.String("messaging.message.id", env.EventID),
			attribute.Int("messaging.delivery.attempt", d.Attempt),
		),
	)
	defer span.End()

	key := d.Key
	if key == "" {
		key = env.EventID
	}
	log := r.log.With().
		Str("event_id", env.EventID).
		Str("event_type", env.EventType).
		Str("key", key).
		Int("attempt", d.Attempt).
		Logger()
	ctx = log.WithContext(ctx)

	unlock := r.locks.Lock(key)
	defer unlock()

	if r.inbox != nil {
		seen, err := r.inbox.IsProcessed(ctx, r.name, env.EventID)
		if err != nil {
			observability.EventsConsumed.WithLabelValues(r.name, env.EventType, OutcomeRetry).Inc()
			span.RecordError(err)
			log.Warn().Err(err).Msg("inbox lookup failed")
			return err
		}
		if seen {
			observability.EventsConsumed.WithLabelValues(r.name, env.EventType, OutcomeDuplicate).Inc()
			log.Debug().Msg("already processed")
			return nil
		}
	}

	err = r.invoke(ctx, h, env)
	switch {
	case err == nil:
		observability.EventsConsumed.WithLabelValues(r.name, env.EventType, OutcomeProcessed).Inc()
		r.markProcessed(ctx, log, env)
		log.Debug().Dur("took", time.Since(start)).Msg("processed")
		return nil

	case IsPoison(err):
		outcome := OutcomePoison
		if errors.Is(err, errPanic) {
			outcome = OutcomePanic
		}
		observability.EventsConsumed.WithLabelValues(r.name, env.EventType, outcome).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		log.Error().Err(err).Str("outcome", outcome).Msg("dropping event")
		r.markProcessed(ctx, log, env)
		return nil

	default:
		observability.EventsConsumed.WithLabelValues(r.name, env.EventType, OutcomeRetry).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, OutcomeRetry)
		log.Warn().Err(err).Msg("handler failed; will be redelivered")
		return err
	}
}

func (r *Runner) invoke(ctx context.Context, h HandlerFunc, env events.Envelope) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v\n%s", errPanic, rec, debug.Stack())
		}
	}()
	return h(ctx, env)
}

// markProcessed failures are logged only; redelivery is absorbed by the
// aggregate uniqueness constraints.
func (r *Runner) markProcessed(ctx context.Context, log zerolog.Logger, env events.Envelope) {
	if r.inbox == nil {
		return
	}
	if err := r.inbox.MarkProcessed(ctx, r.name, env.EventID, env.EventType); err != nil {
		log.Warn().Err(err).Msg("inbox record failed")
	}
}
