package bus

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/clinical-intake/internal/events"
	"github.com/tbourn/clinical-intake/internal/observability"
)

// Header names set on every event message.
const (
	HeaderEventID   = "event-id"
	HeaderEventType = "event-type"
)

// EventPublisher wraps payloads in envelopes and writes them to one topic,
// keyed by the payload's aggregate identity.
type EventPublisher struct {
	pub   Publisher
	topic string
	log   zerolog.Logger
	now   func() time.Time
}

// NewEventPublisher binds pub to topic.
func NewEventPublisher(pub Publisher, topic string, log zerolog.Logger) *EventPublisher {
	return &EventPublisher{
		pub:   pub,
		topic: topic,
		log:   log.With().Str("component", "event_publisher").Str("topic", topic).Logger(),
		now:   time.Now,
	}
}

// Publish serializes p and writes it. The envelope is returned even when the
// write fails so callers can log its id.
func (p *EventPublisher) Publish(ctx context.Context, payload events.Payload) (events.Envelope, error) {
	env, err := events.New(payload, p.now())
	if err != nil {
		return env, err
	}
	body, err := env.Marshal()
	if err != nil {
		return env, err
	}
	headers := map[string]string{
		HeaderEventID:   env.EventID,
		HeaderEventType: env.EventType,
	}
	InjectTrace(ctx, headers)

	err = p.pub.Publish(ctx, Message{Topic: p.topic, Key: payload.Key(), Value: body, Headers: headers})
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.EventsPublished.WithLabelValues(p.topic, env.EventType, outcome).Inc()
	p.log.Debug().
		Str("event_id", env.EventID).
		Str("event_type", env.EventType).
		Str("key", payload.Key()).
		Err(err).
		Msg("publish")
	return env, err
}
