package bus

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes to any topic through one shared writer. Messages are
// hashed by key so one aggregate always lands on the same partition.
type KafkaPublisher struct {
	w kafkaWriter
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaPublisher connects a writer to brokers.
func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}}
}

// Publish writes msgs synchronously; it returns once the brokers ack.
func (p *KafkaPublisher) Publish(ctx context.Context, msgs ...Message) error {
	out := make([]kafka.Message, 0, len(msgs))
	for _, m := range msgs {
		km := kafka.Message{Topic: m.Topic, Key: []byte(m.Key), Value: m.Value}
		for k, v := range m.Headers {
			km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(v)})
		}
		out = append(out, km)
	}
	return p.w.WriteMessages(ctx, out...)
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error { return p.w.Close() }

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSubscriber consumes a set of topics as one consumer group. Offsets are
// committed only after the handler succeeds; a failing message is retried
// in place with capped backoff, which holds back its partition until it
// passes or the process stops.
type KafkaSubscriber struct {
	r          kafkaReader
	log        zerolog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewKafkaSubscriber joins groupID on topics.
func NewKafkaSubscriber(brokers []string, groupID string, topics []string, maxBackoff time.Duration, log zerolog.Logger) *KafkaSubscriber {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return newKafkaSubscriber(r, maxBackoff, log.With().Str("component", "kafka_subscriber").Str("group", groupID).Logger())
}

const (
	defaultMinBackoff = 100 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
)

func newKafkaSubscriber(r kafkaReader, maxBackoff time.Duration, log zerolog.Logger) *KafkaSubscriber {
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	return &KafkaSubscriber{r: r, log: log, minBackoff: defaultMinBackoff, maxBackoff: maxBackoff}
}

// Run blocks until ctx is cancelled.
func (s *KafkaSubscriber) Run(ctx context.Context, h Handler) error {
	fetchFailures := 0
	for {
		m, err := s.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			fetchFailures++
			s.log.Error().Err(err).Int("failures", fetchFailures).Msg("fetch failed")
			if !sleepCtx(ctx, backoff(fetchFailures, s.minBackoff, s.maxBackoff)) {
				return nil
			}
			continue
		}
		fetchFailures = 0

		d := Delivery{
			Message: Message{Topic: m.Topic, Key: string(m.Key), Value: m.Value, Headers: kafkaHeaders(m.Headers)},
			Attempt: 1,
		}
		for {
			herr := h(ctx, d)
			if herr == nil {
				break
			}
			s.log.Warn().Err(herr).
				Str("topic", m.Topic).
				Int("partition", m.Partition).
				Int64("offset", m.Offset).
				Int("attempt", d.Attempt).
				Msg("handler failed; redelivering")
			if !sleepCtx(ctx, backoff(d.Attempt, s.minBackoff, s.maxBackoff)) {
				return nil
			}
			d.Attempt++
		}
		if err := s.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			// redelivered after the next rebalance
			s.log.Error().Err(err).Int64("offset", m.Offset).Msg("commit failed")
		}
	}
}

// Close leaves the consumer group.
func (s *KafkaSubscriber) Close() error { return s.r.Close() }

func kafkaHeaders(hs []kafka.Header) map[string]string {
	out := make(map[string]string, len(hs))
	for _, h := range hs {
		out[h.Key] = string(h.Value)
	}
	return out
}

func backoff(attempt int, min, max time.Duration) time.Duration {
	d := min
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
