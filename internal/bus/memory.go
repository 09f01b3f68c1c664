package bus

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// MemoryBus is an in-process transport for tests and single-process
// development. Every subscriber acts as its own consumer group and receives
// a copy of each message on its topics. A failed delivery is retried up to
// MaxAttempts times and then dropped with an error log.
//
// Nothing is retained for late subscribers: a message published while its
// topic has no subscriber is recorded in Published and logged at debug level,
// but never delivered. Subscribe before publishing.
type MemoryBus struct {
	MaxAttempts int

	mu        sync.Mutex
	subs      []*MemorySubscriber
	published []Message
	log       zerolog.Logger
}

// NewMemoryBus returns an empty bus.
func NewMemoryBus(log zerolog.Logger) *MemoryBus {
	return &MemoryBus{MaxAttempts: 5, log: log.With().Str("component", "memory_bus").Logger()}
}

// Publish fans msgs out to matching subscribers. It blocks while a
// subscriber's buffer is full.
func (b *MemoryBus) Publish(ctx context.Context, msgs ...Message) error {
	b.mu.Lock()
	b.published = append(b.published, msgs...)
	subs := append([]*MemorySubscriber(nil), b.subs...)
	b.mu.Unlock()

	for _, m := range msgs {
		delivered := false
		for _, s := range subs {
			if !s.topics[m.Topic] {
				continue
			}
			delivered = true
			select {
			case s.ch <- m:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if !delivered {
			b.log.Debug().Str("topic", m.Topic).Str("key", m.Key).Msg("no subscriber for topic; message not delivered")
		}
	}
	return nil
}

// Published returns every message accepted so far.
func (b *MemoryBus) Published() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.published...)
}

// Close is a no-op.
func (b *MemoryBus) Close() error { return nil }

// Subscribe registers a consumer for topics.
func (b *MemoryBus) Subscribe(topics ...string) *MemorySubscriber {
	s := &MemorySubscriber{bus: b, topics: map[string]bool{}, ch: make(chan Message, 256)}
	for _, t := range topics {
		s.topics[t] = true
	}
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()
	return s
}

// MemorySubscriber receives from a MemoryBus.
type MemorySubscriber struct {
	bus    *MemoryBus
	topics map[string]bool
	ch     chan Message
}

// Run blocks until ctx is cancelled.
func (s *MemorySubscriber) Run(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-s.ch:
			s.deliver(ctx, h, m)
		}
	}
}

func (s *MemorySubscriber) deliver(ctx context.Context, h Handler, m Message) {
	max := s.bus.MaxAttempts
	if max < 1 {
		max = 1
	}
	for attempt := 1; attempt <= max; attempt++ {
		err := h(ctx, Delivery{Message: m, Attempt: attempt})
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.bus.log.Warn().Err(err).Str("topic", m.Topic).Str("key", m.Key).Int("attempt", attempt).Msg("handler failed")
	}
	s.bus.log.Error().Str("topic", m.Topic).Str("key", m.Key).Int("attempts", max).Msg("giving up on message")
}

// Close is a no-op.
func (s *MemorySubscriber) Close() error { return nil }
