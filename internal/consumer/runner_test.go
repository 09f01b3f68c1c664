package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/tbourn/clinical-intake/internal/bus"
	"github.com/tbourn/clinical-intake/internal/domain"
	"github.com/tbourn/clinical-intake/internal/events"
	"github.com/tbourn/clinical-intake/internal/observability"
)

type memInbox struct {
	mu      sync.Mutex
	seen    map[string]bool
	lookErr error
	markErr error
}

func newMemInbox() *memInbox { return &memInbox{seen: map[string]bool{}} }

func (m *memInbox) IsProcessed(_ context.Context, consumer, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookErr != nil {
		return false, m.lookErr
	}
	return m.seen[consumer+"/"+id], nil
}

func (m *memInbox) MarkProcessed(_ context.Context, consumer, id, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	m.seen[consumer+"/"+id] = true
	return nil
}

func delivery(t *testing.T, p events.Payload) (bus.Delivery, events.Envelope) {
	t.Helper()
	env, err := events.New(p, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	body, _ := env.Marshal()
	return bus.Delivery{Message: bus.Message{Topic: "t", Key: p.Key(), Value: body}, Attempt: 1}, env
}

func consumed(name, typ, outcome string) float64 {
	return testutil.ToFloat64(observability.EventsConsumed.WithLabelValues(name, typ, outcome))
}

func TestDeliver_ProcessesOnce_ThenDuplicate(t *testing.T) {
	name := t.Name()
	inbox := newMemInbox()
	var calls int32
	r := NewRunner(name, inbox, zerolog.Nop()).
		Handle(events.TypeSessionCompleted, func(ctx context.Context, env events.Envelope) error {
			atomic.AddInt32(&calls, 1)
			return nil
		})

	d, _ := delivery(t, events.SessionCompleted{SessionID: 1, OwnerID: 2})
	for i := 0; i < 3; i++ {
		if err := r.Deliver(context.Background(), d); err != nil {
			t.Fatalf("Deliver: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("handler calls = %d, want 1", calls)
	}
	if got := consumed(name, events.TypeSessionCompleted, OutcomeDuplicate); got != 2 {
		t.Fatalf("duplicate count = %v", got)
	}
}

func TestDeliver_PoisonIsAcked(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"malformed", fmt.Errorf("%w: bad urgency", events.ErrMalformed)},
		{"validation", domain.ErrBlankComplaint},
		{"explicit", fmt.Errorf("%w: unknown patient", ErrPoison)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			name := t.Name()
			inbox := newMemInbox()
			r := NewRunner(name, inbox, zerolog.Nop()).
				Handle(events.TypeSessionCompleted, func(context.Context, events.Envelope) error { return tc.err })
			d, env := delivery(t, events.SessionCompleted{SessionID: 1, OwnerID: 2})
			if err := r.Deliver(context.Background(), d); err != nil {
				t.Fatalf("poison must be acked, got %v", err)
			}
			if got := consumed(name, events.TypeSessionCompleted, OutcomePoison); got != 1 {
				t.Fatalf("poison count = %v", got)
			}
			if ok, _ := inbox.IsProcessed(context.Background(), name, env.EventID); !ok {
				t.Fatalf("poison event should be recorded in the inbox")
			}
		})
	}
}

func TestDeliver_TransientIsReturned(t *testing.T) {
	name := t.Name()
	inbox := newMemInbox()
	boom := errors.New("db down")
	r := NewRunner(name, inbox, zerolog.Nop()).
		Handle(events.TypeSessionCompleted, func(context.Context, events.Envelope) error { return boom })
	d, env := delivery(t, events.SessionCompleted{SessionID: 1, OwnerID: 2})

	if err := r.Deliver(context.Background(), d); !errors.Is(err, boom) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if ok, _ := inbox.IsProcessed(context.Background(), name, env.EventID); ok {
		t.Fatalf("failed event must not be recorded")
	}
	if got := consumed(name, events.TypeSessionCompleted, OutcomeRetry); got != 1 {
		t.Fatalf("retry count = %v", got)
	}
}

func TestDeliver_PanicIsRecovered(t *testing.T) {
	name := t.Name()
	r := NewRunner(name, nil, zerolog.Nop()).
		Handle(events.TypeSessionCompleted, func(context.Context, events.Envelope) error { panic("nil map") })
	d, _ := delivery(t, events.SessionCompleted{SessionID: 1, OwnerID: 2})

	if err := r.Deliver(context.Background(), d); err != nil {
		t.Fatalf("panic must be contained, got %v", err)
	}
	if got := consumed(name, events.TypeSessionCompleted, OutcomePanic); got != 1 {
		t.Fatalf("panic count = %v", got)
	}
}

func TestDeliver_UnparseableAndUnknownType(t *testing.T) {
	name := t.Name()
	r := NewRunner(name, nil, zerolog.Nop())

	bad := bus.Delivery{Message: bus.Message{Value: []byte(`{"eventId":`)}, Attempt: 1}
	if err := r.Deliver(context.Background(), bad); err != nil {
		t.Fatalf("unparseable must be acked: %v", err)
	}
	if got := consumed(name, "unknown", OutcomePoison); got != 1 {
		t.Fatalf("poison count = %v", got)
	}

	d, _ := delivery(t, events.CaseCreated{CaseID: 1})
	if err := r.Deliver(context.Background(), d); err != nil {
		t.Fatalf("unknown type must be acked: %v", err)
	}
	if got := consumed(name, events.TypeCaseCreated, OutcomeIgnored); got != 1 {
		t.Fatalf("ignored count = %v", got)
	}
}

func TestDeliver_InboxLookupFailureIsTransient(t *testing.T) {
	inbox := newMemInbox()
	inbox.lookErr = errors.New("locked")
	r := NewRunner(t.Name(), inbox, zerolog.Nop()).
		Handle(events.TypeSessionCompleted, func(context.Context, events.Envelope) error {
			t.Fatal("handler must not run")
			return nil
		})
	d, _ := delivery(t, events.SessionCompleted{SessionID: 1, OwnerID: 2})
	if err := r.Deliver(context.Background(), d); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDeliver_MarkFailureStillAcks(t *testing.T) {
	inbox := newMemInbox()
	inbox.markErr = errors.New("disk full")
	r := NewRunner(t.Name(), inbox, zerolog.Nop()).
		Handle(events.TypeSessionCompleted, func(context.Context, events.Envelope) error { return nil })
	d, _ := delivery(t, events.SessionCompleted{SessionID: 1, OwnerID: 2})
	if err := r.Deliver(context.Background(), d); err != nil {
		t.Fatalf("expected ack, got %v", err)
	}
}

func TestDeliver_SerializesSameKey(t *testing.T) {
	var active, maxActive int32
	r := NewRunner(t.Name(), nil, zerolog.Nop()).
		Handle(events.TypeSessionCompleted, func(context.Context, events.Envelope) error {
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return nil
		})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		d, _ := delivery(t, events.SessionCompleted{SessionID: 42, OwnerID: 1})
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Deliver(context.Background(), d)
		}()
	}
	wg.Wait()
	if maxActive != 1 {
		t.Fatalf("same-key deliveries overlapped: max concurrency %d", maxActive)
	}
}

func TestRun_OverMemoryBus(t *testing.T) {
	mb := bus.NewMemoryBus(zerolog.Nop())
	sub := mb.Subscribe("sessions")
	got := make(chan string, 1)
	r := NewRunner(t.Name(), newMemInbox(), zerolog.Nop()).
		Handle(events.TypeSessionCompleted, func(_ context.Context, env events.Envelope) error {
			got <- env.EventID
			return nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx, sub) }()

	pub := bus.NewEventPublisher(mb, "sessions", zerolog.Nop())
	env, err := pub.Publish(ctx, events.SessionCompleted{SessionID: 3, OwnerID: 1})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case id := <-got:
		if id != env.EventID {
			t.Fatalf("event id = %s, want %s", id, env.EventID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not consumed")
	}
}

func TestIsPoison(t *testing.T) {
	if IsPoison(errors.New("timeout")) || IsPoison(nil) {
		t.Fatal("plain errors are transient")
	}
	if !IsPoison(fmt.Errorf("wrap: %w", domain.ErrUnknownUrgency)) {
		t.Fatal("validation errors are poison")
	}
}
