package bus

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/clinical-intake/internal/events"
)

var nop = zerolog.Nop()

// ---------- memory ----------

func TestMemoryBus_NoSubscriberIsLogged(t *testing.T) {
	var buf bytes.Buffer
	b := NewMemoryBus(zerolog.New(&buf).Level(zerolog.DebugLevel))

	early := Message{Topic: "sessions", Key: "7", Value: []byte("{}")}
	if err := b.Publish(context.Background(), early); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !strings.Contains(buf.String(), "no subscriber for topic") || !strings.Contains(buf.String(), `"topic":"sessions"`) {
		t.Fatalf("expected a debug line for the undelivered message, got %q", buf.String())
	}
	if got := b.Published(); len(got) != 1 {
		t.Fatalf("message must still be recorded, got %d", len(got))
	}

	// A late subscriber does not receive earlier messages.
	sub := b.Subscribe("sessions")
	select {
	case m := <-sub.ch:
		t.Fatalf("late subscriber received %+v", m)
	default:
	}

	buf.Reset()
	if err := b.Publish(context.Background(), early); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if strings.Contains(buf.String(), "no subscriber") {
		t.Fatalf("delivered message must not be reported, got %q", buf.String())
	}
}

func TestMemoryBus_FanOutAndRetry(t *testing.T) {
	b := NewMemoryBus(nop)
	b.MaxAttempts = 3
	a := b.Subscribe("sessions")
	other := b.Subscribe("cases")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var attempts []int
	done := make(chan struct{})
	go a.Run(ctx, func(ctx context.Context, d Delivery) error {
		mu.Lock()
		attempts = append(attempts, d.Attempt)
		n := len(attempts)
		mu.Unlock()
		if n < 2 {
			return errors.New("transient")
		}
		close(done)
		return nil
	})

	if err := b.Publish(ctx, Message{Topic: "sessions", Key: "1", Value: []byte("x")}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("message not redelivered")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Fatalf("attempts = %v", attempts)
	}
	if len(other.ch) != 0 {
		t.Fatal("message leaked to a subscriber of another topic")
	}
	if got := b.Published(); len(got) != 1 {
		t.Fatalf("published = %d", len(got))
	}
}

func TestMemoryBus_GivesUpAfterMaxAttempts(t *testing.T) {
	b := NewMemoryBus(nop)
	b.MaxAttempts = 2
	s := b.Subscribe("t")
	calls := 0
	s.deliver(context.Background(), func(context.Context, Delivery) error {
		calls++
		return errors.New("always")
	}, Message{Topic: "t"})
	if calls != 2 {
		t.Fatalf("calls = %d; want 2", calls)
	}
}

// ---------- event publisher ----------

func TestEventPublisher_EnvelopeKeyAndTrace(t *testing.T) {
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	defer func() { otel.SetTracerProvider(prevTP); otel.SetTextMapPropagator(prevProp) }()
	otel.SetTracerProvider(sdktrace.NewTracerProvider())
	otel.SetTextMapPropagator(propagation.TraceContext{})

	b := NewMemoryBus(nop)
	p := NewEventPublisher(b, "session-events", nop)

	ctx, span := otel.Tracer("test").Start(context.Background(), "complete")
	env, err := p.Publish(ctx, events.SessionCompleted{SessionID: 42, OwnerID: 1})
	span.End()
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	msgs := b.Published()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages", len(msgs))
	}
	m := msgs[0]
	if m.Topic != "session-events" || m.Key != "42" {
		t.Fatalf("topic/key = %s/%s", m.Topic, m.Key)
	}
	if m.Headers[HeaderEventID] != env.EventID || m.Headers[HeaderEventType] != events.TypeSessionCompleted {
		t.Fatalf("headers = %v", m.Headers)
	}
	if m.Headers["traceparent"] == "" {
		t.Fatal("trace context not propagated")
	}
	back, err := events.Parse(m.Value)
	if err != nil || back.EventID != env.EventID {
		t.Fatalf("Parse = %+v, %v", back, err)
	}

	remote := trace.SpanContextFromContext(ExtractTrace(context.Background(), m.Headers))
	if remote.TraceID() != span.SpanContext().TraceID() {
		t.Fatalf("extracted trace %s; want %s", remote.TraceID(), span.SpanContext().TraceID())
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, ...Message) error { return errors.New("broker down") }
func (failingPublisher) Close() error                              { return nil }

func TestEventPublisher_ReturnsEnvelopeOnError(t *testing.T) {
	p := NewEventPublisher(failingPublisher{}, "t", nop)
	env, err := p.Publish(context.Background(), events.CaseCreated{CaseID: 1})
	if err == nil || env.EventID == "" {
		t.Fatalf("env=%+v err=%v", env, err)
	}
}

// ---------- kafka ----------

type fakeWriter struct{ got []kafka.Message }

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.got = append(w.got, msgs...)
	return nil
}
func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisher_MapsMessages(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{w: w}
	err := p.Publish(context.Background(), Message{Topic: "cases", Key: "7", Value: []byte("v"), Headers: map[string]string{"event-id": "e"}})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(w.got) != 1 || w.got[0].Topic != "cases" || string(w.got[0].Key) != "7" {
		t.Fatalf("written = %+v", w.got)
	}
	if len(w.got[0].Headers) != 1 || string(w.got[0].Headers[0].Value) != "e" {
		t.Fatalf("headers = %+v", w.got[0].Headers)
	}
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) == 0 {
		r.mu.Unlock()
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	r.mu.Unlock()
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestKafkaSubscriber_CommitsOnlyAfterSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &fakeReader{
		msgs: []kafka.Message{
			{Topic: "t", Key: []byte("1"), Offset: 10, Headers: []kafka.Header{{Key: "event-id", Value: []byte("a")}}},
			{Topic: "t", Key: []byte("2"), Offset: 11},
		},
		cancel: cancel,
	}
	s := newKafkaSubscriber(r, 5*time.Millisecond, nop)
	s.minBackoff = time.Millisecond

	var seen []string
	fails := 2
	err := s.Run(ctx, func(_ context.Context, d Delivery) error {
		seen = append(seen, d.Key)
		if d.Key == "1" && fails > 0 {
			fails--
			return errors.New("db busy")
		}
		if d.Key == "1" && (d.Attempt != 3 || d.Headers["event-id"] != "a") {
			t.Errorf("delivery = %+v", d)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := []string{"1", "1", "1", "2"}; len(seen) != len(want) {
		t.Fatalf("seen = %v; want %v", seen, want)
	}
	if len(r.committed) != 2 || r.committed[0] != 10 || r.committed[1] != 11 {
		t.Fatalf("committed = %v", r.committed)
	}
}

func TestBackoff_Capped(t *testing.T) {
	if d := backoff(1, 100*time.Millisecond, time.Second); d != 100*time.Millisecond {
		t.Fatalf("attempt 1 = %v", d)
	}
	if d := backoff(3, 100*time.Millisecond, time.Second); d != 400*time.Millisecond {
		t.Fatalf("attempt 3 = %v", d)
	}
	if d := backoff(50, 100*time.Millisecond, time.Second); d != time.Second {
		t.Fatalf("attempt 50 = %v", d)
	}
}

// ---------- sqs ----------

type fakeSQS struct {
	sent    []*sqs.SendMessageInput
	deleted []string
	batches [][]types.Message
	cancel  context.CancelFunc
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.sent = append(f.sent, in)
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if len(f.batches) == 0 {
		f.cancel()
		return nil, ctx.Err()
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return &sqs.ReceiveMessageOutput{Messages: b}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) GetQueueUrl(_ context.Context, in *sqs.GetQueueUrlInput, _ ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) {
	return &sqs.GetQueueUrlOutput{QueueUrl: aws.String("https://sqs.local/" + aws.ToString(in.QueueName))}, nil
}

func TestSQSPublisher_FifoGroupsByKey(t *testing.T) {
	f := &fakeSQS{}
	p := &SQSPublisher{client: f, urls: map[string]string{}}
	err := p.Publish(context.Background(),
		Message{Topic: "cases.fifo", Key: "9", Value: []byte("{}"), Headers: map[string]string{HeaderEventID: "ev-1"}},
		Message{Topic: "sessions", Key: "3", Value: []byte("{}")},
	)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(f.sent) != 2 {
		t.Fatalf("sent = %d", len(f.sent))
	}
	fifo, std := f.sent[0], f.sent[1]
	if aws.ToString(fifo.MessageGroupId) != "9" || aws.ToString(fifo.MessageDeduplicationId) != "ev-1" {
		t.Fatalf("fifo input = %+v", fifo)
	}
	if std.MessageGroupId != nil {
		t.Fatal("standard queue must not set a group id")
	}
	if aws.ToString(std.MessageAttributes[attrKey].StringValue) != "3" {
		t.Fatalf("key attribute = %+v", std.MessageAttributes)
	}
}

func TestSQSSubscriber_DeletesOnlySuccesses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &fakeSQS{cancel: cancel, batches: [][]types.Message{{
		{MessageId: aws.String("m1"), ReceiptHandle: aws.String("r1"), Body: aws.String("ok"),
			Attributes:        map[string]string{"ApproximateReceiveCount": "3"},
			MessageAttributes: map[string]types.MessageAttributeValue{attrKey: {StringValue: aws.String("5")}}},
		{MessageId: aws.String("m2"), ReceiptHandle: aws.String("r2"), Body: aws.String("fail")},
	}}}
	s := newSQSSubscriber(f, "sessions", nop)

	var attempts []int
	err := s.Run(ctx, func(_ context.Context, d Delivery) error {
		attempts = append(attempts, d.Attempt)
		if string(d.Value) == "fail" {
			return errors.New("transient")
		}
		if d.Key != "5" {
			t.Errorf("key = %q", d.Key)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.deleted) != 1 || f.deleted[0] != "r1" {
		t.Fatalf("deleted = %v", f.deleted)
	}
	if len(attempts) != 2 || attempts[0] != 3 || attempts[1] != 1 {
		t.Fatalf("attempts = %v", attempts)
	}
}
