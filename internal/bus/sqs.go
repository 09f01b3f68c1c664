package bus

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog"
)

// attrKey carries Message.Key as an SQS message attribute.
const attrKey = "key"

type sqsAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	GetQueueUrl(ctx context.Context, in *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
}

// SQSPublisher maps each topic to a queue of the same name. FIFO queues
// (".fifo" suffix) group messages by key.
type SQSPublisher struct {
	client sqsAPI

	mu   sync.Mutex
	urls map[string]string
}

// NewSQSPublisher wraps an SQS client.
func NewSQSPublisher(client *sqs.Client) *SQSPublisher {
	return &SQSPublisher{client: client, urls: map[string]string{}}
}

// Publish sends each message individually.
func (p *SQSPublisher) Publish(ctx context.Context, msgs ...Message) error {
	for _, m := range msgs {
		url, err := p.queueURL(ctx, m.Topic)
		if err != nil {
			return err
		}
		in := &sqs.SendMessageInput{
			QueueUrl:          aws.String(url),
			MessageBody:       aws.String(string(m.Value)),
			MessageAttributes: sqsAttributes(m),
		}
		if strings.HasSuffix(url, ".fifo") {
			in.MessageGroupId = aws.String(m.Key)
			if id := m.Headers[HeaderEventID]; id != "" {
				in.MessageDeduplicationId = aws.String(id)
			}
		}
		if _, err := p.client.SendMessage(ctx, in); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op; the SDK client holds no connection state to release.
func (p *SQSPublisher) Close() error { return nil }

func (p *SQSPublisher) queueURL(ctx context.Context, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.urls[name]; ok {
		return u, nil
	}
	out, err := p.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err != nil {
		return "", err
	}
	p.urls[name] = aws.ToString(out.QueueUrl)
	return p.urls[name], nil
}

func sqsAttributes(m Message) map[string]types.MessageAttributeValue {
	attrs := map[string]types.MessageAttributeValue{
		attrKey: {DataType: aws.String("String"), StringValue: aws.String(m.Key)},
	}
	for k, v := range m.Headers {
		if v == "" {
			continue
		}
		attrs[k] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
	}
	return attrs
}

// SQSSubscriber long-polls one queue. Successful deliveries are deleted;
// failed ones stay on the queue and come back after the visibility timeout.
type SQSSubscriber struct {
	client   sqsAPI
	queue    string
	url      string
	waitSecs int32
	batch    int32
	log      zerolog.Logger
}

// NewSQSSubscriber polls the queue named topic.
func NewSQSSubscriber(client *sqs.Client, topic string, log zerolog.Logger) *SQSSubscriber {
	return newSQSSubscriber(client, topic, log)
}

func newSQSSubscriber(client sqsAPI, topic string, log zerolog.Logger) *SQSSubscriber {
	return &SQSSubscriber{
		client:   client,
		queue:    topic,
		waitSecs: 20,
		batch:    10,
		log:      log.With().Str("component", "sqs_subscriber").Str("queue", topic).Logger(),
	}
}

// Run blocks until ctx is cancelled.
func (s *SQSSubscriber) Run(ctx context.Context, h Handler) error {
	if s.url == "" {
		out, err := s.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(s.queue)})
		if err != nil {
			return err
		}
		s.url = aws.ToString(out.QueueUrl)
	}
	failures := 0
	for ctx.Err() == nil {
		out, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:                    aws.String(s.url),
			MaxNumberOfMessages:         s.batch,
			WaitTimeSeconds:             s.waitSecs,
			MessageAttributeNames:       []string{"All"},
			MessageSystemAttributeNames: []types.MessageSystemAttributeName{types.MessageSystemAttributeNameApproximateReceiveCount},
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			s.log.Error().Err(err).Int("failures", failures).Msg("receive failed")
			if !sleepCtx(ctx, backoff(failures, defaultMinBackoff, defaultMaxBackoff)) {
				return nil
			}
			continue
		}
		failures = 0
		for _, m := range out.Messages {
			d := sqsDelivery(s.queue, m)
			if err := h(ctx, d); err != nil {
				s.log.Warn().Err(err).Str("message_id", aws.ToString(m.MessageId)).Int("attempt", d.Attempt).
					Msg("handler failed; leaving for redelivery")
				continue
			}
			if _, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(s.url),
				ReceiptHandle: m.ReceiptHandle,
			}); err != nil {
				s.log.Error().Err(err).Str("message_id", aws.ToString(m.MessageId)).Msg("delete failed")
			}
		}
	}
	return nil
}

// Close is a no-op.
func (s *SQSSubscriber) Close() error { return nil }

func sqsDelivery(queue string, m types.Message) Delivery {
	headers := make(map[string]string, len(m.MessageAttributes))
	var key string
	for k, v := range m.MessageAttributes {
		if k == attrKey {
			key = aws.ToString(v.StringValue)
			continue
		}
		headers[k] = aws.ToString(v.StringValue)
	}
	attempt := 1
	if n, err := strconv.Atoi(m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]); err == nil && n > 0 {
		attempt = n
	}
	return Delivery{
		Message: Message{Topic: queue, Key: key, Value: []byte(aws.ToString(m.Body)), Headers: headers},
		Attempt: attempt,
	}
}
