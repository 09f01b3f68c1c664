// Package audit implements the audit stage: every case event is stored as a
// JSON object in S3 under a date-partitioned key derived from the envelope.
// Keys depend only on the envelope, so re-archiving a redelivered event
// overwrites the same object.
package audit

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/clinical-intake/internal/config"
	"github.com/tbourn/clinical-intake/internal/events"
)

// EventTypes lists the case events the archiver accepts.
var EventTypes = []string{events.TypeCaseCreated, events.TypeCaseAssigned, events.TypeCaseStatusChanged}

// ObjectPutter is the subset of *s3.Client the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver writes envelopes to a bucket.
type Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
	log    zerolog.Logger
}

// NewArchiver binds client to the bucket and prefix of cfg.
func NewArchiver(client ObjectPutter, cfg config.AuditConfig, log zerolog.Logger) *Archiver {
	return &Archiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		log:    log.With().Str("component", "audit_archiver").Str("bucket", cfg.Bucket).Logger(),
	}
}

// Key returns <prefix>/<eventType>/<yyyy>/<mm>/<dd>/<eventId>.json using the
// UTC date the event occurred.
func (a *Archiver) Key(env events.Envelope) string {
	t := env.OccurredAt.UTC()
	return path.Join(a.prefix, env.EventType,
		fmt.Sprintf("%04d", t.Year()),
		fmt.Sprintf("%02d", int(t.Month())),
		fmt.Sprintf("%02d", t.Day()),
		env.EventID+".json")
}

// Archive validates the payload of env and stores the envelope. Payloads that
// do not decode are reported as events.ErrMalformed.
func (a *Archiver) Archive(ctx context.Context, env events.Envelope) error {
	ctx, span := otel.Tracer("audit/Archiver").Start(ctx, "Archive")
	defer span.End()

	caseKey, err := validatePayload(env)
	if err != nil {
		return err
	}
	body, err := env.Marshal()
	if err != nil {
		return err
	}
	key := a.Key(env)
	span.SetAttributes(attribute.String("s3.key", key), attribute.String("event.type", env.EventType))

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		ACL:         types.ObjectCannedACLPrivate,
		Metadata: map[string]string{
			"event-id":   env.EventID,
			"event-type": env.EventType,
			"case-id":    caseKey,
		},
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("audit: put %s: %w", key, err)
	}
	a.log.Debug().Str("key", key).Str("event_id", env.EventID).Msg("event archived")
	return nil
}

// validatePayload decodes env by type and returns the case id.
func validatePayload(env events.Envelope) (string, error) {
	switch env.EventType {
	case events.TypeCaseCreated:
		e, err := events.DecodeCaseCreated(env)
		return e.Key(), err
	case events.TypeCaseAssigned:
		e, err := events.DecodeCaseAssigned(env)
		return e.Key(), err
	case events.TypeCaseStatusChanged:
		e, err := events.DecodeCaseStatusChanged(env)
		return e.Key(), err
	}
	return "", fmt.Errorf("%w: audit does not archive %q", events.ErrMalformed, env.EventType)
}
