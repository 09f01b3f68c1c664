// Package events defines the inter-stage event contracts: a common envelope
// carrying a typed payload. Decoding is strict about required fields and
// tolerant of unknown ones. Any shape violation is reported as ErrMalformed so
// consumers can drop the message instead of retrying it.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event type tags.
const (
	TypeSessionCompleted      = "SessionCompleted"
	TypeClassificationCreated = "ClassificationCreated"
	TypeCaseCreated           = "CaseCreated"
	TypeCaseAssigned          = "CaseAssigned"
	TypeCaseStatusChanged     = "CaseStatusChanged"
)

// ErrMalformed wraps every decoding or schema failure.
var ErrMalformed = errors.New("malformed event")

// Envelope is the immutable wrapper around every published payload.
type Envelope struct {
	EventID    string          `json:"eventId"`
	EventType  string          `json:"eventType"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// Payload is implemented by every event body.
type Payload interface {
	EventType() string
	// Key is the aggregate identity used for partitioning and per-key
	// serialization.
	Key() string
}

// New wraps p in a fresh envelope with a random id.
func New(p Payload, now time.Time) (Envelope, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", p.EventType(), err)
	}
	return Envelope{
		EventID:    uuid.NewString(),
		EventType:  p.EventType(),
		OccurredAt: now.UTC(),
		Payload:    raw,
	}, nil
}

// Marshal serializes the envelope.
func (e Envelope) Marshal() ([]byte, error) { return json.Marshal(e) }

type wireEnvelope struct {
	EventID    *string         `json:"eventId"    validate:"required,uuid"`
	EventType  *string         `json:"eventType"  validate:"required,min=1"`
	OccurredAt *time.Time      `json:"occurredAt" validate:"required"`
	Payload    json.RawMessage `json:"payload"    validate:"required"`
}

// Parse decodes an envelope. Absent fields, a non-UUID id or a null payload
// are malformed.
func Parse(data []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(w); err != nil {
		return Envelope{}, fmt.Errorf("%w: envelope: %v", ErrMalformed, err)
	}
	if string(w.Payload) == "null" {
		return Envelope{}, fmt.Errorf("%w: envelope: payload is null", ErrMalformed)
	}
	return Envelope{
		EventID:    *w.EventID,
		EventType:  *w.EventType,
		OccurredAt: *w.OccurredAt,
		Payload:    w.Payload,
	}, nil
}
