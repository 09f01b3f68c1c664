package services

import (
	"context"

	"github.com/tbourn/clinical-intake/internal/domain"
	"github.com/tbourn/clinical-intake/internal/events"
)

// EventPublisher emits a payload wrapped in a fresh envelope.
type EventPublisher interface {
	Publish(ctx context.Context, p events.Payload) (events.Envelope, error)
}

// ProfileLookup fetches the patient context of a user. A nil context with a
// nil error means the user has no profile.
type ProfileLookup interface {
	PatientContext(ctx context.Context, userID int64) (*domain.PatientContext, error)
}

// ConsentChecker reports whether a user allows AI processing of their intake.
type ConsentChecker interface {
	HasAIConsent(ctx context.Context, userID int64) (bool, error)
}

// ReplyGenerator produces the assistant's next turn for a session.
type ReplyGenerator interface {
	Reply(ctx context.Context, s *domain.Session, p *domain.PatientContext) (string, error)
}

// Summarizer derives the structured clinical summary of a session.
type Summarizer interface {
	Summarize(ctx context.Context, s *domain.Session, p *domain.PatientContext) (*domain.Summary, error)
}

// pageBounds applies pagination defaults and returns the row offset.
func pageBounds(page, pageSize int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return (page - 1) * pageSize, pageSize
}
