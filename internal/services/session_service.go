// Package services – SessionService
//
// SessionService owns the intake conversation of the sessions stage. It gates
// session start on AI-processing consent, appends patient turns and the
// assistant's replies, completes sessions with a clinical summary and
// publishes SessionCompleted once the completed state is committed.
//
// Mutations of one session are serialized in-process; the aggregate enforces
// the lifecycle rules. Publishing happens after commit and its failure never
// rolls the session back: RepublishCompleted re-emits completions so
// downstream idempotency absorbs any duplicates.
package services

import (
	"context"
	"errors"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/clinical-intake/internal/domain"
	"github.com/tbourn/clinical-intake/internal/events"
	"github.com/tbourn/clinical-intake/internal/keylock"
	"github.com/tbourn/clinical-intake/internal/repo"
)

// Fallback system messages appended when no assistant reply is available.
const (
	MsgAssistantFailed      = "Error al generar respuesta del asistente. Por favor, intente nuevamente."
	MsgAssistantUnavailable = "Servicio de IA temporalmente no disponible."
)

// SessionService coordinates the session aggregate with its collaborators.
type SessionService struct {
	DB     *gorm.DB
	Events EventPublisher

	// Optional collaborators. A nil Consent admits every user; a nil
	// Assistant yields the unavailable notice; a nil Summarizer requires the
	// caller to supply the summary.
	Consent    ConsentChecker
	Profiles   ProfileLookup
	Assistant  ReplyGenerator
	Summarizer Summarizer

	// MaxMessageRunes caps patient text (0 = unlimited).
	MaxMessageRunes int

	Log zerolog.Logger
	Now func() time.Time

	locks keylock.KeyedMutex
}

// NewSessionService wires the required collaborators.
func NewSessionService(db *gorm.DB, pub EventPublisher, log zerolog.Logger) *SessionService {
	return &SessionService{
		DB:              db,
		Events:          pub,
		MaxMessageRunes: 4000,
		Log:             log.With().Str("component", "session_service").Logger(),
		Now:             time.Now,
	}
}

func (s *SessionService) now() time.Time { return s.Now().UTC() }

func (s *SessionService) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("services/SessionService").Start(ctx, name, trace.WithAttributes(attrs...))
}

// Start opens a session for ownerID after checking consent.
func (s *SessionService) Start(ctx context.Context, ownerID int64, reason string) (*domain.Session, error) {
	ctx, span := s.span(ctx, "Start", attribute.Int64("owner.id", ownerID))
	defer span.End()

	if s.Consent != nil {
		ok, err := s.Consent.HasAIConsent(ctx, ownerID)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if !ok {
			s.Log.Warn().Int64("owner_id", ownerID).Msg("session start refused: no AI consent")
			return nil, ErrConsentRequired
		}
	}

	sess, err := domain.NewSession(ownerID, reason, s.now())
	if err != nil {
		return nil, err
	}
	if err := repo.CreateSession(ctx, s.DB, sess); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int64("session.id", sess.ID))
	s.Log.Info().Int64("session_id", sess.ID).Int64("owner_id", ownerID).Msg("session started")
	return sess, nil
}

// PostMessage appends the patient's text and the assistant's reply. When the
// assistant fails or is not configured a system notice is appended instead,
// so the patient turn is never lost.
func (s *SessionService) PostMessage(ctx context.Context, ownerID, sessionID int64, text string) (*domain.Session, error) {
	ctx, span := s.span(ctx, "PostMessage",
		attribute.Int64("owner.id", ownerID),
		attribute.Int64("session.id", sessionID),
	)
	defer span.End()

	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(text) > s.MaxMessageRunes {
		return nil, ErrMessageTooLong
	}

	unlock := s.locks.Lock(strconv.FormatInt(sessionID, 10))
	defer unlock()

	sess, err := s.loadOwned(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := sess.AddPatientMessage(text, s.now()); err != nil {
		return nil, err
	}

	switch {
	case s.Assistant == nil:
		_, err = sess.AddSystemMessage(MsgAssistantUnavailable, s.now())
	default:
		reply, rerr := s.Assistant.Reply(ctx, sess, s.patientContext(ctx, ownerID))
		if rerr == nil {
			_, rerr = sess.AddAssistantMessage(reply, s.now())
		}
		if rerr != nil {
			span.RecordError(rerr)
			s.Log.Error().Err(rerr).Int64("session_id", sessionID).Msg("assistant reply failed")
			_, err = sess.AddSystemMessage(MsgAssistantFailed, s.now())
		}
	}
	if err != nil {
		return nil, err
	}

	if err := repo.SaveSession(ctx, s.DB, sess); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return sess, nil
}

// Complete attaches summary (or one produced by the Summarizer when summary
// is nil), commits the COMPLETED state and then publishes SessionCompleted.
func (s *SessionService) Complete(ctx context.Context, ownerID, sessionID int64, summary *domain.Summary) (*domain.Session, error) {
	ctx, span := s.span(ctx, "Complete",
		attribute.Int64("owner.id", ownerID),
		attribute.Int64("session.id", sessionID),
	)
	defer span.End()

	unlock := s.locks.Lock(strconv.FormatInt(sessionID, 10))
	defer unlock()

	sess, err := s.loadOwned(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		// Let the aggregate name the rejected transition.
		return nil, sess.Complete(summary, s.now())
	}

	if summary == nil && s.Summarizer != nil {
		summary, err = s.Summarizer.Summarize(ctx, sess, s.patientContext(ctx, ownerID))
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
	}
	if err := summary.Validate(); err != nil {
		return nil, err
	}
	if err := sess.Complete(summary, s.now()); err != nil {
		return nil, err
	}
	if err := repo.SaveSession(ctx, s.DB, sess); err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.Log.Info().Int64("session_id", sess.ID).Msg("session completed")

	s.publishCompleted(ctx, sess)
	return sess, nil
}

// Cancel ends an active session.
func (s *SessionService) Cancel(ctx context.Context, ownerID, sessionID int64, reason string) (*domain.Session, error) {
	ctx, span := s.span(ctx, "Cancel",
		attribute.Int64("owner.id", ownerID),
		attribute.Int64("session.id", sessionID),
	)
	defer span.End()

	unlock := s.locks.Lock(strconv.FormatInt(sessionID, 10))
	defer unlock()

	sess, err := s.loadOwned(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.Cancel(reason, s.now()); err != nil {
		return nil, err
	}
	if err := repo.SaveSession(ctx, s.DB, sess); err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.Log.Info().Int64("session_id", sess.ID).Msg("session cancelled")
	return sess, nil
}

// Get returns a session owned by ownerID with its message log.
func (s *SessionService) Get(ctx context.Context, ownerID, sessionID int64) (*domain.Session, error) {
	ctx, span := s.span(ctx, "Get", attribute.Int64("session.id", sessionID))
	defer span.End()
	return s.loadOwned(ctx, ownerID, sessionID)
}

// ListByOwner returns a page of the owner's sessions, newest first, and the
// total count. An empty status matches every status.
func (s *SessionService) ListByOwner(ctx context.Context, ownerID int64, status domain.SessionStatus, page, pageSize int) ([]domain.Session, int64, error) {
	ctx, span := s.span(ctx, "ListByOwner",
		attribute.Int64("owner.id", ownerID),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)
	defer span.End()

	f := repo.SessionFilter{OwnerID: ownerID, Status: status}
	total, err := repo.CountSessions(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Session{}, 0, nil
	}
	offset, limit := pageBounds(page, pageSize)
	items, err := repo.ListSessionsPage(ctx, s.DB, f, offset, limit)
	return items, total, err
}

// ListStats summarizes the owner's sessions matching status for conditional
// list responses.
func (s *SessionService) ListStats(ctx context.Context, ownerID int64, status domain.SessionStatus) (repo.ListStats, error) {
	return repo.SessionsStats(ctx, s.DB, repo.SessionFilter{OwnerID: ownerID, Status: status})
}

// RepublishCompleted re-emits SessionCompleted for every session completed at
// or after since. It stops at the first publish failure and reports how many
// events were published.
func (s *SessionService) RepublishCompleted(ctx context.Context, since time.Time) (int, error) {
	ctx, span := s.span(ctx, "RepublishCompleted", attribute.String("since", since.Format(time.RFC3339)))
	defer span.End()

	sessions, err := repo.ListCompletedSince(ctx, s.DB, since, 0)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range sessions {
		sess := &sessions[i]
		if sess.Summary == nil {
			s.Log.Warn().Int64("session_id", sess.ID).Msg("completed session without summary; skipping")
			continue
		}
		if _, err := s.Events.Publish(ctx, completedEvent(sess)); err != nil {
			span.RecordError(err)
			return n, err
		}
		n++
	}
	s.Log.Info().Int("published", n).Time("since", since).Msg("completions republished")
	return n, nil
}

func (s *SessionService) publishCompleted(ctx context.Context, sess *domain.Session) {
	env, err := s.Events.Publish(ctx, completedEvent(sess))
	if err != nil {
		s.Log.Error().
			Err(err).
			Int64("session_id", sess.ID).
			Str("event_id", env.EventID).
			Msg("publish SessionCompleted failed; run republish to recover")
	}
}

func completedEvent(sess *domain.Session) events.SessionCompleted {
	return events.SessionCompleted{
		SessionID: sess.ID,
		OwnerID:   sess.OwnerID,
		Summary:   events.SummaryFromDomain(sess.Summary),
	}
}

// patientContext is best effort: lookup failures degrade to no context.
func (s *SessionService) patientContext(ctx context.Context, ownerID int64) *domain.PatientContext {
	if s.Profiles == nil {
		return nil
	}
	p, err := s.Profiles.PatientContext(ctx, ownerID)
	if err != nil {
		s.Log.Warn().Err(err).Int64("owner_id", ownerID).Msg("patient context unavailable")
		return nil
	}
	return p
}

func (s *SessionService) loadOwned(ctx context.Context, ownerID, sessionID int64) (*domain.Session, error) {
	sess, err := repo.GetSession(ctx, s.DB, sessionID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if sess.OwnerID != ownerID {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}
