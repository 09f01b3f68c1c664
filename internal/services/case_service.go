// Package services – CaseService
//
// CaseService is the casedesk stage. It opens exactly one case per classified
// session from ClassificationCreated and exposes the clinician operations
// (assignment, status updates, notes). Every assignment and status change is
// committed before its audit event is published.
package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/clinical-intake/internal/domain"
	"github.com/tbourn/clinical-intake/internal/events"
	"github.com/tbourn/clinical-intake/internal/keylock"
	"github.com/tbourn/clinical-intake/internal/observability"
	"github.com/tbourn/clinical-intake/internal/repo"
)

// CaseService manages the case aggregate.
type CaseService struct {
	DB     *gorm.DB
	Events EventPublisher

	Log zerolog.Logger
	Now func() time.Time

	locks keylock.KeyedMutex
}

// NewCaseService wires the casedesk stage.
func NewCaseService(db *gorm.DB, pub EventPublisher, log zerolog.Logger) *CaseService {
	return &CaseService{
		DB:     db,
		Events: pub,
		Log:    log.With().Str("component", "case_service").Logger(),
		Now:    time.Now,
	}
}

func (s *CaseService) now() time.Time { return s.Now().UTC() }

func (s *CaseService) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("services/CaseService").Start(ctx, name, trace.WithAttributes(attrs...))
}

// HandleEnvelope decodes a ClassificationCreated envelope and applies it. It
// is registered with the casedesk consumer.
func (s *CaseService) HandleEnvelope(ctx context.Context, env events.Envelope) error {
	evt, err := events.DecodeClassificationCreated(env)
	if err != nil {
		return err
	}
	_, _, err = s.HandleClassificationCreated(ctx, evt)
	return err
}

// HandleClassificationCreated opens a case for the session unless one exists,
// in which case the existing case is returned with created=false.
func (s *CaseService) HandleClassificationCreated(ctx context.Context, evt events.ClassificationCreated) (c *domain.Case, created bool, err error) {
	ctx, span := s.span(ctx, "HandleClassificationCreated",
		attribute.Int64("session.id", evt.SessionID),
		attribute.Int64("classification.id", evt.ClassificationID),
	)
	defer span.End()

	existing, err := repo.GetCaseBySession(ctx, s.DB, evt.SessionID)
	switch {
	case err == nil:
		if existing.AnnouncedAt != nil {
			s.Log.Debug().Int64("session_id", evt.SessionID).Int64("case_id", existing.ID).Msg("case exists; skipping")
			return existing, false, nil
		}
		s.Log.Info().Int64("session_id", evt.SessionID).Int64("case_id", existing.ID).Msg("case exists but was never announced; publishing")
		s.announce(ctx, existing)
		return existing, false, nil
	case !errors.Is(err, repo.ErrNotFound):
		span.RecordError(err)
		return nil, false, err
	}

	c, err = domain.NewCase(evt.OwnerID, evt.ClassificationID, evt.SessionID, evt.Urgency,
		evt.ChiefComplaint, evt.RedFlags, evt.Recommendations, s.now())
	if err != nil {
		return nil, false, err
	}
	if err := repo.CreateCase(ctx, s.DB, c); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			existing, gerr := repo.GetCaseBySession(ctx, s.DB, evt.SessionID)
			if gerr != nil {
				return nil, false, gerr
			}
			return existing, false, nil
		}
		span.RecordError(err)
		return nil, false, err
	}

	observability.CaseEvents.WithLabelValues("created").Inc()
	s.Log.Info().
		Int64("case_id", c.ID).
		Int64("session_id", c.SessionID).
		Str("urgency", string(c.Urgency)).
		Msg("case opened")

	s.announce(ctx, c)
	return c, true, nil
}

// Assign sets the responsible doctor on behalf of actorID.
func (s *CaseService) Assign(ctx context.Context, actorID, caseID, doctorID int64) (*domain.Case, error) {
	ctx, span := s.span(ctx, "Assign",
		attribute.Int64("case.id", caseID),
		attribute.Int64("doctor.id", doctorID),
	)
	defer span.End()

	unlock := s.locks.Lock(strconv.FormatInt(caseID, 10))
	defer unlock()

	c, err := s.load(ctx, caseID)
	if err != nil {
		return nil, err
	}
	prev, err := c.AssignTo(doctorID, s.now())
	if err != nil {
		return nil, err
	}
	if err := repo.SaveCase(ctx, s.DB, c); err != nil {
		span.RecordError(err)
		return nil, err
	}

	observability.CaseEvents.WithLabelValues("assigned").Inc()
	s.Log.Info().Int64("case_id", c.ID).Int64("doctor_id", doctorID).Int64("by", actorID).Msg("case assigned")
	s.publish(ctx, events.CaseAssigned{
		CaseID:           c.ID,
		PatientID:        c.PatientID,
		AssignedDoctorID: doctorID,
		PreviousDoctorID: prev,
		AssignedByUserID: actorID,
	})
	return c, nil
}

// UpdateStatus moves the case to status on behalf of actorID.
func (s *CaseService) UpdateStatus(ctx context.Context, actorID, caseID int64, status domain.CaseStatus) (*domain.Case, error) {
	ctx, span := s.span(ctx, "UpdateStatus",
		attribute.Int64("case.id", caseID),
		attribute.String("status", string(status)),
	)
	defer span.End()

	unlock := s.locks.Lock(strconv.FormatInt(caseID, 10))
	defer unlock()

	c, err := s.load(ctx, caseID)
	if err != nil {
		return nil, err
	}
	from, err := c.UpdateStatus(status, s.now())
	if err != nil {
		return nil, err
	}
	if err := repo.SaveCase(ctx, s.DB, c); err != nil {
		span.RecordError(err)
		return nil, err
	}

	observability.CaseEvents.WithLabelValues("status_changed").Inc()
	s.Log.Info().
		Int64("case_id", c.ID).
		Str("from", string(from)).
		Str("to", string(c.Status)).
		Int64("by", actorID).
		Msg("case status changed")
	s.publish(ctx, events.CaseStatusChanged{
		CaseID:          c.ID,
		PatientID:       c.PatientID,
		PreviousStatus:  from,
		NewStatus:       c.Status,
		ChangedByUserID: actorID,
	})
	return c, nil
}

// AddNote appends a note by authorID. Notes are accepted in every status,
// including CLOSED.
func (s *CaseService) AddNote(ctx context.Context, authorID, caseID int64, text string) (*domain.CaseNote, error) {
	ctx, span := s.span(ctx, "AddNote", attribute.Int64("case.id", caseID))
	defer span.End()

	unlock := s.locks.Lock(strconv.FormatInt(caseID, 10))
	defer unlock()

	c, err := s.load(ctx, caseID)
	if err != nil {
		return nil, err
	}
	n := c.AddNote(authorID, text, s.now())
	if n == nil {
		return nil, ErrBlankNote
	}
	if err := repo.AddCaseNote(ctx, s.DB, n); err != nil {
		span.RecordError(err)
		return nil, err
	}
	observability.CaseEvents.WithLabelValues("note_added").Inc()
	return n, nil
}

// Get returns a case with its notes.
func (s *CaseService) Get(ctx context.Context, caseID int64) (*domain.Case, error) {
	ctx, span := s.span(ctx, "Get", attribute.Int64("case.id", caseID))
	defer span.End()
	return s.load(ctx, caseID)
}

// List returns a page of cases matching f, most urgent first.
func (s *CaseService) List(ctx context.Context, f repo.CaseFilter, page, pageSize int) ([]domain.Case, int64, error) {
	ctx, span := s.span(ctx, "List",
		attribute.Int64("doctor.id", f.DoctorID),
		attribute.Int64("patient.id", f.PatientID),
		attribute.String("status", string(f.Status)),
	)
	defer span.End()

	total, err := repo.CountCases(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Case{}, 0, nil
	}
	offset, limit := pageBounds(page, pageSize)
	items, err := repo.ListCasesPage(ctx, s.DB, f, offset, limit)
	return items, total, err
}

// ListStats summarizes the cases matching f for conditional list responses.
func (s *CaseService) ListStats(ctx context.Context, f repo.CaseFilter) (repo.ListStats, error) {
	return repo.CasesStats(ctx, s.DB, f)
}

func (s *CaseService) load(ctx context.Context, caseID int64) (*domain.Case, error) {
	c, err := repo.GetCase(ctx, s.DB, caseID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrCaseNotFound
	}
	return c, err
}

// announce publishes CaseCreated for c and stamps it as announced. The
// creation snapshot is sent, so a late announcement still reports OPEN.
func (s *CaseService) announce(ctx context.Context, c *domain.Case) {
	if err := s.publish(ctx, events.CaseCreated{
		CaseID:         c.ID,
		PatientID:      c.PatientID,
		SessionID:      c.SessionID,
		Urgency:        c.Urgency,
		Status:         domain.CaseOpen,
		ChiefComplaint: c.ChiefComplaint,
	}); err != nil {
		return
	}
	at := s.now()
	if err := repo.MarkCaseAnnounced(ctx, s.DB, c.ID, at); err != nil {
		s.Log.Warn().Err(err).Int64("case_id", c.ID).Msg("mark case announced failed")
		return
	}
	c.AnnouncedAt = &at
}

// publish logs failures; committed case state is the source of truth.
func (s *CaseService) publish(ctx context.Context, p events.Payload) error {
	env, err := s.Events.Publish(ctx, p)
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
		s.Log.Error().
			Err(err).
			Str("event_type", p.EventType()).
			Str("event_id", env.EventID).
			Str("key", p.Key()).
			Msg("publish failed")
	}
	return err
}
