// Package services – ClassificationService
//
// ClassificationService is the triage stage. It consumes SessionCompleted,
// runs the rule classifier over the summary (enriched with the patient's
// context when the profile lookup succeeds), stores exactly one
// classification per session and publishes ClassificationCreated for it. A
// record whose announcement never went out (failed publish, crash after
// commit) is announced again when the completion is redelivered.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/clinical-intake/internal/domain"
	"github.com/tbourn/clinical-intake/internal/events"
	"github.com/tbourn/clinical-intake/internal/observability"
	"github.com/tbourn/clinical-intake/internal/repo"
	"github.com/tbourn/clinical-intake/internal/triage"
)

// ClassificationService stores and publishes urgency assessments.
type ClassificationService struct {
	DB         *gorm.DB
	Classifier *triage.Classifier
	Events     EventPublisher
	Profiles   ProfileLookup // optional

	Log zerolog.Logger
	Now func() time.Time
}

// NewClassificationService wires the default rule set.
func NewClassificationService(db *gorm.DB, pub EventPublisher, profiles ProfileLookup, log zerolog.Logger) *ClassificationService {
	return &ClassificationService{
		DB:         db,
		Classifier: triage.New(),
		Events:     pub,
		Profiles:   profiles,
		Log:        log.With().Str("component", "classification_service").Logger(),
		Now:        time.Now,
	}
}

func (s *ClassificationService) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("services/ClassificationService").Start(ctx, name, trace.WithAttributes(attrs...))
}

// HandleEnvelope decodes a SessionCompleted envelope and applies it. It is
// registered with the triage consumer.
func (s *ClassificationService) HandleEnvelope(ctx context.Context, env events.Envelope) error {
	evt, err := events.DecodeSessionCompleted(env)
	if err != nil {
		return err
	}
	_, _, err = s.HandleSessionCompleted(ctx, evt)
	return err
}

// HandleSessionCompleted classifies the session unless a classification
// already exists for it, in which case the existing record is returned with
// created=false.
func (s *ClassificationService) HandleSessionCompleted(ctx context.Context, evt events.SessionCompleted) (rec *domain.Classification, created bool, err error) {
	ctx, span := s.span(ctx, "HandleSessionCompleted",
		attribute.Int64("session.id", evt.SessionID),
		attribute.Int64("owner.id", evt.OwnerID),
	)
	defer span.End()

	existing, err := repo.GetClassificationBySession(ctx, s.DB, evt.SessionID)
	switch {
	case err == nil:
		if existing.AnnouncedAt != nil {
			s.Log.Debug().Int64("session_id", evt.SessionID).Msg("classification exists; skipping")
			return existing, false, nil
		}
		s.Log.Info().Int64("session_id", evt.SessionID).Int64("classification_id", existing.ID).Msg("classification exists but was never announced; publishing")
		s.announce(ctx, existing)
		return existing, false, nil
	case !errors.Is(err, repo.ErrNotFound):
		span.RecordError(err)
		return nil, false, err
	}

	// Presence of the summary fields is enforced by the decoder. An empty
	// complaint is still valid input for the rules.
	summary := evt.Summary.ToDomain()
	patient := s.patientContext(ctx, evt.OwnerID)
	res := s.Classifier.Classify(summary, patient)

	rec = &domain.Classification{
		SessionID:       evt.SessionID,
		OwnerID:         evt.OwnerID,
		Urgency:         res.Urgency,
		MatchedRule:     res.MatchedRule,
		ChiefComplaint:  summary.ChiefComplaint,
		RiskFactors:     res.RiskFactors,
		RedFlags:        summary.RedFlags,
		Recommendations: res.Recommendations,
		CreatedAt:       s.Now().UTC(),
	}
	if err := repo.CreateClassification(ctx, s.DB, rec); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			// Lost a race with a concurrent consumer instance.
			existing, gerr := repo.GetClassificationBySession(ctx, s.DB, evt.SessionID)
			if gerr != nil {
				return nil, false, gerr
			}
			return existing, false, nil
		}
		span.RecordError(err)
		return nil, false, err
	}

	span.SetAttributes(attribute.String("urgency", string(rec.Urgency)), attribute.String("rule", rec.MatchedRule))
	observability.Classifications.WithLabelValues(string(rec.Urgency)).Inc()
	ev := s.Log.Info()
	if rec.Urgency == domain.UrgencyEmergency {
		ev = s.Log.Warn()
	}
	ev.Int64("session_id", rec.SessionID).
		Int64("classification_id", rec.ID).
		Str("urgency", string(rec.Urgency)).
		Str("rule", rec.MatchedRule).
		Msg("session classified")

	s.announce(ctx, rec)
	return rec, true, nil
}

// announce publishes ClassificationCreated for rec and stamps it as announced.
// Failures are logged; the record stays unannounced so a redelivery retries.
func (s *ClassificationService) announce(ctx context.Context, rec *domain.Classification) {
	env, err := s.Events.Publish(ctx, events.ClassificationCreated{
		ClassificationID: rec.ID,
		OwnerID:          rec.OwnerID,
		SessionID:        rec.SessionID,
		Urgency:          rec.Urgency,
		RiskFactors:      rec.RiskFactors,
		RedFlags:         rec.RedFlags,
		Recommendations:  rec.Recommendations,
		ChiefComplaint:   rec.ChiefComplaint,
	})
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
		s.Log.Error().Err(err).Str("event_id", env.EventID).Int64("session_id", rec.SessionID).Msg("publish ClassificationCreated failed")
		return
	}
	at := s.Now().UTC()
	if err := repo.MarkClassificationAnnounced(ctx, s.DB, rec.ID, at); err != nil {
		s.Log.Warn().Err(err).Int64("classification_id", rec.ID).Msg("mark classification announced failed")
		return
	}
	rec.AnnouncedAt = &at
}

// Get returns a classification by id.
func (s *ClassificationService) Get(ctx context.Context, id int64) (*domain.Classification, error) {
	ctx, span := s.span(ctx, "Get", attribute.Int64("classification.id", id))
	defer span.End()
	c, err := repo.GetClassification(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrClassificationNotFound
	}
	return c, err
}

// GetBySession returns the classification of a session.
func (s *ClassificationService) GetBySession(ctx context.Context, sessionID int64) (*domain.Classification, error) {
	ctx, span := s.span(ctx, "GetBySession", attribute.Int64("session.id", sessionID))
	defer span.End()
	c, err := repo.GetClassificationBySession(ctx, s.DB, sessionID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrClassificationNotFound
	}
	return c, err
}

// List returns a page of classifications matching f, newest first.
func (s *ClassificationService) List(ctx context.Context, f repo.ClassificationFilter, page, pageSize int) ([]domain.Classification, int64, error) {
	ctx, span := s.span(ctx, "List", attribute.Int64("owner.id", f.OwnerID))
	defer span.End()

	total, err := repo.CountClassifications(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Classification{}, 0, nil
	}
	offset, limit := pageBounds(page, pageSize)
	items, err := repo.ListClassificationsPage(ctx, s.DB, f, offset, limit)
	return items, total, err
}

// patientContext is best effort: absence or failure yields nil.
func (s *ClassificationService) patientContext(ctx context.Context, ownerID int64) *domain.PatientContext {
	if s.Profiles == nil {
		return nil
	}
	p, err := s.Profiles.PatientContext(ctx, ownerID)
	if err != nil {
		s.Log.Warn().Err(err).Int64("owner_id", ownerID).Msg("classifying without patient context")
		return nil
	}
	return p
}
