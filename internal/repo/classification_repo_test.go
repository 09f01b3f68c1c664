package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/clinical-intake/internal/domain"
)

func newClassification(sessionID, owner int64, u domain.Urgency, at time.Time) *domain.Classification {
	return &domain.Classification{
		SessionID:      sessionID,
		OwnerID:        owner,
		Urgency:        u,
		MatchedRule:    "test",
		ChiefComplaint: "fiebre",
		RiskFactors:    []string{"Edad avanzada"},
		RedFlags:       []string{},
		CreatedAt:      at,
	}
}

func TestCreateClassification_DuplicateSession(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, TriageModels...)

	first := newClassification(10, 1, domain.UrgencyHigh, t0)
	if err := CreateClassification(ctx, db, first); err != nil {
		t.Fatalf("CreateClassification: %v", err)
	}
	if first.ID == 0 {
		t.Fatalf("expected id assigned")
	}

	err := CreateClassification(ctx, db, newClassification(10, 1, domain.UrgencyLow, t0))
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	got, err := GetClassificationBySession(ctx, db, 10)
	if err != nil || got.ID != first.ID || got.Urgency != domain.UrgencyHigh {
		t.Fatalf("original record must survive: %+v err=%v", got, err)
	}
	if len(got.RiskFactors) != 1 || got.RiskFactors[0] != "Edad avanzada" {
		t.Fatalf("json slice roundtrip: %+v", got.RiskFactors)
	}
}

func TestGetClassification_NotFound(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, TriageModels...)
	if _, err := GetClassification(ctx, db, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := GetClassificationBySession(ctx, db, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListClassificationsPage(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, TriageModels...)
	for i, u := range []domain.Urgency{domain.UrgencyLow, domain.UrgencyEmergency, domain.UrgencyLow} {
		c := newClassification(int64(i+1), 1, u, t0.Add(time.Duration(i)*time.Minute))
		if err := CreateClassification(ctx, db, c); err != nil {
			t.Fatal(err)
		}
	}
	if err := CreateClassification(ctx, db, newClassification(9, 2, domain.UrgencyLow, t0)); err != nil {
		t.Fatal(err)
	}

	f := ClassificationFilter{OwnerID: 1, Urgency: domain.UrgencyLow}
	n, err := CountClassifications(ctx, db, f)
	if err != nil || n != 2 {
		t.Fatalf("count = %d, %v", n, err)
	}
	page, err := ListClassificationsPage(ctx, db, f, 0, 1)
	if err != nil || len(page) != 1 || page[0].SessionID != 3 {
		t.Fatalf("expected newest LOW first, got %+v err=%v", page, err)
	}
}

func TestMarkClassificationAnnounced(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, TriageModels...)

	c := newClassification(11, 1, domain.UrgencyLow, t0)
	if err := CreateClassification(ctx, db, c); err != nil {
		t.Fatalf("CreateClassification: %v", err)
	}
	if got, _ := GetClassificationBySession(ctx, db, 11); got.AnnouncedAt != nil {
		t.Fatalf("new record must start unannounced")
	}
	at := t0.Add(time.Minute)
	if err := MarkClassificationAnnounced(ctx, db, c.ID, at); err != nil {
		t.Fatalf("MarkClassificationAnnounced: %v", err)
	}
	got, err := GetClassificationBySession(ctx, db, 11)
	if err != nil || got.AnnouncedAt == nil || !got.AnnouncedAt.Equal(at) {
		t.Fatalf("announced_at not stored: %+v err=%v", got, err)
	}
	if err := MarkClassificationAnnounced(ctx, db, 999, at); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
