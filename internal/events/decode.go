package events

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/tbourn/clinical-intake/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Wire shapes use pointers so an absent field is distinguishable from a zero
// value. Unknown fields are ignored.

type wireSummary struct {
	ChiefComplaint          *string  `json:"chiefComplaint"          validate:"required"`
	HistoryOfPresentIllness *string  `json:"historyOfPresentIllness" validate:"required"`
	PastMedicalHistory      *string  `json:"pastMedicalHistory"`
	Medications             []string `json:"medications"`
	Allergies               []string `json:"allergies"`
	RedFlags                []string `json:"redFlags"`
	AdditionalNotes         *string  `json:"additionalNotes"`
}

type wireSessionCompleted struct {
	SessionID *int64       `json:"sessionId" validate:"required,gt=0"`
	OwnerID   *int64       `json:"ownerId"   validate:"required,gt=0"`
	Summary   *wireSummary `json:"summary"   validate:"required"`
}

type wireClassificationCreated struct {
	ClassificationID *int64          `json:"classificationId" validate:"required,gt=0"`
	OwnerID          *int64          `json:"ownerId"          validate:"required,gt=0"`
	SessionID        *int64          `json:"sessionId"        validate:"required,gt=0"`
	Urgency          json.RawMessage `json:"urgency"          validate:"required"`
	RiskFactors      []string        `json:"riskFactors"`
	RedFlags         []string        `json:"redFlags"`
	Recommendations  *string         `json:"recommendations"`
	ChiefComplaint   *string         `json:"chiefComplaint"`
}

type wireCaseCreated struct {
	CaseID         *int64          `json:"caseId"    validate:"required,gt=0"`
	PatientID      *int64          `json:"patientId" validate:"required,gt=0"`
	SessionID      *int64          `json:"sessionId" validate:"required,gt=0"`
	Urgency        json.RawMessage `json:"urgency"   validate:"required"`
	Status         *string         `json:"status"    validate:"required"`
	ChiefComplaint *string         `json:"chiefComplaint"`
}

type wireCaseAssigned struct {
	CaseID           *int64 `json:"caseId"           validate:"required,gt=0"`
	PatientID        *int64 `json:"patientId"        validate:"required,gt=0"`
	AssignedDoctorID *int64 `json:"assignedDoctorId" validate:"required,gt=0"`
	PreviousDoctorID *int64 `json:"previousDoctorId"`
	AssignedByUserID *int64 `json:"assignedByUserId" validate:"required"`
}

type wireCaseStatusChanged struct {
	CaseID          *int64  `json:"caseId"          validate:"required,gt=0"`
	PatientID       *int64  `json:"patientId"       validate:"required,gt=0"`
	PreviousStatus  *string `json:"previousStatus"  validate:"required"`
	NewStatus       *string `json:"newStatus"       validate:"required"`
	ChangedByUserID *int64  `json:"changedByUserId" validate:"required"`
}

// DecodeSessionCompleted extracts a SessionCompleted payload.
func DecodeSessionCompleted(env Envelope) (SessionCompleted, error) {
	var w wireSessionCompleted
	if err := decodePayload(env, TypeSessionCompleted, &w); err != nil {
		return SessionCompleted{}, err
	}
	s := w.Summary
	return SessionCompleted{
		SessionID: *w.SessionID,
		OwnerID:   *w.OwnerID,
		Summary: SummaryPayload{
			ChiefComplaint:          *s.ChiefComplaint,
			HistoryOfPresentIllness: *s.HistoryOfPresentIllness,
			PastMedicalHistory:      deref(s.PastMedicalHistory),
			Medications:             orEmpty(s.Medications),
			Allergies:               orEmpty(s.Allergies),
			RedFlags:                orEmpty(s.RedFlags),
			AdditionalNotes:         deref(s.AdditionalNotes),
		},
	}, nil
}

// DecodeClassificationCreated extracts a ClassificationCreated payload,
// normalizing the urgency field.
func DecodeClassificationCreated(env Envelope) (ClassificationCreated, error) {
	var w wireClassificationCreated
	if err := decodePayload(env, TypeClassificationCreated, &w); err != nil {
		return ClassificationCreated{}, err
	}
	u, err := NormalizeUrgency(w.Urgency)
	if err != nil {
		return ClassificationCreated{}, err
	}
	return ClassificationCreated{
		ClassificationID: *w.ClassificationID,
		OwnerID:          *w.OwnerID,
		SessionID:        *w.SessionID,
		Urgency:          u,
		RiskFactors:      orEmpty(w.RiskFactors),
		RedFlags:         orEmpty(w.RedFlags),
		Recommendations:  deref(w.Recommendations),
		ChiefComplaint:   deref(w.ChiefComplaint),
	}, nil
}

// DecodeCaseCreated extracts a CaseCreated payload.
func DecodeCaseCreated(env Envelope) (CaseCreated, error) {
	var w wireCaseCreated
	if err := decodePayload(env, TypeCaseCreated, &w); err != nil {
		return CaseCreated{}, err
	}
	u, err := NormalizeUrgency(w.Urgency)
	if err != nil {
		return CaseCreated{}, err
	}
	st, err := parseStatus(*w.Status)
	if err != nil {
		return CaseCreated{}, err
	}
	return CaseCreated{
		CaseID:         *w.CaseID,
		PatientID:      *w.PatientID,
		SessionID:      *w.SessionID,
		Urgency:        u,
		Status:         st,
		ChiefComplaint: deref(w.ChiefComplaint),
	}, nil
}

// DecodeCaseAssigned extracts a CaseAssigned payload.
func DecodeCaseAssigned(env Envelope) (CaseAssigned, error) {
	var w wireCaseAssigned
	if err := decodePayload(env, TypeCaseAssigned, &w); err != nil {
		return CaseAssigned{}, err
	}
	return CaseAssigned{
		CaseID:           *w.CaseID,
		PatientID:        *w.PatientID,
		AssignedDoctorID: *w.AssignedDoctorID,
		PreviousDoctorID: w.PreviousDoctorID,
		AssignedByUserID: *w.AssignedByUserID,
	}, nil
}

// DecodeCaseStatusChanged extracts a CaseStatusChanged payload.
func DecodeCaseStatusChanged(env Envelope) (CaseStatusChanged, error) {
	var w wireCaseStatusChanged
	if err := decodePayload(env, TypeCaseStatusChanged, &w); err != nil {
		return CaseStatusChanged{}, err
	}
	prev, err := parseStatus(*w.PreviousStatus)
	if err != nil {
		return CaseStatusChanged{}, err
	}
	next, err := parseStatus(*w.NewStatus)
	if err != nil {
		return CaseStatusChanged{}, err
	}
	return CaseStatusChanged{
		CaseID:          *w.CaseID,
		PatientID:       *w.PatientID,
		PreviousStatus:  prev,
		NewStatus:       next,
		ChangedByUserID: *w.ChangedByUserID,
	}, nil
}

// NormalizeUrgency accepts the urgency as either a JSON string ("HIGH") or an
// enum object carrying a "name" or "value" member ({"name":"HIGH"}). Any
// other shape, or an unknown level, is malformed.
func NormalizeUrgency(raw json.RawMessage) (domain.Urgency, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: urgency is absent", ErrMalformed)
	}
	var name string
	switch raw[0] {
	case '"':
		if err := json.Unmarshal(raw, &name); err != nil {
			return "", fmt.Errorf("%w: urgency: %v", ErrMalformed, err)
		}
	case '{':
		var obj struct {
			Name  *string `json:"name"`
			Value *string `json:"value"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", fmt.Errorf("%w: urgency: %v", ErrMalformed, err)
		}
		switch {
		case obj.Name != nil:
			name = *obj.Name
		case obj.Value != nil:
			name = *obj.Value
		default:
			return "", fmt.Errorf("%w: urgency object has neither name nor value", ErrMalformed)
		}
	default:
		return "", fmt.Errorf("%w: urgency has unsupported shape %s", ErrMalformed, truncate(raw))
	}
	u, err := domain.ParseUrgency(name)
	if err != nil {
		return "", fmt.Errorf("%w: urgency %q", ErrMalformed, name)
	}
	return u, nil
}

func decodePayload(env Envelope, wantType string, into any) error {
	if env.EventType != wantType {
		return fmt.Errorf("%w: event type %q, want %q", ErrMalformed, env.EventType, wantType)
	}
	if len(env.Payload) == 0 || bytes.Equal(bytes.TrimSpace(env.Payload), []byte("null")) {
		return fmt.Errorf("%w: %s payload is empty", ErrMalformed, wantType)
	}
	if err := json.Unmarshal(env.Payload, into); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, wantType, err)
	}
	if err := validate.Struct(into); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, wantType, err)
	}
	return nil
}

func parseStatus(s string) (domain.CaseStatus, error) {
	st, err := domain.ParseCaseStatus(s)
	if err != nil {
		return "", fmt.Errorf("%w: case status %q", ErrMalformed, s)
	}
	return st, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(b []byte) string {
	const max = 32
	if len(b) > max {
		return string(b[:max]) + "…"
	}
	return string(b)
}
