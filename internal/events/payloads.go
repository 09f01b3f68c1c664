package events

import (
	"strconv"

	"github.com/tbourn/clinical-intake/internal/domain"
)

// SummaryPayload is the clinical summary carried by SessionCompleted.
type SummaryPayload struct {
	ChiefComplaint          string   `json:"chiefComplaint"`
	HistoryOfPresentIllness string   `json:"historyOfPresentIllness"`
	PastMedicalHistory      string   `json:"pastMedicalHistory"`
	Medications             []string `json:"medications"`
	Allergies               []string `json:"allergies"`
	RedFlags                []string `json:"redFlags"`
	AdditionalNotes         string   `json:"additionalNotes"`
}

// SummaryFromDomain copies a persisted summary into its wire form.
func SummaryFromDomain(s *domain.Summary) SummaryPayload {
	return SummaryPayload{
		ChiefComplaint:          s.ChiefComplaint,
		HistoryOfPresentIllness: s.HistoryOfPresentIllness,
		PastMedicalHistory:      s.PastMedicalHistory,
		Medications:             orEmpty(s.Medications),
		Allergies:               orEmpty(s.Allergies),
		RedFlags:                orEmpty(s.RedFlags),
		AdditionalNotes:         s.AdditionalNotes,
	}
}

// ToDomain builds an unsaved domain summary.
func (p SummaryPayload) ToDomain() *domain.Summary {
	return &domain.Summary{
		ChiefComplaint:          p.ChiefComplaint,
		HistoryOfPresentIllness: p.HistoryOfPresentIllness,
		PastMedicalHistory:      p.PastMedicalHistory,
		Medications:             orEmpty(p.Medications),
		Allergies:               orEmpty(p.Allergies),
		RedFlags:                orEmpty(p.RedFlags),
		AdditionalNotes:         p.AdditionalNotes,
	}
}

// SessionCompleted is published once a session reaches COMPLETED.
type SessionCompleted struct {
	SessionID int64          `json:"sessionId"`
	OwnerID   int64          `json:"ownerId"`
	Summary   SummaryPayload `json:"summary"`
}

func (SessionCompleted) EventType() string { return TypeSessionCompleted }
func (e SessionCompleted) Key() string     { return strconv.FormatInt(e.SessionID, 10) }

// ClassificationCreated is published when a classification record is first
// written.
type ClassificationCreated struct {
	ClassificationID int64          `json:"classificationId"`
	OwnerID          int64          `json:"ownerId"`
	SessionID        int64          `json:"sessionId"`
	Urgency          domain.Urgency `json:"urgency"`
	RiskFactors      []string       `json:"riskFactors"`
	RedFlags         []string       `json:"redFlags"`
	Recommendations  string         `json:"recommendations"`
	ChiefComplaint   string         `json:"chiefComplaint"`
}

func (ClassificationCreated) EventType() string { return TypeClassificationCreated }
func (e ClassificationCreated) Key() string     { return strconv.FormatInt(e.SessionID, 10) }

// CaseCreated is published when a case is opened.
type CaseCreated struct {
	CaseID         int64             `json:"caseId"`
	PatientID      int64             `json:"patientId"`
	SessionID      int64             `json:"sessionId"`
	Urgency        domain.Urgency    `json:"urgency"`
	Status         domain.CaseStatus `json:"status"`
	ChiefComplaint string            `json:"chiefComplaint"`
}

func (CaseCreated) EventType() string { return TypeCaseCreated }
func (e CaseCreated) Key() string     { return strconv.FormatInt(e.CaseID, 10) }

// CaseAssigned is published on every successful assignment.
type CaseAssigned struct {
	CaseID           int64  `json:"caseId"`
	PatientID        int64  `json:"patientId"`
	AssignedDoctorID int64  `json:"assignedDoctorId"`
	PreviousDoctorID *int64 `json:"previousDoctorId,omitempty"`
	AssignedByUserID int64  `json:"assignedByUserId"`
}

func (CaseAssigned) EventType() string { return TypeCaseAssigned }
func (e CaseAssigned) Key() string     { return strconv.FormatInt(e.CaseID, 10) }

// CaseStatusChanged is published on every successful status update.
type CaseStatusChanged struct {
	CaseID          int64             `json:"caseId"`
	PatientID       int64             `json:"patientId"`
	PreviousStatus  domain.CaseStatus `json:"previousStatus"`
	NewStatus       domain.CaseStatus `json:"newStatus"`
	ChangedByUserID int64             `json:"changedByUserId"`
}

func (CaseStatusChanged) EventType() string { return TypeCaseStatusChanged }
func (e CaseStatusChanged) Key() string     { return strconv.FormatInt(e.CaseID, 10) }

func orEmpty(in []string) []string {
	if in == nil {
		return []string{}
	}
	return append([]string{}, in...)
}
