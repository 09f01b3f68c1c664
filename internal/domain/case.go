package domain

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// CaseStatus is the clinician-facing lifecycle state of a case.
type CaseStatus string

const (
	CaseOpen       CaseStatus = "OPEN"
	CaseAssigned   CaseStatus = "ASSIGNED"
	CaseInProgress CaseStatus = "IN_PROGRESS"
	CaseResolved   CaseStatus = "RESOLVED"
	CaseClosed     CaseStatus = "CLOSED"
)

// caseTransitions lists the statuses reachable from each status. CLOSED is
// reachable from every non-terminal status.
var caseTransitions = map[CaseStatus][]CaseStatus{
	CaseOpen:       {CaseAssigned, CaseClosed},
	CaseAssigned:   {CaseInProgress, CaseClosed},
	CaseInProgress: {CaseResolved, CaseClosed},
	CaseResolved:   {CaseClosed},
	CaseClosed:     nil,
}

// ParseCaseStatus accepts a status name in any letter case.
func ParseCaseStatus(s string) (CaseStatus, error) {
	st := CaseStatus(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := caseTransitions[st]; !ok {
		return "", ErrUnknownStatus
	}
	return st, nil
}

// CanTransition reports whether the table allows from → to.
func CanTransition(from, to CaseStatus) bool {
	for _, s := range caseTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Case is the follow-up record created exactly once per classified session.
type Case struct {
	ID                int64                       `json:"id"                 gorm:"primaryKey;autoIncrement"`
	PatientID         int64                       `json:"patient_id"         gorm:"not null;index"`
	ClassificationID  int64                       `json:"classification_id"  gorm:"not null;index"`
	SessionID         int64                       `json:"session_id"         gorm:"not null;uniqueIndex:ux_case_session"`
	Urgency           Urgency                     `json:"urgency"            gorm:"type:varchar(16);not null;index"`
	ChiefComplaint    string                      `json:"chief_complaint"    gorm:"type:text"`
	RedFlags          datatypes.JSONSlice[string] `json:"red_flags"`
	RecommendedAction string                      `json:"recommended_action" gorm:"type:text"`
	Status            CaseStatus                  `json:"status"             gorm:"type:varchar(16);not null;index"`
	AssignedDoctorID  *int64                      `json:"assigned_doctor_id,omitempty" gorm:"index"`
	Notes             []CaseNote                  `json:"notes,omitempty"    gorm:"foreignKey:CaseID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	CreatedAt         time.Time                   `json:"created_at"`
	UpdatedAt         time.Time                   `json:"updated_at"`
	ClosedAt          *time.Time                  `json:"closed_at,omitempty"`
	AnnouncedAt       *time.Time                  `json:"-"` // CaseCreated published
}

// TableName returns the database table name for Case.
func (Case) TableName() string { return "cases" }

// CaseNote is an append-only annotation on a case.
type CaseNote struct {
	ID        int64     `json:"id"         gorm:"primaryKey;autoIncrement"`
	CaseID    int64     `json:"case_id"    gorm:"not null;index"`
	AuthorID  int64     `json:"author_id"  gorm:"not null"`
	Text      string    `json:"text"       gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for CaseNote.
func (CaseNote) TableName() string { return "case_notes" }

// NewCase opens a case from a classification snapshot.
func NewCase(patientID, classificationID, sessionID int64, urgency Urgency, chiefComplaint string, redFlags []string, recommended string, now time.Time) (*Case, error) {
	if patientID <= 0 {
		return nil, ErrInvalidOwner
	}
	if !urgency.Valid() {
		return nil, ErrUnknownUrgency
	}
	return &Case{
		PatientID:         patientID,
		ClassificationID:  classificationID,
		SessionID:         sessionID,
		Urgency:           urgency,
		ChiefComplaint:    chiefComplaint,
		RedFlags:          append(datatypes.JSONSlice[string]{}, redFlags...),
		RecommendedAction: recommended,
		Status:            CaseOpen,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// AssignTo sets the responsible clinician. An OPEN case moves to ASSIGNED; a
// case already past OPEN keeps its status and only changes assignee. It
// returns the previous assignee, if any.
func (c *Case) AssignTo(doctorID int64, now time.Time) (*int64, error) {
	if c.Status == CaseClosed {
		return nil, &InvalidStateTransitionError{Entity: "case", Operation: "assign", From: string(c.Status), To: string(CaseAssigned)}
	}
	if doctorID <= 0 {
		return nil, ErrInvalidDoctor
	}
	prev := c.AssignedDoctorID
	id := doctorID
	c.AssignedDoctorID = &id
	if c.Status == CaseOpen {
		c.Status = CaseAssigned
	}
	c.UpdatedAt = now
	return prev, nil
}

// UpdateStatus applies the transition table and stamps ClosedAt on CLOSED. It
// returns the status the case was in before the update.
func (c *Case) UpdateStatus(to CaseStatus, now time.Time) (CaseStatus, error) {
	if _, ok := caseTransitions[to]; !ok {
		return "", ErrUnknownStatus
	}
	from := c.Status
	if !CanTransition(from, to) {
		return "", &InvalidStateTransitionError{Entity: "case", Operation: "update status", From: string(from), To: string(to)}
	}
	c.Status = to
	if to == CaseClosed && c.ClosedAt == nil {
		t := now
		c.ClosedAt = &t
	}
	c.UpdatedAt = now
	return from, nil
}

// AddNote appends a note regardless of status. Blank text is ignored and
// reported with a nil note.
func (c *Case) AddNote(authorID int64, text string, now time.Time) *CaseNote {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	c.Notes = append(c.Notes, CaseNote{CaseID: c.ID, AuthorID: authorID, Text: text, CreatedAt: now})
	return &c.Notes[len(c.Notes)-1]
}

// NoteLog returns a copy of the notes in insertion order.
func (c *Case) NoteLog() []CaseNote {
	out := make([]CaseNote, len(c.Notes))
	copy(out, c.Notes)
	return out
}
