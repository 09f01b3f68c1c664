package domain

import (
	"strings"

	"gorm.io/datatypes"
)

// Summary is the structured clinical extract attached to a completed session.
type Summary struct {
	ID                      int64                       `json:"-"                          gorm:"primaryKey;autoIncrement"`
	SessionID               int64                       `json:"-"                          gorm:"not null;uniqueIndex"`
	ChiefComplaint          string                      `json:"chiefComplaint"             gorm:"type:text;not null"`
	HistoryOfPresentIllness string                      `json:"historyOfPresentIllness"    gorm:"type:text;not null"`
	PastMedicalHistory      string                      `json:"pastMedicalHistory"         gorm:"type:text"`
	Medications             datatypes.JSONSlice[string] `json:"medications"`
	Allergies               datatypes.JSONSlice[string] `json:"allergies"`
	RedFlags                datatypes.JSONSlice[string] `json:"redFlags"`
	AdditionalNotes         string                      `json:"additionalNotes"            gorm:"type:text"`
}

// TableName returns the database table name for Summary.
func (Summary) TableName() string { return "session_summaries" }

// Validate checks the fields a downstream classifier relies on.
func (s *Summary) Validate() error {
	if s == nil {
		return ErrNilSummary
	}
	if strings.TrimSpace(s.ChiefComplaint) == "" {
		return ErrBlankComplaint
	}
	return nil
}
