package domain

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Urgency is the triage level assigned to a completed session.
type Urgency string

const (
	UrgencyEmergency Urgency = "EMERGENCY"
	UrgencyHigh      Urgency = "HIGH"
	UrgencyModerate  Urgency = "MODERATE"
	UrgencyLow       Urgency = "LOW"
)

// Urgencies lists every level from most to least severe.
var Urgencies = []Urgency{UrgencyEmergency, UrgencyHigh, UrgencyModerate, UrgencyLow}

// Severity ranks the level; higher is more severe. Unknown levels rank 0.
func (u Urgency) Severity() int {
	switch u {
	case UrgencyEmergency:
		return 4
	case UrgencyHigh:
		return 3
	case UrgencyModerate:
		return 2
	case UrgencyLow:
		return 1
	}
	return 0
}

// Valid reports whether u is one of the known levels.
func (u Urgency) Valid() bool { return u.Severity() > 0 }

// ParseUrgency accepts a level name in any letter case.
func ParseUrgency(s string) (Urgency, error) {
	u := Urgency(strings.ToUpper(strings.TrimSpace(s)))
	if !u.Valid() {
		return "", ErrUnknownUrgency
	}
	return u, nil
}

// Classification is the urgency assessment derived from one session summary.
// SessionID is unique so redelivered completion events cannot produce a second
// record. The assessment is immutable once written; AnnouncedAt is stamped
// once ClassificationCreated has been published for it.
type Classification struct {
	ID              int64                       `json:"id"               gorm:"primaryKey;autoIncrement"`
	SessionID       int64                       `json:"session_id"       gorm:"not null;uniqueIndex:ux_classification_session"`
	OwnerID         int64                       `json:"owner_id"         gorm:"not null;index"`
	Urgency         Urgency                     `json:"urgency"          gorm:"type:varchar(16);not null;index"`
	MatchedRule     string                      `json:"matched_rule"     gorm:"type:varchar(64)"`
	ChiefComplaint  string                      `json:"chief_complaint"  gorm:"type:text"`
	RiskFactors     datatypes.JSONSlice[string] `json:"risk_factors"`
	RedFlags        datatypes.JSONSlice[string] `json:"red_flags"`
	Recommendations string                      `json:"recommendations"  gorm:"type:text"`
	CreatedAt       time.Time                   `json:"created_at"`
	AnnouncedAt     *time.Time                  `json:"-"`
}

// TableName returns the database table name for Classification.
func (Classification) TableName() string { return "classifications" }
