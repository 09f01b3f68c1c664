package domain

import (
	"strings"
	"time"
)

// SessionStatus is the lifecycle state of an intake session.
type SessionStatus string

const (
	SessionCreated    SessionStatus = "CREATED"
	SessionInProgress SessionStatus = "IN_PROGRESS"
	SessionCompleted  SessionStatus = "COMPLETED"
	SessionCancelled  SessionStatus = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionCancelled
}

// ParseSessionStatus accepts a status name in any letter case.
func ParseSessionStatus(s string) (SessionStatus, error) {
	switch st := SessionStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case SessionCreated, SessionInProgress, SessionCompleted, SessionCancelled:
		return st, nil
	}
	return "", ErrUnknownStatus
}

// Sender identifies who authored a session message.
type Sender string

const (
	SenderPatient   Sender = "PATIENT"
	SenderAssistant Sender = "ASSISTANT"
	SenderSystem    Sender = "SYSTEM"
)

// System messages appended by the session lifecycle.
const (
	MsgSessionStarted   = "Sesión de anamnesis iniciada. Por favor, cuénteme el motivo de su consulta."
	MsgSessionCompleted = "Anamnesis completada. Resumen generado exitosamente."
	MsgSessionCancelled = "Sesión cancelada"
)

// Session is one conversational clinical intake for a single patient.
//
// Messages form an append-only log ordered by Seq. Summary is non-nil exactly
// when Status is COMPLETED.
type Session struct {
	ID            int64            `json:"id"             gorm:"primaryKey;autoIncrement"`
	OwnerID       int64            `json:"owner_id"       gorm:"not null;index:idx_session_owner"`
	Status        SessionStatus    `json:"status"         gorm:"type:varchar(16);not null;index"`
	InitialReason string           `json:"initial_reason" gorm:"type:text"`
	Messages      []SessionMessage `json:"messages,omitempty" gorm:"foreignKey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Summary       *Summary         `json:"summary,omitempty"  gorm:"foreignKey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty" gorm:"index"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }

// SessionMessage is a single immutable entry of a session's message log.
type SessionMessage struct {
	ID        int64     `json:"id"         gorm:"primaryKey;autoIncrement"`
	SessionID int64     `json:"session_id" gorm:"not null;uniqueIndex:ux_session_msg_seq,priority:1"`
	Seq       int       `json:"seq"        gorm:"not null;uniqueIndex:ux_session_msg_seq,priority:2"`
	Sender    Sender    `json:"sender"     gorm:"type:varchar(16);not null"`
	Text      string    `json:"text"       gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for SessionMessage.
func (SessionMessage) TableName() string { return "session_messages" }

// NewSession starts an intake for ownerID. The session begins in CREATED with
// the welcome system message.
func NewSession(ownerID int64, initialReason string, now time.Time) (*Session, error) {
	if ownerID <= 0 {
		return nil, ErrInvalidOwner
	}
	s := &Session{
		OwnerID:       ownerID,
		Status:        SessionCreated,
		InitialReason: strings.TrimSpace(initialReason),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.append(SenderSystem, MsgSessionStarted, now)
	return s, nil
}

// AddPatientMessage appends patient text and moves a CREATED session to
// IN_PROGRESS.
func (s *Session) AddPatientMessage(text string, now time.Time) (*SessionMessage, error) {
	if err := s.requireActive("add patient message"); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrBlankMessage
	}
	if s.Status == SessionCreated {
		s.Status = SessionInProgress
	}
	return s.append(SenderPatient, text, now), nil
}

// AddAssistantMessage appends an assistant reply.
func (s *Session) AddAssistantMessage(text string, now time.Time) (*SessionMessage, error) {
	return s.addNonPatient(SenderAssistant, "add assistant message", text, now)
}

// AddSystemMessage appends an informational system message.
func (s *Session) AddSystemMessage(text string, now time.Time) (*SessionMessage, error) {
	return s.addNonPatient(SenderSystem, "add system message", text, now)
}

func (s *Session) addNonPatient(sender Sender, op, text string, now time.Time) (*SessionMessage, error) {
	if err := s.requireActive(op); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrBlankMessage
	}
	return s.append(sender, text, now), nil
}

// Complete attaches the summary, moves the session to COMPLETED and records the
// closing system message.
func (s *Session) Complete(summary *Summary, now time.Time) error {
	if err := s.requireActive("complete"); err != nil {
		withTarget(err, SessionCompleted)
		return err
	}
	if summary == nil {
		return ErrNilSummary
	}
	summary.SessionID = s.ID
	s.Summary = summary
	s.Status = SessionCompleted
	t := now
	s.CompletedAt = &t
	s.append(SenderSystem, MsgSessionCompleted, now)
	return nil
}

// Cancel moves the session to CANCELLED, recording the optional reason in the
// closing system message.
func (s *Session) Cancel(reason string, now time.Time) error {
	if err := s.requireActive("cancel"); err != nil {
		withTarget(err, SessionCancelled)
		return err
	}
	s.Status = SessionCancelled
	msg := MsgSessionCancelled
	if r := strings.TrimSpace(reason); r != "" {
		msg += ": " + r
	}
	s.append(SenderSystem, msg, now)
	return nil
}

// MessageLog returns a copy of the ordered message log.
func (s *Session) MessageLog() []SessionMessage {
	out := make([]SessionMessage, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// Transcript renders the conversation as speaker-prefixed lines.
func (s *Session) Transcript() string {
	var b strings.Builder
	for _, m := range s.Messages {
		switch m.Sender {
		case SenderPatient:
			b.WriteString("Paciente: ")
		case SenderAssistant:
			b.WriteString("Asistente: ")
		default:
			b.WriteString("Sistema: ")
		}
		b.WriteString(m.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

func (s *Session) requireActive(op string) error {
	if s.Status.Terminal() {
		return &InvalidStateTransitionError{Entity: "session", Operation: op, From: string(s.Status)}
	}
	return nil
}

func withTarget(err error, to SessionStatus) {
	if te, ok := err.(*InvalidStateTransitionError); ok {
		te.To = string(to)
	}
}

func (s *Session) append(sender Sender, text string, now time.Time) *SessionMessage {
	s.Messages = append(s.Messages, SessionMessage{
		SessionID: s.ID,
		Seq:       len(s.Messages) + 1,
		Sender:    sender,
		Text:      text,
		CreatedAt: now,
	})
	s.UpdatedAt = now
	return &s.Messages[len(s.Messages)-1]
}
