// Package services implements the application logic of the three pipeline
// stages. This file centralizes service-level error values so handlers and
// consumers can translate them consistently.
//
// Validation and state-transition errors come from the domain package and
// pass through unchanged; callers match them with errors.Is against
// domain.ErrValidation and domain.ErrInvalidStateTransition.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/clinical-intake/internal/domain"
)

var (
	// ErrSessionNotFound indicates that the session does not exist or is not
	// owned by the caller.
	ErrSessionNotFound = errors.New("session not found")

	// ErrClassificationNotFound indicates that no classification matches.
	ErrClassificationNotFound = errors.New("classification not found")

	// ErrCaseNotFound indicates that no case matches.
	ErrCaseNotFound = errors.New("case not found")

	// ErrConsentRequired is returned when the patient has not consented to AI
	// processing, which gates starting an intake session.
	ErrConsentRequired = errors.New("patient has not consented to AI processing")

	// ErrMessageTooLong is returned when patient text exceeds the configured limit.
	ErrMessageTooLong = fmt.Errorf("%w: message too long", domain.ErrValidation)

	// ErrBlankNote is returned when a case note has no text.
	ErrBlankNote = fmt.Errorf("%w: note text is blank", domain.ErrValidation)
)
