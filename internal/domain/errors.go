// Package domain defines the aggregates of the intake pipeline (sessions,
// classifications, cases) together with their persistence mapping. State
// machines live on the aggregates themselves so every stage enforces the same
// transition rules regardless of transport.
package domain

import (
	"errors"
	"fmt"
)

// ErrValidation is the parent of every input validation failure raised by an
// aggregate operation. Callers match it with errors.Is.
var ErrValidation = errors.New("validation failed")

// ErrInvalidStateTransition is matched by every *InvalidStateTransitionError.
var ErrInvalidStateTransition = errors.New("invalid state transition")

// Validation errors.
var (
	ErrBlankMessage   = fmt.Errorf("%w: message text is blank", ErrValidation)
	ErrNilSummary     = fmt.Errorf("%w: summary is required", ErrValidation)
	ErrBlankComplaint = fmt.Errorf("%w: chief complaint is blank", ErrValidation)
	ErrInvalidOwner   = fmt.Errorf("%w: owner id must be positive", ErrValidation)
	ErrInvalidDoctor  = fmt.Errorf("%w: doctor id must be positive", ErrValidation)
	ErrUnknownStatus  = fmt.Errorf("%w: unknown status", ErrValidation)
	ErrUnknownUrgency = fmt.Errorf("%w: unknown urgency", ErrValidation)
)

// InvalidStateTransitionError names the attempted operation, the status the
// aggregate was in and, when known, the status it was asked to move to.
type InvalidStateTransitionError struct {
	Entity    string
	Operation string
	From      string
	To        string
}

func (e *InvalidStateTransitionError) Error() string {
	if e.To == "" {
		return fmt.Sprintf("%s: cannot %s while %s", e.Entity, e.Operation, e.From)
	}
	return fmt.Sprintf("%s: cannot %s from %s to %s", e.Entity, e.Operation, e.From, e.To)
}

// Is makes errors.Is(err, ErrInvalidStateTransition) succeed.
func (e *InvalidStateTransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}
