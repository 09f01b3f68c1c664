// Package handlers defines the HTTP-layer error codes used across all stages.
//
// Codes are lowercase snake_case and stable; clients branch on them rather
// than on messages. Every error response carries an HTTP status and one of
// these codes inside the ErrorResponse envelope:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "invalid_transition",
//	  "message": "case: cannot assign while CLOSED"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeInvalidTransition = "invalid_transition"
	ErrCodeConsentRequired   = "consent_required"
)
