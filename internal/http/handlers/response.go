// Package handlers provides the HTTP handlers of the session, triage and
// casedesk stages.
//
// This file defines the response helpers shared by every endpoint: the
// ErrorResponse envelope, fail/Fail for explicit errors and failErr, which
// translates service and domain errors into status codes:
//
//	domain.ErrValidation             400 bad_request
//	services.ErrConsentRequired      403 consent_required
//	services.Err*NotFound            404 not_found
//	domain.ErrInvalidStateTransition 409 invalid_transition
//	anything else                    500 internal_error
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/clinical-intake/internal/domain"
	"github.com/tbourn/clinical-intake/internal/http/middleware"
	"github.com/tbourn/clinical-intake/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors.
	RequestID string `json:"request_id,omitempty"`
	// Stable, machine-readable code (see errors.go).
	Code string `json:"code"`
	// Human-readable message.
	Message string `json:"message"`
}

// fail aborts the request with the error envelope. Server errors are logged
// with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: middleware.RequestIDFrom(c),
		Code:      code,
		Message:   msg,
	})
}

// Fail is the exported variant of fail for the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr maps err onto the envelope. Internal errors never leak their text.
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrConsentRequired):
		fail(c, http.StatusForbidden, ErrCodeConsentRequired, err.Error())
	case errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, services.ErrClassificationNotFound),
		errors.Is(err, services.ErrCaseNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidStateTransition):
		fail(c, http.StatusConflict, ErrCodeInvalidTransition, err.Error())
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
