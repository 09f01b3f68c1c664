// Package middleware contains shared Gin middleware used by the HTTP layer of
// every pipeline stage.
//
// This file provides the correlation and logging chain:
//
//   - RequestID() reuses or generates X-Request-ID and stores it in the Gin context.
//   - Identity() reads the caller's numeric user id from X-User-ID.
//   - Logger() attaches a request-scoped zerolog.Logger derived from the
//     stage's root logger and emits one access log per request, at a level
//     chosen by outcome. Query strings are scrubbed before they are logged.
//   - Recovery() converts panics into the standard JSON 500 envelope.
//
// Recommended order: RequestID, Identity, Logger, Recovery.
package middleware

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// requestIDKey is the Gin context key under which the request ID is stored.
	requestIDKey = "requestID"
	// requestIDHeader is the HTTP header used to propagate the correlation ID.
	requestIDHeader = "X-Request-ID"
	// userIDKey holds the caller's user id (int64) once Identity ran.
	userIDKey = "userID"
	// UserIDHeader carries the authenticated user id set by the gateway.
	UserIDHeader = "X-User-ID"
	// loggerKey holds the request-scoped *zerolog.Logger.
	loggerKey = "logger"
	// maxQueryLogLength caps the number of bytes of the raw query string logged.
	maxQueryLogLength = 2048
)

// RequestID attaches (or propagates) a correlation identifier per request.
// An incoming X-Request-ID is reused; otherwise a new UUIDv4 is generated.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Identity stores the positive integer found in X-User-ID under the "userID"
// context key. Missing or malformed values leave the request anonymous;
// handlers that need a caller reject it themselves.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := strings.TrimSpace(c.GetHeader(UserIDHeader)); raw != "" {
			if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
				c.Set(userIDKey, id)
			}
		}
		c.Next()
	}
}

// UserIDFrom returns the caller id stored by Identity.
func UserIDFrom(c *gin.Context) (int64, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id > 0
}

// Logger writes a structured access log for each request and stores a
// request-scoped logger (request id, user id, route) in the Gin context.
//
// Level: error for 5xx or when handlers recorded gin errors, warn for 4xx,
// info otherwise.
func Logger(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid, _ := c.Get(requestIDKey)
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		lc := base.With().
			Str("request_id", asString(rid)).
			Str("method", c.Request.Method).
			Str("path", path)
		if uid, ok := UserIDFrom(c); ok {
			lc = lc.Int64("user_id", uid)
		}
		l := lc.Logger()
		c.Set(loggerKey, &l)

		c.Next()

		ev := l.With().
			Str("remote_ip", c.ClientIP()).
			Str("query", truncate(Redact(c.Request.URL.RawQuery), maxQueryLogLength)).
			Int64("bytes_in", c.Request.ContentLength).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Int("bytes_out", c.Writer.Size()).
			Logger()

		status := c.Writer.Status()
		switch {
		case len(c.Errors) > 0:
			ev.Error().Str("errors", c.Errors.String()).Msg("request")
		case status >= 500:
			ev.Error().Msg("request")
		case status >= 400:
			ev.Warn().Msg("request")
		default:
			ev.Info().Msg("request")
		}
	}
}

// Recovery intercepts panics, logs the stack with the request id and, when
// nothing has been written yet, responds with the JSON 500 envelope.
func Recovery(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				rid, _ := c.Get(requestIDKey)
				base.Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("request_id", asString(rid)).
					Msg("panic recovered")

				if !c.Writer.Written() {
					c.Header(requestIDHeader, asString(rid))
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
						"request_id": asString(rid),
						"code":       "internal_error",
						"message":    "internal server error",
					})
					return
				}
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger attached by Logger, or a
// disabled logger when the middleware is not installed.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := zerolog.Nop()
	return &l
}

// RequestIDFrom returns the correlation id of the request, if any.
func RequestIDFrom(c *gin.Context) string {
	if v, ok := c.Get(requestIDKey); ok {
		return asString(v)
	}
	return c.Writer.Header().Get(requestIDHeader)
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// truncate caps s at max bytes and appends an ellipsis. max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
