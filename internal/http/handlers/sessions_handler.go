// Session HTTP handlers (sessions stage).
//
//   - POST /sessions                 (start, consent gated)
//   - GET  /sessions                 (caller's sessions, paginated, ?status=, weak ETag)
//   - GET  /sessions/{id}            (session with its message log)
//   - POST /sessions/{id}/messages   (patient turn + assistant reply)
//   - POST /sessions/{id}/complete   (attach or generate summary; emits SessionCompleted)
//   - POST /sessions/{id}/cancel
//   - GET  /sessions/{id}/summary
package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/clinical-intake/internal/domain"
)

// StartSessionRequest is the optional body of POST /sessions.
type StartSessionRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}

// PostMessageRequest is the body of POST /sessions/{id}/messages.
type PostMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// CompleteSessionRequest is the optional body of POST /sessions/{id}/complete.
// Without a summary the stage's summarizer derives one from the transcript.
type CompleteSessionRequest struct {
	Summary *domain.Summary `json:"summary"`
}

// CancelSessionRequest is the optional body of POST /sessions/{id}/cancel.
type CancelSessionRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}

// bindOptional binds a JSON body that may be absent altogether.
func bindOptional(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// StartSession godoc
// @ID          startSession
// @Summary     Start a session
// @Description Starts an intake session for the caller. Requires AI-processing consent.
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  int  true  "Caller id"
// @Param       body       body    handlers.StartSessionRequest  false  "Optional initial reason"
// @Success     201  {object} domain.Session
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     403  {object} handlers.ErrorResponse "Consent required"
// @Router      /sessions [post]
func (h *Handlers) StartSession(c *gin.Context) {
	uid, okUser := caller(c)
	if !okUser {
		return
	}
	var req StartSessionRequest
	if !bindOptional(c, &req) {
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	s, err := h.Sessions.Start(ctx, uid, req.Reason)
	if err != nil {
		failErr(c, err)
		return
	}
	c.Header("Location", c.FullPath()+"/"+formatID(s.ID))
	ok(c, http.StatusCreated, s)
}

// ListSessions godoc
// @ID          listSessions
// @Summary     List own sessions
// @Description Returns a page of the caller's sessions, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Sessions
// @Produce     json
// @Param       X-User-ID  header  int  true  "Caller id"
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       status     query   string  false  "CREATED, IN_PROGRESS, COMPLETED or CANCELLED"
// @Param       page       query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.SessionPage
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Router      /sessions [get]
func (h *Handlers) ListSessions(c *gin.Context) {
	uid, okUser := caller(c)
	if !okUser {
		return
	}
	var status domain.SessionStatus
	if raw := c.Query("status"); raw != "" {
		st, err := domain.ParseSessionStatus(raw)
		if err != nil {
			failErr(c, err)
			return
		}
		status = st
	}
	page, pageSize := clampPagination(c)
	ctx, cancel := h.ctx(c)
	defer cancel()

	// ETag pre-check (best effort).
	if ls, okStats := h.Sessions.(sessionListStats); okStats {
		if st, err := ls.ListStats(ctx, uid, status); err == nil {
			scope := fmt.Sprintf("sessions:%d:%s:%d:%d", uid, status, page, pageSize)
			if notModified(c, scope, st) {
				return
			}
		}
	}

	items, total, err := h.Sessions.ListByOwner(ctx, uid, status, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, newPage(items, total, page, pageSize))
}

// GetSession godoc
// @ID          getSession
// @Summary     Get a session with its message log
// @Tags        Sessions
// @Produce     json
// @Param       X-User-ID  header  int  true  "Caller id"
// @Param       id  path  int  true  "Session id"
// @Success     200  {object} domain.Session
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Router      /sessions/{id} [get]
func (h *Handlers) GetSession(c *gin.Context) {
	uid, okUser := caller(c)
	if !okUser {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	s, err := h.Sessions.Get(ctx, uid, id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, s)
}

// PostMessage godoc
// @ID          postMessage
// @Summary     Post a patient message
// @Description Appends the patient's message and the assistant's reply (or a fallback system message).
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  int  true  "Caller id"
// @Param       id    path  int                          true  "Session id"
// @Param       body  body  handlers.PostMessageRequest  true  "Message"
// @Success     201  {object} domain.Session
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Failure     409  {object} handlers.ErrorResponse "Session is no longer active"
// @Router      /sessions/{id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	uid, okUser := caller(c)
	if !okUser {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text required")
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	s, err := h.Sessions.PostMessage(ctx, uid, id, req.Text)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, s)
}

// CompleteSession godoc
// @ID          completeSession
// @Summary     Complete a session
// @Description Completes the session with the given summary, or one derived from the transcript, and emits SessionCompleted.
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  int  true  "Caller id"
// @Param       id    path  int                              true   "Session id"
// @Param       body  body  handlers.CompleteSessionRequest  false  "Optional summary"
// @Success     200  {object} domain.Session
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     409  {object} handlers.ErrorResponse "Session is no longer active"
// @Router      /sessions/{id}/complete [post]
func (h *Handlers) CompleteSession(c *gin.Context) {
	uid, okUser := caller(c)
	if !okUser {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	var req CompleteSessionRequest
	if !bindOptional(c, &req) {
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	s, err := h.Sessions.Complete(ctx, uid, id, req.Summary)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, s)
}

// CancelSession godoc
// @ID          cancelSession
// @Summary     Cancel a session
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  int  true  "Caller id"
// @Param       id    path  int                            true   "Session id"
// @Param       body  body  handlers.CancelSessionRequest  false  "Optional reason"
// @Success     200  {object} domain.Session
// @Failure     409  {object} handlers.ErrorResponse "Session is no longer active"
// @Router      /sessions/{id}/cancel [post]
func (h *Handlers) CancelSession(c *gin.Context) {
	uid, okUser := caller(c)
	if !okUser {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	var req CancelSessionRequest
	if !bindOptional(c, &req) {
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	s, err := h.Sessions.Cancel(ctx, uid, id, req.Reason)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, s)
}

// GetSummary godoc
// @ID          getSummary
// @Summary     Get the clinical summary of a completed session
// @Description Sessions that are not completed have no summary and answer 404.
// @Tags        Sessions
// @Produce     json
// @Param       X-User-ID  header  int  true  "Caller id"
// @Param       id  path  int  true  "Session id"
// @Success     200  {object} domain.Summary
// @Failure     404  {object} handlers.ErrorResponse "Not found or not completed"
// @Router      /sessions/{id}/summary [get]
func (h *Handlers) GetSummary(c *gin.Context) {
	uid, okUser := caller(c)
	if !okUser {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	s, err := h.Sessions.Get(ctx, uid, id)
	if err != nil {
		failErr(c, err)
		return
	}
	if s.Summary == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "summary not available")
		return
	}
	ok(c, http.StatusOK, s.Summary)
}
