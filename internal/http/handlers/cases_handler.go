// Case HTTP handlers (casedesk stage).
//
//   - GET   /cases?doctor_id=&patient_id=&status=&urgency=   (most urgent first, weak ETag)
//   - GET   /cases/{id}                                       (case with notes)
//   - PATCH /cases/{id}/assign    (emits CaseAssigned)
//   - PATCH /cases/{id}/status    (emits CaseStatusChanged)
//   - POST  /cases/{id}/notes
//
// Mutations are attributed to the caller from X-User-ID.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/clinical-intake/internal/domain"
	"github.com/tbourn/clinical-intake/internal/repo"
)

// AssignCaseRequest is the body of PATCH /cases/{id}/assign.
type AssignCaseRequest struct {
	DoctorID int64 `json:"doctor_id" binding:"required"`
}

// UpdateCaseStatusRequest is the body of PATCH /cases/{id}/status.
type UpdateCaseStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// AddCaseNoteRequest is the body of POST /cases/{id}/notes.
type AddCaseNoteRequest struct {
	Text string `json:"text" binding:"required,max=4000"`
}

// ListCases godoc
// @ID          listCases
// @Summary     List cases
// @Description Returns a page of cases, most urgent first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Cases
// @Produce     json
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       doctor_id   query  int     false  "Assigned doctor"
// @Param       patient_id  query  int     false  "Patient"
// @Param       status      query  string  false  "OPEN, ASSIGNED, IN_PROGRESS, RESOLVED or CLOSED"
// @Param       urgency     query  string  false  "EMERGENCY, HIGH, MODERATE or LOW"
// @Param       page        query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size   query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.CasePage
// @Success     304  {string} string "Not Modified"
// @Router      /cases [get]
func (h *Handlers) ListCases(c *gin.Context) {
	var f repo.CaseFilter
	var okQ bool
	if f.DoctorID, okQ = queryID(c, "doctor_id"); !okQ {
		return
	}
	if f.PatientID, okQ = queryID(c, "patient_id"); !okQ {
		return
	}
	if raw := c.Query("status"); raw != "" {
		st, err := domain.ParseCaseStatus(raw)
		if err != nil {
			failErr(c, err)
			return
		}
		f.Status = st
	}
	if raw := c.Query("urgency"); raw != "" {
		u, err := domain.ParseUrgency(raw)
		if err != nil {
			failErr(c, err)
			return
		}
		f.Urgency = u
	}
	page, pageSize := clampPagination(c)
	ctx, cancel := h.ctx(c)
	defer cancel()

	// ETag pre-check (best effort).
	if ls, okStats := h.Cases.(caseListStats); okStats {
		if st, err := ls.ListStats(ctx, f); err == nil {
			scope := fmt.Sprintf("cases:%d:%d:%s:%s:%d:%d", f.DoctorID, f.PatientID, f.Status, f.Urgency, page, pageSize)
			if notModified(c, scope, st) {
				return
			}
		}
	}

	items, total, err := h.Cases.List(ctx, f, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, newPage(items, total, page, pageSize))
}

// GetCase godoc
// @ID          getCase
// @Summary     Get a case with its notes
// @Tags        Cases
// @Produce     json
// @Param       id  path  int  true  "Case id"
// @Success     200  {object} domain.Case
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Router      /cases/{id} [get]
func (h *Handlers) GetCase(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	cs, err := h.Cases.Get(ctx, id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cs)
}

// AssignCase godoc
// @ID          assignCase
// @Summary     Assign a doctor
// @Tags        Cases
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  int  true  "Caller id"
// @Param       id    path  int                         true  "Case id"
// @Param       body  body  handlers.AssignCaseRequest  true  "Doctor"
// @Success     200  {object} domain.Case
// @Failure     409  {object} handlers.ErrorResponse "Case is closed"
// @Router      /cases/{id}/assign [patch]
func (h *Handlers) AssignCase(c *gin.Context) {
	uid, okUser := caller(c)
	if !okUser {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	var req AssignCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "doctor_id required")
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	cs, err := h.Cases.Assign(ctx, uid, id, req.DoctorID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cs)
}

// UpdateCaseStatus godoc
// @ID          updateCaseStatus
// @Summary     Change case status
// @Tags        Cases
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  int  true  "Caller id"
// @Param       id    path  int                               true  "Case id"
// @Param       body  body  handlers.UpdateCaseStatusRequest  true  "Target status"
// @Success     200  {object} domain.Case
// @Failure     409  {object} handlers.ErrorResponse "Transition not allowed"
// @Router      /cases/{id}/status [patch]
func (h *Handlers) UpdateCaseStatus(c *gin.Context) {
	uid, okUser := caller(c)
	if !okUser {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	var req UpdateCaseStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}
	st, err := domain.ParseCaseStatus(req.Status)
	if err != nil {
		failErr(c, err)
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	cs, err := h.Cases.UpdateStatus(ctx, uid, id, st)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cs)
}

// AddCaseNote godoc
// @ID          addCaseNote
// @Summary     Add a note
// @Description Notes are accepted on closed cases too.
// @Tags        Cases
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  int  true  "Caller id"
// @Param       id    path  int                          true  "Case id"
// @Param       body  body  handlers.AddCaseNoteRequest  true  "Note"
// @Success     201  {object} domain.CaseNote
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Router      /cases/{id}/notes [post]
func (h *Handlers) AddCaseNote(c *gin.Context) {
	uid, okUser := caller(c)
	if !okUser {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	var req AddCaseNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text required (max 4000 chars)")
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	n, err := h.Cases.AddNote(ctx, uid, id, req.Text)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, n)
}
