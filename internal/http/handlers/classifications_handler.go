// Classification HTTP handlers (triage stage, read only).
//
//   - GET /classifications/{id}
//   - GET /classifications/session/{sessionId}
//   - GET /classifications?owner_id=&urgency=   (newest first, paginated)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/clinical-intake/internal/domain"
	"github.com/tbourn/clinical-intake/internal/repo"
)

// GetClassification godoc
// @ID          getClassification
// @Summary     Get a classification
// @Tags        Classifications
// @Produce     json
// @Param       id  path  int  true  "Classification id"
// @Success     200  {object} domain.Classification
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Router      /classifications/{id} [get]
func (h *Handlers) GetClassification(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	rec, err := h.Classifications.Get(ctx, id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, rec)
}

// GetClassificationBySession godoc
// @ID          getClassificationBySession
// @Summary     Get the classification of a session
// @Tags        Classifications
// @Produce     json
// @Param       sessionId  path  int  true  "Session id"
// @Success     200  {object} domain.Classification
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Router      /classifications/session/{sessionId} [get]
func (h *Handlers) GetClassificationBySession(c *gin.Context) {
	sessionID, okID := pathID(c, "sessionId")
	if !okID {
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	rec, err := h.Classifications.GetBySession(ctx, sessionID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, rec)
}

// ListClassifications godoc
// @ID          listClassifications
// @Summary     List classifications
// @Tags        Classifications
// @Produce     json
// @Param       owner_id   query  int     false  "Patient id"
// @Param       urgency    query  string  false  "EMERGENCY, HIGH, MODERATE or LOW"
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ClassificationPage
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Router      /classifications [get]
func (h *Handlers) ListClassifications(c *gin.Context) {
	var f repo.ClassificationFilter
	var okQ bool
	if f.OwnerID, okQ = queryID(c, "owner_id"); !okQ {
		return
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

	items, total, err := h.Classifications.List(ctx, f, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, newPage(items, total, page, pageSize))
}
