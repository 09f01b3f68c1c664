// Handler wiring shared by the three stages.
//
// Handlers are transport-thin: they parse path, query and body input, resolve
// the caller from X-User-ID, call the stage service and translate the result.
// Each stage process sets only the service it owns; the router mounts the
// routes of the services that are present.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/clinical-intake/internal/domain"
	"github.com/tbourn/clinical-intake/internal/http/middleware"
	"github.com/tbourn/clinical-intake/internal/repo"
	"github.com/tbourn/clinical-intake/internal/utils"
)

//
// Service contracts (context-aware)
//

// SessionService is the sessions stage as consumed by HTTP.
type SessionService interface {
	Start(ctx context.Context, ownerID int64, reason string) (*domain.Session, error)
	PostMessage(ctx context.Context, ownerID, sessionID int64, text string) (*domain.Session, error)
	Complete(ctx context.Context, ownerID, sessionID int64, summary *domain.Summary) (*domain.Session, error)
	Cancel(ctx context.Context, ownerID, sessionID int64, reason string) (*domain.Session, error)
	Get(ctx context.Context, ownerID, sessionID int64) (*domain.Session, error)
	ListByOwner(ctx context.Context, ownerID int64, status domain.SessionStatus, page, pageSize int) ([]domain.Session, int64, error)
}

// ClassificationService is the triage stage's read side.
type ClassificationService interface {
	Get(ctx context.Context, id int64) (*domain.Classification, error)
	GetBySession(ctx context.Context, sessionID int64) (*domain.Classification, error)
	List(ctx context.Context, f repo.ClassificationFilter, page, pageSize int) ([]domain.Classification, int64, error)
}

// CaseService is the casedesk stage as consumed by HTTP.
type CaseService interface {
	Assign(ctx context.Context, actorID, caseID, doctorID int64) (*domain.Case, error)
	UpdateStatus(ctx context.Context, actorID, caseID int64, status domain.CaseStatus) (*domain.Case, error)
	AddNote(ctx context.Context, authorID, caseID int64, text string) (*domain.CaseNote, error)
	Get(ctx context.Context, caseID int64) (*domain.Case, error)
	List(ctx context.Context, f repo.CaseFilter, page, pageSize int) ([]domain.Case, int64, error)
}

// sessionListStats and caseListStats are optional: services that implement
// them get weak ETags and 304 responses on their list endpoints.
type sessionListStats interface {
	ListStats(ctx context.Context, ownerID int64, status domain.SessionStatus) (repo.ListStats, error)
}

type caseListStats interface {
	ListStats(ctx context.Context, f repo.CaseFilter) (repo.ListStats, error)
}

// Handlers groups the endpoints of all stages. Nil services are not mounted.
type Handlers struct {
	Sessions        SessionService
	Classifications ClassificationService
	Cases           CaseService

	// RequestTimeout bounds each service call (0 = request context only).
	RequestTimeout time.Duration
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// Page wraps one page of items.
type Page[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// Concrete list responses, named for the API docs.
type (
	SessionPage        = Page[domain.Session]
	ClassificationPage = Page[domain.Classification]
	CasePage           = Page[domain.Case]
)

func newPage[T any](items []T, total int64, page, pageSize int) Page[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Page[T]{
		Items: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	}
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// caller returns the authenticated user id or writes 401.
func caller(c *gin.Context) (int64, bool) {
	id, ok := middleware.UserIDFrom(c)
	if !ok {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "missing or invalid "+middleware.UserIDHeader+" header")
	}
	return id, ok
}

// pathID parses a positive integer path parameter or writes 400.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := utils.ParseID(c.Param(name))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// queryID parses an optional positive integer query parameter (0 when absent).
func queryID(c *gin.Context, name string) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	id, err := utils.ParseID(raw)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// ctx derives the service context, bounded by RequestTimeout when set.
func (h *Handlers) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.RequestTimeout > 0 {
		return context.WithTimeout(c.Request.Context(), h.RequestTimeout)
	}
	return context.WithCancel(c.Request.Context())
}

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

// notModified sets a weak ETag derived from scope and st and reports whether
// the request's If-None-Match already matches it, in which case 304 has been
// written.
func notModified(c *gin.Context, scope string, st repo.ListStats) bool {
	var ts int64
	if st.LastUpdatedAt != nil {
		ts = st.LastUpdatedAt.UnixNano()
	}
	etag := fmt.Sprintf(`W/"%s:%d:%d"`, scope, st.Count, ts)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}
