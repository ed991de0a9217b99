package httpserver

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/helixir/research-portal-service/internal/auth"
	"github.com/helixir/research-portal-service/internal/domain"
	"github.com/helixir/research-portal-service/internal/observability"
	"github.com/helixir/research-portal-service/internal/query"
	"github.com/helixir/research-portal-service/internal/service"
)

// Pagination and validation constants.
const (
	defaultPageSize    = 50
	maxPageSize        = 100
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
)

// conflictMessage is shown when a review lost a race with another reviewer.
const conflictMessage = "this submission was just updated, refreshing"

// approveRequest is the JSON request body for approving a paper.
type approveRequest struct {
	Comment string `json:"comment"`
	Version int64  `json:"version"`
}

// rejectRequest is the JSON request body for rejecting a paper.
type rejectRequest struct {
	Reason  string `json:"reason"`
	Version int64  `json:"version"`
}

// revisionRequest is the JSON request body for requesting changes.
type revisionRequest struct {
	Notes   string `json:"notes"`
	Version int64  `json:"version"`
}

// resubmitRequest is the JSON request body for resubmitting a flagged paper.
type resubmitRequest struct {
	Note     string                 `json:"note"`
	Version  int64                  `json:"version"`
	Revision *service.RevisionInput `json:"revision,omitempty"`
}

// submitResearch handles POST /research.
func (s *Server) submitResearch(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())

	var req service.SubmitInput
	if !decodeBody(w, r, &req) {
		return
	}

	paper, err := s.service.Submit(r.Context(), actor, req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, domainPaperToResponse(paper, s.service.AvailableActions(paper, actor)))
}

// listResearch handles GET /research.
// It returns the papers in the caller's scope with optional status, scope, search and category filters.
func (s *Server) listResearch(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	q := r.URL.Query()

	scope, err := query.ParseScope(q.Get("scope"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	spec := query.FilterSpec{
		Scope:      scope,
		Search:     q.Get("q"),
		CategoryID: q.Get("category"),
	}
	if statusParam := q.Get("status"); statusParam != "" {
		status, err := domain.ParseStatus(statusParam)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		spec.Status = &status
	}

	papers, err := s.service.AllResearch(r.Context(), actor, spec)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writePaperPage(w, r, papers, actor, false)
}

// listMyResearch handles GET /research/mine.
func (s *Server) listMyResearch(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())

	papers, err := s.service.MyResearch(r.Context(), actor)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writePaperPage(w, r, papers, actor, false)
}

// researchStats handles GET /research/stats.
func (s *Server) researchStats(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())

	stats, err := s.service.Stats(r.Context(), actor)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsToResponse(stats))
}

// getResearch handles GET /research/{paperID}.
func (s *Server) getResearch(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	paperID, ok := parseUUID(w, chi.URLParam(r, "paperID"), "paper_id")
	if !ok {
		return
	}

	paper, err := s.service.Get(r.Context(), paperID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domainPaperToResponse(paper, s.service.AvailableActions(paper, actor)))
}

// approveResearch handles POST /research/{paperID}/approve.
func (s *Server) approveResearch(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	paperID, ok := parseUUID(w, chi.URLParam(r, "paperID"), "paper_id")
	if !ok {
		return
	}
	var req approveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !requireVersion(w, req.Version) {
		return
	}

	paper, err := s.service.Approve(r.Context(), actor, paperID, req.Version, req.Comment)
	s.writeReviewResult(w, r, paper, actor, err)
}

// rejectResearch handles POST /research/{paperID}/reject.
func (s *Server) rejectResearch(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	paperID, ok := parseUUID(w, chi.URLParam(r, "paperID"), "paper_id")
	if !ok {
		return
	}
	var req rejectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !requireVersion(w, req.Version) {
		return
	}

	paper, err := s.service.Reject(r.Context(), actor, paperID, req.Version, req.Reason)
	s.writeReviewResult(w, r, paper, actor, err)
}

// requestRevision handles POST /research/{paperID}/request-revision.
func (s *Server) requestRevision(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	paperID, ok := parseUUID(w, chi.URLParam(r, "paperID"), "paper_id")
	if !ok {
		return
	}
	var req revisionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !requireVersion(w, req.Version) {
		return
	}

	paper, err := s.service.RequestRevision(r.Context(), actor, paperID, req.Version, req.Notes)
	s.writeReviewResult(w, r, paper, actor, err)
}

// resubmitResearch handles POST /research/{paperID}/resubmit.
func (s *Server) resubmitResearch(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	paperID, ok := parseUUID(w, chi.URLParam(r, "paperID"), "paper_id")
	if !ok {
		return
	}
	var req resubmitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !requireVersion(w, req.Version) {
		return
	}

	paper, err := s.service.Resubmit(r.Context(), actor, paperID, req.Version, req.Note, req.Revision)
	s.writeReviewResult(w, r, paper, actor, err)
}

func (s *Server) writeReviewResult(w http.ResponseWriter, r *http.Request, paper domain.PaperRecord, actor domain.Actor, err error) {
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domainPaperToResponse(paper, s.service.AvailableActions(paper, actor)))
}

// trackView handles POST /research/{paperID}/view.
func (s *Server) trackView(w http.ResponseWriter, r *http.Request) {
	paperID, ok := parseUUID(w, chi.URLParam(r, "paperID"), "paper_id")
	if !ok {
		return
	}
	count, err := s.service.TrackView(r.Context(), paperID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counterResponse{PaperID: paperID.String(), Count: count})
}

// trackDownload handles POST /research/{paperID}/download.
func (s *Server) trackDownload(w http.ResponseWriter, r *http.Request) {
	paperID, ok := parseUUID(w, chi.URLParam(r, "paperID"), "paper_id")
	if !ok {
		return
	}
	count, err := s.service.TrackDownload(r.Context(), paperID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counterResponse{PaperID: paperID.String(), Count: count})
}

// listPublished handles GET /published.
func (s *Server) listPublished(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	papers, err := s.service.Published(r.Context(), q.Get("q"), q.Get("category"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writePaperPage(w, r, papers, domain.Actor{}, true)
}

// listCategories handles GET /categories.
func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.service.Categories(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categoriesResponse{Categories: categories})
}

// listFacultyMembers handles GET /faculty.
func (s *Server) listFacultyMembers(w http.ResponseWriter, r *http.Request) {
	faculty, err := s.service.FacultyMembers(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, facultyResponse{Faculty: faculty})
}

// writePaperPage paginates an already filtered and sorted listing.
func (s *Server) writePaperPage(w http.ResponseWriter, r *http.Request, papers []domain.PaperRecord, actor domain.Actor, public bool) {
	limit, offset := parsePaginationParams(r)
	total := len(papers)

	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	page := make([]paperResponse, 0, end-start)
	for _, p := range papers[start:end] {
		if public {
			page = append(page, publicPaperToResponse(p))
			continue
		}
		page = append(page, domainPaperToResponse(p, s.service.AvailableActions(p, actor)))
	}

	writeJSON(w, http.StatusOK, listPapersResponse{
		Papers:        page,
		NextPageToken: encodeHTTPPageToken(offset, limit, total),
		TotalCount:    total,
	})
}

// writeDomainError maps domain errors to appropriate HTTP status codes and
// writes a JSON error response. Internal error details are not leaked to clients.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeErrorCode(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeErrorCode(w, http.StatusBadRequest, "validation", ve.Error())
		} else {
			writeErrorCode(w, http.StatusBadRequest, "validation", "invalid input")
		}
	case errors.Is(err, domain.ErrConflict):
		writeErrorCode(w, http.StatusConflict, "conflict", conflictMessage)
	case errors.Is(err, domain.ErrInvalidTransition):
		writeErrorCode(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, domain.ErrUnauthorizedTransition):
		writeErrorCode(w, http.StatusForbidden, "unauthorized_transition", err.Error())
	case errors.Is(err, domain.ErrAlreadyExists):
		writeErrorCode(w, http.StatusConflict, "already_exists", "resource already exists")
	case errors.Is(err, domain.ErrUnauthorized):
		writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
	case errors.Is(err, domain.ErrForbidden):
		writeErrorCode(w, http.StatusForbidden, "forbidden", "forbidden")
	case errors.Is(err, domain.ErrRateLimited):
		writeErrorCode(w, http.StatusTooManyRequests, "rate_limited", "rate limited")
	default:
		logger := observability.LoggerFromContext(r.Context(), s.logger)
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeBody reads a size-limited JSON body into v, writing a 400 response on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		writeErrorCode(w, http.StatusBadRequest, "validation", "request body is required")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "validation", "invalid JSON request body")
		return false
	}
	return true
}

// requireVersion rejects review requests that do not say which version the
// reviewer acted on, so a stale screen always surfaces as a conflict.
func requireVersion(w http.ResponseWriter, version int64) bool {
	if version < 1 {
		writeErrorCode(w, http.StatusBadRequest, "validation", "version is required")
		return false
	}
	return true
}

// parseUUID parses a UUID from a string, writing a 400 error response if invalid.
// Returns the parsed UUID and true on success, or uuid.Nil and false on failure.
// The parse error details are not included to avoid echoing potentially malicious input.
func parseUUID(w http.ResponseWriter, s, fieldName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "validation", fmt.Sprintf("%s must be a valid UUID", fieldName))
		return uuid.Nil, false
	}
	return id, true
}

// parsePaginationParams extracts page_size and page_token from query parameters.
// It applies default and maximum bounds to the page size.
func parsePaginationParams(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if pageSizeStr := r.URL.Query().Get("page_size"); pageSizeStr != "" {
		if parsed, err := strconv.Atoi(pageSizeStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if pageToken := r.URL.Query().Get("page_token"); pageToken != "" {
		decoded, err := base64.StdEncoding.DecodeString(pageToken)
		if err == nil {
			if parsed, parseErr := strconv.Atoi(string(decoded)); parseErr == nil && parsed > 0 {
				offset = parsed
			}
		}
	}

	return limit, offset
}

// encodeHTTPPageToken encodes the next offset as a base64 page token.
// Returns an empty string if there are no more results.
func encodeHTTPPageToken(offset, limit, totalCount int) string {
	nextOffset := offset + limit
	if nextOffset < totalCount {
		return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(nextOffset)))
	}
	return ""
}
