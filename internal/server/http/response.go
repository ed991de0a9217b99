package httpserver

import (
	"time"

	"github.com/helixir/research-portal-service/internal/domain"
	"github.com/helixir/research-portal-service/internal/query"
)

// Paper response types for JSON serialization.

type paperResponse struct {
	ID               string               `json:"id"`
	Title            string               `json:"title"`
	Abstract         string               `json:"abstract"`
	Keywords         []string             `json:"keywords"`
	CoAuthors        string               `json:"co_authors,omitempty"`
	Category         string               `json:"category"`
	Department       string               `json:"department,omitempty"`
	FileRef          string               `json:"file_ref"`
	AuthorID         string               `json:"author_id"`
	AuthorName       string               `json:"author_name,omitempty"`
	FacultyID        *string              `json:"faculty_id,omitempty"`
	Status           string               `json:"status"`
	SubmissionDate   time.Time            `json:"submission_date"`
	PublishedDate    *time.Time           `json:"published_date,omitempty"`
	ReviewTrail      []trailEntryResponse `json:"review_trail"`
	ViewCount        int64                `json:"view_count"`
	DownloadCount    int64                `json:"download_count"`
	Version          int64                `json:"version"`
	UpdatedAt        time.Time            `json:"updated_at"`
	AvailableActions []string             `json:"available_actions,omitempty"`
}

type trailEntryResponse struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id"`
	ActorRole  string    `json:"actor_role"`
	Action     string    `json:"action"`
	Note       string    `json:"note,omitempty"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Timestamp  time.Time `json:"timestamp"`
}

type listPapersResponse struct {
	Papers        []paperResponse `json:"papers"`
	NextPageToken string          `json:"next_page_token,omitempty"`
	TotalCount    int             `json:"total_count"`
}

type statsResponse struct {
	Total          int            `json:"total"`
	NeedsReview    int            `json:"needs_review"`
	Published      int            `json:"published"`
	ByStatus       map[string]int `json:"by_status"`
	TotalViews     int64          `json:"total_views"`
	TotalDownloads int64          `json:"total_downloads"`
}

type counterResponse struct {
	PaperID string `json:"paper_id"`
	Count   int64  `json:"count"`
}

type categoriesResponse struct {
	Categories []domain.Category `json:"categories"`
}

type facultyResponse struct {
	Faculty []domain.FacultyMember `json:"faculty"`
}

// domainPaperToResponse converts a paper for the wire. actions is nil for public views.
func domainPaperToResponse(p domain.PaperRecord, actions []domain.Action) paperResponse {
	resp := paperResponse{
		ID:             p.ID.String(),
		Title:          p.Title,
		Abstract:       p.Abstract,
		Keywords:       p.Keywords,
		CoAuthors:      p.CoAuthors,
		Category:       p.CategoryID,
		Department:     p.Department,
		FileRef:        p.FileRef,
		AuthorID:       p.AuthorID,
		AuthorName:     p.AuthorName,
		FacultyID:      p.FacultyID,
		Status:         string(p.Status),
		SubmissionDate: p.SubmissionDate,
		PublishedDate:  p.PublishedDate,
		ReviewTrail:    make([]trailEntryResponse, len(p.ReviewTrail)),
		ViewCount:      p.ViewCount,
		DownloadCount:  p.DownloadCount,
		Version:        p.Version,
		UpdatedAt:      p.UpdatedAt,
	}
	if resp.Keywords == nil {
		resp.Keywords = []string{}
	}
	for i, e := range p.ReviewTrail {
		resp.ReviewTrail[i] = trailEntryResponse{
			ID:         e.ID.String(),
			ActorID:    e.ActorID,
			ActorRole:  string(e.ActorRole),
			Action:     string(e.Action),
			Note:       e.Note,
			FromStatus: string(e.FromStatus),
			ToStatus:   string(e.ToStatus),
			Timestamp:  e.Timestamp,
		}
	}
	for _, a := range actions {
		resp.AvailableActions = append(resp.AvailableActions, string(a))
	}
	return resp
}

// publicPaperToResponse hides reviewer identities and notes from anonymous readers.
func publicPaperToResponse(p domain.PaperRecord) paperResponse {
	resp := domainPaperToResponse(p, nil)
	resp.ReviewTrail = []trailEntryResponse{}
	resp.FacultyID = nil
	return resp
}

func statsToResponse(s query.Stats) statsResponse {
	byStatus := make(map[string]int, len(s.ByStatus))
	for status, n := range s.ByStatus {
		byStatus[string(status)] = n
	}
	return statsResponse{
		Total:          s.Total,
		NeedsReview:    s.NeedsReview,
		Published:      s.Published,
		ByStatus:       byStatus,
		TotalViews:     s.TotalViews,
		TotalDownloads: s.TotalDownloads,
	}
}
