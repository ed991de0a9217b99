package query

import "github.com/helixir/research-portal-service/internal/domain"

// Stats summarizes the papers in a viewer's scope.
type Stats struct {
	Total          int
	NeedsReview    int
	Published      int
	ByStatus       map[domain.Status]int
	TotalViews     int64
	TotalDownloads int64
}

// ComputeStats scans papers once and counts those visible to viewer.
func (f *Filter) ComputeStats(papers []domain.PaperRecord, viewer domain.Actor) Stats {
	stats := Stats{ByStatus: make(map[domain.Status]int, len(domain.AllStatuses))}
	for _, p := range papers {
		if !f.visible(p, viewer) {
			continue
		}
		stats.Total++
		stats.ByStatus[p.Status]++
		stats.TotalViews += p.ViewCount
		stats.TotalDownloads += p.DownloadCount
		if p.Status == domain.StatusApproved {
			stats.Published++
		}
		if f.needsReview(p, viewer) {
			stats.NeedsReview++
		}
	}
	return stats
}
