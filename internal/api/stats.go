package api

import (
	"net/http"
	"strconv"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	ByVariant     map[string]int `json:"by_variant"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetJobStats(r.Context())
	if err != nil {
		s.logger.Error("get job stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	byVariant := make(map[string]int, len(stats.CountByVariant))
	for v, n := range stats.CountByVariant {
		byVariant[strconv.Itoa(v)] = n
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:         stats.Total,
		ByStatus:      stats.CountByStatus,
		ByVariant:     byVariant,
		AvgDurationMS: stats.AvgDurationMS,
	})
}
