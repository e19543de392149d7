package api

import (
	"net/http"

	"github.com/seantiz/routedesk/internal/engine"
)

// surfaceResponse is the JSON response for GET /v1/surface.
type surfaceResponse struct {
	engine.SurfaceSnapshot
	State       engine.State `json:"state"`
	ActiveJobID string       `json:"active_job_id,omitempty"`
}

func (s *Server) handleGetSurface(w http.ResponseWriter, _ *http.Request) {
	state, id := s.engine.State()
	s.writeJSON(w, http.StatusOK, surfaceResponse{
		SurfaceSnapshot: s.engine.Publisher().Surface().Snapshot(),
		State:           state,
		ActiveJobID:     id,
	})
}
