package api

import (
	"encoding/json"
	"net/http"

	"github.com/seantiz/routedesk/internal/engine"
)

type healthResponse struct {
	Status string       `json:"status"`
	Engine engine.State `json:"engine"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	state, _ := s.engine.State()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(healthResponse{Status: "ok", Engine: state}); err != nil {
		s.logger.Error("encode healthz response", "error", err)
	}
}
