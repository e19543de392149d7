package api

import (
	"net/http"

	"github.com/seantiz/routedesk/internal/model"
)

type variantResponse struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Label string `json:"label"`
}

func (s *Server) handleListVariants(w http.ResponseWriter, _ *http.Request) {
	variants := model.Variants()
	resp := make([]variantResponse, len(variants))
	for i, v := range variants {
		resp[i] = variantResponse{Index: int(v), Name: v.Name(), Label: v.String()}
	}
	s.writeJSON(w, http.StatusOK, resp)
}
