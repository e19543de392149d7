package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/routedesk/internal/engine"
	"github.com/seantiz/routedesk/internal/invocation"
	"github.com/seantiz/routedesk/internal/model"
	"github.com/seantiz/routedesk/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB
)

// coordinate is a coordinate as the client typed it. It accepts a JSON string
// or number and keeps the original text.
type coordinate string

func (c *coordinate) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(data, []byte(`"`)) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = coordinate(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("coordinate must be a string or number: %w", err)
	}
	*c = coordinate(n.String())
	return nil
}

type point struct {
	Lat coordinate `json:"lat"`
	Lon coordinate `json:"lon"`
}

// submitJobRequest is the JSON body for POST /v1/jobs.
type submitJobRequest struct {
	Variant         int        `json:"variant"`
	Source          point      `json:"source"`
	Destination     point      `json:"destination"`
	StartMinutes    coordinate `json:"start_minutes"`
	DeadlineMinutes coordinate `json:"deadline_minutes"`
	TimeoutS        *int       `json:"timeout_s"`
}

// routingRequest maps the lat-first body onto the engine's lon-first request.
func (b submitJobRequest) routingRequest() model.RoutingRequest {
	return model.RoutingRequest{
		Variant:         model.Variant(b.Variant),
		SourceLon:       string(b.Source.Lon),
		SourceLat:       string(b.Source.Lat),
		DestLon:         string(b.Destination.Lon),
		DestLat:         string(b.Destination.Lat),
		StartMinutes:    string(b.StartMinutes),
		DeadlineMinutes: string(b.DeadlineMinutes),
	}
}

// listJobsResponse wraps the paginated list response.
type listJobsResponse struct {
	Jobs   []*model.Job `json:"jobs"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.rejectJob(w, http.StatusBadRequest, rejectBadRequest, "invalid JSON body")
		return
	}

	if req.Variant == 0 {
		s.rejectJob(w, http.StatusBadRequest, rejectBadRequest, "variant is required")
		return
	}
	if req.TimeoutS != nil && *req.TimeoutS < 0 {
		s.rejectJob(w, http.StatusBadRequest, rejectBadRequest, "timeout_s must not be negative")
		return
	}

	var opts engine.SubmitOptions
	if req.TimeoutS != nil {
		opts.TimeoutS = *req.TimeoutS
	}

	j, err := s.engine.Submit(r.Context(), req.routingRequest(), opts)
	var verr *invocation.ValidationError
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusAccepted, j)
	case errors.As(err, &verr):
		s.rejectJob(w, http.StatusBadRequest, rejectInvalid, verr.Error())
	case errors.Is(err, engine.ErrBusy):
		s.rejectJob(w, http.StatusConflict, rejectBusy, err.Error())
	case errors.Is(err, engine.ErrClosed):
		s.rejectJob(w, http.StatusServiceUnavailable, rejectClosed, err.Error())
	default:
		s.logger.Error("submit job", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit job")
	}
}

func (s *Server) rejectJob(w http.ResponseWriter, status int, reason, message string) {
	jobRejectionsTotal.WithLabelValues(reason).Inc()
	s.writeError(w, status, message)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, j)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	jobs, total, err := s.store.ListJobs(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list jobs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	if jobs == nil {
		jobs = []*model.Job{}
	}

	s.writeJSON(w, http.StatusOK, listJobsResponse{
		Jobs:   jobs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookupJob(w, r)
	if !ok {
		return
	}

	if err := s.engine.Cancel(j.ID); err != nil {
		if errors.Is(err, engine.ErrNotActive) {
			s.writeError(w, http.StatusConflict, fmt.Sprintf("job is %s, not active", j.Status))
			return
		}
		s.logger.Error("cancel job", "job_id", j.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to cancel job")
		return
	}

	s.writeJSON(w, http.StatusAccepted, j)
}

// lookupJob loads the job named in the URL, writing a 404 or 500 when it
// cannot.
func (s *Server) lookupJob(w http.ResponseWriter, r *http.Request) (*model.Job, bool) {
	id := chi.URLParam(r, "id")

	j, err := s.store.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("get job", "job_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get job")
		return nil, false
	}
	return j, true
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
