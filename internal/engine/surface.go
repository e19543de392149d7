package engine

import (
	"sync"
	"time"
)

// Placeholder is shown on the surface while a job is in flight.
const Placeholder = "Starting routing engine...\nProcessing map nodes (please wait)..."

// Surface holds the text block the presentation layer displays. Only the
// publisher's dispatch goroutine writes it; every write replaces the text in
// full.
type Surface struct {
	mu        sync.RWMutex
	text      string
	jobID     string
	status    string
	updatedAt time.Time
}

// SurfaceSnapshot is a point-in-time copy of the surface.
type SurfaceSnapshot struct {
	Text      string    `json:"text"`
	JobID     string    `json:"job_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Surface) replace(jobID, status, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
	s.jobID = jobID
	s.status = status
	s.updatedAt = time.Now().UTC()
}

// Snapshot returns the current surface contents.
func (s *Surface) Snapshot() SurfaceSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SurfaceSnapshot{
		Text:      s.text,
		JobID:     s.jobID,
		Status:    s.status,
		UpdatedAt: s.updatedAt,
	}
}
