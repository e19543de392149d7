package store

import (
	"context"
	"errors"

	"github.com/seantiz/routedesk/internal/model"
)

// ErrInvalidTransition is returned when a job status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// JobStats holds aggregate execution statistics.
type JobStats struct {
	Total          int            `json:"total"`
	CountByStatus  map[string]int `json:"count_by_status"`
	CountByVariant map[int]int    `json:"count_by_variant"`
	AvgDurationMS  float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for jobs.
type Store interface {
	CreateJob(ctx context.Context, j *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context, limit, offset int) ([]*model.Job, int, error)
	UpdateJobStatus(ctx context.Context, id, status string) error
	FinishJob(ctx context.Context, j *model.Job) error
	RecordDelivery(ctx context.Context, id string, d model.Delivery) error
	GetJobStats(ctx context.Context) (*JobStats, error)
	InsertTranscriptLine(ctx context.Context, jobID string, seq int, line string) error
	GetTranscriptLines(ctx context.Context, jobID string) ([]model.TranscriptLine, error)
	Close() error
}
