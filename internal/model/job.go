package model

import "time"

// Job status constants. A job starts in "launching" and ends in one of the
// three terminal statuses.
const (
	StatusLaunching = "launching"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusLaunching: {
		StatusRunning:   true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
	StatusRunning: {
		StatusSucceeded: true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether status is one a job never leaves.
func IsTerminal(status string) bool {
	return status == StatusSucceeded || status == StatusFailed || status == StatusCancelled
}

// RoutingRequest is one user submission. Coordinates are kept as the raw
// text the user typed; the engine receives them unchanged.
type RoutingRequest struct {
	Variant   Variant `json:"variant"`
	SourceLon string  `json:"source_lon"`
	SourceLat string  `json:"source_lat"`
	DestLon   string  `json:"dest_lon"`
	DestLat   string  `json:"dest_lat"`

	// StartMinutes and DeadlineMinutes are minutes since midnight. The engine
	// falls back to its own defaults when they are empty.
	StartMinutes    string `json:"start_minutes,omitempty"`
	DeadlineMinutes string `json:"deadline_minutes,omitempty"`
}

// TranscriptLine is a single persisted diagnostic line from an engine run.
type TranscriptLine struct {
	ID        int64     `json:"id"`
	JobID     string    `json:"job_id"`
	Seq       int       `json:"seq"`
	Line      string    `json:"line"`
	CreatedAt time.Time `json:"created_at"`
}

// Job is the persisted record of one engine invocation.
type Job struct {
	ID              string     `json:"id"`
	Status          string     `json:"status"`
	Variant         Variant    `json:"variant"`
	SourceLon       string     `json:"source_lon"`
	SourceLat       string     `json:"source_lat"`
	DestLon         string     `json:"dest_lon"`
	DestLat         string     `json:"dest_lat"`
	StartMinutes    string     `json:"start_minutes,omitempty"`
	DeadlineMinutes string     `json:"deadline_minutes,omitempty"`
	Executable      string     `json:"executable"`
	Args            []string   `json:"args"`
	Succeeded       bool       `json:"succeeded"`
	Transcript      string     `json:"transcript,omitempty"`
	ArtifactName    string     `json:"artifact_name,omitempty"`
	ExitCode        *int       `json:"exit_code,omitempty"`
	Error           string     `json:"error,omitempty"`
	Hint            string     `json:"hint,omitempty"`
	TimeoutS        *int       `json:"timeout_s,omitempty"`
	DurationMS      *int       `json:"duration_ms,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`

	Delivery
}

// Request reconstructs the routing request the job was created from.
func (j *Job) Request() RoutingRequest {
	return RoutingRequest{
		Variant:         j.Variant,
		SourceLon:       j.SourceLon,
		SourceLat:       j.SourceLat,
		DestLon:         j.DestLon,
		DestLat:         j.DestLat,
		StartMinutes:    j.StartMinutes,
		DeadlineMinutes: j.DeadlineMinutes,
	}
}

// Delivery records what the user was shown once a job's outcome reached the
// presentation layer. DeliveredAt is nil until then.
type Delivery struct {
	Notice       string     `json:"notice,omitempty"`
	Instructions string     `json:"instructions,omitempty"`
	ViewerURL    string     `json:"viewer_url,omitempty"`
	ViewerOpened bool       `json:"viewer_opened,omitempty"`
	ArtifactPath string     `json:"artifact_path,omitempty"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
}
