package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/routedesk/internal/model"

	_ "modernc.org/sqlite"
)

const createJobsTable = `
CREATE TABLE IF NOT EXISTS jobs (
    id               TEXT PRIMARY KEY,
    status           TEXT NOT NULL,
    variant          INTEGER NOT NULL,
    source_lon       TEXT NOT NULL,
    source_lat       TEXT NOT NULL,
    dest_lon         TEXT NOT NULL,
    dest_lat         TEXT NOT NULL,
    start_minutes    TEXT NOT NULL DEFAULT '',
    deadline_minutes TEXT NOT NULL DEFAULT '',
    executable       TEXT NOT NULL,
    args             TEXT NOT NULL,
    succeeded        INTEGER NOT NULL DEFAULT 0,
    transcript       TEXT NOT NULL DEFAULT '',
    artifact_name    TEXT NOT NULL DEFAULT '',
    exit_code        INTEGER,
    error            TEXT NOT NULL DEFAULT '',
    hint             TEXT NOT NULL DEFAULT '',
    timeout_s        INTEGER,
    duration_ms      INTEGER,
    created_at       DATETIME NOT NULL,
    started_at       DATETIME,
    finished_at      DATETIME,
    notice           TEXT NOT NULL DEFAULT '',
    instructions     TEXT NOT NULL DEFAULT '',
    viewer_url       TEXT NOT NULL DEFAULT '',
    viewer_opened    INTEGER NOT NULL DEFAULT 0,
    artifact_path    TEXT NOT NULL DEFAULT '',
    delivered_at     DATETIME
)`

const createTranscriptTable = `
CREATE TABLE IF NOT EXISTS transcript_lines (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id     TEXT NOT NULL REFERENCES jobs(id),
    seq        INTEGER NOT NULL,
    line       TEXT NOT NULL,
    created_at DATETIME NOT NULL
)`

const createTranscriptIndex = `
CREATE INDEX IF NOT EXISTS idx_transcript_lines_job ON transcript_lines (job_id, seq)`

const jobColumns = `id, status, variant, source_lon, source_lat, dest_lon, dest_lat,
	start_minutes, deadline_minutes, executable, args, succeeded, transcript,
	artifact_name, exit_code, error, hint, timeout_s, duration_ms,
	created_at, started_at, finished_at,
	notice, instructions, viewer_url, viewer_opened, artifact_path, delivered_at`

const memoryDSN = ":memory:"

// ErrNotFound is returned when a job is not found.
var ErrNotFound = errors.New("job not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if dbPath == memoryDSN {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createJobsTable, createTranscriptTable, createTranscriptIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateJob inserts a new job record.
func (s *SQLiteStore) CreateJob(ctx context.Context, j *model.Job) error {
	args, err := json.Marshal(j.Args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Status, int(j.Variant), j.SourceLon, j.SourceLat, j.DestLon, j.DestLat,
		j.StartMinutes, j.DeadlineMinutes, j.Executable, string(args), j.Succeeded, j.Transcript,
		j.ArtifactName, j.ExitCode, j.Error, j.Hint, j.TimeoutS, j.DurationMS,
		j.CreatedAt, j.StartedAt, j.FinishedAt,
		j.Notice, j.Instructions, j.ViewerURL, j.ViewerOpened, j.ArtifactPath, j.DeliveredAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	j := &model.Job{}
	var (
		variant int
		args    string
	)
	if err := row.Scan(
		&j.ID, &j.Status, &variant, &j.SourceLon, &j.SourceLat, &j.DestLon, &j.DestLat,
		&j.StartMinutes, &j.DeadlineMinutes, &j.Executable, &args, &j.Succeeded, &j.Transcript,
		&j.ArtifactName, &j.ExitCode, &j.Error, &j.Hint, &j.TimeoutS, &j.DurationMS,
		&j.CreatedAt, &j.StartedAt, &j.FinishedAt,
		&j.Notice, &j.Instructions, &j.ViewerURL, &j.ViewerOpened, &j.ArtifactPath, &j.DeliveredAt,
	); err != nil {
		return nil, err
	}
	j.Variant = model.Variant(variant)
	if err := json.Unmarshal([]byte(args), &j.Args); err != nil {
		return nil, fmt.Errorf("decode args: %w", err)
	}
	return j, nil
}

// GetJob retrieves a job by ID.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// ListJobs returns a paginated list of jobs ordered by created_at DESC,
// along with the total count of all jobs.
func (s *SQLiteStore) ListJobs(ctx context.Context, limit, offset int) ([]*model.Job, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate jobs: %w", err)
	}

	return jobs, total, nil
}

// UpdateJobStatus moves a job to status. It returns ErrInvalidTransition when
// the job's current status does not allow the move. Moving to running also
// sets started_at; moving to a terminal status sets finished_at.
func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, id, status string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := checkTransition(ctx, tx, id, status); err != nil {
		return err
	}

	now := time.Now().UTC()
	switch {
	case status == model.StatusRunning:
		_, err = tx.ExecContext(ctx, "UPDATE jobs SET status = ?, started_at = ? WHERE id = ?", status, now, id)
	case model.IsTerminal(status):
		_, err = tx.ExecContext(ctx, "UPDATE jobs SET status = ?, finished_at = ? WHERE id = ?", status, now, id)
	default:
		_, err = tx.ExecContext(ctx, "UPDATE jobs SET status = ? WHERE id = ?", status, id)
	}
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// FinishJob records the terminal state of a job: status, outcome fields,
// exit code, duration and timestamps.
func (s *SQLiteStore) FinishJob(ctx context.Context, j *model.Job) error {
	if !model.IsTerminal(j.Status) {
		return fmt.Errorf("finish job %s with status %q: %w", j.ID, j.Status, ErrInvalidTransition)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := checkTransition(ctx, tx, j.ID, j.Status); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, succeeded = ?, transcript = ?, artifact_name = ?,
			exit_code = ?, error = ?, hint = ?, duration_ms = ?,
			started_at = COALESCE(?, started_at), finished_at = ?
		WHERE id = ?`,
		j.Status, j.Succeeded, j.Transcript, j.ArtifactName,
		j.ExitCode, j.Error, j.Hint, j.DurationMS,
		j.StartedAt, j.FinishedAt, j.ID,
	)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RecordDelivery stores what was shown for a finished job. Only terminal
// jobs can be delivered.
func (s *SQLiteStore) RecordDelivery(ctx context.Context, id string, d model.Delivery) error {
	deliveredAt := d.DeliveredAt
	if deliveredAt == nil {
		now := time.Now().UTC()
		deliveredAt = &now
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET notice = ?, instructions = ?, viewer_url = ?, viewer_opened = ?,
			artifact_path = ?, delivered_at = ?
		WHERE id = ? AND status IN (?, ?, ?)`,
		d.Notice, d.Instructions, d.ViewerURL, d.ViewerOpened, d.ArtifactPath, deliveredAt,
		id, model.StatusSucceeded, model.StatusFailed, model.StatusCancelled,
	)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	if n == 0 {
		if _, err := s.GetJob(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("deliver job %s before it finished: %w", id, ErrInvalidTransition)
	}
	return nil
}

func checkTransition(ctx context.Context, tx *sql.Tx, id, to string) error {
	var from string
	err := tx.QueryRowContext(ctx, "SELECT status FROM jobs WHERE id = ?", id).Scan(&from)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read job status: %w", err)
	}
	if !model.ValidTransition(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
	}
	return nil
}

// GetJobStats returns aggregate counts and the average duration of finished jobs.
func (s *SQLiteStore) GetJobStats(ctx context.Context) (*JobStats, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	stats := &JobStats{
		CountByStatus:  make(map[string]int),
		CountByVariant: make(map[int]int),
	}

	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs").Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}

	if err := groupCounts(ctx, tx, "SELECT status, COUNT(*) FROM jobs GROUP BY status", func(key any, n int) {
		stats.CountByStatus[fmt.Sprint(key)] = n
	}); err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}

	if err := groupCounts(ctx, tx, "SELECT variant, COUNT(*) FROM jobs GROUP BY variant", func(key any, n int) {
		if v, ok := key.(int64); ok {
			stats.CountByVariant[int(v)] = n
		}
	}); err != nil {
		return nil, fmt.Errorf("count by variant: %w", err)
	}

	var avg sql.NullFloat64
	if err := tx.QueryRowContext(ctx,
		"SELECT AVG(duration_ms) FROM jobs WHERE duration_ms IS NOT NULL",
	).Scan(&avg); err != nil {
		return nil, fmt.Errorf("average duration: %w", err)
	}
	if avg.Valid {
		stats.AvgDurationMS = avg.Float64
	}

	return stats, nil
}

func groupCounts(ctx context.Context, tx *sql.Tx, query string, add func(key any, n int)) error {
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key any
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		add(key, n)
	}
	return rows.Err()
}

// InsertTranscriptLine persists one diagnostic line for a job.
func (s *SQLiteStore) InsertTranscriptLine(ctx context.Context, jobID string, seq int, line string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO transcript_lines (job_id, seq, line, created_at) VALUES (?, ?, ?, ?)",
		jobID, seq, line, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert transcript line: %w", err)
	}
	return nil
}

// GetTranscriptLines returns a job's persisted lines in sequence order.
func (s *SQLiteStore) GetTranscriptLines(ctx context.Context, jobID string) ([]model.TranscriptLine, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, job_id, seq, line, created_at FROM transcript_lines WHERE job_id = ? ORDER BY seq",
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcript lines: %w", err)
	}
	defer rows.Close()

	lines := []model.TranscriptLine{}
	for rows.Next() {
		var l model.TranscriptLine
		if err := rows.Scan(&l.ID, &l.JobID, &l.Seq, &l.Line, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transcript line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript lines: %w", err)
	}
	return lines, nil
}
