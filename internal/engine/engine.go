package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/seantiz/routedesk/internal/handoff"
	"github.com/seantiz/routedesk/internal/invocation"
	"github.com/seantiz/routedesk/internal/model"
	"github.com/seantiz/routedesk/internal/protocol"
	"github.com/seantiz/routedesk/internal/runner"
	"github.com/seantiz/routedesk/internal/store"
)

var (
	// ErrBusy is returned by Submit while another job is active.
	ErrBusy = errors.New("engine busy: a routing job is already active")

	// ErrNotActive is returned by Cancel for a job that is not the active one.
	ErrNotActive = errors.New("job is not active")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("engine closed")

	// ErrCancelled is the cause recorded when a job is cancelled on request.
	ErrCancelled = errors.New("cancelled on request")

	// ErrTimedOut is the cause recorded when a job exceeds its timeout.
	ErrTimedOut = errors.New("timed out")
)

// State is the engine's admission state.
type State string

// Admission states. Idle means no job is active.
const (
	StateIdle      State = "idle"
	StateLaunching State = State(model.StatusLaunching)
	StateRunning   State = State(model.StatusRunning)
)

// Config controls how jobs are built and judged.
type Config struct {
	Builder invocation.Builder

	// TimeoutS applies to jobs submitted without their own timeout.
	// Zero means unbounded.
	TimeoutS int

	// RequireZeroExit fails a run whose exit status is non-zero even when
	// the engine reported an artifact.
	RequireZeroExit bool

	// StrictCoordinates rejects requests whose numeric fields do not parse.
	StrictCoordinates bool
}

// SubmitOptions are per-job settings.
type SubmitOptions struct {
	// TimeoutS overrides Config.TimeoutS when positive.
	TimeoutS int
}

// Engine orchestrates routing jobs one at a time.
type Engine struct {
	store     store.Store
	runner    runner.Runner
	publisher *Publisher
	cfg       Config
	logger    *slog.Logger
	wg        sync.WaitGroup

	mu     sync.Mutex
	active *activeJob
	closed bool
}

type activeJob struct {
	id     string
	state  State
	cancel context.CancelCauseFunc
}

// NewEngine creates an engine and starts its publisher. h delivers outcomes
// to the user once they reach the dispatch goroutine.
func NewEngine(s store.Store, r runner.Runner, h *handoff.Handoff, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		store:     s,
		runner:    r,
		publisher: NewPublisher(h, cfg.Builder.Dir, s, logger),
		cfg:       cfg,
		logger:    logger,
	}
}

// Publisher returns the engine's publisher for subscriptions and sinks.
func (e *Engine) Publisher() *Publisher {
	return e.publisher
}

// Executable returns the engine path jobs are launched with.
func (e *Engine) Executable() string {
	return e.cfg.Builder.Executable()
}

// State reports the admission state and the active job ID, if any.
func (e *Engine) State() (State, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return StateIdle, ""
	}
	return e.active.state, e.active.id
}

// Submit admits req when the engine is idle, stores the job as launching and
// runs it in a goroutine. It returns ErrBusy while another job is active and
// a *invocation.ValidationError for a request that cannot be run.
func (e *Engine) Submit(ctx context.Context, req model.RoutingRequest, opts SubmitOptions) (*model.Job, error) {
	var err error
	if e.cfg.StrictCoordinates {
		err = invocation.Validate(req)
	} else {
		err = invocation.CheckVariant(req.Variant)
	}
	if err != nil {
		submissionsRejected.WithLabelValues(rejectInvalid).Inc()
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		submissionsRejected.WithLabelValues(rejectClosed).Inc()
		return nil, ErrClosed
	}
	if e.active != nil {
		submissionsRejected.WithLabelValues(rejectBusy).Inc()
		return nil, ErrBusy
	}

	inv := e.cfg.Builder.Build(req)
	j := &model.Job{
		ID:              model.NewID(),
		Status:          model.StatusLaunching,
		Variant:         req.Variant,
		SourceLon:       req.SourceLon,
		SourceLat:       req.SourceLat,
		DestLon:         req.DestLon,
		DestLat:         req.DestLat,
		StartMinutes:    req.StartMinutes,
		DeadlineMinutes: req.DeadlineMinutes,
		Executable:      inv.Path,
		Args:            inv.Args,
		CreatedAt:       time.Now().UTC(),
	}
	timeoutS := e.cfg.TimeoutS
	if opts.TimeoutS > 0 {
		timeoutS = opts.TimeoutS
	}
	if timeoutS > 0 {
		j.TimeoutS = &timeoutS
	}

	if err := e.store.CreateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	runCtx, cancel := context.WithCancelCause(context.Background())
	e.active = &activeJob{id: j.ID, state: StateLaunching, cancel: cancel}
	activeJobs.Inc()
	e.publisher.Starting(j)

	e.logger.Info("job admitted", "job_id", j.ID, "variant", int(j.Variant), "executable", inv.Path)

	jCopy := *j
	e.wg.Go(func() {
		e.execute(runCtx, cancel, &jCopy, inv)
	})

	return j, nil
}

// Cancel stops the active job with the given ID. The job ends as cancelled.
func (e *Engine) Cancel(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil || e.active.id != id {
		return ErrNotActive
	}
	e.active.cancel(ErrCancelled)
	e.logger.Info("job cancel requested", "job_id", id)
	return nil
}

// Wait blocks until all in-flight job goroutines complete.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close cancels the active job, waits for it to finish and stops the
// publisher after it has delivered every queued outcome.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	if e.active != nil {
		e.active.cancel(ErrCancelled)
	}
	e.mu.Unlock()

	e.wg.Wait()
	e.publisher.Close()
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != nil {
		e.active.state = s
	}
}

// release returns the engine to idle.
func (e *Engine) release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = nil
	activeJobs.Dec()
}

// execute runs one job: launching→running→succeeded/failed/cancelled.
func (e *Engine) execute(ctx context.Context, cancel context.CancelCauseFunc, j *model.Job, inv invocation.Invocation) {
	defer cancel(nil)
	defer e.release()

	admitted := time.Now()

	if j.TimeoutS != nil {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeoutCause(ctx, time.Duration(*j.TimeoutS)*time.Second,
			fmt.Errorf("%w after %ds", ErrTimedOut, *j.TimeoutS))
		defer stop()
	}

	if ctx.Err() != nil {
		e.finish(j, e.cancelled(j, context.Cause(ctx)), admitted)
		return
	}

	if err := e.store.UpdateJobStatus(context.Background(), j.ID, model.StatusRunning); err != nil {
		e.logger.Error("failed to transition to running", "job_id", j.ID, "error", err)
		o := Outcome{JobID: j.ID, Status: model.StatusFailed, Error: fmt.Sprintf("failed to start: %v", err)}
		e.finish(j, o, admitted)
		return
	}
	start := time.Now().UTC()
	j.StartedAt = &start
	e.setState(StateRunning)
	e.publisher.Status(j.ID, model.StatusRunning)

	// Diagnostic lines are persisted as they arrive so a crash leaves a
	// partial transcript behind.
	var parser protocol.Parser
	onLine := func(line string) {
		if parser.Feed(line) != protocol.Diagnostic {
			return
		}
		seq := parser.Lines() - 1
		if err := e.store.InsertTranscriptLine(context.Background(), j.ID, seq, line); err != nil {
			e.logger.Error("failed to persist transcript line", "job_id", j.ID, "seq", seq, "error", err)
		}
	}

	res, err := e.runner.Run(ctx, inv, onLine)
	if res.DurationMS > 0 {
		dur := res.DurationMS
		j.DurationMS = &dur
	}

	e.finish(j, e.judge(ctx, j, parser.Outcome(), res, err), admitted)
}

// judge decides the outcome of a run from the parsed output, the process
// result and the runner error.
func (e *Engine) judge(ctx context.Context, j *model.Job, po protocol.Outcome, res runner.Result, err error) Outcome {
	o := Outcome{
		JobID:      j.ID,
		Transcript: po.Transcript,
		executable: j.Executable,
	}

	var launchErr *runner.LaunchError
	switch {
	case err != nil && ctx.Err() != nil:
		c := e.cancelled(j, context.Cause(ctx))
		c.Transcript = po.Transcript
		return c
	case errors.As(err, &launchErr):
		o.Status = model.StatusFailed
		o.Error = err.Error()
		o.Hint = handoff.MissingEngineHint(launchErr.Path)
		o.launchFailed = true
		return o
	case err != nil:
		o.Status = model.StatusFailed
		o.Error = err.Error()
		return o
	}

	exit := res.ExitCode
	o.ExitCode = &exit

	switch {
	case !po.Succeeded:
		o.Status = model.StatusFailed
	case e.cfg.RequireZeroExit && exit != 0:
		o.Status = model.StatusFailed
		o.Error = fmt.Sprintf("engine exited with code %d", exit)
	default:
		o.Status = model.StatusSucceeded
		o.Succeeded = true
		o.ArtifactName = po.ArtifactName
	}
	return o
}

func (e *Engine) cancelled(j *model.Job, cause error) Outcome {
	msg := "job cancelled"
	if cause != nil {
		msg = fmt.Sprintf("job cancelled: %v", cause)
	}
	return Outcome{
		JobID:      j.ID,
		Status:     model.StatusCancelled,
		Error:      msg,
		executable: j.Executable,
	}
}

// finish persists the terminal state, records metrics and enqueues the
// outcome. The deferred release in execute returns the engine to idle only
// after the enqueue, so outcomes reach the dispatcher in admission order.
func (e *Engine) finish(j *model.Job, o Outcome, admitted time.Time) {
	now := time.Now().UTC()
	j.Status = o.Status
	j.Succeeded = o.Succeeded
	j.Transcript = o.Transcript
	j.ArtifactName = o.ArtifactName
	j.ExitCode = o.ExitCode
	j.Error = o.Error
	j.Hint = o.Hint
	j.FinishedAt = &now

	if err := e.store.FinishJob(context.Background(), j); err != nil {
		e.logger.Error("failed to record job outcome", "job_id", j.ID, "status", j.Status, "error", err)
	}

	jobsTotal.WithLabelValues(strconv.Itoa(int(j.Variant)), o.Status).Inc()
	jobDuration.WithLabelValues(o.Status).Observe(time.Since(admitted).Seconds())

	attrs := []any{"job_id", j.ID, "status", o.Status, "variant", int(j.Variant)}
	if o.ExitCode != nil {
		attrs = append(attrs, "exit_code", *o.ExitCode)
	}
	if j.DurationMS != nil {
		attrs = append(attrs, "duration_ms", *j.DurationMS)
	}
	if o.Error != "" {
		attrs = append(attrs, "error", o.Error)
	}
	e.logger.Info("job finished", attrs...)

	e.publisher.Publish(o)
}
