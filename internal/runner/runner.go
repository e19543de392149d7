package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seantiz/routedesk/internal/invocation"
	"github.com/seantiz/routedesk/internal/protocol"
)

// DefaultWaitDelay bounds how long Run waits for the output pipes to close
// after the engine has been killed.
const DefaultWaitDelay = 2 * time.Second

// Runner launches the routing engine.
type Runner interface {
	// Run starts one engine process for inv, calls onLine for every stdout
	// line in the order the engine wrote them, and returns once stdout is
	// drained and the process has exited. A non-zero exit status is reported
	// in Result, not as an error. Cancelling ctx kills the process.
	Run(ctx context.Context, inv invocation.Invocation, onLine func(line string)) (Result, error)
}

// Result describes a finished engine process.
type Result struct {
	ExitCode   int `json:"exit_code"`
	DurationMS int `json:"duration_ms"`
}

// LaunchError reports that the engine process could not be started.
type LaunchError struct {
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch engine %q: %v", e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// StreamReadError reports a failure while reading the engine's output. Lines
// delivered before the failure remain delivered.
type StreamReadError struct {
	Err error
}

func (e *StreamReadError) Error() string {
	return fmt.Sprintf("read engine output: %v", e.Err)
}

func (e *StreamReadError) Unwrap() error {
	return e.Err
}

// Compile-time interface satisfaction check.
var _ Runner = (*ExecRunner)(nil)

// ExecRunner runs the engine as a local child process.
type ExecRunner struct {
	logger    *slog.Logger
	waitDelay time.Duration
}

// NewExecRunner creates a runner that starts engine processes with os/exec.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	return &ExecRunner{
		logger:    logger,
		waitDelay: DefaultWaitDelay,
	}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, inv invocation.Invocation, onLine func(line string)) (Result, error) {
	cmd := exec.CommandContext(ctx, inv.Path, inv.Args...)
	cmd.Dir = inv.Dir
	if len(inv.Env) > 0 {
		cmd.Env = append(os.Environ(), inv.Env...)
	}
	cmd.WaitDelay = r.waitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		launchesTotal.WithLabelValues(launchError).Inc()
		return Result{}, &LaunchError{Path: inv.Path, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		launchesTotal.WithLabelValues(launchError).Inc()
		return Result{}, &LaunchError{Path: inv.Path, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		launchesTotal.WithLabelValues(launchError).Inc()
		return Result{}, &LaunchError{Path: inv.Path, Err: err}
	}
	launchesTotal.WithLabelValues(launchStarted).Inc()
	activeProcesses.Inc()
	defer activeProcesses.Dec()

	r.logger.Debug("engine started", "path", inv.Path, "args", inv.Args, "pid", cmd.Process.Pid)

	// Both pipes must be drained before Wait, or a chatty engine blocks on a
	// full pipe buffer.
	var g errgroup.Group
	g.Go(func() error {
		if err := protocol.Scan(stdout, onLine); err != nil {
			_, _ = io.Copy(io.Discard, stdout)
			return &StreamReadError{Err: err}
		}
		return nil
	})
	g.Go(func() error {
		err := protocol.Scan(stderr, func(line string) {
			r.logger.Debug("engine stderr", "path", inv.Path, "line", line)
		})
		if err != nil {
			_, _ = io.Copy(io.Discard, stderr)
		}
		return nil
	})
	readErr := g.Wait()
	waitErr := cmd.Wait()

	elapsed := time.Since(start)
	processDuration.Observe(elapsed.Seconds())
	res := Result{
		ExitCode:   cmd.ProcessState.ExitCode(),
		DurationMS: int(elapsed.Milliseconds()),
	}

	if readErr == nil && waitErr == nil {
		return res, nil
	}
	// A failure is attributed to the context only when it ended the run.
	if ctx.Err() != nil {
		return res, fmt.Errorf("engine aborted: %w", context.Cause(ctx))
	}
	if readErr != nil {
		return res, readErr
	}
	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		return res, fmt.Errorf("wait for engine: %w", waitErr)
	}
	return res, nil
}
