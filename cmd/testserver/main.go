// testserver starts a routedesk API server backed by a stub engine, for
// exercising clients without a built routing engine.
// Usage: go run ./cmd/testserver
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/seantiz/routedesk/internal/api"
	"github.com/seantiz/routedesk/internal/engine"
	"github.com/seantiz/routedesk/internal/handoff"
	"github.com/seantiz/routedesk/internal/invocation"
	"github.com/seantiz/routedesk/internal/runner"
	"github.com/seantiz/routedesk/internal/store"
)

// stubRunner replays engine-like output after a delay. Variant 6 reports no
// route; every other variant produces route_prob<variant>.kml.
type stubRunner struct {
	delay time.Duration
}

func (s *stubRunner) Run(ctx context.Context, inv invocation.Invocation, onLine func(string)) (runner.Result, error) {
	start := time.Now()
	variant := inv.Args[0]

	onLine("Loading map nodes...")
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return runner.Result{ExitCode: -1}, fmt.Errorf("engine aborted: %w", context.Cause(ctx))
	}

	if variant == "6" {
		onLine("No feasible route before the deadline.")
	} else {
		onLine(fmt.Sprintf("Route found from (%s, %s) to (%s, %s)", inv.Args[2], inv.Args[1], inv.Args[4], inv.Args[3]))
		onLine("SUCCESS_KML_READY:route_prob" + variant + ".kml")
	}
	return runner.Result{ExitCode: 0, DurationMS: int(time.Since(start).Milliseconds())}, nil
}

func main() {
	addr := ":8080"
	if v := os.Getenv("ROUTEDESK_LISTEN_ADDR"); v != "" {
		addr = v
	}

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	eng := engine.NewEngine(db, &stubRunner{delay: 500 * time.Millisecond},
		handoff.New(nil, "", logger),
		engine.Config{Builder: invocation.Builder{GOOS: "linux"}},
		logger,
	)
	defer eng.Close()

	srv := api.NewServer(addr, db, eng, logger)
	logger.Info("testserver: starting", "addr", addr)
	if err := srv.Run(context.Background()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
