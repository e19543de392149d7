package runner

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/seantiz/routedesk/internal/invocation"
)

func TestLaunchErrorCounted(t *testing.T) {
	before := testutil.ToFloat64(launchesTotal.WithLabelValues(launchError))

	r := NewExecRunner(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	inv := invocation.Invocation{Path: filepath.Join(t.TempDir(), "missing-router")}
	if _, err := r.Run(context.Background(), inv, func(string) {}); err == nil {
		t.Fatal("Run on a missing executable returned nil error")
	}

	after := testutil.ToFloat64(launchesTotal.WithLabelValues(launchError))
	if after != before+1 {
		t.Errorf("launch error counter = %v, want %v", after, before+1)
	}
}
