package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/seantiz/routedesk/internal/engine"
	"github.com/seantiz/routedesk/internal/model"
)

const envFakeEngine = "ROUTEDESK_FAKE_ENGINE"

// TestMain lets the test binary stand in for the routing engine: commands
// under test launch os.Args[0] with envFakeEngine set.
func TestMain(m *testing.M) {
	if os.Getenv(envFakeEngine) == "1" {
		os.Exit(fakeEngine(os.Args[1:]))
	}
	os.Exit(m.Run())
}

// fakeEngine mimics the engine's stdout protocol. Variant 6 finds no route.
func fakeEngine(args []string) int {
	if len(args) < 5 {
		fmt.Println("usage: router <variant> <src_lon> <src_lat> <dst_lon> <dst_lat> [start] [deadline]")
		return 2
	}
	fmt.Println("Loading map nodes...")
	if args[0] == "6" {
		fmt.Println("No feasible route before the deadline.")
		return 0
	}
	fmt.Printf("Route found from (%s, %s) to (%s, %s)\n", args[2], args[1], args[4], args[3])
	fmt.Printf("SUCCESS_KML_READY:route_prob%s.kml\n", args[0])
	return 0
}

func setupFakeEngine(t *testing.T) {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}
	dir := t.TempDir()
	t.Setenv(envFakeEngine, "1")
	t.Setenv("ROUTEDESK_ENGINE_PATH", exe)
	t.Setenv("ROUTEDESK_ENGINE_DIR", dir)
	t.Setenv("ROUTEDESK_DB_PATH", filepath.Join(dir, "routedesk.db"))
	t.Setenv("ROUTEDESK_LOG_LEVEL", "error")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVariantsCommand(t *testing.T) {
	out, err := execute(t, "variants")
	if err != nil {
		t.Fatalf("variants: %v", err)
	}
	for _, v := range model.Variants() {
		if !strings.Contains(out, v.String()) {
			t.Errorf("output missing %q:\n%s", v.String(), out)
		}
	}
}

func TestRunCommandSuccess(t *testing.T) {
	setupFakeEngine(t)

	out, err := execute(t, "run", "--no-viewer",
		"--variant", "2",
		"--src-lat", "23.7806", "--src-lon", "90.4193",
		"--dst-lat", "23.7298", "--dst-lon", "90.4109",
	)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	for _, want := range []string{
		engine.Placeholder,
		"Route found from (23.7806, 90.4193) to (23.7298, 90.4109)",
		"route_prob2.kml",
		"Advanced Route Generated Successfully!",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "SUCCESS_KML_READY") {
		t.Errorf("marker line leaked into output:\n%s", out)
	}
}

func TestRunCommandNoRoute(t *testing.T) {
	setupFakeEngine(t)

	out, err := execute(t, "run", "--no-viewer",
		"--variant", "6",
		"--src-lat", "23.7806", "--src-lon", "90.4193",
		"--dst-lat", "23.7298", "--dst-lon", "90.4109",
		"--deadline", "1240",
	)
	if err == nil {
		t.Fatalf("run succeeded, want error\n%s", out)
	}
	if !strings.Contains(err.Error(), model.StatusFailed) {
		t.Errorf("error = %v, want failed status", err)
	}
	if !strings.Contains(out, "No feasible route before the deadline.") {
		t.Errorf("output missing engine transcript:\n%s", out)
	}
	if strings.Contains(out, "Advanced Route Generated Successfully!") {
		t.Errorf("failure printed import instructions:\n%s", out)
	}
}

func TestRunCommandArgErrors(t *testing.T) {
	setupFakeEngine(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing coordinates", []string{"run", "--variant", "1"}},
		{"variant out of range", []string{"run", "--no-viewer", "--variant", "9",
			"--src-lat", "1", "--src-lon", "2", "--dst-lat", "3", "--dst-lon", "4"}},
		{"variant not a number", []string{"run", "--no-viewer", "--variant", "fast",
			"--src-lat", "1", "--src-lon", "2", "--dst-lat", "3", "--dst-lon", "4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Error("run succeeded, want error")
			}
		})
	}
}

func TestRunCommandBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routedesk.yaml")
	if err := os.WriteFile(path, []byte("timeout_s: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := execute(t, "--config", path, "run", "--no-viewer", "--variant", "1",
		"--src-lat", "1", "--src-lon", "2", "--dst-lat", "3", "--dst-lon", "4")
	if err == nil {
		t.Fatal("run succeeded with invalid config")
	}
}
