package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		envListenAddr, envDBPath, envLogLevel, envEnginePath, envEngineDir,
		envTimeoutS, envViewerURL, envOpenViewer, envRequireZeroExit, envStrictCoordinates,
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "routedesk.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.ListenAddr != defaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, defaultListenAddr)
	}
	if cfg.DBPath != defaultDBPath {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, defaultDBPath)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelInfo)
	}
	if cfg.EngineDir != "." || cfg.EnginePath != "" {
		t.Errorf("engine = %q in %q, want platform default in .", cfg.EnginePath, cfg.EngineDir)
	}
	if cfg.TimeoutS != 0 {
		t.Errorf("TimeoutS = %d, want 0", cfg.TimeoutS)
	}
	if !cfg.OpenViewer || cfg.RequireZeroExit || cfg.StrictCoordinates {
		t.Errorf("flags = open:%v zero:%v strict:%v", cfg.OpenViewer, cfg.RequireZeroExit, cfg.StrictCoordinates)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(envListenAddr, ":9090")
	t.Setenv(envDBPath, "/tmp/test.db")
	t.Setenv(envLogLevel, "debug")
	t.Setenv(envEnginePath, "/opt/router")
	t.Setenv(envTimeoutS, "90")
	t.Setenv(envOpenViewer, "false")
	t.Setenv(envRequireZeroExit, "true")
	t.Setenv(envStrictCoordinates, "1")

	cfg := Load()

	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9090")
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "/tmp/test.db")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelDebug)
	}
	if cfg.EnginePath != "/opt/router" {
		t.Errorf("EnginePath = %q", cfg.EnginePath)
	}
	if cfg.TimeoutS != 90 {
		t.Errorf("TimeoutS = %d, want 90", cfg.TimeoutS)
	}
	if cfg.OpenViewer || !cfg.RequireZeroExit || !cfg.StrictCoordinates {
		t.Errorf("flags = open:%v zero:%v strict:%v", cfg.OpenViewer, cfg.RequireZeroExit, cfg.StrictCoordinates)
	}
}

func TestLoadIgnoresMalformedEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(envTimeoutS, "soon")
	t.Setenv(envOpenViewer, "maybe")

	cfg := Load()

	if cfg.TimeoutS != 0 {
		t.Errorf("TimeoutS = %d, want 0", cfg.TimeoutS)
	}
	if !cfg.OpenViewer {
		t.Error("OpenViewer = false, want default true")
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
listen_addr: ":7000"
log_level: warn
engine_path: ./bin/router
engine_dir: /srv/engine
timeout_s: 120
open_viewer: false
strict_coordinates: true
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.ListenAddr != ":7000" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.LogLevel != slog.LevelWarn {
		t.Errorf("LogLevel = %v, want warn", cfg.LogLevel)
	}
	if cfg.EnginePath != "./bin/router" || cfg.EngineDir != "/srv/engine" {
		t.Errorf("engine = %q in %q", cfg.EnginePath, cfg.EngineDir)
	}
	if cfg.TimeoutS != 120 {
		t.Errorf("TimeoutS = %d", cfg.TimeoutS)
	}
	if cfg.OpenViewer || !cfg.StrictCoordinates {
		t.Errorf("flags = open:%v strict:%v", cfg.OpenViewer, cfg.StrictCoordinates)
	}
	if cfg.DBPath != defaultDBPath {
		t.Errorf("DBPath = %q, want default kept", cfg.DBPath)
	}
}

func TestLoadFileEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "listen_addr: \":7000\"\ntimeout_s: 120\n")
	t.Setenv(envListenAddr, ":9999")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q, want env override", cfg.ListenAddr)
	}
	if cfg.TimeoutS != 120 {
		t.Errorf("TimeoutS = %d, want file value", cfg.TimeoutS)
	}
}

func TestLoadFileExpandsEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ROUTEDESK_TEST_DIR", "/data/maps")
	path := writeConfig(t, "engine_dir: ${ROUTEDESK_TEST_DIR}\n")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.EngineDir != "/data/maps" {
		t.Errorf("EngineDir = %q", cfg.EngineDir)
	}
}

func TestLoadFileErrors(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(t.TempDir(), "absent.yaml")},
		{"malformed yaml", writeConfig(t, "listen_addr: [unterminated\n")},
		{"negative timeout", writeConfig(t, "timeout_s: -5\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFile(tt.path); err == nil {
				t.Error("LoadFile succeeded, want error")
			}
		})
	}
}

func TestLoadFileEmptyPath(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.ListenAddr != defaultListenAddr {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		got := parseLogLevel(tt.input)
		if got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLoggerOutputsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)
	if logger == nil {
		t.Fatal("NewLogger returned nil")
	}

	logger.Info("test message", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("logger output is not valid JSON: %v\noutput: %s", err, buf.String())
	}

	for _, key := range []string{"time", "level", "msg"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("JSON output missing expected key %q", key)
		}
	}
	if entry["msg"] != "test message" {
		t.Errorf("msg = %v, want %q", entry["msg"], "test message")
	}
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn)
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %s", buf.String())
	}
}
