package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr = ":8080"
	defaultDBPath     = "routedesk.db"
	defaultEngineDir  = "."

	envListenAddr        = "ROUTEDESK_LISTEN_ADDR"
	envDBPath            = "ROUTEDESK_DB_PATH"
	envLogLevel          = "ROUTEDESK_LOG_LEVEL"
	envEnginePath        = "ROUTEDESK_ENGINE_PATH"
	envEngineDir         = "ROUTEDESK_ENGINE_DIR"
	envTimeoutS          = "ROUTEDESK_TIMEOUT_S"
	envViewerURL         = "ROUTEDESK_VIEWER_URL"
	envOpenViewer        = "ROUTEDESK_OPEN_VIEWER"
	envRequireZeroExit   = "ROUTEDESK_REQUIRE_ZERO_EXIT"
	envStrictCoordinates = "ROUTEDESK_STRICT_COORDINATES"
)

// Config holds application configuration loaded from an optional YAML file
// and environment variables.
type Config struct {
	ListenAddr string     `yaml:"listen_addr"`
	DBPath     string     `yaml:"db_path"`
	Level      string     `yaml:"log_level"`
	LogLevel   slog.Level `yaml:"-"`

	// EnginePath overrides the platform default engine executable.
	EnginePath string `yaml:"engine_path"`

	// EngineDir is the engine's working directory and where artifacts land.
	EngineDir string `yaml:"engine_dir"`

	// TimeoutS bounds each job. Zero means unbounded.
	TimeoutS int `yaml:"timeout_s"`

	ViewerURL         string `yaml:"viewer_url"`
	OpenViewer        bool   `yaml:"open_viewer"`
	RequireZeroExit   bool   `yaml:"require_zero_exit"`
	StrictCoordinates bool   `yaml:"strict_coordinates"`
}

func defaults() Config {
	return Config{
		ListenAddr: defaultListenAddr,
		DBPath:     defaultDBPath,
		Level:      "info",
		LogLevel:   slog.LevelInfo,
		EngineDir:  defaultEngineDir,
		OpenViewer: true,
	}
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := defaults()
	loadFromEnv(&cfg)
	return cfg
}

// LoadFile reads the YAML file at path, then applies environment overrides.
// An empty path behaves like Load.
func LoadFile(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
		cfg.LogLevel = parseLogLevel(cfg.Level)
	}
	loadFromEnv(&cfg)

	if cfg.TimeoutS < 0 {
		return Config{}, fmt.Errorf("timeout_s must not be negative, got %d", cfg.TimeoutS)
	}
	return cfg, nil
}

func loadFromEnv(cfg *Config) {
	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.Level = v
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envEnginePath); v != "" {
		cfg.EnginePath = v
	}
	if v := os.Getenv(envEngineDir); v != "" {
		cfg.EngineDir = v
	}
	if v := os.Getenv(envViewerURL); v != "" {
		cfg.ViewerURL = v
	}
	if n, err := strconv.Atoi(os.Getenv(envTimeoutS)); err == nil && n >= 0 {
		cfg.TimeoutS = n
	}
	envBool(envOpenViewer, &cfg.OpenViewer)
	envBool(envRequireZeroExit, &cfg.RequireZeroExit)
	envBool(envStrictCoordinates, &cfg.StrictCoordinates)
}

// envBool sets *dst from the named variable when it holds a valid boolean.
func envBool(name string, dst *bool) {
	if b, err := strconv.ParseBool(os.Getenv(name)); err == nil {
		*dst = b
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
