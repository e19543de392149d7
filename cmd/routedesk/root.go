package main

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/seantiz/routedesk/internal/config"
	"github.com/seantiz/routedesk/internal/engine"
	"github.com/seantiz/routedesk/internal/handoff"
	"github.com/seantiz/routedesk/internal/invocation"
	"github.com/seantiz/routedesk/internal/runner"
	"github.com/seantiz/routedesk/internal/store"
)

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "routedesk",
		Short: "Run routing-engine jobs and hand the generated map to a viewer",
		Long: "routedesk launches the routing engine for one of six routing problems,\n" +
			"collects its output and opens the map viewer for the generated KML file.",
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		SilenceUsage: true,
		Version:      version,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	load := func() (config.Config, error) {
		return config.LoadFile(configPath)
	}

	rootCmd.AddCommand(newServeCmd(load))
	rootCmd.AddCommand(newRunCmd(load))
	rootCmd.AddCommand(newVariantsCmd())
	return rootCmd
}

type configLoader func() (config.Config, error)

// app bundles the store and engine a command runs against.
type app struct {
	store  *store.SQLiteStore
	engine *engine.Engine
}

// openApp opens the job store and starts an engine configured by cfg.
// openViewer selects whether successful runs open the browser; without it
// the notice names the viewer address instead.
func openApp(cfg config.Config, logger *slog.Logger, openViewer bool) (*app, error) {
	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var viewer handoff.Viewer
	if openViewer {
		viewer = handoff.BrowserViewer{}
	}

	eng := engine.NewEngine(db, runner.NewExecRunner(logger), handoff.New(viewer, cfg.ViewerURL, logger), engine.Config{
		Builder: invocation.Builder{
			GOOS: runtime.GOOS,
			Path: cfg.EnginePath,
			Dir:  cfg.EngineDir,
		},
		TimeoutS:          cfg.TimeoutS,
		RequireZeroExit:   cfg.RequireZeroExit,
		StrictCoordinates: cfg.StrictCoordinates,
	}, logger)

	return &app{store: db, engine: eng}, nil
}

// Close stops the engine after its last outcome and closes the store.
func (a *app) Close() {
	a.engine.Close()
	a.store.Close()
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	return config.NewLogger(w, cfg.LogLevel)
}
