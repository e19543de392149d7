package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/seantiz/routedesk/internal/api"
)

func newServeCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Starts the job API on the configured listen address. Jobs are submitted
with POST /v1/jobs and their outcomes streamed from /v1/jobs/{id}/events.
Only one job runs at a time; a submission while a job is active is rejected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger := newLogger(os.Stdout, cfg)

			logger.Info("routedesk: starting",
				"listen_addr", cfg.ListenAddr,
				"db_path", cfg.DBPath,
				"engine_path", cfg.EnginePath,
				"engine_dir", cfg.EngineDir,
			)

			a, err := openApp(cfg, logger, cfg.OpenViewer)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := api.NewServer(cfg.ListenAddr, a.store, a.engine, logger)
			return srv.Run(cmd.Context())
		},
	}
}
