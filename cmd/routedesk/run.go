package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seantiz/routedesk/internal/engine"
	"github.com/seantiz/routedesk/internal/model"
)

func newRunCmd(load configLoader) *cobra.Command {
	var (
		variant                        string
		srcLat, srcLon, dstLat, dstLon string
		start, deadline                string
		timeoutS                       int
		noViewer                       bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one routing job and wait for its outcome",
		Long: `Launches the routing engine once, prints its transcript and, on success,
opens the map viewer with instructions for importing the generated file.
Exits non-zero when the engine reports no route.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			v, err := model.ParseVariant(variant)
			if err != nil {
				return err
			}

			logger := newLogger(cmd.ErrOrStderr(), cfg)
			a, err := openApp(cfg, logger, cfg.OpenViewer && !noViewer)
			if err != nil {
				return err
			}
			defer a.Close()

			outcomes := make(chan engine.Outcome, 1)
			a.engine.Publisher().AddSink(engine.SinkFunc(func(o engine.Outcome) {
				outcomes <- o
			}))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			j, err := a.engine.Submit(ctx, model.RoutingRequest{
				Variant:         v,
				SourceLon:       srcLon,
				SourceLat:       srcLat,
				DestLon:         dstLon,
				DestLat:         dstLat,
				StartMinutes:    start,
				DeadlineMinutes: deadline,
			}, engine.SubmitOptions{TimeoutS: timeoutS})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, engine.Placeholder)

			var o engine.Outcome
			select {
			case o = <-outcomes:
			case <-ctx.Done():
				_ = a.engine.Cancel(j.ID)
				o = <-outcomes
			}

			fmt.Fprintln(out, o.Notice)
			if o.Instructions != "" {
				fmt.Fprintf(out, "\n%s\n", o.Instructions)
			}
			if !o.Succeeded {
				return fmt.Errorf("routing job %s %s", j.ID, o.Status)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&variant, "variant", "", "routing problem variant, 1..6 (see 'routedesk variants')")
	f.StringVar(&srcLat, "src-lat", "", "source latitude")
	f.StringVar(&srcLon, "src-lon", "", "source longitude")
	f.StringVar(&dstLat, "dst-lat", "", "destination latitude")
	f.StringVar(&dstLon, "dst-lon", "", "destination longitude")
	f.StringVar(&start, "start", "", "start time in minutes since midnight (engine default 1125)")
	f.StringVar(&deadline, "deadline", "", "deadline in minutes since midnight (engine default 1240)")
	f.IntVar(&timeoutS, "timeout", 0, "abort the engine after this many seconds (0 uses the configured timeout)")
	f.BoolVar(&noViewer, "no-viewer", false, "do not open the map viewer on success")
	for _, name := range []string{"variant", "src-lat", "src-lon", "dst-lat", "dst-lon"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
