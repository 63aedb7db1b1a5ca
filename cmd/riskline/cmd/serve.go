package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/riskline/internal/api"
	"github.com/good-yellow-bee/riskline/internal/jobs"
	buildinfo "github.com/good-yellow-bee/riskline/pkg/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the jobs on a schedule and serve the HTTP API",
	Long: `Run every rule and the escalation sweep on the configured intervals and
serve health checks, Prometheus metrics and the job and notification API.

Endpoints:
  GET  /healthz
  GET  /readyz
  GET  /metrics
  GET  /api/v1/jobs
  POST /api/v1/jobs/{name}/run?force=true
  GET  /api/v1/notifications?recipient=&tenant=&status=&type=&limit=
  POST /api/v1/notifications/{id}/ack
  POST /api/v1/notifications/{id}/resolve`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			srv, err := api.New(api.Config{
				Address: a.cfg.Schedule.Listen,
				Verbose: isVerbose(),
				Version: buildinfo.Version,
			}, a.store, a.jobs, a.log)
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.Run(ctx)
			})
			g.Go(func() error {
				a.jobs.Start(ctx, jobs.Schedule{
					RulesInterval: a.cfg.Schedule.RulesInterval,
					SweepInterval: a.cfg.Schedule.SweepInterval,
					RunOnStart:    a.cfg.Schedule.RunOnStart,
				})
				return nil
			})

			err = g.Wait()
			a.log.Info("riskline stopped", slog.Any("error", err))
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
