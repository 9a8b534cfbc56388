package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/stiffinWanjohi/streampool/internal/app"
	"github.com/stiffinWanjohi/streampool/internal/monitor"
)

func monitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Report processing throughput periodically",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(nil)
			if err != nil {
				return err
			}

			ctx, cancel := app.ShutdownContext(cmd.Context())
			defer cancel()

			svc, err := app.Init(ctx, cfg)
			if err != nil {
				log.Error("startup failed", "error", err)
				return err
			}
			defer svc.Close(context.Background())

			m, err := newMonitor(svc)
			if err != nil {
				return err
			}
			return runMonitor(ctx, svc, m)
		},
	}
}

func newMonitor(svc *app.Services) (*monitor.Monitor, error) {
	m, err := monitor.New(svc.Streams, monitor.ConfigFrom(svc.Config))
	if err != nil {
		log.Error("failed to create monitor", "error", err)
		return nil, err
	}
	return m.WithMetrics(svc.Metrics).WithTracer(svc.Tracer), nil
}

// runMonitor ticks m until ctx ends.
func runMonitor(ctx context.Context, svc *app.Services, m *monitor.Monitor) error {
	m.Start(ctx)
	<-ctx.Done()

	if err := m.StopAndWait(svc.Config.Pool.ShutdownTimeout); err != nil {
		log.Error("monitor shutdown error", "error", err)
		return err
	}
	log.Info("monitor stopped")
	return nil
}
