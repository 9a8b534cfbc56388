package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stiffinWanjohi/streampool/internal/app"
	"github.com/stiffinWanjohi/streampool/internal/publisher"
)

func publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Publish generated messages to the source stream",
		Long:  "Publish batches of messages with fresh ids to the source stream for the configured duration.",
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

			p := publisher.New(svc.Streams, publisher.ConfigFrom(cfg)).
				WithMetrics(svc.Metrics).
				WithTracer(svc.Tracer)

			total, err := p.Run(ctx)
			if err != nil {
				log.Error("publishing failed", "error", err, "published", total)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d messages to %s\n", total, cfg.Streams.Source)
			return nil
		},
	}
}
