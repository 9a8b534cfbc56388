package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/stiffinWanjohi/streampool/internal/app"
	"github.com/stiffinWanjohi/streampool/internal/consumer"
	"github.com/stiffinWanjohi/streampool/internal/roster"
)

func consumersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consumers [count]",
		Short: "Run the consumer pool",
		Long:  "Ensure the consumer group exists and run count consumers (default from configuration) until interrupted.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(args)
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

			return runConsumers(ctx, svc)
		},
	}
}

// runConsumers runs the pool, and the reclaimer when enabled, until ctx ends.
func runConsumers(ctx context.Context, svc *app.Services) error {
	cfg := svc.Config

	pool := consumer.NewPool(svc.Streams, roster.New(svc.Redis, cfg.Streams.ConsumerIDsKey), consumer.ConfigFrom(cfg)).
		WithMetrics(svc.Metrics).
		WithTracer(svc.Tracer)

	if err := pool.EnsureGroup(ctx); err != nil {
		log.Error("failed to ensure consumer group", "error", err)
		return err
	}
	if err := pool.Start(ctx, cfg.Pool.Consumers); err != nil {
		log.Error("failed to start consumer pool", "error", err)
		return err
	}

	var reclaimer *consumer.Reclaimer
	if cfg.Reclaim.Enabled {
		reclaimer = consumer.NewReclaimer(svc.Streams, consumer.ConfigFrom(cfg), consumer.ReclaimConfigFrom(cfg), "reclaimer-"+uuid.NewString()).
			WithMetrics(svc.Metrics).
			WithTracer(svc.Tracer)
		reclaimer.Start(ctx)
	}

	<-ctx.Done()
	log.Info("shutting down consumer pool", "consumers", pool.Size())

	var shutdownErr error
	if reclaimer != nil {
		if err := reclaimer.StopAndWait(cfg.Pool.ShutdownTimeout); err != nil {
			log.Error("reclaimer shutdown error", "error", err)
			shutdownErr = err
		}
	}
	if err := pool.StopAndWait(cfg.Pool.ShutdownTimeout); err != nil {
		log.Error("consumer pool shutdown error", "error", err)
		shutdownErr = fmt.Errorf("stop pool: %w", err)
	}
	log.Info("consumer pool stopped")
	return shutdownErr
}
