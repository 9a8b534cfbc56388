package main

import (
	"context"
	"net/http"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stiffinWanjohi/streampool/internal/api"
	"github.com/stiffinWanjohi/streampool/internal/app"
)

func allCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all [count]",
		Short: "Run the pool, monitor and HTTP API in one process",
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

			log.Info("starting streampool in combined mode",
				"consumers", cfg.Pool.Consumers,
				"api_addr", cfg.API.Addr,
			)
			return runAll(ctx, svc)
		},
	}
}

// runAll runs every service until ctx ends or one of them fails.
func runAll(ctx context.Context, svc *app.Services) error {
	cfg := svc.Config

	m, err := newMonitor(svc)
	if err != nil {
		return err
	}

	serverCfg := api.ServerConfigFrom(cfg)
	serverCfg.MetricsHandler = svc.MetricsHandler()
	serverCfg.Metrics = svc.Metrics
	serverCfg.Tracer = svc.Tracer
	serverCfg.Throughput = m
	server := api.NewServer(svc.Streams, serverCfg)

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runConsumers(gctx, svc) })
	g.Go(func() error { return runMonitor(gctx, svc, m) })
	g.Go(func() error { return api.Run(gctx, httpServer, cfg.API.ShutdownTimeout) })

	if err := g.Wait(); err != nil {
		log.Error("streampool stopped with error", "error", err)
		return err
	}
	log.Info("streampool stopped")
	return nil
}
