package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskqueue/orchestrator/internal/api"
	"github.com/taskqueue/orchestrator/internal/engine"
	"github.com/taskqueue/orchestrator/internal/events"
	"github.com/taskqueue/orchestrator/internal/health"
	"github.com/taskqueue/orchestrator/internal/logger"
	"github.com/taskqueue/orchestrator/internal/registry"
	"github.com/taskqueue/orchestrator/internal/taskhandlers"
)

func newAPICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "Run the HTTP API, scheduler, health evaluator, and alarm engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAPI(cmd.Context())
		},
	}
}

func runAPI(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.Get()

	reg := registry.New()
	taskhandlers.RegisterBuiltins(reg)

	eng, err := engine.New(ctx, cfg, reg, []health.ExternalService{})
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	publisher := events.NewRedisPubSub(eng.Redis)
	defer publisher.Close()

	server := api.NewServer(cfg, eng.Manager, eng.Store, eng.Alarms, eng.Redis, publisher, eng.TriggerShutdown)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	server.Start(runCtx)
	eng.StartControlPlane(runCtx)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down API server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	server.Stop()
	eng.TriggerShutdown(shutdownCtx, "api server received shutdown signal")

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	return nil
}
