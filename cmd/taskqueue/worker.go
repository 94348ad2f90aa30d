package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taskqueue/orchestrator/internal/engine"
	"github.com/taskqueue/orchestrator/internal/health"
	"github.com/taskqueue/orchestrator/internal/logger"
	"github.com/taskqueue/orchestrator/internal/registry"
	"github.com/taskqueue/orchestrator/internal/taskhandlers"
)

var workerFlags struct {
	count int
}

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run worker processes that poll the broker and execute tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&workerFlags.count, "count", 1, "number of independent worker wrappers to spawn in this process")
	return cmd
}

func runWorker(ctx context.Context) error {
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

	eng.SpawnWorkers(workerFlags.count)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	eng.StartWorkers(runCtx)
	log.Info().Int("count", workerFlags.count).Msg("worker process started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker process")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	eng.TriggerShutdown(shutdownCtx, "worker process received shutdown signal")

	return nil
}
