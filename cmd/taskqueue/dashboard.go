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
)

// newDashboardCmd serves the operator-facing read surface: the admin
// routes (workers, queues, dead-letter, alarms, status) and the
// WebSocket event feed, bound to the server's admin port rather than the
// submission API's port. It does not run the scheduler or the health
// evaluator; pair it with a running `taskqueue api` or `taskqueue worker`
// process for a populated system.
func newDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Serve the operator dashboard (admin routes + live event feed)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd.Context())
		},
	}
}

func runDashboard(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.Get()

	reg := registry.New()
	eng, err := engine.New(ctx, cfg, reg, []health.ExternalService{})
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer eng.Close()

	publisher := events.NewRedisPubSub(eng.Redis)
	defer publisher.Close()

	server := api.NewServer(cfg, eng.Manager, eng.Store, eng.Alarms, eng.Redis, publisher, nil)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	server.Start(runCtx)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.AdminPort),
		Handler: server,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("dashboard listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("dashboard server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down dashboard")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	server.Stop()
	return httpServer.Shutdown(shutdownCtx)
}
