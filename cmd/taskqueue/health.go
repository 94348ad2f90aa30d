package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskqueue/orchestrator/internal/engine"
	"github.com/taskqueue/orchestrator/internal/health"
	"github.com/taskqueue/orchestrator/internal/model"
	"github.com/taskqueue/orchestrator/internal/registry"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the persisted system status once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd.Context())
		},
	}
}

func runHealth(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	reg := registry.New()
	eng, err := engine.New(ctx, cfg, reg, []health.ExternalService{})
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer eng.Close()

	status, err := eng.CurrentStatus(ctx)
	if err != nil {
		return fmt.Errorf("get system status: %w", err)
	}

	fmt.Printf("operational=%t health=%s shutdown_requested=%t\n", status.IsOperational, status.OverallHealth, status.ShutdownRequested)

	if !status.IsOperational || status.OverallHealth == model.HealthCritical {
		os.Exit(1)
	}
	return nil
}
