package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskqueue/orchestrator/internal/engine"
	"github.com/taskqueue/orchestrator/internal/health"
	"github.com/taskqueue/orchestrator/internal/registry"
)

var monitorFlags struct {
	interval time.Duration
}

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Poll and print system status and active alarms to the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd.Context())
		},
	}
	cmd.Flags().DurationVar(&monitorFlags.interval, "interval", 10*time.Second, "poll interval")
	return cmd
}

func runMonitor(ctx context.Context) error {
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

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ticker := time.NewTicker(monitorFlags.interval)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	printSnapshot(runCtx, eng)
	for {
		select {
		case <-quit:
			return nil
		case <-ticker.C:
			printSnapshot(runCtx, eng)
		}
	}
}

func printSnapshot(ctx context.Context, eng *engine.Engine) {
	status, err := eng.CurrentStatus(ctx)
	if err != nil {
		fmt.Printf("[%s] status: error: %v\n", time.Now().UTC().Format(time.RFC3339), err)
		return
	}

	alarms, err := eng.Alarms.ActiveAlarms(ctx)
	if err != nil {
		fmt.Printf("[%s] status: %s  alarms: error: %v\n", time.Now().UTC().Format(time.RFC3339), status.OverallHealth, err)
		return
	}

	fmt.Printf("[%s] status: %s  active_alarms: %d\n", time.Now().UTC().Format(time.RFC3339), status.OverallHealth, len(alarms))
	for _, a := range alarms {
		fmt.Printf("  - [%s] %s: %s (occurrences: %d)\n", a.Severity, a.AlarmType, a.Title, a.OccurrenceCount)
	}
}
