package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/taskqueue/orchestrator/internal/config"
	"github.com/taskqueue/orchestrator/internal/logger"
)

var rootFlags struct {
	host     string
	port     int
	debug    bool
	logLevel string
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "taskqueue",
		Short: "Task queue orchestration engine",
	}

	root.PersistentFlags().StringVar(&rootFlags.host, "host", "", "bind host, overrides config")
	root.PersistentFlags().IntVar(&rootFlags.port, "port", 0, "bind port, overrides config")
	root.PersistentFlags().BoolVar(&rootFlags.debug, "debug", false, "enable pretty debug logging")
	root.PersistentFlags().StringVar(&rootFlags.logLevel, "log-level", "", "log level, overrides config")

	root.AddCommand(newAPICmd())
	root.AddCommand(newDashboardCmd())
	root.AddCommand(newWorkerCmd())
	root.AddCommand(newMonitorCmd())
	root.AddCommand(newHealthCmd())

	return root
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if rootFlags.host != "" {
		cfg.Server.Host = rootFlags.host
	}
	if rootFlags.port != 0 {
		cfg.Server.Port = rootFlags.port
	}
	if rootFlags.logLevel != "" {
		cfg.LogLevel = rootFlags.logLevel
	}

	logger.Init(cfg.LogLevel, rootFlags.debug || os.Getenv("ENV") != "production")

	return cfg, nil
}
