// Command eyenet-monitor runs the EyeNet monitoring service: metric
// collection, threshold alerting, and batched notification delivery.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eyenet/eyenet-monitor/internal/config"
	"github.com/eyenet/eyenet-monitor/internal/logger"
	"github.com/eyenet/eyenet-monitor/internal/monitor"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	root := &cobra.Command{
		Use:     "eyenet-monitor",
		Short:   "EyeNet metrics collection and alerting service",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, debug)
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging to stderr")

	root.AddCommand(newCheckCmd(&configPath))
	return root
}

// newCheckCmd validates configuration, including a live test send on every
// enabled notification channel, without starting the service.
func newCheckCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and test notification channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger.InitLogger(logLevel(cfg.Logging.Level, false), cfg.Logging.Path, true)
			defer logger.Close()

			svc, err := monitor.New(cfg)
			if err != nil {
				return err
			}
			defer svc.Stop()

			nc := cfg.Notify
			if !nc.Email.Enabled && !nc.Discord.Enabled {
				fmt.Println("Configuration OK (no notification channels enabled)")
				return nil
			}
			if err := svc.UpdateNotificationSettings(cmd.Context(), nc); err != nil {
				return fmt.Errorf("notification test: %w", err)
			}
			fmt.Println("Configuration OK, notification channels verified")
			return nil
		},
	}
}

func run(configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level := cfg.Logging.Level
	console := cfg.Logging.Console
	if debug {
		level = "debug"
		console = true
	}
	logger.InitLogger(logLevel(level, debug), cfg.Logging.Path, console)
	defer logger.Close()

	logger.Info("starting eyenet-monitor", "version", version)

	svc, err := monitor.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(ctx); err != nil {
		svc.Stop()
		return err
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")
	return svc.Stop()
}

func logLevel(level string, debug bool) logger.LogLevel {
	if debug {
		return logger.LevelDebug
	}
	switch strings.ToLower(level) {
	case "debug":
		return logger.LevelDebug
	case "warn":
		return logger.LevelWarn
	case "error":
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}
