package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crestline-io/snowcap/internal/importer"
	"github.com/crestline-io/snowcap/pkg/config"
	"github.com/crestline-io/snowcap/pkg/logger"
	"github.com/crestline-io/snowcap/pkg/metrics"
	"github.com/crestline-io/snowcap/pkg/transform"
)

var version = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:   "snowcap",
		Short: "Snowcap - incremental Snowflake to event-capture importer",
		Long: `Snowcap periodically extracts rows from a Snowflake table and converts each
row into a discrete event delivered to a downstream capture endpoint, resuming
safely across restarts and table growth.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Snowcap v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "transforms",
		Short: "List available transformation strategies",
		Run: func(cmd *cobra.Command, args []string) {
			names := transform.List()
			sort.Strings(names)
			fmt.Println("Available transformations:")
			for _, name := range names {
				fmt.Printf("  - %s\n", name)
			}
		},
	})

	var initPath string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteDefault(initPath); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", initPath)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&initPath, "output", "o", "snowcap.yaml", "Path for the generated config file")
	root.AddCommand(initCmd)

	var configFile string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run an import",
		Long: `Run a checkpointed batch import with the given configuration.

Example:
  snowcap run --config snowcap.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(configFile)
		},
	}
	runCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML configuration file (required)")
	_ = runCmd.MarkFlagRequired("config")
	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runImport(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logLevel := cfg.LogLevel
	if logLevel == "" {
		logLevel = "info"
	}
	if err := logger.Init(logger.Config{Level: logLevel, Encoding: "json"}); err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx = context.WithValue(ctx, logger.RunIDKey, newRunID())
	ctx = context.WithValue(ctx, logger.TableKey, cfg.Table)
	ctx = context.WithValue(ctx, logger.TransformKey, cfg.TransformationName)
	log := logger.WithContext(ctx).With(zap.String("component", "snowcap-cli"))

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, log)
	}

	imp, err := importer.New(ctx, cfg)
	if err != nil {
		return err
	}

	log.Info("starting import",
		zap.String("config", configFile),
		zap.Int64("batch_size", cfg.BatchSizeInt()),
		zap.Int64("frequency_seconds", cfg.FrequencySeconds()),
		zap.String("import_mechanism", cfg.ImportMechanism))

	if err := imp.Run(ctx); err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	log.Info("import stopped")
	return nil
}

// newRunID identifies one process lifetime in the logs.
func newRunID() string {
	return fmt.Sprintf("%x", time.Now().UnixNano())
}

func serveMetrics(addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	log.Info("serving metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn("metrics listener stopped", zap.Error(err))
	}
}
