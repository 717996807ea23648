// Package main - mber command-line interface
// Assembles the distributable bundle of an Ember application.
//
// Usage:
//
//	mber build                  # Bundle tmp/ into dist/
//	mber build --env production # Production bundle, test page excluded
//	mber build --watch          # Rebuild on every staging change
//	mber offload                # Upload dist/ assets to S3 or MinIO
//	mber history                # Show recent builds
//	mber version                # Show version
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mber/internal/config"
	"mber/internal/logging"
)

// Set at link time with -ldflags "-X main.version=..."
var version = "dev"

var (
	flagEnv      string
	flagProject  string
	flagJSONLogs bool
	flagDebug    bool
)

var rootCmd = &cobra.Command{
	Use:           "mber",
	Short:         "Build tool for Ember.js applications",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagEnv, "env", "e", "", "application environment (default development)")
	rootCmd.PersistentFlags().StringVar(&flagProject, "project", "", "project root (default: nearest parent with mber.toml or package.json)")
	rootCmd.PersistentFlags().BoolVar(&flagJSONLogs, "json-logs", false, "emit JSON logs")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		logging.L().Error("command failed", zap.Error(err))
		logging.Sync()
		os.Exit(1)
	}
	logging.Sync()
}

// loadConfig resolves the project configuration with the persistent flags and
// any command specific overrides, then initializes logging from it.
func loadConfig(cmd *cobra.Command, overrides config.Overrides) (*config.Config, error) {
	overrides.ProjectRoot = flagProject
	overrides.Environment = flagEnv
	if cmd.Flags().Changed("json-logs") {
		overrides.JSONLogs = &flagJSONLogs
	}
	if cmd.Flags().Changed("debug") {
		overrides.Debug = &flagDebug
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(cwd, overrides)
	if err != nil {
		return nil, err
	}

	logging.Init(logging.Options{JSON: cfg.JSONLogs, Debug: cfg.Debug})
	return cfg, nil
}

// boolFlag returns a pointer to value when the flag was set on the command line.
func boolFlag(cmd *cobra.Command, name string, value *bool) *bool {
	if cmd.Flags().Changed(name) {
		return value
	}
	return nil
}
