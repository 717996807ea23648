package main

import (
	"github.com/spf13/cobra"

	"mber/internal/bundler"
	"mber/internal/config"
	"mber/internal/history"
	"mber/internal/logging"
	"mber/internal/metrics"
	"mber/internal/offload"
	"mber/internal/watch"
)

var (
	buildTesting     bool
	buildFastboot    bool
	buildWatch       bool
	buildOffload     bool
	buildHash        string
	buildOutput      string
	buildMetricsFile string
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Bundle the staged application into the output directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, config.Overrides{
			Testing:     boolFlag(cmd, "testing", &buildTesting),
			Fastboot:    boolFlag(cmd, "fastboot", &buildFastboot),
			Watch:       boolFlag(cmd, "watch", &buildWatch),
			Offload:     boolFlag(cmd, "offload", &buildOffload),
			HashAlgo:    buildHash,
			OutputDir:   buildOutput,
			MetricsFile: buildMetricsFile,
		})
		if err != nil {
			return err
		}
		logger := logging.L()

		m := metrics.New()
		m.SetBuildInfo(version, cfg.Environment)

		opts := []bundler.Option{
			bundler.WithLogger(logger),
			bundler.WithMetrics(m),
			bundler.WithOutput(cmd.OutOrStdout()),
		}

		if cfg.History.Enabled {
			store, err := history.Open(cfg.History.Path)
			if err != nil {
				logging.S().Warnf("build history disabled: %v", err)
			} else {
				defer store.Close()
				opts = append(opts, bundler.WithHistory(store))
			}
		}

		if cfg.Offload {
			uploader, err := offload.New(cmd.Context(), cfg.OffloadTarget)
			if err != nil {
				return err
			}
			opts = append(opts, bundler.WithUploader(uploader))
		}

		service, err := bundler.NewService(cfg, opts...)
		if err != nil {
			return err
		}

		if cfg.Watch {
			return service.Watch(cmd.Context(), watch.DefaultDebounce)
		}
		_, err = service.Build(cmd.Context())
		return err
	},
}

func init() {
	buildCmd.Flags().BoolVarP(&buildTesting, "testing", "t", false, "include the test runner page")
	buildCmd.Flags().BoolVar(&buildFastboot, "fastboot", true, "write the FastBoot package.json")
	buildCmd.Flags().BoolVarP(&buildWatch, "watch", "w", false, "rebuild when the staging directory changes")
	buildCmd.Flags().BoolVar(&buildOffload, "offload", false, "upload hashed assets to object storage after the build")
	buildCmd.Flags().StringVar(&buildHash, "hash", "", "content digest: md5 or xxhash (default md5)")
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "output directory (default dist)")
	buildCmd.Flags().StringVar(&buildMetricsFile, "metrics-file", "", "write Prometheus metrics to this file after each build")
	rootCmd.AddCommand(buildCmd)
}
