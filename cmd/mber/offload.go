package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mber/internal/config"
	"mber/internal/logging"
	"mber/internal/manifest"
	"mber/internal/offload"
)

var offloadDryRun bool

var offloadCmd = &cobra.Command{
	Use:   "offload",
	Short: "Upload the hashed assets of the last build to S3 or MinIO",
	RunE: func(cmd *cobra.Command, args []string) error {
		// A dry run needs no bucket, so it skips offload validation.
		enabled := !offloadDryRun
		cfg, err := loadConfig(cmd, config.Overrides{Offload: &enabled})
		if err != nil {
			return err
		}

		m, err := manifest.Read(cfg.OutputDir)
		if err != nil {
			return fmt.Errorf("no build found in %s: %w", cfg.OutputDir, err)
		}

		var uploader offload.Uploader
		if offloadDryRun {
			uploader = &offload.MockUploader{BaseURL: cfg.OffloadTarget.PublicURL}
		} else {
			uploader, err = offload.New(cmd.Context(), cfg.OffloadTarget)
			if err != nil {
				return err
			}
		}

		urls, err := offload.OffloadAssets(cmd.Context(), cfg.OffloadTarget, uploader, cfg.OutputDir, m)
		if err != nil {
			return err
		}

		logical := make([]string, 0, len(urls))
		for key := range urls {
			logical = append(logical, key)
		}
		sort.Strings(logical)
		for _, key := range logical {
			fmt.Fprintf(cmd.OutOrStdout(), " - %s: %s\n", key, urls[key])
		}
		logging.L().Info("offload complete",
			zap.Int("files", len(urls)),
			zap.String("provider", cfg.OffloadTarget.Provider),
			zap.Bool("dry_run", offloadDryRun))
		return nil
	},
}

func init() {
	offloadCmd.Flags().BoolVar(&offloadDryRun, "dry-run", false, "print the URLs without uploading")
	rootCmd.AddCommand(offloadCmd)
}
