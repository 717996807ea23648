package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"mber/internal/config"
	"mber/internal/history"
	"mber/internal/report"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent builds and their sizes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, config.Overrides{})
		if err != nil {
			return err
		}

		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		builds, err := store.Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if len(builds) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No builds recorded. Enable [history] in mber.toml.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "BUILT\tBUILD ID\tENV\tDURATION\tSIZE\tFILES")
		for _, b := range builds {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
				b.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				b.BuildID,
				b.Environment,
				report.FormatTimePassed(b.DurationMS),
				report.FormatSize(b.TotalSize),
				len(b.Files))
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of builds to show")
	rootCmd.AddCommand(historyCmd)
}
