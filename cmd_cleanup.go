package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dictakey/internal/cleanup"
	"dictakey/internal/config"
	"dictakey/internal/logger"
	"dictakey/internal/usecase"
)

func newCleanupCommand() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete saved recordings older than the retention period",
		Long: `Delete saved recordings older than the retention period.

The period comes from store.retention_days unless --days is given. A period of
zero keeps every recording.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("days") {
				days = cfg.Store.RetentionDays
			}
			if days <= 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Retention is disabled; nothing removed.")
				return nil
			}

			sweeper := cleanup.NewSweeper(cleanup.Config{
				TempDir:       cfg.Session.TempDir,
				TempPrefix:    usecase.TempRecordingPrefix,
				RecordingsDir: cfg.Session.RecordingsDir,
				Retention:     time.Duration(days) * 24 * time.Hour,
			}, logger.New(logger.Config{Level: logger.ParseLevel(cfg.Log.Level)}))

			removed, err := sweeper.SweepRecordings()
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d recording(s) older than %d day(s).\n", removed, days)
			return err
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Override the retention period in days")
	return cmd
}
