package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newIndexCommand(configFlag *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect and rebuild the storage key index",
	}
	cmd.AddCommand(newIndexStatsCommand(configFlag))
	cmd.AddCommand(newIndexRebuildCommand(configFlag))
	return cmd
}

func newIndexStatsCommand(configFlag *string) *cobra.Command {
	var bucketFlag string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics for a bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configFlag)
			if err != nil {
				return err
			}
			defer a.Close()

			bucket := bucketFlag
			if bucket == "" {
				bucket = a.cfg.Storage.Bucket
			}
			if err := a.cache.EnsureFresh(cmd.Context(), bucket, false); err != nil {
				return fmt.Errorf("building index: %w", err)
			}
			printStats(cmd, a, bucket)
			return nil
		},
	}
	cmd.Flags().StringVar(&bucketFlag, "bucket", "", "Bucket to inspect (default: configured bucket)")
	return cmd
}

func newIndexRebuildCommand(configFlag *string) *cobra.Command {
	var bucketFlag string
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Force a full index rebuild for a bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configFlag)
			if err != nil {
				return err
			}
			defer a.Close()

			bucket := bucketFlag
			if bucket == "" {
				bucket = a.cfg.Storage.Bucket
			}
			if err := a.cache.EnsureFresh(cmd.Context(), bucket, true); err != nil {
				return fmt.Errorf("rebuilding index: %w", err)
			}
			printStats(cmd, a, bucket)
			return nil
		},
	}
	cmd.Flags().StringVar(&bucketFlag, "bucket", "", "Bucket to rebuild (default: configured bucket)")
	return cmd
}

func printStats(cmd *cobra.Command, a *app, bucket string) {
	stats := a.cache.Stats(bucket)
	cmd.Println(renderTable(
		[]string{"Bucket", "Keys", "Built At"},
		[][]string{{stats.Bucket, strconv.Itoa(stats.Keys), stats.BuiltAt.UTC().Format(time.RFC3339)}},
		[]columnAlignment{alignLeft, alignRight, alignLeft},
	))
}
