package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newRepairCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Reconcile catalog storage keys against the bucket index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepair(cmd, *configFlag)
		},
	}
}

func runRepair(cmd *cobra.Command, configPath string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if _, err := a.repair.Run(ctx); err != nil {
		return err
	}

	// The run is asynchronous; poll until it settles.
	for {
		status := a.repair.Status()
		if status != nil && status.Status != "running" {
			if status.Status == "failed" {
				return fmt.Errorf("repair failed: %s", status.Error)
			}
			cmd.Println(renderTable(
				[]string{"Total", "Fixed", "Fixed (medium)", "Skipped", "Errors"},
				[][]string{{
					strconv.Itoa(status.TotalTracks),
					strconv.Itoa(status.Fixed),
					strconv.Itoa(status.FixedMedium),
					strconv.Itoa(status.Skipped),
					strconv.Itoa(status.Errors),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		}
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-time.After(200 * time.Millisecond):
		}
	}
}
