package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/renderinc/docket-monitor/internal/monitor"
)

func runCmd() *cobra.Command {
	var freeOnly bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Poll due cases continuously",
		Long: `Run a monitoring cycle every polling.cycle_interval until interrupted.
A cycle in progress finishes the cases it already started before exiting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				sched, err := a.scheduler(freeOnly)
				if err != nil {
					return err
				}
				return sched.Run(ctx)
			})
		},
	}

	cmd.Flags().BoolVar(&freeOnly, "free-only", false, "never query the paid source")
	return cmd
}

func cycleCmd() *cobra.Command {
	var freeOnly bool

	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Run a single monitoring cycle and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				sched, err := a.scheduler(freeOnly)
				if err != nil {
					return err
				}
				stats, err := sched.RunCycle(ctx)
				if stats != nil {
					printCycleStats(cmd.OutOrStdout(), stats)
				}
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&freeOnly, "free-only", false, "never query the paid source")
	return cmd
}

func printCycleStats(w io.Writer, stats *monitor.CycleStats) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Cycle Complete ===")
	fmt.Fprintf(w, "Due:           %d\n", stats.Due)
	fmt.Fprintf(w, "Checked:       %d (%d free, %d paid)\n", stats.Checked, stats.FreeHits, stats.PaidChecks)
	fmt.Fprintf(w, "Skipped:       %d (budget)\n", stats.Skipped)
	fmt.Fprintf(w, "Failed:        %d\n", stats.Failed)
	fmt.Fprintf(w, "New entries:   %d\n", stats.NewEntries)
	fmt.Fprintf(w, "Notified:      %d\n", stats.Notified)
	fmt.Fprintf(w, "Spend:         $%s\n", stats.Spend.StringFixed(2))
	if stats.UntrackedSpend > 0 {
		fmt.Fprintf(w, "UNTRACKED:     %d paid fetches could not be recorded\n", stats.UntrackedSpend)
	}
	fmt.Fprintf(w, "Duration:      %v\n", stats.Duration)
}
