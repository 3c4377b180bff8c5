package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/renderinc/docket-monitor/internal/budget"
)

func costsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "costs",
		Short: "Show PACER spend for the current quarter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				report, err := a.ledger.QuarterReport(ctx)
				if err != nil {
					return err
				}
				return printCostReport(cmd.OutOrStdout(), report)
			})
		},
	}
}

func printCostReport(w io.Writer, r *budget.Report) error {
	fmt.Fprintf(w, "=== PACER spend, %s ===\n", r.Quarter)
	fmt.Fprintf(w, "Spent:       $%s\n", r.Spent.StringFixed(2))
	fmt.Fprintf(w, "Budget:      $%s (buffer $%s, limit $%s)\n",
		r.Budget.StringFixed(2), r.Buffer.StringFixed(2), r.Limit.StringFixed(2))
	fmt.Fprintf(w, "Remaining:   $%s\n", r.Remaining.StringFixed(2))
	if !r.Spent.LessThan(r.Limit) {
		fmt.Fprintln(w, "Paid checks are paused until next quarter.")
	}

	if len(r.Daily) == 0 {
		fmt.Fprintln(w, "\nNo spend recorded this quarter.")
		return nil
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "DATE\tSPEND\t")
	for _, d := range r.Daily {
		fmt.Fprintf(tw, "%s\t$%s\t\n", d.Date.Format(time.DateOnly), d.Total.StringFixed(2))
	}
	return tw.Flush()
}
