package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func searchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over stored docket entries",
		Example: `  docket-monitor search "motion to dismiss"
  docket-monitor search 'sanction~'
  docket-monitor search CourtID:nysd summary judgment`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withApp(cmd.Context(), func(_ context.Context, a *app) error {
				results, err := a.idx.Search(query, limit)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(results) == 0 {
					fmt.Fprintf(out, "No results found for %q\n", query)
					return nil
				}
				fmt.Fprintf(out, "Found %d results for %q:\n\n", len(results), query)
				for i, r := range results {
					fmt.Fprintf(out, "%d. %s #%d", i+1, r.CaseID, r.Number)
					if r.CaseName != "" {
						fmt.Fprintf(out, " (%s)", r.CaseName)
					}
					fmt.Fprintf(out, "\n   %s\n", r.Description)
					if r.DocumentURL != "" {
						fmt.Fprintf(out, "   %s\n", r.DocumentURL)
					}
					fmt.Fprintf(out, "   score: %.3f\n\n", r.Score)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum results")
	return cmd
}

func reindexCmd() *cobra.Command {
	var fresh bool

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index from the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if fresh {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				if err := os.RemoveAll(cfg.Storage.IndexPath()); err != nil {
					return fmt.Errorf("removing index: %w", err)
				}
			}

			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				cases, err := a.registry.List(ctx)
				if err != nil {
					return err
				}
				total := 0
				for _, c := range cases {
					n, err := a.db.CountEntries(ctx, c.ID)
					if err != nil {
						return fmt.Errorf("counting entries for %s: %w", c.ID, err)
					}
					total += n
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Found %d docket entries across %d cases\n", total, len(cases))
				start := time.Now()

				bar := progressbar.NewOptions(total,
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionSetDescription("Indexing"),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
				n, err := a.idx.IndexFromStorage(ctx, a.db, func(done int) {
					_ = bar.Set(done)
				})
				_ = bar.Finish()
				if err != nil {
					return fmt.Errorf("rebuilding index: %w", err)
				}

				count, _ := a.idx.Count()
				fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d entries in %v (%d documents in index)\n",
					n, time.Since(start).Round(time.Millisecond), count)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&fresh, "fresh", false, "delete the existing index first")
	return cmd
}
