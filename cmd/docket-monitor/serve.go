package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/renderinc/docket-monitor/internal/monitor"
	"github.com/renderinc/docket-monitor/internal/web"
)

func serveCmd() *cobra.Command {
	var withMonitor, freeOnly bool
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the JSON API",
		Long: `Serve the case, stats and search API. With --monitor the polling loop
runs in the same process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				var sched *monitor.Scheduler
				if withMonitor {
					var err error
					if sched, err = a.scheduler(freeOnly); err != nil {
						return err
					}
				}

				if addr == "" {
					addr = a.cfg.Server.Addr()
				}
				srv := &http.Server{
					Addr:              addr,
					Handler:           web.NewServer(a.db, a.registry, a.ledger, a.idx, a.logger).Handler(),
					ReadHeaderTimeout: 10 * time.Second,
				}

				g, ctx := errgroup.WithContext(ctx)

				g.Go(func() error {
					slog.Info("starting web server", "addr", "http://"+addr)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return fmt.Errorf("web server: %w", err)
					}
					return nil
				})

				g.Go(func() error {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})

				if sched != nil {
					g.Go(func() error { return sched.Run(ctx) })
				}

				return g.Wait()
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from server.host and server.port)")
	cmd.Flags().BoolVar(&withMonitor, "monitor", false, "also run the polling loop")
	cmd.Flags().BoolVar(&freeOnly, "free-only", false, "with --monitor, never query the paid source")
	return cmd
}
