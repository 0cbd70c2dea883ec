package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	appLog "recall/internal/log"
	"recall/internal/web"
)

func addServe(topLevel *cobra.Command, opts *rootOptions) {
	var (
		listen     string
		refreshNow bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the feed refresh schedule.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := opts.load(ctx)
			if err != nil {
				return err
			}
			if listen != "" {
				a.cfg.Listen = listen
			}
			appLog.Info("recall starting", "version", Version, "listen", a.cfg.Listen)

			sched := a.scheduler()
			if err := sched.Start(ctx); err != nil {
				return err
			}
			defer sched.Stop()

			if refreshNow && len(a.cfg.ICS) > 0 {
				go func() {
					if _, err := sched.RunOnce(ctx); err != nil {
						appLog.Error("initial refresh failed", err)
					}
				}()
			}

			srv := web.NewServer(a.cfg, a.svc, web.Options{Refresher: sched, Metrics: a.metrics})
			if err := srv.Serve(ctx); err != nil {
				return err
			}
			appLog.Info("recall exiting")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config)")
	cmd.Flags().BoolVar(&refreshNow, "refresh", true, "Refresh subscribed feeds once at startup")
	topLevel.AddCommand(cmd)
}
